package services

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// flightGroup collapses concurrent calls with the same key into one execution.
//
// The shared work runs on a context detached from any single caller and is
// cancelled only once every caller waiting on it has returned, so one client
// disconnecting does not fail the others. Each caller stops waiting as soon as
// its own context is done.
type flightGroup struct {
	group singleflight.Group

	mu      sync.Mutex
	seq     uint64
	flights map[string]*flight
}

type flight struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Do runs fn once per key among overlapping callers. The returned error is
// ctx.Err() when the caller gave up before the shared call finished.
func (g *flightGroup) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	f := g.join(ctx, key)
	defer g.leave(key, f)

	ch := g.group.DoChan(f.id, func() (any, error) { return fn(f.ctx) })
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *flightGroup) join(ctx context.Context, key string) *flight {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.flights == nil {
		g.flights = make(map[string]*flight)
	}
	f, ok := g.flights[key]
	if !ok {
		// Values (trace span, request id) come from the first caller.
		shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
		g.seq++
		// A new generation id keeps callers from joining a cancelled run
		// that has not returned yet.
		f = &flight{id: key + "\x00" + strconv.FormatUint(g.seq, 10), ctx: shared, cancel: cancel}
		g.flights[key] = f
	}
	f.waiters++
	return f
}

func (g *flightGroup) leave(key string, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if g.flights[key] == f {
		delete(g.flights, key)
	}
}
