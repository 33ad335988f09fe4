package llm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Request is a single outbound HTTP call as seen by a Transport.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the raw outcome of a Transport call. A non-2xx status is a
// Response, not an error; errors are reserved for calls that produced no
// status at all (DNS, connection, timeout).
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Transport performs one HTTP round trip. Implementations must honor ctx for
// cancellation and deadlines.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns a transport backed by a pooled http.Client. The
// per-attempt timeout is applied by Client through the request context, so
// the http.Client itself carries no Timeout.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{Duration: time.Since(start)}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{StatusCode: resp.StatusCode, Header: resp.Header, Duration: time.Since(start)}, err
	}
	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
		Duration:   time.Since(start),
	}, nil
}
