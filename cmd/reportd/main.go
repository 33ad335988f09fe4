// Command reportd serves the report generation API and runs its maintenance
// jobs.
//
//	reportd serve     # HTTP API + idempotency reaper
//	reportd migrate   # create/upgrade the schema
//	reportd reap      # purge expired idempotency keys once
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
