// Command catalogctl drives the catalog from the shell: entity CRUD, search,
// aggregation and permission management for cohorts, individuals and clinical
// analyses. Results are printed as JSON.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
