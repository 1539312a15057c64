// Command docrag ingests documents and answers questions about them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(buildService).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
