// Package main is the entry point for the beefctl CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/beefweb/beefclient/cmd/beefctl/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
