package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/SumedhJ28/typespeed-ai-anticheat/cmd"
)

func main() {
	// Listen for interrupt signals (SIGINT, SIGTERM) so in-flight
	// iterations can wind down instead of leaving orphaned browsers.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Graceful shutdown during a run counts as a clean exit.
			os.Exit(0)
		}
		os.Exit(1)
	}
}
