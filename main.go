package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{getenv: os.Getenv}
	err := newCommand(a).Run(ctx, os.Args)
	a.flushMetrics()
	if err != nil {
		slog.Error("Command failed", "error", err)
		cancel()
		os.Exit(1)
	}
}
