package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mfl.dev/cli/internal/interfaces/cli"
	"mfl.dev/cli/internal/interfaces/di"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx, di.Build)
}
