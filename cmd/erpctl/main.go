package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"garments-erp/internal/adapters/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "erpctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
