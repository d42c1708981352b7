// Package main is quotectl, the command-line client of the quote store.
// It works on the same store and remote source as the service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version is injected via ldflags.
var Version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newCLI(os.Stdout, os.Stderr).run(ctx, os.Args[1:]); err != nil {
		_, _ = os.Stderr.WriteString("error: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
