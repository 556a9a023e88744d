package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mongo2csv/cmd"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code, so deferred cleanup finishes before os.Exit.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
