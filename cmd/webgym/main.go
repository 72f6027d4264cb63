package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/webgym/cmd"
	"github.com/xkilldash9x/webgym/internal/observability"
)

// Function variables for dependency injection in tests.
var (
	osExit           = os.Exit
	stderr io.Writer = os.Stderr
	execute          = cmd.Execute
)

func main() {
	defer handlePanic()

	// Listen for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if code := run(ctx); code != 0 {
		stop()
		osExit(code)
	}
}

// run executes the root command and maps the outcome to an exit code. An
// interrupt mid-run counts as a clean exit.
func run(ctx context.Context) int {
	defer observability.Sync()
	if err := execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		return 1
	}
	return 0
}

// handlePanic flushes logs and reports the crash before exiting. Episode
// loops run unattended, so a silent crash is the worst outcome.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()
		fmt.Fprintf(stderr, "panic: %v\n\n%s\n", r, debug.Stack())
		osExit(2)
	}
}
