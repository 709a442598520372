// Command csvescape escapes, sanitizes and analyzes CSV files from the
// command line using the same engine as the HTTP service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; real environment variables take precedence
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for a bad profile or override and 1 for anything else.
func exitCode(err error) int {
	if core.IsConfigurationError(err) {
		return 2
	}
	return 1
}
