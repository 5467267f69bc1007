package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glebis/claude-session-explorer/internal/logger"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

// exitError carries a process exit code. When printed is set the command
// already reported the failure itself.
type exitError struct {
	code    int
	err     error
	printed bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fatal(err error) error {
	return &exitError{code: 2, err: err}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "cse",
		Short:         "Claude session explorer - chunk, embed and semantically search session logs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/cse/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(doctorCmd())

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	code := 1
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		if ee.printed {
			os.Exit(code)
		}
	}
	logger.Logger.Error().Err(err).Msg("command failed")
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(code)
}
