package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/core/domain"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes
const (
	ExitSuccess  = 0
	ExitUsage    = 64
	ExitSoftware = 70
)

// usageError marks argument combinations that are valid to the flag parser
// but not to us.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usagef(format string, args ...any) *usageError {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCodeError carries a child process exit code up to main.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.code)
}

func main() {
	os.Exit(run())
}

func run() int {
	settings, err := LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitSoftware
	}

	a := &app{
		settings: settings,
		logger:   SetupLogger(settings, false),
	}

	cfg, err := config.Load(settings.BaseDir)
	if err != nil {
		a.logger.Error(err.Error())
		return ExitSoftware
	}
	a.cfg = cfg

	root := newRootCmd(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr exitCodeError
		var usageErr *usageError
		switch {
		case errors.As(err, &exitErr):
			return exitErr.code
		case errors.As(err, &usageErr):
			a.logger.Error(usageErr.msg)
			return ExitUsage
		case domain.IsUserError(err):
			a.logger.Error(err.Error())
			return ExitSoftware
		default:
			a.logger.Error("encountered an unexpected failure", "error", err)
			return ExitSoftware
		}
	}
	return ExitSuccess
}
