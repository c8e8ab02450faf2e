// Package runner invokes the external composition tool and drives the staged
// startup protocol: core services first, gated on readiness, then everything
// else.
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
)

// Executor runs one external command to completion and reports its exit code.
type Executor interface {
	Run(argv []string) (int, error)
}

// ExecRunner runs commands with inherited stdio so the composition tool's
// output streams straight to the console.
type ExecRunner struct {
	Logger *slog.Logger
}

// Run starts argv and waits for it. The first interrupt is forwarded to the
// child and the wait continues so the child can shut down cleanly; a second
// interrupt gives up and kills it.
func (r ExecRunner) Run(argv []string) (int, error) {
	r.Logger.Info("calling " + strings.Join(argv, " "))

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	forwarded := false
	for {
		select {
		case err := <-done:
			return exitCode(err)
		case <-interrupts:
			if forwarded {
				r.Logger.Warn("second interrupt, killing child process")
				_ = cmd.Process.Kill()
				<-done
				return 130, nil
			}
			forwarded = true
			r.Logger.Debug("forwarding interrupt to child process")
			_ = cmd.Process.Signal(os.Interrupt)
		}
	}
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
