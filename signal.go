package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// interruptExitCode is the shell convention for a process stopped by SIGINT.
const interruptExitCode = 130

// shutdownContext returns a context cancelled by the first SIGINT or SIGTERM.
// Cancellation aborts in-flight uploads, which settle as cancelled tasks, and
// stops `watch`. A second signal calls forceExit for a command stuck in I/O.
func shutdownContext(parent context.Context, logger *slog.Logger, forceExit func(code int)) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("interrupted, cancelling in-flight work",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("interrupted again, exiting without cleanup",
				slog.String("signal", sig.String()),
			)
			forceExit(interruptExitCode)
		case <-parent.Done():
		}
	}()

	return ctx
}
