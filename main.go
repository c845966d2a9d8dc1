package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A .env file in the working directory may supply CLOUDO_* variables;
	// real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("reading .env file", slog.String("error", err.Error()))
	}

	ctx := shutdownContext(context.Background(), slog.Default(), os.Exit)

	if err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			os.Exit(interruptExitCode)
		}

		printError(os.Stderr, err)
		os.Exit(1)
	}
}
