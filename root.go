package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cloudo-app/cloudo-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that must run even when the config
// file is missing or invalid, because they create or repair it.
const skipConfigAnnotation = "skipConfig"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServer     string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// CLIFlags is a snapshot of the persistent flags after Cobra parsed them.
type CLIFlags struct {
	ConfigPath string
	Server     string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext carries everything a command needs. It is created by execute,
// filled in by the root PersistentPreRunE and reached through the command
// context.
type CLIContext struct {
	Flags  CLIFlags
	Logger *slog.Logger
	Cfg    *config.Resolved // nil for skipConfig commands
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	svc *services
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by execute. Its absence is a
// programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cloudo: command context carries no CLIContext")
	}

	return cc
}

// Services builds the session, clients, orchestrator and registry on first
// use so commands like "config show" never touch the token file or cache.
func (cc *CLIContext) Services(ctx context.Context) (*services, error) {
	if cc.svc != nil {
		return cc.svc, nil
	}

	if cc.Cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	svc, err := newServices(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return nil, err
	}

	cc.svc = svc

	return svc, nil
}

// Close releases whatever Services opened.
func (cc *CLIContext) Close() error {
	if cc.svc == nil {
		return nil
	}

	err := cc.svc.Close()
	cc.svc = nil

	return err
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cloudo",
		Short:   "Cloudo file storage client",
		Long:    "Upload, list, fetch and delete files stored on a Cloudo server.",
		Version: version,
		// Silence Cobra's default error/usage printing; execute's caller reports.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			cc.Flags = cliFlags()
			cc.Logger = bootstrapLogger(cc.Flags, cc.Stderr)

			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cc)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServer, "server", "", "backend base URL (overrides config)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable info logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newURLCmd())
	cmd.AddCommand(newProfileCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// execute runs the CLI with args and the given streams. Services opened by
// the command are closed before it returns.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cc := &CLIContext{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	defer func() {
		if err := cc.Close(); err != nil && cc.Logger != nil {
			cc.Logger.Warn("closing services", slog.String("error", err.Error()))
		}
	}()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	return cmd.ExecuteContext(context.WithValue(ctx, cliContextKey{}, cc))
}

func cliFlags() CLIFlags {
	return CLIFlags{
		ConfigPath: flagConfigPath,
		Server:     flagServer,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Debug:      flagDebug,
		Quiet:      flagQuiet,
	}
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and rebuilds the logger from it.
func loadConfig(cc *CLIContext) error {
	env, err := config.ReadEnvOverrides()
	if err != nil {
		return err
	}

	resolved, err := config.Resolve(env, config.CLIOverrides{
		ConfigPath: cc.Flags.ConfigPath,
		Server:     cc.Flags.Server,
	})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc.Cfg = resolved
	cc.Logger = buildLogger(resolved, cc.Flags, cc.Stderr)

	cc.Logger.Debug("config resolved",
		slog.String("path", resolved.Path),
		slog.Bool("file_loaded", resolved.FileLoaded),
		slog.String("server", resolved.Server.BaseURL),
	)

	return nil
}

// bootstrapLogger is used until the config is resolved: Warn by default,
// adjusted only by CLI flags.
func bootstrapLogger(flags CLIFlags, w io.Writer) *slog.Logger {
	return newLogger(w, flagLevel(slog.LevelWarn, flags), "text")
}

// buildLogger creates the logger configured by the resolved config and CLI
// flags. Config log level is the baseline; CLI flags always win.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if cfg != nil {
		level = parseLevel(cfg.Logging.LogLevel)
		format = cfg.Logging.LogFormat
	}

	return newLogger(w, flagLevel(level, flags), format)
}

func flagLevel(level slog.Level, flags CLIFlags) slog.Level {
	switch {
	case flags.Debug:
		return slog.LevelDebug
	case flags.Verbose:
		return slog.LevelInfo
	case flags.Quiet:
		return slog.LevelError
	default:
		return level
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// newLogger picks the handler. "auto" is text on a terminal, JSON otherwise.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is a TTY.
func isTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
