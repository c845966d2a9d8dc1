package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudo-app/cloudo-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the resolved configuration after applying all override layers
(defaults, config file, environment variables, CLI flags).`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "init",
		Short:       "Write a commented default config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runConfigInit,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <section.key> <value>",
		Short: "Set one configuration key",
		Long: `Set one key in the config file, keeping its comments and layout. The
file is created from the default template when missing. The result is
validated before it is written.`,
		Example:     "  cloudo config set transfers.parallel_uploads 8\n  cloudo config set server.base_url https://files.example.com/api",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runConfigSet,
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	return config.RenderEffective(cc.Cfg, cc.Stdout)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	path, err := configPath(cc)
	if err != nil {
		return err
	}

	if err := config.CreateDefault(path, cc.Flags.Server); err != nil {
		return err
	}

	cc.Statusf("Wrote %s.\n", path)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	path, err := configPath(cc)
	if err != nil {
		return err
	}

	if err := config.SetKey(path, args[0], args[1]); err != nil {
		return err
	}

	cc.Statusf("Set %s in %s.\n", args[0], path)

	return nil
}

// configPath picks the file the config subcommands edit: --config, then
// CLOUDO_CONFIG, then the platform default.
func configPath(cc *CLIContext) (string, error) {
	if cc.Flags.ConfigPath != "" {
		return cc.Flags.ConfigPath, nil
	}

	env, err := config.ReadEnvOverrides()
	if err != nil {
		return "", err
	}

	if env.ConfigPath != "" {
		return env.ConfigPath, nil
	}

	path := config.DefaultConfigPath()
	if path == "" {
		return "", fmt.Errorf("cannot determine config path (use --config)")
	}

	return path, nil
}
