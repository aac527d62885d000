package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kongwutw/devfront/internal/config"
)

const defaultConfigFile = "devfront.yaml"

// globalFlags are shared by every subcommand. Defaults come from the
// environment, so precedence is flag, then env, then built-in default.
type globalFlags struct {
	ConfigFile string
	LogFormat  string
	LogLevel   string
}

func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "devfront",
		Short:         "Local development front end",
		Long:          "devfront serves a project's source files and forwards API and WebSocket traffic to backend services.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateLogFlags(flags)
		},
	}

	cmd.SetOut(os.Stdout)
	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.ConfigFile, "config", "c", getEnv("DEVFRONT_CONFIG", defaultConfigFile), "path to the YAML config file")
	pf.StringVar(&flags.LogFormat, "log-format", getEnv("DEVFRONT_LOG_FORMAT", "text"), "log format (json or text)")
	pf.StringVar(&flags.LogLevel, "log-level", getEnv("DEVFRONT_LOG_LEVEL", "info"), "log level (debug, info, warn or error)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newCheckCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func validateLogFlags(flags *globalFlags) error {
	if flags.LogFormat != "json" && flags.LogFormat != "text" {
		return fmt.Errorf("unsupported log format %q: must be \"json\" or \"text\"", flags.LogFormat)
	}
	switch flags.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unsupported log level %q: must be one of debug, info, warn, error", flags.LogLevel)
}

// resolveConfig loads the config file, lets edit adjust the raw values and
// resolves the result.
func resolveConfig(path string, edit func(*config.Raw)) (*config.Resolved, error) {
	raw, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if edit != nil {
		edit(raw)
	}
	return config.Resolve(raw)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
