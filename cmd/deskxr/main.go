// Command deskxr is a VR desktop overlay: it shows captured desktops as
// panels you can point at, click, scroll and drag with tracked controllers.
package main

import (
	"context"
	"fmt"
	"os"

	"deskxr/internal/config"
	"deskxr/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build information set via ldflags
var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deskxr",
		Short:         "Desktop panels in VR",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Config file (default: $XDG_CONFIG_HOME/deskxr/config.yaml)")
	root.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "Log format (console or json)")

	root.AddCommand(newRunCmd(), newConfigCmd(), newKeyboardCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deskxr %s (%s)\n", version, commit)
		},
	})
	return root
}

// loadConfig builds the Viper instance for cmd, binds its flags and loads
// the validated config.
func loadConfig(cmd *cobra.Command, bind map[string]string) (*config.Config, *viper.Viper, error) {
	file, _ := cmd.Flags().GetString("config")
	v := config.NewViper(file)
	bind["logging.level"] = "log-level"
	bind["logging.format"] = "log-format"
	for key, flag := range bind {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, nil, err
			}
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	lc := logging.DefaultConfig()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	lc.Level = level
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	return logging.New(lc), nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
