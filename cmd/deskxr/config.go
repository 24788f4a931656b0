package main

import (
	"fmt"
	"image/png"
	"os"

	"deskxr/internal/config"
	"deskxr/internal/keyboard"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  `Print the configuration after defaults, the config file and DESKXR_ environment overrides are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printDir, _ := cmd.Flags().GetBool("path"); printDir {
				dir, err := config.ConfigDir()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dir)
				return nil
			}
			cfg, _, err := loadConfig(cmd, map[string]string{})
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	cmd.Flags().Bool("path", false, "Print the config directory")
	return cmd
}

func newKeyboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyboard <out.png>",
		Short: "Render the keyboard layout to a PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := keyboard.Default()
			if path, _ := cmd.Flags().GetString("layout"); path != "" {
				l, err := keyboard.Load(path)
				if err != nil {
					return err
				}
				layout = l
			}
			unit, _ := cmd.Flags().GetInt("unit")
			img := keyboard.Renderer{Unit: unit}.Render(keyboard.New(layout).View())

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := png.Encode(f, img); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().String("layout", "", "Layout file (default: built-in layout)")
	cmd.Flags().Int("unit", 48, "Pixels per key unit")
	return cmd
}
