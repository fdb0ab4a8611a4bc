// SPDX-License-Identifier: MIT
package labmirror

import (
	"fmt"
	"os"

	"github.com/skaphos/labmirror/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default labmirror configuration",
	Long:  "Creates a labmirror config file in the current directory by default.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfgPath, err := config.InitConfigPath(flagConfig, cwd)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		switch _, err := os.Stat(cfgPath); {
		case err == nil && !force:
			return fmt.Errorf("config already exists at %q (use --force to overwrite)", cfgPath)
		case err != nil && !os.IsNotExist(err):
			return err
		}

		cfg := config.DefaultConfig()
		if url, _ := cmd.Flags().GetString("url"); url != "" {
			cfg.HostURL = url
		}
		if dest, _ := cmd.Flags().GetString("dest"); dest != "" {
			cfg.DefaultDestination = dest
		}
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", cfgPath)
		return err
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite existing config without prompting")
	initCmd.Flags().String("url", "", "hosting base URL to store in the config")
	initCmd.Flags().String("dest", "", "default destination directory to store in the config")

	rootCmd.AddCommand(initCmd)
}
