// Package cmd implements the sapic-core CLI: a thin harness over the
// workspace/project entity services, built to exercise every storage-core
// operation end to end rather than to be a product surface in its own
// right.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sapic-core",
	Short: "Drive the Sapic storage core from the command line",
	Long:  `sapic-core exercises the workspace and project storage services directly: create/activate/list/delete workspaces, and create/archive/clone projects.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (not read: config always comes from $XDG_CONFIG_HOME/sapic/config.yaml, else ~/.config/sapic/config.yaml)")
	rootCmd.PersistentFlags().StringP("root", "r", "", "user directory root (overrides config user_dir)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
}
