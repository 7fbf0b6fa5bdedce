package cmd

import (
	"os"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scalr-migrate [command]",
	Short: "Migrate Terraform Cloud/Enterprise workspaces to Scalr",
	Long: `scalr-migrate walks a Terraform Cloud/Enterprise organization, recreates
its workspaces, state and variables in a Scalr environment, and emits the
matching Terraform configuration with import bindings so the migrated objects
can be adopted by a management workspace.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	logger.BindFlags(rootCmd.PersistentFlags())
}
