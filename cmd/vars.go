package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/config"
	"scalr-migrate/internal/migrate"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Copy variable-set variables to the Scalr account",
	Long: `Copy the variables of a TFC/E organization's global variable sets, plus
any sets named with --varsets, to account-scoped Scalr variables.

Sensitive values cannot be read through the API. They are created with the
placeholder value ` + migrate.SensitivePlaceholder + ` and reported so
they can be filled in manually.

Examples:
  # Copy the variables of every global variable set
  scalr-migrate vars --tfc-organization=my-org

  # Include two named variable sets, without writing anything
  scalr-migrate vars --tfc-organization=my-org --varsets=aws-creds,common --dry-run`,
	RunE: runVars,
}

func runVars(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAndMerge(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSharedVariables(); err != nil {
		return err
	}

	varsets, _ := cmd.Flags().GetString("varsets")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	exec := client.NewExecutor()
	source := tfc.NewClient(cfg.TFC.Hostname, cfg.TFC.Token, exec)
	target := scalr.NewClient(cfg.Scalr.Hostname, cfg.Scalr.Token, exec)

	summary, err := migrate.SharedVariables(cmd.Context(), source, target, migrate.SharedVariablesOptions{
		Organization: cfg.TFC.Organization,
		VarsetNames:  splitPatterns(varsets),
		DryRun:       dryRun,
	})
	if err != nil {
		return err
	}

	verb := "created"
	if dryRun {
		verb = "would be created"
	}
	fmt.Printf("\n✓ %d variables %s, %d skipped, %d failed\n", summary.Created, verb, summary.Skipped, summary.Failed)
	if len(summary.Placeholders) > 0 {
		fmt.Println("\nSensitive variables created with a placeholder value (fill them in manually):")
		fmt.Printf("  %s\n", strings.Join(summary.Placeholders, ", "))
	}

	return nil
}

func init() {
	rootCmd.AddCommand(varsCmd)

	varsCmd.Flags().String("scalr-hostname", "", "Scalr hostname, e.g. example.scalr.io (or SCALR_HOSTNAME)")
	varsCmd.Flags().String("scalr-token", "", "Scalr API token (or SCALR_TOKEN)")
	varsCmd.Flags().String("tfc-hostname", config.DefaultTFCHostname, "TFC/E hostname (or TFC_HOSTNAME)")
	varsCmd.Flags().String("tfc-token", "", "TFC/E API token (or TFC_TOKEN)")
	varsCmd.Flags().String("tfc-organization", "", "TFC/E organization to read variables from")
	varsCmd.Flags().String("varsets", "", "Comma-separated names of variable sets to include (global sets always are)")
	varsCmd.Flags().Bool("dry-run", false, "Report what would be created without writing")
}
