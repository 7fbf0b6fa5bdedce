package cmd

import (
	"fmt"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/config"
	"scalr-migrate/internal/credentials"
	"scalr-migrate/internal/migrate"
	"scalr-migrate/internal/tfc"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Report recent run activity across the TFC/E organizations",
	Long: `Count the runs each organization of a TFC/E installation finished over a
trailing period. The report helps size a migration before starting one.

The token is taken from --tfc-token, the TFC_TOKEN environment variable or
the terraform CLI credentials file, in that order.

Examples:
  # Runs over the default trailing 30 days
  scalr-migrate runs

  # Runs over the last quarter on a TFE installation
  scalr-migrate runs --tfc-hostname=tfe.example.com --days=90`,
	RunE: runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAndMerge(cmd, args)
	if err != nil {
		return err
	}

	days, _ := cmd.Flags().GetInt("days")

	token := cfg.TFC.Token
	if token == "" {
		path, err := credentials.DefaultPath()
		if err == nil {
			token, err = credentials.Token(path, cfg.TFC.Hostname)
		}
		if err != nil {
			return fmt.Errorf("no TFC/E token available: %w", err)
		}
	}

	source := tfc.NewClient(cfg.TFC.Hostname, token, client.NewExecutor())

	logger.Infof("counting runs on %s over the last %d days", cfg.TFC.Hostname, days)
	report, err := migrate.RunActivity(cmd.Context(), source, time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}

	for _, org := range report.Organizations {
		fmt.Printf("%-40s %d\n", org.Name, org.Runs)
	}
	fmt.Printf("\nTotal runs across %d organizations: %d\n", len(report.Organizations), report.TotalRuns)

	return nil
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().String("tfc-hostname", config.DefaultTFCHostname, "TFC/E hostname (or TFC_HOSTNAME)")
	runsCmd.Flags().String("tfc-token", "", "TFC/E API token (or TFC_TOKEN)")
	runsCmd.Flags().Int("days", 30, "Trailing period to count runs over, in days")
}
