package cmd

import (
	"fmt"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/config"
	"scalr-migrate/internal/neo4j"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate scalr-migrate configuration and connections",
	Long:  `Validate scalr-migrate configuration and verify connections.`,
}

var checkAPICmd = &cobra.Command{
	Use:   "api",
	Short: "Check TFC/E and Scalr API connectivity",
	Long: `Verify that scalr-migrate can reach both APIs with the configured
credentials.

This command will:
  1. Load the configuration from .scalr-migrate.yaml, environment and flags
  2. Read the organization from TFC/E
  3. Read the account from Scalr
  4. Report the connection status

Example:
  scalr-migrate check api --tfc-organization=my-org`,
	RunE: runCheckAPI,
}

func runCheckAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAndMerge(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSharedVariables(); err != nil {
		return err
	}

	ctx := cmd.Context()
	exec := client.NewExecutor()

	logger.Infof("checking TFC/E API on %s", cfg.TFC.Hostname)
	source := tfc.NewClient(cfg.TFC.Hostname, cfg.TFC.Token, exec)
	org, err := source.GetOrganization(ctx, cfg.TFC.Organization)
	if err != nil {
		return fmt.Errorf("failed to read organization %s: %w", cfg.TFC.Organization, err)
	}
	fmt.Printf("✓ TFC/E reachable, organization: %s\n", org.Name)

	logger.Infof("checking Scalr API on %s", cfg.Scalr.Hostname)
	target := scalr.NewClient(cfg.Scalr.Hostname, cfg.Scalr.Token, exec)
	accounts, err := target.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list Scalr accounts: %w", err)
	}
	if len(accounts) != 1 {
		return fmt.Errorf("expected the token to see exactly one Scalr account, got %d", len(accounts))
	}
	fmt.Printf("✓ Scalr reachable, account: %s (%s)\n", accounts[0].Name, accounts[0].ID)

	fmt.Println()
	fmt.Println("✓ Both APIs are ready for a migration.")

	return nil
}

var checkDatabaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Check Neo4j database connectivity",
	Long: `Verify that scalr-migrate can connect to the Neo4j database using
the credentials from the configuration file (.scalr-migrate.yaml).

This command will:
  1. Load the configuration from .scalr-migrate.yaml
  2. Attempt to connect to the Neo4j database
  3. Verify connectivity
  4. Report the connection status

Example:
  scalr-migrate check database`,
	RunE: runCheckDatabase,
}

func runCheckDatabase(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !config.Exists() {
		fmt.Println("⚠ Warning: No configuration file found.")
		fmt.Println("  Run 'scalr-migrate init' to create one.")
		fmt.Println("  Using default values...")
		fmt.Println()
	}

	// Display connection info (without password)
	fmt.Println("Neo4j Connection Settings:")
	fmt.Printf("  URI:  %s\n", cfg.Neo4j.URI)
	fmt.Printf("  User: %s\n", cfg.Neo4j.User)
	fmt.Println()

	if cfg.Neo4j.Password == "" {
		return fmt.Errorf("neo4j password is not set in configuration file")
	}

	ctx := cmd.Context()
	logger.Infof("connecting to Neo4j at %s", cfg.Neo4j.URI)

	db, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
	if err != nil {
		return fmt.Errorf("failed to create neo4j client: %w", err)
	}
	defer db.Close(ctx)

	if err := db.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Successfully connected to Neo4j database!")
	fmt.Println("  The database is ready to use.")

	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.AddCommand(checkAPICmd)
	checkCmd.AddCommand(checkDatabaseCmd)

	checkAPICmd.Flags().String("scalr-hostname", "", "Scalr hostname, e.g. example.scalr.io (or SCALR_HOSTNAME)")
	checkAPICmd.Flags().String("scalr-token", "", "Scalr API token (or SCALR_TOKEN)")
	checkAPICmd.Flags().String("tfc-hostname", config.DefaultTFCHostname, "TFC/E hostname (or TFC_HOSTNAME)")
	checkAPICmd.Flags().String("tfc-token", "", "TFC/E API token (or TFC_TOKEN)")
	checkAPICmd.Flags().String("tfc-organization", "", "TFC/E organization to check")
}
