package cmd

import (
	"fmt"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/config"
	"scalr-migrate/internal/credentials"
	"scalr-migrate/internal/hcl"
	"scalr-migrate/internal/migrate"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate TFC/E workspaces into a Scalr environment",
	Long: `Migrate the workspaces of a Terraform Cloud/Enterprise organization into
a Scalr environment.

For every selected workspace the command ensures a matching Scalr workspace
exists, pushes the latest state version, copies the variables (recovering
sensitive terraform variables from the latest plan where possible), and
locks the source workspace. Cross-workspace state sharing is resolved once
all workspaces are known. Every object that exists on Scalr afterwards is
mirrored into generated Terraform configuration with import blocks so a
management workspace can adopt it.

Reruns are safe: existing objects are reused and already generated blocks
are never redeclared.

Examples:
  # Migrate every workspace of an organization
  scalr-migrate migrate --tfc-organization=my-org --vcs-name=github

  # Migrate a subset into an explicit environment
  scalr-migrate migrate --tfc-organization=my-org --workspaces='prod-*' \
    --scalr-environment=production --vcs-name=github`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAndMerge(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateMigration(); err != nil {
		return err
	}

	exec := client.NewExecutor()
	source := tfc.NewClient(cfg.TFC.Hostname, cfg.TFC.Token, exec)
	target := scalr.NewClient(cfg.Scalr.Hostname, cfg.Scalr.Token, exec)

	artifacts, err := hcl.NewManager(cfg.ArtifactDir())
	if err != nil {
		return err
	}

	credentialsPath, err := credentials.DefaultPath()
	if err != nil {
		logger.Warnf("cannot resolve terraform credentials file, skipping bootstrap: %v", err)
		credentialsPath = ""
	}

	m, err := migrate.New(source, target, artifacts, migrate.Options{
		ScalrHostname:             cfg.Scalr.Hostname,
		ScalrToken:                cfg.Scalr.Token,
		TFCHostname:               cfg.TFC.Hostname,
		TFCToken:                  cfg.TFC.Token,
		Organization:              cfg.TFC.Organization,
		Project:                   cfg.TFC.Project,
		Environment:               cfg.EnvironmentName(),
		ManagementEnv:             cfg.Migration.ManagementEnvName,
		ManagementWorkspace:       cfg.ManagementWorkspaceName(),
		VCSName:                   cfg.Migration.VCSName,
		PCName:                    cfg.Migration.PCName,
		AgentPoolName:             cfg.Migration.AgentPoolName,
		WorkspacePatterns:         splitPatterns(cfg.Migration.Workspaces),
		SkipVariablePatterns:      splitPatterns(cfg.Migration.SkipVariables),
		SkipWorkspaceCreation:     cfg.Migration.SkipWorkspaceCreation,
		SkipBackendSecrets:        cfg.Migration.SkipBackendSecrets,
		DisableDeletionProtection: cfg.Migration.DisableDeletionProtection,
		Lock:                      !cfg.Migration.SkipTFCLock,
		CredentialsPath:           credentialsPath,
	})
	if err != nil {
		return err
	}

	summary, err := m.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("\n✓ Migration finished: %d workspaces migrated, %d skipped\n", len(summary.Migrated), len(summary.Skipped))
	fmt.Printf("  Generated configuration: %s\n", artifacts.Dir())
	if len(summary.UnrecoveredVariables) > 0 {
		fmt.Println("\nSensitive variables that could not be recovered (set them manually):")
		for workspace, keys := range summary.UnrecoveredVariables {
			fmt.Printf("  %s: %s\n", workspace, strings.Join(keys, ", "))
		}
	}

	return nil
}

// splitPatterns turns a comma-separated flag value into a pattern list.
func splitPatterns(s string) []string {
	var patterns []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	registerMigrateFlags(migrateCmd)
}

func registerMigrateFlags(cmd *cobra.Command) {
	// Connection flags
	cmd.Flags().String("scalr-hostname", "", "Scalr hostname, e.g. example.scalr.io (or SCALR_HOSTNAME)")
	cmd.Flags().String("scalr-token", "", "Scalr API token (or SCALR_TOKEN)")
	cmd.Flags().String("tfc-hostname", config.DefaultTFCHostname, "TFC/E hostname (or TFC_HOSTNAME)")
	cmd.Flags().String("tfc-token", "", "TFC/E API token (or TFC_TOKEN)")

	// Selection flags
	cmd.Flags().String("tfc-organization", "", "TFC/E organization to migrate")
	cmd.Flags().String("tfc-project", "", "Restrict migration to one TFC project")
	cmd.Flags().String("workspaces", "*", "Comma-separated glob patterns of workspaces to migrate")

	// Target flags
	cmd.Flags().String("scalr-environment", "", "Destination environment (defaults to project or organization name)")
	cmd.Flags().String("vcs-name", "", "Name of the Scalr VCS provider for created workspaces")
	cmd.Flags().String("pc-name", "", "Name of a Scalr provider configuration to link to created workspaces")
	cmd.Flags().String("agent-pool-name", "", "Name of the Scalr agent pool for agent-driven workspaces")
	cmd.Flags().String("management-env-name", config.DefaultManagementEnvName, "Name of the management environment")
	cmd.Flags().String("output-dir", config.DefaultOutputDir, "Directory for the generated configuration")

	// Behavior flags
	cmd.Flags().String("skip-variables", "", "Comma-separated glob patterns of variable keys to skip, or '*' for all")
	cmd.Flags().Bool("skip-workspace-creation", false, "Fail instead of creating missing Scalr workspaces")
	cmd.Flags().Bool("skip-backend-secrets", false, "Do not create the account-level backend secrets")
	cmd.Flags().Bool("skip-tfc-lock", false, "Leave source workspaces unlocked after migration")
	cmd.Flags().Bool("disable-deletion-protection", false, "Generate workspaces without deletion protection")
}
