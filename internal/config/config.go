// Package config loads scalr-migrate settings from the YAML config file,
// environment variables and command-line flags. Priority: flags > file > env
// > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	ConfigFileName = ".scalr-migrate"
	ConfigFileType = "yaml"

	DefaultTFCHostname       = "app.terraform.io"
	DefaultManagementEnvName = "scalr-admin"
	DefaultOutputDir         = "generated-terraform"
)

// Config holds the configuration for scalr-migrate.
type Config struct {
	Scalr     ScalrConfig     `mapstructure:"scalr"`
	TFC       TFCConfig       `mapstructure:"tfc"`
	Migration MigrationConfig `mapstructure:"migration"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
}

// ScalrConfig holds the target connection settings.
type ScalrConfig struct {
	Hostname string `mapstructure:"hostname"`
	Token    string `mapstructure:"token"`
}

// TFCConfig holds the source connection settings.
type TFCConfig struct {
	Hostname     string `mapstructure:"hostname"`
	Token        string `mapstructure:"token"`
	Organization string `mapstructure:"organization"`
	Project      string `mapstructure:"project"`
}

// MigrationConfig holds the knobs of a migration pass.
type MigrationConfig struct {
	// Environment is the destination Scalr environment. Empty means the TFC
	// project name when one is set, otherwise the organization name.
	Environment string `mapstructure:"environment"`

	VCSName       string `mapstructure:"vcs_name"`
	PCName        string `mapstructure:"pc_name"`
	AgentPoolName string `mapstructure:"agent_pool_name"`

	// Workspaces is a comma-separated list of glob patterns selecting the
	// source workspaces to migrate.
	Workspaces string `mapstructure:"workspaces"`

	// SkipVariables is a comma-separated list of glob patterns for variable
	// keys to leave behind, or "*" to skip variable migration entirely.
	SkipVariables string `mapstructure:"skip_variables"`

	SkipWorkspaceCreation     bool   `mapstructure:"skip_workspace_creation"`
	SkipBackendSecrets        bool   `mapstructure:"skip_backend_secrets"`
	SkipTFCLock               bool   `mapstructure:"skip_tfc_lock"`
	DisableDeletionProtection bool   `mapstructure:"disable_deletion_protection"`
	ManagementEnvName         string `mapstructure:"management_env_name"`
	OutputDir                 string `mapstructure:"output_dir"`
}

// Neo4jConfig holds the connection settings of the topology database.
type Neo4jConfig struct {
	URI         string `mapstructure:"uri"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DockerImage string `mapstructure:"docker_image"`
}

// DefaultConfig returns a Config with default values. Tokens and hostnames
// fall back to the environment variables the migrator's callers already use.
func DefaultConfig() *Config {
	tfcHostname := os.Getenv("TFC_HOSTNAME")
	if tfcHostname == "" {
		tfcHostname = DefaultTFCHostname
	}
	return &Config{
		Scalr: ScalrConfig{
			Hostname: os.Getenv("SCALR_HOSTNAME"),
			Token:    os.Getenv("SCALR_TOKEN"),
		},
		TFC: TFCConfig{
			Hostname: tfcHostname,
			Token:    os.Getenv("TFC_TOKEN"),
		},
		Migration: MigrationConfig{
			Workspaces:        "*",
			ManagementEnvName: DefaultManagementEnvName,
			OutputDir:         DefaultOutputDir,
		},
		Neo4j: Neo4jConfig{
			URI:         "bolt://localhost:7687",
			User:        "neo4j",
			Password:    "",
			DockerImage: "neo4j:community",
		},
	}
}

// EnvironmentName resolves the destination environment: an explicit setting
// wins, then the TFC project, then the organization.
func (c *Config) EnvironmentName() string {
	if c.Migration.Environment != "" {
		return c.Migration.Environment
	}
	if c.TFC.Project != "" {
		return c.TFC.Project
	}
	return c.TFC.Organization
}

// ManagementWorkspaceName is the workspace in the management environment that
// adopts the generated configuration. It is named after the destination
// environment.
func (c *Config) ManagementWorkspaceName() string {
	return c.EnvironmentName()
}

// ArtifactDir is the per-environment directory the generated configuration
// lands in.
func (c *Config) ArtifactDir() string {
	return filepath.Join(c.Migration.OutputDir, c.EnvironmentName())
}

// Load reads the configuration from the .scalr-migrate.yaml file.
// It searches for the config file in the current directory and $HOME.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType(ConfigFileType)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	defaults := DefaultConfig()
	v.SetDefault("scalr.hostname", defaults.Scalr.Hostname)
	v.SetDefault("scalr.token", defaults.Scalr.Token)
	v.SetDefault("tfc.hostname", defaults.TFC.Hostname)
	v.SetDefault("tfc.token", defaults.TFC.Token)
	v.SetDefault("migration.workspaces", defaults.Migration.Workspaces)
	v.SetDefault("migration.management_env_name", defaults.Migration.ManagementEnvName)
	v.SetDefault("migration.output_dir", defaults.Migration.OutputDir)
	v.SetDefault("neo4j.uri", defaults.Neo4j.URI)
	v.SetDefault("neo4j.user", defaults.Neo4j.User)
	v.SetDefault("neo4j.password", defaults.Neo4j.Password)
	v.SetDefault("neo4j.docker_image", defaults.Neo4j.DockerImage)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadAndMerge loads configuration from file and merges it with CLI flags.
// Only flags the command actually declares are consulted.
func LoadAndMerge(cmd *cobra.Command, args []string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	stringFlags := map[string]*string{
		"scalr-hostname":      &cfg.Scalr.Hostname,
		"scalr-token":         &cfg.Scalr.Token,
		"scalr-environment":   &cfg.Migration.Environment,
		"tfc-hostname":        &cfg.TFC.Hostname,
		"tfc-token":           &cfg.TFC.Token,
		"tfc-organization":    &cfg.TFC.Organization,
		"tfc-project":         &cfg.TFC.Project,
		"vcs-name":            &cfg.Migration.VCSName,
		"pc-name":             &cfg.Migration.PCName,
		"agent-pool-name":     &cfg.Migration.AgentPoolName,
		"workspaces":          &cfg.Migration.Workspaces,
		"skip-variables":      &cfg.Migration.SkipVariables,
		"management-env-name": &cfg.Migration.ManagementEnvName,
		"output-dir":          &cfg.Migration.OutputDir,
		"neo4j-uri":           &cfg.Neo4j.URI,
		"neo4j-user":          &cfg.Neo4j.User,
		"neo4j-pass":          &cfg.Neo4j.Password,
	}
	for name, target := range stringFlags {
		if cmd.Flags().Changed(name) {
			*target, _ = cmd.Flags().GetString(name)
		}
	}

	boolFlags := map[string]*bool{
		"skip-workspace-creation":     &cfg.Migration.SkipWorkspaceCreation,
		"skip-backend-secrets":        &cfg.Migration.SkipBackendSecrets,
		"skip-tfc-lock":               &cfg.Migration.SkipTFCLock,
		"disable-deletion-protection": &cfg.Migration.DisableDeletionProtection,
	}
	for name, target := range boolFlags {
		if cmd.Flags().Changed(name) {
			*target, _ = cmd.Flags().GetBool(name)
		}
	}

	return cfg, nil
}

// ValidateMigration checks that a migration pass has everything it needs.
func (c *Config) ValidateMigration() error {
	missing := []string{}
	if c.Scalr.Hostname == "" {
		missing = append(missing, "scalr-hostname")
	}
	if c.Scalr.Token == "" {
		missing = append(missing, "scalr-token")
	}
	if c.TFC.Token == "" {
		missing = append(missing, "tfc-token")
	}
	if c.TFC.Organization == "" {
		missing = append(missing, "tfc-organization")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %v", missing)
	}
	if !c.Migration.SkipWorkspaceCreation && c.Migration.VCSName == "" {
		return fmt.Errorf("a VCS provider name is required unless --skip-workspace-creation is set")
	}
	return nil
}

// ValidateSharedVariables checks the settings the vars command needs.
func (c *Config) ValidateSharedVariables() error {
	missing := []string{}
	if c.Scalr.Hostname == "" {
		missing = append(missing, "scalr-hostname")
	}
	if c.Scalr.Token == "" {
		missing = append(missing, "scalr-token")
	}
	if c.TFC.Token == "" {
		missing = append(missing, "tfc-token")
	}
	if c.TFC.Organization == "" {
		missing = append(missing, "tfc-organization")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %v", missing)
	}
	return nil
}

// Save writes the configuration to a .scalr-migrate.yaml file.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = fmt.Sprintf("%s.%s", ConfigFileName, ConfigFileType)
	}

	v := viper.New()
	v.Set("scalr.hostname", cfg.Scalr.Hostname)
	v.Set("scalr.token", cfg.Scalr.Token)
	v.Set("tfc.hostname", cfg.TFC.Hostname)
	v.Set("tfc.token", cfg.TFC.Token)
	v.Set("tfc.organization", cfg.TFC.Organization)
	v.Set("migration.workspaces", cfg.Migration.Workspaces)
	v.Set("migration.management_env_name", cfg.Migration.ManagementEnvName)
	v.Set("migration.output_dir", cfg.Migration.OutputDir)
	v.Set("neo4j.uri", cfg.Neo4j.URI)
	v.Set("neo4j.user", cfg.Neo4j.User)
	v.Set("neo4j.password", cfg.Neo4j.Password)
	v.Set("neo4j.docker_image", cfg.Neo4j.DockerImage)

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	// The file carries API tokens.
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set secure permissions on config file: %w", err)
	}

	return nil
}

// Exists checks if a config file exists in the current directory.
func Exists() bool {
	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType(ConfigFileType)
	v.AddConfigPath(".")

	return v.ReadInConfig() == nil
}
