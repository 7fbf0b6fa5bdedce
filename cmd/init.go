package cmd

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scalr-migrate/internal/config"
	"scalr-migrate/internal/docker"
	"scalr-migrate/internal/git"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize scalr-migrate configuration",
	Long: `Initialize scalr-migrate configuration and settings.

Creates a .scalr-migrate.yaml configuration file in the current directory,
seeded from the SCALR_* and TFC_* environment variables where set, with a
randomly generated Neo4j password. Also creates the neo4j-data directory
for Docker volume mounting.

Example:
  scalr-migrate init`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := fmt.Sprintf("%s.%s", config.ConfigFileName, config.ConfigFileType)

	// Check if config file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create default config, picking up tokens from the environment
	cfg := config.DefaultConfig()

	// Generate random password
	password, err := generateRandomPassword(16)
	if err != nil {
		return fmt.Errorf("failed to generate random password: %w", err)
	}
	cfg.Neo4j.Password = password

	// Save to file
	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	// Create neo4j-data directory
	if err := os.MkdirAll(docker.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", docker.DataDir, err)
	}

	fmt.Printf("✓ Created configuration file: %s\n\n", configPath)
	fmt.Println("Default configuration:")
	fmt.Printf("  scalr.hostname: %s\n", cfg.Scalr.Hostname)
	fmt.Printf("  tfc.hostname: %s\n", cfg.TFC.Hostname)
	fmt.Printf("  neo4j.uri: %s\n", cfg.Neo4j.URI)
	fmt.Printf("  neo4j.user: %s\n", cfg.Neo4j.User)
	fmt.Printf("  neo4j.password: %s\n\n", cfg.Neo4j.Password)
	fmt.Printf("✓ Created data directory: %s\n\n", docker.DataDir)

	// The config file carries API tokens, the data and output directories
	// carry state and variable values. None of them belong in version control.
	entries := []string{
		configPath,
		docker.DataDir + "/",
		cfg.Migration.OutputDir + "/",
	}
	if err := git.UpdateGitignore(entries); err != nil {
		// If gitignore update fails, print a warning but don't fail the command
		fmt.Fprintf(os.Stderr, "Warning: failed to update .gitignore: %v\n", err)
		fmt.Printf("Please manually add %v to your .gitignore file.\n", entries)
	}

	return nil
}

// generateRandomPassword generates a random alphanumeric password of the specified length
func generateRandomPassword(length int) (string, error) {
	// Use only alphanumeric characters to avoid issues with special characters in Neo4j auth string
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for i := range bytes {
		bytes[i] = charset[int(bytes[i])%len(charset)]
	}
	return string(bytes), nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
