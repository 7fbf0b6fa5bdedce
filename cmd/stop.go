package cmd

import (
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"scalr-migrate/internal/docker"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop and remove the Neo4j Docker container",
	Long: `Stop and remove the Neo4j Docker container started with 'scalr-migrate start'.

This command will:
  - Stop the running Neo4j container
  - Remove the container
  - Preserve the data in the neo4j-data directory

Example:
  scalr-migrate stop`,
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	// Create Docker client
	ctx := cmd.Context()
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create Docker client: %w", err)
	}
	defer cli.Close()

	// Check if container exists
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	containerFound := false
	var containerID string

	for _, c := range containers {
		for _, name := range c.Names {
			if name == "/"+docker.ContainerName {
				containerFound = true
				containerID = c.ID
				break
			}
		}
		if containerFound {
			break
		}
	}

	if !containerFound {
		return fmt.Errorf("container %s not found", docker.ContainerName)
	}

	// Stop container
	fmt.Printf("Stopping container %s...\n", docker.ContainerName)
	timeout := 10 // seconds
	if err := cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		// Container might already be stopped, try to remove anyway
		fmt.Printf("Warning: failed to stop container: %v\n", err)
	} else {
		fmt.Printf("✓ Container stopped\n")
	}

	// Remove container
	fmt.Printf("Removing container %s...\n", docker.ContainerName)
	if err := cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	fmt.Printf("✓ Container %s removed successfully\n", docker.ContainerName)
	fmt.Printf("\nNote: Data has been preserved in the %s directory\n", docker.DataDir)

	return nil
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
