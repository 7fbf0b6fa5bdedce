// Package docker manages the lifecycle of the local Neo4j container used to
// explore the migrated topology.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"scalr-migrate/internal/config"
)

// ContainerName is the fixed name of the Neo4j container so the stop command
// can find it again.
const ContainerName = "scalr-migrate-neo4j"

// DataDir is the host directory mounted as the Neo4j data volume.
const DataDir = "neo4j-data"

// StartContainerOptions holds the parameters for starting the Neo4j container.
type StartContainerOptions struct {
	Config *config.Config
}

// StartContainer pulls the Neo4j image if needed and starts a container in
// the background with the credentials from the configuration file. Plain
// HTTP on 7474 and bolt on 7687 are published on localhost.
func StartContainer(ctx context.Context, opts StartContainerOptions) error {
	cfg := opts.Config

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create Docker client: %w", err)
	}
	defer cli.Close()

	running, err := findContainer(ctx, cli)
	if err != nil {
		return err
	}
	if running != "" {
		return fmt.Errorf("container %s already exists, run 'scalr-migrate stop' first", ContainerName)
	}

	fmt.Printf("Pulling image %s...\n", cfg.Neo4j.DockerImage)
	reader, err := cli.ImagePull(ctx, cfg.Neo4j.DockerImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", cfg.Neo4j.DockerImage, err)
	}
	// The pull is asynchronous, drain the progress stream to completion.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		reader.Close()
		return fmt.Errorf("failed to pull image %s: %w", cfg.Neo4j.DockerImage, err)
	}
	reader.Close()

	dataDir, err := filepath.Abs(DataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	containerConfig := &container.Config{
		Image: cfg.Neo4j.DockerImage,
		Env: []string{
			fmt.Sprintf("NEO4J_AUTH=%s/%s", cfg.Neo4j.User, cfg.Neo4j.Password),
		},
		ExposedPorts: nat.PortSet{
			"7474/tcp": struct{}{},
			"7687/tcp": struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"7474/tcp": []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "7474"}},
			"7687/tcp": []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "7687"}},
		},
		Binds: []string{
			fmt.Sprintf("%s:/data", dataDir),
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	fmt.Printf("Creating container %s...\n", ContainerName)
	created, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, ContainerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	fmt.Printf("✓ Container %s started\n", ContainerName)
	fmt.Printf("\nNeo4j browser: http://localhost:7474\n")
	fmt.Printf("Bolt endpoint: %s\n", cfg.Neo4j.URI)
	fmt.Printf("User: %s\n", cfg.Neo4j.User)

	return nil
}

// findContainer returns the ID of the Neo4j container, or "" when absent.
func findContainer(ctx context.Context, cli *client.Client) (string, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range containers {
		for _, name := range c.Names {
			if name == "/"+ContainerName {
				return c.ID, nil
			}
		}
	}
	return "", nil
}
