package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scalr-migrate/internal/config"
	"scalr-migrate/internal/hcl"
	"scalr-migrate/internal/neo4j"
	"scalr-migrate/internal/topology"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render the migrated topology from the generated configuration",
	Long: `Build the environment and workspace topology from the generated Terraform
configuration of a previous migration and emit it as JSON, Cypher or DOT,
or push it to a Neo4j database.

The topology contains one node per environment and workspace, BELONGS_TO
edges from workspaces to their environment, and CONSUMES_STATE edges
between workspaces that share state.

Examples:
  # Print the topology as JSON
  scalr-migrate graph --scalr-environment=production

  # Render a Graphviz diagram
  scalr-migrate graph --scalr-environment=production --format=dot | dot -Tsvg > topology.svg

  # Push the topology to Neo4j
  scalr-migrate graph --scalr-environment=production --push`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAndMerge(cmd, args)
	if err != nil {
		return err
	}
	if cfg.EnvironmentName() == "" {
		return fmt.Errorf("cannot locate the generated configuration: set --scalr-environment or --tfc-organization")
	}

	artifacts, err := hcl.NewManager(cfg.ArtifactDir())
	if err != nil {
		return err
	}
	records := artifacts.Records()
	if len(records) == 0 {
		return fmt.Errorf("no generated configuration found in %s, run 'scalr-migrate migrate' first", artifacts.Dir())
	}

	g := topology.FromRecords(records)

	push, _ := cmd.Flags().GetBool("push")
	if push {
		return pushTopology(cmd, cfg, g)
	}

	format, _ := cmd.Flags().GetString("format")
	var out string
	switch format {
	case "json":
		out, err = topology.ToJSON(g)
	case "cypher":
		query, params := topology.ToCypherTransaction(g)
		out = fmt.Sprintf("// params: %v\n%s", params, query)
	case "dot":
		out, err = topology.ToDOT(g)
	default:
		return fmt.Errorf("unknown format %q, expected json, cypher or dot", format)
	}
	if err != nil {
		return err
	}

	fmt.Println(out)
	return nil
}

func pushTopology(cmd *cobra.Command, cfg *config.Config, g *topology.Graph) error {
	if cfg.Neo4j.Password == "" {
		return fmt.Errorf("neo4j password is not set, run 'scalr-migrate init' or pass --neo4j-pass")
	}

	ctx := cmd.Context()
	db, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
	if err != nil {
		return fmt.Errorf("failed to create neo4j client: %w", err)
	}
	defer db.Close(ctx)

	if err := db.UpdateTopology(ctx, g); err != nil {
		return err
	}

	fmt.Printf("✓ Pushed %d nodes and %d relationships to %s\n", len(g.Nodes), len(g.Edges), cfg.Neo4j.URI)
	return nil
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().String("scalr-environment", "", "Environment whose generated configuration to read")
	graphCmd.Flags().String("tfc-organization", "", "Organization the configuration was generated from")
	graphCmd.Flags().String("tfc-project", "", "Project the configuration was generated from")
	graphCmd.Flags().String("output-dir", config.DefaultOutputDir, "Directory holding the generated configuration")

	// Output format flags
	graphCmd.Flags().String("format", "json", "Output format for the topology (json, cypher, dot)")

	// Neo4j integration flags
	graphCmd.Flags().Bool("push", false, "Push the topology to a Neo4j database")
	graphCmd.Flags().String("neo4j-uri", "bolt://localhost:7687", "URI for the Neo4j database")
	graphCmd.Flags().String("neo4j-user", "neo4j", "Username for the Neo4j database")
	graphCmd.Flags().String("neo4j-pass", "", "Password for the Neo4j database")
}
