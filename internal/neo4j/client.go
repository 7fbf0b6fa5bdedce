package neo4j

import (
	"context"
	"fmt"

	"scalr-migrate/internal/topology"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client handles the connection and communication with a Neo4j database.
type Client struct {
	Driver neo4j.DriverWithContext
}

// NewClient creates a new Neo4j client and establishes a connection.
func NewClient(uri, user, pass string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create neo4j driver: %w", err)
	}

	return &Client{Driver: driver}, nil
}

// Close gracefully shuts down the driver.
func (c *Client) Close(ctx context.Context) error {
	return c.Driver.Close(ctx)
}

// VerifyConnectivity checks if a connection can be established with the database.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.Driver.VerifyConnectivity(ctx)
}

// UpdateTopology synchronizes the Neo4j database with the current topology.
// It removes obsolete nodes and relationships, then upserts the current ones.
func (c *Client) UpdateTopology(ctx context.Context, g *topology.Graph) error {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		// Get current state from Neo4j
		existingIDs, err := c.fetchExistingNodeIDs(ctx, tx)
		if err != nil {
			return nil, err
		}

		// Remove obsolete nodes
		if err := c.deleteObsoleteNodes(ctx, tx, existingIDs, g); err != nil {
			return nil, err
		}

		// Upsert current topology state
		return c.upsertGraph(ctx, tx, g)
	})

	if err != nil {
		return fmt.Errorf("failed to update topology: %w", err)
	}

	return nil
}

// fetchExistingNodeIDs retrieves all node IDs currently in Neo4j.
func (c *Client) fetchExistingNodeIDs(ctx context.Context, tx neo4j.ManagedTransaction) (map[string]bool, error) {
	query := "MATCH (n:Resource) RETURN n.id as id"
	result, err := tx.Run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing nodes: %w", err)
	}

	existingIDs := make(map[string]bool)
	for result.Next(ctx) {
		record := result.Record()
		if id, ok := record.Get("id"); ok {
			if idStr, ok := id.(string); ok {
				existingIDs[idStr] = true
			}
		}
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate existing nodes: %w", err)
	}

	return existingIDs, nil
}

// deleteObsoleteNodes removes nodes that exist in Neo4j but not in the new topology.
func (c *Client) deleteObsoleteNodes(ctx context.Context, tx neo4j.ManagedTransaction, existingIDs map[string]bool, g *topology.Graph) error {
	// Build set of new node IDs
	newIDs := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		newIDs[node.ID] = true
	}

	// Find nodes to delete
	var idsToDelete []string
	for existingID := range existingIDs {
		if !newIDs[existingID] {
			idsToDelete = append(idsToDelete, existingID)
		}
	}

	// Delete obsolete nodes and their relationships
	if len(idsToDelete) > 0 {
		query := "UNWIND $obsoleteIds AS obsoleteId MATCH (n:Resource {id: obsoleteId}) DETACH DELETE n"
		params := map[string]interface{}{"obsoleteIds": idsToDelete}

		if _, err := tx.Run(ctx, query, params); err != nil {
			return fmt.Errorf("failed to delete obsolete nodes: %w", err)
		}
	}

	return nil
}

// upsertGraph inserts or updates the current topology state in Neo4j.
func (c *Client) upsertGraph(ctx context.Context, tx neo4j.ManagedTransaction, g *topology.Graph) (interface{}, error) {
	query, params := topology.ToCypherTransaction(g)
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert graph: %w", err)
	}
	return result.Consume(ctx)
}
