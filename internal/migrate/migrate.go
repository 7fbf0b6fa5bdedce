// Package migrate drives a migration pass: it walks the source organization,
// ensures every selected workspace exists on the target, copies state and
// variables, resolves cross-workspace state sharing once everything exists,
// and mirrors each created object into the generated configuration artifact.
package migrate

import (
	"context"

	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

// MaxTerraformVersion is the newest Terraform release the target runs.
// Workspace and state tool versions above it are clamped down.
const MaxTerraformVersion = "1.5.7"

// Source is the read side of a migration: a TFC/E installation.
type Source interface {
	GetOrganization(ctx context.Context, name string) (*tfc.Organization, error)
	FindProject(ctx context.Context, org, name string) (*tfc.Project, error)
	ListWorkspaces(ctx context.Context, org string, page int, projectID string) ([]tfc.Workspace, int, error)
	ListWorkspaceVariables(ctx context.Context, org, workspaceName string) ([]tfc.Variable, error)
	ListRuns(ctx context.Context, workspaceID string, limit int) ([]tfc.Run, error)
	RunPlan(ctx context.Context, runID string) (*tfc.Plan, error)
	StateVersionFromLink(ctx context.Context, link string) (*tfc.StateVersion, error)
	DownloadState(ctx context.Context, url string) ([]byte, error)
	ListStateConsumers(ctx context.Context, link string) ([]string, error)
	ListVariableSets(ctx context.Context, org string) ([]tfc.VariableSet, error)
	ListVariableSetVariables(ctx context.Context, varsetID string) ([]tfc.Variable, error)
	LockWorkspace(ctx context.Context, workspaceID, reason string) error
}

// Target is the write side of a migration: a Scalr account.
type Target interface {
	ListAccounts(ctx context.Context) ([]scalr.Account, error)
	GetEnvironment(ctx context.Context, name string) (*scalr.Environment, error)
	CreateEnvironment(ctx context.Context, name, accountID string) (*scalr.Environment, error)
	GetWorkspace(ctx context.Context, environmentID, name string) (*scalr.Workspace, error)
	CreateWorkspace(ctx context.Context, environmentID string, attrs scalr.WorkspaceAttributes, opts scalr.CreateWorkspaceOptions) (*scalr.Workspace, error)
	CurrentStateVersion(ctx context.Context, workspaceID string) (*scalr.StateVersion, error)
	CreateStateVersion(ctx context.Context, workspaceID string, attrs scalr.StateVersionAttributes) error
	CreateVariable(ctx context.Context, attrs scalr.VariableAttributes, scope scalr.VariableScope) (*scalr.Variable, error)
	ListVariables(ctx context.Context, filter scalr.VariableFilter) ([]scalr.Variable, error)
	FindVCSProvider(ctx context.Context, name string) (*scalr.VCSProvider, error)
	FindProviderConfiguration(ctx context.Context, name string) (*scalr.ProviderConfiguration, error)
	ShareProviderConfiguration(ctx context.Context, pcID string, environmentIDs []string) error
	LinkProviderConfiguration(ctx context.Context, workspaceID, pcID string) error
	FindAgentPool(ctx context.Context, name string) (*scalr.AgentPool, error)
	ListAgents(ctx context.Context, poolID string) ([]scalr.Agent, error)
	UpdateRemoteStateConsumers(ctx context.Context, workspaceID string, consumerIDs []string) error
}

var (
	_ Source = (*tfc.Client)(nil)
	_ Target = (*scalr.Client)(nil)
)

// Options configures one migration pass.
type Options struct {
	// Connection facts, reused for backend secrets, the generated remote
	// backend stanza and the local credentials bootstrap.
	ScalrHostname string
	ScalrToken    string
	TFCHostname   string
	TFCToken      string

	Organization string
	Project      string

	// Environment is the destination environment name.
	Environment string

	ManagementEnv       string
	ManagementWorkspace string

	VCSName       string
	PCName        string
	AgentPoolName string

	// WorkspacePatterns selects the source workspaces to migrate.
	WorkspacePatterns []string

	// SkipVariablePatterns excludes variable keys from migration; a single
	// "*" disables variable migration entirely.
	SkipVariablePatterns []string

	SkipWorkspaceCreation     bool
	SkipBackendSecrets        bool
	DisableDeletionProtection bool

	// Lock locks each source workspace after its migration completes.
	Lock bool

	// CredentialsPath is the terraform CLI credentials file to seed with the
	// target token. Empty disables the bootstrap.
	CredentialsPath string
}
