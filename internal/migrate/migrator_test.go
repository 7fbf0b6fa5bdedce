package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalr-migrate/internal/hcl"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

func baseOptions() Options {
	return Options{
		ScalrHostname:       "acme.scalr.io",
		ScalrToken:          "scalr-token",
		TFCHostname:         "app.terraform.io",
		TFCToken:            "tfc-token",
		Organization:        "acme",
		Environment:         "acme",
		ManagementEnv:       "scalr-admin",
		ManagementWorkspace: "acme",
	}
}

func plainWorkspace(id, name string) tfc.Workspace {
	return tfc.Workspace{
		ID: id,
		WorkspaceAttributes: tfc.WorkspaceAttributes{
			Name:             name,
			Operations:       true,
			TerraformVersion: "1.4.0",
		},
	}
}

func TestRunMigratesWorkspacesEndToEnd(t *testing.T) {
	source := newFakeSource()
	source.workspaces = []tfc.Workspace{
		plainWorkspace("ws-src-1", "network"),
		plainWorkspace("ws-src-2", "app"),
	}
	target := newFakeTarget()

	dir := t.TempDir()
	artifacts, err := hcl.NewManager(dir)
	require.NoError(t, err)
	opts := baseOptions()
	opts.Lock = true
	m, err := New(source, target, artifacts, opts)
	require.NoError(t, err)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"network", "app"}, summary.Migrated)
	assert.Empty(t, summary.Skipped)

	// Both environments exist, and the management workspace runs the newest
	// supported tool version.
	assert.ElementsMatch(t, []string{"scalr-admin", "acme"}, target.createdEnvironments)
	var management *scalr.WorkspaceAttributes
	for i := range target.createdWorkspaces {
		if target.createdWorkspaces[i].Name == "acme" {
			management = &target.createdWorkspaces[i]
		}
	}
	require.NotNil(t, management)
	assert.Equal(t, MaxTerraformVersion, management.TerraformVersion)

	// Backend secrets are account-scoped, sensitive shell variables.
	secretKeys := map[string]bool{}
	for _, cv := range target.createdVariables {
		if cv.scope.AccountID != "" {
			secretKeys[cv.attrs.Key] = true
			assert.True(t, cv.attrs.Sensitive)
			assert.Equal(t, "shell", cv.attrs.Category)
		}
	}
	for _, key := range []string{"SCALR_HOSTNAME", "SCALR_TOKEN", "TFE_HOSTNAME", "TFE_TOKEN"} {
		assert.True(t, secretKeys[key], "missing backend secret %s", key)
	}

	// Source workspaces end up locked with a pointer to the new home.
	assert.Contains(t, source.lockedReasons["ws-src-1"], `environment "acme"`)
	assert.Contains(t, source.lockedReasons["ws-src-2"], `environment "acme"`)

	// The artifact declares the created objects and their import bindings.
	mainTF, err := os.ReadFile(filepath.Join(dir, "main.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(mainTF), `resource "scalr_environment" "acme"`)
	assert.Contains(t, string(mainTF), `resource "scalr_workspace" "network"`)
	assert.Contains(t, string(mainTF), `resource "scalr_workspace" "app"`)

	backendTF, err := os.ReadFile(filepath.Join(dir, "backend.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(backendTF), `organization = "scalr-admin"`)
	assert.Contains(t, string(backendTF), `name = "acme"`)
}

func TestRunSkipsWorkspacesOutsideSelection(t *testing.T) {
	source := newFakeSource()
	source.workspaces = []tfc.Workspace{
		plainWorkspace("ws-src-1", "prod-network"),
		plainWorkspace("ws-src-2", "dev-sandbox"),
	}
	target := newFakeTarget()

	opts := baseOptions()
	opts.WorkspacePatterns = []string{"prod-*"}
	m := newTestMigrator(t, source, target, opts)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"prod-network"}, summary.Migrated)
	assert.Equal(t, []string{"dev-sandbox"}, summary.Skipped)
}

func TestRunResolvesStateConsumersAfterTheWalk(t *testing.T) {
	producer := plainWorkspace("ws-src-1", "network")
	producer.StateConsumersLink = "/consumers/ws-src-1"

	source := newFakeSource()
	source.workspaces = []tfc.Workspace{
		producer,
		plainWorkspace("ws-src-2", "app"),
		plainWorkspace("ws-src-3", "excluded"),
	}
	// One consumer is migrated, the other is outside the selection and must
	// be dropped without failing the run.
	source.consumers["/consumers/ws-src-1"] = []string{"ws-src-2", "ws-src-3"}
	target := newFakeTarget()

	opts := baseOptions()
	opts.WorkspacePatterns = []string{"network", "app"}
	m := newTestMigrator(t, source, target, opts)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"network", "app"}, summary.Migrated)

	envID := target.environments["acme"].ID
	producerID := target.workspaces[target.wsKey(envID, "network")].ID
	appID := target.workspaces[target.wsKey(envID, "app")].ID
	assert.Equal(t, []string{appID}, target.stateConsumers[producerID])
}

func TestRunIgnoresConsumersOfUnmigratedProducers(t *testing.T) {
	producer := plainWorkspace("ws-src-1", "excluded-producer")
	producer.StateConsumersLink = "/consumers/ws-src-1"

	source := newFakeSource()
	source.workspaces = []tfc.Workspace{producer, plainWorkspace("ws-src-2", "app")}
	source.consumers["/consumers/ws-src-1"] = []string{"ws-src-2"}
	target := newFakeTarget()

	opts := baseOptions()
	opts.WorkspacePatterns = []string{"app"}
	m := newTestMigrator(t, source, target, opts)

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, target.stateConsumers)
}

func TestRunFailsWhenCreationDisabledAndWorkspaceMissing(t *testing.T) {
	source := newFakeSource()
	source.workspaces = []tfc.Workspace{plainWorkspace("ws-src-1", "network")}
	target := newFakeTarget()

	opts := baseOptions()
	opts.SkipWorkspaceCreation = true
	m := newTestMigrator(t, source, target, opts)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	// The failure stays inside the workspace: it is skipped, not fatal.
	assert.Empty(t, summary.Migrated)
	assert.Equal(t, []string{"network"}, summary.Skipped)
}

func TestRunReusesExistingWorkspaces(t *testing.T) {
	source := newFakeSource()
	source.workspaces = []tfc.Workspace{plainWorkspace("ws-src-1", "network")}
	target := newFakeTarget()

	m := newTestMigrator(t, source, target, baseOptions())
	_, err := m.Run(context.Background())
	require.NoError(t, err)
	created := len(target.createdWorkspaces)

	// A second pass over the same target must not create anything new.
	m2 := newTestMigrator(t, source, target, baseOptions())
	summary, err := m2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"network"}, summary.Migrated)
	assert.Len(t, target.createdWorkspaces, created)
	assert.Equal(t, []string{"scalr-admin", "acme"}, target.createdEnvironments)
}

func TestRunRecreatesWorkspaceAlreadyDeclaredInArtifact(t *testing.T) {
	// The artifact survives from an earlier run but the target workspace is
	// gone. The loaded block is the canonical record, and it must pick up
	// the id of the recreated workspace so state lands in the right place.
	dir := t.TempDir()
	artifact := `resource "scalr_workspace" "network" {
  name = "network"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.tf"), []byte(artifact), 0o644))

	raw := []byte(`{"serial": 7, "lineage": "abc", "terraform_version": "1.4.0"}`)
	source, ws := sourceWithState(raw)
	ws.Operations = true
	ws.TerraformVersion = "1.4.0"
	source.workspaces = []tfc.Workspace{ws}
	target := newFakeTarget()

	artifacts, err := hcl.NewManager(dir)
	require.NoError(t, err)
	m, err := New(source, target, artifacts, baseOptions())
	require.NoError(t, err)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"network"}, summary.Migrated)

	envID := target.environments["acme"].ID
	recreated := target.workspaces[target.wsKey(envID, "network")]
	require.NotNil(t, recreated)
	require.NotEmpty(t, recreated.ID)

	require.Len(t, target.createdStates, 1)
	assert.Equal(t, recreated.ID, target.createdStates[0].workspaceID)
}

func TestRunRequiresVCSProviderForVCSWorkspaces(t *testing.T) {
	ws := plainWorkspace("ws-src-1", "network")
	ws.VCSRepo = &tfc.VCSRepo{DisplayIdentifier: "acme/network"}

	source := newFakeSource()
	source.workspaces = []tfc.Workspace{ws}
	target := newFakeTarget()

	m := newTestMigrator(t, source, target, baseOptions())
	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, summary.Migrated)
	assert.Equal(t, []string{"network"}, summary.Skipped)
}

func TestRunCreatesVCSWorkspaceWithClampedVersionAndRepo(t *testing.T) {
	ws := plainWorkspace("ws-src-1", "network")
	ws.TerraformVersion = "1.9.0"
	ws.SpeculativeEnabled = true
	ws.TriggerPatterns = []string{"modules/**", "bad\npattern"}
	ws.VCSRepo = &tfc.VCSRepo{
		Identifier:        "acme/network",
		DisplayIdentifier: "acme/network",
		Branch:            "main",
	}

	source := newFakeSource()
	source.workspaces = []tfc.Workspace{ws}
	target := newFakeTarget()
	target.vcsProviders["github"] = &scalr.VCSProvider{ID: "vcs-1", Name: "github"}

	opts := baseOptions()
	opts.VCSName = "github"
	m := newTestMigrator(t, source, target, opts)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"network"}, summary.Migrated)

	var attrs *scalr.WorkspaceAttributes
	for i := range target.createdWorkspaces {
		if target.createdWorkspaces[i].Name == "network" {
			attrs = &target.createdWorkspaces[i]
		}
	}
	require.NotNil(t, attrs)
	assert.Equal(t, MaxTerraformVersion, attrs.TerraformVersion)
	require.NotNil(t, attrs.VCSRepo)
	assert.Equal(t, "acme/network", attrs.VCSRepo.Identifier)
	assert.Equal(t, "main", attrs.VCSRepo.Branch)
	assert.True(t, attrs.VCSRepo.DryRunsEnabled)
	assert.Equal(t, "modules/**", attrs.VCSRepo.TriggerPatterns)
}

func TestRunSharesProviderConfigurationWithEnvironment(t *testing.T) {
	source := newFakeSource()
	source.workspaces = []tfc.Workspace{plainWorkspace("ws-src-1", "network")}
	target := newFakeTarget()
	target.providerConfig["aws"] = &scalr.ProviderConfiguration{
		ID:             "pc-1",
		Name:           "aws",
		EnvironmentIDs: []string{"env-other"},
	}

	opts := baseOptions()
	opts.PCName = "aws"
	m := newTestMigrator(t, source, target, opts)

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	envID := target.environments["acme"].ID
	assert.Equal(t, []string{"env-other", envID}, target.sharedWith["pc-1"])

	wsID := target.workspaces[target.wsKey(envID, "network")].ID
	assert.Equal(t, "pc-1", target.linkedPCs[wsID])
}

func TestRunSkipsVariableMigrationOnWildcard(t *testing.T) {
	source := newFakeSource()
	source.workspaces = []tfc.Workspace{plainWorkspace("ws-src-1", "network")}
	source.variables["network"] = []tfc.Variable{{Key: "region", Value: "eu-west-1", Category: "terraform"}}
	target := newFakeTarget()

	opts := baseOptions()
	opts.SkipVariablePatterns = []string{"*"}
	m := newTestMigrator(t, source, target, opts)

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	for _, cv := range target.createdVariables {
		assert.Empty(t, cv.scope.WorkspaceID, "no workspace variables should be created")
	}
}

func TestRunAbortsWhenTokenSeesMultipleAccounts(t *testing.T) {
	target := newFakeTarget()
	target.accounts = append(target.accounts, scalr.Account{ID: "acc-2", Name: "other"})

	m := newTestMigrator(t, newFakeSource(), target, baseOptions())
	_, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly one")
}

func TestNewRejectsMalformedPatterns(t *testing.T) {
	artifacts, err := hcl.NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = New(newFakeSource(), newFakeTarget(), artifacts, Options{WorkspacePatterns: []string{"[unclosed"}})
	assert.Error(t, err)

	_, err = New(newFakeSource(), newFakeTarget(), artifacts, Options{SkipVariablePatterns: []string{"[unclosed"}})
	assert.Error(t, err)
}
