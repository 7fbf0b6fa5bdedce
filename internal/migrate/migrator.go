package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/gobwas/glob"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/credentials"
	"scalr-migrate/internal/hcl"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

// Migrator drives one migration pass. Construct it with New and call Run
// once; it is not safe for concurrent use, and neither is the artifact
// directory it writes.
type Migrator struct {
	source    Source
	target    Target
	artifacts *hcl.Manager
	opts      Options

	ids       *identityMap
	accountID string

	// Named external dependencies, resolved once and cached with their
	// data-source records.
	vcsID           string
	vcsRecord       *hcl.Record
	pcConfig        *scalr.ProviderConfiguration
	pcRecord        *hcl.Record
	agentPool       *scalr.AgentPool
	agentPoolRecord *hcl.Record

	envRecord *hcl.Record

	selection []glob.Glob
	skipVars  []glob.Glob
	skipAll   bool

	// pendingConsumers queues the producers whose state-sharing lists can
	// only be replayed after the full walk.
	pendingConsumers []pendingConsumer

	// unrecoveredVariables collects sensitive keys that need manual entry,
	// per workspace.
	unrecoveredVariables map[string][]string
}

type pendingConsumer struct {
	sourceID      string
	consumersLink string
	workspaceName string
}

// Summary reports what one pass did.
type Summary struct {
	Migrated []string
	Skipped  []string

	// UnrecoveredVariables maps workspace names to sensitive variable keys
	// whose values could not be read from any plan and must be entered
	// manually on the target.
	UnrecoveredVariables map[string][]string
}

// New builds a Migrator. The selection and skip patterns are compiled
// eagerly so a malformed pattern fails the run before anything is created.
func New(source Source, target Target, artifacts *hcl.Manager, opts Options) (*Migrator, error) {
	m := &Migrator{
		source:               source,
		target:               target,
		artifacts:            artifacts,
		opts:                 opts,
		ids:                  newIdentityMap(),
		unrecoveredVariables: map[string][]string{},
	}

	patterns := opts.WorkspacePatterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.TrimSpace(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid workspace pattern %q: %w", pattern, err)
		}
		m.selection = append(m.selection, g)
	}

	for _, pattern := range opts.SkipVariablePatterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "*" {
			m.skipAll = true
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid variable skip pattern %q: %w", pattern, err)
		}
		m.skipVars = append(m.skipVars, g)
	}

	return m, nil
}

// Run executes the pass: bootstrap, the paginated workspace walk, deferred
// consumer resolution, and the artifact flush. Bootstrap failures abort the
// run; a failure inside one workspace skips only that workspace.
func (m *Migrator) Run(ctx context.Context) (*Summary, error) {
	logger.Infof("preparing migration")

	if err := m.loadAccount(ctx); err != nil {
		return nil, err
	}
	if err := m.initBackendSecrets(ctx); err != nil {
		return nil, err
	}

	if _, err := m.source.GetOrganization(ctx, m.opts.Organization); err != nil {
		return nil, fmt.Errorf("looking up organization %q: %w", m.opts.Organization, err)
	}
	projectID, err := m.resolveProject(ctx)
	if err != nil {
		return nil, err
	}
	logger.Infof("migrating organization %q into environment %q", m.opts.Organization, m.opts.Environment)

	if err := m.ensureManagementWorkspace(ctx); err != nil {
		return nil, err
	}

	env, err := m.ensureEnvironment(ctx, m.opts.Environment, true)
	if err != nil {
		return nil, err
	}
	if err := m.shareProviderConfiguration(ctx, env.ID); err != nil {
		return nil, err
	}
	if err := m.writeBackendConfig(); err != nil {
		return nil, err
	}

	summary := &Summary{UnrecoveredVariables: m.unrecoveredVariables}
	page := 1
	for page != 0 {
		workspaces, next, err := m.source.ListWorkspaces(ctx, m.opts.Organization, page, projectID)
		if err != nil {
			return nil, fmt.Errorf("listing workspaces: %w", err)
		}

		for _, ws := range workspaces {
			if !ws.GlobalRemoteState && ws.StateConsumersLink != "" {
				m.pendingConsumers = append(m.pendingConsumers, pendingConsumer{
					sourceID:      ws.ID,
					consumersLink: ws.StateConsumersLink,
					workspaceName: ws.Name,
				})
			}
			if !m.selected(ws.Name) {
				summary.Skipped = append(summary.Skipped, ws.Name)
				continue
			}
			if err := m.migrateWorkspace(ctx, ws, env.ID); err != nil {
				logger.Errorf("migrating workspace %q: %v", ws.Name, err)
				summary.Skipped = append(summary.Skipped, ws.Name)
				continue
			}
			summary.Migrated = append(summary.Migrated, ws.Name)
			logger.Infof("successfully migrated workspace %q", ws.Name)
		}
		page = next
	}

	m.resolveStateConsumers(ctx)

	logger.Infof("migrated %d workspace(s)", len(summary.Migrated))
	if len(summary.Skipped) > 0 {
		logger.Warnf("skipped %d workspace(s): %s", len(summary.Skipped), strings.Join(summary.Skipped, ", "))
	}
	for name, keys := range m.unrecoveredVariables {
		logger.Warnf("workspace %q: sensitive variables need manual entry: %s", name, strings.Join(keys, ", "))
	}

	if err := m.artifacts.Write(); err != nil {
		return nil, fmt.Errorf("writing artifacts: %w", err)
	}
	logger.Infof("generated configuration in %s", m.artifacts.Dir())

	if m.opts.CredentialsPath != "" {
		if err := credentials.Ensure(m.opts.CredentialsPath, m.opts.ScalrHostname, m.opts.ScalrToken); err != nil {
			logger.Warnf("could not update terraform credentials: %v", err)
		}
	}

	return summary, nil
}

// migrateWorkspace runs the per-workspace sequence: ensure, state,
// variables, lock.
func (m *Migrator) migrateWorkspace(ctx context.Context, src tfc.Workspace, envID string) error {
	logger.Infof("migrating workspace %q into %q", src.Name, m.opts.Environment)

	rec, err := m.ensureWorkspace(ctx, src, envID)
	if err != nil {
		return err
	}

	logger.Infof("migrating state of %q", src.Name)
	if err := m.migrateState(ctx, src, rec.ExternalID); err != nil {
		return err
	}

	if m.skipAll {
		logger.Infof("skipping variable migration of %q as requested", src.Name)
	} else {
		logger.Infof("migrating variables of %q", src.Name)
		if err := m.migrateVariables(ctx, src, rec); err != nil {
			return err
		}
	}

	return m.lockSource(ctx, src)
}

// lockSource locks the migrated source workspace, pointing operators at its
// new home. Already-locked workspaces are left alone.
func (m *Migrator) lockSource(ctx context.Context, src tfc.Workspace) error {
	if !m.opts.Lock {
		return nil
	}
	if src.Locked {
		logger.Infof("workspace %q is already locked", src.Name)
		return nil
	}
	reason := fmt.Sprintf("Workspace is migrated to the Scalr environment %q with name %q.", m.opts.Environment, src.Name)
	if err := m.source.LockWorkspace(ctx, src.ID, reason); err != nil {
		return fmt.Errorf("locking workspace %q: %w", src.Name, err)
	}
	logger.Infof("locked workspace %q", src.Name)
	return nil
}

func (m *Migrator) selected(workspaceName string) bool {
	for _, g := range m.selection {
		if g.Match(workspaceName) {
			return true
		}
	}
	return false
}

// loadAccount discovers the account behind the target token. Exactly one
// account must be visible; anything else means the wrong token was passed.
func (m *Migrator) loadAccount(ctx context.Context) error {
	accounts, err := m.target.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}
	switch len(accounts) {
	case 0:
		return fmt.Errorf("no account is associated with the given token")
	case 1:
		m.accountID = accounts[0].ID
		return nil
	default:
		return fmt.Errorf("the token is associated with %d accounts, expected exactly one", len(accounts))
	}
}

// initBackendSecrets seeds the account-scoped shell variables the management
// workspace needs to run the generated configuration. Existing keys are
// never overwritten.
func (m *Migrator) initBackendSecrets(ctx context.Context) error {
	if m.opts.SkipBackendSecrets {
		return nil
	}

	secrets := map[string]string{
		"SCALR_HOSTNAME": m.opts.ScalrHostname,
		"SCALR_TOKEN":    m.opts.ScalrToken,
		"TFE_HOSTNAME":   m.opts.TFCHostname,
		"TFE_TOKEN":      m.opts.TFCToken,
	}

	for _, key := range []string{"SCALR_HOSTNAME", "SCALR_TOKEN", "TFE_HOSTNAME", "TFE_TOKEN"} {
		existing, err := m.target.ListVariables(ctx, scalr.VariableFilter{
			AccountID:       m.accountID,
			Key:             key,
			EnvironmentNull: true,
		})
		if err != nil {
			return fmt.Errorf("checking backend secret %s: %w", key, err)
		}
		if len(existing) > 0 {
			continue
		}

		_, err = m.target.CreateVariable(ctx, scalr.VariableAttributes{
			Key:         key,
			Value:       secrets[key],
			Category:    "shell",
			Sensitive:   true,
			Description: "Created by scalr-migrate",
		}, scalr.VariableScope{AccountID: m.accountID})
		if err != nil {
			if client.IsDuplicate(err) {
				logger.Infof("backend secret %s already exists", key)
				continue
			}
			return fmt.Errorf("creating backend secret %s: %w", key, err)
		}
	}

	logger.Infof("initialized backend secrets")
	return nil
}

func (m *Migrator) resolveProject(ctx context.Context) (string, error) {
	if m.opts.Project == "" {
		return "", nil
	}
	project, err := m.source.FindProject(ctx, m.opts.Organization, m.opts.Project)
	if err != nil {
		if client.IsNotFound(err) {
			logger.Warnf("project %q not found in organization %q, migrating all workspaces", m.opts.Project, m.opts.Organization)
			return "", nil
		}
		return "", fmt.Errorf("looking up project %q: %w", m.opts.Project, err)
	}
	logger.Infof("filtering workspaces by project %q (%s)", m.opts.Project, project.ID)
	return project.ID, nil
}

// ensureEnvironment finds or creates an environment. Tracked environments
// land in the artifact: pre-existing ones as data sources, created ones as
// resources.
func (m *Migrator) ensureEnvironment(ctx context.Context, name string, tracked bool) (*scalr.Environment, error) {
	env, err := m.target.GetEnvironment(ctx, name)
	if err != nil && !client.IsNotFound(err) {
		return nil, fmt.Errorf("probing for environment %q: %w", name, err)
	}

	if env != nil {
		if tracked {
			rec := m.artifacts.Lookup("scalr_environment", name)
			if rec == nil {
				rec = m.artifacts.Add(hcl.NewData("scalr_environment", name).Set("name", hcl.String(name)))
			}
			rec.ExternalID = env.ID
			m.envRecord = rec
		}
		return env, nil
	}

	created, err := m.target.CreateEnvironment(ctx, name, m.accountID)
	if err != nil {
		return nil, fmt.Errorf("creating environment %q: %w", name, err)
	}
	logger.Infof("created environment %q", name)

	if tracked {
		m.envRecord = m.artifacts.Add(hcl.NewResource("scalr_environment", name).Set("name", hcl.String(name)))
		m.envRecord.ExternalID = created.ID
	}
	return created, nil
}

// ensureManagementWorkspace prepares the management environment and the
// workspace that will adopt the generated configuration. Neither is tracked
// in the artifact: the artifact manages the migrated objects, not itself.
func (m *Migrator) ensureManagementWorkspace(ctx context.Context) error {
	logger.Infof("ensuring management environment %q", m.opts.ManagementEnv)
	env, err := m.ensureEnvironment(ctx, m.opts.ManagementEnv, false)
	if err != nil {
		return err
	}

	name := m.opts.ManagementWorkspace
	existing, err := m.target.GetWorkspace(ctx, env.ID, name)
	if err != nil && !client.IsNotFound(err) {
		return fmt.Errorf("probing for management workspace %q: %w", name, err)
	}
	if existing != nil {
		return nil
	}

	logger.Infof("creating management workspace %q", name)
	_, err = m.target.CreateWorkspace(ctx, env.ID, scalr.WorkspaceAttributes{
		Name:                      name,
		AutoApply:                 false,
		Operations:                true,
		TerraformVersion:          MaxTerraformVersion,
		DeletionProtectionEnabled: !m.opts.DisableDeletionProtection,
	}, scalr.CreateWorkspaceOptions{})
	if err != nil {
		return fmt.Errorf("creating management workspace %q: %w", name, err)
	}
	return nil
}

// vcsProviderID resolves the configured VCS provider once. A missing
// provider is fatal for the run: no VCS-bound workspace can be created
// without it.
func (m *Migrator) vcsProviderID(ctx context.Context) (string, error) {
	if m.opts.VCSName == "" {
		return "", &client.MissingPreconditionError{What: "a VCS provider name is required to migrate VCS-bound workspaces"}
	}
	if m.vcsID != "" {
		return m.vcsID, nil
	}
	provider, err := m.target.FindVCSProvider(ctx, m.opts.VCSName)
	if err != nil {
		if client.IsNotFound(err) {
			return "", &client.MissingPreconditionError{What: fmt.Sprintf("VCS provider %q not found", m.opts.VCSName)}
		}
		return "", fmt.Errorf("looking up VCS provider %q: %w", m.opts.VCSName, err)
	}
	m.vcsID = provider.ID
	m.vcsRecord = m.artifacts.Add(hcl.NewData("scalr_vcs_provider", m.opts.VCSName).
		Set("name", hcl.String(m.opts.VCSName)))
	return m.vcsID, nil
}

// providerConfigurationID resolves the optional provider configuration once.
func (m *Migrator) providerConfigurationID(ctx context.Context) (string, error) {
	if m.opts.PCName == "" {
		return "", nil
	}
	if m.pcConfig != nil {
		return m.pcConfig.ID, nil
	}
	pc, err := m.target.FindProviderConfiguration(ctx, m.opts.PCName)
	if err != nil {
		if client.IsNotFound(err) {
			return "", &client.MissingPreconditionError{What: fmt.Sprintf("provider configuration %q not found", m.opts.PCName)}
		}
		return "", fmt.Errorf("looking up provider configuration %q: %w", m.opts.PCName, err)
	}
	m.pcConfig = pc
	m.pcRecord = m.artifacts.Add(hcl.NewData("scalr_provider_configuration", m.opts.PCName).
		Set("name", hcl.String(m.opts.PCName)))
	return pc.ID, nil
}

// agentPoolID resolves the configured agent pool once, requiring at least
// one active agent: a poolless workspace would hang on its first run.
func (m *Migrator) agentPoolID(ctx context.Context) (string, error) {
	if m.opts.AgentPoolName == "" {
		return "", nil
	}
	if m.agentPool != nil {
		return m.agentPool.ID, nil
	}
	pool, err := m.target.FindAgentPool(ctx, m.opts.AgentPoolName)
	if err != nil {
		if client.IsNotFound(err) {
			return "", &client.MissingPreconditionError{What: fmt.Sprintf("agent pool %q not found", m.opts.AgentPoolName)}
		}
		return "", fmt.Errorf("looking up agent pool %q: %w", m.opts.AgentPoolName, err)
	}
	agents, err := m.target.ListAgents(ctx, pool.ID)
	if err != nil {
		return "", fmt.Errorf("listing agents of pool %q: %w", m.opts.AgentPoolName, err)
	}
	if len(agents) == 0 {
		return "", &client.MissingPreconditionError{What: fmt.Sprintf("agent pool %q has no active agents", m.opts.AgentPoolName)}
	}
	m.agentPool = pool
	m.agentPoolRecord = m.artifacts.Add(hcl.NewData("scalr_agent_pool", m.opts.AgentPoolName).
		Set("name", hcl.String(m.opts.AgentPoolName)))
	return pool.ID, nil
}

// shareProviderConfiguration grants the destination environment access to a
// non-shared provider configuration.
func (m *Migrator) shareProviderConfiguration(ctx context.Context, envID string) error {
	if _, err := m.providerConfigurationID(ctx); err != nil {
		return err
	}
	if m.pcConfig == nil || m.pcConfig.IsShared {
		return nil
	}
	for _, id := range m.pcConfig.EnvironmentIDs {
		if id == envID {
			return nil
		}
	}
	allowed := append(append([]string{}, m.pcConfig.EnvironmentIDs...), envID)
	if err := m.target.ShareProviderConfiguration(ctx, m.pcConfig.ID, allowed); err != nil {
		return fmt.Errorf("sharing provider configuration %q with environment: %w", m.opts.PCName, err)
	}
	m.pcConfig.EnvironmentIDs = allowed
	return nil
}

// resolveStateConsumers runs after the walk: translate each producer's
// consumer list through the identity map, replay it on the target, and
// mirror it on the producer's record. Unmapped references are dropped with a
// warning; they belong to workspaces outside this run's selection.
func (m *Migrator) resolveStateConsumers(ctx context.Context) {
	if len(m.pendingConsumers) == 0 {
		return
	}
	logger.Infof("resolving remote state consumers")

	for _, pending := range m.pendingConsumers {
		producer, err := m.ids.resolve(pending.sourceID)
		if err != nil {
			logger.Warnf("%v", err)
			continue
		}

		sourceIDs, err := m.source.ListStateConsumers(ctx, pending.consumersLink)
		if err != nil {
			logger.Errorf("listing state consumers of %q: %v", pending.workspaceName, err)
			continue
		}

		var consumerIDs []string
		var consumerRecords []*hcl.Record
		for _, sourceID := range sourceIDs {
			consumer, err := m.ids.resolve(sourceID)
			if err != nil {
				logger.Warnf("dropping state consumer of %q: %v", pending.workspaceName, err)
				continue
			}
			consumerIDs = append(consumerIDs, consumer.ExternalID)
			consumerRecords = append(consumerRecords, consumer)
		}
		if len(consumerIDs) == 0 {
			continue
		}

		if err := m.target.UpdateRemoteStateConsumers(ctx, producer.ExternalID, consumerIDs); err != nil {
			logger.Errorf("updating state consumers of %q: %v", pending.workspaceName, err)
			continue
		}
		producer.Set("remote_state_consumers", hcl.Refs(consumerRecords))
	}
}

// writeBackendConfig rewrites backend.tf so the artifact applies through the
// management workspace.
func (m *Migrator) writeBackendConfig() error {
	dir := m.artifacts.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	content := fmt.Sprintf(`# Generated by scalr-migrate
# Generated at: %s

terraform {
  backend "remote" {
    hostname = %q
    organization = %q
    workspaces {
      name = %q
    }
  }
}
`, time.Now().Format(time.RFC3339), m.opts.ScalrHostname, m.opts.ManagementEnv, m.opts.ManagementWorkspace)

	path := filepath.Join(dir, "backend.tf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
