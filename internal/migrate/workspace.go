package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/flanksource/commons/logger"
	goversion "github.com/hashicorp/go-version"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/hcl"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

// defaultTerraformVersion is assumed when the source does not report one.
const defaultTerraformVersion = "1.6.0"

// clampVersion caps v at MaxTerraformVersion, logging when a downgrade
// happens. Unparseable versions pass through untouched; the target rejects
// them with a clearer error than anything guessed here.
func clampVersion(v, subject string) string {
	if v == "" {
		v = defaultTerraformVersion
	}
	parsed, err := goversion.NewVersion(v)
	if err != nil {
		return v
	}
	max := goversion.Must(goversion.NewVersion(MaxTerraformVersion))
	if parsed.GreaterThan(max) {
		logger.Warnf("%s uses Terraform %s, downgrading to %s", subject, v, MaxTerraformVersion)
		return MaxTerraformVersion
	}
	return v
}

// executionMode maps the source's boolean operations attribute to the
// target's mode enum.
func executionMode(operations bool) string {
	if operations {
		return "remote"
	}
	return "local"
}

// validTriggerPattern accepts comment lines outright and rejects patterns
// that are empty or carry embedded line breaks.
func validTriggerPattern(pattern string) bool {
	if strings.HasPrefix(pattern, "#") {
		return true
	}
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return false
	}
	return !strings.ContainsAny(trimmed, "\n\r")
}

// joinTriggerPatterns validates each pattern and joins the survivors into
// the multi-line form the target expects. Invalid patterns are dropped with
// a warning, never fatal.
func joinTriggerPatterns(patterns []string) string {
	var valid []string
	for _, pattern := range patterns {
		if validTriggerPattern(pattern) {
			valid = append(valid, pattern)
		} else {
			logger.Warnf("dropping invalid trigger pattern: %q", pattern)
		}
	}
	return strings.Join(valid, "\n")
}

// ensureWorkspace probes the target for the workspace and creates it when the
// run is in creation mode. The returned record always carries the target id.
//
// An existing workspace in creation mode is reused as a data source rather
// than failing, which is what makes reruns converge. A missing workspace in
// skip-creation mode is a real precondition failure: there is nothing to
// migrate into.
func (m *Migrator) ensureWorkspace(ctx context.Context, src tfc.Workspace, envID string) (*hcl.Record, error) {
	existing, err := m.target.GetWorkspace(ctx, envID, src.Name)
	if err != nil && !client.IsNotFound(err) {
		return nil, fmt.Errorf("probing for workspace %q: %w", src.Name, err)
	}

	if existing != nil {
		if !m.opts.SkipWorkspaceCreation {
			logger.Infof("workspace %q already exists, reusing it", src.Name)
		}
		// A block declared by an earlier run keeps representing the
		// workspace; only untracked workspaces get a fresh data source.
		rec := m.artifacts.Lookup("scalr_workspace", src.Name)
		if rec == nil {
			rec = m.artifacts.Add(hcl.NewData("scalr_workspace", src.Name).Set("name", hcl.String(src.Name)))
		}
		rec.ExternalID = existing.ID
		m.ids.record(src.ID, rec)
		return rec, nil
	}
	if m.opts.SkipWorkspaceCreation {
		return nil, fmt.Errorf("workspace %q does not exist on the target and creation is disabled", src.Name)
	}

	logger.Infof("creating workspace %q", src.Name)

	version := clampVersion(src.TerraformVersion, "workspace "+src.Name)
	attrs := scalr.WorkspaceAttributes{
		Name:                      src.Name,
		AutoApply:                 src.AutoApply,
		Operations:                src.Operations,
		TerraformVersion:          version,
		WorkingDirectory:          src.WorkingDirectory,
		DeletionProtectionEnabled: !m.opts.DisableDeletionProtection,
		RemoteStateSharing:        src.GlobalRemoteState,
	}

	var createOpts scalr.CreateWorkspaceOptions
	var triggerPatterns string
	if src.VCSRepo != nil {
		vcsID, err := m.vcsProviderID(ctx)
		if err != nil {
			return nil, err
		}
		createOpts.VCSProviderID = vcsID

		triggerPatterns = joinTriggerPatterns(src.TriggerPatterns)
		attrs.VCSRepo = &scalr.VCSRepo{
			Identifier:        src.VCSRepo.DisplayIdentifier,
			DryRunsEnabled:    src.SpeculativeEnabled,
			Branch:            src.VCSRepo.Branch,
			IngressSubmodules: src.VCSRepo.IngressSubmodules,
			TriggerPrefixes:   src.TriggerPrefixes,
			TriggerPatterns:   triggerPatterns,
		}
	}
	if src.HasAgentPool {
		poolID, err := m.agentPoolID(ctx)
		if err != nil {
			return nil, err
		}
		createOpts.AgentPoolID = poolID
	}

	created, err := m.target.CreateWorkspace(ctx, envID, attrs, createOpts)
	if err != nil {
		return nil, fmt.Errorf("creating workspace %q: %w", src.Name, err)
	}
	logger.Infof("created workspace %q", src.Name)

	pcID, err := m.providerConfigurationID(ctx)
	if err != nil {
		return nil, err
	}
	if pcID != "" {
		if err := m.target.LinkProviderConfiguration(ctx, created.ID, pcID); err != nil {
			return nil, fmt.Errorf("linking provider configuration to %q: %w", src.Name, err)
		}
		logger.Infof("linked provider configuration %q", m.opts.PCName)
	}

	// Add must come first: an artifact loaded from disk may already declare
	// this block, and the canonical record is the one that needs the id.
	rec := m.artifacts.Add(m.workspaceRecord(src, version, triggerPatterns, pcID != ""))
	rec.ExternalID = created.ID
	m.ids.record(src.ID, rec)
	return rec, nil
}

// workspaceRecord synthesizes the declarative block mirroring a created
// workspace.
func (m *Migrator) workspaceRecord(src tfc.Workspace, version, triggerPatterns string, linkPC bool) *hcl.Record {
	rec := hcl.NewResource("scalr_workspace", src.Name).
		Set("name", hcl.String(src.Name)).
		Set("auto_apply", hcl.Bool(src.AutoApply)).
		Set("execution_mode", hcl.String(executionMode(src.Operations))).
		Set("terraform_version", hcl.String(version))
	if src.WorkingDirectory != "" {
		rec.Set("working_directory", hcl.String(src.WorkingDirectory))
	}
	if m.envRecord != nil {
		rec.Set("environment_id", hcl.Ref(m.envRecord))
	}
	rec.Set("deletion_protection_enabled", hcl.Bool(!m.opts.DisableDeletionProtection))

	if src.GlobalRemoteState {
		rec.Set("remote_state_consumers", hcl.Raw(`["*"]`))
	}

	if src.VCSRepo != nil {
		repo := hcl.NewBody().
			Set("identifier", hcl.String(src.VCSRepo.DisplayIdentifier)).
			Set("dry_runs_enabled", hcl.Bool(src.SpeculativeEnabled))
		if src.VCSRepo.Branch != "" {
			repo.Set("branch", hcl.String(src.VCSRepo.Branch))
		}
		repo.Set("ingress_submodules", hcl.Bool(src.VCSRepo.IngressSubmodules))
		if len(src.TriggerPrefixes) > 0 {
			repo.Set("trigger_prefixes", hcl.Strings(src.TriggerPrefixes))
		}
		if triggerPatterns != "" {
			repo.Set("trigger_patterns", hcl.String(triggerPatterns))
		}
		rec.Set("vcs_repo", hcl.Block(repo))
		if m.vcsRecord != nil {
			rec.Set("vcs_provider_id", hcl.Ref(m.vcsRecord))
		}
	}

	if linkPC && m.pcRecord != nil {
		rec.Set("provider_configuration", hcl.Block(hcl.NewBody().Set("id", hcl.Ref(m.pcRecord))))
	}
	if src.HasAgentPool && m.agentPoolRecord != nil {
		rec.Set("agent_pool_id", hcl.Ref(m.agentPoolRecord))
	}
	return rec
}
