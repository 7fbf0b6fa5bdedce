package migrate

import (
	"context"
	"fmt"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

// fakeSource is an in-memory Source serving canned data. Lists return a
// single page.
type fakeSource struct {
	orgs       []tfc.Organization
	projects   map[string]*tfc.Project
	workspaces []tfc.Workspace

	// variables is keyed by workspace name, runs by workspace id, plans by
	// run id.
	variables map[string][]tfc.Variable
	runs      map[string][]tfc.Run
	plans     map[string]*tfc.Plan

	// stateVersions is keyed by the state link, states by the download URL,
	// consumers by the consumers link.
	stateVersions map[string]*tfc.StateVersion
	states        map[string][]byte
	consumers     map[string][]string

	varsets    []tfc.VariableSet
	varsetVars map[string][]tfc.Variable

	orgRuns map[string][]tfc.Run

	lockedReasons map[string]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		orgs:          []tfc.Organization{{ID: "org-1", Name: "acme"}},
		projects:      map[string]*tfc.Project{},
		variables:     map[string][]tfc.Variable{},
		runs:          map[string][]tfc.Run{},
		plans:         map[string]*tfc.Plan{},
		stateVersions: map[string]*tfc.StateVersion{},
		states:        map[string][]byte{},
		consumers:     map[string][]string{},
		varsetVars:    map[string][]tfc.Variable{},
		orgRuns:       map[string][]tfc.Run{},
		lockedReasons: map[string]string{},
	}
}

func (f *fakeSource) GetOrganization(ctx context.Context, name string) (*tfc.Organization, error) {
	for _, org := range f.orgs {
		if org.Name == name {
			return &org, nil
		}
	}
	return nil, &client.NotFoundError{Resource: "organization " + name}
}

func (f *fakeSource) ListOrganizations(ctx context.Context, page int) ([]tfc.Organization, int, error) {
	return f.orgs, 0, nil
}

func (f *fakeSource) FindProject(ctx context.Context, org, name string) (*tfc.Project, error) {
	if p, ok := f.projects[name]; ok {
		return p, nil
	}
	return nil, &client.NotFoundError{Resource: "project " + name}
}

func (f *fakeSource) ListWorkspaces(ctx context.Context, org string, page int, projectID string) ([]tfc.Workspace, int, error) {
	return f.workspaces, 0, nil
}

func (f *fakeSource) ListWorkspaceVariables(ctx context.Context, org, workspaceName string) ([]tfc.Variable, error) {
	return f.variables[workspaceName], nil
}

func (f *fakeSource) ListRuns(ctx context.Context, workspaceID string, limit int) ([]tfc.Run, error) {
	return f.runs[workspaceID], nil
}

func (f *fakeSource) ListOrganizationRuns(ctx context.Context, org string, page int) ([]tfc.Run, int, error) {
	return f.orgRuns[org], 0, nil
}

func (f *fakeSource) RunPlan(ctx context.Context, runID string) (*tfc.Plan, error) {
	if p, ok := f.plans[runID]; ok {
		return p, nil
	}
	return nil, &client.NotFoundError{Resource: "plan of run " + runID}
}

func (f *fakeSource) StateVersionFromLink(ctx context.Context, link string) (*tfc.StateVersion, error) {
	if sv, ok := f.stateVersions[link]; ok {
		return sv, nil
	}
	return nil, &client.NotFoundError{Resource: "state version " + link}
}

func (f *fakeSource) DownloadState(ctx context.Context, url string) ([]byte, error) {
	if raw, ok := f.states[url]; ok {
		return raw, nil
	}
	return nil, &client.NotFoundError{Resource: "state " + url}
}

func (f *fakeSource) ListStateConsumers(ctx context.Context, link string) ([]string, error) {
	return f.consumers[link], nil
}

func (f *fakeSource) ListVariableSets(ctx context.Context, org string) ([]tfc.VariableSet, error) {
	return f.varsets, nil
}

func (f *fakeSource) ListVariableSetVariables(ctx context.Context, varsetID string) ([]tfc.Variable, error) {
	return f.varsetVars[varsetID], nil
}

func (f *fakeSource) LockWorkspace(ctx context.Context, workspaceID, reason string) error {
	f.lockedReasons[workspaceID] = reason
	return nil
}

// scopedVariable is a stored variable together with the scope it was
// created under, so listings can filter like the live API.
type scopedVariable struct {
	v     scalr.Variable
	scope scalr.VariableScope
}

// createdVariable captures one CreateVariable call.
type createdVariable struct {
	attrs scalr.VariableAttributes
	scope scalr.VariableScope
}

// createdState captures one CreateStateVersion call.
type createdState struct {
	workspaceID string
	attrs       scalr.StateVersionAttributes
}

// fakeTarget is an in-memory Target that records every write.
type fakeTarget struct {
	accounts []scalr.Account

	// environments is keyed by name, workspaces by environmentID/name.
	environments map[string]*scalr.Environment
	workspaces   map[string]*scalr.Workspace

	// currentStates is keyed by workspace id.
	currentStates map[string]*scalr.StateVersion

	existingVariables []scopedVariable

	vcsProviders   map[string]*scalr.VCSProvider
	providerConfig map[string]*scalr.ProviderConfiguration
	agentPools     map[string]*scalr.AgentPool
	agents         map[string][]scalr.Agent

	// duplicateKeys makes CreateVariable answer like the live API does for
	// keys that already exist.
	duplicateKeys map[string]bool

	createdEnvironments []string
	createdWorkspaces   []scalr.WorkspaceAttributes
	createdStates       []createdState
	createdVariables    []createdVariable
	linkedPCs           map[string]string
	sharedWith          map[string][]string
	stateConsumers      map[string][]string

	nextID int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		accounts:       []scalr.Account{{ID: "acc-1", Name: "acme"}},
		environments:   map[string]*scalr.Environment{},
		workspaces:     map[string]*scalr.Workspace{},
		currentStates:  map[string]*scalr.StateVersion{},
		vcsProviders:   map[string]*scalr.VCSProvider{},
		providerConfig: map[string]*scalr.ProviderConfiguration{},
		agentPools:     map[string]*scalr.AgentPool{},
		agents:         map[string][]scalr.Agent{},
		duplicateKeys:  map[string]bool{},
		linkedPCs:      map[string]string{},
		sharedWith:     map[string][]string{},
		stateConsumers: map[string][]string{},
	}
}

func (f *fakeTarget) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeTarget) wsKey(environmentID, name string) string {
	return environmentID + "/" + name
}

func (f *fakeTarget) ListAccounts(ctx context.Context) ([]scalr.Account, error) {
	return f.accounts, nil
}

func (f *fakeTarget) GetEnvironment(ctx context.Context, name string) (*scalr.Environment, error) {
	if env, ok := f.environments[name]; ok {
		return env, nil
	}
	return nil, &client.NotFoundError{Resource: "environment " + name}
}

func (f *fakeTarget) CreateEnvironment(ctx context.Context, name, accountID string) (*scalr.Environment, error) {
	env := &scalr.Environment{ID: f.id("env"), Name: name}
	f.environments[name] = env
	f.createdEnvironments = append(f.createdEnvironments, name)
	return env, nil
}

func (f *fakeTarget) GetWorkspace(ctx context.Context, environmentID, name string) (*scalr.Workspace, error) {
	if ws, ok := f.workspaces[f.wsKey(environmentID, name)]; ok {
		return ws, nil
	}
	return nil, &client.NotFoundError{Resource: "workspace " + name}
}

func (f *fakeTarget) CreateWorkspace(ctx context.Context, environmentID string, attrs scalr.WorkspaceAttributes, opts scalr.CreateWorkspaceOptions) (*scalr.Workspace, error) {
	ws := &scalr.Workspace{ID: f.id("ws"), Name: attrs.Name}
	f.workspaces[f.wsKey(environmentID, attrs.Name)] = ws
	f.createdWorkspaces = append(f.createdWorkspaces, attrs)
	return ws, nil
}

func (f *fakeTarget) CurrentStateVersion(ctx context.Context, workspaceID string) (*scalr.StateVersion, error) {
	if sv, ok := f.currentStates[workspaceID]; ok {
		return sv, nil
	}
	return nil, &client.NotFoundError{Resource: "state of " + workspaceID}
}

func (f *fakeTarget) CreateStateVersion(ctx context.Context, workspaceID string, attrs scalr.StateVersionAttributes) error {
	f.createdStates = append(f.createdStates, createdState{workspaceID: workspaceID, attrs: attrs})
	f.currentStates[workspaceID] = &scalr.StateVersion{ID: f.id("sv"), Serial: attrs.Serial}
	return nil
}

func (f *fakeTarget) CreateVariable(ctx context.Context, attrs scalr.VariableAttributes, scope scalr.VariableScope) (*scalr.Variable, error) {
	if f.duplicateKeys[attrs.Key] {
		return nil, &client.ValidationError{Detail: fmt.Sprintf("Variable with key '%s' already exists", attrs.Key)}
	}
	f.createdVariables = append(f.createdVariables, createdVariable{attrs: attrs, scope: scope})
	v := scalr.Variable{ID: f.id("var"), Key: attrs.Key, Category: attrs.Category, Sensitive: attrs.Sensitive}
	f.existingVariables = append(f.existingVariables, scopedVariable{v: v, scope: scope})
	return &v, nil
}

func (f *fakeTarget) ListVariables(ctx context.Context, filter scalr.VariableFilter) ([]scalr.Variable, error) {
	var out []scalr.Variable
	for _, sv := range f.existingVariables {
		if filter.Key != "" && sv.v.Key != filter.Key {
			continue
		}
		if filter.WorkspaceID != "" && sv.scope.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.WorkspaceNull && sv.scope.WorkspaceID != "" {
			continue
		}
		if filter.EnvironmentNull && (sv.scope.EnvironmentID != "" || sv.scope.WorkspaceID != "") {
			continue
		}
		out = append(out, sv.v)
	}
	return out, nil
}

func (f *fakeTarget) FindVCSProvider(ctx context.Context, name string) (*scalr.VCSProvider, error) {
	if p, ok := f.vcsProviders[name]; ok {
		return p, nil
	}
	return nil, &client.NotFoundError{Resource: "vcs provider " + name}
}

func (f *fakeTarget) FindProviderConfiguration(ctx context.Context, name string) (*scalr.ProviderConfiguration, error) {
	if pc, ok := f.providerConfig[name]; ok {
		return pc, nil
	}
	return nil, &client.NotFoundError{Resource: "provider configuration " + name}
}

func (f *fakeTarget) ShareProviderConfiguration(ctx context.Context, pcID string, environmentIDs []string) error {
	f.sharedWith[pcID] = environmentIDs
	return nil
}

func (f *fakeTarget) LinkProviderConfiguration(ctx context.Context, workspaceID, pcID string) error {
	f.linkedPCs[workspaceID] = pcID
	return nil
}

func (f *fakeTarget) FindAgentPool(ctx context.Context, name string) (*scalr.AgentPool, error) {
	if p, ok := f.agentPools[name]; ok {
		return p, nil
	}
	return nil, &client.NotFoundError{Resource: "agent pool " + name}
}

func (f *fakeTarget) ListAgents(ctx context.Context, poolID string) ([]scalr.Agent, error) {
	return f.agents[poolID], nil
}

func (f *fakeTarget) UpdateRemoteStateConsumers(ctx context.Context, workspaceID string, consumerIDs []string) error {
	f.stateConsumers[workspaceID] = consumerIDs
	return nil
}

var (
	_ Source         = (*fakeSource)(nil)
	_ Target         = (*fakeTarget)(nil)
	_ activitySource = (*fakeSource)(nil)
)
