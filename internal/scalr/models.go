// Package scalr is the write-side gateway: it creates and links the target
// objects a migration produces.
package scalr

type Account struct {
	ID   string
	Name string
}

type Environment struct {
	ID   string
	Name string
}

type Workspace struct {
	ID   string
	Name string
}

type namedAttributes struct {
	Name string `json:"name"`
}

// VCSRepo is the workspace's VCS binding in target terms. TriggerPatterns is
// a single multi-line string, unlike the source's list form.
type VCSRepo struct {
	Identifier        string   `json:"identifier"`
	DryRunsEnabled    bool     `json:"dry-runs-enabled"`
	Branch            string   `json:"branch,omitempty"`
	IngressSubmodules bool     `json:"ingress-submodules"`
	TriggerPrefixes   []string `json:"trigger-prefixes,omitempty"`
	TriggerPatterns   string   `json:"trigger-patterns,omitempty"`
}

// WorkspaceAttributes is the create payload for a workspace.
type WorkspaceAttributes struct {
	Name                      string   `json:"name"`
	AutoApply                 bool     `json:"auto-apply"`
	Operations                bool     `json:"operations"`
	TerraformVersion          string   `json:"terraform-version"`
	WorkingDirectory          string   `json:"working-directory,omitempty"`
	DeletionProtectionEnabled bool     `json:"deletion-protection-enabled"`
	RemoteStateSharing        bool     `json:"remote-state-sharing"`
	VCSRepo                   *VCSRepo `json:"vcs-repo,omitempty"`
}

// CreateWorkspaceOptions carries the optional relationship bindings.
type CreateWorkspaceOptions struct {
	VCSProviderID string
	AgentPoolID   string
}

// StateVersionAttributes is the publish payload for one state version.
type StateVersionAttributes struct {
	Serial  int64  `json:"serial"`
	MD5     string `json:"md5"`
	Lineage string `json:"lineage"`
	State   string `json:"state"`
}

type stateVersionResponse struct {
	Serial int64 `json:"serial"`
}

// StateVersion is the target's current state version, used to short-circuit
// republishing an identical serial.
type StateVersion struct {
	ID     string
	Serial int64
}

type Variable struct {
	ID        string
	Key       string
	Category  string
	Sensitive bool
}

// VariableAttributes is the create payload for one variable.
type VariableAttributes struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	Sensitive   bool   `json:"sensitive"`
	Description string `json:"description,omitempty"`
	HCL         bool   `json:"hcl"`
}

type variableResponseAttributes struct {
	Key       string `json:"key"`
	Category  string `json:"category"`
	Sensitive bool   `json:"sensitive"`
}

// VariableScope is the exactly-one relationship a variable is created under.
type VariableScope struct {
	WorkspaceID   string
	EnvironmentID string
	AccountID     string
}

// VariableFilter narrows variable listings. The *Null fields select variables
// with no binding at that level, which is how account-global variables are
// distinguished from scoped ones.
type VariableFilter struct {
	AccountID       string
	WorkspaceID     string
	Key             string
	EnvironmentNull bool
	WorkspaceNull   bool
}

type VCSProvider struct {
	ID   string
	Name string
}

// ProviderConfiguration is an existing cloud-credentials object workspaces
// link to.
type ProviderConfiguration struct {
	ID             string
	Name           string
	IsShared       bool
	EnvironmentIDs []string
}

type providerConfigurationAttributes struct {
	Name     string `json:"name"`
	IsShared bool   `json:"is-shared"`
}

type AgentPool struct {
	ID   string
	Name string
}

type Agent struct {
	ID string
}
