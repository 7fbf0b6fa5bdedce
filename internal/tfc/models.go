// Package tfc is the read-only gateway to a Terraform Cloud or Enterprise
// installation: the source side of a migration.
package tfc

import (
	"encoding/json"
	"time"
)

type OrganizationAttributes struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Organization struct {
	ID   string
	Name string
}

// VCSRepo is the workspace's VCS binding as the source reports it.
type VCSRepo struct {
	Identifier        string `json:"identifier"`
	DisplayIdentifier string `json:"display-identifier"`
	Branch            string `json:"branch"`
	IngressSubmodules bool   `json:"ingress-submodules"`
}

type WorkspaceAttributes struct {
	Name               string   `json:"name"`
	AutoApply          bool     `json:"auto-apply"`
	Operations         bool     `json:"operations"`
	TerraformVersion   string   `json:"terraform-version"`
	WorkingDirectory   string   `json:"working-directory"`
	GlobalRemoteState  bool     `json:"global-remote-state"`
	SpeculativeEnabled bool     `json:"speculative-enabled"`
	Locked             bool     `json:"locked"`
	TriggerPrefixes    []string `json:"trigger-prefixes"`
	TriggerPatterns    []string `json:"trigger-patterns"`
	VCSRepo            *VCSRepo `json:"vcs-repo"`
}

// Workspace flattens the source workspace: its attributes plus the
// relationship facts later phases need.
type Workspace struct {
	ID string
	WorkspaceAttributes

	// CurrentStateLink resolves the latest state version, when one exists.
	CurrentStateLink string

	// StateConsumersLink lists the workspaces consuming this one's state.
	StateConsumersLink string

	// HasAgentPool marks workspaces whose runs execute on an agent pool.
	HasAgentPool bool
}

type Project struct {
	ID   string
	Name string
}

type projectAttributes struct {
	Name string `json:"name"`
}

type Variable struct {
	ID          string
	Key         string
	Value       string
	Category    string
	HCL         bool
	Sensitive   bool
	Description string
}

type variableAttributes struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	HCL         bool   `json:"hcl"`
	Sensitive   bool   `json:"sensitive"`
	Description string `json:"description"`
}

type Run struct {
	ID        string
	Status    string
	CreatedAt time.Time
}

type runAttributes struct {
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created-at"`
}

// StateVersion carries the pointer to the raw state blob; the blob itself is
// downloaded separately.
type StateVersion struct {
	ID                     string
	Serial                 int64
	HostedStateDownloadURL string
}

type stateVersionAttributes struct {
	Serial                 int64  `json:"serial"`
	HostedStateDownloadURL string `json:"hosted-state-download-url"`
}

// Plan is the subset of a run's machine-readable plan used to recover
// sensitive variable values.
type Plan struct {
	Variables     map[string]PlanVariable `json:"variables"`
	Configuration PlanConfiguration       `json:"configuration"`
}

type PlanVariable struct {
	Value json.RawMessage `json:"value"`
}

// StringValue renders the variable's value for the target API: JSON strings
// are unwrapped, anything else (maps, lists, numbers) keeps its JSON text,
// which is what HCL-typed variables expect.
func (v PlanVariable) StringValue() string {
	var s string
	if err := json.Unmarshal(v.Value, &s); err == nil {
		return s
	}
	return string(v.Value)
}

type PlanConfiguration struct {
	RootModule PlanModule `json:"root_module"`
}

type PlanModule struct {
	Variables map[string]PlanModuleVariable `json:"variables"`
}

type PlanModuleVariable struct {
	Sensitive bool `json:"sensitive"`
}

// VariableSet groups variables shared across workspaces at the org level.
type VariableSet struct {
	ID     string
	Name   string
	Global bool
}

type variableSetAttributes struct {
	Name   string `json:"name"`
	Global bool   `json:"global"`
}
