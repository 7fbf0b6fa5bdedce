package scalr

import (
	"context"
	"fmt"

	chttp "github.com/flanksource/commons/http"

	"scalr-migrate/internal/client"
)

const apiPrefix = "/api/iacp/v3/"

type Client struct {
	baseURL string
	http    *chttp.Client
	exec    *client.Executor
}

func NewClient(hostname, token string, exec *client.Executor) *Client {
	return &Client{
		baseURL: client.NormalizeBaseURL(hostname),
		http: chttp.NewClient().
			Header("Authorization", "Bearer "+token).
			Header("Content-Type", "application/vnd.api+json").
			Header("Prefer", "profile=preview"),
		exec: exec,
	}
}

func (c *Client) route(path string) string {
	return c.baseURL + apiPrefix + path
}

func (c *Client) send(ctx context.Context, method, url string, params map[string]string, body, out any) error {
	req := c.http.R(ctx)
	for k, v := range params {
		req = req.QueryParam(k, v)
	}
	if body != nil {
		encoded, err := client.Encode(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, url, err)
		}
		if err := req.Body(encoded); err != nil {
			return fmt.Errorf("setting %s %s request body: %w", method, url, err)
		}
	}
	resp, err := req.Do(method, url)
	if err != nil {
		return &client.TransientError{Err: err}
	}
	if err := client.ClassifyResponse(method, url, resp); err != nil {
		return err
	}
	if out != nil {
		if err := resp.Into(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, url, err)
		}
	}
	return nil
}

// ListAccounts returns the accounts visible to the token.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var doc client.CollectionDocument[namedAttributes]
	err := c.exec.Execute(ctx, "list accounts", func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("accounts"), nil, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(doc.Data))
	for _, res := range doc.Data {
		accounts = append(accounts, Account{ID: res.ID, Name: res.Attributes.Name})
	}
	return accounts, nil
}

// GetEnvironment probes for an environment by exact name.
func (c *Client) GetEnvironment(ctx context.Context, name string) (*Environment, error) {
	var doc client.CollectionDocument[namedAttributes]
	params := map[string]string{"filter[name]": name}
	err := c.exec.Execute(ctx, "find environment "+name, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("environments"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, &client.NotFoundError{Resource: fmt.Sprintf("environment %q", name)}
	}
	return &Environment{ID: doc.Data[0].ID, Name: doc.Data[0].Attributes.Name}, nil
}

func (c *Client) CreateEnvironment(ctx context.Context, name, accountID string) (*Environment, error) {
	body := client.Document[namedAttributes]{
		Data: client.Resource[namedAttributes]{
			Type:       "environments",
			Attributes: namedAttributes{Name: name},
			Relationships: map[string]*client.Relationship{
				"account": client.ToOne("accounts", accountID),
			},
		},
	}
	var doc client.Document[namedAttributes]
	err := c.exec.Execute(ctx, "create environment "+name, func(ctx context.Context) error {
		return c.send(ctx, "POST", c.route("environments"), nil, body, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &Environment{ID: doc.Data.ID, Name: doc.Data.Attributes.Name}, nil
}

// GetWorkspace probes for a workspace by name inside an environment.
func (c *Client) GetWorkspace(ctx context.Context, environmentID, name string) (*Workspace, error) {
	var doc client.CollectionDocument[namedAttributes]
	params := map[string]string{
		"query":               name,
		"filter[environment]": environmentID,
	}
	err := c.exec.Execute(ctx, "find workspace "+name, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("workspaces"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	// The query filter is a substring match, so insist on the exact name.
	for _, res := range doc.Data {
		if res.Attributes.Name == name {
			return &Workspace{ID: res.ID, Name: res.Attributes.Name}, nil
		}
	}
	return nil, &client.NotFoundError{Resource: fmt.Sprintf("workspace %q", name)}
}

func (c *Client) CreateWorkspace(ctx context.Context, environmentID string, attrs WorkspaceAttributes, opts CreateWorkspaceOptions) (*Workspace, error) {
	relationships := map[string]*client.Relationship{
		"environment": client.ToOne("environments", environmentID),
	}
	if opts.VCSProviderID != "" {
		relationships["vcs-provider"] = client.ToOne("vcs-providers", opts.VCSProviderID)
	}
	if opts.AgentPoolID != "" {
		relationships["agent-pool"] = client.ToOne("agent-pools", opts.AgentPoolID)
	}

	body := client.Document[WorkspaceAttributes]{
		Data: client.Resource[WorkspaceAttributes]{
			Type:          "workspaces",
			Attributes:    attrs,
			Relationships: relationships,
		},
	}
	var doc client.Document[namedAttributes]
	err := c.exec.Execute(ctx, "create workspace "+attrs.Name, func(ctx context.Context) error {
		return c.send(ctx, "POST", c.route("workspaces"), nil, body, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &Workspace{ID: doc.Data.ID, Name: doc.Data.Attributes.Name}, nil
}

// CurrentStateVersion reports the workspace's current state, or a negative
// probe when none was published yet.
func (c *Client) CurrentStateVersion(ctx context.Context, workspaceID string) (*StateVersion, error) {
	var doc client.Document[stateVersionResponse]
	err := c.exec.Execute(ctx, "get current state of "+workspaceID, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("workspaces/"+workspaceID+"/current-state-version"), nil, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &StateVersion{ID: doc.Data.ID, Serial: doc.Data.Attributes.Serial}, nil
}

// CreateStateVersion publishes a state version into the workspace.
func (c *Client) CreateStateVersion(ctx context.Context, workspaceID string, attrs StateVersionAttributes) error {
	body := client.Document[StateVersionAttributes]{
		Data: client.Resource[StateVersionAttributes]{
			Type:       "state-versions",
			Attributes: attrs,
			Relationships: map[string]*client.Relationship{
				"workspace": client.ToOne("workspaces", workspaceID),
			},
		},
	}
	return c.exec.Execute(ctx, "create state version for "+workspaceID, func(ctx context.Context) error {
		return c.send(ctx, "POST", c.route("state-versions"), nil, body, nil)
	})
}

// CreateVariable creates a variable bound to exactly one scope.
func (c *Client) CreateVariable(ctx context.Context, attrs VariableAttributes, scope VariableScope) (*Variable, error) {
	relationships := map[string]*client.Relationship{}
	switch {
	case scope.WorkspaceID != "":
		relationships["workspace"] = client.ToOne("workspaces", scope.WorkspaceID)
	case scope.EnvironmentID != "":
		relationships["environment"] = client.ToOne("environments", scope.EnvironmentID)
	case scope.AccountID != "":
		relationships["account"] = client.ToOne("accounts", scope.AccountID)
	}

	body := client.Document[VariableAttributes]{
		Data: client.Resource[VariableAttributes]{
			Type:          "vars",
			Attributes:    attrs,
			Relationships: relationships,
		},
	}
	var doc client.Document[variableResponseAttributes]
	err := c.exec.Execute(ctx, "create variable "+attrs.Key, func(ctx context.Context) error {
		return c.send(ctx, "POST", c.route("vars"), nil, body, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &Variable{
		ID:        doc.Data.ID,
		Key:       doc.Data.Attributes.Key,
		Category:  doc.Data.Attributes.Category,
		Sensitive: doc.Data.Attributes.Sensitive,
	}, nil
}

// ListVariables returns the variables matching the filter.
func (c *Client) ListVariables(ctx context.Context, filter VariableFilter) ([]Variable, error) {
	params := map[string]string{}
	if filter.AccountID != "" {
		params["filter[account]"] = filter.AccountID
	}
	if filter.WorkspaceID != "" {
		params["filter[workspace]"] = filter.WorkspaceID
	}
	if filter.Key != "" {
		params["filter[key]"] = filter.Key
	}
	if filter.EnvironmentNull {
		params["filter[environment]"] = "null"
	}
	if filter.WorkspaceNull {
		params["filter[workspace]"] = "null"
	}

	var doc client.CollectionDocument[variableResponseAttributes]
	err := c.exec.Execute(ctx, "list variables", func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("vars"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	vars := make([]Variable, 0, len(doc.Data))
	for _, res := range doc.Data {
		vars = append(vars, Variable{
			ID:        res.ID,
			Key:       res.Attributes.Key,
			Category:  res.Attributes.Category,
			Sensitive: res.Attributes.Sensitive,
		})
	}
	return vars, nil
}

// FindVCSProvider resolves a VCS provider by name.
func (c *Client) FindVCSProvider(ctx context.Context, name string) (*VCSProvider, error) {
	var doc client.CollectionDocument[namedAttributes]
	params := map[string]string{"query": name}
	err := c.exec.Execute(ctx, "find vcs provider "+name, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("vcs-providers"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, &client.NotFoundError{Resource: fmt.Sprintf("VCS provider %q", name)}
	}
	return &VCSProvider{ID: doc.Data[0].ID, Name: doc.Data[0].Attributes.Name}, nil
}

// FindProviderConfiguration resolves a provider configuration by name,
// including which environments it is already shared with.
func (c *Client) FindProviderConfiguration(ctx context.Context, name string) (*ProviderConfiguration, error) {
	var doc client.CollectionDocument[providerConfigurationAttributes]
	params := map[string]string{"filter[name]": name}
	err := c.exec.Execute(ctx, "find provider configuration "+name, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("provider-configurations"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, &client.NotFoundError{Resource: fmt.Sprintf("provider configuration %q", name)}
	}

	res := doc.Data[0]
	pc := &ProviderConfiguration{
		ID:       res.ID,
		Name:     res.Attributes.Name,
		IsShared: res.Attributes.IsShared,
	}
	for _, ident := range res.Relationships["environments"].Many() {
		pc.EnvironmentIDs = append(pc.EnvironmentIDs, ident.ID)
	}
	return pc, nil
}

// ShareProviderConfiguration replaces the configuration's allowed
// environment list.
func (c *Client) ShareProviderConfiguration(ctx context.Context, pcID string, environmentIDs []string) error {
	body := map[string]any{
		"data": map[string]any{
			"type": "provider-configurations",
			"id":   pcID,
			"relationships": map[string]any{
				"environments": client.ToMany("environments", environmentIDs),
			},
		},
	}
	return c.exec.Execute(ctx, "share provider configuration "+pcID, func(ctx context.Context) error {
		return c.send(ctx, "PATCH", c.route("provider-configurations/"+pcID), nil, body, nil)
	})
}

// LinkProviderConfiguration attaches a provider configuration to a workspace.
func (c *Client) LinkProviderConfiguration(ctx context.Context, workspaceID, pcID string) error {
	body := map[string]any{
		"data": map[string]any{
			"type": "provider-configuration-links",
			"relationships": map[string]any{
				"provider-configuration": client.ToOne("provider-configurations", pcID),
			},
		},
	}
	return c.exec.Execute(ctx, "link provider configuration to "+workspaceID, func(ctx context.Context) error {
		return c.send(ctx, "POST", c.route("workspaces/"+workspaceID+"/provider-configuration-links"), nil, body, nil)
	})
}

// FindAgentPool resolves an agent pool by name.
func (c *Client) FindAgentPool(ctx context.Context, name string) (*AgentPool, error) {
	var doc client.CollectionDocument[namedAttributes]
	params := map[string]string{"filter[name]": name}
	err := c.exec.Execute(ctx, "find agent pool "+name, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("agent-pools"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, &client.NotFoundError{Resource: fmt.Sprintf("agent pool %q", name)}
	}
	return &AgentPool{ID: doc.Data[0].ID, Name: doc.Data[0].Attributes.Name}, nil
}

// ListAgents returns the agents registered in a pool.
func (c *Client) ListAgents(ctx context.Context, poolID string) ([]Agent, error) {
	var doc client.CollectionDocument[struct{}]
	params := map[string]string{"filter[agent-pool]": poolID}
	err := c.exec.Execute(ctx, "list agents of "+poolID, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route("agents"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	agents := make([]Agent, 0, len(doc.Data))
	for _, res := range doc.Data {
		agents = append(agents, Agent{ID: res.ID})
	}
	return agents, nil
}

// UpdateRemoteStateConsumers replaces the workspace's consumer listing.
func (c *Client) UpdateRemoteStateConsumers(ctx context.Context, workspaceID string, consumerIDs []string) error {
	body := client.ToMany("workspaces", consumerIDs)
	return c.exec.Execute(ctx, "update state consumers of "+workspaceID, func(ctx context.Context) error {
		return c.send(ctx, "PATCH", c.route("workspaces/"+workspaceID+"/relationships/remote-state-consumers"), nil, body, nil)
	})
}
