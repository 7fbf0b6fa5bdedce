package tfc

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chttp "github.com/flanksource/commons/http"
	"github.com/flanksource/commons/logger"

	"scalr-migrate/internal/client"
)

const (
	defaultAPIPrefix = "/api/v2/"
	pageSize         = 100
)

// Client talks to the source installation. The API prefix is discovered from
// the well-known document on first use, so self-hosted Enterprise setups with
// a relocated API keep working.
type Client struct {
	baseURL string
	http    *chttp.Client
	exec    *client.Executor

	discoverOnce sync.Once
	apiPrefix    string
}

func NewClient(hostname, token string, exec *client.Executor) *Client {
	return &Client{
		baseURL: client.NormalizeBaseURL(hostname),
		http: chttp.NewClient().
			Header("Authorization", "Bearer "+token).
			Header("Content-Type", "application/vnd.api+json"),
		exec: exec,
	}
}

// prefix resolves the versioned API prefix once per client. Discovery
// failures fall back to the canonical prefix instead of failing the run.
func (c *Client) prefix(ctx context.Context) string {
	c.discoverOnce.Do(func() {
		c.apiPrefix = defaultAPIPrefix
		resp, err := c.http.R(ctx).Do("GET", c.baseURL+"/.well-known/terraform.json")
		if err != nil || !resp.IsOK() {
			logger.Debugf("service discovery unavailable for %s, assuming %s", c.baseURL, defaultAPIPrefix)
			return
		}
		var services map[string]any
		if err := resp.Into(&services); err != nil {
			return
		}
		if v, ok := services["tfe.v2"].(string); ok && v != "" {
			c.apiPrefix = v
		}
	})
	return c.apiPrefix
}

func (c *Client) route(ctx context.Context, path string) string {
	prefix := c.prefix(ctx)
	if prefix == "" {
		prefix = defaultAPIPrefix
	}
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return c.baseURL + prefix + path
}

// absolute resolves relationship links, which the API emits host-relative.
func (c *Client) absolute(link string) string {
	if len(link) > 0 && link[0] == '/' {
		return c.baseURL + link
	}
	return link
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

func (c *Client) GetOrganization(ctx context.Context, name string) (*Organization, error) {
	var doc client.Document[OrganizationAttributes]
	err := c.exec.Execute(ctx, "get organization "+name, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route(ctx, "organizations/"+name), nil, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &Organization{ID: doc.Data.ID, Name: doc.Data.Attributes.Name}, nil
}

// ListOrganizations returns one page of organizations plus the next page
// number, zero when the walk is complete.
func (c *Client) ListOrganizations(ctx context.Context, page int) ([]Organization, int, error) {
	var doc client.CollectionDocument[OrganizationAttributes]
	params := map[string]string{
		"page[size]":   strconv.Itoa(pageSize),
		"page[number]": strconv.Itoa(page),
	}
	err := c.exec.Execute(ctx, fmt.Sprintf("list organizations page %d", page), func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route(ctx, "organizations"), params, nil, &doc)
	})
	if err != nil {
		return nil, 0, err
	}
	orgs := make([]Organization, 0, len(doc.Data))
	for _, res := range doc.Data {
		orgs = append(orgs, Organization{ID: res.ID, Name: res.Attributes.Name})
	}
	return orgs, nextPage(doc.Meta), nil
}

// ListWorkspaces returns one page of the organization's workspaces, optionally
// narrowed to a project.
func (c *Client) ListWorkspaces(ctx context.Context, org string, page int, projectID string) ([]Workspace, int, error) {
	params := map[string]string{
		"page[size]":   strconv.Itoa(pageSize),
		"page[number]": strconv.Itoa(page),
	}
	if projectID != "" {
		params["filter[project][id]"] = projectID
	}

	var doc client.CollectionDocument[WorkspaceAttributes]
	err := c.exec.Execute(ctx, fmt.Sprintf("list workspaces page %d", page), func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route(ctx, "organizations/"+org+"/workspaces"), params, nil, &doc)
	})
	if err != nil {
		return nil, 0, err
	}

	workspaces := make([]Workspace, 0, len(doc.Data))
	for _, res := range doc.Data {
		workspaces = append(workspaces, workspaceFromResource(res))
	}
	return workspaces, nextPage(doc.Meta), nil
}

func workspaceFromResource(res client.Resource[WorkspaceAttributes]) Workspace {
	ws := Workspace{ID: res.ID, WorkspaceAttributes: res.Attributes}
	if rel := res.Relationships["current-state-version"]; rel != nil && rel.Links != nil {
		ws.CurrentStateLink = rel.Links.Related
	}
	if rel := res.Relationships["remote-state-consumers"]; rel != nil && rel.Links != nil {
		ws.StateConsumersLink = rel.Links.Related
	}
	if rel := res.Relationships["agent-pool"]; rel.One() != nil {
		ws.HasAgentPool = true
	}
	return ws
}

// FindProject resolves a project by name. A missing project is reported as a
// negative probe, not a failure.
func (c *Client) FindProject(ctx context.Context, org, name string) (*Project, error) {
	var doc client.CollectionDocument[projectAttributes]
	params := map[string]string{"filter[names]": name}
	err := c.exec.Execute(ctx, "find project "+name, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route(ctx, "organizations/"+org+"/projects"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, &client.NotFoundError{Resource: fmt.Sprintf("project %q in organization %q", name, org)}
	}
	return &Project{ID: doc.Data[0].ID, Name: doc.Data[0].Attributes.Name}, nil
}

func (c *Client) ListWorkspaceVariables(ctx context.Context, org, workspaceName string) ([]Variable, error) {
	params := map[string]string{
		"filter[workspace][name]":    workspaceName,
		"filter[organization][name]": org,
	}
	var doc client.CollectionDocument[variableAttributes]
	err := c.exec.Execute(ctx, "list variables of "+workspaceName, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route(ctx, "vars"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	return variablesFromResources(doc.Data), nil
}

func variablesFromResources(resources []client.Resource[variableAttributes]) []Variable {
	vars := make([]Variable, 0, len(resources))
	for _, res := range resources {
		vars = append(vars, Variable{
			ID:          res.ID,
			Key:         res.Attributes.Key,
			Value:       res.Attributes.Value,
			Category:    res.Attributes.Category,
			HCL:         res.Attributes.HCL,
			Sensitive:   res.Attributes.Sensitive,
			Description: res.Attributes.Description,
		})
	}
	return vars
}

// ListRuns returns the workspace's most recent runs, newest first.
func (c *Client) ListRuns(ctx context.Context, workspaceID string, limit int) ([]Run, error) {
	params := map[string]string{"page[size]": strconv.Itoa(limit)}
	var doc client.CollectionDocument[runAttributes]
	err := c.exec.Execute(ctx, "list runs of "+workspaceID, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route(ctx, "workspaces/"+workspaceID+"/runs"), params, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	return runsFromResources(doc.Data), nil
}

// ListOrganizationRuns returns one page of an organization's finished runs.
func (c *Client) ListOrganizationRuns(ctx context.Context, org string, page int) ([]Run, int, error) {
	params := map[string]string{
		"filter[status_group]": "final",
		"page[size]":           strconv.Itoa(pageSize),
		"page[number]":         strconv.Itoa(page),
	}
	var doc client.CollectionDocument[runAttributes]
	err := c.exec.Execute(ctx, fmt.Sprintf("list runs of %s page %d", org, page), func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route(ctx, "organizations/"+org+"/runs"), params, nil, &doc)
	})
	if err != nil {
		return nil, 0, err
	}
	return runsFromResources(doc.Data), nextPage(doc.Meta), nil
}

func runsFromResources(resources []client.Resource[runAttributes]) []Run {
	runs := make([]Run, 0, len(resources))
	for _, res := range resources {
		runs = append(runs, Run{ID: res.ID, Status: res.Attributes.Status, CreatedAt: res.Attributes.CreatedAt})
	}
	return runs
}

// RunPlan fetches the machine-readable plan of a run. The endpoint is plain
// JSON, not a JSON:API document.
func (c *Client) RunPlan(ctx context.Context, runID string) (*Plan, error) {
	var plan Plan
	err := c.exec.Execute(ctx, "get plan of run "+runID, func(ctx context.Context) error {
		return c.send(ctx, "GET", c.route(ctx, "runs/"+runID+"/plan/json-output"), nil, nil, &plan)
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// StateVersionFromLink follows a current-state-version relationship link.
func (c *Client) StateVersionFromLink(ctx context.Context, link string) (*StateVersion, error) {
	var doc client.Document[stateVersionAttributes]
	err := c.exec.Execute(ctx, "get state version", func(ctx context.Context) error {
		return c.send(ctx, "GET", c.absolute(link), nil, nil, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &StateVersion{
		ID:                     doc.Data.ID,
		Serial:                 doc.Data.Attributes.Serial,
		HostedStateDownloadURL: doc.Data.Attributes.HostedStateDownloadURL,
	}, nil
}

// DownloadState fetches the raw state blob from its hosted URL.
func (c *Client) DownloadState(ctx context.Context, url string) ([]byte, error) {
	var raw []byte
	err := c.exec.Execute(ctx, "download state", func(ctx context.Context) error {
		resp, err := c.http.R(ctx).Do("GET", url)
		if err != nil {
			return &client.TransientError{Err: err}
		}
		if err := client.ClassifyResponse("GET", url, resp); err != nil {
			return err
		}
		body, err := resp.AsString()
		if err != nil {
			return fmt.Errorf("reading state blob: %w", err)
		}
		raw = []byte(body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// ListStateConsumers walks the full consumer listing behind a
// remote-state-consumers relationship link.
func (c *Client) ListStateConsumers(ctx context.Context, link string) ([]string, error) {
	var ids []string
	page := 1
	for {
		params := map[string]string{
			"page[size]":   strconv.Itoa(pageSize),
			"page[number]": strconv.Itoa(page),
		}
		var doc client.CollectionDocument[struct{}]
		err := c.exec.Execute(ctx, fmt.Sprintf("list state consumers page %d", page), func(ctx context.Context) error {
			return c.send(ctx, "GET", c.absolute(link), params, nil, &doc)
		})
		if err != nil {
			return nil, err
		}
		for _, res := range doc.Data {
			ids = append(ids, res.ID)
		}
		page = nextPage(doc.Meta)
		if page == 0 {
			return ids, nil
		}
	}
}

// ListVariableSets returns every variable set of the organization.
func (c *Client) ListVariableSets(ctx context.Context, org string) ([]VariableSet, error) {
	var sets []VariableSet
	page := 1
	for {
		params := map[string]string{
			"page[size]":   strconv.Itoa(pageSize),
			"page[number]": strconv.Itoa(page),
		}
		var doc client.CollectionDocument[variableSetAttributes]
		err := c.exec.Execute(ctx, fmt.Sprintf("list variable sets page %d", page), func(ctx context.Context) error {
			return c.send(ctx, "GET", c.route(ctx, "organizations/"+org+"/varsets"), params, nil, &doc)
		})
		if err != nil {
			return nil, err
		}
		for _, res := range doc.Data {
			sets = append(sets, VariableSet{ID: res.ID, Name: res.Attributes.Name, Global: res.Attributes.Global})
		}
		page = nextPage(doc.Meta)
		if page == 0 {
			return sets, nil
		}
	}
}

// ListVariableSetVariables returns every variable of a variable set.
func (c *Client) ListVariableSetVariables(ctx context.Context, varsetID string) ([]Variable, error) {
	var vars []Variable
	page := 1
	for {
		params := map[string]string{
			"page[size]":   strconv.Itoa(pageSize),
			"page[number]": strconv.Itoa(page),
		}
		var doc client.CollectionDocument[variableAttributes]
		err := c.exec.Execute(ctx, fmt.Sprintf("list variable set vars page %d", page), func(ctx context.Context) error {
			return c.send(ctx, "GET", c.route(ctx, "varsets/"+varsetID+"/relationships/vars"), params, nil, &doc)
		})
		if err != nil {
			return nil, err
		}
		vars = append(vars, variablesFromResources(doc.Data)...)
		page = nextPage(doc.Meta)
		if page == 0 {
			return vars, nil
		}
	}
}

// LockWorkspace locks the source workspace with an explanatory reason.
func (c *Client) LockWorkspace(ctx context.Context, workspaceID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.exec.Execute(ctx, "lock workspace "+workspaceID, func(ctx context.Context) error {
		return c.send(ctx, "POST", c.route(ctx, "workspaces/"+workspaceID+"/actions/lock"), nil, body, nil)
	})
}

func nextPage(meta *client.Meta) int {
	if meta == nil {
		return 0
	}
	return meta.Pagination.Next()
}
