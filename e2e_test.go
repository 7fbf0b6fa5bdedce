package main

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/hcl"
	"scalr-migrate/internal/migrate"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

// The end-to-end test runs the real migrator against in-process fakes of
// both HTTP APIs. The source serves two workspaces across two pages:
// "network" carries state, variables and a remote state consumer, "app" is
// plain. The whole pass runs twice from fresh clients and a fresh artifact
// manager to prove a rerun converges instead of duplicating anything.

const (
	sourceToken = "tfc-token"
	targetToken = "scalr-token"
)

var networkState = []byte(`{"version":4,"terraform_version":"1.9.3","serial":4,"lineage":"lin-1","outputs":{},"resources":[]}`)

type sourceVariable struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	HCL         bool   `json:"hcl"`
	Sensitive   bool   `json:"sensitive"`
	Description string `json:"description"`
}

type named struct {
	Name string `json:"name"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"errors": []map[string]string{{"status": "404", "title": "not found"}},
	})
}

func intp(v int) *int { return &v }

// sourceAPI fakes the read side. Locking is its only mutable state.
type sourceAPI struct {
	srv *httptest.Server

	mu     sync.Mutex
	locked map[string]bool
}

func (s *sourceAPI) isLocked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked[id]
}

func newSourceAPI(t *testing.T) *sourceAPI {
	t.Helper()
	s := &sourceAPI{locked: map[string]bool{}}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /.well-known/terraform.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"tfe.v2": "/api/v2/"})
	})

	mux.HandleFunc("GET /api/v2/organizations/acme", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.Document[tfc.OrganizationAttributes]{
			Data: client.Resource[tfc.OrganizationAttributes]{
				ID:         "org-1",
				Type:       "organizations",
				Attributes: tfc.OrganizationAttributes{Name: "acme"},
			},
		})
	})

	mux.HandleFunc("GET /api/v2/organizations/acme/workspaces", func(w http.ResponseWriter, r *http.Request) {
		network := client.Resource[tfc.WorkspaceAttributes]{
			ID:   "ws-src-1",
			Type: "workspaces",
			Attributes: tfc.WorkspaceAttributes{
				Name:               "network",
				Operations:         true,
				TerraformVersion:   "1.9.0",
				SpeculativeEnabled: true,
				Locked:             s.isLocked("ws-src-1"),
			},
			Relationships: map[string]*client.Relationship{
				"current-state-version": {Links: &client.RelationshipLinks{
					Related: "/api/v2/workspaces/ws-src-1/current-state-version",
				}},
				"remote-state-consumers": {Links: &client.RelationshipLinks{
					Related: "/api/v2/workspaces/ws-src-1/relationships/remote-state-consumers",
				}},
			},
		}
		app := client.Resource[tfc.WorkspaceAttributes]{
			ID:   "ws-src-2",
			Type: "workspaces",
			Attributes: tfc.WorkspaceAttributes{
				Name:              "app",
				Operations:        true,
				TerraformVersion:  "1.3.5",
				GlobalRemoteState: true,
				Locked:            s.isLocked("ws-src-2"),
			},
		}

		page := r.URL.Query().Get("page[number]")
		doc := client.CollectionDocument[tfc.WorkspaceAttributes]{Meta: &client.Meta{Pagination: &client.Pagination{TotalPages: 2}}}
		if page == "2" {
			doc.Data = []client.Resource[tfc.WorkspaceAttributes]{app}
			doc.Meta.Pagination.CurrentPage = 2
		} else {
			doc.Data = []client.Resource[tfc.WorkspaceAttributes]{network}
			doc.Meta.Pagination.CurrentPage = 1
			doc.Meta.Pagination.NextPage = intp(2)
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("GET /api/v2/vars", func(w http.ResponseWriter, r *http.Request) {
		doc := client.CollectionDocument[sourceVariable]{Data: []client.Resource[sourceVariable]{}}
		if r.URL.Query().Get("filter[workspace][name]") == "network" {
			doc.Data = []client.Resource[sourceVariable]{
				{ID: "var-1", Type: "vars", Attributes: sourceVariable{Key: "region", Value: "us-east-1", Category: "terraform"}},
				{ID: "var-2", Type: "vars", Attributes: sourceVariable{Key: "AWS_REGION", Value: "us-east-1", Category: "env"}},
				{ID: "var-3", Type: "vars", Attributes: sourceVariable{Key: "db_password", Category: "terraform", Sensitive: true}},
			}
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("GET /api/v2/workspaces/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		type runAttrs struct {
			Status    string    `json:"status"`
			CreatedAt time.Time `json:"created-at"`
		}
		doc := client.CollectionDocument[runAttrs]{Data: []client.Resource[runAttrs]{}}
		if r.PathValue("id") == "ws-src-1" {
			doc.Data = []client.Resource[runAttrs]{
				{ID: "run-1", Type: "runs", Attributes: runAttrs{Status: "applied", CreatedAt: time.Now()}},
			}
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("GET /api/v2/runs/run-1/plan/json-output", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"variables": {"db_password": {"value": "hunter2"}},
			"configuration": {"root_module": {"variables": {"db_password": {"sensitive": true}}}}
		}`)
	})

	mux.HandleFunc("GET /api/v2/workspaces/ws-src-1/current-state-version", func(w http.ResponseWriter, r *http.Request) {
		type svAttrs struct {
			Serial                 int64  `json:"serial"`
			HostedStateDownloadURL string `json:"hosted-state-download-url"`
		}
		writeJSON(w, http.StatusOK, client.Document[svAttrs]{
			Data: client.Resource[svAttrs]{
				ID:         "sv-src-1",
				Type:       "state-versions",
				Attributes: svAttrs{Serial: 4, HostedStateDownloadURL: s.srv.URL + "/state/ws-src-1"},
			},
		})
	})

	mux.HandleFunc("GET /state/ws-src-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(networkState)
	})

	mux.HandleFunc("GET /api/v2/workspaces/ws-src-1/relationships/remote-state-consumers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.CollectionDocument[struct{}]{
			Data: []client.Resource[struct{}]{{ID: "ws-src-2", Type: "workspaces"}},
			Meta: &client.Meta{Pagination: &client.Pagination{CurrentPage: 1, TotalPages: 1}},
		})
	})

	mux.HandleFunc("POST /api/v2/workspaces/{id}/actions/lock", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Contains(t, body.Reason, `"acme"`)

		s.mu.Lock()
		s.locked[r.PathValue("id")] = true
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected source request: %s %s", r.Method, r.URL)
		writeNotFound(w)
	})

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+sourceToken, r.Header.Get("Authorization"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

type targetWorkspace struct {
	ID     string
	EnvID  string
	Attrs  scalr.WorkspaceAttributes
	Serial *int64
}

type targetVariable struct {
	ID          string
	AccountID   string
	WorkspaceID string
	Attrs       scalr.VariableAttributes
}

// targetAPI fakes the write side with an in-memory object store.
type targetAPI struct {
	srv *httptest.Server

	mu         sync.Mutex
	seq        int
	envs       map[string]string
	workspaces []*targetWorkspace
	variables  []*targetVariable
	consumers  map[string][]string
}

func (a *targetAPI) nextID(prefix string) string {
	a.seq++
	return prefix + "-" + strconv.Itoa(a.seq)
}

func (a *targetAPI) workspaceByID(id string) *targetWorkspace {
	for _, ws := range a.workspaces {
		if ws.ID == id {
			return ws
		}
	}
	return nil
}

func (a *targetAPI) workspaceByName(env, name string) *targetWorkspace {
	a.mu.Lock()
	defer a.mu.Unlock()
	envID := a.envs[env]
	for _, ws := range a.workspaces {
		if ws.EnvID == envID && ws.Attrs.Name == name {
			return ws
		}
	}
	return nil
}

func (a *targetAPI) variableByKey(workspaceID, key string) *targetVariable {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range a.variables {
		if v.WorkspaceID == workspaceID && v.Attrs.Key == key {
			return v
		}
	}
	return nil
}

func (a *targetAPI) counts() (envs, workspaces, variables int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.envs), len(a.workspaces), len(a.variables)
}

func newTargetAPI(t *testing.T) *targetAPI {
	t.Helper()
	a := &targetAPI{
		envs:      map[string]string{},
		consumers: map[string][]string{},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/iacp/v3/accounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.CollectionDocument[named]{
			Data: []client.Resource[named]{{ID: "acc-1", Type: "accounts", Attributes: named{Name: "acme"}}},
		})
	})

	mux.HandleFunc("GET /api/iacp/v3/environments", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("filter[name]")
		doc := client.CollectionDocument[named]{Data: []client.Resource[named]{}}
		a.mu.Lock()
		if id, ok := a.envs[name]; ok {
			doc.Data = append(doc.Data, client.Resource[named]{ID: id, Type: "environments", Attributes: named{Name: name}})
		}
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("POST /api/iacp/v3/environments", func(w http.ResponseWriter, r *http.Request) {
		var body client.Document[named]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acc-1", body.Data.Relationships["account"].One().ID)

		a.mu.Lock()
		id := a.nextID("env")
		a.envs[body.Data.Attributes.Name] = id
		a.mu.Unlock()
		writeJSON(w, http.StatusCreated, client.Document[named]{
			Data: client.Resource[named]{ID: id, Type: "environments", Attributes: body.Data.Attributes},
		})
	})

	mux.HandleFunc("GET /api/iacp/v3/workspaces", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		envID := r.URL.Query().Get("filter[environment]")
		doc := client.CollectionDocument[named]{Data: []client.Resource[named]{}}
		a.mu.Lock()
		for _, ws := range a.workspaces {
			if ws.EnvID == envID && strings.Contains(ws.Attrs.Name, query) {
				doc.Data = append(doc.Data, client.Resource[named]{ID: ws.ID, Type: "workspaces", Attributes: named{Name: ws.Attrs.Name}})
			}
		}
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("POST /api/iacp/v3/workspaces", func(w http.ResponseWriter, r *http.Request) {
		var body client.Document[scalr.WorkspaceAttributes]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		a.mu.Lock()
		ws := &targetWorkspace{
			ID:    a.nextID("ws"),
			EnvID: body.Data.Relationships["environment"].One().ID,
			Attrs: body.Data.Attributes,
		}
		a.workspaces = append(a.workspaces, ws)
		a.mu.Unlock()
		writeJSON(w, http.StatusCreated, client.Document[named]{
			Data: client.Resource[named]{ID: ws.ID, Type: "workspaces", Attributes: named{Name: ws.Attrs.Name}},
		})
	})

	mux.HandleFunc("GET /api/iacp/v3/workspaces/{id}/current-state-version", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		ws := a.workspaceByID(r.PathValue("id"))
		a.mu.Unlock()
		if ws == nil || ws.Serial == nil {
			writeNotFound(w)
			return
		}
		type svAttrs struct {
			Serial int64 `json:"serial"`
		}
		writeJSON(w, http.StatusOK, client.Document[svAttrs]{
			Data: client.Resource[svAttrs]{ID: "sv-1", Type: "state-versions", Attributes: svAttrs{Serial: *ws.Serial}},
		})
	})

	mux.HandleFunc("POST /api/iacp/v3/state-versions", func(w http.ResponseWriter, r *http.Request) {
		var body client.Document[scalr.StateVersionAttributes]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		payload, err := base64.StdEncoding.DecodeString(body.Data.Attributes.State)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%x", md5.Sum(payload)), body.Data.Attributes.MD5)

		var header struct {
			TerraformVersion string `json:"terraform_version"`
		}
		require.NoError(t, json.Unmarshal(payload, &header))
		assert.Equal(t, migrate.MaxTerraformVersion, header.TerraformVersion)

		a.mu.Lock()
		ws := a.workspaceByID(body.Data.Relationships["workspace"].One().ID)
		if ws != nil {
			serial := body.Data.Attributes.Serial
			ws.Serial = &serial
		}
		a.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{})
	})

	mux.HandleFunc("GET /api/iacp/v3/vars", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		doc := client.CollectionDocument[scalr.VariableAttributes]{Data: []client.Resource[scalr.VariableAttributes]{}}
		a.mu.Lock()
		for _, v := range a.variables {
			if key := q.Get("filter[key]"); key != "" && v.Attrs.Key != key {
				continue
			}
			if acc := q.Get("filter[account]"); acc != "" && v.AccountID != acc {
				continue
			}
			switch ws := q.Get("filter[workspace]"); ws {
			case "":
			case "null":
				if v.WorkspaceID != "" {
					continue
				}
			default:
				if v.WorkspaceID != ws {
					continue
				}
			}
			doc.Data = append(doc.Data, client.Resource[scalr.VariableAttributes]{ID: v.ID, Type: "vars", Attributes: v.Attrs})
		}
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("POST /api/iacp/v3/vars", func(w http.ResponseWriter, r *http.Request) {
		var body client.Document[scalr.VariableAttributes]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		v := &targetVariable{Attrs: body.Data.Attributes}
		if rel := body.Data.Relationships["workspace"].One(); rel != nil {
			v.WorkspaceID = rel.ID
		}
		if rel := body.Data.Relationships["account"].One(); rel != nil {
			v.AccountID = rel.ID
		}

		a.mu.Lock()
		defer a.mu.Unlock()
		for _, existing := range a.variables {
			if existing.Attrs.Key == v.Attrs.Key && existing.WorkspaceID == v.WorkspaceID && existing.AccountID == v.AccountID {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"errors": []map[string]string{{
						"status": "422",
						"detail": fmt.Sprintf("Variable with key '%s' already exists", v.Attrs.Key),
					}},
				})
				return
			}
		}
		v.ID = a.nextID("var")
		a.variables = append(a.variables, v)
		writeJSON(w, http.StatusCreated, client.Document[scalr.VariableAttributes]{
			Data: client.Resource[scalr.VariableAttributes]{ID: v.ID, Type: "vars", Attributes: v.Attrs},
		})
	})

	mux.HandleFunc("PATCH /api/iacp/v3/workspaces/{id}/relationships/remote-state-consumers", func(w http.ResponseWriter, r *http.Request) {
		var body client.ManyRelationship
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		ids := make([]string, 0, len(body.Data))
		for _, ident := range body.Data {
			ids = append(ids, ident.ID)
		}
		a.mu.Lock()
		a.consumers[r.PathValue("id")] = ids
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected target request: %s %s", r.Method, r.URL)
		writeNotFound(w)
	})

	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+targetToken, r.Header.Get("Authorization"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func TestE2E_MigrationConvergesAcrossRuns(t *testing.T) {
	source := newSourceAPI(t)
	target := newTargetAPI(t)

	artifactDir := t.TempDir()
	credsPath := filepath.Join(t.TempDir(), "credentials.tfrc.json")

	opts := migrate.Options{
		ScalrHostname:       target.srv.URL,
		ScalrToken:          targetToken,
		TFCHostname:         source.srv.URL,
		TFCToken:            sourceToken,
		Organization:        "acme",
		Environment:         "acme",
		ManagementEnv:       "scalr-admin",
		ManagementWorkspace: "acme",
		Lock:                true,
		CredentialsPath:     credsPath,
	}

	exec := client.NewExecutor()
	exec.RetryDelay = time.Millisecond

	runOnce := func() *migrate.Summary {
		t.Helper()
		artifacts, err := hcl.NewManager(artifactDir)
		require.NoError(t, err)
		m, err := migrate.New(
			tfc.NewClient(source.srv.URL, sourceToken, exec),
			scalr.NewClient(target.srv.URL, targetToken, exec),
			artifacts, opts,
		)
		require.NoError(t, err)
		summary, err := m.Run(context.Background())
		require.NoError(t, err)
		return summary
	}

	summary := runOnce()
	require.Equal(t, []string{"network", "app"}, summary.Migrated)
	assert.Empty(t, summary.Skipped)
	assert.Empty(t, summary.UnrecoveredVariables)

	// Environments and workspaces, the management pair included.
	management := target.workspaceByName("scalr-admin", "acme")
	require.NotNil(t, management)
	assert.Equal(t, migrate.MaxTerraformVersion, management.Attrs.TerraformVersion)

	network := target.workspaceByName("acme", "network")
	require.NotNil(t, network)
	assert.Equal(t, migrate.MaxTerraformVersion, network.Attrs.TerraformVersion, "version above the cap must be clamped")
	require.NotNil(t, network.Serial)
	assert.EqualValues(t, 4, *network.Serial)

	app := target.workspaceByName("acme", "app")
	require.NotNil(t, app)
	assert.Equal(t, "1.3.5", app.Attrs.TerraformVersion)
	assert.True(t, app.Attrs.RemoteStateSharing)
	assert.Nil(t, app.Serial)

	// Backend secrets land account-scoped, sensitive, in the shell category.
	for _, key := range []string{"SCALR_HOSTNAME", "SCALR_TOKEN", "TFE_HOSTNAME", "TFE_TOKEN"} {
		var found *targetVariable
		target.mu.Lock()
		for _, v := range target.variables {
			if v.AccountID == "acc-1" && v.Attrs.Key == key {
				found = v
			}
		}
		target.mu.Unlock()
		require.NotNil(t, found, key)
		assert.Equal(t, "shell", found.Attrs.Category)
		assert.True(t, found.Attrs.Sensitive)
	}

	// Workspace variables, the plan-recovered secret included.
	region := target.variableByKey(network.ID, "region")
	require.NotNil(t, region)
	assert.Equal(t, "terraform", region.Attrs.Category)
	assert.Equal(t, "us-east-1", region.Attrs.Value)

	awsRegion := target.variableByKey(network.ID, "AWS_REGION")
	require.NotNil(t, awsRegion)
	assert.Equal(t, "shell", awsRegion.Attrs.Category, "env variables translate to the shell category")

	password := target.variableByKey(network.ID, "db_password")
	require.NotNil(t, password)
	assert.True(t, password.Attrs.Sensitive)
	assert.Equal(t, "hunter2", password.Attrs.Value, "sensitive value comes from the latest plan")

	// State sharing resolves after the walk, in target ids.
	assert.Equal(t, []string{app.ID}, target.consumers[network.ID])

	// Sources are locked and the credentials file carries the target token.
	assert.True(t, source.isLocked("ws-src-1"))
	assert.True(t, source.isLocked("ws-src-2"))
	creds, err := os.ReadFile(credsPath)
	require.NoError(t, err)
	assert.Contains(t, string(creds), targetToken)

	// Generated configuration.
	mainTF, err := os.ReadFile(filepath.Join(artifactDir, "main.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(mainTF), `resource "scalr_environment" "acme"`)
	assert.Contains(t, string(mainTF), `resource "scalr_workspace" "network"`)
	assert.Contains(t, string(mainTF), `resource "scalr_workspace" "app"`)
	assert.Contains(t, string(mainTF), `resource "scalr_variable" "db_password"`)

	importsTF, err := os.ReadFile(filepath.Join(artifactDir, "imports.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(importsTF), network.ID)
	assert.Contains(t, string(importsTF), app.ID)

	backendTF, err := os.ReadFile(filepath.Join(artifactDir, "backend.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(backendTF), `"scalr-admin"`)
	assert.Contains(t, string(backendTF), `"acme"`)

	envCount, wsCount, varCount := target.counts()

	// Second pass: fresh clients, fresh artifact manager, same directory.
	summary = runOnce()
	require.Equal(t, []string{"network", "app"}, summary.Migrated)
	assert.Empty(t, summary.UnrecoveredVariables)

	envCount2, wsCount2, varCount2 := target.counts()
	assert.Equal(t, envCount, envCount2, "rerun must not create environments")
	assert.Equal(t, wsCount, wsCount2, "rerun must not create workspaces")
	assert.Equal(t, varCount, varCount2, "rerun must not create variables")

	require.NotNil(t, target.workspaceByName("acme", "network").Serial)
	assert.EqualValues(t, 4, *target.workspaceByName("acme", "network").Serial, "identical serial must not be republished")

	rerunMainTF, err := os.ReadFile(filepath.Join(artifactDir, "main.tf"))
	require.NoError(t, err)
	assert.Equal(t, string(mainTF), string(rerunMainTF), "rerun must leave the configuration untouched")
}
