package migrate

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/flanksource/commons/logger"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

// stateHeader is the subset of a raw state file the migration inspects.
type stateHeader struct {
	Serial           int64  `json:"serial"`
	Lineage          string `json:"lineage"`
	TerraformVersion string `json:"terraform_version"`
}

// migrateState copies the source workspace's current state version to the
// target. A workspace without state is a no-op, and a target already holding
// the same serial short-circuits, which is what keeps reruns from
// republishing.
func (m *Migrator) migrateState(ctx context.Context, src tfc.Workspace, targetWorkspaceID string) error {
	if src.CurrentStateLink == "" {
		logger.Warnf("workspace %q has no state yet", src.Name)
		return nil
	}

	stateVersion, err := m.source.StateVersionFromLink(ctx, src.CurrentStateLink)
	if err != nil {
		return fmt.Errorf("fetching state version of %q: %w", src.Name, err)
	}
	if stateVersion.HostedStateDownloadURL == "" {
		logger.Warnf("state of workspace %q has no download URL", src.Name)
		return nil
	}

	raw, err := m.source.DownloadState(ctx, stateVersion.HostedStateDownloadURL)
	if err != nil {
		return fmt.Errorf("downloading state of %q: %w", src.Name, err)
	}

	var header stateHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return fmt.Errorf("parsing state of %q: %w", src.Name, err)
	}

	current, err := m.target.CurrentStateVersion(ctx, targetWorkspaceID)
	if err != nil && !client.IsNotFound(err) {
		return fmt.Errorf("fetching current state of %q: %w", src.Name, err)
	}
	if current != nil && current.Serial == header.Serial {
		logger.Infof("state with serial %d is up-to-date", header.Serial)
		return nil
	}

	payload, err := clampStateVersion(raw, header.TerraformVersion)
	if err != nil {
		return fmt.Errorf("rewriting state of %q: %w", src.Name, err)
	}

	attrs := scalr.StateVersionAttributes{
		Serial:  header.Serial,
		MD5:     fmt.Sprintf("%x", md5.Sum(payload)),
		Lineage: header.Lineage,
		State:   base64.StdEncoding.EncodeToString(payload),
	}
	if err := m.target.CreateStateVersion(ctx, targetWorkspaceID, attrs); err != nil {
		return fmt.Errorf("publishing state of %q: %w", src.Name, err)
	}
	return nil
}

// clampStateVersion rewrites the state's embedded tool version under the same
// cap applied to workspaces, leaving every other field untouched.
func clampStateVersion(raw []byte, version string) ([]byte, error) {
	clamped := clampVersion(version, "state file")
	if clamped == version {
		return raw, nil
	}

	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	state["terraform_version"] = clamped
	return json.Marshal(state)
}
