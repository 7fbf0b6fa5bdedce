package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/hcl"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

// translateCategory maps the source's variable category onto the target's.
// Only the environment category is renamed; everything else passes through.
func translateCategory(category string) string {
	if category == "env" {
		return "shell"
	}
	return category
}

// recoverable reports whether a sensitive variable's value can be read back
// from a plan: the plan exposes root-module inputs, so only terraform-typed
// variables and the TF_VAR_ injection convention qualify.
func recoverable(v tfc.Variable) bool {
	return v.Category == "terraform" || strings.HasPrefix(v.Key, "TF_VAR_")
}

// migrateVariables copies the workspace's variables to the target. The
// source API withholds sensitive values, so those are deferred and recovered
// from the latest run's plan where possible; the rest are reported as gaps
// needing manual entry.
func (m *Migrator) migrateVariables(ctx context.Context, src tfc.Workspace, wsRecord *hcl.Record) error {
	existing, err := m.target.ListVariables(ctx, scalr.VariableFilter{WorkspaceID: wsRecord.ExternalID})
	if err != nil {
		return fmt.Errorf("listing target variables of %q: %w", src.Name, err)
	}
	existingKeys := lo.SliceToMap(existing, func(v scalr.Variable) (string, bool) { return v.Key, true })

	vars, err := m.source.ListWorkspaceVariables(ctx, m.opts.Organization, src.Name)
	if err != nil {
		return fmt.Errorf("listing source variables of %q: %w", src.Name, err)
	}

	deferred := map[string]tfc.Variable{}
	for _, v := range vars {
		if m.skippedVariable(v.Key) {
			logger.Infof("skipping variable %q as requested", v.Key)
			continue
		}
		v.Category = translateCategory(v.Category)

		if v.Sensitive {
			if recoverable(v) {
				logger.Warnf("sensitive variable %q cannot be read from the API, will try the latest plan", v.Key)
				deferred[v.Key] = v
			} else {
				logger.Warnf("sensitive %s variable %q requires manual entry on the target", v.Category, v.Key)
				m.unrecoveredVariables[src.Name] = append(m.unrecoveredVariables[src.Name], v.Key)
			}
			continue
		}

		if existingKeys[v.Key] {
			logger.Infof("variable %q already exists", v.Key)
			m.variableRecord(v, "", wsRecord)
			continue
		}

		created, err := m.target.CreateVariable(ctx, scalr.VariableAttributes{
			Key:         v.Key,
			Value:       v.Value,
			Category:    v.Category,
			Sensitive:   false,
			Description: v.Description,
			HCL:         v.HCL,
		}, scalr.VariableScope{WorkspaceID: wsRecord.ExternalID})
		if err != nil {
			if !client.IsDuplicate(err) {
				return fmt.Errorf("creating variable %q: %w", v.Key, err)
			}
			logger.Infof("variable %q already exists", v.Key)
			m.variableRecord(v, "", wsRecord)
			continue
		}
		m.variableRecord(v, created.ID, wsRecord)
	}

	if len(deferred) > 0 {
		m.recoverSensitiveVariables(ctx, src, wsRecord, deferred)
	}
	return nil
}

// recoverSensitiveVariables reads the latest run's machine-readable plan and
// recreates the deferred variables whose apply-time values it declares.
// Anything the plan cannot supply is reported, never fabricated.
func (m *Migrator) recoverSensitiveVariables(ctx context.Context, src tfc.Workspace, wsRecord *hcl.Record, deferred map[string]tfc.Variable) {
	unrecovered := func(key string) {
		m.unrecoveredVariables[src.Name] = append(m.unrecoveredVariables[src.Name], key)
	}

	runs, err := m.source.ListRuns(ctx, src.ID, 1)
	if err != nil || len(runs) == 0 {
		logger.Infof("no runs found for %q, sensitive variables cannot be recovered", src.Name)
		for key := range deferred {
			unrecovered(key)
		}
		return
	}

	plan, err := m.source.RunPlan(ctx, runs[0].ID)
	if err != nil {
		logger.Infof("plan file of %q is unavailable, sensitive variables cannot be recovered", src.Name)
		for key := range deferred {
			unrecovered(key)
		}
		return
	}

	logger.Infof("recovering sensitive variables of %q from the latest plan", src.Name)
	for key, v := range deferred {
		declared, ok := plan.Configuration.RootModule.Variables[key]
		planValue, hasValue := plan.Variables[key]
		if !ok || !declared.Sensitive || !hasValue {
			unrecovered(key)
			continue
		}

		created, err := m.target.CreateVariable(ctx, scalr.VariableAttributes{
			Key:         key,
			Value:       planValue.StringValue(),
			Category:    "terraform",
			Sensitive:   true,
			Description: v.Description,
			HCL:         v.HCL,
		}, scalr.VariableScope{WorkspaceID: wsRecord.ExternalID})
		if err != nil {
			if client.IsDuplicate(err) {
				logger.Infof("variable %q already exists", key)
				continue
			}
			logger.Errorf("creating sensitive variable %q: %v", key, err)
			unrecovered(key)
			continue
		}
		logger.Infof("created sensitive variable %q from the plan file", key)

		recovered := v
		recovered.Value = planValue.StringValue()
		recovered.Category = "terraform"
		m.variableRecord(recovered, created.ID, wsRecord)
	}
}

// variableRecord mirrors one migrated variable into the artifact. HCL-typed
// values are expressions and render verbatim.
func (m *Migrator) variableRecord(v tfc.Variable, targetID string, wsRecord *hcl.Record) {
	rec := hcl.NewResource("scalr_variable", v.Key).
		Set("key", hcl.String(v.Key))
	if v.Description != "" {
		rec.Set("description", hcl.String(v.Description))
	}
	if v.HCL {
		rec.Set("value", hcl.Raw(v.Value))
	} else {
		rec.Set("value", hcl.String(v.Value))
	}
	rec.Set("category", hcl.String(v.Category)).
		Set("workspace_id", hcl.Ref(wsRecord)).
		Set("hcl", hcl.Bool(v.HCL))
	rec = m.artifacts.Add(rec)
	if targetID != "" {
		rec.ExternalID = targetID
	}
}

func (m *Migrator) skippedVariable(key string) bool {
	for _, g := range m.skipVars {
		if g.Match(key) {
			return true
		}
	}
	return false
}
