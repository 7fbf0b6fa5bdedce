package migrate

import (
	"context"
	"fmt"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"

	"scalr-migrate/internal/client"
	"scalr-migrate/internal/scalr"
	"scalr-migrate/internal/tfc"
)

// SensitivePlaceholder is written in place of sensitive variable-set values,
// which the source API never returns. Operators replace it by hand.
const SensitivePlaceholder = "PLACEHOLDER_FILL_ME_IN"

// SharedVariablesOptions configures a variable-set migration.
type SharedVariablesOptions struct {
	Organization string

	// VarsetNames selects the variable sets to copy. Global sets are always
	// included.
	VarsetNames []string

	// DryRun reports what would be created without touching the target.
	DryRun bool
}

// SharedVariablesSummary reports what a variable-set migration did.
type SharedVariablesSummary struct {
	Created int
	Skipped int
	Failed  int

	// Placeholders lists the sensitive keys created with a placeholder
	// value that must be filled in manually.
	Placeholders []string
}

// SharedVariables copies the organization's variable-set variables into
// account-scoped variables on the target, so every migrated workspace can
// see them. Existing keys are left untouched.
func SharedVariables(ctx context.Context, source Source, target Target, opts SharedVariablesOptions) (*SharedVariablesSummary, error) {
	accounts, err := target.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts) != 1 {
		return nil, fmt.Errorf("the token is associated with %d accounts, expected exactly one", len(accounts))
	}
	accountID := accounts[0].ID

	existing, err := target.ListVariables(ctx, scalr.VariableFilter{
		AccountID:       accountID,
		EnvironmentNull: true,
		WorkspaceNull:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing account variables: %w", err)
	}
	existingKeys := lo.SliceToMap(existing, func(v scalr.Variable) (string, bool) { return v.Key, true })
	logger.Infof("found %d existing account-level variables", len(existingKeys))

	varsets, err := source.ListVariableSets(ctx, opts.Organization)
	if err != nil {
		return nil, fmt.Errorf("listing variable sets: %w", err)
	}

	wanted := lo.SliceToMap(opts.VarsetNames, func(name string) (string, bool) { return name, true })
	var vars []tfc.Variable
	for _, vs := range varsets {
		if !vs.Global && !wanted[vs.Name] {
			continue
		}
		logger.Infof("loading variable set %q", vs.Name)
		setVars, err := source.ListVariableSetVariables(ctx, vs.ID)
		if err != nil {
			return nil, fmt.Errorf("listing variables of set %q: %w", vs.Name, err)
		}
		vars = append(vars, setVars...)
	}
	logger.Infof("%d variable(s) to migrate", len(vars))

	if opts.DryRun {
		logger.Infof("dry run, nothing will be created")
	}

	summary := &SharedVariablesSummary{}
	for _, v := range vars {
		if existingKeys[v.Key] {
			logger.Infof("skipping %q, already exists", v.Key)
			summary.Skipped++
			continue
		}

		value := v.Value
		if v.Sensitive {
			value = SensitivePlaceholder
			summary.Placeholders = append(summary.Placeholders, v.Key)
		}
		category := translateCategory(v.Category)

		if opts.DryRun {
			logger.Infof("would create %q (%s, sensitive=%t)", v.Key, category, v.Sensitive)
			summary.Created++
			continue
		}

		description := v.Description
		if description == "" {
			description = "Migrated from a TFC variable set"
		}
		_, err := target.CreateVariable(ctx, scalr.VariableAttributes{
			Key:         v.Key,
			Value:       value,
			Category:    category,
			Sensitive:   v.Sensitive,
			Description: description,
			HCL:         v.HCL,
		}, scalr.VariableScope{AccountID: accountID})
		if err != nil {
			if client.IsDuplicate(err) {
				logger.Infof("skipping %q, already exists", v.Key)
				summary.Skipped++
				continue
			}
			logger.Errorf("creating %q: %v", v.Key, err)
			summary.Failed++
			continue
		}
		existingKeys[v.Key] = true
		summary.Created++
	}

	if len(summary.Placeholders) > 0 && !opts.DryRun {
		logger.Warnf("replace the %q value of these variables manually: %v", SensitivePlaceholder, summary.Placeholders)
	}
	return summary, nil
}
