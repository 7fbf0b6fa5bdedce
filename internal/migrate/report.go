package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/flanksource/commons/logger"

	"scalr-migrate/internal/tfc"
)

// activitySource is the slice of the source gateway the report needs; the
// run report works across every organization the token can see, not just the
// one being migrated.
type activitySource interface {
	ListOrganizations(ctx context.Context, page int) ([]tfc.Organization, int, error)
	ListOrganizationRuns(ctx context.Context, org string, page int) ([]tfc.Run, int, error)
}

var _ activitySource = (*tfc.Client)(nil)

// OrganizationActivity is the finished-run count of one organization.
type OrganizationActivity struct {
	Name string
	Runs int
}

// ActivityReport sizes a migration: finished runs per organization, total
// across the account.
type ActivityReport struct {
	Organizations []OrganizationActivity
	TotalRuns     int
}

// RunActivity counts finished runs per organization over the trailing
// period. A zero period counts everything. Runs list newest first, so the
// walk stops at the first run older than the cutoff.
func RunActivity(ctx context.Context, source activitySource, period time.Duration) (*ActivityReport, error) {
	var cutoff time.Time
	if period > 0 {
		cutoff = time.Now().Add(-period)
		logger.Infof("checking runs since %s", cutoff.Format(time.RFC3339))
	}

	report := &ActivityReport{}
	orgPage := 1
	for orgPage != 0 {
		orgs, next, err := source.ListOrganizations(ctx, orgPage)
		if err != nil {
			return nil, fmt.Errorf("listing organizations: %w", err)
		}

		for _, org := range orgs {
			count, err := countRuns(ctx, source, org.Name, cutoff)
			if err != nil {
				return nil, err
			}
			report.Organizations = append(report.Organizations, OrganizationActivity{Name: org.Name, Runs: count})
			report.TotalRuns += count
		}
		orgPage = next
	}
	return report, nil
}

func countRuns(ctx context.Context, source activitySource, org string, cutoff time.Time) (int, error) {
	count := 0
	page := 1
	for page != 0 {
		runs, next, err := source.ListOrganizationRuns(ctx, org, page)
		if err != nil {
			return 0, fmt.Errorf("listing runs of %q: %w", org, err)
		}
		for _, run := range runs {
			if !cutoff.IsZero() && run.CreatedAt.Before(cutoff) {
				return count, nil
			}
			count++
		}
		page = next
	}
	return count, nil
}
