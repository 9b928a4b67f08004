package desk

import (
	"context"
	"fmt"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// FetchDashboard loads every dashboard panel for period (the current
// month when empty) and stores the result. The reporting periods are
// optional; a failure there leaves Periods empty.
func (d *Desk) FetchDashboard(ctx context.Context, period string) (domain.Dashboard, error) {
	if period == "" {
		period = domain.DefaultPeriod
	}
	var (
		out domain.Dashboard
		err error
	)
	if out.Stats, err = d.api.GetDashboardStats(ctx); err != nil {
		return out, fmt.Errorf("dashboard stats: %w", err)
	}
	if out.Activities, err = d.api.ListActivities(ctx); err != nil {
		return out, fmt.Errorf("dashboard activities: %w", err)
	}
	if out.Performance, err = d.api.GetPerformance(ctx); err != nil {
		return out, fmt.Errorf("dashboard performance: %w", err)
	}
	if out.Queue, err = d.api.GetQueueMetrics(ctx); err != nil {
		return out, fmt.Errorf("dashboard queue: %w", err)
	}
	if out.Agents, err = d.api.GetAgentPerformance(ctx, period); err != nil {
		return out, fmt.Errorf("dashboard agents: %w", err)
	}
	if out.Periods, err = d.api.ListReportingPeriods(ctx); err != nil {
		d.log.Debug().Err(err).Msg("reporting periods unavailable")
		out.Periods = nil
	}
	out.Period = period
	out.FetchedAt = domain.NewTimestamp(d.now())
	d.store.ApplyDashboard(out)
	return out, nil
}
