package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/soyeahso/agentdesk/internal/domain"
)

func (c *Client) dashboardGet(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, request{method: http.MethodGet, path: "dashboard/" + path, query: query}, out)
}

// GetDashboardStats fetches the overview figures.
func (c *Client) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var out domain.DashboardStats
	err := c.dashboardGet(ctx, "stats", nil, &out)
	return out, err
}

// ListActivities fetches the recent activity feed.
func (c *Client) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	var out []domain.Activity
	err := c.dashboardGet(ctx, "activities", nil, &out)
	return out, err
}

// GetPerformance fetches the period-over-period comparison.
func (c *Client) GetPerformance(ctx context.Context) (domain.Performance, error) {
	var out domain.Performance
	err := c.dashboardGet(ctx, "performance", nil, &out)
	return out, err
}

// GetQueueMetrics fetches the waiting line figures.
func (c *Client) GetQueueMetrics(ctx context.Context) (domain.QueueMetrics, error) {
	var out domain.QueueMetrics
	err := c.dashboardGet(ctx, "queue", nil, &out)
	return out, err
}

// GetAgentPerformance fetches the per-agent table for period. The backend
// falls back to the current month for unknown periods.
func (c *Client) GetAgentPerformance(ctx context.Context, period string) (domain.AgentPerformance, error) {
	var q url.Values
	if period != "" {
		q = url.Values{"period": {period}}
	}
	var out domain.AgentPerformance
	err := c.dashboardGet(ctx, "agents", q, &out)
	return out, err
}

// ListReportingPeriods fetches the periods GetAgentPerformance accepts.
func (c *Client) ListReportingPeriods(ctx context.Context) ([]domain.ReportingPeriod, error) {
	var out []domain.ReportingPeriod
	err := c.dashboardGet(ctx, "periods", nil, &out)
	return out, err
}
