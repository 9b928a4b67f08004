package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// ListApplications fetches one catalog, narrowed server-side by f.
func (c *Client) ListApplications(ctx context.Context, kind domain.ApplicationKind, f domain.ApplicationFilters) ([]domain.Application, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.DateRange != "" {
		q.Set("date_range", string(f.DateRange))
	}
	if f.SearchTerm != "" {
		q.Set("search", f.SearchTerm)
	}
	var out []domain.Application
	err := c.call(ctx, request{method: http.MethodGet, path: kind.Resource(), query: q}, &out)
	return out, err
}

// GetApplication fetches one application with its form data.
func (c *Client) GetApplication(ctx context.Context, kind domain.ApplicationKind, id domain.ID) (domain.Application, error) {
	var out domain.Application
	err := c.call(ctx, request{method: http.MethodGet, path: kind.Resource() + "/" + escape(id)}, &out)
	return out, err
}

// UpdateApplicationStatus moves an application to status, with optional
// review notes.
func (c *Client) UpdateApplicationStatus(ctx context.Context, kind domain.ApplicationKind, id domain.ID, status, notes string) (domain.Application, error) {
	body := map[string]string{"status": status}
	if notes != "" {
		body["notes"] = notes
	}
	var out domain.Application
	req, err := jsonRequest(http.MethodPut, kind.Resource()+"/"+escape(id)+"/status", body)
	if err != nil {
		return out, err
	}
	err = c.call(ctx, req, &out)
	return out, err
}

// AddApplicationNote records a note on an application.
func (c *Client) AddApplicationNote(ctx context.Context, kind domain.ApplicationKind, id domain.ID, content string) (domain.ApplicationNote, error) {
	var out domain.ApplicationNote
	req, err := jsonRequest(http.MethodPost, kind.Resource()+"/"+escape(id)+"/notes", map[string]string{"content": content})
	if err != nil {
		return out, err
	}
	err = c.call(ctx, req, &out)
	return out, err
}
