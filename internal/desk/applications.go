package desk

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
)

var (
	ErrUnknownCatalog = errors.New("unknown application catalog")
	ErrEmptyNote      = errors.New("note has no content")
	ErrNoStatus       = errors.New("status is required")
)

func checkKind(kind domain.ApplicationKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCatalog, kind)
	}
	return nil
}

// FetchApplications loads a catalog using its active filters.
func (d *Desk) FetchApplications(ctx context.Context, kind domain.ApplicationKind) ([]domain.Application, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	list, err := d.api.ListApplications(ctx, kind, d.store.ApplicationFilters(kind))
	if err != nil {
		return nil, err
	}
	d.store.ReplaceApplications(kind, list)
	return list, nil
}

// ApplyApplicationFilters stores f as the catalog's filters and re-fetches.
func (d *Desk) ApplyApplicationFilters(ctx context.Context, kind domain.ApplicationKind, f domain.ApplicationFilters) ([]domain.Application, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	d.store.SetApplicationFilters(kind, f)
	return d.FetchApplications(ctx, kind)
}

// OpenApplication loads an application's details and selects it.
func (d *Desk) OpenApplication(ctx context.Context, kind domain.ApplicationKind, id domain.ID) (domain.Application, error) {
	if err := checkKind(kind); err != nil {
		return domain.Application{}, err
	}
	a, err := d.api.GetApplication(ctx, kind, id)
	if err != nil {
		return a, err
	}
	if a.ID.IsZero() {
		a.ID = id
	}
	d.store.MergeApplication(kind, a)
	d.store.SelectApplication(kind, a.ID)
	merged, _ := d.store.Application(kind, a.ID)
	return merged, nil
}

// CloseApplication clears the catalog's selection.
func (d *Desk) CloseApplication(kind domain.ApplicationKind) {
	d.store.ClearSelectedApplication(kind)
}

// UpdateApplicationStatus moves an application through review and
// records the transition in its history.
func (d *Desk) UpdateApplicationStatus(ctx context.Context, kind domain.ApplicationKind, id domain.ID, status, notes string) (domain.Application, error) {
	if err := checkKind(kind); err != nil {
		return domain.Application{}, err
	}
	if status == "" {
		return domain.Application{}, ErrNoStatus
	}
	var previous string
	if cur, ok := d.store.Application(kind, id); ok {
		previous = cur.Status
	}
	updated, err := d.api.UpdateApplicationStatus(ctx, kind, id, status, notes)
	if err != nil {
		return updated, err
	}
	if updated.ID.IsZero() {
		updated.ID = id
	}
	if updated.Status == "" {
		updated.Status = status
	}
	d.store.ApplyApplicationStatus(kind, updated, previous, notes, d.now())

	app, _ := d.store.Application(kind, id)
	d.emit(ctx, hooks.EventApplicationStatus, map[string]any{
		"catalog":        string(kind),
		"applicationId":  id.String(),
		"from":           previous,
		"to":             app.Status,
		"conversationId": app.ConversationID.String(),
	})
	return app, nil
}

// AddApplicationNote records a note and appends it to the application.
func (d *Desk) AddApplicationNote(ctx context.Context, kind domain.ApplicationKind, id domain.ID, content string) (domain.ApplicationNote, error) {
	if err := checkKind(kind); err != nil {
		return domain.ApplicationNote{}, err
	}
	if content == "" {
		return domain.ApplicationNote{}, ErrEmptyNote
	}
	note, err := d.api.AddApplicationNote(ctx, kind, id, content)
	if err != nil {
		return note, err
	}
	if note.ApplicationID.IsZero() {
		note.ApplicationID = id
	}
	d.store.AddApplicationNote(kind, note)
	return note, nil
}
