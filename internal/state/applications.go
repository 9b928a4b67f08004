package state

import (
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// applicationBook is the normalized view of one application catalog.
type applicationBook struct {
	items    *Collection[domain.Application]
	selected domain.ID
	filters  domain.ApplicationFilters
}

func newApplicationBooks() map[domain.ApplicationKind]*applicationBook {
	books := make(map[domain.ApplicationKind]*applicationBook, len(domain.ApplicationKinds))
	for _, k := range domain.ApplicationKinds {
		books[k] = &applicationBook{
			items: NewCollection(func(a domain.Application) domain.ID { return a.ID }),
		}
	}
	return books
}

// mergeApplication lets fields missing from incoming keep their old values.
func mergeApplication(existing, incoming domain.Application) domain.Application {
	out := incoming
	if out.FormType == "" {
		out.FormType = existing.FormType
	}
	if out.FormName == "" {
		out.FormName = existing.FormName
	}
	if out.Status == "" {
		out.Status = existing.Status
	}
	if out.SubmissionDate.IsZero() {
		out.SubmissionDate = existing.SubmissionDate
	}
	if out.Customer == (domain.Applicant{}) {
		out.Customer = existing.Customer
	}
	if out.FormData == nil {
		out.FormData = existing.FormData
	}
	if out.Attachments == nil {
		out.Attachments = existing.Attachments
	}
	if out.StatusHistory == nil {
		out.StatusHistory = existing.StatusHistory
	}
	if out.Notes == nil {
		out.Notes = existing.Notes
	}
	if out.VerificationFlags == nil {
		out.VerificationFlags = existing.VerificationFlags
	}
	if out.ConversationID.IsZero() {
		out.ConversationID = existing.ConversationID
	}
	return out
}

func (s *Store) book(kind domain.ApplicationKind) *applicationBook {
	return s.applications[kind]
}

// ReplaceApplications swaps a catalog's list for a freshly fetched one.
// The selection is kept only if it is still listed.
func (s *Store) ReplaceApplications(kind domain.ApplicationKind, list []domain.Application) {
	s.mutate(func() []Change {
		b := s.book(kind)
		if b == nil {
			return nil
		}
		b.items.ReplaceAll(list)
		changes := []Change{{Kind: ChangeApplications, ID: domain.ID(kind)}}
		if !b.selected.IsZero() && !b.items.Has(b.selected) {
			b.selected = ""
			changes = append(changes, Change{Kind: ChangeSelection, ID: domain.ID(kind)})
		}
		return changes
	})
}

// MergeApplication folds a fetched or updated application into its
// catalog, appending it to the list when it is new.
func (s *Store) MergeApplication(kind domain.ApplicationKind, a domain.Application) {
	if a.ID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		b := s.book(kind)
		if b == nil {
			return nil
		}
		b.items.Upsert(a, mergeApplication)
		return []Change{{Kind: ChangeApplications, ID: a.ID}}
	})
}

// ApplyApplicationStatus records a status change made by the agent. The
// history gains one entry unless the backend already returned it.
func (s *Store) ApplyApplicationStatus(kind domain.ApplicationKind, updated domain.Application, previous, notes string, at time.Time) {
	if updated.ID.IsZero() {
		return
	}
	s.mutate(func() []Change {
		b := s.book(kind)
		if b == nil {
			return nil
		}
		b.items.Upsert(updated, mergeApplication)
		b.items.Update(updated.ID, func(a *domain.Application) {
			if n := len(a.StatusHistory); n > 0 && a.StatusHistory[n-1].ToStatus == a.Status {
				return
			}
			a.StatusHistory = append(a.StatusHistory, domain.StatusTransition{
				FromStatus: previous,
				ToStatus:   a.Status,
				ChangedAt:  domain.NewTimestamp(at),
				Notes:      notes,
			})
		})
		return []Change{{Kind: ChangeApplications, ID: updated.ID}}
	})
}

// AddApplicationNote appends note to the application it names. Notes for
// unknown applications and repeated note ids are dropped.
func (s *Store) AddApplicationNote(kind domain.ApplicationKind, note domain.ApplicationNote) {
	s.mutate(func() []Change {
		b := s.book(kind)
		if b == nil {
			return nil
		}
		changed := b.items.Update(note.ApplicationID, func(a *domain.Application) {
			if note.ID.IsZero() || !a.HasNote(note.ID) {
				a.Notes = append(a.Notes, note)
			}
		})
		if !changed {
			return nil
		}
		return []Change{{Kind: ChangeApplications, ID: note.ApplicationID}}
	})
}

// SelectApplication marks id as the catalog's open application.
func (s *Store) SelectApplication(kind domain.ApplicationKind, id domain.ID) {
	s.mutate(func() []Change {
		b := s.book(kind)
		if b == nil || b.selected == id {
			return nil
		}
		b.selected = id
		return []Change{{Kind: ChangeSelection, ID: id}}
	})
}

// ClearSelectedApplication closes the catalog's open application.
func (s *Store) ClearSelectedApplication(kind domain.ApplicationKind) {
	s.SelectApplication(kind, "")
}

// SetApplicationFilters replaces the catalog's list filters.
func (s *Store) SetApplicationFilters(kind domain.ApplicationKind, f domain.ApplicationFilters) {
	s.mutate(func() []Change {
		b := s.book(kind)
		if b == nil {
			return nil
		}
		b.filters = f
		return []Change{{Kind: ChangeFilters, ID: domain.ID(kind)}}
	})
}

// ClearApplicationFilters resets the catalog's list filters.
func (s *Store) ClearApplicationFilters(kind domain.ApplicationKind) {
	s.SetApplicationFilters(kind, domain.ApplicationFilters{})
}

// ApplicationFilters returns the catalog's list filters.
func (s *Store) ApplicationFilters(kind domain.ApplicationKind) domain.ApplicationFilters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b := s.book(kind); b != nil {
		return b.filters
	}
	return domain.ApplicationFilters{}
}

// Applications returns a catalog in list order.
func (s *Store) Applications(kind domain.ApplicationKind) []domain.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b := s.book(kind); b != nil {
		return b.items.All()
	}
	return nil
}

// FilteredApplications returns the applications of a catalog that pass f
// at time now.
func (s *Store) FilteredApplications(kind domain.ApplicationKind, f domain.ApplicationFilters, now time.Time) []domain.Application {
	var out []domain.Application
	for _, a := range s.Applications(kind) {
		if f.Match(a, now) {
			out = append(out, a)
		}
	}
	return out
}

// Application looks up one application.
func (s *Store) Application(kind domain.ApplicationKind, id domain.ID) (domain.Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b := s.book(kind); b != nil {
		return b.items.Get(id)
	}
	return domain.Application{}, false
}

// SelectedApplication returns the catalog's open application.
func (s *Store) SelectedApplication(kind domain.ApplicationKind) (domain.Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.book(kind)
	if b == nil || b.selected.IsZero() {
		return domain.Application{}, false
	}
	return b.items.Get(b.selected)
}

// ApplicationsByConversation returns the applications of every catalog
// that were submitted through conversationID.
func (s *Store) ApplicationsByConversation(conversationID domain.ID) []domain.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Application
	for _, k := range domain.ApplicationKinds {
		for _, a := range s.applications[k].items.All() {
			if a.ConversationID == conversationID {
				out = append(out, a)
			}
		}
	}
	return out
}

// ApplyDashboard stores the latest dashboard figures.
func (s *Store) ApplyDashboard(d domain.Dashboard) {
	s.mutate(func() []Change {
		s.dashboard = &d
		return []Change{{Kind: ChangeDashboard}}
	})
}

// Dashboard returns the latest dashboard figures, if any were fetched.
func (s *Store) Dashboard() (domain.Dashboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dashboard == nil {
		return domain.Dashboard{}, false
	}
	return *s.dashboard, true
}
