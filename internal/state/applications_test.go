package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/domain"
)

func application(id, status, name string, minutes int) domain.Application {
	return domain.Application{
		ID:             domain.ID(id),
		Status:         status,
		SubmissionDate: at(minutes),
		Customer:       domain.Applicant{Name: name, PhoneNumber: "+256" + id},
	}
}

func TestReplaceApplications_PerCatalog(t *testing.T) {
	s := newTestStore(t)
	s.ReplaceApplications(domain.ApplicationPension, []domain.Application{
		application("app-1", domain.ApplicationSubmitted, "John", 0),
		application("app-2", domain.ApplicationApproved, "Jane", 5),
		{Status: "no id"},
	})
	s.ReplaceApplications(domain.ApplicationLife, []domain.Application{
		application("lib-1", domain.ApplicationUnderReview, "David", 1),
	})

	pension := s.Applications(domain.ApplicationPension)
	require.Len(t, pension, 2)
	assert.Equal(t, domain.ID("app-1"), pension[0].ID)
	assert.Len(t, s.Applications(domain.ApplicationLife), 1)

	_, ok := s.Application(domain.ApplicationLife, "app-1")
	assert.False(t, ok, "catalogs do not share ids")
	assert.Nil(t, s.Applications("car"))
}

func TestReplaceApplications_DropsStaleSelection(t *testing.T) {
	s := newTestStore(t)
	s.ReplaceApplications(domain.ApplicationPension, []domain.Application{application("app-1", domain.ApplicationSubmitted, "John", 0)})
	s.SelectApplication(domain.ApplicationPension, "app-1")

	s.ReplaceApplications(domain.ApplicationPension, []domain.Application{application("app-1", domain.ApplicationApproved, "John", 0)})
	sel, ok := s.SelectedApplication(domain.ApplicationPension)
	require.True(t, ok)
	assert.Equal(t, domain.ApplicationApproved, sel.Status)

	s.ReplaceApplications(domain.ApplicationPension, []domain.Application{application("app-2", domain.ApplicationSubmitted, "Jane", 0)})
	_, ok = s.SelectedApplication(domain.ApplicationPension)
	assert.False(t, ok)
}

func TestMergeApplication_KeepsMissingFields(t *testing.T) {
	s := newTestStore(t)
	listed := application("app-1", domain.ApplicationSubmitted, "John", 0)
	listed.ConversationID = "c1"
	listed.Notes = []domain.ApplicationNote{{ID: "n1", ApplicationID: "app-1", Content: "first"}}
	s.ReplaceApplications(domain.ApplicationPension, []domain.Application{listed})

	s.MergeApplication(domain.ApplicationPension, domain.Application{
		ID:       "app-1",
		FormData: []byte(`{"beneficiaries":[]}`),
	})
	got, ok := s.Application(domain.ApplicationPension, "app-1")
	require.True(t, ok)
	assert.Equal(t, domain.ApplicationSubmitted, got.Status)
	assert.Equal(t, "John", got.Customer.Name)
	assert.Equal(t, domain.ID("c1"), got.ConversationID)
	assert.Len(t, got.Notes, 1)
	assert.JSONEq(t, `{"beneficiaries":[]}`, string(got.FormData))

	s.MergeApplication(domain.ApplicationPension, application("app-9", domain.ApplicationDraft, "New", 0))
	assert.Len(t, s.Applications(domain.ApplicationPension), 2, "details for an unlisted application append it")
}

func TestApplyApplicationStatus_RecordsHistory(t *testing.T) {
	s := newTestStore(t)
	s.ReplaceApplications(domain.ApplicationLife, []domain.Application{application("lib-1", domain.ApplicationSubmitted, "David", 0)})
	when := t0.Add(time.Hour)

	s.ApplyApplicationStatus(domain.ApplicationLife,
		domain.Application{ID: "lib-1", Status: domain.ApplicationUnderReview},
		domain.ApplicationSubmitted, "medical review", when)

	got, _ := s.Application(domain.ApplicationLife, "lib-1")
	assert.Equal(t, domain.ApplicationUnderReview, got.Status)
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, domain.StatusTransition{
		FromStatus: domain.ApplicationSubmitted,
		ToStatus:   domain.ApplicationUnderReview,
		ChangedAt:  domain.NewTimestamp(when),
		Notes:      "medical review",
	}, got.StatusHistory[0])

	// the backend already recorded this transition
	s.ApplyApplicationStatus(domain.ApplicationLife, domain.Application{
		ID:     "lib-1",
		Status: domain.ApplicationApproved,
		StatusHistory: []domain.StatusTransition{
			{FromStatus: domain.ApplicationSubmitted, ToStatus: domain.ApplicationUnderReview},
			{FromStatus: domain.ApplicationUnderReview, ToStatus: domain.ApplicationApproved},
		},
	}, domain.ApplicationUnderReview, "", when)
	got, _ = s.Application(domain.ApplicationLife, "lib-1")
	assert.Len(t, got.StatusHistory, 2)
}

func TestAddApplicationNote(t *testing.T) {
	s := newTestStore(t)
	s.ReplaceApplications(domain.ApplicationPension, []domain.Application{application("app-1", domain.ApplicationSubmitted, "John", 0)})

	note := domain.ApplicationNote{ID: "n1", ApplicationID: "app-1", Content: "documents verified"}
	s.AddApplicationNote(domain.ApplicationPension, note)
	s.AddApplicationNote(domain.ApplicationPension, note)
	s.AddApplicationNote(domain.ApplicationPension, domain.ApplicationNote{ID: "n2", ApplicationID: "missing"})

	got, _ := s.Application(domain.ApplicationPension, "app-1")
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "documents verified", got.Notes[0].Content)
}

func TestApplicationFiltersAndSelection(t *testing.T) {
	s := newTestStore(t)
	s.ReplaceApplications(domain.ApplicationPension, []domain.Application{
		application("app-1", domain.ApplicationSubmitted, "John Doe", 0),
		application("app-2", domain.ApplicationPendingDocuments, "Jane Smith", 0),
	})

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.SetApplicationFilters(domain.ApplicationPension, domain.ApplicationFilters{SearchTerm: "jane"})
	f := s.ApplicationFilters(domain.ApplicationPension)
	got := s.FilteredApplications(domain.ApplicationPension, f, t0)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ID("app-2"), got[0].ID)
	assert.Empty(t, s.ApplicationFilters(domain.ApplicationLife).SearchTerm)

	s.ClearApplicationFilters(domain.ApplicationPension)
	assert.Len(t, s.FilteredApplications(domain.ApplicationPension, s.ApplicationFilters(domain.ApplicationPension), t0), 2)

	s.SelectApplication(domain.ApplicationPension, "app-2")
	s.SelectApplication(domain.ApplicationPension, "app-2")
	sel, ok := s.SelectedApplication(domain.ApplicationPension)
	require.True(t, ok)
	assert.Equal(t, "Jane Smith", sel.Customer.Name)
	s.ClearSelectedApplication(domain.ApplicationPension)
	_, ok = s.SelectedApplication(domain.ApplicationPension)
	assert.False(t, ok)

	assert.Equal(t, []Change{
		{Kind: ChangeFilters, ID: "pension"},
		{Kind: ChangeFilters, ID: "pension"},
		{Kind: ChangeSelection, ID: "app-2"},
		{Kind: ChangeSelection},
	}, changes)
}

func TestApplicationsByConversation(t *testing.T) {
	s := newTestStore(t)
	a := application("app-1", domain.ApplicationSubmitted, "John", 0)
	a.ConversationID = "c1"
	b := application("lib-1", domain.ApplicationSubmitted, "John", 0)
	b.ConversationID = "c1"
	c := application("lib-2", domain.ApplicationSubmitted, "Other", 0)
	c.ConversationID = "c2"
	s.ReplaceApplications(domain.ApplicationPension, []domain.Application{a})
	s.ReplaceApplications(domain.ApplicationLife, []domain.Application{b, c})

	got := s.ApplicationsByConversation("c1")
	require.Len(t, got, 2)
	assert.Equal(t, domain.ID("app-1"), got[0].ID)
	assert.Equal(t, domain.ID("lib-1"), got[1].ID)
}

func TestDashboardSnapshot(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Dashboard()
	assert.False(t, ok)

	s.ApplyDashboard(domain.Dashboard{Stats: domain.DashboardStats{PendingConversations: 8}, Period: domain.DefaultPeriod})
	d, ok := s.Dashboard()
	require.True(t, ok)
	assert.Equal(t, 8, d.Stats.PendingConversations)

	s.Reset()
	_, ok = s.Dashboard()
	assert.False(t, ok)
	assert.Empty(t, s.Applications(domain.ApplicationPension))
}
