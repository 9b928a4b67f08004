package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ApplicationKind picks one of the two product catalogs customers apply
// for over WhatsApp.
type ApplicationKind string

const (
	// ApplicationPension covers pension plan forms (IPP-*).
	ApplicationPension ApplicationKind = "pension"
	// ApplicationLife covers life insurance forms (LIB-*).
	ApplicationLife ApplicationKind = "life"
)

// ApplicationKinds lists every catalog.
var ApplicationKinds = []ApplicationKind{ApplicationPension, ApplicationLife}

// Valid reports whether k is a known catalog.
func (k ApplicationKind) Valid() bool {
	return k == ApplicationPension || k == ApplicationLife
}

// Resource is the REST collection the catalog lives under.
func (k ApplicationKind) Resource() string {
	if k == ApplicationLife {
		return "lib-applications"
	}
	return "applications"
}

// Application review states.
const (
	ApplicationDraft            = "DRAFT"
	ApplicationSubmitted        = "SUBMITTED"
	ApplicationUnderReview      = "UNDER_REVIEW"
	ApplicationPendingDocuments = "PENDING_DOCUMENTS"
	ApplicationApproved         = "APPROVED"
	ApplicationRejected         = "REJECTED"
)

// Applicant identifies the customer behind an application.
type Applicant struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
	IDNumber    string `json:"id_number,omitempty"`
}

// ApplicationDocument is a file the customer supplied with the form.
type ApplicationDocument struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Size         int64  `json:"size,omitempty"`
	URL          string `json:"url,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

// StatusTransition is one entry of an application's review history.
type StatusTransition struct {
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ChangedAt  Timestamp `json:"changed_at"`
	Notes      string    `json:"notes,omitempty"`
}

// ApplicationNote is an agent's remark on an application.
type ApplicationNote struct {
	ID            ID        `json:"id"`
	ApplicationID ID        `json:"application_id"`
	Content       string    `json:"content"`
	CreatedAt     Timestamp `json:"created_at"`
	CreatedBy     string    `json:"created_by,omitempty"`
}

// Application is a product application submitted through a conversation.
// FormData differs per form type and is kept as sent.
type Application struct {
	ID                ID                    `json:"id"`
	FormType          string                `json:"form_type,omitempty"`
	FormName          string                `json:"form_name,omitempty"`
	Status            string                `json:"status"`
	SubmissionDate    Timestamp             `json:"submission_date"`
	Customer          Applicant             `json:"customer"`
	FormData          json.RawMessage       `json:"form_data,omitempty"`
	Attachments       []ApplicationDocument `json:"attachments,omitempty"`
	StatusHistory     []StatusTransition    `json:"status_history,omitempty"`
	Notes             []ApplicationNote     `json:"notes,omitempty"`
	VerificationFlags map[string]bool       `json:"verification_flags,omitempty"`
	ConversationID    ID                    `json:"conversation_id,omitempty"`
}

// HasStatus compares the application status case-insensitively.
func (a Application) HasStatus(status string) bool {
	return SameStatus(a.Status, status)
}

// HasNote reports whether a note with id is already recorded.
func (a Application) HasNote(id ID) bool {
	for _, n := range a.Notes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// Verified reports whether every verification flag is set.
func (a Application) Verified() bool {
	if len(a.VerificationFlags) == 0 {
		return false
	}
	for _, ok := range a.VerificationFlags {
		if !ok {
			return false
		}
	}
	return true
}

// DateRange limits applications by submission date.
type DateRange string

const (
	RangeToday DateRange = "TODAY"
	RangeWeek  DateRange = "WEEK"
	RangeMonth DateRange = "MONTH"
)

// Contains reports whether t falls inside the range ending at now. TODAY
// means the same calendar day in now's location. Unknown ranges match.
func (r DateRange) Contains(t, now time.Time) bool {
	switch r {
	case RangeToday:
		y1, m1, d1 := t.In(now.Location()).Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case RangeWeek:
		return !t.Before(now.AddDate(0, 0, -7))
	case RangeMonth:
		return !t.Before(now.AddDate(0, -1, 0))
	}
	return true
}

// ApplicationFilters narrows an application list. Zero values match all.
type ApplicationFilters struct {
	Status     string    `json:"status,omitempty"`
	DateRange  DateRange `json:"dateRange,omitempty"`
	SearchTerm string    `json:"searchTerm,omitempty"`
}

// Match reports whether a passes the filters at time now. Name and email
// are searched case-insensitively; phone and id numbers as typed.
func (f ApplicationFilters) Match(a Application, now time.Time) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.DateRange != "" {
		if a.SubmissionDate.IsZero() || !f.DateRange.Contains(a.SubmissionDate.Time, now) {
			return false
		}
	}
	if f.SearchTerm != "" {
		lower := strings.ToLower(f.SearchTerm)
		c := a.Customer
		if !strings.Contains(strings.ToLower(c.Name), lower) &&
			!strings.Contains(c.PhoneNumber, f.SearchTerm) &&
			!strings.Contains(strings.ToLower(c.Email), lower) &&
			!strings.Contains(c.IDNumber, f.SearchTerm) {
			return false
		}
	}
	return true
}
