package domain

import "strings"

// Ticket statuses as the backend commonly spells them. Comparisons go
// through SameStatus since the backend is not consistent about casing.
const (
	TicketOpen       = "OPEN"
	TicketInProgress = "IN_PROGRESS"
	TicketResolved   = "RESOLVED"
	TicketClosed     = "CLOSED"
	TicketReopened   = "REOPENED"
)

// Ticket is a formal, numbered support case.
type Ticket struct {
	ID             ID        `json:"id"`
	TicketNumber   string    `json:"ticket_number,omitempty"`
	ConversationID ID        `json:"conversation_id,omitempty"`
	Title          string    `json:"title,omitempty"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status,omitempty"`
	Priority       string    `json:"priority,omitempty"`
	Category       string    `json:"category,omitempty"`
	AgentNotes     string    `json:"agent_notes,omitempty"`
	Resolution     string    `json:"resolution,omitempty"`
	CreatedAt      Timestamp `json:"created_at"`
	UpdatedAt      Timestamp `json:"updated_at"`
	ResolvedAt     Timestamp `json:"resolved_at"`
	ReopenedAt     Timestamp `json:"reopened_at"`
}

// DisplayNumber returns the human-facing ticket number, or T-{id}.
func (t Ticket) DisplayNumber() string {
	if t.TicketNumber != "" {
		return t.TicketNumber
	}
	return "T-" + t.ID.String()
}

// HasStatus compares the ticket status case-insensitively.
func (t Ticket) HasStatus(status string) bool {
	return SameStatus(t.Status, status)
}

// HasPriority compares the ticket priority case-insensitively.
func (t Ticket) HasPriority(priority string) bool {
	return SameStatus(t.Priority, priority)
}

// SameStatus compares two status or priority strings ignoring case and
// surrounding whitespace. Stored values keep their original casing.
func SameStatus(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AppendNote adds note to an append-only notes log.
func AppendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

// TicketDraft holds the fields for creating a ticket.
type TicketDraft struct {
	ConversationID ID     `json:"conversation_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Priority       string `json:"priority,omitempty"`
	Category       string `json:"category,omitempty"`
}

// TicketUpdate is a partial ticket update. Nil fields are left alone.
type TicketUpdate struct {
	Status     *string `json:"status,omitempty"`
	Priority   *string `json:"priority,omitempty"`
	AgentNotes *string `json:"agent_notes,omitempty"`
	Resolution *string `json:"resolution,omitempty"`
	Title      *string `json:"title,omitempty"`
}
