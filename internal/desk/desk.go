// Package desk connects the entity store to the REST API and the push
// channel. Commands call the API and feed results through the store's
// reducers; pushed events take the same path.
package desk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/state"
)

var (
	ErrNoConversation = errors.New("no conversation selected")
	ErrEmptyMessage   = errors.New("message has no content or attachments")
)

// Backend is the part of the REST API the desk uses. *api.Client
// implements it.
type Backend interface {
	ListConversations(ctx context.Context, f domain.ConversationFilters) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id domain.ID) (domain.ConversationDetails, error)
	SendMessage(ctx context.Context, conversationID domain.ID, msg domain.OutgoingMessage) (domain.Message, error)
	UpdateConversationStatus(ctx context.Context, id domain.ID, status domain.ConversationStatus) (domain.StatusChange, error)
	AssignConversation(ctx context.Context, id, agentID domain.ID) (domain.Assignment, error)
	UploadAttachment(ctx context.Context, name string, data []byte, progress api.ProgressFunc) (domain.Attachment, error)
	MarkSeen(ctx context.Context, id domain.ID) (domain.SeenResult, error)

	GetTicket(ctx context.Context, id domain.ID) (domain.Ticket, error)
	GetTicketByNumber(ctx context.Context, number string) (domain.Ticket, error)
	ListTickets(ctx context.Context, conversationID domain.ID) ([]domain.Ticket, error)
	CreateTicket(ctx context.Context, draft domain.TicketDraft) (domain.Ticket, error)
	UpdateTicket(ctx context.Context, id domain.ID, u domain.TicketUpdate) (domain.Ticket, error)
	UpdateTicketStatus(ctx context.Context, id domain.ID, status, agentNotes string) (domain.Ticket, error)
	UpdateTicketPriority(ctx context.Context, id domain.ID, priority string) (domain.Ticket, error)
	CloseTicket(ctx context.Context, id domain.ID, status string) (domain.Ticket, error)
	ReopenTicket(ctx context.Context, id domain.ID, status string) (domain.Ticket, error)

	ListIssues(ctx context.Context, conversationID domain.ID) ([]domain.Issue, error)
	GetIssue(ctx context.Context, id domain.ID) (domain.Issue, error)
	CreateIssue(ctx context.Context, draft domain.IssueDraft) (domain.Issue, error)
	UpdateIssue(ctx context.Context, id domain.ID, u domain.IssueUpdate) (domain.Issue, error)
	ResolveIssue(ctx context.Context, id domain.ID, r domain.IssueResolution) (domain.Issue, error)
	ReopenIssue(ctx context.Context, id domain.ID, reason string) (domain.Issue, error)
	AttachMessage(ctx context.Context, issueID, messageID domain.ID) (domain.Issue, error)

	ListApplications(ctx context.Context, kind domain.ApplicationKind, f domain.ApplicationFilters) ([]domain.Application, error)
	GetApplication(ctx context.Context, kind domain.ApplicationKind, id domain.ID) (domain.Application, error)
	UpdateApplicationStatus(ctx context.Context, kind domain.ApplicationKind, id domain.ID, status, notes string) (domain.Application, error)
	AddApplicationNote(ctx context.Context, kind domain.ApplicationKind, id domain.ID, content string) (domain.ApplicationNote, error)

	GetDashboardStats(ctx context.Context) (domain.DashboardStats, error)
	ListActivities(ctx context.Context) ([]domain.Activity, error)
	GetPerformance(ctx context.Context) (domain.Performance, error)
	GetQueueMetrics(ctx context.Context) (domain.QueueMetrics, error)
	GetAgentPerformance(ctx context.Context, period string) (domain.AgentPerformance, error)
	ListReportingPeriods(ctx context.Context) ([]domain.ReportingPeriod, error)
}

var _ Backend = (*api.Client)(nil)

// Rooms is the push channel's room API. *realtime.Client implements it.
type Rooms interface {
	JoinConversation(id domain.ID) error
	LeaveConversation(id domain.ID) error
	SendTyping(id domain.ID, typing bool) error
}

// Archiver keeps a searchable copy of messages.
type Archiver interface {
	Save(msgs ...domain.Message) error
}

// SnapshotStore persists the last fetched conversation list.
type SnapshotStore interface {
	SaveConversations(list []domain.Conversation) error
	LoadConversations() ([]domain.Conversation, time.Time, error)
	Clear() error
}

// Options carries the desk's optional collaborators.
type Options struct {
	// RefreshOnPush re-fetches the conversation list after every pushed
	// message.
	RefreshOnPush bool
	Hooks         *hooks.Manager
	Archive       Archiver
	Snapshots     SnapshotStore
}

// Desk owns no state of its own beyond the rooms handle; everything it
// learns goes into the store.
type Desk struct {
	store *state.Store
	api   Backend
	opts  Options
	log   *logging.Logger
	now   func() time.Time

	mu    sync.Mutex
	rooms Rooms

	refreshMu      sync.Mutex
	refreshing     bool
	refreshPending bool
	wg             sync.WaitGroup
}

// New creates a desk over store and backend.
func New(store *state.Store, backend Backend, opts Options, log *logging.Logger) *Desk {
	return &Desk{
		store: store,
		api:   backend,
		opts:  opts,
		log:   log.Sub("desk"),
		now:   time.Now,
	}
}

// Store returns the entity store the desk writes to.
func (d *Desk) Store() *state.Store { return d.store }

// AttachRooms sets the push channel used for room membership.
func (d *Desk) AttachRooms(r Rooms) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms = r
}

func (d *Desk) roomsHandle() Rooms {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rooms
}

func (d *Desk) join(id domain.ID) {
	if r := d.roomsHandle(); r != nil && !id.IsZero() {
		if err := r.JoinConversation(id); err != nil {
			d.log.Debug().Err(err).Str("conversation", id.String()).Msg("join skipped")
		}
	}
}

func (d *Desk) leave(id domain.ID) {
	if r := d.roomsHandle(); r != nil && !id.IsZero() {
		if err := r.LeaveConversation(id); err != nil {
			d.log.Debug().Err(err).Str("conversation", id.String()).Msg("leave skipped")
		}
	}
}

// Typing forwards the agent's typing state for the selected conversation.
func (d *Desk) Typing(typing bool) error {
	id := d.store.SelectedConversationID()
	if id.IsZero() {
		return ErrNoConversation
	}
	r := d.roomsHandle()
	if r == nil {
		return nil
	}
	return r.SendTyping(id, typing)
}

func (d *Desk) emit(ctx context.Context, event string, data map[string]any) {
	if d.opts.Hooks != nil {
		d.opts.Hooks.EmitAsync(ctx, event, data)
	}
}

func (d *Desk) archive(msgs ...domain.Message) {
	if d.opts.Archive == nil || len(msgs) == 0 {
		return
	}
	if err := d.opts.Archive.Save(msgs...); err != nil {
		d.log.Warn().Err(err).Int("count", len(msgs)).Msg("archiving messages failed")
	}
}

// RequestRefresh re-fetches the conversation list in the background.
// Requests that arrive while a fetch runs collapse into one more fetch.
func (d *Desk) RequestRefresh(ctx context.Context) {
	d.refreshMu.Lock()
	if d.refreshing {
		d.refreshPending = true
		d.refreshMu.Unlock()
		return
	}
	d.refreshing = true
	d.wg.Add(1)
	d.refreshMu.Unlock()

	go func() {
		defer d.wg.Done()
		for {
			if _, err := d.FetchConversations(ctx); err != nil {
				d.log.Warn().Err(err).Msg("conversation refresh failed")
			}
			d.refreshMu.Lock()
			if !d.refreshPending || ctx.Err() != nil {
				d.refreshing = false
				d.refreshPending = false
				d.refreshMu.Unlock()
				return
			}
			d.refreshPending = false
			d.refreshMu.Unlock()
		}
	}()
}

// Wait blocks until background refreshes have finished.
func (d *Desk) Wait() {
	d.wg.Wait()
}

// Restore loads the last saved conversation list into the store and
// returns when it was saved. It is a no-op without a snapshot store.
func (d *Desk) Restore() (time.Time, error) {
	if d.opts.Snapshots == nil {
		return time.Time{}, nil
	}
	list, savedAt, err := d.opts.Snapshots.LoadConversations()
	if err != nil {
		return time.Time{}, err
	}
	if len(list) > 0 {
		d.store.ReplaceConversations(list)
	}
	return savedAt, nil
}

// EndSession forgets everything learned under the current sign-in: the
// selected room is left, the store is reset and the saved list is dropped.
func (d *Desk) EndSession() {
	d.leave(d.store.SelectedConversationID())
	d.store.Reset()
	if d.opts.Snapshots == nil {
		return
	}
	if err := d.opts.Snapshots.Clear(); err != nil {
		d.log.Warn().Err(err).Msg("clearing conversation snapshot failed")
	}
}
