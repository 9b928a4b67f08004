package desk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/domain"
)

var errBackend = errors.New("backend down")

// fakeBackend is an in-memory Backend. Setting fail[method] makes that
// method return the error.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error

	conversations []domain.Conversation
	details       map[domain.ID]domain.ConversationDetails
	tickets       map[domain.ID]domain.Ticket
	issues        map[domain.ID]domain.Issue
	applications  map[domain.ApplicationKind][]domain.Application
	appFilters    []domain.ApplicationFilters

	// listGate, when set, blocks ListConversations until it is closed.
	listGate chan struct{}

	sent         []domain.OutgoingMessage
	statusNotes  []string
	ticketUpdate []domain.TicketUpdate
	nextID       int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:   make(map[string]int),
		fail:    make(map[string]error),
		details: make(map[domain.ID]domain.ConversationDetails),
		tickets: make(map[domain.ID]domain.Ticket),
		issues:  make(map[domain.ID]domain.Issue),

		applications: make(map[domain.ApplicationKind][]domain.Application),
	}
}

func (f *fakeBackend) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) setFail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *fakeBackend) id(prefix string) domain.ID {
	f.nextID++
	return domain.ID(fmt.Sprintf("%s%d", prefix, f.nextID))
}

func (f *fakeBackend) ListConversations(_ context.Context, _ domain.ConversationFilters) ([]domain.Conversation, error) {
	if err := f.call("ListConversations"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Conversation(nil), f.conversations...), nil
}

func (f *fakeBackend) GetConversation(_ context.Context, id domain.ID) (domain.ConversationDetails, error) {
	if err := f.call("GetConversation"); err != nil {
		return domain.ConversationDetails{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return d, &api.APIError{Status: 404, Message: "not found"}
	}
	return d, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, conversationID domain.ID, msg domain.OutgoingMessage) (domain.Message, error) {
	if err := f.call("SendMessage"); err != nil {
		return domain.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return domain.Message{
		ID:             f.id("sent-"),
		ConversationID: conversationID,
		Content:        msg.Content,
		Direction:      domain.DirectionOutbound,
		Source:         domain.SourceAgent,
		IssueID:        msg.IssueID,
	}, nil
}

func (f *fakeBackend) UpdateConversationStatus(_ context.Context, id domain.ID, status domain.ConversationStatus) (domain.StatusChange, error) {
	if err := f.call("UpdateConversationStatus"); err != nil {
		return domain.StatusChange{}, err
	}
	return domain.StatusChange{ID: id, Status: status}, nil
}

func (f *fakeBackend) AssignConversation(_ context.Context, id, agentID domain.ID) (domain.Assignment, error) {
	if err := f.call("AssignConversation"); err != nil {
		return domain.Assignment{}, err
	}
	return domain.Assignment{ID: id, AssigneeID: agentID}, nil
}

func (f *fakeBackend) UploadAttachment(_ context.Context, name string, data []byte, progress api.ProgressFunc) (domain.Attachment, error) {
	if err := f.call("UploadAttachment"); err != nil {
		return domain.Attachment{}, err
	}
	if progress != nil {
		progress(50)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Attachment{ID: f.id("att-"), Name: name, Size: int64(len(data))}, nil
}

func (f *fakeBackend) MarkSeen(_ context.Context, id domain.ID) (domain.SeenResult, error) {
	if err := f.call("MarkSeen"); err != nil {
		return domain.SeenResult{}, err
	}
	return domain.SeenResult{ConversationID: id, UpdatedCount: 1}, nil
}

func (f *fakeBackend) ticket(id domain.ID) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return t, &api.APIError{Status: 404, Message: "ticket not found"}
	}
	return t, nil
}

func (f *fakeBackend) GetTicket(_ context.Context, id domain.ID) (domain.Ticket, error) {
	if err := f.call("GetTicket"); err != nil {
		return domain.Ticket{}, err
	}
	return f.ticket(id)
}

func (f *fakeBackend) GetTicketByNumber(_ context.Context, number string) (domain.Ticket, error) {
	if err := f.call("GetTicketByNumber"); err != nil {
		return domain.Ticket{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.TicketNumber == number {
			return t, nil
		}
	}
	return domain.Ticket{}, &api.APIError{Status: 404, Message: "ticket not found"}
}

func (f *fakeBackend) ListTickets(_ context.Context, conversationID domain.ID) ([]domain.Ticket, error) {
	if err := f.call("ListTickets"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for _, t := range f.tickets {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateTicket(_ context.Context, draft domain.TicketDraft) (domain.Ticket, error) {
	if err := f.call("CreateTicket"); err != nil {
		return domain.Ticket{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := domain.Ticket{ID: f.id("t-"), Title: draft.Title, Status: domain.TicketOpen, Priority: draft.Priority}
	f.tickets[t.ID] = t
	return t, nil
}

func (f *fakeBackend) UpdateTicket(_ context.Context, id domain.ID, u domain.TicketUpdate) (domain.Ticket, error) {
	if err := f.call("UpdateTicket"); err != nil {
		return domain.Ticket{}, err
	}
	f.mu.Lock()
	f.ticketUpdate = append(f.ticketUpdate, u)
	f.mu.Unlock()
	return f.ticket(id)
}

func (f *fakeBackend) UpdateTicketStatus(_ context.Context, id domain.ID, status, agentNotes string) (domain.Ticket, error) {
	if err := f.call("UpdateTicketStatus"); err != nil {
		return domain.Ticket{}, err
	}
	f.mu.Lock()
	f.statusNotes = append(f.statusNotes, agentNotes)
	f.mu.Unlock()
	t, err := f.ticket(id)
	t.Status = status
	return t, err
}

func (f *fakeBackend) UpdateTicketPriority(_ context.Context, id domain.ID, priority string) (domain.Ticket, error) {
	if err := f.call("UpdateTicketPriority"); err != nil {
		return domain.Ticket{}, err
	}
	t, err := f.ticket(id)
	t.Priority = priority
	return t, err
}

func (f *fakeBackend) CloseTicket(_ context.Context, id domain.ID, status string) (domain.Ticket, error) {
	if err := f.call("CloseTicket"); err != nil {
		return domain.Ticket{}, err
	}
	t, err := f.ticket(id)
	t.Status = domain.TicketClosed
	if status != "" {
		t.Status = status
	}
	return t, err
}

func (f *fakeBackend) ReopenTicket(_ context.Context, id domain.ID, status string) (domain.Ticket, error) {
	if err := f.call("ReopenTicket"); err != nil {
		return domain.Ticket{}, err
	}
	t, err := f.ticket(id)
	t.Status = domain.TicketReopened
	if status != "" {
		t.Status = status
	}
	return t, err
}

func (f *fakeBackend) issue(id domain.ID) (domain.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.issues[id]
	if !ok {
		return i, &api.APIError{Status: 404, Message: "issue not found"}
	}
	return i, nil
}

func (f *fakeBackend) ListIssues(_ context.Context, conversationID domain.ID) ([]domain.Issue, error) {
	if err := f.call("ListIssues"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Issue
	for _, i := range f.issues {
		if i.ConversationID == conversationID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetIssue(_ context.Context, id domain.ID) (domain.Issue, error) {
	if err := f.call("GetIssue"); err != nil {
		return domain.Issue{}, err
	}
	return f.issue(id)
}

func (f *fakeBackend) CreateIssue(_ context.Context, draft domain.IssueDraft) (domain.Issue, error) {
	if err := f.call("CreateIssue"); err != nil {
		return domain.Issue{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := domain.Issue{ID: f.id("i-"), ConversationID: draft.ConversationID, Title: draft.Title, Status: domain.IssueOpen}
	f.issues[i.ID] = i
	return i, nil
}

func (f *fakeBackend) UpdateIssue(_ context.Context, id domain.ID, u domain.IssueUpdate) (domain.Issue, error) {
	if err := f.call("UpdateIssue"); err != nil {
		return domain.Issue{}, err
	}
	i, err := f.issue(id)
	if err == nil && u.Title != nil {
		i.Title = *u.Title
	}
	return i, err
}

func (f *fakeBackend) ResolveIssue(_ context.Context, id domain.ID, r domain.IssueResolution) (domain.Issue, error) {
	if err := f.call("ResolveIssue"); err != nil {
		return domain.Issue{}, err
	}
	i, err := f.issue(id)
	i.Status = domain.IssueResolved
	i.ResolutionSummary = r.Summary
	return i, err
}

func (f *fakeBackend) ReopenIssue(_ context.Context, id domain.ID, _ string) (domain.Issue, error) {
	if err := f.call("ReopenIssue"); err != nil {
		return domain.Issue{}, err
	}
	return f.issue(id)
}

func (f *fakeBackend) AttachMessage(_ context.Context, issueID, _ domain.ID) (domain.Issue, error) {
	if err := f.call("AttachMessage"); err != nil {
		return domain.Issue{}, err
	}
	return f.issue(issueID)
}

func (f *fakeBackend) ListApplications(_ context.Context, kind domain.ApplicationKind, filters domain.ApplicationFilters) ([]domain.Application, error) {
	if err := f.call("ListApplications"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appFilters = append(f.appFilters, filters)
	return append([]domain.Application(nil), f.applications[kind]...), nil
}

func (f *fakeBackend) application(kind domain.ApplicationKind, id domain.ID) (int, error) {
	for i, a := range f.applications[kind] {
		if a.ID == id {
			return i, nil
		}
	}
	return -1, &api.APIError{Status: 404, Message: "application not found"}
}

func (f *fakeBackend) GetApplication(_ context.Context, kind domain.ApplicationKind, id domain.ID) (domain.Application, error) {
	if err := f.call("GetApplication"); err != nil {
		return domain.Application{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.application(kind, id)
	if err != nil {
		return domain.Application{}, err
	}
	return f.applications[kind][i], nil
}

// UpdateApplicationStatus answers like a backend that does not echo the
// status history.
func (f *fakeBackend) UpdateApplicationStatus(_ context.Context, kind domain.ApplicationKind, id domain.ID, status, _ string) (domain.Application, error) {
	if err := f.call("UpdateApplicationStatus"); err != nil {
		return domain.Application{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.application(kind, id)
	if err != nil {
		return domain.Application{}, err
	}
	f.applications[kind][i].Status = status
	return domain.Application{ID: id, Status: status}, nil
}

func (f *fakeBackend) AddApplicationNote(_ context.Context, kind domain.ApplicationKind, id domain.ID, content string) (domain.ApplicationNote, error) {
	if err := f.call("AddApplicationNote"); err != nil {
		return domain.ApplicationNote{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.application(kind, id); err != nil {
		return domain.ApplicationNote{}, err
	}
	return domain.ApplicationNote{ID: f.id("note-"), Content: content, CreatedBy: "ana"}, nil
}

func (f *fakeBackend) GetDashboardStats(context.Context) (domain.DashboardStats, error) {
	if err := f.call("GetDashboardStats"); err != nil {
		return domain.DashboardStats{}, err
	}
	return domain.DashboardStats{PendingConversations: 8, ActiveConversations: 15}, nil
}

func (f *fakeBackend) ListActivities(context.Context) ([]domain.Activity, error) {
	if err := f.call("ListActivities"); err != nil {
		return nil, err
	}
	return []domain.Activity{{ID: "1", Type: "handoff", ConversationID: "c1"}}, nil
}

func (f *fakeBackend) GetPerformance(context.Context) (domain.Performance, error) {
	if err := f.call("GetPerformance"); err != nil {
		return domain.Performance{}, err
	}
	return domain.Performance{ResolutionRate: domain.Metric{Current: 87, Previous: 82, Trend: domain.TrendUp}}, nil
}

func (f *fakeBackend) GetQueueMetrics(context.Context) (domain.QueueMetrics, error) {
	if err := f.call("GetQueueMetrics"); err != nil {
		return domain.QueueMetrics{}, err
	}
	return domain.QueueMetrics{CurrentQueue: 8}, nil
}

func (f *fakeBackend) GetAgentPerformance(_ context.Context, period string) (domain.AgentPerformance, error) {
	if err := f.call("GetAgentPerformance"); err != nil {
		return domain.AgentPerformance{}, err
	}
	return domain.AgentPerformance{TotalConversations: 254, PeriodLabel: period}, nil
}

func (f *fakeBackend) ListReportingPeriods(context.Context) ([]domain.ReportingPeriod, error) {
	if err := f.call("ListReportingPeriods"); err != nil {
		return nil, err
	}
	return []domain.ReportingPeriod{{ID: domain.DefaultPeriod, Label: "This month"}}, nil
}

var _ Backend = (*fakeBackend)(nil)

// fakeRooms records room traffic.
type fakeRooms struct {
	mu     sync.Mutex
	joined []domain.ID
	left   []domain.ID
	typing []bool
}

func (r *fakeRooms) JoinConversation(id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, id)
	return nil
}

func (r *fakeRooms) LeaveConversation(id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, id)
	return nil
}

func (r *fakeRooms) SendTyping(_ domain.ID, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = append(r.typing, typing)
	return nil
}
