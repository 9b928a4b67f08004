package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/desk"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/state"
	"github.com/soyeahso/agentdesk/internal/version"
)

// RequestHandler serves one RPC request.
type RequestHandler func(rc *RequestContext)

// RequestContext carries a request and its viewer.
type RequestContext struct {
	Viewer *Viewer
	Frame  Frame
	Server *Server
}

// Context bounds a desk command started by the request.
func (rc *RequestContext) Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(rc.Server.baseCtx, rpcTimeout)
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Viewer.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Viewer.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message})
}

// Fail maps a desk error onto an error response.
func (rc *RequestContext) Fail(err error) {
	shape := errorShape(err)
	rc.Server.log.Debug().Err(err).Str("method", rc.Frame.Method).Str("code", shape.Code).Msg("rpc failed")
	rc.Viewer.RespondError(rc.Frame.ID, shape)
}

// Params decodes the request params into target. Missing params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 || string(rc.Frame.Params) == "null" {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}

func errorShape(err error) ErrorShape {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, desk.ErrNoConversation):
		return ErrorShape{Code: CodeNoConversation, Message: err.Error()}
	case errors.Is(err, desk.ErrEmptyMessage),
		errors.Is(err, desk.ErrUnknownCatalog),
		errors.Is(err, desk.ErrEmptyNote),
		errors.Is(err, desk.ErrNoStatus),
		errors.Is(err, state.ErrInvalidStatus),
		errors.Is(err, state.ErrIssueNotResolved):
		return ErrorShape{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, state.ErrUploadInProgress):
		return ErrorShape{Code: CodeBusy, Message: err.Error()}
	case errors.As(err, &apiErr):
		return ErrorShape{Code: CodeBackend, Message: apiErr.Message, Status: apiErr.Status}
	default:
		return ErrorShape{Code: CodeFailed, Message: err.Error()}
	}
}

func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("conversation.open", s.rpcConversationOpen)
	s.Handle("conversation.close", s.rpcConversationClose)
	s.Handle("conversation.status", s.rpcConversationStatus)
	s.Handle("conversation.assign", s.rpcConversationAssign)
	s.Handle("conversation.typing", s.rpcConversationTyping)
	s.Handle("filters.clear", s.rpcFiltersClear)
	s.Handle("message.send", s.rpcMessageSend)
	s.Handle("messages.unread", s.rpcMessagesUnread)
	s.Handle("ticket.status", s.rpcTicketStatus)
	s.Handle("ticket.byNumber", s.rpcTicketByNumber)
	s.Handle("transport.reconnect", s.rpcTransportReconnect)
	s.Handle("applications.fetch", s.rpcApplicationsFetch)
	s.Handle("application.open", s.rpcApplicationOpen)
	s.Handle("application.close", s.rpcApplicationClose)
	s.Handle("application.status", s.rpcApplicationStatus)
	s.Handle("application.note", s.rpcApplicationNote)
	s.Handle("dashboard.refresh", s.rpcDashboardRefresh)
	s.Handle("window.focus", s.rpcWindowFocus)
	s.Handle("notifications.read", s.rpcNotificationsRead)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	h := HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Viewers: s.viewers.Count(),
	}
	if s.transport != nil {
		h.Transport = string(s.transport.State())
	}
	if !s.startedAt.IsZero() {
		h.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	rc.Respond(h)
}

type idParams struct {
	ID domain.ID `json:"id"`
}

func (s *Server) rpcConversationOpen(rc *RequestContext) {
	var p idParams
	if err := rc.Params(&p); err != nil || p.ID.IsZero() {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	details, err := s.desk.OpenConversation(ctx, p.ID)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(details)
}

func (s *Server) rpcConversationClose(rc *RequestContext) {
	s.desk.CloseConversation()
	rc.Respond(map[string]bool{"ok": true})
}

type statusParams struct {
	ID     domain.ID                 `json:"id"`
	Status domain.ConversationStatus `json:"status"`
}

func (s *Server) rpcConversationStatus(rc *RequestContext) {
	var p statusParams
	if err := rc.Params(&p); err != nil || p.ID.IsZero() {
		rc.RespondError(CodeInvalidParams, "id and status are required")
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	if err := s.desk.UpdateConversationStatus(ctx, p.ID, p.Status); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"id": p.ID, "status": p.Status})
}

type assignParams struct {
	ID      domain.ID `json:"id"`
	AgentID domain.ID `json:"agentId"`
}

func (s *Server) rpcConversationAssign(rc *RequestContext) {
	var p assignParams
	if err := rc.Params(&p); err != nil || p.ID.IsZero() || p.AgentID.IsZero() {
		rc.RespondError(CodeInvalidParams, "id and agentId are required")
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	if err := s.desk.AssignConversation(ctx, p.ID, p.AgentID); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"id": p.ID, "assigneeId": p.AgentID})
}

type typingParams struct {
	Typing bool `json:"typing"`
}

func (s *Server) rpcConversationTyping(rc *RequestContext) {
	var p typingParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if err := s.desk.Typing(p.Typing); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]bool{"typing": p.Typing})
}

func (s *Server) rpcFiltersClear(rc *RequestContext) {
	st := s.desk.Store()
	st.ClearFilters()
	rc.Respond(map[string]any{
		"filters":       st.Filters(),
		"conversations": len(st.FilteredConversations(st.Filters())),
	})
}

type unreadMessagesParams struct {
	ID         domain.ID   `json:"id"`
	MessageIDs []domain.ID `json:"messageIds"`
}

func (s *Server) rpcMessagesUnread(rc *RequestContext) {
	var p unreadMessagesParams
	if err := rc.Params(&p); err != nil || p.ID.IsZero() || len(p.MessageIDs) == 0 {
		rc.RespondError(CodeInvalidParams, "id and messageIds are required")
		return
	}
	st := s.desk.Store()
	st.MarkMessagesUnread(p.ID, p.MessageIDs)
	rc.Respond(map[string]any{
		"id":         p.ID,
		"messageIds": st.UnreadMessageIDs(p.ID),
		"total":      st.TotalUnread(),
	})
}

type sendParams struct {
	Content string    `json:"content"`
	IssueID domain.ID `json:"issueId,omitempty"`
}

func (s *Server) rpcMessageSend(rc *RequestContext) {
	var p sendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	msg, err := s.desk.SendMessage(ctx, p.Content, p.IssueID)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(msg)
}

type ticketStatusParams struct {
	ID     domain.ID `json:"id"`
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
}

func (s *Server) rpcTicketStatus(rc *RequestContext) {
	var p ticketStatusParams
	if err := rc.Params(&p); err != nil || p.ID.IsZero() || p.Status == "" {
		rc.RespondError(CodeInvalidParams, "id and status are required")
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	if err := s.desk.UpdateTicketStatus(ctx, p.ID, p.Status, p.Note); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"id": p.ID, "status": p.Status})
}

type ticketNumberParams struct {
	Number string `json:"number"`
}

func (s *Server) rpcTicketByNumber(rc *RequestContext) {
	var p ticketNumberParams
	if err := rc.Params(&p); err != nil || p.Number == "" {
		rc.RespondError(CodeInvalidParams, "number is required")
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	t, err := s.desk.FetchTicketByNumber(ctx, p.Number)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(t)
}

// rpcTransportReconnect replaces the push socket. The new connection
// outlives the request, so it is bound to the server context.
func (s *Server) rpcTransportReconnect(rc *RequestContext) {
	if s.transport == nil {
		rc.RespondError(CodeFailed, "push channel is disabled")
		return
	}
	if err := s.transport.Reconnect(s.baseCtx); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]string{"transport": string(s.transport.State())})
}

type applicationsParams struct {
	Kind    domain.ApplicationKind     `json:"kind"`
	Filters *domain.ApplicationFilters `json:"filters,omitempty"`
}

// rpcApplicationsFetch reloads a catalog. Filters, when sent, replace the
// stored ones first.
func (s *Server) rpcApplicationsFetch(rc *RequestContext) {
	var p applicationsParams
	if err := rc.Params(&p); err != nil || p.Kind == "" {
		rc.RespondError(CodeInvalidParams, "kind is required")
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	var (
		list []domain.Application
		err  error
	)
	if p.Filters != nil {
		list, err = s.desk.ApplyApplicationFilters(ctx, p.Kind, *p.Filters)
	} else {
		list, err = s.desk.FetchApplications(ctx, p.Kind)
	}
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"kind": p.Kind, "applications": nonNil(list)})
}

type applicationParams struct {
	Kind    domain.ApplicationKind `json:"kind"`
	ID      domain.ID              `json:"id"`
	Status  string                 `json:"status,omitempty"`
	Notes   string                 `json:"notes,omitempty"`
	Content string                 `json:"content,omitempty"`
}

func (rc *RequestContext) applicationParams() (applicationParams, bool) {
	var p applicationParams
	if err := rc.Params(&p); err != nil || p.Kind == "" || p.ID.IsZero() {
		rc.RespondError(CodeInvalidParams, "kind and id are required")
		return p, false
	}
	return p, true
}

func (s *Server) rpcApplicationOpen(rc *RequestContext) {
	p, ok := rc.applicationParams()
	if !ok {
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	a, err := s.desk.OpenApplication(ctx, p.Kind, p.ID)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(a)
}

func (s *Server) rpcApplicationClose(rc *RequestContext) {
	var p applicationsParams
	if err := rc.Params(&p); err != nil || !p.Kind.Valid() {
		rc.RespondError(CodeInvalidParams, "kind is required")
		return
	}
	s.desk.CloseApplication(p.Kind)
	rc.Respond(map[string]bool{"ok": true})
}

func (s *Server) rpcApplicationStatus(rc *RequestContext) {
	p, ok := rc.applicationParams()
	if !ok {
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	a, err := s.desk.UpdateApplicationStatus(ctx, p.Kind, p.ID, p.Status, p.Notes)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(a)
}

func (s *Server) rpcApplicationNote(rc *RequestContext) {
	p, ok := rc.applicationParams()
	if !ok {
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	note, err := s.desk.AddApplicationNote(ctx, p.Kind, p.ID, p.Content)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(note)
}

type dashboardParams struct {
	Period string `json:"period,omitempty"`
}

func (s *Server) rpcDashboardRefresh(rc *RequestContext) {
	var p dashboardParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	ctx, cancel := rc.Context()
	defer cancel()
	d, err := s.desk.FetchDashboard(ctx, p.Period)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(d)
}

func (s *Server) rpcWindowFocus(rc *RequestContext) {
	if s.focus != nil {
		s.focus.Focus()
	}
	rc.Respond(map[string]bool{"ok": true})
}

type readParams struct {
	ID  string `json:"id,omitempty"`
	All bool   `json:"all,omitempty"`
}

func (s *Server) rpcNotificationsRead(rc *RequestContext) {
	var p readParams
	if err := rc.Params(&p); err != nil || (p.ID == "" && !p.All) {
		rc.RespondError(CodeInvalidParams, "id or all is required")
		return
	}
	st := s.desk.Store()
	if p.All {
		st.MarkAllNotificationsRead()
	} else {
		st.MarkNotificationRead(p.ID)
	}
	rc.Respond(map[string]int{"unread": st.UnreadNotificationCount()})
}
