package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/state"
)

const defaultSearchLimit = 50

// Handler returns the HTTP surface: a public health check, the token
// protected /api tree and the /ws viewer socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))
	r.Use(loggingMiddleware(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/conversations", s.listConversations)
		r.Get("/conversations/{id}", s.getConversation)
		r.Get("/conversations/{id}/tickets", s.listTickets)
		r.Get("/conversations/{id}/issues", s.listIssues)
		r.Get("/messages", s.listMessages)
		r.Get("/unread", s.getUnread)
		r.Get("/notifications", s.listNotifications)
		r.Get("/search", s.search)
		r.Get("/applications/{kind}", s.listApplications)
		r.Get("/applications/{kind}/{id}", s.getApplication)
		r.Get("/dashboard", s.getDashboard)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "path": r.URL.Path})
	})
	return r
}

// HealthResponse is the body of /health and the health RPC. The public
// endpoint fills only Status.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Viewers   int    `json:"viewers,omitempty"`
	Transport string `json:"transport,omitempty"`
	UptimeMs  int64  `json:"uptimeMs,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// filtersFromQuery reads status, assignedTo, hasOpenIssues and search.
func filtersFromQuery(r *http.Request) domain.ConversationFilters {
	q := r.URL.Query()
	open, _ := strconv.ParseBool(q.Get("hasOpenIssues"))
	return domain.ConversationFilters{
		Status:        domain.ConversationStatus(strings.ToUpper(q.Get("status"))),
		AssignedTo:    domain.ID(q.Get("assignedTo")),
		HasOpenIssues: open,
		SearchTerm:    q.Get("search"),
	}
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	list := s.desk.Store().FilteredConversations(filtersFromQuery(r))
	if list == nil {
		list = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

// ConversationView is a conversation with its tickets and issues.
type ConversationView struct {
	Conversation domain.Conversation  `json:"conversation"`
	Selected     bool                 `json:"selected"`
	Tickets      []domain.Ticket      `json:"tickets"`
	Issues       []domain.Issue       `json:"issues"`
	Applications []domain.Application `json:"applications"`
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	st := s.desk.Store()
	id := domain.ID(chi.URLParam(r, "id"))
	c, ok := st.Conversation(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown conversation")
		return
	}
	writeJSON(w, http.StatusOK, ConversationView{
		Conversation: c,
		Selected:     st.SelectedConversationID() == id,
		Tickets:      nonNil(st.TicketsByConversation(id)),
		Issues:       nonNil(st.IssuesByConversation(id)),
		Applications: nonNil(st.ApplicationsByConversation(id)),
	})
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{"tickets": nonNil(s.desk.Store().TicketsByConversation(id))})
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{"issues": nonNil(s.desk.Store().IssuesByConversation(id))})
}

func (s *Server) listMessages(w http.ResponseWriter, _ *http.Request) {
	st := s.desk.Store()
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": st.SelectedConversationID(),
		"messages":       nonNil(st.Messages()),
	})
}

// UnreadResponse is the body of /api/unread.
type UnreadResponse struct {
	state.UnreadSnapshot
	Badge int `json:"badge"`
}

func (s *Server) getUnread(w http.ResponseWriter, _ *http.Request) {
	snap := s.desk.Store().Unread()
	writeJSON(w, http.StatusOK, UnreadResponse{UnreadSnapshot: snap, Badge: snap.Badge()})
}

func (s *Server) listNotifications(w http.ResponseWriter, _ *http.Request) {
	st := s.desk.Store()
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": nonNil(st.Notifications()),
		"unread":        st.UnreadNotificationCount(),
	})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "message archive disabled")
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidParams, "q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, CodeInvalidParams, "limit must be a positive integer")
			return
		}
		limit = n
	}
	results, err := s.archive.Search(query, domain.ID(q.Get("conversation")), limit)
	if err != nil {
		s.log.Warn().Err(err).Str("query", query).Msg("archive search failed")
		writeError(w, http.StatusInternalServerError, CodeFailed, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": nonNil(results)})
}

func applicationKind(w http.ResponseWriter, r *http.Request) (domain.ApplicationKind, bool) {
	kind := domain.ApplicationKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, "not_found", "unknown application catalog")
		return kind, false
	}
	return kind, true
}

// listApplications filters by status, dateRange and search when any is
// given, and by the catalog's stored filters otherwise.
func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	kind, ok := applicationKind(w, r)
	if !ok {
		return
	}
	st := s.desk.Store()
	q := r.URL.Query()
	f := st.ApplicationFilters(kind)
	if q.Has("status") || q.Has("dateRange") || q.Has("search") {
		f = domain.ApplicationFilters{
			Status:     strings.ToUpper(q.Get("status")),
			DateRange:  domain.DateRange(strings.ToUpper(q.Get("dateRange"))),
			SearchTerm: q.Get("search"),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":         kind,
		"filters":      f,
		"applications": nonNil(st.FilteredApplications(kind, f, time.Now())),
	})
}

// ApplicationView is one application and whether it is the open one.
type ApplicationView struct {
	Application domain.Application `json:"application"`
	Selected    bool               `json:"selected"`
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	kind, ok := applicationKind(w, r)
	if !ok {
		return
	}
	st := s.desk.Store()
	id := domain.ID(chi.URLParam(r, "id"))
	a, ok := st.Application(kind, id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown application")
		return
	}
	sel, _ := st.SelectedApplication(kind)
	writeJSON(w, http.StatusOK, ApplicationView{Application: a, Selected: sel.ID == id})
}

func (s *Server) getDashboard(w http.ResponseWriter, _ *http.Request) {
	d, ok := s.desk.Store().Dashboard()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "dashboard not fetched yet")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": ErrorShape{Code: code, Message: message}})
}
