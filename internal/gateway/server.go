// Package gateway serves the desk state to local dashboard viewers over
// HTTP and a WebSocket RPC protocol.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/desk"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/realtime"
	"github.com/soyeahso/agentdesk/internal/state"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/soyeahso/agentdesk/internal/version"
)

var (
	// ErrViewerClosed is returned when sending to a closed viewer.
	ErrViewerClosed = errors.New("viewer connection closed")
	// ErrViewerBehind is returned when a viewer's outbound queue is full.
	// The viewer is closed.
	ErrViewerBehind = errors.New("viewer is not keeping up")
)

const (
	maxPayload       = 4 * 1024 * 1024
	handshakeTimeout = 10 * time.Second
	rpcTimeout       = 30 * time.Second
)

// Desk is the command surface the gateway drives.
type Desk interface {
	Store() *state.Store
	OpenConversation(ctx context.Context, id domain.ID) (domain.ConversationDetails, error)
	CloseConversation()
	SendMessage(ctx context.Context, content string, issueID domain.ID) (domain.Message, error)
	UpdateConversationStatus(ctx context.Context, id domain.ID, status domain.ConversationStatus) error
	AssignConversation(ctx context.Context, id, agentID domain.ID) error
	UpdateTicketStatus(ctx context.Context, id domain.ID, status, note string) error
	FetchTicketByNumber(ctx context.Context, number string) (domain.Ticket, error)
	Typing(typing bool) error

	FetchApplications(ctx context.Context, kind domain.ApplicationKind) ([]domain.Application, error)
	ApplyApplicationFilters(ctx context.Context, kind domain.ApplicationKind, f domain.ApplicationFilters) ([]domain.Application, error)
	OpenApplication(ctx context.Context, kind domain.ApplicationKind, id domain.ID) (domain.Application, error)
	CloseApplication(kind domain.ApplicationKind)
	UpdateApplicationStatus(ctx context.Context, kind domain.ApplicationKind, id domain.ID, status, notes string) (domain.Application, error)
	AddApplicationNote(ctx context.Context, kind domain.ApplicationKind, id domain.ID, content string) (domain.ApplicationNote, error)
	FetchDashboard(ctx context.Context, period string) (domain.Dashboard, error)
}

var _ Desk = (*desk.Desk)(nil)

// Focuser is told when a viewer regains window focus.
type Focuser interface {
	Focus()
}

// Searcher searches the local message archive.
type Searcher interface {
	Search(query string, conversationID domain.ID, limit int) ([]store.ArchivedMessage, error)
}

// Transport is the push channel as seen by viewers.
type Transport interface {
	State() realtime.State
	Reconnect(ctx context.Context) error
}

// Server is the local viewer gateway.
type Server struct {
	cfg      config.GatewayConfig
	token    string
	desk     Desk
	log      *logging.Logger
	viewers  *Viewers
	handlers map[string]RequestHandler
	eventSeq atomic.Int64

	focus     Focuser
	archive   Searcher
	transport Transport

	baseCtx     context.Context
	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	limiter     *authLimiter
	unsubscribe func()
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithFocus forwards window.focus requests to f.
func WithFocus(f Focuser) ServerOption {
	return func(s *Server) { s.focus = f }
}

// WithArchive enables /api/search.
func WithArchive(a Searcher) ServerOption {
	return func(s *Server) { s.archive = a }
}

// WithTransport reports the push channel state in health responses.
func WithTransport(t Transport) ServerOption {
	return func(s *Server) { s.transport = t }
}

// New creates a gateway over d. Store changes are broadcast to viewers as
// state.changed events from this point on.
func New(cfg config.GatewayConfig, d Desk, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		token:    ResolveToken(cfg.Auth),
		desk:     d,
		log:      log.Sub("gateway"),
		handlers: make(map[string]RequestHandler),
		baseCtx:  context.Background(),
		limiter:  newAuthLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
	s.viewers = NewViewers(s.log.Sub("viewers"))
	for _, opt := range opts {
		opt(s)
	}
	s.registerRPCHandlers()
	s.unsubscribe = d.Store().Subscribe(s.broadcastChange)
	return s
}

// checkWebSocketOrigin allows non-browser clients and the configured
// origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method.
func (s *Server) Handle(method string, h RequestHandler) {
	s.handlers[method] = h
}

// Methods returns the registered RPC methods, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Viewers returns the number of connected viewers.
func (s *Server) Viewers() int { return s.viewers.Count() }

func (s *Server) broadcastChange(c state.Change) {
	s.viewers.Broadcast(EventStateChanged, c, s.eventSeq.Add(1))
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.baseCtx = ctx
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if s.token == "" {
		s.log.Warn().Msg("no gateway token configured; /api and /ws will refuse every viewer")
	}
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Int("methods", len(s.handlers)).
		Msg("gateway ready")

	go s.sweepLimiter(ctx)
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway")
		s.unsubscribe()
		s.viewers.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.sweep()
		}
	}
}

// handleWebSocket upgrades, authenticates and serves one viewer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited viewer")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	v, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("viewer handshake failed")
		s.limiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.viewers.Add(v)
	defer func() {
		s.viewers.Remove(v.ConnID)
		v.Close()
	}()
	s.readLoop(v)
}

// handshake sends a challenge, expects a connect request carrying the
// gateway token and answers with hello.
func (s *Server) handshake(conn *websocket.Conn) (*Viewer, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		rejectHandshake(conn, frame.ID, CodeProtocol, "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		rejectHandshake(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.Protocol != 0 && params.Protocol != ProtocolVersion {
		rejectHandshake(conn, frame.ID, CodeProtocol, fmt.Sprintf("unsupported protocol %d", params.Protocol))
		return nil, fmt.Errorf("unsupported protocol %d", params.Protocol)
	}
	if res := Authorize(s.token, params.Auth); !res.OK {
		rejectHandshake(conn, frame.ID, CodeUnauthorized, res.Reason)
		return nil, fmt.Errorf("auth failed: %s", res.Reason)
	}
	conn.SetReadDeadline(time.Time{})

	v := newViewer(conn, params.Client)
	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: version.Version, Commit: version.Revision(), ConnID: v.ConnID},
		Methods:  s.Methods(),
		Events:   []string{EventChallenge, EventStateChanged},
		Policy:   Policy{MaxPayload: maxPayload},
	}
	if err := v.Respond(frame.ID, hello); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", v.ConnID).
		Str("viewer", params.Client.ID).
		Str("viewerVersion", params.Client.Version).
		Msg("viewer authenticated")
	return v, nil
}

func (s *Server) readLoop(v *Viewer) {
	for {
		frame, err := v.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", v.ConnID).Msg("viewer closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", v.ConnID).Msg("viewer read failed")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(v, frame)
	}
}

func (s *Server) dispatch(v *Viewer, frame Frame) {
	h, ok := s.handlers[frame.Method]
	if !ok {
		v.RespondError(frame.ID, ErrorShape{Code: CodeMethodNotFound, Message: "unknown method: " + frame.Method})
		return
	}
	h(&RequestContext{Viewer: v, Frame: frame, Server: s})
}

func rejectHandshake(conn *websocket.Conn, id, code, message string) {
	conn.WriteJSON(NewErrorResponse(id, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
