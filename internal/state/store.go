// Package state holds the normalized in-memory view of conversations,
// messages, issues, tickets and applications, and the reducers that keep
// it consistent as REST results and pushed events arrive.
package state

import (
	"errors"
	"sync"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

var (
	// ErrInvalidStatus is returned for a conversation status outside the
	// lifecycle set.
	ErrInvalidStatus = errors.New("invalid conversation status")

	// ErrIssueNotResolved is returned when reopening an issue that is not RESOLVED.
	ErrIssueNotResolved = errors.New("only resolved issues can be reopened")

	// ErrUploadInProgress is returned when sending while an attachment upload runs.
	ErrUploadInProgress = errors.New("attachment upload in progress")
)

// ChangeKind names the part of the store a mutation touched.
type ChangeKind string

const (
	ChangeConversations ChangeKind = "conversations"
	ChangeMessages      ChangeKind = "messages"
	ChangeTickets       ChangeKind = "tickets"
	ChangeIssues        ChangeKind = "issues"
	ChangeAttachments   ChangeKind = "attachments"
	ChangeNotifications ChangeKind = "notifications"
	ChangeUnread        ChangeKind = "unread"
	ChangeSelection     ChangeKind = "selection"
	ChangeFilters       ChangeKind = "filters"
	ChangeApplications  ChangeKind = "applications"
	ChangeDashboard     ChangeKind = "dashboard"
	ChangeReset         ChangeKind = "reset"
)

// Change is delivered to subscribers after a mutation commits.
type Change struct {
	Kind ChangeKind `json:"kind"`
	ID   domain.ID  `json:"id,omitempty"`
}

// Listener receives committed changes. Listeners run outside the store
// lock and may be called from several goroutines.
type Listener func(Change)

// seenLimit bounds the set of message ids remembered for deduplication.
const seenLimit = 4096

// Store is the single owner of entity state. Every mutation goes through
// a reducer method; each one is atomic with respect to the others.
type Store struct {
	mu  sync.RWMutex
	log *logging.Logger

	conversations *Collection[domain.Conversation]
	issues        *Collection[domain.Issue]
	tickets       *Collection[domain.Ticket]

	// live message sequence of the selected conversation
	messages   []domain.Message
	messageIdx map[domain.ID]int
	seen       *idRing

	selectedConversation domain.ID
	selectedTicket       domain.ID
	selectedIssue        domain.ID

	pending        []domain.Attachment
	uploadProgress int // -1 when idle

	notifications []domain.Notification
	soundEnabled  bool

	unread  unreadState
	filters domain.ConversationFilters

	applications map[domain.ApplicationKind]*applicationBook
	dashboard    *domain.Dashboard

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// New creates an empty store.
func New(log *logging.Logger) *Store {
	s := &Store{
		log:       log.Sub("state"),
		listeners: make(map[int]Listener),
	}
	s.init()
	return s
}

func (s *Store) init() {
	s.conversations = NewCollection(func(c domain.Conversation) domain.ID { return c.ID })
	s.issues = NewCollection(func(i domain.Issue) domain.ID { return i.ID })
	s.tickets = NewCollection(func(t domain.Ticket) domain.ID { return t.ID })
	s.messages = nil
	s.messageIdx = make(map[domain.ID]int)
	s.seen = newIDRing(seenLimit)
	s.selectedConversation = ""
	s.selectedTicket = ""
	s.selectedIssue = ""
	s.pending = nil
	s.uploadProgress = -1
	s.notifications = nil
	s.soundEnabled = true
	s.unread = newUnreadState()
	s.filters = domain.ConversationFilters{}
	s.applications = newApplicationBooks()
	s.dashboard = nil
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

// Reset drops all state, as on sign-out. Subscribers stay registered.
func (s *Store) Reset() {
	s.mu.Lock()
	s.init()
	s.mu.Unlock()
	s.log.Debug().Msg("store reset")
	s.emit(Change{Kind: ChangeReset})
}

// mutate runs fn under the write lock and publishes what it reports.
func (s *Store) mutate(fn func() []Change) {
	s.mu.Lock()
	changes := fn()
	s.mu.Unlock()
	s.emit(changes...)
}

func (s *Store) emit(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.lmu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.lmu.RUnlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

// idRing is a bounded FIFO set of ids.
type idRing struct {
	set   map[domain.ID]struct{}
	order []domain.ID
	limit int
}

func newIDRing(limit int) *idRing {
	return &idRing{set: make(map[domain.ID]struct{}), limit: limit}
}

func (r *idRing) has(id domain.ID) bool {
	_, ok := r.set[id]
	return ok
}

func (r *idRing) add(id domain.ID) {
	if id.IsZero() || r.has(id) {
		return
	}
	if len(r.order) >= r.limit {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.set, oldest)
	}
	r.order = append(r.order, id)
	r.set[id] = struct{}{}
}
