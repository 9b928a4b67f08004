// Package credentials persists the agent's bearer token, refresh token and
// agent record, and reads token claims.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Storage keys.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// ErrNotSignedIn is returned when no token or agent is stored.
var ErrNotSignedIn = errors.New("not signed in")

// Storage is a string key-value store.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// Session is what a signed-in agent has stored.
type Session struct {
	Token        string
	RefreshToken string
	Agent        domain.Agent
}

// Valid reports whether the session has both a token and an agent id.
func (s Session) Valid() bool {
	return s.Token != "" && !s.Agent.ID.IsZero()
}

// Manager reads and writes the session through a Storage.
type Manager struct {
	mu      sync.Mutex
	storage Storage
	log     *logging.Logger
}

// NewManager creates a manager over storage.
func NewManager(storage Storage, log *logging.Logger) *Manager {
	return &Manager{storage: storage, log: log.Sub("credentials")}
}

// Load returns the stored session. Missing keys leave fields empty.
func (m *Manager) Load() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() (Session, error) {
	var s Session
	var err error
	if s.Token, _, err = m.storage.Get(KeyToken); err != nil {
		return Session{}, fmt.Errorf("reading token: %w", err)
	}
	if s.RefreshToken, _, err = m.storage.Get(KeyRefreshToken); err != nil {
		return Session{}, fmt.Errorf("reading refresh token: %w", err)
	}
	raw, ok, err := m.storage.Get(KeyUser)
	if err != nil {
		return Session{}, fmt.Errorf("reading user: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Agent); err != nil {
			m.log.Warn().Err(err).Msg("stored user record is unreadable")
		}
	}
	return s, nil
}

// Token returns the stored bearer token.
func (m *Manager) Token() (string, error) {
	s, err := m.Load()
	if err != nil {
		return "", err
	}
	if s.Token == "" {
		return "", ErrNotSignedIn
	}
	return s.Token, nil
}

// Require returns the stored session, or ErrNotSignedIn when the token or
// agent identity is missing.
func (m *Manager) Require() (Session, error) {
	s, err := m.Load()
	if err != nil {
		return Session{}, err
	}
	if !s.Valid() {
		return Session{}, ErrNotSignedIn
	}
	return s, nil
}

// Save stores a complete session.
func (m *Manager) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, err := json.Marshal(s.Agent)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	if err := m.storage.Set(KeyToken, s.Token); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	if err := m.setRefresh(s.RefreshToken); err != nil {
		return err
	}
	if err := m.storage.Set(KeyUser, string(user)); err != nil {
		return fmt.Errorf("writing user: %w", err)
	}
	m.log.Debug().Str("agent", s.Agent.ID.String()).Msg("session saved")
	return nil
}

// UpdateTokens replaces the token pair after a refresh. An empty refresh
// token keeps the stored one.
func (m *Manager) UpdateTokens(token, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.Set(KeyToken, token); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	if refresh == "" {
		return nil
	}
	return m.setRefresh(refresh)
}

func (m *Manager) setRefresh(refresh string) error {
	if refresh == "" {
		if err := m.storage.Delete(KeyRefreshToken); err != nil {
			return fmt.Errorf("clearing refresh token: %w", err)
		}
		return nil
	}
	if err := m.storage.Set(KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("writing refresh token: %w", err)
	}
	return nil
}

// Clear removes every stored credential.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.storage.Delete(KeyToken, KeyRefreshToken, KeyUser); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	m.log.Info().Msg("credentials cleared")
	return nil
}

// Claims is the part of an access token the desk reads.
type Claims struct {
	UserID   domain.ID `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role,omitempty"`
	jwt.StandardClaims
}

// Expiry returns the exp claim, or zero when the token has none.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.ExpiresAt, 0)
}

// AgentID returns user_id, falling back to sub.
func (c Claims) AgentID() domain.ID {
	if !c.UserID.IsZero() {
		return c.UserID
	}
	return domain.ID(c.Subject)
}

// ParseClaims decodes a token's claims without verifying its signature.
// The server verifies tokens; the desk only reads identity and expiry.
func ParseClaims(token string) (Claims, error) {
	var claims Claims
	if _, _, err := new(jwt.Parser).ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("parsing token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the token's exp claim lies before now. Tokens
// that cannot be parsed or carry no exp are treated as not expired.
func Expired(token string, now time.Time) bool {
	c, err := ParseClaims(token)
	if err != nil {
		return false
	}
	exp := c.Expiry()
	return !exp.IsZero() && exp.Before(now)
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStorage creates an empty in-process storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStorage) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}
