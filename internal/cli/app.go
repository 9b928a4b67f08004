package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/credentials"
	"github.com/soyeahso/agentdesk/internal/desk"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/realtime"
	"github.com/soyeahso/agentdesk/internal/state"
	"github.com/soyeahso/agentdesk/internal/store"
)

var _ credentials.Storage = (*store.KV)(nil)

// app is the set of components every command builds from config.
type app struct {
	cfg     config.Config
	db      *store.DB
	creds   *credentials.Manager
	api     *api.Client
	store   *state.Store
	hooks   *hooks.Manager
	desk    *desk.Desk
	archive *store.Archive

	expired    chan struct{}
	expireOnce sync.Once
}

// openApp opens the local database and wires credentials, the API client
// and the desk. The caller must call close.
func openApp(cfg config.Config) (*app, error) {
	db, err := store.Open(paths.Database(), log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var storage credentials.Storage = store.NewKV(db)
	if cfg.Credentials.Store == "memory" {
		storage = credentials.NewMemoryStorage()
	}
	creds := credentials.NewManager(storage, log)

	a := &app{
		cfg:     cfg,
		db:      db,
		creds:   creds,
		store:   state.New(log),
		hooks:   hooks.NewManager(log),
		archive: store.NewArchive(db),
		expired: make(chan struct{}),
	}
	client := api.New(cfg.API, creds, log, api.WithSessionExpired(a.expireSession))
	a.api = client
	a.desk = desk.New(a.store, client, desk.Options{
		RefreshOnPush: cfg.Realtime.RefreshOnPush,
		Hooks:         a.hooks,
		Archive:       a.archive,
		Snapshots:     store.NewSnapshots(db),
	}, log)
	return a, nil
}

// realtime builds the push channel client with the desk as its handler.
func (a *app) realtime() (*realtime.Client, error) {
	url, err := a.cfg.RealtimeURL()
	if err != nil {
		return nil, err
	}
	return realtime.New(realtime.Options{
		URL:               url,
		HeartbeatInterval: a.cfg.Realtime.HeartbeatInterval,
		ReconnectDelay:    a.cfg.Realtime.ReconnectDelay,
		HandshakeTimeout:  a.cfg.Realtime.HandshakeTimeout,
	}, a.creds, a.desk, log), nil
}

func (a *app) close() {
	a.desk.Wait()
	a.hooks.Wait()
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}

// expireSession records that the backend refused to refresh the session.
func (a *app) expireSession() {
	a.expireOnce.Do(func() {
		log.Warn().Msg("session expired, run `agentdesk login` to sign in again")
		close(a.expired)
	})
}

// watchSession derives a context that is cancelled with
// api.ErrSessionExpired when the session expires. stop releases it.
func (a *app) watchSession(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-a.expired:
			cancel(api.ErrSessionExpired)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// sessionExpired wraps api.ErrSessionExpired with the login hint.
func sessionExpired() error {
	return fmt.Errorf("%w: run `agentdesk login` to sign in again", api.ErrSessionExpired)
}

// requireSession returns the stored session or a hint to log in.
func (a *app) requireSession() (credentials.Session, error) {
	sess, err := a.creds.Require()
	if err != nil {
		return sess, fmt.Errorf("%w: run `agentdesk login` first", err)
	}
	return sess, nil
}
