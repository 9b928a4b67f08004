// Package unread keeps the unread badge in step with the server by polling
// unread stats, independently of the push channel.
package unread

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/state"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 30 * time.Second

// StatsSource fetches the server's unread summary.
type StatsSource interface {
	GetUnreadStats(ctx context.Context) (domain.UnreadStats, error)
}

// Aggregator polls unread stats into the store and tracks the badge total.
type Aggregator struct {
	store    *state.Store
	source   StatsSource
	hooks    *hooks.Manager
	interval time.Duration
	log      *logging.Logger

	focus chan struct{}

	mu        sync.Mutex
	lastTotal int
	primed    bool
}

// New creates an aggregator. A nil hook manager disables unread_changed
// events.
func New(store *state.Store, source StatsSource, interval time.Duration, hm *hooks.Manager, log *logging.Logger) *Aggregator {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Aggregator{
		store:    store,
		source:   source,
		hooks:    hm,
		interval: interval,
		log:      log.Sub("unread"),
		focus:    make(chan struct{}, 1),
	}
}

// Run refreshes once, then on every tick and every Focus signal, until ctx
// is done. Signals that arrive while a refresh runs collapse into one.
func (a *Aggregator) Run(ctx context.Context) {
	unsubscribe := a.store.Subscribe(func(c state.Change) {
		switch c.Kind {
		case state.ChangeNotifications, state.ChangeUnread, state.ChangeReset:
			a.check(ctx)
		}
	})
	defer unsubscribe()

	a.refreshLogged(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshLogged(ctx)
		case <-a.focus:
			a.log.Trace().Msg("focus regained")
			a.refreshLogged(ctx)
		}
	}
}

// Focus asks for a refresh, as when the dashboard window regains focus.
// It never blocks.
func (a *Aggregator) Focus() {
	select {
	case a.focus <- struct{}{}:
	default:
	}
}

// Refresh fetches unread stats and replaces the store's copy.
func (a *Aggregator) Refresh(ctx context.Context) error {
	stats, err := a.source.GetUnreadStats(ctx)
	if err != nil {
		return err
	}
	a.store.ApplyUnreadStats(stats)
	a.log.Debug().
		Int("messages", stats.TotalUnreadMessages).
		Int("conversations", len(stats.ConversationsWithUnread)).
		Msg("unread stats applied")
	a.check(ctx)
	return nil
}

func (a *Aggregator) refreshLogged(ctx context.Context) {
	if err := a.Refresh(ctx); err != nil && ctx.Err() == nil {
		a.log.Warn().Err(err).Msg("unread stats refresh failed")
	}
}

// Total is the badge count: unread messages plus unread notifications.
func (a *Aggregator) Total() int {
	return a.store.TotalUnread()
}

// check emits unread_changed when the badge total moved since the last
// check.
func (a *Aggregator) check(ctx context.Context) {
	snap := a.store.Unread()
	total := snap.Badge()

	a.mu.Lock()
	changed := !a.primed || total != a.lastTotal
	previous := a.lastTotal
	a.lastTotal = total
	a.primed = true
	a.mu.Unlock()

	if !changed || a.hooks == nil {
		return
	}
	a.hooks.EmitAsync(ctx, hooks.EventUnreadChanged, map[string]any{
		"total":         total,
		"previous":      previous,
		"messages":      snap.Total,
		"notifications": snap.Notifications,
	})
}
