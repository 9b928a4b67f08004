package state

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// maxNotifications caps the notification list; the oldest are dropped.
const maxNotifications = 100

// AddNotification prepends n to the list, filling in id, timestamp and
// importance when they are empty. It returns the stored notification.
func (s *Store) AddNotification(n domain.Notification) domain.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = domain.NewTimestamp(time.Now())
	}
	if n.Importance == "" {
		n.Importance = domain.ImportanceMedium
	}
	if n.Type == "" {
		n.Type = domain.NotificationSystem
	}
	n.Read = false

	s.mutate(func() []Change {
		s.notifications = append([]domain.Notification{n}, s.notifications...)
		if len(s.notifications) > maxNotifications {
			s.notifications = s.notifications[:maxNotifications]
		}
		return []Change{{Kind: ChangeNotifications, ID: domain.ID(n.ID)}}
	})
	return n
}

// MarkNotificationRead flags one notification as read.
func (s *Store) MarkNotificationRead(id string) {
	s.mutate(func() []Change {
		for i := range s.notifications {
			if s.notifications[i].ID == id && !s.notifications[i].Read {
				s.notifications[i].Read = true
				return []Change{{Kind: ChangeNotifications, ID: domain.ID(id)}}
			}
		}
		return nil
	})
}

// MarkAllNotificationsRead flags every notification as read.
func (s *Store) MarkAllNotificationsRead() {
	s.mutate(func() []Change {
		for i := range s.notifications {
			s.notifications[i].Read = true
		}
		return []Change{{Kind: ChangeNotifications}}
	})
}

// RemoveNotification drops one notification.
func (s *Store) RemoveNotification(id string) {
	s.mutate(func() []Change {
		s.notifications = slices.DeleteFunc(s.notifications, func(n domain.Notification) bool { return n.ID == id })
		return []Change{{Kind: ChangeNotifications, ID: domain.ID(id)}}
	})
}

// ClearNotifications drops every notification.
func (s *Store) ClearNotifications() {
	s.mutate(func() []Change {
		s.notifications = nil
		return []Change{{Kind: ChangeNotifications}}
	})
}

// ToggleSound flips the notification sound preference and returns it.
func (s *Store) ToggleSound() bool {
	var on bool
	s.mutate(func() []Change {
		s.soundEnabled = !s.soundEnabled
		on = s.soundEnabled
		return []Change{{Kind: ChangeNotifications}}
	})
	return on
}

// SoundEnabled reports the notification sound preference.
func (s *Store) SoundEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.soundEnabled
}

// Notifications returns the notification list, newest first.
func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notifications)
}

// UnreadNotificationCount counts notifications not yet read.
func (s *Store) UnreadNotificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadNotifications()
}

func (s *Store) unreadNotifications() int {
	n := 0
	for _, x := range s.notifications {
		if !x.Read {
			n++
		}
	}
	return n
}
