package view

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"teamboard-api/domain"
)

// Inbox is one user's live notification list, newest first.
type Inbox struct {
	mu            sync.Mutex
	userID        string
	notifications []domain.Notification
	logger        *log.Logger
}

// NewInbox creates an empty inbox view.
func NewInbox(userID string, logger *log.Logger) *Inbox {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Inbox{userID: userID, logger: logger}
}

// Load replaces the inbox with an initial newest-first list.
func (in *Inbox) Load(notifications []domain.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.notifications = append([]domain.Notification(nil), notifications...)
}

// Apply merges one notification change event. Inserts prepend, updates
// replace by id and leave unknown ids alone, deletes are idempotent.
func (in *Inbox) Apply(ev domain.ChangeEvent) {
	if ev.Collection != domain.CollectionNotifications {
		return
	}
	switch ev.Type {
	case domain.EventInsert:
		var n domain.Notification
		if err := json.Unmarshal(ev.After, &n); err != nil {
			in.logger.WithError(err).Error("parse notification insert")
			return
		}
		in.mu.Lock()
		defer in.mu.Unlock()
		for _, existing := range in.notifications {
			if existing.ID == n.ID {
				return
			}
		}
		in.notifications = append([]domain.Notification{n}, in.notifications...)
	case domain.EventUpdate:
		var n domain.Notification
		if err := json.Unmarshal(ev.After, &n); err != nil {
			in.logger.WithError(err).Error("parse notification update")
			return
		}
		in.mu.Lock()
		defer in.mu.Unlock()
		for i, existing := range in.notifications {
			if existing.ID == n.ID {
				in.notifications[i] = n
				return
			}
		}
	case domain.EventDelete:
		in.mu.Lock()
		defer in.mu.Unlock()
		for i, n := range in.notifications {
			if n.ID == ev.EntityID {
				in.notifications = append(in.notifications[:i], in.notifications[i+1:]...)
				return
			}
		}
	}
}

// Notifications returns the list, newest first.
func (in *Inbox) Notifications() []domain.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]domain.Notification(nil), in.notifications...)
}

// Unread counts notifications not yet marked read.
func (in *Inbox) Unread() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	count := 0
	for _, n := range in.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}
