package view

import (
	"context"
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"teamboard-api/domain"
)

// ChatLog is the live message list of one team channel. Messages append in
// arrival order; the initial load is creation-time ascending, so the two
// orders agree.
type ChatLog struct {
	mu       sync.Mutex
	teamID   string
	messages []domain.ChatMessage
	users    map[string]domain.User
	hydrator Hydrator
	logger   *log.Logger
}

// NewChatLog creates an empty chat view.
func NewChatLog(teamID string, hydrator Hydrator, logger *log.Logger) *ChatLog {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ChatLog{
		teamID:   teamID,
		users:    make(map[string]domain.User),
		hydrator: hydrator,
		logger:   logger,
	}
}

// Load replaces the log with an initial message list.
func (l *ChatLog) Load(ctx context.Context, messages []domain.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append([]domain.ChatMessage(nil), messages...)
	for _, m := range messages {
		l.hydrateLocked(ctx, m.UserID)
	}
}

// Apply merges one chat change event.
func (l *ChatLog) Apply(ctx context.Context, ev domain.ChangeEvent) {
	if ev.Collection != domain.CollectionChatMessages {
		return
	}
	switch ev.Type {
	case domain.EventInsert:
		var m domain.ChatMessage
		if err := json.Unmarshal(ev.After, &m); err != nil {
			l.logger.WithError(err).Error("parse chat insert")
			return
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		for _, existing := range l.messages {
			if existing.ID == m.ID {
				return
			}
		}
		l.messages = append(l.messages, m)
		l.hydrateLocked(ctx, m.UserID)
	case domain.EventDelete:
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, m := range l.messages {
			if m.ID == ev.EntityID {
				l.messages = append(l.messages[:i], l.messages[i+1:]...)
				return
			}
		}
	}
}

// Messages returns the log in arrival order.
func (l *ChatLog) Messages() []domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ChatMessage(nil), l.messages...)
}

// Author returns a hydrated author relation, if known.
func (l *ChatLog) Author(id string) (domain.User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	return u, ok
}

func (l *ChatLog) hydrateLocked(ctx context.Context, userID string) {
	if l.hydrator == nil || userID == "" {
		return
	}
	if _, ok := l.users[userID]; ok {
		return
	}
	users, err := l.hydrator.GetUsers(ctx, []string{userID})
	if err != nil {
		l.logger.WithError(err).Error("hydrate chat author")
		return
	}
	for id, u := range users {
		l.users[id] = u
	}
}
