package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"teamboard-api/domain"
)

type notificationEntity struct {
	aztables.Entity
	Type      string `json:"Type"`
	Title     string `json:"Title"`
	Message   string `json:"Message"`
	Data      string `json:"Data"`
	Read      bool   `json:"Read"`
	CreatedAt string `json:"CreatedAt"`
}

func (e notificationEntity) toDomain() domain.Notification {
	return domain.Notification{
		ID:        e.RowKey,
		UserID:    e.PartitionKey,
		Type:      domain.NotificationType(e.Type),
		Title:     e.Title,
		Message:   e.Message,
		Data:      decodePayload(e.Data),
		Read:      e.Read,
		CreatedAt: parseTime(e.CreatedAt),
	}
}

func notificationToEntity(n domain.Notification) notificationEntity {
	return notificationEntity{
		Entity:    aztables.Entity{PartitionKey: n.UserID, RowKey: n.ID},
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Data:      encodePayload(n.Data),
		Read:      n.Read,
		CreatedAt: formatTime(n.CreatedAt),
	}
}

// InsertNotification writes a single notification row.
func (s *Storage) InsertNotification(ctx context.Context, n domain.Notification) error {
	return upsert(ctx, s.notifications, notificationToEntity(n))
}

// InsertNotifications bulk-inserts notification rows. Rows are grouped by
// recipient partition and each group is submitted as one transaction.
func (s *Storage) InsertNotifications(ctx context.Context, notifications []domain.Notification) error {
	byUser := map[string][]domain.Notification{}
	for _, n := range notifications {
		byUser[n.UserID] = append(byUser[n.UserID], n)
	}
	for _, group := range byUser {
		actions := make([]aztables.TransactionAction, 0, len(group))
		for _, n := range group {
			payload, err := json.Marshal(notificationToEntity(n))
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeInsertMerge,
				Entity:     payload,
			})
		}
		if _, err := s.notifications.SubmitTransaction(ctx, actions, nil); err != nil {
			return err
		}
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first. When
// limit > 0 the result is truncated.
func (s *Storage) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	notifications := []domain.Notification{}
	err := listEntities(ctx, s.notifications, partitionFilter(userID), func(data []byte) error {
		var ent notificationEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		notifications = append(notifications, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

type notificationReadEntity struct {
	aztables.Entity
	Read bool `json:"Read"`
}

// MarkNotificationRead flips the read flag on one notification.
func (s *Storage) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return merge(ctx, s.notifications, notificationReadEntity{
		Entity: aztables.Entity{PartitionKey: userID, RowKey: id},
		Read:   true,
	})
}

// MarkAllNotificationsRead flips the read flag on every unread notification
// of a user.
func (s *Storage) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	notifications, err := s.ListNotifications(ctx, userID, 0)
	if err != nil {
		return err
	}
	for _, n := range notifications {
		if n.Read {
			continue
		}
		if err := s.MarkNotificationRead(ctx, userID, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueNotifications sends notification jobs to the delivery queue, one
// message per notification.
func (s *Storage) EnqueueNotifications(ctx context.Context, notifications []domain.Notification) error {
	for _, n := range notifications {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if _, err := s.notifyQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

// QueuedNotification is a dequeued delivery job together with the handles
// needed to delete it after processing.
type QueuedNotification struct {
	Payload    string
	MessageID  string
	PopReceipt string
}

// DequeueNotification pulls at most one job from the delivery queue. A nil
// result means the queue was empty.
func (s *Storage) DequeueNotification(ctx context.Context) (*QueuedNotification, error) {
	resp, err := s.notifyQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	q := &QueuedNotification{}
	if msg.MessageText != nil {
		q.Payload = *msg.MessageText
	}
	if msg.MessageID != nil {
		q.MessageID = *msg.MessageID
	}
	if msg.PopReceipt != nil {
		q.PopReceipt = *msg.PopReceipt
	}
	return q, nil
}

// DeleteNotificationMessage acknowledges a processed delivery job.
func (s *Storage) DeleteNotificationMessage(ctx context.Context, messageID, popReceipt string) error {
	_, err := s.notifyQueue.DeleteMessage(ctx, messageID, popReceipt, nil)
	return err
}
