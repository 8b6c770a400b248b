package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"teamboard-api/domain"
)

type chatMessageEntity struct {
	aztables.Entity
	UserID    string `json:"UserId"`
	Content   string `json:"Content"`
	CreatedAt string `json:"CreatedAt"`
}

func (e chatMessageEntity) toDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:        e.RowKey,
		TeamID:    e.PartitionKey,
		UserID:    e.UserID,
		Content:   e.Content,
		CreatedAt: parseTime(e.CreatedAt),
	}
}

// AppendChatMessage writes a chat message row.
func (s *Storage) AppendChatMessage(ctx context.Context, m domain.ChatMessage) error {
	return upsert(ctx, s.chatMessages, chatMessageEntity{
		Entity:    aztables.Entity{PartitionKey: m.TeamID, RowKey: m.ID},
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: formatTime(m.CreatedAt),
	})
}

// ListChatMessages returns a team's messages ordered by creation time
// ascending. When limit > 0 only the most recent messages are returned,
// still in ascending order.
func (s *Storage) ListChatMessages(ctx context.Context, teamID string, limit int) ([]domain.ChatMessage, error) {
	messages := []domain.ChatMessage{}
	err := listEntities(ctx, s.chatMessages, partitionFilter(teamID), func(data []byte) error {
		var ent chatMessageEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		messages = append(messages, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.Before(messages[j].CreatedAt) })
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// DeleteChatHistory removes all of a team's messages. Used when a team is
// deleted.
func (s *Storage) DeleteChatHistory(ctx context.Context, teamID string) error {
	messages, err := s.ListChatMessages(ctx, teamID, 0)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if err := deleteEntity(ctx, s.chatMessages, teamID, m.ID); err != nil {
			return err
		}
	}
	return nil
}
