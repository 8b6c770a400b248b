package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"teamboard-api/domain"
)

type taskEntity struct {
	aztables.Entity
	ColumnID    string `json:"ColumnId"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Priority    string `json:"Priority"`
	Status      string `json:"Status"`
	Position    int    `json:"Position"`
	AssignedTo  string `json:"AssignedTo"`
	DueDate     string `json:"DueDate"`
	CreatedBy   string `json:"CreatedBy"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func (e taskEntity) toDomain() domain.Task {
	t := domain.Task{
		ID:          e.RowKey,
		BoardID:     e.PartitionKey,
		ColumnID:    e.ColumnID,
		Title:       e.Title,
		Description: e.Description,
		Priority:    domain.Priority(e.Priority),
		Status:      domain.Status(e.Status),
		Position:    e.Position,
		AssignedTo:  e.AssignedTo,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}
	if e.DueDate != "" {
		due := parseTime(e.DueDate)
		t.DueDate = &due
	}
	return t
}

func taskToEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.BoardID, RowKey: t.ID},
		ColumnID:    t.ColumnID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		Position:    t.Position,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   formatTime(t.CreatedAt),
		UpdatedAt:   formatTime(t.UpdatedAt),
	}
	if t.DueDate != nil {
		ent.DueDate = formatTime(*t.DueDate)
	}
	return ent
}

// UpsertTask writes a full task row.
func (s *Storage) UpsertTask(ctx context.Context, t domain.Task) error {
	return upsert(ctx, s.tasks, taskToEntity(t))
}

// GetTask resolves a task by id alone.
func (s *Storage) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	var ent taskEntity
	if err := getSingle(ctx, s.tasks, rowFilter(taskID), &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.toDomain(), nil
}

// ListTasks returns all tasks on a board. Callers sort by position per
// column at render time.
func (s *Storage) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := listEntities(ctx, s.tasks, partitionFilter(boardID), func(data []byte) error {
		var ent taskEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		tasks = append(tasks, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListAllTasks scans the whole tasks table. Used by the deadline scan.
func (s *Storage) ListAllTasks(ctx context.Context) ([]domain.Task, error) {
	tasks := []domain.Task{}
	pager := s.tasks.NewListEntitiesPager(nil)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.toDomain())
		}
	}
	return tasks, nil
}

type taskMoveEntity struct {
	aztables.Entity
	ColumnID  string `json:"ColumnId"`
	Position  int    `json:"Position"`
	Status    string `json:"Status"`
	UpdatedAt string `json:"UpdatedAt"`
}

// MoveTask merges column, position, status and updated-at into an existing
// task row.
func (s *Storage) MoveTask(ctx context.Context, boardID, taskID, columnID string, position int, status domain.Status, updatedAt time.Time) error {
	return merge(ctx, s.tasks, taskMoveEntity{
		Entity:    aztables.Entity{PartitionKey: boardID, RowKey: taskID},
		ColumnID:  columnID,
		Position:  position,
		Status:    string(status),
		UpdatedAt: formatTime(updatedAt),
	})
}

type taskPositionEntity struct {
	aztables.Entity
	Position int `json:"Position"`
}

// UpdateTaskPosition merges a single position correction into a task row.
func (s *Storage) UpdateTaskPosition(ctx context.Context, boardID, taskID string, position int) error {
	return merge(ctx, s.tasks, taskPositionEntity{
		Entity:   aztables.Entity{PartitionKey: boardID, RowKey: taskID},
		Position: position,
	})
}

// DeleteTask removes a task row.
func (s *Storage) DeleteTask(ctx context.Context, boardID, taskID string) error {
	return deleteEntity(ctx, s.tasks, boardID, taskID)
}
