package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"teamboard-api/domain"
)

type boardEntity struct {
	aztables.Entity
	Name        string `json:"Name"`
	Description string `json:"Description"`
	CreatedBy   string `json:"CreatedBy"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func (e boardEntity) toDomain() domain.Board {
	return domain.Board{
		ID:          e.RowKey,
		TeamID:      e.PartitionKey,
		Name:        e.Name,
		Description: e.Description,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}
}

// UpsertBoard writes a board row.
func (s *Storage) UpsertBoard(ctx context.Context, b domain.Board) error {
	return upsert(ctx, s.boards, boardEntity{
		Entity:      aztables.Entity{PartitionKey: b.TeamID, RowKey: b.ID},
		Name:        b.Name,
		Description: b.Description,
		CreatedBy:   b.CreatedBy,
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
	})
}

// GetBoard resolves a board by id alone. Boards are partitioned by team, so
// this is a row-key scan.
func (s *Storage) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	var ent boardEntity
	if err := getSingle(ctx, s.boards, rowFilter(boardID), &ent); err != nil {
		return domain.Board{}, err
	}
	return ent.toDomain(), nil
}

// ListBoards returns all boards owned by a team.
func (s *Storage) ListBoards(ctx context.Context, teamID string) ([]domain.Board, error) {
	boards := []domain.Board{}
	err := listEntities(ctx, s.boards, partitionFilter(teamID), func(data []byte) error {
		var ent boardEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		boards = append(boards, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].CreatedAt.Before(boards[j].CreatedAt) })
	return boards, nil
}

// DeleteBoard removes the board row along with its columns and tasks.
func (s *Storage) DeleteBoard(ctx context.Context, teamID, boardID string) error {
	columns, err := s.ListColumns(ctx, boardID)
	if err != nil {
		return err
	}
	for _, c := range columns {
		if err := deleteEntity(ctx, s.boardColumns, boardID, c.ID); err != nil {
			return err
		}
	}
	tasks, err := s.ListTasks(ctx, boardID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := deleteEntity(ctx, s.tasks, boardID, t.ID); err != nil {
			return err
		}
	}
	return deleteEntity(ctx, s.boards, teamID, boardID)
}

type columnEntity struct {
	aztables.Entity
	Name     string `json:"Name"`
	Color    string `json:"Color"`
	Position int    `json:"Position"`
	Role     string `json:"Role"`
}

func (e columnEntity) toDomain() domain.Column {
	return domain.Column{
		ID:       e.RowKey,
		BoardID:  e.PartitionKey,
		Name:     e.Name,
		Color:    e.Color,
		Position: e.Position,
		Role:     domain.ColumnRole(e.Role),
	}
}

// UpsertColumn writes a column row.
func (s *Storage) UpsertColumn(ctx context.Context, c domain.Column) error {
	return upsert(ctx, s.boardColumns, columnEntity{
		Entity:   aztables.Entity{PartitionKey: c.BoardID, RowKey: c.ID},
		Name:     c.Name,
		Color:    c.Color,
		Position: c.Position,
		Role:     string(c.Role),
	})
}

// GetColumn resolves a column by id alone.
func (s *Storage) GetColumn(ctx context.Context, columnID string) (domain.Column, error) {
	var ent columnEntity
	if err := getSingle(ctx, s.boardColumns, rowFilter(columnID), &ent); err != nil {
		return domain.Column{}, err
	}
	return ent.toDomain(), nil
}

// ListColumns returns a board's columns ordered by position.
func (s *Storage) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	columns := []domain.Column{}
	err := listEntities(ctx, s.boardColumns, partitionFilter(boardID), func(data []byte) error {
		var ent columnEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		columns = append(columns, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Position < columns[j].Position })
	return columns, nil
}

// DeleteColumn removes a column row.
func (s *Storage) DeleteColumn(ctx context.Context, boardID, columnID string) error {
	return deleteEntity(ctx, s.boardColumns, boardID, columnID)
}
