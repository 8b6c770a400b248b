// Package view holds the realtime reconciliation layer: local collections
// fed by change events, and the optimistic mutation path for task moves.
// The backing store stays authoritative; everything here is a transient
// cache reconciled against the feed.
package view

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"teamboard-api/domain"
)

// Hydrator fetches user relations referenced by inserted rows.
type Hydrator interface {
	GetUsers(ctx context.Context, ids []string) (map[string]domain.User, error)
}

// Board is the live, reconciled state of one kanban board.
type Board struct {
	mu       sync.Mutex
	boardID  string
	columns  map[string]domain.Column
	tasks    map[string]domain.Task
	users    map[string]domain.User
	hydrator Hydrator
	logger   *log.Logger

	// Last fully-loaded snapshot; the revert point for optimistic moves.
	settledColumns []domain.Column
	settledTasks   []domain.Task

	mutations []*Mutation
}

// NewBoard creates an empty board view.
func NewBoard(boardID string, hydrator Hydrator, logger *log.Logger) *Board {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Board{
		boardID:  boardID,
		columns:  make(map[string]domain.Column),
		tasks:    make(map[string]domain.Task),
		users:    make(map[string]domain.User),
		hydrator: hydrator,
		logger:   logger,
	}
}

// Load replaces the view with a fully-loaded snapshot and records it as the
// new settled state.
func (b *Board) Load(ctx context.Context, columns []domain.Column, tasks []domain.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.columns = make(map[string]domain.Column, len(columns))
	for _, c := range columns {
		b.columns[c.ID] = c
	}
	b.tasks = make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		b.tasks[t.ID] = t
	}
	b.settledColumns = append([]domain.Column(nil), columns...)
	b.settledTasks = append([]domain.Task(nil), tasks...)
	b.mutations = nil

	b.hydrateLocked(ctx, tasks)
}

// Apply merges one change event into the view. Events for collections the
// board does not track are ignored.
func (b *Board) Apply(ctx context.Context, ev domain.ChangeEvent) {
	switch ev.Collection {
	case domain.CollectionTasks:
		b.applyTask(ctx, ev)
	case domain.CollectionBoardColumns:
		b.applyColumn(ev)
	}
}

func (b *Board) applyTask(ctx context.Context, ev domain.ChangeEvent) {
	switch ev.Type {
	case domain.EventInsert:
		var t domain.Task
		if err := json.Unmarshal(ev.After, &t); err != nil {
			b.logger.WithError(err).Error("parse task insert")
			return
		}
		b.mu.Lock()
		b.tasks[t.ID] = t
		b.hydrateLocked(ctx, []domain.Task{t})
		b.mu.Unlock()
	case domain.EventUpdate:
		var t domain.Task
		if err := json.Unmarshal(ev.After, &t); err != nil {
			b.logger.WithError(err).Error("parse task update")
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.tasks[t.ID]; !ok {
			// Unknown ids are ignored; updates never become inserts.
			return
		}
		b.tasks[t.ID] = t
		b.confirmReconciledLocked(t)
	case domain.EventDelete:
		// Removal by id is idempotent: a second delivery finds nothing.
		b.mu.Lock()
		delete(b.tasks, ev.EntityID)
		b.mu.Unlock()
	}
}

func (b *Board) applyColumn(ev domain.ChangeEvent) {
	switch ev.Type {
	case domain.EventInsert, domain.EventUpdate:
		var c domain.Column
		if err := json.Unmarshal(ev.After, &c); err != nil {
			b.logger.WithError(err).Error("parse column event")
			return
		}
		b.mu.Lock()
		if ev.Type == domain.EventUpdate {
			if _, ok := b.columns[c.ID]; !ok {
				b.mu.Unlock()
				return
			}
		}
		b.columns[c.ID] = c
		b.mu.Unlock()
	case domain.EventDelete:
		b.mu.Lock()
		delete(b.columns, ev.EntityID)
		b.mu.Unlock()
	}
}

// Columns returns the board's columns ordered by position.
func (b *Board) Columns() []domain.Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Column, 0, len(b.columns))
	for _, c := range b.columns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Tasks returns all tasks, re-sorted by column then position at read time.
func (b *Board) Tasks() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tasksLocked()
}

func (b *Board) tasksLocked() []domain.Task {
	out := make([]domain.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ColumnID != out[j].ColumnID {
			return out[i].ColumnID < out[j].ColumnID
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TasksInColumn returns a column's tasks ordered by position.
func (b *Board) TasksInColumn(columnID string) []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []domain.Task{}
	for _, t := range b.tasks {
		if t.ColumnID == columnID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Task looks one task up by id.
func (b *Board) Task(id string) (domain.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	return t, ok
}

// User returns a hydrated user relation, if known.
func (b *Board) User(id string) (domain.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	return u, ok
}

// hydrateLocked fetches user relations the given tasks reference and the
// view has not seen. Hydration failures degrade silently: the rows stay,
// their relations render empty.
func (b *Board) hydrateLocked(ctx context.Context, tasks []domain.Task) {
	if b.hydrator == nil {
		return
	}
	var missing []string
	for _, t := range tasks {
		for _, id := range []string{t.AssignedTo, t.CreatedBy} {
			if id == "" {
				continue
			}
			if _, ok := b.users[id]; !ok {
				missing = append(missing, id)
			}
		}
	}
	if len(missing) == 0 {
		return
	}
	users, err := b.hydrator.GetUsers(ctx, missing)
	if err != nil {
		b.logger.WithError(err).Error("hydrate task relations")
		return
	}
	for id, u := range users {
		b.users[id] = u
	}
}
