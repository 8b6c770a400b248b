package view

import (
	"context"
	"time"

	"github.com/google/uuid"

	"teamboard-api/domain"
)

// MutationState tracks an optimistic mutation through its lifecycle.
type MutationState string

const (
	// MutationApplied: the local state carries the change, the store does
	// not yet.
	MutationApplied MutationState = "applied"
	// MutationConfirmed: every write behind the change succeeded.
	MutationConfirmed MutationState = "confirmed"
	// MutationReverted: a write failed and the view was reset to the last
	// settled snapshot.
	MutationReverted MutationState = "reverted"
)

// Mutation is one optimistic task move.
type Mutation struct {
	ID    string
	Plan  domain.MovePlan
	State MutationState
	Err   error
}

// TaskWriter issues the row writes behind a move.
type TaskWriter interface {
	MoveTask(ctx context.Context, boardID, taskID, columnID string, position int, status domain.Status, updatedAt time.Time) error
	UpdateTaskPosition(ctx context.Context, boardID, taskID string, position int) error
}

// Move reconciles a drag-end event. The plan is applied to the view
// immediately, then the primary task write and each displaced-row
// correction are issued one at a time. There is no atomicity across the
// sequence: a failure reverts the view wholesale to the last settled
// snapshot while the store may keep a partially-applied reorder until the
// next full load. A nil mutation means the drop was a no-op.
func (b *Board) Move(ctx context.Context, writer TaskWriter, taskID string, target domain.DropTarget) (*Mutation, error) {
	b.mu.Lock()
	plan, ok := domain.PlanMove(b.tasksLocked(), b.columnsLocked(), taskID, target)
	if !ok {
		b.mu.Unlock()
		return nil, nil
	}

	m := &Mutation{ID: uuid.NewString(), Plan: plan, State: MutationApplied}
	b.applyPlanLocked(plan)
	b.mutations = append(b.mutations, m)
	b.mu.Unlock()

	if err := writer.MoveTask(ctx, b.boardID, plan.TaskID, plan.ColumnID, plan.Position, plan.Status, time.Now().UTC()); err != nil {
		b.revert(m, err)
		return m, err
	}
	for _, shift := range plan.Shifts {
		if err := writer.UpdateTaskPosition(ctx, b.boardID, shift.TaskID, shift.Position); err != nil {
			b.revert(m, err)
			return m, err
		}
	}

	b.mu.Lock()
	m.State = MutationConfirmed
	b.mu.Unlock()
	return m, nil
}

func (b *Board) applyPlanLocked(plan domain.MovePlan) {
	if t, ok := b.tasks[plan.TaskID]; ok {
		t.ColumnID = plan.ColumnID
		t.Position = plan.Position
		t.Status = plan.Status
		b.tasks[plan.TaskID] = t
	}
	for _, shift := range plan.Shifts {
		if t, ok := b.tasks[shift.TaskID]; ok {
			t.Position = shift.Position
			b.tasks[shift.TaskID] = t
		}
	}
}

// revert discards all local optimism and resets the view to the last
// fully-loaded snapshot.
func (b *Board) revert(m *Mutation, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.columns = make(map[string]domain.Column, len(b.settledColumns))
	for _, c := range b.settledColumns {
		b.columns[c.ID] = c
	}
	b.tasks = make(map[string]domain.Task, len(b.settledTasks))
	for _, t := range b.settledTasks {
		b.tasks[t.ID] = t
	}
	for _, pending := range b.mutations {
		if pending.State == MutationApplied {
			pending.State = MutationReverted
		}
	}
	m.State = MutationReverted
	m.Err = err
}

// confirmReconciledLocked marks applied mutations as confirmed when a feed
// event reports the store already carries their outcome; the merge that
// just happened was a no-op for local state.
func (b *Board) confirmReconciledLocked(t domain.Task) {
	for _, m := range b.mutations {
		if m.State != MutationApplied || m.Plan.TaskID != t.ID {
			continue
		}
		if m.Plan.ColumnID == t.ColumnID && m.Plan.Position == t.Position {
			m.State = MutationConfirmed
		}
	}
}

func (b *Board) columnsLocked() []domain.Column {
	out := make([]domain.Column, 0, len(b.columns))
	for _, c := range b.columns {
		out = append(out, c)
	}
	return out
}
