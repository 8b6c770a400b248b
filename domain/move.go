package domain

import "sort"

// DropTarget identifies where a dragged task was released: on a column, on
// another task, or on empty space (both fields zero).
type DropTarget struct {
	ColumnID string
	TaskID   string
}

// PositionShift is a per-row position correction for a task displaced by a
// move.
type PositionShift struct {
	TaskID   string
	Position int
}

// MovePlan is the computed outcome of a drag-end event: the moved task's new
// column, position and derived status, plus the corrections for every other
// task in the destination column at or past the insertion point.
type MovePlan struct {
	TaskID   string
	ColumnID string
	Position int
	Status   Status
	Shifts   []PositionShift
}

// PlanMove computes the reconciliation for a drag-end event. It returns
// false when the drop is a no-op: the target resolves to nothing, the task
// is unknown, or the destination column and position equal the task's
// current ones.
func PlanMove(tasks []Task, columns []Column, taskID string, target DropTarget) (MovePlan, bool) {
	var task *Task
	for i := range tasks {
		if tasks[i].ID == taskID {
			task = &tasks[i]
			break
		}
	}
	if task == nil {
		return MovePlan{}, false
	}

	var dest *Column
	newPosition := -1

	if target.TaskID != "" && target.TaskID != taskID {
		for i := range tasks {
			if tasks[i].ID == target.TaskID {
				dest = columnByID(columns, tasks[i].ColumnID)
				newPosition = tasks[i].Position
				break
			}
		}
	} else if target.ColumnID != "" {
		dest = columnByID(columns, target.ColumnID)
		if dest != nil {
			// Dropping on a column appends after its current tasks.
			count := 0
			for i := range tasks {
				if tasks[i].ColumnID == dest.ID {
					count++
				}
			}
			newPosition = count
		}
	}
	if dest == nil || newPosition < 0 {
		return MovePlan{}, false
	}
	if task.ColumnID == dest.ID && task.Position == newPosition {
		return MovePlan{}, false
	}

	plan := MovePlan{
		TaskID:   taskID,
		ColumnID: dest.ID,
		Position: newPosition,
		Status:   StatusForColumn(*dest),
	}
	for i := range tasks {
		t := &tasks[i]
		if t.ID == taskID || t.ColumnID != dest.ID {
			continue
		}
		if t.Position >= newPosition {
			plan.Shifts = append(plan.Shifts, PositionShift{TaskID: t.ID, Position: t.Position + 1})
		}
	}
	sort.Slice(plan.Shifts, func(i, j int) bool { return plan.Shifts[i].Position < plan.Shifts[j].Position })
	return plan, true
}

func columnByID(columns []Column, id string) *Column {
	for i := range columns {
		if columns[i].ID == id {
			return &columns[i]
		}
	}
	return nil
}
