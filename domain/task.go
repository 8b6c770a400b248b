package domain

import "time"

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status mirrors column membership and is re-derived on every move.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Task represents a single board item.
type Task struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"boardId"`
	ColumnID    string     `json:"columnId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Position    int        `json:"position"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// StatusForColumn derives task status from the destination column. Columns
// carry a stable role assigned at creation; the display-name mapping is kept
// as a fallback for columns imported without one.
func StatusForColumn(c Column) Status {
	switch c.Role {
	case ColumnRoleDone:
		return StatusDone
	case ColumnRoleInProgress:
		return StatusInProgress
	case ColumnRoleTodo, ColumnRoleReview:
		return StatusTodo
	}
	switch c.Name {
	case "Done":
		return StatusDone
	case "In Progress":
		return StatusInProgress
	default:
		return StatusTodo
	}
}
