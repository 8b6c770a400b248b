package domain

import "time"

// Board is a kanban workspace owned by a team.
type Board struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"teamId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ColumnRole is the stable attribute status derivation keys off. Display
// names are free to change without breaking status tracking.
type ColumnRole string

const (
	ColumnRoleTodo       ColumnRole = "todo"
	ColumnRoleInProgress ColumnRole = "in_progress"
	ColumnRoleReview     ColumnRole = "review"
	ColumnRoleDone       ColumnRole = "done"
)

// Column is a named, ordered lane on a board.
type Column struct {
	ID       string     `json:"id"`
	BoardID  string     `json:"boardId"`
	Name     string     `json:"name"`
	Color    string     `json:"color"`
	Position int        `json:"position"`
	Role     ColumnRole `json:"role,omitempty"`
}

// DefaultColumns returns the fixed lane set seeded at board creation. The
// ids are derived from the board id so reseeding the same board is
// idempotent.
func DefaultColumns(boardID string) []Column {
	return []Column{
		{ID: boardID + ":" + string(ColumnRoleTodo), BoardID: boardID, Name: "To Do", Color: "#6b7280", Position: 0, Role: ColumnRoleTodo},
		{ID: boardID + ":" + string(ColumnRoleInProgress), BoardID: boardID, Name: "In Progress", Color: "#3b82f6", Position: 1, Role: ColumnRoleInProgress},
		{ID: boardID + ":" + string(ColumnRoleReview), BoardID: boardID, Name: "Review", Color: "#f59e0b", Position: 2, Role: ColumnRoleReview},
		{ID: boardID + ":" + string(ColumnRoleDone), BoardID: boardID, Name: "Done", Color: "#10b981", Position: 3, Role: ColumnRoleDone},
	}
}
