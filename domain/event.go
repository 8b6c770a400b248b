package domain

import "encoding/json"

// Change-feed event types.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// Collection names matching the backing row collections.
const (
	CollectionUsers         = "users"
	CollectionTeams         = "teams"
	CollectionTeamMembers   = "team_members"
	CollectionBoards        = "boards"
	CollectionBoardColumns  = "board_columns"
	CollectionTasks         = "tasks"
	CollectionChatMessages  = "chat_messages"
	CollectionNotifications = "notifications"
)

// ChangeEvent is one row-level change delivered on a feed channel, carrying
// before/after snapshots of the row.
type ChangeEvent struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Type       string          `json:"type"`
	EntityID   string          `json:"entityId"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}
