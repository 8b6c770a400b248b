package domain

import "time"

// NotificationType enumerates the notification kinds the app emits.
type NotificationType string

const (
	NotifyTaskAssigned  NotificationType = "task_assigned"
	NotifyTaskCompleted NotificationType = "task_completed"
	NotifyTaskUpdated   NotificationType = "task_updated"
	NotifyTeamInvite    NotificationType = "team_invite"
	NotifyCommentAdded  NotificationType = "comment_added"
	NotifyBoardShared   NotificationType = "board_shared"
	NotifyMemberJoined  NotificationType = "member_joined"
	NotifyMemberLeft    NotificationType = "member_left"
)

// Notification is a per-user inbox entry.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}
