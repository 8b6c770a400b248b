package api

import (
	"context"
	"time"

	"teamboard-api/domain"
	"teamboard-api/storage"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]domain.User, error)

	UpsertTeam(ctx context.Context, t domain.Team) error
	GetTeam(ctx context.Context, id string) (domain.Team, error)
	DeleteTeam(ctx context.Context, id string) error
	UpsertMembership(ctx context.Context, m domain.Membership) error
	GetMembership(ctx context.Context, teamID, userID string) (domain.Membership, error)
	ListMembers(ctx context.Context, teamID string) ([]domain.Membership, error)
	ListMembershipsForUser(ctx context.Context, userID string) ([]domain.Membership, error)
	DeleteMembership(ctx context.Context, teamID, userID string) error

	UpsertBoard(ctx context.Context, b domain.Board) error
	GetBoard(ctx context.Context, boardID string) (domain.Board, error)
	ListBoards(ctx context.Context, teamID string) ([]domain.Board, error)
	DeleteBoard(ctx context.Context, teamID, boardID string) error
	UpsertColumn(ctx context.Context, c domain.Column) error
	GetColumn(ctx context.Context, columnID string) (domain.Column, error)
	ListColumns(ctx context.Context, boardID string) ([]domain.Column, error)
	DeleteColumn(ctx context.Context, boardID, columnID string) error

	UpsertTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, taskID string) (domain.Task, error)
	ListTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	ListAllTasks(ctx context.Context) ([]domain.Task, error)
	MoveTask(ctx context.Context, boardID, taskID, columnID string, position int, status domain.Status, updatedAt time.Time) error
	UpdateTaskPosition(ctx context.Context, boardID, taskID string, position int) error
	DeleteTask(ctx context.Context, boardID, taskID string) error

	AppendChatMessage(ctx context.Context, m domain.ChatMessage) error
	ListChatMessages(ctx context.Context, teamID string, limit int) ([]domain.ChatMessage, error)
	DeleteChatHistory(ctx context.Context, teamID string) error

	InsertNotifications(ctx context.Context, notifications []domain.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	EnqueueNotifications(ctx context.Context, notifications []domain.Notification) error
}

// SnapshotCache serves read-through board snapshots.
type SnapshotCache interface {
	FetchBoardSnapshot(ctx context.Context, boardID string) (storage.BoardSnapshot, error)
	EvictBoard(ctx context.Context, boardID string)
}

// Publisher fans change events out to feed channels.
type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent, channels ...string)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// TokenIssuer mints session tokens for the sign-up and sign-in endpoints.
type TokenIssuer interface {
	IssueToken(userID string) (string, error)
}

// DeadlineFilter suppresses deadline notifications already delivered today.
// Release undoes the delivery record when persisting the batch fails, so a
// same-day retry is not silently swallowed.
type DeadlineFilter interface {
	FilterDeadlines(ctx context.Context, notifications []domain.DeadlineNotification, day time.Time) ([]domain.DeadlineNotification, error)
	ReleaseDeadlines(ctx context.Context, notifications []domain.DeadlineNotification, day time.Time) error
}
