package domain

import "time"

// ChatMessage is a team chat entry, ordered by creation time ascending.
type ChatMessage struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
