package datatypes

import "time"

// Session maps a chat session to its owning user. Sessions are immutable
// once created and live for the process lifetime.
type Session struct {
	Id        string    `json:"session_id"`
	UserId    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
