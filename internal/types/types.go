package types

import (
	"time"
)

type User struct {
	Id             int       `json:"id"`
	Username       string    `json:"username"`
	EmailAddress   string    `json:"email_address,omitempty"`
	Password       string    `json:"-"`
	EmailVerified  bool      `json:"email_verified,omitempty"`
	FameRating     float64   `json:"fame_rating,omitempty"`
	IsOnline       bool      `json:"is_online,omitempty"`
	LastConnection time.Time `json:"last_connection,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id         int       `json:"id"`
	SenderId   int       `json:"sender_id"`
	ReceiverId int       `json:"receiver_id"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	SentAt     time.Time `json:"sent_at"`
}

// Notification kinds mirror the interaction types of the matching domain.
const (
	NotificationLike    = "like"
	NotificationMatch   = "match"
	NotificationVisit   = "visit"
	NotificationMessage = "message"
)

// Notification carries a point-in-time snapshot of the actor who triggered
// it, so the recipient can render it even if the actor's profile changes.
type Notification struct {
	Id            int       `json:"id"`
	UserId        int       `json:"user_id"`
	Kind          string    `json:"kind"`
	ActorId       int       `json:"actor_id"`
	ActorUsername string    `json:"actor_username"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}
