package models

import "time"

const (
	NotificationVote    = "VOTE"
	NotificationAnswer  = "ANSWER"
	NotificationAccept  = "ACCEPT"
	NotificationComment = "COMMENT"
)

// Notification is stored for the recipient to poll. Nothing delivers it.
type Notification struct {
	ID         int       `gorm:"primaryKey" json:"id"`
	UserID     int       `gorm:"not null;index" json:"user_id"`
	ActorID    int       `gorm:"not null" json:"actor_id"`
	Actor      User      `gorm:"foreignKey:ActorID" json:"actor"`
	QuestionID int       `gorm:"not null" json:"question_id"`
	Kind       string    `gorm:"not null;size:16" json:"kind"`
	Message    string    `gorm:"not null" json:"message"`
	Read       bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
