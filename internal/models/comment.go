package models

import "time"

type Comment struct {
	ID         int       `gorm:"primaryKey" json:"id"`
	Body       string    `gorm:"not null" json:"body"`
	AuthorID   int       `gorm:"not null" json:"author_id"`
	User       User      `gorm:"foreignKey:AuthorID" json:"user"`
	TargetType string    `gorm:"not null;size:16;index:idx_comments_target,priority:1" json:"target_type"`
	TargetID   int       `gorm:"not null;index:idx_comments_target,priority:2" json:"target_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}
