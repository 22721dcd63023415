package models

import "time"

// Vote tracks one user's current stance on a question or an answer. There is
// at most one row per (user, target).
type Vote struct {
	ID         int       `gorm:"primaryKey" json:"id"`
	UserID     int       `gorm:"not null;uniqueIndex:idx_votes_user_target,priority:1" json:"user_id"`
	TargetType string    `gorm:"not null;size:16;uniqueIndex:idx_votes_user_target,priority:2;index:idx_votes_target,priority:1;check:chk_votes_target_type,target_type IN ('question','answer')" json:"target_type"`
	TargetID   int       `gorm:"not null;uniqueIndex:idx_votes_user_target,priority:3;index:idx_votes_target,priority:2" json:"target_id"`
	Polarity   string    `gorm:"not null;size:8;check:chk_votes_polarity,polarity IN ('UP','DOWN')" json:"polarity"` // "UP" or "DOWN"
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type VoteRequest struct {
	TargetType string `json:"target_type" binding:"required,oneof=question answer"`
	TargetID   int    `json:"target_id" binding:"required"`
	VoteType   string `json:"vote_type" binding:"required"`
}
