package models

import "time"

type Question struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	Title    string `gorm:"not null" json:"title"`
	Body     string `gorm:"not null" json:"body"`
	AuthorID int    `gorm:"not null;index" json:"author_id"`
	Author   User   `gorm:"foreignKey:AuthorID" json:"author"`
	// AcceptBonusGranted records that the first-acceptance reward was paid to
	// the author. It is never cleared.
	AcceptBonusGranted bool      `gorm:"not null;default:false" json:"-"`
	Answers            []Answer  `gorm:"foreignKey:QuestionID" json:"answers,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type CreateQuestionRequest struct {
	Title string `json:"title" binding:"required,min=5,max=300"`
	Body  string `json:"body" binding:"required"`
}

type UpdateQuestionRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
