package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/middleware"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

// Ledger is the reputation engine as seen by the request handlers.
type Ledger interface {
	ApplyVote(ctx context.Context, voterID int, target reputation.Target, requested reputation.Polarity) (reputation.VoteOutcome, error)
	ApplyAccept(ctx context.Context, requesterID, questionID, answerID int) (reputation.AcceptOutcome, error)
	ApplyUnaccept(ctx context.Context, requesterID, questionID, answerID int) (reputation.AcceptOutcome, error)
	Recompute(ctx context.Context, userID int) (reputation.RecomputeOutcome, error)
}

// Handler combines all handler types
type Handler struct {
	Auth         *AuthHandler
	Question     *QuestionHandler
	Answer       *AnswerHandler
	Vote         *VoteHandler
	Comment      *CommentHandler
	User         *UserHandler
	Notification *NotificationHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(db *gorm.DB, ledger Ledger, cfg config.Config) *Handler {
	notifications := NewNotificationHandler(db)

	return &Handler{
		Auth:         NewAuthHandler(db, []byte(cfg.JWT.Secret), cfg.JWT.TTL),
		Question:     NewQuestionHandler(db),
		Answer:       NewAnswerHandler(db, notifications),
		Vote:         NewVoteHandler(ledger, notifications),
		Comment:      NewCommentHandler(db, notifications),
		User:         NewUserHandler(db, ledger, cfg.IsAdmin),
		Notification: notifications,
	}
}

func extractUserID(c *gin.Context) (int, bool) {
	raw, exists := c.Get(middleware.UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := raw.(int)
	return id, ok
}

// requireUser writes a 401 and returns false when the request carries no user.
func requireUser(c *gin.Context) (int, bool) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return userID, ok
}

// paramID parses a numeric path parameter, writing a 400 when it is invalid.
func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// lockForDelete takes the same row lock the ledger takes before voting, so a
// delete and a vote on the same post serialize.
func lockForDelete(tx *gorm.DB, target reputation.Target) error {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id")
	var err error
	switch target.Type {
	case reputation.TargetQuestion:
		err = locked.First(&models.Question{}, target.ID).Error
	case reputation.TargetAnswer:
		err = locked.First(&models.Answer{}, target.ID).Error
	default:
		return reputation.ErrInvalidTarget
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &reputation.NotFoundError{Kind: string(target.Type), ID: target.ID}
	}
	return err
}
