package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

// Notifier records activity for the affected user. Failures are logged and
// never fail the request that triggered them.
type Notifier interface {
	VoteCast(ctx context.Context, voterID, authorID int, target reputation.Target, polarity reputation.Polarity)
	AnswerPosted(ctx context.Context, answererID int, question models.Question)
	AnswerAccepted(ctx context.Context, accepterID, questionID, answerID int)
	CommentPosted(ctx context.Context, commenterID, recipientID, questionID int, target reputation.Target)
}

type NotificationHandler struct {
	db *gorm.DB
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

var _ Notifier = (*NotificationHandler)(nil)

func (h *NotificationHandler) store(ctx context.Context, n models.Notification) {
	if n.UserID == 0 || n.UserID == n.ActorID {
		return
	}
	if err := h.db.WithContext(ctx).Create(&n).Error; err != nil {
		slog.Warn("failed to store notification", "kind", n.Kind, "user_id", n.UserID, "error", err)
	}
}

// questionOf resolves the question a vote or comment target belongs to.
func (h *NotificationHandler) questionOf(ctx context.Context, target reputation.Target) (int, error) {
	if target.Type == reputation.TargetQuestion {
		return target.ID, nil
	}
	var answer models.Answer
	if err := h.db.WithContext(ctx).Select("id", "question_id").First(&answer, target.ID).Error; err != nil {
		return 0, err
	}
	return answer.QuestionID, nil
}

func (h *NotificationHandler) VoteCast(ctx context.Context, voterID, authorID int, target reputation.Target, polarity reputation.Polarity) {
	if polarity == reputation.None {
		return
	}
	questionID, err := h.questionOf(ctx, target)
	if err != nil {
		slog.Warn("vote notification skipped", "target", target.String(), "error", err)
		return
	}
	direction := "upvoted"
	if polarity == reputation.Down {
		direction = "downvoted"
	}
	h.store(ctx, models.Notification{
		UserID:     authorID,
		ActorID:    voterID,
		QuestionID: questionID,
		Kind:       models.NotificationVote,
		Message:    fmt.Sprintf("Someone %s your %s", direction, target.Type),
	})
}

func (h *NotificationHandler) AnswerPosted(ctx context.Context, answererID int, question models.Question) {
	h.store(ctx, models.Notification{
		UserID:     question.AuthorID,
		ActorID:    answererID,
		QuestionID: question.ID,
		Kind:       models.NotificationAnswer,
		Message:    fmt.Sprintf("New answer on %q", question.Title),
	})
}

func (h *NotificationHandler) AnswerAccepted(ctx context.Context, accepterID, questionID, answerID int) {
	var answer models.Answer
	if err := h.db.WithContext(ctx).Select("id", "author_id").First(&answer, answerID).Error; err != nil {
		slog.Warn("accept notification skipped", "answer_id", answerID, "error", err)
		return
	}
	h.store(ctx, models.Notification{
		UserID:     answer.AuthorID,
		ActorID:    accepterID,
		QuestionID: questionID,
		Kind:       models.NotificationAccept,
		Message:    "Your answer was accepted",
	})
}

func (h *NotificationHandler) CommentPosted(ctx context.Context, commenterID, recipientID, questionID int, target reputation.Target) {
	h.store(ctx, models.Notification{
		UserID:     recipientID,
		ActorID:    commenterID,
		QuestionID: questionID,
		Kind:       models.NotificationComment,
		Message:    fmt.Sprintf("New comment on your %s", target.Type),
	})
}

// GetNotifications returns the current user's notifications, newest first.
// ?unread=true limits the list to unread ones.
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	query := h.db.Where("user_id = ?", userID)
	if strings.EqualFold(c.Query("unread"), "true") {
		query = query.Where("read = ?", false)
	}

	var notifications []models.Notification
	if err := query.Preload("Actor").Order("created_at desc").Limit(100).Find(&notifications).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	var unread int64
	h.db.Model(&models.Notification{}).Where("user_id = ? AND read = ?", userID, false).Count(&unread)

	if notifications == nil {
		notifications = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

// MarkRead marks one of the current user's notifications as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	notificationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	res := h.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllRead marks every unread notification of the current user as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	res := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": res.RowsAffected})
}
