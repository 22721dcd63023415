package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

type CommentHandler struct {
	db       *gorm.DB
	notifier Notifier
}

func NewCommentHandler(db *gorm.DB, notifier Notifier) *CommentHandler {
	return &CommentHandler{db: db, notifier: notifier}
}

// commentTarget reads the target from the route: /questions/:id or
// /answers/:answerId.
func commentTarget(c *gin.Context, targetType reputation.TargetType) (reputation.Target, bool) {
	param := "id"
	if targetType == reputation.TargetAnswer {
		param = "answerId"
	}
	id, ok := paramID(c, param)
	return reputation.Target{Type: targetType, ID: id}, ok
}

// resolveTarget returns the target's author and the question it belongs to.
func (h *CommentHandler) resolveTarget(target reputation.Target) (authorID, questionID int, err error) {
	if target.Type == reputation.TargetQuestion {
		var q models.Question
		if err := h.db.Select("id", "author_id").First(&q, target.ID).Error; err != nil {
			return 0, 0, err
		}
		return q.AuthorID, q.ID, nil
	}
	var a models.Answer
	if err := h.db.Select("id", "author_id", "question_id").First(&a, target.ID).Error; err != nil {
		return 0, 0, err
	}
	return a.AuthorID, a.QuestionID, nil
}

func (h *CommentHandler) getComments(c *gin.Context, targetType reputation.TargetType) {
	target, ok := commentTarget(c, targetType)
	if !ok {
		return
	}

	var comments []models.Comment
	err := h.db.Where("target_type = ? AND target_id = ?", string(target.Type), target.ID).
		Preload("User").
		Order("created_at asc").
		Find(&comments).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}

	if comments == nil {
		comments = []models.Comment{}
	}
	c.JSON(http.StatusOK, comments)
}

func (h *CommentHandler) createComment(c *gin.Context, targetType reputation.TargetType) {
	authorID, ok := requireUser(c)
	if !ok {
		return
	}
	target, ok := commentTarget(c, targetType)
	if !ok {
		return
	}

	var input models.CommentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recipientID, questionID, err := h.resolveTarget(target)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
		return
	}

	comment := models.Comment{
		Body:       input.Body,
		AuthorID:   authorID,
		TargetType: string(target.Type),
		TargetID:   target.ID,
	}
	if err := h.db.Create(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comment"})
		return
	}

	h.notifier.CommentPosted(c.Request.Context(), authorID, recipientID, questionID, target)

	h.db.Preload("User").First(&comment, comment.ID)
	c.JSON(http.StatusCreated, comment)
}

// GetQuestionComments returns the comments on a question, oldest first.
func (h *CommentHandler) GetQuestionComments(c *gin.Context) {
	h.getComments(c, reputation.TargetQuestion)
}

// GetAnswerComments returns the comments on an answer, oldest first.
func (h *CommentHandler) GetAnswerComments(c *gin.Context) {
	h.getComments(c, reputation.TargetAnswer)
}

func (h *CommentHandler) CreateQuestionComment(c *gin.Context) {
	h.createComment(c, reputation.TargetQuestion)
}

func (h *CommentHandler) CreateAnswerComment(c *gin.Context) {
	h.createComment(c, reputation.TargetAnswer)
}

// UpdateComment updates a comment (owner only)
func (h *CommentHandler) UpdateComment(c *gin.Context) {
	authorID, ok := requireUser(c)
	if !ok {
		return
	}
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}

	var input models.CommentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var comment models.Comment
	if err := h.db.First(&comment, commentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	if comment.AuthorID != authorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own comments"})
		return
	}

	if err := h.db.Model(&comment).Update("body", input.Body).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update comment"})
		return
	}
	h.db.Preload("User").First(&comment, comment.ID)

	c.JSON(http.StatusOK, comment)
}

// DeleteComment deletes a comment (owner only)
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	authorID, ok := requireUser(c)
	if !ok {
		return
	}
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}

	var comment models.Comment
	if err := h.db.First(&comment, commentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	if comment.AuthorID != authorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own comments"})
		return
	}

	if err := h.db.Delete(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete comment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}
