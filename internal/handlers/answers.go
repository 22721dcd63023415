package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

type AnswerHandler struct {
	db       *gorm.DB
	notifier Notifier
}

func NewAnswerHandler(db *gorm.DB, notifier Notifier) *AnswerHandler {
	return &AnswerHandler{db: db, notifier: notifier}
}

// CreateAnswer posts an answer to a question and notifies its author.
func (h *AnswerHandler) CreateAnswer(c *gin.Context) {
	authorID, ok := requireUser(c)
	if !ok {
		return
	}
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input models.AnswerRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The share lock keeps a concurrent DeleteQuestion from missing this answer.
	var question models.Question
	answer := models.Answer{
		Body:     input.Body,
		AuthorID: authorID,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id", "title", "author_id").
			First(&question, questionID).Error
		if err != nil {
			return err
		}
		answer.QuestionID = question.ID
		return tx.Create(&answer).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}
	if err != nil {
		slog.Error("failed to create answer", "question_id", questionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create answer"})
		return
	}

	h.notifier.AnswerPosted(c.Request.Context(), authorID, question)

	h.db.Preload("Author").First(&answer, answer.ID)
	c.JSON(http.StatusCreated, answer)
}

// UpdateAnswer edits an answer's body (owner only)
func (h *AnswerHandler) UpdateAnswer(c *gin.Context) {
	currentUserID, ok := requireUser(c)
	if !ok {
		return
	}
	answerID, ok := paramID(c, "answerId")
	if !ok {
		return
	}

	var input models.AnswerRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var answer models.Answer
	if err := h.db.First(&answer, answerID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Answer not found"})
		return
	}

	if answer.AuthorID != currentUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own answers"})
		return
	}

	// Only the body changes; is_accepted belongs to the ledger.
	if err := h.db.Model(&answer).Update("body", input.Body).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update answer"})
		return
	}

	h.db.Preload("Author").First(&answer, answer.ID)
	c.JSON(http.StatusOK, answer)
}

// DeleteAnswer deletes an answer and its comments (owner only). Answers with
// votes or an acceptance are kept.
func (h *AnswerHandler) DeleteAnswer(c *gin.Context) {
	currentUserID, ok := requireUser(c)
	if !ok {
		return
	}
	answerID, ok := paramID(c, "answerId")
	if !ok {
		return
	}

	var answer models.Answer
	if err := h.db.First(&answer, answerID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Answer not found"})
		return
	}

	if answer.AuthorID != currentUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own answers"})
		return
	}

	target := reputation.Target{Type: reputation.TargetAnswer, ID: answer.ID}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := lockForDelete(tx, target); err != nil {
			return err
		}

		var fresh models.Answer
		if err := tx.Select("id", "is_accepted").First(&fresh, answer.ID).Error; err != nil {
			return err
		}
		var votes int64
		err := tx.Model(&models.Vote{}).
			Where("target_type = ? AND target_id = ?", string(target.Type), target.ID).
			Count(&votes).Error
		if err != nil {
			return err
		}
		if votes > 0 || fresh.IsAccepted {
			return errHasReputation
		}

		if err := tx.Where("target_type = ? AND target_id = ?", string(target.Type), target.ID).
			Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Answer{}, answer.ID).Error
	})
	if err != nil {
		respondDeleteError(c, "answer", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Answer deleted successfully"})
}
