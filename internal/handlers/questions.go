package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

type QuestionHandler struct {
	db *gorm.DB
}

func NewQuestionHandler(db *gorm.DB) *QuestionHandler {
	return &QuestionHandler{db: db}
}

type voteCount struct {
	TargetID  int
	Upvotes   int
	Downvotes int
}

// voteCounts loads up/down totals for many targets of one type in one query.
func voteCounts(db *gorm.DB, targetType reputation.TargetType, ids []int) (map[int]voteCount, error) {
	counts := make(map[int]voteCount, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	var rows []voteCount
	err := db.Model(&models.Vote{}).
		Select("target_id, "+
			"SUM(CASE WHEN polarity = 'UP' THEN 1 ELSE 0 END) AS upvotes, "+
			"SUM(CASE WHEN polarity = 'DOWN' THEN 1 ELSE 0 END) AS downvotes").
		Where("target_type = ? AND target_id IN ?", string(targetType), ids).
		Group("target_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.TargetID] = r
	}
	return counts, nil
}

// myVotes returns userID's current polarity per target. Targets without a vote
// are absent.
func myVotes(db *gorm.DB, userID int, targetType reputation.TargetType, ids []int) (map[int]string, error) {
	mine := make(map[int]string)
	if userID == 0 || len(ids) == 0 {
		return mine, nil
	}
	var votes []models.Vote
	err := db.Select("target_id", "polarity").
		Where("user_id = ? AND target_type = ? AND target_id IN ?", userID, string(targetType), ids).
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		mine[v.TargetID] = v.Polarity
	}
	return mine, nil
}

func polarityOrNone(votes map[int]string, id int) string {
	if p, ok := votes[id]; ok {
		return p
	}
	return string(reputation.None)
}

func queryInt(c *gin.Context, name string, def, max int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n <= 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// matchTerms requires every whitespace-separated term of search to appear in
// the title or the body, case-insensitively.
func matchTerms(query *gorm.DB, search string) *gorm.DB {
	for _, term := range strings.Fields(search) {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		query = query.Where("(title ILIKE ? OR body ILIKE ?)", pattern, pattern)
	}
	return query
}

// GetQuestions lists questions newest first with vote and answer counts.
// ?q= (or ?search=) filters by keywords.
func (h *QuestionHandler) GetQuestions(c *gin.Context) {
	limit := queryInt(c, "limit", 20, 100)
	page := queryInt(c, "page", 1, 0)

	query := h.db.Preload("Author").Order("created_at desc")
	if authorID := queryInt(c, "author_id", 0, 0); authorID > 0 {
		query = query.Where("author_id = ?", authorID)
	}
	search := c.Query("q")
	if search == "" {
		search = c.Query("search")
	}
	query = matchTerms(query, search)

	var questions []models.Question
	if err := query.Limit(limit).Offset((page - 1) * limit).Find(&questions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch questions"})
		return
	}

	ids := make([]int, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}

	votes, err := voteCounts(h.db, reputation.TargetQuestion, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}

	var answerRows []struct {
		QuestionID int
		Answers    int
		Accepted   int
	}
	if len(ids) > 0 {
		err = h.db.Model(&models.Answer{}).
			Select("question_id, COUNT(*) AS answers, SUM(CASE WHEN is_accepted THEN 1 ELSE 0 END) AS accepted").
			Where("question_id IN ?", ids).
			Group("question_id").
			Scan(&answerRows).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch answers"})
			return
		}
	}
	answerCounts := make(map[int]int, len(answerRows))
	answered := make(map[int]bool, len(answerRows))
	for _, r := range answerRows {
		answerCounts[r.QuestionID] = r.Answers
		answered[r.QuestionID] = r.Accepted > 0
	}

	responses := make([]gin.H, 0, len(questions))
	for _, q := range questions {
		v := votes[q.ID]
		responses = append(responses, gin.H{
			"id":           q.ID,
			"title":        q.Title,
			"body":         q.Body,
			"author_id":    q.AuthorID,
			"author":       q.Author,
			"upvotes":      v.Upvotes,
			"downvotes":    v.Downvotes,
			"score":        v.Upvotes - v.Downvotes,
			"answer_count": answerCounts[q.ID],
			"has_accepted": answered[q.ID],
			"created_at":   q.CreatedAt,
			"updated_at":   q.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, responses)
}

// GetQuestion returns a question with its answers, accepted answer first. When
// the caller is signed in, my_vote carries their current polarity.
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var question models.Question
	err := h.db.Preload("Author").
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_accepted desc, created_at asc")
		}).
		Preload("Answers.Author").
		First(&question, questionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch question"})
		return
	}

	answerIDs := make([]int, 0, len(question.Answers))
	for _, a := range question.Answers {
		answerIDs = append(answerIDs, a.ID)
	}

	viewerID, _ := extractUserID(c)
	questionVotes, err := voteCounts(h.db, reputation.TargetQuestion, []int{question.ID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}
	answerVotes, err := voteCounts(h.db, reputation.TargetAnswer, answerIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}
	myQuestionVote, err := myVotes(h.db, viewerID, reputation.TargetQuestion, []int{question.ID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}
	myAnswerVotes, err := myVotes(h.db, viewerID, reputation.TargetAnswer, answerIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}

	answers := make([]gin.H, 0, len(question.Answers))
	for _, a := range question.Answers {
		v := answerVotes[a.ID]
		answers = append(answers, gin.H{
			"id":          a.ID,
			"body":        a.Body,
			"question_id": a.QuestionID,
			"author_id":   a.AuthorID,
			"author":      a.Author,
			"is_accepted": a.IsAccepted,
			"upvotes":     v.Upvotes,
			"downvotes":   v.Downvotes,
			"score":       v.Upvotes - v.Downvotes,
			"my_vote":     polarityOrNone(myAnswerVotes, a.ID),
			"created_at":  a.CreatedAt,
			"updated_at":  a.UpdatedAt,
		})
	}

	qv := questionVotes[question.ID]
	c.JSON(http.StatusOK, gin.H{
		"id":         question.ID,
		"title":      question.Title,
		"body":       question.Body,
		"author_id":  question.AuthorID,
		"author":     question.Author,
		"upvotes":    qv.Upvotes,
		"downvotes":  qv.Downvotes,
		"score":      qv.Upvotes - qv.Downvotes,
		"my_vote":    polarityOrNone(myQuestionVote, question.ID),
		"answers":    answers,
		"created_at": question.CreatedAt,
		"updated_at": question.UpdatedAt,
	})
}

// CreateQuestion creates a new question (PROTECTED - requires authentication)
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	authorID, ok := requireUser(c)
	if !ok {
		return
	}

	var input models.CreateQuestionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question := models.Question{
		Title:    input.Title,
		Body:     input.Body,
		AuthorID: authorID,
	}

	if err := h.db.Create(&question).Error; err != nil {
		slog.Error("failed to create question", "author_id", authorID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create question"})
		return
	}

	// Reload with author information
	h.db.Preload("Author").First(&question, question.ID)

	c.JSON(http.StatusCreated, question)
}

// UpdateQuestion updates an existing question (PROTECTED - requires ownership)
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	currentUserID, ok := requireUser(c)
	if !ok {
		return
	}
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input models.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var question models.Question
	if err := h.db.First(&question, questionID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}

	if question.AuthorID != currentUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own questions"})
		return
	}

	updates := map[string]any{}
	if input.Title != "" {
		updates["title"] = input.Title
	}
	if input.Body != "" {
		updates["body"] = input.Body
	}
	if len(updates) > 0 {
		if err := h.db.Model(&question).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update question"})
			return
		}
	}

	h.db.Preload("Author").First(&question, question.ID)
	c.JSON(http.StatusOK, question)
}

// DeleteQuestion deletes a question with its answers and comments
// (PROTECTED - requires ownership). Questions whose votes or acceptance feed
// someone's reputation are kept.
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	currentUserID, ok := requireUser(c)
	if !ok {
		return
	}
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var question models.Question
	if err := h.db.First(&question, questionID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}

	if question.AuthorID != currentUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own questions"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		// Lock the question so no vote or acceptance lands while we check.
		if err := lockForDelete(tx, reputation.Target{Type: reputation.TargetQuestion, ID: question.ID}); err != nil {
			return err
		}

		// Lock the answers too: an answer vote locks only the answer row, and
		// its uncommitted vote is invisible to the count below.
		var answerIDs []int
		err := tx.Model(&models.Answer{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("question_id = ?", question.ID).
			Order("id").
			Pluck("id", &answerIDs).Error
		if err != nil {
			return err
		}

		var n int64
		err = tx.Model(&models.Vote{}).
			Where("(target_type = ? AND target_id = ?) OR (target_type = ? AND target_id IN ?)",
				string(reputation.TargetQuestion), question.ID, string(reputation.TargetAnswer), answerIDs).
			Count(&n).Error
		if err != nil {
			return err
		}
		var fresh models.Question
		if err := tx.Select("id", "accept_bonus_granted").First(&fresh, question.ID).Error; err != nil {
			return err
		}
		if n > 0 || fresh.AcceptBonusGranted {
			return errHasReputation
		}
		var accepted int64
		if err := tx.Model(&models.Answer{}).Where("question_id = ? AND is_accepted", question.ID).Count(&accepted).Error; err != nil {
			return err
		}
		if accepted > 0 {
			return errHasReputation
		}

		if len(answerIDs) > 0 {
			if err := tx.Where("target_type = ? AND target_id IN ?", string(reputation.TargetAnswer), answerIDs).
				Delete(&models.Comment{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("target_type = ? AND target_id = ?", string(reputation.TargetQuestion), question.ID).
			Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", question.ID).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", question.ID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&question).Error
	})
	if err != nil {
		respondDeleteError(c, "question", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question deleted successfully"})
}
