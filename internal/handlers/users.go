package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

type UserHandler struct {
	db      *gorm.DB
	ledger  Ledger
	isAdmin func(userID int) bool
}

func NewUserHandler(db *gorm.DB, ledger Ledger, isAdmin func(userID int) bool) *UserHandler {
	return &UserHandler{db: db, ledger: ledger, isAdmin: isAdmin}
}

// GetUsers lists users by reputation, highest first.
func (h *UserHandler) GetUsers(c *gin.Context) {
	limit := queryInt(c, "limit", 50, 200)

	var users []models.User
	if err := h.db.Order("reputation desc, id asc").Limit(limit).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]gin.H, 0, len(users))
	for _, u := range users {
		responses = append(responses, gin.H{
			"id":         u.ID,
			"username":   u.Username,
			"avatar":     u.Avatar,
			"reputation": u.Reputation,
		})
	}
	c.JSON(http.StatusOK, responses)
}

// GetUserProfile returns a user's profile with reputation and activity counts
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var questionCount, answerCount, acceptedCount int64
	h.db.Model(&models.Question{}).Where("author_id = ?", userID).Count(&questionCount)
	h.db.Model(&models.Answer{}).Where("author_id = ?", userID).Count(&answerCount)
	h.db.Model(&models.Answer{}).Where("author_id = ? AND is_accepted", userID).Count(&acceptedCount)

	var recent []models.Question
	h.db.Where("author_id = ?", userID).Order("created_at desc").Limit(10).Find(&recent)

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"bio":        user.Bio,
			"avatar":     user.Avatar,
			"reputation": user.Reputation,
			"created_at": user.CreatedAt,
		},
		"question_count":   questionCount,
		"answer_count":     answerCount,
		"accepted_count":   acceptedCount,
		"recent_questions": recent,
	})
}

func (h *UserHandler) UpdateUserProfile(c *gin.Context) {
	authUserID, ok := requireUser(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// Check if user is updating their own profile
	if authUserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only update your own profile"})
		return
	}

	var input models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Reputation is owned by the ledger and never written here.
	updates := map[string]any{}
	if input.Bio != "" {
		updates["bio"] = input.Bio
		user.Bio = input.Bio
	}
	if input.Avatar != "" {
		updates["avatar"] = input.Avatar
		user.Avatar = input.Avatar
	}
	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}

	c.JSON(http.StatusOK, userJSON(user))
}

// RecomputeReputation replays a user's reputation from their votes and
// acceptances. Users may recompute themselves; admins may recompute anyone.
func (h *UserHandler) RecomputeReputation(c *gin.Context) {
	authUserID, ok := requireUser(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if authUserID != userID && !h.isAdmin(authUserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only recompute your own reputation"})
		return
	}

	out, err := h.ledger.Recompute(c.Request.Context(), userID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    out.UserID,
		"previous":   out.Previous,
		"reputation": out.Reputation,
	})
}

// GetUserActivity returns the user's questions and answers, newest first,
// with vote counts and the accepted flag.
func (h *UserHandler) GetUserActivity(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var user models.User
	if err := h.db.Select("id").First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var questions []models.Question
	if err := h.db.Where("author_id = ?", userID).Order("created_at desc").Find(&questions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch activity"})
		return
	}
	var answers []models.Answer
	if err := h.db.Where("author_id = ?", userID).Order("created_at desc").Find(&answers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch activity"})
		return
	}

	questionIDs := make([]int, 0, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.ID)
	}
	answerIDs := make([]int, 0, len(answers))
	answeredIDs := make([]int, 0, len(answers))
	for _, a := range answers {
		answerIDs = append(answerIDs, a.ID)
		answeredIDs = append(answeredIDs, a.QuestionID)
	}

	questionVotes, err := voteCounts(h.db, reputation.TargetQuestion, questionIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}
	answerVotes, err := voteCounts(h.db, reputation.TargetAnswer, answerIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}

	var answerCounts []struct {
		QuestionID int
		N          int
	}
	if len(questionIDs) > 0 {
		err = h.db.Model(&models.Answer{}).
			Select("question_id, COUNT(*) AS n").
			Where("question_id IN ?", questionIDs).
			Group("question_id").
			Scan(&answerCounts).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch answers"})
			return
		}
	}
	answered := make(map[int]int, len(answerCounts))
	for _, r := range answerCounts {
		answered[r.QuestionID] = r.N
	}

	titles := make(map[int]string, len(answeredIDs))
	if len(answeredIDs) > 0 {
		var parents []models.Question
		if err := h.db.Select("id", "title").Where("id IN ?", answeredIDs).Find(&parents).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch questions"})
			return
		}
		for _, q := range parents {
			titles[q.ID] = q.Title
		}
	}

	questionJSON := make([]gin.H, 0, len(questions))
	for _, q := range questions {
		v := questionVotes[q.ID]
		questionJSON = append(questionJSON, gin.H{
			"id":           q.ID,
			"title":        q.Title,
			"body":         q.Body,
			"answer_count": answered[q.ID],
			"upvotes":      v.Upvotes,
			"downvotes":    v.Downvotes,
			"created_at":   q.CreatedAt,
		})
	}
	answerJSON := make([]gin.H, 0, len(answers))
	for _, a := range answers {
		v := answerVotes[a.ID]
		answerJSON = append(answerJSON, gin.H{
			"id":             a.ID,
			"body":           a.Body,
			"question_id":    a.QuestionID,
			"question_title": titles[a.QuestionID],
			"is_accepted":    a.IsAccepted,
			"upvotes":        v.Upvotes,
			"downvotes":      v.Downvotes,
			"created_at":     a.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"questions": questionJSON,
		"answers":   answerJSON,
	})
}
