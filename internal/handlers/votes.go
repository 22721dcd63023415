package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

// VoteHandler exposes the ledger operations: votes and answer acceptance.
type VoteHandler struct {
	ledger   Ledger
	notifier Notifier
}

func NewVoteHandler(ledger Ledger, notifier Notifier) *VoteHandler {
	return &VoteHandler{ledger: ledger, notifier: notifier}
}

// Vote casts, switches or retracts the caller's vote. Repeating the current
// vote retracts it. The response carries the stored result, never a guess.
func (h *VoteHandler) Vote(c *gin.Context) {
	voterID, ok := requireUser(c)
	if !ok {
		return
	}

	var input models.VoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requested := reputation.Polarity(strings.ToUpper(strings.TrimSpace(input.VoteType)))
	if !requested.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vote_type must be UP or DOWN"})
		return
	}
	if input.TargetID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target_id"})
		return
	}

	target := reputation.Target{Type: reputation.TargetType(input.TargetType), ID: input.TargetID}
	out, err := h.ledger.ApplyVote(c.Request.Context(), voterID, target, requested)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	if out.Polarity != reputation.None {
		h.notifier.VoteCast(c.Request.Context(), voterID, out.AuthorID, target, out.Polarity)
	}

	c.JSON(http.StatusOK, gin.H{
		"target_type":       target.Type,
		"target_id":         target.ID,
		"result_polarity":   out.Polarity,
		"previous_polarity": out.Previous,
	})
}

func (h *VoteHandler) acceptParams(c *gin.Context) (userID, questionID, answerID int, ok bool) {
	if userID, ok = requireUser(c); !ok {
		return
	}
	if questionID, ok = paramID(c, "id"); !ok {
		return
	}
	answerID, ok = paramID(c, "answerId")
	return
}

func acceptJSON(out reputation.AcceptOutcome) gin.H {
	return gin.H{
		"previously_accepted": out.PreviouslyAccepted,
		"accepted":            out.Accepted,
		"bonus_granted":       out.BonusGranted,
	}
}

// AcceptAnswer marks an answer as the accepted one (question author only).
func (h *VoteHandler) AcceptAnswer(c *gin.Context) {
	userID, questionID, answerID, ok := h.acceptParams(c)
	if !ok {
		return
	}

	out, err := h.ledger.ApplyAccept(c.Request.Context(), userID, questionID, answerID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	if out.PreviouslyAccepted == nil || *out.PreviouslyAccepted != answerID {
		h.notifier.AnswerAccepted(c.Request.Context(), userID, questionID, answerID)
	}

	c.JSON(http.StatusOK, acceptJSON(out))
}

// UnacceptAnswer clears the accepted flag (question author only).
func (h *VoteHandler) UnacceptAnswer(c *gin.Context) {
	userID, questionID, answerID, ok := h.acceptParams(c)
	if !ok {
		return
	}

	out, err := h.ledger.ApplyUnaccept(c.Request.Context(), userID, questionID, answerID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, acceptJSON(out))
}
