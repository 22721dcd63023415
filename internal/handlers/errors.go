package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/qa-forum/backend/internal/middleware"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

// respondLedgerError maps engine errors onto HTTP statuses.
func respondLedgerError(c *gin.Context, err error) {
	var (
		selfVote  *reputation.SelfVoteError
		authz     *reputation.AuthorizationError
		notFound  *reputation.NotFoundError
		ledgerErr *reputation.LedgerError
	)

	switch {
	case errors.As(err, &selfVote):
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot vote on your own " + string(selfVote.Target.Type)})
	case errors.Is(err, reputation.ErrInvalidPolarity), errors.Is(err, reputation.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &authz):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the question author can accept answers"})
	case errors.As(err, &notFound):
		kind := notFound.Kind
		if kind != "" {
			kind = strings.ToUpper(kind[:1]) + kind[1:]
		}
		c.JSON(http.StatusNotFound, gin.H{"error": kind + " not found"})
	case errors.As(err, &ledgerErr) && ledgerErr.Retryable():
		slog.Warn("ledger contention", "op", ledgerErr.Op, "error", err, "request_id", c.GetString(middleware.RequestIDKey))
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Conflicting update, please retry"})
	default:
		slog.Error("ledger failure", "error", err, "request_id", c.GetString(middleware.RequestIDKey))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update reputation"})
	}
}

// errHasReputation refuses deletes that would orphan reputation recompute can
// no longer replay.
var errHasReputation = errors.New("content carries votes or an accepted answer")

func respondDeleteError(c *gin.Context, kind string, err error) {
	var notFound *reputation.NotFoundError
	switch {
	case errors.Is(err, errHasReputation):
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot delete a " + kind + " that has votes or an accepted answer"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": strings.ToUpper(kind[:1]) + kind[1:] + " not found"})
	default:
		slog.Error("delete failed", "kind", kind, "error", err, "request_id", c.GetString(middleware.RequestIDKey))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete " + kind})
	}
}
