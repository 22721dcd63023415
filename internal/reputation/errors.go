package reputation

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidPolarity = errors.New("vote type must be UP or DOWN")
	ErrInvalidTarget   = errors.New("target type must be question or answer")

	// ErrContention marks store failures caused by concurrent access: lock
	// timeouts, deadlocks, serialization failures and unique-index races.
	// Stores wrap driver errors with it so the engine stays driver agnostic.
	ErrContention = errors.New("concurrent update contention")
)

// SelfVoteError rejects a vote on the voter's own content.
type SelfVoteError struct {
	VoterID int
	Target  Target
}

func (e *SelfVoteError) Error() string {
	return fmt.Sprintf("user %d cannot vote on own %s %d", e.VoterID, e.Target.Type, e.Target.ID)
}

// AuthorizationError rejects an accept or unaccept by someone other than the
// question author.
type AuthorizationError struct {
	UserID     int
	QuestionID int
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %d is not the author of question %d", e.UserID, e.QuestionID)
}

// NotFoundError reports a missing user, question or answer.
type NotFoundError struct {
	Kind string
	ID   int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// LedgerError is any transactional failure. The transaction was rolled back
// in full, so the operation is safe to retry.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure came from contention or a timeout
// rather than from a persistent fault.
func (e *LedgerError) Retryable() bool {
	return errors.Is(e.Err, ErrContention) || errors.Is(e.Err, context.DeadlineExceeded)
}

// isDomainError reports errors that describe a rejected request rather than a
// failed transaction. They are surfaced unchanged.
func isDomainError(err error) bool {
	var (
		selfVote *SelfVoteError
		authz    *AuthorizationError
		notFound *NotFoundError
	)
	return errors.As(err, &selfVote) ||
		errors.As(err, &authz) ||
		errors.As(err, &notFound) ||
		errors.Is(err, ErrInvalidPolarity) ||
		errors.Is(err, ErrInvalidTarget)
}
