package reputation

import "context"

// Vote is one voter's standing polarity on a target.
type Vote struct {
	ID       int
	VoterID  int
	Target   Target
	Polarity Polarity
}

// Question is the acceptance-relevant part of a question row.
type Question struct {
	ID                 int
	AuthorID           int
	AcceptBonusGranted bool
}

// Answer is the acceptance-relevant part of an answer row.
type Answer struct {
	ID         int
	QuestionID int
	AuthorID   int
	IsAccepted bool
}

func (a *Answer) ref() *AnswerRef {
	if a == nil {
		return nil
	}
	return &AnswerRef{ID: a.ID, AuthorID: a.AuthorID}
}

// Store runs units of work atomically. InTx commits when fn returns nil and
// rolls back otherwise, returning fn's error.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	UserIDs(ctx context.Context) ([]int, error)
}

// Tx is the persistence surface available inside a transaction. Lookups of
// missing rows return *NotFoundError. The Lock methods must hold a row lock
// until the transaction ends.
type Tx interface {
	// LockTarget locks the question or answer row and returns its author.
	LockTarget(target Target) (authorID int, err error)
	// FindVote returns nil when the voter has no vote on target.
	FindVote(voterID int, target Target) (*Vote, error)
	InsertVote(v *Vote) error
	UpdateVotePolarity(voteID int, p Polarity) error
	DeleteVote(voteID int) error

	LockQuestion(questionID int) (Question, error)
	FindAnswer(answerID int) (Answer, error)
	// AcceptedAnswer returns nil when no answer of the question is accepted.
	AcceptedAnswer(questionID int) (*Answer, error)
	SetAccepted(answerID int, accepted bool) error
	MarkAcceptBonusGranted(questionID int) error

	// AdjustReputation increments the stored value by delta. It never
	// overwrites the counter.
	AdjustReputation(userID, delta int) error
	LockUser(userID int) (reputation int, err error)
	Tally(userID int) (Tally, error)
}
