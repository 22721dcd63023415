package reputation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const defaultTxTimeout = 5 * time.Second

// Engine applies vote and acceptance transitions to the ledger.
type Engine struct {
	store     Store
	rules     Rules
	txTimeout time.Duration
	log       *slog.Logger
}

type Option func(*Engine)

// WithTxTimeout bounds every transaction. Zero disables the bound.
func WithTxTimeout(d time.Duration) Option {
	return func(e *Engine) { e.txTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(store Store, rules Rules, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		rules:     rules,
		txTimeout: defaultTxTimeout,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns a copy of the engine's point table.
func (e *Engine) Rules() Rules {
	return e.rules
}

// VoteOutcome is the result of ApplyVote. Polarity None means the vote was
// retracted.
type VoteOutcome struct {
	Polarity Polarity
	Previous Polarity
	AuthorID int
	Deltas   Deltas
}

// ApplyVote casts, switches or retracts voterID's vote on target.
func (e *Engine) ApplyVote(ctx context.Context, voterID int, target Target, requested Polarity) (VoteOutcome, error) {
	if !requested.Valid() {
		return VoteOutcome{}, ErrInvalidPolarity
	}
	if !target.Type.Valid() {
		return VoteOutcome{}, ErrInvalidTarget
	}

	var out VoteOutcome
	err := e.run(ctx, "vote", func(tx Tx) error {
		authorID, err := tx.LockTarget(target)
		if err != nil {
			return err
		}
		if authorID == voterID {
			return &SelfVoteError{VoterID: voterID, Target: target}
		}

		existing, err := tx.FindVote(voterID, target)
		if err != nil {
			return err
		}
		old := None
		if existing != nil {
			old = existing.Polarity
		}
		next := Toggle(old, requested)

		switch {
		case existing == nil:
			err = tx.InsertVote(&Vote{VoterID: voterID, Target: target, Polarity: next})
		case next == None:
			err = tx.DeleteVote(existing.ID)
		default:
			err = tx.UpdateVotePolarity(existing.ID, next)
		}
		if err != nil {
			return err
		}

		deltas := e.rules.VoteTransition(target.Type, authorID, voterID, old, next)
		if err := applyDeltas(tx, deltas); err != nil {
			return err
		}
		out = VoteOutcome{Polarity: next, Previous: old, AuthorID: authorID, Deltas: deltas}
		return nil
	})
	if err != nil {
		return VoteOutcome{}, err
	}

	e.log.Info("vote applied",
		"voter_id", voterID,
		"target", target.String(),
		"previous", out.Previous,
		"polarity", out.Polarity,
		"deltas", out.Deltas.Sorted(),
	)
	return out, nil
}

// AcceptOutcome is the result of ApplyAccept and ApplyUnaccept. Accepted is
// the answer accepted after the operation, nil when none is.
type AcceptOutcome struct {
	PreviouslyAccepted *int
	Accepted           *int
	BonusGranted       bool
	Deltas             Deltas
}

// ApplyAccept marks answerID as the accepted answer of questionID, replacing
// any previously accepted answer. Only the question author may do this.
func (e *Engine) ApplyAccept(ctx context.Context, requesterID, questionID, answerID int) (AcceptOutcome, error) {
	var out AcceptOutcome
	err := e.run(ctx, "accept", func(tx Tx) error {
		q, answer, prev, err := e.loadAcceptance(tx, requesterID, questionID, answerID)
		if err != nil {
			return err
		}

		out.Accepted = &answer.ID
		if prev != nil {
			out.PreviouslyAccepted = &prev.ID
			if prev.ID == answer.ID {
				out.Deltas = Deltas{}
				return nil
			}
			if err := tx.SetAccepted(prev.ID, false); err != nil {
				return err
			}
		}
		if err := tx.SetAccepted(answer.ID, true); err != nil {
			return err
		}

		deltas, grant := e.rules.AcceptTransition(AcceptState{
			QuestionAuthorID: q.AuthorID,
			BonusGranted:     q.AcceptBonusGranted,
			Previous:         prev.ref(),
			Next:             answer.ref(),
		})
		if grant {
			if err := tx.MarkAcceptBonusGranted(q.ID); err != nil {
				return err
			}
		}
		if err := applyDeltas(tx, deltas); err != nil {
			return err
		}
		out.BonusGranted = grant
		out.Deltas = deltas
		return nil
	})
	if err != nil {
		return AcceptOutcome{}, err
	}

	e.log.Info("answer accepted",
		"question_id", questionID,
		"answer_id", answerID,
		"previously_accepted", intOrNil(out.PreviouslyAccepted),
		"bonus_granted", out.BonusGranted,
		"deltas", out.Deltas.Sorted(),
	)
	return out, nil
}

// ApplyUnaccept withdraws the acceptance of answerID. It is a no-op when
// answerID is not the accepted answer of questionID.
func (e *Engine) ApplyUnaccept(ctx context.Context, requesterID, questionID, answerID int) (AcceptOutcome, error) {
	var out AcceptOutcome
	err := e.run(ctx, "unaccept", func(tx Tx) error {
		q, answer, prev, err := e.loadAcceptance(tx, requesterID, questionID, answerID)
		if err != nil {
			return err
		}

		out.Deltas = Deltas{}
		if prev == nil {
			return nil
		}
		out.PreviouslyAccepted = &prev.ID
		if prev.ID != answer.ID {
			out.Accepted = &prev.ID
			return nil
		}
		if err := tx.SetAccepted(prev.ID, false); err != nil {
			return err
		}

		deltas, _ := e.rules.AcceptTransition(AcceptState{
			QuestionAuthorID: q.AuthorID,
			BonusGranted:     q.AcceptBonusGranted,
			Previous:         prev.ref(),
		})
		if err := applyDeltas(tx, deltas); err != nil {
			return err
		}
		out.Deltas = deltas
		return nil
	})
	if err != nil {
		return AcceptOutcome{}, err
	}

	e.log.Info("answer unaccepted",
		"question_id", questionID,
		"answer_id", answerID,
		"deltas", out.Deltas.Sorted(),
	)
	return out, nil
}

// loadAcceptance locks the question, checks the requester and returns the
// requested answer along with the currently accepted one.
func (e *Engine) loadAcceptance(tx Tx, requesterID, questionID, answerID int) (Question, *Answer, *Answer, error) {
	q, err := tx.LockQuestion(questionID)
	if err != nil {
		return Question{}, nil, nil, err
	}
	if q.AuthorID != requesterID {
		return Question{}, nil, nil, &AuthorizationError{UserID: requesterID, QuestionID: questionID}
	}
	answer, err := tx.FindAnswer(answerID)
	if err != nil {
		return Question{}, nil, nil, err
	}
	if answer.QuestionID != questionID {
		return Question{}, nil, nil, &NotFoundError{Kind: "answer", ID: answerID}
	}
	prev, err := tx.AcceptedAnswer(questionID)
	if err != nil {
		return Question{}, nil, nil, err
	}
	return q, &answer, prev, nil
}

// RecomputeOutcome reports a user's reputation before and after a replay.
type RecomputeOutcome struct {
	UserID     int
	Previous   int
	Reputation int
}

// Recompute replays userID's reputation from the current vote and acceptance
// rows and stores the result. The correction is written as a relative
// adjustment under the user's row lock.
func (e *Engine) Recompute(ctx context.Context, userID int) (RecomputeOutcome, error) {
	var out RecomputeOutcome
	err := e.run(ctx, "recompute", func(tx Tx) error {
		current, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		tally, err := tx.Tally(userID)
		if err != nil {
			return err
		}
		score := e.rules.Score(tally)
		if drift := score - current; drift != 0 {
			if err := tx.AdjustReputation(userID, drift); err != nil {
				return err
			}
		}
		out = RecomputeOutcome{UserID: userID, Previous: current, Reputation: score}
		return nil
	})
	if err != nil {
		return RecomputeOutcome{}, err
	}

	if out.Previous != out.Reputation {
		e.log.Warn("reputation drift repaired",
			"user_id", userID,
			"previous", out.Previous,
			"reputation", out.Reputation,
		)
	}
	return out, nil
}

// RecomputeAll runs Recompute for every user, one transaction per user. It
// stops at the first failure and returns the outcomes gathered so far.
func (e *Engine) RecomputeAll(ctx context.Context) ([]RecomputeOutcome, error) {
	ids, err := e.store.UserIDs(ctx)
	if err != nil {
		return nil, &LedgerError{Op: "list users", Err: err}
	}
	outcomes := make([]RecomputeOutcome, 0, len(ids))
	for _, id := range ids {
		out, err := e.Recompute(ctx, id)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// run executes fn in one transaction. Rejections pass through unchanged,
// every other failure becomes a *LedgerError.
func (e *Engine) run(ctx context.Context, op string, fn func(Tx) error) error {
	if e.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.txTimeout)
		defer cancel()
	}

	err := e.store.InTx(ctx, fn)
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return err
	}
	e.log.Error("ledger transaction failed", "op", op, "error", err)
	return &LedgerError{Op: op, Err: err}
}

func applyDeltas(tx Tx, deltas Deltas) error {
	for _, d := range deltas.Sorted() {
		if err := tx.AdjustReputation(d.UserID, d.Amount); err != nil {
			return err
		}
	}
	return nil
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
