package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

// SQLSTATE codes that mean "another transaction got in the way".
var contentionCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available (lock_timeout)
	"57014": true, // query_canceled (statement_timeout)
	"23505": true, // unique_violation: two first votes raced
}

// LedgerStore is the Postgres implementation of reputation.Store.
type LedgerStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewLedgerStore(db *gorm.DB, lockTimeout time.Duration) *LedgerStore {
	return &LedgerStore{db: db, lockTimeout: lockTimeout}
}

// InTx runs fn in a database transaction with SET LOCAL lock_timeout applied,
// so a transaction stuck behind a row lock fails instead of hanging.
func (s *LedgerStore) InTx(ctx context.Context, fn func(reputation.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(&ledgerTx{db: tx})
	})
	return classify(err)
}

func (s *LedgerStore) UserIDs(ctx context.Context) ([]int, error) {
	var ids []int
	if err := s.db.WithContext(ctx).Model(&models.User{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// classify marks contention failures with reputation.ErrContention.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if err != nil && errors.As(err, &pgErr) && contentionCodes[pgErr.Code] {
		return fmt.Errorf("%w: %w", reputation.ErrContention, err)
	}
	return err
}

type ledgerTx struct {
	db *gorm.DB
}

func (t *ledgerTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, kind string, id int) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &reputation.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

func (t *ledgerTx) LockTarget(target reputation.Target) (int, error) {
	switch target.Type {
	case reputation.TargetQuestion:
		var q models.Question
		err := t.forUpdate().Select("id", "author_id").First(&q, target.ID).Error
		if err != nil {
			return 0, notFound(err, "question", target.ID)
		}
		return q.AuthorID, nil
	case reputation.TargetAnswer:
		var a models.Answer
		err := t.forUpdate().Select("id", "author_id").First(&a, target.ID).Error
		if err != nil {
			return 0, notFound(err, "answer", target.ID)
		}
		return a.AuthorID, nil
	}
	return 0, reputation.ErrInvalidTarget
}

func (t *ledgerTx) FindVote(voterID int, target reputation.Target) (*reputation.Vote, error) {
	var v models.Vote
	err := t.forUpdate().
		Where("user_id = ? AND target_type = ? AND target_id = ?", voterID, string(target.Type), target.ID).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reputation.Vote{
		ID:       v.ID,
		VoterID:  v.UserID,
		Target:   target,
		Polarity: reputation.Polarity(v.Polarity),
	}, nil
}

func (t *ledgerTx) InsertVote(v *reputation.Vote) error {
	row := models.Vote{
		UserID:     v.VoterID,
		TargetType: string(v.Target.Type),
		TargetID:   v.Target.ID,
		Polarity:   string(v.Polarity),
	}
	if err := t.db.Create(&row).Error; err != nil {
		return err
	}
	v.ID = row.ID
	return nil
}

func (t *ledgerTx) UpdateVotePolarity(voteID int, p reputation.Polarity) error {
	return t.db.Model(&models.Vote{}).Where("id = ?", voteID).Update("polarity", string(p)).Error
}

func (t *ledgerTx) DeleteVote(voteID int) error {
	return t.db.Delete(&models.Vote{}, voteID).Error
}

func (t *ledgerTx) LockQuestion(questionID int) (reputation.Question, error) {
	var q models.Question
	err := t.forUpdate().Select("id", "author_id", "accept_bonus_granted").First(&q, questionID).Error
	if err != nil {
		return reputation.Question{}, notFound(err, "question", questionID)
	}
	return reputation.Question{ID: q.ID, AuthorID: q.AuthorID, AcceptBonusGranted: q.AcceptBonusGranted}, nil
}

func (t *ledgerTx) FindAnswer(answerID int) (reputation.Answer, error) {
	var a models.Answer
	err := t.db.Select("id", "question_id", "author_id", "is_accepted").First(&a, answerID).Error
	if err != nil {
		return reputation.Answer{}, notFound(err, "answer", answerID)
	}
	return toLedgerAnswer(a), nil
}

func (t *ledgerTx) AcceptedAnswer(questionID int) (*reputation.Answer, error) {
	var a models.Answer
	err := t.db.Select("id", "question_id", "author_id", "is_accepted").
		Where("question_id = ? AND is_accepted = ?", questionID, true).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	answer := toLedgerAnswer(a)
	return &answer, nil
}

func toLedgerAnswer(a models.Answer) reputation.Answer {
	return reputation.Answer{ID: a.ID, QuestionID: a.QuestionID, AuthorID: a.AuthorID, IsAccepted: a.IsAccepted}
}

func (t *ledgerTx) SetAccepted(answerID int, accepted bool) error {
	return t.db.Model(&models.Answer{}).Where("id = ?", answerID).Update("is_accepted", accepted).Error
}

func (t *ledgerTx) MarkAcceptBonusGranted(questionID int) error {
	return t.db.Model(&models.Question{}).Where("id = ?", questionID).
		UpdateColumn("accept_bonus_granted", true).Error
}

func (t *ledgerTx) AdjustReputation(userID, delta int) error {
	res := t.db.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("reputation", gorm.Expr("reputation + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &reputation.NotFoundError{Kind: "user", ID: userID}
	}
	return nil
}

func (t *ledgerTx) LockUser(userID int) (int, error) {
	var u models.User
	err := t.forUpdate().Select("id", "reputation").First(&u, userID).Error
	if err != nil {
		return 0, notFound(err, "user", userID)
	}
	return u.Reputation, nil
}

const receivedVotesQuery = `
SELECT v.target_type, v.polarity, COUNT(*) AS n
FROM votes v
LEFT JOIN questions q ON v.target_type = 'question' AND q.id = v.target_id
LEFT JOIN answers a ON v.target_type = 'answer' AND a.id = v.target_id
WHERE COALESCE(q.author_id, a.author_id) = ? AND v.user_id <> ?
GROUP BY v.target_type, v.polarity`

const downvotesCastQuery = `
SELECT COUNT(*)
FROM votes v
JOIN answers a ON a.id = v.target_id
WHERE v.target_type = 'answer' AND v.polarity = 'DOWN' AND v.user_id = ? AND a.author_id <> ?`

const acceptedAnswersQuery = `
SELECT COUNT(*)
FROM answers a
JOIN questions q ON q.id = a.question_id
WHERE a.is_accepted AND a.author_id = ? AND q.author_id <> ?`

func (t *ledgerTx) Tally(userID int) (reputation.Tally, error) {
	var tally reputation.Tally

	var received []struct {
		TargetType string
		Polarity   string
		N          int
	}
	if err := t.db.Raw(receivedVotesQuery, userID, userID).Scan(&received).Error; err != nil {
		return tally, fmt.Errorf("count received votes: %w", err)
	}
	for _, r := range received {
		switch {
		case r.TargetType == string(reputation.TargetQuestion) && r.Polarity == string(reputation.Up):
			tally.QuestionUpvotes = r.N
		case r.TargetType == string(reputation.TargetQuestion) && r.Polarity == string(reputation.Down):
			tally.QuestionDownvotes = r.N
		case r.TargetType == string(reputation.TargetAnswer) && r.Polarity == string(reputation.Up):
			tally.AnswerUpvotes = r.N
		case r.TargetType == string(reputation.TargetAnswer) && r.Polarity == string(reputation.Down):
			tally.AnswerDownvotes = r.N
		}
	}

	if err := t.db.Raw(downvotesCastQuery, userID, userID).Scan(&tally.AnswerDownvotesCast).Error; err != nil {
		return tally, fmt.Errorf("count downvotes cast: %w", err)
	}
	if err := t.db.Raw(acceptedAnswersQuery, userID, userID).Scan(&tally.AcceptedAnswers).Error; err != nil {
		return tally, fmt.Errorf("count accepted answers: %w", err)
	}

	var bonuses int64
	err := t.db.Model(&models.Question{}).
		Where("author_id = ? AND accept_bonus_granted = ?", userID, true).
		Count(&bonuses).Error
	if err != nil {
		return tally, fmt.Errorf("count accept bonuses: %w", err)
	}
	tally.AcceptBonuses = int(bonuses)

	return tally, nil
}
