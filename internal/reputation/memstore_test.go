package reputation

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// memStore is an in-memory Store. InTx works on a copy of the state and only
// publishes it when fn succeeds, which gives the engine real rollback.
type memStore struct {
	mu     sync.Mutex
	state  memState
	nextID int
	// failures makes the named Tx method return the error.
	failures map[string]error
}

type memState struct {
	users     map[int]int
	questions map[int]Question
	answers   map[int]Answer
	votes     map[int]Vote
}

func (s memState) clone() memState {
	return memState{
		users:     maps.Clone(s.users),
		questions: maps.Clone(s.questions),
		answers:   maps.Clone(s.answers),
		votes:     maps.Clone(s.votes),
	}
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			users:     map[int]int{},
			questions: map[int]Question{},
			answers:   map[int]Answer{},
			votes:     map[int]Vote{},
		},
		nextID:   1000,
		failures: map[string]error{},
	}
}

func (s *memStore) addUser(id int) {
	s.state.users[id] = 0
}

func (s *memStore) addQuestion(id, authorID int) {
	s.state.questions[id] = Question{ID: id, AuthorID: authorID}
}

func (s *memStore) addAnswer(id, questionID, authorID int) {
	s.state.answers[id] = Answer{ID: id, QuestionID: questionID, AuthorID: authorID}
}

func (s *memStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *memStore) reputation(userID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.users[userID]
}

func (s *memStore) setReputation(userID, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[userID] = value
}

func (s *memStore) voteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.votes)
}

func (s *memStore) accepted(questionID int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for _, a := range s.state.answers {
		if a.QuestionID == questionID && a.IsAccepted {
			ids = append(ids, a.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	tx := &memTx{store: s, st: &work}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memStore) UserIDs(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.state.users))
	for id := range s.state.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

type memTx struct {
	store *memStore
	st    *memState
}

func (t *memTx) fail(method string) error {
	return t.store.failures[method]
}

func (t *memTx) authorOf(target Target) (int, bool) {
	switch target.Type {
	case TargetQuestion:
		q, ok := t.st.questions[target.ID]
		return q.AuthorID, ok
	case TargetAnswer:
		a, ok := t.st.answers[target.ID]
		return a.AuthorID, ok
	}
	return 0, false
}

func (t *memTx) LockTarget(target Target) (int, error) {
	if err := t.fail("LockTarget"); err != nil {
		return 0, err
	}
	author, ok := t.authorOf(target)
	if !ok {
		return 0, &NotFoundError{Kind: string(target.Type), ID: target.ID}
	}
	return author, nil
}

func (t *memTx) FindVote(voterID int, target Target) (*Vote, error) {
	for _, v := range t.st.votes {
		if v.VoterID == voterID && v.Target == target {
			return &v, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertVote(v *Vote) error {
	if err := t.fail("InsertVote"); err != nil {
		return err
	}
	t.store.nextID++
	v.ID = t.store.nextID
	t.st.votes[v.ID] = *v
	return nil
}

func (t *memTx) UpdateVotePolarity(voteID int, p Polarity) error {
	if err := t.fail("UpdateVotePolarity"); err != nil {
		return err
	}
	v := t.st.votes[voteID]
	v.Polarity = p
	t.st.votes[voteID] = v
	return nil
}

func (t *memTx) DeleteVote(voteID int) error {
	if err := t.fail("DeleteVote"); err != nil {
		return err
	}
	delete(t.st.votes, voteID)
	return nil
}

func (t *memTx) LockQuestion(questionID int) (Question, error) {
	q, ok := t.st.questions[questionID]
	if !ok {
		return Question{}, &NotFoundError{Kind: "question", ID: questionID}
	}
	return q, nil
}

func (t *memTx) FindAnswer(answerID int) (Answer, error) {
	a, ok := t.st.answers[answerID]
	if !ok {
		return Answer{}, &NotFoundError{Kind: "answer", ID: answerID}
	}
	return a, nil
}

func (t *memTx) AcceptedAnswer(questionID int) (*Answer, error) {
	for _, a := range t.st.answers {
		if a.QuestionID == questionID && a.IsAccepted {
			return &a, nil
		}
	}
	return nil, nil
}

func (t *memTx) SetAccepted(answerID int, accepted bool) error {
	if err := t.fail("SetAccepted"); err != nil {
		return err
	}
	a := t.st.answers[answerID]
	a.IsAccepted = accepted
	t.st.answers[answerID] = a
	return nil
}

func (t *memTx) MarkAcceptBonusGranted(questionID int) error {
	q := t.st.questions[questionID]
	q.AcceptBonusGranted = true
	t.st.questions[questionID] = q
	return nil
}

func (t *memTx) AdjustReputation(userID, delta int) error {
	if err := t.fail("AdjustReputation"); err != nil {
		return err
	}
	if _, ok := t.st.users[userID]; !ok {
		return &NotFoundError{Kind: "user", ID: userID}
	}
	t.st.users[userID] += delta
	return nil
}

func (t *memTx) LockUser(userID int) (int, error) {
	rep, ok := t.st.users[userID]
	if !ok {
		return 0, &NotFoundError{Kind: "user", ID: userID}
	}
	return rep, nil
}

func (t *memTx) Tally(userID int) (Tally, error) {
	var tally Tally
	for _, v := range t.st.votes {
		author, ok := t.authorOf(v.Target)
		if !ok || author == v.VoterID {
			continue
		}
		if author == userID {
			switch {
			case v.Target.Type == TargetQuestion && v.Polarity == Up:
				tally.QuestionUpvotes++
			case v.Target.Type == TargetQuestion && v.Polarity == Down:
				tally.QuestionDownvotes++
			case v.Target.Type == TargetAnswer && v.Polarity == Up:
				tally.AnswerUpvotes++
			case v.Target.Type == TargetAnswer && v.Polarity == Down:
				tally.AnswerDownvotes++
			}
		}
		if v.VoterID == userID && v.Target.Type == TargetAnswer && v.Polarity == Down {
			tally.AnswerDownvotesCast++
		}
	}
	for _, a := range t.st.answers {
		q := t.st.questions[a.QuestionID]
		if a.IsAccepted && a.AuthorID == userID && q.AuthorID != userID {
			tally.AcceptedAnswers++
		}
	}
	for _, q := range t.st.questions {
		if q.AuthorID == userID && q.AcceptBonusGranted {
			tally.AcceptBonuses++
		}
	}
	return tally, nil
}
