package reputation

import (
	"fmt"
	"sort"
)

// Polarity is a voter's stance on a target.
type Polarity string

const (
	None Polarity = "NONE"
	Up   Polarity = "UP"
	Down Polarity = "DOWN"
)

// Valid reports whether p can be requested by a voter.
func (p Polarity) Valid() bool {
	return p == Up || p == Down
}

// TargetType is the kind of content a vote points at.
type TargetType string

const (
	TargetQuestion TargetType = "question"
	TargetAnswer   TargetType = "answer"
)

func (t TargetType) Valid() bool {
	return t == TargetQuestion || t == TargetAnswer
}

// Target identifies a question or an answer.
type Target struct {
	Type TargetType
	ID   int
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Type, t.ID)
}

// Rules is the point table. It is passed by value into the engine and never
// mutated afterwards.
type Rules struct {
	UpAnswer     int // answer author, per upvote
	UpQuestion   int // question author, per upvote
	DownPost     int // content author, per downvote
	DownVoter    int // voter, per downvote cast on an answer
	AcceptAnswer int // answer author, while the answer is accepted
	AcceptGiver  int // question author, once per question
}

// DefaultRules returns the forum's standard point table.
func DefaultRules() Rules {
	return Rules{
		UpAnswer:     10,
		UpQuestion:   5,
		DownPost:     2,
		DownVoter:    1,
		AcceptAnswer: 15,
		AcceptGiver:  2,
	}
}

// Validate rejects negative magnitudes; signs are applied by the rules.
func (r Rules) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"UpAnswer", r.UpAnswer},
		{"UpQuestion", r.UpQuestion},
		{"DownPost", r.DownPost},
		{"DownVoter", r.DownVoter},
		{"AcceptAnswer", r.AcceptAnswer},
		{"AcceptGiver", r.AcceptGiver},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("reputation rule %s must not be negative, got %d", f.name, f.value)
		}
	}
	return nil
}

// Delta is a signed reputation change for one user.
type Delta struct {
	UserID int `json:"user_id"`
	Amount int `json:"amount"`
}

// Deltas accumulates reputation changes keyed by user id.
type Deltas map[int]int

func (d Deltas) Add(userID, amount int) {
	if amount == 0 {
		return
	}
	d[userID] += amount
	if d[userID] == 0 {
		delete(d, userID)
	}
}

// Merge adds every entry of other multiplied by sign.
func (d Deltas) Merge(other Deltas, sign int) {
	for userID, amount := range other {
		d.Add(userID, amount*sign)
	}
}

// Of returns the net change for userID.
func (d Deltas) Of(userID int) int {
	return d[userID]
}

// Sorted lists the non-zero deltas in ascending user id order. Writers apply
// them in this order so concurrent transactions lock user rows consistently.
func (d Deltas) Sorted() []Delta {
	out := make([]Delta, 0, len(d))
	for userID, amount := range d {
		if amount != 0 {
			out = append(out, Delta{UserID: userID, Amount: amount})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Toggle returns the polarity that results from requesting requested while
// old is standing. Repeating the standing polarity retracts it.
func Toggle(old, requested Polarity) Polarity {
	if old == requested {
		return None
	}
	return requested
}

// VoteEffect is the contribution of one standing vote. Self-votes contribute
// nothing. A downvote on an answer debits the author and the voter together.
func (r Rules) VoteEffect(t TargetType, authorID, voterID int, p Polarity) Deltas {
	d := Deltas{}
	if authorID == voterID {
		return d
	}
	switch p {
	case Up:
		if t == TargetAnswer {
			d.Add(authorID, r.UpAnswer)
		} else {
			d.Add(authorID, r.UpQuestion)
		}
	case Down:
		d.Add(authorID, -r.DownPost)
		if t == TargetAnswer {
			d.Add(voterID, -r.DownVoter)
		}
	}
	return d
}

// VoteTransition reverts the effect of old and applies the effect of next.
func (r Rules) VoteTransition(t TargetType, authorID, voterID int, old, next Polarity) Deltas {
	d := Deltas{}
	d.Merge(r.VoteEffect(t, authorID, voterID, next), 1)
	d.Merge(r.VoteEffect(t, authorID, voterID, old), -1)
	return d
}

// AnswerRef is the part of an answer the acceptance rules look at.
type AnswerRef struct {
	ID       int
	AuthorID int
}

// AcceptState describes an acceptance transition on one question. Next is nil
// when the accepted answer is being withdrawn.
type AcceptState struct {
	QuestionAuthorID int
	BonusGranted     bool
	Previous         *AnswerRef
	Next             *AnswerRef
}

// AcceptTransition returns the deltas for moving the accepted answer from
// Previous to Next, and whether the one-time giver bonus is paid by it.
func (r Rules) AcceptTransition(s AcceptState) (Deltas, bool) {
	d := Deltas{}
	if s.Previous != nil && s.Next != nil && s.Previous.ID == s.Next.ID {
		return d, false
	}
	if s.Previous != nil && s.Previous.AuthorID != s.QuestionAuthorID {
		d.Add(s.Previous.AuthorID, -r.AcceptAnswer)
	}
	if s.Next == nil || s.Next.AuthorID == s.QuestionAuthorID {
		return d, false
	}
	d.Add(s.Next.AuthorID, r.AcceptAnswer)
	if s.BonusGranted {
		return d, false
	}
	d.Add(s.QuestionAuthorID, r.AcceptGiver)
	return d, true
}

// Tally counts the rows that contribute to one user's reputation. Self-votes
// and self-accepts are never counted.
type Tally struct {
	QuestionUpvotes     int // received on own questions
	QuestionDownvotes   int
	AnswerUpvotes       int // received on own answers
	AnswerDownvotes     int
	AnswerDownvotesCast int // cast on other users' answers
	AcceptedAnswers     int // own answers accepted on other users' questions
	AcceptBonuses       int // own questions whose giver bonus was paid
}

// Score replays a tally against the rule table.
func (r Rules) Score(t Tally) int {
	return t.QuestionUpvotes*r.UpQuestion +
		t.AnswerUpvotes*r.UpAnswer -
		(t.QuestionDownvotes+t.AnswerDownvotes)*r.DownPost -
		t.AnswerDownvotesCast*r.DownVoter +
		t.AcceptedAnswers*r.AcceptAnswer +
		t.AcceptBonuses*r.AcceptGiver
}
