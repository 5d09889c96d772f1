package answer

import (
	"encoding/json"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/proleap/backend/core"
)

// Answer is a user's response to a question: a free text, one chosen option, or both.
// A multi-option submission is stored as one Answer per option.
type Answer struct {
	ID         int         `db:"id" json:"id"`
	Answer     null.String `db:"answer" json:"answer"`
	UserID     int         `db:"user_id" json:"user"`
	QuestionID int         `db:"question_id" json:"question"`
	OptionID   null.Int    `db:"option_id" json:"option"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"` // UTC
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"` // UTC
}

func (a Answer) PK() int { return a.ID }

func (a Answer) WithPK(id int) Answer {
	a.ID = id
	return a
}

// Submission is a user's answer to a question. A non-empty Options fans out to one Answer per option.
type Submission struct {
	Answer   *string `json:"answer"`
	User     int     `json:"user" validate:"required"`
	Question int     `json:"question" validate:"required"`
	Option   *int    `json:"option" validate:"omitempty,gt=0"`
	Options  []int   `json:"options" validate:"omitempty,unique,dive,gt=0"`
}

func (s Submission) text() null.String {
	if s.Answer == nil {
		return null.String{}
	}
	return null.StringFrom(core.CleanString(*s.Answer))
}

// UpdateAnswer changes the text and/or the chosen option of a stored Answer.
type UpdateAnswer struct {
	Answer *string `json:"answer"`
	Option *int    `json:"option" validate:"omitempty,gt=0"`
}

func (ua UpdateAnswer) Apply(a Answer, now time.Time) Answer {
	if ua.Answer != nil {
		a.Answer = null.StringFrom(core.CleanString(*ua.Answer))
	}
	if ua.Option != nil {
		a.OptionID = null.IntFrom(*ua.Option)
	}
	a.UpdatedAt = now
	return a
}

// Result is what a submission stored: a single Answer or the fanned-out many.
// Either way it serializes as a list.
type Result struct {
	answers []Answer
	many    bool
}

func Single(a Answer) Result {
	return Result{answers: []Answer{a}}
}

func Many(as []Answer) Result {
	if as == nil {
		as = []Answer{}
	}
	return Result{answers: as, many: true}
}

func (r Result) IsMany() bool { return r.many }

func (r Result) Answers() []Answer {
	if r.answers == nil {
		return []Answer{}
	}
	return r.answers
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Answers())
}
