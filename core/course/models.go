package course

import (
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/proleap/backend/core"
)

// Card types
const (
	CardContent  = "CONTENT"
	CardQuestion = "QUESTION"
	CardPolling  = "POLLING"
)

// Question types
const (
	QuestionText           = "TEXT"
	QuestionSingleChoice   = "SINGLE_CHOICE"
	QuestionMultipleChoice = "MULTIPLE_CHOICE"
)

var (
	BySequence = []core.DBOrdering{{Field: "sequence_no", Ascending: true}, {Field: "id", Ascending: true}}
	ByCreation = []core.DBOrdering{{Field: "created_at", Ascending: true}, {Field: "id", Ascending: true}}
)

// Batch is a cohort of users following the same activities.
type Batch struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"` // UTC
}

func (b Batch) PK() int { return b.ID }

func (b Batch) WithPK(id int) Batch {
	b.ID = id
	return b
}

type Activity struct {
	ID                int       `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Desc              string    `db:"description" json:"desc"`
	StartTime         null.Time `db:"start_time" json:"start_time"`
	EndTime           null.Time `db:"end_time" json:"end_time"`
	TotalCards        int       `db:"total_cards" json:"total_cards"`
	TotalPollingCards int       `db:"total_polling_cards" json:"total_polling_cards"`
	BatchID           int       `db:"batch_id" json:"batch"`
	SequenceNo        int       `db:"sequence_no" json:"sequence_no"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func (a Activity) PK() int { return a.ID }

func (a Activity) WithPK(id int) Activity {
	a.ID = id
	return a
}

type Card struct {
	ID             int       `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Desc           string    `db:"description" json:"desc"`
	Type           string    `db:"type" json:"type"`
	ToBeShown      bool      `db:"to_be_shown" json:"to_be_shown"`
	StartTime      null.Time `db:"start_time" json:"start_time"`
	EndTime        null.Time `db:"end_time" json:"end_time"`
	Duration       null.Int  `db:"duration" json:"duration"` // seconds
	TotalQuestions int       `db:"total_questions" json:"total_questions"`
	ActivityID     int       `db:"activity_id" json:"activity"`
	SequenceNo     int       `db:"sequence_no" json:"sequence_no"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (c Card) PK() int { return c.ID }

func (c Card) WithPK(id int) Card {
	c.ID = id
	return c
}

type Question struct {
	ID         int       `db:"id" json:"id"`
	Text       string    `db:"text" json:"text"`
	Type       string    `db:"type" json:"type"`
	Desc       string    `db:"description" json:"desc"`
	IsRequired bool      `db:"is_required" json:"is_required"`
	CardID     int       `db:"card_id" json:"card"`
	SequenceNo int       `db:"sequence_no" json:"sequence_no"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

func (q Question) PK() int { return q.ID }

func (q Question) WithPK(id int) Question {
	q.ID = id
	return q
}

type Option struct {
	ID         int       `db:"id" json:"id"`
	Value      string    `db:"value" json:"value"`
	SequenceNo int       `db:"sequence_no" json:"sequence_no"`
	QuestionID int       `db:"question_id" json:"question"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

func (o Option) PK() int { return o.ID }

func (o Option) WithPK(id int) Option {
	o.ID = id
	return o
}

// Payloads.
// Parents are set at creation only; an update naming another parent is a ConflictError.

type NewBatch struct {
	Name string `json:"name" validate:"required,notblank,max=255"`
}

func (nb NewBatch) New(now time.Time) Batch {
	return Batch{Name: core.CleanString(nb.Name), CreatedAt: now, UpdatedAt: now}
}

type UpdateBatch struct {
	Name *string `json:"name" validate:"omitempty,notblank,max=255"`
}

func (ub UpdateBatch) Apply(b Batch, now time.Time) Batch {
	setString(&b.Name, ub.Name)
	b.UpdatedAt = now
	return b
}

type NewActivity struct {
	Name              string    `json:"name" validate:"required,notblank,max=255"`
	Desc              string    `json:"desc"`
	StartTime         null.Time `json:"start_time"`
	EndTime           null.Time `json:"end_time"`
	TotalCards        int       `json:"total_cards" validate:"min=0"`
	TotalPollingCards int       `json:"total_polling_cards" validate:"min=0"`
	Batch             int       `json:"batch" validate:"required"`
	SequenceNo        *int      `json:"sequence_no" validate:"required,min=0"`
}

func (na NewActivity) New(now time.Time) Activity {
	return Activity{
		Name:              core.CleanString(na.Name),
		Desc:              core.CleanString(na.Desc),
		StartTime:         utc(na.StartTime),
		EndTime:           utc(na.EndTime),
		TotalCards:        na.TotalCards,
		TotalPollingCards: na.TotalPollingCards,
		BatchID:           na.Batch,
		SequenceNo:        intValue(na.SequenceNo),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

type UpdateActivity struct {
	Name              *string    `json:"name" validate:"omitempty,notblank,max=255"`
	Desc              *string    `json:"desc"`
	StartTime         *time.Time `json:"start_time"`
	EndTime           *time.Time `json:"end_time"`
	TotalCards        *int       `json:"total_cards" validate:"omitempty,min=0"`
	TotalPollingCards *int       `json:"total_polling_cards" validate:"omitempty,min=0"`
	SequenceNo        *int       `json:"sequence_no" validate:"omitempty,min=0"`
	Batch             *int       `json:"batch"`
}

func (ua UpdateActivity) CheckParent(a Activity) error {
	return sameParent("batch", "activity", ua.Batch, a.BatchID)
}

func (ua UpdateActivity) Apply(a Activity, now time.Time) Activity {
	setString(&a.Name, ua.Name)
	setText(&a.Desc, ua.Desc)
	setTime(&a.StartTime, ua.StartTime)
	setTime(&a.EndTime, ua.EndTime)
	setInt(&a.TotalCards, ua.TotalCards)
	setInt(&a.TotalPollingCards, ua.TotalPollingCards)
	setInt(&a.SequenceNo, ua.SequenceNo)
	a.UpdatedAt = now
	return a
}

type NewCard struct {
	Name           string    `json:"name" validate:"required,notblank,max=255"`
	Desc           string    `json:"desc"`
	Type           string    `json:"type" validate:"required,oneof=CONTENT QUESTION POLLING"`
	ToBeShown      *bool     `json:"to_be_shown"`
	StartTime      null.Time `json:"start_time"`
	EndTime        null.Time `json:"end_time"`
	Duration       null.Int  `json:"duration"`
	TotalQuestions int       `json:"total_questions" validate:"min=0"`
	Activity       int       `json:"activity" validate:"required"`
	SequenceNo     *int      `json:"sequence_no" validate:"required,min=0"`
}

func (nc NewCard) New(now time.Time) Card {
	c := Card{
		Name:           core.CleanString(nc.Name),
		Desc:           core.CleanString(nc.Desc),
		Type:           nc.Type,
		ToBeShown:      true,
		StartTime:      utc(nc.StartTime),
		EndTime:        utc(nc.EndTime),
		Duration:       nc.Duration,
		TotalQuestions: nc.TotalQuestions,
		ActivityID:     nc.Activity,
		SequenceNo:     intValue(nc.SequenceNo),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if nc.ToBeShown != nil {
		c.ToBeShown = *nc.ToBeShown
	}
	return c
}

type UpdateCard struct {
	Name           *string    `json:"name" validate:"omitempty,notblank,max=255"`
	Desc           *string    `json:"desc"`
	Type           *string    `json:"type" validate:"omitempty,oneof=CONTENT QUESTION POLLING"`
	ToBeShown      *bool      `json:"to_be_shown"`
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	Duration       *int       `json:"duration" validate:"omitempty,min=0"`
	TotalQuestions *int       `json:"total_questions" validate:"omitempty,min=0"`
	SequenceNo     *int       `json:"sequence_no" validate:"omitempty,min=0"`
	Activity       *int       `json:"activity"`
}

func (uc UpdateCard) CheckParent(c Card) error {
	return sameParent("activity", "card", uc.Activity, c.ActivityID)
}

func (uc UpdateCard) Apply(c Card, now time.Time) Card {
	setString(&c.Name, uc.Name)
	setText(&c.Desc, uc.Desc)
	setString(&c.Type, uc.Type)
	if uc.ToBeShown != nil {
		c.ToBeShown = *uc.ToBeShown
	}
	setTime(&c.StartTime, uc.StartTime)
	setTime(&c.EndTime, uc.EndTime)
	if uc.Duration != nil {
		c.Duration = null.IntFrom(*uc.Duration)
	}
	setInt(&c.TotalQuestions, uc.TotalQuestions)
	setInt(&c.SequenceNo, uc.SequenceNo)
	c.UpdatedAt = now
	return c
}

type NewQuestion struct {
	Text       string `json:"text" validate:"required,notblank"`
	Type       string `json:"type" validate:"required,oneof=TEXT SINGLE_CHOICE MULTIPLE_CHOICE"`
	Desc       string `json:"desc"`
	IsRequired bool   `json:"is_required"`
	Card       int    `json:"card" validate:"required"`
	SequenceNo *int   `json:"sequence_no" validate:"required,min=0"`
}

func (nq NewQuestion) New(now time.Time) Question {
	return Question{
		Text:       core.CleanString(nq.Text),
		Type:       nq.Type,
		Desc:       core.CleanString(nq.Desc),
		IsRequired: nq.IsRequired,
		CardID:     nq.Card,
		SequenceNo: intValue(nq.SequenceNo),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

type UpdateQuestion struct {
	Text       *string `json:"text" validate:"omitempty,notblank"`
	Type       *string `json:"type" validate:"omitempty,oneof=TEXT SINGLE_CHOICE MULTIPLE_CHOICE"`
	Desc       *string `json:"desc"`
	IsRequired *bool   `json:"is_required"`
	SequenceNo *int    `json:"sequence_no" validate:"omitempty,min=0"`
	Card       *int    `json:"card"`
}

func (uq UpdateQuestion) CheckParent(q Question) error {
	return sameParent("card", "question", uq.Card, q.CardID)
}

func (uq UpdateQuestion) Apply(q Question, now time.Time) Question {
	setString(&q.Text, uq.Text)
	setString(&q.Type, uq.Type)
	setText(&q.Desc, uq.Desc)
	if uq.IsRequired != nil {
		q.IsRequired = *uq.IsRequired
	}
	setInt(&q.SequenceNo, uq.SequenceNo)
	q.UpdatedAt = now
	return q
}

type NewOption struct {
	Value      string `json:"value" validate:"required,notblank,max=255"`
	SequenceNo *int   `json:"sequence_no" validate:"required,min=0"`
	Question   int    `json:"question" validate:"required"`
}

func (no NewOption) New(now time.Time) Option {
	return Option{
		Value:      core.CleanString(no.Value),
		SequenceNo: intValue(no.SequenceNo),
		QuestionID: no.Question,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

type UpdateOption struct {
	Value      *string `json:"value" validate:"omitempty,notblank,max=255"`
	SequenceNo *int    `json:"sequence_no" validate:"omitempty,min=0"`
	Question   *int    `json:"question"`
}

func (uo UpdateOption) CheckParent(o Option) error {
	return sameParent("question", "option", uo.Question, o.QuestionID)
}

func (uo UpdateOption) Apply(o Option, now time.Time) Option {
	setString(&o.Value, uo.Value)
	setInt(&o.SequenceNo, uo.SequenceNo)
	o.UpdatedAt = now
	return o
}

// sameParent rejects a payload whose parent differs from the stored one.
func sameParent(field, resource string, got *int, stored int) error {
	if got != nil && *got != stored {
		return core.NewConflictError(field, fmt.Sprintf("the %s of this %s cannot be changed", field, resource))
	}
	return nil
}

// setString overwrites dst with the cleaned src unless src is absent or blank.
func setString(dst *string, src *string) {
	if src == nil {
		return
	}
	if s := core.CleanString(*src); s != "" {
		*dst = s
	}
}

// setText overwrites dst with the cleaned src, blank included.
func setText(dst *string, src *string) {
	if src != nil {
		*dst = core.CleanString(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setTime(dst *null.Time, src *time.Time) {
	if src != nil {
		*dst = null.TimeFrom(src.UTC())
	}
}

func intValue(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func utc(t null.Time) null.Time {
	if !t.Valid {
		return t
	}
	return null.TimeFrom(t.Time.UTC())
}
