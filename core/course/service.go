package course

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/proleap/backend/core"
)

var errEndBeforeStart = core.FieldError{Field: "end_time", Error: "end time must not be before start time"}

type Repositories struct {
	Batches    core.Repository[Batch]
	Activities core.Repository[Activity]
	Cards      core.Repository[Card]
	Questions  core.Repository[Question]
	Options    core.Repository[Option]
}

// Service gathers the content services, each one checking its parent exists and its sequence number is free.
type Service struct {
	Batches    *core.CRUDService[Batch]
	Activities *core.CRUDService[Activity]
	Cards      *core.CRUDService[Card]
	Questions  *core.CRUDService[Question]
	Options    *core.CRUDService[Option]
}

func NewService(repos Repositories) *Service {
	return &Service{
		Batches: core.NewCRUDService[Batch](repos.Batches),
		Activities: core.NewCRUDService[Activity](
			repos.Activities,
			func(ctx context.Context, a Activity) error {
				return core.Exists(ctx, repos.Batches, "batch", a.BatchID)
			},
			func(ctx context.Context, a Activity) error {
				return core.UniqueWithin(ctx, repos.Activities, a, "batch_id", a.BatchID, "sequence_no", "sequence_no", a.SequenceNo)
			},
			func(_ context.Context, a Activity) error {
				return checkWindow(a.StartTime, a.EndTime)
			},
		),
		Cards: core.NewCRUDService[Card](
			repos.Cards,
			func(ctx context.Context, c Card) error {
				return core.Exists(ctx, repos.Activities, "activity", c.ActivityID)
			},
			func(ctx context.Context, c Card) error {
				return core.UniqueWithin(ctx, repos.Cards, c, "activity_id", c.ActivityID, "sequence_no", "sequence_no", c.SequenceNo)
			},
			func(_ context.Context, c Card) error {
				if c.Duration.Valid && c.Duration.Int < 0 {
					return core.NewValidationError(nil, core.FieldError{Field: "duration", Error: "duration cannot be negative"})
				}
				return checkWindow(c.StartTime, c.EndTime)
			},
		),
		Questions: core.NewCRUDService[Question](
			repos.Questions,
			func(ctx context.Context, q Question) error {
				return core.Exists(ctx, repos.Cards, "card", q.CardID)
			},
			func(ctx context.Context, q Question) error {
				return core.UniqueWithin(ctx, repos.Questions, q, "card_id", q.CardID, "sequence_no", "sequence_no", q.SequenceNo)
			},
		),
		Options: core.NewCRUDService[Option](
			repos.Options,
			func(ctx context.Context, o Option) error {
				return core.Exists(ctx, repos.Questions, "question", o.QuestionID)
			},
			func(ctx context.Context, o Option) error {
				return core.UniqueWithin(ctx, repos.Options, o, "question_id", o.QuestionID, "sequence_no", "sequence_no", o.SequenceNo)
			},
		),
	}
}

func checkWindow(start, end null.Time) error {
	if start.Valid && end.Valid && end.Time.Before(start.Time) {
		return core.NewValidationError(nil, errEndBeforeStart)
	}
	return nil
}

// ActivitiesOf returns the activities of a batch in sequence order.
func (svc *Service) ActivitiesOf(ctx context.Context, batchID int) ([]Activity, error) {
	return svc.Activities.Query(ctx, core.Where{"batch_id": batchID}, BySequence)
}

// CardsOf returns the cards of an activity in sequence order.
func (svc *Service) CardsOf(ctx context.Context, activityID int) ([]Card, error) {
	return svc.Cards.Query(ctx, core.Where{"activity_id": activityID}, BySequence)
}

// QuestionsOf returns the questions of the given cards in sequence order.
func (svc *Service) QuestionsOf(ctx context.Context, cardIDs []int) ([]Question, error) {
	return svc.Questions.Query(ctx, core.Where{"card_id": cardIDs}, BySequence)
}

// OptionsOf returns the options of the given questions in sequence order.
func (svc *Service) OptionsOf(ctx context.Context, questionIDs []int) ([]Option, error) {
	return svc.Options.Query(ctx, core.Where{"question_id": questionIDs}, BySequence)
}
