package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/user"
)

var (
	contentOrderings = []string{"id", "name", "sequence_no", "created_at", "updated_at"}
	childOrderings   = []string{"id", "sequence_no", "created_at", "updated_at"}
)

func registerContentAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *course.Service, validate *validator.Validate) {
	cg := g.Group("", append(authed, policyMiddleware(user.AdminOrOrganizer, nil))...)

	(&crudResource[course.Batch, course.NewBatch, course.UpdateBatch]{
		name:      "batch",
		svc:       svc.Batches,
		build:     course.NewBatch.New,
		apply:     course.UpdateBatch.Apply,
		validate:  validate,
		orderings: []string{"id", "name", "created_at", "updated_at"},
	}).register(cg, "/batches")

	(&crudResource[course.Activity, course.NewActivity, course.UpdateActivity]{
		name:            "activity",
		svc:             svc.Activities,
		build:           course.NewActivity.New,
		apply:           course.UpdateActivity.Apply,
		validate:        validate,
		filters:         map[string]string{"batch": "batch_id"},
		orderings:       append(contentOrderings, "start_time", "end_time"),
		defaultOrdering: course.BySequence,
	}).register(cg, "/activities")

	(&crudResource[course.Card, course.NewCard, course.UpdateCard]{
		name:            "card",
		svc:             svc.Cards,
		build:           course.NewCard.New,
		apply:           course.UpdateCard.Apply,
		validate:        validate,
		filters:         map[string]string{"activity": "activity_id"},
		orderings:       append(contentOrderings, "start_time", "end_time"),
		defaultOrdering: course.BySequence,
	}).register(cg, "/cards")

	(&crudResource[course.Question, course.NewQuestion, course.UpdateQuestion]{
		name:            "question",
		svc:             svc.Questions,
		build:           course.NewQuestion.New,
		apply:           course.UpdateQuestion.Apply,
		validate:        validate,
		filters:         map[string]string{"card": "card_id"},
		orderings:       childOrderings,
		defaultOrdering: course.BySequence,
	}).register(cg, "/questions")

	(&crudResource[course.Option, course.NewOption, course.UpdateOption]{
		name:            "option",
		svc:             svc.Options,
		build:           course.NewOption.New,
		apply:           course.UpdateOption.Apply,
		validate:        validate,
		filters:         map[string]string{"question": "question_id"},
		orderings:       childOrderings,
		defaultOrdering: course.BySequence,
	}).register(cg, "/options")
}
