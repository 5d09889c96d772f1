package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/user"
)

type answerApi struct {
	svc      *answer.Service
	validate *validator.Validate
}

// answerOwner is the user of the answer loaded by objectMiddleware.
func answerOwner(ctx echo.Context) int {
	a, err := contextObject[answer.Answer](ctx)
	if err != nil {
		return 0
	}
	return a.UserID
}

func registerAnswerAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *answer.Service, validate *validator.Validate) {
	api := answerApi{svc: svc, validate: validate}

	(&crudResource[answer.Answer, answer.Submission, answer.UpdateAnswer]{
		name:     "answer",
		svc:      svc,
		apply:    answer.UpdateAnswer.Apply,
		validate: validate,
		filters: map[string]string{
			"user":     "user_id",
			"question": "question_id",
			"option":   "option_id",
		},
		orderings:    []string{"id", "user_id", "question_id", "option_id", "created_at", "updated_at"},
		listPolicy:   policyMiddleware(user.AdminOrOrganizer, nil),
		detailPolicy: policyMiddleware(user.AdminOrOrganizerOrSelf, answerOwner),
		create:       api.submit,
	}).register(g.Group("", authed...), "/answers")
}

// submit stores a submission; a list of options fans out to one answer per option.
func (api *answerApi) submit(ctx echo.Context) error {
	var data answer.Submission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	actor, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !user.AdminOrOrganizerOrSelf(actor, data.User) {
		return errHttpForbidden
	}

	res, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting answer")
	}
	return ctx.JSON(http.StatusCreated, res)
}
