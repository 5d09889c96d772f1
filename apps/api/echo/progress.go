package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
)

var progressOrderings = []string{"id", "user_id", "container_id", "completed", "status", "created_at", "updated_at"}

// progressApi serves the UserBatch, UserActivity & UserCard records of one level.
type progressApi struct {
	level    progress.Level
	svc      *progress.Service
	validate *validator.Validate
}

func registerProgressAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *progress.Service, validate *validator.Validate) {
	pg := g.Group("", append(authed, policyMiddleware(user.AdminOrOrganizer, nil))...)
	for path, level := range map[string]progress.Level{
		"/user-batches":    progress.LevelBatch,
		"/user-activities": progress.LevelActivity,
		"/user-cards":      progress.LevelCard,
	} {
		api := progressApi{level: level, svc: svc, validate: validate}

		rg := pg.Group(path)
		rg.GET("", api.query)
		rg.POST("", api.upsert)

		dg := rg.Group("/:id", api.objectMiddleware())
		dg.GET("", api.retrieve)
		dg.PUT("", api.update)
		dg.DELETE("", api.destroy)
	}

	// route-level middleware: a "/users/:id" group would shadow the user detail routes
	rep := reportApi{svc: svc}
	reportMw := append(authed, policyMiddleware(user.AdminOrOrganizerOrSelf, pathOwner("id")))
	g.GET("/users/:id/batches/:batch_id/progress", rep.batch, reportMw...)
	g.GET("/users/:id/activities/:activity_id/progress", rep.activity, reportMw...)
}

func (api *progressApi) objectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			rec, err := api.svc.Get(ctx.Request().Context(), api.level, id)
			if err != nil {
				return errors.Wrapf(err, "getting %s progress", api.level)
			}
			ctx.Set(contextObjectKey, rec)
			return next(ctx)
		}
	}
}

func (api *progressApi) bind(ctx echo.Context) (progress.Input, error) {
	in := progress.NewInput(api.level)
	if err := ctx.Bind(in); err != nil {
		return nil, errors.Wrapf(err, "binding %s progress payload", api.level)
	}
	if err := api.validate.Struct(in); err != nil {
		return nil, err
	}
	return in, nil
}

func (api *progressApi) query(ctx echo.Context) error {
	var filter progress.Filter
	userID, _, err := intParam(ctx, "user_id")
	if err != nil {
		return err
	}
	containerID, _, err := intParam(ctx, string(api.level)+"_id")
	if err != nil {
		return err
	}
	filter.UserID, filter.ContainerID = userID, containerID

	ordering := new(Ordering)
	if err = ordering.Bind(ctx, progressOrderings...); err != nil {
		return err
	}

	recs, err := api.svc.Query(ctx.Request().Context(), api.level, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrapf(err, "querying %s progress", api.level)
	}
	return ctx.JSON(http.StatusOK, recs)
}

// upsert creates the record of (user, container) or updates the existing one.
func (api *progressApi) upsert(ctx echo.Context) error {
	in, err := api.bind(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.UpsertInput(ctx.Request().Context(), api.level, in)
	if err != nil {
		return errors.Wrapf(err, "upserting %s progress", api.level)
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *progressApi) retrieve(ctx echo.Context) error {
	rec, err := contextObject[progress.Record](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *progressApi) update(ctx echo.Context) error {
	rec, err := contextObject[progress.Record](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	in, err := api.bind(ctx)
	if err != nil {
		return err
	}
	rec, err = api.svc.Update(ctx.Request().Context(), api.level, rec.ID, in)
	if err != nil {
		return errors.Wrapf(err, "updating %s progress", api.level)
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *progressApi) destroy(ctx echo.Context) error {
	rec, err := contextObject[progress.Record](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	if err = api.svc.Delete(ctx.Request().Context(), api.level, rec.ID); err != nil {
		return errors.Wrapf(err, "deleting %s progress", api.level)
	}
	return ctx.NoContent(http.StatusNoContent)
}

type reportApi struct {
	svc *progress.Service
}

func (api *reportApi) batch(ctx echo.Context) error {
	userID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	batchID, err := pathID(ctx, "batch_id")
	if err != nil {
		return err
	}
	report, err := api.svc.BatchReport(ctx.Request().Context(), userID, batchID)
	if err != nil {
		return errors.Wrap(err, "building batch report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *reportApi) activity(ctx echo.Context) error {
	userID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	activityID, err := pathID(ctx, "activity_id")
	if err != nil {
		return err
	}
	report, err := api.svc.ActivityReport(ctx.Request().Context(), userID, activityID)
	if err != nil {
		return errors.Wrap(err, "building activity report")
	}
	return ctx.JSON(http.StatusOK, report)
}
