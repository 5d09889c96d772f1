package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
)

type crudService[T any] interface {
	Create(ctx context.Context, obj T) (T, error)
	Get(ctx context.Context, id int) (T, error)
	Query(ctx context.Context, where core.Where, ordering []core.DBOrdering) ([]T, error)
	Update(ctx context.Context, obj T) (T, error)
	Delete(ctx context.Context, id int) error
}

// parentChecker is implemented by update payloads that may carry the parent key of T.
type parentChecker[T any] interface {
	CheckParent(obj T) error
}

// crudResource serves list/create/retrieve/update/destroy for an entity T
// created from an N payload and changed with a U payload.
type crudResource[T core.Model[T], N any, U any] struct {
	name     string
	svc      crudService[T]
	build    func(N, time.Time) T
	apply    func(U, T, time.Time) T
	validate *validator.Validate

	// filters maps list query params to columns
	filters         map[string]string
	orderings       []string
	defaultOrdering []core.DBOrdering

	// policies; nil means any authenticated user
	listPolicy, createPolicy, detailPolicy echo.MiddlewareFunc

	// create replaces the default create handler
	create echo.HandlerFunc
}

func withPolicy(mw echo.MiddlewareFunc, more ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return more
	}
	return append(more, mw)
}

func (r *crudResource[T, N, U]) register(g *echo.Group, path string) {
	create := r.create
	if create == nil {
		create = r.createHandler
	}

	rg := g.Group(path)
	rg.GET("", r.list, withPolicy(r.listPolicy)...)
	rg.POST("", create, withPolicy(r.createPolicy)...)

	// detail endpoints
	dg := rg.Group("/:id", withPolicy(r.detailPolicy, objectMiddleware(r.svc.Get))...)
	dg.GET("", r.retrieve)
	dg.PUT("", r.update)
	dg.DELETE("", r.destroy)
}

func (r *crudResource[T, N, U]) list(ctx echo.Context) error {
	where := make(core.Where)
	for param, col := range r.filters {
		id, ok, err := intParam(ctx, param)
		if err != nil {
			return err
		}
		if ok {
			where[col] = id
		}
	}

	ordering := new(Ordering)
	if err := ordering.Bind(ctx, r.orderings...); err != nil {
		return err
	}
	if ordering.Orderings == nil {
		ordering.Orderings = r.defaultOrdering
	}

	objs, err := r.svc.Query(ctx.Request().Context(), where, ordering.Orderings)
	if err != nil {
		return errors.Wrapf(err, "querying %s", r.name)
	}
	return ctx.JSON(http.StatusOK, objs)
}

func (r *crudResource[T, N, U]) createHandler(ctx echo.Context) error {
	var data N
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrapf(err, "binding %s payload", r.name)
	}
	if err := r.validate.Struct(data); err != nil {
		return err
	}

	obj, err := r.svc.Create(ctx.Request().Context(), r.build(data, core.NowUTC()))
	if err != nil {
		return errors.Wrapf(err, "creating %s", r.name)
	}
	return ctx.JSON(http.StatusCreated, obj)
}

func (r *crudResource[T, N, U]) retrieve(ctx echo.Context) error {
	obj, err := contextObject[T](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, obj)
}

func (r *crudResource[T, N, U]) update(ctx echo.Context) error {
	obj, err := contextObject[T](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	var data U
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrapf(err, "binding %s payload", r.name)
	}
	if err = r.validate.Struct(data); err != nil {
		return err
	}
	if pc, ok := any(data).(parentChecker[T]); ok {
		if err = pc.CheckParent(obj); err != nil {
			return err
		}
	}

	obj, err = r.svc.Update(ctx.Request().Context(), r.apply(data, obj, core.NowUTC()))
	if err != nil {
		return errors.Wrapf(err, "updating %s", r.name)
	}
	return ctx.JSON(http.StatusOK, obj)
}

func (r *crudResource[T, N, U]) destroy(ctx echo.Context) error {
	obj, err := contextObject[T](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	if err = r.svc.Delete(ctx.Request().Context(), obj.PK()); err != nil {
		return errors.Wrapf(err, "deleting %s", r.name)
	}
	return ctx.NoContent(http.StatusNoContent)
}
