package echoapi

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/user"
)

const contextObjectKey = "object"

// ownerFunc returns the id of the user owning the resource of a request, 0 when there is none.
type ownerFunc func(ctx echo.Context) int

func noOwner(echo.Context) int { return 0 }

// pathOwner reads the owner from a path param.
func pathOwner(param string) ownerFunc {
	return func(ctx echo.Context) int {
		id, _ := strconv.Atoi(ctx.Param(param))
		return id
	}
}

// policyMiddleware lets the request through when the context user satisfies policy.
func policyMiddleware(policy user.Policy, owner ownerFunc) echo.MiddlewareFunc {
	if owner == nil {
		owner = noOwner
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !policy(actor, owner(ctx)) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

func pathID(ctx echo.Context, param string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(param))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// objectMiddleware loads the object of the `:id` path param into the context.
func objectMiddleware[T any](get func(ctx context.Context, id int) (T, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			obj, err := get(ctx.Request().Context(), id)
			if err != nil {
				if core.IsNotFound(err) {
					return err
				}
				return errors.Wrap(err, "getting object")
			}
			ctx.Set(contextObjectKey, obj)
			return next(ctx)
		}
	}
}

func contextObject[T any](ctx echo.Context) (T, error) {
	obj, ok := ctx.Get(contextObjectKey).(T)
	if !ok {
		return obj, errors.New("object not found in echo.Context")
	}
	return obj, nil
}

// requestTimeoutMiddleware bounds the context handed to the handlers.
func requestTimeoutMiddleware(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			rctx, cancel := context.WithTimeout(ctx.Request().Context(), timeout)
			defer cancel()
			ctx.SetRequest(ctx.Request().WithContext(rctx))
			return next(ctx)
		}
	}
}
