package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/user"
)

var (
	errNoPermsToSetRole = core.NewValidationError(nil, core.FieldError{
		Field: "role", Error: "not enough rights to set this role",
	})
	userOrderings = []string{"id", "email", "username", "name", "role", "last_login", "created_at", "updated_at"}
)

type userApi struct {
	svc      *user.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *user.Service, validate *validator.Validate) {
	api := userApi{svc: svc, validate: validate}

	ug := g.Group("/users", authed...)
	ug.GET("", api.query, policyMiddleware(user.AdminOrOrganizer, nil))
	ug.POST("", api.create, policyMiddleware(user.AdminOrOrganizer, nil))
	ug.GET("/roles", api.queryRoles)

	// detail endpoints
	dg := ug.Group("/:id", policyMiddleware(user.AdminOrOrganizerOrSelf, pathOwner("id")), objectMiddleware(svc.GetByID))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, policyMiddleware(user.Admin, nil))
}

// canManage reports whether actor may edit or delete target: nobody touches an account ranked above their own.
func canManage(actor, target user.User) bool {
	return user.AllOf(user.AdminOrOrganizerOrSelf, user.NotAbove(target))(actor, target.ID)
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !user.CanGrantRole(ctxUsr, data.Role) {
		return errNoPermsToSetRole
	}

	usr, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := user.QueryFilter{Search: ctx.QueryParam("search")}
	if roles := ctx.QueryParams()["role"]; len(roles) > 0 {
		filter.Roles = roles
	}
	isActive, err := boolParam(ctx, "is_active")
	if err != nil {
		return err
	}
	filter.IsActive = isActive
	filter.Clean()

	ordering := new(Ordering)
	if err = ordering.Bind(ctx, userOrderings...); err != nil {
		return err
	}

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := contextObject[user.User](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, err := contextObject[user.User](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !canManage(ctxUsr, usr) {
		return errHttpForbidden
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	// `Role`, `IsActive` and `IsVerified` can only be changed by admins & organizers
	if data.Privileged() && !user.AdminOrOrganizer(ctxUsr, 0) {
		return errHttpForbidden
	}

	rctx := ctx.Request().Context()
	if err = data.Validate(rctx, usr, api.validate, api.svc); err != nil {
		return err
	}
	if data.Role != nil && !user.CanGrantRole(ctxUsr, *data.Role) {
		return errNoPermsToSetRole
	}

	usr, err = api.svc.Update(rctx, usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, err := contextObject[user.User](ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID || !canManage(ctxUsr, usr) {
		return errHttpForbidden
	}

	if err = api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.AllRoles)
}
