package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
)

const (
	accessToken  = "access"
	refreshToken = "refresh"

	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	TokenType string `json:"token_type"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

func (c Claims) UserID() (int, error) {
	return strconv.Atoi(c.Subject)
}

// TokenIssuer signs and parses the access & refresh tokens of users.
type TokenIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenIssuer(conf *core.Config) *TokenIssuer {
	return &TokenIssuer{
		key:        []byte(conf.SecretKey),
		issuer:     conf.AppName,
		accessTTL:  conf.Server.JWTExpirationDelta,
		refreshTTL: conf.Server.JWTRefreshExpirationDelta,
	}
}

func (ti *TokenIssuer) middlewareConfig() middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    ti.key,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func (ti *TokenIssuer) claims(usr user.User, tokenType string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ti.issuer,
			Subject:   strconv.Itoa(usr.ID),
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		TokenType: tokenType,
		Username:  usr.Username,
		Email:     usr.Email,
		Role:      usr.Role,
	}
}

func (ti *TokenIssuer) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Access returns a signed access token for usr.
func (ti *TokenIssuer) Access(usr user.User) (string, error) {
	return ti.sign(ti.claims(usr, accessToken, ti.accessTTL))
}

// Refresh returns a signed refresh token for usr.
func (ti *TokenIssuer) Refresh(usr user.User) (string, error) {
	return ti.sign(ti.claims(usr, refreshToken, ti.refreshTTL))
}

// Parse verifies a token string and returns its claims.
func (ti *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, errors.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return ti.key, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return claims, nil
		}
	}
	return nil, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// checkAccount rejects users who may not use the API.
func checkAccount(usr user.User) error {
	if !usr.IsActive {
		return errAccountDeactivated
	}
	if !usr.IsVerified {
		return errAccountUnverified
	}
	return nil
}

// authUserMiddleware loads the user of an access token into the context.
func authUserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.TokenType != accessToken {
				return errInvalidToken
			}
			id, err := claims.UserID()
			if err != nil {
				return errInvalidToken
			}

			usr, err := svc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				if core.IsNotFound(err) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if err = checkAccount(usr); err != nil {
				return err
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

type authApi struct {
	tokens   *TokenIssuer
	users    *user.Service
	progress *progress.Service
	content  *course.Service
	validate *validator.Validate
}

func registerAuthAPI(
	g *echo.Group,
	tokens *TokenIssuer,
	users *user.Service,
	progressSvc *progress.Service,
	content *course.Service,
	validate *validator.Validate,
) {
	api := authApi{tokens: tokens, users: users, progress: progressSvc, content: content, validate: validate}

	// TODO: rate limit `/sign-in`
	g.POST("/sign-in", api.signIn)
	g.POST("/token-refresh", api.refresh)
}

type (
	SignInRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	SignInResponse struct {
		AccessToken  string  `json:"access_token"`
		RefreshToken string  `json:"refresh_token"`
		UserID       int     `json:"user_id"`
		Username     string  `json:"username"`
		BatchID      *int    `json:"batch_id"`
		BatchName    *string `json:"batch_name"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	RefreshResponse struct {
		AccessToken string `json:"access_token"`
	}
)

func (api *authApi) signIn(ctx echo.Context) error {
	var data SignInRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignInRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	usr, err := api.users.Authenticate(rctx, data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}

	resp := SignInResponse{UserID: usr.ID, Username: usr.Username}
	if resp.AccessToken, err = api.tokens.Access(usr); err != nil {
		return errors.Wrap(err, "generating access token")
	}
	if resp.RefreshToken, err = api.tokens.Refresh(usr); err != nil {
		return errors.Wrap(err, "generating refresh token")
	}

	membership, found, err := api.progress.LatestBatch(rctx, usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting latest batch")
	}
	if found {
		batch, err := api.content.Batches.Get(rctx, membership.ContainerID)
		switch {
		case err == nil:
			resp.BatchID, resp.BatchName = &batch.ID, &batch.Name
		case !core.IsNotFound(err): // a batch deleted meanwhile counts as no batch
			return errors.Wrap(err, "getting batch")
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *authApi) refresh(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	claims, err := api.tokens.Parse(data.RefreshToken)
	if err != nil {
		return err
	}
	if claims.TokenType != refreshToken {
		return errInvalidToken
	}
	id, err := claims.UserID()
	if err != nil {
		return errInvalidToken
	}

	usr, err := api.users.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			return errInvalidToken
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = checkAccount(usr); err != nil {
		return err
	}

	token, err := api.tokens.Access(usr)
	if err != nil {
		return errors.Wrap(err, "generating access token")
	}
	return ctx.JSON(http.StatusOK, RefreshResponse{AccessToken: token})
}
