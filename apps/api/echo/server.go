package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
)

type ServerDeps struct {
	Conf        *core.Config
	Logger      core.Logger
	UserSvc     *user.Service
	ContentSvc  *course.Service
	AnswerSvc   *answer.Service
	ProgressSvc *progress.Service
	Validate    *validator.Validate
	Translator  ut.Translator
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	tokens   *TokenIssuer
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		tokens:   NewTokenIssuer(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.Server.RequestTimeout > 0 {
		s.app.Use(requestTimeoutMiddleware(conf.Server.RequestTimeout))
	}

	s.app.GET("/", home)

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(s.tokens.middlewareConfig())
	authed := []echo.MiddlewareFunc{jwt, authUserMiddleware(s.deps.UserSvc)}

	registerAuthAPI(g, s.tokens, s.deps.UserSvc, s.deps.ProgressSvc, s.deps.ContentSvc, s.deps.Validate)
	registerUserAPI(g, authed, s.deps.UserSvc, s.deps.Validate)
	registerContentAPI(g, authed, s.deps.ContentSvc, s.deps.Validate)
	registerAnswerAPI(g, authed, s.deps.AnswerSvc, s.deps.Validate)
	registerProgressAPI(g, authed, s.deps.ProgressSvc, s.deps.Validate)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors receives the error that stopped the server.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives OS interrupts and internal shutdown requests.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

// Tokens issues the JWTs the server accepts.
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to ProLeap API!")
}
