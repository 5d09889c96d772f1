package logsvc

import (
	"context"
	"log"
	"strconv"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/user"
)

// RollbarLogger prints to std and reports to Rollbar when a token is configured.
// Debug entries are dropped unless the app runs in debug mode.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// report splits args into what Rollbar takes (msg, error, map[string]interface{}, context.Context).
// The acting user.User becomes the Rollbar person of this item only, carried by its context.
func (l RollbarLogger) report(msg string, args []interface{}) []interface{} {
	var (
		ctx    context.Context
		person *rollbar.Person
	)
	out := make([]interface{}, 0, len(args)+2)
	out = append(out, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if person == nil {
				person = personOf(a)
			}
		case *user.User:
			if person == nil && a != nil {
				person = personOf(*a)
			}
		case context.Context:
			ctx = a
		default:
			out = append(out, arg)
		}
	}
	if person != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = rollbar.NewPersonContext(ctx, person)
	}
	if ctx != nil {
		out = append(out, ctx)
	}
	return out
}

func personOf(usr user.User) *rollbar.Person {
	return &rollbar.Person{Id: strconv.Itoa(usr.ID), Username: usr.Username, Email: usr.Email}
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range args {
		switch arg.(type) {
		case user.User, *user.User, context.Context:
			continue
		}
		l.std.Printf("  %+v", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	rollbar.Debug(l.report(msg, args)...)
	l.print("DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.report(msg, args)...)
	l.print("INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.report(msg, args)...)
	l.print("WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.report(msg, args)...)
	l.print("ERROR", msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.report(msg, args)...)
	l.print("FATAL", msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
