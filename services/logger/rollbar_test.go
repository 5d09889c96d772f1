package logsvc

import (
	"bytes"
	"context"
	"log"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/user"
)

func newTestLogger(debug bool) (*RollbarLogger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	conf := &core.Config{Env: "test", TestMode: true, Debug: debug}
	return NewRollbarLogger(log.New(buf, "", 0), conf), buf
}

func TestRollbarLogger_report(t *testing.T) {
	l, _ := newTestLogger(false)
	err := errors.New("boom")
	extras := map[string]interface{}{"path": "/api/users"}

	t.Run("person travels with the item", func(t *testing.T) {
		got := l.report("failed", []interface{}{err, user.User{ID: 1, Username: "john", Email: "john@test.com"}, extras})
		require.Len(t, got, 4)
		assert.Equal(t, []interface{}{"failed", err, extras}, got[:3])

		ctx, ok := got[3].(context.Context)
		require.True(t, ok)
		person, ok := rollbar.PersonFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, rollbar.Person{Id: "1", Username: "john", Email: "john@test.com"}, *person)
	})

	t.Run("concurrent items keep their own person", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				got := l.report("failed", []interface{}{&user.User{ID: id}})
				person, ok := rollbar.PersonFromContext(got[len(got)-1].(context.Context))
				if assert.True(t, ok) {
					assert.Equal(t, strconv.Itoa(id), person.Id)
				}
			}(i)
		}
		wg.Wait()
	})

	t.Run("no user", func(t *testing.T) {
		got := l.report("failed", []interface{}{err})
		assert.Equal(t, []interface{}{"failed", err}, got)
	})

	t.Run("request context is kept", func(t *testing.T) {
		type key struct{}
		reqCtx := context.WithValue(context.Background(), key{}, "req-1")
		got := l.report("failed", []interface{}{reqCtx, user.User{ID: 2}})
		require.Len(t, got, 2)
		ctx := got[1].(context.Context)
		assert.Equal(t, "req-1", ctx.Value(key{}))
		_, ok := rollbar.PersonFromContext(ctx)
		assert.True(t, ok)
	})
}

func TestRollbarLogger_print(t *testing.T) {
	l, buf := newTestLogger(false)
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Info("hello", user.User{ID: 1}, "extra")
	assert.Equal(t, "[INFO] hello\n  extra\n", buf.String())

	l, buf = newTestLogger(true)
	l.Debug("shown")
	assert.Equal(t, "[DEBUG] shown\n", buf.String())
}
