package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/testutil"
)

func Test_answerApi_submit(t *testing.T) {
	app := newTestApp(t)
	b := testutil.CreateBatch(t, app.Services, "Spring")
	a := testutil.CreateActivity(t, app.Services, b.ID, 1)
	c := testutil.CreateCard(t, app.Services, a.ID, 1)
	q1 := testutil.CreateQuestion(t, app.Services, c.ID, 1)
	q2 := testutil.CreateQuestion(t, app.Services, c.ID, 2)
	o1 := testutil.CreateOption(t, app.Services, q1.ID, 1)
	o2 := testutil.CreateOption(t, app.Services, q1.ID, 2)
	o3 := testutil.CreateOption(t, app.Services, q2.ID, 1)
	token := app.token(t, app.usr)

	sub := func(fields map[string]interface{}) []byte {
		body := map[string]interface{}{"user": app.usr.ID, "question": q1.ID}
		for k, v := range fields {
			body[k] = v
		}
		return marchallObj(t, body)
	}

	app.run(t, []httpTest{
		{
			name:     "nothing to answer",
			method:   http.MethodPost,
			path:     "/api/answers",
			body:     sub(nil),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{
				"error": "answer: one of answer, option or options is required",
				"fields": {"answer": "one of answer, option or options is required"}
			}`),
		},
		{
			name:     "for someone else",
			method:   http.MethodPost,
			path:     "/api/answers",
			body:     marchallObj(t, map[string]interface{}{"user": app.admin.ID, "question": q1.ID, "answer": "hi"}),
			token:    token,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "missing question",
			method:   http.MethodPost,
			path:     "/api/answers",
			body:     marchallObj(t, map[string]interface{}{"user": app.usr.ID, "question": 999, "answer": "hi"}),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "question not found"}),
		},
		{
			name:     "option of another question",
			method:   http.MethodPost,
			path:     "/api/answers",
			body:     sub(map[string]interface{}{"options": []int{o1.ID, o3.ID}}),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing option",
			method:   http.MethodPost,
			path:     "/api/answers",
			body:     sub(map[string]interface{}{"options": []int{o1.ID, 999}}),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "option 999 not found"}),
		},
		{
			name:     "duplicate options",
			method:   http.MethodPost,
			path:     "/api/answers",
			body:     sub(map[string]interface{}{"options": []int{o1.ID, o1.ID}}),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
	})

	ctx := context.Background()
	stored, err := app.Answers.AnswersOf(ctx, app.usr.ID, []int{q1.ID, q2.ID})
	require.NoError(t, err)
	assert.Empty(t, stored, "rejected submissions store nothing")

	t.Run("fan out", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/answers", token, sub(map[string]interface{}{
			"answer": " because ", "options": []int{o2.ID, o1.ID},
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		got := unmarshal[[]answer.Answer](t, rec)
		require.Len(t, got, 2)
		assert.Equal(t, null.IntFrom(o2.ID), got[0].OptionID)
		assert.Equal(t, null.IntFrom(o1.ID), got[1].OptionID)
		for _, a := range got {
			assert.Equal(t, app.usr.ID, a.UserID)
			assert.Equal(t, q1.ID, a.QuestionID)
			assert.Equal(t, null.StringFrom("because"), a.Answer)
		}
	})

	t.Run("single", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/answers", token, marchallObj(t, map[string]interface{}{
			"user": app.usr.ID, "question": q2.ID, "option": o3.ID,
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		got := unmarshal[[]answer.Answer](t, rec)
		require.Len(t, got, 1)
		assert.Equal(t, null.IntFrom(o3.ID), got[0].OptionID)
		assert.False(t, got[0].Answer.Valid)
	})

	t.Run("organizer answers for a user", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/answers", app.token(t, app.organizer), sub(map[string]interface{}{
			"answer": "typed in",
		}))
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	stored, err = app.Answers.AnswersOf(ctx, app.usr.ID, []int{q1.ID, q2.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func Test_answerApi_detail(t *testing.T) {
	app := newTestApp(t)
	b := testutil.CreateBatch(t, app.Services, "Spring")
	a := testutil.CreateActivity(t, app.Services, b.ID, 1)
	c := testutil.CreateCard(t, app.Services, a.ID, 1)
	q := testutil.CreateQuestion(t, app.Services, c.ID, 1)
	o1 := testutil.CreateOption(t, app.Services, q.ID, 1)
	o2 := testutil.CreateOption(t, app.Services, q.ID, 2)

	ctx := context.Background()
	text := "mine"
	res, err := app.Answers.Submit(ctx, answer.Submission{User: app.usr.ID, Question: q.ID, Answer: &text, Option: &o1.ID})
	require.NoError(t, err)
	mine := res.Answers()[0]
	res, err = app.Answers.Submit(ctx, answer.Submission{User: app.admin.ID, Question: q.ID, Answer: &text})
	require.NoError(t, err)
	theirs := res.Answers()[0]

	token := app.token(t, app.usr)
	app.run(t, []httpTest{
		{
			name:     "user lists",
			method:   http.MethodGet,
			path:     "/api/answers",
			token:    token,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "organizer lists by user",
			method:   http.MethodGet,
			path:     "/api/answers?user=" + itoa(app.usr.ID),
			token:    app.token(t, app.organizer),
			wantCode: http.StatusOK,
			wantData: marchallList(t, mine),
		},
		{
			name:     "own answer",
			method:   http.MethodGet,
			path:     "/api/answers/" + itoa(mine.ID),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, mine),
		},
		{
			name:     "someone else's answer",
			method:   http.MethodGet,
			path:     "/api/answers/" + itoa(theirs.ID),
			token:    token,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "missing answer",
			method:   http.MethodGet,
			path:     "/api/answers/999",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "answer not found"}),
		},
		{
			name:     "change to a missing option",
			method:   http.MethodPut,
			path:     "/api/answers/" + itoa(mine.ID),
			body:     []byte(`{"option": 999}`),
			token:    token,
			wantCode: http.StatusNotFound,
		},
	})

	t.Run("change option", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/answers/"+itoa(mine.ID), token, marchallObj(t, map[string]int{"option": o2.ID}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := unmarshal[answer.Answer](t, rec)
		assert.Equal(t, null.IntFrom(o2.ID), got.OptionID)
		assert.Equal(t, null.StringFrom("mine"), got.Answer)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/answers/"+itoa(mine.ID), token)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		_, err := app.Answers.Get(ctx, mine.ID)
		assert.Error(t, err)
	})
}
