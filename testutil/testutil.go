// Package testutil builds in-memory services and fixtures for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
	inmemdb "github.com/proleap/backend/storage/database/inmem"
)

const Password = "c0rrect-h0rse"

// Services is the whole service layer over a fresh in-memory database.
type Services struct {
	DB       *inmemdb.DB
	UserRepo user.Repository
	Users    *user.Service
	Content  *course.Service
	Answers  *answer.Service
	Progress *progress.Service
}

func NewServices() *Services {
	db := inmemdb.Open()
	repos := inmemdb.NewContentRepositories(db)

	s := &Services{DB: db, UserRepo: inmemdb.NewUserRepository(db)}
	s.Users = user.NewService(s.UserRepo)
	s.Content = course.NewService(repos)
	s.Answers = answer.NewService(inmemdb.NewAnswerRepository(db), repos.Questions, repos.Options, s.Users, db)
	s.Progress = progress.NewService(inmemdb.NewProgressRepository(db), s.Users, s.Content, s.Answers)
	return s
}

func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func Config() *core.Config {
	return &core.Config{
		AppName:   "ProLeap",
		Env:       "TEST",
		TestMode:  true,
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			DisableReqLogs:            true,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Database: core.DatabaseConfig{Engine: core.EngineMemory},
	}
}

// UserOption tweaks a fixture user before it is stored.
type UserOption func(*user.User)

func Inactive(u *user.User)   { u.IsActive = false }
func Unverified(u *user.User) { u.IsVerified = false }

func WithName(name string) UserOption {
	return func(u *user.User) { u.Name = name }
}

// CreateUser stores an active, verified user whose password is Password.
func CreateUser(t *testing.T, repo user.Repository, uname, role string, opts ...UserOption) user.User {
	t.Helper()
	now := core.NowUTC()
	usr := user.User{
		Email:      uname + "@test.com",
		Username:   uname,
		Name:       uname,
		Role:       role,
		IsActive:   true,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, opt := range opts {
		opt(&usr)
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	usr, err := repo.Create(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func mustCreate[T any](t *testing.T, create func(context.Context, T) (T, error), obj T) T {
	t.Helper()
	obj, err := create(context.Background(), obj)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	return obj
}

func CreateBatch(t *testing.T, s *Services, name string) course.Batch {
	t.Helper()
	return mustCreate(t, s.Content.Batches.Create, course.NewBatch{Name: name}.New(core.NowUTC()))
}

func CreateActivity(t *testing.T, s *Services, batchID, seq int) course.Activity {
	t.Helper()
	return mustCreate(t, s.Content.Activities.Create, course.NewActivity{
		Name: "activity", Batch: batchID, SequenceNo: &seq,
	}.New(core.NowUTC()))
}

func CreateCard(t *testing.T, s *Services, activityID, seq int) course.Card {
	t.Helper()
	return mustCreate(t, s.Content.Cards.Create, course.NewCard{
		Name: "card", Type: course.CardQuestion, Activity: activityID, SequenceNo: &seq,
	}.New(core.NowUTC()))
}

func CreateQuestion(t *testing.T, s *Services, cardID, seq int) course.Question {
	t.Helper()
	return mustCreate(t, s.Content.Questions.Create, course.NewQuestion{
		Text: "question", Type: course.QuestionMultipleChoice, Card: cardID, SequenceNo: &seq,
	}.New(core.NowUTC()))
}

func CreateOption(t *testing.T, s *Services, questionID, seq int) course.Option {
	t.Helper()
	return mustCreate(t, s.Content.Options.Create, course.NewOption{
		Value: "option", Question: questionID, SequenceNo: &seq,
	}.New(core.NowUTC()))
}

// Clock pins core.NowUTC to a manually advanced time for the duration of the test.
type Clock struct {
	now time.Time
}

func NewClock(t *testing.T, start time.Time) *Clock {
	c := &Clock{now: start.UTC()}
	orig := core.NowUTC
	core.NowUTC = func() time.Time { return c.now }
	t.Cleanup(func() { core.NowUTC = orig })
	return c
}

func (c *Clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
