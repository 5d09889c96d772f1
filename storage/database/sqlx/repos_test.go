package sqlxrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
	"github.com/proleap/backend/storage/database"
)

// testDB connects to TEST_DATABASE_URL, migrates it and empties every table.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.OpenURL(dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	_, err = db.Exec(`TRUNCATE users, batches, activities, cards, questions, options, answers,
		user_batches, user_activities, user_cards RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createUser(t *testing.T, db core.DB, uname string) user.User {
	t.Helper()
	now := core.NowUTC()
	usr := user.User{
		Email:      uname + "@test.com",
		Username:   uname,
		Role:       user.RoleUser,
		IsActive:   true,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, usr.SetPassword("s3cr3t-pwd"))
	usr, err := NewUserRepository(db).Create(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func TestTable_CRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repos := NewContentRepositories(db)
	now := core.NowUTC()

	b, err := repos.Batches.Create(ctx, course.Batch{Name: "B1", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.NotZero(t, b.ID)

	acts, err := repos.Activities.CreateMany(ctx, []course.Activity{
		{Name: "A2", BatchID: b.ID, SequenceNo: 2, CreatedAt: now, UpdatedAt: now},
		{Name: "A1", BatchID: b.ID, SequenceNo: 1, CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	require.Len(t, acts, 2)

	got, err := repos.Activities.Query(ctx, core.Where{"batch_id": b.ID}, course.BySequence)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A1", got[0].Name)

	none, err := repos.Activities.Query(ctx, core.Where{"id": []int{}}, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	got[0].Name = "A1 renamed"
	upd, err := repos.Activities.Update(ctx, got[0])
	require.NoError(t, err)
	assert.Equal(t, "A1 renamed", upd.Name)

	_, err = repos.Activities.Create(ctx, course.Activity{Name: "dup", BatchID: b.ID, SequenceNo: 2, CreatedAt: now, UpdatedAt: now})
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	require.NoError(t, repos.Activities.Delete(ctx, upd.ID))
	_, err = repos.Activities.Get(ctx, upd.ID)
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(repos.Activities.Delete(ctx, upd.ID)))
}

func TestUserRepository(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	john := createUser(t, db, "john")
	createUser(t, db, "jane")

	assert.Equal(t, user.ErrUsernameExists, repo.CheckUniqueness(ctx, "john", "other@test.com", 0))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "other", "jane@test.com", 0))
	assert.NoError(t, repo.CheckUniqueness(ctx, "john", "john@test.com", john.ID))

	usr, err := repo.GetByEmail(ctx, "john@test.com")
	require.NoError(t, err)
	assert.Equal(t, john.ID, usr.ID)

	_, err = repo.GetByEmail(ctx, "nobody@test.com")
	assert.True(t, core.IsNotFound(err))

	users, err := repo.Filter(ctx, user.QueryFilter{Search: "JAN"}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "jane", users[0].Username)
}

func TestProgressRepository(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(db)
	usr := createUser(t, db, "john")
	now := core.NowUTC()

	b, err := NewBatchRepository(db).Create(ctx, course.Batch{Name: "B1", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	key := progress.Key{UserID: usr.ID, ContainerID: b.ID}

	rec, err := repo.Upsert(ctx, progress.LevelBatch, key, progress.Patch{}, now)
	require.NoError(t, err)
	assert.Equal(t, progress.LevelBatch, rec.Level)
	assert.Equal(t, progress.NotAttempted, rec.Status)
	assert.Equal(t, b.ID, rec.ContainerID)

	two, status := 2, progress.InProgress
	later := now.Add(time.Minute)
	rec2, err := repo.Upsert(ctx, progress.LevelBatch, key, progress.Patch{Completed: &two, Status: &status}, later)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, rec2.ID)
	assert.Equal(t, 2, rec2.Completed)
	assert.Equal(t, progress.InProgress, rec2.Status)
	assert.True(t, later.Equal(rec2.UpdatedAt))

	// fields left out of the patch are kept
	rec3, err := repo.Upsert(ctx, progress.LevelBatch, key, progress.Patch{}, later)
	require.NoError(t, err)
	assert.Equal(t, 2, rec3.Completed)

	recs, err := repo.Query(ctx, progress.LevelBatch, progress.Filter{UserID: usr.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	latest, ok, err := repo.LatestTouched(ctx, progress.LevelBatch, usr.ID, []int{b.ID})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec.ID, latest.ID)

	require.NoError(t, repo.Delete(ctx, progress.LevelBatch, rec.ID))
	_, err = repo.Get(ctx, progress.LevelBatch, rec.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestAnswerRepository_CreateMany(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repos := NewContentRepositories(db)
	usr := createUser(t, db, "john")
	now := core.NowUTC()

	b, err := repos.Batches.Create(ctx, course.Batch{Name: "B", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	a, err := repos.Activities.Create(ctx, course.Activity{Name: "A", BatchID: b.ID, SequenceNo: 1, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	c, err := repos.Cards.Create(ctx, course.Card{
		Name: "C", Type: course.CardQuestion, ActivityID: a.ID, SequenceNo: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	q, err := repos.Questions.Create(ctx, course.Question{
		Text: "Q", Type: course.QuestionMultipleChoice, CardID: c.ID, SequenceNo: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	opts, err := repos.Options.CreateMany(ctx, []course.Option{
		{Value: "x", SequenceNo: 1, QuestionID: q.ID, CreatedAt: now, UpdatedAt: now},
		{Value: "y", SequenceNo: 2, QuestionID: q.ID, CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)

	answers, err := NewAnswerRepository(db).CreateMany(ctx, []answer.Answer{
		{UserID: usr.ID, QuestionID: q.ID, OptionID: null.IntFrom(opts[0].ID), CreatedAt: now, UpdatedAt: now},
		{UserID: usr.ID, QuestionID: q.ID, OptionID: null.IntFrom(opts[1].ID), CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	assert.Len(t, answers, 2)
	assert.False(t, answers[0].Answer.Valid)
}
