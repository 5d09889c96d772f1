package inmemdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
)

func TestTable_Query(t *testing.T) {
	ctx := context.Background()
	repos := NewContentRepositories(Open())
	now := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repos.Activities.CreateMany(ctx, []course.Activity{
		{Name: "a3", BatchID: 1, SequenceNo: 3, CreatedAt: now},
		{Name: "a1", BatchID: 1, SequenceNo: 1, CreatedAt: now.Add(time.Hour)},
		{Name: "other", BatchID: 2, SequenceNo: 1, CreatedAt: now},
		{Name: "a2", BatchID: 1, SequenceNo: 2, CreatedAt: now, StartTime: null.TimeFrom(now)},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		where    core.Where
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all by id", want: []string{"a3", "a1", "other", "a2"}},
		{name: "eq", where: core.Where{"batch_id": 1}, ordering: course.BySequence, want: []string{"a1", "a2", "a3"}},
		{name: "in", where: core.Where{"id": []int{2, 4}}, want: []string{"a1", "a2"}},
		{name: "empty in", where: core.Where{"id": []int{}}, want: []string{}},
		{name: "created desc", where: core.Where{"batch_id": 1}, ordering: []core.DBOrdering{
			{Field: "created_at"}, {Field: "id", Ascending: true},
		}, want: []string{"a1", "a3", "a2"}},
		{name: "nulls last", where: core.Where{"batch_id": 1}, ordering: []core.DBOrdering{
			{Field: "start_time", Ascending: true}, {Field: "id", Ascending: true},
		}, want: []string{"a2", "a3", "a1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			acts, err := repos.Activities.Query(ctx, tc.where, tc.ordering)
			require.NoError(t, err)
			names := make([]string, 0, len(acts))
			for _, a := range acts {
				names = append(names, a.Name)
			}
			assert.Equal(t, tc.want, names)
		})
	}

	_, err = repos.Activities.Query(ctx, core.Where{"nope": 1}, nil)
	assert.Error(t, err)
	_, err = repos.Activities.Query(ctx, nil, []core.DBOrdering{{Field: "nope"}})
	assert.Error(t, err)
}

func TestTable_Unique(t *testing.T) {
	ctx := context.Background()
	repos := NewContentRepositories(Open())

	a, err := repos.Activities.Create(ctx, course.Activity{Name: "a1", BatchID: 1, SequenceNo: 1})
	require.NoError(t, err)

	_, err = repos.Activities.CreateMany(ctx, []course.Activity{
		{Name: "a2", BatchID: 1, SequenceNo: 2},
		{Name: "dup", BatchID: 1, SequenceNo: 1},
	})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "sequence_no", vErr.Fields[0].Field)

	// nothing of the failed batch was stored
	acts, err := repos.Activities.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, acts, 1)

	a.Name = "renamed"
	_, err = repos.Activities.Update(ctx, a)
	assert.NoError(t, err)

	_, err = repos.Activities.Update(ctx, course.Activity{ID: 42})
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(repos.Activities.Delete(ctx, 42)))
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(Open())
	john, err := repo.Create(ctx, user.User{Email: "john@test.com", Username: "john", Name: "John Doe", Role: user.RoleUser, IsActive: true})
	require.NoError(t, err)
	_, err = repo.Create(ctx, user.User{Email: "jane@test.com", Username: "jane", Name: "Jane", Role: user.RoleAdmin})
	require.NoError(t, err)

	assert.Equal(t, user.ErrUsernameExists, repo.CheckUniqueness(ctx, "JOHN", "x@test.com", 0))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "x", "jane@test.com", 0))
	assert.NoError(t, repo.CheckUniqueness(ctx, "john", "john@test.com", john.ID))

	usr, err := repo.GetByEmail(ctx, "john@test.com")
	require.NoError(t, err)
	assert.Equal(t, john.ID, usr.ID)

	active := true
	users, err := repo.Filter(ctx, user.QueryFilter{Search: "doe", IsActive: &active}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "john", users[0].Username)

	users, err = repo.Filter(ctx, user.QueryFilter{Roles: []string{user.RoleAdmin}}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "jane", users[0].Username)
}

func TestProgressRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository(Open())
	now := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	key := progress.Key{UserID: 1, ContainerID: 7}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Upsert(ctx, progress.LevelCard, key, progress.Patch{}, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	recs, err := repo.Query(ctx, progress.LevelCard, progress.Filter{UserID: 1}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, progress.NotAttempted, recs[0].Status)
	assert.Equal(t, progress.LevelCard, recs[0].Level)

	three, done := 3, progress.Completed
	rec, err := repo.Upsert(ctx, progress.LevelCard, key, progress.Patch{Completed: &three, Status: &done}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, recs[0].ID, rec.ID)
	assert.Equal(t, 3, rec.Completed)
	assert.Equal(t, progress.Completed, rec.Status)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, now.Add(time.Minute), rec.UpdatedAt)
}

func TestProgressRepository_LatestTouched(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository(Open())
	now := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, c := range []int{5, 3, 9} {
		_, err := repo.Upsert(ctx, progress.LevelActivity, progress.Key{UserID: 1, ContainerID: c}, progress.Patch{}, now)
		require.NoError(t, err)
	}
	_, err := repo.Upsert(ctx, progress.LevelActivity, progress.Key{UserID: 2, ContainerID: 1}, progress.Patch{}, now.Add(time.Hour))
	require.NoError(t, err)

	// tie on updated_at: lowest container wins
	rec, ok, err := repo.LatestTouched(ctx, progress.LevelActivity, 1, []int{9, 5, 3})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, rec.ContainerID)

	_, err = repo.Upsert(ctx, progress.LevelActivity, progress.Key{UserID: 1, ContainerID: 9}, progress.Patch{}, now.Add(time.Minute))
	require.NoError(t, err)
	rec, ok, err = repo.LatestTouched(ctx, progress.LevelActivity, 1, []int{9, 5, 3})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9, rec.ContainerID)

	_, ok, err = repo.LatestTouched(ctx, progress.LevelActivity, 1, []int{100})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDB_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repos := NewContentRepositories(db)
	users := NewUserRepository(db)
	answers := NewAnswerRepository(db)
	prog := NewProgressRepository(db)
	now := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	usr, err := users.Create(ctx, user.User{Email: "john@test.com", Username: "john", Role: user.RoleUser})
	require.NoError(t, err)

	type tree struct {
		batch, activity, card, question, option, answer int
	}
	build := func(name string) tree {
		t.Helper()
		b, err := repos.Batches.Create(ctx, course.Batch{Name: name})
		require.NoError(t, err)
		a, err := repos.Activities.Create(ctx, course.Activity{Name: name, BatchID: b.ID, SequenceNo: 1})
		require.NoError(t, err)
		c, err := repos.Cards.Create(ctx, course.Card{Name: name, ActivityID: a.ID, SequenceNo: 1})
		require.NoError(t, err)
		q, err := repos.Questions.Create(ctx, course.Question{Text: name, CardID: c.ID, SequenceNo: 1})
		require.NoError(t, err)
		o, err := repos.Options.Create(ctx, course.Option{Value: name, QuestionID: q.ID, SequenceNo: 1})
		require.NoError(t, err)
		ans, err := answers.Create(ctx, answer.Answer{UserID: usr.ID, QuestionID: q.ID, OptionID: null.IntFrom(o.ID)})
		require.NoError(t, err)
		for level, id := range map[progress.Level]int{
			progress.LevelBatch:    b.ID,
			progress.LevelActivity: a.ID,
			progress.LevelCard:     c.ID,
		} {
			_, err = prog.Upsert(ctx, level, progress.Key{UserID: usr.ID, ContainerID: id}, progress.Patch{}, now)
			require.NoError(t, err)
		}
		return tree{batch: b.ID, activity: a.ID, card: c.ID, question: q.ID, option: o.ID, answer: ans.ID}
	}
	gone, kept := build("gone"), build("kept")

	require.NoError(t, repos.Batches.Delete(ctx, gone.batch))

	_, err = repos.Activities.Get(ctx, gone.activity)
	assert.True(t, core.IsNotFound(err))
	_, err = repos.Cards.Get(ctx, gone.card)
	assert.True(t, core.IsNotFound(err))
	_, err = repos.Questions.Get(ctx, gone.question)
	assert.True(t, core.IsNotFound(err))
	_, err = repos.Options.Get(ctx, gone.option)
	assert.True(t, core.IsNotFound(err))
	_, err = answers.Get(ctx, gone.answer)
	assert.True(t, core.IsNotFound(err))

	for level, ids := range map[progress.Level][2]int{
		progress.LevelBatch:    {gone.batch, kept.batch},
		progress.LevelActivity: {gone.activity, kept.activity},
		progress.LevelCard:     {gone.card, kept.card},
	} {
		recs, err := prog.Query(ctx, level, progress.Filter{UserID: usr.ID}, nil)
		require.NoError(t, err)
		require.Len(t, recs, 1, level)
		assert.Equal(t, ids[1], recs[0].ContainerID, level)
	}

	_, err = repos.Options.Get(ctx, kept.option)
	assert.NoError(t, err)
	_, err = answers.Get(ctx, kept.answer)
	assert.NoError(t, err)

	// a deleted option takes its answers along
	require.NoError(t, repos.Options.Delete(ctx, kept.option))
	_, err = answers.Get(ctx, kept.answer)
	assert.True(t, core.IsNotFound(err))

	// the natural key is free again once the record is gone
	rec, err := prog.Upsert(ctx, progress.LevelBatch, progress.Key{UserID: usr.ID, ContainerID: gone.batch}, progress.Patch{}, now)
	require.NoError(t, err)
	assert.Equal(t, progress.NotAttempted, rec.Status)

	require.NoError(t, users.Delete(ctx, usr.ID))
	for _, level := range progress.Levels {
		recs, err := prog.Query(ctx, level, progress.Filter{}, nil)
		require.NoError(t, err)
		assert.Empty(t, recs, level)
	}
}
