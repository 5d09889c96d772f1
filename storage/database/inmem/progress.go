package inmemdb

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/progress"
)

var recordColumns = columnsOf(reflect.TypeOf(progress.Record{}))

type progressTable struct {
	mu    sync.RWMutex
	level progress.Level
	rows  map[int]progress.Record
	keys  map[progress.Key]int
	seq   int
}

func newProgressTable(level progress.Level) *progressTable {
	return &progressTable{
		level: level,
		rows:  make(map[int]progress.Record),
		keys:  make(map[progress.Key]int),
	}
}

// deleteWhere drops the records pred selects, like ON DELETE CASCADE.
func (t *progressTable) deleteWhere(pred func(progress.Record) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, rec := range t.rows {
		if pred(rec) {
			delete(t.keys, rec.Key())
			delete(t.rows, id)
		}
	}
}

type progressRepository struct {
	tables map[progress.Level]*progressTable
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{tables: db.progress}
}

func (repo *progressRepository) table(level progress.Level) (*progressTable, error) {
	t, ok := repo.tables[level]
	if !ok {
		return nil, errors.Errorf("unknown progress level %q", level)
	}
	return t, nil
}

func notFound(level progress.Level) error {
	return core.NewNotFoundError(string(level) + " progress")
}

func (repo *progressRepository) Upsert(
	_ context.Context,
	level progress.Level,
	key progress.Key,
	patch progress.Patch,
	now time.Time,
) (progress.Record, error) {
	t, err := repo.table(level)
	if err != nil {
		return progress.Record{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.rows[t.keys[key]]
	if !ok {
		t.seq++
		rec = progress.Record{
			Level:       level,
			ID:          t.seq,
			UserID:      key.UserID,
			ContainerID: key.ContainerID,
			Status:      progress.NotAttempted,
			CreatedAt:   now,
		}
		t.keys[key] = rec.ID
	}
	rec = patch.ApplyTo(rec)
	rec.UpdatedAt = now
	t.rows[rec.ID] = rec
	return rec, nil
}

func (repo *progressRepository) Get(_ context.Context, level progress.Level, id int) (progress.Record, error) {
	t, err := repo.table(level)
	if err != nil {
		return progress.Record{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.rows[id]
	if !ok {
		return progress.Record{}, notFound(level)
	}
	return rec, nil
}

func matches(rec progress.Record, filter progress.Filter) bool {
	if filter.UserID != 0 && rec.UserID != filter.UserID {
		return false
	}
	if filter.ContainerID != 0 && rec.ContainerID != filter.ContainerID {
		return false
	}
	if filter.ContainerIDs != nil {
		for _, id := range filter.ContainerIDs {
			if id == rec.ContainerID {
				return true
			}
		}
		return false
	}
	return true
}

func (repo *progressRepository) Query(
	_ context.Context,
	level progress.Level,
	filter progress.Filter,
	ordering []core.DBOrdering,
) ([]progress.Record, error) {
	t, err := repo.table(level)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	recs := make([]progress.Record, 0)
	for _, rec := range t.rows {
		if matches(rec, filter) {
			recs = append(recs, rec)
		}
	}
	if err = sortRows(recs, recordColumns, ordering); err != nil {
		return nil, errors.Wrapf(err, "querying %s progress", level)
	}
	return recs, nil
}

func (repo *progressRepository) Update(_ context.Context, rec progress.Record) (progress.Record, error) {
	t, err := repo.table(rec.Level)
	if err != nil {
		return progress.Record{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	stored, ok := t.rows[rec.ID]
	if !ok {
		return progress.Record{}, notFound(rec.Level)
	}
	stored.Completed = rec.Completed
	stored.Status = rec.Status
	stored.UpdatedAt = rec.UpdatedAt
	if rec.Level == progress.LevelBatch {
		stored.IsCompleted = rec.IsCompleted
	}
	t.rows[rec.ID] = stored
	return stored, nil
}

func (repo *progressRepository) Delete(_ context.Context, level progress.Level, id int) error {
	t, err := repo.table(level)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.rows[id]
	if !ok {
		return notFound(level)
	}
	delete(t.keys, rec.Key())
	delete(t.rows, id)
	return nil
}

func (repo *progressRepository) LatestTouched(
	ctx context.Context,
	level progress.Level,
	userID int,
	containerIDs []int,
) (progress.Record, bool, error) {
	if len(containerIDs) == 0 {
		return progress.Record{}, false, nil
	}
	recs, err := repo.Query(ctx, level, progress.Filter{UserID: userID, ContainerIDs: containerIDs}, []core.DBOrdering{
		{Field: "updated_at"},
		{Field: "container_id", Ascending: true},
	})
	if err != nil {
		return progress.Record{}, false, err
	}
	if len(recs) == 0 {
		return progress.Record{}, false, nil
	}
	return recs[0], true, nil
}
