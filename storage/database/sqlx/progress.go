package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/progress"
)

// progressTable describes where the records of a level live.
type progressTable struct {
	name        string
	container   string
	counter     string
	isCompleted bool
}

var progressTables = map[progress.Level]progressTable{
	progress.LevelBatch:    {name: "user_batches", container: "batch_id", counter: "completed_activities", isCompleted: true},
	progress.LevelActivity: {name: "user_activities", container: "activity_id", counter: "completed_cards"},
	progress.LevelCard:     {name: "user_cards", container: "card_id", counter: "completed_questions"},
}

// selectColumns aliases the level's columns onto progress.Record.
func (pt progressTable) selectColumns() []string {
	isCompleted := "FALSE AS is_completed"
	if pt.isCompleted {
		isCompleted = "is_completed"
	}
	return []string{
		"id",
		"user_id",
		pt.container + " AS container_id",
		pt.counter + " AS completed",
		isCompleted,
		"status",
		"created_at",
		"updated_at",
	}
}

func (pt progressTable) returning() string {
	return "RETURNING " + strings.Join(pt.selectColumns(), ", ")
}

func (pt progressTable) column(field string) (string, bool) {
	switch field {
	case "id", "user_id", "status", "created_at", "updated_at":
		return field, true
	case "container_id":
		return pt.container, true
	case "completed":
		return pt.counter, true
	case "is_completed":
		return field, pt.isCompleted
	}
	return "", false
}

type progressRepository struct {
	db core.DB
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db core.DB) *progressRepository {
	return &progressRepository{db: db}
}

func tableOf(level progress.Level) (progressTable, error) {
	pt, ok := progressTables[level]
	if !ok {
		return progressTable{}, errors.Errorf("unknown progress level %q", level)
	}
	return pt, nil
}

func (repo *progressRepository) scan(ctx context.Context, level progress.Level, b sq.Sqlizer, msg string) ([]progress.Record, error) {
	recs, err := scanAll[progress.Record](ctx, repo.db, b, string(level)+" progress", msg)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Level = level
	}
	return recs, nil
}

func (repo *progressRepository) one(ctx context.Context, level progress.Level, b sq.Sqlizer, msg string) (progress.Record, error) {
	recs, err := repo.scan(ctx, level, b, msg)
	if err != nil {
		return progress.Record{}, err
	}
	if len(recs) == 0 {
		return progress.Record{}, core.NewNotFoundError(string(level) + " progress")
	}
	return recs[0], nil
}

func (repo *progressRepository) Upsert(
	ctx context.Context,
	level progress.Level,
	key progress.Key,
	patch progress.Patch,
	now time.Time,
) (progress.Record, error) {
	b, err := upsertQuery(level, key, patch, now)
	if err != nil {
		return progress.Record{}, err
	}
	return repo.one(ctx, level, b, "upserting progress")
}

// upsertQuery inserts the record of key, or applies patch to the existing one.
func upsertQuery(level progress.Level, key progress.Key, patch progress.Patch, now time.Time) (sq.InsertBuilder, error) {
	pt, err := tableOf(level)
	if err != nil {
		return sq.InsertBuilder{}, err
	}

	rec := patch.ApplyTo(progress.Record{Level: level, Status: progress.NotAttempted})
	cols := []string{"user_id", pt.container, pt.counter, "status", "created_at", "updated_at"}
	vals := []interface{}{key.UserID, key.ContainerID, rec.Completed, rec.Status, now, now}
	if pt.isCompleted {
		cols = append(cols, "is_completed")
		vals = append(vals, rec.IsCompleted)
	}

	// only the patched fields overwrite an existing record
	set := []string{"updated_at = EXCLUDED.updated_at"}
	if patch.Completed != nil {
		set = append(set, fmt.Sprintf("%[1]s = EXCLUDED.%[1]s", pt.counter))
	}
	if patch.IsCompleted != nil && pt.isCompleted {
		set = append(set, "is_completed = EXCLUDED.is_completed")
	}
	if patch.Status != nil {
		set = append(set, "status = EXCLUDED.status")
	}

	return psql.Insert(pt.name).Columns(cols...).Values(vals...).Suffix(fmt.Sprintf(
		"ON CONFLICT (user_id, %s) DO UPDATE SET %s %s",
		pt.container, strings.Join(set, ", "), pt.returning(),
	)), nil
}

func (repo *progressRepository) Get(ctx context.Context, level progress.Level, id int) (progress.Record, error) {
	pt, err := tableOf(level)
	if err != nil {
		return progress.Record{}, err
	}
	b := psql.Select(pt.selectColumns()...).From(pt.name).Where(sq.Eq{"id": id})
	return repo.one(ctx, level, b, "getting progress")
}

func (repo *progressRepository) Query(
	ctx context.Context,
	level progress.Level,
	filter progress.Filter,
	ordering []core.DBOrdering,
) ([]progress.Record, error) {
	pt, err := tableOf(level)
	if err != nil {
		return nil, err
	}

	b := psql.Select(pt.selectColumns()...).From(pt.name)
	if filter.UserID != 0 {
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.ContainerID != 0 {
		b = b.Where(sq.Eq{pt.container: filter.ContainerID})
	}
	if filter.ContainerIDs != nil {
		b = b.Where(sq.Eq{pt.container: filter.ContainerIDs})
	}

	if len(ordering) == 0 {
		b = b.OrderBy("id ASC")
	}
	for _, ord := range ordering {
		col, ok := pt.column(ord.Field)
		if !ok {
			return nil, errors.Errorf("%s: unknown ordering field %q", pt.name, ord.Field)
		}
		b = b.OrderBy(core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	return repo.scan(ctx, level, b, "querying progress")
}

func (repo *progressRepository) Update(ctx context.Context, rec progress.Record) (progress.Record, error) {
	pt, err := tableOf(rec.Level)
	if err != nil {
		return progress.Record{}, err
	}

	b := psql.Update(pt.name).
		Set(pt.counter, rec.Completed).
		Set("status", rec.Status).
		Set("updated_at", rec.UpdatedAt)
	if pt.isCompleted {
		b = b.Set("is_completed", rec.IsCompleted)
	}
	b = b.Where(sq.Eq{"id": rec.ID}).Suffix(pt.returning())
	return repo.one(ctx, rec.Level, b, "updating progress")
}

func (repo *progressRepository) Delete(ctx context.Context, level progress.Level, id int) error {
	pt, err := tableOf(level)
	if err != nil {
		return err
	}
	q, args, err := psql.Delete(pt.name).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return trapErr(err, string(level)+" progress", "deleting progress")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting progress")
	}
	if n == 0 {
		return core.NewNotFoundError(string(level) + " progress")
	}
	return nil
}

func (repo *progressRepository) LatestTouched(
	ctx context.Context,
	level progress.Level,
	userID int,
	containerIDs []int,
) (progress.Record, bool, error) {
	pt, err := tableOf(level)
	if err != nil {
		return progress.Record{}, false, err
	}
	if len(containerIDs) == 0 {
		return progress.Record{}, false, nil
	}

	b := psql.Select(pt.selectColumns()...).From(pt.name).
		Where(sq.Eq{"user_id": userID, pt.container: containerIDs}).
		OrderBy("updated_at DESC", pt.container+" ASC").
		Limit(1)
	recs, err := repo.scan(ctx, level, b, "finding latest progress")
	if err != nil {
		return progress.Record{}, false, err
	}
	if len(recs) == 0 {
		return progress.Record{}, false, nil
	}
	return recs[0], true, nil
}
