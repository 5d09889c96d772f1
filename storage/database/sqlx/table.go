package sqlxrepos

import (
	"context"
	"database/sql"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
)

var (
	psql   = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	mapper = reflectx.NewMapperFunc("db", strings.ToLower)
)

// table is the generic core.Repository over a table whose columns are the `db` tags of T.
type table[T core.Model[T]] struct {
	exec     core.DBExecutor
	name     string
	resource string
	columns  []string
	fields   map[string][]int
}

func newTable[T core.Model[T]](exec core.DBExecutor, name, resource string) *table[T] {
	var zero T
	tm := mapper.TypeMap(reflect.TypeOf(zero))

	t := &table[T]{
		exec:     exec,
		name:     name,
		resource: resource,
		fields:   make(map[string][]int),
	}
	for _, fi := range tm.Tree.Children {
		if fi == nil {
			continue
		}
		t.columns = append(t.columns, fi.Name)
		t.fields[fi.Name] = fi.Index
	}
	return t
}

func (t *table[T]) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return t.exec
}

// values returns the column values of obj, skipping the excluded columns.
func (t *table[T]) values(obj T, exclude ...string) map[string]interface{} {
	v := reflect.ValueOf(obj)
	vals := make(map[string]interface{}, len(t.columns))
COLS:
	for _, col := range t.columns {
		for _, excl := range exclude {
			if col == excl {
				continue COLS
			}
		}
		vals[col] = v.FieldByIndex(t.fields[col]).Interface()
	}
	return vals
}

func (t *table[T]) hasColumn(col string) bool {
	_, ok := t.fields[col]
	return ok
}

func (t *table[T]) orderBy(ordering []core.DBOrdering) ([]string, error) {
	if len(ordering) == 0 {
		return []string{"id ASC"}, nil
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !t.hasColumn(ord.Field) {
			return nil, errors.Errorf("%s: unknown ordering field %q", t.name, ord.Field)
		}
		clauses = append(clauses, ord.String())
	}
	return clauses, nil
}

// trapErr maps "no rows" to a core.NotFoundError and constraint violations to core.ValidationError.
func (t *table[T]) trapErr(err error, msg string) error {
	return trapErr(err, t.resource, msg)
}

func trapErr(err error, resource, msg string) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return core.NewNotFoundError(resource)
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation
			return core.NewValidationError(errors.New(pqErr.Message), core.FieldError{
				Field: constraintField(pqErr), Error: "this value is already used",
			})
		case "23503": // foreign_key_violation
			return core.NewValidationError(errors.New(pqErr.Message), core.FieldError{
				Field: constraintField(pqErr), Error: "object does not exist",
			})
		}
	}
	return errors.Wrap(err, msg)
}

// constraintField guesses the offending field from a "<table>_<column>_..." constraint name.
func constraintField(pqErr *pq.Error) string {
	name := strings.TrimPrefix(pqErr.Constraint, pqErr.Table+"_")
	for _, suffix := range []string{"_key", "_fkey"} {
		name = strings.TrimSuffix(name, suffix)
	}
	if name == "" {
		return "non_field_errors"
	}
	return name
}

// query runs a built statement and scans every row into T.
func (t *table[T]) query(ctx context.Context, exec core.DBExecutor, b sq.Sqlizer, msg string) ([]T, error) {
	return scanAll[T](ctx, exec, b, t.resource, msg)
}

func scanAll[T any](ctx context.Context, exec core.DBExecutor, b sq.Sqlizer, resource, msg string) ([]T, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrapf(err, "%s: building query", msg)
	}
	rows, err := exec.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, trapErr(err, resource, msg)
	}
	out := make([]T, 0)
	if err = sqlx.StructScan(rows, &out); err != nil {
		return nil, trapErr(err, resource, msg)
	}
	return out, nil
}

func (t *table[T]) Create(ctx context.Context, obj T, exec ...core.DBExecutor) (T, error) {
	created, err := t.CreateMany(ctx, []T{obj}, exec...)
	if err != nil {
		var zero T
		return zero, err
	}
	return created[0], nil
}

// CreateMany inserts objs in a single statement.
func (t *table[T]) CreateMany(ctx context.Context, objs []T, exec ...core.DBExecutor) ([]T, error) {
	if len(objs) == 0 {
		return []T{}, nil
	}

	cols := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		if col != "id" {
			cols = append(cols, col)
		}
	}
	b := psql.Insert(t.name).Columns(cols...).Suffix("RETURNING *")
	for _, obj := range objs {
		vals := t.values(obj, "id")
		row := make([]interface{}, len(cols))
		for i, col := range cols {
			row[i] = vals[col]
		}
		b = b.Values(row...)
	}

	created, err := t.query(ctx, t.getExec(exec), b, "inserting "+t.resource)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (t *table[T]) Get(ctx context.Context, id int, exec ...core.DBExecutor) (T, error) {
	var zero T
	objs, err := t.query(ctx, t.getExec(exec), psql.Select("*").From(t.name).Where(sq.Eq{"id": id}), "getting "+t.resource)
	if err != nil {
		return zero, err
	}
	if len(objs) == 0 {
		return zero, core.NewNotFoundError(t.resource)
	}
	return objs[0], nil
}

func (t *table[T]) Query(ctx context.Context, where core.Where, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]T, error) {
	b := psql.Select("*").From(t.name)
	if len(where) > 0 {
		for col := range where {
			if !t.hasColumn(col) {
				return nil, errors.Errorf("%s: unknown column %q", t.name, col)
			}
		}
		b = b.Where(sq.Eq(where))
	}
	orderBy, err := t.orderBy(ordering)
	if err != nil {
		return nil, err
	}
	return t.query(ctx, t.getExec(exec), b.OrderBy(orderBy...), "querying "+t.resource)
}

func (t *table[T]) Update(ctx context.Context, obj T, exec ...core.DBExecutor) (T, error) {
	var zero T
	b := psql.Update(t.name).
		SetMap(t.values(obj, "id", "created_at")).
		Where(sq.Eq{"id": obj.PK()}).
		Suffix("RETURNING *")

	objs, err := t.query(ctx, t.getExec(exec), b, "updating "+t.resource)
	if err != nil {
		return zero, err
	}
	if len(objs) == 0 {
		return zero, core.NewNotFoundError(t.resource)
	}
	return objs[0], nil
}

func (t *table[T]) Delete(ctx context.Context, id int, exec ...core.DBExecutor) error {
	q, args, err := psql.Delete(t.name).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := t.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return t.trapErr(err, "deleting "+t.resource)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting "+t.resource)
	}
	if n == 0 {
		return core.NewNotFoundError(t.resource)
	}
	return nil
}
