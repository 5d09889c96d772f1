package inmemdb

import (
	"context"
	"database/sql/driver"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx/reflectx"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
)

var mapper = reflectx.NewMapperFunc("db", strings.ToLower)

// columns maps the `db` tags of a struct to its field indexes.
type columns map[string][]int

func columnsOf(typ reflect.Type) columns {
	cols := make(columns)
	for _, fi := range mapper.TypeMap(typ).Tree.Children {
		if fi == nil {
			continue
		}
		cols[fi.Name] = fi.Index
	}
	return cols
}

func (cols columns) value(obj interface{}, col string) (interface{}, error) {
	idx, ok := cols[col]
	if !ok {
		return nil, errors.Errorf("unknown column %q", col)
	}
	return normalize(reflect.ValueOf(obj).FieldByIndex(idx).Interface()), nil
}

// match reports whether obj satisfies every condition of where.
func (cols columns) match(obj interface{}, where core.Where) (bool, error) {
	for col, want := range where {
		got, err := cols.value(obj, col)
		if err != nil {
			return false, err
		}

		wv := reflect.ValueOf(want)
		if wv.Kind() == reflect.Slice {
			found := false
			for i := 0; i < wv.Len(); i++ {
				if compare(got, normalize(wv.Index(i).Interface())) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
			continue
		}
		if compare(got, normalize(want)) != 0 {
			return false, nil
		}
	}
	return true, nil
}

// sortRows orders rows the way the SQL backend would, id ascending by default.
func sortRows[T any](rows []T, cols columns, ordering []core.DBOrdering) error {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "id", Ascending: true}}
	}
	for _, ord := range ordering {
		if _, ok := cols[ord.Field]; !ok {
			return errors.Errorf("unknown ordering field %q", ord.Field)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			vi, _ := cols.value(rows[i], ord.Field)
			vj, _ := cols.value(rows[j], ord.Field)
			c := compare(vi, vj)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return nil
}

// normalize reduces v to nil, int64, float64, string, bool or time.Time.
func normalize(v interface{}) interface{} {
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return nil
		}
		v = dv
	}
	if v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

// compare orders normalized values; NULLs sort last, like Postgres.
func compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			return cmpOrdered(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmpOrdered(av, bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmpOrdered(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			if !av {
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			}
			return 0
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return -1
}

func cmpOrdered[V int64 | float64 | string](a, b V) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// table is the in-memory core.Repository. unique lists column sets that must be unique, like table constraints.
// The optional executors are ignored.
type table[T core.Model[T]] struct {
	mu       sync.RWMutex
	rows     map[int]T
	seq      int
	resource string
	cols     columns
	unique   [][]string
	hooks    []func(id int)
}

func newTable[T core.Model[T]](resource string, unique ...[]string) *table[T] {
	var zero T
	return &table[T]{
		rows:     make(map[int]T),
		resource: resource,
		cols:     columnsOf(reflect.TypeOf(zero)),
		unique:   unique,
	}
}

// checkUnique must be called with the write lock held.
func (t *table[T]) checkUnique(obj T) error {
	for _, set := range t.unique {
		where := make(core.Where, len(set))
		for _, col := range set {
			v, err := t.cols.value(obj, col)
			if err != nil {
				return err
			}
			where[col] = v
		}
		for id, row := range t.rows {
			if id == obj.PK() {
				continue
			}
			if ok, _ := t.cols.match(row, where); ok {
				return core.NewValidationError(nil, core.FieldError{
					Field: set[len(set)-1], Error: "this value is already used",
				})
			}
		}
	}
	return nil
}

func (t *table[T]) Create(ctx context.Context, obj T, _ ...core.DBExecutor) (T, error) {
	created, err := t.CreateMany(ctx, []T{obj})
	if err != nil {
		var zero T
		return zero, err
	}
	return created[0], nil
}

// CreateMany stores all of objs or none of them.
func (t *table[T]) CreateMany(_ context.Context, objs []T, _ ...core.DBExecutor) ([]T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	created := make([]T, 0, len(objs))
	for _, obj := range objs {
		obj = obj.WithPK(t.seq + len(created) + 1)
		if err := t.checkUnique(obj); err != nil {
			for _, c := range created {
				delete(t.rows, c.PK())
			}
			return nil, err
		}
		t.rows[obj.PK()] = obj
		created = append(created, obj)
	}
	t.seq += len(created)
	return created, nil
}

func (t *table[T]) Get(_ context.Context, id int, _ ...core.DBExecutor) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	obj, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, core.NewNotFoundError(t.resource)
	}
	return obj, nil
}

func (t *table[T]) Query(_ context.Context, where core.Where, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	objs := make([]T, 0)
	for _, obj := range t.rows {
		ok, err := t.cols.match(obj, where)
		if err != nil {
			return nil, errors.Wrapf(err, "querying %s", t.resource)
		}
		if ok {
			objs = append(objs, obj)
		}
	}
	if err := sortRows(objs, t.cols, ordering); err != nil {
		return nil, errors.Wrapf(err, "querying %s", t.resource)
	}
	return objs, nil
}

// filter returns the rows pred keeps, ordered.
func (t *table[T]) filter(pred func(T) bool, ordering []core.DBOrdering) ([]T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	objs := make([]T, 0)
	for _, obj := range t.rows {
		if pred(obj) {
			objs = append(objs, obj)
		}
	}
	if err := sortRows(objs, t.cols, ordering); err != nil {
		return nil, errors.Wrapf(err, "filtering %s", t.resource)
	}
	return objs, nil
}

func (t *table[T]) Update(_ context.Context, obj T, _ ...core.DBExecutor) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if _, ok := t.rows[obj.PK()]; !ok {
		return zero, core.NewNotFoundError(t.resource)
	}
	if err := t.checkUnique(obj); err != nil {
		return zero, err
	}
	t.rows[obj.PK()] = obj
	return obj, nil
}

func (t *table[T]) Delete(_ context.Context, id int, _ ...core.DBExecutor) error {
	t.mu.Lock()
	if _, ok := t.rows[id]; !ok {
		t.mu.Unlock()
		return core.NewNotFoundError(t.resource)
	}
	delete(t.rows, id)
	t.mu.Unlock()

	t.afterDelete(id)
	return nil
}

// onDelete registers fn to run for every deleted row, outside the table lock.
func (t *table[T]) onDelete(fn func(id int)) {
	t.hooks = append(t.hooks, fn)
}

func (t *table[T]) afterDelete(ids ...int) {
	for _, id := range ids {
		for _, fn := range t.hooks {
			fn(id)
		}
	}
}

// deleteBy deletes the rows whose col equals v, like ON DELETE CASCADE.
func (t *table[T]) deleteBy(col string, v int) {
	where := core.Where{col: v}
	var ids []int

	t.mu.Lock()
	for id, row := range t.rows {
		if ok, _ := t.cols.match(row, where); ok {
			ids = append(ids, id)
			delete(t.rows, id)
		}
	}
	t.mu.Unlock()

	t.afterDelete(ids...)
}
