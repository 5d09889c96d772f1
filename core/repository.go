package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Model is implemented by every persisted entity.
// WithPK returns a copy of the entity carrying the given primary key.
type Model[T any] interface {
	PK() int
	WithPK(id int) T
}

// Repository is the storage contract shared by all entities.
// The optional exec makes the call part of a transaction (see TxRunner).
type Repository[T Model[T]] interface {
	Create(ctx context.Context, obj T, exec ...DBExecutor) (T, error)
	CreateMany(ctx context.Context, objs []T, exec ...DBExecutor) ([]T, error)
	Get(ctx context.Context, id int, exec ...DBExecutor) (T, error)
	// Query returns the entities matching where (all when empty), ordered by ordering (id ascending by default).
	Query(ctx context.Context, where Where, ordering []DBOrdering, exec ...DBExecutor) ([]T, error)
	Update(ctx context.Context, obj T, exec ...DBExecutor) (T, error)
	Delete(ctx context.Context, id int, exec ...DBExecutor) error
}

// RefCheck verifies an entity against the rest of the store before it is written.
type RefCheck[T any] func(ctx context.Context, obj T) error

// CRUDService is the generic service shared by all plain-CRUD entities.
type CRUDService[T Model[T]] struct {
	repo   Repository[T]
	checks []RefCheck[T]
}

func NewCRUDService[T Model[T]](repo Repository[T], checks ...RefCheck[T]) *CRUDService[T] {
	return &CRUDService[T]{repo: repo, checks: checks}
}

func (svc *CRUDService[T]) check(ctx context.Context, obj T) error {
	for _, chk := range svc.checks {
		if err := chk(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

func (svc *CRUDService[T]) Create(ctx context.Context, obj T) (T, error) {
	if err := svc.check(ctx, obj); err != nil {
		var zero T
		return zero, err
	}
	return svc.repo.Create(ctx, obj)
}

func (svc *CRUDService[T]) Get(ctx context.Context, id int) (T, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *CRUDService[T]) Query(ctx context.Context, where Where, ordering []DBOrdering) ([]T, error) {
	return svc.repo.Query(ctx, where, ordering)
}

// First returns the first entity matching where in the given ordering.
func (svc *CRUDService[T]) First(ctx context.Context, where Where, ordering []DBOrdering) (T, bool, error) {
	var zero T
	objs, err := svc.repo.Query(ctx, where, ordering)
	if err != nil {
		return zero, false, err
	}
	if len(objs) == 0 {
		return zero, false, nil
	}
	return objs[0], true, nil
}

func (svc *CRUDService[T]) Update(ctx context.Context, obj T) (T, error) {
	if err := svc.check(ctx, obj); err != nil {
		var zero T
		return zero, err
	}
	return svc.repo.Update(ctx, obj)
}

func (svc *CRUDService[T]) Delete(ctx context.Context, id int) error {
	return svc.repo.Delete(ctx, id)
}

// Exists is a RefCheck building block: it reports a field error when no parent has the given id.
func Exists[P Model[P]](ctx context.Context, repo Repository[P], field string, id int) error {
	if _, err := repo.Get(ctx, id); err != nil {
		if IsNotFound(err) {
			return NewValidationError(nil, FieldError{Field: field, Error: "object does not exist"})
		}
		return errors.Wrapf(err, "getting %s", field)
	}
	return nil
}

// UniqueWithin is a RefCheck building block: it reports a field error when another entity of the same parent
// already uses the value.
func UniqueWithin[T Model[T]](
	ctx context.Context,
	repo Repository[T],
	obj T,
	parentCol string, parentID int,
	col, field string, val interface{},
) error {
	others, err := repo.Query(ctx, Where{parentCol: parentID, col: val}, nil)
	if err != nil {
		return errors.Wrapf(err, "checking %s uniqueness", field)
	}
	for _, other := range others {
		if other.PK() != obj.PK() {
			return NewValidationError(nil, FieldError{Field: field, Error: "this value is already used within the parent"})
		}
	}
	return nil
}

// NowUTC is the clock used to stamp entities, at the database's precision. mockable
var NowUTC = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
