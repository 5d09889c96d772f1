package sqlxrepos

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/user"
)

type userRepository struct {
	*table[user.User]
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{table: newTable[user.User](db, "users", "user")}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedID int) error {
	b := psql.Select("*").From(repo.name).
		Where(sq.Or{sq.Eq{"lower(username)": username}, sq.Eq{"lower(email)": email}}).
		Where(sq.NotEq{"id": excludedID})

	users, err := repo.query(ctx, repo.exec, b, "checking user uniqueness")
	if err != nil {
		return err
	}
	for _, usr := range users {
		if strings.EqualFold(usr.Username, username) {
			return user.ErrUsernameExists
		}
		if strings.EqualFold(usr.Email, email) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) GetByEmail(ctx context.Context, email string) (user.User, error) {
	b := psql.Select("*").From(repo.name).Where(sq.Eq{"lower(email)": email}).Limit(1)
	users, err := repo.query(ctx, repo.exec, b, "getting user by email")
	if err != nil {
		return user.User{}, err
	}
	if len(users) == 0 {
		return user.User{}, core.NewNotFoundError("user")
	}
	return users[0], nil
}

func (repo *userRepository) Filter(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	b := psql.Select("*").From(repo.name)
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		b = b.Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"username": pattern},
			sq.ILike{"email": pattern},
		})
	}
	if filter.Roles != nil {
		b = b.Where(sq.Eq{"role": filter.Roles})
	}
	if filter.IsActive != nil {
		b = b.Where(sq.Eq{"is_active": *filter.IsActive})
	}

	orderBy, err := repo.orderBy(ordering)
	if err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return repo.query(ctx, repo.exec, b.OrderBy(orderBy...), "filtering users")
}
