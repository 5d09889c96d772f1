package inmemdb

import (
	"context"
	"strings"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/user"
)

type userRepository struct {
	*table[user.User]
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{table: db.users}
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedID int) error {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for id, usr := range repo.rows {
		if id == excludedID {
			continue
		}
		if strings.EqualFold(usr.Username, username) {
			return user.ErrUsernameExists
		}
		if strings.EqualFold(usr.Email, email) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) GetByEmail(_ context.Context, email string) (user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, usr := range repo.rows {
		if strings.EqualFold(usr.Email, email) {
			return usr, nil
		}
	}
	return user.User{}, core.NewNotFoundError("user")
}

func (repo *userRepository) Filter(_ context.Context, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	search := strings.ToLower(filter.Search)
	return repo.filter(func(usr user.User) bool {
		if search != "" &&
			!strings.Contains(strings.ToLower(usr.Name), search) &&
			!strings.Contains(strings.ToLower(usr.Username), search) &&
			!strings.Contains(strings.ToLower(usr.Email), search) {
			return false
		}
		if filter.Roles != nil && !contains(filter.Roles, usr.Role) {
			return false
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			return false
		}
		return true
	}, ordering)
}

func contains(vals []string, v string) bool {
	for _, val := range vals {
		if val == v {
			return true
		}
	}
	return false
}
