package user

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/proleap/backend/core"
)

var (
	// errors
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactive           = errors.New("account deactivated")
)

type Repository interface {
	core.Repository[User]

	// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when another user (id != excludedID) holds them.
	CheckUniqueness(ctx context.Context, username, email string, excludedID int) error
	GetByEmail(ctx context.Context, email string) (User, error)
	// Filter applies AND operation on available QueryFilter fields.
	// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
	Filter(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]User, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, excludedID ...int) error {
	var exclID int
	if len(excludedID) > 0 {
		exclID = excludedID[0]
	}
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclID); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := core.NowUTC()
	usr := User{
		Email:       nu.Email,
		Username:    nu.Username,
		Name:        nu.Name,
		Role:        nu.Role,
		Gender:      nullString(nu.Gender),
		PhoneNumber: nullString(nu.PhoneNumber),
		IsVerified:  nu.IsVerified,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nu.IsActive != nil {
		usr.IsActive = *nu.IsActive
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.Create(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if filter.IsEmpty() {
		return svc.repo.Query(ctx, nil, ordering)
	}
	return svc.repo.Filter(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr, err := uu.apply(usr)
	if err != nil {
		return User{}, errors.Wrap(err, "applying changes")
	}
	usr.UpdatedAt = core.NowUTC()
	return svc.repo.Update(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.Delete(ctx, id)
}

// Authenticate checks the credentials and stamps the user's last login.
// Unknown emails yield a core.NotFoundError, wrong passwords ErrInvalidCredentials, deactivated accounts ErrInactive.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrInactive
	}
	usr.LastLogin = null.TimeFrom(core.NowUTC())
	return svc.repo.Update(ctx, usr)
}
