package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/proleap/backend/core"
)

// Roles
const (
	RoleAdmin     = "ADMIN"
	RoleOrganizer = "ORGANIZER"
	RoleUser      = "USER"
)

// Genders
const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
	GenderOther  = "OTHER"
)

var (
	AllRoles = []string{RoleAdmin, RoleOrganizer, RoleUser}

	rolePriorities = map[string]int{
		RoleAdmin:     30,
		RoleOrganizer: 20,
		RoleUser:      10,
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

type User struct {
	ID           int         `db:"id" json:"id"`
	Email        string      `db:"email" json:"email"`
	Username     string      `db:"username" json:"username"`
	Name         string      `db:"name" json:"name"`
	Role         string      `db:"role" json:"role"`
	Gender       null.String `db:"gender" json:"gender"`
	PhoneNumber  null.String `db:"phone_number" json:"phone_number"`
	IsVerified   bool        `db:"is_verified" json:"is_verified"`
	IsActive     bool        `db:"is_active" json:"is_active"`
	PasswordHash []byte      `db:"password_hash" json:"-"`
	LastLogin    null.Time   `db:"last_login" json:"last_login"` // UTC
	CreatedAt    time.Time   `db:"created_at" json:"created_at"` // UTC
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"` // UTC
}

func (u User) PK() int { return u.ID }

func (u User) WithPK(id int) User {
	u.ID = id
	return u
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u User) IsOrganizer() bool {
	return u.Role == RoleOrganizer
}

func (u User) IsRegular() bool {
	return u.Role == RoleUser
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Email       string  `json:"email" validate:"required,email,max=254"`
	Username    string  `json:"username" validate:"required,min=3,max=150,alphanum_"`
	Name        string  `json:"name" validate:"max=255"`
	Role        string  `json:"role" validate:"omitempty,role"`
	Gender      *string `json:"gender" validate:"omitempty,gender"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	IsVerified  bool    `json:"is_verified"`
	IsActive    *bool   `json:"is_active"`
	Password    string  `json:"password" validate:"required"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Gender = core.CleanStringPtr(nu.Gender)
	nu.PhoneNumber = core.CleanStringPtr(nu.PhoneNumber)
	if nu.Role == "" {
		nu.Role = RoleUser
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Email       *string `json:"email" validate:"omitempty,email,max=254"`
	Username    *string `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Role        *string `json:"role" validate:"omitempty,role"`
	Gender      *string `json:"gender" validate:"omitempty,gender"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	IsVerified  *bool   `json:"is_verified"`
	IsActive    *bool   `json:"is_active"`
	Password    *string `json:"password"`

	// the user being updated; used by the password policy
	orig User
}

// Privileged reports whether the payload touches fields only admins and organizers may change.
func (uu UpdateUser) Privileged() bool {
	return uu.Role != nil || uu.IsActive != nil || uu.IsVerified != nil
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	uu.orig = origUsr
	uu.Email = core.CleanStringPtr(uu.Email, true /* lower */)
	uu.Username = core.CleanStringPtr(uu.Username, true /* lower */)
	uu.Name = core.CleanStringPtr(uu.Name)
	uu.Gender = core.CleanStringPtr(uu.Gender)
	uu.PhoneNumber = core.CleanStringPtr(uu.PhoneNumber)

	if err := validate.Struct(uu); err != nil {
		return err
	}

	uname, email := origUsr.Username, origUsr.Email
	if uu.Username != nil {
		uname = *uu.Username
	}
	if uu.Email != nil {
		email = *uu.Email
	}
	return svc.CheckUniqueness(ctx, uname, email, origUsr.ID)
}

// apply returns a copy of usr carrying the changes.
func (uu UpdateUser) apply(usr User) (User, error) {
	if uu.Email != nil && *uu.Email != "" {
		usr.Email = *uu.Email
	}
	if uu.Username != nil && *uu.Username != "" {
		usr.Username = *uu.Username
	}
	if uu.Name != nil {
		usr.Name = *uu.Name
	}
	if uu.Role != nil {
		usr.Role = *uu.Role
	}
	if uu.Gender != nil {
		usr.Gender = nullString(uu.Gender)
	}
	if uu.PhoneNumber != nil {
		usr.PhoneNumber = nullString(uu.PhoneNumber)
	}
	if uu.IsVerified != nil {
		usr.IsVerified = *uu.IsVerified
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != nil {
		if err := usr.SetPassword(*uu.Password); err != nil {
			return User{}, err
		}
	}
	return usr, nil
}

// nullString maps nil and "" to NULL.
func nullString(s *string) null.String {
	if s == nil || *s == "" {
		return null.String{}
	}
	return null.StringFrom(*s)
}

type QueryFilter struct {
	Search   string
	Roles    []string
	IsActive *bool
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
