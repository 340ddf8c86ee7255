package user

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/foundi/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Account statuses
const (
	StatusPending = "pending"
	StatusActive  = "active"
)

var (
	AllRoles    = []string{RoleStudent, RoleAdmin}
	AllStatuses = []string{StatusPending, StatusActive}
	AllSeries   = []string{"A1", "C", "D"}
)

type User struct {
	ID           string          `json:"id"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Email        string          `json:"email"`
	Role         string          `json:"role"`
	Status       string          `json:"status"`
	Serie        string          `json:"serie"`
	Group        int             `json:"group"`
	Payments     map[string]bool `json:"payments"` // {"YYYY-MM": paid}
	PasswordHash []byte          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
	UpdatedAt    time.Time       `json:"updated_at"` // UTC
	LastLogin    time.Time       `json:"last_login"` // UTC
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

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsActive() bool  { return u.Status == StatusActive }

func (u User) FullName() string {
	return core.CleanString(fmt.Sprintf("%s %s", u.FirstName, u.LastName))
}

// NewUser contains information needed to register a new student.
type NewUser struct {
	FirstName       string `json:"first_name" validate:"required,notblank,max=100"`
	LastName        string `json:"last_name" validate:"required,notblank,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Serie           string `json:"serie" validate:"required,serie"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Serie = core.CleanString(nu.Serie)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what an admin may change on an existing User.
type UpdateUser struct {
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Serie     string `json:"serie" validate:"omitempty,serie"`
	Role      string `json:"role" validate:"omitempty,oneof=student admin"`
	Status    string `json:"status" validate:"omitempty,oneof=pending active"`
	Group     *int   `json:"group" validate:"omitempty,min=1,max=9"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	uu.FirstName = core.CleanString(uu.FirstName)
	uu.LastName = core.CleanString(uu.LastName)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	uu.Serie = core.CleanString(uu.Serie)

	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Email != "" && uu.Email != origUsr.Email {
		return svc.CheckUniqueness(ctx, uu.Email, origUsr)
	}
	return nil
}

// UpdateProfile is what a user may change on their own account.
type UpdateProfile struct {
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Serie     string `json:"serie" validate:"omitempty,serie"`
}

func (up *UpdateProfile) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	up.FirstName = core.CleanString(up.FirstName)
	up.LastName = core.CleanString(up.LastName)
	up.Email = core.CleanString(up.Email, true /* lower */)
	up.Serie = core.CleanString(up.Serie)

	if err := validate.Struct(up); err != nil {
		return err
	}
	if up.Email != "" && up.Email != origUsr.Email {
		return svc.CheckUniqueness(ctx, up.Email, origUsr)
	}
	return nil
}

type ChangePassword struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	// set by the service for the similarity check
	usr User
}

func (cp *ChangePassword) Validate(usr User, validate *validator.Validate) error {
	cp.usr = usr
	if err := validate.Struct(cp); err != nil {
		return err
	}
	if err := usr.CheckPassword(cp.CurrentPassword); err != nil {
		return core.NewValidationError(ErrWrongPassword, core.FieldError{Field: "current_password", Error: ErrWrongPassword.Error()})
	}
	return nil
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search string `query:"search"`
	Role   string `query:"role"`
	Status string `query:"status"`
	Serie  string `query:"serie"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.Status == "" && qf.Serie == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Serie = core.CleanString(qf.Serie)
}

type GetFilter struct {
	ID    string
	Email string
}
