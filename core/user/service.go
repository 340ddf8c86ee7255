package user

import (
	"context"
	"fmt"
	"net/mail"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("user not found")
	ErrEmailExists   = errors.New("Cet e-mail est déjà utilisé.")
	ErrWrongPassword = errors.New("Le mot de passe actuel est incorrect.")
	ErrNoTeacher     = core.NewNotFoundError("no admin account found")

	errInvalidValue = "invalid value"
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists when another user (not in excludedUsers) owns email.
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of FirstName, LastName or Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string) (int, error)
		CountUsers(ctx context.Context, role string) (int, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error
		Register(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		QueryStudents(ctx context.Context) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		// GetTeacher returns the admin account students talk to: the first admin created.
		GetTeacher(ctx context.Context) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		Activate(ctx context.Context, usr User) (User, error)
		UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error)
		ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error)
		Delete(ctx context.Context, ids ...string) error
		Count(ctx context.Context, role string) (int, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		// MakeResetToken returns the (uid, token) pair sent by RequestPasswordReset.
		MakeResetToken(usr User) (string, string, error)
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		tokenGen tokenGenerator
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) Service {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		tokenGen: newTokenGenerator(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
		logger:   logger,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

// Register creates a pending student account. An admin has to activate it before login.
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	now := NowFunc().UTC()
	usr := User{
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Email:     nu.Email,
		Role:      RoleStudent,
		Status:    StatusPending,
		Serie:     nu.Serie,
		Group:     1,
		Payments:  map[string]bool{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	users, err := svc.repo.QueryUsers(ctx, filter, ordering)
	return users, errors.Wrap(err, "querying users")
}

func (svc *service) QueryStudents(ctx context.Context) ([]User, error) {
	users, err := svc.repo.QueryUsers(
		ctx,
		&QueryFilter{Role: RoleStudent},
		[]core.DBOrdering{{Field: "last_name", Ascending: true}, {Field: "first_name", Ascending: true}},
	)
	return users, errors.Wrap(err, "querying students")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetTeacher(ctx context.Context) (User, error) {
	admins, err := svc.repo.QueryUsers(ctx, &QueryFilter{Role: RoleAdmin}, []core.DBOrdering{{Field: "created_at", Ascending: true}})
	if err != nil {
		return User{}, errors.Wrap(err, "querying admins")
	}
	if len(admins) == 0 {
		return User{}, ErrNoTeacher
	}
	// repositories order by created_at already; keep ties stable on ID
	sort.SliceStable(admins, func(i, j int) bool {
		if admins[i].CreatedAt.Equal(admins[j].CreatedAt) {
			return admins[i].ID < admins[j].ID
		}
		return admins[i].CreatedAt.Before(admins[j].CreatedAt)
	})
	return admins[0], nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if uu.FirstName != "" {
		usr.FirstName = uu.FirstName
	}
	if uu.LastName != "" {
		usr.LastName = uu.LastName
	}
	if uu.Email != "" {
		usr.Email = uu.Email
	}
	if uu.Serie != "" {
		usr.Serie = uu.Serie
	}
	if uu.Role != "" {
		usr.Role = uu.Role
	}
	if uu.Status != "" {
		usr.Status = uu.Status
	}
	if uu.Group != nil {
		usr.Group = *uu.Group
	}
	usr.UpdatedAt = NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// Activate moves a pending account to active and lets the student know.
func (svc *service) Activate(ctx context.Context, usr User) (User, error) {
	if usr.IsActive() {
		return usr, nil
	}
	usr.Status = StatusActive
	usr.UpdatedAt = NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Votre compte a été validé",
		TemplateName: "account_activated",
		TemplateData: map[string]interface{}{"Name": usr.FullName()},
	})
	return usr, nil
}

func (svc *service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	return svc.Update(ctx, usr, UpdateUser{
		FirstName: up.FirstName,
		LastName:  up.LastName,
		Email:     up.Email,
		Serie:     up.Serie,
	})
}

func (svc *service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := usr.SetPassword(cp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return errors.Wrap(err, "deleting users")
}

func (svc *service) Count(ctx context.Context, role string) (int, error) {
	cnt, err := svc.repo.CountUsers(ctx, role)
	return cnt, errors.Wrap(err, "counting users")
}

func (svc *service) MakeResetToken(usr User) (string, string, error) {
	token, err := svc.tokenGen.makeToken(usr)
	if err != nil {
		return "", "", errors.Wrap(err, "making token")
	}
	return EncodeUID(usr), token, nil
}

// resetRecipient returns the account a reset mail may be sent to. Pending accounts
// cannot log in yet and get ErrNotFound like unknown emails.
func (svc *service) resetRecipient(ctx context.Context, email string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if !usr.IsActive() {
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.resetRecipient(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	uid, token, err := svc.MakeResetToken(usr)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending password reset mail: %v", err), err, usr)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Réinitialisation du mot de passe",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.FullName(),
			"UID":   uid,
			"Token": token,
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "uid", Error: errInvalidValue})
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "uid", Error: errInvalidValue})
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: errInvalidValue})
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
