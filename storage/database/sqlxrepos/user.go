// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/user"
)

var userOrderingFields = map[string]bool{
	"first_name": true,
	"last_name":  true,
	"email":      true,
	"role":       true,
	"status":     true,
	"serie":      true,
	"created_at": true,
	"last_login": true,
}

type userRow struct {
	ID           string    `db:"id"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	Status       string    `db:"status"`
	Serie        string    `db:"serie"`
	Group        int       `db:"grp"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

type paymentRow struct {
	UserID string `db:"user_id"`
	Month  string `db:"month"`
	Paid   bool   `db:"paid"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		FirstName:    usr.FirstName,
		LastName:     usr.LastName,
		Email:        usr.Email,
		Role:         usr.Role,
		Status:       usr.Status,
		Serie:        usr.Serie,
		Group:        usr.Group,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
		Role:         r.Role,
		Status:       r.Status,
		Serie:        r.Serie,
		Group:        r.Group,
		Payments:     map[string]bool{},
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// withPayments loads the ledger of users.
func (repo *userRepository) withPayments(ctx context.Context, rows []userRow) ([]user.User, error) {
	users := make([]user.User, 0, len(rows))
	if len(rows) == 0 {
		return users, nil
	}
	idx := make(map[string]int, len(rows))
	ids := make([]string, 0, len(rows))
	for i, r := range rows {
		users = append(users, r.user())
		idx[r.ID] = i
		ids = append(ids, r.ID)
	}

	var payments []paymentRow
	q := `SELECT user_id, month, paid FROM payment WHERE user_id = ANY($1)`
	if err := repo.db.SelectContext(ctx, &payments, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	for _, p := range payments {
		users[idx[p.UserID]].Payments[p.Month] = p.Paid
	}
	return users, nil
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User) error {
	q := `SELECT EXISTS (SELECT 1 FROM "user" WHERE email = $1 AND NOT (id = ANY($2)))`
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, q, email, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	q := `INSERT INTO "user" (id, first_name, last_name, email, role, status, serie, grp, password_hash, created_at, updated_at, last_login)
		VALUES (:id, :first_name, :last_name, :email, :role, :status, :serie, :grp, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	if usr.Payments == nil {
		usr.Payments = map[string]bool{}
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		// users with FirstName, LastName or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, "(first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?)")
			args = append(args, val, val, val)
		}
		if filter.Role != "" {
			where = append(where, "role = ?")
			args = append(args, filter.Role)
		}
		if filter.Status != "" {
			where = append(where, "status = ?")
			args = append(args, filter.Status)
		}
		if filter.Serie != "" {
			where = append(where, "serie = ?")
			args = append(args, filter.Serie)
		}
	}

	q := `SELECT * FROM "user"`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if userOrderingFields[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, "id ASC")
	q += " ORDER BY " + strings.Join(orderList, ", ")

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.withPayments(ctx, rows)
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		row userRow
		err error
	)
	switch {
	case filter.ID != "":
		if _, err = uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		err = repo.db.GetContext(ctx, &row, `SELECT * FROM "user" WHERE id = $1`, filter.ID)
	case filter.Email != "":
		err = repo.db.GetContext(ctx, &row, `SELECT * FROM "user" WHERE email = $1`, filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}

	users, err := repo.withPayments(ctx, []userRow{row})
	if err != nil {
		return user.User{}, err
	}
	return users[0], nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE "user" SET first_name = :first_name, last_name = :last_name, email = :email, role = :role,
		status = :status, serie = :serie, grp = :grp, password_hash = :password_hash, updated_at = :updated_at,
		last_login = :last_login WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string) (int, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	return int(cnt), errors.Wrap(err, "counting deleted users")
}

func (repo *userRepository) CountUsers(ctx context.Context, role string) (int, error) {
	q := `SELECT COUNT(*) FROM "user"`
	var args []interface{}
	if role != "" {
		q += " WHERE role = $1"
		args = append(args, role)
	}
	var cnt int
	if err := repo.db.GetContext(ctx, &cnt, q, args...); err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("counting %q users", role))
	}
	return cnt, nil
}
