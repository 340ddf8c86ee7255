package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/user"
)

type userRepository struct {
	db       *userTable
	messages *messageTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user, messages: db.message}
}

func copyUser(u *user.User) user.User {
	usr := *u
	usr.Payments = make(map[string]bool, len(u.Payments))
	for k, v := range u.Payments {
		usr.Payments[k] = v
	}
	return usr
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, copyUser(u))
	}
	return users
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers []user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.table {
		if usr.Email == email && !isExcluded(*usr, excludedUsers) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = uuid.New().String()
	if usr.Payments == nil {
		usr.Payments = map[string]bool{}
	}
	repo.db.table[usr.ID] = &usr
	return copyUser(&usr), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.table))
	for _, usr := range repo.query() {
		if filter != nil {
			if filter.Search != "" {
				s := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(usr.FirstName), s) &&
					!strings.Contains(strings.ToLower(usr.LastName), s) &&
					!strings.Contains(strings.ToLower(usr.Email), s) {
					continue
				}
			}
			if filter.Role != "" && usr.Role != filter.Role {
				continue
			}
			if filter.Status != "" && usr.Status != filter.Status {
				continue
			}
			if filter.Serie != "" && usr.Serie != filter.Serie {
				continue
			}
		}
		users = append(users, usr)
	}
	sortUsers(users, ordering)
	return users, nil
}

func userField(u user.User, field string) string {
	switch field {
	case "first_name":
		return strings.ToLower(u.FirstName)
	case "last_name":
		return strings.ToLower(u.LastName)
	case "email":
		return u.Email
	case "role":
		return u.Role
	case "status":
		return u.Status
	case "serie":
		return u.Serie
	case "created_at":
		return u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000")
	case "last_login":
		return u.LastLogin.UTC().Format("2006-01-02T15:04:05.000000000")
	}
	return u.ID
}

// sortUsers orders by ordering then by ID, like the SQL repositories do.
func sortUsers(users []user.User, ordering []core.DBOrdering) {
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			a, b := userField(users[i], ord.Field), userField(users[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return users[i].ID < users[j].ID
	})
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return copyUser(usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, usr := range repo.db.table {
			if usr.Email == filter.Email {
				return copyUser(usr), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origUsr, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// payments are only written through the payment repository
	usr.Payments = origUsr.Payments
	repo.db.table[usr.ID] = &usr
	return copyUser(&usr), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			deleted[id] = true
		}
	}

	// messages go with their author or recipient
	repo.messages.mutex.Lock()
	defer repo.messages.mutex.Unlock()
	for id, m := range repo.messages.table {
		if deleted[m.AuthorID] || deleted[m.RecipientID] {
			delete(repo.messages.table, id)
		}
	}
	return len(deleted), nil
}

func (repo *userRepository) CountUsers(_ context.Context, role string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if role == "" {
		return len(repo.db.table), nil
	}
	var cnt int
	for _, usr := range repo.db.table {
		if usr.Role == role {
			cnt++
		}
	}
	return cnt, nil
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, u := range excludedUsers {
		if u.ID == usr.ID {
			return true
		}
	}
	return false
}
