package inmemdb

import (
	"context"

	"github.com/trezcool/foundi/core/payment"
	"github.com/trezcool/foundi/core/user"
)

type paymentRepository struct {
	db *userTable
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db.user}
}

func (repo *paymentRepository) TogglePayment(_ context.Context, userID, month string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.table[userID]
	if !ok {
		return false, user.ErrNotFound
	}
	if usr.Payments == nil {
		usr.Payments = map[string]bool{}
	}
	usr.Payments[month] = !usr.Payments[month]
	return usr.Payments[month], nil
}

func (repo *paymentRepository) SetPayment(_ context.Context, userID, month string, paid bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.table[userID]
	if !ok {
		return user.ErrNotFound
	}
	if usr.Payments == nil {
		usr.Payments = map[string]bool{}
	}
	usr.Payments[month] = paid
	return nil
}
