package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core/payment"
)

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) TogglePayment(ctx context.Context, userID, month string) (bool, error) {
	q := `INSERT INTO payment (user_id, month, paid, updated_at) VALUES ($1, $2, true, now())
		ON CONFLICT (user_id, month) DO UPDATE SET paid = NOT payment.paid, updated_at = now()
		RETURNING paid`
	var paid bool
	if err := repo.db.GetContext(ctx, &paid, q, userID, month); err != nil {
		return false, errors.Wrap(err, "toggling payment")
	}
	return paid, nil
}

func (repo *paymentRepository) SetPayment(ctx context.Context, userID, month string, paid bool) error {
	q := `INSERT INTO payment (user_id, month, paid, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, month) DO UPDATE SET paid = EXCLUDED.paid, updated_at = now()`
	_, err := repo.db.ExecContext(ctx, q, userID, month, paid)
	return errors.Wrap(err, "setting payment")
}
