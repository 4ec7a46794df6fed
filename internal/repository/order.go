package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tikuhub/qbank/internal/model"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository reads and links download orders. Orders are created and
// settled by the payment side.
type OrderRepository interface {
	ByOrderNo(ctx context.Context, userID, orderNo string) (*model.Order, error)
	LinkDownloadRecord(ctx context.Context, orderID, recordID string, now time.Time) error
	LinkDownloadRecordTx(ctx context.Context, tx *sqlx.Tx, orderID, recordID string, now time.Time) error
}

type orderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) ByOrderNo(ctx context.Context, userID, orderNo string) (*model.Order, error) {
	order := &model.Order{}
	query := `SELECT * FROM orders WHERE order_no = $1 AND user_id = $2`

	err := r.db.GetContext(ctx, order, query, orderNo, userID)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *orderRepository) LinkDownloadRecord(ctx context.Context, orderID, recordID string, now time.Time) error {
	return linkOrder(ctx, r.db, orderID, recordID, now)
}

func (r *orderRepository) LinkDownloadRecordTx(ctx context.Context, tx *sqlx.Tx, orderID, recordID string, now time.Time) error {
	return linkOrder(ctx, tx, orderID, recordID, now)
}

func linkOrder(ctx context.Context, db sqlx.ExecerContext, orderID, recordID string, now time.Time) error {
	query := `UPDATE orders SET download_record_id = $1, updated_at = $2 WHERE id = $3`

	result, err := db.ExecContext(ctx, query, recordID, now, orderID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}

	return nil
}
