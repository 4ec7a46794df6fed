package model

import (
	"database/sql"
	"time"
)

const (
	OrderTypeDownload = "download"
	OrderTypeVIP      = "vip"
)

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
)

// Order is the slice of a payment order the download flow reads. Orders are
// created and settled by the payment side.
type Order struct {
	ID               string           `db:"id"`
	UserID           string           `db:"user_id"`
	OrderNo          string           `db:"order_no"`
	Type             string           `db:"type"`
	Amount           int              `db:"amount"`
	Status           string           `db:"status"`
	DownloadRecordID sql.Null[string] `db:"download_record_id"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}

func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}
