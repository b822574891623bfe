package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertLineItem(ctx context.Context, line LineItem) error
	ReplaceLineItems(ctx context.Context, orderID int64, lines []LineItem) error
	UpdateOrderFields(ctx context.Context, po PurchaseOrder) error
	UpdateStatus(ctx context.Context, id int64, from, to Status, updatedAt time.Time) error
	AppendTransition(ctx context.Context, rec TransitionRecord) error
	SetTracking(ctx context.Context, orderID int64, info TrackingInfo, updatedAt time.Time) error
	SetActualDelivery(ctx context.Context, orderID int64, at time.Time) error
	DeleteOrder(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction. Status guards
// are re-checked inside the transaction (conditional UPDATE/DELETE), so a
// client holding a stale read cannot append a duplicate transition or
// delete an order that already left draft.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `id, vendor_id, title, description, priority, status, total_amount,
expected_delivery, actual_delivery, shipping_address,
tracking_number, tracking_carrier, tracking_estimated_delivery, tracking_status, tracking_actual_delivery,
created_at, updated_at`

// GetOrder returns the order aggregate: header, line items in insertion
// order, and the full approval history.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id)
	po, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	if po.LineItems, err = r.loadLines(ctx, id); err != nil {
		return PurchaseOrder{}, err
	}
	if po.ApprovalHistory, err = r.loadTransitions(ctx, id); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ListOrders returns orders matching filters with their aggregates loaded.
func (r *Repository) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM purchase_orders WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Status != "" {
		argCount++
		clause := ` AND status=$` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, string(filters.Status))
	}
	if filters.VendorID > 0 {
		argCount++
		clause := ` AND vendor_id=$` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.VendorID)
	}
	if filters.Search != "" {
		argCount++
		clause := ` AND (title ILIKE $` + strconv.Itoa(argCount) + ` OR description ILIKE $` + strconv.Itoa(argCount) + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range orders {
		if orders[i].LineItems, err = r.loadLines(ctx, orders[i].ID); err != nil {
			return nil, 0, err
		}
		if orders[i].ApprovalHistory, err = r.loadTransitions(ctx, orders[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

func (r *Repository) loadLines(ctx context.Context, orderID int64) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, description, quantity, unit_price, amount
FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LineItem
	for rows.Next() {
		var line LineItem
		if err := rows.Scan(&line.ID, &line.OrderID, &line.Description, &line.Quantity, &line.UnitPrice, &line.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *Repository) loadTransitions(ctx context.Context, orderID int64) ([]TransitionRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, from_status, to_status, approver, at, note
FROM purchase_order_transitions WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var from, to string
		if err := rows.Scan(&rec.ID, &rec.OrderID, &from, &to, &rec.Approver, &rec.At, &rec.Notes); err != nil {
			return nil, err
		}
		rec.From = Status(from)
		rec.To = Status(to)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (tx *txRepo) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(vendor_id, title, description, priority, status, total_amount, expected_delivery, shipping_address, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		po.VendorID, po.Title, po.Description, string(po.Priority), string(po.Status), po.TotalAmount,
		po.ExpectedDelivery, po.ShippingAddress, po.CreatedAt, po.UpdatedAt).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertLineItem(ctx context.Context, line LineItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO purchase_order_lines (order_id, description, quantity, unit_price, amount)
VALUES ($1,$2,$3,$4,$5)`, line.OrderID, line.Description, line.Quantity, line.UnitPrice, line.Amount)
	return err
}

func (tx *txRepo) ReplaceLineItems(ctx context.Context, orderID int64, lines []LineItem) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	for _, line := range lines {
		line.OrderID = orderID
		if err := tx.InsertLineItem(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txRepo) UpdateOrderFields(ctx context.Context, po PurchaseOrder) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders
SET vendor_id=$1, title=$2, description=$3, priority=$4, total_amount=$5, expected_delivery=$6, shipping_address=$7, updated_at=$8
WHERE id=$9`,
		po.VendorID, po.Title, po.Description, string(po.Priority), po.TotalAmount,
		po.ExpectedDelivery, po.ShippingAddress, po.UpdatedAt, po.ID)
	return err
}

// UpdateStatus moves the order from one status to another. The expected
// source status is part of the WHERE clause: a concurrent transition that
// already committed leaves zero rows matched and the move is rejected.
func (tx *txRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, updatedAt time.Time) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(to), updatedAt, id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func (tx *txRepo) AppendTransition(ctx context.Context, rec TransitionRecord) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO purchase_order_transitions (order_id, from_status, to_status, approver, at, note)
VALUES ($1,$2,$3,$4,$5,$6)`, rec.OrderID, string(rec.From), string(rec.To), rec.Approver, rec.At, rec.Notes)
	return err
}

func (tx *txRepo) SetTracking(ctx context.Context, orderID int64, info TrackingInfo, updatedAt time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders
SET tracking_number=$1, tracking_carrier=$2, tracking_estimated_delivery=$3, tracking_status=$4, tracking_actual_delivery=$5, updated_at=$6
WHERE id=$7`, info.TrackingNumber, info.Carrier, info.EstimatedDelivery, info.Status, info.ActualDelivery, updatedAt, orderID)
	return err
}

func (tx *txRepo) SetActualDelivery(ctx context.Context, orderID int64, at time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders
SET actual_delivery=$1, tracking_status=CASE WHEN tracking_number IS NOT NULL THEN $2 ELSE tracking_status END,
tracking_actual_delivery=CASE WHEN tracking_number IS NOT NULL THEN $1 ELSE tracking_actual_delivery END,
updated_at=$1 WHERE id=$3`, at, TrackingDelivered, orderID)
	return err
}

// DeleteOrder removes a draft order. The row is locked and the draft
// check repeated inside the transaction so an order that just entered the
// approval pipeline keeps its audit trail even if the caller read it
// while still draft.
func (tx *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	var status string
	err := tx.tx.QueryRow(ctx, `SELECT status FROM purchase_orders WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if Status(status) != StatusDraft {
		return fmt.Errorf("%w: cannot delete %s order", ErrInvalidState, status)
	}
	if _, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_transitions WHERE order_id=$1`, id); err != nil {
		return err
	}
	_, err = tx.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1`, id)
	return err
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var priority, status string
	var trackingNumber, trackingCarrier, trackingStatus *string
	var trackingEstimated, trackingActual *time.Time
	err := row.Scan(&po.ID, &po.VendorID, &po.Title, &po.Description, &priority, &status, &po.TotalAmount,
		&po.ExpectedDelivery, &po.ActualDelivery, &po.ShippingAddress,
		&trackingNumber, &trackingCarrier, &trackingEstimated, &trackingStatus, &trackingActual,
		&po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Priority = Priority(priority)
	po.Status = Status(status)
	if trackingNumber != nil {
		info := TrackingInfo{TrackingNumber: *trackingNumber, ActualDelivery: trackingActual}
		if trackingCarrier != nil {
			info.Carrier = *trackingCarrier
		}
		if trackingEstimated != nil {
			info.EstimatedDelivery = *trackingEstimated
		}
		if trackingStatus != nil {
			info.Status = *trackingStatus
		}
		po.TrackingInfo = &info
	}
	return po, nil
}

func sortOrder(sortBy, sortDir string) string {
	column := "id"
	switch sortBy {
	case "expected_delivery", "total_amount", "updated_at", "priority", "status":
		column = sortBy
	}
	if sortDir == "desc" {
		return column + " DESC"
	}
	return column + " ASC"
}
