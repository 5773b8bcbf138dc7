package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
)

// OrderRepository implements ports.OrderStore on pgx
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateOrder persists an order for a resolved payment attempt. The order
// number comes from the orders sequence so it is generated in one round trip.
func (r *OrderRepository) CreateOrder(ctx context.Context, transID, payID string, status models.OrderStatus, desc ports.OrderDescriptor) (string, error) {
	amount := pgtype.Numeric{}
	if err := amount.Scan(desc.Amount.String()); err != nil {
		return "", fmt.Errorf("convert amount: %w", err)
	}

	var orderNumber string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO orders (amount, currency, customer_id, payment_method, status,
		                    billing_address_id, shipping_address_id, transaction_id, pay_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING order_number`,
		amount, desc.Currency, desc.CustomerID, desc.PaymentMethod, string(status),
		desc.BillingAddress.ID, desc.ShippingAddress.ID, transID, payID,
	).Scan(&orderNumber)
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	return orderNumber, nil
}

// FindOrderByTransID resolves an order through its transaction record
func (r *OrderRepository) FindOrderByTransID(ctx context.Context, transID string) (*models.Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT o.order_number, o.amount, o.currency, o.customer_id, o.payment_method,
		       o.status, o.billing_address_id, o.shipping_address_id, o.created_at, o.updated_at
		FROM orders o
		JOIN transactions t ON t.order_number = o.order_number
		WHERE t.trans_id = $1`,
		transID,
	)
	return scanOrder(row)
}

// UpdateOrderStatus sets the payment status of an order
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderNumber string, status models.OrderStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE order_number = $1`,
		orderNumber, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s not found", orderNumber)
	}
	return nil
}

// PersistTransaction creates the record, or updates it in place when the
// TransID already exists (recurring follow-ups reuse the transaction id).
func (r *OrderRepository) PersistTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	recID, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("invalid transaction record id: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO transactions (id, order_number, trans_id, pay_id, xid, status,
		                          card_brand, card_expiry, pseudo_card_number, billing_agreement_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (trans_id) DO UPDATE SET
			pay_id = EXCLUDED.pay_id,
			xid = EXCLUDED.xid,
			status = EXCLUDED.status,
			card_brand = EXCLUDED.card_brand,
			card_expiry = EXCLUDED.card_expiry,
			pseudo_card_number = EXCLUDED.pseudo_card_number,
			billing_agreement_id = EXCLUDED.billing_agreement_id,
			updated_at = now()`,
		recID, rec.OrderNumber, rec.TransID, rec.PayID, rec.XID, string(rec.Status),
		nullText(rec.CardBrand), nullText(rec.CardExpiry), nullText(rec.PseudoCardNumber),
		nullText(rec.BillingAgreementID),
	)
	if err != nil {
		return fmt.Errorf("persist transaction: %w", err)
	}
	return nil
}

// FindTransactionByTransID retrieves a transaction record by its gateway id
func (r *OrderRepository) FindTransactionByTransID(ctx context.Context, transID string) (*models.TransactionRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, order_number, trans_id, pay_id, xid, status,
		       card_brand, card_expiry, pseudo_card_number, billing_agreement_id, created_at, updated_at
		FROM transactions
		WHERE trans_id = $1`,
		transID,
	)
	return scanTransaction(row)
}

// FindLastTransactionByOrderNumber returns the newest record for an order
func (r *OrderRepository) FindLastTransactionByOrderNumber(ctx context.Context, orderNumber string) (*models.TransactionRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, order_number, trans_id, pay_id, xid, status,
		       card_brand, card_expiry, pseudo_card_number, billing_agreement_id, created_at, updated_at
		FROM transactions
		WHERE order_number = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		orderNumber,
	)
	return scanTransaction(row)
}

// InitialPaymentDone reads the credentials-on-file flag; a customer without
// a row simply has not paid by card yet.
func (r *OrderRepository) InitialPaymentDone(ctx context.Context, customerID string) (bool, error) {
	var done bool
	err := r.pool.QueryRow(ctx,
		`SELECT initial_payment_done FROM customer_flags WHERE customer_id = $1`,
		customerID,
	).Scan(&done)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read initial payment flag: %w", err)
	}
	return done, nil
}

// SetInitialPaymentDone writes the credentials-on-file flag
func (r *OrderRepository) SetInitialPaymentDone(ctx context.Context, customerID string, done bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO customer_flags (customer_id, initial_payment_done)
		VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE SET initial_payment_done = EXCLUDED.initial_payment_done, updated_at = now()`,
		customerID, done,
	)
	if err != nil {
		return fmt.Errorf("set initial payment flag: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o        models.Order
		amount   pgtype.Numeric
		status   string
		created  time.Time
		updated  time.Time
	)
	err := row.Scan(&o.OrderNumber, &amount, &o.Currency, &o.CustomerID, &o.PaymentMethod,
		&status, &o.BillingAddrID, &o.ShippingAddrID, &created, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	dec, err := numericToDecimal(amount)
	if err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	o.Amount = dec
	o.Status = models.OrderStatus(status)
	o.CreatedAt = created
	o.UpdatedAt = updated
	return &o, nil
}

func scanTransaction(row pgx.Row) (*models.TransactionRecord, error) {
	var (
		rec       models.TransactionRecord
		recID     uuid.UUID
		status    string
		brand     pgtype.Text
		expiry    pgtype.Text
		pcn       pgtype.Text
		agreement pgtype.Text
	)
	err := row.Scan(&recID, &rec.OrderNumber, &rec.TransID, &rec.PayID, &rec.XID, &status,
		&brand, &expiry, &pcn, &agreement, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	rec.ID = recID.String()
	rec.Status = models.ResponseStatus(status)
	rec.CardBrand = brand.String
	rec.CardExpiry = expiry.String
	rec.PseudoCardNumber = pcn.String
	rec.BillingAgreementID = agreement.String
	return &rec, nil
}
