package ports

import (
	"context"

	"github.com/fatchip/computop-checkout/internal/domain/models"
)

// OrderStore persists orders, their transaction records and the per-customer
// first-payment flag used for credentials-on-file decisions.
type OrderStore interface {
	// CreateOrder persists a new order for a resolved payment attempt and
	// returns the generated order number.
	CreateOrder(ctx context.Context, transID, payID string, status models.OrderStatus, desc OrderDescriptor) (string, error)

	FindOrderByTransID(ctx context.Context, transID string) (*models.Order, error)

	UpdateOrderStatus(ctx context.Context, orderNumber string, status models.OrderStatus) error

	// PersistTransaction creates the record, or updates it in place when a
	// record with the same TransID already exists (recurring follow-ups).
	PersistTransaction(ctx context.Context, rec *models.TransactionRecord) error

	FindTransactionByTransID(ctx context.Context, transID string) (*models.TransactionRecord, error)

	// FindLastTransactionByOrderNumber returns the newest record for an
	// order, used to look up the stored card reference for recurring flows.
	FindLastTransactionByOrderNumber(ctx context.Context, orderNumber string) (*models.TransactionRecord, error)

	// InitialPaymentDone reads the per-customer flag that records whether a
	// first card payment has succeeded before.
	InitialPaymentDone(ctx context.Context, customerID string) (bool, error)

	SetInitialPaymentDone(ctx context.Context, customerID string, done bool) error
}

// APILogStore persists one row per gateway interaction for audit purposes
type APILogStore interface {
	LogAPICall(ctx context.Context, entry *models.APICallLog) error
}
