package checkout_test

import (
	"context"
	"net/url"

	"github.com/stretchr/testify/mock"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
)

// MockPaymentGateway mocks the paygate client
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) BuildRedirectParams(desc ports.OrderDescriptor, cb ports.Callbacks, opts ports.RedirectOptions) (map[string]string, error) {
	args := m.Called(desc, cb, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockPaymentGateway) SignedRedirectURL(params map[string]string) (string, error) {
	args := m.Called(params)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) DecryptResponse(raw url.Values) (*ports.GatewayResponse, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.GatewayResponse), args.Error(1)
}

func (m *MockPaymentGateway) PostDirect(ctx context.Context, params map[string]string) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) AuthorizeRecurring(ctx context.Context, req ports.RecurringAuthRequest) (*ports.GatewayResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.GatewayResponse), args.Error(1)
}

func (m *MockPaymentGateway) Capture(ctx context.Context, req ports.CaptureRequest) (*ports.GatewayResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.GatewayResponse), args.Error(1)
}

func (m *MockPaymentGateway) UpdateRefNr(ctx context.Context, payID, refNr string) error {
	args := m.Called(ctx, payID, refNr)
	return args.Error(0)
}

// MockOrderStore mocks the order store
type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) CreateOrder(ctx context.Context, transID, payID string, status models.OrderStatus, desc ports.OrderDescriptor) (string, error) {
	args := m.Called(ctx, transID, payID, status, desc)
	return args.String(0), args.Error(1)
}

func (m *MockOrderStore) FindOrderByTransID(ctx context.Context, transID string) (*models.Order, error) {
	args := m.Called(ctx, transID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) UpdateOrderStatus(ctx context.Context, orderNumber string, status models.OrderStatus) error {
	args := m.Called(ctx, orderNumber, status)
	return args.Error(0)
}

func (m *MockOrderStore) PersistTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockOrderStore) FindTransactionByTransID(ctx context.Context, transID string) (*models.TransactionRecord, error) {
	args := m.Called(ctx, transID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransactionRecord), args.Error(1)
}

func (m *MockOrderStore) FindLastTransactionByOrderNumber(ctx context.Context, orderNumber string) (*models.TransactionRecord, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransactionRecord), args.Error(1)
}

func (m *MockOrderStore) InitialPaymentDone(ctx context.Context, customerID string) (bool, error) {
	args := m.Called(ctx, customerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderStore) SetInitialPaymentDone(ctx context.Context, customerID string, done bool) error {
	args := m.Called(ctx, customerID, done)
	return args.Error(0)
}

// MockSessionStore mocks the session store with an in-memory map so the
// redirect round trip can be exercised without Redis.
type MockSessionStore struct {
	Sessions map[string]*models.PaymentSessionContext
	Flags    map[int64]bool
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		Sessions: make(map[string]*models.PaymentSessionContext),
		Flags:    make(map[int64]bool),
	}
}

func (m *MockSessionStore) Put(ctx context.Context, sctx *models.PaymentSessionContext) error {
	copied := *sctx
	m.Sessions[sctx.SessionID] = &copied
	return nil
}

func (m *MockSessionStore) Get(ctx context.Context, sessionID string) (*models.PaymentSessionContext, error) {
	sctx, ok := m.Sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *sctx
	return &copied, nil
}

func (m *MockSessionStore) Clear(ctx context.Context, sessionID string) error {
	delete(m.Sessions, sessionID)
	return nil
}

func (m *MockSessionStore) SetSuppressInvalidation(ctx context.Context, addressID int64) error {
	m.Flags[addressID] = true
	return nil
}

func (m *MockSessionStore) ConsumeSuppressInvalidation(ctx context.Context, addressID int64) (bool, error) {
	set := m.Flags[addressID]
	delete(m.Flags, addressID)
	return set, nil
}

// MockAPILogStore records API log entries in memory
type MockAPILogStore struct {
	Entries []*models.APICallLog
}

func (m *MockAPILogStore) LogAPICall(ctx context.Context, entry *models.APICallLog) error {
	m.Entries = append(m.Entries, entry)
	return nil
}

// nopLogger satisfies ports.Logger without output
type nopLogger struct{}

func (nopLogger) Info(msg string, fields ...ports.Field)  {}
func (nopLogger) Error(msg string, fields ...ports.Field) {}
func (nopLogger) Warn(msg string, fields ...ports.Field)  {}
func (nopLogger) Debug(msg string, fields ...ports.Field) {}
