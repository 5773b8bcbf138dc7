package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
	checkoutsvc "github.com/fatchip/computop-checkout/internal/services/checkout"
	pkgerrors "github.com/fatchip/computop-checkout/pkg/errors"
)

// stubGateway implements ports.PaymentGateway with overridable behavior
type stubGateway struct {
	buildParams func(desc ports.OrderDescriptor, cb ports.Callbacks, opts ports.RedirectOptions) (map[string]string, error)
	decrypt     func(raw url.Values) (*ports.GatewayResponse, error)
	authorize   func(req ports.RecurringAuthRequest) (*ports.GatewayResponse, error)
}

func (g *stubGateway) BuildRedirectParams(desc ports.OrderDescriptor, cb ports.Callbacks, opts ports.RedirectOptions) (map[string]string, error) {
	if g.buildParams != nil {
		return g.buildParams(desc, cb, opts)
	}
	return map[string]string{"TransID": "T-1", "MerchantID": "shop"}, nil
}

func (g *stubGateway) SignedRedirectURL(params map[string]string) (string, error) {
	return "https://www.computop-paygate.com/payssl.aspx?MerchantID=shop&Data=abc&Len=42", nil
}

func (g *stubGateway) DecryptResponse(raw url.Values) (*ports.GatewayResponse, error) {
	if g.decrypt != nil {
		return g.decrypt(raw)
	}
	return &ports.GatewayResponse{Status: models.ResponseOK, TransID: "T-1", PayID: "P-1"}, nil
}

func (g *stubGateway) PostDirect(ctx context.Context, params map[string]string) (string, error) {
	return `<a href="https://www.computop-paygate.com/cb?Data=x">continue</a>`, nil
}

func (g *stubGateway) AuthorizeRecurring(ctx context.Context, req ports.RecurringAuthRequest) (*ports.GatewayResponse, error) {
	if g.authorize != nil {
		return g.authorize(req)
	}
	return &ports.GatewayResponse{Status: models.ResponseAuthorized, TransID: req.TransID, PayID: "P-R"}, nil
}

func (g *stubGateway) Capture(ctx context.Context, req ports.CaptureRequest) (*ports.GatewayResponse, error) {
	return &ports.GatewayResponse{Status: models.ResponseOK}, nil
}

func (g *stubGateway) UpdateRefNr(ctx context.Context, payID, refNr string) error {
	return nil
}

// memOrders is an in-memory ports.OrderStore
type memOrders struct {
	nextOrderNumber string
	transactions    map[string]*models.TransactionRecord
	lastByOrder     map[string]*models.TransactionRecord
	flags           map[string]bool
}

func newMemOrders() *memOrders {
	return &memOrders{
		nextOrderNumber: "20011",
		transactions:    map[string]*models.TransactionRecord{},
		lastByOrder:     map[string]*models.TransactionRecord{},
		flags:           map[string]bool{},
	}
}

func (o *memOrders) CreateOrder(ctx context.Context, transID, payID string, status models.OrderStatus, desc ports.OrderDescriptor) (string, error) {
	return o.nextOrderNumber, nil
}

func (o *memOrders) FindOrderByTransID(ctx context.Context, transID string) (*models.Order, error) {
	return nil, nil
}

func (o *memOrders) UpdateOrderStatus(ctx context.Context, orderNumber string, status models.OrderStatus) error {
	return nil
}

func (o *memOrders) PersistTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	o.transactions[rec.TransID] = rec
	o.lastByOrder[rec.OrderNumber] = rec
	return nil
}

func (o *memOrders) FindTransactionByTransID(ctx context.Context, transID string) (*models.TransactionRecord, error) {
	return o.transactions[transID], nil
}

func (o *memOrders) FindLastTransactionByOrderNumber(ctx context.Context, orderNumber string) (*models.TransactionRecord, error) {
	return o.lastByOrder[orderNumber], nil
}

func (o *memOrders) InitialPaymentDone(ctx context.Context, customerID string) (bool, error) {
	return o.flags[customerID], nil
}

func (o *memOrders) SetInitialPaymentDone(ctx context.Context, customerID string, done bool) error {
	o.flags[customerID] = done
	return nil
}

// memSessions is an in-memory ports.SessionStore
type memSessions struct {
	sessions map[string]*models.PaymentSessionContext
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*models.PaymentSessionContext{}}
}

func (s *memSessions) Put(ctx context.Context, sctx *models.PaymentSessionContext) error {
	cp := *sctx
	s.sessions[sctx.SessionID] = &cp
	return nil
}

func (s *memSessions) Get(ctx context.Context, sessionID string) (*models.PaymentSessionContext, error) {
	sctx, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *sctx
	return &cp, nil
}

func (s *memSessions) Clear(ctx context.Context, sessionID string) error {
	delete(s.sessions, sessionID)
	return nil
}

func (s *memSessions) SetSuppressInvalidation(ctx context.Context, addressID int64) error {
	return nil
}

func (s *memSessions) ConsumeSuppressInvalidation(ctx context.Context, addressID int64) (bool, error) {
	return false, nil
}

type nopAPILog struct{}

func (nopAPILog) LogAPICall(ctx context.Context, entry *models.APICallLog) error { return nil }

type nopLogger struct{}

func (nopLogger) Info(msg string, fields ...ports.Field)  {}
func (nopLogger) Error(msg string, fields ...ports.Field) {}
func (nopLogger) Warn(msg string, fields ...ports.Field)  {}
func (nopLogger) Debug(msg string, fields ...ports.Field) {}

func testErrorMapper(code, description string) *pkgerrors.GatewayError {
	return &pkgerrors.GatewayError{
		Code:           code,
		Message:        "payment was declined",
		GatewayMessage: description,
		Category:       pkgerrors.CategoryDeclined,
	}
}

type fixture struct {
	handler  *Handler
	gateway  *stubGateway
	orders   *memOrders
	sessions *memSessions
}

func newFixture(t *testing.T, mode checkoutsvc.Mode) *fixture {
	gateway := &stubGateway{}
	orders := newMemOrders()
	sessions := newMemSessions()

	flow := checkoutsvc.NewService(
		gateway, orders, sessions, nopAPILog{},
		checkoutsvc.DefaultMethods(mode),
		testErrorMapper,
		checkoutsvc.Config{CreditCardMode: mode, CreditCardCaption: "Example Shop"},
		nopLogger{},
	)
	handler := NewHandler(flow, URLs{
		FinishURL:     "https://shop.example.com/checkout/finish",
		FailureURL:    "https://shop.example.com/checkout/payment",
		ConfirmURL:    "https://shop.example.com/checkout/confirm",
		PublicBaseURL: "https://plugin.example.com",
	}, zaptest.NewLogger(t))

	return &fixture{handler: handler, gateway: gateway, orders: orders, sessions: sessions}
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := http.NewServeMux()
	r.Handle("/checkout/", http.StripPrefix("/checkout", f.handler.Routes()))
	r.ServeHTTP(w, req)
	return w
}

func gatewayBody(t *testing.T) *strings.Reader {
	body, err := json.Marshal(map[string]interface{}{
		"amount":     "49.99",
		"currency":   "EUR",
		"customerId": "cust-1",
		"email":      "shopper@example.com",
		"billingAddress": map[string]interface{}{
			"id": 7, "street": "Musterweg 1", "city": "Berlin", "zip": "10115", "country": "DE",
		},
		"shippingAddress": map[string]interface{}{
			"id": 8, "street": "Musterweg 1", "city": "Berlin", "zip": "10115", "country": "DE",
		},
	})
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

func TestGateway_RedirectMethod(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal/gateway", gatewayBody(t))
	w := f.serve(req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp gatewayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.False(t, resp.Iframe)
	assert.Contains(t, resp.RedirectURL, "payssl.aspx")

	sctx, err := f.sessions.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sctx)
	assert.Equal(t, "paypal", sctx.PaymentMethod)
}

func TestGateway_IframeCreditCard(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeIframe)

	req := httptest.NewRequest(http.MethodPost, "/checkout/creditcard/gateway", gatewayBody(t))
	w := f.serve(req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp gatewayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Iframe)
	assert.Contains(t, resp.RedirectURL, "/checkout/creditcard/iframe?sid=")
	assert.Contains(t, resp.RedirectURL, "target=")
}

func TestGateway_CallbacksCarrySessionID(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)

	var captured ports.Callbacks
	f.gateway.buildParams = func(desc ports.OrderDescriptor, cb ports.Callbacks, opts ports.RedirectOptions) (map[string]string, error) {
		captured = cb
		return map[string]string{"TransID": "T-1"}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal/gateway", gatewayBody(t))
	w := f.serve(req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp gatewayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, captured.SuccessURL, "/checkout/paypal/success?sid="+resp.SessionID)
	assert.Contains(t, captured.FailureURL, "/checkout/paypal/failure?sid="+resp.SessionID)
	assert.Contains(t, captured.NotifyURL, "/checkout/paypal/notify?sid="+resp.SessionID)
}

func TestGateway_MalformedAmount(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal/gateway",
		strings.NewReader(`{"amount":"not-a-number","currency":"EUR"}`))
	w := f.serve(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateway_CountryRestriction(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)

	// iDEAL is NL only; the fixture ships to DE
	body := strings.NewReader(`{"amount":"49.99","currency":"EUR","customerId":"cust-1","issuerId":"INGBNL2A","shippingAddress":{"country":"DE"}}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout/ideal/gateway", body)
	w := f.serve(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not available")
}

func TestIframe_RendersTarget(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeIframe)

	target := url.QueryEscape("https://www.computop-paygate.com/payssl.aspx?Data=abc")
	req := httptest.NewRequest(http.MethodGet, "/checkout/creditcard/iframe?sid=s-1&target="+target, nil)
	w := f.serve(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `<iframe src="https://www.computop-paygate.com/payssl.aspx?Data=abc"`)
}

func TestIframe_RejectsNonHTTPSTarget(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeIframe)

	req := httptest.NewRequest(http.MethodGet, "/checkout/creditcard/iframe?target="+url.QueryEscape("javascript:alert(1)"), nil)
	w := f.serve(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func seedSession(f *fixture, sessionID string) {
	f.sessions.Put(context.Background(), &models.PaymentSessionContext{
		SessionID:     sessionID,
		PaymentMethod: "creditcard",
		Amount:        "49.99",
		Currency:      "EUR",
		CustomerID:    "cust-1",
		TransID:       "T-1",
	})
}

func TestSuccess_RedirectsToFinishPage(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)
	seedSession(f, "s-1")

	req := httptest.NewRequest(http.MethodGet, "/checkout/creditcard/success?sid=s-1&Len=42&Data=abc", nil)
	w := f.serve(req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example.com/checkout/finish?order=20011", w.Header().Get("Location"))
}

func TestFailure_FunnelsWithCodeAndMessage(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)
	seedSession(f, "s-1")
	f.gateway.decrypt = func(raw url.Values) (*ports.GatewayResponse, error) {
		return &ports.GatewayResponse{
			Status:      models.ResponseFailed,
			Code:        "21000100",
			Description: "card declined",
		}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/checkout/creditcard/failure?sid=s-1&Len=42&Data=abc", nil)
	w := f.serve(req)

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/checkout/payment", loc.Scheme+"://"+loc.Host+loc.Path)
	assert.Equal(t, "21000100", loc.Query().Get("code"))
	assert.Equal(t, "payment was declined", loc.Query().Get("message"))
	// the raw gateway description never reaches the shopper
	assert.NotContains(t, w.Header().Get("Location"), "card+declined")
}

func TestNotify_AlwaysAnswersOK(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)
	f.gateway.decrypt = func(raw url.Values) (*ports.GatewayResponse, error) {
		return &ports.GatewayResponse{
			Status: models.ResponseFailed,
			Code:   "21000100",
		}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout/creditcard/notify?sid=missing&Len=42&Data=abc", nil)
	w := f.serve(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestPostForm_RedirectsToScrapedTarget(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeSilent)

	form := url.Values{}
	form.Set("amount", "49.99")
	form.Set("currency", "EUR")
	form.Set("customerId", "cust-1")
	form.Set("country", "DE")
	form.Set("ccBrand", "VISA")
	form.Set("ccNumber", "4111111111111111")
	form.Set("ccExpiry", "203012")
	form.Set("ccCvc", "123")

	req := httptest.NewRequest(http.MethodPost, "/checkout/creditcard/post-form", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := f.serve(req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://www.computop-paygate.com/cb?Data=x", w.Header().Get("Location"))
}

func TestPostFormSuccess_RedirectsToConfirm(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeSilent)
	seedSession(f, "s-1")
	f.gateway.decrypt = func(raw url.Values) (*ports.GatewayResponse, error) {
		return &ports.GatewayResponse{Status: models.ResponseOK, TransID: "T-2", PayID: "P-2"}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/checkout/creditcard/post-form-success?sid=s-1&Len=42&Data=abc", nil)
	w := f.serve(req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example.com/checkout/confirm", w.Header().Get("Location"))

	sctx, err := f.sessions.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, sctx)
	assert.Equal(t, "P-2", sctx.PayID)
	assert.Equal(t, "T-2", sctx.TransID)
}

func TestConfirm_CompletesSilentFlow(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeSilent)
	f.sessions.Put(context.Background(), &models.PaymentSessionContext{
		SessionID:     "s-1",
		PaymentMethod: "creditcard",
		Amount:        "49.99",
		Currency:      "EUR",
		CustomerID:    "cust-1",
		TransID:       "T-2",
		PayID:         "P-2",
	})

	req := httptest.NewRequest(http.MethodPost, "/checkout/creditcard/confirm?sid=s-1", nil)
	w := f.serve(req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example.com/checkout/finish?order=20011", w.Header().Get("Location"))
}

func TestRecurring_ReturnsResultJSON(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)
	f.orders.lastByOrder["20011"] = &models.TransactionRecord{
		OrderNumber:      "20011",
		TransID:          "T-1",
		PayID:            "P-1",
		PseudoCardNumber: "pcn-123",
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout/creditcard/recurring",
		strings.NewReader(`{"orderNumber":"20011","amount":"19.99","currency":"EUR"}`))
	w := f.serve(req)

	require.Equal(t, http.StatusOK, w.Code)
	var result checkoutsvc.RecurringResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "T-1", result.TransID)
}

func TestRecurring_DeclinedKeepsUserSafeMessage(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)
	f.gateway.authorize = func(req ports.RecurringAuthRequest) (*ports.GatewayResponse, error) {
		return &ports.GatewayResponse{Status: models.ResponseFailed, Code: "21000100", Description: "insufficient funds"}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout/creditcard/recurring",
		strings.NewReader(`{"orderNumber":"20011","amount":"19.99","currency":"EUR"}`))
	w := f.serve(req)

	require.Equal(t, http.StatusOK, w.Code)
	var result checkoutsvc.RecurringResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "payment was declined", result.Message)
}

func TestBrowserInfo_StoresFingerprint(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)

	req := httptest.NewRequest(http.MethodPost, "/checkout/creditcard/browserinfo?sid=s-1",
		strings.NewReader(`{"javaEnabled":"false","screenWidth":"1920","timezone":"-120"}`))
	w := f.serve(req)

	require.Equal(t, http.StatusNoContent, w.Code)
	sctx, err := f.sessions.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, sctx)
	assert.Equal(t, "1920", sctx.BrowserInfo["screenWidth"])
}

func TestBrowserInfo_RequiresSessionID(t *testing.T) {
	f := newFixture(t, checkoutsvc.ModeRedirect)

	req := httptest.NewRequest(http.MethodPost, "/checkout/creditcard/browserinfo",
		strings.NewReader(`{"screenWidth":"1920"}`))
	w := f.serve(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
