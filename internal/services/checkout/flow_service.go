package checkout

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
	pkgerrors "github.com/fatchip/computop-checkout/pkg/errors"
)

// FlowState is the lifecycle state of one checkout attempt
type FlowState string

const (
	StateInitiated       FlowState = "INITIATED"
	StatePendingExternal FlowState = "PENDING_EXTERNAL"
	StateSilentCapture   FlowState = "SILENT_CAPTURE"
	StateResolvedOK      FlowState = "RESOLVED_OK"
	StateResolvedFailed  FlowState = "RESOLVED_FAILED"
)

// Config carries the flow policy knobs
type Config struct {
	// CreditCardMode selects REDIRECT, IFRAME or SILENT for card payments.
	// Distinct from CreditCardCaption, which is only display text.
	CreditCardMode Mode

	// CreditCardCaption is the merchant text shown on the hosted page
	CreditCardCaption string

	// AutoCapture books the reserved amount right after a successful resolve
	AutoCapture bool
}

// ErrorMapper translates a gateway response code into a classified error.
// Wired to the paygate response-code table at startup.
type ErrorMapper func(code, description string) *pkgerrors.GatewayError

// CardData is shopper card input for the silent flow. Held in memory only.
type CardData struct {
	Brand  string
	Number string
	Expiry string
	CVC    string
}

// InitiateRequest starts one checkout attempt
type InitiateRequest struct {
	SessionID string
	Method    string
	Desc      ports.OrderDescriptor
	Callbacks ports.Callbacks
	IssuerID  string
	Card      CardData
}

// InitiateResult tells the handler where to send the shopper
type InitiateResult struct {
	State       FlowState
	RedirectURL string
	// Iframe is set when the redirect target should be embedded instead
	// of navigated to.
	Iframe bool
}

// Outcome is the terminal result of a checkout attempt
type Outcome struct {
	State       FlowState
	OrderNumber string
	TransID     string
	PayID       string
	// Failure is set when State is RESOLVED_FAILED
	Failure *pkgerrors.GatewayError
}

// Success reports whether the attempt resolved successfully
func (o *Outcome) Success() bool {
	return o.State == StateResolvedOK
}

// RecurringResult is the JSON-shaped answer of a recurring re-authorization
type RecurringResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	TransID string `json:"transId,omitempty"`
	PayID   string `json:"payId,omitempty"`
}

// Service drives the payment flow state machine: gateway initiation,
// redirect/iframe handoff, outcome resolution and recurring charges.
type Service struct {
	gateway  ports.PaymentGateway
	orders   ports.OrderStore
	sessions ports.SessionStore
	apiLog   ports.APILogStore
	methods  *MethodRegistry
	mapError ErrorMapper
	cfg      Config
	logger   ports.Logger
}

// NewService creates a new checkout flow service
func NewService(
	gateway ports.PaymentGateway,
	orders ports.OrderStore,
	sessions ports.SessionStore,
	apiLog ports.APILogStore,
	methods *MethodRegistry,
	mapError ErrorMapper,
	cfg Config,
	logger ports.Logger,
) *Service {
	return &Service{
		gateway:  gateway,
		orders:   orders,
		sessions: sessions,
		apiLog:   apiLog,
		methods:  methods,
		mapError: mapError,
		cfg:      cfg,
		logger:   logger,
	}
}

// InitiateGateway builds the outbound request for a payment attempt and
// persists the session context so the eventual callback can be correlated.
// For redirect and iframe methods the result carries the hosted-page URL;
// for the silent card mode it carries the target scraped from the gateway's
// answer to the server-to-server post.
func (s *Service) InitiateGateway(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	method, ok := s.methods.Lookup(req.Method)
	if !ok {
		return nil, pkgerrors.NewValidationError("method", fmt.Sprintf("unknown payment method %q", req.Method))
	}
	if !method.AvailableIn(req.Desc.ShippingAddress.CountryISO) {
		return nil, pkgerrors.NewValidationError("method",
			fmt.Sprintf("%s is not available for shipping country %s", method.Name, req.Desc.ShippingAddress.CountryISO))
	}
	if method.NeedsIssuer && req.IssuerID == "" {
		return nil, pkgerrors.NewValidationError("issuer", "issuer selection is required")
	}

	sctx, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sctx == nil {
		sctx = &models.PaymentSessionContext{
			SessionID: req.SessionID,
			CreatedAt: time.Now(),
		}
	}

	opts := ports.RedirectOptions{IssuerID: req.IssuerID, BrowserInfo: sctx.BrowserInfo}
	if method.Name == "creditcard" {
		opts.Caption = s.cfg.CreditCardCaption
		done, err := s.orders.InitialPaymentDone(ctx, req.Desc.CustomerID)
		if err != nil {
			s.logger.Warn("initial-payment flag lookup failed",
				ports.String("customer_id", req.Desc.CustomerID), ports.Err(err))
		}
		opts.FirstPayment = !done
	}

	silent := method.Mode == ModeSilent && s.cfg.CreditCardMode == ModeSilent
	if silent {
		// preauthorize with manual capture; the AUTH follows once the
		// shopper confirms the order
		opts.TxType = "Order"
		opts.Capture = "MANUAL"
		opts.CardBrand = req.Card.Brand
		opts.CardNumber = req.Card.Number
		opts.CardExpiry = req.Card.Expiry
		opts.CardCVC = req.Card.CVC
	}

	req.Desc.UserData = req.SessionID
	params, err := s.gateway.BuildRedirectParams(req.Desc, req.Callbacks, opts)
	if err != nil {
		return nil, fmt.Errorf("build redirect params: %w", err)
	}

	sctx.PaymentMethod = method.Name
	sctx.RedirectParams = sanitizeForSession(params)
	sctx.OrderNumber = req.Desc.OrderNumber
	sctx.Amount = req.Desc.Amount.String()
	sctx.Currency = req.Desc.Currency
	sctx.CustomerID = req.Desc.CustomerID
	sctx.BillingAddrID = req.Desc.BillingAddress.ID
	sctx.ShippingAddrID = req.Desc.ShippingAddress.ID
	sctx.Email = req.Desc.Email
	sctx.TransID = params["TransID"]
	sctx.IssuerID = req.IssuerID
	if err := s.sessions.Put(ctx, sctx); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	if silent {
		return s.initiateSilent(ctx, sctx, params)
	}

	redirectURL, err := s.gateway.SignedRedirectURL(params)
	if err != nil {
		return nil, fmt.Errorf("sign redirect url: %w", err)
	}
	s.logCall(ctx, "REDIRECT", sctx.PayID, sctx.TransID, sanitizeForSession(params), nil)

	return &InitiateResult{
		State:       StatePendingExternal,
		RedirectURL: redirectURL,
		Iframe:      method.Mode == ModeIframe,
	}, nil
}

// hrefPattern matches the self-redirect link in the gateway's silent answer
var hrefPattern = regexp.MustCompile(`<a\s+href=["']([^"']+)["']`)

// initiateSilent posts the card data server-to-server and scrapes the
// returned HTML for the follow-up target. A missing target is a failure.
func (s *Service) initiateSilent(ctx context.Context, sctx *models.PaymentSessionContext, params map[string]string) (*InitiateResult, error) {
	body, err := s.gateway.PostDirect(ctx, params)
	s.logCall(ctx, "PREAUTH", "", sctx.TransID, sanitizeForSession(params), map[string]string{"body_len": fmt.Sprintf("%d", len(body))})
	if err != nil {
		return nil, err
	}

	match := hrefPattern.FindStringSubmatch(body)
	if match == nil {
		s.logger.Error("silent-mode answer carries no redirect target",
			ports.String("trans_id", sctx.TransID))
		return nil, &pkgerrors.GatewayError{
			Message:  "silent-mode response had no redirect target",
			Category: pkgerrors.CategoryExternalCall,
		}
	}

	return &InitiateResult{
		State:       StateSilentCapture,
		RedirectURL: match[1],
	}, nil
}

// StoreBrowserInfo saves the client fingerprint collected before redirect
func (s *Service) StoreBrowserInfo(ctx context.Context, sessionID string, info map[string]string) error {
	sctx, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sctx == nil {
		sctx = &models.PaymentSessionContext{SessionID: sessionID, CreatedAt: time.Now()}
	}
	sctx.BrowserInfo = info
	return s.sessions.Put(ctx, sctx)
}

// StoreSilentAuthIDs records the PayID/TransID of a silent preauthorization
// so the confirm-time AUTH can reference them.
func (s *Service) StoreSilentAuthIDs(ctx context.Context, sessionID string, raw url.Values) error {
	resp, err := s.gateway.DecryptResponse(raw)
	if err != nil {
		return err
	}
	if !resp.Status.Approved() {
		return s.mapError(resp.Code, resp.Description)
	}

	sctx, err := s.sessions.Get(ctx, sessionID)
	if err != nil || sctx == nil {
		return fmt.Errorf("session %s not found for silent preauth", sessionID)
	}
	sctx.PayID = resp.PayID
	sctx.TransID = resp.TransID
	return s.sessions.Put(ctx, sctx)
}

// ResolveOutcome consumes a gateway callback (success, failure or notify)
// and settles the checkout attempt. The session is resumed from the id the
// gateway echoes back; a failed resume is logged and processing continues
// with whatever the response itself carries.
func (s *Service) ResolveOutcome(ctx context.Context, sessionID string, raw url.Values) (*Outcome, error) {
	sctx, err := s.sessions.Get(ctx, sessionID)
	if err != nil || sctx == nil {
		s.logger.Warn("could not resume payment session",
			ports.String("session_id", sessionID), ports.Err(err))
		sctx = &models.PaymentSessionContext{SessionID: sessionID}
	}

	resp, err := s.gateway.DecryptResponse(raw)
	if err != nil {
		s.logger.Error("response decryption failed",
			ports.String("session_id", sessionID), ports.Err(err))
		return s.failureOutcome(ctx, sctx, &pkgerrors.GatewayError{
			Message:        "payment response could not be validated",
			GatewayMessage: err.Error(),
			Category:       pkgerrors.CategoryExternalCall,
		}), nil
	}
	s.logCall(ctx, "NOTIFY", resp.PayID, resp.TransID, sctx.RedirectParams, responseFields(resp))

	if !resp.Status.Approved() {
		gwErr := s.mapError(resp.Code, resp.Description)
		if sctx.PaymentMethod == "creditcard" && sctx.CustomerID != "" {
			if err := s.orders.SetInitialPaymentDone(ctx, sctx.CustomerID, false); err != nil {
				s.logger.Warn("could not clear initial-payment flag",
					ports.String("customer_id", sctx.CustomerID), ports.Err(err))
			}
		}
		return s.failureOutcome(ctx, sctx, gwErr), nil
	}

	orderNumber, err := s.persistApproved(ctx, sctx, resp)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Clear(ctx, sctx.SessionID); err != nil {
		s.logger.Warn("could not clear payment session",
			ports.String("session_id", sctx.SessionID), ports.Err(err))
	}

	return &Outcome{
		State:       StateResolvedOK,
		OrderNumber: orderNumber,
		TransID:     resp.TransID,
		PayID:       resp.PayID,
	}, nil
}

// persistApproved writes the order and transaction record for a successful
// resolve, flips the first-payment flag and runs the post-resolve gateway
// bookkeeping (reference number, optional capture).
func (s *Service) persistApproved(ctx context.Context, sctx *models.PaymentSessionContext, resp *ports.GatewayResponse) (string, error) {
	orderNumber := sctx.OrderNumber
	if orderNumber == "" {
		desc, err := s.descriptorFromSession(sctx)
		if err != nil {
			return "", err
		}
		orderNumber, err = s.orders.CreateOrder(ctx, resp.TransID, resp.PayID, models.OrderStatusReserved, desc)
		if err != nil {
			return "", fmt.Errorf("create order: %w", err)
		}
	} else {
		if err := s.orders.UpdateOrderStatus(ctx, orderNumber, models.OrderStatusReserved); err != nil {
			return "", fmt.Errorf("mark order reserved: %w", err)
		}
	}

	rec := &models.TransactionRecord{
		ID:                 uuid.New().String(),
		OrderNumber:        orderNumber,
		TransID:            resp.TransID,
		PayID:              resp.PayID,
		XID:                resp.XID,
		Status:             resp.Status,
		CardBrand:          resp.CardBrand,
		CardExpiry:         resp.CardExpiry,
		PseudoCardNumber:   resp.PseudoCardNumber,
		BillingAgreementID: resp.BillingAgreementID,
	}
	if err := s.orders.PersistTransaction(ctx, rec); err != nil {
		return "", fmt.Errorf("persist transaction: %w", err)
	}

	if sctx.PaymentMethod == "creditcard" && sctx.CustomerID != "" {
		if err := s.orders.SetInitialPaymentDone(ctx, sctx.CustomerID, true); err != nil {
			s.logger.Warn("could not set initial-payment flag",
				ports.String("customer_id", sctx.CustomerID), ports.Err(err))
		}
	}

	// bookkeeping failures downgrade to log entries: the money is reserved,
	// the shopper must not land in the failure funnel over them
	if err := s.gateway.UpdateRefNr(ctx, resp.PayID, orderNumber); err != nil {
		s.logger.Warn("reference number update failed",
			ports.String("order_number", orderNumber), ports.Err(err))
	}
	if s.cfg.AutoCapture {
		amount, aerr := decimal.NewFromString(sctx.Amount)
		if aerr != nil {
			s.logger.Warn("capture skipped, session amount unreadable",
				ports.String("amount", sctx.Amount), ports.Err(aerr))
		} else {
			capResp, cerr := s.gateway.Capture(ctx, ports.CaptureRequest{
				PayID:    resp.PayID,
				TransID:  resp.TransID,
				Amount:   amount,
				Currency: sctx.Currency,
			})
			s.logCall(ctx, "CAPTURE", resp.PayID, resp.TransID, nil, responseFields(capResp))
			if cerr != nil || (capResp != nil && !capResp.Status.Approved()) {
				s.logger.Error("auto-capture failed",
					ports.String("order_number", orderNumber), ports.Err(cerr))
			}
		}
	}

	return orderNumber, nil
}

// CompleteSilent performs the confirm-time AUTH for a silent
// preauthorization, using the PayID/TransID stored by the post-form
// callback, and settles the attempt like any other resolve.
func (s *Service) CompleteSilent(ctx context.Context, sessionID string) (*Outcome, error) {
	sctx, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sctx == nil || sctx.PayID == "" {
		return nil, pkgerrors.NewValidationError("session", "no silent preauthorization on record")
	}

	amount, err := decimal.NewFromString(sctx.Amount)
	if err != nil {
		return nil, fmt.Errorf("session amount %q unreadable: %w", sctx.Amount, err)
	}

	resp, err := s.gateway.AuthorizeRecurring(ctx, ports.RecurringAuthRequest{
		OrderNumber: sctx.OrderNumber,
		Amount:      amount,
		Currency:    sctx.Currency,
		TransID:     sctx.TransID,
		PayID:       sctx.PayID,
	})
	s.logCall(ctx, "AUTH", sctx.PayID, sctx.TransID, nil, responseFields(resp))
	if err != nil {
		return s.failureOutcome(ctx, sctx, &pkgerrors.GatewayError{
			Message:        "silent authorization failed",
			GatewayMessage: err.Error(),
			Category:       pkgerrors.CategoryExternalCall,
		}), nil
	}
	if !resp.Status.Approved() {
		return s.failureOutcome(ctx, sctx, s.mapError(resp.Code, resp.Description)), nil
	}

	orderNumber, err := s.persistApproved(ctx, sctx, resp)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Clear(ctx, sctx.SessionID); err != nil {
		s.logger.Warn("could not clear payment session",
			ports.String("session_id", sctx.SessionID), ports.Err(err))
	}

	return &Outcome{
		State:       StateResolvedOK,
		OrderNumber: orderNumber,
		TransID:     resp.TransID,
		PayID:       resp.PayID,
	}, nil
}

// ResolveRecurring re-authorizes a previously tokenized card without shopper
// interaction. The stored pseudo card number may legitimately be absent; the
// call is attempted anyway and a decline maps to {success:false}.
func (s *Service) ResolveRecurring(ctx context.Context, orderNumber string, amount decimal.Decimal, currency string) (*RecurringResult, error) {
	last, err := s.orders.FindLastTransactionByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("find stored card reference: %w", err)
	}

	req := ports.RecurringAuthRequest{
		OrderNumber: orderNumber,
		Amount:      amount,
		Currency:    currency,
	}
	if last != nil {
		req.TransID = last.TransID
		req.PayID = last.PayID
		req.PseudoCardNumber = last.PseudoCardNumber
		req.CardBrand = last.CardBrand
		req.CardExpiry = last.CardExpiry
	}
	if req.TransID == "" {
		req.TransID = uuid.New().String()
	}

	resp, err := s.gateway.AuthorizeRecurring(ctx, req)
	s.logCall(ctx, "AUTH", req.PayID, req.TransID, nil, responseFields(resp))
	if err != nil {
		s.logger.Error("recurring authorization call failed",
			ports.String("order_number", orderNumber), ports.Err(err))
		return &RecurringResult{Success: false, Message: "gateway call failed"}, nil
	}

	if !resp.Status.Approved() {
		gwErr := s.mapError(resp.Code, resp.Description)
		return &RecurringResult{Success: false, Message: gwErr.UserMessage()}, nil
	}

	// recurring flows have no order-creation step: the record is keyed by
	// transaction id and updated in place
	rec := &models.TransactionRecord{
		ID:               uuid.New().String(),
		OrderNumber:      orderNumber,
		TransID:          resp.TransID,
		PayID:            resp.PayID,
		XID:              resp.XID,
		Status:           resp.Status,
		CardBrand:        resp.CardBrand,
		CardExpiry:       resp.CardExpiry,
		PseudoCardNumber: resp.PseudoCardNumber,
	}
	if err := s.orders.PersistTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist recurring transaction: %w", err)
	}

	return &RecurringResult{
		Success: true,
		TransID: resp.TransID,
		PayID:   resp.PayID,
	}, nil
}

// failureOutcome stores the sanitized error in the session for the failure
// funnel and builds the terminal failure signal.
func (s *Service) failureOutcome(ctx context.Context, sctx *models.PaymentSessionContext, gwErr *pkgerrors.GatewayError) *Outcome {
	sctx.ErrorCode = gwErr.Code
	sctx.ErrorMessage = gwErr.UserMessage()
	if sctx.SessionID != "" {
		if err := s.sessions.Put(ctx, sctx); err != nil {
			s.logger.Warn("could not store failure info in session",
				ports.String("session_id", sctx.SessionID), ports.Err(err))
		}
	}
	return &Outcome{
		State:       StateResolvedFailed,
		OrderNumber: sctx.OrderNumber,
		Failure:     gwErr,
	}
}

func (s *Service) descriptorFromSession(sctx *models.PaymentSessionContext) (ports.OrderDescriptor, error) {
	amount, err := decimal.NewFromString(sctx.Amount)
	if err != nil {
		return ports.OrderDescriptor{}, fmt.Errorf("session amount %q unreadable: %w", sctx.Amount, err)
	}
	return ports.OrderDescriptor{
		PaymentMethod: sctx.PaymentMethod,
		Amount:        amount,
		Currency:      sctx.Currency,
		CustomerID:    sctx.CustomerID,
		Email:         sctx.Email,
		BillingAddress: models.Address{
			ID:   sctx.BillingAddrID,
			Type: models.AddressBilling,
		},
		ShippingAddress: models.Address{
			ID:   sctx.ShippingAddrID,
			Type: models.AddressShipping,
		},
	}, nil
}

func (s *Service) logCall(ctx context.Context, requestType, payID, transID string, request, response map[string]string) {
	entry := &models.APICallLog{
		RequestType: requestType,
		PayID:       payID,
		TransID:     transID,
		Request:     request,
		Response:    response,
	}
	if err := s.apiLog.LogAPICall(ctx, entry); err != nil {
		s.logger.Warn("api call log write failed",
			ports.String("request_type", requestType), ports.Err(err))
	}
}

// sanitizeForSession strips card data and the MAC before a parameter set is
// stored or logged.
func sanitizeForSession(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		switch strings.ToUpper(k) {
		case "CCNR", "CCCVC", "MAC":
			continue
		}
		out[k] = v
	}
	return out
}

func responseFields(resp *ports.GatewayResponse) map[string]string {
	if resp == nil {
		return nil
	}
	return map[string]string{
		"Status":      string(resp.Status),
		"Code":        resp.Code,
		"Description": resp.Description,
		"TransID":     resp.TransID,
		"PayID":       resp.PayID,
		"XID":         resp.XID,
	}
}
