package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
	checkoutsvc "github.com/fatchip/computop-checkout/internal/services/checkout"
	pkgerrors "github.com/fatchip/computop-checkout/pkg/errors"
	"github.com/fatchip/computop-checkout/pkg/observability"
)

// URLs are the shop pages the flow redirects to
type URLs struct {
	// FinishURL is the checkout-finish page shown after a successful payment
	FinishURL string
	// FailureURL is the choose-payment-method-again page
	FailureURL string
	// ConfirmURL is the order confirm page of the silent card flow
	ConfirmURL string
	// PublicBaseURL is this service's external base, used for callbacks
	PublicBaseURL string
}

// Handler exposes the per-payment-method action surface: gateway, iframe,
// success, failure, notify, post-form, post-form-success, confirm,
// recurring and browserinfo.
type Handler struct {
	flow   *checkoutsvc.Service
	urls   URLs
	logger *zap.Logger
}

// NewHandler creates the checkout handler
func NewHandler(flow *checkoutsvc.Service, urls URLs, logger *zap.Logger) *Handler {
	return &Handler{
		flow:   flow,
		urls:   urls,
		logger: logger,
	}
}

// Routes mounts the action surface under /{method}/
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{method}", func(r chi.Router) {
		r.With(observability.Middleware("checkout_gateway")).Post("/gateway", h.Gateway)
		r.With(observability.Middleware("checkout_iframe")).Get("/iframe", h.Iframe)
		r.With(observability.Middleware("checkout_success")).Get("/success", h.Success)
		r.With(observability.Middleware("checkout_failure")).Get("/failure", h.Failure)
		r.With(observability.Middleware("checkout_notify")).HandleFunc("/notify", h.Notify)
		r.With(observability.Middleware("checkout_post_form")).Post("/post-form", h.PostForm)
		r.With(observability.Middleware("checkout_post_form_success")).Get("/post-form-success", h.PostFormSuccess)
		r.With(observability.Middleware("checkout_confirm")).Post("/confirm", h.Confirm)
		r.With(observability.Middleware("checkout_recurring")).Post("/recurring", h.Recurring)
		r.With(observability.Middleware("checkout_browserinfo")).Post("/browserinfo", h.BrowserInfo)
	})
	return r
}

type addressPayload struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Zip        string `json:"zip"`
	CountryISO string `json:"country"`
}

func (p addressPayload) toModel(t models.AddressType) models.Address {
	return models.Address{
		ID:         p.ID,
		Type:       t,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Street:     p.Street,
		City:       p.City,
		Zip:        p.Zip,
		CountryISO: p.CountryISO,
	}
}

type gatewayRequest struct {
	OrderNumber string         `json:"orderNumber,omitempty"`
	Amount      string         `json:"amount"`
	Currency    string         `json:"currency"`
	CustomerID  string         `json:"customerId"`
	Email       string         `json:"email"`
	IssuerID    string         `json:"issuerId,omitempty"`
	OrderDesc   string         `json:"orderDesc,omitempty"`
	Billing     addressPayload `json:"billingAddress"`
	Shipping    addressPayload `json:"shippingAddress"`
}

type gatewayResponse struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
	Iframe      bool   `json:"iframe"`
}

// Gateway initiates a payment attempt and answers with the redirect target.
// POST /checkout/{method}/gateway
func (h *Handler) Gateway(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")

	var req gatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "amount is not a decimal number")
		return
	}

	sessionID := r.URL.Query().Get("sid")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	result, err := h.flow.InitiateGateway(r.Context(), checkoutsvc.InitiateRequest{
		SessionID: sessionID,
		Method:    method,
		IssuerID:  req.IssuerID,
		Desc: ports.OrderDescriptor{
			OrderNumber:     req.OrderNumber,
			PaymentMethod:   method,
			Amount:          amount,
			Currency:        req.Currency,
			CustomerID:      req.CustomerID,
			Email:           req.Email,
			OrderDesc:       req.OrderDesc,
			BillingAddress:  req.Billing.toModel(models.AddressBilling),
			ShippingAddress: req.Shipping.toModel(models.AddressShipping),
		},
		Callbacks: h.callbacks(method, sessionID),
	})
	if err != nil {
		h.handleFlowError(w, r, err)
		return
	}

	mode := string(checkoutsvc.ModeRedirect)
	if result.Iframe {
		mode = string(checkoutsvc.ModeIframe)
	}
	observability.RecordCheckoutAttempt(method, mode)

	target := result.RedirectURL
	if result.Iframe {
		target = h.iframeURL(method, sessionID, result.RedirectURL)
	}
	h.writeJSON(w, http.StatusOK, gatewayResponse{
		SessionID:   sessionID,
		RedirectURL: target,
		Iframe:      result.Iframe,
	})
}

// Iframe renders the hosted payment page inside the shop's page chrome.
// GET /checkout/{method}/iframe?sid=...&target=...
func (h *Handler) Iframe(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme != "https" {
		h.writeError(w, http.StatusBadRequest, "invalid iframe target")
		return
	}
	h.renderIframe(w, parsed.String())
}

// Success consumes the browser redirect after a completed payment.
// GET /checkout/{method}/success?sid=...&Len=...&Data=...
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	h.resolveAndRedirect(w, r)
}

// Failure consumes the browser redirect after a failed or aborted payment.
// All user-visible failures funnel through here.
// GET /checkout/{method}/failure?sid=...&Len=...&Data=...
func (h *Handler) Failure(w http.ResponseWriter, r *http.Request) {
	h.resolveAndRedirect(w, r)
}

func (h *Handler) resolveAndRedirect(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	sessionID := r.URL.Query().Get("sid")

	outcome, err := h.flow.ResolveOutcome(r.Context(), sessionID, r.URL.Query())
	if err != nil {
		h.logger.Error("outcome resolution failed",
			zap.String("method", method),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		h.redirectFailure(w, r, method, "", "payment could not be completed")
		return
	}

	h.recordOutcome(method, outcome)
	if outcome.Success() {
		http.Redirect(w, r, h.urls.FinishURL+"?order="+url.QueryEscape(outcome.OrderNumber), http.StatusFound)
		return
	}
	h.redirectFailure(w, r, method, outcome.Failure.Code, outcome.Failure.UserMessage())
}

// Notify consumes the asynchronous server-to-server confirmation. The
// paygate expects a 200 regardless of the business outcome, otherwise it
// keeps retrying.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	sessionID := r.URL.Query().Get("sid")

	outcome, err := h.flow.ResolveOutcome(r.Context(), sessionID, r.URL.Query())
	if err != nil {
		h.logger.Error("notify resolution failed",
			zap.String("method", method),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	} else {
		h.recordOutcome(method, outcome)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// PostForm posts captured card data server-to-server (silent mode) and
// redirects the browser to the target scraped from the paygate's answer.
// POST /checkout/creditcard/post-form
func (h *Handler) PostForm(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	amount, err := decimal.NewFromString(r.PostFormValue("amount"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "amount is not a decimal number")
		return
	}

	sessionID := r.PostFormValue("sid")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	result, err := h.flow.InitiateGateway(r.Context(), checkoutsvc.InitiateRequest{
		SessionID: sessionID,
		Method:    method,
		Desc: ports.OrderDescriptor{
			PaymentMethod: method,
			Amount:        amount,
			Currency:      r.PostFormValue("currency"),
			CustomerID:    r.PostFormValue("customerId"),
			Email:         r.PostFormValue("email"),
			BillingAddress: models.Address{
				Type:       models.AddressBilling,
				Street:     r.PostFormValue("street"),
				City:       r.PostFormValue("city"),
				Zip:        r.PostFormValue("zip"),
				CountryISO: r.PostFormValue("country"),
			},
			ShippingAddress: models.Address{
				Type:       models.AddressShipping,
				CountryISO: r.PostFormValue("country"),
			},
		},
		Callbacks: h.callbacks(method, sessionID),
		Card: checkoutsvc.CardData{
			Brand:  r.PostFormValue("ccBrand"),
			Number: r.PostFormValue("ccNumber"),
			Expiry: r.PostFormValue("ccExpiry"),
			CVC:    r.PostFormValue("ccCvc"),
		},
	})
	if err != nil {
		h.handleFlowError(w, r, err)
		return
	}

	observability.RecordCheckoutAttempt(method, string(checkoutsvc.ModeSilent))
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// PostFormSuccess stores the PayID/TransID of the silent preauthorization
// and forwards the shopper to the order confirm page.
// GET /checkout/creditcard/post-form-success?sid=...&Len=...&Data=...
func (h *Handler) PostFormSuccess(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	sessionID := r.URL.Query().Get("sid")

	if err := h.flow.StoreSilentAuthIDs(r.Context(), sessionID, r.URL.Query()); err != nil {
		h.logger.Error("silent preauth callback failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		var gwErr *pkgerrors.GatewayError
		if errors.As(err, &gwErr) {
			h.redirectFailure(w, r, method, gwErr.Code, gwErr.UserMessage())
			return
		}
		h.redirectFailure(w, r, method, "", "payment could not be completed")
		return
	}

	http.Redirect(w, r, h.urls.ConfirmURL, http.StatusFound)
}

// Confirm performs the confirm-time AUTH of the silent flow and settles the
// attempt. POST /checkout/creditcard/confirm?sid=...
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	sessionID := r.URL.Query().Get("sid")

	outcome, err := h.flow.CompleteSilent(r.Context(), sessionID)
	if err != nil {
		h.handleFlowError(w, r, err)
		return
	}

	h.recordOutcome(method, outcome)
	if outcome.Success() {
		http.Redirect(w, r, h.urls.FinishURL+"?order="+url.QueryEscape(outcome.OrderNumber), http.StatusFound)
		return
	}
	h.redirectFailure(w, r, method, outcome.Failure.Code, outcome.Failure.UserMessage())
}

type recurringRequest struct {
	OrderNumber string `json:"orderNumber"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

// Recurring re-authorizes a stored card. POST /checkout/creditcard/recurring
func (h *Handler) Recurring(w http.ResponseWriter, r *http.Request) {
	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, checkoutsvc.RecurringResult{Success: false, Message: "malformed request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, checkoutsvc.RecurringResult{Success: false, Message: "amount is not a decimal number"})
		return
	}

	result, err := h.flow.ResolveRecurring(r.Context(), req.OrderNumber, amount, req.Currency)
	if err != nil {
		h.logger.Error("recurring resolution failed",
			zap.String("order_number", req.OrderNumber),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusInternalServerError, checkoutsvc.RecurringResult{Success: false, Message: "internal error"})
		return
	}

	if result.Success {
		observability.RecordRecurringAuth("success")
	} else {
		observability.RecordRecurringAuth("declined")
	}
	h.writeJSON(w, http.StatusOK, result)
}

// BrowserInfo stores the client fingerprint collected before redirect.
// POST /checkout/{method}/browserinfo?sid=...
func (h *Handler) BrowserInfo(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sid")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "sid is required")
		return
	}

	var info map[string]string
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.flow.StoreBrowserInfo(r.Context(), sessionID, info); err != nil {
		h.logger.Error("browser info store failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// callbacks builds the success/failure/notify URLs the paygate calls back,
// carrying the session id for correlation across the redirect round trip.
func (h *Handler) callbacks(method, sessionID string) ports.Callbacks {
	base := h.urls.PublicBaseURL + "/checkout/" + url.PathEscape(method)
	sid := "?sid=" + url.QueryEscape(sessionID)
	return ports.Callbacks{
		SuccessURL: base + "/success" + sid,
		FailureURL: base + "/failure" + sid,
		NotifyURL:  base + "/notify" + sid,
		BackURL:    h.urls.FailureURL,
	}
}

func (h *Handler) iframeURL(method, sessionID, target string) string {
	return fmt.Sprintf("%s/checkout/%s/iframe?sid=%s&target=%s",
		h.urls.PublicBaseURL, url.PathEscape(method),
		url.QueryEscape(sessionID), url.QueryEscape(target))
}

func (h *Handler) redirectFailure(w http.ResponseWriter, r *http.Request, method, code, message string) {
	q := url.Values{}
	q.Set("method", method)
	if code != "" {
		q.Set("code", code)
	}
	q.Set("message", message)
	http.Redirect(w, r, h.urls.FailureURL+"?"+q.Encode(), http.StatusFound)
}

func (h *Handler) recordOutcome(method string, outcome *checkoutsvc.Outcome) {
	code := ""
	if outcome.Failure != nil {
		code = outcome.Failure.Code
	}
	observability.RecordCheckoutOutcome(method, string(outcome.State), code, "", 0)
}

func (h *Handler) handleFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *pkgerrors.ValidationError
	if errors.As(err, &vErr) {
		h.writeError(w, http.StatusBadRequest, vErr.Message)
		return
	}
	var gwErr *pkgerrors.GatewayError
	if errors.As(err, &gwErr) {
		method := chi.URLParam(r, "method")
		h.redirectFailure(w, r, method, gwErr.Code, gwErr.UserMessage())
		return
	}
	h.logger.Error("checkout request failed", zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
