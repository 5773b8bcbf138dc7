package risk

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
	risksvc "github.com/fatchip/computop-checkout/internal/services/risk"
	"github.com/fatchip/computop-checkout/pkg/observability"
)

// Handler exposes the risk surface: address change notifications, explicit
// address updates and rule evaluation for the checkout.
type Handler struct {
	risk   *risksvc.Service
	logger *zap.Logger
}

func NewHandler(risk *risksvc.Service, logger *zap.Logger) *Handler {
	return &Handler{risk: risk, logger: logger}
}

// Routes mounts the risk endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(observability.Middleware("risk_address_updated")).Post("/address-updated", h.AddressUpdated)
	r.With(observability.Middleware("risk_address")).Put("/address", h.UpdateAddress)
	r.With(observability.Middleware("risk_evaluate")).Post("/evaluate", h.Evaluate)
	return r
}

type addressPayload struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	CustomerID string `json:"customerId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Zip        string `json:"zip"`
	CountryISO string `json:"country"`
}

func (p addressPayload) toModel() models.Address {
	t := models.AddressBilling
	if p.Type == string(models.AddressShipping) {
		t = models.AddressShipping
	}
	return models.Address{
		ID:         p.ID,
		Type:       t,
		CustomerID: p.CustomerID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Street:     p.Street,
		City:       p.City,
		Zip:        p.Zip,
		CountryISO: p.CountryISO,
	}
}

type addressUpdatedRequest struct {
	Old addressPayload `json:"old"`
	New addressPayload `json:"new"`
}

// AddressUpdated invalidates the cached verdict when a risk-relevant field
// of an address changed. POST /risk/address-updated
func (h *Handler) AddressUpdated(w http.ResponseWriter, r *http.Request) {
	var req addressUpdatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.risk.OnAddressUpdated(r.Context(), req.Old.toModel(), req.New.toModel()); err != nil {
		h.logger.Error("address update handling failed",
			zap.Int64("address_id", req.New.ID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type updateAddressRequest struct {
	Address          addressPayload `json:"address"`
	SkipInvalidation bool           `json:"skipInvalidation"`
}

// UpdateAddress persists an address, optionally keeping the cached verdict.
// PUT /risk/address
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req updateAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.risk.UpdateAddress(r.Context(), req.Address.toModel(), req.SkipInvalidation); err != nil {
		h.logger.Error("address update failed",
			zap.Int64("address_id", req.Address.ID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type evaluateRequest struct {
	Rule        string `json:"rule"`
	Threshold   string `json:"threshold"`
	AddressID   int64  `json:"addressId"`
	AddressType string `json:"addressType"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	CustomerID  string `json:"customerId"`
	Email       string `json:"email"`
}

type evaluateResponse struct {
	Decision string `json:"decision"`
}

// Evaluate runs a traffic-light rule against the address's verdict,
// refreshing it first if it is stale. POST /risk/evaluate
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	amount := decimal.Zero
	if req.Amount != "" {
		var err error
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "amount is not a decimal number")
			return
		}
	}

	addrType := models.AddressBilling
	if req.AddressType == string(models.AddressShipping) {
		addrType = models.AddressShipping
	}

	decision, err := h.risk.EvaluateRule(r.Context(), req.Rule, req.Threshold, req.AddressID, addrType, ports.OrderDescriptor{
		Amount:     amount,
		Currency:   req.Currency,
		CustomerID: req.CustomerID,
		Email:      req.Email,
	})
	if err != nil {
		h.logger.Error("rule evaluation failed",
			zap.String("rule", req.Rule),
			zap.Int64("address_id", req.AddressID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	observability.RecordRiskCheck(decision.String())
	h.writeJSON(w, http.StatusOK, evaluateResponse{Decision: decision.String()})
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
