package ports

import (
	"context"
	"net/url"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/shopspring/decimal"
)

// OrderDescriptor is the snapshot of an order handed to the gateway and the
// risk scorer. Amounts are major units; adapters convert to minor units on
// the wire.
type OrderDescriptor struct {
	OrderNumber     string
	PaymentMethod   string
	Amount          decimal.Decimal
	Currency        string
	CustomerID      string
	Email           string
	BillingAddress  models.Address
	ShippingAddress models.Address
	OrderDesc       string
	UserData        string
}

// Callbacks are the shop URLs the gateway redirects or posts back to
type Callbacks struct {
	SuccessURL string
	FailureURL string
	NotifyURL  string
	BackURL    string
}

// RedirectOptions carry method-specific knobs for the outbound request
type RedirectOptions struct {
	// Caption is the merchant display text shown on the hosted payment page
	Caption string
	// FirstPayment marks the customer's first card payment for SCA exemption
	// decisions (credentials-on-file)
	FirstPayment bool
	// IssuerID selects the bank for redirect methods such as iDEAL
	IssuerID string
	// Capture requests MANUAL or AUTO capture on the gateway side
	Capture string
	// TxType overrides the gateway transaction type (e.g. "Order" for the
	// silent PREAUTH step)
	TxType string
	// Card data, silent mode only. Never persisted.
	CardBrand   string
	CardNumber  string
	CardExpiry  string
	CardCVC     string
	BrowserInfo map[string]string
}

// GatewayResponse is the decrypted answer of the payment gateway
type GatewayResponse struct {
	Status             models.ResponseStatus
	Code               string
	Description        string
	TransID            string
	PayID              string
	XID                string
	CardBrand          string
	CardExpiry         string
	PseudoCardNumber   string
	BillingAgreementID string
}

// RecurringAuthRequest re-authorizes a previously tokenized card
type RecurringAuthRequest struct {
	OrderNumber      string
	Amount           decimal.Decimal
	Currency         string
	TransID          string
	PayID            string
	PseudoCardNumber string
	CardBrand        string
	CardExpiry       string
}

// CaptureRequest books a previously reserved amount
type CaptureRequest struct {
	PayID    string
	TransID  string
	Amount   decimal.Decimal
	Currency string
}

// PaymentGateway is the external Computop paygate client. Implementations
// own transport, encryption and signing; callers only see decrypted values.
type PaymentGateway interface {
	// BuildRedirectParams computes the plaintext parameter set for a payment
	// attempt, including the request MAC. SignedRedirectURL and PostDirect
	// handle encryption; the plaintext set is what gets stored in the
	// payment session for later correlation and logging.
	BuildRedirectParams(desc OrderDescriptor, cb Callbacks, opts RedirectOptions) (map[string]string, error)

	// SignedRedirectURL turns wire parameters into the hosted-page URL
	SignedRedirectURL(params map[string]string) (string, error)

	// DecryptResponse decrypts and parses a success/failure/notify callback
	DecryptResponse(raw url.Values) (*GatewayResponse, error)

	// PostDirect posts wire parameters server-to-server (silent card mode)
	// and returns the raw HTML the gateway answers with.
	PostDirect(ctx context.Context, params map[string]string) (string, error)

	// AuthorizeRecurring performs a server-to-server AUTH referencing a
	// stored card or a prior preauthorization
	AuthorizeRecurring(ctx context.Context, req RecurringAuthRequest) (*GatewayResponse, error)

	// Capture books a reserved amount
	Capture(ctx context.Context, req CaptureRequest) (*GatewayResponse, error)

	// UpdateRefNr sets the shop order number as the gateway reference
	UpdateRefNr(ctx context.Context, payID, refNr string) error
}
