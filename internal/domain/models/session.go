package models

import "time"

// PaymentSessionContext is the ephemeral state of one checkout attempt.
// It is created when the gateway redirect is prepared and consumed by the
// success/failure/notify handlers. Because the gateway may bounce the
// shopper's browser back through a different session, the context is stored
// under SessionID and recovered from the id echoed back in the response.
type PaymentSessionContext struct {
	SessionID      string
	PaymentMethod  string
	RedirectParams map[string]string
	OrderNumber    string
	Amount         string
	Currency       string
	CustomerID     string
	BillingAddrID  int64
	ShippingAddrID int64
	Email          string

	// silent card mode carries the PREAUTH ids to the later AUTH call
	PayID   string
	TransID string

	// issuer selection for bank-redirect methods
	IssuerID string

	// browser fingerprint collected before redirect
	BrowserInfo map[string]string

	// transient error shown by the failure funnel
	ErrorCode    string
	ErrorMessage string

	CreatedAt time.Time
}
