package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the shop-side payment status of an order
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusReserved OrderStatus = "reserved"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusReview   OrderStatus = "review_necessary"
	OrderStatusCanceled OrderStatus = "canceled"
)

// ResponseStatus classifies the gateway's answer for a payment attempt
type ResponseStatus string

const (
	ResponseOK         ResponseStatus = "OK"
	ResponseAuthorized ResponseStatus = "AUTHORIZED"
	ResponseFailed     ResponseStatus = "FAILED"
)

// Approved reports whether the status terminates the attempt successfully
func (s ResponseStatus) Approved() bool {
	return s == ResponseOK || s == ResponseAuthorized
}

// Order represents a shop purchase whose payment lifecycle this service drives
type Order struct {
	OrderNumber     string
	Amount          decimal.Decimal
	Currency        string
	CustomerID      string
	PaymentMethod   string
	Status          OrderStatus
	BillingAddrID   int64
	ShippingAddrID  int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransactionRecord is one gateway interaction for an order.
// Recurring follow-ups reuse the same TransID and update the record in place.
type TransactionRecord struct {
	ID                 string
	OrderNumber        string
	TransID            string
	PayID              string
	XID                string
	Status             ResponseStatus
	CardBrand          string
	CardExpiry         string
	PseudoCardNumber   string
	BillingAgreementID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
