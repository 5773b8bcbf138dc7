package models

import "time"

// AddressType distinguishes billing from shipping addresses
type AddressType string

const (
	AddressBilling  AddressType = "billing"
	AddressShipping AddressType = "shipping"
)

// RiskVerdictStatus is the cached outcome of a CRIF risk check.
// RiskStatusInvalid is the legacy sentinel the gateway emits for unusable results.
type RiskVerdictStatus string

const (
	RiskStatusOK      RiskVerdictStatus = "OK"
	RiskStatusFailed  RiskVerdictStatus = "FAILED"
	RiskStatusInvalid RiskVerdictStatus = "0"
)

// RiskCacheEntry holds the last CRIF verdict for an address.
// A zero CheckedAt means no verdict has ever been stored.
type RiskCacheEntry struct {
	Status      RiskVerdictStatus
	Code        string
	Description string
	Result      string // traffic light: GREEN, YELLOW, RED
	CheckedAt   time.Time
}

// Empty reports whether no verdict is cached at all
func (e RiskCacheEntry) Empty() bool {
	return e.Status == "" && e.Result == "" && e.CheckedAt.IsZero()
}

// Address is a customer billing or shipping address with its risk cache
type Address struct {
	ID         int64
	Type       AddressType
	CustomerID string
	FirstName  string
	LastName   string
	Street     string
	City       string
	Zip        string
	CountryISO string
	Risk       RiskCacheEntry
	UpdatedAt  time.Time
}
