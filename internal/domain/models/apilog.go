package models

import "time"

// APICallLog records one request/response pair against the gateway.
// RequestType mirrors the gateway operation: REDIRECT, PREAUTH, AUTH,
// CAPTURE, CRIF, NOTIFY.
type APICallLog struct {
	ID          string
	RequestType string
	PayID       string
	TransID     string
	XID         string
	Request     map[string]string
	Response    map[string]string
	CreatedAt   time.Time
}
