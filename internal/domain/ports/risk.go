package ports

import (
	"context"

	"github.com/fatchip/computop-checkout/internal/domain/models"
)

// RiskVerdict is the answer of the external CRIF scoring service.
// The corrected address fields are only set when the service normalized
// the submitted address.
type RiskVerdict struct {
	Status      models.RiskVerdictStatus
	Code        string
	Description string
	Result      string // traffic light: GREEN, YELLOW, RED

	FirstName string
	LastName  string
	Street    string
	StreetNr  string
	Zip       string
	City      string
}

// RiskScorer is the external CRIF client
type RiskScorer interface {
	Score(ctx context.Context, desc OrderDescriptor) (*RiskVerdict, error)
}
