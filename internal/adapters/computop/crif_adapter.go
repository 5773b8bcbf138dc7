package computop

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
	pkgerrors "github.com/fatchip/computop-checkout/pkg/errors"
	"github.com/fatchip/computop-checkout/pkg/observability"
)

const crifPath = "/crif.aspx"

// CRIFAdapter implements ports.RiskScorer against the paygate's CRIF
// creditworthiness check. It shares the wire codec and credentials with the
// payment adapter but is a separate client because risk checks happen
// outside any payment attempt.
type CRIFAdapter struct {
	cfg        Config
	creds      Credentials
	codec      *Codec
	httpClient ports.HTTPClient
	logger     *zap.Logger
}

// NewCRIFAdapter creates a CRIF scoring adapter
func NewCRIFAdapter(cfg Config, creds Credentials, httpClient ports.HTTPClient, logger *zap.Logger) (*CRIFAdapter, error) {
	codec, err := NewCodec(creds.CipherPassword)
	if err != nil {
		return nil, err
	}
	return &CRIFAdapter{
		cfg:        cfg,
		creds:      creds,
		codec:      codec,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Score submits an order snapshot to CRIF and returns the verdict
func (a *CRIFAdapter) Score(ctx context.Context, desc ports.OrderDescriptor) (*ports.RiskVerdict, error) {
	transID := uuid.New().String()
	amount := minorUnits(desc.Amount)

	billing := desc.BillingAddress
	params := map[string]string{
		"MerchantID":      a.creds.MerchantID,
		"TransID":         transID,
		"Amount":          amount,
		"Currency":        desc.Currency,
		"FirstName":       billing.FirstName,
		"LastName":        billing.LastName,
		"AddrStreet":      billing.Street,
		"AddrZip":         billing.Zip,
		"AddrCity":        billing.City,
		"AddrCountryCode": billing.CountryISO,
		"EMail":           desc.Email,
		"CustomerID":      desc.CustomerID,
		"OrderDesc":       desc.OrderDesc,
		"UserData":        desc.UserData,
		"MAC":             CalculateRequestMAC(a.creds.HMACPassword, "", transID, a.creds.MerchantID, amount, desc.Currency),
	}

	body, err := postEncrypted(ctx, a.httpClient, a.codec, a.creds.MerchantID, a.cfg.BaseURL+crifPath, params, a.logger)
	if err != nil {
		return nil, err
	}

	answer, err := url.ParseQuery(strings.TrimSpace(body))
	if err != nil {
		return nil, &pkgerrors.GatewayError{
			Message:  "malformed CRIF answer",
			Category: pkgerrors.CategoryExternalCall,
		}
	}

	plainLen, err := parseLen(answer.Get("Len"))
	if err != nil {
		return nil, err
	}
	plain, err := a.codec.Decrypt(answer.Get("Data"), plainLen)
	if err != nil {
		return nil, err
	}
	fields := DecodeParams(plain)

	verdict := &ports.RiskVerdict{
		Status:      normalizeRiskStatus(fields["Status"]),
		Code:        fields["Code"],
		Description: fields["Description"],
		Result:      fields["Result"],
		FirstName:   fields["FirstName"],
		LastName:    fields["LastName"],
		Street:      fields["AddrStreet"],
		StreetNr:    fields["AddrStreetNr"],
		Zip:         fields["AddrZip"],
		City:        fields["AddrCity"],
	}

	a.logger.Info("CRIF check completed",
		zap.String("trans_id", transID),
		zap.String("status", string(verdict.Status)),
		zap.String("result", verdict.Result),
	)
	observability.RecordRiskVerdict(verdict.Result, string(verdict.Status))

	return verdict, nil
}

func normalizeRiskStatus(status string) models.RiskVerdictStatus {
	switch strings.ToUpper(status) {
	case "OK", "SUCCESS":
		return models.RiskStatusOK
	case "FAILED":
		return models.RiskStatusFailed
	default:
		return models.RiskStatusInvalid
	}
}

func parseLen(raw string) (int, error) {
	if raw == "" {
		return 0, pkgerrors.NewValidationError("Len", "CRIF response length is missing")
	}
	n := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, pkgerrors.NewValidationError("Len", "CRIF response length is malformed")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
