package computop

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
	pkgerrors "github.com/fatchip/computop-checkout/pkg/errors"
	"github.com/fatchip/computop-checkout/pkg/observability"
)

const (
	hostedPagePath = "/payssl.aspx"
	payNowPath     = "/paynow.aspx"
	directPath     = "/direct.aspx"
	capturePath    = "/capture.aspx"
	refNrPath      = "/RefNrChange.aspx"
)

// Credentials are the merchant secrets resolved at startup through the
// secret manager.
type Credentials struct {
	MerchantID     string
	CipherPassword string
	HMACPassword   string
}

// Config holds gateway endpoint configuration
type Config struct {
	BaseURL string
}

// GatewayAdapter implements ports.PaymentGateway against the Computop
// paygate. All server-to-server calls go through the injected HTTP client.
type GatewayAdapter struct {
	cfg        Config
	creds      Credentials
	codec      *Codec
	httpClient ports.HTTPClient
	logger     *zap.Logger
}

// NewGatewayAdapter creates a paygate adapter
func NewGatewayAdapter(cfg Config, creds Credentials, httpClient ports.HTTPClient, logger *zap.Logger) (*GatewayAdapter, error) {
	if creds.MerchantID == "" {
		return nil, pkgerrors.NewValidationError("merchant_id", "merchant id is required")
	}
	codec, err := NewCodec(creds.CipherPassword)
	if err != nil {
		return nil, err
	}
	return &GatewayAdapter{
		cfg:        cfg,
		creds:      creds,
		codec:      codec,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BuildRedirectParams assembles the plaintext parameter set for a payment
// attempt, including a fresh TransID and the request MAC. The returned map
// is what gets logged with the eventual response; SignedRedirectURL and
// PostDirect handle encryption.
func (a *GatewayAdapter) BuildRedirectParams(desc ports.OrderDescriptor, cb ports.Callbacks, opts ports.RedirectOptions) (map[string]string, error) {
	if desc.Currency == "" {
		return nil, pkgerrors.NewValidationError("currency", "currency is required")
	}

	transID := uuid.New().String()
	amount := minorUnits(desc.Amount)

	params := map[string]string{
		"MerchantID": a.creds.MerchantID,
		"TransID":    transID,
		"Amount":     amount,
		"Currency":   desc.Currency,
		"URLSuccess": cb.SuccessURL,
		"URLFailure": cb.FailureURL,
		"URLNotify":  cb.NotifyURL,
		"MAC":        CalculateRequestMAC(a.creds.HMACPassword, "", transID, a.creds.MerchantID, amount, desc.Currency),
	}

	if desc.OrderNumber != "" {
		params["RefNr"] = desc.OrderNumber
	}
	if desc.OrderDesc != "" {
		params["OrderDesc"] = desc.OrderDesc
	}
	if desc.UserData != "" {
		params["UserData"] = desc.UserData
	}
	if desc.Email != "" {
		params["EMail"] = desc.Email
	}
	if desc.CustomerID != "" {
		params["CustomerID"] = desc.CustomerID
	}

	billing := desc.BillingAddress
	if billing.Street != "" {
		params["AddrStreet"] = billing.Street
		params["AddrZip"] = billing.Zip
		params["AddrCity"] = billing.City
		params["AddrCountryCode"] = billing.CountryISO
		params["FirstName"] = billing.FirstName
		params["LastName"] = billing.LastName
	}

	if cb.BackURL != "" {
		params["URLBack"] = cb.BackURL
	}
	if opts.Caption != "" {
		params["Caption"] = opts.Caption
	}
	if opts.IssuerID != "" {
		params["IssuerID"] = opts.IssuerID
	}
	if opts.Capture != "" {
		params["Capture"] = opts.Capture
	}
	if opts.TxType != "" {
		params["TxType"] = opts.TxType
	}
	if opts.FirstPayment {
		params["credentialOnFile"] = "initial"
	}

	// silent mode card data goes straight to the gateway, never persisted
	if opts.CardNumber != "" {
		params["CCBrand"] = opts.CardBrand
		params["CCNr"] = opts.CardNumber
		params["CCExpiry"] = opts.CardExpiry
		params["CCCVC"] = opts.CardCVC
	}

	for k, v := range opts.BrowserInfo {
		params[k] = v
	}

	return params, nil
}

// SignedRedirectURL encrypts the parameter set and builds the hosted-page URL
func (a *GatewayAdapter) SignedRedirectURL(params map[string]string) (string, error) {
	data, plainLen, err := a.codec.Encrypt(EncodeParams(params))
	if err != nil {
		return "", fmt.Errorf("encrypt redirect params: %w", err)
	}

	q := url.Values{}
	q.Set("MerchantID", a.creds.MerchantID)
	q.Set("Len", fmt.Sprintf("%d", plainLen))
	q.Set("Data", data)

	return a.cfg.BaseURL + hostedPagePath + "?" + q.Encode(), nil
}

// DecryptResponse decrypts a callback (success, failure or notify), verifies
// the response MAC and maps the fields.
func (a *GatewayAdapter) DecryptResponse(raw url.Values) (*ports.GatewayResponse, error) {
	dataHex := raw.Get("Data")
	if dataHex == "" {
		return nil, pkgerrors.NewValidationError("Data", "response data is missing")
	}
	var plainLen int
	if _, err := fmt.Sscanf(raw.Get("Len"), "%d", &plainLen); err != nil {
		return nil, pkgerrors.NewValidationError("Len", "response length is missing or malformed")
	}

	plain, err := a.codec.Decrypt(dataHex, plainLen)
	if err != nil {
		return nil, fmt.Errorf("decrypt response: %w", err)
	}
	fields := DecodeParams(plain)

	resp := mapResponse(fields)

	// A stripped MAC field must fail the same way a forged one does.
	if !VerifyResponseMAC(a.creds.HMACPassword, resp.PayID, resp.TransID, a.creds.MerchantID, string(resp.Status), resp.Code, fields["MAC"]) {
		return nil, &pkgerrors.GatewayError{
			Code:     resp.Code,
			Message:  "response MAC verification failed",
			Category: pkgerrors.CategoryExternalCall,
		}
	}

	a.logger.Debug("decrypted paygate response",
		zap.String("status", string(resp.Status)),
		zap.String("trans_id", resp.TransID),
		zap.String("pay_id", resp.PayID),
		zap.String("code", resp.Code),
	)

	return resp, nil
}

// PostDirect posts encrypted parameters server-to-server and returns the raw
// HTML body. Used by the silent card flow, where the gateway answers with a
// self-redirecting page.
func (a *GatewayAdapter) PostDirect(ctx context.Context, params map[string]string) (string, error) {
	body, err := a.postEncrypted(ctx, a.cfg.BaseURL+payNowPath, params)
	if err != nil {
		return "", err
	}
	return body, nil
}

// AuthorizeRecurring performs a server-to-server AUTH against a stored card
func (a *GatewayAdapter) AuthorizeRecurring(ctx context.Context, req ports.RecurringAuthRequest) (*ports.GatewayResponse, error) {
	amount := minorUnits(req.Amount)
	params := map[string]string{
		"MerchantID": a.creds.MerchantID,
		"TransID":    req.TransID,
		"PayID":      req.PayID,
		"Amount":     amount,
		"Currency":   req.Currency,
		"RefNr":      req.OrderNumber,
		"MAC":        CalculateRequestMAC(a.creds.HMACPassword, req.PayID, req.TransID, a.creds.MerchantID, amount, req.Currency),
	}
	// pseudo card number may legitimately be absent: either the AUTH
	// references a prior preauthorization by PayID, or the gateway declines
	// and the caller maps that to a failure outcome
	if req.PseudoCardNumber != "" {
		params["PCNr"] = req.PseudoCardNumber
		params["CCBrand"] = req.CardBrand
		params["CCExpiry"] = req.CardExpiry
		params["RTF"] = "R" // recurring transaction flag
	}

	return a.callDirect(ctx, a.cfg.BaseURL+directPath, params)
}

// Capture books a previously reserved amount
func (a *GatewayAdapter) Capture(ctx context.Context, req ports.CaptureRequest) (*ports.GatewayResponse, error) {
	amount := minorUnits(req.Amount)
	params := map[string]string{
		"MerchantID": a.creds.MerchantID,
		"TransID":    req.TransID,
		"PayID":      req.PayID,
		"Amount":     amount,
		"Currency":   req.Currency,
		"MAC":        CalculateRequestMAC(a.creds.HMACPassword, req.PayID, req.TransID, a.creds.MerchantID, amount, req.Currency),
	}
	return a.callDirect(ctx, a.cfg.BaseURL+capturePath, params)
}

// UpdateRefNr sets the shop order number as the gateway-side reference
func (a *GatewayAdapter) UpdateRefNr(ctx context.Context, payID, refNr string) error {
	params := map[string]string{
		"MerchantID": a.creds.MerchantID,
		"PayID":      payID,
		"RefNr":      refNr,
		"MAC":        CalculateRequestMAC(a.creds.HMACPassword, payID, "", a.creds.MerchantID, "", ""),
	}
	resp, err := a.callDirect(ctx, a.cfg.BaseURL+refNrPath, params)
	if err != nil {
		return err
	}
	if !resp.Status.Approved() {
		return GetResponseCode(resp.Code).ToGatewayError(resp.Description)
	}
	return nil
}

// callDirect posts encrypted parameters and decrypts the Len/Data answer
func (a *GatewayAdapter) callDirect(ctx context.Context, endpoint string, params map[string]string) (*ports.GatewayResponse, error) {
	body, err := a.postEncrypted(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	answer, err := url.ParseQuery(strings.TrimSpace(body))
	if err != nil {
		return nil, &pkgerrors.GatewayError{
			Message:  "malformed paygate answer",
			Category: pkgerrors.CategoryExternalCall,
		}
	}
	return a.DecryptResponse(answer)
}

func (a *GatewayAdapter) postEncrypted(ctx context.Context, endpoint string, params map[string]string) (string, error) {
	return postEncrypted(ctx, a.httpClient, a.codec, a.creds.MerchantID, endpoint, params, a.logger)
}

// postEncrypted encrypts the parameter set and posts it as the standard
// MerchantID/Len/Data form. Shared by the payment and CRIF adapters.
func postEncrypted(ctx context.Context, client ports.HTTPClient, codec *Codec, merchantID, endpoint string, params map[string]string, logger *zap.Logger) (string, error) {
	data, plainLen, err := codec.Encrypt(EncodeParams(params))
	if err != nil {
		return "", fmt.Errorf("encrypt request: %w", err)
	}

	form := url.Values{}
	form.Set("MerchantID", merchantID)
	form.Set("Len", fmt.Sprintf("%d", plainLen))
	form.Set("Data", data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build paygate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	operation := path.Base(endpoint)
	start := time.Now()
	resp, err := client.Do(req)
	observability.RecordGatewayCall(operation, callStatus(err), time.Since(start).Seconds())
	if err != nil {
		logger.Error("paygate call failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return "", &pkgerrors.GatewayError{
			Message:        "payment gateway unreachable",
			GatewayMessage: err.Error(),
			Category:       pkgerrors.CategoryExternalCall,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read paygate answer: %w", err)
	}
	if resp.StatusCode >= 500 {
		return "", &pkgerrors.GatewayError{
			Message:        fmt.Sprintf("payment gateway returned HTTP %d", resp.StatusCode),
			GatewayMessage: string(body),
			Category:       pkgerrors.CategoryExternalCall,
		}
	}

	return string(body), nil
}

func mapResponse(fields map[string]string) *ports.GatewayResponse {
	return &ports.GatewayResponse{
		Status:             normalizeStatus(fields["Status"]),
		Code:               fields["Code"],
		Description:        fields["Description"],
		TransID:            fields["TransID"],
		PayID:              fields["PayID"],
		XID:                fields["XID"],
		CardBrand:          fields["CCBrand"],
		CardExpiry:         fields["CCExpiry"],
		PseudoCardNumber:   fields["PCNr"],
		BillingAgreementID: fields["BillingAgreementID"],
	}
}

func normalizeStatus(status string) models.ResponseStatus {
	switch strings.ToUpper(status) {
	case "OK", "SUCCESS":
		return models.ResponseOK
	case "AUTHORIZED", "AUTHORIZE_REQUEST":
		return models.ResponseAuthorized
	default:
		return models.ResponseFailed
	}
}

// minorUnits converts a major-unit decimal amount to the gateway's integer
// minor units ("49.99" EUR becomes "4999").
func minorUnits(amount decimal.Decimal) string {
	return amount.Shift(2).Round(0).String()
}

func callStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
