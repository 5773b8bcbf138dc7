package computop

import (
	pkgerrors "github.com/fatchip/computop-checkout/pkg/errors"
)

// ResponseCodeInfo describes one paygate answer code. Suppressed codes are
// policy-hidden from the shopper: logged internally, but the failure funnel
// shows only a generic message for them.
type ResponseCodeInfo struct {
	Code        string
	Display     string
	Description string
	IsApproved  bool
	Suppressed  bool
	Category    pkgerrors.ErrorCategory
	UserMessage string
}

// Paygate codes are eight digits: the first two name the subsystem, the rest
// the detail. 00000000 is the only success code.
var responseCodes = map[string]ResponseCodeInfo{
	"00000000": {
		Code:        "00000000",
		Display:     "SUCCESS",
		Description: "Request processed",
		IsApproved:  true,
		UserMessage: "Payment successful",
	},
	"21000100": {
		Code:        "21000100",
		Display:     "DECLINED",
		Description: "Issuer declined the authorization",
		Category:    pkgerrors.CategoryDeclined,
		UserMessage: "Your payment was declined. Please use a different payment method.",
	},
	"21000404": {
		Code:        "21000404",
		Display:     "EXPIRED CARD",
		Description: "Card expired",
		Category:    pkgerrors.CategoryDeclined,
		UserMessage: "Your card has expired. Please use a different payment method.",
	},
	"22000001": {
		Code:        "22000001",
		Display:     "FRAUD SUSPICION",
		Description: "Transaction blocked by fraud screening",
		Suppressed:  true,
		Category:    pkgerrors.CategoryDeclined,
		UserMessage: "Your payment was declined.",
	},
	"22000002": {
		Code:        "22000002",
		Display:     "BLACKLIST",
		Description: "Card or account is blacklisted",
		Suppressed:  true,
		Category:    pkgerrors.CategoryDeclined,
		UserMessage: "Your payment was declined.",
	},
	"90000050": {
		Code:        "90000050",
		Display:     "TIMEOUT",
		Description: "Gateway timeout towards the acquirer",
		Category:    pkgerrors.CategorySystemError,
		UserMessage: "The payment service did not respond. Please try again.",
	},
	"90000500": {
		Code:        "90000500",
		Display:     "SYSTEM ERROR",
		Description: "Gateway internal error",
		Category:    pkgerrors.CategorySystemError,
		UserMessage: "A technical error occurred. Please try again in a few moments.",
	},
}

// GetResponseCode returns details for a paygate code, with an unknown-code
// fallback that keeps the raw code visible to operators only.
func GetResponseCode(code string) ResponseCodeInfo {
	if info, ok := responseCodes[code]; ok {
		return info
	}
	return ResponseCodeInfo{
		Code:        code,
		Display:     "UNKNOWN",
		Description: "Unrecognized paygate response code",
		Category:    pkgerrors.CategoryDeclined,
		UserMessage: "Your payment could not be completed. Please try again or choose another payment method.",
	}
}

// ToGatewayError converts code details plus the gateway's own description
// into a GatewayError carrying the suppression policy.
func (i ResponseCodeInfo) ToGatewayError(gatewayMessage string) *pkgerrors.GatewayError {
	return &pkgerrors.GatewayError{
		Code:           i.Code,
		Message:        i.UserMessage,
		GatewayMessage: gatewayMessage,
		Category:       i.Category,
		Suppressed:     i.Suppressed,
	}
}
