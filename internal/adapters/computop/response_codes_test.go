package computop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/fatchip/computop-checkout/pkg/errors"
)

func TestGetResponseCode_Known(t *testing.T) {
	info := GetResponseCode("00000000")
	assert.True(t, info.IsApproved)

	info = GetResponseCode("21000100")
	assert.False(t, info.IsApproved)
	assert.Equal(t, pkgerrors.CategoryDeclined, info.Category)
}

func TestGetResponseCode_UnknownFallsBack(t *testing.T) {
	info := GetResponseCode("99999999")
	assert.Equal(t, "99999999", info.Code)
	assert.Equal(t, "UNKNOWN", info.Display)
	assert.False(t, info.IsApproved)
	assert.NotEmpty(t, info.UserMessage)
}

func TestToGatewayError_CarriesSuppression(t *testing.T) {
	err := GetResponseCode("22000001").ToGatewayError("fraud screening hit")

	assert.True(t, err.Suppressed)
	assert.Equal(t, "payment could not be completed", err.UserMessage(),
		"suppressed codes show only the generic text")
	assert.Contains(t, err.Error(), "fraud screening hit",
		"operators still see the gateway detail")
}

func TestToGatewayError_PlainDecline(t *testing.T) {
	err := GetResponseCode("21000100").ToGatewayError("issuer says no")

	assert.False(t, err.Suppressed)
	assert.Equal(t, "Your payment was declined. Please use a different payment method.", err.UserMessage())
}
