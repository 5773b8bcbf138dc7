package computop

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CalculateRequestMAC signs an outbound request.
// MAC = HMAC-SHA256(PayID*TransID*MerchantID*Amount*Currency, hmacPassword)
// PayID is empty on first authorization of a payment.
func CalculateRequestMAC(hmacPassword, payID, transID, merchantID, amount, currency string) string {
	return calculateMAC(hmacPassword, payID, transID, merchantID, amount, currency)
}

// CalculateResponseMAC signs a gateway response.
// MAC = HMAC-SHA256(PayID*TransID*MerchantID*Status*Code, hmacPassword)
func CalculateResponseMAC(hmacPassword, payID, transID, merchantID, status, code string) string {
	return calculateMAC(hmacPassword, payID, transID, merchantID, status, code)
}

// VerifyResponseMAC validates the MAC field of a decrypted response
func VerifyResponseMAC(hmacPassword, payID, transID, merchantID, status, code, mac string) bool {
	expected := CalculateResponseMAC(hmacPassword, payID, transID, merchantID, status, code)
	return hmac.Equal([]byte(expected), []byte(strings.ToUpper(mac)))
}

func calculateMAC(hmacPassword string, parts ...string) string {
	h := hmac.New(sha256.New, []byte(hmacPassword))
	h.Write([]byte(strings.Join(parts, "*")))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}
