package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatchip/computop-checkout/internal/adapters/computop"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
)

// LoadCredentials fetches the merchant credential set stored at path. The
// secret value is a JSON document with merchant_id, cipher_password and
// hmac_password keys.
func LoadCredentials(ctx context.Context, sm ports.SecretManager, path string) (computop.Credentials, error) {
	secret, err := sm.GetSecret(ctx, path)
	if err != nil {
		return computop.Credentials{}, fmt.Errorf("load merchant credentials: %w", err)
	}

	var raw struct {
		MerchantID     string `json:"merchant_id"`
		CipherPassword string `json:"cipher_password"`
		HMACPassword   string `json:"hmac_password"`
	}
	if err := json.Unmarshal([]byte(secret.Value), &raw); err != nil {
		return computop.Credentials{}, fmt.Errorf("parse merchant credentials: %w", err)
	}
	if raw.MerchantID == "" || raw.CipherPassword == "" || raw.HMACPassword == "" {
		return computop.Credentials{}, fmt.Errorf("merchant credentials at %s are incomplete", path)
	}

	return computop.Credentials{
		MerchantID:     raw.MerchantID,
		CipherPassword: raw.CipherPassword,
		HMACPassword:   raw.HMACPassword,
	}, nil
}
