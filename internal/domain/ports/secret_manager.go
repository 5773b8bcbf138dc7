package ports

import "context"

// Secret is a single secret value with metadata
type Secret struct {
	Value    string
	Version  string
	Metadata map[string]string
}

// SecretManager retrieves merchant credentials (merchant id, cipher password,
// HMAC secret) from a backing store: AWS Secrets Manager, Vault, or local
// files in development.
type SecretManager interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
