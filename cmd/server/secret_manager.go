package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/fatchip/computop-checkout/internal/adapters/secrets"
	"github.com/fatchip/computop-checkout/internal/config"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
)

// initSecretManager selects the merchant credential backend.
// Supports:
//   - AWS Secrets Manager (SECRETS_BACKEND=aws)
//   - HashiCorp Vault (SECRETS_BACKEND=vault)
//   - Local files (SECRETS_BACKEND=local, development default)
func initSecretManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) ports.SecretManager {
	switch cfg.Secrets.Backend {
	case "aws":
		sm, err := secrets.NewAWSSecretsManagerAdapter(ctx, &secrets.AWSSecretsManagerConfig{
			Region:   cfg.Secrets.AWSRegion,
			Profile:  cfg.Secrets.AWSProfile,
			Endpoint: cfg.Secrets.AWSEndpoint,
		}, logger)
		if err != nil {
			logger.Fatal("aws secrets manager init failed",
				zap.String("region", cfg.Secrets.AWSRegion),
				zap.Error(err),
			)
		}
		return sm

	case "vault":
		sm, err := secrets.NewVaultAdapter(ctx, &secrets.VaultConfig{
			Address:    cfg.Secrets.VaultAddress,
			AuthMethod: "token",
			Token:      cfg.Secrets.VaultToken,
		}, logger)
		if err != nil {
			logger.Fatal("vault init failed",
				zap.String("address", cfg.Secrets.VaultAddress),
				zap.Error(err),
			)
		}
		return sm

	case "local":
		return secrets.NewLocalSecretManager(cfg.Secrets.LocalBasePath, logger)

	default:
		logger.Warn("unknown secrets backend, falling back to local files",
			zap.String("backend", cfg.Secrets.Backend),
		)
		return secrets.NewLocalSecretManager(cfg.Secrets.LocalBasePath, logger)
	}
}
