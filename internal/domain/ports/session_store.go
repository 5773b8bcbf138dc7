package ports

import (
	"context"

	"github.com/fatchip/computop-checkout/internal/domain/models"
)

// SessionStore keeps payment session contexts alive across the gateway
// redirect round trip. Entries are correlated by the session id echoed back
// by the gateway, not by browser cookies, because the shopper may return
// through a different browser session.
type SessionStore interface {
	Put(ctx context.Context, sctx *models.PaymentSessionContext) error
	Get(ctx context.Context, sessionID string) (*models.PaymentSessionContext, error)
	Clear(ctx context.Context, sessionID string) error

	// SetSuppressInvalidation marks an address as just auto-corrected from a
	// risk-check response so the resulting mutation event does not clear the
	// fresh verdict. The flag is one-shot.
	SetSuppressInvalidation(ctx context.Context, addressID int64) error

	// ConsumeSuppressInvalidation reads and removes the one-shot flag
	ConsumeSuppressInvalidation(ctx context.Context, addressID int64) (bool, error)
}
