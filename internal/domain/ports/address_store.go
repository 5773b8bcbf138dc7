package ports

import (
	"context"

	"github.com/fatchip/computop-checkout/internal/domain/models"
)

// AddressStore persists customer addresses and their risk cache entries
type AddressStore interface {
	FindAddressByID(ctx context.Context, id int64, addrType models.AddressType) (*models.Address, error)

	// PersistAddress writes the address fields. The risk cache entry is not
	// touched here; clearing it is an explicit decision of the caller (see
	// ClearRiskEntry), so an auto-corrected address can be saved without
	// discarding the verdict that produced the correction.
	PersistAddress(ctx context.Context, addr *models.Address) error

	SaveRiskVerdict(ctx context.Context, id int64, addrType models.AddressType, entry models.RiskCacheEntry) error

	ClearRiskEntry(ctx context.Context, id int64, addrType models.AddressType) error
}
