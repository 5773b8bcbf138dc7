package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fatchip/computop-checkout/internal/domain/models"
)

// AddressRepository implements ports.AddressStore on pgx. The risk cache
// entry lives in columns on the address row, so reading an address always
// yields a fully populated snapshot and the version-skew key juggling of the
// shop frontend stays out of the core.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// FindAddressByID loads an address of the given type
func (r *AddressRepository) FindAddressByID(ctx context.Context, id int64, addrType models.AddressType) (*models.Address, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, type, customer_id, first_name, last_name, street, city, zip, country_iso,
		       crif_status, crif_code, crif_description, crif_result, crif_checked_at, updated_at
		FROM addresses
		WHERE id = $1 AND type = $2`,
		id, string(addrType),
	)

	var (
		addr      models.Address
		addrT     string
		status    pgtype.Text
		code      pgtype.Text
		desc      pgtype.Text
		result    pgtype.Text
		checkedAt pgtype.Timestamptz
	)
	err := row.Scan(&addr.ID, &addrT, &addr.CustomerID, &addr.FirstName, &addr.LastName,
		&addr.Street, &addr.City, &addr.Zip, &addr.CountryISO,
		&status, &code, &desc, &result, &checkedAt, &addr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find address: %w", err)
	}

	addr.Type = models.AddressType(addrT)
	addr.Risk = models.RiskCacheEntry{
		Status:      models.RiskVerdictStatus(status.String),
		Code:        code.String,
		Description: desc.String,
		Result:      result.String,
	}
	if checkedAt.Valid {
		addr.Risk.CheckedAt = checkedAt.Time
	}
	return &addr, nil
}

// PersistAddress writes the address fields, leaving the risk columns alone
func (r *AddressRepository) PersistAddress(ctx context.Context, addr *models.Address) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE addresses
		SET first_name = $3, last_name = $4, street = $5, city = $6, zip = $7, country_iso = $8, updated_at = now()
		WHERE id = $1 AND type = $2`,
		addr.ID, string(addr.Type), addr.FirstName, addr.LastName,
		addr.Street, addr.City, addr.Zip, addr.CountryISO,
	)
	if err != nil {
		return fmt.Errorf("persist address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("address %d (%s) not found", addr.ID, addr.Type)
	}
	return nil
}

// SaveRiskVerdict writes a fresh CRIF verdict onto the address row
func (r *AddressRepository) SaveRiskVerdict(ctx context.Context, id int64, addrType models.AddressType, entry models.RiskCacheEntry) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE addresses
		SET crif_status = $3, crif_code = $4, crif_description = $5, crif_result = $6, crif_checked_at = $7
		WHERE id = $1 AND type = $2`,
		id, string(addrType), string(entry.Status), nullText(entry.Code),
		nullText(entry.Description), nullText(entry.Result), entry.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("save risk verdict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("address %d (%s) not found", id, addrType)
	}
	return nil
}

// ClearRiskEntry resets the risk columns after an address mutation
func (r *AddressRepository) ClearRiskEntry(ctx context.Context, id int64, addrType models.AddressType) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE addresses
		SET crif_status = NULL, crif_code = NULL, crif_description = NULL, crif_result = NULL, crif_checked_at = NULL
		WHERE id = $1 AND type = $2`,
		id, string(addrType),
	)
	if err != nil {
		return fmt.Errorf("clear risk entry: %w", err)
	}
	return nil
}
