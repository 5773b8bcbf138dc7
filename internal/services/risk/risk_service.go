package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
	"github.com/fatchip/computop-checkout/pkg/timeutil"
)

// allowedCountries are the markets the scoring service covers. Addresses
// outside of them are never checked.
var allowedCountries = map[string]struct{}{
	"DE": {},
	"AT": {},
	"CH": {},
	"NL": {},
}

// failedRetryWindow rate-limits re-checks after a FAILED or unusable verdict
const failedRetryWindow = time.Hour

// Config carries the cache policy
type Config struct {
	// InvalidateAfterDays expires cached verdicts by age. Non-positive
	// means a cached verdict never expires on age alone.
	InvalidateAfterDays int

	// AutoCorrectAddress overwrites the address from the verdict's
	// normalized fields when they differ.
	AutoCorrectAddress bool
}

// Service owns the CRIF verdict cache: the staleness decision, the refresh
// protocol and invalidation on address changes.
type Service struct {
	scorer    ports.RiskScorer
	addresses ports.AddressStore
	sessions  ports.SessionStore
	apiLog    ports.APILogStore
	cfg       Config
	logger    ports.Logger
	now       func() time.Time
}

// NewService creates a new risk cache service
func NewService(
	scorer ports.RiskScorer,
	addresses ports.AddressStore,
	sessions ports.SessionStore,
	apiLog ports.APILogStore,
	cfg Config,
	logger ports.Logger,
) *Service {
	return &Service{
		scorer:    scorer,
		addresses: addresses,
		sessions:  sessions,
		apiLog:    apiLog,
		cfg:       cfg,
		logger:    logger,
		now:       timeutil.Now,
	}
}

// NeedsFreshCheck decides whether the cached verdict for an address is still
// usable or the scoring service must be called again.
func NeedsFreshCheck(addr models.Address, now time.Time, cfg Config) bool {
	if _, ok := allowedCountries[addr.CountryISO]; !ok {
		return false
	}

	entry := addr.Risk
	if entry.Status == models.RiskStatusFailed || entry.Status == models.RiskStatusInvalid {
		// retry a flaky service at most once per hour
		return now.Sub(entry.CheckedAt) > failedRetryWindow
	}
	if entry.Empty() {
		return true
	}
	if cfg.InvalidateAfterDays > 0 {
		maxAge := time.Duration(cfg.InvalidateAfterDays) * 24 * time.Hour
		return now.Sub(entry.CheckedAt) > maxAge
	}
	return false
}

// AddressChanged reports whether the fields relevant to risk scoring differ
func AddressChanged(old, new models.Address) bool {
	return old.Street != new.Street ||
		old.City != new.City ||
		old.Zip != new.Zip ||
		old.CountryISO != new.CountryISO
}

// EnsureVerdict returns a usable verdict for the address, refreshing it from
// the scoring service when the cached one is stale. A nil entry means the
// address country is out of scope and no scoring applies.
func (s *Service) EnsureVerdict(ctx context.Context, addressID int64, addrType models.AddressType, desc ports.OrderDescriptor) (*models.RiskCacheEntry, error) {
	addr, err := s.addresses.FindAddressByID(ctx, addressID, addrType)
	if err != nil {
		return nil, fmt.Errorf("load address: %w", err)
	}
	if addr == nil {
		return nil, fmt.Errorf("address %d (%s) not found", addressID, addrType)
	}

	if _, ok := allowedCountries[addr.CountryISO]; !ok {
		return nil, nil
	}
	if !NeedsFreshCheck(*addr, s.now(), s.cfg) {
		entry := addr.Risk
		return &entry, nil
	}

	return s.refresh(ctx, addr, desc)
}

// refresh calls the scoring service, caches the verdict on the address and,
// when configured, applies the service's address normalization.
func (s *Service) refresh(ctx context.Context, addr *models.Address, desc ports.OrderDescriptor) (*models.RiskCacheEntry, error) {
	verdict, err := s.scorer.Score(ctx, desc)
	s.logScore(ctx, addr, verdict)
	if err != nil {
		return nil, fmt.Errorf("risk score: %w", err)
	}

	entry := models.RiskCacheEntry{
		Status:      verdict.Status,
		Code:        verdict.Code,
		Description: verdict.Description,
		Result:      verdict.Result,
		CheckedAt:   s.now(),
	}
	if err := s.addresses.SaveRiskVerdict(ctx, addr.ID, addr.Type, entry); err != nil {
		return nil, fmt.Errorf("cache verdict: %w", err)
	}

	if s.cfg.AutoCorrectAddress {
		if err := s.applyCorrection(ctx, addr, verdict); err != nil {
			s.logger.Warn("address auto-correction failed",
				ports.Int64("address_id", addr.ID), ports.Err(err))
		}
	}

	return &entry, nil
}

// applyCorrection overwrites the address with the verdict's normalized
// fields. The suppression flag is set first so the resulting mutation event
// does not clear the verdict just cached.
func (s *Service) applyCorrection(ctx context.Context, addr *models.Address, verdict *ports.RiskVerdict) error {
	corrected := *addr
	if verdict.FirstName != "" {
		corrected.FirstName = verdict.FirstName
	}
	if verdict.LastName != "" {
		corrected.LastName = verdict.LastName
	}
	if verdict.Street != "" {
		corrected.Street = verdict.Street
		if verdict.StreetNr != "" {
			corrected.Street = verdict.Street + " " + verdict.StreetNr
		}
	}
	if verdict.Zip != "" {
		corrected.Zip = verdict.Zip
	}
	if verdict.City != "" {
		corrected.City = verdict.City
	}

	if corrected.FirstName == addr.FirstName && corrected.LastName == addr.LastName &&
		!AddressChanged(*addr, corrected) {
		return nil
	}

	if err := s.sessions.SetSuppressInvalidation(ctx, addr.ID); err != nil {
		return fmt.Errorf("set suppression flag: %w", err)
	}
	if err := s.addresses.PersistAddress(ctx, &corrected); err != nil {
		return fmt.Errorf("persist corrected address: %w", err)
	}

	s.logger.Info("address auto-corrected from risk verdict",
		ports.Int64("address_id", addr.ID))
	return nil
}

// OnAddressUpdated handles an externally observed address mutation. A change
// to any scoring-relevant field clears the cached verdict, unless the
// one-shot suppression flag marks the mutation as our own auto-correction.
func (s *Service) OnAddressUpdated(ctx context.Context, old, updated models.Address) error {
	if !AddressChanged(old, updated) {
		return nil
	}

	suppressed, err := s.sessions.ConsumeSuppressInvalidation(ctx, updated.ID)
	if err != nil {
		s.logger.Warn("suppression flag lookup failed",
			ports.Int64("address_id", updated.ID), ports.Err(err))
	}
	if suppressed {
		s.logger.Debug("verdict invalidation suppressed",
			ports.Int64("address_id", updated.ID))
		return nil
	}

	if err := s.addresses.ClearRiskEntry(ctx, updated.ID, updated.Type); err != nil {
		return fmt.Errorf("clear risk entry: %w", err)
	}
	return nil
}

// UpdateAddress persists an address change coming through our own API. The
// caller states explicitly whether the cached verdict should survive.
func (s *Service) UpdateAddress(ctx context.Context, updated models.Address, skipInvalidation bool) error {
	old, err := s.addresses.FindAddressByID(ctx, updated.ID, updated.Type)
	if err != nil {
		return fmt.Errorf("load address: %w", err)
	}
	if old == nil {
		return fmt.Errorf("address %d (%s) not found", updated.ID, updated.Type)
	}

	if err := s.addresses.PersistAddress(ctx, &updated); err != nil {
		return fmt.Errorf("persist address: %w", err)
	}

	if !skipInvalidation && AddressChanged(*old, updated) {
		if err := s.addresses.ClearRiskEntry(ctx, updated.ID, updated.Type); err != nil {
			return fmt.Errorf("clear risk entry: %w", err)
		}
	}
	return nil
}

// EvaluateRule applies a configured rule to the verdict for an address
func (s *Service) EvaluateRule(ctx context.Context, ruleName, threshold string, addressID int64, addrType models.AddressType, desc ports.OrderDescriptor) (Decision, error) {
	kind := ParseRuleKind(ruleName)
	if kind == RuleUnknown {
		return DecisionDelegate, nil
	}

	entry, err := s.EnsureVerdict(ctx, addressID, addrType, desc)
	if err != nil {
		return DecisionAllow, err
	}
	if entry == nil {
		// out-of-scope country: nothing to compare, method stays available
		return DecisionAllow, nil
	}

	return Evaluate(kind, entry.Result, threshold), nil
}

func (s *Service) logScore(ctx context.Context, addr *models.Address, verdict *ports.RiskVerdict) {
	entry := &models.APICallLog{
		RequestType: "CRIF",
		Request: map[string]string{
			"AddrStreet":      addr.Street,
			"AddrZip":         addr.Zip,
			"AddrCity":        addr.City,
			"AddrCountryCode": addr.CountryISO,
		},
	}
	if verdict != nil {
		entry.Response = map[string]string{
			"Status":      string(verdict.Status),
			"Code":        verdict.Code,
			"Description": verdict.Description,
			"Result":      verdict.Result,
		}
	}
	if err := s.apiLog.LogAPICall(ctx, entry); err != nil {
		s.logger.Warn("api call log write failed",
			ports.String("request_type", "CRIF"), ports.Err(err))
	}
}
