package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fatchip/computop-checkout/internal/domain/models"
	"github.com/fatchip/computop-checkout/internal/domain/ports"
	"github.com/fatchip/computop-checkout/internal/services/risk"
)

// MockRiskScorer mocks the CRIF client
type MockRiskScorer struct {
	mock.Mock
}

func (m *MockRiskScorer) Score(ctx context.Context, desc ports.OrderDescriptor) (*ports.RiskVerdict, error) {
	args := m.Called(ctx, desc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RiskVerdict), args.Error(1)
}

// MockAddressStore mocks the address store
type MockAddressStore struct {
	mock.Mock
}

func (m *MockAddressStore) FindAddressByID(ctx context.Context, id int64, addrType models.AddressType) (*models.Address, error) {
	args := m.Called(ctx, id, addrType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

func (m *MockAddressStore) PersistAddress(ctx context.Context, addr *models.Address) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *MockAddressStore) SaveRiskVerdict(ctx context.Context, id int64, addrType models.AddressType, entry models.RiskCacheEntry) error {
	args := m.Called(ctx, id, addrType, entry)
	return args.Error(0)
}

func (m *MockAddressStore) ClearRiskEntry(ctx context.Context, id int64, addrType models.AddressType) error {
	args := m.Called(ctx, id, addrType)
	return args.Error(0)
}

// MockFlagStore implements the session store's suppression flag surface
type MockFlagStore struct {
	Flags map[int64]bool
}

func NewMockFlagStore() *MockFlagStore {
	return &MockFlagStore{Flags: make(map[int64]bool)}
}

func (m *MockFlagStore) Put(ctx context.Context, sctx *models.PaymentSessionContext) error { return nil }
func (m *MockFlagStore) Get(ctx context.Context, sessionID string) (*models.PaymentSessionContext, error) {
	return nil, nil
}
func (m *MockFlagStore) Clear(ctx context.Context, sessionID string) error { return nil }

func (m *MockFlagStore) SetSuppressInvalidation(ctx context.Context, addressID int64) error {
	m.Flags[addressID] = true
	return nil
}

func (m *MockFlagStore) ConsumeSuppressInvalidation(ctx context.Context, addressID int64) (bool, error) {
	set := m.Flags[addressID]
	delete(m.Flags, addressID)
	return set, nil
}

type nopAPILog struct{}

func (nopAPILog) LogAPICall(ctx context.Context, entry *models.APICallLog) error { return nil }

type nopLogger struct{}

func (nopLogger) Info(msg string, fields ...ports.Field)  {}
func (nopLogger) Error(msg string, fields ...ports.Field) {}
func (nopLogger) Warn(msg string, fields ...ports.Field)  {}
func (nopLogger) Debug(msg string, fields ...ports.Field) {}

func addrWithEntry(country string, entry models.RiskCacheEntry) models.Address {
	return models.Address{
		ID:         1,
		Type:       models.AddressBilling,
		Street:     "Musterweg 1",
		City:       "Berlin",
		Zip:        "10115",
		CountryISO: country,
		Risk:       entry,
	}
}

func TestNeedsFreshCheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		addr models.Address
		cfg  risk.Config
		want bool
	}{
		{
			name: "country outside allowed set never needs a check",
			addr: addrWithEntry("FR", models.RiskCacheEntry{}),
			want: false,
		},
		{
			name: "country outside allowed set ignores stale FAILED entry",
			addr: addrWithEntry("GB", models.RiskCacheEntry{
				Status:    models.RiskStatusFailed,
				CheckedAt: now.Add(-48 * time.Hour),
			}),
			want: false,
		},
		{
			name: "failed entry 30 minutes old is rate limited",
			addr: addrWithEntry("DE", models.RiskCacheEntry{
				Status:    models.RiskStatusFailed,
				CheckedAt: now.Add(-30 * time.Minute),
			}),
			want: false,
		},
		{
			name: "failed entry 90 minutes old is retried",
			addr: addrWithEntry("DE", models.RiskCacheEntry{
				Status:    models.RiskStatusFailed,
				CheckedAt: now.Add(-90 * time.Minute),
			}),
			want: true,
		},
		{
			name: "invalid sentinel behaves like failed",
			addr: addrWithEntry("AT", models.RiskCacheEntry{
				Status:    models.RiskStatusInvalid,
				CheckedAt: now.Add(-90 * time.Minute),
			}),
			want: true,
		},
		{
			name: "no cached entry needs a check",
			addr: addrWithEntry("DE", models.RiskCacheEntry{}),
			want: true,
		},
		{
			name: "entry older than invalidateAfterDays expires",
			addr: addrWithEntry("CH", models.RiskCacheEntry{
				Status:    models.RiskStatusOK,
				Result:    "GREEN",
				CheckedAt: now.Add(-31 * 24 * time.Hour),
			}),
			cfg:  risk.Config{InvalidateAfterDays: 30},
			want: true,
		},
		{
			name: "entry within invalidateAfterDays is reused",
			addr: addrWithEntry("CH", models.RiskCacheEntry{
				Status:    models.RiskStatusOK,
				Result:    "GREEN",
				CheckedAt: now.Add(-29 * 24 * time.Hour),
			}),
			cfg:  risk.Config{InvalidateAfterDays: 30},
			want: false,
		},
		{
			name: "non-positive invalidateAfterDays never expires on age",
			addr: addrWithEntry("NL", models.RiskCacheEntry{
				Status:    models.RiskStatusOK,
				Result:    "YELLOW",
				CheckedAt: now.Add(-365 * 24 * time.Hour),
			}),
			cfg:  risk.Config{InvalidateAfterDays: 0},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, risk.NeedsFreshCheck(tt.addr, now, tt.cfg))
		})
	}
}

func TestAddressChanged(t *testing.T) {
	base := models.Address{
		Street:     "Musterweg 1",
		City:       "Berlin",
		Zip:        "10115",
		CountryISO: "DE",
		FirstName:  "Erika",
	}

	assert.False(t, risk.AddressChanged(base, base))

	unrelated := base
	unrelated.FirstName = "Max"
	assert.False(t, risk.AddressChanged(base, unrelated), "non-scoring fields do not count as a change")

	for name, mutate := range map[string]func(*models.Address){
		"street":  func(a *models.Address) { a.Street = "Andere Str. 2" },
		"city":    func(a *models.Address) { a.City = "Hamburg" },
		"zip":     func(a *models.Address) { a.Zip = "20095" },
		"country": func(a *models.Address) { a.CountryISO = "AT" },
	} {
		changed := base
		mutate(&changed)
		assert.True(t, risk.AddressChanged(base, changed), name)
	}
}

func TestEnsureVerdictReusesFreshEntry(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{}, risk.Config{InvalidateAfterDays: 30}, nopLogger{})

	cached := addrWithEntry("DE", models.RiskCacheEntry{
		Status:    models.RiskStatusOK,
		Result:    "GREEN",
		CheckedAt: time.Now().Add(-time.Hour),
	})
	addresses.On("FindAddressByID", mock.Anything, int64(1), models.AddressBilling).Return(&cached, nil)

	entry, err := svc.EnsureVerdict(context.Background(), 1, models.AddressBilling, ports.OrderDescriptor{})

	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "GREEN", entry.Result)
	scorer.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)
}

func TestEnsureVerdictOutOfScopeCountry(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{}, risk.Config{}, nopLogger{})

	outside := addrWithEntry("US", models.RiskCacheEntry{})
	addresses.On("FindAddressByID", mock.Anything, int64(1), models.AddressBilling).Return(&outside, nil)

	entry, err := svc.EnsureVerdict(context.Background(), 1, models.AddressBilling, ports.OrderDescriptor{})

	require.NoError(t, err)
	assert.Nil(t, entry)
	scorer.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)
}

func TestEnsureVerdictRefreshesAndCaches(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{}, risk.Config{}, nopLogger{})

	stale := addrWithEntry("DE", models.RiskCacheEntry{})
	addresses.On("FindAddressByID", mock.Anything, int64(1), models.AddressBilling).Return(&stale, nil)
	scorer.On("Score", mock.Anything, mock.Anything).Return(&ports.RiskVerdict{
		Status: models.RiskStatusOK,
		Code:   "00",
		Result: "YELLOW",
	}, nil)
	addresses.On("SaveRiskVerdict", mock.Anything, int64(1), models.AddressBilling,
		mock.MatchedBy(func(e models.RiskCacheEntry) bool {
			return e.Status == models.RiskStatusOK && e.Result == "YELLOW" && !e.CheckedAt.IsZero()
		})).Return(nil)

	entry, err := svc.EnsureVerdict(context.Background(), 1, models.AddressBilling, ports.OrderDescriptor{})

	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "YELLOW", entry.Result)
	addresses.AssertExpectations(t)
}

func TestRefreshAutoCorrectSetsSuppressionFlag(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{},
		risk.Config{AutoCorrectAddress: true}, nopLogger{})

	stale := addrWithEntry("DE", models.RiskCacheEntry{})
	addresses.On("FindAddressByID", mock.Anything, int64(1), models.AddressBilling).Return(&stale, nil)
	scorer.On("Score", mock.Anything, mock.Anything).Return(&ports.RiskVerdict{
		Status:   models.RiskStatusOK,
		Result:   "GREEN",
		Street:   "Musterweg",
		StreetNr: "1a",
		Zip:      "10117",
		City:     "Berlin",
	}, nil)
	addresses.On("SaveRiskVerdict", mock.Anything, int64(1), models.AddressBilling, mock.Anything).Return(nil)
	addresses.On("PersistAddress", mock.Anything, mock.MatchedBy(func(a *models.Address) bool {
		return a.Street == "Musterweg 1a" && a.Zip == "10117"
	})).Return(nil)

	_, err := svc.EnsureVerdict(context.Background(), 1, models.AddressBilling, ports.OrderDescriptor{})

	require.NoError(t, err)
	assert.True(t, flags.Flags[1], "suppression flag must be set before the corrected address is persisted")
	addresses.AssertExpectations(t)
}

func TestOnAddressUpdatedClearsEntry(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{}, risk.Config{}, nopLogger{})

	old := addrWithEntry("DE", models.RiskCacheEntry{Status: models.RiskStatusOK})
	updated := old
	updated.Street = "Neue Str. 5"

	addresses.On("ClearRiskEntry", mock.Anything, int64(1), models.AddressBilling).Return(nil)

	require.NoError(t, svc.OnAddressUpdated(context.Background(), old, updated))
	addresses.AssertExpectations(t)
}

func TestOnAddressUpdatedUnchangedKeepsEntry(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{}, risk.Config{}, nopLogger{})

	addr := addrWithEntry("DE", models.RiskCacheEntry{Status: models.RiskStatusOK})

	require.NoError(t, svc.OnAddressUpdated(context.Background(), addr, addr))
	addresses.AssertNotCalled(t, "ClearRiskEntry", mock.Anything, mock.Anything, mock.Anything)
}

func TestSuppressionFlagIsOneShot(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{}, risk.Config{}, nopLogger{})

	old := addrWithEntry("DE", models.RiskCacheEntry{Status: models.RiskStatusOK})
	updated := old
	updated.Street = "Neue Str. 5"

	// first mutation with the flag set: entry survives
	require.NoError(t, flags.SetSuppressInvalidation(context.Background(), 1))
	require.NoError(t, svc.OnAddressUpdated(context.Background(), old, updated))
	addresses.AssertNotCalled(t, "ClearRiskEntry", mock.Anything, mock.Anything, mock.Anything)

	// second mutation without re-setting it: entry cleared
	addresses.On("ClearRiskEntry", mock.Anything, int64(1), models.AddressBilling).Return(nil)
	next := updated
	next.Zip = "20095"
	require.NoError(t, svc.OnAddressUpdated(context.Background(), updated, next))
	addresses.AssertExpectations(t)
}

func TestUpdateAddressExplicitSkip(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{}, risk.Config{}, nopLogger{})

	old := addrWithEntry("DE", models.RiskCacheEntry{Status: models.RiskStatusOK})
	updated := old
	updated.City = "Hamburg"

	addresses.On("FindAddressByID", mock.Anything, int64(1), models.AddressBilling).Return(&old, nil)
	addresses.On("PersistAddress", mock.Anything, &updated).Return(nil)

	require.NoError(t, svc.UpdateAddress(context.Background(), updated, true))
	addresses.AssertNotCalled(t, "ClearRiskEntry", mock.Anything, mock.Anything, mock.Anything)
}

func TestRuleEvaluator(t *testing.T) {
	assert.Equal(t, risk.RuleTrafficLightIs, risk.ParseRuleKind("TRAFFIC_LIGHT_IS"))
	assert.Equal(t, risk.RuleTrafficLightIsNot, risk.ParseRuleKind("traffic_light_is_not"))
	assert.Equal(t, risk.RuleUnknown, risk.ParseRuleKind("SOMETHING_ELSE"))

	assert.Equal(t, risk.DecisionBlock, risk.Evaluate(risk.RuleTrafficLightIs, "RED", "RED"))
	assert.Equal(t, risk.DecisionAllow, risk.Evaluate(risk.RuleTrafficLightIs, "GREEN", "RED"))
	assert.Equal(t, risk.DecisionBlock, risk.Evaluate(risk.RuleTrafficLightIsNot, "YELLOW", "GREEN"))
	assert.Equal(t, risk.DecisionAllow, risk.Evaluate(risk.RuleTrafficLightIsNot, "GREEN", "GREEN"))
	assert.Equal(t, risk.DecisionDelegate, risk.Evaluate(risk.RuleUnknown, "GREEN", "GREEN"))
}

func TestEvaluateRuleUnknownDelegatesWithoutScoring(t *testing.T) {
	scorer := new(MockRiskScorer)
	addresses := new(MockAddressStore)
	flags := NewMockFlagStore()
	svc := risk.NewService(scorer, addresses, flags, nopAPILog{}, risk.Config{}, nopLogger{})

	decision, err := svc.EvaluateRule(context.Background(), "CUSTOM_RULE", "RED", 1, models.AddressBilling, ports.OrderDescriptor{})

	require.NoError(t, err)
	assert.Equal(t, risk.DecisionDelegate, decision)
	addresses.AssertNotCalled(t, "FindAddressByID", mock.Anything, mock.Anything, mock.Anything)
}
