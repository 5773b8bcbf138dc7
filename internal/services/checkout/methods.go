package checkout

import "strings"

// Mode is how a payment method hands the shopper to the gateway
type Mode string

const (
	// ModeRedirect sends the shopper's browser to the hosted payment page
	ModeRedirect Mode = "REDIRECT"
	// ModeIframe embeds the hosted page inside the shop's own page chrome
	ModeIframe Mode = "IFRAME"
	// ModeSilent posts card data server-to-server, no hosted page
	ModeSilent Mode = "SILENT"
)

// MethodSpec describes one payment method offered at checkout
type MethodSpec struct {
	Name string
	Mode Mode

	// AllowedCountries restricts the method per shipping country.
	// Empty means available everywhere.
	AllowedCountries []string

	// NeedsIssuer marks bank-redirect methods that require an issuer choice
	NeedsIssuer bool

	// SupportsRecurring marks methods whose token can be re-authorized
	SupportsRecurring bool
}

// AvailableIn reports whether the method may be offered for a shipping country
func (m MethodSpec) AvailableIn(countryISO string) bool {
	if len(m.AllowedCountries) == 0 {
		return true
	}
	for _, c := range m.AllowedCountries {
		if strings.EqualFold(c, countryISO) {
			return true
		}
	}
	return false
}

// MethodRegistry holds the configured payment methods
type MethodRegistry struct {
	methods map[string]MethodSpec
}

// NewMethodRegistry builds a registry from the given specs
func NewMethodRegistry(specs ...MethodSpec) *MethodRegistry {
	r := &MethodRegistry{methods: make(map[string]MethodSpec, len(specs))}
	for _, spec := range specs {
		r.methods[spec.Name] = spec
	}
	return r
}

// DefaultMethods returns the standard method set
func DefaultMethods(creditCardMode Mode) *MethodRegistry {
	return NewMethodRegistry(
		MethodSpec{
			Name:              "creditcard",
			Mode:              creditCardMode,
			SupportsRecurring: true,
		},
		MethodSpec{
			Name:             "ideal",
			Mode:             ModeRedirect,
			AllowedCountries: []string{"NL"},
			NeedsIssuer:      true,
		},
		MethodSpec{
			Name: "paypal",
			Mode: ModeRedirect,
		},
		MethodSpec{
			Name:             "sofort",
			Mode:             ModeRedirect,
			AllowedCountries: []string{"DE", "AT", "CH", "NL", "BE"},
		},
		MethodSpec{
			Name:             "lastschrift",
			Mode:             ModeRedirect,
			AllowedCountries: []string{"DE", "AT"},
		},
	)
}

// Lookup returns the spec for a method name
func (r *MethodRegistry) Lookup(name string) (MethodSpec, bool) {
	spec, ok := r.methods[strings.ToLower(name)]
	return spec, ok
}

// AvailableFor lists the method names offered for a shipping country
func (r *MethodRegistry) AvailableFor(countryISO string) []string {
	var names []string
	for name, spec := range r.methods {
		if spec.AvailableIn(countryISO) {
			names = append(names, name)
		}
	}
	return names
}
