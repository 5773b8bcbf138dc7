package risk

import "strings"

// RuleKind enumerates the known risk rules. The shop's rule engine hands us
// a rule name; unknown names are delegated back to it instead of guessed at.
type RuleKind int

const (
	RuleUnknown RuleKind = iota
	RuleTrafficLightIs
	RuleTrafficLightIsNot
)

// ParseRuleKind maps a configured rule name to its kind
func ParseRuleKind(name string) RuleKind {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRAFFIC_LIGHT_IS":
		return RuleTrafficLightIs
	case "TRAFFIC_LIGHT_IS_NOT":
		return RuleTrafficLightIsNot
	default:
		return RuleUnknown
	}
}

// Decision is the outcome of evaluating a rule against a verdict
type Decision int

const (
	// DecisionAllow leaves the payment method available
	DecisionAllow Decision = iota
	// DecisionBlock removes the payment method for this order
	DecisionBlock
	// DecisionDelegate hands an unknown rule back to the caller's engine
	DecisionDelegate
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "ALLOW"
	case DecisionBlock:
		return "BLOCK"
	case DecisionDelegate:
		return "DELEGATE"
	default:
		return "UNKNOWN"
	}
}

// Evaluate compares a verdict's traffic-light result against the configured
// threshold value.
func Evaluate(kind RuleKind, result, threshold string) Decision {
	switch kind {
	case RuleTrafficLightIs:
		if strings.EqualFold(result, threshold) {
			return DecisionBlock
		}
		return DecisionAllow
	case RuleTrafficLightIsNot:
		if !strings.EqualFold(result, threshold) {
			return DecisionBlock
		}
		return DecisionAllow
	default:
		return DecisionDelegate
	}
}
