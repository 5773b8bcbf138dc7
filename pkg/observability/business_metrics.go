package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Checkout flow metrics
	checkoutAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of initiated checkout attempts",
	}, []string{
		"payment_method", // creditcard, ideal, paypal, ...
		"mode",           // REDIRECT, IFRAME, SILENT
	})

	checkoutOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Total number of resolved checkout attempts",
	}, []string{
		"payment_method",
		"state", // RESOLVED_OK, RESOLVED_FAILED
		"code",  // paygate response code, empty on success
	})

	checkoutAmountCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_amount_cents_total",
		Help: "Total reserved amount in minor units",
	}, []string{
		"payment_method",
		"currency",
	})

	// Paygate call metrics
	gatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_calls_total",
		Help: "Total server-to-server paygate calls",
	}, []string{
		"operation", // PREAUTH, AUTH, CAPTURE, REFNR, CRIF
		"status",    // ok, failed, error
	})

	gatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Duration of server-to-server paygate calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"operation",
	})

	// Recurring billing metrics
	recurringAuthsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recurring_authorizations_total",
		Help: "Total recurring re-authorization attempts",
	}, []string{
		"status", // success, declined, error
	})

	// Risk check metrics
	riskChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_checks_total",
		Help: "Total CRIF staleness decisions",
	}, []string{
		"decision", // cached, refreshed, skipped_country
	})

	riskVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_verdicts_total",
		Help: "Total fresh CRIF verdicts by traffic light",
	}, []string{
		"result", // GREEN, YELLOW, RED
		"status", // OK, FAILED, 0
	})
)

// RecordCheckoutAttempt records an initiated checkout
func RecordCheckoutAttempt(paymentMethod, mode string) {
	checkoutAttemptsTotal.WithLabelValues(paymentMethod, mode).Inc()
}

// RecordCheckoutOutcome records a resolved checkout attempt. Amount is only
// added for successful resolutions.
func RecordCheckoutOutcome(paymentMethod, state, code, currency string, amountCents int64) {
	checkoutOutcomesTotal.WithLabelValues(paymentMethod, state, code).Inc()
	if amountCents > 0 {
		checkoutAmountCents.WithLabelValues(paymentMethod, currency).Add(float64(amountCents))
	}
}

// RecordGatewayCall records one server-to-server paygate call
func RecordGatewayCall(operation, status string, duration float64) {
	gatewayCallsTotal.WithLabelValues(operation, status).Inc()
	gatewayCallDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRecurringAuth records a recurring re-authorization attempt
func RecordRecurringAuth(status string) {
	recurringAuthsTotal.WithLabelValues(status).Inc()
}

// RecordRiskCheck records a staleness decision
func RecordRiskCheck(decision string) {
	riskChecksTotal.WithLabelValues(decision).Inc()
}

// RecordRiskVerdict records a fresh CRIF verdict
func RecordRiskVerdict(result, status string) {
	riskVerdictsTotal.WithLabelValues(result, status).Inc()
}
