// Package metrics defines the Prometheus metrics of the account service. It
// is the single source of truth for metric names, labels and help strings.
//
// Metrics are registered with the default registry on package init through
// promauto and exposed by the echoprometheus handler on /metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

const namespace = "account"

// OutcomeInvalidRequest labels requests rejected by binding or validation
// before the workflow ran.
const OutcomeInvalidRequest = "INVALID_REQUEST"

// OperationsTotal counts workflow calls by outcome.
// Labels:
//   - operation: "login", "register", "password_reset", "password_update", "logout", "me", "set_status"
//   - outcome: "success", "INVALID_REQUEST" or the error code (e.g. "INVALID_CREDENTIALS")
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of account workflow operations, by outcome.",
	},
	[]string{"operation", "outcome"},
)

// OperationDuration measures workflow latency, provider and store calls
// included.
var OperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of account workflow operations.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// SessionRejectionsTotal counts requests turned away by the session and role
// gates.
// Label:
//   - reason: "missing", "malformed_header", "invalid", "expired", "audience", "revoked", "forbidden"
var SessionRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_rejections_total",
		Help:      "Total number of requests rejected by the session gate.",
	},
	[]string{"reason"},
)

// Observe records the outcome and duration of one operation.
func Observe(operation string, start time.Time, err error) {
	OperationsTotal.WithLabelValues(operation, outcomeOf(err)).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return OutcomeInvalidRequest
	}
	return string(domain.CodeOf(err))
}
