package service

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

var (
	// OperationsTotal counts engine operations by outcome. result is "ok" or
	// the lower-cased error kind (not_found, invalid_input, conflict, ...).
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "souvenir_engine_operations_total",
			Help: "Total number of engine operations by result",
		},
		[]string{"engine", "operation", "result"},
	)

	// OperationDuration observes engine operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "souvenir_engine_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine", "operation"},
	)

	// PurgedSouvenirsTotal counts souvenirs removed by the out-of-stock purge.
	PurgedSouvenirsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "souvenir_purged_total",
			Help: "Total number of out-of-stock souvenirs deleted",
		},
	)

	// CartsCascadedTotal counts carts rewritten by the purge cascade or a
	// reconciliation pass.
	CartsCascadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "souvenir_carts_cascaded_total",
			Help: "Total number of carts cleaned of deleted souvenirs",
		},
	)
)

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(apperrors.Kind(err))
}

func observe(engine, operation string, start time.Time, err error) {
	OperationsTotal.WithLabelValues(engine, operation, resultLabel(err)).Inc()
	OperationDuration.WithLabelValues(engine, operation).Observe(time.Since(start).Seconds())
}
