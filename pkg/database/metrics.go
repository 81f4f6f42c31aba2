package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type poolStat struct {
	name  string
	help  string
	kind  prometheus.ValueType
	value func(*pgxpool.Stat) float64
}

var poolStats = []poolStat{
	{"acquired_connections", "Number of currently acquired connections", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
	{"idle_connections", "Number of currently idle connections", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
	{"total_connections", "Total number of connections in the pool", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
	{"max_connections", "Maximum number of connections allowed", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
	{"constructing_connections", "Number of connections currently being constructed", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.ConstructingConns()) }},
	{"acquire_count_total", "Total number of connection acquires", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
	{"acquire_duration_seconds_total", "Total time spent acquiring connections in seconds", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
	{"canceled_acquire_count_total", "Total number of canceled connection acquires", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
	{"empty_acquire_count_total", "Total number of acquires that had to wait for a connection", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
	{"new_connections_total", "Total number of new connections created", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.NewConnsCount()) }},
}

// PoolStatsCollector exports pgxpool statistics for the catalog store.
type PoolStatsCollector struct {
	pool  *pgxpool.Pool
	descs []*prometheus.Desc
}

// NewPoolStatsCollector builds a collector whose metrics carry a constant
// service label.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	c := &PoolStatsCollector{pool: pool, descs: make([]*prometheus.Desc, len(poolStats))}
	labels := prometheus.Labels{"service": service}
	for i, st := range poolStats {
		c.descs[i] = prometheus.NewDesc(prometheus.BuildFQName("db", "pool", st.name), st.help, nil, labels)
	}
	return c
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	for i, st := range poolStats {
		ch <- prometheus.MustNewConstMetric(c.descs[i], st.kind, st.value(stat))
	}
}

// RegisterPoolMetrics registers a pool collector with the default registry.
// Registering the same service twice is not an error.
func RegisterPoolMetrics(pool *pgxpool.Pool, service string) error {
	err := prometheus.Register(NewPoolStatsCollector(pool, service))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}
