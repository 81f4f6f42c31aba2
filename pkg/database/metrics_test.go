package database

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

var _ prometheus.Collector = (*PoolStatsCollector)(nil)

func describe(c prometheus.Collector) []string {
	ch := make(chan *prometheus.Desc, len(poolStats)+1)
	c.Describe(ch)
	close(ch)

	var out []string
	for d := range ch {
		out = append(out, d.String())
	}
	return out
}

func TestPoolStatsCollector_Describe(t *testing.T) {
	descs := describe(NewPoolStatsCollector(nil, "souvenir-engine"))

	assert.Len(t, descs, len(poolStats))
	for _, want := range []string{
		"db_pool_acquired_connections",
		"db_pool_idle_connections",
		"db_pool_max_connections",
		"db_pool_acquire_duration_seconds_total",
		"db_pool_empty_acquire_count_total",
	} {
		found := false
		for _, d := range descs {
			if strings.Contains(d, `"`+want+`"`) {
				found = true
			}
		}
		assert.True(t, found, "missing descriptor %s", want)
	}
}

func TestPoolStatsCollector_ServiceLabel(t *testing.T) {
	for _, d := range describe(NewPoolStatsCollector(nil, "souvenir-engine")) {
		assert.Contains(t, d, `service="souvenir-engine"`)
	}
}

func TestPoolStats_UniqueNames(t *testing.T) {
	seen := make(map[string]bool, len(poolStats))
	for _, st := range poolStats {
		assert.False(t, seen[st.name], "duplicate pool stat %s", st.name)
		assert.NotEmpty(t, st.help)
		seen[st.name] = true
	}
}
