package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// EngineStats gives the collector scrape-time access to pipeline state.
type EngineStats interface {
	AvgPassMicros() int64
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool   *pgxpool.Pool
	engine EngineStats

	// Descriptors for scrape-time gauges.
	avgPassMicros   *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// pool may be nil (metrics will report 0). engine may be nil if no
// pipeline is running in this process.
func NewCollector(pool *pgxpool.Pool, engine EngineStats) *Collector {
	return &Collector{
		pool:   pool,
		engine: engine,
		avgPassMicros: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pipeline_avg_pass_micros"),
			"Moving average of one pipeline pass, in microseconds.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.avgPassMicros
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.engine != nil {
		ch <- prometheus.MustNewConstMetric(c.avgPassMicros, prometheus.GaugeValue, float64(c.engine.AvgPassMicros()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.avgPassMicros, prometheus.GaugeValue, 0)
	}

	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}
