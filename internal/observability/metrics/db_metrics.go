package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "run_intervals_open",
			Help: "Machine run-history intervals without an end",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM machine_run_histories WHERE end_at IS NULL")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "production_plans_today",
			Help: "Production plans dated today",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM production_plans WHERE plan_date = CURRENT_DATE")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
