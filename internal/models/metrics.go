package models

import "time"

// SystemMetrics is a point-in-time aggregate snapshot exposed on the
// internal metrics endpoint alongside the Prometheus scrape output.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	EngineOpsInFlight        int64     `json:"engine_ops_in_flight"`
	EngineOpsTotal           uint64    `json:"engine_ops_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
