package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/divoom-bridge/internal/bridge"
)

// SystemMetrics is the JSON summary served at /api/v1/metrics. Prometheus
// scrapers use /metrics instead.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	MQTT          MQTTMetrics        `json:"mqtt"`
	Device        DeviceMetrics      `json:"device"`
	Database      *DatabaseMetrics   `json:"database,omitempty"`
	Statistics    *bridge.Statistics `json:"statistics"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client status.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics summarises the display link.
type DeviceMetrics struct {
	ID              string `json:"id"`
	Address         string `json:"address"`
	ConnectionState string `json:"connection_state"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystemMetrics returns runtime, link and pool statistics.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	state := s.device.State()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Device: DeviceMetrics{
			ID:              s.bridge.DeviceID(),
			Address:         state.Address,
			ConnectionState: state.Connection,
		},
		Statistics: bridge.NewStatistics(s.device.Stats()),
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.HealthCheck(r.Context()) == nil
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
