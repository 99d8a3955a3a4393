// Package influxdb provides InfluxDB connectivity for Observatory Core.
//
// It wraps the official influxdb-client-go v2 library with Observatory
// Core-specific patterns for connection management, metric writing, and
// health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Stage and macro duration measurements (overhead trends)
//   - Exposure progress and estimated time remaining
//   - Ad-hoc actor telemetry
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "obscore",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write stage telemetry
//	client.WriteStageDuration("goto_field", "slew", 93*time.Second, true)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
