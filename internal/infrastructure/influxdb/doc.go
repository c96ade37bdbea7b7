// Package influxdb writes display telemetry to InfluxDB v2.
//
// Telemetry is optional. When enabled, the bridge writes a display_state
// point on every confirmed state change and a display_connection point on
// every connection transition. Writes are batched and never block the
// caller; errors surface through SetOnError.
package influxdb
