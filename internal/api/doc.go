// Package api implements the HTTP REST API of the Divoom bridge.
//
// This package provides:
//   - Device state, mode list and state history reads
//   - Synchronous command execution using the MQTT command vocabulary
//   - Health and runtime statistics
//   - Prometheus exposition at /metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API is a second front door onto the same bridge.Bridge the MQTT
// subscription feeds. A command posted here goes through bridge.Execute,
// so it is serialised with MQTT commands by the device session, recorded
// in history with source "api" and reflected on the retained MQTT state
// topic.
//
// # Error Mapping
//
// Command responses reuse the MQTT acknowledgement body. The HTTP status
// follows the error code:
//
//	INVALID_PARAMETERS, INVALID_MODE, INVALID_COMMAND  400
//	NOT_CONFIGURED                                     404
//	CANCELLED                                          409
//	COMMAND_FAILED                                     502
//	DEVICE_UNREACHABLE                                 503
//	timeout                                            504
//
// # Graceful Degradation
//
// History, database and MQTT dependencies are optional. Endpoints that need
// a missing dependency answer 503; the rest keep working.
package api
