// Package bridge connects one Divoom display session to MQTT.
//
// It translates JSON commands received on {prefix}/command/{device_id}
// into session intents, acknowledges each one on {prefix}/ack/{device_id},
// and keeps a retained snapshot of the display on {prefix}/state/{device_id}.
// A HealthReporter publishes bridge health on {prefix}/health at a fixed
// interval.
//
// Command vocabulary (parameters in brackets):
//
//	connect, disconnect
//	on, off
//	brightness   [level 0-100, scale 100|255]
//	color        [r, g, b 0-255]
//	mode         [mode label, e.g. "Clock" or "Effect 2"]
//	score        [slot 1|2, value 0-100, push bool default true]
//	push_score
//	scoreboard   [score1, score2]
//
// The HTTP API reuses Execute, so both surfaces accept the same commands
// and report failures with the same error codes.
package bridge
