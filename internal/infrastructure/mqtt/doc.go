// Package mqtt provides MQTT client connectivity for the Divoom bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload size checks
//   - Subscriptions that survive reconnects
//   - Last Will and Testament on the status topic
//
// # Topic hierarchy
//
//	divoom/command/{device_id}   in:  CommandMessage JSON
//	divoom/ack/{device_id}       out: AckMessage JSON
//	divoom/state/{device_id}     out: retained device state
//	divoom/health                out: retained bridge health
//	divoom/status                out: retained online/offline (LWT)
//
// The first level is configurable (bridge.topic_prefix).
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Bridge.TopicPrefix))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// # Security
//
// Enable TLS (mqtt.broker.tls) when the broker is not on localhost.
package mqtt
