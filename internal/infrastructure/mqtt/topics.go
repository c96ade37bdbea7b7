package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the first topic level when none is configured.
const DefaultTopicPrefix = "divoom"

// Topics builds the bridge's MQTT topic hierarchy:
//
//	{prefix}/command/{device_id}   commands in (JSON CommandMessage)
//	{prefix}/ack/{device_id}       command acknowledgements out
//	{prefix}/state/{device_id}     retained device state out
//	{prefix}/health                retained bridge health out
//	{prefix}/status                retained online/offline (LWT)
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

// NewTopics returns Topics for prefix, trimming stray slashes.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.Trim(prefix, "/")}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Command returns the command topic for a device.
//
// Example: divoom/command/pixoo
func (t Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix(), deviceID)
}

// Ack returns the acknowledgement topic for a device.
//
// Example: divoom/ack/pixoo
func (t Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", t.prefix(), deviceID)
}

// State returns the retained state topic for a device.
//
// Example: divoom/state/pixoo
func (t Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", t.prefix(), deviceID)
}

// Health returns the retained bridge health topic.
func (t Topics) Health() string {
	return t.prefix() + "/health"
}

// Status returns the retained online/offline topic used for the LWT.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// AllCommands matches commands for every device.
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+"
}

// DeviceFromTopic extracts the device ID from a command, ack or state topic.
// It returns "" if topic is not under this prefix.
func (t Topics) DeviceFromTopic(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
