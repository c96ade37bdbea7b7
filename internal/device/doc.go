// Package device builds the display session described by the device section
// of config.yaml.
//
// It is the single place where configuration meets the Bluetooth transport
// and the session core, so the long-running bridge and the one-shot CLI
// drive the panel identically:
//
//	┌────────────────────┐     ┌────────────────────┐     ┌────────────────────┐
//	│ config.DeviceConfig│────▶│ bluetooth.Dialer   │────▶│  divoom.Session    │
//	│ (yaml + env)       │     │ (rfcomm | gatt)    │     │  (state machine,   │
//	└────────────────────┘     └────────────────────┘     │   cached state)    │
//	                                                      └────────────────────┘
//
// # Usage
//
//	sess, err := device.Open(cfg.Device, device.Hooks{
//	    Logger:   log.Component("session"),
//	    Recorder: recorder,
//	    OnChange: b.HandleStateChange,
//	})
package device
