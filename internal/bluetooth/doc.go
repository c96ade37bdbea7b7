// Package bluetooth provides the Bluetooth links a divoom.Session writes
// frames over.
//
// Two transports are available:
//
//   - RFCOMM (classic Bluetooth serial port profile). Pixoo panels expose
//     their command channel this way, normally on channel 1.
//   - BLE GATT. Newer Divoom devices accept the same frames written to a
//     characteristic of a transparent-UART service.
//
// Both are implemented for Linux only (BlueZ kernel sockets for RFCOMM,
// raw HCI via github.com/go-ble/ble for GATT). On other platforms Dial
// returns ErrUnsupportedPlatform.
//
// # Usage
//
//	dialer, err := bluetooth.NewDialer(bluetooth.Config{Transport: bluetooth.TransportRFCOMM})
//	if err != nil {
//	    return err
//	}
//	session, err := divoom.NewSession("11:75:58:AA:BB:CC", dialer, divoom.Options{})
package bluetooth
