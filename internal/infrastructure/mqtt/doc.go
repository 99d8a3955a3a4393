// Package mqtt provides the MQTT transport for Observatory Core.
//
// All communication with observatory subsystems (telescope, spectrographs,
// guider, calibration lamps, enclosure) and with operator consoles flows over
// MQTT. This package wraps paho.mqtt.golang with:
//   - Connection management with auto-reconnect and exponential backoff
//   - Last Will and Testament for crash detection
//   - Subscription tracking with automatic restore on reconnect
//   - Panic recovery around message handlers
//   - The obscore/ topic scheme (see Topics)
//
// Higher layers never touch paho directly: the device bus, telemetry
// reporter, and control surface all go through Client.
//
// Thread Safety:
//   - All Client methods are safe for concurrent use.
package mqtt
