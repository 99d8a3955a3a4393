package mqtt

import "fmt"

// topicRoot is the first level of every Observatory Core topic.
const topicRoot = "obscore"

// Topics builds the MQTT topic scheme used by the actor.
//
// Layout:
//
//	obscore/command/<device>        commands issued to a subsystem
//	obscore/ack/<device>            acknowledgments from a subsystem
//	obscore/status/<device>         retained subsystem state
//	obscore/keyword/<name>          retained actor keywords (running_macros, exposure_state, ...)
//	obscore/ctl/macro/<name>/<op>   operator macro control (run, pause, resume, cancel, modify)
//	obscore/ctl/auto/<op>           operator auto-pilot control (start, stop, modify)
//	obscore/system/status           actor online/offline status (retained, LWT)
//
// The zero value is ready to use.
type Topics struct{}

// Command returns the command topic for a device.
func (Topics) Command(device string) string {
	return fmt.Sprintf("%s/command/%s", topicRoot, device)
}

// Ack returns the acknowledgment topic for a device.
func (Topics) Ack(device string) string {
	return fmt.Sprintf("%s/ack/%s", topicRoot, device)
}

// AckWildcard returns a filter matching acknowledgments from all devices.
func (Topics) AckWildcard() string {
	return topicRoot + "/ack/+"
}

// DeviceStatus returns the retained status topic for a device.
func (Topics) DeviceStatus(device string) string {
	return fmt.Sprintf("%s/status/%s", topicRoot, device)
}

// DeviceStatusWildcard returns a filter matching status from all devices.
func (Topics) DeviceStatusWildcard() string {
	return topicRoot + "/status/+"
}

// Keyword returns the retained topic for an actor keyword.
func (Topics) Keyword(name string) string {
	return fmt.Sprintf("%s/keyword/%s", topicRoot, name)
}

// MacroControl returns the operator control topic for a macro operation.
func (Topics) MacroControl(macro, op string) string {
	return fmt.Sprintf("%s/ctl/macro/%s/%s", topicRoot, macro, op)
}

// MacroControlWildcard returns a filter matching all macro control messages.
func (Topics) MacroControlWildcard() string {
	return topicRoot + "/ctl/macro/+/+"
}

// AutoPilotControl returns the operator control topic for an auto-pilot operation.
func (Topics) AutoPilotControl(op string) string {
	return fmt.Sprintf("%s/ctl/auto/%s", topicRoot, op)
}

// AutoPilotControlWildcard returns a filter matching all auto-pilot control messages.
func (Topics) AutoPilotControlWildcard() string {
	return topicRoot + "/ctl/auto/+"
}

// SystemStatus returns the actor online/offline status topic.
func (Topics) SystemStatus() string {
	return topicRoot + "/system/status"
}
