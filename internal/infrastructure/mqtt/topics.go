package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every AV Bridge topic.
const DefaultTopicPrefix = "avbridge"

// Topics builds AV Bridge MQTT topics under a configurable prefix.
//
// Device traffic uses a flat scheme shared with the protocol bridges:
//
//	{prefix}/command/{protocol}/{device_id}   commands from the orchestrator
//	{prefix}/state/{protocol}/{device_id}     state reports from bridges
//
// Orchestrator output lives under {prefix}/core/...
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// DeviceCommand returns the topic a bridge listens on for one device.
//
// Example: avbridge/command/ir/projector-1
func (t Topics) DeviceCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.root(), protocol, deviceID)
}

// DeviceState returns the topic a bridge reports one device's state on.
//
// Example: avbridge/state/ir/projector-1
func (t Topics) DeviceState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.root(), protocol, deviceID)
}

// AllDeviceStates matches every device state report.
//
// Pattern: avbridge/state/+/+
func (t Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+/+", t.root())
}

// CoreEvent returns the topic for an orchestrator event.
//
// Example: avbridge/core/event/scenario.activated
func (t Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/core/event/%s", t.root(), eventType)
}

// AllCoreEvents matches every orchestrator event.
//
// Pattern: avbridge/core/event/+
func (t Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/core/event/+", t.root())
}

// CoreScenarioActive is the retained topic carrying the active scenario.
//
// Example: avbridge/core/scenario/active
func (t Topics) CoreScenarioActive() string {
	return fmt.Sprintf("%s/core/scenario/active", t.root())
}

// CoreScenarioRequest carries scenario control requests to the orchestrator.
//
// Example: avbridge/core/scenario/request
func (t Topics) CoreScenarioRequest() string {
	return fmt.Sprintf("%s/core/scenario/request", t.root())
}

// SystemStatus is the retained online/offline topic (also the LWT topic).
//
// Example: avbridge/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// ParseDeviceTopic splits a command or state topic into its parts.
// ok is false when topic is not {prefix}/{kind}/{protocol}/{device_id}.
func (t Topics) ParseDeviceTopic(topic string) (kind, protocol, deviceID string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/")
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" || strings.Contains(parts[2], "/") {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
