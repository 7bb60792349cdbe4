package scenario

import (
	"time"

	"github.com/nerrad567/avbridge/internal/infrastructure/mqtt"
)

// Event types broadcast by the manager.
const (
	EventActivated  = "scenario.activated"
	EventShutdown   = "scenario.shutdown"
	EventRoleAction = "scenario.role_action"
)

// Broadcaster fans manager events out to listeners.
type Broadcaster interface {
	// Broadcast sends an event. It must not block on slow listeners.
	Broadcast(eventType string, payload any)
}

// ActivatedEvent is the payload of scenario.activated.
type ActivatedEvent struct {
	ScenarioID string          `json:"scenario_id"`
	PreviousID string          `json:"previous_id,omitempty"`
	Graceful   bool            `json:"graceful"`
	Status     ExecutionStatus `json:"status"`
	Failed     int             `json:"failed"`
}

// ShutdownEvent is the payload of scenario.shutdown.
type ShutdownEvent struct {
	ScenarioID string          `json:"scenario_id"`
	Status     ExecutionStatus `json:"status"`
	Failed     int             `json:"failed"`
}

// RoleActionEvent is the payload of scenario.role_action.
type RoleActionEvent struct {
	ScenarioID string `json:"scenario_id"`
	Role       string `json:"role"`
	Command    string `json:"command"`
	DeviceID   string `json:"device_id"`
	Outcome    string `json:"outcome"`
}

// Publisher is the MQTT surface MQTTBroadcaster needs. *mqtt.Client
// satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// envelope wraps every published event.
type envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// activeScenario is the retained "what is on" message.
type activeScenario struct {
	ScenarioID string    `json:"scenario_id"`
	Since      time.Time `json:"since"`
}

// MQTTBroadcaster publishes events to {prefix}/core/event/{type} and keeps
// the retained {prefix}/core/scenario/active message current.
type MQTTBroadcaster struct {
	pub    Publisher
	topics mqtt.Topics
	logger Logger
}

// NewMQTTBroadcaster creates a broadcaster publishing through pub.
func NewMQTTBroadcaster(pub Publisher, topics mqtt.Topics) *MQTTBroadcaster {
	return &MQTTBroadcaster{pub: pub, topics: topics, logger: noopLogger{}}
}

// SetLogger sets the logger for the broadcaster.
func (b *MQTTBroadcaster) SetLogger(logger Logger) {
	b.logger = logger
}

// Broadcast publishes the event. Publish failures are logged and dropped.
func (b *MQTTBroadcaster) Broadcast(eventType string, payload any) {
	now := time.Now().UTC()
	msg := envelope{Type: eventType, Timestamp: now, Payload: payload}
	if err := b.pub.PublishJSON(b.topics.CoreEvent(eventType), msg, false); err != nil {
		b.logger.Warn("publishing scenario event failed", "event", eventType, "error", err)
	}

	var active *activeScenario
	switch ev := payload.(type) {
	case ActivatedEvent:
		active = &activeScenario{ScenarioID: ev.ScenarioID, Since: now}
	case ShutdownEvent:
		active = &activeScenario{Since: now}
	default:
		return
	}
	if err := b.pub.PublishJSON(b.topics.CoreScenarioActive(), active, true); err != nil {
		b.logger.Warn("publishing active scenario failed", "scenario_id", active.ScenarioID, "error", err)
	}
}
