package device

import (
	"context"
	"fmt"

	"github.com/nerrad567/avbridge/internal/infrastructure/mqtt"
)

// CommandSourceScenario marks commands issued by the orchestrator.
const CommandSourceScenario = "scenario"

// Command is the payload a bridge receives on its command topic.
type Command struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Protocol   string         `json:"-"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source"`
}

// Transport delivers commands to protocol bridges.
type Transport interface {
	Send(ctx context.Context, cmd Command) error
}

// Publisher is the subset of *mqtt.Client used to send commands.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MQTTTransport publishes commands to {prefix}/command/{protocol}/{device_id}.
type MQTTTransport struct {
	pub    Publisher
	topics mqtt.Topics
}

// NewMQTTTransport creates a transport over an MQTT publisher.
func NewMQTTTransport(pub Publisher, topics mqtt.Topics) *MQTTTransport {
	return &MQTTTransport{pub: pub, topics: topics}
}

// Send publishes cmd (never retained). The publish itself waits for the
// broker acknowledgement; ctx is checked first so a cancelled sequence
// does not emit further commands.
func (t *MQTTTransport) Send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cmd.Protocol == "" {
		return fmt.Errorf("%w: device %s has no protocol", ErrInvalidDevice, cmd.DeviceID)
	}
	return t.pub.PublishJSON(t.topics.DeviceCommand(cmd.Protocol, cmd.DeviceID), cmd, false)
}
