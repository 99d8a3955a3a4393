package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calderwood-obs/observatory-core/internal/infrastructure/mqtt"
)

// Conn is the MQTT surface the bus needs. Satisfied by *mqtt.Client.
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by the bus.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Command is the wire shape published to obscore/command/<device>.
type Command struct {
	ID         string         `json:"id"`
	Device     string         `json:"device"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Ack is the wire shape received on obscore/ack/<device>.
type Ack struct {
	ID      string         `json:"id"`
	Status  string         `json:"status"` // "ok" or "error"
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// OK reports whether the device accepted and completed the command.
func (a *Ack) OK() bool { return a.Status == "ok" }

// Bus issues commands to observatory subsystems over MQTT and correlates
// acknowledgments by command ID. It also caches the retained status fields
// each subsystem publishes, for polling by instrument helpers.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	conn    Conn
	timeout func(device string) time.Duration
	logger  Logger
	topics  mqtt.Topics
	qos     byte

	mu       sync.Mutex
	pending  map[string]chan Ack
	status   map[string]map[string]any
	statusAt map[string]time.Time
	started  bool
}

// NewBus creates a command bus.
//
// Parameters:
//   - conn: MQTT connection
//   - timeout: Per-device ack timeout lookup (config.DeviceTimeout)
//   - qos: QoS level for command publishes
//   - logger: Logger instance (nil for no logging)
func NewBus(conn Conn, timeout func(device string) time.Duration, qos byte, logger Logger) *Bus {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bus{
		conn:     conn,
		timeout:  timeout,
		logger:   logger,
		qos:      qos,
		pending:  make(map[string]chan Ack),
		status:   make(map[string]map[string]any),
		statusAt: make(map[string]time.Time),
	}
}

// Start subscribes to the ack and status wildcards. Call once after the
// MQTT connection is up; the client restores the subscriptions across
// reconnects.
func (b *Bus) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	if err := b.conn.Subscribe(b.topics.AckWildcard(), b.qos, b.handleAck); err != nil {
		return fmt.Errorf("subscribing to acks: %w", err)
	}
	if err := b.conn.Subscribe(b.topics.DeviceStatusWildcard(), b.qos, b.handleStatus); err != nil {
		return fmt.Errorf("subscribing to status: %w", err)
	}
	return nil
}

// Issue publishes a command to a device and waits for the correlated ack.
//
// The wait is bounded by the per-device timeout and by ctx. An ack with
// status "error" is returned alongside ErrCommandFailed so callers can
// inspect its fields.
//
// Returns:
//   - *Ack: The device's acknowledgment (also on ErrCommandFailed)
//   - error: ErrNotStarted, ErrAckTimeout, ErrCommandFailed, ctx.Err(),
//     or a publish error
func (b *Bus) Issue(ctx context.Context, device, command string, params map[string]any) (*Ack, error) {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil, ErrNotStarted
	}
	id := uuid.NewString()
	ch := make(chan Ack, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	cmd := Command{
		ID:         id,
		Device:     device,
		Command:    command,
		Parameters: params,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshalling command: %w", err)
	}

	topic := b.topics.Command(device)
	if err := b.conn.Publish(topic, payload, b.qos, false); err != nil {
		return nil, fmt.Errorf("publishing to %q: %w", topic, err)
	}

	b.logger.Debug("command issued",
		"device", device, "command", command, "command_id", id)

	timer := time.NewTimer(b.timeout(device))
	defer timer.Stop()

	select {
	case ack := <-ch:
		if !ack.OK() {
			return &ack, fmt.Errorf("%w: %s %s: %s", ErrCommandFailed, device, command, ack.Message)
		}
		return &ack, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s %s (command %s)", ErrAckTimeout, device, command, id)
	case <-ctx.Done():
		return nil, fmt.Errorf("awaiting ack from %s: %w", device, ctx.Err())
	}
}

// Status returns the latest cached status fields for a device and the time
// they were received. ok is false when nothing has been heard yet.
func (b *Bus) Status(device string) (fields map[string]any, at time.Time, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cached, ok := b.status[device]
	if !ok {
		return nil, time.Time{}, false
	}
	out := make(map[string]any, len(cached))
	for k, v := range cached {
		out[k] = v
	}
	return out, b.statusAt[device], true
}

// handleAck routes an incoming ack to the waiting Issue call.
func (b *Bus) handleAck(topic string, payload []byte) error {
	var ack Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("parsing ack on %q: %w", topic, err)
	}
	if ack.ID == "" {
		return fmt.Errorf("ack on %q has no command id", topic)
	}

	b.mu.Lock()
	ch, ok := b.pending[ack.ID]
	b.mu.Unlock()
	if !ok {
		// Late ack after timeout, or another actor's command. Not an error.
		b.logger.Debug("unmatched ack dropped", "topic", topic, "command_id", ack.ID)
		return nil
	}

	select {
	case ch <- ack:
	default:
	}
	return nil
}

// handleStatus merges a status publication into the per-device cache.
// Subsystems publish keyed records; later publications overwrite matching
// keys and leave the rest.
func (b *Bus) handleStatus(topic string, payload []byte) error {
	device := deviceFromTopic(topic)
	if device == "" {
		return fmt.Errorf("status on unexpected topic %q", topic)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("parsing status from %s: %w", device, err)
	}

	b.mu.Lock()
	cached, ok := b.status[device]
	if !ok {
		cached = make(map[string]any, len(fields))
		b.status[device] = cached
	}
	for k, v := range fields {
		cached[k] = v
	}
	b.statusAt[device] = time.Now()
	b.mu.Unlock()
	return nil
}

// deviceFromTopic extracts the device name from obscore/status/<device>
// or obscore/ack/<device>.
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
