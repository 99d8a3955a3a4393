package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calderwood-obs/observatory-core/internal/autopilot"
	"github.com/calderwood-obs/observatory-core/internal/infrastructure/mqtt"
	"github.com/calderwood-obs/observatory-core/internal/macro"
)

// Operations accepted on the control topics.
const (
	OpRun    = "run"
	OpPause  = "pause"
	OpResume = "resume"
	OpCancel = "cancel"
	OpModify = "modify"
	OpStart  = "start"
	OpStop   = "stop"
	OpQueue  = "queue"
)

// Subscriber is the MQTT surface the controller needs. Satisfied by
// *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MacroControl is the registry surface the controller drives. Satisfied by
// *macro.Registry.
type MacroControl interface {
	Start(ctx context.Context, name string, params map[string]any) (*macro.Run, error)
	Pause(name string) error
	Resume(name string) error
	Cancel(name string, mode macro.CancelMode) error
	Modify(name string, delta map[string]any) error
}

// PilotControl is the auto-pilot surface. Satisfied by *autopilot.Pilot.
type PilotControl interface {
	Start(ctx context.Context) error
	Stop(mode macro.CancelMode) error
}

// TargetSink accepts operator-enqueued observing targets. Satisfied by
// *autopilot.MemoryQueue.
type TargetSink interface {
	Push(target *autopilot.Target)
}

// PauseReporter publishes pause-state transitions. Satisfied by
// *telemetry.Reporter; nil disables the publication.
type PauseReporter interface {
	PauseChanged(macroName string, paused bool)
}

// Logger is the logging surface the controller needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Controller is the operator control surface: it subscribes to the
// obscore/ctl topics and dispatches operations to the macro registry and
// the auto-pilot. Payloads are JSON objects; a run payload is the macro's
// parameter bag, a cancel or stop payload selects the mode.
type Controller struct {
	sub      Subscriber
	macros   MacroControl
	pilot    PilotControl
	queue    TargetSink
	reporter PauseReporter
	logger   Logger
	topics   mqtt.Topics
	qos      byte

	// baseCtx parents every macro run started over MQTT; daemon shutdown
	// cancels them all.
	baseCtx context.Context
}

// NewController creates the control surface.
func NewController(ctx context.Context, sub Subscriber, macros MacroControl, pilot PilotControl, queue TargetSink, reporter PauseReporter, qos byte, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		sub:      sub,
		macros:   macros,
		pilot:    pilot,
		queue:    queue,
		reporter: reporter,
		logger:   logger,
		qos:      qos,
		baseCtx:  ctx,
	}
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Start subscribes the control topics.
func (c *Controller) Start() error {
	if err := c.sub.Subscribe(c.topics.MacroControlWildcard(), c.qos, c.handleMacro); err != nil {
		return fmt.Errorf("subscribing macro control: %w", err)
	}
	if err := c.sub.Subscribe(c.topics.AutoPilotControlWildcard(), c.qos, c.handleAuto); err != nil {
		return fmt.Errorf("subscribing autopilot control: %w", err)
	}
	return nil
}

// cancelPayload selects the cancellation mode for cancel and stop
// operations. An empty payload means graceful.
type cancelPayload struct {
	Mode string `json:"mode"`
}

func parseCancelMode(payload []byte) (macro.CancelMode, error) {
	if len(payload) == 0 {
		return macro.CancelGraceful, nil
	}
	var body cancelPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", fmt.Errorf("parsing cancel payload: %w", err)
	}
	switch body.Mode {
	case "", string(macro.CancelGraceful):
		return macro.CancelGraceful, nil
	case string(macro.CancelImmediate):
		return macro.CancelImmediate, nil
	default:
		return "", fmt.Errorf("%w: cancel mode %q", ErrBadRequest, body.Mode)
	}
}

func parseParams(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, fmt.Errorf("parsing parameters: %w", err)
	}
	return params, nil
}

// handleMacro dispatches obscore/ctl/macro/<name>/<op>.
func (c *Controller) handleMacro(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 {
		return fmt.Errorf("%w: topic %q", ErrBadRequest, topic)
	}
	name, op := parts[3], parts[4]

	var err error
	switch op {
	case OpRun:
		err = c.runMacro(name, payload)
	case OpPause:
		if err = c.macros.Pause(name); err == nil && c.reporter != nil {
			c.reporter.PauseChanged(name, true)
		}
	case OpResume:
		if err = c.macros.Resume(name); err == nil && c.reporter != nil {
			c.reporter.PauseChanged(name, false)
		}
	case OpCancel:
		var mode macro.CancelMode
		if mode, err = parseCancelMode(payload); err == nil {
			err = c.macros.Cancel(name, mode)
		}
	case OpModify:
		var delta map[string]any
		if delta, err = parseParams(payload); err == nil {
			err = c.macros.Modify(name, delta)
		}
	default:
		err = fmt.Errorf("%w: operation %q", ErrBadRequest, op)
	}

	if err != nil {
		c.logger.Warn("macro control failed", "macro", name, "op", op, "error", err)
		return err
	}
	c.logger.Info("macro control", "macro", name, "op", op)
	return nil
}

func (c *Controller) runMacro(name string, payload []byte) error {
	params, err := parseParams(payload)
	if err != nil {
		return err
	}
	_, err = c.macros.Start(c.baseCtx, name, params)
	return err
}

// enqueueTarget adds an operator-submitted target to the observing queue.
func (c *Controller) enqueueTarget(payload []byte) error {
	if c.queue == nil {
		return fmt.Errorf("%w: no target queue configured", ErrBadRequest)
	}
	var target autopilot.Target
	if err := json.Unmarshal(payload, &target); err != nil {
		return fmt.Errorf("parsing target: %w", err)
	}
	if target.FieldID == "" {
		return fmt.Errorf("%w: target missing field_id", ErrBadRequest)
	}
	c.queue.Push(&target)
	return nil
}

// handleAuto dispatches obscore/ctl/auto/<op>.
func (c *Controller) handleAuto(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return fmt.Errorf("%w: topic %q", ErrBadRequest, topic)
	}
	op := parts[3]

	var err error
	switch op {
	case OpStart:
		err = c.pilot.Start(c.baseCtx)
	case OpStop:
		var mode macro.CancelMode
		if mode, err = parseCancelMode(payload); err == nil {
			err = c.pilot.Stop(mode)
		}
	case OpQueue:
		err = c.enqueueTarget(payload)
	default:
		err = fmt.Errorf("%w: operation %q", ErrBadRequest, op)
	}

	if err != nil {
		c.logger.Warn("autopilot control failed", "op", op, "error", err)
		return err
	}
	c.logger.Info("autopilot control", "op", op)
	return nil
}
