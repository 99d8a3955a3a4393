package control

import (
	"context"
	"errors"
	"testing"

	"github.com/calderwood-obs/observatory-core/internal/autopilot"
	"github.com/calderwood-obs/observatory-core/internal/infrastructure/mqtt"
	"github.com/calderwood-obs/observatory-core/internal/macro"
)

// ─── Mocks ──────────────────────────────────────────────────────────────────

type mockSub struct {
	handlers map[string]mqtt.MessageHandler
}

func (m *mockSub) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if m.handlers == nil {
		m.handlers = make(map[string]mqtt.MessageHandler)
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockSub) deliver(t *testing.T, wildcard, topic string, payload []byte) error {
	t.Helper()
	handler, ok := m.handlers[wildcard]
	if !ok {
		t.Fatalf("no handler on %q", wildcard)
	}
	return handler(topic, payload)
}

type call struct {
	Op     string
	Name   string
	Mode   macro.CancelMode
	Params map[string]any
}

type mockMacros struct {
	calls []call
	err   error
}

func (m *mockMacros) Start(_ context.Context, name string, params map[string]any) (*macro.Run, error) {
	m.calls = append(m.calls, call{Op: "start", Name: name, Params: params})
	return nil, m.err
}

func (m *mockMacros) Pause(name string) error {
	m.calls = append(m.calls, call{Op: "pause", Name: name})
	return m.err
}

func (m *mockMacros) Resume(name string) error {
	m.calls = append(m.calls, call{Op: "resume", Name: name})
	return m.err
}

func (m *mockMacros) Cancel(name string, mode macro.CancelMode) error {
	m.calls = append(m.calls, call{Op: "cancel", Name: name, Mode: mode})
	return m.err
}

func (m *mockMacros) Modify(name string, delta map[string]any) error {
	m.calls = append(m.calls, call{Op: "modify", Name: name, Params: delta})
	return m.err
}

type mockPilot struct {
	starts int
	stops  []macro.CancelMode
	err    error
}

func (m *mockPilot) Start(context.Context) error {
	m.starts++
	return m.err
}

func (m *mockPilot) Stop(mode macro.CancelMode) error {
	m.stops = append(m.stops, mode)
	return m.err
}

type mockPause struct {
	changes []bool
}

func (m *mockPause) PauseChanged(_ string, paused bool) {
	m.changes = append(m.changes, paused)
}

type mockSink struct {
	targets []*autopilot.Target
}

func (m *mockSink) Push(target *autopilot.Target) {
	m.targets = append(m.targets, target)
}

func fixture(t *testing.T) (*Controller, *mockSub, *mockMacros, *mockPilot, *mockPause) {
	t.Helper()
	sub := &mockSub{}
	macros := &mockMacros{}
	pilot := &mockPilot{}
	pause := &mockPause{}
	ctl := NewController(context.Background(), sub, macros, pilot, &mockSink{}, pause, 1, nil)
	if err := ctl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return ctl, sub, macros, pilot, pause
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestController_RunMacroWithParams(t *testing.T) {
	_, sub, macros, _, _ := fixture(t)

	err := sub.deliver(t, "obscore/ctl/macro/+/+", "obscore/ctl/macro/expose/run",
		[]byte(`{"count": 3, "exptime": 900}`))
	if err != nil {
		t.Fatalf("deliver error = %v", err)
	}

	if len(macros.calls) != 1 {
		t.Fatalf("calls = %v", macros.calls)
	}
	got := macros.calls[0]
	if got.Op != "start" || got.Name != "expose" {
		t.Errorf("call = %+v", got)
	}
	if got.Params["count"] != 3.0 || got.Params["exptime"] != 900.0 {
		t.Errorf("params = %v", got.Params)
	}
}

func TestController_PauseResumePublishesState(t *testing.T) {
	_, sub, macros, _, pause := fixture(t)

	if err := sub.deliver(t, "obscore/ctl/macro/+/+", "obscore/ctl/macro/expose/pause", nil); err != nil {
		t.Fatalf("pause error = %v", err)
	}
	if err := sub.deliver(t, "obscore/ctl/macro/+/+", "obscore/ctl/macro/expose/resume", nil); err != nil {
		t.Fatalf("resume error = %v", err)
	}

	if len(macros.calls) != 2 || macros.calls[0].Op != "pause" || macros.calls[1].Op != "resume" {
		t.Errorf("calls = %v", macros.calls)
	}
	if len(pause.changes) != 2 || !pause.changes[0] || pause.changes[1] {
		t.Errorf("pause publications = %v, want [true false]", pause.changes)
	}
}

func TestController_PauseFailureSkipsPublication(t *testing.T) {
	_, sub, macros, _, pause := fixture(t)
	macros.err = macro.ErrNotRunning

	if err := sub.deliver(t, "obscore/ctl/macro/+/+", "obscore/ctl/macro/expose/pause", nil); err == nil {
		t.Error("expected pause error to propagate")
	}
	if len(pause.changes) != 0 {
		t.Errorf("pause state published despite failure: %v", pause.changes)
	}
}

func TestController_CancelModes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    macro.CancelMode
		wantErr bool
	}{
		{"empty payload defaults graceful", "", macro.CancelGraceful, false},
		{"explicit graceful", `{"mode":"graceful"}`, macro.CancelGraceful, false},
		{"immediate", `{"mode":"immediate"}`, macro.CancelImmediate, false},
		{"unknown mode", `{"mode":"violent"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sub, macros, _, _ := fixture(t)
			err := sub.deliver(t, "obscore/ctl/macro/+/+",
				"obscore/ctl/macro/expose/cancel", []byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrBadRequest) {
					t.Errorf("error = %v, want ErrBadRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("deliver error = %v", err)
			}
			if macros.calls[0].Mode != tt.want {
				t.Errorf("mode = %v, want %v", macros.calls[0].Mode, tt.want)
			}
		})
	}
}

func TestController_ModifyDelta(t *testing.T) {
	_, sub, macros, _, _ := fixture(t)

	err := sub.deliver(t, "obscore/ctl/macro/+/+", "obscore/ctl/macro/expose/modify",
		[]byte(`{"count": 5}`))
	if err != nil {
		t.Fatalf("deliver error = %v", err)
	}
	if macros.calls[0].Op != "modify" || macros.calls[0].Params["count"] != 5.0 {
		t.Errorf("call = %+v", macros.calls[0])
	}
}

func TestController_UnknownOperation(t *testing.T) {
	_, sub, _, _, _ := fixture(t)

	err := sub.deliver(t, "obscore/ctl/macro/+/+", "obscore/ctl/macro/expose/reboot", nil)
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
}

func TestController_AutoPilotStartStop(t *testing.T) {
	_, sub, _, pilot, _ := fixture(t)

	if err := sub.deliver(t, "obscore/ctl/auto/+", "obscore/ctl/auto/start", nil); err != nil {
		t.Fatalf("start error = %v", err)
	}
	if pilot.starts != 1 {
		t.Errorf("pilot starts = %d, want 1", pilot.starts)
	}

	err := sub.deliver(t, "obscore/ctl/auto/+", "obscore/ctl/auto/stop",
		[]byte(`{"mode":"immediate"}`))
	if err != nil {
		t.Fatalf("stop error = %v", err)
	}
	if len(pilot.stops) != 1 || pilot.stops[0] != macro.CancelImmediate {
		t.Errorf("pilot stops = %v", pilot.stops)
	}
}

func TestController_EnqueueTarget(t *testing.T) {
	sub := &mockSub{}
	sink := &mockSink{}
	ctl := NewController(context.Background(), sub, &mockMacros{}, &mockPilot{}, sink, nil, 1, nil)
	if err := ctl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := sub.deliver(t, "obscore/ctl/auto/+", "obscore/ctl/auto/queue",
		[]byte(`{"field_id":"8823","design_id":"d-1","class":"new","ra":185.2,"dec":-1.3}`))
	if err != nil {
		t.Fatalf("deliver error = %v", err)
	}
	if len(sink.targets) != 1 {
		t.Fatalf("queued targets = %d, want 1", len(sink.targets))
	}
	got := sink.targets[0]
	if got.FieldID != "8823" || got.Class != "new" || got.RA != 185.2 {
		t.Errorf("target = %+v", got)
	}

	// Missing field_id is refused.
	err = sub.deliver(t, "obscore/ctl/auto/+", "obscore/ctl/auto/queue",
		[]byte(`{"class":"new"}`))
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
}

func TestController_MalformedJSONRejected(t *testing.T) {
	_, sub, macros, _, _ := fixture(t)

	err := sub.deliver(t, "obscore/ctl/macro/+/+", "obscore/ctl/macro/expose/run",
		[]byte(`{not json`))
	if err == nil {
		t.Error("expected parse error")
	}
	if len(macros.calls) != 0 {
		t.Errorf("macro started from malformed payload: %v", macros.calls)
	}
}
