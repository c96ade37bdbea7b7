package bridge

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

// recordingDevice implements Device by recording calls.
type recordingDevice struct {
	calls    []string
	scoreErr error
}

func (d *recordingDevice) record(format string, args ...any) error {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	return nil
}

func (d *recordingDevice) Address() string                   { return "11:75:58:AA:BB:CC" }
func (d *recordingDevice) Connect(context.Context) error     { return d.record("connect") }
func (d *recordingDevice) Disconnect() error                 { return d.record("disconnect") }
func (d *recordingDevice) TurnOn(context.Context) error      { return d.record("on") }
func (d *recordingDevice) TurnOff(context.Context) error     { return d.record("off") }
func (d *recordingDevice) PushScore(context.Context) error   { return d.record("push") }
func (d *recordingDevice) State() divoom.State               { return divoom.State{} }
func (d *recordingDevice) Stats() divoom.Stats               { return divoom.Stats{} }
func (d *recordingDevice) SetMode(_ context.Context, m string) error {
	return d.record("mode %s", m)
}

func (d *recordingDevice) SetBrightness(_ context.Context, v int) error {
	return d.record("brightness %d", v)
}

func (d *recordingDevice) SetColor(_ context.Context, r, g, b int) error {
	return d.record("color %d %d %d", r, g, b)
}

func (d *recordingDevice) SetScore(slot, v int) error {
	if d.scoreErr != nil {
		return d.scoreErr
	}
	return d.record("score %d %d", slot, v)
}

func TestExecute_Dispatch(t *testing.T) {
	tests := []struct {
		name   string
		cmd    string
		params map[string]any
		want   []string
	}{
		{"connect", CommandConnect, nil, []string{"connect"}},
		{"disconnect", CommandDisconnect, nil, []string{"disconnect"}},
		{"on", CommandOn, nil, []string{"on"}},
		{"off", CommandOff, nil, []string{"off"}},
		{"brightness", CommandBrightness, map[string]any{"level": 42.0}, []string{"brightness 42"}},
		{"brightness rounds", CommandBrightness, map[string]any{"level": 42.6}, []string{"brightness 43"}},
		{"brightness out of range passes through", CommandBrightness, map[string]any{"level": 150.0}, []string{"brightness 150"}},
		{"brightness 255 scale", CommandBrightness, map[string]any{"level": 255.0, "scale": 255.0}, []string{"brightness 100"}},
		{"color", CommandColor, map[string]any{"r": 1.0, "g": 2.0, "b": 3.0}, []string{"color 1 2 3"}},
		{"mode", CommandMode, map[string]any{"mode": "Effect 2"}, []string{"mode Effect 2"}},
		{"score pushes by default", CommandScore, map[string]any{"slot": 1.0, "value": 7.0}, []string{"score 1 7", "push"}},
		{"score without push", CommandScore, map[string]any{"slot": 2.0, "value": 9.0, "push": false}, []string{"score 2 9"}},
		{"push_score", CommandPushScore, nil, []string{"push"}},
		{"scoreboard", CommandScoreboard, map[string]any{"score1": 75.0, "score2": 40.0}, []string{"score 1 75", "score 2 40", "push"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &recordingDevice{}
			err := Execute(context.Background(), dev, CommandMessage{Command: tt.cmd, Parameters: tt.params})
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !reflect.DeepEqual(dev.calls, tt.want) {
				t.Errorf("calls = %q, want %q", dev.calls, tt.want)
			}
		})
	}
}

func TestExecute_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		cmd    string
		params map[string]any
	}{
		{"brightness missing", CommandBrightness, nil},
		{"brightness string", CommandBrightness, map[string]any{"level": "high"}},
		{"bad scale", CommandBrightness, map[string]any{"level": 10.0, "scale": 50.0}},
		{"color missing b", CommandColor, map[string]any{"r": 1.0, "g": 2.0}},
		{"mode not string", CommandMode, map[string]any{"mode": 3.0}},
		{"mode missing", CommandMode, nil},
		{"score missing value", CommandScore, map[string]any{"slot": 1.0}},
		{"push not bool", CommandScore, map[string]any{"slot": 1.0, "value": 1.0, "push": "yes"}},
		{"scoreboard missing", CommandScoreboard, map[string]any{"score1": 1.0}},
		{"huge number", CommandBrightness, map[string]any{"level": 1e20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &recordingDevice{}
			err := Execute(context.Background(), dev, CommandMessage{Command: tt.cmd, Parameters: tt.params})
			if !errors.Is(err, ErrInvalidParameters) {
				t.Fatalf("Execute() error = %v, want ErrInvalidParameters", err)
			}
			if len(dev.calls) != 0 {
				t.Errorf("device was called: %q", dev.calls)
			}
		})
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	err := Execute(context.Background(), &recordingDevice{}, CommandMessage{Command: "dance"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Execute() error = %v, want ErrUnknownCommand", err)
	}
}

func TestExecute_ScoreErrorStopsPush(t *testing.T) {
	dev := &recordingDevice{scoreErr: divoom.ErrValidation}
	err := Execute(context.Background(), dev, CommandMessage{
		Command:    CommandScore,
		Parameters: map[string]any{"slot": 3.0, "value": 1.0},
	})
	if !errors.Is(err, divoom.ErrValidation) {
		t.Errorf("Execute() error = %v", err)
	}
	if len(dev.calls) != 0 {
		t.Errorf("calls = %q, want none", dev.calls)
	}
}

func TestCommands(t *testing.T) {
	if got := len(Commands()); got != 10 {
		t.Errorf("len(Commands()) = %d, want 10", got)
	}
}
