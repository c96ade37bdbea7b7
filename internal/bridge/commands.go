package bridge

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

// Command names.
const (
	CommandConnect    = "connect"
	CommandDisconnect = "disconnect"
	CommandOn         = "on"
	CommandOff        = "off"
	CommandBrightness = "brightness"
	CommandColor      = "color"
	CommandMode       = "mode"
	CommandScore      = "score"
	CommandPushScore  = "push_score"
	CommandScoreboard = "scoreboard"
)

// Commands lists every accepted command name.
func Commands() []string {
	return []string{
		CommandConnect, CommandDisconnect, CommandOn, CommandOff,
		CommandBrightness, CommandColor, CommandMode,
		CommandScore, CommandPushScore, CommandScoreboard,
	}
}

// Device is the session surface commands drive. *divoom.Session
// implements it.
type Device interface {
	Address() string
	Connect(ctx context.Context) error
	Disconnect() error
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	SetBrightness(ctx context.Context, v int) error
	SetColor(ctx context.Context, r, g, b int) error
	SetMode(ctx context.Context, label string) error
	SetScore(slot, v int) error
	PushScore(ctx context.Context) error
	State() divoom.State
	Stats() divoom.Stats
}

var _ Device = (*divoom.Session)(nil)

// Execute runs one command against dev.
//
// Parameter errors wrap ErrInvalidParameters and an unknown name wraps
// ErrUnknownCommand; both are returned before the device is touched.
// Session failures are returned unchanged (*divoom.Error).
func Execute(ctx context.Context, dev Device, cmd CommandMessage) error {
	p := params(cmd.Parameters)

	switch cmd.Command {
	case CommandConnect:
		return dev.Connect(ctx)

	case CommandDisconnect:
		return dev.Disconnect()

	case CommandOn:
		return dev.TurnOn(ctx)

	case CommandOff:
		return dev.TurnOff(ctx)

	case CommandBrightness:
		level, err := p.requireInt("level")
		if err != nil {
			return err
		}
		scale, err := p.intOr("scale", 100)
		if err != nil {
			return err
		}
		switch scale {
		case 100:
		case 255:
			level = divoom.ScaleFrom255(level)
		default:
			return fmt.Errorf("%w: 'scale' must be 100 or 255, got %d", ErrInvalidParameters, scale)
		}
		return dev.SetBrightness(ctx, level)

	case CommandColor:
		r, err := p.requireInt("r")
		if err != nil {
			return err
		}
		g, err := p.requireInt("g")
		if err != nil {
			return err
		}
		b, err := p.requireInt("b")
		if err != nil {
			return err
		}
		return dev.SetColor(ctx, r, g, b)

	case CommandMode:
		mode, err := p.requireString("mode")
		if err != nil {
			return err
		}
		return dev.SetMode(ctx, mode)

	case CommandScore:
		slot, err := p.requireInt("slot")
		if err != nil {
			return err
		}
		value, err := p.requireInt("value")
		if err != nil {
			return err
		}
		push, err := p.boolOr("push", true)
		if err != nil {
			return err
		}
		if err := dev.SetScore(slot, value); err != nil {
			return err
		}
		if !push {
			return nil
		}
		return dev.PushScore(ctx)

	case CommandPushScore:
		return dev.PushScore(ctx)

	case CommandScoreboard:
		s1, err := p.requireInt("score1")
		if err != nil {
			return err
		}
		s2, err := p.requireInt("score2")
		if err != nil {
			return err
		}
		if err := dev.SetScore(1, s1); err != nil {
			return err
		}
		if err := dev.SetScore(2, s2); err != nil {
			return err
		}
		return dev.PushScore(ctx)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

// params reads typed values from decoded JSON parameters.
type params map[string]any

func (p params) requireInt(name string) (int, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing '%s'", ErrInvalidParameters, name)
	}
	return toInt(name, v)
}

func (p params) intOr(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	return toInt(name, v)
}

func (p params) requireString(name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", fmt.Errorf("%w: missing '%s'", ErrInvalidParameters, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: '%s' must be a string", ErrInvalidParameters, name)
	}
	return s, nil
}

func (p params) boolOr(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: '%s' must be a boolean", ErrInvalidParameters, name)
	}
	return b, nil
}

// toInt accepts JSON numbers (float64) and Go ints. Fractions are rounded.
func toInt(name string, v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) > math.MaxInt32 {
			return 0, fmt.Errorf("%w: '%s' is out of range", ErrInvalidParameters, name)
		}
		return int(math.Round(n)), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: '%s' must be a number", ErrInvalidParameters, name)
	}
}
