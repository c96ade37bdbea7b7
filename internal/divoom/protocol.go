package divoom

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Pixoo wire protocol.
//
// Every command travels in one frame:
//
//	0x01 | len_lo len_hi | cmd | payload ... | crc_lo crc_hi | 0x02
//
// len is len(payload)+3 (cmd byte plus the two checksum bytes). The checksum
// is the 16-bit sum of every byte from len_lo through the end of the payload.
// Both are little-endian.
//
// Older firmware needs the frame body byte-stuffed: 0x01, 0x02 and 0x03
// between the start and end markers become 0x03 followed by 0x04, 0x05 and
// 0x06 respectively. Codec.Escape turns this on.
const (
	frameStart  byte = 0x01
	frameEnd    byte = 0x02
	frameEscape byte = 0x03

	// frameOverhead is start + len(2) + cmd + crc(2) + end.
	frameOverhead = 7
)

// Opcode selects the device behaviour a frame triggers.
type Opcode byte

const (
	OpSetView       Opcode = 0x45
	OpSetBrightness Opcode = 0x74
)

// View is the first payload byte of an OpSetView frame.
type View byte

const (
	ViewClock         View = 0x00
	ViewLight         View = 0x01
	ViewEffect        View = 0x03
	ViewVisualization View = 0x04
	ViewDesign        View = 0x05
	ViewScoreboard    View = 0x06
)

// DeviceType identifies a device family and therefore its wire protocol.
type DeviceType string

// DevicePixoo is the only supported family.
const DevicePixoo DeviceType = "pixoo"

// ParseDeviceType validates a configured device type.
func ParseDeviceType(s string) (DeviceType, error) {
	switch DeviceType(strings.ToLower(strings.TrimSpace(s))) {
	case DevicePixoo:
		return DevicePixoo, nil
	default:
		return "", newError(KindValidation, "device type", fmt.Errorf("%w: %q", ErrUnsupportedDevice, s))
	}
}

// Codec encodes intents into Pixoo frames.
type Codec struct {
	// Escape enables byte-stuffing of the frame body.
	Escape bool
}

// Frame wraps a command and payload in the Pixoo framing.
func (c Codec) Frame(op Opcode, payload []byte) []byte {
	body := make([]byte, 0, len(payload)+5)
	body = binary.LittleEndian.AppendUint16(body, uint16(len(payload)+3))
	body = append(body, byte(op))
	body = append(body, payload...)

	var sum uint16
	for _, b := range body {
		sum += uint16(b)
	}
	body = binary.LittleEndian.AppendUint16(body, sum)

	out := make([]byte, 0, len(body)+2)
	out = append(out, frameStart)
	if c.Escape {
		out = append(out, escape(body)...)
	} else {
		out = append(out, body...)
	}
	return append(out, frameEnd)
}

// Brightness encodes a brightness level; level is clamped to 0–100.
func (c Codec) Brightness(level int) []byte {
	return c.Frame(OpSetBrightness, []byte{byte(clamp(level, 0, 100))})
}

// Light encodes the solid-colour light view.
func (c Codec) Light(col Color, brightness int) []byte {
	return c.Frame(OpSetView, []byte{
		byte(ViewLight),
		col.R, col.G, col.B,
		byte(clamp(brightness, 0, 100)),
		0x00, // plain colour, no light effect
		0x01, // on
		0x00, 0x00, 0x00,
	})
}

// Clock encodes the clock view tinted with col.
func (c Codec) Clock(col Color) []byte {
	return c.Frame(OpSetView, []byte{
		byte(ViewClock),
		0x01, // 24h
		0x00, // style
		0x01, // show time
		0x00, 0x00, 0x00,
		col.R, col.G, col.B,
	})
}

// Scoreboard packs two 0–100 scores into the scoreboard view.
func (c Codec) Scoreboard(score1, score2 int) []byte {
	payload := []byte{byte(ViewScoreboard), 0x00}
	payload = binary.LittleEndian.AppendUint16(payload, uint16(clamp(score1, 0, 100)))
	payload = binary.LittleEndian.AppendUint16(payload, uint16(clamp(score2, 0, 100)))
	return c.Frame(OpSetView, payload)
}

// Mode encodes the frame that switches the display to m, using the cached
// colour, brightness and scores where the view needs them.
// Modes outside the closed set return an InvalidMode error and no frame.
func (c Codec) Mode(m Mode, col Color, brightness, score1, score2 int) ([]byte, error) {
	switch m {
	case ModeLight:
		return c.Light(col, brightness), nil
	case ModeClock:
		return c.Clock(col), nil
	case ModeEffect1, ModeEffect2, ModeEffect3:
		return c.Frame(OpSetView, []byte{byte(ViewEffect), byte(m - ModeEffect1)}), nil
	case ModeVisualization1, ModeVisualization2, ModeVisualization3:
		return c.Frame(OpSetView, []byte{byte(ViewVisualization), byte(m - ModeVisualization1)}), nil
	case ModeDesign:
		return c.Frame(OpSetView, []byte{byte(ViewDesign)}), nil
	case ModeScore:
		return c.Scoreboard(score1, score2), nil
	default:
		return nil, newError(KindInvalidMode, "encode mode", fmt.Errorf("%w: %s", ErrUnknownMode, m))
	}
}

// DecodeFrame parses a frame produced by Codec.Frame, verifying the
// markers, length and checksum. The device never sends frames back over
// this link, so only tests and tooling decode.
func DecodeFrame(frame []byte, escaped bool) (Opcode, []byte, error) {
	if len(frame) < frameOverhead || frame[0] != frameStart || frame[len(frame)-1] != frameEnd {
		return 0, nil, fmt.Errorf("%w: bad markers or short frame", ErrMalformedFrame)
	}
	body := frame[1 : len(frame)-1]
	if escaped {
		var err error
		if body, err = unescape(body); err != nil {
			return 0, nil, err
		}
	}
	if len(body) < frameOverhead-2 {
		return 0, nil, fmt.Errorf("%w: short body", ErrMalformedFrame)
	}

	n := int(binary.LittleEndian.Uint16(body[:2]))
	if n != len(body)-2 {
		return 0, nil, fmt.Errorf("%w: length %d, body carries %d", ErrMalformedFrame, n, len(body)-2)
	}

	var sum uint16
	for _, b := range body[:len(body)-2] {
		sum += uint16(b)
	}
	if got := binary.LittleEndian.Uint16(body[len(body)-2:]); got != sum {
		return 0, nil, fmt.Errorf("%w: checksum %#04x, want %#04x", ErrMalformedFrame, got, sum)
	}

	payload := make([]byte, len(body)-5)
	copy(payload, body[3:len(body)-2])
	return Opcode(body[2]), payload, nil
}

func escape(body []byte) []byte {
	out := make([]byte, 0, len(body)+4)
	for _, b := range body {
		if b >= frameStart && b <= frameEscape {
			out = append(out, frameEscape, b+0x03)
			continue
		}
		out = append(out, b)
	}
	return out
}

func unescape(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b != frameEscape {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(body) || body[i] < 0x04 || body[i] > 0x06 {
			return nil, fmt.Errorf("%w: dangling escape", ErrMalformedFrame)
		}
		out = append(out, body[i]-0x03)
	}
	return out, nil
}
