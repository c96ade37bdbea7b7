package divoom

import (
	"fmt"
	"strings"
)

// Mode is one of the display modes the device supports.
// The set is closed; labels only exist at the boundary via ParseMode and String.
type Mode int

const (
	ModeLight Mode = iota
	ModeClock
	ModeEffect1
	ModeEffect2
	ModeEffect3
	ModeVisualization1
	ModeVisualization2
	ModeVisualization3
	ModeDesign
	ModeScore

	modeCount
)

// modeLabels is the mapping table between modes and host-platform labels.
// Order is display order.
var modeLabels = [modeCount]string{
	ModeLight:          "Light",
	ModeClock:          "Clock",
	ModeEffect1:        "Effect 1",
	ModeEffect2:        "Effect 2",
	ModeEffect3:        "Effect 3",
	ModeVisualization1: "Visualization 1",
	ModeVisualization2: "Visualization 2",
	ModeVisualization3: "Visualization 3",
	ModeDesign:         "Design",
	ModeScore:          "Score",
}

var modeIndex = func() map[string]Mode {
	idx := make(map[string]Mode, 2*int(modeCount))
	for m, label := range modeLabels {
		idx[normaliseLabel(label)] = Mode(m)
	}
	return idx
}()

// normaliseLabel lower-cases and strips separators, so "Effect 1",
// "effect1" and "EFFECT_1" all resolve to the same mode.
func normaliseLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

// ParseMode resolves a host-platform label to a Mode.
//
// Unknown labels fail closed with an InvalidMode error; callers must not
// fall back to a default mode.
func ParseMode(label string) (Mode, error) {
	if m, ok := modeIndex[normaliseLabel(label)]; ok {
		return m, nil
	}
	return 0, newError(KindInvalidMode, "parse mode", fmt.Errorf("%w: %q", ErrUnknownMode, label))
}

// String returns the host-platform label, or "Mode(n)" for values outside the set.
func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeLabels[m]
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m >= 0 && m < modeCount
}

// Modes returns every mode label in display order.
func Modes() []string {
	out := make([]string, 0, modeCount)
	for _, label := range modeLabels {
		out = append(out, label)
	}
	return out
}
