package bluetooth

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (or with '-' separators) into
// its six bytes, most significant first.
func ParseAddress(s string) ([6]byte, error) {
	var addr [6]byte

	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != 6 {
		return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
		}
		addr[i] = byte(b)
	}
	return addr, nil
}

// chunk splits frame into pieces of at most size bytes.
func chunk(frame []byte, size int) [][]byte {
	if size <= 0 || len(frame) <= size {
		return [][]byte{frame}
	}
	out := make([][]byte, 0, (len(frame)+size-1)/size)
	for len(frame) > size {
		out = append(out, frame[:size])
		frame = frame[size:]
	}
	if len(frame) > 0 {
		out = append(out, frame)
	}
	return out
}
