//go:build !linux

package bluetooth

import (
	"context"
	"fmt"
	"runtime"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

var _ divoom.Dialer = (*Dialer)(nil)

// Dial always fails: no Bluetooth transport is implemented for this platform.
func (d *Dialer) Dial(_ context.Context, address string) (divoom.Transport, error) {
	if _, err := ParseAddress(address); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, d.cfg.Transport, runtime.GOOS)
}
