//go:build linux

package bluetooth

import (
	"context"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

// Ensure Dialer implements divoom.Dialer.
var _ divoom.Dialer = (*Dialer)(nil)

// Dial opens the configured transport to address.
func (d *Dialer) Dial(ctx context.Context, address string) (divoom.Transport, error) {
	if d.cfg.Transport == TransportGATT {
		return d.dialGATT(ctx, address)
	}
	return d.dialRFCOMM(ctx, address)
}
