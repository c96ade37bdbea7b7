//go:build linux

package bluetooth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

// ATT MTU bounds. Each write carries at most MTU-3 bytes of value.
const (
	defaultATTMTU = 23
	maxATTMTU     = 512
)

// The HCI device is process-wide in go-ble; it is opened on first GATT dial.
var (
	hciOnce sync.Once
	hciErr  error
)

func openHCI() error {
	hciOnce.Do(func() {
		dev, err := linux.NewDevice()
		if err != nil {
			hciErr = fmt.Errorf("bluetooth: open hci device: %w", err)
			return
		}
		ble.SetDefaultDevice(dev)
	})
	return hciErr
}

// gattTransport writes frames to one characteristic of a connected peripheral.
type gattTransport struct {
	client    ble.Client
	char      *ble.Characteristic
	noRsp     bool
	chunkSize int
	closed    atomic.Bool
}

var (
	_ divoom.Transport   = (*gattTransport)(nil)
	_ divoom.LinkWatcher = (*gattTransport)(nil)
)

func (d *Dialer) dialGATT(ctx context.Context, address string) (divoom.Transport, error) {
	if _, err := ParseAddress(address); err != nil {
		return nil, err
	}
	svcUUID, err := ble.Parse(d.cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("bluetooth: service uuid: %w", err)
	}
	chrUUID, err := ble.Parse(d.cfg.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("bluetooth: characteristic uuid: %w", err)
	}
	if err := openHCI(); err != nil {
		return nil, err
	}

	d.logDebug("gatt connecting", "address", address)
	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("bluetooth: gatt dial: %w", err)
	}

	abort := func() { _ = client.CancelConnection() }

	var profile *ble.Profile
	err = withContext(ctx, abort, func() error {
		var derr error
		profile, derr = client.DiscoverProfile(true)
		return derr
	})
	if err != nil {
		abort()
		return nil, fmt.Errorf("bluetooth: gatt discovery: %w", err)
	}

	char := findCharacteristic(profile, svcUUID, chrUUID)
	if char == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("%w: %s/%s", ErrCharacteristicNotFound, d.cfg.ServiceUUID, d.cfg.CharacteristicUUID)
	}

	mtu := defaultATTMTU
	var txMTU int
	err = withContext(ctx, abort, func() error {
		var merr error
		txMTU, merr = client.ExchangeMTU(maxATTMTU)
		return merr
	})
	switch {
	case ctx.Err() != nil:
		return nil, fmt.Errorf("bluetooth: gatt mtu exchange: %w", ctx.Err())
	case err != nil:
		d.logWarn("gatt mtu exchange failed, using default", "error", err)
	case txMTU > 3:
		mtu = txMTU
	}

	return &gattTransport{
		client:    client,
		char:      char,
		noRsp:     d.cfg.WriteWithoutResponse,
		chunkSize: mtu - 3,
	}, nil
}

func findCharacteristic(p *ble.Profile, svc, chr ble.UUID) *ble.Characteristic {
	if p == nil {
		return nil
	}
	for _, s := range p.Services {
		if !s.UUID.Equal(svc) {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID.Equal(chr) {
				return c
			}
		}
	}
	return nil
}

// withContext runs fn and returns its error. If ctx ends first, abort is
// called to unblock fn, since go-ble calls take no context, and ctx's error
// is returned.
func withContext(ctx context.Context, abort func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		abort()
		return ctx.Err()
	}
}

// Write sends frame in MTU-sized pieces.
func (t *gattTransport) Write(ctx context.Context, frame []byte) error {
	for _, part := range chunk(frame, t.chunkSize) {
		if t.closed.Load() {
			return ErrClosed
		}
		err := withContext(ctx, func() { _ = t.Close() }, func() error {
			return t.client.WriteCharacteristic(t.char, part, t.noRsp)
		})
		if err != nil {
			return fmt.Errorf("bluetooth: gatt write: %w", err)
		}
	}
	return nil
}

// Done is closed when the peripheral disconnects.
func (t *gattTransport) Done() <-chan struct{} {
	return t.client.Disconnected()
}

// Close drops the connection. Safe to call more than once.
func (t *gattTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.client.CancelConnection()
}
