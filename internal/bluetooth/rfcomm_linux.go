//go:build linux

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

const (
	// connectPollInterval is how often a pending connect re-checks ctx.
	connectPollInterval = 100 * time.Millisecond

	// readBufferSize is the size of the buffer used to drain device replies.
	readBufferSize = 256
)

// rfcommTransport is a connected RFCOMM stream socket.
//
// The device answers some commands with status frames; a reader goroutine
// drains them so the socket buffer never fills, and closes done when the
// link drops.
type rfcommTransport struct {
	f      *os.File
	closed atomic.Bool
	done   chan struct{}
	once   sync.Once
	logger Logger
}

var (
	_ divoom.Transport   = (*rfcommTransport)(nil)
	_ divoom.LinkWatcher = (*rfcommTransport)(nil)
)

func (d *Dialer) dialRFCOMM(ctx context.Context, address string) (divoom.Transport, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("bluetooth: rfcomm socket: %w", err)
	}

	// The kernel expects the address little-endian.
	sa := &unix.SockaddrRFCOMM{Channel: d.cfg.RFCOMMChannel}
	for i := range addr {
		sa.Addr[i] = addr[len(addr)-1-i]
	}

	d.logDebug("rfcomm connecting", "address", address, "channel", d.cfg.RFCOMMChannel)
	if err := connectNonblocking(ctx, fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	t := &rfcommTransport{
		f:      os.NewFile(uintptr(fd), "rfcomm:"+address),
		done:   make(chan struct{}),
		logger: d.cfg.Logger,
	}
	go t.drain()
	return t, nil
}

// connectNonblocking completes a non-blocking connect, giving up when ctx ends.
func connectNonblocking(ctx context.Context, fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINPROGRESS) {
		return fmt.Errorf("bluetooth: rfcomm connect: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bluetooth: rfcomm connect: %w", err)
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, int(connectPollInterval/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("bluetooth: rfcomm poll: %w", err)
		}
		if n == 0 {
			continue
		}

		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return fmt.Errorf("bluetooth: rfcomm connect status: %w", err)
		}
		if soErr != 0 {
			return fmt.Errorf("bluetooth: rfcomm connect: %w", unix.Errno(soErr))
		}
		return nil
	}
}

// Write sends frame, honouring ctx's deadline and cancellation.
func (t *rfcommTransport) Write(ctx context.Context, frame []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}

	deadline, _ := ctx.Deadline()
	if err := t.f.SetWriteDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		return fmt.Errorf("bluetooth: rfcomm set deadline: %w", err)
	}
	// Cancellation pulls the deadline into the past to unblock the write.
	stop := context.AfterFunc(ctx, func() { _ = t.f.SetWriteDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := t.f.Write(frame); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("bluetooth: rfcomm write: %w", ctxErr)
		}
		if t.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("bluetooth: rfcomm write: %w", err)
	}
	return nil
}

// Done is closed when the link drops or the transport is closed.
func (t *rfcommTransport) Done() <-chan struct{} {
	return t.done
}

// Close closes the socket. Safe to call more than once.
func (t *rfcommTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := t.f.Close()
	t.once.Do(func() { close(t.done) })
	return err
}

func (t *rfcommTransport) drain() {
	defer t.once.Do(func() { close(t.done) })

	buf := make([]byte, readBufferSize)
	for {
		n, err := t.f.Read(buf)
		if err != nil {
			if !t.closed.Load() && t.logger != nil {
				t.logger.Warn("rfcomm link read failed", "error", err)
			}
			return
		}
		if n > 0 && t.logger != nil {
			t.logger.Debug("rfcomm device reply", "bytes", n)
		}
	}
}
