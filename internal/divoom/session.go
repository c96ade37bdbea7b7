package divoom

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default timeouts for device communication.
const (
	// defaultConnectTimeout bounds a single dial, including GATT discovery.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds one frame write.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectTimeout bounds the implicit reconnect an operation
	// makes when it finds the session disconnected.
	defaultReconnectTimeout = 5 * time.Second

	// defaultBrightness is the level a fresh session assumes, and the level
	// TurnOn uses when the cached brightness is zero.
	defaultBrightness = 100
)

// Options configures a Session. Zero values select defaults.
type Options struct {
	// Device selects the wire protocol. Default: DevicePixoo.
	Device DeviceType

	// EscapeFrames enables byte-stuffing for older firmware.
	EscapeFrames bool

	ConnectTimeout   time.Duration
	WriteTimeout     time.Duration
	ReconnectTimeout time.Duration

	// Logger is optional.
	Logger Logger

	// Recorder is optional.
	Recorder Recorder

	// OnChange, if set, receives a snapshot after every confirmed cache
	// change and every connection-state transition. It is called without
	// any session lock held and must not block for long.
	OnChange func(State)
}

// Stats holds operational counters for health reporting.
type Stats struct {
	CommandsSent    uint64
	CommandsFailed  uint64
	ConnectAttempts uint64
	ConnectFailures uint64
	LastError       string
	LastCommandAt   time.Time
}

// Session owns the connection to one physical display and the cached state
// of that display.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Intent operations are serialized; at most one frame is in flight.
//   - Concurrent Connect calls share one dial (single-flight).
//   - Disconnect never waits for an in-flight operation; it cancels it,
//     and the operation returns a Cancelled error.
type Session struct {
	address string
	dialer  Dialer
	codec   Codec
	opts    Options

	// sem serializes intent operations. A channel rather than a mutex so
	// queued callers can give up when their context ends.
	sem chan struct{}

	// connects dedupes dials. Keyed by generation so a dial abandoned by
	// Disconnect is never joined by a later Connect.
	connects singleflight.Group

	mu         sync.RWMutex
	state      ConnectionState
	transport  Transport
	cache      cache
	generation uint64
	life       context.Context
	lifeCancel context.CancelFunc

	commandsSent    atomic.Uint64
	commandsFailed  atomic.Uint64
	connectAttempts atomic.Uint64
	connectFailures atomic.Uint64
	lastError       atomic.Value // string
	lastCommandAt   atomic.Int64 // unix nano
}

// NewSession creates a disconnected session for the device at address.
//
// Parameters:
//   - address: Bluetooth address of the device (immutable afterwards)
//   - dialer: opens transports to the device
//   - opts: timeouts, protocol options and optional hooks
//
// Returns:
//   - *Session: ready to Connect
//   - error: Validation error if address is empty, dialer is nil or the
//     device type is unsupported
func NewSession(address string, dialer Dialer, opts Options) (*Session, error) {
	if address == "" {
		return nil, newError(KindValidation, "new session", ErrInvalidAddress)
	}
	if dialer == nil {
		return nil, newError(KindValidation, "new session", ErrNoDialer)
	}
	if opts.Device == "" {
		opts.Device = DevicePixoo
	}
	if _, err := ParseDeviceType(string(opts.Device)); err != nil {
		return nil, err
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.ReconnectTimeout <= 0 {
		opts.ReconnectTimeout = defaultReconnectTimeout
	}

	s := &Session{
		address: address,
		dialer:  dialer,
		codec:   Codec{Escape: opts.EscapeFrames},
		opts:    opts,
		sem:     make(chan struct{}, 1),
		cache: cache{
			brightness: defaultBrightness,
			color:      White,
			mode:       ModeLight,
		},
	}
	s.life, s.lifeCancel = context.WithCancel(context.Background())
	s.lastError.Store("")
	return s, nil
}

// Address returns the device's Bluetooth address.
func (s *Session) Address() string { return s.address }

// ConnectionState returns the current connection state.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Power returns the cached power state.
func (s *Session) Power() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.power
}

// Brightness returns the cached brightness (0–100).
func (s *Session) Brightness() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.brightness
}

// Color returns the cached colour.
func (s *Session) Color() Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.color
}

// Mode returns the cached display mode.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.mode
}

// Score1 returns the cached first score.
func (s *Session) Score1() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.scores[0]
}

// Score2 returns the cached second score.
func (s *Session) Score2() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.scores[1]
}

// State returns a snapshot of the connection state and cached values.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Stats returns a copy of the operational counters.
func (s *Session) Stats() Stats {
	st := Stats{
		CommandsSent:    s.commandsSent.Load(),
		CommandsFailed:  s.commandsFailed.Load(),
		ConnectAttempts: s.connectAttempts.Load(),
		ConnectFailures: s.connectFailures.Load(),
		LastError:       s.lastError.Load().(string),
	}
	if ns := s.lastCommandAt.Load(); ns != 0 {
		st.LastCommandAt = time.Unix(0, ns)
	}
	return st
}

func (s *Session) snapshotLocked() State {
	return State{
		Address:         s.address,
		ConnectionState: s.state,
		Connection:      s.state.String(),
		Power:           s.cache.power,
		Brightness:      s.cache.brightness,
		Color:           s.cache.color,
		Mode:            s.cache.mode.String(),
		Score1:          s.cache.scores[0],
		Score2:          s.cache.scores[1],
		UpdatedAt:       s.cache.updatedAt,
	}
}

// setStateLocked records a transition and reports whether the state changed.
func (s *Session) setStateLocked(next ConnectionState) bool {
	if s.state == next {
		return false
	}
	prev := s.state
	s.state = next
	s.logDebug("connection state changed", "from", prev.String(), "to", next.String())
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordConnectionState(next.String())
	}
	return true
}

func (s *Session) notify(st State) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(st)
	}
}

// Connect establishes the transport.
//
// It is a no-op when already connected. Concurrent callers share a single
// dial and all observe its outcome. On failure the session moves to Failed
// and a Connection error is returned. If ctx ends first the caller stops
// waiting with a Cancelled error, while the shared dial runs on to its own
// timeout for any other waiters.
func (s *Session) Connect(ctx context.Context) error {
	return s.awaitConnect(ctx, "connect")
}

func (s *Session) awaitConnect(ctx context.Context, op string) error {
	s.mu.RLock()
	if s.state == StateConnected {
		s.mu.RUnlock()
		return nil
	}
	gen, life := s.generation, s.life
	s.mu.RUnlock()

	ch := s.connects.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, s.dial(life)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var e *Error
			if errors.As(res.Err, &e) {
				return &Error{Kind: e.Kind, Op: op, Err: e.Err}
			}
			return newError(KindConnection, op, res.Err)
		}
		return nil
	case <-ctx.Done():
		if life.Err() != nil {
			return newError(KindCancelled, op, ErrSessionClosed)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return newError(KindConnection, op, timeoutCause(ctx.Err(), ErrConnectTimeout))
		}
		return newError(KindCancelled, op, ctx.Err())
	}
}

// dial performs the one shared connection attempt for a generation.
func (s *Session) dial(life context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	if life.Err() != nil {
		s.mu.Unlock()
		return newError(KindCancelled, "connect", ErrSessionClosed)
	}
	changed := s.setStateLocked(StateConnecting)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if changed {
		s.notify(snap)
	}

	s.connectAttempts.Add(1)
	s.logInfo("connecting to device", "address", s.address)

	ctx, cancel := context.WithTimeout(life, s.opts.ConnectTimeout)
	t, err := s.dialer.Dial(ctx, s.address)
	cancel()

	s.mu.Lock()
	if life.Err() != nil {
		// Disconnect ran while dialling; it already set Disconnected.
		s.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		s.recordConnect(KindCancelled.String())
		return newError(KindCancelled, "connect", ErrSessionClosed)
	}
	if err != nil {
		s.setStateLocked(StateFailed)
		snap = s.snapshotLocked()
		s.mu.Unlock()

		s.connectFailures.Add(1)
		s.lastError.Store(err.Error())
		s.recordConnect(KindConnection.String())
		s.logError("connect failed", "address", s.address, "error", err)
		s.notify(snap)
		return newError(KindConnection, "connect", timeoutCause(err, ErrConnectTimeout))
	}
	s.transport = t
	s.setStateLocked(StateConnected)
	snap = s.snapshotLocked()
	s.mu.Unlock()

	if w, ok := t.(LinkWatcher); ok {
		go s.watchLink(life, t, w.Done())
	}

	s.recordConnect("ok")
	s.logInfo("connected to device", "address", s.address)
	s.notify(snap)
	return nil
}

// watchLink moves the session to Failed when the transport reports link loss.
func (s *Session) watchLink(life context.Context, t Transport, done <-chan struct{}) {
	select {
	case <-life.Done():
		return
	case <-done:
	}

	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.setStateLocked(StateFailed)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	_ = t.Close()
	s.logWarn("device link lost", "address", s.address)
	s.notify(snap)
}

// Disconnect releases the transport and cancels in-flight operations.
//
// Valid from any state and idempotent; the session always ends
// Disconnected. A later Connect (explicit or implicit) starts afresh.
// A close error from the transport is returned as a Connection error but
// does not change the outcome.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.lifeCancel()
	s.life, s.lifeCancel = context.WithCancel(context.Background())
	s.generation++
	t := s.transport
	s.transport = nil
	changed := s.setStateLocked(StateDisconnected)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	var err error
	if t != nil {
		if cerr := t.Close(); cerr != nil {
			err = newError(KindConnection, "disconnect", cerr)
		}
	}
	if changed {
		s.logInfo("disconnected from device", "address", s.address)
		s.notify(snap)
	}
	return err
}

// TurnOn switches the display on at the cached brightness (or full
// brightness if the cached level is zero). Caches power = true.
func (s *Session) TurnOn(ctx context.Context) error {
	return s.execute(ctx, "turn_on", func(c *cache) ([]byte, func(*cache), error) {
		level := c.brightness
		if level == 0 {
			level = defaultBrightness
		}
		return s.codec.Brightness(level), func(c *cache) {
			c.power = true
			c.brightness = level
		}, nil
	})
}

// TurnOff blanks the display. Caches power = false; the cached brightness
// is kept so TurnOn restores it.
func (s *Session) TurnOff(ctx context.Context) error {
	return s.execute(ctx, "turn_off", func(*cache) ([]byte, func(*cache), error) {
		return s.codec.Brightness(0), func(c *cache) { c.power = false }, nil
	})
}

// SetBrightness sets the brightness, clamping v to [0, 100].
func (s *Session) SetBrightness(ctx context.Context, v int) error {
	level := clamp(v, 0, 100)
	return s.execute(ctx, "set_brightness", func(*cache) ([]byte, func(*cache), error) {
		return s.codec.Brightness(level), func(c *cache) { c.brightness = level }, nil
	})
}

// SetColor shows a solid colour, clamping each channel to [0, 255].
// The display switches to the light view, so the cached mode becomes Light.
func (s *Session) SetColor(ctx context.Context, r, g, b int) error {
	col := Color{R: uint8(clamp(r, 0, 255)), G: uint8(clamp(g, 0, 255)), B: uint8(clamp(b, 0, 255))}
	return s.execute(ctx, "set_color", func(c *cache) ([]byte, func(*cache), error) {
		return s.codec.Light(col, c.brightness), func(c *cache) {
			c.color = col
			c.mode = ModeLight
		}, nil
	})
}

// SetMode switches the display mode by label.
//
// Unknown labels return an InvalidMode error before anything else happens:
// no connect, no write, no cache change.
func (s *Session) SetMode(ctx context.Context, label string) error {
	m, err := ParseMode(label)
	if err != nil {
		return &Error{Kind: KindInvalidMode, Op: "set_mode", Err: errors.Unwrap(err)}
	}
	return s.execute(ctx, "set_mode", func(c *cache) ([]byte, func(*cache), error) {
		frame, err := s.codec.Mode(m, c.color, c.brightness, c.scores[0], c.scores[1])
		if err != nil {
			return nil, nil, err
		}
		return frame, func(c *cache) { c.mode = m }, nil
	})
}

// SetScore caches a scoreboard value for slot 1 or 2, clamping v to
// [0, 100]. Nothing is sent; call PushScore to update the display.
func (s *Session) SetScore(slot, v int) error {
	if slot != 1 && slot != 2 {
		return newError(KindValidation, "set_score", ErrInvalidSlot)
	}
	v = clamp(v, 0, 100)

	s.mu.Lock()
	s.cache.scores[slot-1] = v
	s.cache.scoreSet[slot-1] = true
	s.cache.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// PushScore sends one scoreboard frame carrying both cached scores.
// Both slots must have been set. Caches mode = Score.
func (s *Session) PushScore(ctx context.Context) error {
	return s.execute(ctx, "push_score", func(c *cache) ([]byte, func(*cache), error) {
		if !c.scoreSet[0] || !c.scoreSet[1] {
			return nil, nil, newError(KindValidation, "push_score", ErrScoresNotSet)
		}
		return s.codec.Scoreboard(c.scores[0], c.scores[1]), func(c *cache) { c.mode = ModeScore }, nil
	})
}

// encodeFunc builds a frame from the current cache and returns the cache
// mutation to apply once the frame is written. It runs with the operation
// slot held, so the cache cannot change between encode and apply.
type encodeFunc func(c *cache) (frame []byte, apply func(*cache), err error)

// execute runs one intent operation: acquire the slot, encode, make sure
// the link is up, write, then commit the cache change.
func (s *Session) execute(ctx context.Context, op string, encode encodeFunc) (err error) {
	start := time.Now()
	defer func() { s.recordCommand(op, err, time.Since(start)) }()

	s.mu.RLock()
	life := s.life
	s.mu.RUnlock()

	// The operation context ends with either the caller's ctx or a Disconnect.
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(life, cancel)
	defer stop()

	select {
	case s.sem <- struct{}{}:
	case <-opCtx.Done():
		return s.cancelled(op, life, opCtx)
	}
	defer func() { <-s.sem }()

	if life.Err() != nil {
		return newError(KindCancelled, op, ErrSessionClosed)
	}

	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()

	frame, apply, err := encode(&c)
	if err != nil {
		return err
	}

	t, err := s.ensureConnected(opCtx, op, life)
	if err != nil {
		return err
	}

	// Once started, a frame is only cut short by its timeout or a Disconnect,
	// never by the caller giving up.
	wctx, wcancel := context.WithTimeout(life, s.opts.WriteTimeout)
	werr := t.Write(wctx, frame)
	wcancel()

	s.mu.Lock()
	if life.Err() != nil {
		s.mu.Unlock()
		return newError(KindCancelled, op, ErrSessionClosed)
	}
	if werr != nil {
		var snap State
		changed := false
		if s.transport == t {
			s.transport = nil
			changed = s.setStateLocked(StateFailed)
			snap = s.snapshotLocked()
		}
		s.mu.Unlock()

		_ = t.Close()
		s.lastError.Store(werr.Error())
		s.logError("command write failed", "op", op, "address", s.address, "error", werr)
		if changed {
			s.notify(snap)
		}
		return newError(KindCommand, op, timeoutCause(werr, ErrWriteTimeout))
	}
	apply(&s.cache)
	s.cache.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logDebug("command sent", "op", op, "bytes", len(frame))
	s.notify(snap)
	return nil
}

// ensureConnected returns the live transport, making one bounded implicit
// reconnect if the session is not connected.
func (s *Session) ensureConnected(ctx context.Context, op string, life context.Context) (Transport, error) {
	for attempt := 0; attempt < 2; attempt++ {
		s.mu.RLock()
		t, state := s.transport, s.state
		s.mu.RUnlock()

		if life.Err() != nil {
			return nil, newError(KindCancelled, op, ErrSessionClosed)
		}
		if state == StateConnected && t != nil {
			return t, nil
		}
		if attempt > 0 {
			break
		}

		s.logDebug("implicit reconnect", "op", op, "state", state.String())
		rctx, cancel := context.WithTimeout(ctx, s.opts.ReconnectTimeout)
		err := s.awaitConnect(rctx, op)
		cancel()
		if err != nil {
			// A reconnect cut short by the caller (not by its own timeout)
			// is a cancellation, not a connection failure.
			if KindOf(err) == KindConnection && ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, s.cancelled(op, life, ctx)
			}
			return nil, err
		}
	}
	return nil, newError(KindConnection, op, errors.New("divoom: link dropped after reconnect"))
}

func (s *Session) cancelled(op string, life, ctx context.Context) error {
	if life.Err() != nil {
		return newError(KindCancelled, op, ErrSessionClosed)
	}
	return newError(KindCancelled, op, ctx.Err())
}

func (s *Session) recordCommand(op string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		s.commandsFailed.Add(1)
		if KindOf(err) != KindCommand && KindOf(err) != KindConnection {
			s.lastError.Store(err.Error())
		}
	} else {
		s.commandsSent.Add(1)
		s.lastCommandAt.Store(time.Now().UnixNano())
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordCommand(op, outcome, d.Seconds())
	}
}

func (s *Session) recordConnect(outcome string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordConnect(outcome)
	}
}

func (s *Session) logDebug(msg string, kv ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, kv...)
	}
}

func (s *Session) logInfo(msg string, kv ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, kv...)
	}
}

func (s *Session) logWarn(msg string, kv ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, kv...)
	}
}

func (s *Session) logError(msg string, kv ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Error(msg, kv...)
	}
}
