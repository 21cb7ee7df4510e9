// Package fifo manages the named pipes connecting the tower to its
// collaborators. Every endpoint is non-blocking and is established through
// an explicit connection state machine with bounded, cancellable retries.
package fifo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/looplab/fsm"
	"golang.org/x/sys/unix"

	fsmutil "github.com/autopeer-io/airtraffic/internal/pkg/util/fsm"
	"github.com/autopeer-io/airtraffic/pkg/log"
)

// Connection states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateReady        = "ready"
	StateFailed       = "failed"
)

const (
	eventConnect     = "connect"
	eventEstablished = "established"
	eventFail        = "fail"
	eventClose       = "close"
)

var (
	// ErrRetriesExhausted is returned by Connect when the peer never made the
	// pipe available within the attempt budget.
	ErrRetriesExhausted = errors.New("fifo: connection retries exhausted")

	// ErrNotReady is returned by Read and Write on an endpoint that is not connected.
	ErrNotReady = errors.New("fifo: endpoint not ready")
)

// Mode is the direction in which an endpoint is opened.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

// Config describes one endpoint.
type Config struct {
	// Path is the file system path of the named pipe.
	Path string
	Mode Mode
	// Attempts bounds the number of open attempts. Defaults to 10.
	Attempts int
	// Interval is the fixed delay between attempts. Defaults to 500ms.
	Interval time.Duration
	// Create makes the pipe before the first attempt if it does not exist.
	Create bool
}

// Endpoint is one end of a named pipe. It implements io.Reader and io.Writer.
type Endpoint struct {
	cfg    Config
	logger log.Logger

	machine *fsm.FSM

	mu sync.Mutex
	fd int

	attempts int
}

// NewEndpoint returns a disconnected endpoint.
func NewEndpoint(cfg Config, logger log.Logger) *Endpoint {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	e := &Endpoint{
		cfg:    cfg,
		logger: logger.WithValues("fifo", cfg.Path, "mode", cfg.Mode),
		fd:     -1,
	}

	events := fsm.Events{
		{Name: eventConnect, Src: []string{StateDisconnected, StateFailed}, Dst: StateConnecting},
		{Name: eventEstablished, Src: []string{StateConnecting}, Dst: StateReady},
		{Name: eventFail, Src: []string{StateConnecting}, Dst: StateFailed},
		{Name: eventClose, Src: []string{StateConnecting, StateReady, StateFailed}, Dst: StateDisconnected},
	}
	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(e.logTransition),
	}
	e.machine = fsm.NewFSM(StateDisconnected, events, callbacks)
	return e
}

func (e *Endpoint) logTransition(_ context.Context, ev *fsm.Event) error {
	e.logger.Debug("Channel state changed", "from", ev.Src, "to", ev.Dst, "event", ev.Event)
	return nil
}

// Path returns the file system path of the pipe.
func (e *Endpoint) Path() string { return e.cfg.Path }

// State returns the current connection state.
func (e *Endpoint) State() string { return e.machine.Current() }

// Attempts returns how many open attempts the last Connect made.
func (e *Endpoint) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// Connect opens the pipe, retrying while the peer has not created it or,
// for a writer, has not opened the read end yet.
func (e *Endpoint) Connect(ctx context.Context) error {
	if err := e.machine.Event(ctx, eventConnect); err != nil {
		return fmt.Errorf("connect %s: %w", e.cfg.Path, err)
	}

	if e.cfg.Create {
		if err := Make(e.cfg.Path, 0o666); err != nil {
			_ = e.machine.Event(context.Background(), eventFail)
			return err
		}
	}

	e.mu.Lock()
	e.attempts = 0
	e.mu.Unlock()

	open := func() error {
		e.mu.Lock()
		e.attempts++
		e.mu.Unlock()

		fd, err := openNonblocking(e.cfg.Path, e.cfg.Mode)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		e.mu.Lock()
		e.fd = fd
		e.mu.Unlock()
		return nil
	}
	notify := func(err error, next time.Duration) {
		e.logger.Info("Channel not available yet, retrying", "attempt", e.Attempts(), "max", e.cfg.Attempts, "reason", err.Error(), "next", next)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.Interval), uint64(e.cfg.Attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(open, policy, notify); err != nil {
		_ = e.machine.Event(context.Background(), eventFail)
		switch {
		case ctx.Err() != nil:
			return fmt.Errorf("connect %s: %w", e.cfg.Path, ctx.Err())
		case isTransient(err):
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrRetriesExhausted, e.cfg.Path, e.Attempts(), err)
		default:
			return fmt.Errorf("open %s: %w", e.cfg.Path, err)
		}
	}

	if err := e.machine.Event(ctx, eventEstablished); err != nil {
		_ = e.closeFD()
		return fmt.Errorf("connect %s: %w", e.cfg.Path, err)
	}
	e.logger.Info("Channel opened", "attempts", e.Attempts())
	return nil
}

// Read performs one non-blocking read. It returns 0, nil when no data is
// available or when no writer is attached.
func (e *Endpoint) Read(p []byte) (int, error) {
	fd, err := e.readyFD()
	if err != nil {
		return 0, err
	}
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, nil
		default:
			return 0, fmt.Errorf("read %s: %w", e.cfg.Path, err)
		}
	}
}

// Write performs one non-blocking write of p. Records are smaller than
// PIPE_BUF, so the kernel either takes all of p or none of it.
func (e *Endpoint) Write(p []byte) (int, error) {
	fd, err := e.readyFD()
	if err != nil {
		return 0, err
	}
	for {
		n, err := unix.Write(fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return max(n, 0), fmt.Errorf("write %s: %w", e.cfg.Path, err)
		}
		return n, nil
	}
}

// Resync discards everything currently buffered in the pipe so the next
// read starts on a record boundary. It returns the number of bytes dropped.
func (e *Endpoint) Resync() (int, error) {
	buf := make([]byte, 4096)
	total := 0
	for {
		n, err := e.Read(buf)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
}

// Close releases the descriptor. It is safe to call in any state.
func (e *Endpoint) Close() error {
	err := e.closeFD()
	evErr := e.machine.Event(context.Background(), eventClose)
	if fsmutil.IsRealError(evErr) && !fsmutil.IsInvalidEvent(evErr) {
		return errors.Join(err, evErr)
	}
	return err
}

func (e *Endpoint) closeFD() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fd < 0 {
		return nil
	}
	err := unix.Close(e.fd)
	e.fd = -1
	return err
}

func (e *Endpoint) readyFD() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fd < 0 {
		return -1, ErrNotReady
	}
	return e.fd, nil
}

func openNonblocking(path string, mode Mode) (int, error) {
	flags := unix.O_RDONLY
	if mode == ModeWrite {
		flags = unix.O_WRONLY
	}
	return unix.Open(path, flags|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}

// isTransient reports whether an open error means the peer is not there yet.
// ENXIO is returned for a non-blocking writer while no reader is attached.
func isTransient(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENXIO)
}
