// Package command implements C2, the command channel: a single
// in-flight IOCTL/IOVAR exchange at a time, tx-id pairing between
// request and response, pre-send wake via the bus-power interlock, and
// BCME_UNSUPPORTED absorption into an error rather than a panic path.
//
// Uses a mutex-guarded pending-response map keyed by tx id, narrowed to
// "exactly one in-flight command" since the firmware control channel
// has no request pipelining.
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Infineon/whd-expansion/internal/telemetry"
	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/power"
)

// Waker acquires/releases the bus-power wake-lock around a command.
// Satisfied by *power.Interlock; declared here so this package does not
// need to know about chipops.
type Waker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

var _ Waker = (*power.Interlock)(nil)

// Channel serializes IOCTL/IOVAR exchanges over one bus, pairing each
// request with its response by tx id. Only one exchange may be
// in-flight at a time; callers queue behind mu.
type Channel struct {
	mu      sync.Mutex
	bus     bus.Bus
	waker   Waker
	timeout time.Duration
	name    string // interface name, for metrics labels

	nextTxID atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan *codec.Frame
}

// New builds a Channel bound to b, waking through waker before every
// exchange and bounding each exchange by timeout.
func New(b bus.Bus, waker Waker, timeout time.Duration, ifaceName string) *Channel {
	return &Channel{bus: b, waker: waker, timeout: timeout, name: ifaceName}
}

// Ioctl sends a fixed-command IOCTL request and waits for its paired
// response, or returns a wrapped domain.ErrIoctlTimeout/ErrWlanUnsupported
// on failure.
func (c *Channel) Ioctl(ctx context.Context, cmd codec.Command, payload []byte, outputLen uint32) (*codec.Frame, error) {
	op := fmt.Sprintf("ioctl(%d)", cmd)
	return c.exchange(ctx, op, func(txID uint32) ([]byte, error) {
		return codec.EncodeIOCTL(cmd, payload, outputLen, txID)
	})
}

// Iovar sends a named IOVAR get/set request and waits for its paired
// response.
func (c *Channel) Iovar(ctx context.Context, name string, arg []byte, bssIdx int, isSet bool, outputLen uint32) (*codec.Frame, error) {
	op := fmt.Sprintf("iovar(%s)", name)
	return c.exchange(ctx, op, func(txID uint32) ([]byte, error) {
		return codec.EncodeIOVAR(name, arg, bssIdx, isSet, outputLen, txID)
	})
}

// IovarIgnoreUnsupported issues a set_iovar and absorbs a
// WlanUnsupported response into a nil error, so an optional IOVAR
// missing on older firmware does not fail the caller's outer operation.
// Every other error (timeout, bus failure, any other firmware status)
// still propagates.
func (c *Channel) IovarIgnoreUnsupported(ctx context.Context, name string, arg []byte, bssIdx int, outputLen uint32) error {
	_, err := c.Iovar(ctx, name, arg, bssIdx, true, outputLen)
	if err != nil && errors.Is(err, domain.ErrWlanUnsupported) {
		return nil
	}
	return err
}

func (c *Channel) exchange(ctx context.Context, op string, encode func(txID uint32) ([]byte, error)) (*codec.Frame, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "whd."+op)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.waker.Acquire(ctx); err != nil {
		return nil, &domain.IoctlError{Op: op, Err: err}
	}
	defer c.waker.Release(context.Background())

	telemetry.CommandsInFlight.WithLabelValues(c.name).Inc()
	defer telemetry.CommandsInFlight.WithLabelValues(c.name).Dec()

	start := time.Now()
	txID := c.nextTxID.Add(1)

	wire, err := encode(txID)
	if err != nil {
		return nil, &domain.IoctlError{Op: op, TxID: txID, Err: err}
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.bus.Send(exchangeCtx, wire); err != nil {
		telemetry.IoctlLatency.WithLabelValues(op, "send_error").Observe(time.Since(start).Seconds())
		return nil, &domain.IoctlError{Op: op, TxID: txID, Err: err}
	}

	frame, err := c.awaitResponse(exchangeCtx, txID)
	if err != nil {
		telemetry.IoctlLatency.WithLabelValues(op, "timeout").Observe(time.Since(start).Seconds())
		return nil, &domain.IoctlError{Op: op, TxID: txID, Err: err}
	}

	if frame.Status == codec.StatusUnsupported {
		telemetry.IoctlLatency.WithLabelValues(op, "unsupported").Observe(time.Since(start).Seconds())
		return frame, &domain.IoctlError{Op: op, TxID: txID, Err: domain.ErrWlanUnsupported}
	}
	if frame.Status != codec.StatusOK {
		telemetry.IoctlLatency.WithLabelValues(op, "fail").Observe(time.Since(start).Seconds())
		return frame, &domain.IoctlError{Op: op, TxID: txID, Err: domain.ErrIoctlFail}
	}

	telemetry.IoctlLatency.WithLabelValues(op, "ok").Observe(time.Since(start).Seconds())
	return frame, nil
}

// awaitResponse blocks on the bus response channel (wired by the host
// driver facade, which connects the bus's response path to Deliver at
// construction time) until a frame with a matching tx id arrives or
// exchangeCtx expires.
func (c *Channel) awaitResponse(ctx context.Context, txID uint32) (*codec.Frame, error) {
	ch := make(chan *codec.Frame, 1)
	c.setPending(txID, ch)
	defer c.clearPending(txID)

	select {
	case frame := <-ch:
		return frame, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w (tx %d)", domain.ErrIoctlTimeout, txID)
	}
}

// setPending/clearPending track the in-flight response channel keyed by
// tx id. At most one entry exists at a time since exchange() holds mu
// for the exchange's duration, but Deliver runs from the driver's RX
// goroutine concurrently with it, hence the separate pendingMu.
func (c *Channel) setPending(txID uint32, ch chan *codec.Frame) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.pending == nil {
		c.pending = make(map[uint32]chan *codec.Frame)
	}
	c.pending[txID] = ch
}

func (c *Channel) clearPending(txID uint32) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	delete(c.pending, txID)
}

// Deliver is called by the driver's RX demultiplexer when a response
// frame arrives off the bus. It routes the frame to the waiting
// exchange by tx id, or drops it with ErrBadTxId if none is waiting.
func (c *Channel) Deliver(frame *codec.Frame) error {
	c.pendingMu.Lock()
	ch, ok := c.pending[frame.TxID]
	c.pendingMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrBadTxId, frame.TxID)
	}
	select {
	case ch <- frame:
		return nil
	default:
		return fmt.Errorf("%w: %d (receiver not waiting)", domain.ErrBadTxId, frame.TxID)
	}
}
