// Package whdtest provides scriptable fakes for the bus capability
// interfaces (Bus, BufferPool, EventSource) that driver-facade and other
// cross-package tests wire together, so each of those tests does not
// redefine its own bus double the way the lower-level package tests do
// (command_test.go, power_test.go, scan/engine_test.go each keep a small
// local fake scoped to what that package alone exercises).
//
// These are request/response fakes the caller drives explicitly, which
// is what a command-channel-level test double needs.
package whdtest

import (
	"context"
	"sync"
	"time"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/codec"
)

// Bus is a scriptable bus.Bus fake. By default Send auto-acknowledges
// every IOCTL/IOVAR request with FrameStatus OK after RespondDelay; set
// Respond to override the reply for a given request, or RegisterValues
// to answer specific register reads. The bus-power wake CSRs always read
// back with their ready bits set (see wakeReadyBits).
type Bus struct {
	mu sync.Mutex

	// Respond, if set, is called for every Send instead of the default
	// auto-ack; it must itself deliver a response via Channel.Deliver
	// (or not, to simulate a timeout).
	Respond func(frame []byte)

	// RespondDelay is the artificial latency before the default
	// auto-ack fires, long enough that a caller relying on genuine
	// asynchrony (waiting on a channel rather than assuming synchronous
	// completion) is exercised the same way production code would be.
	RespondDelay time.Duration

	// RegisterValues answers ReadRegister by address; addresses absent
	// from the map read back 0, apart from the wakeReadyBits that every
	// read of a wake CSR includes.
	RegisterValues map[uint32]uint32

	// Deliverer receives decoded responses the default auto-ack
	// produces. Set this to a *command.Channel via SetDeliverer before
	// the first Send.
	deliverer func(*codec.Frame) error

	Sent    [][]byte
	up      bool
	Failing error // if set, WriteRegister/ReadRegister/Send all fail with this
}

// NewBus builds a Bus ready for immediate use, auto-acking with a small
// realistic delay.
func NewBus() *Bus {
	return &Bus{RespondDelay: 2 * time.Millisecond, RegisterValues: make(map[uint32]uint32), up: true}
}

// SetDeliverer wires the command channel (or any Deliver-shaped sink)
// the default auto-ack replies through.
func (b *Bus) SetDeliverer(d func(*codec.Frame) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliverer = d
}

// wakeReadyBits are ORed into reads of the bus-power wake CSRs so the
// fake chip reports awake for either wakeup strategy: HT-available on
// the chip clock CSR, and keep-KSO plus device-on on the sleep CSR.
var wakeReadyBits = map[uint32]uint32{
	0x1000: 1 << 1,
	0x1001: 1<<0 | 1<<1,
}

func (b *Bus) ReadRegister(_ context.Context, _ int, addr uint32, _ int) (uint32, error) {
	if b.Failing != nil {
		return 0, b.Failing
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.RegisterValues[addr] | wakeReadyBits[addr], nil
}

func (b *Bus) WriteRegister(_ context.Context, _ int, addr uint32, _ int, value uint32) error {
	if b.Failing != nil {
		return b.Failing
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.RegisterValues[addr] = value
	return nil
}

func (b *Bus) ReadBackplane(context.Context, uint32, int, []byte) error  { return b.Failing }
func (b *Bus) WriteBackplane(context.Context, uint32, int, uint32) error { return b.Failing }
func (b *Bus) TransferBackplaneBytes(context.Context, bus.Direction, uint32, []byte) error {
	return b.Failing
}

func (b *Bus) Wakeup(context.Context) error { return b.Failing }
func (b *Bus) Sleep(context.Context) error  { return b.Failing }
func (b *Bus) IsUp() bool                   { return b.up }
func (b *Bus) SetState(_ context.Context, up bool) error {
	b.up = up
	return b.Failing
}

// Send records frame and, unless a custom Respond hook is set, decodes
// it as an IOCTL/IOVAR request and asynchronously delivers an OK
// response on the same tx id through the wired deliverer.
func (b *Bus) Send(ctx context.Context, frame []byte) error {
	b.mu.Lock()
	b.Sent = append(b.Sent, frame)
	respond := b.Respond
	deliver := b.deliverer
	delay := b.RespondDelay
	b.mu.Unlock()

	if b.Failing != nil {
		return b.Failing
	}
	if respond != nil {
		respond(frame)
		return nil
	}
	if deliver == nil {
		return nil
	}
	go func() {
		time.Sleep(delay)
		req, err := codec.Decode(frame)
		if err != nil {
			return
		}
		resp, err := codec.EncodeIOCTL(req.Command, nil, 0, req.TxID)
		if err != nil {
			return
		}
		decoded, err := codec.Decode(resp)
		if err != nil {
			return
		}
		_ = deliver(decoded)
	}()
	return nil
}

var _ bus.Bus = (*Bus)(nil)

// buffer is a plain heap-backed bus.Buffer: no pooling, just enough to
// satisfy the interface for a test that only cares about the bytes.
type buffer struct {
	data []byte
}

func (b *buffer) Data() []byte   { return b.data }
func (b *buffer) SetLen(n int)   { b.data = b.data[:n] }

// BufferPool is a non-pooling bus.BufferPool fake: every Get allocates a
// fresh buffer, and Release records how many buffers of each direction
// were returned so a test can assert the caller didn't leak one.
type BufferPool struct {
	mu       sync.Mutex
	released map[bus.Direction]int
	Failing  error
}

// NewBufferPool builds an empty BufferPool fake.
func NewBufferPool() *BufferPool {
	return &BufferPool{released: make(map[bus.Direction]int)}
}

func (p *BufferPool) GetIoctlBuffer(_ context.Context, size int) (bus.Buffer, error) {
	if p.Failing != nil {
		return nil, p.Failing
	}
	return &buffer{data: make([]byte, size)}, nil
}

func (p *BufferPool) GetIovarBuffer(_ context.Context, _ string, size int) (bus.Buffer, error) {
	if p.Failing != nil {
		return nil, p.Failing
	}
	return &buffer{data: make([]byte, size)}, nil
}

func (p *BufferPool) Release(_ bus.Buffer, dir bus.Direction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released[dir]++
}

// Released returns how many buffers have been released for dir.
func (p *BufferPool) Released(dir bus.Direction) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released[dir]
}

var _ bus.BufferPool = (*BufferPool)(nil)

// EventSource is a scriptable bus.EventSource fake: Fire delivers one
// event to every subscriber currently registered.
type EventSource struct {
	mu   sync.Mutex
	subs []func(bus.EventHeader, []byte)
}

// NewEventSource builds an empty EventSource fake.
func NewEventSource() *EventSource {
	return &EventSource{}
}

func (s *EventSource) Subscribe(ctx context.Context, sink func(bus.EventHeader, []byte)) {
	s.mu.Lock()
	s.subs = append(s.subs, sink)
	s.mu.Unlock()
}

// Fire delivers hdr/data to every currently subscribed sink.
func (s *EventSource) Fire(hdr bus.EventHeader, data []byte) {
	s.mu.Lock()
	subs := append([]func(bus.EventHeader, []byte){}, s.subs...)
	s.mu.Unlock()
	for _, sink := range subs {
		sink(hdr, data)
	}
}

var _ bus.EventSource = (*EventSource)(nil)

// Waker satisfies command.Waker/power.Interlock's role for tests that do
// not need real wake-lock bookkeeping.
type Waker struct {
	mu       sync.Mutex
	Acquired int
	Released int
	Err      error
}

func (w *Waker) Acquire(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Acquired++
	return w.Err
}

func (w *Waker) Release(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Released++
	return nil
}
