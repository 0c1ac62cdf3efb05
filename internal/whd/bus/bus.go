// Package bus declares the external capabilities the WHD core consumes
// but does not implement: the bus transport, the buffer pool, and the
// asynchronous event source. Production code wires these to a real SDIO
// or SPI transport; internal/whd/whdtest provides fakes for tests.
//
// The interfaces are split one-per-concern (interface segregation) so
// each capability can be faked independently in tests.
package bus

import "context"

// Direction indicates which way a Buffer's ownership is being released.
type Direction int

const (
	DirectionTX Direction = iota
	DirectionRX
)

// Buffer is one pooled packet handed out by BufferPool.
type Buffer interface {
	// Data returns the current data pointer's backing slice.
	Data() []byte
	// SetLen resizes the valid data region, for in-place header writes.
	SetLen(n int)
}

// BufferPool is the packet-buffer capability the codec and command
// channel draw from.
type BufferPool interface {
	GetIoctlBuffer(ctx context.Context, size int) (Buffer, error)
	GetIovarBuffer(ctx context.Context, name string, size int) (Buffer, error)
	Release(buf Buffer, dir Direction)
}

// Bus is the transport capability consumed by the command channel and
// the bus-power interlock.
type Bus interface {
	ReadRegister(ctx context.Context, function int, address uint32, byteCount int) (uint32, error)
	WriteRegister(ctx context.Context, function int, address uint32, byteCount int, value uint32) error
	ReadBackplane(ctx context.Context, address uint32, byteCount int, out []byte) error
	WriteBackplane(ctx context.Context, address uint32, byteCount int, value uint32) error
	TransferBackplaneBytes(ctx context.Context, dir Direction, address uint32, buf []byte) error

	Wakeup(ctx context.Context) error
	Sleep(ctx context.Context) error
	IsUp() bool
	SetState(ctx context.Context, up bool) error

	// Send transmits one already-encoded IOCTL/IOVAR/data frame.
	Send(ctx context.Context, frame []byte) error
}

// EventHeader is the fixed portion of an asynchronous firmware event
// frame.
type EventHeader struct {
	EventType     uint32
	Status        uint32
	Reason        uint32
	Flags         uint32
	BSSIndex      uint8
	InterfaceIndex uint8
	DataLen       uint32
}

// EventSource delivers (header, opaque data) tuples to the dispatcher;
// production code backs this with the driver worker thread's RX
// demultiplexer.
type EventSource interface {
	// Subscribe registers sink to receive every event frame until ctx is
	// canceled.
	Subscribe(ctx context.Context, sink func(EventHeader, []byte))
}
