// Package driver is the host-facing facade: the one type application
// code constructs, wiring one shared command channel, event dispatcher
// and bus-power interlock across every Interface a Driver owns, and
// exposing the full per-interface control surface (lifecycle, join/
// leave, scan, external auth, observability) on top of the lower-level
// codec/command/events/power/join/scan/sae packages.
//
// Structured as type aliases re-exporting subpackage types plus thin
// constructor wrappers: one Driver over N interfaces sharing one
// transport.
package driver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/chipops"
	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/command"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/events"
	"github.com/Infineon/whd-expansion/internal/whd/pmkid"
	"github.com/Infineon/whd-expansion/internal/whd/power"
)

const (
	defaultEventTableCapacity = 256
	defaultIoctlTimeout       = 2 * time.Second
)

// deliverer is the shape command.Channel.Deliver exposes and that a bus
// implementation's response path must be wired to. whdtest.Bus satisfies
// it through SetDeliverer; a real SDIO/SPI adapter would expose the same
// method for the same reason: only the driver, which owns both the bus
// and the command channel, knows how to connect them.
type deliverer interface {
	SetDeliverer(func(*codec.Frame) error)
}

// Config bundles everything New needs to bring up a Driver: the bus
// capabilities it is layered over, the attached chip's identity, and the
// shared resources (PMKID cache) every Interface draws from.
type Config struct {
	Bus         bus.Bus
	BufferPool  bus.BufferPool
	EventSource bus.EventSource

	ChipID uint32

	// IoctlTimeout bounds one IOCTL/IOVAR exchange; 0 selects
	// defaultIoctlTimeout.
	IoctlTimeout time.Duration

	// EventTableCapacity bounds the event dispatcher's handler table; 0
	// selects defaultEventTableCapacity.
	EventTableCapacity int

	PmkidCache *pmkid.Cache
}

// Driver is the process-wide WHD core handle: one bus, one command
// channel, one event dispatcher, one bus-power interlock, shared by
// every Interface it owns.
type Driver struct {
	cfg  Config
	dom  *domain.Driver
	chip chipops.ChipOps

	ch   *command.Channel
	disp *events.Dispatcher
	pwr  *power.Interlock

	pmkidCache *pmkid.Cache

	mu     sync.Mutex
	ifaces map[string]*Interface

	cancelRX context.CancelFunc
}

// New constructs a Driver in the Off state. It does not touch the bus;
// call SetUp to bring the chip up and start the RX demultiplexer.
func New(cfg Config) (*Driver, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("whd/driver: nil bus: %w", domain.ErrBadArgument)
	}
	if cfg.EventSource == nil {
		return nil, fmt.Errorf("whd/driver: nil event source: %w", domain.ErrBadArgument)
	}

	chip := chipops.Lookup(cfg.ChipID)
	dom := domain.NewDriver(domain.ChipInfo{
		ChipID:      cfg.ChipID,
		SaveRestore: chip.SaveRestore,
		HasDS1:      chip.DS1Capable,
	})

	pwr := power.New(cfg.Bus, chip, "driver")
	timeout := cfg.IoctlTimeout
	if timeout <= 0 {
		timeout = defaultIoctlTimeout
	}
	ch := command.New(cfg.Bus, pwr, timeout, "driver")

	capacity := cfg.EventTableCapacity
	if capacity <= 0 {
		capacity = defaultEventTableCapacity
	}
	disp := events.New(capacity)

	d := &Driver{
		cfg:        cfg,
		dom:        dom,
		chip:       chip,
		ch:         ch,
		disp:       disp,
		pwr:        pwr,
		pmkidCache: cfg.PmkidCache,
		ifaces:     make(map[string]*Interface),
	}

	if dr, ok := cfg.Bus.(deliverer); ok {
		dr.SetDeliverer(ch.Deliver)
	}

	return d, nil
}

// SetUp brings the chip out of reset: it asserts the bus is awake,
// issues the CmdUp IOCTL, enables save/restore if the attached chip
// supports it, and starts the RX demultiplexer that feeds async events
// to the dispatcher and lets Deliver see command responses.
func (d *Driver) SetUp(ctx context.Context) error {
	if d.dom.State() == domain.StateUp {
		return nil
	}
	if err := d.cfg.Bus.SetState(ctx, true); err != nil {
		return fmt.Errorf("whd/driver: set_up: bus wake: %w", err)
	}
	if _, err := d.ch.Ioctl(ctx, codec.CmdUp, nil, 0); err != nil {
		return fmt.Errorf("whd/driver: set_up: %w", err)
	}
	if d.chip.SaveRestore {
		if err := d.pwr.EnableSaveRestore(ctx); err != nil {
			return fmt.Errorf("whd/driver: set_up: save/restore: %w", err)
		}
	}

	rxCtx, cancel := context.WithCancel(context.Background())
	d.cancelRX = cancel
	d.cfg.EventSource.Subscribe(rxCtx, d.onEvent)

	d.dom.SetState(domain.StateUp)
	return nil
}

// SetDown tears the chip back down: CmdDown IOCTL, RX demultiplexer
// stop, bus sleep. Idempotent.
func (d *Driver) SetDown(ctx context.Context) error {
	if d.dom.State() != domain.StateUp {
		return nil
	}
	_, err := d.ch.Ioctl(ctx, codec.CmdDown, nil, 0)
	if d.cancelRX != nil {
		d.cancelRX()
		d.cancelRX = nil
	}
	_ = d.cfg.Bus.SetState(ctx, false)
	d.dom.SetState(domain.StateOff)
	if err != nil {
		return fmt.Errorf("whd/driver: set_down: %w", err)
	}
	return nil
}

// onEvent demultiplexes one async event frame to the handler registered
// for (interface, event type). InterfaceIndex selects which Interface's
// name the dispatcher sees; an event for an index this Driver has not
// registered an Interface for is dropped.
func (d *Driver) onEvent(hdr bus.EventHeader, data []byte) {
	name, ok := d.ifaceNameByIndex(int(hdr.InterfaceIndex))
	if !ok {
		return
	}
	d.disp.Dispatch(name, hdr, data)
}

func (d *Driver) ifaceNameByIndex(dataIdx int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, iface := range d.ifaces {
		if iface.dom.DataIdx == dataIdx {
			return name, true
		}
	}
	return "", false
}

// AddInterface installs a new Interface named name at bssCfgIdx/dataIdx
// with the given MAC, wired to this Driver's shared command channel,
// event dispatcher and power interlock.
func (d *Driver) AddInterface(name string, bssCfgIdx, dataIdx int, mac net.HardwareAddr) (*Interface, error) {
	if err := domain.DefaultDomainValidator.InterfaceName(name); err != nil {
		return nil, err
	}
	if err := domain.DefaultDomainValidator.MAC(mac); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.ifaces[name]; exists {
		return nil, fmt.Errorf("whd/driver: interface %s already exists: %w", name, domain.ErrBadArgument)
	}

	dom := domain.NewInterface(d.dom, name, bssCfgIdx, dataIdx, mac)
	if err := d.dom.AddInterface(dom); err != nil {
		return nil, fmt.Errorf("whd/driver: add_interface: %w", err)
	}

	iface := newInterface(d, dom)
	d.ifaces[name] = iface
	return iface, nil
}

// RemoveInterface tears down and forgets the named Interface.
func (d *Driver) RemoveInterface(ctx context.Context, name string) error {
	d.mu.Lock()
	iface, ok := d.ifaces[name]
	if ok {
		delete(d.ifaces, name)
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}
	_ = iface.Leave(ctx)
	d.dom.RemoveInterface(iface.dom)
	return nil
}

// Interface looks up a previously added Interface by name.
func (d *Driver) Interface(name string) (*Interface, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	iface, ok := d.ifaces[name]
	return iface, ok
}

// Interfaces returns every currently installed Interface.
func (d *Driver) Interfaces() []*Interface {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Interface, 0, len(d.ifaces))
	for _, iface := range d.ifaces {
		out = append(out, iface)
	}
	return out
}

// State returns the driver's current lifecycle state.
func (d *Driver) State() domain.LifecycleState { return d.dom.State() }

// ChipID returns the attached chip's firmware-reported identifier.
func (d *Driver) ChipID() uint32 { return d.chip.ChipID }

// PmkidCache exposes the shared PMKID cache, if one was configured.
func (d *Driver) PmkidCache() *pmkid.Cache { return d.pmkidCache }

// BufferPool exposes the configured packet-buffer pool, for callers that
// manage their own RX/TX buffers on the data path outside the command
// channel (which allocates its own small request/response scratch slices
// directly).
func (d *Driver) BufferPool() bus.BufferPool { return d.cfg.BufferPool }

// consoleShMemAddr is the backplane offset ReadConsole reads the
// firmware console text from, a silicon/firmware convention opaque
// above this call.
const consoleShMemAddr = 0x3000

// ReadConsole reads 256 bytes at consoleShMemAddr, appends the leading
// NUL-terminated text to InternalInfo's console buffer, and drains and
// returns that buffer. The read always starts at consoleShMemAddr: it
// neither starts from the console-read cursor nor parses a ring-buffer
// descriptor, so repeated calls return the same bytes while firmware
// leaves them unchanged. It is a direct backplane read, not an
// IOCTL/IOVAR, so it does not contend with in-flight commands.
func (d *Driver) ReadConsole(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 256)
	if err := d.cfg.Bus.ReadBackplane(ctx, consoleShMemAddr, len(buf), buf); err != nil {
		return nil, fmt.Errorf("whd/driver: read_console: %w", err)
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	if n > 0 {
		d.dom.Internal.AppendConsole(buf[:n])
	}
	return d.dom.Internal.DrainConsole(), nil
}
