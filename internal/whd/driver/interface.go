package driver

import (
	"context"
	"fmt"
	"net"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/events"
	"github.com/Infineon/whd-expansion/internal/whd/join"
	"github.com/Infineon/whd-expansion/internal/whd/sae"
	"github.com/Infineon/whd-expansion/internal/whd/scan"
)

// Interface is the per-BSS facade a caller drives: connection lifecycle,
// scan, external auth and observability, all layered over the parent
// Driver's shared command channel, event dispatcher and power interlock.
type Interface struct {
	d   *Driver
	dom *domain.Interface

	join *join.Manager
	scan *scan.Engine
	sae  *sae.Manager
}

func newInterface(d *Driver, dom *domain.Interface) *Interface {
	return &Interface{
		d:   d,
		dom: dom,
		join: join.New(d.ch, d.disp, d.pwr, &d.dom.Internal, d.chip, dom.Name(), d.pmkidCache),
		scan: scan.New(d.ch, d.disp, &d.dom.Internal, dom.Name(), dom.BSSCfgIdx),
		sae:  sae.New(d.ch, d.disp, d.cfg.Bus, &d.dom.Internal, dom.Name()),
	}
}

// Name returns the interface's name.
func (i *Interface) Name() string { return i.dom.Name() }

// Join connects to an SSID, blocking until the attempt reaches a
// terminal state (success, failure, or timeout).
func (i *Interface) Join(ctx context.Context, p *domain.JoinParameters) (*join.Result, error) {
	return i.join.Join(ctx, i.dom, p)
}

// JoinSpecific connects directly to a previously scanned BSS.
func (i *Interface) JoinSpecific(ctx context.Context, sr *domain.ScanResult, key string) (*join.Result, error) {
	return i.join.JoinSpecific(ctx, i.dom, sr, key)
}

// Leave disassociates and resets the interface's join state.
func (i *Interface) Leave(ctx context.Context) error {
	return i.join.Leave(ctx, i.dom)
}

// IsReadyToTransceive reports whether the interface currently holds a
// successful, linked association.
func (i *Interface) IsReadyToTransceive() bool {
	return i.join.IsReadyToTransceive(i.dom)
}

// Scan issues an escan request, delivering each kept partial result (and
// a terminal status) to cb.
func (i *Interface) Scan(ctx context.Context, req scan.Request, cb domain.ScanResultCallback) error {
	return i.scan.Scan(ctx, req, cb)
}

// StopScan aborts an in-progress scan.
func (i *Interface) StopScan(ctx context.Context) error {
	return i.scan.StopScan(ctx)
}

// ScanSynchronous runs a scan to completion and returns the accumulated
// results.
func (i *Interface) ScanSynchronous(ctx context.Context, req scan.Request) ([]domain.ScanResult, error) {
	return i.scan.ScanSynchronous(ctx, req)
}

// ExternalAuthRequest installs cb as the SAE external-auth callback and
// starts forwarding ExtAuthReq/ExtAuthFrameRx events to it.
func (i *Interface) ExternalAuthRequest(cb domain.AuthResultCallback) error {
	return i.sae.ExternalAuthRequest(i.dom, cb)
}

// StopExternalAuthRequest tears down an active external-auth session.
func (i *Interface) StopExternalAuthRequest() error {
	return i.sae.StopExternalAuthRequest(i.dom)
}

// SetAuthStatus reports the supplicant's verdict on a peer's SAE
// exchange back to firmware.
func (i *Interface) SetAuthStatus(ctx context.Context, p sae.StatusParams) error {
	return i.sae.SetAuthStatus(ctx, i.dom, p)
}

// SendAuthFrame transmits a host-constructed SAE commit/confirm frame.
func (i *Interface) SendAuthFrame(ctx context.Context, p sae.FrameParams) error {
	return i.sae.SendAuthFrame(ctx, p)
}

// icmpEchoEventTypes is the icmp_echo_req_events handler family named in
// the same register/deregister-by-category shape sae.Manager uses for
// auth events; forwarding firmware ping telemetry needs no command
// channel access, just the dispatcher and the InternalInfo callback slot
// join/scan/sae already share.
var icmpEchoEventTypes = []events.EventType{events.EventIcmpEchoReq}

// RegisterIcmpEchoCallback installs cb to receive firmware
// IcmpEchoReq telemetry (peer MAC, sequence number) and registers the
// icmp_echo_req_events handler family. A nil cb is rejected rather than
// silently discarding events nobody will see.
func (i *Interface) RegisterIcmpEchoCallback(cb domain.IcmpEchoCallback) error {
	if cb == nil {
		return fmt.Errorf("whd/driver: register_icmp_echo_callback: %w", domain.ErrBadArgument)
	}
	if _, ok := i.dom.Handler(domain.CategoryIcmpEchoReq); ok {
		return fmt.Errorf("whd/driver: icmp echo callback already registered: %w", domain.ErrBadArgument)
	}
	i.d.dom.Internal.SetIcmpEchoCallback(cb)
	id, err := i.d.disp.RegisterMulti(i.dom.Name(), icmpEchoEventTypes, i.onIcmpEchoEvent)
	if err != nil {
		i.d.dom.Internal.SetIcmpEchoCallback(nil)
		return fmt.Errorf("whd/driver: register icmp echo handler: %w", err)
	}
	i.dom.SetHandler(domain.CategoryIcmpEchoReq, id)
	return nil
}

// StopIcmpEchoCallback tears down the icmp_echo_req_events registration.
// Idempotent: stopping an inactive registration is a no-op.
func (i *Interface) StopIcmpEchoCallback() error {
	id, ok := i.dom.Handler(domain.CategoryIcmpEchoReq)
	if !ok {
		return nil
	}
	if err := i.d.disp.Deregister(id); err != nil {
		return fmt.Errorf("whd/driver: deregister icmp echo handler: %w", err)
	}
	i.dom.ClearHandler(domain.CategoryIcmpEchoReq)
	i.d.dom.Internal.SetIcmpEchoCallback(nil)
	return nil
}

// onIcmpEchoEvent forwards one IcmpEchoReq event to the installed
// callback. Event data convention: peer's 6-byte MAC followed by a
// little-endian u16 sequence number.
func (i *Interface) onIcmpEchoEvent(hdr bus.EventHeader, data []byte) {
	cb := i.d.dom.Internal.IcmpEchoCallback()
	if cb == nil || len(data) < 8 {
		return
	}
	peer := net.HardwareAddr(append([]byte(nil), data[:6]...))
	seq := uint16(data[6]) | uint16(data[7])<<8
	cb(peer, seq)
}
