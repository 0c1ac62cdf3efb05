// Package sae implements the host side of the external-authentication
// offload: registering for the auth_events family ({ExtAuthReq,
// ExtAuthFrameRx}), forwarding SAE commit/confirm material to a
// user-space supplicant, reporting the supplicant's verdict back to
// firmware, and transmitting the supplicant's own commit/confirm
// frames over the air.
//
// Frame construction uses gopacket's RadioTap+Dot11+SerializeLayers
// with an opaque, caller-supplied element payload; it is this module's
// only raw-frame path.
package sae

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/command"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/events"
)

// authEventTypes is the auth_events handler family.
var authEventTypes = []events.EventType{
	events.EventExtAuthReq,
	events.EventExtAuthFrameRx,
}

// Manager drives external-auth offload for one interface: registering
// the auth_events family, forwarding frame material to the installed
// callback, and sending host-constructed SAE frames back to the peer.
type Manager struct {
	ch        *command.Channel
	disp      *events.Dispatcher
	bus       bus.Bus
	internal  *domain.InternalInfo
	ifaceName string

	seq atomic.Uint32
}

// New builds a Manager bound to one interface's command channel, event
// dispatcher and raw bus transport.
func New(ch *command.Channel, disp *events.Dispatcher, b bus.Bus, internal *domain.InternalInfo, ifaceName string) *Manager {
	return &Manager{ch: ch, disp: disp, bus: b, internal: internal, ifaceName: ifaceName}
}

// ExternalAuthRequest installs cb as the external-auth callback and
// registers the auth_events handler family, so ExtAuthReq/ExtAuthFrameRx
// events start forwarding SAE material to cb. A nil cb is rejected
// rather than silently discarding events nobody will see.
func (m *Manager) ExternalAuthRequest(iface *domain.Interface, cb domain.AuthResultCallback) error {
	if cb == nil {
		return fmt.Errorf("whd/sae: external_auth_request: %w", domain.ErrBadArgument)
	}
	if _, ok := iface.Handler(domain.CategoryAuth); ok {
		return fmt.Errorf("whd/sae: external_auth_request already active: %w", domain.ErrBadArgument)
	}

	m.internal.SetAuthCallback(cb)
	id, err := m.disp.RegisterMulti(iface.Name(), authEventTypes, m.onAuthEvent)
	if err != nil {
		m.internal.SetAuthCallback(nil)
		return fmt.Errorf("whd/sae: register auth handler: %w", err)
	}
	iface.SetHandler(domain.CategoryAuth, id)
	return nil
}

// StopExternalAuthRequest tears down the auth_events registration and
// clears the installed callback. Idempotent: stopping an inactive
// external-auth session is a no-op.
func (m *Manager) StopExternalAuthRequest(iface *domain.Interface) error {
	id, ok := iface.Handler(domain.CategoryAuth)
	if !ok {
		return nil
	}
	if err := m.disp.Deregister(id); err != nil {
		return fmt.Errorf("whd/sae: deregister auth handler: %w", err)
	}
	iface.ClearHandler(domain.CategoryAuth)
	m.internal.SetAuthCallback(nil)
	return nil
}

// onAuthEvent forwards ExtAuthReq/ExtAuthFrameRx material to the
// installed callback. Event data is this codec's own convention: the
// peer's 6-byte MAC followed by the opaque SAE frame body.
func (m *Manager) onAuthEvent(hdr bus.EventHeader, data []byte) {
	cb := m.internal.AuthCallback()
	if cb == nil {
		return
	}
	if len(data) < 6 {
		return
	}
	peer := net.HardwareAddr(append([]byte(nil), data[:6]...))
	body := append([]byte(nil), data[6:]...)
	cb(body, peer)
}

// nextSeq returns the next 802.11 sequence-number value for a
// host-transmitted authentication frame, wrapping at the 12-bit field
// width like a real sequence-control counter.
func (m *Manager) nextSeq() uint16 {
	return uint16(m.seq.Add(1) & 0x0fff)
}
