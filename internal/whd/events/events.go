// Package events implements C3, the event dispatcher: a fixed-capacity
// (interface, event_type)-keyed handler table with ordered per-interface
// delivery, feeding the four handler families (join_events, scan_events,
// auth_events, icmp_echo_req_events).
//
// The handler table is a plain mutex-guarded map keyed by composite
// identity, looked up once per inbound frame and dispatched by event
// type; no message-broker library is warranted for in-process pub/sub
// at this scale.
package events

import (
	"sync"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// EventType identifies a firmware asynchronous event. Values are this
// codec's own numbering, opaque above the dispatcher.
type EventType uint32

const (
	EventSetSsid EventType = iota
	EventLink
	EventAuth
	EventDeauthInd
	EventDisassocInd
	EventPskSup
	EventCsaCompleteInd
	EventEscanResult
	EventExtAuthReq
	EventExtAuthFrameRx
	EventIcmpEchoReq
)

func (e EventType) String() string {
	switch e {
	case EventSetSsid:
		return "set_ssid"
	case EventLink:
		return "link"
	case EventAuth:
		return "auth"
	case EventDeauthInd:
		return "deauth_ind"
	case EventDisassocInd:
		return "disassoc_ind"
	case EventPskSup:
		return "psk_sup"
	case EventCsaCompleteInd:
		return "csa_complete_ind"
	case EventEscanResult:
		return "escan_result"
	case EventExtAuthReq:
		return "ext_auth_req"
	case EventExtAuthFrameRx:
		return "ext_auth_frame_rx"
	case EventIcmpEchoReq:
		return "icmp_echo_req"
	default:
		return "unknown"
	}
}

// HandlerFunc processes one delivered event frame. Handlers run
// synchronously on the dispatching goroutine and must not block on the
// command channel — doing so would stall delivery of
// every other registered handler on that interface.
type HandlerFunc func(hdr bus.EventHeader, data []byte)

type key struct {
	iface string
	evt   EventType
}

type registration struct {
	id domain.EventHandlerID
	fn HandlerFunc
}

// Dispatcher is the (interface, event_type)-keyed handler table.
// Registration is bounded by capacity; Dispatch delivers
// events to every handler registered for the matching key, in
// registration order, without holding the table lock during the call.
type Dispatcher struct {
	mu       sync.RWMutex
	byKey    map[key][]registration
	byID     map[domain.EventHandlerID][]key
	nextID   uint32
	capacity int
	size     int
}

// New builds a Dispatcher whose handler table holds at most capacity
// (interface, event_type) registrations at once.
func New(capacity int) *Dispatcher {
	return &Dispatcher{
		byKey:    make(map[key][]registration),
		byID:     make(map[domain.EventHandlerID][]key),
		capacity: capacity,
	}
}

// Register installs fn for a single (iface, evt) pair.
func (d *Dispatcher) Register(iface string, evt EventType, fn HandlerFunc) (domain.EventHandlerID, error) {
	return d.RegisterMulti(iface, []EventType{evt}, fn)
}

// RegisterMulti installs fn for every event type in evts under one entry
// id, so a single Deregister call tears down the whole handler family —
// this is how join_events, scan_events, auth_events and
// icmp_echo_req_events each register as one unit.
func (d *Dispatcher) RegisterMulti(iface string, evts []EventType, fn HandlerFunc) (domain.EventHandlerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.size+len(evts) > d.capacity {
		return 0, domain.ErrTooManySubscriptions
	}

	d.nextID++
	id := domain.EventHandlerID(d.nextID)
	keys := make([]key, 0, len(evts))
	for _, evt := range evts {
		k := key{iface: iface, evt: evt}
		d.byKey[k] = append(d.byKey[k], registration{id: id, fn: fn})
		keys = append(keys, k)
		d.size++
	}
	d.byID[id] = keys
	return id, nil
}

// Deregister removes every entry registered under id. It is idempotent:
// deregistering an unknown or already-removed id is a no-op, matching
// the cleanup path that may run twice (once on join failure, once on an
// explicit Leave) without special-casing the second call.
func (d *Dispatcher) Deregister(id domain.EventHandlerID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys, ok := d.byID[id]
	if !ok {
		return nil
	}
	for _, k := range keys {
		regs := d.byKey[k]
		kept := regs[:0]
		for _, r := range regs {
			if r.id != id {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(d.byKey, k)
		} else {
			d.byKey[k] = kept
		}
		d.size--
	}
	delete(d.byID, id)
	return nil
}

// Dispatch routes one firmware event frame to every handler registered
// for (iface, EventType(hdr.EventType)). The registration list is
// snapshotted under the read lock and the handlers are invoked outside
// it, so a handler that deregisters (e.g. Leave canceling the join
// family) cannot deadlock against Dispatch.
func (d *Dispatcher) Dispatch(iface string, hdr bus.EventHeader, data []byte) {
	d.mu.RLock()
	regs := append([]registration(nil), d.byKey[key{iface: iface, evt: EventType(hdr.EventType)}]...)
	d.mu.RUnlock()

	for _, r := range regs {
		r.fn(hdr, data)
	}
}
