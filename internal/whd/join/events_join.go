package join

import (
	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/events"
)

// joinEventTypes is the join_events handler family: every event the
// connection state machine needs to update JoinStatus.
var joinEventTypes = []events.EventType{
	events.EventSetSsid,
	events.EventLink,
	events.EventAuth,
	events.EventDeauthInd,
	events.EventDisassocInd,
	events.EventPskSup,
	events.EventCsaCompleteInd,
}

// Firmware status/reason conventions for the join event family. These
// are this codec's own numbering.
const (
	setSsidStatusOK         = 0
	setSsidStatusNoNetworks = 1

	linkFlagUp = 1 << 0

	pskSupStatusKeyed              = 0
	pskSupStatusKeyXChangeWaitM1   = 1
	pskSupStatusKeyXChangeWaitM3   = 2
	pskSupStatusKeyXChangeWaitG1   = 3
	pskSupStatusKeyExchangeFailure = 4
)

// onJoinEvent updates the JoinStatus bitset for hdr's interface, then
// signals the join semaphore so a blocked waitForComplete wakes and
// reclassifies.
func (m *Manager) onJoinEvent(hdr bus.EventHeader, data []byte) {
	set := func(bits domain.JoinStatus) { m.internal.SetJoinStatusBits(m.ifaceName, bits) }
	clear := func(bits domain.JoinStatus) { m.internal.ClearJoinStatusBits(m.ifaceName, bits) }

	switch events.EventType(hdr.EventType) {
	case events.EventSetSsid:
		switch hdr.Status {
		case setSsidStatusNoNetworks:
			set(domain.JoinNoNetworks)
		case setSsidStatusOK:
			set(domain.JoinSsidSet)
		}
	case events.EventLink:
		if hdr.Flags&linkFlagUp != 0 {
			set(domain.JoinLinkReady)
		} else {
			clear(domain.JoinLinkReady)
		}
	case events.EventAuth:
		set(domain.JoinAuthenticated)
	case events.EventDeauthInd, events.EventDisassocInd:
		clear(domain.JoinLinkReady | domain.JoinSecurityComplete)
	case events.EventPskSup:
		switch hdr.Status {
		case pskSupStatusKeyed:
			set(domain.JoinSecurityComplete)
			m.onKeyed()
		case pskSupStatusKeyXChangeWaitM1:
			set(domain.JoinEapolM1Timeout)
		case pskSupStatusKeyXChangeWaitM3:
			set(domain.JoinEapolM3Timeout)
		case pskSupStatusKeyXChangeWaitG1:
			set(domain.JoinEapolG1Timeout)
		case pskSupStatusKeyExchangeFailure:
			set(domain.JoinEapolFailure)
		}
	case events.EventCsaCompleteInd:
		// Channel-switch completion carries no JoinStatus bit; CSA
		// configuration itself is out of scope. Nothing to
		// do beyond waking waiters in case the channel move stalled one.
	}

	m.signal()
}
