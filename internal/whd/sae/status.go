package sae

import (
	"context"
	"fmt"
	"net"

	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// Firmware status values accepted by the set_auth_status convention
// this codec targets: the external supplicant's verdict on one SAE
// commit/confirm exchange.
const (
	AuthStatusSuccess          uint16 = 0
	AuthStatusUnspecifiedFail  uint16 = 1
	AuthStatusChallengeFail    uint16 = 15 // matches 802.11 SAE "challenge failure" status code
)

// StatusParams is the input to SetAuthStatus: the external
// supplicant's verdict for one peer's SAE exchange.
type StatusParams struct {
	Peer   net.HardwareAddr
	Status uint16
}

// SetAuthStatus reports the external supplicant's verdict on peer's SAE
// exchange back to firmware via the bsscfg-scoped auth_status IOVAR.
func (m *Manager) SetAuthStatus(ctx context.Context, iface *domain.Interface, p StatusParams) error {
	mac, err := codec.MACFromBytes(p.Peer)
	if err != nil {
		return fmt.Errorf("whd/sae: set_auth_status: %w", err)
	}
	buf := make([]byte, 8)
	copy(buf[:6], mac[:])
	codec.HostToDongle16(buf[6:], p.Status)

	if _, err := m.ch.Iovar(ctx, "bsscfg:auth_status", buf, iface.BSSCfgIdx, true, 0); err != nil {
		return fmt.Errorf("whd/sae: set_auth_status: %w", err)
	}
	return nil
}
