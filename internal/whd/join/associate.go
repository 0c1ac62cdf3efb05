package join

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// associate sends the assoc request: the preferred "join" IOVAR, falling
// back to the legacy SetSsid IOCTL if firmware reports the IOVAR
// unsupported.
func (m *Manager) associate(ctx context.Context, iface *domain.Interface, p *domain.JoinParameters) error {
	if p.HasBSSID() {
		m.installCachedPmkid(ctx, iface, p.BSSID)
	}

	chanSpec := uint16(0)
	if p.Channel > 0 {
		chanSpec = codec.BuildChanSpec(p.Channel, p.Band)
	}

	jp, err := codec.NewWLExtJoinParams(p, chanSpec)
	if err != nil {
		return fmt.Errorf("whd/join: build join params: %w", err)
	}

	_, err = m.ch.Iovar(ctx, "join", jp.Encode(), iface.BSSCfgIdx, true, 0)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrWlanUnsupported) {
		return fmt.Errorf("whd/join: join iovar: %w", err)
	}

	ssid, err := codec.NewWLSsid(p.SSID)
	if err != nil {
		return err
	}
	if _, err := m.ch.Ioctl(ctx, codec.CmdSetSsid, ssid.Encode(), 0); err != nil {
		return fmt.Errorf("whd/join: set_ssid fallback: %w", err)
	}
	return nil
}

// installCachedPmkid consults the PMKID cache for a previously negotiated
// PMKID against bssid and, on a hit, installs it via the "pmkid_info"
// IOVAR so a re-association to a known AP can skip the full four-way
// handshake. A miss, a nil cache, or an unsupported IOVAR (older
// firmware) are all silently skipped: this is a performance optimization,
// never a precondition for the join to proceed.
func (m *Manager) installCachedPmkid(ctx context.Context, iface *domain.Interface, bssid net.HardwareAddr) {
	if m.pmkidCache == nil {
		return
	}
	pmkidVal, ok, err := m.pmkidCache.Lookup(ctx, bssid)
	if err != nil || !ok {
		return
	}
	list := &codec.PmkidList{Entries: []codec.PMKIDEntry{{}}}
	copy(list.Entries[0].BSSID[:], bssid)
	copy(list.Entries[0].PMKID[:], pmkidVal)
	_ = m.ch.IovarIgnoreUnsupported(ctx, "pmkid_info", list.Encode(), iface.BSSCfgIdx, 0)
}
