package join

import (
	"context"
	"fmt"

	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/crypto"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// installKeyMaterial writes the PMK (WPA/WPA2 profiles) or SAE password
// (WPA3-SAE) that setIovarU32's caller installed wsec/sup_wpa ahead of,
// step 8. Open and WEP profiles have nothing to install.
func (m *Manager) installKeyMaterial(ctx context.Context, iface *domain.Interface, p *domain.JoinParameters) error {
	switch p.Security {
	case domain.SecurityOpen, domain.SecurityWEP:
		return nil

	case domain.SecurityWPA3SAE:
		if len(p.SAEPassword) == 0 {
			return fmt.Errorf("whd/join: missing SAE password: %w", domain.ErrBadArgument)
		}
		pw := &codec.WsecSaePassword{PasswordLen: uint16(len(p.SAEPassword))}
		copy(pw.Password[:], p.SAEPassword)
		_, err := m.ch.Iovar(ctx, "sae_password", pw.Encode(), iface.BSSCfgIdx, true, 0)
		return err

	default:
		key := p.PMK
		if len(key) == 0 {
			derived, err := crypto.DerivePMK(p.Passphrase, p.SSID)
			if err != nil {
				return err
			}
			key = derived
		}
		if p.HasBSSID() {
			m.setAttempt(p.BSSID, iface.MAC, key)
		}
		pmk, err := codec.NewWsecPmk(key)
		if err != nil {
			return err
		}
		_, err = m.ch.Ioctl(ctx, codec.CmdSetWsecPmk, pmk.Encode(), 0)
		return err
	}
}
