package join

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// Firmware auth-algorithm values for SetAuth.
const (
	authAlgoOpen uint32 = 0
	authAlgoSAE  uint32 = 3
)

// Firmware wpa_auth bitmask values, matching the
// firmware convention this codec targets.
const (
	wpaAuthDisabled    uint32 = 0x0000
	wpaAuthPSK         uint32 = 0x0004
	wpaAuth2PSK        uint32 = 0x0080
	wpaAuth2PSKSHA256  uint32 = 0x8000
	wpaAuth2Enterprise uint32 = 0x0040
	wpaAuthSAE         uint32 = 0x4000
)

func isWPAFamily(s domain.SecurityType) bool {
	switch s {
	case domain.SecurityOpen, domain.SecurityWEP:
		return false
	default:
		return true
	}
}

// prepare runs the fourteen-step configuration sequence before
// association is attempted: reset state, install security parameters,
// and register the join_events handler family.
func (m *Manager) prepare(ctx context.Context, iface *domain.Interface, p *domain.JoinParameters) error {
	// 1. Clear JoinStatus for this attempt, and any PMK/BSSID captured
	// for a prior one.
	m.internal.ResetJoinStatus(iface.Name())
	m.setAttempt(nil, nil, nil)

	// 2. For any non-open security, read and remember the current MFP
	// setting so prepare can restore/override it deliberately in step 12
	// rather than leave firmware's prior value in place.
	var savedMFP domain.MFP
	if p.Security != domain.SecurityOpen {
		v, err := m.getIovarU32(ctx, "mfp", iface.BSSCfgIdx)
		if err == nil {
			savedMFP = domain.MFP(v)
		}
	}

	// 3. Program the wireless security (cipher) bitmask.
	if err := m.setIovarU32(ctx, "wsec", iface.BSSCfgIdx, wsecBitmask(p.Security)); err != nil {
		return fmt.Errorf("whd/join: set wsec: %w", err)
	}

	// 4. Roaming is on by default; absorbed through the unsupported-
	// continue wrapper since not every firmware build exposes the knob.
	if err := m.setIovarU32IgnoreUnsupported(ctx, "roam_off", iface.BSSCfgIdx, 0); err != nil {
		return fmt.Errorf("whd/join: set roam_off: %w", err)
	}

	// 5. Chip-43022 erratum: WPA-TKIP-PSK on this family needs wpa_auth
	// programmed before the supplicant is enabled, or the first EAPOL
	// exchange races the cipher negotiation.
	if p.Security == domain.SecurityWPATKIPPSK && m.chip.ChipID == 43022 {
		if err := m.setIovarU32(ctx, "bsscfg:wpa_auth", iface.BSSCfgIdx, wpaAuthPSK); err != nil {
			return fmt.Errorf("whd/join: chip-43022 early wpa_auth: %w", err)
		}
	}

	// 6. Enable the supplicant for any WPA/WPA2/WPA3 profile.
	if isWPAFamily(p.Security) {
		if err := m.setIovarU32(ctx, "bsscfg:sup_wpa", iface.BSSCfgIdx, 1); err != nil {
			return fmt.Errorf("whd/join: enable supplicant: %w", err)
		}
	}

	// 7. EAPOL version -1 tells firmware to auto-negotiate rather than
	// advertise a fixed version.
	if err := m.setIovarU32(ctx, "bsscfg:eapol_version", iface.BSSCfgIdx, 0xffffffff); err != nil {
		return fmt.Errorf("whd/join: set eapol_version: %w", err)
	}

	// 8. Install key material after the mandatory pre-delay; a fatal
	// failure here aborts the attempt immediately.
	time.Sleep(domain.PrePMKDelay)
	if err := m.installKeyMaterial(ctx, iface, p); err != nil {
		return fmt.Errorf("whd/join: install key material: %w", err)
	}

	// 9. WPA3 profiles get a dedicated EAPOL key-packet timeout; if the
	// chip cannot do SAE in firmware, fall back to disabling roam so a
	// background roam scan cannot trigger a SAE exchange it can't finish.
	if p.Security == domain.SecurityWPA3SAE || p.Security == domain.SecurityWPA3WPA2PSK {
		if err := m.setIovarU32(ctx, "bsscfg:eapol_key_timeout", iface.BSSCfgIdx, uint32(domain.DefaultEapolKeyTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("whd/join: set eapol key timeout: %w", err)
		}
		if !m.chip.SAECapable {
			if err := m.setIovarU32IgnoreUnsupported(ctx, "roam_off", iface.BSSCfgIdx, 1); err != nil {
				return fmt.Errorf("whd/join: disable roam_off: %w", err)
			}
		}
	}

	// 10. Infrastructure mode (adhoc is rejected by Join before prepare
	// is ever called).
	if err := m.setIovarU32(ctx, "infra", iface.BSSCfgIdx, 1); err != nil {
		return fmt.Errorf("whd/join: set infra: %w", err)
	}

	// 11. Auth algorithm: Open unless the profile is SAE.
	algo := authAlgoOpen
	if p.Security == domain.SecurityWPA3SAE {
		algo = authAlgoSAE
	}
	if err := m.setAuthAlgo(ctx, algo); err != nil {
		return fmt.Errorf("whd/join: set auth algorithm: %w", err)
	}

	// 12. Management Frame Protection, combining the profile's own
	// requirement with whatever firmware already had configured. Older
	// chips may reject this IOVAR outright; per the documented
	// partial-failure policy a failure here is logged and ignored rather
	// than aborting an otherwise-valid join.
	mfp := computeMFP(p.Security, savedMFP)
	if err := m.setIovarU32IgnoreUnsupported(ctx, "mfp", iface.BSSCfgIdx, uint32(mfp)); err != nil {
		log.Printf("whd/join: set mfp failed, continuing: %v", err)
	}

	// 13. wpa_auth bitmask.
	if err := m.setWPAAuth(ctx, p.Security); err != nil {
		return fmt.Errorf("whd/join: set wpa_auth: %w", err)
	}

	// 14. Register the join_events handler family; a full table is a
	// genuine resource exhaustion, not a bug, so it surfaces as-is.
	id, err := m.disp.RegisterMulti(iface.Name(), joinEventTypes, m.onJoinEvent)
	if err != nil {
		return fmt.Errorf("whd/join: register join handler: %w", err)
	}
	iface.SetHandler(domain.CategoryJoin, id)
	return nil
}

// wsecBitmask maps a SecurityType to the firmware wsec cipher-enable
// bitmask (bit0 WEP, bit1 TKIP, bit2 AES/CCMP).
func wsecBitmask(s domain.SecurityType) uint32 {
	switch s {
	case domain.SecurityWEP:
		return 1
	case domain.SecurityWPATKIPPSK, domain.SecurityWPA2TKIPPSK:
		return 2
	case domain.SecurityWPAAESPSK, domain.SecurityWPA2AESPSK, domain.SecurityWPA2AESPSKSHA256,
		domain.SecurityWPA2Enterprise, domain.SecurityWPA3SAE, domain.SecurityWPA3WPA2PSK:
		return 4
	default:
		return 0
	}
}

// computeMFP resolves the MFP requirement for the join: WPA3-SAE
// requires MFP, WPA3/WPA2 transition mode is capable-but-not-required,
// and anything else defers to whatever firmware already reported.
func computeMFP(s domain.SecurityType, saved domain.MFP) domain.MFP {
	switch s {
	case domain.SecurityWPA3SAE:
		return domain.MFPRequired
	case domain.SecurityWPA3WPA2PSK:
		return domain.MFPCapable
	default:
		return saved
	}
}

func (m *Manager) setAuthAlgo(ctx context.Context, algo uint32) error {
	buf := make([]byte, 4)
	codec.HostToDongle32(buf, algo)
	_, err := m.ch.Ioctl(ctx, codec.CmdSetAuth, buf, 0)
	return err
}

func (m *Manager) setWPAAuth(ctx context.Context, s domain.SecurityType) error {
	var v uint32
	switch s {
	case domain.SecurityWPATKIPPSK, domain.SecurityWPAAESPSK:
		v = wpaAuthPSK
	case domain.SecurityWPA2TKIPPSK, domain.SecurityWPA2AESPSK:
		v = wpaAuth2PSK
	case domain.SecurityWPA2AESPSKSHA256:
		v = wpaAuth2PSKSHA256
	case domain.SecurityWPA2Enterprise:
		v = wpaAuth2Enterprise
	case domain.SecurityWPA3SAE:
		v = wpaAuthSAE
	case domain.SecurityWPA3WPA2PSK:
		v = wpaAuthSAE | wpaAuth2PSK
	default:
		v = wpaAuthDisabled
	}
	buf := make([]byte, 4)
	codec.HostToDongle32(buf, v)
	_, err := m.ch.Ioctl(ctx, codec.CmdSetWpaAuth, buf, 0)
	return err
}

func (m *Manager) setIovarU32(ctx context.Context, name string, bssIdx int, v uint32) error {
	buf := make([]byte, 4)
	codec.HostToDongle32(buf, v)
	_, err := m.ch.Iovar(ctx, bsscfgName(name), buf, bssIdx, true, 0)
	return err
}

// setIovarU32IgnoreUnsupported routes an optional u32-valued set_iovar
// through the command channel's unsupported-continue wrapper, so older
// firmware lacking the variable does not fail prepare.
func (m *Manager) setIovarU32IgnoreUnsupported(ctx context.Context, name string, bssIdx int, v uint32) error {
	buf := make([]byte, 4)
	codec.HostToDongle32(buf, v)
	return m.ch.IovarIgnoreUnsupported(ctx, bsscfgName(name), buf, bssIdx, 0)
}

func (m *Manager) getIovarU32(ctx context.Context, name string, bssIdx int) (uint32, error) {
	frame, err := m.ch.Iovar(ctx, bsscfgName(name), nil, bssIdx, false, 4)
	if err != nil {
		return 0, err
	}
	if len(frame.Payload) < 4 {
		return 0, fmt.Errorf("whd/join: iovar %q response too short: %w", name, domain.ErrBadArgument)
	}
	return codec.DongleToHost32(frame.Payload), nil
}

// bsscfgName passes names already prefixed with "bsscfg:" through
// unchanged; others are used as-is, matching the convention that only
// some iovars are bsscfg-scoped.
func bsscfgName(name string) string { return name }
