package codec

import (
	"fmt"
	"net"

	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// This file defines the byte-exact little-endian wire structs the
// firmware expects. Each has Encode/Decode methods following the same
// bounds-checked field-by-field style as the command frame codec above;
// decode(encode(s)) == s is exercised in structs_test.go.

// WLBssInfo mirrors the firmware's wl_bss_info_t: the subset of fields
// the scan/join path actually reads (not every byte wl_bss_info_t
// carries on the wire is represented here — the event dispatcher only
// needs what ScanResult sets from it).
type WLBssInfo struct {
	Version      uint32
	Length       uint32
	BSSID        [6]byte
	BeaconPeriod uint16
	CapabilityCap uint16
	SSIDLen      uint8
	SSID         [32]byte
	RateCount    uint32
	ChanSpec     uint16
	RSSI         int16
}

const wlBssInfoLen = 4 + 4 + 6 + 2 + 2 + 1 + 32 + 4 + 2 + 2

// WLBssInfoLen is the fixed-field length of WLBssInfo on the wire; any
// bytes beyond it in an escan BSS record are the trailing IE blob.
const WLBssInfoLen = wlBssInfoLen

// Encode writes b onto a new little-endian byte slice.
func (b *WLBssInfo) Encode() []byte {
	buf := make([]byte, wlBssInfoLen)
	off := 0
	HostToDongle32(buf[off:], b.Version)
	off += 4
	HostToDongle32(buf[off:], b.Length)
	off += 4
	copy(buf[off:off+6], b.BSSID[:])
	off += 6
	HostToDongle16(buf[off:], b.BeaconPeriod)
	off += 2
	HostToDongle16(buf[off:], b.CapabilityCap)
	off += 2
	buf[off] = b.SSIDLen
	off++
	copy(buf[off:off+32], b.SSID[:])
	off += 32
	HostToDongle32(buf[off:], b.RateCount)
	off += 4
	HostToDongle16(buf[off:], b.ChanSpec)
	off += 2
	HostToDongle16(buf[off:], uint16(b.RSSI))
	return buf
}

// DecodeWLBssInfo parses raw into a WLBssInfo, rejecting bounds
// violations immediately rather than deferring them to the caller's
// IE-walking code.
func DecodeWLBssInfo(raw []byte) (*WLBssInfo, error) {
	if len(raw) < wlBssInfoLen {
		return nil, fmt.Errorf("whd/codec: wl_bss_info truncated (%d < %d): %w", len(raw), wlBssInfoLen, domain.ErrBadArgument)
	}
	b := &WLBssInfo{}
	off := 0
	b.Version = DongleToHost32(raw[off:])
	off += 4
	b.Length = DongleToHost32(raw[off:])
	off += 4
	copy(b.BSSID[:], raw[off:off+6])
	off += 6
	b.BeaconPeriod = DongleToHost16(raw[off:])
	off += 2
	b.CapabilityCap = DongleToHost16(raw[off:])
	off += 2
	b.SSIDLen = raw[off]
	off++
	copy(b.SSID[:], raw[off:off+32])
	off += 32
	b.RateCount = DongleToHost32(raw[off:])
	off += 4
	b.ChanSpec = DongleToHost16(raw[off:])
	off += 2
	b.RSSI = int16(DongleToHost16(raw[off:]))
	return b, nil
}

// WLEscanParams mirrors wl_escan_params_t: the escan IOVAR request body.
type WLEscanParams struct {
	Version    uint32
	Action     uint16
	SyncID     uint16
	ScanType   int32 // 0 active, 1 passive
	SSIDLen    uint8
	SSID       [32]byte
	BSSID      [6]byte
	ChannelNum uint32
	ChannelList []uint16
}

// Escan action values, matching firmware convention.
const (
	EscanActionStart uint16 = 1
	EscanActionAbort uint16 = 2
)

// Encode serializes the escan request, inlining the variable-length
// channel list at the end per firmware convention.
func (p *WLEscanParams) Encode() []byte {
	fixedLen := 4 + 2 + 2 + 4 + 1 + 32 + 6 + 4
	buf := make([]byte, fixedLen+2*len(p.ChannelList))
	off := 0
	HostToDongle32(buf[off:], p.Version)
	off += 4
	HostToDongle16(buf[off:], p.Action)
	off += 2
	HostToDongle16(buf[off:], p.SyncID)
	off += 2
	HostToDongle32(buf[off:], uint32(p.ScanType))
	off += 4
	buf[off] = p.SSIDLen
	off++
	copy(buf[off:off+32], p.SSID[:])
	off += 32
	copy(buf[off:off+6], p.BSSID[:])
	off += 6
	HostToDongle32(buf[off:], uint32(len(p.ChannelList)))
	off += 4
	for _, ch := range p.ChannelList {
		HostToDongle16(buf[off:], ch)
		off += 2
	}
	return buf
}

// DecodeWLEscanParams parses raw into a WLEscanParams.
func DecodeWLEscanParams(raw []byte) (*WLEscanParams, error) {
	const fixedLen = 4 + 2 + 2 + 4 + 1 + 32 + 6 + 4
	if len(raw) < fixedLen {
		return nil, fmt.Errorf("whd/codec: wl_escan_params truncated: %w", domain.ErrBadArgument)
	}
	p := &WLEscanParams{}
	off := 0
	p.Version = DongleToHost32(raw[off:])
	off += 4
	p.Action = DongleToHost16(raw[off:])
	off += 2
	p.SyncID = DongleToHost16(raw[off:])
	off += 2
	p.ScanType = int32(DongleToHost32(raw[off:]))
	off += 4
	p.SSIDLen = raw[off]
	off++
	copy(p.SSID[:], raw[off:off+32])
	off += 32
	copy(p.BSSID[:], raw[off:off+6])
	off += 6
	n := DongleToHost32(raw[off:])
	off += 4
	if len(raw) < off+2*int(n) {
		return nil, fmt.Errorf("whd/codec: wl_escan_params channel list truncated: %w", domain.ErrBadArgument)
	}
	p.ChannelList = make([]uint16, n)
	for i := range p.ChannelList {
		p.ChannelList[i] = DongleToHost16(raw[off:])
		off += 2
	}
	return p, nil
}

// WLSsid mirrors wlc_ssid_t: the legacy SSID-set IOCTL body used as the
// associate fallback when firmware rejects the "join" IOVAR.
type WLSsid struct {
	SSIDLen uint32
	SSID    [32]byte
}

const wlSsidLen = 4 + 32

// Encode serializes the legacy SSID struct.
func (s *WLSsid) Encode() []byte {
	buf := make([]byte, wlSsidLen)
	HostToDongle32(buf[0:], s.SSIDLen)
	copy(buf[4:], s.SSID[:])
	return buf
}

// DecodeWLSsid parses raw into a WLSsid.
func DecodeWLSsid(raw []byte) (*WLSsid, error) {
	if len(raw) < wlSsidLen {
		return nil, fmt.Errorf("whd/codec: wlc_ssid truncated: %w", domain.ErrBadArgument)
	}
	s := &WLSsid{SSIDLen: DongleToHost32(raw[0:])}
	copy(s.SSID[:], raw[4:4+32])
	return s, nil
}

// NewWLSsid builds a legacy SSID struct from a plain string.
func NewWLSsid(ssid string) (*WLSsid, error) {
	if len(ssid) == 0 || len(ssid) > domain.MaxSSIDLength {
		return nil, domain.ErrInvalidSSIDLen
	}
	s := &WLSsid{SSIDLen: uint32(len(ssid))}
	copy(s.SSID[:], ssid)
	return s, nil
}

// WLExtJoinParams mirrors wl_extjoin_params_t: the preferred "join"
// IOVAR body carrying an SSID, an optional BSSID, and assoc-scan
// parameters.
type WLExtJoinParams struct {
	SSIDLen  uint8
	SSID     [32]byte
	BSSID    [6]byte
	ChanSpec uint16
	ScanType int32
}

const wlExtJoinParamsLen = 1 + 32 + 6 + 2 + 4

// Encode serializes p.
func (p *WLExtJoinParams) Encode() []byte {
	buf := make([]byte, wlExtJoinParamsLen)
	off := 0
	buf[off] = p.SSIDLen
	off++
	copy(buf[off:off+32], p.SSID[:])
	off += 32
	copy(buf[off:off+6], p.BSSID[:])
	off += 6
	HostToDongle16(buf[off:], p.ChanSpec)
	off += 2
	HostToDongle32(buf[off:], uint32(p.ScanType))
	return buf
}

// DecodeWLExtJoinParams parses raw into a WLExtJoinParams.
func DecodeWLExtJoinParams(raw []byte) (*WLExtJoinParams, error) {
	if len(raw) < wlExtJoinParamsLen {
		return nil, fmt.Errorf("whd/codec: wl_extjoin_params truncated: %w", domain.ErrBadArgument)
	}
	p := &WLExtJoinParams{}
	off := 0
	p.SSIDLen = raw[off]
	off++
	copy(p.SSID[:], raw[off:off+32])
	off += 32
	copy(p.BSSID[:], raw[off:off+6])
	off += 6
	p.ChanSpec = DongleToHost16(raw[off:])
	off += 2
	p.ScanType = int32(DongleToHost32(raw[off:]))
	return p, nil
}

// NewWLExtJoinParams builds join params from JoinParameters and an
// assembled chanspec, used by the associate step.
func NewWLExtJoinParams(p *domain.JoinParameters, chanSpec uint16) (*WLExtJoinParams, error) {
	if len(p.SSID) == 0 || len(p.SSID) > domain.MaxSSIDLength {
		return nil, domain.ErrInvalidSSIDLen
	}
	out := &WLExtJoinParams{SSIDLen: uint8(len(p.SSID)), ChanSpec: chanSpec}
	copy(out.SSID[:], p.SSID)
	if p.HasBSSID() {
		copy(out.BSSID[:], p.BSSID)
	}
	return out, nil
}

// WsecPmk mirrors wsec_pmk_t: a PMK or passphrase installed via
// SetWsecPmk.
type WsecPmk struct {
	KeyLen uint16
	Flags  uint16
	Key    [64]byte
}

const wsecPmkLen = 2 + 2 + 64

// Encode serializes the PMK struct.
func (w *WsecPmk) Encode() []byte {
	buf := make([]byte, wsecPmkLen)
	HostToDongle16(buf[0:], w.KeyLen)
	HostToDongle16(buf[2:], w.Flags)
	copy(buf[4:], w.Key[:])
	return buf
}

// DecodeWsecPmk parses raw into a WsecPmk.
func DecodeWsecPmk(raw []byte) (*WsecPmk, error) {
	if len(raw) < wsecPmkLen {
		return nil, fmt.Errorf("whd/codec: wsec_pmk truncated: %w", domain.ErrBadArgument)
	}
	w := &WsecPmk{KeyLen: DongleToHost16(raw[0:]), Flags: DongleToHost16(raw[2:])}
	copy(w.Key[:], raw[4:4+64])
	return w, nil
}

// NewWsecPmk validates and builds a WsecPmk from raw key bytes (32 or 48
// bytes ).
func NewWsecPmk(key []byte) (*WsecPmk, error) {
	if len(key) != 32 && len(key) != 48 {
		return nil, domain.ErrInvalidPMKLen
	}
	w := &WsecPmk{KeyLen: uint16(len(key))}
	copy(w.Key[:], key)
	return w, nil
}

// WsecSaePassword mirrors wsec_sae_password_t, installed for WPA3-SAE
// joins.
type WsecSaePassword struct {
	PasswordLen uint16
	Password    [domain.MaxSAEPassword]byte
}

const wsecSaePasswordLen = 2 + domain.MaxSAEPassword

// Encode serializes the SAE password struct.
func (w *WsecSaePassword) Encode() []byte {
	buf := make([]byte, wsecSaePasswordLen)
	HostToDongle16(buf[0:], w.PasswordLen)
	copy(buf[2:], w.Password[:])
	return buf
}

// DecodeWsecSaePassword parses raw into a WsecSaePassword.
func DecodeWsecSaePassword(raw []byte) (*WsecSaePassword, error) {
	if len(raw) < wsecSaePasswordLen {
		return nil, fmt.Errorf("whd/codec: wsec_sae_password truncated: %w", domain.ErrBadArgument)
	}
	w := &WsecSaePassword{PasswordLen: DongleToHost16(raw[0:])}
	copy(w.Password[:], raw[2:2+domain.MaxSAEPassword])
	return w, nil
}

// WLChanSwitch mirrors wl_chan_switch_t, the CSA (Channel Switch
// Announcement) wire struct. The codec can
// represent it even though CSA configuration stays out of scope
// — C1 has no knowledge of which higher layer issues it.
type WLChanSwitch struct {
	Mode     uint8
	Count    uint8
	ChanSpec uint16
	RegClass uint8
}

const wlChanSwitchLen = 1 + 1 + 2 + 1

// Encode serializes the CSA struct.
func (c *WLChanSwitch) Encode() []byte {
	buf := make([]byte, wlChanSwitchLen)
	buf[0] = c.Mode
	buf[1] = c.Count
	HostToDongle16(buf[2:], c.ChanSpec)
	buf[4] = c.RegClass
	return buf
}

// DecodeWLChanSwitch parses raw into a WLChanSwitch.
func DecodeWLChanSwitch(raw []byte) (*WLChanSwitch, error) {
	if len(raw) < wlChanSwitchLen {
		return nil, fmt.Errorf("whd/codec: wl_chan_switch truncated: %w", domain.ErrBadArgument)
	}
	return &WLChanSwitch{
		Mode:     raw[0],
		Count:    raw[1],
		ChanSpec: DongleToHost16(raw[2:]),
		RegClass: raw[4],
	}, nil
}

// PMKIDEntry and PmkidList mirror pmkid_t / pmkid_list_t: the PMKID
// cache wire format exchanged with firmware via the "pmkid_info" IOVAR.
type PMKIDEntry struct {
	BSSID  [6]byte
	PMKID  [16]byte
}

type PmkidList struct {
	Entries []PMKIDEntry
}

// Encode serializes the PMKID list as a u32 count followed by
// (BSSID, PMKID) pairs.
func (l *PmkidList) Encode() []byte {
	buf := make([]byte, 4+22*len(l.Entries))
	HostToDongle32(buf, uint32(len(l.Entries)))
	off := 4
	for _, e := range l.Entries {
		copy(buf[off:off+6], e.BSSID[:])
		copy(buf[off+6:off+22], e.PMKID[:])
		off += 22
	}
	return buf
}

// DecodePmkidList parses raw into a PmkidList.
func DecodePmkidList(raw []byte) (*PmkidList, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("whd/codec: pmkid_list truncated: %w", domain.ErrBadArgument)
	}
	n := DongleToHost32(raw)
	if len(raw) < 4+22*int(n) {
		return nil, fmt.Errorf("whd/codec: pmkid_list entries truncated: %w", domain.ErrBadArgument)
	}
	l := &PmkidList{Entries: make([]PMKIDEntry, n)}
	off := 4
	for i := range l.Entries {
		copy(l.Entries[i].BSSID[:], raw[off:off+6])
		copy(l.Entries[i].PMKID[:], raw[off+6:off+22])
		off += 22
	}
	return l, nil
}

// WLTWTParams mirrors wl_twt_sdesc_t, the Target Wake Time offload
// descriptor; TWT configuration itself stays out of scope, but the
// codec must still be able to represent it.
type WLTWTParams struct {
	FlowID     uint8
	NegoType   uint8
	WakeDurUs  uint32
	WakeIntUs  uint32
}

const wlTWTParamsLen = 1 + 1 + 4 + 4

func (t *WLTWTParams) Encode() []byte {
	buf := make([]byte, wlTWTParamsLen)
	buf[0] = t.FlowID
	buf[1] = t.NegoType
	HostToDongle32(buf[2:], t.WakeDurUs)
	HostToDongle32(buf[6:], t.WakeIntUs)
	return buf
}

func DecodeWLTWTParams(raw []byte) (*WLTWTParams, error) {
	if len(raw) < wlTWTParamsLen {
		return nil, fmt.Errorf("whd/codec: wl_twt_sdesc truncated: %w", domain.ErrBadArgument)
	}
	return &WLTWTParams{
		FlowID:    raw[0],
		NegoType:  raw[1],
		WakeDurUs: DongleToHost32(raw[2:]),
		WakeIntUs: DongleToHost32(raw[6:]),
	}, nil
}

// WLOlCfgV1 mirrors wl_ol_cfg_v1_t, the generic offload-configuration
// envelope (ARP/NS offload).
type WLOlCfgV1 struct {
	Version uint16
	Length  uint16
	OlFlags uint32
}

const wlOlCfgV1Len = 2 + 2 + 4

func (o *WLOlCfgV1) Encode() []byte {
	buf := make([]byte, wlOlCfgV1Len)
	HostToDongle16(buf[0:], o.Version)
	HostToDongle16(buf[2:], o.Length)
	HostToDongle32(buf[4:], o.OlFlags)
	return buf
}

func DecodeWLOlCfgV1(raw []byte) (*WLOlCfgV1, error) {
	if len(raw) < wlOlCfgV1Len {
		return nil, fmt.Errorf("whd/codec: wl_ol_cfg_v1 truncated: %w", domain.ErrBadArgument)
	}
	return &WLOlCfgV1{
		Version: DongleToHost16(raw[0:]),
		Length:  DongleToHost16(raw[2:]),
		OlFlags: DongleToHost32(raw[4:]),
	}, nil
}

// WLTKOParams mirrors wl_tko_t, the TCP Keep-Offload wire struct used by
// the offload-configuration IOVARs.
type WLTKOParams struct {
	Index    uint8
	Enable   uint8
	IntervalSec uint16
	RetryCount  uint8
}

const wlTKOParamsLen = 1 + 1 + 2 + 1

func (t *WLTKOParams) Encode() []byte {
	buf := make([]byte, wlTKOParamsLen)
	buf[0] = t.Index
	buf[1] = t.Enable
	HostToDongle16(buf[2:], t.IntervalSec)
	buf[4] = t.RetryCount
	return buf
}

func DecodeWLTKOParams(raw []byte) (*WLTKOParams, error) {
	if len(raw) < wlTKOParamsLen {
		return nil, fmt.Errorf("whd/codec: wl_tko truncated: %w", domain.ErrBadArgument)
	}
	return &WLTKOParams{
		Index:       raw[0],
		Enable:      raw[1],
		IntervalSec: DongleToHost16(raw[2:]),
		RetryCount:  raw[4],
	}, nil
}

// WLWowlPattern mirrors wl_wowl_pattern_t, the Wake-on-Wireless-LAN
// match-pattern wire struct.
type WLWowlPattern struct {
	MaskSize    uint32
	PatternSize uint32
	Mask        []byte
	Pattern     []byte
}

func (w *WLWowlPattern) Encode() []byte {
	buf := make([]byte, 8+len(w.Mask)+len(w.Pattern))
	HostToDongle32(buf[0:], uint32(len(w.Mask)))
	HostToDongle32(buf[4:], uint32(len(w.Pattern)))
	off := 8
	copy(buf[off:], w.Mask)
	off += len(w.Mask)
	copy(buf[off:], w.Pattern)
	return buf
}

func DecodeWLWowlPattern(raw []byte) (*WLWowlPattern, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("whd/codec: wl_wowl_pattern truncated: %w", domain.ErrBadArgument)
	}
	maskLen := DongleToHost32(raw[0:])
	patLen := DongleToHost32(raw[4:])
	need := 8 + int(maskLen) + int(patLen)
	if len(raw) < need {
		return nil, fmt.Errorf("whd/codec: wl_wowl_pattern body truncated: %w", domain.ErrBadArgument)
	}
	w := &WLWowlPattern{MaskSize: maskLen, PatternSize: patLen}
	w.Mask = append([]byte(nil), raw[8:8+maskLen]...)
	w.Pattern = append([]byte(nil), raw[8+maskLen:8+maskLen+patLen]...)
	return w, nil
}

// BuildChanSpec assembles the 16-bit (band, bandwidth, primary-channel,
// sideband) chanspec encoding from a channel number and band.
func BuildChanSpec(channel int, band domain.Band) uint16 {
	var bandBits uint16
	switch band {
	case domain.Band5G:
		bandBits = 0x2000
	case domain.Band6G:
		bandBits = 0x3000
	default:
		bandBits = 0x1000
	}
	const bw20MHz = 0x0800
	return bandBits | bw20MHz | uint16(channel&0xff)
}

// ParseChanSpec decodes the band and primary channel number out of a
// chanspec built by BuildChanSpec. Bandwidth/sideband bits are ignored —
// the scan engine only ever reports the primary channel.
func ParseChanSpec(cs uint16) (domain.Band, int) {
	band := domain.Band2G4
	switch cs & 0xf000 {
	case 0x2000:
		band = domain.Band5G
	case 0x3000:
		band = domain.Band6G
	}
	return band, int(cs & 0xff)
}

// MACFromBytes is a small helper so callers building wire structs can go
// from a net.HardwareAddr without repeating the bounds check.
func MACFromBytes(mac net.HardwareAddr) (out [6]byte, err error) {
	if len(mac) != 6 {
		return out, domain.ErrBadArgument
	}
	copy(out[:], mac)
	return out, nil
}

// WLAssocList mirrors the GetAssocList IOCTL response: a count-prefixed
// array of associated STA MAC addresses.
type WLAssocList struct {
	MACs [][6]byte
}

// DecodeWLAssocList parses raw into a WLAssocList.
func DecodeWLAssocList(raw []byte) (*WLAssocList, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("whd/codec: wl_assoc_list truncated: %w", domain.ErrBadArgument)
	}
	n := DongleToHost32(raw)
	if len(raw) < 4+6*int(n) {
		return nil, fmt.Errorf("whd/codec: wl_assoc_list entries truncated: %w", domain.ErrBadArgument)
	}
	out := &WLAssocList{MACs: make([][6]byte, n)}
	off := 4
	for i := range out.MACs {
		copy(out.MACs[i][:], raw[off:off+6])
		off += 6
	}
	return out, nil
}

// Encode serializes a WLAssocList, used by test fakes that need to hand
// back a plausible GetAssocList response.
func (l *WLAssocList) Encode() []byte {
	buf := make([]byte, 4+6*len(l.MACs))
	HostToDongle32(buf, uint32(len(l.MACs)))
	off := 4
	for _, mac := range l.MACs {
		copy(buf[off:off+6], mac[:])
		off += 6
	}
	return buf
}
