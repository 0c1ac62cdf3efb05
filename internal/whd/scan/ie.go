// Package scan implements the escan-driven scan engine and the
// information-element security classifier: escan request/abort,
// partial-result BSS parsing, RSN/WPA/RSNX/HT/country IE walking,
// off-channel dropping, and the scan-completion state machine.
//
// The IE walk is plain length-prefixed tag slicing over stdlib bytes —
// no general-purpose IE-parsing library fits a firmware-supplied BSS
// record this small.
package scan

import "github.com/Infineon/whd-expansion/internal/whd/domain"

// Information-element tag numbers this classifier inspects.
const (
	tagSSID             = 0
	tagSuppRates        = 1
	tagDSParam          = 3
	tagCountry          = 7
	tagHTCapabilities   = 45
	tagRSN              = 48
	tagExtSuppRates     = 50
	tagVendorSpecific   = 221
	tagRSNX             = 244
)

const capabilityPrivacyBit = 1 << 4

// wpaOUI is the WPA vendor-IE organizationally unique identifier
// (00:50:F2) with vendor type 1, per the legacy WPA-IE convention.
var wpaOUI = [3]byte{0x00, 0x50, 0xf2}

const wpaVendorType = 1

// iterateIEs walks a length-prefixed (tag, length, value) IE blob,
// calling fn for each element. It stops (without error) at the first
// malformed length so a truncated trailing IE never reads out of bounds.
func iterateIEs(data []byte, fn func(tag int, val []byte) bool) {
	offset := 0
	for offset+2 <= len(data) {
		tag := int(data[offset])
		length := int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return
		}
		if !fn(tag, data[offset:offset+length]) {
			return
		}
		offset += length
	}
}

// findIE returns the first IE value matching tag, or nil.
func findIE(data []byte, tag int) []byte {
	var out []byte
	iterateIEs(data, func(t int, v []byte) bool {
		if t == tag {
			out = v
			return false
		}
		return true
	})
	return out
}

// findWPAVendorIE returns the WPA vendor-IE body (after the OUI+type
// prefix) if present, or nil.
func findWPAVendorIE(data []byte) []byte {
	var out []byte
	iterateIEs(data, func(t int, v []byte) bool {
		if t != tagVendorSpecific || len(v) < 4 {
			return true
		}
		if v[0] == wpaOUI[0] && v[1] == wpaOUI[1] && v[2] == wpaOUI[2] && v[3] == wpaVendorType {
			out = v[4:]
			return false
		}
		return true
	})
	return out
}

// RSN AKM suite types (802.11-2020 Table 9-151, OUI 00-0F-AC).
const (
	akmTypeDot1X      = 1
	akmTypePSK        = 2
	akmTypeFTDot1X    = 3
	akmTypeFTPSK      = 4
	akmTypeDot1XSHA256 = 5
	akmTypePSKSHA256   = 6
	akmTypeSAE         = 8
	akmTypeFTSAE       = 9
)

// RSN cipher suite types.
const (
	cipherTKIP = 2
	cipherCCMP = 4
)

// classifyRSN decodes an RSN IE body into the security flag bits it
// implies.
func classifyRSN(rsn []byte) domain.SecurityFlags {
	var flags domain.SecurityFlags
	if len(rsn) < 8 {
		// Version + group cipher only, malformed for pairwise/AKM
		// parsing; still definitely RSN (WPA2/WPA3 family).
		return domain.SecWPA2
	}
	off := 2 // skip version
	groupCipher := rsn[off+3]
	flags |= cipherFlags(groupCipher)
	off += 4

	if off+2 > len(rsn) {
		return flags | domain.SecWPA2
	}
	pairwiseCount := int(rsn[off]) | int(rsn[off+1])<<8
	off += 2
	for i := 0; i < pairwiseCount && off+4 <= len(rsn); i++ {
		flags |= cipherFlags(rsn[off+3])
		off += 4
	}

	if off+2 > len(rsn) {
		return flags | domain.SecWPA2
	}
	akmCount := int(rsn[off]) | int(rsn[off+1])<<8
	off += 2
	sawWPA3 := false
	sawWPA2 := false
	for i := 0; i < akmCount && off+4 <= len(rsn); i++ {
		switch rsn[off+3] {
		case akmTypePSK:
			sawWPA2 = true
		case akmTypePSKSHA256:
			sawWPA2 = true
			flags |= domain.SecSHA256
		case akmTypeSAE:
			sawWPA3 = true
		case akmTypeDot1X, akmTypeDot1XSHA256:
			sawWPA2 = true
			flags |= domain.SecEnterprise
		case akmTypeFTPSK:
			sawWPA2 = true
			flags |= domain.SecFBT
		case akmTypeFTDot1X:
			sawWPA2 = true
			flags |= domain.SecEnterprise | domain.SecFBT
		case akmTypeFTSAE:
			sawWPA3 = true
			flags |= domain.SecFBT
		}
		off += 4
	}
	if sawWPA3 {
		flags |= domain.SecWPA3
	}
	if sawWPA2 || !sawWPA3 {
		flags |= domain.SecWPA2
	}
	return flags
}

func cipherFlags(cipherType byte) domain.SecurityFlags {
	switch cipherType {
	case cipherTKIP:
		return domain.SecTKIPEnabled
	case cipherCCMP:
		return domain.SecAESEnabled
	default:
		return 0
	}
}

// wpaCipher* are the legacy WPA vendor-IE cipher suite types (OUI
// 00:50:F2).
const (
	wpaCipherTKIP = 2
	wpaCipherCCMP = 4
)

// classifyWPAVendor decodes a legacy WPA vendor-IE body (after the
// OUI+type prefix) the same way classifyRSN decodes an RSN body.
func classifyWPAVendor(wpa []byte) domain.SecurityFlags {
	flags := domain.SecWPA
	if len(wpa) < 6 {
		return flags
	}
	off := 2 // version
	groupCipher := wpa[off+3]
	flags |= legacyCipherFlags(groupCipher)
	off += 4

	if off+2 > len(wpa) {
		return flags
	}
	pairwiseCount := int(wpa[off]) | int(wpa[off+1])<<8
	off += 2
	for i := 0; i < pairwiseCount && off+4 <= len(wpa); i++ {
		flags |= legacyCipherFlags(wpa[off+3])
		off += 4
	}

	if off+2 > len(wpa) {
		return flags
	}
	akmCount := int(wpa[off]) | int(wpa[off+1])<<8
	off += 2
	for i := 0; i < akmCount && off+4 <= len(wpa); i++ {
		if wpa[off+3] == akmTypeDot1X {
			flags |= domain.SecEnterprise
		}
		off += 4
	}
	return flags
}

func legacyCipherFlags(cipherType byte) domain.SecurityFlags {
	switch cipherType {
	case wpaCipherTKIP:
		return domain.SecTKIPEnabled
	case wpaCipherCCMP:
		return domain.SecAESEnabled
	default:
		return 0
	}
}

// classifySecurity implements the full precedence order: an RSN IE
// wins over a legacy WPA vendor IE, which wins over the bare privacy
// bit, which wins over open. RSNX is layered on top independent of
// which branch matched.
func classifySecurity(ies []byte, capabilityCap uint16) (domain.SecurityFlags, domain.ScanResultFlags) {
	var sec domain.SecurityFlags
	var flags domain.ScanResultFlags

	switch {
	case findIE(ies, tagRSN) != nil:
		sec = classifyRSN(findIE(ies, tagRSN))
	case findWPAVendorIE(ies) != nil:
		sec = classifyWPAVendor(findWPAVendorIE(ies))
	case capabilityCap&capabilityPrivacyBit != 0:
		sec = domain.SecWEP
	}

	if rsnx := findIE(ies, tagRSNX); len(rsnx) > 0 {
		const rsnxH2EBit = 1 << 5
		if rsnx[0]&rsnxH2EBit != 0 {
			flags |= domain.FlagSaeH2e
		}
	}
	return sec, flags
}

// parseCountry extracts the 2-letter country code from a Country IE, if
// present.
func parseCountry(ies []byte) ([2]byte, bool) {
	var out [2]byte
	c := findIE(ies, tagCountry)
	if len(c) < 2 {
		return out, false
	}
	copy(out[:], c[:2])
	return out, true
}

// htMaxRateKbps20 and htMaxRateKbps40 give the single-spatial-stream
// 802.11n MCS0-7 PHY rate, in kbps, indexed by MCS and short-guard-
// interval.
var htMaxRateKbps20 = [8][2]uint32{
	{6500, 7200}, {13000, 14400}, {19500, 21700}, {26000, 28900},
	{39000, 43300}, {52000, 57800}, {58500, 65000}, {65000, 72200},
}

var htMaxRateKbps40 = [8][2]uint32{
	{13500, 15000}, {27000, 30000}, {40500, 45000}, {54000, 60000},
	{81000, 90000}, {108000, 120000}, {121500, 135000}, {135000, 150000},
}

// parseHTMaxRate reads the HT Capabilities IE (if present) and returns
// the highest single-stream MCS rate it advertises, honoring the
// 20/40MHz channel-width bit and the relevant short-GI bit.
func parseHTMaxRate(ies []byte) uint32 {
	ht := findIE(ies, tagHTCapabilities)
	if len(ht) < 2+16 {
		return 0
	}
	capInfo := uint16(ht[0]) | uint16(ht[1])<<8
	const bit40MHz = 1 << 1
	const bitSGI20 = 1 << 5
	const bitSGI40 = 1 << 6
	wide := capInfo&bit40MHz != 0

	mcsSet := ht[2:18]
	highest := -1
	for i := 0; i < 8; i++ {
		if mcsSet[0]&(1<<uint(i)) != 0 {
			highest = i
		}
	}
	if highest < 0 {
		return 0
	}

	sgi := 0
	if wide && capInfo&bitSGI40 != 0 {
		sgi = 1
	} else if !wide && capInfo&bitSGI20 != 0 {
		sgi = 1
	}
	if wide {
		return htMaxRateKbps40[highest][sgi]
	}
	return htMaxRateKbps20[highest][sgi]
}
