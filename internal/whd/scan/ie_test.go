package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

func ieBytes(tag, length byte, val []byte) []byte {
	out := append([]byte{tag, length}, val...)
	return out
}

func TestIterateIEsStopsOnTruncatedTrailer(t *testing.T) {
	var seen []int
	data := append(ieBytes(0, 4, []byte("test")), 50, 10, 1, 2) // declares length 10 but only 2 bytes follow
	iterateIEs(data, func(tag int, val []byte) bool {
		seen = append(seen, tag)
		return true
	})
	assert.Equal(t, []int{0}, seen)
}

func TestClassifySecurityRSNPSK(t *testing.T) {
	// RSN IE: version(2) + group cipher(4, type=CCMP) + pairwise count(2)=1
	// + pairwise cipher(4, CCMP) + akm count(2)=1 + akm(4, PSK)
	rsn := []byte{1, 0}
	rsn = append(rsn, 0x00, 0x0f, 0xac, cipherCCMP)
	rsn = append(rsn, 1, 0)
	rsn = append(rsn, 0x00, 0x0f, 0xac, cipherCCMP)
	rsn = append(rsn, 1, 0)
	rsn = append(rsn, 0x00, 0x0f, 0xac, akmTypePSK)

	ies := ieBytes(tagRSN, byte(len(rsn)), rsn)
	sec, flags := classifySecurity(ies, 0)
	assert.True(t, sec.Has(domain.SecWPA2))
	assert.True(t, sec.Has(domain.SecAESEnabled))
	assert.False(t, sec.Has(domain.SecWPA3))
	assert.Equal(t, domain.ScanResultFlags(0), flags)
}

func TestClassifySecuritySAE(t *testing.T) {
	rsn := []byte{1, 0}
	rsn = append(rsn, 0x00, 0x0f, 0xac, cipherCCMP)
	rsn = append(rsn, 1, 0)
	rsn = append(rsn, 0x00, 0x0f, 0xac, cipherCCMP)
	rsn = append(rsn, 1, 0)
	rsn = append(rsn, 0x00, 0x0f, 0xac, akmTypeSAE)

	ies := ieBytes(tagRSN, byte(len(rsn)), rsn)
	sec, _ := classifySecurity(ies, 0)
	assert.True(t, sec.Has(domain.SecWPA3))
	assert.False(t, sec.Has(domain.SecWPA2))
}

func TestClassifySecurityPrivacyBitOnlyMeansWEP(t *testing.T) {
	sec, _ := classifySecurity(nil, capabilityPrivacyBit)
	assert.Equal(t, domain.SecWEP, sec)
}

func TestClassifySecurityOpenHasNoBits(t *testing.T) {
	sec, _ := classifySecurity(nil, 0)
	assert.Equal(t, domain.SecurityFlags(0), sec)
}

func TestClassifySecurityRSNXHE2E(t *testing.T) {
	ies := ieBytes(tagRSNX, 1, []byte{0x20})
	_, flags := classifySecurity(ies, 0)
	assert.True(t, flags&domain.FlagSaeH2e != 0)
}

func TestParseCountry(t *testing.T) {
	ies := ieBytes(tagCountry, 3, []byte("US\x00"))
	cc, ok := parseCountry(ies)
	require.True(t, ok)
	assert.Equal(t, [2]byte{'U', 'S'}, cc)
}

func TestParseHTMaxRate(t *testing.T) {
	capInfo := []byte{0x00, 0x00} // 20MHz, no SGI
	mcsSet := make([]byte, 16)
	mcsSet[0] = 0x0f // MCS0-3 supported
	ht := append(append([]byte{}, capInfo...), mcsSet...)
	ies := ieBytes(tagHTCapabilities, byte(len(ht)), ht)
	rate := parseHTMaxRate(ies)
	assert.Equal(t, htMaxRateKbps20[3][0], rate)
}
