package codec

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndiannessRoundTrip16(t *testing.T) {
	f := func(v uint16) bool {
		buf := make([]byte, 2)
		HostToDongle16(buf, v)
		return DongleToHost16(buf) == v
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestEndiannessRoundTrip32(t *testing.T) {
	f := func(v uint32) bool {
		buf := make([]byte, 4)
		HostToDongle32(buf, v)
		return DongleToHost32(buf) == v
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestEncodeIOCTLHeaderFields(t *testing.T) {
	raw, err := EncodeIOCTL(CmdSetSsid, []byte("payload"), 64, 7)
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, CmdSetSsid, f.Command)
	assert.Equal(t, uint32(64), f.OutputLength)
	assert.Equal(t, uint32(7), f.TxID)
	assert.Equal(t, []byte("payload"), f.Payload)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestEncodeIOVARBsscfgPrefix(t *testing.T) {
	raw, err := EncodeIOVAR("bsscfg:sup_wpa", []byte{1}, 2, true, 0, 1)
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)

	// name + NUL + 4-byte bss index + 1-byte arg
	wantLen := len("bsscfg:sup_wpa") + 1 + 4 + 1
	assert.Equal(t, wantLen, len(f.Payload))
	assert.Equal(t, uint32(2), DongleToHost32(f.Payload[len("bsscfg:sup_wpa")+1:]))
}

func TestEncodeIOVARRejectsOverlongSetPayload(t *testing.T) {
	_, err := EncodeIOVAR("join", make([]byte, 100), 0, true, 10, 1)
	require.Error(t, err)
}

func TestBuildChanSpecBandBits(t *testing.T) {
	cs24 := BuildChanSpec(6, 0)
	cs5 := BuildChanSpec(36, 1)
	assert.NotEqual(t, cs24&0xf000, cs5&0xf000)
}
