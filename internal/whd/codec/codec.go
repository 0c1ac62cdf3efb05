// Package codec implements C1, the control-message codec: encoding and
// decoding of IOCTL/IOVAR request and response frames, and the
// byte-exact little-endian wire structs the firmware expects.
//
// Every integer field on the wire is little-endian; the package exposes
// host_to_dongle/dongle_to_host-equivalent helpers whose round-trip law
// (decode(encode(v)) == v) is exercised in codec_test.go.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// Command identifies a fixed IOCTL command number.
type Command uint32

// Fixed IOCTL command numbers. Values mirror the firmware convention
// matching the firmware convention; exact numeric assignment is internal to this
// codec and opaque to every caller above the command channel.
const (
	CmdUp Command = iota + 1
	CmdDown
	CmdSetSsid
	CmdDisassoc
	CmdGetBssInfo
	CmdGetAssocList
	CmdSetWsecPmk
	CmdSetChannel
	CmdGetChannel
	CmdScbDeauthenticateForReason
	CmdSetPm
	CmdGetPm
	CmdSetAuth
	CmdSetWpaAuth
	CmdSetGmode
	CmdSetBcnPrd
	CmdSetDtimPrd
	CmdCustomCountry

	// cmdGetVar/cmdSetVar address a named IOVAR rather than a fixed
	// command.
	cmdGetVar Command = 0x7fffff00
	cmdSetVar Command = 0x7fffff01
)

// Frame header offsets: command id, output length, flags,
// status, all little-endian u32.
const (
	headerLen          = 16
	offCommandID       = 0
	offOutputLength    = 4
	offFlags           = 8
	offStatus          = 12
	flagResponsePending = 1 << 0
)

// FrameStatus is the firmware-set status word on a response frame.
type FrameStatus int32

const (
	StatusOK FrameStatus = iota
	StatusUnsupported FrameStatus = -23 // matches the firmware's BCME_UNSUPPORTED convention
)

// Frame is a decoded IOCTL/IOVAR request or response.
type Frame struct {
	Command      Command
	OutputLength uint32
	Flags        uint32
	Status       FrameStatus
	TxID         uint32
	Payload      []byte
}

// EncodeIOCTL builds the wire bytes for a fixed-command IOCTL request.
// txID is supplied by the command channel (C2), which owns the
// monotonic transaction counter.
func EncodeIOCTL(cmd Command, payload []byte, outputLen uint32, txID uint32) ([]byte, error) {
	buf := make([]byte, headerLen+len(payload))
	HostToDongle32(buf[offCommandID:], uint32(cmd))
	HostToDongle32(buf[offOutputLength:], outputLen)
	HostToDongle32(buf[offFlags:], txID)
	HostToDongle32(buf[offStatus:], 0)
	copy(buf[headerLen:], payload)
	return buf, nil
}

// EncodeIOVAR builds the wire bytes for a named IOVAR request: a
// null-terminated ASCII name, optionally prefixed (when the name begins
// with "bsscfg:") by a 4-byte little-endian bss index, then the typed
// argument, all wrapped in the same IOCTL framing using the Get-Var or
// Set-Var command id.
func EncodeIOVAR(name string, arg []byte, bssIdx int, isSet bool, outputLen uint32, txID uint32) ([]byte, error) {
	var body []byte
	body = append(body, []byte(name)...)
	body = append(body, 0)
	if hasBSSCfgPrefix(name) {
		idx := make([]byte, 4)
		HostToDongle32(idx, uint32(bssIdx))
		body = append(body, idx...)
	}
	body = append(body, arg...)

	cmd := cmdGetVar
	if isSet {
		cmd = cmdSetVar
	}
	if outputLen == 0 {
		outputLen = uint32(len(body))
	}
	if len(body) > int(outputLen) && isSet {
		return nil, fmt.Errorf("whd/codec: iovar %q payload %d exceeds negotiated buffer %d: %w", name, len(body), outputLen, domain.ErrBadArgument)
	}
	return EncodeIOCTL(cmd, body, outputLen, txID)
}

func hasBSSCfgPrefix(name string) bool {
	const prefix = "bsscfg:"
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

// Decode parses the wire bytes of an IOCTL/IOVAR response frame.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < headerLen {
		return nil, fmt.Errorf("whd/codec: frame too short (%d bytes): %w", len(raw), domain.ErrBadArgument)
	}
	f := &Frame{
		Command:      Command(DongleToHost32(raw[offCommandID:])),
		OutputLength: DongleToHost32(raw[offOutputLength:]),
		Flags:        DongleToHost32(raw[offFlags:]),
		Status:       FrameStatus(int32(DongleToHost32(raw[offStatus:]))),
		TxID:         DongleToHost32(raw[offFlags:]),
		Payload:      raw[headerLen:],
	}
	return f, nil
}

// HostToDongle16 writes v little-endian into the first two bytes of buf.
func HostToDongle16(buf []byte, v uint16) { binary.LittleEndian.PutUint16(buf, v) }

// HostToDongle32 writes v little-endian into the first four bytes of buf.
func HostToDongle32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }

// DongleToHost16 reads a little-endian u16 from the first two bytes of buf.
func DongleToHost16(buf []byte) uint16 { return binary.LittleEndian.Uint16(buf) }

// DongleToHost32 reads a little-endian u32 from the first four bytes of buf.
func DongleToHost32(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf) }
