package sae

import (
	"context"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// dot11AlgorithmSAE is the 802.11-2016 authentication-algorithm number
// for SAE. gopacket's Dot11AlgorithmNumber enum predates SAE, so this is
// a direct numeric conversion rather than a named constant from the
// layers package.
const dot11AlgorithmSAE = layers.Dot11Algorithm(3)

// FrameParams is a host-constructed SAE authentication frame ready for
// transmission: the supplicant has already built the commit or confirm
// element payload, and this package is only responsible for wrapping it
// in a valid 802.11 management frame.
type FrameParams struct {
	Peer       net.HardwareAddr
	Own        net.HardwareAddr
	BSSID      net.HardwareAddr
	SeqNumber  uint16 // SAE transaction: 1 = commit, 2 = confirm
	StatusCode uint16
	Elements   []byte // opaque SAE scalar/element/confirm bytes
}

// SendAuthFrame serializes an 802.11 authentication management frame
// carrying params.Elements and transmits it directly over the bus,
// bypassing the IOCTL/IOVAR command channel since this is a raw air
// frame rather than a firmware control exchange.
func (m *Manager) SendAuthFrame(ctx context.Context, params FrameParams) error {
	if len(params.Peer) != 6 || len(params.Own) != 6 {
		return fmt.Errorf("whd/sae: send_auth_frame requires 6-byte MACs: %w", domain.ErrBadArgument)
	}

	radiotap := &layers.RadioTap{
		Present: layers.RadioTapPresentRate,
		Rate:    5,
	}

	bssid := params.BSSID
	if len(bssid) != 6 {
		bssid = params.Peer
	}

	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeMgmtAuthentication,
		Address1:       params.Peer,
		Address2:       params.Own,
		Address3:       bssid,
		SequenceNumber: m.nextSeq(),
	}

	auth := &layers.Dot11MgmtAuthentication{
		Algorithm: dot11AlgorithmSAE,
		Sequence:  params.SeqNumber,
		Status:    layers.Dot11Status(params.StatusCode),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	frameLayers := []gopacket.SerializableLayer{radiotap, dot11, auth}
	if len(params.Elements) > 0 {
		frameLayers = append(frameLayers, gopacket.Payload(params.Elements))
	}
	if err := gopacket.SerializeLayers(buf, opts, frameLayers...); err != nil {
		return fmt.Errorf("whd/sae: serialize auth frame: %w", err)
	}

	if err := m.bus.Send(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("whd/sae: send auth frame: %w", err)
	}
	return nil
}
