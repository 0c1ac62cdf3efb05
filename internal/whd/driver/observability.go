package driver

import (
	"context"
	"fmt"
	"net"

	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// APInfo summarizes the currently associated AP, decoded from the same
// wl_bss_info record the scan engine parses partial results from.
type APInfo struct {
	SSID      string
	BSSID     net.HardwareAddr
	Band      domain.Band
	Channel   int
	RSSI      int
}

// GetBSSID returns the BSSID of the AP the interface is currently
// associated with via the "bssid" IOVAR.
func (i *Interface) GetBSSID(ctx context.Context) (net.HardwareAddr, error) {
	frame, err := i.d.ch.Iovar(ctx, "bssid", nil, i.dom.BSSCfgIdx, false, 6)
	if err != nil {
		return nil, fmt.Errorf("whd/driver: get_bssid: %w", err)
	}
	if len(frame.Payload) < 6 {
		return nil, fmt.Errorf("whd/driver: get_bssid: short response: %w", domain.ErrBadArgument)
	}
	return append(net.HardwareAddr(nil), frame.Payload[:6]...), nil
}

// GetAPInfo decodes the full wl_bss_info record for the AP the
// interface is currently associated with.
func (i *Interface) GetAPInfo(ctx context.Context) (*APInfo, error) {
	frame, err := i.d.ch.Ioctl(ctx, codec.CmdGetBssInfo, nil, codec.WLBssInfoLen+512)
	if err != nil {
		return nil, fmt.Errorf("whd/driver: get_ap_info: %w", err)
	}
	bss, err := codec.DecodeWLBssInfo(frame.Payload)
	if err != nil {
		return nil, fmt.Errorf("whd/driver: get_ap_info: %w", err)
	}
	band, channel := codec.ParseChanSpec(bss.ChanSpec)
	return &APInfo{
		SSID:    string(bss.SSID[:bss.SSIDLen]),
		BSSID:   append(net.HardwareAddr(nil), bss.BSSID[:]...),
		Band:    band,
		Channel: channel,
		RSSI:    int(bss.RSSI),
	}, nil
}

// GetChannel returns the operating band and channel number the
// interface is currently tuned to.
func (i *Interface) GetChannel(ctx context.Context) (domain.Band, int, error) {
	frame, err := i.d.ch.Ioctl(ctx, codec.CmdGetChannel, nil, 4)
	if err != nil {
		return 0, 0, fmt.Errorf("whd/driver: get_channel: %w", err)
	}
	if len(frame.Payload) < 2 {
		return 0, 0, fmt.Errorf("whd/driver: get_channel: short response: %w", domain.ErrBadArgument)
	}
	band, channel := codec.ParseChanSpec(codec.DongleToHost16(frame.Payload))
	return band, channel, nil
}

// GetRSSI returns the interface's own link RSSI, in dBm, via the "rssi"
// IOVAR.
func (i *Interface) GetRSSI(ctx context.Context) (int, error) {
	frame, err := i.d.ch.Iovar(ctx, "rssi", nil, i.dom.BSSCfgIdx, false, 4)
	if err != nil {
		return 0, fmt.Errorf("whd/driver: get_rssi: %w", err)
	}
	if len(frame.Payload) < 4 {
		return 0, fmt.Errorf("whd/driver: get_rssi: short response: %w", domain.ErrBadArgument)
	}
	return int(int32(codec.DongleToHost32(frame.Payload))), nil
}

// GetAPClientRSSI returns the RSSI of an associated station, as observed
// by this interface acting as an AP, via the "scb_rssi" IOVAR scoped to
// client's MAC.
func (i *Interface) GetAPClientRSSI(ctx context.Context, client net.HardwareAddr) (int, error) {
	mac, err := codec.MACFromBytes(client)
	if err != nil {
		return 0, fmt.Errorf("whd/driver: get_ap_client_rssi: %w", err)
	}
	frame, err := i.d.ch.Iovar(ctx, "scb_rssi", mac[:], i.dom.BSSCfgIdx, true, 4)
	if err != nil {
		return 0, fmt.Errorf("whd/driver: get_ap_client_rssi: %w", err)
	}
	if len(frame.Payload) < 4 {
		return 0, fmt.Errorf("whd/driver: get_ap_client_rssi: short response: %w", domain.ErrBadArgument)
	}
	return int(int32(codec.DongleToHost32(frame.Payload))), nil
}

// GetMACAddress returns the interface's own hardware address, as
// recorded when the interface was added.
func (i *Interface) GetMACAddress() net.HardwareAddr {
	return append(net.HardwareAddr(nil), i.dom.MAC...)
}

// GetAssociatedClientList returns the MAC addresses of every station
// currently associated to this interface acting as an AP.
func (i *Interface) GetAssociatedClientList(ctx context.Context) ([]net.HardwareAddr, error) {
	frame, err := i.d.ch.Ioctl(ctx, codec.CmdGetAssocList, nil, 4+6*32)
	if err != nil {
		return nil, fmt.Errorf("whd/driver: get_associated_client_list: %w", err)
	}
	list, err := codec.DecodeWLAssocList(frame.Payload)
	if err != nil {
		return nil, fmt.Errorf("whd/driver: get_associated_client_list: %w", err)
	}
	out := make([]net.HardwareAddr, len(list.MACs))
	for idx, mac := range list.MACs {
		addr := make(net.HardwareAddr, 6)
		copy(addr, mac[:])
		out[idx] = addr
	}
	return out, nil
}
