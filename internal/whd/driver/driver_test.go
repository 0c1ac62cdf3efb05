package driver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/whdtest"
)

func testDriver(t *testing.T) (*Driver, *whdtest.Bus) {
	t.Helper()
	b := whdtest.NewBus()
	src := whdtest.NewEventSource()
	d, err := New(Config{
		Bus:          b,
		BufferPool:   whdtest.NewBufferPool(),
		EventSource:  src,
		ChipID:       0x4359, // no chipops entry: conservative HT-clock, non-SAE, non-DS1 defaults
		IoctlTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return d, b
}

func TestSetUpBringsChipUp(t *testing.T) {
	d, b := testDriver(t)
	require.NoError(t, d.SetUp(context.Background()))
	require.True(t, b.IsUp())

	// SetUp is idempotent.
	require.NoError(t, d.SetUp(context.Background()))
}

func TestSetDownIsIdempotent(t *testing.T) {
	d, _ := testDriver(t)
	require.NoError(t, d.SetDown(context.Background()))
	require.NoError(t, d.SetUp(context.Background()))
	require.NoError(t, d.SetDown(context.Background()))
	require.NoError(t, d.SetDown(context.Background()))
}

func TestAddInterfaceRejectsDuplicateName(t *testing.T) {
	d, _ := testDriver(t)
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	iface, err := d.AddInterface("wlan0", 0, 0, mac)
	require.NoError(t, err)
	require.Equal(t, "wlan0", iface.Name())

	_, err = d.AddInterface("wlan0", 1, 1, mac)
	require.Error(t, err)
}

func TestAddInterfaceRejectsBadMAC(t *testing.T) {
	d, _ := testDriver(t)
	_, err := d.AddInterface("wlan0", 0, 0, net.HardwareAddr{0x01, 0x02})
	require.Error(t, err)
}

func TestGetMACAddressReturnsInstalledMAC(t *testing.T) {
	d, _ := testDriver(t)
	mac := net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	iface, err := d.AddInterface("wlan0", 0, 0, mac)
	require.NoError(t, err)
	require.Equal(t, mac, iface.GetMACAddress())
}

func TestInterfaceIsReadyToTransceiveStartsFalse(t *testing.T) {
	d, _ := testDriver(t)
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	iface, err := d.AddInterface("wlan0", 0, 0, mac)
	require.NoError(t, err)
	require.False(t, iface.IsReadyToTransceive())
}

func TestGetChannelDecodesAutoAckResponse(t *testing.T) {
	d, b := testDriver(t)
	require.NoError(t, d.SetUp(context.Background()))
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	iface, err := d.AddInterface("wlan0", 0, 0, mac)
	require.NoError(t, err)
	_ = b

	// The default auto-ack returns a zero-length payload, which is too
	// short for get_channel to decode.
	_, _, err = iface.GetChannel(context.Background())
	require.Error(t, err)
}

func TestReadConsoleReturnsEmptyWhenNothingWritten(t *testing.T) {
	d, _ := testDriver(t)
	out, err := d.ReadConsole(context.Background())
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRegisterIcmpEchoCallbackRejectsNilAndDuplicate(t *testing.T) {
	d, _ := testDriver(t)
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	iface, err := d.AddInterface("wlan0", 0, 0, mac)
	require.NoError(t, err)

	require.Error(t, iface.RegisterIcmpEchoCallback(nil))

	require.NoError(t, iface.RegisterIcmpEchoCallback(func(net.HardwareAddr, uint16) {}))
	require.Error(t, iface.RegisterIcmpEchoCallback(func(net.HardwareAddr, uint16) {}))

	require.NoError(t, iface.StopIcmpEchoCallback())
	require.NoError(t, iface.StopIcmpEchoCallback()) // idempotent
	require.NoError(t, iface.RegisterIcmpEchoCallback(func(net.HardwareAddr, uint16) {}))
}

func TestIcmpEchoCallbackReceivesForwardedEvent(t *testing.T) {
	d, _ := testDriver(t)
	require.NoError(t, d.SetUp(context.Background()))
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	iface, err := d.AddInterface("wlan0", 0, 0, mac)
	require.NoError(t, err)

	received := make(chan uint16, 1)
	require.NoError(t, iface.RegisterIcmpEchoCallback(func(peer net.HardwareAddr, seq uint16) {
		received <- seq
	}))

	peer := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	data := append(append([]byte(nil), peer...), 0x2a, 0x00)
	iface.onIcmpEchoEvent(bus.EventHeader{InterfaceIndex: 0}, data)

	select {
	case seq := <-received:
		require.Equal(t, uint16(0x2a), seq)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}
