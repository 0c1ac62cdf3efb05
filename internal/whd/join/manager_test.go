package join

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/chipops"
	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/command"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/events"
	"github.com/Infineon/whd-expansion/internal/whd/pmkid"
	"github.com/Infineon/whd-expansion/internal/whd/power"
)

type fakeWaker struct{}

func (fakeWaker) Acquire(context.Context) error { return nil }
func (fakeWaker) Release(context.Context) error { return nil }

// fakeBus immediately acks every IOCTL/IOVAR with an OK response on the
// same tx id, mirroring the scan package's test fake (no firmware
// logic lives here — every join outcome in these tests is driven by
// injected events, not by command responses).
type fakeBus struct {
	channel *command.Channel
}

// ReadRegister answers the bus-power wakeup polls with an already-ready
// value for whichever CSR the interlock is polling, so Acquire never
// has to spin through the interlock's retry budget in these tests.
func (f *fakeBus) ReadRegister(_ context.Context, _ int, addr uint32, _ int) (uint32, error) {
	const (
		regChipClockCSR = 0x1000
		regSleepCSR     = 0x1001
		bitHTAvail      = 1 << 1
		bitKeepKSO      = 1 << 0
		bitDevOn        = 1 << 1
	)
	switch addr {
	case regSleepCSR:
		return bitKeepKSO | bitDevOn, nil
	case regChipClockCSR:
		return bitHTAvail, nil
	default:
		return 0, nil
	}
}
func (f *fakeBus) WriteRegister(context.Context, int, uint32, int, uint32) error  { return nil }
func (f *fakeBus) ReadBackplane(context.Context, uint32, int, []byte) error       { return nil }
func (f *fakeBus) WriteBackplane(context.Context, uint32, int, uint32) error      { return nil }
func (f *fakeBus) TransferBackplaneBytes(context.Context, bus.Direction, uint32, []byte) error {
	return nil
}
func (f *fakeBus) Wakeup(context.Context) error         { return nil }
func (f *fakeBus) Sleep(context.Context) error          { return nil }
func (f *fakeBus) IsUp() bool                           { return true }
func (f *fakeBus) SetState(context.Context, bool) error { return nil }
func (f *fakeBus) Send(ctx context.Context, frame []byte) error {
	go func() {
		time.Sleep(2 * time.Millisecond)
		req, err := codec.Decode(frame)
		if err != nil {
			return
		}
		resp, err := codec.EncodeIOCTL(req.Command, nil, 0, req.TxID)
		if err != nil {
			return
		}
		decoded, err := codec.Decode(resp)
		if err != nil {
			return
		}
		_ = f.channel.Deliver(decoded)
	}()
	return nil
}

const testIface = "wlan0"

func newTestManager(t *testing.T) (*Manager, *domain.Interface, *events.Dispatcher) {
	t.Helper()
	return newTestManagerWithCache(t, nil)
}

func newTestManagerWithCache(t *testing.T, cache *pmkid.Cache) (*Manager, *domain.Interface, *events.Dispatcher) {
	t.Helper()
	fb := &fakeBus{}
	chip := chipops.Lookup(43012)
	ch := command.New(fb, fakeWaker{}, time.Second, testIface)
	fb.channel = ch
	disp := events.New(32)
	pwr := power.New(fb, chip, testIface)
	drv := domain.NewDriver(domain.ChipInfo{ChipID: chip.ChipID})
	mgr := New(ch, disp, pwr, &drv.Internal, chip, testIface, cache)
	iface := domain.NewInterface(drv, testIface, 0, 0, []byte{0, 1, 2, 3, 4, 5})
	return mgr, iface, disp
}

// deliverJoinEvents fires evts at disp in order, after an initial delay
// long enough for prepare()'s configuration sequence to finish
// registering the join_events handler family before the first event
// would otherwise be dropped for want of a listener.
func deliverJoinEvents(disp *events.Dispatcher, evts []struct {
	evt    events.EventType
	status uint32
	flags  uint32
}) {
	time.Sleep(75 * time.Millisecond)
	for _, e := range evts {
		disp.Dispatch(testIface, bus.EventHeader{EventType: uint32(e.evt), Status: e.status, Flags: e.flags}, nil)
		time.Sleep(5 * time.Millisecond)
	}
}

// TestJoinS1Success exercises scenario S1: SetSsid ok, link up, auth ok,
// psk-sup keyed -> Success.
func TestJoinS1Success(t *testing.T) {
	mgr, iface, disp := newTestManager(t)

	go deliverJoinEvents(disp, []struct {
		evt    events.EventType
		status uint32
		flags  uint32
	}{
		{events.EventSetSsid, setSsidStatusOK, 0},
		{events.EventLink, 0, linkFlagUp},
		{events.EventAuth, 0, 0},
		{events.EventPskSup, pskSupStatusKeyed, 0},
	})

	p := &domain.JoinParameters{SSID: "Net", Security: domain.SecurityWPA2AESPSK, Passphrase: "passphrase0"}
	res, err := mgr.Join(context.Background(), iface, p)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, domain.RoleSta, iface.CurrentRole())
}

// TestJoinS2WrongPassphraseM3Timeout exercises scenario S2.
func TestJoinS2WrongPassphraseM3Timeout(t *testing.T) {
	mgr, iface, disp := newTestManager(t)

	go deliverJoinEvents(disp, []struct {
		evt    events.EventType
		status uint32
		flags  uint32
	}{
		{events.EventSetSsid, setSsidStatusOK, 0},
		{events.EventLink, 0, linkFlagUp},
		{events.EventAuth, 0, 0},
		{events.EventPskSup, pskSupStatusKeyXChangeWaitM3, 0},
	})

	p := &domain.JoinParameters{SSID: "Net", Security: domain.SecurityWPA2AESPSK, Passphrase: "wrongpass0"}
	res, err := mgr.Join(context.Background(), iface, p)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.ErrorIs(t, res.Reason, domain.ErrEapolM3Timeout)
	assert.Equal(t, domain.RoleInvalid, iface.CurrentRole())
}

// TestJoinS3NetworkNotFound exercises scenario S3.
func TestJoinS3NetworkNotFound(t *testing.T) {
	mgr, iface, disp := newTestManager(t)

	go deliverJoinEvents(disp, []struct {
		evt    events.EventType
		status uint32
		flags  uint32
	}{
		{events.EventSetSsid, setSsidStatusNoNetworks, 0},
	})

	p := &domain.JoinParameters{SSID: "Missing", Security: domain.SecurityOpen}
	res, err := mgr.Join(context.Background(), iface, p)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.ErrorIs(t, res.Reason, domain.ErrNetworkNotFound)
}

// TestJoinS4EdgeOfCellM1Timeout exercises scenario S4.
func TestJoinS4EdgeOfCellM1Timeout(t *testing.T) {
	mgr, iface, disp := newTestManager(t)

	go deliverJoinEvents(disp, []struct {
		evt    events.EventType
		status uint32
		flags  uint32
	}{
		{events.EventSetSsid, setSsidStatusOK, 0},
		{events.EventLink, 0, linkFlagUp},
		{events.EventAuth, 0, 0},
		{events.EventPskSup, pskSupStatusKeyXChangeWaitM1, 0},
	})

	p := &domain.JoinParameters{SSID: "Edge", Security: domain.SecurityWPA2AESPSK, Passphrase: "passphrase0"}
	res, err := mgr.Join(context.Background(), iface, p)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.ErrorIs(t, res.Reason, domain.ErrEapolM1Timeout)
}

// TestJoinSpecificRejectsAllZeroBSSID exercises scenario S6: a bad
// argument must surface before any bus traffic.
func TestJoinSpecificRejectsAllZeroBSSID(t *testing.T) {
	mgr, iface, _ := newTestManager(t)
	sr := &domain.ScanResult{SSID: "X", BSSID: make([]byte, 6), Channel: 0}
	_, err := mgr.JoinSpecific(context.Background(), iface, sr, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadArgument)
}

// TestJoinValidatesBeforeBusTraffic covers the same property for the
// plain Join entrypoint: an empty SSID must fail fast.
func TestJoinValidatesBeforeBusTraffic(t *testing.T) {
	mgr, iface, _ := newTestManager(t)
	_, err := mgr.Join(context.Background(), iface, &domain.JoinParameters{SSID: ""})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadArgument)
}

// TestJoinLeaveJoinReturnsToConsistentState runs join -> leave -> join
// and checks the interface returns to Invalid then back to a consistent
// terminal state.
func TestJoinLeaveJoinReturnsToConsistentState(t *testing.T) {
	mgr, iface, disp := newTestManager(t)

	go deliverJoinEvents(disp, []struct {
		evt    events.EventType
		status uint32
		flags  uint32
	}{
		{events.EventSetSsid, setSsidStatusOK, 0},
		{events.EventLink, 0, linkFlagUp},
		{events.EventAuth, 0, 0},
		{events.EventPskSup, pskSupStatusKeyed, 0},
	})
	p := &domain.JoinParameters{SSID: "Net", Security: domain.SecurityWPA2AESPSK, Passphrase: "passphrase0"}
	_, err := mgr.Join(context.Background(), iface, p)
	require.NoError(t, err)

	require.NoError(t, mgr.Leave(context.Background(), iface))
	assert.Equal(t, domain.RoleInvalid, iface.CurrentRole())

	go deliverJoinEvents(disp, []struct {
		evt    events.EventType
		status uint32
		flags  uint32
	}{
		{events.EventSetSsid, setSsidStatusOK, 0},
		{events.EventLink, 0, linkFlagUp},
		{events.EventAuth, 0, 0},
		{events.EventPskSup, pskSupStatusKeyed, 0},
	})
	res, err := mgr.Join(context.Background(), iface, p)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

// TestJoinCachesPmkidOnSuccessfulPskKeying covers scenario (c): a
// successful PSK join against a concrete BSSID must insert a derived
// PMKID into the cache, so a later re-association can look it up.
func TestJoinCachesPmkidOnSuccessfulPskKeying(t *testing.T) {
	cache, err := pmkid.Open(filepath.Join(t.TempDir(), "pmkid.db"), 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	mgr, iface, disp := newTestManagerWithCache(t, cache)

	go deliverJoinEvents(disp, []struct {
		evt    events.EventType
		status uint32
		flags  uint32
	}{
		{events.EventSetSsid, setSsidStatusOK, 0},
		{events.EventLink, 0, linkFlagUp},
		{events.EventAuth, 0, 0},
		{events.EventPskSup, pskSupStatusKeyed, 0},
	})

	bssid := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	p := &domain.JoinParameters{SSID: "Net", BSSID: bssid, Security: domain.SecurityWPA2AESPSK, Passphrase: "passphrase0"}
	res, err := mgr.Join(context.Background(), iface, p)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	require.Eventually(t, func() bool {
		_, ok, err := cache.Lookup(context.Background(), bssid)
		return err == nil && ok
	}, time.Second, 5*time.Millisecond, "expected PMKID to be cached after a keyed join")
}

// TestAssociateInstallsCachedPmkid covers the Lookup half of scenario
// (c): a join against a BSSID with a cached PMKID runs through the
// pmkid_info install step and still completes successfully. The frames
// sent to the bus are not inspected.
func TestAssociateInstallsCachedPmkid(t *testing.T) {
	cache, err := pmkid.Open(filepath.Join(t.TempDir(), "pmkid.db"), 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	bssid := net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	want := make([]byte, 16)
	for i := range want {
		want[i] = byte(i + 1)
	}
	require.NoError(t, cache.Insert(context.Background(), bssid, want))

	mgr, iface, disp := newTestManagerWithCache(t, cache)
	go deliverJoinEvents(disp, []struct {
		evt    events.EventType
		status uint32
		flags  uint32
	}{
		{events.EventSetSsid, setSsidStatusOK, 0},
		{events.EventLink, 0, linkFlagUp},
		{events.EventAuth, 0, 0},
		{events.EventPskSup, pskSupStatusKeyed, 0},
	})

	p := &domain.JoinParameters{SSID: "Net", BSSID: bssid, Security: domain.SecurityWPA2AESPSK, Passphrase: "passphrase0"}
	res, err := mgr.Join(context.Background(), iface, p)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}
