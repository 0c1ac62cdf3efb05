package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/command"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/events"
)

type fakeWaker struct{}

func (fakeWaker) Acquire(context.Context) error { return nil }
func (fakeWaker) Release(context.Context) error { return nil }

// fakeBus immediately acks every IOCTL/IOVAR send with an OK response on
// the same tx id, once its channel field is wired up by newTestEngine.
type fakeBus struct {
	lastSent []byte
	channel  *command.Channel
}

func (f *fakeBus) ReadRegister(context.Context, int, uint32, int) (uint32, error) { return 0, nil }
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
	f.lastSent = frame
	go func() {
		time.Sleep(5 * time.Millisecond)
		decReq, err := codec.Decode(frame)
		if err != nil {
			return
		}
		resp, err := codec.EncodeIOCTL(decReq.Command, nil, 0, decReq.TxID)
		if err != nil {
			return
		}
		decResp, err := codec.Decode(resp)
		if err != nil {
			return
		}
		_ = f.channel.Deliver(decResp)
	}()
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *events.Dispatcher, *fakeBus) {
	t.Helper()
	fb := &fakeBus{}
	ch := command.New(fb, fakeWaker{}, time.Second, "wlan0")
	fb.channel = ch
	disp := events.New(16)
	internal := &domain.InternalInfo{}
	e := New(ch, disp, internal, "wlan0", 0)
	return e, disp, fb
}

func bssRecord(ssid string, rssi int16, chanSpec uint16, ies []byte) []byte {
	info := &codec.WLBssInfo{
		SSIDLen:  uint8(len(ssid)),
		ChanSpec: chanSpec,
		RSSI:     rssi,
	}
	copy(info.SSID[:], ssid)
	return append(info.Encode(), ies...)
}

func TestScanDeliversPartialThenSuccess(t *testing.T) {
	e, disp, _ := newTestEngine(t)

	var results []domain.ScanResult
	var final domain.ScanStatus
	done := make(chan struct{})

	err := e.Scan(context.Background(), Request{Active: true}, func(r *domain.ScanResult, status domain.ScanStatus) {
		if r != nil {
			results = append(results, *r)
		}
		if status == domain.ScanCompletedSuccessfully || status == domain.ScanAborted {
			final = status
			close(done)
		}
	})
	require.NoError(t, err)

	data := bssRecord("testnet", -50, codec.BuildChanSpec(6, domain.Band2G4), nil)
	disp.Dispatch("wlan0", bus.EventHeader{EventType: uint32(events.EventEscanResult), Status: fwScanPartial}, data)
	disp.Dispatch("wlan0", bus.EventHeader{EventType: uint32(events.EventEscanResult), Status: fwScanSuccess}, nil)

	<-done
	require.Len(t, results, 1)
	assert.Equal(t, "testnet", results[0].SSID)
	assert.Equal(t, 6, results[0].Channel)
	assert.Equal(t, domain.ScanCompletedSuccessfully, final)
}

func TestScanDropsOffChannelResultsByDefault(t *testing.T) {
	e, disp, _ := newTestEngine(t)
	var results []domain.ScanResult
	err := e.Scan(context.Background(), Request{Active: true}, func(r *domain.ScanResult, status domain.ScanStatus) {
		if r != nil {
			results = append(results, *r)
		}
	})
	require.NoError(t, err)

	data := bssRecord("offchan", -60, codec.BuildChanSpec(11, domain.Band2G4), nil)
	disp.Dispatch("wlan0", bus.EventHeader{EventType: uint32(events.EventEscanResult), Status: fwScanPartial, Flags: fwFlagOffChannel}, data)

	assert.Empty(t, results, "off-channel result must be dropped, not delivered")
}

func TestScanNoNetworksStillReportsTerminalStatus(t *testing.T) {
	e, disp, _ := newTestEngine(t)
	var final domain.ScanStatus
	var sawResult bool
	err := e.Scan(context.Background(), Request{Active: true}, func(r *domain.ScanResult, status domain.ScanStatus) {
		if r != nil {
			sawResult = true
		}
		final = status
	})
	require.NoError(t, err)

	disp.Dispatch("wlan0", bus.EventHeader{EventType: uint32(events.EventEscanResult), Status: fwScanSuccess}, nil)
	assert.False(t, sawResult)
	assert.Equal(t, domain.ScanCompletedSuccessfully, final)
}

func TestScanRejectsConcurrentScan(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.Scan(context.Background(), Request{Active: true}, func(*domain.ScanResult, domain.ScanStatus) {})
	require.NoError(t, err)

	err = e.Scan(context.Background(), Request{Active: true}, func(*domain.ScanResult, domain.ScanStatus) {})
	assert.ErrorIs(t, err, domain.ErrScanInProgress)
}

func TestScanSynchronousCollectsAllResults(t *testing.T) {
	e, disp, _ := newTestEngine(t)

	resultCh := make(chan []domain.ScanResult, 1)
	go func() {
		res, err := e.ScanSynchronous(context.Background(), Request{Active: true})
		require.NoError(t, err)
		resultCh <- res
	}()

	time.Sleep(10 * time.Millisecond)
	data1 := bssRecord("net1", -40, codec.BuildChanSpec(1, domain.Band2G4), nil)
	data2 := bssRecord("net2", -70, codec.BuildChanSpec(6, domain.Band2G4), nil)
	disp.Dispatch("wlan0", bus.EventHeader{EventType: uint32(events.EventEscanResult), Status: fwScanPartial}, data1)
	disp.Dispatch("wlan0", bus.EventHeader{EventType: uint32(events.EventEscanResult), Status: fwScanPartial}, data2)
	disp.Dispatch("wlan0", bus.EventHeader{EventType: uint32(events.EventEscanResult), Status: fwScanSuccess}, nil)

	select {
	case res := <-resultCh:
		require.Len(t, res, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("ScanSynchronous did not return")
	}
}
