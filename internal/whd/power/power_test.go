package power

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/chipops"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus is a minimal bus.Bus satisfying fake, local to this package so
// the power tests can script per-address register read sequences.
type fakeBus struct {
	mu   sync.Mutex
	regs map[uint32]uint32

	// readSeq, if set, overrides regs for successive ReadRegister calls
	// to the given address, used to simulate a register that converges
	// to "ready" after N polls.
	readSeq map[uint32][]uint32

	failWrite bool
	failRead  bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: make(map[uint32]uint32), readSeq: make(map[uint32][]uint32)}
}

func (f *fakeBus) ReadRegister(_ context.Context, _ int, address uint32, _ int) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead {
		return 0, errors.New("fake read failure")
	}
	if seq, ok := f.readSeq[address]; ok && len(seq) > 0 {
		v := seq[0]
		f.readSeq[address] = seq[1:]
		return v, nil
	}
	return f.regs[address], nil
}

func (f *fakeBus) WriteRegister(_ context.Context, _ int, address uint32, _ int, value uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errors.New("fake write failure")
	}
	f.regs[address] = value
	return nil
}

func (f *fakeBus) ReadBackplane(context.Context, uint32, int, []byte) error { return nil }
func (f *fakeBus) WriteBackplane(context.Context, uint32, int, uint32) error { return nil }
func (f *fakeBus) TransferBackplaneBytes(context.Context, bus.Direction, uint32, []byte) error {
	return nil
}
func (f *fakeBus) Wakeup(context.Context) error            { return nil }
func (f *fakeBus) Sleep(context.Context) error             { return nil }
func (f *fakeBus) IsUp() bool                              { return true }
func (f *fakeBus) SetState(context.Context, bool) error    { return nil }
func (f *fakeBus) Send(context.Context, []byte) error      { return nil }

var _ bus.Bus = (*fakeBus)(nil)

func TestAcquireReleaseRefcountKSO(t *testing.T) {
	fb := newFakeBus()
	fb.readSeq[regSleepCSR] = []uint32{bitKeepKSO | bitDevOn}
	in := New(fb, chipops.Lookup(43439), "wlan0")

	require.NoError(t, in.Acquire(context.Background()))
	assert.Equal(t, 1, in.Refcount())
	require.NoError(t, in.Acquire(context.Background()))
	assert.Equal(t, 2, in.Refcount())

	require.NoError(t, in.Release(context.Background()))
	assert.Equal(t, 1, in.Refcount())
	require.NoError(t, in.Release(context.Background()))
	assert.Equal(t, 0, in.Refcount())
}

func TestReleaseBelowZeroErrors(t *testing.T) {
	fb := newFakeBus()
	in := New(fb, chipops.Lookup(43439), "wlan0")
	err := in.Release(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadArgument)
}

func TestAcquireFailureRollsBackRefcount(t *testing.T) {
	fb := newFakeBus()
	fb.failWrite = true
	in := New(fb, chipops.Lookup(43439), "wlan0")

	err := in.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, in.Refcount())
}

func TestWakeHTClockPollsUntilAvailable(t *testing.T) {
	fb := newFakeBus()
	fb.readSeq[regChipClockCSR] = []uint32{0, 0, bitHTAvail}
	in := New(fb, chipops.Lookup(43909), "wlan0")

	require.NoError(t, in.Acquire(context.Background()))
	assert.Equal(t, 1, in.Refcount())
}

func TestWakeHTClockTimesOut(t *testing.T) {
	fb := newFakeBus()
	in := New(fb, chipops.Lookup(43909), "wlan0")

	err := in.wakeHTClock(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusUpFail)
}

func TestExitDS1NoopWhenNotCapable(t *testing.T) {
	fb := newFakeBus()
	in := New(fb, chipops.Lookup(43439), "wlan0")
	require.NoError(t, in.ExitDS1(context.Background()))
}

func TestExitDS1SucceedsOnProcDone(t *testing.T) {
	fb := newFakeBus()
	fb.readSeq[regDS1CtrlSDIO] = []uint32{0, bitDS1ProcDone}
	in := New(fb, chipops.Lookup(43012), "wlan0")

	require.NoError(t, in.ExitDS1(context.Background()))
	assert.Equal(t, minResMaskDefault(43012), fb.regs[regPMUMinResMask])
}

func TestExitDS1FailsOnProcDonePollReadError(t *testing.T) {
	fb := newFakeBus()
	in := New(fb, chipops.Lookup(43012), "wlan0")

	// The never-observed path (ErrBusUpFail after ds1PollMax polls) is not
	// exercised here, since ds1PollMax is a const; this covers the
	// proc-done poll's read-failure return instead.
	fb.failRead = true
	err := in.ExitDS1(context.Background())
	require.Error(t, err)
}

func TestEnableSaveRestoreNoopWhenUnsupported(t *testing.T) {
	fb := newFakeBus()
	in := New(fb, chipops.Lookup(43909), "wlan0")
	require.NoError(t, in.EnableSaveRestore(context.Background()))
}

func TestEnableSaveRestoreWritesControlRegisters(t *testing.T) {
	fb := newFakeBus()
	in := New(fb, chipops.Lookup(43012), "wlan0")
	require.NoError(t, in.EnableSaveRestore(context.Background()))
	assert.Equal(t, uint32(1), fb.regs[uint32(0x1002)])
	assert.Equal(t, uint32(1), fb.regs[uint32(0x1003)])
}
