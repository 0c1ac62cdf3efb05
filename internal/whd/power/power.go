// Package power implements C4, the bus-power interlock: a wake-lock
// refcount that drives the chip-family-dependent wakeup handshake
// (KSO vs. HT-clock) and serializes with the DS1 deep-sleep exit
// sub-state-machine.
//
// Structured as a refcounted Acquire/Release primitive with an awake
// flag kept under the same mutex as the refcount.
package power

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Infineon/whd-expansion/internal/telemetry"
	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/chipops"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// Register offsets/bit flags used by the wakeup handshakes. These are
// internal conventions for this codec's bus register map, not literal
// silicon addresses.
const (
	regChipClockCSR = 0x1000
	regSleepCSR     = 0x1001

	bitHTAvailReq = 1 << 0
	bitHTAvail    = 1 << 1
	bitKeepKSO    = 1 << 0
	bitDevOn      = 1 << 1
)

// Interlock is the bus-power wake-lock refcount. All state transitions
// are atomic under mu; the refcount must never go negative and must
// return to zero before the chip may sleep.
type Interlock struct {
	mu       sync.Mutex
	refcount int
	awake    bool

	bus  bus.Bus
	chip chipops.ChipOps
	name string // interface name, for metrics labels
}

// New builds an Interlock bound to bus for the given chip family.
func New(b bus.Bus, chip chipops.ChipOps, ifaceName string) *Interlock {
	return &Interlock{bus: b, chip: chip, name: ifaceName}
}

// Acquire increments the wake-lock refcount, driving the chip to the
// awake state on the 0→1 transition. Callers must pair
// every Acquire with a Release.
func (in *Interlock) Acquire(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.refcount++
	telemetry.WakeLockCount.WithLabelValues(in.name).Set(float64(in.refcount))
	if in.refcount == 1 {
		if err := in.wake(ctx); err != nil {
			in.refcount--
			telemetry.WakeLockCount.WithLabelValues(in.name).Set(float64(in.refcount))
			return err
		}
		in.awake = true
	}
	return nil
}

// Release decrements the wake-lock refcount, scheduling a release
// toward sleep on the 1→0 transition. It is a no-op error if the
// refcount is already zero — that is a caller bug, surfaced rather than
// silently tolerated, since the invariant requires refcount >= 0.
func (in *Interlock) Release(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.refcount == 0 {
		return fmt.Errorf("whd/power: Release called with refcount already 0: %w", domain.ErrBadArgument)
	}
	in.refcount--
	telemetry.WakeLockCount.WithLabelValues(in.name).Set(float64(in.refcount))
	if in.refcount == 0 {
		in.releaseToSleep(ctx)
		in.awake = false
	}
	return nil
}

// Refcount returns the current wake-lock count (test/telemetry use).
func (in *Interlock) Refcount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.refcount
}

// wake drives the chip-family-appropriate wakeup handshake. Called with
// mu held.
func (in *Interlock) wake(ctx context.Context) error {
	switch in.chip.Wakeup {
	case chipops.WakeupKSO:
		return in.wakeKSO(ctx)
	default:
		return in.wakeHTClock(ctx)
	}
}

// wakeHTClock implements the legacy clock-gate wakeup: set
// SBSDIO_HT_AVAIL_REQ and poll for SBSDIO_HT_AVAIL.
func (in *Interlock) wakeHTClock(ctx context.Context) error {
	if err := in.bus.WriteRegister(ctx, 1, regChipClockCSR, 1, bitHTAvailReq); err != nil {
		return fmt.Errorf("whd/power: HT clock request write failed: %w", err)
	}
	deadline := time.Now().Add(domain.HTAvailPollTimeout)
	for time.Now().Before(deadline) {
		v, err := in.bus.ReadRegister(ctx, 1, regChipClockCSR, 1)
		if err != nil {
			return fmt.Errorf("whd/power: HT clock poll read failed: %w", err)
		}
		if v&bitHTAvail != 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(domain.HTAvailPollSpacing):
		}
	}
	return fmt.Errorf("whd/power: %w", domain.ErrBusUpFail)
}

// wakeKSO implements the KSO-capable wakeup: write KEEP_KSO twice
// (silicon erratum requires the redundant write) and poll the sleep CSR
// until KEEP_KSO|DEVON is observed, up to 64 retries at 1ms spacing.
func (in *Interlock) wakeKSO(ctx context.Context) error {
	want := uint32(bitKeepKSO)
	if err := in.bus.WriteRegister(ctx, 1, regSleepCSR, 1, want); err != nil {
		return fmt.Errorf("whd/power: KSO write failed: %w", err)
	}
	if err := in.bus.WriteRegister(ctx, 1, regSleepCSR, 1, want); err != nil {
		return fmt.Errorf("whd/power: KSO redundant write failed: %w", err)
	}
	for attempt := 0; attempt < domain.KSOEnableMaxAttempts; attempt++ {
		v, err := in.bus.ReadRegister(ctx, 1, regSleepCSR, 1)
		if err != nil {
			return fmt.Errorf("whd/power: KSO poll read failed: %w", err)
		}
		if v&(bitKeepKSO|bitDevOn) == (bitKeepKSO | bitDevOn) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(domain.KSORetrySpacing):
		}
	}
	return fmt.Errorf("whd/power: %w", domain.ErrBusUpFail)
}

// releaseToSleep writes a zero value to the relevant CSR and marks the
// interlock idle immediately; the chip may already have
// powered down, so a readback poll on release would hang.
func (in *Interlock) releaseToSleep(ctx context.Context) {
	var reg uint32 = regChipClockCSR
	if in.chip.Wakeup == chipops.WakeupKSO {
		reg = regSleepCSR
	}
	// Best-effort: a failure here does not block the interlock from
	// going idle, since the chip may no longer be addressable.
	_ = in.bus.WriteRegister(ctx, 1, reg, 1, 0)
}

// EnableSaveRestore performs the one-time save/restore-capable firmware
// init: enabling WakeupCtrl and broadcom-card-cap no-decode mode so the
// chip can wake on bus activity.
func (in *Interlock) EnableSaveRestore(ctx context.Context) error {
	if !in.chip.SaveRestore {
		return nil
	}
	const regWakeupCtrl = 0x1002
	const regCardCapNoDecode = 0x1003
	if err := in.bus.WriteRegister(ctx, 1, regWakeupCtrl, 1, 1); err != nil {
		return fmt.Errorf("whd/power: WakeupCtrl enable failed: %w", err)
	}
	if err := in.bus.WriteRegister(ctx, 1, regCardCapNoDecode, 1, 1); err != nil {
		return fmt.Errorf("whd/power: card-cap no-decode enable failed: %w", err)
	}
	return nil
}
