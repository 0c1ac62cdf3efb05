package power

import (
	"context"
	"fmt"
	"time"

	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// DS1 register conventions: D11 shared-memory offsets and the
// "proc done" control bit polled during deep-sleep exit.
const (
	regD11SharedMem  = 0x2000
	regDS1CtrlSDIO   = 0x2001
	regPMUMinResMask = 0x2002

	bitDS1ProcDone = 1 << 0

	ds1PollMax      = 50
	ds1PollInterval = 100 * time.Millisecond
)

// DS1State is the deep-sleep-1 exit sub-state-machine. It is invoked by
// the interlock only when the chip family's DS1Capable flag is set, and
// never from the fast wake path — callers choose when to
// drive it (typically once, before the first Acquire after a
// known-DS1-retention resume).
type DS1State int

const (
	DS1Idle DS1State = iota
	DS1RequestingExit
	DS1WaitingProcDone
	DS1Done
	DS1Failed
)

// ExitDS1 drives the deep-sleep-1 exit handshake: write the D11
// shared-memory exit request, poll M_DS1_CTRL_SDIO for the "proc done"
// bit (up to 50 polls at 100ms), then rewrite PMU_MINRESMASK.
func (in *Interlock) ExitDS1(ctx context.Context) error {
	if !in.chip.DS1Capable {
		return nil
	}

	state := DS1RequestingExit
	if err := in.bus.WriteRegister(ctx, 1, regD11SharedMem, 4, 1); err != nil {
		return fmt.Errorf("whd/power: DS1 exit request write failed: %w", err)
	}

	state = DS1WaitingProcDone
	for attempt := 0; attempt < ds1PollMax; attempt++ {
		v, err := in.bus.ReadRegister(ctx, 1, regDS1CtrlSDIO, 1)
		if err != nil {
			state = DS1Failed
			return fmt.Errorf("whd/power: DS1 proc-done poll failed (state=%d): %w", state, err)
		}
		if v&bitDS1ProcDone != 0 {
			state = DS1Done
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ds1PollInterval):
		}
	}
	if state != DS1Done {
		return fmt.Errorf("whd/power: DS1 exit %w (proc-done never observed)", domain.ErrBusUpFail)
	}

	if err := in.bus.WriteRegister(ctx, 1, regPMUMinResMask, 4, minResMaskDefault(in.chip.ChipID)); err != nil {
		return fmt.Errorf("whd/power: PMU_MINRESMASK rewrite failed: %w", err)
	}
	return nil
}

// minResMaskDefault returns the chip-specific PMU min-resource mask
// value restored after DS1 exit; values are a per-family silicon
// constant.
func minResMaskDefault(chipID uint32) uint32 {
	switch chipID {
	case 43012, 4373:
		return 0x0e4fffff
	default:
		return 0x0fffffff
	}
}
