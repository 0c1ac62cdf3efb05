package chipops

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupKnownChip(t *testing.T) {
	ops := Lookup(43439)
	assert.Equal(t, WakeupKSO, ops.Wakeup)
	assert.False(t, ops.DS1Capable)
	assert.True(t, ops.SAECapable)
}

func TestLookupLegacyChip(t *testing.T) {
	ops := Lookup(43909)
	assert.Equal(t, WakeupHTClock, ops.Wakeup)
	assert.False(t, ops.SaveRestore)
}

func TestLookupUnknownChipDefaultsConservative(t *testing.T) {
	ops := Lookup(0xdead)
	assert.False(t, Known(0xdead))
	assert.Equal(t, WakeupHTClock, ops.Wakeup)
	assert.False(t, ops.DS1Capable)
	assert.False(t, ops.SAECapable)
}
