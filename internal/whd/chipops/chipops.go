// Package chipops provides the chip-family dispatch table: KSO-vs-HT-clock
// wakeup strategy, DS1 capability, and save/restore capability, keyed by
// chip id and populated once at init.
package chipops

// WakeupStrategy distinguishes the two bus-power wakeup disciplines a
// chip family can use.
type WakeupStrategy int

const (
	WakeupHTClock WakeupStrategy = iota // legacy clock-gate chips
	WakeupKSO                           // KSO-capable chips
)

// ChipOps is the per-family behavior table entry.
type ChipOps struct {
	ChipID      uint32
	Name        string
	Wakeup      WakeupStrategy
	SaveRestore bool
	DS1Capable  bool
	SAECapable  bool
}

// table holds the currently-supported chip families.
var table = map[uint32]ChipOps{
	43012: {ChipID: 43012, Name: "CYW43012", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: true, SAECapable: true},
	4373:  {ChipID: 4373, Name: "CYW4373", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: true, SAECapable: true},
	43022: {ChipID: 43022, Name: "CYW43022", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: true, SAECapable: true},
	43909: {ChipID: 43909, Name: "CYW43909", Wakeup: WakeupHTClock, SaveRestore: false, DS1Capable: false, SAECapable: false},
	43439: {ChipID: 43439, Name: "CYW43439", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: false, SAECapable: true},
	43430: {ChipID: 43430, Name: "CYW43430", Wakeup: WakeupHTClock, SaveRestore: false, DS1Capable: false, SAECapable: false},
	4334:  {ChipID: 4334, Name: "CYW4334", Wakeup: WakeupHTClock, SaveRestore: false, DS1Capable: false, SAECapable: false},
	43362: {ChipID: 43362, Name: "CYW43362", Wakeup: WakeupHTClock, SaveRestore: false, DS1Capable: false, SAECapable: false},
	55500: {ChipID: 55500, Name: "CYW55500", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: true, SAECapable: true},
	55530: {ChipID: 55530, Name: "CYW55530", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: true, SAECapable: true},
	55560: {ChipID: 55560, Name: "CYW55560", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: true, SAECapable: true},
	55900: {ChipID: 55900, Name: "CYW55900", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: true, SAECapable: true},
	89530: {ChipID: 89530, Name: "CYW89530", Wakeup: WakeupKSO, SaveRestore: true, DS1Capable: true, SAECapable: true},
}

// Lookup returns the ChipOps for chipID, or a conservative HT-clock,
// non-DS1, non-SAE default if the id is unrecognized — an unknown chip
// should never be assumed capable of an erratum workaround it may lack.
func Lookup(chipID uint32) ChipOps {
	if ops, ok := table[chipID]; ok {
		return ops
	}
	return ChipOps{ChipID: chipID, Name: "unknown", Wakeup: WakeupHTClock}
}

// Known reports whether chipID has a table entry.
func Known(chipID uint32) bool {
	_, ok := table[chipID]
	return ok
}
