// Package domain holds the value types shared by every WHD core
// component: the driver/interface handles, the join-status bitset, scan
// records and join parameters. It imports nothing from its sibling
// packages so every other package can depend on it without a cycle.
package domain

import (
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	// MaxInterfaces bounds the per-driver interface array, mirroring
	// firmware's own bsscfg index space.
	MaxInterfaces = 4

	// MaxSSIDLength and MinPSKKeyLength/MaxPSKKeyLength follow §7 of the spec.
	MaxSSIDLength   = 32
	MinPSKKeyLength = 8
	MaxPSKKeyLength = 64
	MaxSAEPassword  = 128
)

// Timing constants that must be honored exactly (spec §6).
const (
	DefaultJoinAttemptTimeout = 9000 * time.Millisecond
	DefaultEapolKeyTimeout    = 2500 * time.Millisecond
	PrePMKDelay               = 1 * time.Millisecond
	PM2SleepRetTimeMin        = 10 * time.Millisecond
	PM2SleepRetTimeMax        = 2000 * time.Millisecond
	KSOEnableMaxAttempts      = 64
	KSORetrySpacing           = 1 * time.Millisecond
	HTAvailPollSpacing        = 1 * time.Millisecond
	HTAvailPollTimeout        = 1000 * time.Millisecond
)

// Role is the operating role of an Interface.
type Role int

const (
	RoleInvalid Role = iota
	RoleSta
	RoleAp
	RoleP2P
)

func (r Role) String() string {
	switch r {
	case RoleSta:
		return "sta"
	case RoleAp:
		return "ap"
	case RoleP2P:
		return "p2p"
	default:
		return "invalid"
	}
}

// LifecycleState is the driver-wide WLAN power/bring-up state.
type LifecycleState int

const (
	StateOff LifecycleState = iota
	StateDown
	StateUp
)

func (s LifecycleState) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateUp:
		return "up"
	default:
		return "off"
	}
}

// Band identifies the radio band a BSS or chanspec refers to.
type Band int

const (
	Band2G4 Band = iota
	Band5G
	Band6G
)

// BSSType classifies the kind of BSS a join or scan targets.
type BSSType int

const (
	BSSTypeUnknown BSSType = iota
	BSSTypeInfrastructure
	BSSTypeAdhoc
)

// SecurityType enumerates the security profile requested for a join, and
// observed for a scan result. It is a superset covering both uses.
type SecurityType int

const (
	SecurityOpen SecurityType = iota
	SecurityWEP
	SecurityWPATKIPPSK
	SecurityWPAAESPSK
	SecurityWPA2TKIPPSK
	SecurityWPA2AESPSK
	SecurityWPA2AESPSKSHA256
	SecurityWPA2Enterprise
	SecurityWPA3SAE
	SecurityWPA3WPA2PSK
	SecurityWPS
)

// MFP is the Management-Frame-Protection requirement (802.11w).
type MFP int

const (
	MFPNone MFP = iota
	MFPCapable
	MFPRequired
)

// ChipInfo identifies the attached silicon and what it can do; populated
// once at init from the chip id reported by the bus/OTP.
type ChipInfo struct {
	ChipID         uint32
	Capabilities   map[string]bool // e.g. "sae", "save_restore", "ds1"
	SaveRestore    bool
	HasDS1         bool
}

// HasCapability reports whether the named firmware capability flag is set.
func (c *ChipInfo) HasCapability(name string) bool {
	if c == nil || c.Capabilities == nil {
		return false
	}
	return c.Capabilities[name]
}

// EventHandlerID is returned by event-dispatcher registration and used
// later for deregistration; stable for the lifetime of the registration.
type EventHandlerID uint32

// EventCategory groups the handler families the event dispatcher
// routes by.
type EventCategory int

const (
	CategoryJoin EventCategory = iota
	CategoryScan
	CategoryAuth
	CategoryIcmpEchoReq
)

func (c EventCategory) String() string {
	switch c {
	case CategoryScan:
		return "scan"
	case CategoryAuth:
		return "auth"
	case CategoryIcmpEchoReq:
		return "icmp_echo_req"
	default:
		return "join"
	}
}

// Interface is a logical BSS context. It holds a non-owning reference to
// its Driver — its lifetime must never exceed the Driver's — and never
// owns buffers.
type Interface struct {
	mu sync.RWMutex

	Role      Role
	BSSCfgIdx int
	DataIdx   int
	MAC       net.HardwareAddr

	// registeredHandlers maps an EventCategory to the dispatcher entry id
	// currently registered for it, if any.
	registeredHandlers map[EventCategory]EventHandlerID

	driver *Driver
	name   string
}

// NewInterface builds an Interface bound to driver, non-owning.
func NewInterface(driver *Driver, name string, bssCfgIdx, dataIdx int, mac net.HardwareAddr) *Interface {
	return &Interface{
		Role:               RoleInvalid,
		BSSCfgIdx:          bssCfgIdx,
		DataIdx:            dataIdx,
		MAC:                mac,
		registeredHandlers: make(map[EventCategory]EventHandlerID),
		driver:             driver,
		name:               name,
	}
}

// Name returns the interface name used for lookups and logging.
func (i *Interface) Name() string {
	return i.name
}

// Driver returns the non-owning driver reference.
func (i *Interface) Driver() *Driver { return i.driver }

// SetHandler records the dispatcher entry id registered for category.
func (i *Interface) SetHandler(cat EventCategory, id EventHandlerID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.registeredHandlers[cat] = id
}

// Handler returns the registered entry id for category, if any.
func (i *Interface) Handler(cat EventCategory) (EventHandlerID, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	id, ok := i.registeredHandlers[cat]
	return id, ok
}

// ClearHandler forgets the registered entry id for category.
func (i *Interface) ClearHandler(cat EventCategory) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.registeredHandlers, cat)
}

// SetRole atomically updates the interface's operating role.
func (i *Interface) SetRole(r Role) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Role = r
}

// CurrentRole reads the interface's operating role.
func (i *Interface) CurrentRole() Role {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Role
}

// InternalInfo is the driver-scoped mutable state: per-interface join
// status, callbacks, and the console buffer. It is embedded in Driver
// rather than referenced by pointer because it has no independent
// lifetime.
type InternalInfo struct {
	mu sync.Mutex

	joinStatus map[string]JoinStatus // keyed by interface name

	scanCallback  ScanResultCallback
	authCallback  AuthResultCallback
	icmpCallback  IcmpEchoCallback

	consoleBuf    []byte
	consoleCursor int
}

func newInternalInfo() *InternalInfo {
	return &InternalInfo{joinStatus: make(map[string]JoinStatus)}
}

// SnapshotJoinStatus returns the current JoinStatus bitset for the named
// interface. Safe to call from any goroutine; the dispatcher's writes and
// this read are ordered by mu rather than by any happens-before the caller
// must arrange itself.
func (ii *InternalInfo) SnapshotJoinStatus(ifaceName string) JoinStatus {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	return ii.joinStatus[ifaceName]
}

// SetJoinStatusBits flips the given bits on for ifaceName. The dispatcher
// is the only caller; the read-modify-write happens under mu so it cannot
// race a concurrent SnapshotJoinStatus or another SetJoinStatusBits/
// ClearJoinStatusBits call.
func (ii *InternalInfo) SetJoinStatusBits(ifaceName string, bits JoinStatus) {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	ii.joinStatus[ifaceName] |= bits
}

// ClearJoinStatusBits flips the given bits off for ifaceName, under the
// same lock SetJoinStatusBits uses.
func (ii *InternalInfo) ClearJoinStatusBits(ifaceName string, bits JoinStatus) {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	ii.joinStatus[ifaceName] &^= bits
}

// ResetJoinStatus zeroes the bitset for ifaceName, used at the start of
// every prepare step. The map holds JoinStatus values rather than
// pointers, so this cannot orphan a pointer an in-flight event handler is
// still writing through.
func (ii *InternalInfo) ResetJoinStatus(ifaceName string) {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	ii.joinStatus[ifaceName] = 0
}

// SetScanCallback installs the scan-result callback, or clears it when cb
// is nil.
func (ii *InternalInfo) SetScanCallback(cb ScanResultCallback) {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	ii.scanCallback = cb
}

// ScanCallback returns the currently installed scan-result callback.
func (ii *InternalInfo) ScanCallback() ScanResultCallback {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	return ii.scanCallback
}

// SetAuthCallback installs the external-auth callback.
func (ii *InternalInfo) SetAuthCallback(cb AuthResultCallback) {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	ii.authCallback = cb
}

// AuthCallback returns the currently installed external-auth callback.
func (ii *InternalInfo) AuthCallback() AuthResultCallback {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	return ii.authCallback
}

// SetIcmpEchoCallback installs the ICMP-echo-request forwarding callback.
func (ii *InternalInfo) SetIcmpEchoCallback(cb IcmpEchoCallback) {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	ii.icmpCallback = cb
}

// IcmpEchoCallback returns the currently installed ICMP-echo callback.
func (ii *InternalInfo) IcmpEchoCallback() IcmpEchoCallback {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	return ii.icmpCallback
}

// AppendConsole appends freshly read firmware console bytes to the
// buffer; ReadConsole on Driver drains from here, and DrainConsole
// advances the cursor.
func (ii *InternalInfo) AppendConsole(b []byte) {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	ii.consoleBuf = append(ii.consoleBuf, b...)
}

// DrainConsole returns and clears all buffered console bytes.
func (ii *InternalInfo) DrainConsole() []byte {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	out := ii.consoleBuf
	ii.consoleBuf = nil
	ii.consoleCursor += len(out)
	return out
}

// ScanResultCallback receives one parsed BSS observation, or a nil result
// with a terminal ScanStatus to signal scan completion/abort.
type ScanResultCallback func(result *ScanResult, status ScanStatus)

// AuthResultCallback forwards SAE external-auth frame material.
type AuthResultCallback func(frame []byte, peer net.HardwareAddr)

// IcmpEchoCallback forwards firmware ICMP-echo-request telemetry.
type IcmpEchoCallback func(peer net.HardwareAddr, seq uint16)

// ScanStatus is the terminal (or partial) status delivered to a scan
// callback.
type ScanStatus int

const (
	ScanResultPartial ScanStatus = iota
	ScanIncomplete
	ScanCompletedSuccessfully
	ScanAborted
)

// JoinStatus is the bitset tracking one interface's join progress. Bits
// are flipped only by the event dispatcher task, exclusively through
// InternalInfo.SetJoinStatusBits/ClearJoinStatusBits; every read goes
// through InternalInfo.SnapshotJoinStatus so no caller ever holds a bare
// *JoinStatus across the dispatcher's own mutations.
type JoinStatus uint32

const (
	JoinAssociated JoinStatus = 1 << iota
	JoinAuthenticated
	JoinLinkReady
	JoinSecurityComplete
	JoinSsidSet
	JoinNoNetworks
	JoinEapolM1Timeout
	JoinEapolM3Timeout
	JoinEapolG1Timeout
	JoinEapolFailure
)

// Has reports whether every one of the given bits is set; HasAny reports
// whether at least one of them is.
func (j JoinStatus) Has(bits JoinStatus) bool { return j&bits == bits }
func (j JoinStatus) HasAny(bits JoinStatus) bool { return j&bits != 0 }

func (j JoinStatus) String() string {
	names := []struct {
		bit  JoinStatus
		name string
	}{
		{JoinAssociated, "Associated"},
		{JoinAuthenticated, "Authenticated"},
		{JoinLinkReady, "LinkReady"},
		{JoinSecurityComplete, "SecurityComplete"},
		{JoinSsidSet, "SsidSet"},
		{JoinNoNetworks, "NoNetworks"},
		{JoinEapolM1Timeout, "EapolM1Timeout"},
		{JoinEapolM3Timeout, "EapolM3Timeout"},
		{JoinEapolG1Timeout, "EapolG1Timeout"},
		{JoinEapolFailure, "EapolFailure"},
	}
	out := ""
	for _, n := range names {
		if j.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "0"
	}
	return out
}

// SecurityFlags is the bitset recorded on a ScanResult describing the
// cipher/AKM combination observed in the BSS's IEs.
type SecurityFlags uint32

const (
	SecWPA SecurityFlags = 1 << iota
	SecWPA2
	SecWPA3
	SecWEP
	SecTKIPEnabled
	SecAESEnabled
	SecEnterprise
	SecFBT
	SecSHA256
	SecSAEH2E
)

// Has reports whether every bit in bits is set.
func (f SecurityFlags) Has(bits SecurityFlags) bool { return f&bits == bits }

// ScanResultFlags marks out-of-band characteristics of a ScanResult.
type ScanResultFlags uint32

const (
	FlagRssiOffChannel ScanResultFlags = 1 << iota
	FlagBeacon
	FlagSaeH2e
)

// ScanResult is an immutable-after-emission record of one BSS
// observation.
type ScanResult struct {
	SSID          string
	BSSID         net.HardwareAddr
	Band          Band
	Channel       int
	SignalDBM     int
	BSSType       BSSType
	Security      SecurityFlags
	MaxDataRateKbps uint32
	CountryCode   [2]byte
	HasCountry    bool
	RawIEs        []byte
	Flags         ScanResultFlags
}

// JoinParameters is the ephemeral input to a join attempt.
type JoinParameters struct {
	SSID       string
	BSSID      net.HardwareAddr // optional; all-zero means unset
	Channel    int              // 0 => full-channel scan
	Band       Band
	Security   SecurityType
	Passphrase string
	PMK        []byte // 32 or 48 bytes
	SAEPassword string
	BSSType    BSSType
}

// HasBSSID reports whether a non-zero BSSID was supplied.
func (p *JoinParameters) HasBSSID() bool {
	if len(p.BSSID) != 6 {
		return false
	}
	for _, b := range p.BSSID {
		if b != 0 {
			return true
		}
	}
	return false
}

// Validate applies the bad-argument checks that must surface before
// any bus traffic.
func (p *JoinParameters) Validate() error {
	if len(p.SSID) == 0 || len(p.SSID) > MaxSSIDLength {
		return fmt.Errorf("%w: %w", ErrInvalidSSIDLen, ErrBadArgument)
	}
	switch p.Security {
	case SecurityWPATKIPPSK, SecurityWPAAESPSK, SecurityWPA2TKIPPSK, SecurityWPA2AESPSK, SecurityWPA2AESPSKSHA256, SecurityWPA3WPA2PSK:
		if len(p.PMK) > 0 {
			if len(p.PMK) != 32 && len(p.PMK) != 48 {
				return fmt.Errorf("%w: %w", ErrInvalidPMKLen, ErrBadArgument)
			}
		} else if len(p.Passphrase) < MinPSKKeyLength || len(p.Passphrase) > MaxPSKKeyLength {
			return fmt.Errorf("%w: %w", ErrInvalidKeyLen, ErrBadArgument)
		}
	case SecurityWPA3SAE:
		if len(p.SAEPassword) == 0 || len(p.SAEPassword) > MaxSAEPassword {
			return fmt.Errorf("%w: %w", ErrInvalidKeyLen, ErrBadArgument)
		}
	}
	return nil
}

// Driver is the process-wide controller handle.
type Driver struct {
	mu sync.RWMutex

	Chip       ChipInfo
	interfaces [MaxInterfaces]*Interface
	state      LifecycleState
	wakeLock   int32

	Internal InternalInfo
}

// NewDriver constructs a Driver in the Off state.
func NewDriver(chip ChipInfo) *Driver {
	return &Driver{
		Chip:     chip,
		state:    StateOff,
		Internal: *newInternalInfo(),
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() LifecycleState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// SetState transitions the driver's lifecycle state.
func (d *Driver) SetState(s LifecycleState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

// AddInterface installs iface at the first free slot, or returns
// ErrInvalidInterface if the array is full.
func (d *Driver) AddInterface(iface *Interface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, slot := range d.interfaces {
		if slot == nil {
			d.interfaces[i] = iface
			return nil
		}
	}
	return ErrInvalidInterface
}

// Interfaces returns the non-nil interfaces currently installed.
func (d *Driver) Interfaces() []*Interface {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Interface, 0, MaxInterfaces)
	for _, slot := range d.interfaces {
		if slot != nil {
			out = append(out, slot)
		}
	}
	return out
}

// RemoveInterface clears iface's slot, if present.
func (d *Driver) RemoveInterface(iface *Interface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, slot := range d.interfaces {
		if slot == iface {
			d.interfaces[i] = nil
			return
		}
	}
}
