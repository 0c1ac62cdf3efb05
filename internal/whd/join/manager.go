package join

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Infineon/whd-expansion/internal/telemetry"
	"github.com/Infineon/whd-expansion/internal/whd/chipops"
	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/command"
	"github.com/Infineon/whd-expansion/internal/whd/crypto"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/events"
	"github.com/Infineon/whd-expansion/internal/whd/pmkid"
	"github.com/Infineon/whd-expansion/internal/whd/power"
)

// Manager drives one interface's join/leave lifecycle. Per-interface:
// only one Manager should exist, since joinMu serializes every Join and
// Leave call against each other — a Leave racing an in-progress Join
// blocks until that Join reaches a terminal state rather than tearing
// it down mid-attempt.
type Manager struct {
	ch   *command.Channel
	disp *events.Dispatcher
	pwr  *power.Interlock

	internal  *domain.InternalInfo
	ifaceName string
	chip      chipops.ChipOps

	pmkidCache *pmkid.Cache

	// joinMu serializes Join and Leave for this interface: each holds it
	// for its whole duration, so a Leave issued mid-attempt blocks until
	// the attempt reaches a terminal state rather than racing the
	// prepare/associate sequence.
	joinMu sync.Mutex

	semMu sync.Mutex
	sem   chan struct{}

	// attemptMu guards the PMK/BSSID captured for the in-progress attempt:
	// prepare/associate (the Join goroutine) write them, onJoinEvent (the
	// dispatcher goroutine) reads them on a successful key exchange.
	attemptMu     sync.Mutex
	attemptBSSID  net.HardwareAddr
	attemptPMK    []byte
	attemptStaMAC net.HardwareAddr
}

// New builds a join Manager bound to one interface. pmkidCache may be nil,
// in which case PMKID lookups/inserts are skipped entirely.
func New(ch *command.Channel, disp *events.Dispatcher, pwr *power.Interlock, internal *domain.InternalInfo, chip chipops.ChipOps, ifaceName string, pmkidCache *pmkid.Cache) *Manager {
	return &Manager{ch: ch, disp: disp, pwr: pwr, internal: internal, chip: chip, ifaceName: ifaceName, pmkidCache: pmkidCache}
}

// setAttempt records the BSSID, own MAC, and derived PMK for the attempt
// currently in flight, so a later PskSup(keyed) event can cache the
// PMKID without re-deriving it or threading it through the
// event-dispatcher callback signature.
func (m *Manager) setAttempt(bssid, staMAC net.HardwareAddr, pmk []byte) {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	m.attemptBSSID = bssid
	m.attemptStaMAC = staMAC
	m.attemptPMK = pmk
}

func (m *Manager) currentAttempt() (bssid, staMAC net.HardwareAddr, pmk []byte) {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	return m.attemptBSSID, m.attemptStaMAC, m.attemptPMK
}

// onKeyed runs when PskSup reports the four-way handshake complete. It
// derives this attempt's PMKID from the captured PMK and caches it
// against the AP's BSSID so a future re-association to the same AP can
// skip the handshake; a non-PSK attempt (no captured PMK) or one lacking
// a concrete BSSID has nothing to cache.
func (m *Manager) onKeyed() {
	if m.pmkidCache == nil {
		return
	}
	bssid, staMAC, pmk := m.currentAttempt()
	if len(bssid) != 6 || len(pmk) == 0 {
		return
	}
	id, err := crypto.DerivePMKID(pmk, bssid, staMAC)
	if err != nil {
		return
	}
	_ = m.pmkidCache.Insert(context.Background(), bssid, id)
}

// Result is the outcome of a completed Join call.
type Result struct {
	Outcome Outcome
	Reason  error
	Status  domain.JoinStatus
}

// Join runs the full connection state machine: prepare, associate,
// wait-for-complete, cleanup. It validates p before any
// bus traffic (scenario S6), holds the bus-power wake-lock for the whole
// attempt, and guarantees a leave has been attempted on any non-success
// outcome.
func (m *Manager) Join(ctx context.Context, iface *domain.Interface, p *domain.JoinParameters) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.BSSType == domain.BSSTypeAdhoc {
		return nil, fmt.Errorf("whd/join: adhoc BSS type: %w", domain.ErrWlanUnsupported)
	}

	m.joinMu.Lock()
	defer m.joinMu.Unlock()

	attemptID := uuid.New().String()
	ctx, span := telemetry.Tracer().Start(ctx, "whd.join",
		trace.WithAttributes(
			attribute.String("whd.join.attempt_id", attemptID),
			attribute.String("whd.join.ssid", p.SSID),
			attribute.String("whd.join.interface", iface.Name()),
		))
	defer span.End()

	if err := m.pwr.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("whd/join: acquire wake-lock: %w", err)
	}
	defer m.pwr.Release(context.Background())

	iface.SetRole(domain.RoleSta)
	m.resetSemaphore()

	if err := m.prepare(ctx, iface, p); err != nil {
		m.leaveLocked(ctx, iface)
		telemetry.JoinOutcomes.WithLabelValues(m.ifaceName, "prepare_failed").Inc()
		span.RecordError(err)
		return nil, err
	}

	if err := m.associate(ctx, iface, p); err != nil {
		m.leaveLocked(ctx, iface)
		telemetry.JoinOutcomes.WithLabelValues(m.ifaceName, "associate_failed").Inc()
		span.RecordError(err)
		return nil, err
	}

	js, completed := m.waitForComplete(ctx, iface)
	if !completed {
		m.leaveLocked(ctx, iface)
		telemetry.JoinOutcomes.WithLabelValues(m.ifaceName, "timeout").Inc()
		return &Result{Outcome: OutcomeFailure, Reason: domain.ErrIoctlTimeout, Status: js},
			&domain.JoinError{Interface: iface.Name(), Reason: domain.ErrIoctlTimeout}
	}

	outcome, reason := Classify(js)
	if outcome == OutcomeSuccess {
		iface.SetRole(domain.RoleSta)
		telemetry.JoinOutcomes.WithLabelValues(m.ifaceName, "success").Inc()
		return &Result{Outcome: outcome, Status: js}, nil
	}

	iface.SetRole(domain.RoleInvalid)
	m.leaveLocked(ctx, iface)
	telemetry.JoinOutcomes.WithLabelValues(m.ifaceName, outcome.String()).Inc()
	return &Result{Outcome: outcome, Reason: reason, Status: js},
		&domain.JoinError{Interface: iface.Name(), Reason: reason}
}

// JoinSpecific builds JoinParameters from a previously scanned BSS and
// joins it directly, skipping the SSID-only scan-then-join path. It
// requires a concrete BSSID — join_specific against an all-zero BSSID is
// a bad argument surfaced before any bus traffic (scenario S6).
func (m *Manager) JoinSpecific(ctx context.Context, iface *domain.Interface, sr *domain.ScanResult, key string) (*Result, error) {
	if len(sr.BSSID) != 6 || isZeroMAC(sr.BSSID) {
		return nil, fmt.Errorf("whd/join: join_specific requires a concrete BSSID: %w", domain.ErrBadArgument)
	}
	p := &domain.JoinParameters{
		SSID:       sr.SSID,
		BSSID:      sr.BSSID,
		Channel:    sr.Channel,
		Band:       sr.Band,
		Security:   securityTypeFromFlags(sr.Security),
		Passphrase: key,
		BSSType:    sr.BSSType,
	}
	return m.Join(ctx, iface, p)
}

// Leave tears down an association: disassociate IOCTL, reset JoinStatus,
// deregister the join_events family, and mark the interface role
// invalid. It shares joinMu with Join so a Leave issued mid-attempt
// blocks until that attempt reaches a terminal state.
func (m *Manager) Leave(ctx context.Context, iface *domain.Interface) error {
	m.joinMu.Lock()
	defer m.joinMu.Unlock()
	return m.leaveLocked(ctx, iface)
}

func (m *Manager) leaveLocked(ctx context.Context, iface *domain.Interface) error {
	_, err := m.ch.Ioctl(ctx, codec.CmdDisassoc, nil, 0)
	m.internal.ResetJoinStatus(iface.Name())
	if id, ok := iface.Handler(domain.CategoryJoin); ok {
		_ = m.disp.Deregister(id)
		iface.ClearHandler(domain.CategoryJoin)
	}
	iface.SetRole(domain.RoleInvalid)
	if err != nil && !errors.Is(err, domain.ErrWlanUnsupported) {
		return fmt.Errorf("whd/join: leave: %w", err)
	}
	return nil
}

// IsReadyToTransceive reports whether iface's current JoinStatus
// classifies as a successful, linked association.
func (m *Manager) IsReadyToTransceive(iface *domain.Interface) bool {
	outcome, _ := Classify(m.snapshotStatus(iface))
	return outcome == OutcomeSuccess
}

func (m *Manager) snapshotStatus(iface *domain.Interface) domain.JoinStatus {
	return m.internal.SnapshotJoinStatus(iface.Name())
}

func (m *Manager) resetSemaphore() {
	m.semMu.Lock()
	m.sem = make(chan struct{}, 1)
	m.semMu.Unlock()
}

// signal wakes a blocked waitForComplete without blocking itself, since
// the event dispatcher calls this synchronously from Dispatch.
func (m *Manager) signal() {
	m.semMu.Lock()
	sem := m.sem
	m.semMu.Unlock()
	if sem == nil {
		return
	}
	select {
	case sem <- struct{}{}:
	default:
	}
}

func isZeroMAC(mac []byte) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

// securityTypeFromFlags guesses a JoinParameters.Security value from a
// ScanResult's observed SecurityFlags, for join_specific's convenience
// path. Ambiguity favors the strongest AKM observed.
func securityTypeFromFlags(f domain.SecurityFlags) domain.SecurityType {
	switch {
	case f.Has(domain.SecWPA3):
		return domain.SecurityWPA3SAE
	case f.Has(domain.SecWPA2) && f.Has(domain.SecEnterprise):
		return domain.SecurityWPA2Enterprise
	case f.Has(domain.SecWPA2) && f.Has(domain.SecSHA256):
		return domain.SecurityWPA2AESPSKSHA256
	case f.Has(domain.SecWPA2) && f.Has(domain.SecAESEnabled):
		return domain.SecurityWPA2AESPSK
	case f.Has(domain.SecWPA2):
		return domain.SecurityWPA2TKIPPSK
	case f.Has(domain.SecWPA) && f.Has(domain.SecAESEnabled):
		return domain.SecurityWPAAESPSK
	case f.Has(domain.SecWPA):
		return domain.SecurityWPATKIPPSK
	case f.Has(domain.SecWEP):
		return domain.SecurityWEP
	default:
		return domain.SecurityOpen
	}
}
