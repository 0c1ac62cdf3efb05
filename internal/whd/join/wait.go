package join

import (
	"context"
	"time"

	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// waitForComplete blocks on the join semaphore until the classifier
// reports success or failure, or the overall join-attempt budget expires.
// It wakes every DEFAULT_JOIN_ATTEMPT_TIMEOUT/10 (~900ms) to reclassify
// even if the semaphore was not signaled, since a signal can race a
// status flip that has not yet settled into a named terminal
// combination. An unnamed (OutcomeInvalid) combination does not end the
// wait early, since events arriving one by one pass through such
// combinations; it is reported as completed only if it is still the
// status when the budget expires.
func (m *Manager) waitForComplete(ctx context.Context, iface *domain.Interface) (domain.JoinStatus, bool) {
	const ticks = 10
	perTick := domain.DefaultJoinAttemptTimeout / ticks

	deadline := time.Now().Add(domain.DefaultJoinAttemptTimeout)
	for time.Now().Before(deadline) {
		js := m.snapshotStatus(iface)
		if outcome, _ := Classify(js); outcome == OutcomeSuccess || outcome == OutcomeFailure {
			return js, true
		}

		m.semMu.Lock()
		sem := m.sem
		m.semMu.Unlock()

		select {
		case <-sem:
		case <-time.After(perTick):
		case <-ctx.Done():
			return m.snapshotStatus(iface), false
		}
	}

	js := m.snapshotStatus(iface)
	if outcome, _ := Classify(js); outcome != OutcomeInProgress {
		return js, true
	}
	return js, false
}
