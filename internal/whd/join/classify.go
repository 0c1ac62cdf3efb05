// Package join implements C5, the connection state machine: prepare,
// associate, wait-for-complete and leave, driven by a JoinStatus
// bitset classifier.
//
// The state machine runs on the caller's goroutine as the sequence
// prepare, associate, waitForComplete under a timeout budget. Progress
// is tracked only by the JoinStatus bitset and Classify; there is no
// separate state word or enum of named states.
package join

import "github.com/Infineon/whd-expansion/internal/whd/domain"

// Outcome is the terminal (or non-terminal) classification of a
// JoinStatus snapshot, per the classification table below.
type Outcome int

const (
	// OutcomeInProgress means no terminal condition has been reached yet
	// — the caller should keep waiting.
	OutcomeInProgress Outcome = iota
	OutcomeSuccess
	OutcomeFailure
	// OutcomeInvalid is the catch-all for any bit combination the table
	// does not name. waitForComplete treats it as terminal only if it is
	// still the status when the join-attempt budget expires.
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "in_progress"
	}
}

const eapolTimeoutBits = domain.JoinEapolM1Timeout | domain.JoinEapolM3Timeout | domain.JoinEapolG1Timeout | domain.JoinEapolFailure

// Classify maps a JoinStatus snapshot to an Outcome and, for terminal
// non-success outcomes, the most specific reason. It is a total function
// over JoinStatus's full bit range: every combination not explicitly
// named below falls through to OutcomeInvalid/ErrInvalidJoinStatus, so
// the classifier never panics or hangs on firmware reporting an
// unexpected bit pattern.
func Classify(js domain.JoinStatus) (Outcome, error) {
	switch {
	case js.Has(domain.JoinNoNetworks):
		return OutcomeFailure, domain.ErrNetworkNotFound

	case js.Has(domain.JoinAuthenticated | domain.JoinLinkReady | domain.JoinSsidSet | domain.JoinSecurityComplete):
		return OutcomeSuccess, nil

	case js.Has(domain.JoinAuthenticated|domain.JoinLinkReady) && js.Has(domain.JoinEapolM1Timeout):
		return OutcomeFailure, domain.ErrEapolM1Timeout

	case js.Has(domain.JoinAuthenticated|domain.JoinLinkReady) && js.Has(domain.JoinEapolM3Timeout):
		return OutcomeFailure, domain.ErrEapolM3Timeout

	case js.Has(domain.JoinAuthenticated|domain.JoinLinkReady) && js.Has(domain.JoinEapolG1Timeout):
		return OutcomeFailure, domain.ErrEapolG1Timeout

	case js.Has(domain.JoinAuthenticated|domain.JoinLinkReady) && js.Has(domain.JoinEapolFailure):
		return OutcomeFailure, domain.ErrEapolKeyFailure

	case js.Has(domain.JoinAuthenticated|domain.JoinLinkReady) && !js.HasAny(eapolTimeoutBits|domain.JoinSecurityComplete):
		return OutcomeInProgress, domain.ErrNotKeyed

	case js == domain.JoinSecurityComplete:
		return OutcomeInProgress, domain.ErrNotAuthenticated

	case js == 0:
		return OutcomeInProgress, domain.ErrNotAuthenticated

	default:
		return OutcomeInvalid, domain.ErrInvalidJoinStatus
	}
}
