package join

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

// TestClassifyIsTotal fuzzes every JoinStatus bit combination across the
// ten defined bits and asserts Classify never panics and always returns
// exactly one of the four Outcome values.
func TestClassifyIsTotal(t *testing.T) {
	const bitCount = 10
	for v := 0; v < (1 << bitCount); v++ {
		js := domain.JoinStatus(v)
		outcome, err := Classify(js)
		assert.Contains(t, []Outcome{OutcomeInProgress, OutcomeSuccess, OutcomeFailure, OutcomeInvalid}, outcome, "js=%v", js)
		if outcome != OutcomeSuccess {
			assert.Error(t, err, "js=%v outcome=%v should carry a reason", js, outcome)
		}
	}
}

func TestClassifyTableEntries(t *testing.T) {
	cases := []struct {
		name    string
		js      domain.JoinStatus
		outcome Outcome
		reason  error
	}{
		{"no networks", domain.JoinNoNetworks, OutcomeFailure, domain.ErrNetworkNotFound},
		{"full success", domain.JoinAuthenticated | domain.JoinLinkReady | domain.JoinSsidSet | domain.JoinSecurityComplete, OutcomeSuccess, nil},
		{"m1 timeout", domain.JoinAuthenticated | domain.JoinLinkReady | domain.JoinEapolM1Timeout, OutcomeFailure, domain.ErrEapolM1Timeout},
		{"m3 timeout", domain.JoinAuthenticated | domain.JoinLinkReady | domain.JoinEapolM3Timeout, OutcomeFailure, domain.ErrEapolM3Timeout},
		{"g1 timeout", domain.JoinAuthenticated | domain.JoinLinkReady | domain.JoinEapolG1Timeout, OutcomeFailure, domain.ErrEapolG1Timeout},
		{"eapol failure", domain.JoinAuthenticated | domain.JoinLinkReady | domain.JoinEapolFailure, OutcomeFailure, domain.ErrEapolKeyFailure},
		{"not keyed", domain.JoinAuthenticated | domain.JoinLinkReady, OutcomeInProgress, domain.ErrNotKeyed},
		{"wep/open pending", domain.JoinSecurityComplete, OutcomeInProgress, domain.ErrNotAuthenticated},
		{"nothing yet", 0, OutcomeInProgress, domain.ErrNotAuthenticated},
		{"undefined combo", domain.JoinAssociated, OutcomeInvalid, domain.ErrInvalidJoinStatus},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			outcome, reason := Classify(c.js)
			assert.Equal(t, c.outcome, outcome)
			assert.Equal(t, c.reason, reason)
		})
	}
}
