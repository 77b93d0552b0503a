package authflow

import (
	"time"

	"github.com/google/uuid"
)

// Status is the externally observable projection of the controller's state.
// It is recomputed from the session snapshot and flow state after every
// mutation and published as an immutable value; it is never a function of
// event history.
type Status struct {
	// IsAuthenticated is true only when a live session exists, the account
	// has a password identity, and no in-progress flow is still pending
	// password establishment.
	IsAuthenticated bool

	// NeedsPasswordSetup is true when a live session exists but no password
	// identity is attached yet. Mutually exclusive with IsAuthenticated.
	NeedsPasswordSetup bool

	// IsInitialized becomes true exactly once, after the first
	// reconciliation pass completes, regardless of its outcome.
	IsInitialized bool

	// IsLoading is true while any controller operation is in flight.
	IsLoading bool

	Flow        FlowKind
	Step        int
	OTPSent     bool
	OTPVerified bool

	// UserID and Email identify the session's user when one is live.
	UserID uuid.UUID
	Email  string

	// LastError is the most recent classified failure, nil when clear.
	LastError *AuthError
}

// computeStatus derives Status from the two pieces of owned state. The
// provider reports any live session as signed in; authentication is withheld
// here while a flow is still pending its password step, and
// NeedsPasswordSetup is re-derived from the snapshot's password-identity
// flag (not from flow state) so an abandoned registration survives a
// process restart.
func computeStatus(snapshot *Session, flow FlowState, initialized, loading bool, lastErr *AuthError, now time.Time) Status {
	st := Status{
		IsInitialized: initialized,
		IsLoading:     loading,
		Flow:          flow.Kind(),
		Step:          flow.Step(),
		OTPSent:       flow.OTPSent(),
		OTPVerified:   flow.OTPVerified(),
		LastError:     lastErr,
	}

	if snapshot == nil || snapshot.Expired(now) {
		return st
	}

	st.UserID = snapshot.UserID
	st.Email = snapshot.Email

	pendingPassword := flow.OTPSent()
	st.IsAuthenticated = snapshot.HasPasswordIdentity && !pendingPassword
	st.NeedsPasswordSetup = !snapshot.HasPasswordIdentity

	return st
}
