package authflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is an immutable snapshot of what the provider currently believes
// about the authenticated user. Updates replace the snapshot wholesale;
// it is never mutated in place.
type Session struct {
	UserID uuid.UUID
	Email  string

	// ExpiresAt is the absolute expiry of the session's credentials.
	ExpiresAt time.Time

	// HasPasswordIdentity is true once the account has a usable
	// email+password credential. OTP verification alone creates a live
	// session without one.
	HasPasswordIdentity bool
}

// Expired reports whether the session's credentials have lapsed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// OTPPurpose distinguishes the two OTP-gated flows at the provider boundary.
type OTPPurpose string

const (
	PurposeRegistration OTPPurpose = "registration"
	PurposeRecovery     OTPPurpose = "recovery"
)

// EventKind identifies a session-change notification from the provider.
type EventKind string

const (
	EventInitial          EventKind = "initial"
	EventSignedIn         EventKind = "signed_in"
	EventSignedOut        EventKind = "signed_out"
	EventTokenRefreshed   EventKind = "token_refreshed"
	EventUserUpdated      EventKind = "user_updated"
	EventPasswordRecovery EventKind = "password_recovery"
	EventUserDeleted      EventKind = "user_deleted"
)

// SessionEvent is a single entry in the provider's session-change stream.
// Session is nil for events that carry no session payload.
type SessionEvent struct {
	Kind    EventKind
	Session *Session
}

// Provider is the capability surface of the hosted identity provider.
// Implementations own all persistence and transport; the controller holds
// no credentials of its own.
//
// Every method may fail; errors are opaque to the controller and are run
// through the classifier before they reach the UI.
type Provider interface {
	// CurrentSession returns the live session, or ErrSessionNotFound.
	CurrentSession(ctx context.Context) (*Session, error)

	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	SendOTP(ctx context.Context, email string, purpose OTPPurpose) error

	// VerifyOTP exchanges a one-time code for a session. The provider
	// considers the resulting session signed in even when no password
	// identity exists yet.
	VerifyOTP(ctx context.Context, email, code string, purpose OTPPurpose) (*Session, error)

	// UpdatePassword attaches a password credential to the current session's
	// user.
	UpdatePassword(ctx context.Context, newPassword string) error

	// CreateProfile writes the profile record keyed by user id. The username
	// column is uniqueness-constrained.
	CreateProfile(ctx context.Context, userID uuid.UUID, username string) error

	SignOut(ctx context.Context) error

	// SessionEvents returns the provider's push stream of session-change
	// notifications: a lazy, serialized, non-restartable sequence consumed
	// by exactly one listener for the lifetime of the controller.
	SessionEvents(ctx context.Context) (<-chan SessionEvent, error)
}
