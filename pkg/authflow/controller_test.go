package authflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestController(t *testing.T, provider *MockProvider, opts ...Option) *Controller {
	t.Helper()

	c, err := New(provider, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// signedOutProvider returns a mock primed for a controller that starts with
// no session.
func signedOutProvider() *MockProvider {
	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(nil)
	mp.On("CurrentSession", mock.Anything).Return(nil, ErrSessionNotFound).Once()
	return mp
}

func futureSession(hasPassword bool) *Session {
	return &Session{
		UserID:              uuid.New(),
		Email:               "a@x.com",
		ExpiresAt:           time.Now().Add(time.Hour),
		HasPasswordIdentity: hasPassword,
	}
}

func TestNew_RequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)
}

func TestNew_SessionEventsFailure(t *testing.T) {
	t.Parallel()

	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(errors.New("stream unavailable"))

	_, err := New(mp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe session events")
}

func TestInitialize_SignedIn(t *testing.T) {
	t.Parallel()

	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(nil)
	mp.On("CurrentSession", mock.Anything).Return(futureSession(true), nil).Once()

	c := newTestController(t, mp)

	st := c.Status()
	assert.True(t, st.IsInitialized)
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.NeedsPasswordSetup)
}

func TestInitialize_NoSession(t *testing.T) {
	t.Parallel()

	c := newTestController(t, signedOutProvider())

	st := c.Status()
	assert.True(t, st.IsInitialized)
	assert.False(t, st.IsAuthenticated)
	assert.Equal(t, FlowNone, st.Flow)
	assert.Equal(t, 1, st.Step)
}

func TestInitialize_CheckFailureStillInitializes(t *testing.T) {
	t.Parallel()

	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(nil)
	mp.On("CurrentSession", mock.Anything).Return(nil, errors.New("backend down")).Once()

	c := newTestController(t, mp)

	st := c.Status()
	assert.True(t, st.IsInitialized, "initialization completes regardless of outcome")
	assert.False(t, st.IsAuthenticated)
}

// Scenario A: the full registration happy path.
func TestRegistration_HappyPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))

	st := c.Status()
	assert.True(t, st.OTPSent)
	assert.False(t, st.OTPVerified)
	assert.Equal(t, 2, st.Step)
	assert.Equal(t, FlowRegistration, st.Flow)

	sess := futureSession(false)
	sess.Email = "a@x.com"
	mp.On("VerifyOTP", mock.Anything, "a@x.com", "123456", PurposeRegistration).Return(sess, nil).Once()
	require.NoError(t, c.VerifyRegistrationOTP(ctx, "123456"))

	st = c.Status()
	assert.True(t, st.OTPVerified)
	assert.Equal(t, 3, st.Step)
	assert.False(t, st.IsAuthenticated, "authentication is withheld until the password step")
	assert.True(t, st.NeedsPasswordSetup)

	confirmed := *sess
	confirmed.HasPasswordIdentity = true
	mp.On("UpdatePassword", mock.Anything, "secret1").Return(nil).Once()
	mp.On("CreateProfile", mock.Anything, sess.UserID, "bob").Return(nil).Once()
	mp.On("CurrentSession", mock.Anything).Return(&confirmed, nil).Once()
	require.NoError(t, c.CompleteRegistration(ctx, "bob", "secret1", "secret1"))

	st = c.Status()
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.NeedsPasswordSetup)
	assert.Equal(t, FlowNone, st.Flow)
	assert.False(t, st.OTPSent, "flow state is cleared on completion")
	mp.AssertExpectations(t)
}

// The provider's own signed-in event for an OTP-only session must not flip
// IsAuthenticated while the flow is pending its password step.
func TestRegistration_ProviderSignedInEventDoesNotAuthenticate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))

	sess := futureSession(false)
	mp.On("VerifyOTP", mock.Anything, "a@x.com", "123456", PurposeRegistration).Return(sess, nil).Once()
	require.NoError(t, c.VerifyRegistrationOTP(ctx, "123456"))

	// Provider treats any live session as signed in and says so.
	mp.Emit(SessionEvent{Kind: EventSignedIn, Session: sess})

	require.Eventually(t, func() bool {
		st := c.Status()
		return st.NeedsPasswordSetup && !st.IsAuthenticated && st.Step == 3
	}, time.Second, 10*time.Millisecond)
}

// Scenario B: app restart between OTP verification and password setup.
func TestRestart_BeforePasswordSetup(t *testing.T) {
	t.Parallel()

	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(nil)
	mp.On("CurrentSession", mock.Anything).Return(futureSession(false), nil).Once()

	c := newTestController(t, mp)

	st := c.Status()
	assert.True(t, st.IsInitialized)
	assert.False(t, st.IsAuthenticated, "must not land on the home screen")
	assert.True(t, st.NeedsPasswordSetup)
}

// Scenario C: wrong password.
func TestSignIn_InvalidCredentials(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SignInWithPassword", mock.Anything, "a@x.com", "wrongpass").
		Return(nil, errors.New("Invalid login credentials")).Once()

	err := c.SignIn(ctx, "a@x.com", "wrongpass")
	require.Error(t, err)

	st := c.Status()
	require.NotNil(t, st.LastError)
	assert.Equal(t, KindInvalidCredentials, st.LastError.Kind)
	assert.False(t, st.IsAuthenticated)
	assert.Equal(t, FlowNone, st.Flow)
}

func TestSignIn_Success(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	sess := futureSession(true)
	mp.On("SignInWithPassword", mock.Anything, "a@x.com", "secret1").Return(sess, nil).Once()

	require.NoError(t, c.SignIn(ctx, "a@x.com", "secret1"))

	st := c.Status()
	assert.True(t, st.IsAuthenticated)
	assert.Nil(t, st.LastError)
	assert.Equal(t, sess.UserID, st.UserID)
}

func TestSignIn_NormalizesEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SignInWithPassword", mock.Anything, "a@x.com", "secret1").
		Return(futureSession(true), nil).Once()

	require.NoError(t, c.SignIn(ctx, "  A@X.com ", "secret1"))
	mp.AssertExpectations(t)
}

func TestSignIn_LocalValidationShortCircuits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	err := c.SignIn(ctx, "not-an-email", "secret1")
	require.Error(t, err)
	assert.Equal(t, KindInvalidEmail, c.LastError().Kind)
	mp.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything, mock.Anything)
}

// Scenario D: username uniqueness violation keeps the user on step 3.
func TestCompleteRegistration_UsernameTaken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))

	sess := futureSession(false)
	mp.On("VerifyOTP", mock.Anything, "a@x.com", "123456", PurposeRegistration).Return(sess, nil).Once()
	require.NoError(t, c.VerifyRegistrationOTP(ctx, "123456"))

	mp.On("UpdatePassword", mock.Anything, "secret1").Return(nil).Once()
	mp.On("CreateProfile", mock.Anything, sess.UserID, "bob").
		Return(errors.New(`duplicate key value violates unique constraint "profiles_username_key"`)).Once()

	err := c.CompleteRegistration(ctx, "bob", "secret1", "secret1")
	require.Error(t, err)

	st := c.Status()
	require.NotNil(t, st.LastError)
	assert.Equal(t, KindUsernameTaken, st.LastError.Kind)
	assert.Equal(t, 3, st.Step, "user stays on the password-setup step")
	assert.True(t, st.OTPVerified)
	assert.False(t, st.IsAuthenticated)
	assert.True(t, st.NeedsPasswordSetup, "session is not cleared")

	// Resubmitting with a different username succeeds.
	confirmed := *sess
	confirmed.HasPasswordIdentity = true
	mp.On("UpdatePassword", mock.Anything, "secret1").Return(nil).Once()
	mp.On("CreateProfile", mock.Anything, sess.UserID, "bob2").Return(nil).Once()
	mp.On("CurrentSession", mock.Anything).Return(&confirmed, nil).Once()
	require.NoError(t, c.CompleteRegistration(ctx, "bob2", "secret1", "secret1"))
	assert.True(t, c.Status().IsAuthenticated)
}

func TestCompleteRegistration_WeakOrMismatchedPassword(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))
	mp.On("VerifyOTP", mock.Anything, "a@x.com", "123456", PurposeRegistration).
		Return(futureSession(false), nil).Once()
	require.NoError(t, c.VerifyRegistrationOTP(ctx, "123456"))

	err := c.CompleteRegistration(ctx, "bob", "abc", "abc")
	require.Error(t, err)
	assert.Equal(t, KindWeakPassword, c.LastError().Kind)

	err = c.CompleteRegistration(ctx, "bob", "secret1", "secret2")
	require.Error(t, err)
	assert.Equal(t, KindWeakPassword, c.LastError().Kind)

	assert.Equal(t, 3, c.Status().Step)
	mp.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything)
}

// Scenario E: an expired session at reconciliation time forces sign-out.
func TestReconcile_SessionExpiry(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	expired := futureSession(true)
	expired.ExpiresAt = clk.Now().Add(-time.Minute)

	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(nil)
	mp.On("CurrentSession", mock.Anything).Return(expired, nil).Once()

	c := newTestController(t, mp, WithClock(clk.Now))

	st := c.Status()
	assert.True(t, st.IsInitialized)
	assert.False(t, st.IsAuthenticated)
	require.NotNil(t, st.LastError)
	assert.Equal(t, KindSessionExpired, st.LastError.Kind)
}

func TestReconcile_ExpiryDetectedOnLaterEvent(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	sess := futureSession(true)
	sess.ExpiresAt = clk.Now().Add(30 * time.Minute)

	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(nil)
	mp.On("CurrentSession", mock.Anything).Return(sess, nil).Once()

	c := newTestController(t, mp, WithClock(clk.Now))
	require.True(t, c.Status().IsAuthenticated)

	clk.Advance(31 * time.Minute)
	mp.Emit(SessionEvent{Kind: EventTokenRefreshed})

	require.Eventually(t, func() bool {
		st := c.Status()
		return !st.IsAuthenticated && st.LastError != nil && st.LastError.Kind == KindSessionExpired
	}, time.Second, 10*time.Millisecond)
}

func TestSignOut_ClearsStateRegardlessOfProviderResult(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		err  error
	}{
		{"provider succeeds", nil},
		{"provider fails", errors.New("server on fire")},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			mp := NewMockProvider()
			mp.On("SessionEvents", mock.Anything).Return(nil)
			mp.On("CurrentSession", mock.Anything).Return(futureSession(true), nil).Once()
			mp.On("SignOut", mock.Anything).Return(tc.err).Once()

			c := newTestController(t, mp)
			require.True(t, c.Status().IsAuthenticated)

			require.NoError(t, c.SignOut(ctx), "sign-out never surfaces provider failure")

			st := c.Status()
			assert.False(t, st.IsAuthenticated)
			assert.False(t, st.NeedsPasswordSetup)
			assert.Equal(t, FlowNone, st.Flow)
		})
	}
}

func TestVerifyOTP_FailureKeepsFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))

	mp.On("VerifyOTP", mock.Anything, "a@x.com", "000000", PurposeRegistration).
		Return(nil, errors.New("403: otp_invalid")).Once()

	err := c.VerifyRegistrationOTP(ctx, "000000")
	require.Error(t, err)

	st := c.Status()
	assert.Equal(t, KindOTPInvalid, st.LastError.Kind)
	assert.Equal(t, 2, st.Step, "flow is not abandoned on a failed attempt")
	assert.True(t, st.OTPSent)
	assert.False(t, st.OTPVerified)
}

func TestVerifyOTP_RequiresActiveFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestController(t, signedOutProvider())

	err := c.VerifyRegistrationOTP(ctx, "123456")
	assert.ErrorIs(t, err, ErrNoActiveFlow)

	err = c.SetNewPassword(ctx, "secret1", "secret1")
	assert.ErrorIs(t, err, ErrNoActiveFlow)
}

func TestVerifyOTP_RejectsMalformedCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))

	err := c.VerifyRegistrationOTP(ctx, "12ab")
	require.Error(t, err)
	assert.Equal(t, KindOTPInvalid, c.LastError().Kind)
	mp.AssertNotCalled(t, "VerifyOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecovery_HappyPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRecovery).Return(nil).Once()
	require.NoError(t, c.StartRecovery(ctx, "a@x.com"))
	assert.Equal(t, FlowRecovery, c.Status().Flow)
	assert.Equal(t, 2, c.Status().Step)

	sess := futureSession(true)
	mp.On("VerifyOTP", mock.Anything, "a@x.com", "654321", PurposeRecovery).Return(sess, nil).Once()
	require.NoError(t, c.VerifyRecoveryOTP(ctx, "654321"))

	st := c.Status()
	assert.Equal(t, 3, st.Step)
	assert.False(t, st.IsAuthenticated, "still mid-flow")

	mp.On("UpdatePassword", mock.Anything, "newsecret").Return(nil).Once()
	mp.On("CurrentSession", mock.Anything).Return(sess, nil).Once()
	require.NoError(t, c.SetNewPassword(ctx, "newsecret", "newsecret"))

	st = c.Status()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, FlowNone, st.Flow)
}

func TestResendCooldown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newTestClock()

	mp := signedOutProvider()
	c := newTestController(t, mp, WithClock(clk.Now))

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))
	assert.Equal(t, clk.Now().Add(DefaultResendCooldown), c.ResendAvailableAt())

	// Immediate resend for the same flow is blocked locally.
	err := c.StartRegistration(ctx, "a@x.com")
	require.Error(t, err)
	assert.Equal(t, KindOTPRateLimited, c.LastError().Kind)

	clk.Advance(DefaultResendCooldown + time.Second)
	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))
	mp.AssertExpectations(t)
}

func TestCancelFlow_ResetsLoadingAndKeepsSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(nil)
	mp.On("CurrentSession", mock.Anything).Return(futureSession(true), nil).Once()

	c := newTestController(t, mp)

	release := make(chan struct{})
	mp.On("SendOTP", mock.Anything, "b@x.com", PurposeRecovery).
		Run(func(mock.Arguments) { <-release }).
		Return(nil).Once()

	go func() { _ = c.StartRecovery(ctx, "b@x.com") }()

	require.Eventually(t, c.IsLoading, time.Second, 5*time.Millisecond)

	c.CancelFlow()
	assert.False(t, c.IsLoading(), "cancellation always resets the loading flag")
	assert.Equal(t, FlowNone, c.Status().Flow)

	close(release)

	// The in-flight operation finishing must not leave loading stuck.
	require.Eventually(t, func() bool { return !c.IsLoading() }, time.Second, 5*time.Millisecond)
}

func TestResetFlowState_KeepsSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := NewMockProvider()
	mp.On("SessionEvents", mock.Anything).Return(nil)
	mp.On("CurrentSession", mock.Anything).Return(futureSession(false), nil).Once()

	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))

	c.ResetFlowState()

	st := c.Status()
	assert.Equal(t, FlowNone, st.Flow)
	assert.Nil(t, st.LastError)
	assert.True(t, st.NeedsPasswordSetup, "session snapshot is untouched")
	assert.True(t, c.ResendAvailableAt().IsZero())
}

func TestClearError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	require.Error(t, c.SignIn(ctx, "bad", "secret1"))
	require.NotNil(t, c.LastError())

	c.ClearError()
	assert.Nil(t, c.LastError())
}

func TestEventStream_SignedOutClearsEverything(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))

	mp.Emit(SessionEvent{Kind: EventSignedOut})

	require.Eventually(t, func() bool {
		st := c.Status()
		return st.Flow == FlowNone && !st.OTPSent && !st.IsAuthenticated
	}, time.Second, 10*time.Millisecond)
}

func TestIsInitialized_StableAcrossEvents(t *testing.T) {
	t.Parallel()

	mp := signedOutProvider()
	c := newTestController(t, mp)
	require.True(t, c.Status().IsInitialized)

	mp.Emit(SessionEvent{Kind: EventSignedIn, Session: futureSession(true)})
	mp.Emit(SessionEvent{Kind: EventSignedOut})

	require.Eventually(t, func() bool {
		st := c.Status()
		return st.IsInitialized && !st.IsAuthenticated
	}, time.Second, 10*time.Millisecond)
}

func TestSignInWithProvider_DisabledStub(t *testing.T) {
	t.Parallel()

	c := newTestController(t, signedOutProvider())

	err := c.SignInWithProvider(context.Background(), "google")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.Nil(t, c.LastError(), "the stub does not pollute the error channel")
}

func TestSubscribe_PublishesStatusChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	statuses := c.Subscribe(ctx)

	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))

	// Drain until the OTP-sent status arrives; loading toggles publish too.
	deadline := time.After(time.Second)
	for {
		select {
		case st := <-statuses:
			if st.OTPSent && st.Step == 2 {
				return
			}
		case <-deadline:
			t.Fatal("never observed the otp-sent status")
		}
	}
}

func TestStatus_FlowLoginWhileSignInInFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	release := make(chan struct{})
	mp.On("SignInWithPassword", mock.Anything, "a@x.com", "secret1").
		Run(func(mock.Arguments) { <-release }).
		Return(futureSession(true), nil).Once()

	go func() { _ = c.SignIn(ctx, "a@x.com", "secret1") }()

	require.Eventually(t, func() bool {
		return c.Status().Flow == FlowLogin
	}, time.Second, 5*time.Millisecond)

	close(release)

	require.Eventually(t, func() bool {
		st := c.Status()
		return st.IsAuthenticated && st.Flow == FlowNone
	}, time.Second, 5*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	c := newTestController(t, signedOutProvider())
	c.Close()
	c.Close()
}

// Property: across a whole registration flow, authenticated and
// needs-password-setup are never simultaneously observed.
func TestMutualExclusion_AcrossFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mp := signedOutProvider()
	c := newTestController(t, mp)

	check := func() {
		st := c.Status()
		require.False(t, st.IsAuthenticated && st.NeedsPasswordSetup)
	}

	check()
	mp.On("SendOTP", mock.Anything, "a@x.com", PurposeRegistration).Return(nil).Once()
	require.NoError(t, c.StartRegistration(ctx, "a@x.com"))
	check()

	sess := futureSession(false)
	mp.On("VerifyOTP", mock.Anything, "a@x.com", "123456", PurposeRegistration).Return(sess, nil).Once()
	require.NoError(t, c.VerifyRegistrationOTP(ctx, "123456"))
	check()

	confirmed := *sess
	confirmed.HasPasswordIdentity = true
	mp.On("UpdatePassword", mock.Anything, "secret1").Return(nil).Once()
	mp.On("CreateProfile", mock.Anything, sess.UserID, "bob").Return(nil).Once()
	mp.On("CurrentSession", mock.Anything).Return(&confirmed, nil).Once()
	require.NoError(t, c.CompleteRegistration(ctx, "bob", "secret1", "secret1"))
	check()
}
