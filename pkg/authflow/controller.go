package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wastelandatlas/authkit/pkg/broadcast"
	"github.com/wastelandatlas/authkit/pkg/logger"
	"github.com/wastelandatlas/authkit/pkg/sanitizer"
	"github.com/wastelandatlas/authkit/pkg/validator"
)

// Defaults applied by New when no option overrides them. The resend
// cool-down is client-side UX only; the provider's rate limiting remains
// authoritative.
const (
	DefaultResendCooldown    = 60 * time.Second
	DefaultPasswordMinLength = 6
	DefaultOTPLength         = 6
	DefaultStatusBuffer      = 8
)

// Config carries controller tunables loadable from the environment via
// pkg/config.
type Config struct {
	ResendCooldown    time.Duration `env:"AUTHFLOW_RESEND_COOLDOWN" envDefault:"60s"`
	PasswordMinLength int           `env:"AUTHFLOW_PASSWORD_MIN_LENGTH" envDefault:"6"`
	OTPLength         int           `env:"AUTHFLOW_OTP_LENGTH" envDefault:"6"`
	StatusBuffer      int           `env:"AUTHFLOW_STATUS_BUFFER" envDefault:"8"`
}

// Options converts the config into constructor options.
func (cfg Config) Options() []Option {
	return []Option{
		WithResendCooldown(cfg.ResendCooldown),
		WithPasswordMinLength(cfg.PasswordMinLength),
		WithOTPLength(cfg.OTPLength),
		WithStatusBuffer(cfg.StatusBuffer),
	}
}

// Option configures a Controller during construction.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock overrides the time source. Used by tests to control expiry and
// cool-down checks.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithResendCooldown sets the client-side OTP resend cool-down.
func WithResendCooldown(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.resendCooldown = d
		}
	}
}

// WithPasswordMinLength sets the minimum accepted password length.
func WithPasswordMinLength(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.passwordMinLength = n
		}
	}
}

// WithOTPLength sets the expected one-time code length.
func WithOTPLength(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.otpLength = n
		}
	}
}

// WithStatusBuffer sets the per-subscriber buffer of the status stream.
func WithStatusBuffer(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.statusBuffer = n
		}
	}
}

// Controller owns the flow state and the latest session snapshot. It is the
// single writer of both: user-initiated operations and the event listener
// both funnel their mutations through the controller's lock, and every
// mutation ends with a reconciliation pass that republishes Status.
type Controller struct {
	provider Provider
	log      *slog.Logger
	clock    func() time.Time

	resendCooldown    time.Duration
	passwordMinLength int
	otpLength         int
	statusBuffer      int

	stream *broadcast.Stream[Status]

	mu           sync.Mutex
	snapshot     *Session
	flow         FlowState
	initialized  bool
	lastErr      *AuthError
	inflight     int
	loginFlight  int
	nextResendAt time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New constructs a controller, performs the initial session check, and
// starts the single event-listener goroutine. Close must be called to
// release it.
func New(provider Provider, opts ...Option) (*Controller, error) {
	if provider == nil {
		return nil, errors.New("authflow: provider is required")
	}

	c := &Controller{
		provider:          provider,
		log:               logger.Discard(),
		clock:             time.Now,
		resendCooldown:    DefaultResendCooldown,
		passwordMinLength: DefaultPasswordMinLength,
		otpLength:         DefaultOTPLength,
		statusBuffer:      DefaultStatusBuffer,
		flow:              flowIdle(),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = broadcast.NewStream[Status](c.statusBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// Subscribe before the initial check so no event is missed in between.
	events, err := provider.SessionEvents(ctx)
	if err != nil {
		cancel()
		close(c.done)
		return nil, fmt.Errorf("subscribe session events: %w", err)
	}

	c.initialize(ctx)
	go c.listen(ctx, events)

	return c, nil
}

// Close tears the controller down: the event listener is cancelled exactly
// once and the status stream is closed. Safe to call multiple times.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		c.stream.Close()
	})
}

// Subscribe returns a channel of Status snapshots published after every
// reconciliation. The subscription ends when ctx is cancelled or the
// controller is closed.
func (c *Controller) Subscribe(ctx context.Context) <-chan Status {
	return c.stream.Subscribe(ctx)
}

// Status returns the current externally observable state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// IsLoading reports whether any operation is in flight.
func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight > 0
}

// LastError returns the most recent classified failure, nil when clear.
func (c *Controller) LastError() *AuthError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ResendAvailableAt returns when the client-side cool-down permits the next
// OTP resend. The zero time means a resend is allowed now.
func (c *Controller) ResendAvailableAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextResendAt
}

// ClearError discards the last error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
	c.publishLocked()
}

// ResetFlowState clears the local flow flags and last error. The session is
// untouched: a flow abandoned after OTP verification still has a live remote
// session, which the next reconciliation pass accounts for.
func (c *Controller) ResetFlowState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetFlowLocked()
	c.publishLocked()
}

// CancelFlow abandons the in-progress flow. In addition to resetting the
// flow state it forces the loading flag off so an abandoned flow can never
// leave the UI stuck in a spinner.
func (c *Controller) CancelFlow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetFlowLocked()
	c.inflight = 0
	c.loginFlight = 0
	c.publishLocked()
}

func (c *Controller) resetFlowLocked() {
	c.flow = flowIdle()
	c.lastErr = nil
	c.nextResendAt = time.Time{}
}

// initialize runs the initial session check. IsInitialized flips to true
// here exactly once per controller lifetime, whatever the outcome.
func (c *Controller) initialize(ctx context.Context) {
	session, err := c.provider.CurrentSession(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err == nil && session != nil:
		s := *session
		c.snapshot = &s
	case errors.Is(err, ErrSessionNotFound):
		c.snapshot = nil
	default:
		c.snapshot = nil
		c.log.Warn("initial session check failed",
			logger.Component("authflow"),
			logger.Error(err),
		)
	}

	c.initialized = true
	c.reconcileLocked()
}

// listen is the single long-lived consumer of the provider's event stream.
// It runs for the lifetime of the controller; there is no restart logic.
func (c *Controller) listen(ctx context.Context, events <-chan SessionEvent) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

// handleEvent applies one provider event and runs the full reconciliation
// pass. Status stays a pure function of (snapshot, flow); there is no
// per-event special casing beyond updating the snapshot.
func (c *Controller) handleEvent(ev SessionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case EventSignedOut, EventUserDeleted:
		c.snapshot = nil
		c.resetFlowLocked()
	default:
		if ev.Session != nil {
			s := *ev.Session
			c.snapshot = &s
		}
	}

	c.log.Debug("session event",
		logger.Component("authflow"),
		logger.Event(string(ev.Kind)),
	)

	c.reconcileLocked()
}

// reconcileLocked is the tail of every mutation: it forces the signed-out
// transition when the session has expired, then recomputes and publishes
// Status. Expiry is the only failure that silently transitions state, and
// it is surfaced through LastError rather than swallowed.
func (c *Controller) reconcileLocked() {
	if c.snapshot != nil && c.snapshot.Expired(c.clock()) {
		c.snapshot = nil
		c.flow = flowIdle()
		c.nextResendAt = time.Time{}
		c.lastErr = &AuthError{Kind: KindSessionExpired, Message: "session expired, sign in again"}
		c.log.Info("session expired", logger.Component("authflow"))
	}

	c.publishLocked()
}

func (c *Controller) publishLocked() {
	c.stream.Publish(c.statusLocked())
}

func (c *Controller) statusLocked() Status {
	st := computeStatus(c.snapshot, c.flow, c.initialized, c.inflight > 0, c.lastErr, c.clock())
	if st.Flow == FlowNone && c.loginFlight > 0 {
		st.Flow = FlowLogin
	}
	return st
}

// begin/end bracket every provider-backed operation. The loading flag is
// shared across overlapping operations; the UI only needs "something is in
// flight".
func (c *Controller) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight++
	c.publishLocked()
}

func (c *Controller) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// CancelFlow may already have zeroed the counter.
	if c.inflight > 0 {
		c.inflight--
	}
	c.publishLocked()
}

// fail records a classified failure as the last error and returns it.
// State other than the error field is left untouched: failures never
// silently transition flow or session state.
func (c *Controller) fail(kind ErrorKind, err error) error {
	ae := NewAuthError(kind, err)

	c.mu.Lock()
	c.lastErr = ae
	c.publishLocked()
	c.mu.Unlock()

	c.log.Debug("operation failed",
		logger.Component("authflow"),
		logger.ErrorKind(string(ae.Kind)),
		logger.Error(err),
	)
	return ae
}

// failProvider classifies an opaque provider error and records it.
func (c *Controller) failProvider(err error) error {
	ae := ClassifyError(err)

	c.mu.Lock()
	c.lastErr = ae
	c.publishLocked()
	c.mu.Unlock()

	c.log.Debug("provider call failed",
		logger.Component("authflow"),
		logger.ErrorKind(string(ae.Kind)),
		logger.Error(err),
	)
	return ae
}

// sendOTP starts or resends the OTP step shared by registration and
// recovery. Resends for the same flow are gated by the local cool-down.
func (c *Controller) sendOTP(ctx context.Context, kind FlowKind, purpose OTPPurpose, email string) error {
	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(validator.ValidEmail("email", email)); err != nil {
		return c.fail(KindInvalidEmail, err)
	}

	c.mu.Lock()
	resending := c.flow.Stage() == StageAwaitingOTP &&
		c.flow.Kind() == kind &&
		c.flow.Email() == email
	wait := c.nextResendAt
	c.mu.Unlock()

	if resending && c.clock().Before(wait) {
		return c.fail(KindOTPRateLimited,
			fmt.Errorf("resend available in %s", wait.Sub(c.clock()).Round(time.Second)))
	}

	c.begin()
	defer c.end()

	if err := c.provider.SendOTP(ctx, email, purpose); err != nil {
		return c.failProvider(err)
	}

	c.mu.Lock()
	c.flow = flowAwaitingOTP(kind, email)
	c.lastErr = nil
	c.nextResendAt = c.clock().Add(c.resendCooldown)
	c.publishLocked()
	c.mu.Unlock()

	c.log.Info("otp sent",
		logger.Component("authflow"),
		logger.Flow(string(kind)),
	)
	return nil
}

// verifyOTP is the verification step shared by both OTP-gated flows. On
// success the provider reports the session as signed in; the controller
// keeps authentication withheld until the password step completes.
func (c *Controller) verifyOTP(ctx context.Context, kind FlowKind, purpose OTPPurpose, code string) error {
	c.mu.Lock()
	active := c.flow.Stage() == StageAwaitingOTP && c.flow.Kind() == kind
	email := c.flow.Email()
	c.mu.Unlock()

	if !active {
		return ErrNoActiveFlow
	}

	code = sanitizer.NormalizeOTPCode(code)
	if err := validator.Apply(validator.OTPCode("code", code, c.otpLength)); err != nil {
		return c.fail(KindOTPInvalid, err)
	}

	c.begin()
	defer c.end()

	session, err := c.provider.VerifyOTP(ctx, email, code, purpose)
	if err != nil {
		// The flow stays on the OTP step; the user retries or resends.
		return c.failProvider(err)
	}

	c.mu.Lock()
	if session != nil {
		s := *session
		c.snapshot = &s
	}
	c.flow = flowPasswordSetup(kind, email)
	c.lastErr = nil
	c.reconcileLocked()
	c.mu.Unlock()

	c.log.Info("otp verified",
		logger.Component("authflow"),
		logger.Flow(string(kind)),
		logger.Step(3),
	)
	return nil
}

// confirmPasswordIdentity re-reads the session after a password update
// instead of assuming the provider's identity list is immediately
// consistent. If the read still lags, the completed update call is trusted
// over the stale snapshot.
func (c *Controller) confirmPasswordIdentity(ctx context.Context) {
	session, err := c.provider.CurrentSession(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil && session != nil {
		s := *session
		c.snapshot = &s
	} else if err != nil {
		c.log.Warn("post-update session read failed",
			logger.Component("authflow"),
			logger.Error(err),
		)
	}

	if c.snapshot != nil && !c.snapshot.HasPasswordIdentity {
		s := *c.snapshot
		s.HasPasswordIdentity = true
		c.snapshot = &s
	}
}
