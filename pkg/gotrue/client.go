package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wastelandatlas/authkit/pkg/authflow"
	"github.com/wastelandatlas/authkit/pkg/broadcast"
	"github.com/wastelandatlas/authkit/pkg/logger"
)

const (
	authPath = "/auth/v1"
	restPath = "/rest/v1"

	// passwordSetKey is the user-metadata marker recording that the account
	// has established a password credential. GoTrue does not expose the
	// presence of a password directly, so the client maintains this marker
	// itself on every password update.
	passwordSetKey = "password_set"

	maxErrorBody = 1 << 20
)

// Option configures a Client during construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock overrides the time source. Used by tests to control token expiry.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Client talks to a GoTrue project. It holds the session tokens, owns the
// session-change event stream, and optionally refreshes the access token in
// the background. All methods are safe for concurrent use.
type Client struct {
	baseURL      string
	anonKey      string
	profileTable string

	http  *http.Client
	log   *slog.Logger
	clock func() time.Time

	refreshMargin time.Duration

	stream *broadcast.Stream[authflow.SessionEvent]

	// wake pokes the refresh loop to re-arm its timer after a session change.
	wake chan struct{}

	mu         sync.Mutex
	state      *sessionState
	subscribed bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// sessionState is the token material and user snapshot of the live session.
type sessionState struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	user         user
}

type user struct {
	ID       uuid.UUID      `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

func (u user) passwordSet() bool {
	v, ok := u.Metadata[passwordSetKey].(bool)
	return ok && v
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         user   `json:"user"`
}

// New constructs a client and, unless disabled, starts the background
// token-refresh loop. Close must be called to release it.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gotrue: invalid config: %w", err)
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		anonKey:       cfg.AnonKey,
		profileTable:  cfg.ProfileTable,
		log:           logger.Discard(),
		clock:         time.Now,
		refreshMargin: cfg.RefreshMargin,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	if c.profileTable == "" {
		c.profileTable = DefaultProfileTable
	}
	if c.refreshMargin <= 0 {
		c.refreshMargin = DefaultRefreshMargin
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	c.stream = broadcast.NewStream[authflow.SessionEvent](buffer)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if cfg.AutoRefresh {
		go c.refreshLoop(ctx)
	} else {
		close(c.done)
	}

	return c, nil
}

// Close stops the refresh loop and closes the event stream. Safe to call
// multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		c.stream.Close()
	})
}

// CurrentSession re-reads the user record so the returned snapshot reflects
// the server's current view, not the one cached at sign-in time.
func (c *Client) CurrentSession(ctx context.Context) (*authflow.Session, error) {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()

	if st == nil {
		return nil, authflow.ErrSessionNotFound
	}

	var u user
	if err := c.do(ctx, http.MethodGet, authPath+"/user", nil, &u, st.accessToken); err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.Status == http.StatusUnauthorized {
			c.clearSession(false)
			return nil, authflow.ErrSessionNotFound
		}
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		// Signed out while the read was in flight.
		return nil, authflow.ErrSessionNotFound
	}
	c.state.user = u
	s := c.sessionLocked()
	return &s, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*authflow.Session, error) {
	body := map[string]string{"email": email, "password": password}

	var tok tokenResponse
	if err := c.do(ctx, http.MethodPost, authPath+"/token?grant_type=password", body, &tok, c.anonKey); err != nil {
		return nil, err
	}

	c.mu.Lock()
	s := c.applyTokenLocked(tok)
	c.mu.Unlock()

	c.stream.Publish(authflow.SessionEvent{Kind: authflow.EventSignedIn, Session: &s})
	c.log.Debug("password sign-in", logger.Component("gotrue"), logger.UserID(s.UserID))
	return &s, nil
}

func (c *Client) SendOTP(ctx context.Context, email string, purpose authflow.OTPPurpose) error {
	switch purpose {
	case authflow.PurposeRegistration:
		body := map[string]any{"email": email, "create_user": true}
		return c.do(ctx, http.MethodPost, authPath+"/otp", body, nil, c.anonKey)
	case authflow.PurposeRecovery:
		body := map[string]any{"email": email}
		return c.do(ctx, http.MethodPost, authPath+"/recover", body, nil, c.anonKey)
	default:
		return fmt.Errorf("gotrue: unsupported otp purpose %q", purpose)
	}
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string, purpose authflow.OTPPurpose) (*authflow.Session, error) {
	var verifyType string
	switch purpose {
	case authflow.PurposeRegistration:
		verifyType = "email"
	case authflow.PurposeRecovery:
		verifyType = "recovery"
	default:
		return nil, fmt.Errorf("gotrue: unsupported otp purpose %q", purpose)
	}

	body := map[string]string{"type": verifyType, "email": email, "token": code}

	var tok tokenResponse
	if err := c.do(ctx, http.MethodPost, authPath+"/verify", body, &tok, c.anonKey); err != nil {
		return nil, err
	}

	c.mu.Lock()
	s := c.applyTokenLocked(tok)
	c.mu.Unlock()

	kind := authflow.EventSignedIn
	if purpose == authflow.PurposeRecovery {
		kind = authflow.EventPasswordRecovery
	}
	c.stream.Publish(authflow.SessionEvent{Kind: kind, Session: &s})
	return &s, nil
}

// UpdatePassword attaches the password credential and records the
// password-set marker in user metadata in the same request.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()

	if st == nil {
		return authflow.ErrSessionNotFound
	}

	body := map[string]any{
		"password": newPassword,
		"data":     map[string]any{passwordSetKey: true},
	}

	var u user
	if err := c.do(ctx, http.MethodPut, authPath+"/user", body, &u, st.accessToken); err != nil {
		return err
	}

	// The echoed user record can lag the metadata write; the marker is forced
	// locally so the snapshot never regresses.
	if u.Metadata == nil {
		u.Metadata = map[string]any{}
	}
	u.Metadata[passwordSetKey] = true

	c.mu.Lock()
	var s *authflow.Session
	if c.state != nil {
		c.state.user = u
		v := c.sessionLocked()
		s = &v
	}
	c.mu.Unlock()

	if s != nil {
		c.stream.Publish(authflow.SessionEvent{Kind: authflow.EventUserUpdated, Session: s})
	}
	return nil
}

// CreateProfile inserts the profile row through the PostgREST data API. A
// username uniqueness violation surfaces as the raw PostgreSQL 23505 error.
func (c *Client) CreateProfile(ctx context.Context, userID uuid.UUID, username string) error {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()

	if st == nil {
		return authflow.ErrSessionNotFound
	}

	row := map[string]string{"id": userID.String(), "username": username}
	buf, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("gotrue: encode profile: %w", err)
	}

	url := c.baseURL + restPath + "/" + c.profileTable
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("gotrue: build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+st.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return decodePGError(resp.StatusCode, raw)
	}
	return nil
}

// SignOut revokes the session server-side and always drops it locally. A
// session already gone on the server is not a failure.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()

	var callErr error
	if st != nil {
		callErr = c.do(ctx, http.MethodPost, authPath+"/logout", nil, nil, st.accessToken)
		var ae *apiError
		if errors.As(callErr, &ae) &&
			(ae.Status == http.StatusUnauthorized || ae.Status == http.StatusNotFound) {
			callErr = nil
		}
	}

	c.clearSession(true)
	return callErr
}

// SessionEvents returns the single session-change stream. The first value is
// an initial event describing the state at subscription time; the stream
// supports exactly one subscriber.
func (c *Client) SessionEvents(ctx context.Context) (<-chan authflow.SessionEvent, error) {
	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return nil, authflow.ErrEventsAlreadySubscribed
	}
	c.subscribed = true

	var initial *authflow.Session
	if c.state != nil {
		s := c.sessionLocked()
		initial = &s
	}
	c.mu.Unlock()

	ch := c.stream.Subscribe(ctx)
	c.stream.Publish(authflow.SessionEvent{Kind: authflow.EventInitial, Session: initial})
	return ch, nil
}

// applyTokenLocked installs a token response as the live session.
func (c *Client) applyTokenLocked(tok tokenResponse) authflow.Session {
	expiresAt := time.Unix(tok.ExpiresAt, 0)
	if tok.ExpiresAt == 0 {
		expiresAt = c.clock().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	c.state = &sessionState{
		accessToken:  tok.AccessToken,
		refreshToken: tok.RefreshToken,
		expiresAt:    expiresAt,
		user:         tok.User,
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}

	return c.sessionLocked()
}

func (c *Client) sessionLocked() authflow.Session {
	return authflow.Session{
		UserID:              c.state.user.ID,
		Email:               c.state.user.Email,
		ExpiresAt:           c.state.expiresAt,
		HasPasswordIdentity: c.state.user.passwordSet(),
	}
}

func (c *Client) clearSession(publish bool) {
	c.mu.Lock()
	had := c.state != nil
	c.state = nil
	c.mu.Unlock()

	if publish && had {
		c.stream.Publish(authflow.SessionEvent{Kind: authflow.EventSignedOut})
	}
}

// refreshLoop wakes shortly before the access token expires and exchanges
// the refresh token. A revoked refresh token signs the session out.
func (c *Client) refreshLoop(ctx context.Context) {
	defer close(c.done)

	for {
		timer := time.NewTimer(c.nextRefreshIn())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.wake:
			timer.Stop()
		case <-timer.C:
			c.refresh(ctx)
		}
	}
}

func (c *Client) nextRefreshIn() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	// No session: sleep until a sign-in pokes the wake channel.
	if c.state == nil {
		return time.Hour
	}

	d := c.state.expiresAt.Sub(c.clock()) - c.refreshMargin
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (c *Client) refresh(ctx context.Context) {
	c.mu.Lock()
	st := c.state
	due := st != nil && !c.clock().Add(c.refreshMargin).Before(st.expiresAt)
	c.mu.Unlock()

	if !due {
		return
	}

	body := map[string]string{"refresh_token": st.refreshToken}

	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, authPath+"/token?grant_type=refresh_token", body, &tok, c.anonKey)
	if err != nil {
		c.log.Warn("token refresh failed", logger.Component("gotrue"), logger.Error(err))

		var ae *apiError
		if errors.As(err, &ae) &&
			(ae.Status == http.StatusBadRequest || ae.Status == http.StatusUnauthorized) {
			c.clearSession(true)
		}
		return
	}

	c.mu.Lock()
	s := c.applyTokenLocked(tok)
	c.mu.Unlock()

	c.stream.Publish(authflow.SessionEvent{Kind: authflow.EventTokenRefreshed, Session: &s})
}

// do runs one auth-API request. bearer is the anon key for public endpoints
// and the access token for authenticated ones; non-2xx responses decode into
// *apiError.
func (c *Client) do(ctx context.Context, method, path string, body, out any, bearer string) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gotrue: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gotrue: build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("gotrue: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("gotrue: decode response: %w", err)
		}
	}
	return nil
}

var _ authflow.Provider = (*Client)(nil)
