package authflow

import (
	"context"
	"fmt"

	"github.com/wastelandatlas/authkit/pkg/logger"
	"github.com/wastelandatlas/authkit/pkg/sanitizer"
	"github.com/wastelandatlas/authkit/pkg/validator"
)

// SignIn performs direct email+password authentication. On success the
// session snapshot is replaced and any stale flow state is cleared.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(validator.ValidEmail("email", email)); err != nil {
		return c.fail(KindInvalidEmail, err)
	}
	if err := validator.Apply(validator.RequiredString("password", password)); err != nil {
		return c.fail(KindInvalidCredentials, err)
	}

	c.mu.Lock()
	c.loginFlight++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.loginFlight > 0 {
			c.loginFlight--
		}
		c.mu.Unlock()
	}()

	c.begin()
	defer c.end()

	session, err := c.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return c.failProvider(err)
	}

	c.mu.Lock()
	if session != nil {
		s := *session
		c.snapshot = &s
	}
	c.resetFlowLocked()
	c.reconcileLocked()
	c.mu.Unlock()

	c.log.Info("signed in",
		logger.Component("authflow"),
		logger.UserID(c.Status().UserID),
	)
	return nil
}

// SignInWithProvider is a disabled stub: social sign-in is not supported.
func (c *Controller) SignInWithProvider(_ context.Context, name string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
}

// SignOut signs the user out. Local state is forced to signed-out whether or
// not the provider call succeeds; a server-side failure is logged, never
// surfaced as blocking.
func (c *Controller) SignOut(ctx context.Context) error {
	c.begin()
	defer c.end()

	if err := c.provider.SignOut(ctx); err != nil {
		c.log.Warn("provider sign-out failed, forcing local sign-out",
			logger.Component("authflow"),
			logger.Error(err),
		)
	}

	c.mu.Lock()
	c.snapshot = nil
	c.resetFlowLocked()
	c.publishLocked()
	c.mu.Unlock()

	c.log.Info("signed out", logger.Component("authflow"))
	return nil
}
