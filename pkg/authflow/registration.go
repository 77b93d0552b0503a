package authflow

import (
	"context"

	"github.com/wastelandatlas/authkit/pkg/logger"
	"github.com/wastelandatlas/authkit/pkg/sanitizer"
	"github.com/wastelandatlas/authkit/pkg/validator"
)

// StartRegistration begins (or, for the same address, resends) the OTP-gated
// registration flow. Resends within the client-side cool-down are rejected
// with KindOTPRateLimited; the provider's own rate limiting remains
// authoritative.
func (c *Controller) StartRegistration(ctx context.Context, email string) error {
	return c.sendOTP(ctx, FlowRegistration, PurposeRegistration, email)
}

// VerifyRegistrationOTP submits the emailed code for the registration flow.
// Success advances the flow to the password-setup step; the resulting live
// session is deliberately not reported as authenticated yet.
func (c *Controller) VerifyRegistrationOTP(ctx context.Context, code string) error {
	return c.verifyOTP(ctx, FlowRegistration, PurposeRegistration, code)
}

// CompleteRegistration establishes the password credential and writes the
// profile record, finishing the registration flow. A username uniqueness
// violation keeps the user on the password-setup step, free to resubmit a
// different name; nothing is rolled back.
func (c *Controller) CompleteRegistration(ctx context.Context, username, password, confirm string) error {
	username = sanitizer.TrimUsername(username)

	c.mu.Lock()
	active := c.flow.Stage() == StagePasswordSetup && c.flow.Kind() == FlowRegistration
	snapshot := c.snapshot
	c.mu.Unlock()

	if !active {
		return ErrNoActiveFlow
	}
	if snapshot == nil {
		return ErrSessionNotFound
	}

	if err := validator.Apply(validator.RequiredString("username", username)); err != nil {
		return c.fail(KindUnknown, err)
	}
	if err := validator.Apply(
		validator.MinPasswordLength("password", password, c.passwordMinLength),
		validator.PasswordsMatch("confirm", password, confirm),
	); err != nil {
		return c.fail(KindWeakPassword, err)
	}

	c.begin()
	defer c.end()

	if err := c.provider.UpdatePassword(ctx, password); err != nil {
		return c.failProvider(err)
	}
	if err := c.provider.CreateProfile(ctx, snapshot.UserID, username); err != nil {
		return c.failProvider(err)
	}

	c.confirmPasswordIdentity(ctx)

	c.mu.Lock()
	c.resetFlowLocked()
	c.reconcileLocked()
	c.mu.Unlock()

	c.log.Info("registration completed",
		logger.Component("authflow"),
		logger.UserID(snapshot.UserID),
	)
	return nil
}
