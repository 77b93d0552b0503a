package authflow

import (
	"context"

	"github.com/wastelandatlas/authkit/pkg/logger"
	"github.com/wastelandatlas/authkit/pkg/validator"
)

// StartRecovery begins (or resends) the OTP-gated password recovery flow.
func (c *Controller) StartRecovery(ctx context.Context, email string) error {
	return c.sendOTP(ctx, FlowRecovery, PurposeRecovery, email)
}

// VerifyRecoveryOTP submits the emailed code for the recovery flow.
func (c *Controller) VerifyRecoveryOTP(ctx context.Context, code string) error {
	return c.verifyOTP(ctx, FlowRecovery, PurposeRecovery, code)
}

// SetNewPassword establishes the replacement password, finishing the
// recovery flow.
func (c *Controller) SetNewPassword(ctx context.Context, password, confirm string) error {
	c.mu.Lock()
	active := c.flow.Stage() == StagePasswordSetup && c.flow.Kind() == FlowRecovery
	c.mu.Unlock()

	if !active {
		return ErrNoActiveFlow
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

	c.confirmPasswordIdentity(ctx)

	c.mu.Lock()
	c.resetFlowLocked()
	c.reconcileLocked()
	c.mu.Unlock()

	c.log.Info("password recovered", logger.Component("authflow"))
	return nil
}
