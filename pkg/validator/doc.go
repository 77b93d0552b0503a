// Package validator provides rule-based input validation.
//
// Rules are composed and executed with Apply, which collects every failure
// into a ValidationErrors value rather than stopping at the first one:
//
//	err := validator.Apply(
//		validator.ValidEmail("email", email),
//		validator.MinPasswordLength("password", password, 6),
//	)
//
// The returned error is a ValidationErrors slice; callers can inspect
// individual field failures or surface the combined message.
package validator
