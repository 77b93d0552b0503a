// Package sanitizer normalizes user input before it is validated or sent to
// the identity provider. Sanitization never rejects input; malformed values
// pass through unchanged so that validation can produce the real error.
package sanitizer
