package sanitizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wastelandatlas/authkit/pkg/sanitizer"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "User@Example.COM", "user@example.com"},
		{"trims whitespace", "  a@x.com  ", "a@x.com"},
		{"consolidates dots", "a..b@x.com", "a.b@x.com"},
		{"trims leading dot", ".a@x.com", "a@x.com"},
		{"invalid passes through", "not-an-email", "not-an-email"},
		{"double at passes through", "a@b@c", "a@b@c"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sanitizer.NormalizeEmail(tt.input))
		})
	}
}

func TestNormalizeOTPCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "123456", sanitizer.NormalizeOTPCode("123 456"))
	assert.Equal(t, "123456", sanitizer.NormalizeOTPCode("123-456"))
	assert.Equal(t, "123456", sanitizer.NormalizeOTPCode(" 123456\n"))
	assert.Equal(t, "", sanitizer.NormalizeOTPCode("abcdef"))
}

func TestTrimUsername(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bob", sanitizer.TrimUsername("  bob \t"))
}
