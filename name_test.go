package resolv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want literalKind
	}{
		{"1.2.3.4", kindIP4Literal},
		{"::1", kindIP6Literal},
		{"2001:db8::1", kindIP6Literal},
		{"example.com", kindHostname},
		{"localhost", kindHostname},
		{"a.b.c.example.com", kindHostname},
		{"", kindInvalid},
		{"-bad.com", kindInvalid},
		{"bad-.com", kindInvalid},
		{"has a space.com", kindInvalid},
		{strings.Repeat("a", 64) + ".com", kindInvalid},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, classify(tt.name), "classify(%q)", tt.name)
	}
}

func TestValidHostnameTrailingDot(t *testing.T) {
	require.True(t, validHostname("example.com."))
	require.True(t, validHostname("example.com"))
}

func TestValidHostnameLabelLimits(t *testing.T) {
	label63 := make([]byte, 63)
	for i := range label63 {
		label63[i] = 'a'
	}
	require.True(t, validHostname(string(label63)+".com"))

	label64 := append(label63, 'a')
	require.False(t, validHostname(string(label64)+".com"))
}

func TestValidHostnameIDN(t *testing.T) {
	require.True(t, validHostname("münchen.de"))
}

func TestValidHostnameAllNumericLabelAllowed(t *testing.T) {
	// spec.md's label grammar has no rule against all-numeric labels or
	// TLDs, unlike stricter resolver implementations.
	require.True(t, validHostname("123.456"))
}
