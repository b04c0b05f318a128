package resolv

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// literalKind classifies a name (§4.1): ip4-literal, ip6-literal, hostname,
// or invalid.
type literalKind int

const (
	kindInvalid literalKind = iota
	kindIP4Literal
	kindIP6Literal
	kindHostname
)

// classify determines whether name is an IPv4 literal, an IPv6 literal, a
// syntactically valid host name, or none of those. It does not lowercase
// or otherwise normalize name; callers that go on to use the name for
// cache/hosts lookups must lowercase it themselves.
func classify(name string) literalKind {
	if ip := net.ParseIP(name); ip != nil {
		if ip.To4() != nil && !strings.Contains(name, ":") {
			return kindIP4Literal
		}
		return kindIP6Literal
	}
	if validHostname(name) {
		return kindHostname
	}
	return kindInvalid
}

// validHostname reports whether name satisfies §4.1: total length <= 253,
// one or more "."-separated labels each matching
// [A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?. Internationalized labels are
// converted to their ASCII (punycode) form first so that Unicode host names
// classify the same way their wire-form A-labels would.
func validHostname(name string) bool {
	if name == "" {
		return false
	}
	if !isASCII(name) {
		if ascii, err := idna.Lookup.ToASCII(name); err == nil {
			name = ascii
		}
	}
	name = strings.TrimSuffix(name, ".")
	if len(name) > 253 || name == "" {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if !validLabel(label) {
			return false
		}
	}
	return true
}

func validLabel(label string) bool {
	n := len(label)
	if n == 0 || n > 63 {
		return false
	}
	if !isAlphaNum(label[0]) || !isAlphaNum(label[n-1]) {
		return false
	}
	for i := 1; i < n-1; i++ {
		c := label[i]
		if !isAlphaNum(c) && c != '-' {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func isAlphaNum(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	}
	return false
}
