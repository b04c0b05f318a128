package resolv

import "github.com/miekg/dns"

// Kind is a DNS record type. It reuses the codec's own integer type space
// (the same constants the wire format assigns) so any type code - not just
// the ones the core special-cases - is representable.
type Kind = dns.Type

// Record kinds the resolver distinguishes by behavior. Any other code is
// carried through as an opaque Kind value.
const (
	KindA     = Kind(dns.TypeA)
	KindAAAA  = Kind(dns.TypeAAAA)
	KindCNAME = Kind(dns.TypeCNAME)
	KindDNAME = Kind(dns.TypeDNAME)
)

// TTLUnset marks an Answer that was sourced from an IP literal or the hosts
// file: it is never cached and never expires.
const TTLUnset int32 = -1

// Answer is one (address-or-target, kind, TTL) triple, either synthesized
// locally or returned by an upstream server.
type Answer struct {
	// Data holds a textual address (for A/AAAA), a target name (for
	// CNAME/DNAME), or the record's presentation text (for any other kind
	// the upstream returned).
	Data string
	Kind Kind
	// TTL in seconds, or TTLUnset for literals/hosts-file entries.
	TTL int32
}

// cacheKey identifies a cache entry: a lowercased host name and a kind.
type cacheKey struct {
	name string
	kind Kind
}

// dedupTypes removes duplicate kinds from a caller-supplied type list while
// preserving the first-seen order.
func dedupTypes(types []Kind) []Kind {
	seen := make(map[Kind]bool, len(types))
	out := make([]Kind, 0, len(types))
	for _, k := range types {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// filterByKind returns the subset of answers whose own Kind is kind. A
// response to a single-kind query can legitimately carry other kinds in
// the same answer section (a CNAME-aliased name queried for A typically
// returns both the CNAME and the terminal A record) - callers that care
// about one specific kind must not treat the alias records as if they
// were that kind.
func filterByKind(answers []Answer, kind Kind) []Answer {
	out := make([]Answer, 0, len(answers))
	for _, a := range answers {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// orderAnswers arranges answers so that, for each kind in requestOrder, all
// records of that kind appear contiguously before any record of a later
// kind; anything of a kind not in requestOrder is appended at the end in
// its original relative order (§5, Answer order invariant).
func orderAnswers(answers []Answer, requestOrder []Kind) []Answer {
	out := make([]Answer, 0, len(answers))
	used := make([]bool, len(answers))
	for _, k := range requestOrder {
		for i, a := range answers {
			if used[i] || a.Kind != k {
				continue
			}
			out = append(out, a)
			used[i] = true
		}
	}
	for i, a := range answers {
		if !used[i] {
			out = append(out, a)
		}
	}
	return out
}
