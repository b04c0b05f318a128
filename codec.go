package resolv

import (
	"fmt"

	"github.com/miekg/dns"
)

// codec is the abstract boundary over the external DNS message
// encoder/decoder (§4.4). The core never inspects wire bytes itself beyond
// what this interface exposes.
type codec interface {
	// buildQuery builds and encodes a query message with the given id,
	// record kind, and qname, with recursion-desired set.
	buildQuery(id uint16, kind Kind, qname string) ([]byte, error)
	// decode parses bytes into a response.
	decode(b []byte) (response, error)
}

// response is a decoded DNS reply, exposing only what the core needs to
// drive the multiplexer and recursion driver.
type response interface {
	ID() uint16
	Rcode() int
	IsResponse() bool
	Truncated() bool
	Answers() []Answer
}

// dnsCodec is the default codec, backed by github.com/miekg/dns.
type dnsCodec struct{}

var _ codec = dnsCodec{}

func (dnsCodec) buildQuery(id uint16, kind Kind, qname string) ([]byte, error) {
	m := new(dns.Msg)
	m.Id = id
	m.RecursionDesired = true
	m.SetQuestion(dns.Fqdn(qname), uint16(kind))
	return m.Pack()
}

func (dnsCodec) decode(b []byte) (response, error) {
	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &dnsResponse{m}, nil
}

type dnsResponse struct {
	msg *dns.Msg
}

func (r *dnsResponse) ID() uint16     { return r.msg.Id }
func (r *dnsResponse) Rcode() int     { return r.msg.Rcode }
func (r *dnsResponse) Truncated() bool { return r.msg.Truncated }

func (r *dnsResponse) IsResponse() bool {
	return r.msg.Response
}

func (r *dnsResponse) Answers() []Answer {
	out := make([]Answer, 0, len(r.msg.Answer))
	for _, rr := range r.msg.Answer {
		a, ok := answerFromRR(rr)
		if ok {
			out = append(out, a)
		}
	}
	return out
}

// answerFromRR converts one wire resource record into an Answer, for the
// kinds the core understands natively. Records of a type we don't special-
// case are still carried through with the record's full presentation text
// (rr.String()) so callers can see them, tagged with their opaque type code.
func answerFromRR(rr dns.RR) (Answer, bool) {
	h := rr.Header()
	ttl := int32(h.Ttl)
	switch v := rr.(type) {
	case *dns.A:
		return Answer{Data: v.A.String(), Kind: KindA, TTL: ttl}, true
	case *dns.AAAA:
		return Answer{Data: v.AAAA.String(), Kind: KindAAAA, TTL: ttl}, true
	case *dns.CNAME:
		return Answer{Data: v.Target, Kind: KindCNAME, TTL: ttl}, true
	case *dns.DNAME:
		return Answer{Data: v.Target, Kind: KindDNAME, TTL: ttl}, true
	default:
		if h.Rrtype == 0 {
			return Answer{}, false
		}
		return Answer{Data: rr.String(), Kind: Kind(h.Rrtype), TTL: ttl}, true
	}
}
