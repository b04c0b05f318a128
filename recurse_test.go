package resolv

import (
	"net"
	"strconv"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// fakeZoneServer serves canned RRs per (qname, qtype) pair, keyed by the
// fully-qualified question name.
func fakeZoneServer(t *testing.T, zone map[string]map[uint16][]string) (port int, stop func()) {
	t.Helper()
	return fakeUDPServer(t, func(q *dns.Msg) *dns.Msg {
		r := new(dns.Msg)
		r.SetReply(q)
		question := q.Question[0]
		if byType, ok := zone[question.Name]; ok {
			for _, rrtext := range byType[question.Qtype] {
				rr, err := dns.NewRR(rrtext)
				if err == nil {
					r.Answer = append(r.Answer, rr)
				}
			}
		}
		return r
	})
}

func TestRecurseFollowsCNAME(t *testing.T) {
	zone := map[string]map[uint16][]string{
		"alias.example.com.": {
			dns.TypeCNAME: {"alias.example.com. 60 IN CNAME target.example.com."},
		},
		"target.example.com.": {
			dns.TypeA: {"target.example.com. 60 IN A 1.2.3.4"},
		},
	}
	port, stop := fakeZoneServer(t, zone)
	defer stop()

	m := newTestMux(t)
	uri := canonicalURI(transportUDP, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

	grouped, err := m.recurse(uri, "alias.example.com", []Kind{KindA})
	require.NoError(t, err)
	require.Len(t, grouped[KindA], 1)
	require.Equal(t, "1.2.3.4", grouped[KindA][0].Data)
}

func TestRecursePrefersDNAMEOverCNAME(t *testing.T) {
	zone := map[string]map[uint16][]string{
		"alias.example.com.": {
			dns.TypeCNAME: {"alias.example.com. 60 IN CNAME wrong.example.com."},
			dns.TypeDNAME: {"alias.example.com. 60 IN DNAME target.example.com."},
		},
		"target.example.com.": {
			dns.TypeA: {"target.example.com. 60 IN A 9.9.9.9"},
		},
	}
	port, stop := fakeZoneServer(t, zone)
	defer stop()

	m := newTestMux(t)
	uri := canonicalURI(transportUDP, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

	grouped, err := m.recurse(uri, "alias.example.com", []Kind{KindA})
	require.NoError(t, err)
	require.Equal(t, "9.9.9.9", grouped[KindA][0].Data)
}

func TestRecurseDirectAnswerNoChase(t *testing.T) {
	zone := map[string]map[uint16][]string{
		"example.com.": {
			dns.TypeA: {"example.com. 60 IN A 1.1.1.1"},
		},
	}
	port, stop := fakeZoneServer(t, zone)
	defer stop()

	m := newTestMux(t)
	uri := canonicalURI(transportUDP, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

	grouped, err := m.recurse(uri, "example.com", []Kind{KindA})
	require.NoError(t, err)
	require.Equal(t, "1.1.1.1", grouped[KindA][0].Data)
}

func TestRecurseChainTooLong(t *testing.T) {
	// A -> B -> A cycle: the chase never terminates and should hit the
	// iteration cap.
	zone := map[string]map[uint16][]string{
		"a.example.com.": {
			dns.TypeCNAME: {"a.example.com. 60 IN CNAME b.example.com."},
		},
		"b.example.com.": {
			dns.TypeCNAME: {"b.example.com. 60 IN CNAME a.example.com."},
		},
	}
	port, stop := fakeZoneServer(t, zone)
	defer stop()

	m := newTestMux(t)
	uri := canonicalURI(transportUDP, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

	_, err := m.recurse(uri, "a.example.com", []Kind{KindA})
	require.Error(t, err)
	_, ok := err.(*ChainTooLongError)
	require.True(t, ok)
}

func TestRecurseRejectsCNAMEType(t *testing.T) {
	m := newTestMux(t)
	_, err := m.recurse("udp://127.0.0.1:1", "example.com", []Kind{KindCNAME})
	require.Error(t, err)
	_, ok := err.(*InvalidNameError)
	require.True(t, ok)
}

// TestRecurseStripsAliasFromMixedUpstreamAnswer covers a real upstream that
// bundles the traversed CNAME record together with the terminal A record in
// the answer section of a single A-type query, instead of requiring a
// second CNAME-type round trip - standard behavior for any CDN-fronted
// domain. The chase must recognize the direct answer and return only the A
// record, not the CNAME alongside it.
func TestRecurseStripsAliasFromMixedUpstreamAnswer(t *testing.T) {
	port, stop := fakeUDPServer(t, func(q *dns.Msg) *dns.Msg {
		r := new(dns.Msg)
		r.SetReply(q)
		cname, _ := dns.NewRR("alias.example.com. 60 IN CNAME target.example.com.")
		a, _ := dns.NewRR("target.example.com. 60 IN A 1.2.3.4")
		r.Answer = append(r.Answer, cname, a)
		return r
	})
	defer stop()

	m := newTestMux(t)
	uri := canonicalURI(transportUDP, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

	grouped, err := m.recurse(uri, "alias.example.com", []Kind{KindA})
	require.NoError(t, err)
	require.Len(t, grouped[KindA], 1)
	require.Equal(t, "1.2.3.4", grouped[KindA][0].Data)
	require.Equal(t, KindA, grouped[KindA][0].Kind)
}

func TestRecurseNoRecordAtEndOfChain(t *testing.T) {
	zone := map[string]map[uint16][]string{
		"alias.example.com.": {
			dns.TypeCNAME: {"alias.example.com. 60 IN CNAME dead-end.example.com."},
		},
	}
	port, stop := fakeZoneServer(t, zone)
	defer stop()

	m := newTestMux(t)
	uri := canonicalURI(transportUDP, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

	_, err := m.recurse(uri, "alias.example.com", []Kind{KindA})
	require.Error(t, err)
	_, ok := err.(*NoRecordError)
	require.True(t, ok)
}
