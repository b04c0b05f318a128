package resolv

import "strings"

// maxChaseIterations bounds the CNAME/DNAME chase (§4.7).
const maxChaseIterations = 30

// recurse drives a bounded CNAME/DNAME chase for name against the types
// the caller actually wants, returning answers grouped by the kind
// requested. It is an error to ask to recurse for CNAME or DNAME directly.
func (m *Mux) recurse(uri, name string, types []Kind) (map[Kind][]Answer, error) {
	for _, k := range types {
		if k == KindCNAME || k == KindDNAME {
			return nil, &InvalidNameError{Name: name, Reason: "cannot recurse for CNAME or DNAME directly"}
		}
	}
	augmented := dedupTypes(append(append([]Kind{}, types...), KindCNAME, KindDNAME))

	cur := name
	for i := 0; i < maxChaseIterations; i++ {
		grouped, err := m.queryAll(uri, cur, augmented)
		if err != nil {
			return nil, err
		}

		out := make(map[Kind][]Answer)
		for _, k := range types {
			// grouped[k] holds the answers of the query for kind k, which
			// handleFrame has already narrowed to k's own records; the
			// filter here keeps CNAME/DNAME out of the result even so.
			if filtered := filterByKind(grouped[k], k); len(filtered) > 0 {
				out[k] = filtered
			}
		}
		if len(out) > 0 {
			return out, nil
		}

		// DNAME takes precedence over CNAME when both are present,
		// following the source order of the Kind enum (§4.7).
		var target string
		switch {
		case len(grouped[KindDNAME]) > 0:
			target = grouped[KindDNAME][0].Data
		case len(grouped[KindCNAME]) > 0:
			target = grouped[KindCNAME][0].Data
		default:
			return nil, &NoRecordError{Name: cur, Kind: types[0]}
		}
		cur = strings.TrimSuffix(target, ".")
	}
	return nil, &ChainTooLongError{Name: name}
}

// queryAll asks for every kind in kinds concurrently and groups the
// answers by kind. A NoRecordError for an individual kind is expected
// (most names don't have every augmented type) and is treated as "no
// answers for that kind" rather than a failure; any other error is
// returned only if it leaves queryAll with nothing useful at all.
func (m *Mux) queryAll(uri, name string, kinds []Kind) (map[Kind][]Answer, error) {
	type outcome struct {
		kind    Kind
		answers []Answer
		err     error
	}
	ch := make(chan outcome, len(kinds))
	for _, k := range kinds {
		go func(k Kind) {
			r := <-m.request(uri, name, k)
			ch <- outcome{kind: k, answers: r.answers, err: r.err}
		}(k)
	}

	grouped := make(map[Kind][]Answer)
	var firstErr error
	for range kinds {
		o := <-ch
		if o.err != nil {
			if _, ok := o.err.(*NoRecordError); ok {
				continue
			}
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		grouped[o.kind] = o.answers
	}
	if len(grouped) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return grouped, nil
}
