package resolv

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Constants from §6.
const (
	DefaultServer  = "8.8.8.8"
	DefaultPort    = 53
	DefaultTimeout = 3000 * time.Millisecond
	// IdleTimeout is how long an idle server connection is kept open
	// before teardown (§4.5). Implementation-chosen, per spec.
	IdleTimeout = 10 * time.Second
)

// Options configures a Resolver.
type Options struct {
	// Server is the default upstream used when a call doesn't override
	// it, in "addr", "addr:port", or "[v6]:port" form. Defaults to
	// DefaultServer:DefaultPort.
	Server string
	// IdleTimeout overrides IdleTimeout for this resolver's connections.
	IdleTimeout time.Duration
	// CacheSweepInterval controls the cache's background expiry sweep;
	// 0 selects the default of one minute, and a negative value disables
	// it (lazy expiry on get() still applies).
	CacheSweepInterval time.Duration
}

// ResolveOptions controls one Resolve call (§6).
type ResolveOptions struct {
	Server      string
	Timeout     time.Duration
	NoHosts     bool
	ReloadHosts bool
	NoCache     bool
	// Types defaults to [A, AAAA] when empty.
	Types []Kind
}

// QueryOptions controls one Query call (§6).
type QueryOptions struct {
	Server      string
	Timeout     time.Duration
	NoHosts     bool
	ReloadHosts bool
	NoCache     bool
	Recurse     bool
}

// Resolver orchestrates literal shortcut -> hosts lookup -> cache lookup
// -> server query, merges results, and enforces the overall per-call
// timeout (§4.8). It is the explicit, embedder-constructed handle Design
// Notes §9 calls for.
type Resolver struct {
	mux            *Mux
	cache          *Cache
	hosts          *hostsFile
	defaultServer  string
	defaultTimeout time.Duration
}

// New constructs a Resolver. The caller owns it and must call Close when
// done.
func New(opt Options) *Resolver {
	sweep := opt.CacheSweepInterval
	if sweep == 0 {
		sweep = time.Minute
	}
	cache := newCache(sweep)

	idle := opt.IdleTimeout
	if idle <= 0 {
		idle = IdleTimeout
	}

	server := opt.Server
	if server == "" {
		server = fmt.Sprintf("%s:%d", DefaultServer, DefaultPort)
	}

	return &Resolver{
		mux:            newMux(dnsCodec{}, cache, idle),
		cache:          cache,
		hosts:          newHostsFile(),
		defaultServer:  server,
		defaultTimeout: DefaultTimeout,
	}
}

// Close tears down every upstream connection and stops background work.
func (r *Resolver) Close() {
	r.mux.Close()
	r.cache.Close()
}

// Resolve returns answer records for name across the requested (or
// default A/AAAA) types.
func (r *Resolver) Resolve(ctx context.Context, name string, opt ResolveOptions) ([]Answer, error) {
	switch classify(name) {
	case kindIP4Literal:
		return []Answer{{Data: name, Kind: KindA, TTL: TTLUnset}}, nil
	case kindIP6Literal:
		return []Answer{{Data: name, Kind: KindAAAA, TTL: TTLUnset}}, nil
	case kindInvalid:
		return nil, &InvalidNameError{Name: name, Reason: "not a valid host name"}
	}

	types := opt.Types
	if len(types) == 0 {
		types = []Kind{KindA, KindAAAA}
	}
	types = dedupTypes(types)

	return r.resolveCore(ctx, name, types, coreOptions{
		server:      opt.Server,
		timeout:     opt.Timeout,
		noHosts:     opt.NoHosts,
		reloadHosts: opt.ReloadHosts,
		noCache:     opt.NoCache,
		recurse:     false,
	})
}

// Query resolves a single record kind, optionally chasing CNAME/DNAME
// aliases.
func (r *Resolver) Query(ctx context.Context, name string, kind Kind, opt QueryOptions) ([]Answer, error) {
	switch classify(name) {
	case kindIP4Literal:
		if kind != KindA {
			return nil, &InvalidNameError{Name: name, Reason: "cannot query a non-A record for an IPv4 literal"}
		}
		return []Answer{{Data: name, Kind: KindA, TTL: TTLUnset}}, nil
	case kindIP6Literal:
		if kind != KindAAAA {
			return nil, &InvalidNameError{Name: name, Reason: "cannot query a non-AAAA record for an IPv6 literal"}
		}
		return []Answer{{Data: name, Kind: KindAAAA, TTL: TTLUnset}}, nil
	case kindInvalid:
		return nil, &InvalidNameError{Name: name, Reason: "not a valid host name"}
	}

	return r.resolveCore(ctx, name, []Kind{kind}, coreOptions{
		server:      opt.Server,
		timeout:     opt.Timeout,
		noHosts:     opt.NoHosts,
		reloadHosts: opt.ReloadHosts,
		noCache:     opt.NoCache,
		recurse:     opt.Recurse,
	})
}

type coreOptions struct {
	server      string
	timeout     time.Duration
	noHosts     bool
	reloadHosts bool
	noCache     bool
	recurse     bool
}

// resolveCore implements steps 4-7 of §4.8 for an already-validated host
// name. The literal shortcut, name validation and type selection (steps
// 1-3) are handled by callers.
func (r *Resolver) resolveCore(ctx context.Context, name string, types []Kind, opt coreOptions) ([]Answer, error) {
	timeout := opt.timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lower := strings.ToLower(name)
	found := make(map[Kind][]Answer)
	remaining := append([]Kind(nil), types...)

	// Step 4: hosts file, unless disabled.
	if !opt.noHosts {
		entries, err := r.awaitHosts(ctx, opt.reloadHosts)
		if err != nil {
			return nil, err
		}
		remaining = r.satisfyFromHosts(entries, lower, remaining, found)
		if len(remaining) == 0 {
			return r.mergeResult(types, found), nil
		}
	}

	// Step 5: cache, unless disabled.
	if !opt.noCache {
		remaining = r.satisfyFromCache(lower, remaining, found)
		if len(remaining) == 0 {
			return r.mergeResult(types, found), nil
		}
	}

	// Step 6: query upstream for whatever's left, in parallel, under the
	// overall timeout.
	server := opt.server
	if server == "" {
		server = r.defaultServer
	}
	uri, err := upstreamURI(server)
	if err != nil {
		return nil, err
	}

	queried, err := r.queryUpstream(ctx, uri, name, remaining, opt.recurse)
	if err != nil {
		if len(found) == 0 {
			return nil, err
		}
		// Partial success: hosts/cache hits are still returned and the
		// upstream error is dropped, unless it is a timeout, which is
		// surfaced.
		if _, isTimeout := err.(*TimeoutError); isTimeout {
			return nil, err
		}
	}
	for k, v := range queried {
		found[k] = v
	}

	if len(found) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, &NoRecordError{Name: name, Kind: types[0]}
	}
	return r.mergeResult(types, found), nil
}

func (r *Resolver) awaitHosts(ctx context.Context, reload bool) (map[cacheKey]string, error) {
	select {
	case res := <-r.hosts.load(reload):
		return res.entries, nil
	case <-ctx.Done():
		return nil, &TimeoutError{}
	}
}

func (r *Resolver) satisfyFromHosts(entries map[cacheKey]string, lower string, remaining []Kind, found map[Kind][]Answer) []Kind {
	var still []Kind
	for _, k := range remaining {
		if addr, ok := entries[cacheKey{name: lower, kind: k}]; ok {
			found[k] = []Answer{{Data: addr, Kind: k, TTL: TTLUnset}}
			continue
		}
		still = append(still, k)
	}
	return still
}

func (r *Resolver) satisfyFromCache(lower string, remaining []Kind, found map[Kind][]Answer) []Kind {
	var still []Kind
	for _, k := range remaining {
		if answers, ok := r.cache.get(cacheKey{name: lower, kind: k}); ok {
			found[k] = answers
			continue
		}
		still = append(still, k)
	}
	return still
}

// queryUpstream issues one request per remaining type in parallel (or
// drives a single recursion chase when recurse is set) and returns
// whatever completes before ctx is done.
func (r *Resolver) queryUpstream(ctx context.Context, uri, name string, types []Kind, recurse bool) (map[Kind][]Answer, error) {
	if len(types) == 0 {
		return nil, nil
	}

	if recurse {
		type result struct {
			grouped map[Kind][]Answer
			err     error
		}
		ch := make(chan result, 1)
		go func() {
			grouped, err := r.mux.recurse(uri, name, types)
			ch <- result{grouped, err}
		}()
		select {
		case res := <-ch:
			return res.grouped, res.err
		case <-ctx.Done():
			return nil, &TimeoutError{Name: name}
		}
	}

	type outcome struct {
		kind    Kind
		answers []Answer
		err     error
	}
	var wg sync.WaitGroup
	ch := make(chan outcome, len(types))
	for _, k := range types {
		wg.Add(1)
		go func(k Kind) {
			defer wg.Done()
			res := <-r.mux.request(uri, name, k)
			ch <- outcome{kind: k, answers: res.answers, err: res.err}
		}(k)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	grouped := make(map[Kind][]Answer)
	var firstErr error
	remainingCount := len(types)
	for remainingCount > 0 {
		select {
		case o, ok := <-ch:
			if !ok {
				remainingCount = 0
				continue
			}
			remainingCount--
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
		case <-ctx.Done():
			if len(grouped) == 0 {
				return nil, &TimeoutError{Name: name}
			}
			return grouped, nil
		}
	}
	if len(grouped) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return grouped, nil
}

// mergeResult orders the final answer list: for each type in the caller's
// original request order, all of that type's records, then anything left
// over (§4.8 step 7, §5 ordering invariant).
func (r *Resolver) mergeResult(types []Kind, found map[Kind][]Answer) []Answer {
	var all []Answer
	for _, k := range types {
		all = append(all, found[k]...)
	}
	return orderAnswers(all, types)
}

// upstreamURI canonicalizes a caller-supplied server address into a
// udp://host:port form (§6). TCP is only ever chosen internally, on
// truncation.
func upstreamURI(server string) (string, error) {
	host, port, err := net.SplitHostPort(server)
	if err != nil {
		host = server
		port = strconv.Itoa(DefaultPort)
	}
	if host == "" {
		return "", &InvalidNameError{Name: server, Reason: "empty upstream host"}
	}
	return canonicalURI(transportUDP, net.JoinHostPort(host, port)), nil
}

// defaultResolver is the lazily-constructed module-level singleton used by
// the package-level Resolve/Query functions (Design Notes §9).
var (
	defaultResolverOnce sync.Once
	defaultResolverVal  *Resolver
)

// Default returns the package-level singleton Resolver, constructing it on
// first use.
func Default() *Resolver {
	defaultResolverOnce.Do(func() {
		defaultResolverVal = New(Options{})
	})
	return defaultResolverVal
}

// Resolve uses the default Resolver.
func Resolve(ctx context.Context, name string, opt ResolveOptions) ([]Answer, error) {
	return Default().Resolve(ctx, name, opt)
}

// Query uses the default Resolver.
func Query(ctx context.Context, name string, kind Kind, opt QueryOptions) ([]Answer, error) {
	return Default().Query(ctx, name, kind, opt)
}
