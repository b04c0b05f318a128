/*
Package resolv implements an asynchronous DNS stub resolver.

Given a host name and a set of desired record types, Resolve and Query
return answer records sourced, in order of preference, from the operating
system's hosts file, an in-memory TTL cache, or a recursive DNS server
reached over UDP with fallback to TCP on truncation. The resolver does
not recurse itself; it always asks an upstream recursive server.

Multiplexing

Many concurrent lookups share a small number of upstream server
connections. The multiplexer state (the pending-request table, the
per-server connection table, the id counter) is owned by a single
goroutine inside a Mux, which also reads the 1 Hz idle-sweep ticker.
Every other goroutine - one reader per server connection, one per
in-progress dial, callers issuing requests - communicates with it only by
sending typed events over a channel. This gives the resolver the
semantics of a single-threaded event loop without needing one of its
own. The answer cache is separate: it has its own lock and is read
directly by callers.

Usage

	r := resolv.New(resolv.Options{})
	defer r.Close()

	answers, err := r.Resolve(ctx, "example.com", resolv.ResolveOptions{})
	if err != nil {
		log.Fatal(err)
	}
	for _, a := range answers {
		fmt.Println(a.Data, a.Kind, a.TTL)
	}

The package-level Resolve and Query functions use a lazily-constructed
default Resolver for callers that don't need more than one.
*/
package resolv
