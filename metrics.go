package resolv

import (
	"expvar"
	"fmt"
)

// getVarInt returns the process-wide *expvar.Int for name, creating it if
// this is the first call with that name. Used for per-cache and
// per-connection counters, published under the resolv.* namespace.
func getVarInt(parts ...string) *expvar.Int {
	name := "resolv"
	for _, p := range parts {
		name += "." + p
	}
	if v := expvar.Get(name); v != nil {
		if i, ok := v.(*expvar.Int); ok {
			return i
		}
		panic(fmt.Sprintf("resolv: expvar %q already registered with a different type", name))
	}
	return expvar.NewInt(name)
}

// connMetrics tracks activity on one server connection.
type connMetrics struct {
	queries   *expvar.Int
	responses *expvar.Int
	errors    *expvar.Int
}

func newConnMetrics(uri string) connMetrics {
	return connMetrics{
		queries:   getVarInt("conn", uri, "queries"),
		responses: getVarInt("conn", uri, "responses"),
		errors:    getVarInt("conn", uri, "errors"),
	}
}
