package resolv

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML shape accepted by LoadConfig and the resolvdig
// command, mirroring how the pack's own tools keep resolver settings out of
// code (toml tags for the handful of fields that don't read naturally as
// Go identifiers).
type fileConfig struct {
	Server            string `toml:"server"`
	TimeoutMS         int    `toml:"timeout-ms"`
	IdleTimeoutMS     int    `toml:"idle-timeout-ms"`
	CacheSweepSeconds int    `toml:"cache-sweep-seconds"`
	NoHosts           bool   `toml:"no-hosts"`
	NoCache           bool   `toml:"no-cache"`
	LogLevel          string `toml:"log-level"`
}

// LoadConfig reads a TOML file describing default Resolver options. Fields
// left unset in the file keep New's zero-value defaults.
func LoadConfig(path string) (Options, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Options{}, fmt.Errorf("resolv: reading config %q: %w", path, err)
	}
	return fc.toOptions(), nil
}

// DecodeConfig parses TOML config text already in memory, for embedders
// that keep configuration outside the filesystem.
func DecodeConfig(data string) (Options, error) {
	var fc fileConfig
	if _, err := toml.Decode(data, &fc); err != nil {
		return Options{}, fmt.Errorf("resolv: decoding config: %w", err)
	}
	return fc.toOptions(), nil
}

// LoadDefaultResolveOptions reads the per-call defaults (timeout, no-hosts,
// no-cache) out of the same TOML file LoadConfig reads the Resolver-level
// settings from.
func LoadDefaultResolveOptions(path string) (ResolveOptions, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return ResolveOptions{}, fmt.Errorf("resolv: reading config %q: %w", path, err)
	}
	return fc.defaultResolveOptions(), nil
}

func (fc fileConfig) toOptions() Options {
	opt := Options{Server: fc.Server}
	if fc.IdleTimeoutMS > 0 {
		opt.IdleTimeout = time.Duration(fc.IdleTimeoutMS) * time.Millisecond
	}
	if fc.CacheSweepSeconds > 0 {
		opt.CacheSweepInterval = time.Duration(fc.CacheSweepSeconds) * time.Second
	}
	return opt
}

// defaultResolveOptions turns the parts of fileConfig that only apply to
// individual calls, not to the Resolver itself, into a ResolveOptions
// template callers can start from.
func (fc fileConfig) defaultResolveOptions() ResolveOptions {
	var ro ResolveOptions
	if fc.TimeoutMS > 0 {
		ro.Timeout = time.Duration(fc.TimeoutMS) * time.Millisecond
	}
	ro.NoHosts = fc.NoHosts
	ro.NoCache = fc.NoCache
	return ro
}
