package resolv

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// hostsFile holds the parsed OS hosts database, loaded once for the
// process lifetime unless a caller asks for reload_hosts (§4.2).
type hostsFile struct {
	mu      sync.Mutex
	loaded  bool
	entries map[cacheKey]string
	group   singleflight.Group
	path    string
}

func newHostsFile() *hostsFile {
	return &hostsFile{path: defaultHostsPath(), entries: map[cacheKey]string{}}
}

func defaultHostsPath() string {
	if runtime.GOOS == "windows" {
		return `C:\Windows\system32\drivers\etc\hosts`
	}
	return "/etc/hosts"
}

// hostsResult is delivered once the (possibly asynchronous) hosts load
// completes.
type hostsResult struct {
	entries map[cacheKey]string
}

// load triggers a one-shot background read of the hosts file (or returns
// the already-cached map immediately if reload is false and a previous
// load completed) and reports the result on the returned channel. Callers
// typically select on this alongside their overall timeout context, since
// the read itself is the "hosts file read" suspension point from §5.
//
// Concurrent loads (first-ever load, or several callers requesting
// reload_hosts at once) are collapsed into a single disk read via
// singleflight, the way the rest of the pack gates one-shot shared
// initialization.
func (h *hostsFile) load(reload bool) <-chan hostsResult {
	ch := make(chan hostsResult, 1)
	if !reload {
		h.mu.Lock()
		if h.loaded {
			entries := h.entries
			h.mu.Unlock()
			ch <- hostsResult{entries: entries}
			return ch
		}
		h.mu.Unlock()
	}
	go func() {
		v, _, _ := h.group.Do("load", func() (interface{}, error) {
			entries := loadHostsFile(h.path)
			Log.WithFields(logrus.Fields{"path": h.path, "entries": len(entries)}).Debug("loaded hosts file")
			h.mu.Lock()
			h.entries = entries
			h.loaded = true
			h.mu.Unlock()
			return entries, nil
		})
		ch <- hostsResult{entries: v.(map[cacheKey]string)}
	}()
	return ch
}

// loadHostsFile reads and parses the hosts file at path (§4.2 / §6). A
// missing or unreadable file yields an empty map, not an error; "localhost"
// is always present regardless of file contents.
func loadHostsFile(path string) map[cacheKey]string {
	entries := make(map[cacheKey]string)

	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if idx := strings.IndexByte(line, '#'); idx >= 0 {
				line = line[:idx]
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			kind, addr, ok := parseHostsAddress(fields[0])
			if !ok {
				continue
			}
			for _, name := range fields[1:] {
				name = strings.ToLower(strings.TrimSuffix(name, "."))
				if !validHostname(name) {
					continue
				}
				entries[cacheKey{name: name, kind: kind}] = addr
			}
		}
	}

	ensureLocalhost(entries)
	return entries
}

func parseHostsAddress(field string) (Kind, string, bool) {
	switch classify(field) {
	case kindIP4Literal:
		return KindA, field, true
	case kindIP6Literal:
		return KindAAAA, field, true
	default:
		return 0, "", false
	}
}

func ensureLocalhost(entries map[cacheKey]string) {
	if _, ok := entries[cacheKey{name: "localhost", kind: KindA}]; !ok {
		entries[cacheKey{name: "localhost", kind: KindA}] = "127.0.0.1"
	}
	if _, ok := entries[cacheKey{name: "localhost", kind: KindAAAA}]; !ok {
		entries[cacheKey{name: "localhost", kind: KindAAAA}] = "::1"
	}
}
