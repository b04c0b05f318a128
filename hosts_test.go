package resolv

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeHostsFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadHostsFile(t *testing.T) {
	path := writeHostsFile(t, `
# comment
127.0.0.1   foo.example.com
::1         foo.example.com bar.example.com
192.168.1.1 TRAILING.example.com.
`)
	entries := loadHostsFile(path)

	require.Equal(t, "127.0.0.1", entries[cacheKey{name: "foo.example.com", kind: KindA}])
	require.Equal(t, "::1", entries[cacheKey{name: "foo.example.com", kind: KindAAAA}])
	require.Equal(t, "::1", entries[cacheKey{name: "bar.example.com", kind: KindAAAA}])
	require.Equal(t, "192.168.1.1", entries[cacheKey{name: "trailing.example.com", kind: KindA}])
}

func TestLoadHostsFileAlwaysHasLocalhost(t *testing.T) {
	entries := loadHostsFile(filepath.Join(t.TempDir(), "missing"))
	require.Equal(t, "127.0.0.1", entries[cacheKey{name: "localhost", kind: KindA}])
	require.Equal(t, "::1", entries[cacheKey{name: "localhost", kind: KindAAAA}])
}

func TestLoadHostsFileLocalhostOverridable(t *testing.T) {
	path := writeHostsFile(t, "10.0.0.1 localhost\n")
	entries := loadHostsFile(path)
	require.Equal(t, "10.0.0.1", entries[cacheKey{name: "localhost", kind: KindA}])
	// AAAA wasn't overridden, so the default still applies.
	require.Equal(t, "::1", entries[cacheKey{name: "localhost", kind: KindAAAA}])
}

func TestHostsFileLoadCachesUntilReload(t *testing.T) {
	path := writeHostsFile(t, "127.0.0.1 first.example.com\n")
	h := &hostsFile{path: path, entries: map[cacheKey]string{}}

	res := <-h.load(false)
	require.Contains(t, res.entries, cacheKey{name: "first.example.com", kind: KindA})

	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 second.example.com\n"), 0o644))

	res = <-h.load(false)
	require.Contains(t, res.entries, cacheKey{name: "first.example.com", kind: KindA})
	require.NotContains(t, res.entries, cacheKey{name: "second.example.com", kind: KindA})

	res = <-h.load(true)
	require.Contains(t, res.entries, cacheKey{name: "second.example.com", kind: KindA})
}

func TestHostsFileConcurrentReloadsAllReturnEntries(t *testing.T) {
	path := writeHostsFile(t, "127.0.0.1 concurrent.example.com\n")
	h := &hostsFile{path: path, entries: map[cacheKey]string{}}

	results := make([]<-chan hostsResult, 8)
	for i := range results {
		results[i] = h.load(true)
	}
	for _, ch := range results {
		select {
		case res := <-ch:
			require.Contains(t, res.entries, cacheKey{name: "concurrent.example.com", kind: KindA})
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for hosts load")
		}
	}
}
