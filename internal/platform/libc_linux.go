//go:build linux

package platform

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// lddPath is the one and only path ever exec'd for libc probing. PATH is
// never trusted: a hostile or merely unusual PATH must not change which
// binary we run.
const lddPath = "/usr/bin/ldd"

var muslLoaderGlobs = []string{
	"/lib/ld-musl-*.so.1",
	"/usr/lib/ld-musl-*.so.1",
}

// detectLibc identifies the C library backing this process at runtime: by
// invoking /usr/bin/ldd --version and scanning its first 256 bytes of
// output for "musl" or "glibc"/"gnu", and failing that, by probing for a
// musl dynamic loader on disk. It defaults to glibc rather than trusting
// PATH for a fallback ldd.
func detectLibc() Libc {
	if libc, ok := detectLibcFromLdd(); ok {
		return libc
	}
	if hasMuslLoader() {
		return LibcMusl
	}
	return LibcGlibc
}

func detectLibcFromLdd() (Libc, bool) {
	cmd := exec.Command(lddPath, "--version")
	out, _ := cmd.CombinedOutput()
	if len(out) == 0 {
		return 0, false
	}
	if len(out) > 256 {
		out = out[:256]
	}
	lower := strings.ToLower(string(out))
	switch {
	case strings.Contains(lower, "musl"):
		return LibcMusl, true
	case strings.Contains(lower, "glibc"), strings.Contains(lower, "gnu"):
		return LibcGlibc, true
	default:
		return 0, false
	}
}

func hasMuslLoader() bool {
	for _, pattern := range muslLoaderGlobs {
		matches, err := filepath.Glob(pattern)
		if err == nil && len(matches) > 0 {
			return true
		}
	}
	return false
}
