// Package atomicio implements the shared atomic write workflow used by
// every mutating binject/binpress operation: write to a PID-suffixed temp
// path, verify it landed, chmod it, then rename it into place.
package atomicio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

// Writer populates the file at tmpPath. It must fully flush and close
// anything it opens before returning.
type Writer func(tmpPath string) error

// WriteFile runs the atomic write workflow against output:
//
//  1. tmp := output + ".tmp." + pid
//  2. mkdir -p the parent of tmp
//  3. invoke write(tmp)
//  4. verify tmp exists and is non-empty
//  5. chmod tmp 0755 (Unix only)
//  6. rename tmp -> output
//
// On any failure, tmp is removed before the error is returned. On Windows
// the final rename is preceded by removing any existing destination file,
// which is not atomic: concurrent writers to the same output path on
// Windows are unsupported.
func WriteFile(output string, write Writer) error {
	const op = "atomicio.WriteFile"

	tmp := fmt.Sprintf("%s.tmp.%d", output, os.Getpid())

	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return binerr.New(binerr.IOError, op, tmp, err)
	}

	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return binerr.New(binerr.WriteFailed, op, tmp, err)
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		os.Remove(tmp)
		if err == nil {
			err = fmt.Errorf("write produced an empty file")
		}
		return binerr.New(binerr.WriteFailed, op, tmp, err)
	}

	if err := chmodExecutable(tmp); err != nil {
		os.Remove(tmp)
		return binerr.New(binerr.IOError, op, tmp, err)
	}

	if err := renameInto(tmp, output); err != nil {
		os.Remove(tmp)
		return binerr.New(binerr.IOError, op, output, err)
	}

	return nil
}

// CleanupStale removes .tmp.<pid> leftovers from crashed prior runs that
// are older than maxAge. It is best-effort: errors walking or removing
// individual entries are ignored, since a half-visible temp directory
// should never block a fresh invocation.
func CleanupStale(dir string, maxAge time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isStaleTempName(name) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		os.Remove(filepath.Join(dir, name))
	}
}

func isStaleTempName(name string) bool {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return false
	}
	const suffix = ".tmp."
	return i >= len(suffix) && name[i-len(suffix):i] == suffix
}
