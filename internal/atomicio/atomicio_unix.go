//go:build !windows

package atomicio

import "golang.org/x/sys/unix"

// chmodExecutable sets the temp file's mode to 0755 before it is renamed
// into place, so the host loader (or exec) can run it immediately.
func chmodExecutable(path string) error {
	return unix.Chmod(path, 0o755)
}

// renameInto renames tmp to output. On POSIX this is a single atomic
// syscall: concurrent writers racing on the same output path each use
// their own .tmp.<pid> name, and the last rename wins cleanly.
func renameInto(tmp, output string) error {
	return unix.Rename(tmp, output)
}
