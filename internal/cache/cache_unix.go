//go:build !windows

package cache

import (
	"golang.org/x/sys/unix"
)

// verifyExecutable opens path with O_NOFOLLOW so a symlinked cache slot
// can never be followed into attacker-controlled territory, fstats the
// resulting descriptor (not the path, which could change underneath us),
// and checks the size and execute bits against the open fd's inode. This
// closes the classic check-then-open race; the remaining open-to-exec gap
// is documented, not eliminated (see spec's lookup correctness note — full
// TOCTOU mitigation would need fexecve, out of scope here).
func verifyExecutable(path string, expectedSize int64) (bool, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW, 0)
	if err != nil {
		return false, err
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false, err
	}

	if st.Size != expectedSize {
		return false, errSizeMismatch
	}
	if st.Mode&0o111 == 0 {
		return false, errNotExecutable
	}
	return true, nil
}
