// Package fuse flips the single-byte sentinel that tells a sea binary's
// runtime bootstrap whether the embedded resource is present.
package fuse

import "bytes"

// Sentinel is the unflipped form of the fuse string. Its final byte is
// the only byte this package ever mutates.
const Sentinel = "NODE_SEA_FUSE_fce680ab2cc467b6e072b8b5df1996b2:0"

// Section is one named byte buffer a section-form flip can mutate.
type Section struct {
	Name string
	Data []byte
}

// FlipInSections scans sections in order and flips the first occurrence
// of the unflipped sentinel it finds, overwriting only the sentinel's
// last byte. It reports whether a flip happened; not finding the
// sentinel anywhere is not an error.
func FlipInSections(sections []Section) bool {
	needle := []byte(Sentinel)
	for i := range sections {
		idx := bytes.Index(sections[i].Data, needle)
		if idx < 0 {
			continue
		}
		lastByte := idx + len(needle) - 1
		sections[i].Data[lastByte] = '1'
		return true
	}
	return false
}

// FlipInBuffer performs the same single-byte mutation directly against a
// whole binary-in-memory buffer, for the PT_NOTE raw writer which never
// materializes sections as a separate slice. Multiple matches would
// indicate a malformed input; this function flips only the first.
func FlipInBuffer(buf []byte) bool {
	needle := []byte(Sentinel)
	idx := bytes.Index(buf, needle)
	if idx < 0 {
		return false
	}
	buf[idx+len(needle)-1] = '1'
	return true
}

// ShouldFlip is the fuse policy for installing a resource: it refuses to
// flip when there is nothing to install, and treats an already-present
// resource as an idempotent no-op rather than a double-install. The
// AddResource implementations in internal/binfile do not call it; they
// call FlipInBuffer directly.
func ShouldFlip(blob []byte, resourceAlreadyExists bool) bool {
	if len(blob) == 0 {
		return false
	}
	if resourceAlreadyExists {
		return false
	}
	return true
}
