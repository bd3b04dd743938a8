// Package elfnote implements the two ELF PT_NOTE writers: a raw
// reuse-in-place writer that never moves the program header table, and a
// new-segment writer for dynamically linked hosts that need their notes
// reachable via dl_iterate_phdr.
package elfnote

import (
	"encoding/binary"
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

// NoteEntry is one ELF note record: an owner name and its descriptor
// bytes. type is always 0 for the custom notes this package writes.
type NoteEntry struct {
	Owner string
	Data  []byte
}

func align4(n int) int { return (n + 3) &^ 3 }

// EncodeNotes concatenates entries into the on-disk note record format:
// namesz, descsz, type(=0), name padded to 4, desc padded to 4.
func EncodeNotes(entries []NoteEntry) []byte {
	var out []byte
	for _, e := range entries {
		name := append([]byte(e.Owner), 0)
		namesz := len(name)
		descsz := len(e.Data)

		hdr := make([]byte, 12)
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(namesz))
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(descsz))
		binary.LittleEndian.PutUint32(hdr[8:12], 0)
		out = append(out, hdr...)

		padded := make([]byte, align4(namesz))
		copy(padded, name)
		out = append(out, padded...)

		paddedDesc := make([]byte, align4(descsz))
		copy(paddedDesc, e.Data)
		out = append(out, paddedDesc...)
	}
	return out
}

// DecodeNotes parses a PT_NOTE segment's raw content back into entries.
// Malformed trailing bytes (shorter than a full header) are ignored, not
// fatal: a truncated note list is not this package's problem to repair.
func DecodeNotes(b []byte) ([]NoteEntry, error) {
	var entries []NoteEntry
	pos := 0
	for pos+12 <= len(b) {
		namesz := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
		descsz := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		pos += 12

		namePadded := align4(namesz)
		if pos+namePadded > len(b) || namesz < 0 {
			return entries, binerr.New(binerr.InvalidElf, "elfnote.DecodeNotes", "", fmt.Errorf("truncated note name"))
		}
		name := b[pos : pos+namesz]
		owner := trimNUL(name)
		pos += namePadded

		descPadded := align4(descsz)
		if pos+descPadded > len(b) || descsz < 0 {
			return entries, binerr.New(binerr.InvalidElf, "elfnote.DecodeNotes", "", fmt.Errorf("truncated note desc"))
		}
		data := make([]byte, descsz)
		copy(data, b[pos:pos+descsz])
		pos += descPadded

		entries = append(entries, NoteEntry{Owner: owner, Data: data})
	}
	return entries, nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Exists reports whether any entry in entries has the given owner.
func Exists(entries []NoteEntry, owner string) bool {
	for _, e := range entries {
		if e.Owner == owner {
			return true
		}
	}
	return false
}

// RemoveAll returns entries with every record owned by owner dropped.
func RemoveAll(entries []NoteEntry, owner string) []NoteEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Owner != owner {
			out = append(out, e)
		}
	}
	return out
}

// CreateAndAdd appends a new note record for owner, replacing none.
func CreateAndAdd(entries []NoteEntry, owner string, data []byte) []NoteEntry {
	return append(entries, NoteEntry{Owner: owner, Data: data})
}

// ReplaceOrAdd removes any existing records for owner, then appends one
// fresh record with data — the dedup law C11 relies on to avoid
// accumulating stale copies across repeated injections.
func ReplaceOrAdd(entries []NoteEntry, owner string, data []byte) []NoteEntry {
	return CreateAndAdd(RemoveAll(entries, owner), owner, data)
}
