package elfnote

import (
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

// RemoveOwner drops every note entry owned by owner from the last
// PT_NOTE segment, re-encodes whatever remains, and truncates the file
// back to the note segment's own file offset plus the new, smaller note
// block. When the program header table lies after the note block (the
// layout WriteWithNotes produces), the file keeps its length instead:
// the freed note bytes are zero-filled and the table stays where it is.
// It never shrinks a PT_LOAD that ReuseMultiPTNote previously
// extended to cover the notes — leaving a few extra read-only bytes
// mapped is harmless, and recovering the exact pre-extension boundary
// would require state this package does not keep between calls.
func RemoveOwner(input []byte, owner string) ([]byte, error) {
	op := "elfnote.RemoveOwner"

	buf := make([]byte, len(input))
	copy(buf, input)

	hdr, err := parseELFHeader64(buf)
	if err != nil {
		return nil, err
	}
	phs, err := readProgramHeaders(buf, hdr)
	if err != nil {
		return nil, err
	}

	noteIdx := lastNoteIndex(phs)
	if noteIdx < 0 {
		return nil, binerr.New(binerr.ResourceNotFound, op, "", fmt.Errorf("no PT_NOTE segment present"))
	}
	note := phs[noteIdx]

	existing, err := DecodeNotes(sliceOrEmpty(buf, note.Offset, note.Filesz))
	if err != nil {
		return nil, err
	}
	if !Exists(existing, owner) {
		return nil, binerr.New(binerr.ResourceNotFound, op, "", fmt.Errorf("no note owned by %s", owner))
	}

	remaining := RemoveAll(existing, owner)
	newNotes := EncodeNotes(remaining)

	phs[noteIdx].Filesz = uint64(len(newNotes))
	phs[noteIdx].Memsz = uint64(len(newNotes))

	tailStart := note.Offset + note.Filesz
	out := make([]byte, note.Offset, note.Offset+uint64(len(newNotes)))
	copy(out, buf[:note.Offset])
	out = append(out, newNotes...)
	if hdr.Phoff >= tailStart && uint64(len(newNotes)) <= note.Filesz {
		out = append(out, make([]byte, note.Filesz-uint64(len(newNotes)))...)
		out = append(out, buf[tailStart:]...)
	}
	rewritePHT(out, hdr, phs)

	return out, nil
}
