package elfnote

import (
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/fuse"
)

// ModifyCallback mutates the whole input buffer in place before the note
// rewrite — used for the fuse flip, which must happen before the note
// segment is recomputed so its content reflects the flipped byte.
type ModifyCallback func(buf []byte) bool

// ReuseMultiPTNote rewrites an ELF's trailing PT_NOTE segment in place,
// preserving the program header table's file offset. It is used for
// statically linked glibc stubs and for binpress's pressed_data note,
// where relocating the PHT or extending PT_LOAD for a static binary
// would force the loader to map tens of megabytes and crash.
//
// The owners in newNotes are the set of note owners this call is about to write;
// any existing note whose owner is not in that set is preserved ahead of
// the new notes (the dedup law: same owner is replaced, not duplicated).
func ReuseMultiPTNote(input []byte, newNotes []NoteEntry, modify ModifyCallback) ([]byte, error) {
	op := "elfnote.ReuseMultiPTNote"

	buf := make([]byte, len(input))
	copy(buf, input)

	if modify != nil {
		modify(buf)
	}

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
		return nil, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("no existing PT_NOTE segment to reuse"))
	}
	existingNote := phs[noteIdx]

	existingEntries, err := DecodeNotes(sliceOrEmpty(buf, existingNote.Offset, existingNote.Filesz))
	if err != nil {
		return nil, err
	}

	written := make(map[string]bool, len(newNotes))
	for _, n := range newNotes {
		written[n.Owner] = true
	}
	var preserved []NoteEntry
	for _, e := range existingEntries {
		if !written[e.Owner] {
			preserved = append(preserved, e)
		}
	}
	combinedEntries := append(preserved, newNotes...)
	combinedNotes := EncodeNotes(combinedEntries)

	dynamic := isDynamic(phs)
	writingPressedData := written["pressed_data"]

	notesFileOffset := uint64(len(buf))

	var noteVaddr uint64
	loadIdx := -1
	var gap uint64
	if dynamic && !writingPressedData {
		li, ok := indexOfLastLoad(phs)
		if !ok {
			return nil, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("dynamic host has no PT_LOAD to extend"))
		}
		loadIdx = li
		load := phs[li]
		gap = notesFileOffset - (load.Offset + load.Filesz)
		noteVaddr = load.Vaddr + load.Filesz + gap
	} else {
		noteVaddr = staticNoteBase + alignUp(uint64(len(buf)), notePageAlign)
	}

	if loadIdx >= 0 {
		phs[loadIdx].Filesz += gap + uint64(len(combinedNotes))
		phs[loadIdx].Memsz += gap + uint64(len(combinedNotes))
	}

	phs[noteIdx] = programHeader{
		Type:   ptNote,
		Flags:  pfR,
		Offset: notesFileOffset,
		Vaddr:  noteVaddr,
		Paddr:  noteVaddr,
		Filesz: uint64(len(combinedNotes)),
		Memsz:  uint64(len(combinedNotes)),
		Align:  4,
	}

	out := make([]byte, 0, len(buf)+len(combinedNotes))
	out = append(out, buf...)
	rewritePHT(out, hdr, phs)
	out = append(out, combinedNotes...)

	return out, nil
}

func indexOfLastLoad(phs []programHeader) (int, bool) {
	idx := -1
	for i, p := range phs {
		if p.Type != ptLoad {
			continue
		}
		if idx < 0 || p.Offset+p.Filesz > phs[idx].Offset+phs[idx].Filesz {
			idx = i
		}
	}
	return idx, idx >= 0
}

func sliceOrEmpty(b []byte, off, size uint64) []byte {
	if off+size > uint64(len(b)) {
		return nil
	}
	return b[off : off+size]
}

func rewritePHT(buf []byte, hdr elfHeader64, phs []programHeader) {
	for i, p := range phs {
		off := int(hdr.Phoff) + i*int(hdr.Phentsize)
		p.encode(buf[off : off+phEntrySize64])
	}
}

// FlipFuseInBuffer is the ModifyCallback most callers pass: it flips the
// fuse sentinel, if present, anywhere in the buffer.
func FlipFuseInBuffer(buf []byte) bool {
	return fuse.FlipInBuffer(buf)
}
