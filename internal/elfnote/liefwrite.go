package elfnote

import (
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

// WriteWithNotes is the new-segment writer used when the host has no
// PT_NOTE segment for ReuseMultiPTNote to reuse (internal/binfile picks it
// then, whether the host is static or dynamic): ReuseMultiPTNote's
// fixed-PHT-offset invariant cannot be honored because a fresh PT_NOTE
// (and its matching PT_LOAD) must be inserted into the table itself.
//
// The reference design (spec.md §4.11.2) drives an external
// LIEF-equivalent builder through three phases against a live section
// table. This package never materializes ELF section headers — the
// tools that consume a SEA binary locate notes by walking program
// headers, not sections — so phase 3's section-level ALLOC-flag fixup
// has no counterpart here; its job (never leave a zero-vaddr allocated
// note unmapped) is instead enforced directly by phase 1 assigning every
// note segment a real virtual address before anything is serialized.
func WriteWithNotes(input []byte, newNotes []NoteEntry) ([]byte, error) {
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

	notesBytes := EncodeNotes(newNotes)
	notesFileOffset := uint64(len(buf))

	notePH := programHeader{
		Type:   ptNote,
		Flags:  pfR,
		Offset: notesFileOffset,
		Filesz: uint64(len(notesBytes)),
		Memsz:  uint64(len(notesBytes)),
		Align:  4,
		Vaddr:  0, // assigned by fixNoteSegmentVaddrs below
	}
	phs = append(phs, notePH)
	noteIdx := len(phs) - 1

	phs = fixNoteSegmentVaddrs(phs)
	phs = addMatchingLoadForNotes(phs, noteIdx)

	return serializeWithGrownPHT(buf, hdr, phs, notesBytes)
}

// fixNoteSegmentVaddrs assigns a page-aligned virtual address above every
// loaded segment to any PT_NOTE whose vaddr is still zero.
func fixNoteSegmentVaddrs(phs []programHeader) []programHeader {
	var cursor uint64
	for _, p := range phs {
		if p.Type != ptLoad {
			continue
		}
		if end := p.Vaddr + p.Memsz; end > cursor {
			cursor = end
		}
	}
	cursor = alignUp(cursor, notePageAlign)

	for i := range phs {
		if phs[i].Type != ptNote || phs[i].Vaddr != 0 {
			continue
		}
		phs[i].Vaddr = cursor
		phs[i].Paddr = cursor
		cursor = alignUp(cursor+phs[i].Memsz, notePageAlign)
	}
	return phs
}

// addMatchingLoadForNotes appends a read-only PT_LOAD covering the same
// file region as the note segment at noteIdx, page-aligned, so the
// kernel actually maps it (a PT_NOTE entry alone is not mapped).
func addMatchingLoadForNotes(phs []programHeader, noteIdx int) []programHeader {
	note := phs[noteIdx]
	fileStart := note.Offset &^ (notePageAlign - 1)
	fileEnd := alignUp(note.Offset+note.Filesz, notePageAlign)
	vaddrStart := note.Vaddr &^ (notePageAlign - 1)

	load := programHeader{
		Type:   ptLoad,
		Flags:  pfR,
		Offset: fileStart,
		Vaddr:  vaddrStart,
		Paddr:  vaddrStart,
		Filesz: fileEnd - fileStart,
		Memsz:  fileEnd - fileStart,
		Align:  notePageAlign,
	}
	return append(phs, load)
}

// serializeWithGrownPHT writes a new ELF image with a relocated,
// larger program header table (appended after a pointer fixup), the
// original content, and the note bytes — used only by WriteWithNotes,
// which (unlike ReuseMultiPTNote) moves the PHT because the grown table
// no longer fits at its original offset.
func serializeWithGrownPHT(buf []byte, hdr elfHeader64, phs []programHeader, notesBytes []byte) ([]byte, error) {
	op := "elfnote.serializeWithGrownPHT"
	if len(phs) > 0xFFFF {
		return nil, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("too many program headers: %d", len(phs)))
	}

	newPhoff := uint64(len(buf)) + uint64(len(notesBytes))
	phtBytes := make([]byte, len(phs)*phEntrySize64)
	for i, p := range phs {
		p.encode(phtBytes[i*phEntrySize64 : (i+1)*phEntrySize64])
	}

	out := make([]byte, 0, len(buf)+len(notesBytes)+len(phtBytes))
	out = append(out, buf...)
	out = append(out, notesBytes...)
	out = append(out, phtBytes...)

	writeHeaderPhoffAndCount(out, newPhoff, uint16(len(phs)))
	return out, nil
}

func writeHeaderPhoffAndCount(buf []byte, phoff uint64, phnum uint16) {
	putUint64LE(buf[32:40], phoff)
	putUint16LE(buf[56:58], phnum)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
