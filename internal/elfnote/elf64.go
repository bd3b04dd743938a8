package elfnote

import (
	"encoding/binary"
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

const (
	elfHeaderSize64 = 64
	phEntrySize64   = 56

	ptLoad    uint32 = 1
	ptDynamic uint32 = 2
	ptInterp  uint32 = 3
	ptNote    uint32 = 4

	pfR uint32 = 4

	notePageAlign = 0x1000
	staticNoteBase = 0x10000000

	// maxPHTSize bounds how much of the program header table we will
	// ever load into memory, mirroring the marker scanner's cap: a PHT
	// that doesn't fit is itself a sign of a malformed or hostile file.
	maxPHTSize = 4096
)

// programHeader is an in-memory Elf64_Phdr.
type programHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func decodeProgramHeader(b []byte) programHeader {
	return programHeader{
		Type:   binary.LittleEndian.Uint32(b[0:4]),
		Flags:  binary.LittleEndian.Uint32(b[4:8]),
		Offset: binary.LittleEndian.Uint64(b[8:16]),
		Vaddr:  binary.LittleEndian.Uint64(b[16:24]),
		Paddr:  binary.LittleEndian.Uint64(b[24:32]),
		Filesz: binary.LittleEndian.Uint64(b[32:40]),
		Memsz:  binary.LittleEndian.Uint64(b[40:48]),
		Align:  binary.LittleEndian.Uint64(b[48:56]),
	}
}

func (p programHeader) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], p.Type)
	binary.LittleEndian.PutUint32(dst[4:8], p.Flags)
	binary.LittleEndian.PutUint64(dst[8:16], p.Offset)
	binary.LittleEndian.PutUint64(dst[16:24], p.Vaddr)
	binary.LittleEndian.PutUint64(dst[24:32], p.Paddr)
	binary.LittleEndian.PutUint64(dst[32:40], p.Filesz)
	binary.LittleEndian.PutUint64(dst[40:48], p.Memsz)
	binary.LittleEndian.PutUint64(dst[48:56], p.Align)
}

// elfHeader64 is the subset of Elf64_Ehdr this package needs to read and
// rewrite the program header table.
type elfHeader64 struct {
	Phoff     uint64
	Phentsize uint16
	Phnum     uint16
}

func parseELFHeader64(b []byte) (elfHeader64, error) {
	op := "elfnote.parseELFHeader64"
	if len(b) < elfHeaderSize64 {
		return elfHeader64{}, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("file too short for ELF header"))
	}
	if b[0] != 0x7F || b[1] != 'E' || b[2] != 'L' || b[3] != 'F' {
		return elfHeader64{}, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("bad ELF magic"))
	}
	if b[4] != 2 {
		return elfHeader64{}, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("not a 64-bit ELF"))
	}
	if b[5] != 1 {
		return elfHeader64{}, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("not a little-endian ELF"))
	}

	h := elfHeader64{
		Phoff:     binary.LittleEndian.Uint64(b[32:40]),
		Phentsize: binary.LittleEndian.Uint16(b[54:56]),
		Phnum:     binary.LittleEndian.Uint16(b[56:58]),
	}
	if h.Phnum == 0 {
		return elfHeader64{}, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("no program headers"))
	}
	if int(h.Phentsize) != phEntrySize64 {
		return elfHeader64{}, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("unexpected phentsize %d", h.Phentsize))
	}
	return h, nil
}

func readProgramHeaders(b []byte, h elfHeader64) ([]programHeader, error) {
	op := "elfnote.readProgramHeaders"
	tableSize := int(h.Phentsize) * int(h.Phnum)
	if tableSize <= 0 || tableSize > maxPHTSize {
		return nil, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("program header table size %d exceeds %d-byte cap", tableSize, maxPHTSize))
	}
	end := int(h.Phoff) + tableSize
	if end > len(b) || int(h.Phoff) < 0 {
		return nil, binerr.New(binerr.InvalidElf, op, "", fmt.Errorf("program header table out of bounds"))
	}
	phs := make([]programHeader, h.Phnum)
	for i := 0; i < int(h.Phnum); i++ {
		off := int(h.Phoff) + i*int(h.Phentsize)
		phs[i] = decodeProgramHeader(b[off : off+phEntrySize64])
	}
	return phs, nil
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// isDynamic reports whether the host is dynamically linked, using only
// the presence of PT_INTERP — a static-PIE binary with PT_DYNAMIC but no
// PT_INTERP counts as static.
func isDynamic(phs []programHeader) bool {
	for _, p := range phs {
		if p.Type == ptInterp {
			return true
		}
	}
	return false
}

func lastLoad(phs []programHeader) (programHeader, bool) {
	var best programHeader
	found := false
	for _, p := range phs {
		if p.Type != ptLoad {
			continue
		}
		if !found || p.Offset+p.Filesz > best.Offset+best.Filesz {
			best = p
			found = true
		}
	}
	return best, found
}

func lastNoteIndex(phs []programHeader) int {
	idx := -1
	for i, p := range phs {
		if p.Type != ptNote {
			continue
		}
		if idx < 0 || p.Offset > phs[idx].Offset {
			idx = i
		}
	}
	return idx
}
