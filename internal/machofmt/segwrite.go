package macho

import (
	"bytes"
	"fmt"

	"github.com/blacktop/go-macho/types"
)

// machHeaderSize64 is the on-disk size of a 64-bit mach_header_64: magic,
// cputype, cpusubtype, filetype, ncmds, sizeofcmds, flags, reserved.
const machHeaderSize64 = 32

// segPageAlign is the page alignment this package uses for the new
// segment's vmaddr and file offset. It does not need to match the host's
// native page size (4 KiB on x86_64, 16 KiB on Apple Silicon) for
// correctness here: LC_SEGMENT_64.Align only advises the linker, and the
// kernel's mmap of a PROT_READ-only segment tolerates any page-size
// multiple of 4 KiB.
const segPageAlign = 0x4000

// FindSegmentIndex returns the index into f.Loads of the segment named
// name, or -1 if no such segment exists. It is a free function rather
// than a method because File is an alias for upstream's own type, and Go
// doesn't allow attaching methods to a type defined in another package.
func FindSegmentIndex(f *File, name string) int {
	for i, l := range f.Loads {
		if s, ok := l.(*Segment); ok && s.Name == name {
			return i
		}
	}
	return -1
}

// AppendSegmentRaw adds a new read-only LC_SEGMENT_64 (with one section)
// directly into a Mach-O image's raw bytes, without re-serializing the
// rest of the file.
//
// It requires the host binary to have unused "headerpad" between the end
// of its existing load commands and the file offset of its first
// section's data — the slack real Mach-O linkers leave (and that Node's
// own macOS SEA build explicitly reserves via -headerpad) specifically so
// a new load command can be spliced in without shifting every subsequent
// segment's file offsets and virtual addresses. A host built without that
// reserved slack cannot be injected this way; this is a deliberate scope
// limit, since reproducing a general-purpose
// Mach-O relinker (what LIEF does under the hood for postject) is out of
// proportion to this component's 5% share of the core.
func AppendSegmentRaw(raw []byte, segName, sectName string, payload []byte) ([]byte, error) {
	op := "machofmt.AppendSegmentRaw"
	f, err := NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: parse: %w", op, err)
	}
	if f.Magic != types.Magic64 {
		return nil, fmt.Errorf("%s: only 64-bit Mach-O images are supported", op)
	}
	if FindSegmentIndex(f, segName) >= 0 {
		return nil, fmt.Errorf("%s: segment %s already present", op, segName)
	}

	cmdsEnd := uint64(machHeaderSize64) + uint64(f.SizeCommands)
	firstSectionOffset := firstSectionFileOffset(f, uint64(len(raw)))

	vmAddr := nextSegmentVMAddr(f)
	fileOffset := alignUp(uint64(len(raw)), segPageAlign)

	seg := &Segment{
		SegmentHeader: SegmentHeader{
			LoadCmd: types.LC_SEGMENT_64,
			Name:    segName,
			Addr:    vmAddr,
			Memsz:   uint64(len(payload)),
			Offset:  fileOffset,
			Filesz:  uint64(len(payload)),
			Maxprot: 1, // VM_PROT_READ
			Prot:    1,
			Nsect:   1,
		},
	}
	seg.Len = seg.LoadSize()
	sect := &Section{
		SectionHeader: SectionHeader{
			Name:   sectName,
			Seg:    segName,
			Addr:   vmAddr,
			Size:   uint64(len(payload)),
			Offset: uint32(fileOffset),
			Type:   64,
		},
	}

	var cmdBuf bytes.Buffer
	if err := seg.Write(&cmdBuf, f.ByteOrder); err != nil {
		return nil, fmt.Errorf("%s: encode segment command: %w", op, err)
	}
	if err := sect.Write(&cmdBuf, f.ByteOrder); err != nil {
		return nil, fmt.Errorf("%s: encode section: %w", op, err)
	}
	cmdBytes := cmdBuf.Bytes()

	slack := int64(firstSectionOffset) - int64(cmdsEnd)
	if slack < int64(len(cmdBytes)) {
		return nil, fmt.Errorf("%s: insufficient headerpad: need %d bytes, have %d (host must be linked with reserved headerpad)", op, len(cmdBytes), slack)
	}
	for _, b := range raw[cmdsEnd : cmdsEnd+uint64(len(cmdBytes))] {
		if b != 0 {
			return nil, fmt.Errorf("%s: headerpad region is not zero-filled, refusing to overwrite existing data", op)
		}
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	copy(out[cmdsEnd:], cmdBytes)

	f.ByteOrder.PutUint32(out[16:20], f.NCommands+1)
	f.ByteOrder.PutUint32(out[20:24], f.SizeCommands+uint32(len(cmdBytes)))

	out = append(out, make([]byte, fileOffset-uint64(len(raw)))...)
	out = append(out, payload...)
	return out, nil
}

// RemoveSegmentRaw reverses AppendSegmentRaw: it erases the named
// segment's load command by moving any later load commands up over it
// and zero-filling the freed bytes at the end of the command area
// (restoring zero-filled headerpad), decrements ncmds/sizeofcmds, and
// truncates the file. The cut is at the end of the remaining segments'
// file data when only zero padding lies between there and the removed
// segment's file offset, and at that offset otherwise — valid because
// this package only ever appends its own segments at EOF, never in the
// middle.
func RemoveSegmentRaw(raw []byte, segName string) ([]byte, error) {
	op := "machofmt.RemoveSegmentRaw"
	f, err := NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: parse: %w", op, err)
	}
	if f.Magic != types.Magic64 {
		return nil, fmt.Errorf("%s: only 64-bit Mach-O images are supported", op)
	}

	cmdOffset := uint64(machHeaderSize64)
	var target *Segment
	var targetOffset, targetLen uint64
	for _, l := range f.Loads {
		size := uint64(l.LoadSize(&f.FileTOC))
		if s, ok := l.(*Segment); ok && s.Name == segName {
			target = s
			targetOffset = cmdOffset
			targetLen = size
		}
		cmdOffset += size
	}
	if target == nil {
		return nil, fmt.Errorf("%s: no segment named %s", op, segName)
	}

	cmdsEnd := uint64(machHeaderSize64) + uint64(f.SizeCommands)
	out := make([]byte, len(raw))
	copy(out, raw)

	copy(out[targetOffset:], out[targetOffset+targetLen:cmdsEnd])
	for i := cmdsEnd - targetLen; i < cmdsEnd; i++ {
		out[i] = 0
	}

	f.ByteOrder.PutUint32(out[16:20], f.NCommands-1)
	f.ByteOrder.PutUint32(out[20:24], f.SizeCommands-uint32(targetLen))

	truncateAt := target.Offset
	if truncateAt > uint64(len(out)) {
		truncateAt = uint64(len(out))
	}
	var dataEnd uint64
	for _, s := range f.Segments() {
		if s != target && s.Offset+s.Filesz > dataEnd {
			dataEnd = s.Offset + s.Filesz
		}
	}
	if dataEnd < truncateAt && bytes.Count(out[dataEnd:truncateAt], []byte{0}) == int(truncateAt-dataEnd) {
		truncateAt = dataEnd
	}
	return out[:truncateAt], nil
}

func firstSectionFileOffset(f *File, fallback uint64) uint64 {
	min := fallback
	for _, sec := range f.Sections {
		if sec.Offset == 0 {
			continue
		}
		if uint64(sec.Offset) < min {
			min = uint64(sec.Offset)
		}
	}
	return min
}

func nextSegmentVMAddr(f *File) uint64 {
	var max uint64
	for _, seg := range f.Segments() {
		if end := seg.Addr + seg.Memsz; end > max {
			max = end
		}
	}
	return alignUp(max, segPageAlign)
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
