package macho

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/blacktop/go-macho/types"
)

// buildSyntheticMachO64 assembles a minimal 64-bit Mach-O image: a header,
// one LC_SEGMENT_64 (__TEXT, one section) with headerpadSlack zero bytes
// reserved between the end of load commands and the section's data, and
// the section's raw bytes.
func buildSyntheticMachO64(t *testing.T, headerpadSlack int, sectionData []byte) []byte {
	t.Helper()
	order := binary.LittleEndian

	seg := &Segment{
		SegmentHeader: SegmentHeader{
			LoadCmd: types.LC_SEGMENT_64,
			Name:    "__TEXT",
			Addr:    0x100000000,
			Offset:  0,
			Maxprot: 7,
			Prot:    5,
			Nsect:   1,
		},
	}
	sect := &Section{
		SectionHeader: SectionHeader{
			Name: "__text",
			Seg:  "__TEXT",
			Type: 64,
			Size: uint64(len(sectionData)),
		},
	}
	seg.Len = seg.LoadSize(&FileTOC{})

	var cmdBuf bytes.Buffer
	if err := seg.Write(&cmdBuf, order); err != nil {
		t.Fatalf("seg.Write: %v", err)
	}
	if err := sect.Write(&cmdBuf, order); err != nil {
		t.Fatalf("sect.Write: %v", err)
	}
	cmdsLen := cmdBuf.Len()

	sectionOffset := uint64(machHeaderSize64 + cmdsLen + headerpadSlack)
	seg.Filesz = sectionOffset + uint64(len(sectionData))
	seg.Memsz = seg.Filesz
	sect.Offset = uint32(sectionOffset)
	sect.Addr = seg.Addr + sectionOffset

	hdr := make([]byte, machHeaderSize64)
	order.PutUint32(hdr[0:4], uint32(types.Magic64))
	order.PutUint32(hdr[16:20], 1) // ncmds
	order.PutUint32(hdr[20:24], uint32(cmdsLen))

	var final bytes.Buffer
	final.Write(hdr)
	if err := seg.Write(&final, order); err != nil {
		t.Fatalf("seg.Write (final): %v", err)
	}
	if err := sect.Write(&final, order); err != nil {
		t.Fatalf("sect.Write (final): %v", err)
	}
	final.Write(make([]byte, headerpadSlack))
	final.Write(sectionData)
	return final.Bytes()
}

func TestAppendSegmentRawThenRemove(t *testing.T) {
	raw := buildSyntheticMachO64(t, 4096, []byte("main text bytes"))
	payload := bytes.Repeat([]byte{0x42}, 256)

	injected, err := AppendSegmentRaw(raw, "NODE_SEA", "__NODE_SEA_BLOB", payload)
	if err != nil {
		t.Fatalf("AppendSegmentRaw: %v", err)
	}

	f, err := NewFile(bytes.NewReader(injected))
	if err != nil {
		t.Fatalf("NewFile(injected): %v", err)
	}
	idx := FindSegmentIndex(f, "NODE_SEA")
	if idx < 0 {
		t.Fatal("expected NODE_SEA segment after injection")
	}
	seg := f.Loads[idx].(*Segment)
	if seg.Filesz != uint64(len(payload)) {
		t.Errorf("Filesz = %d, want %d", seg.Filesz, len(payload))
	}
	got := injected[seg.Offset : seg.Offset+seg.Filesz]
	if !bytes.Equal(got, payload) {
		t.Error("injected payload bytes do not round-trip")
	}

	removed, err := RemoveSegmentRaw(injected, "NODE_SEA")
	if err != nil {
		t.Fatalf("RemoveSegmentRaw: %v", err)
	}
	if !bytes.Equal(removed, raw) {
		t.Error("expected RemoveSegmentRaw to restore the original bytes exactly")
	}
}

func TestAppendSegmentRawInsufficientHeaderpad(t *testing.T) {
	raw := buildSyntheticMachO64(t, 8, []byte("main text bytes"))
	_, err := AppendSegmentRaw(raw, "NODE_SEA", "__NODE_SEA_BLOB", bytes.Repeat([]byte{0x1}, 256))
	if err == nil {
		t.Fatal("expected error when headerpad slack is too small")
	}
}
