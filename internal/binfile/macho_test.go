package binfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	machofmt "github.com/socketsecurity/binfuse/internal/machofmt"
	"github.com/blacktop/go-macho/types"
)

const testMachHeaderSize64 = 32

// buildSyntheticMachO64 assembles a minimal 64-bit Mach-O image with one
// __TEXT segment/section and headerpadSlack zero bytes reserved after the
// load commands, mirroring machofmt's own segwrite_test.go fixture.
func buildSyntheticMachO64(t *testing.T, headerpadSlack int, sectionData []byte) []byte {
	t.Helper()
	order := binary.LittleEndian

	seg := &machofmt.Segment{
		SegmentHeader: machofmt.SegmentHeader{
			LoadCmd: types.LC_SEGMENT_64,
			Name:    "__TEXT",
			Addr:    0x100000000,
			Offset:  0,
			Maxprot: 7,
			Prot:    5,
			Nsect:   1,
		},
	}
	sect := &machofmt.Section{
		SectionHeader: machofmt.SectionHeader{
			Name: "__text",
			Seg:  "__TEXT",
			Type: 64,
			Size: uint64(len(sectionData)),
		},
	}
	seg.Len = seg.LoadSize(&machofmt.FileTOC{})

	var cmdBuf bytes.Buffer
	if err := seg.Write(&cmdBuf, order); err != nil {
		t.Fatalf("seg.Write: %v", err)
	}
	if err := sect.Write(&cmdBuf, order); err != nil {
		t.Fatalf("sect.Write: %v", err)
	}
	cmdsLen := cmdBuf.Len()

	sectionOffset := uint64(testMachHeaderSize64 + cmdsLen + headerpadSlack)
	seg.Filesz = sectionOffset + uint64(len(sectionData))
	seg.Memsz = seg.Filesz
	sect.Offset = uint32(sectionOffset)
	sect.Addr = seg.Addr + sectionOffset

	hdr := make([]byte, testMachHeaderSize64)
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

func TestMachoTraitsAddHasExtractRemove(t *testing.T) {
	raw := buildSyntheticMachO64(t, 4096, []byte("main text bytes"))

	traits, err := OpenBytes("test", raw)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	if traits.Format().String() != "Mach-O" {
		t.Fatalf("Format = %v, want Mach-O", traits.Format())
	}

	if ok, err := traits.HasResource(SmolVFSBlob); err != nil || ok {
		t.Fatalf("HasResource before injection: ok=%v err=%v", ok, err)
	}

	payload := bytes.Repeat([]byte{0x42}, 256)
	injected, err := traits.AddResource(SmolVFSBlob, payload)
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}

	t2, err := OpenBytes("test", injected)
	if err != nil {
		t.Fatalf("OpenBytes(injected): %v", err)
	}
	ok, err := t2.HasResource(SmolVFSBlob)
	if err != nil || !ok {
		t.Fatalf("HasResource after injection: ok=%v err=%v", ok, err)
	}
	got, err := t2.ExtractResource(SmolVFSBlob)
	if err != nil {
		t.Fatalf("ExtractResource: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("extracted payload does not round-trip")
	}

	list, err := t2.ListResources()
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	found := false
	for _, r := range list {
		if r == SmolVFSBlob {
			found = true
		}
	}
	if !found {
		t.Errorf("ListResources = %v, want to include SMOL_VFS_BLOB", list)
	}

	removed, err := t2.RemoveResource(SmolVFSBlob)
	if err != nil {
		t.Fatalf("RemoveResource: %v", err)
	}
	if !bytes.Equal(removed, raw) {
		t.Error("expected RemoveResource to restore the original bytes exactly")
	}
}

func TestMachoTraitsAddResourceInsufficientHeaderpad(t *testing.T) {
	raw := buildSyntheticMachO64(t, 8, []byte("main text bytes"))
	traits, err := OpenBytes("test", raw)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	if _, err := traits.AddResource(NodeSeaBlob, bytes.Repeat([]byte{1}, 256)); err == nil {
		t.Fatal("expected error when headerpad slack is too small")
	}
}
