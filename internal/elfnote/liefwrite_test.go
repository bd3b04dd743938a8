package elfnote

import (
	"testing"
)

func TestWriteWithNotesAddsLoadAndNoteSegments(t *testing.T) {
	loadEnd := uint64(elfHeaderSize64 + phEntrySize64*2)
	phs := []programHeader{
		{Type: ptInterp, Flags: pfR, Offset: 0, Vaddr: 0, Filesz: 0, Memsz: 0, Align: 1},
		{Type: ptLoad, Flags: pfR, Offset: 0, Vaddr: 0x400000, Filesz: loadEnd, Memsz: loadEnd, Align: 0x1000},
	}
	input := buildSyntheticELF(t, phs, elfHeaderSize64, nil)

	out, err := WriteWithNotes(input, []NoteEntry{{Owner: "SMOL_VFS_BLOB", Data: []byte("payload")}})
	if err != nil {
		t.Fatalf("WriteWithNotes: %v", err)
	}

	hdr, err := parseELFHeader64(out)
	if err != nil {
		t.Fatalf("parseELFHeader64(out): %v", err)
	}
	if int(hdr.Phnum) != len(phs)+2 {
		t.Fatalf("phnum = %d, want %d (original %d + note + load)", hdr.Phnum, len(phs)+2, len(phs))
	}

	outPhs, err := readProgramHeaders(out, hdr)
	if err != nil {
		t.Fatalf("readProgramHeaders(out): %v", err)
	}

	var notePH, loadPH *programHeader
	for i := range outPhs {
		switch outPhs[i].Type {
		case ptNote:
			if notePH == nil {
				notePH = &outPhs[i]
			}
		}
	}
	for i := len(outPhs) - 1; i >= 0; i-- {
		if outPhs[i].Type == ptLoad && outPhs[i].Vaddr != 0x400000 {
			loadPH = &outPhs[i]
			break
		}
	}
	if notePH == nil {
		t.Fatal("expected a PT_NOTE segment in the output")
	}
	if notePH.Vaddr == 0 {
		t.Error("expected note segment to receive a non-zero vaddr")
	}
	if loadPH == nil {
		t.Fatal("expected a matching PT_LOAD segment for the note")
	}
	if loadPH.Vaddr == 0 {
		t.Error("expected matching PT_LOAD to receive a non-zero vaddr")
	}

	content := out[notePH.Offset : notePH.Offset+notePH.Filesz]
	decoded, err := DecodeNotes(content)
	if err != nil {
		t.Fatalf("DecodeNotes: %v", err)
	}
	if !Exists(decoded, "SMOL_VFS_BLOB") {
		t.Error("expected SMOL_VFS_BLOB note to be present")
	}
}
