package elfnote

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeNotesRoundTrip(t *testing.T) {
	entries := []NoteEntry{
		{Owner: "NODE_SEA_BLOB", Data: []byte("hello world")},
		{Owner: "SMOL_VFS_BLOB", Data: []byte{1, 2, 3, 4, 5}},
	}
	encoded := EncodeNotes(entries)
	decoded, err := DecodeNotes(encoded)
	if err != nil {
		t.Fatalf("DecodeNotes: %v", err)
	}
	if len(decoded) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(decoded), len(entries))
	}
	for i, e := range entries {
		if decoded[i].Owner != e.Owner {
			t.Errorf("entry %d owner = %q, want %q", i, decoded[i].Owner, e.Owner)
		}
		if !bytes.Equal(decoded[i].Data, e.Data) {
			t.Errorf("entry %d data mismatch", i)
		}
	}
}

func TestEncodeNotesIsAligned(t *testing.T) {
	encoded := EncodeNotes([]NoteEntry{{Owner: "X", Data: []byte{1}}})
	if len(encoded)%4 != 0 {
		t.Errorf("encoded note length %d not 4-aligned", len(encoded))
	}
}

func TestReplaceOrAddDedupes(t *testing.T) {
	entries := []NoteEntry{
		{Owner: "NODE_SEA_BLOB", Data: []byte("old")},
		{Owner: "OTHER", Data: []byte("keep")},
	}
	out := ReplaceOrAdd(entries, "NODE_SEA_BLOB", []byte("new"))
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	found := false
	for _, e := range out {
		if e.Owner == "NODE_SEA_BLOB" {
			found = true
			if string(e.Data) != "new" {
				t.Errorf("data = %q, want %q", e.Data, "new")
			}
		}
	}
	if !found {
		t.Fatal("expected replaced entry to survive")
	}
}

func TestExistsAndRemoveAll(t *testing.T) {
	entries := []NoteEntry{{Owner: "A", Data: []byte{1}}, {Owner: "B", Data: []byte{2}}}
	if !Exists(entries, "A") {
		t.Error("expected A to exist")
	}
	out := RemoveAll(entries, "A")
	if Exists(out, "A") {
		t.Error("expected A to be removed")
	}
	if !Exists(out, "B") {
		t.Error("expected B to survive")
	}
}
