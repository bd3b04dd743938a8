package binfile

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/binfmt"
	"github.com/socketsecurity/binfuse/internal/elfnote"
)

type elfTraits struct{ raw []byte }

func (t *elfTraits) Format() binfmt.Format { return binfmt.ELF }
func (t *elfTraits) Raw() []byte           { return t.raw }

func (t *elfTraits) HasResource(name ResourceName) (bool, error) {
	if name == PressedData {
		if ok, err := elfSectionExists(t.raw, pePressedDataAsELFSection); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	notes, err := elfnote.ReadNotes(t.raw)
	if err != nil {
		return false, binerr.New(binerr.InvalidElf, "binfile.elfTraits.HasResource", "", err)
	}
	return elfnote.Exists(notes, string(name)), nil
}

func (t *elfTraits) ListResources() ([]ResourceName, error) {
	op := "binfile.elfTraits.ListResources"
	notes, err := elfnote.ReadNotes(t.raw)
	if err != nil {
		return nil, binerr.New(binerr.InvalidElf, op, "", err)
	}

	var out []ResourceName
	for _, name := range []ResourceName{NodeSeaBlob, SmolVFSBlob} {
		if elfnote.Exists(notes, string(name)) {
			out = append(out, name)
		}
	}

	havePressedData := elfnote.Exists(notes, string(PressedData))
	if !havePressedData {
		if ok, err := elfSectionExists(t.raw, pePressedDataAsELFSection); err == nil && ok {
			havePressedData = true
		}
	}
	if havePressedData {
		out = append(out, PressedData)
	}
	return out, nil
}

func (t *elfTraits) ExtractResource(name ResourceName) ([]byte, error) {
	op := "binfile.elfTraits.ExtractResource"
	if name == PressedData {
		if data, ok, err := elfSectionData(t.raw, pePressedDataAsELFSection); err != nil {
			return nil, binerr.New(binerr.IOError, op, "", err)
		} else if ok {
			return data, nil
		}
	}
	notes, err := elfnote.ReadNotes(t.raw)
	if err != nil {
		return nil, binerr.New(binerr.InvalidElf, op, "", err)
	}
	for _, n := range notes {
		if n.Owner == string(name) {
			return n.Data, nil
		}
	}
	return nil, binerr.New(binerr.ResourceNotFound, op, "", fmt.Errorf("no note or section for %s", name))
}

// AddResource chooses the reuse-in-place writer when the host already
// carries a PT_NOTE segment (the common case: every static glibc stub
// and every previously injected binary does), falling back to the
// new-segment writer only for a host with none — per spec.md §4.11.3's
// reuse_existing? branch.
func (t *elfTraits) AddResource(name ResourceName, data []byte) ([]byte, error) {
	op := "binfile.elfTraits.AddResource"
	owner := string(name)

	var modify elfnote.ModifyCallback
	if name == NodeSeaBlob || name == SmolVFSBlob {
		modify = elfnote.FlipFuseInBuffer
	}

	hasNote, err := elfnote.HasPTNote(t.raw)
	if err != nil {
		return nil, binerr.New(binerr.InvalidElf, op, "", err)
	}

	if hasNote {
		out, err := elfnote.ReuseMultiPTNote(t.raw, []elfnote.NoteEntry{{Owner: owner, Data: data}}, modify)
		if err != nil {
			return nil, binerr.New(binerr.WriteFailed, op, "", err)
		}
		return out, nil
	}

	buf := make([]byte, len(t.raw))
	copy(buf, t.raw)
	if modify != nil {
		modify(buf)
	}
	out, err := elfnote.WriteWithNotes(buf, []elfnote.NoteEntry{{Owner: owner, Data: data}})
	if err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	return out, nil
}

func (t *elfTraits) RemoveResource(name ResourceName) ([]byte, error) {
	op := "binfile.elfTraits.RemoveResource"
	out, err := elfnote.RemoveOwner(t.raw, string(name))
	if err != nil {
		return nil, binerr.New(binerr.ResourceNotFound, op, "", err)
	}
	return out, nil
}

// pePressedDataAsELFSection is the plain-section fallback lookup spec.md
// §4.9 calls for alongside the note scan: a host that already shipped a
// real ".pressed_data" section (rather than one produced by this tool's
// own note-based writer) is still recognized.
const pePressedDataAsELFSection = ".pressed_data"

func elfSectionExists(raw []byte, name string) (bool, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return false, err
	}
	defer f.Close()
	return f.Section(name) != nil, nil
}

func elfSectionData(raw []byte, name string) ([]byte, bool, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	sec := f.Section(name)
	if sec == nil {
		return nil, false, nil
	}
	data, err := sec.Data()
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
