package binfile

import (
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/binfmt"
	"github.com/socketsecurity/binfuse/internal/fuse"
	"github.com/socketsecurity/binfuse/internal/pefmt"
)

// peDataSectionCharacteristics marks an appended section as initialized,
// read-only data: IMAGE_SCN_CNT_INITIALIZED_DATA | IMAGE_SCN_MEM_READ.
const peDataSectionCharacteristics = 0x40000040

type peTraits struct{ raw []byte }

func (t *peTraits) Format() binfmt.Format { return binfmt.PE }
func (t *peTraits) Raw() []byte           { return t.raw }

// peInspection is one saferwall/pe parse's worth of read-side answers:
// the .rsrc RT_RCDATA entries and the plain pressed_data section, read
// together so a single HasResource/ListResources/ExtractResource call
// opens at most one temp file instead of one per section it looks at.
type peInspection struct {
	entries        []pefmt.RCDATAEntry
	rsrc           []byte
	rva            uint32
	hasRsrc        bool
	pressedData    []byte
	hasPressedData bool
}

// inspectPE locates raw's .rsrc and pressed_data sections through
// saferwall/pe's parsed model (staged via pefmt.OpenBytes, since the
// parser wants a path and raw sometimes has no file behind it) rather
// than the hand-rolled COFF walk in section.go, which is reserved for
// writes: saferwall/pe is a read-only library, so it cannot do the
// append/grow half of this file's job, but every read here goes through
// it.
func inspectPE(raw []byte) (*peInspection, error) {
	pf, err := pefmt.OpenBytes(raw)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	insp := &peInspection{}
	if rsrc, ok := pf.SectionData(".rsrc"); ok {
		insp.hasRsrc = true
		insp.rsrc = rsrc
		insp.rva, _ = pf.SectionVirtualAddress(".rsrc")
		entries, err := pefmt.ParseRCDATAEntries(rsrc)
		if err != nil {
			return nil, err
		}
		insp.entries = entries
	}
	if data, ok := pf.SectionData(pePressedDataSection); ok {
		insp.hasPressedData = true
		insp.pressedData = data
	}
	return insp, nil
}

func (t *peTraits) HasResource(name ResourceName) (bool, error) {
	op := "binfile.peTraits.HasResource"
	insp, err := inspectPE(t.raw)
	if err != nil {
		return false, binerr.New(binerr.InvalidFormat, op, "", err)
	}
	if name == PressedData {
		return insp.hasPressedData, nil
	}
	for _, e := range insp.entries {
		if e.Name == string(name) {
			return true, nil
		}
	}
	return false, nil
}

func (t *peTraits) ListResources() ([]ResourceName, error) {
	op := "binfile.peTraits.ListResources"
	insp, err := inspectPE(t.raw)
	if err != nil {
		return nil, binerr.New(binerr.InvalidFormat, op, "", err)
	}
	var out []ResourceName
	for _, want := range []ResourceName{NodeSeaBlob, SmolVFSBlob} {
		for _, e := range insp.entries {
			if e.Name == string(want) {
				out = append(out, want)
				break
			}
		}
	}
	if insp.hasPressedData {
		out = append(out, PressedData)
	}
	return out, nil
}

func (t *peTraits) ExtractResource(name ResourceName) ([]byte, error) {
	op := "binfile.peTraits.ExtractResource"
	insp, err := inspectPE(t.raw)
	if err != nil {
		return nil, binerr.New(binerr.InvalidFormat, op, "", err)
	}
	if name == PressedData {
		if !insp.hasPressedData {
			return nil, binerr.New(binerr.SectionNotFound, op, "", fmt.Errorf("no %s section", pePressedDataSection))
		}
		return insp.pressedData, nil
	}
	if !insp.hasRsrc {
		return nil, binerr.New(binerr.ResourceNotFound, op, "", fmt.Errorf("no .rsrc section"))
	}
	for _, e := range insp.entries {
		if e.Name == string(name) {
			data, err := pefmt.DataBytes(insp.rsrc, e, insp.rva)
			if err != nil {
				return nil, binerr.New(binerr.InvalidFormat, op, "", err)
			}
			return data, nil
		}
	}
	return nil, binerr.New(binerr.ResourceNotFound, op, "", fmt.Errorf("no RT_RCDATA resource named %s", name))
}

// verifyWrittenSection re-reads a just-written section back out of out
// through the same raw-byte walk section.go's writers use, and fails if
// it comes back shorter than the length just written (the raw section may
// be longer, since it is padded to the file alignment). Every writer below
// calls this before handing its output further up, the same "write, then
// confirm it actually landed" discipline atomicio applies to files.
func verifyWrittenSection(out []byte, name string, wantLen int) error {
	data, ok := pefmt.SectionDataFromRaw(out, name)
	if !ok {
		return fmt.Errorf("section %s missing from freshly written image", name)
	}
	if len(data) < wantLen {
		return fmt.Errorf("section %s round-tripped %d bytes, want at least %d", name, len(data), wantLen)
	}
	return nil
}

// AddResource realizes pressed_data as a plain appended (or, if already
// present and trailing, regrown) section, and NODE_SEA_BLOB/SMOL_VFS_BLOB
// as a merged RT_RCDATA entry in the .rsrc tree — appending a fresh
// .rsrc section when none exists, or regrowing the existing one in place
// when it is the file's trailing section. A non-trailing pre-existing
// .rsrc (or pressed_data section) is a scope limit this adapter reports
// rather than silently mishandles.
func (t *peTraits) AddResource(name ResourceName, data []byte) ([]byte, error) {
	op := "binfile.peTraits.AddResource"

	if name == PressedData {
		insp, err := inspectPE(t.raw)
		if err != nil {
			return nil, binerr.New(binerr.InvalidFormat, op, "", err)
		}
		if insp.hasPressedData {
			if !pefmt.IsLastSectionRaw(t.raw, pePressedDataSection) {
				return nil, binerr.New(binerr.WriteFailed, op, "", fmt.Errorf("existing %s section is not trailing; in-place regrowth unsupported", pePressedDataSection))
			}
			out, err := pefmt.GrowLastSection(t.raw, pePressedDataSection, data)
			if err != nil {
				return nil, binerr.New(binerr.WriteFailed, op, "", err)
			}
			if err := verifyWrittenSection(out, pePressedDataSection, len(data)); err != nil {
				return nil, binerr.New(binerr.WriteFailed, op, "", err)
			}
			return out, nil
		}
		out, err := pefmt.AppendSection(t.raw, pePressedDataSection, data, peDataSectionCharacteristics)
		if err != nil {
			return nil, binerr.New(binerr.WriteFailed, op, "", err)
		}
		if err := verifyWrittenSection(out, pePressedDataSection, len(data)); err != nil {
			return nil, binerr.New(binerr.WriteFailed, op, "", err)
		}
		return out, nil
	}

	buf := make([]byte, len(t.raw))
	copy(buf, t.raw)
	fuse.FlipInBuffer(buf)

	insp, err := inspectPE(buf)
	if err != nil {
		return nil, binerr.New(binerr.InvalidFormat, op, "", err)
	}

	named := map[string][]byte{}
	for _, e := range insp.entries {
		b, derr := pefmt.DataBytes(insp.rsrc, e, insp.rva)
		if derr != nil {
			continue
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		named[e.Name] = cp
	}
	named[string(name)] = data

	resources := make([]pefmt.NamedResource, 0, len(named))
	for n, d := range named {
		resources = append(resources, pefmt.NamedResource{Name: n, Data: d})
	}

	if insp.hasRsrc {
		if !pefmt.IsLastSectionRaw(buf, ".rsrc") {
			return nil, binerr.New(binerr.WriteFailed, op, "", fmt.Errorf("existing .rsrc section is not trailing; in-place regrowth unsupported"))
		}
		newRsrc, err := pefmt.BuildMultiRCDATASection(resources, insp.rva)
		if err != nil {
			return nil, binerr.New(binerr.WriteFailed, op, "", err)
		}
		out, err := pefmt.GrowLastSection(buf, ".rsrc", newRsrc)
		if err != nil {
			return nil, binerr.New(binerr.WriteFailed, op, "", err)
		}
		if err := verifyWrittenSection(out, ".rsrc", len(newRsrc)); err != nil {
			return nil, binerr.New(binerr.WriteFailed, op, "", err)
		}
		return out, nil
	}

	newRVA, err := pefmt.NextSectionRVA(buf)
	if err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	newRsrc, err := pefmt.BuildMultiRCDATASection(resources, newRVA)
	if err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	out, err := pefmt.AppendSection(buf, ".rsrc", newRsrc, peDataSectionCharacteristics)
	if err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	if err := verifyWrittenSection(out, ".rsrc", len(newRsrc)); err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	if gotRVA, ok := pefmt.SectionVirtualAddressFromRaw(out, ".rsrc"); !ok || gotRVA != newRVA {
		return nil, binerr.New(binerr.WriteFailed, op, "", fmt.Errorf("new .rsrc section landed at RVA %#x, predicted %#x", gotRVA, newRVA))
	}
	return out, nil
}

func (t *peTraits) RemoveResource(name ResourceName) ([]byte, error) {
	op := "binfile.peTraits.RemoveResource"
	if name == PressedData {
		return nil, binerr.New(binerr.InvalidArguments, op, "", fmt.Errorf("pressed_data is not removable via binject"))
	}

	insp, err := inspectPE(t.raw)
	if err != nil {
		return nil, binerr.New(binerr.InvalidFormat, op, "", err)
	}
	if !insp.hasRsrc {
		return nil, binerr.New(binerr.ResourceNotFound, op, "", fmt.Errorf("no .rsrc section"))
	}
	if !pefmt.IsLastSectionRaw(t.raw, ".rsrc") {
		return nil, binerr.New(binerr.WriteFailed, op, "", fmt.Errorf("existing .rsrc section is not trailing; in-place regrowth unsupported"))
	}

	var resources []pefmt.NamedResource
	found := false
	for _, e := range insp.entries {
		if e.Name == string(name) {
			found = true
			continue
		}
		b, derr := pefmt.DataBytes(insp.rsrc, e, insp.rva)
		if derr != nil {
			continue
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		resources = append(resources, pefmt.NamedResource{Name: e.Name, Data: cp})
	}
	if !found {
		return nil, binerr.New(binerr.ResourceNotFound, op, "", fmt.Errorf("no RT_RCDATA resource named %s", name))
	}
	if len(resources) == 0 {
		return nil, binerr.New(binerr.WriteFailed, op, "", fmt.Errorf("removing the last RT_RCDATA entry would leave an empty resource tree, unsupported"))
	}

	newRsrc, err := pefmt.BuildMultiRCDATASection(resources, insp.rva)
	if err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	out, err := pefmt.GrowLastSection(t.raw, ".rsrc", newRsrc)
	if err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	if err := verifyWrittenSection(out, ".rsrc", len(newRsrc)); err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	return out, nil
}
