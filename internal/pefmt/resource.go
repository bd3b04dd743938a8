package pefmt

import (
	"encoding/binary"
	"fmt"
	"sort"
	"unicode/utf16"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

// RTRCData is the resource type ID for RT_RCDATA, the catch-all binary
// resource type this tool uses to carry injected blobs.
const RTRCData = 10

// resourceLangID is a fixed, arbitrary language ID (neutral/US English);
// real-world SEA-style injections never depend on localization.
const resourceLangID = 0x0409

// directory mirrors IMAGE_RESOURCE_DIRECTORY.
type directory struct {
	Characteristics      uint32
	TimeDateStamp        uint32
	MajorVersion         uint16
	MinorVersion         uint16
	NumberOfNamedEntries uint16
	NumberOfIDEntries    uint16
}

const directorySize = 16

// directoryEntry mirrors IMAGE_RESOURCE_DIRECTORY_ENTRY.
type directoryEntry struct {
	NameOrID     uint32
	OffsetToData uint32 // high bit set => points at another directory
}

const directoryEntrySize = 8
const subdirFlag = uint32(1) << 31

// dataEntry mirrors IMAGE_RESOURCE_DATA_ENTRY.
type dataEntry struct {
	OffsetToData uint32 // RVA, relative to the resource section
	Size         uint32
	CodePage     uint32
	Reserved     uint32
}

const dataEntrySize = 16

// BuildRCDATAResourceSection builds a complete, self-contained .rsrc
// section image holding a single RT_RCDATA resource named logicalName
// with content data: a three-level directory tree (type -> name -> lang)
// terminating in one data entry, followed by the resource bytes.
// sectionRVA is the virtual address the caller will map this section at,
// needed because IMAGE_RESOURCE_DATA_ENTRY.OffsetToData is an RVA, not a
// section-relative file offset.
func BuildRCDATAResourceSection(logicalName string, data []byte, sectionRVA uint32) ([]byte, error) {
	if len(data) == 0 {
		return nil, binerr.New(binerr.InvalidArguments, "pefmt.BuildRCDATAResourceSection", "", fmt.Errorf("empty resource data"))
	}

	nameUTF16 := utf16.Encode([]rune(logicalName))
	nameBlockSize := 2 + len(nameUTF16)*2 // uint16 length prefix + UTF-16LE chars
	nameBlockSize = align4(nameBlockSize)

	// Layout, in order: type dir, type dir entry, name dir, name dir
	// entry, lang dir, lang dir entry, name string block, data entry,
	// then the raw resource bytes.
	typeDirOff := 0
	typeEntryOff := typeDirOff + directorySize
	nameDirOff := typeEntryOff + directoryEntrySize
	nameEntryOff := nameDirOff + directorySize
	langDirOff := nameEntryOff + directoryEntrySize
	langEntryOff := langDirOff + directorySize
	nameStringOff := langEntryOff + directoryEntrySize
	dataEntryOff := nameStringOff + nameBlockSize
	rawDataOff := dataEntryOff + dataEntrySize
	total := rawDataOff + len(data)

	buf := make([]byte, total)

	putDirectory(buf[typeDirOff:], 0, 1) // one ID entry: RT_RCDATA
	putDirectoryEntry(buf[typeEntryOff:], directoryEntry{
		NameOrID:     RTRCData,
		OffsetToData: subdirFlag | uint32(nameDirOff),
	})

	putDirectory(buf[nameDirOff:], 1, 0) // one named entry: logicalName
	putDirectoryEntry(buf[nameEntryOff:], directoryEntry{
		NameOrID:     subdirFlag | uint32(nameStringOff),
		OffsetToData: subdirFlag | uint32(langDirOff),
	})

	putDirectory(buf[langDirOff:], 0, 1) // one ID entry: the language
	putDirectoryEntry(buf[langEntryOff:], directoryEntry{
		NameOrID:     resourceLangID,
		OffsetToData: uint32(dataEntryOff), // leaf, high bit clear
	})

	binary.LittleEndian.PutUint16(buf[nameStringOff:nameStringOff+2], uint16(len(nameUTF16)))
	for i, r := range nameUTF16 {
		binary.LittleEndian.PutUint16(buf[nameStringOff+2+i*2:nameStringOff+2+i*2+2], r)
	}

	putDataEntry(buf[dataEntryOff:], dataEntry{
		OffsetToData: sectionRVA + uint32(rawDataOff),
		Size:         uint32(len(data)),
	})

	copy(buf[rawDataOff:], data)
	return buf, nil
}

// NamedResource is one RT_RCDATA entry to place under the type directory
// BuildMultiRCDATASection builds.
type NamedResource struct {
	Name string
	Data []byte
}

// BuildMultiRCDATASection is BuildRCDATAResourceSection generalized to
// several named entries sharing one RT_RCDATA type directory — used to
// merge a newly injected resource into a .rsrc tree that already carries
// other RT_RCDATA entries (e.g. a previous binject run), per the same
// replace-not-duplicate rule the ELF note writer follows. Entries are
// sorted by name first, so rebuilding the tree from the same logical set
// is deterministic regardless of map iteration order upstream.
//
// Scope note: this only preserves RT_RCDATA entries. A .rsrc tree that
// also carries other resource types (icons, version info, manifests) has
// those entries dropped — reconstructing a lossless, fully general
// Windows resource tree is out of proportion to this component's share
// of the system; see DESIGN.md.
func BuildMultiRCDATASection(entries []NamedResource, sectionRVA uint32) ([]byte, error) {
	op := "pefmt.BuildMultiRCDATASection"
	if len(entries) == 0 {
		return nil, binerr.New(binerr.InvalidArguments, op, "", fmt.Errorf("no entries"))
	}
	sorted := make([]NamedResource, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	typeDirOff := 0
	typeEntryOff := typeDirOff + directorySize
	nameDirOff := typeEntryOff + directoryEntrySize
	cursor := nameDirOff + directorySize + len(sorted)*directoryEntrySize

	type planned struct {
		nameEntryOff, langDirOff, langEntryOff, nameStringOff, dataEntryOff, rawOff int
		nameUTF16                                                                  []uint16
	}
	plans := make([]planned, len(sorted))
	for i, e := range sorted {
		p := planned{nameEntryOff: nameDirOff + directorySize + i*directoryEntrySize}
		p.langDirOff = cursor
		cursor += directorySize
		p.langEntryOff = cursor
		cursor += directoryEntrySize
		p.nameUTF16 = utf16.Encode([]rune(e.Name))
		p.nameStringOff = cursor
		cursor += align4(2 + len(p.nameUTF16)*2)
		p.dataEntryOff = cursor
		cursor += dataEntrySize
		plans[i] = p
	}
	rawBase := cursor
	var rawOffs []int
	for _, e := range sorted {
		rawOffs = append(rawOffs, rawBase)
		rawBase += len(e.Data)
	}
	total := rawBase
	buf := make([]byte, total)

	putDirectory(buf[typeDirOff:], 0, 1)
	putDirectoryEntry(buf[typeEntryOff:], directoryEntry{
		NameOrID:     RTRCData,
		OffsetToData: subdirFlag | uint32(nameDirOff),
	})
	putDirectory(buf[nameDirOff:], uint16(len(sorted)), 0)

	for i, e := range sorted {
		p := plans[i]
		putDirectoryEntry(buf[p.nameEntryOff:], directoryEntry{
			NameOrID:     subdirFlag | uint32(p.nameStringOff),
			OffsetToData: subdirFlag | uint32(p.langDirOff),
		})
		putDirectory(buf[p.langDirOff:], 0, 1)
		putDirectoryEntry(buf[p.langEntryOff:], directoryEntry{
			NameOrID:     resourceLangID,
			OffsetToData: uint32(p.dataEntryOff),
		})
		binary.LittleEndian.PutUint16(buf[p.nameStringOff:p.nameStringOff+2], uint16(len(p.nameUTF16)))
		for j, r := range p.nameUTF16 {
			binary.LittleEndian.PutUint16(buf[p.nameStringOff+2+j*2:p.nameStringOff+2+j*2+2], r)
		}
		putDataEntry(buf[p.dataEntryOff:], dataEntry{
			OffsetToData: sectionRVA + uint32(rawOffs[i]),
			Size:         uint32(len(e.Data)),
		})
		copy(buf[rawOffs[i]:], e.Data)
	}

	return buf, nil
}

// DataBytes slices an entry's bytes out of the .rsrc section's raw
// content, converting its RVA back into a section-relative offset using
// the section's own RVA.
func DataBytes(rsrc []byte, e RCDATAEntry, sectionRVA uint32) ([]byte, error) {
	off := int(e.DataOffset) - int(sectionRVA)
	if off < 0 || off+int(e.Size) > len(rsrc) {
		return nil, binerr.New(binerr.InvalidFormat, "pefmt.DataBytes", "", fmt.Errorf("entry data out of bounds"))
	}
	return rsrc[off : off+int(e.Size)], nil
}

func align4(n int) int { return (n + 3) &^ 3 }

func putDirectory(b []byte, numNamed, numID uint16) {
	binary.LittleEndian.PutUint32(b[0:4], 0)
	binary.LittleEndian.PutUint32(b[4:8], 0)
	binary.LittleEndian.PutUint16(b[8:10], 0)
	binary.LittleEndian.PutUint16(b[10:12], 0)
	binary.LittleEndian.PutUint16(b[12:14], numNamed)
	binary.LittleEndian.PutUint16(b[14:16], numID)
}

func putDirectoryEntry(b []byte, e directoryEntry) {
	binary.LittleEndian.PutUint32(b[0:4], e.NameOrID)
	binary.LittleEndian.PutUint32(b[4:8], e.OffsetToData)
}

func putDataEntry(b []byte, e dataEntry) {
	binary.LittleEndian.PutUint32(b[0:4], e.OffsetToData)
	binary.LittleEndian.PutUint32(b[4:8], e.Size)
	binary.LittleEndian.PutUint32(b[8:12], e.CodePage)
	binary.LittleEndian.PutUint32(b[12:16], e.Reserved)
}

// ParseRCDATAEntries walks a .rsrc section's raw bytes (as returned by
// File.RsrcSectionData) looking for RT_RCDATA resources, returning each
// one's logical (UTF-8) name, its data's offset and size within the
// section, and an error only for a structurally malformed tree — a
// section with no RT_RCDATA entries at all is reported as an empty slice,
// not an error.
func ParseRCDATAEntries(rsrc []byte) ([]RCDATAEntry, error) {
	op := "pefmt.ParseRCDATAEntries"
	if len(rsrc) < directorySize {
		return nil, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("rsrc section too short"))
	}

	var out []RCDATAEntry
	typeCount := int(binary.LittleEndian.Uint16(rsrc[12:14])) + int(binary.LittleEndian.Uint16(rsrc[14:16]))
	for i := 0; i < typeCount; i++ {
		entryOff := directorySize + i*directoryEntrySize
		if entryOff+directoryEntrySize > len(rsrc) {
			break
		}
		nameOrID := binary.LittleEndian.Uint32(rsrc[entryOff : entryOff+4])
		offsetToData := binary.LittleEndian.Uint32(rsrc[entryOff+4 : entryOff+8])
		if nameOrID&0x7FFFFFFF != RTRCData || offsetToData&subdirFlag == 0 {
			continue
		}
		nameDirOff := int(offsetToData &^ subdirFlag)
		entries, err := walkNameDirectory(rsrc, nameDirOff)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// RCDATAEntry describes one RT_RCDATA resource found in a .rsrc section.
type RCDATAEntry struct {
	Name       string
	DataOffset uint32 // RVA, as stored in the data entry
	Size       uint32
}

func walkNameDirectory(rsrc []byte, off int) ([]RCDATAEntry, error) {
	if off+directorySize > len(rsrc) {
		return nil, nil
	}
	named := int(binary.LittleEndian.Uint16(rsrc[off+12 : off+14]))
	ided := int(binary.LittleEndian.Uint16(rsrc[off+14 : off+16]))
	var out []RCDATAEntry
	for i := 0; i < named+ided; i++ {
		entryOff := off + directorySize + i*directoryEntrySize
		if entryOff+directoryEntrySize > len(rsrc) {
			break
		}
		nameOrID := binary.LittleEndian.Uint32(rsrc[entryOff : entryOff+4])
		offsetToData := binary.LittleEndian.Uint32(rsrc[entryOff+4 : entryOff+8])

		name := ""
		if nameOrID&subdirFlag != 0 {
			name = readResourceName(rsrc, int(nameOrID&^subdirFlag))
		}

		if offsetToData&subdirFlag == 0 {
			continue // a lang-level leaf with no name; skip
		}
		langDirOff := int(offsetToData &^ subdirFlag)
		leafEntries, err := collectLeaves(rsrc, langDirOff, name)
		if err != nil {
			return nil, err
		}
		out = append(out, leafEntries...)
	}
	return out, nil
}

func collectLeaves(rsrc []byte, off int, name string) ([]RCDATAEntry, error) {
	if off+directorySize > len(rsrc) {
		return nil, nil
	}
	named := int(binary.LittleEndian.Uint16(rsrc[off+12 : off+14]))
	ided := int(binary.LittleEndian.Uint16(rsrc[off+14 : off+16]))
	var out []RCDATAEntry
	for i := 0; i < named+ided; i++ {
		entryOff := off + directorySize + i*directoryEntrySize
		if entryOff+directoryEntrySize > len(rsrc) {
			break
		}
		offsetToData := binary.LittleEndian.Uint32(rsrc[entryOff+4 : entryOff+8])
		if offsetToData&subdirFlag != 0 {
			continue
		}
		dOff := int(offsetToData)
		if dOff+dataEntrySize > len(rsrc) {
			continue
		}
		rva := binary.LittleEndian.Uint32(rsrc[dOff : dOff+4])
		size := binary.LittleEndian.Uint32(rsrc[dOff+4 : dOff+8])
		out = append(out, RCDATAEntry{Name: name, DataOffset: rva, Size: size})
	}
	return out, nil
}

func readResourceName(rsrc []byte, off int) string {
	if off+2 > len(rsrc) {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(rsrc[off : off+2]))
	units := make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		pos := off + 2 + i*2
		if pos+2 > len(rsrc) {
			break
		}
		units = append(units, binary.LittleEndian.Uint16(rsrc[pos:pos+2]))
	}
	return string(utf16.Decode(units))
}
