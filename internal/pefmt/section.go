package pefmt

import (
	"encoding/binary"
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

const (
	dosLfanewOffset   = 0x3C
	peSignatureSize   = 4
	coffHeaderSize    = 20
	sectionHeaderSize = 40
)

// peLayout is the handful of COFF/optional-header fields AppendSection
// needs, read directly off the raw bytes rather than through
// saferwall/pe (which does not expose a write path).
type peLayout struct {
	coffOffset        int
	numberOfSections  int
	sizeOfOptHeader   int
	sectionAlign      uint32
	fileAlign         uint32
	sizeOfImageOffset int
	sizeOfImage       uint32
	sizeOfHeaders     uint32
	sectionTableOff   int
}

func parsePELayout(raw []byte) (peLayout, error) {
	op := "pefmt.parsePELayout"
	if len(raw) < dosLfanewOffset+4 {
		return peLayout{}, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("file too short for DOS header"))
	}
	ntOffset := int(binary.LittleEndian.Uint32(raw[dosLfanewOffset : dosLfanewOffset+4]))
	if ntOffset < 0 || ntOffset+peSignatureSize+coffHeaderSize > len(raw) {
		return peLayout{}, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("NT header out of bounds"))
	}
	if string(raw[ntOffset:ntOffset+peSignatureSize]) != "PE\x00\x00" {
		return peLayout{}, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("bad PE signature"))
	}

	coffOff := ntOffset + peSignatureSize
	numSections := int(binary.LittleEndian.Uint16(raw[coffOff+2 : coffOff+4]))
	sizeOptHdr := int(binary.LittleEndian.Uint16(raw[coffOff+16 : coffOff+18]))

	optOff := coffOff + coffHeaderSize
	if optOff+64 > len(raw) {
		return peLayout{}, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("optional header out of bounds"))
	}
	magic := binary.LittleEndian.Uint16(raw[optOff : optOff+2])
	if magic != 0x10b && magic != 0x20b {
		return peLayout{}, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("unrecognized optional header magic %#x", magic))
	}

	// SectionAlignment, FileAlignment, SizeOfImage, and SizeOfHeaders sit
	// at the same offsets in both PE32 and PE32+: the only layout
	// difference before them (BaseOfData's presence vs. ImageBase's
	// width) nets out to the same byte count.
	sectionAlign := binary.LittleEndian.Uint32(raw[optOff+32 : optOff+36])
	fileAlign := binary.LittleEndian.Uint32(raw[optOff+36 : optOff+40])
	sizeOfImageOff := optOff + 56
	sizeOfHeadersOff := optOff + 60

	return peLayout{
		coffOffset:        coffOff,
		numberOfSections:  numSections,
		sizeOfOptHeader:   sizeOptHdr,
		sectionAlign:      sectionAlign,
		fileAlign:         fileAlign,
		sizeOfImageOffset: sizeOfImageOff,
		sizeOfImage:       binary.LittleEndian.Uint32(raw[sizeOfImageOff : sizeOfImageOff+4]),
		sizeOfHeaders:     binary.LittleEndian.Uint32(raw[sizeOfHeadersOff : sizeOfHeadersOff+4]),
		sectionTableOff:   optOff + sizeOptHdr,
	}, nil
}

// AppendSection adds one new section to a PE image: a fresh
// IMAGE_SECTION_HEADER entry spliced into the zero-filled slack most
// linkers leave between the end of the section header table and
// SizeOfHeaders (the same headerpad-style reservation machofmt.
// AppendSegmentRaw relies on for Mach-O), and the section's raw data
// appended at EOF, file-aligned. A host built with a section table that
// exactly fills its reserved header space cannot be extended this way.
func AppendSection(raw []byte, name string, data []byte, characteristics uint32) ([]byte, error) {
	op := "pefmt.AppendSection"
	layout, err := parsePELayout(raw)
	if err != nil {
		return nil, err
	}

	newHeaderOff := layout.sectionTableOff + layout.numberOfSections*sectionHeaderSize
	if newHeaderOff+sectionHeaderSize > int(layout.sizeOfHeaders) {
		return nil, binerr.New(binerr.WriteFailed, op, "", fmt.Errorf("no slack in section header table (need %d bytes, SizeOfHeaders=%d)", newHeaderOff+sectionHeaderSize, layout.sizeOfHeaders))
	}
	for _, b := range raw[newHeaderOff : newHeaderOff+sectionHeaderSize] {
		if b != 0 {
			return nil, binerr.New(binerr.WriteFailed, op, "", fmt.Errorf("section header slack is not zero-filled"))
		}
	}

	fileAlign := int(layout.fileAlign)
	if fileAlign == 0 {
		fileAlign = 1
	}
	sectAlign := int(layout.sectionAlign)
	if sectAlign == 0 {
		sectAlign = 1
	}

	rawDataOffset := alignUpInt(len(raw), fileAlign)
	rawDataSize := alignUpInt(len(data), fileAlign)
	virtualAddress := alignUpInt(int(layout.sizeOfImage), sectAlign)

	var nameBuf [8]byte
	copy(nameBuf[:], name)

	hdr := make([]byte, sectionHeaderSize)
	copy(hdr[0:8], nameBuf[:])
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(data)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(virtualAddress))
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(rawDataSize))
	binary.LittleEndian.PutUint32(hdr[20:24], uint32(rawDataOffset))
	binary.LittleEndian.PutUint32(hdr[36:40], characteristics)

	out := make([]byte, len(raw))
	copy(out, raw)
	copy(out[newHeaderOff:], hdr)

	binary.LittleEndian.PutUint16(out[layout.coffOffset+2:layout.coffOffset+4], uint16(layout.numberOfSections+1))

	newSizeOfImage := uint32(alignUpInt(virtualAddress+len(data), sectAlign))
	binary.LittleEndian.PutUint32(out[layout.sizeOfImageOffset:layout.sizeOfImageOffset+4], newSizeOfImage)

	out = append(out, make([]byte, rawDataOffset-len(raw))...)
	padded := make([]byte, rawDataSize)
	copy(padded, data)
	out = append(out, padded...)

	return out, nil
}

// sectionHeaderInfo is the subset of IMAGE_SECTION_HEADER this package
// reads directly off raw bytes, independent of saferwall/pe, so the
// section writers and the post-write checks never need a file on disk to
// inspect or mutate a PE image already held in memory.
type sectionHeaderInfo struct {
	Name                                                        string
	VirtualAddress, VirtualSize, SizeOfRawData, PointerToRawData uint32
}

func readSectionHeaders(raw []byte) ([]sectionHeaderInfo, peLayout, error) {
	layout, err := parsePELayout(raw)
	if err != nil {
		return nil, peLayout{}, err
	}
	var out []sectionHeaderInfo
	for i := 0; i < layout.numberOfSections; i++ {
		off := layout.sectionTableOff + i*sectionHeaderSize
		if off+sectionHeaderSize > len(raw) {
			break
		}
		out = append(out, sectionHeaderInfo{
			Name:             trimSectionName([8]byte(raw[off : off+8])),
			VirtualSize:      binary.LittleEndian.Uint32(raw[off+8 : off+12]),
			VirtualAddress:   binary.LittleEndian.Uint32(raw[off+12 : off+16]),
			SizeOfRawData:    binary.LittleEndian.Uint32(raw[off+16 : off+20]),
			PointerToRawData: binary.LittleEndian.Uint32(raw[off+20 : off+24]),
		})
	}
	return out, layout, nil
}

// SectionDataFromRaw returns a named section's raw file content directly
// from a PE image's bytes.
func SectionDataFromRaw(raw []byte, name string) ([]byte, bool) {
	headers, _, err := readSectionHeaders(raw)
	if err != nil {
		return nil, false
	}
	for _, h := range headers {
		if h.Name != name {
			continue
		}
		end := h.PointerToRawData + h.SizeOfRawData
		if end > uint32(len(raw)) {
			return nil, false
		}
		return raw[h.PointerToRawData:end], true
	}
	return nil, false
}

// SectionVirtualAddressFromRaw returns a named section's RVA.
func SectionVirtualAddressFromRaw(raw []byte, name string) (uint32, bool) {
	headers, _, err := readSectionHeaders(raw)
	if err != nil {
		return 0, false
	}
	for _, h := range headers {
		if h.Name == name {
			return h.VirtualAddress, true
		}
	}
	return 0, false
}

// IsLastSectionRaw reports whether name's raw data region ends at or
// after every other section's — i.e. growing it in place cannot collide
// with anything that follows, the same safety argument
// machofmt.AppendSegmentRaw and RemoveSegmentRaw rely on for Mach-O.
func IsLastSectionRaw(raw []byte, name string) bool {
	headers, _, err := readSectionHeaders(raw)
	if err != nil {
		return false
	}
	var targetEnd uint32
	found := false
	for _, h := range headers {
		if h.Name == name {
			targetEnd = h.PointerToRawData + h.SizeOfRawData
			found = true
		}
	}
	if !found {
		return false
	}
	for _, h := range headers {
		if h.Name == name {
			continue
		}
		if h.PointerToRawData+h.SizeOfRawData > targetEnd {
			return false
		}
	}
	return true
}

// GrowLastSection replaces a trailing section's raw content with
// newData, rewriting its SizeOfRawData/VirtualSize and truncating or
// extending the file at its raw data offset. The caller must have
// confirmed IsLastSectionRaw(raw, name) first.
func GrowLastSection(raw []byte, name string, newData []byte) ([]byte, error) {
	op := "pefmt.GrowLastSection"
	headers, layout, err := readSectionHeaders(raw)
	if err != nil {
		return nil, err
	}
	var rawDataOffset uint32
	found := false
	for _, h := range headers {
		if h.Name == name {
			rawDataOffset = h.PointerToRawData
			found = true
		}
	}
	if !found {
		return nil, binerr.New(binerr.SectionNotFound, op, "", fmt.Errorf("no section %s", name))
	}

	align := int(layout.fileAlign)
	if align == 0 {
		align = 1
	}
	newSize := alignUpInt(len(newData), align)

	out := make([]byte, rawDataOffset, int(rawDataOffset)+newSize)
	copy(out, raw[:rawDataOffset])
	padded := make([]byte, newSize)
	copy(padded, newData)
	out = append(out, padded...)

	sectionTableOff := layout.sectionTableOff
	for i := 0; i < layout.numberOfSections; i++ {
		entryOff := sectionTableOff + i*sectionHeaderSize
		if entryOff+sectionHeaderSize > len(raw) {
			break
		}
		if trimSectionName([8]byte(raw[entryOff : entryOff+8])) == name {
			binary.LittleEndian.PutUint32(out[entryOff+8:entryOff+12], uint32(len(newData)))
			binary.LittleEndian.PutUint32(out[entryOff+16:entryOff+20], uint32(newSize))
			break
		}
	}
	return out, nil
}

// NextSectionRVA returns the RVA a section appended via AppendSection
// would be assigned, without performing the append — needed by callers
// that must build a section's content (e.g. a resource tree, whose data
// entries embed absolute RVAs) before the section exists.
func NextSectionRVA(raw []byte) (uint32, error) {
	layout, err := parsePELayout(raw)
	if err != nil {
		return 0, err
	}
	sectAlign := int(layout.sectionAlign)
	if sectAlign == 0 {
		sectAlign = 1
	}
	return uint32(alignUpInt(int(layout.sizeOfImage), sectAlign)), nil
}

func alignUpInt(v, align int) int {
	if align <= 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
