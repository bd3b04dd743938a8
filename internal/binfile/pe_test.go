package binfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/socketsecurity/binfuse/internal/pefmt"
)

const (
	testDosLfanewOffset   = 0x3C
	testPESignatureSize   = 4
	testCoffHeaderSize    = 20
	testSectionHeaderSize = 40
	testOptHeaderSize     = 112
	testFileAlign         = 0x200
	testSectAlign         = 0x1000
)

func alignUpTest(v, align int) int { return (v + align - 1) &^ (align - 1) }

// buildSyntheticPEWithSlack mirrors pefmt's own section_test.go fixture:
// a minimal PE32+ image with one .text section and slackSections worth of
// zero-filled room in the section header table.
func buildSyntheticPEWithSlack(t *testing.T, slackSections int, sectionData []byte) []byte {
	t.Helper()
	ntOffset := 0x80
	coffOff := ntOffset + testPESignatureSize
	optOff := coffOff + testCoffHeaderSize
	sectionTableOff := optOff + testOptHeaderSize
	sizeOfHeaders := alignUpTest(sectionTableOff+(1+slackSections)*testSectionHeaderSize, testFileAlign)

	rawDataOffset := sizeOfHeaders
	rawDataSize := alignUpTest(len(sectionData), testFileAlign)
	virtualAddress := testSectAlign
	sizeOfImage := alignUpTest(virtualAddress+len(sectionData), testSectAlign)

	buf := make([]byte, rawDataOffset+rawDataSize)

	binary.LittleEndian.PutUint32(buf[testDosLfanewOffset:testDosLfanewOffset+4], uint32(ntOffset))
	copy(buf[ntOffset:ntOffset+testPESignatureSize], "PE\x00\x00")

	binary.LittleEndian.PutUint16(buf[coffOff+2:coffOff+4], 1)
	binary.LittleEndian.PutUint16(buf[coffOff+16:coffOff+18], uint16(testOptHeaderSize))

	binary.LittleEndian.PutUint16(buf[optOff:optOff+2], 0x20b)
	binary.LittleEndian.PutUint32(buf[optOff+32:optOff+36], testSectAlign)
	binary.LittleEndian.PutUint32(buf[optOff+36:optOff+40], testFileAlign)
	binary.LittleEndian.PutUint32(buf[optOff+56:optOff+60], uint32(sizeOfImage))
	binary.LittleEndian.PutUint32(buf[optOff+60:optOff+64], uint32(sizeOfHeaders))

	hdrOff := sectionTableOff
	copy(buf[hdrOff:hdrOff+8], ".text\x00\x00\x00")
	binary.LittleEndian.PutUint32(buf[hdrOff+8:hdrOff+12], uint32(len(sectionData)))
	binary.LittleEndian.PutUint32(buf[hdrOff+12:hdrOff+16], uint32(virtualAddress))
	binary.LittleEndian.PutUint32(buf[hdrOff+16:hdrOff+20], uint32(rawDataSize))
	binary.LittleEndian.PutUint32(buf[hdrOff+20:hdrOff+24], uint32(rawDataOffset))

	copy(buf[rawDataOffset:], sectionData)
	return buf
}

func TestPETraitsPressedDataAppendAndGrow(t *testing.T) {
	raw := buildSyntheticPEWithSlack(t, 2, []byte("int main(){}"))

	traits, err := OpenBytes("test.exe", raw)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	if traits.Format().String() != "PE" {
		t.Fatalf("Format = %v, want PE", traits.Format())
	}

	out, err := traits.AddResource(PressedData, []byte("compressed payload v1"))
	if err != nil {
		t.Fatalf("AddResource(PressedData): %v", err)
	}

	t2, _ := OpenBytes("test.exe", out)
	ok, err := t2.HasResource(PressedData)
	if err != nil || !ok {
		t.Fatalf("HasResource(PressedData): ok=%v err=%v", ok, err)
	}
	got, err := t2.ExtractResource(PressedData)
	if err != nil {
		t.Fatalf("ExtractResource: %v", err)
	}
	if string(got) != "compressed payload v1" {
		t.Errorf("got %q", got)
	}

	grown, err := t2.AddResource(PressedData, []byte("compressed payload v2, a fair bit longer than before"))
	if err != nil {
		t.Fatalf("AddResource (grow): %v", err)
	}
	t3, _ := OpenBytes("test.exe", grown)
	got2, err := t3.ExtractResource(PressedData)
	if err != nil {
		t.Fatalf("ExtractResource (grown): %v", err)
	}
	if string(got2) != "compressed payload v2, a fair bit longer than before" {
		t.Errorf("got %q after grow", got2)
	}
}

func TestPETraitsRCDATAInjectExtractMergeRemove(t *testing.T) {
	raw := buildSyntheticPEWithSlack(t, 3, []byte("int main(){}"))
	traits, err := OpenBytes("test.exe", raw)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	afterSea, err := traits.AddResource(NodeSeaBlob, []byte("sea blob bytes"))
	if err != nil {
		t.Fatalf("AddResource(NodeSeaBlob): %v", err)
	}
	t2, _ := OpenBytes("test.exe", afterSea)

	afterVFS, err := t2.AddResource(SmolVFSBlob, []byte("vfs blob bytes"))
	if err != nil {
		t.Fatalf("AddResource(SmolVFSBlob): %v", err)
	}
	t3, _ := OpenBytes("test.exe", afterVFS)

	for _, tc := range []struct {
		name ResourceName
		want string
	}{
		{NodeSeaBlob, "sea blob bytes"},
		{SmolVFSBlob, "vfs blob bytes"},
	} {
		got, err := t3.ExtractResource(tc.name)
		if err != nil {
			t.Fatalf("ExtractResource(%s): %v", tc.name, err)
		}
		if string(got) != tc.want {
			t.Errorf("ExtractResource(%s) = %q, want %q", tc.name, got, tc.want)
		}
	}

	removed, err := t3.RemoveResource(NodeSeaBlob)
	if err != nil {
		t.Fatalf("RemoveResource(NodeSeaBlob): %v", err)
	}
	t4, _ := OpenBytes("test.exe", removed)
	if ok, err := t4.HasResource(NodeSeaBlob); err != nil || ok {
		t.Fatalf("HasResource(NodeSeaBlob) after removal: ok=%v err=%v", ok, err)
	}
	if ok, err := t4.HasResource(SmolVFSBlob); err != nil || !ok {
		t.Fatalf("HasResource(SmolVFSBlob) should survive removal of NodeSeaBlob: ok=%v err=%v", ok, err)
	}
}

func TestPEAppendSectionAndParseRCDATAAgree(t *testing.T) {
	raw := buildSyntheticPEWithSlack(t, 2, []byte("int main(){}"))
	rva, err := pefmt.NextSectionRVA(raw)
	if err != nil {
		t.Fatalf("NextSectionRVA: %v", err)
	}
	section, err := pefmt.BuildMultiRCDATASection([]pefmt.NamedResource{{Name: "X", Data: []byte("y")}}, rva)
	if err != nil {
		t.Fatalf("BuildMultiRCDATASection: %v", err)
	}
	out, err := pefmt.AppendSection(raw, ".rsrc", section, 0x40000040)
	if err != nil {
		t.Fatalf("AppendSection: %v", err)
	}
	data, ok := pefmt.SectionDataFromRaw(out, ".rsrc")
	if !ok {
		t.Fatal("expected .rsrc section")
	}
	if !bytes.Equal(data, section) {
		t.Error(".rsrc section bytes do not round-trip through AppendSection")
	}
}
