// Package binfile implements the binary traits facade (C8) and the
// generic section-ops layer (C9) that sit on top of the three
// format-specific packages (machofmt, elfnote, pefmt). Callers never
// need to branch on format themselves: Open inspects the leading bytes
// via internal/binfmt and returns the matching Traits implementation.
package binfile

import (
	"fmt"
	"os"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/binfmt"
)

// ResourceName is one of the three logical resource identifiers shared
// by every host format.
type ResourceName string

const (
	NodeSeaBlob ResourceName = "NODE_SEA_BLOB"
	SmolVFSBlob ResourceName = "SMOL_VFS_BLOB"
	PressedData ResourceName = "pressed_data"
)

func (r ResourceName) String() string { return string(r) }

// Traits is the uniform operations surface C8 exposes over Mach-O, ELF,
// and PE host binaries. Every mutating method returns the full rewritten
// image rather than writing in place — callers persist the result via
// internal/atomicio.
type Traits interface {
	Format() binfmt.Format
	Raw() []byte

	HasResource(name ResourceName) (bool, error)
	ListResources() ([]ResourceName, error)
	ExtractResource(name ResourceName) ([]byte, error)
	AddResource(name ResourceName, data []byte) ([]byte, error)
	RemoveResource(name ResourceName) ([]byte, error)
}

// Open reads path and returns the Traits implementation matching its
// detected format.
func Open(path string) (Traits, error) {
	op := "binfile.Open"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, binerr.New(binerr.IOError, op, path, err)
	}
	return OpenBytes(path, raw)
}

// OpenBytes is Open without the read, for callers that already hold the
// image in memory (tests, and sea.Compress, which has already read the
// file to compress it).
func OpenBytes(path string, raw []byte) (Traits, error) {
	op := "binfile.Open"
	switch binfmt.Probe(raw) {
	case binfmt.MachO:
		return &machoTraits{raw: raw}, nil
	case binfmt.ELF:
		return &elfTraits{raw: raw}, nil
	case binfmt.PE:
		return &peTraits{raw: raw}, nil
	default:
		return nil, binerr.New(binerr.InvalidFormat, op, path, fmt.Errorf("unrecognized binary format"))
	}
}

// machoSegSec returns the segment and section name a logical resource is
// realized as in a Mach-O host, per the data model's realization table.
func machoSegSec(name ResourceName) (segment, section string) {
	switch name {
	case NodeSeaBlob:
		return "NODE_SEA", "__NODE_SEA_BLOB"
	case SmolVFSBlob:
		return "NODE_SEA", "__SMOL_VFS_BLOB"
	case PressedData:
		return "SMOL", "__PRESSED_DATA"
	default:
		return "", ""
	}
}

// pePressedDataSection is the plain PE section name pressed_data is
// realized as — unlike the other two logical names, it is not an
// RT_RCDATA resource.
const pePressedDataSection = ".pressed_data"
