// Package pefmt provides the PE-specific half of the binary traits
// facade: reading section and resource metadata via saferwall/pe (staging
// in-memory images to a temp file, since its parser only accepts a path),
// and writing RT_RCDATA resources into (or appending) the .rsrc
// section by hand, since saferwall/pe is a read-only analysis library.
package pefmt

import (
	"fmt"
	"os"

	peparser "github.com/saferwall/pe"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

// File wraps a parsed PE image with the subset of saferwall/pe's surface
// this tool needs: section enumeration and resource-directory presence
// checks.
type File struct {
	inner   *peparser.File
	path    string
	tmpPath string
}

// Open parses path as a PE image.
func Open(path string) (*File, error) {
	op := "pefmt.Open"
	pf, err := peparser.New(path, &peparser.Options{})
	if err != nil {
		return nil, binerr.New(binerr.InvalidFormat, op, path, err)
	}
	if err := pf.Parse(); err != nil {
		return nil, binerr.New(binerr.InvalidFormat, op, path, err)
	}
	return &File{inner: pf, path: path}, nil
}

// OpenBytes parses an in-memory PE image. saferwall/pe only accepts a
// filesystem path, while the production read paths here work on byte
// slices that sometimes have no file on disk at all (a buffer mid-mutation
// in AddResource, say) — so this stages raw to a temp file, parses that,
// and removes the temp file again on Close.
func OpenBytes(raw []byte) (*File, error) {
	op := "pefmt.OpenBytes"
	tmp, err := os.CreateTemp("", "binfuse-pe-*.tmp")
	if err != nil {
		return nil, binerr.New(binerr.IOError, op, "", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, binerr.New(binerr.IOError, op, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, binerr.New(binerr.IOError, op, tmpPath, err)
	}

	f, err := Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	f.tmpPath = tmpPath
	return f, nil
}

// Close releases any resources the underlying parser holds, and removes
// the backing temp file for a File opened via OpenBytes.
func (f *File) Close() error {
	if f.inner == nil {
		return nil
	}
	err := f.inner.Close()
	if f.tmpPath != "" {
		os.Remove(f.tmpPath)
	}
	return err
}

// SectionNames returns every section's trimmed, NUL-terminated name.
func (f *File) SectionNames() []string {
	if f.inner == nil {
		return nil
	}
	var names []string
	for _, sec := range f.inner.Sections {
		names = append(names, trimSectionName(sec.Header.Name))
	}
	return names
}

// HasSection reports whether a section with the given name exists.
func (f *File) HasSection(name string) bool {
	for _, n := range f.SectionNames() {
		if n == name {
			return true
		}
	}
	return false
}

// RsrcSectionData returns the raw content of the .rsrc section, or an
// error if the PE carries none.
func (f *File) RsrcSectionData() ([]byte, error) {
	data, ok := f.SectionData(".rsrc")
	if !ok {
		return nil, binerr.New(binerr.SectionNotFound, "pefmt.RsrcSectionData", f.path, fmt.Errorf("no .rsrc section"))
	}
	return data, nil
}

// SectionData returns a named section's raw content, read-only access
// used by both the resource-tree walk and the plain-section realization
// of pressed_data.
func (f *File) SectionData(name string) ([]byte, bool) {
	for _, sec := range f.inner.Sections {
		if trimSectionName(sec.Header.Name) == name {
			return sec.Data(0, 0, f.inner), true
		}
	}
	return nil, false
}

// SectionVirtualAddress returns a named section's RVA, needed to convert
// a resource data entry's RVA back into a section-relative offset when
// merging an existing resource tree.
func (f *File) SectionVirtualAddress(name string) (uint32, bool) {
	for _, sec := range f.inner.Sections {
		if trimSectionName(sec.Header.Name) == name {
			return sec.Header.VirtualAddress, true
		}
	}
	return 0, false
}

func trimSectionName(raw [8]byte) string {
	n := 0
	for ; n < len(raw); n++ {
		if raw[n] == 0 {
			break
		}
	}
	return string(raw[:n])
}
