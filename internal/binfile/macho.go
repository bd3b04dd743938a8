package binfile

import (
	"bytes"
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/binfmt"
	"github.com/socketsecurity/binfuse/internal/fuse"
	machofmt "github.com/socketsecurity/binfuse/internal/machofmt"
)

type machoTraits struct{ raw []byte }

func (t *machoTraits) Format() binfmt.Format { return binfmt.MachO }
func (t *machoTraits) Raw() []byte           { return t.raw }

func (t *machoTraits) parse(op string) (*machofmt.File, error) {
	f, err := machofmt.NewFile(bytes.NewReader(t.raw))
	if err != nil {
		return nil, binerr.New(binerr.InvalidFormat, op, "", err)
	}
	return f, nil
}

func (t *machoTraits) HasResource(name ResourceName) (bool, error) {
	f, err := t.parse("binfile.machoTraits.HasResource")
	if err != nil {
		return false, err
	}
	seg, sec := machoSegSec(name)
	return f.Section(seg, sec) != nil, nil
}

func (t *machoTraits) ListResources() ([]ResourceName, error) {
	f, err := t.parse("binfile.machoTraits.ListResources")
	if err != nil {
		return nil, err
	}
	var out []ResourceName
	for _, name := range []ResourceName{NodeSeaBlob, SmolVFSBlob, PressedData} {
		seg, sec := machoSegSec(name)
		if f.Section(seg, sec) != nil {
			out = append(out, name)
		}
	}
	return out, nil
}

func (t *machoTraits) ExtractResource(name ResourceName) ([]byte, error) {
	op := "binfile.machoTraits.ExtractResource"
	f, err := t.parse(op)
	if err != nil {
		return nil, err
	}
	seg, sec := machoSegSec(name)
	s := f.Section(seg, sec)
	if s == nil {
		return nil, binerr.New(binerr.SectionNotFound, op, "", fmt.Errorf("no section %s,%s", seg, sec))
	}
	data, err := s.Data()
	if err != nil {
		return nil, binerr.New(binerr.IOError, op, "", err)
	}
	return data, nil
}

// AddResource appends a new segment carrying the resource's bytes, via
// machofmt.AppendSegmentRaw's headerpad-splice technique, flipping the
// fuse sentinel first when the resource is one the fuse policy covers.
func (t *machoTraits) AddResource(name ResourceName, data []byte) ([]byte, error) {
	op := "binfile.machoTraits.AddResource"
	seg, sec := machoSegSec(name)
	if seg == "" {
		return nil, binerr.New(binerr.InvalidArguments, op, "", fmt.Errorf("unknown resource %s", name))
	}

	buf := make([]byte, len(t.raw))
	copy(buf, t.raw)
	if name == NodeSeaBlob || name == SmolVFSBlob {
		fuse.FlipInBuffer(buf)
	}

	out, err := machofmt.AppendSegmentRaw(buf, seg, sec, data)
	if err != nil {
		return nil, binerr.New(binerr.WriteFailed, op, "", err)
	}
	return out, nil
}

func (t *machoTraits) RemoveResource(name ResourceName) ([]byte, error) {
	op := "binfile.machoTraits.RemoveResource"
	seg, _ := machoSegSec(name)
	out, err := machofmt.RemoveSegmentRaw(t.raw, seg)
	if err != nil {
		return nil, binerr.New(binerr.SegmentNotFound, op, "", err)
	}
	return out, nil
}
