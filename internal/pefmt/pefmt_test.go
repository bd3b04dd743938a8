package pefmt

import "testing"

func TestTrimSectionName(t *testing.T) {
	cases := []struct {
		raw  [8]byte
		want string
	}{
		{[8]byte{'.', 'r', 's', 'r', 'c', 0, 0, 0}, ".rsrc"},
		{[8]byte{'.', 't', 'e', 'x', 't', 0, 0, 0}, ".text"},
		{[8]byte{0, 0, 0, 0, 0, 0, 0, 0}, ""},
	}
	for _, c := range cases {
		if got := trimSectionName(c.raw); got != c.want {
			t.Errorf("trimSectionName(%v) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestFileHasSection(t *testing.T) {
	f := &File{}
	// inner is nil, so SectionNames must not panic on an empty Sections
	// slice; this only exercises the zero-section path since constructing
	// a real saferwall/pe.File requires parsing an actual PE image.
	if f.HasSection(".rsrc") {
		t.Fatal("expected no sections on an empty File")
	}
}
