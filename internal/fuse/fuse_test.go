package fuse

import "testing"

func TestFlipInSectionsFindsFirstMatch(t *testing.T) {
	sections := []Section{
		{Name: "__TEXT", Data: []byte("nothing here")},
		{Name: "NODE_SEA", Data: []byte("prefix " + Sentinel + " suffix")},
	}
	flipped := FlipInSections(sections)
	if !flipped {
		t.Fatal("expected a flip")
	}
	want := "prefix " + Sentinel[:len(Sentinel)-1] + "1" + " suffix"
	if string(sections[1].Data) != want {
		t.Errorf("got %q, want %q", sections[1].Data, want)
	}
}

func TestFlipInSectionsNoMatchIsNotError(t *testing.T) {
	sections := []Section{{Name: "__TEXT", Data: []byte("no sentinel here")}}
	if FlipInSections(sections) {
		t.Fatal("expected no flip")
	}
}

func TestFlipInBuffer(t *testing.T) {
	buf := []byte("junk " + Sentinel + " junk")
	if !FlipInBuffer(buf) {
		t.Fatal("expected a flip")
	}
	want := []byte("junk " + Sentinel[:len(Sentinel)-1] + "1" + " junk")
	if string(buf) != string(want) {
		t.Errorf("got %q, want %q", buf, want)
	}
}

func TestShouldFlip(t *testing.T) {
	cases := []struct {
		name   string
		blob   []byte
		exists bool
		want   bool
	}{
		{"nil blob", nil, false, false},
		{"empty blob", []byte{}, false, false},
		{"already exists", []byte("x"), true, false},
		{"fresh install", []byte("x"), false, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ShouldFlip(c.blob, c.exists); got != c.want {
				t.Errorf("ShouldFlip(%v, %v) = %v, want %v", c.blob, c.exists, got, c.want)
			}
		})
	}
}
