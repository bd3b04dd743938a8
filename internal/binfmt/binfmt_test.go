package binfmt

import "testing"

func TestProbe(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want Format
	}{
		{"elf", []byte{0x7F, 'E', 'L', 'F', 2, 1, 1, 0}, ELF},
		{"macho64-le", []byte{0xCF, 0xFA, 0xED, 0xFE}, MachO},
		{"macho64-be", []byte{0xFE, 0xED, 0xFA, 0xCF}, MachO},
		{"macho-fat-be", []byte{0xCA, 0xFE, 0xBA, 0xBE}, MachO},
		{"pe", []byte{'M', 'Z', 0x90, 0x00}, PE},
		{"short", []byte{'M'}, Unknown},
		{"garbage", []byte{0x01, 0x02, 0x03, 0x04}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Probe(tt.in); got != tt.want {
				t.Errorf("Probe(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
