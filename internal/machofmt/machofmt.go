// Package machofmt is a thin adapter over github.com/blacktop/go-macho,
// the pack's Mach-O parsing/writing library (same author/toolchain as
// internal/lzfse's codec). It re-exports the handful of types and the
// constructor internal/binfile and segwrite.go need, and adds the one
// operation the upstream library doesn't offer: splicing a new segment
// into a host binary's headerpad slack without a full relink.
package macho

import (
	upstream "github.com/blacktop/go-macho"
	upstreamtypes "github.com/blacktop/go-macho/types"
)

// File, FileTOC, Segment, SegmentHeader, Section, SectionHeader, and Load
// are upstream's own types, used here exactly as go-macho defines them.
// They cannot carry additional methods from this package (Go doesn't
// allow methods on aliased external types), so segwrite.go's own
// additions are free functions rather than methods on File.
type (
	File          = upstream.File
	FileTOC       = upstream.FileTOC
	Segment       = upstream.Segment
	SegmentHeader = upstream.SegmentHeader
	Section       = upstreamtypes.Section
	SectionHeader = upstreamtypes.SectionHeader
	Load          = upstream.Load
)

// NewFile parses a Mach-O image, delegating entirely to upstream.
var NewFile = upstream.NewFile
