package types

import "fmt"

// MaxSlidePageStarts caps the page-starts arrays materialised for slide v3/v5.
const MaxSlidePageStarts = 1_000_000

// SlideInfo is one decoded slide-info blob; the concrete type is selected
// by the leading version word.
type SlideInfo interface {
	SlideVersion() uint32
}

// SlideInfo1 is the version 1 header (TOC + entries tables).
type SlideInfo1 struct {
	Version       uint32
	TocOffset     uint32
	TocCount      uint32
	EntriesOffset uint32
	EntriesCount  uint32
	EntriesSize   uint32
}

func (s SlideInfo1) SlideVersion() uint32 { return s.Version }

func (s SlideInfo1) String() string {
	return fmt.Sprintf("slide v1: toc=%d entries=%d", s.TocCount, s.EntriesCount)
}

// SlideInfo2 is the version 2 header; the page-starts and extras arrays
// beyond it are not materialised here.
type SlideInfo2 struct {
	Version          uint32
	PageSize         uint32
	PageStartsOffset uint32
	PageStartsCount  uint32
	PageExtrasOffset uint32
	PageExtrasCount  uint32
	DeltaMask        uint64
	ValueAdd         uint64
}

func (s SlideInfo2) SlideVersion() uint32 { return s.Version }

func (s SlideInfo2) String() string {
	return fmt.Sprintf("slide v2: page-size=%#x page-starts=%d delta-mask=%#x", s.PageSize, s.PageStartsCount, s.DeltaMask)
}

// SlideInfo3 is the version 3 header plus its page-starts array.
type SlideInfo3 struct {
	Version         uint32
	PageSize        uint32
	PageStartsCount uint32
	AuthValueAdd    uint64
	PageStarts      []uint16
}

func (s SlideInfo3) SlideVersion() uint32 { return s.Version }

func (s SlideInfo3) String() string {
	return fmt.Sprintf("slide v3: page-size=%#x page-starts=%d auth-value-add=%#x", s.PageSize, s.PageStartsCount, s.AuthValueAdd)
}

// SlideInfo4 is the version 4 header; same shape as version 2.
type SlideInfo4 struct {
	Version          uint32
	PageSize         uint32
	PageStartsOffset uint32
	PageStartsCount  uint32
	PageExtrasOffset uint32
	PageExtrasCount  uint32
	DeltaMask        uint64
	ValueAdd         uint64
}

func (s SlideInfo4) SlideVersion() uint32 { return s.Version }

func (s SlideInfo4) String() string {
	return fmt.Sprintf("slide v4: page-size=%#x page-starts=%d delta-mask=%#x", s.PageSize, s.PageStartsCount, s.DeltaMask)
}

// SlideInfo5 is the version 5 header plus its page-starts array.
type SlideInfo5 struct {
	Version         uint32
	PageSize        uint32
	PageStartsCount uint32
	ValueAdd        uint64
	PageStarts      []uint16
}

func (s SlideInfo5) SlideVersion() uint32 { return s.Version }

func (s SlideInfo5) String() string {
	return fmt.Sprintf("slide v5: page-size=%#x page-starts=%d value-add=%#x", s.PageSize, s.PageStartsCount, s.ValueAdd)
}
