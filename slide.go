package dyldcache

import (
	"github.com/appsworld/go-dyldcache/types"
	"github.com/pkg/errors"
)

// ParseSlideInfo decodes one slide-info blob, dispatching on the leading
// version word. Versions 1, 2 and 4 decode their headers only; versions 3
// and 5 also materialise their page-starts arrays.
func ParseSlideInfo(data []byte) (types.SlideInfo, error) {
	c := NewCursor(data)

	version, err := c.Uint32()
	if err != nil {
		return nil, errors.Wrapf(ErrSlideInfoParse, "%v", err)
	}

	switch version {
	case 1:
		return parseSlideInfo1(c)
	case 2:
		s, err := parseSlideInfo2(c)
		if err != nil {
			return nil, err
		}
		s.Version = version
		return s, nil
	case 3:
		return parseSlideInfo3(c)
	case 4:
		s, err := parseSlideInfo2(c)
		if err != nil {
			return nil, err
		}
		return types.SlideInfo4{
			Version:          version,
			PageSize:         s.PageSize,
			PageStartsOffset: s.PageStartsOffset,
			PageStartsCount:  s.PageStartsCount,
			PageExtrasOffset: s.PageExtrasOffset,
			PageExtrasCount:  s.PageExtrasCount,
			DeltaMask:        s.DeltaMask,
			ValueAdd:         s.ValueAdd,
		}, nil
	case 5:
		return parseSlideInfo5(c)
	}

	return nil, errors.Wrapf(ErrUnknownSlideInfoVersion, "version %d", version)
}

func parseSlideInfo1(c *Cursor) (s types.SlideInfo1, err error) {
	s.Version = 1
	if s.TocOffset, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v1: %v", err)
	}
	if s.TocCount, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v1: %v", err)
	}
	if s.EntriesOffset, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v1: %v", err)
	}
	if s.EntriesCount, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v1: %v", err)
	}
	if s.EntriesSize, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v1: %v", err)
	}
	return s, nil
}

// parseSlideInfo2 reads the shared v2/v4 header shape (version word already
// consumed).
func parseSlideInfo2(c *Cursor) (s types.SlideInfo2, err error) {
	s.Version = 2
	if s.PageSize, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v2/v4: %v", err)
	}
	if s.PageStartsOffset, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v2/v4: %v", err)
	}
	if s.PageStartsCount, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v2/v4: %v", err)
	}
	if s.PageExtrasOffset, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v2/v4: %v", err)
	}
	if s.PageExtrasCount, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v2/v4: %v", err)
	}
	if s.DeltaMask, err = c.Uint64(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v2/v4: %v", err)
	}
	if s.ValueAdd, err = c.Uint64(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v2/v4: %v", err)
	}
	return s, nil
}

func parseSlideInfo3(c *Cursor) (s types.SlideInfo3, err error) {
	s.Version = 3
	if s.PageSize, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v3: %v", err)
	}
	if s.PageStartsCount, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v3: %v", err)
	}
	// 4 alignment bytes precede the 8-byte auth_value_add
	if _, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v3: %v", err)
	}
	if s.AuthValueAdd, err = c.Uint64(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v3: %v", err)
	}
	s.PageStarts, err = readPageStarts(c, s.PageStartsCount, "v3")
	return s, err
}

func parseSlideInfo5(c *Cursor) (s types.SlideInfo5, err error) {
	s.Version = 5
	if s.PageSize, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v5: %v", err)
	}
	if s.PageStartsCount, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v5: %v", err)
	}
	if _, err = c.Uint32(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v5: %v", err)
	}
	if s.ValueAdd, err = c.Uint64(); err != nil {
		return s, errors.Wrapf(ErrSlideInfoParse, "v5: %v", err)
	}
	s.PageStarts, err = readPageStarts(c, s.PageStartsCount, "v5")
	return s, err
}

func readPageStarts(c *Cursor, count uint32, version string) ([]uint16, error) {
	if count > types.MaxSlidePageStarts {
		return nil, errors.Wrapf(ErrSlideInfoParse, "%s: unreasonable page starts count %d", version, count)
	}
	starts := make([]uint16, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := c.Uint16()
		if err != nil {
			return nil, errors.Wrapf(ErrSlideInfoParse, "%s: page start %d: %v", version, i, err)
		}
		starts = append(starts, v)
	}
	return starts, nil
}
