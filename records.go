package dyldcache

import (
	"fmt"

	"github.com/appsworld/go-dyldcache/types"
)

// Fixed-layout record decoders. Each consumes exactly one on-disk record
// from the cursor.

func parseMappingInfo(c *Cursor) (m types.MappingInfo, err error) {
	if m.Address, err = c.Uint64(); err != nil {
		return
	}
	if m.Size, err = c.Uint64(); err != nil {
		return
	}
	if m.FileOffset, err = c.Uint64(); err != nil {
		return
	}
	var prot uint32
	if prot, err = c.Uint32(); err != nil {
		return
	}
	m.MaxProt = types.VmProtection(prot)
	if prot, err = c.Uint32(); err != nil {
		return
	}
	m.InitProt = types.VmProtection(prot)
	return
}

func parseMappingAndSlideInfo(c *Cursor) (m types.MappingAndSlideInfo, err error) {
	if m.Address, err = c.Uint64(); err != nil {
		return
	}
	if m.Size, err = c.Uint64(); err != nil {
		return
	}
	if m.FileOffset, err = c.Uint64(); err != nil {
		return
	}
	if m.SlideInfoFileOffset, err = c.Uint64(); err != nil {
		return
	}
	if m.SlideInfoFileSize, err = c.Uint64(); err != nil {
		return
	}
	var flags uint64
	if flags, err = c.Uint64(); err != nil {
		return
	}
	m.Flags = types.MappingFlags(flags)
	var prot uint32
	if prot, err = c.Uint32(); err != nil {
		return
	}
	m.MaxProt = types.VmProtection(prot)
	if prot, err = c.Uint32(); err != nil {
		return
	}
	m.InitProt = types.VmProtection(prot)
	return
}

func parseImageInfo(c *Cursor) (i types.ImageInfo, err error) {
	if i.Address, err = c.Uint64(); err != nil {
		return
	}
	if i.ModTime, err = c.Uint64(); err != nil {
		return
	}
	if i.Inode, err = c.Uint64(); err != nil {
		return
	}
	if i.PathFileOffset, err = c.Uint32(); err != nil {
		return
	}
	i.Pad, err = c.Uint32()
	return
}

func parseImageTextInfo(c *Cursor) (i types.ImageTextInfo, err error) {
	var b []byte
	if b, err = c.Bytes(16); err != nil {
		return
	}
	copy(i.UUID[:], b)
	if i.LoadAddress, err = c.Uint64(); err != nil {
		return
	}
	if i.TextSegmentSize, err = c.Uint32(); err != nil {
		return
	}
	i.PathOffset, err = c.Uint32()
	return
}

// parseSubCacheEntry decodes either entry shape; for v1 entries the file
// suffix is synthesised from the 1-based index.
func parseSubCacheEntry(c *Cursor, v1 bool, index int) (e types.SubCacheEntry, err error) {
	var b []byte
	if b, err = c.Bytes(16); err != nil {
		return
	}
	copy(e.UUID[:], b)
	if e.CacheVMOffset, err = c.Uint64(); err != nil {
		return
	}
	if v1 {
		e.FileSuffix = fmt.Sprintf(".%d", index+1)
		return
	}
	if b, err = c.Bytes(32); err != nil {
		return
	}
	for i, ch := range b {
		if ch == 0 {
			b = b[:i]
			break
		}
	}
	e.FileSuffix = string(b)
	return
}

func parseLocalSymbolsInfo(c *Cursor) (i types.LocalSymbolsInfo, err error) {
	if i.NlistOffset, err = c.Uint32(); err != nil {
		return
	}
	if i.NlistCount, err = c.Uint32(); err != nil {
		return
	}
	if i.StringsOffset, err = c.Uint32(); err != nil {
		return
	}
	if i.StringsSize, err = c.Uint32(); err != nil {
		return
	}
	if i.EntriesOffset, err = c.Uint32(); err != nil {
		return
	}
	i.EntriesCount, err = c.Uint32()
	return
}

// parseLocalSymbolsEntry decodes one entry; the dylib offset is 32 or 64
// bits wide depending on a caller-selected option.
func parseLocalSymbolsEntry(c *Cursor, use64 bool) (e types.LocalSymbolsEntry, err error) {
	if use64 {
		if e.DylibOffset, err = c.Uint64(); err != nil {
			return
		}
	} else {
		var off uint32
		if off, err = c.Uint32(); err != nil {
			return
		}
		e.DylibOffset = uint64(off)
	}
	if e.NlistStartIndex, err = c.Uint32(); err != nil {
		return
	}
	e.NlistCount, err = c.Uint32()
	return
}

func parseNlist64(c *Cursor) (n types.Nlist64, err error) {
	if n.StringIndex, err = c.Uint32(); err != nil {
		return
	}
	var t uint8
	if t, err = c.Uint8(); err != nil {
		return
	}
	n.Type = types.NlistType(t)
	if n.Sect, err = c.Uint8(); err != nil {
		return
	}
	if n.Desc, err = c.Uint16(); err != nil {
		return
	}
	n.Value, err = c.Uint64()
	return
}
