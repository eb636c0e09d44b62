package dyldcache

import (
	"os"

	"github.com/apex/log"
	"github.com/appsworld/go-dyldcache/types"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

const (
	stringPoolChunkSize = 4 << 20
	// pools smaller than this are held in memory instead of a mapped temp file
	stringPoolMmapThreshold = 4 << 20
)

// A StringPool is a read-only view of the local-symbols string table. Large
// pools are streamed to a temp file and memory-mapped; the temp file is
// deleted when the pool is closed.
type StringPool struct {
	data []byte
	m    mmap.MMap
	f    *os.File
	path string
}

func newStringPool(src ByteSource, offset, size uint64) (*StringPool, error) {
	if size < stringPoolMmapThreshold {
		data, err := src.Read(offset, size)
		if err != nil {
			return nil, err
		}
		if uint64(len(data)) < size {
			return nil, errors.Wrapf(ErrRangeOutOfBounds, "string pool %#x+%#x truncated", offset, size)
		}
		owned := make([]byte, size)
		copy(owned, data)
		return &StringPool{data: owned}, nil
	}

	f, err := os.CreateTemp("", "dsc-strings-*")
	if err != nil {
		return nil, errors.Wrapf(ErrFileRead, "create string pool temp file: %v", err)
	}

	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}

	log.WithFields(log.Fields{
		"size": size,
		"path": f.Name(),
	}).Debug("streaming local symbol strings to temp file")

	for written := uint64(0); written < size; {
		n := uint64(stringPoolChunkSize)
		if size-written < n {
			n = size - written
		}
		chunk, err := src.Read(offset+written, n)
		if err != nil {
			cleanup()
			return nil, err
		}
		if uint64(len(chunk)) < n {
			cleanup()
			return nil, errors.Wrapf(ErrRangeOutOfBounds, "string pool %#x+%#x truncated at %#x", offset, size, written)
		}
		if _, err := f.Write(chunk); err != nil {
			cleanup()
			return nil, errors.Wrapf(ErrFileRead, "write string pool temp file: %v", err)
		}
		written += n
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		cleanup()
		return nil, errors.Wrapf(ErrFileRead, "mmap string pool: %v", err)
	}

	return &StringPool{data: m, m: m, f: f, path: f.Name()}, nil
}

// String returns the NUL-terminated string at the pool offset, or "" when
// the offset is out of bounds.
func (p *StringPool) String(offset uint64) string {
	if offset >= uint64(len(p.data)) {
		return ""
	}
	b := p.data[offset:]
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Size returns the pool size in bytes.
func (p *StringPool) Size() uint64 {
	return uint64(len(p.data))
}

// Close releases the mapping and deletes the temp file, if any. Deletion
// failures are ignored.
func (p *StringPool) Close() error {
	if p.m != nil {
		p.m.Unmap()
		p.m = nil
	}
	if p.f != nil {
		p.f.Close()
		os.Remove(p.path)
		p.f = nil
	}
	p.data = nil
	return nil
}

// A Symbol is one resolved local symbol.
type Symbol struct {
	Name  string
	Value uint64
	Type  types.NlistType
	Sect  uint8
	Desc  uint16
}

// LocalSymbols is the shared local-symbol context: the info record, the
// string pool, and the per-image entry table. Build it once and reuse it
// across every image of a symbolication session.
type LocalSymbols struct {
	Info types.LocalSymbolsInfo

	src           ByteSource
	baseOffset    uint64
	entriesOffset uint64
	nlistOffset   uint64
	use64         bool
	pool          *StringPool
}

// NewLocalSymbols reads the local-symbols info at baseOffset of src and
// builds the shared context. use64BitDylibOffsets selects the entry shape;
// the format does not self-describe it.
func NewLocalSymbols(src ByteSource, baseOffset uint64, use64BitDylibOffsets bool) (*LocalSymbols, error) {
	data, err := readTable(src, "local-symbols-info", baseOffset, 1, types.LocalSymbolsInfoSize)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.Wrapf(ErrInvalidLocalSymbolsInfo, "no local symbols at %#x", baseOffset)
	}
	info, err := parseLocalSymbolsInfo(NewCursor(data))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidLocalSymbolsInfo, "%v", err)
	}

	stringsEnd := baseOffset + uint64(info.StringsOffset) + uint64(info.StringsSize)
	if stringsEnd < baseOffset || stringsEnd > src.Size() {
		return nil, errors.Wrapf(ErrInvalidLocalSymbolsInfo, "string table %#x+%#x exceeds file size %#x",
			info.StringsOffset, info.StringsSize, src.Size())
	}

	pool, err := newStringPool(src, baseOffset+uint64(info.StringsOffset), uint64(info.StringsSize))
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"nlists":  info.NlistCount,
		"entries": info.EntriesCount,
	}).Debug("parsed local symbols info")

	return &LocalSymbols{
		Info:          info,
		src:           src,
		baseOffset:    baseOffset,
		entriesOffset: baseOffset + uint64(info.EntriesOffset),
		nlistOffset:   baseOffset + uint64(info.NlistOffset),
		use64:         use64BitDylibOffsets,
		pool:          pool,
	}, nil
}

// Close releases the string pool.
func (l *LocalSymbols) Close() error {
	return l.pool.Close()
}

func (l *LocalSymbols) entrySize() uint64 {
	if l.use64 {
		return types.LocalSymbolsEntry64Size
	}
	return types.LocalSymbolsEntry32Size
}

// EntryForImage reads the entry record describing image index.
func (l *LocalSymbols) EntryForImage(index int) (types.LocalSymbolsEntry, error) {
	if index < 0 || uint64(index) >= uint64(l.Info.EntriesCount) {
		return types.LocalSymbolsEntry{}, errors.Wrapf(ErrImageIndexOutOfBounds, "image %d of %d", index, l.Info.EntriesCount)
	}
	data, err := readTable(l.src, "local-symbols-entry", l.entriesOffset+uint64(index)*l.entrySize(), 1, l.entrySize())
	if err != nil {
		return types.LocalSymbolsEntry{}, err
	}
	entry, err := parseLocalSymbolsEntry(NewCursor(data), l.use64)
	if err != nil {
		return types.LocalSymbolsEntry{}, errors.Wrapf(ErrInvalidLocalSymbolsInfo, "entry %d: %v", index, err)
	}
	return entry, nil
}

// SymbolsForImage resolves the local symbols of image index, in on-disk
// order. Records whose pool string is empty are dropped.
func (l *LocalSymbols) SymbolsForImage(index int) ([]Symbol, error) {
	entry, err := l.EntryForImage(index)
	if err != nil {
		return nil, err
	}

	data, err := readTable(l.src, "nlists",
		l.nlistOffset+uint64(entry.NlistStartIndex)*types.Nlist64Size,
		uint64(entry.NlistCount), types.Nlist64Size)
	if err != nil {
		return nil, err
	}

	var syms []Symbol
	c := NewCursor(data)
	for i := uint32(0); i < entry.NlistCount; i++ {
		n, err := parseNlist64(c)
		if err != nil {
			return nil, err
		}
		name := l.pool.String(uint64(n.StringIndex))
		if name == "" {
			continue
		}
		syms = append(syms, Symbol{
			Name:  name,
			Value: n.Value,
			Type:  n.Type,
			Sect:  n.Sect,
			Desc:  n.Desc,
		})
	}

	return syms, nil
}
