package dyldcache

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/apex/log"
	"github.com/appsworld/go-dyldcache/pkg/trie"
	"github.com/appsworld/go-dyldcache/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// An Opener resolves a path to a ByteSource. Returning (nil, nil) means the
// file does not exist; any other failure must surface as an error.
type Opener func(path string) (ByteSource, error)

// FileOpener is the default Opener, backed by positioned file reads.
func FileOpener(path string) (ByteSource, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(ErrFileRead, "stat %s: %v", path, err)
	}
	return OpenFileSource(path)
}

// Options controls multi-file resolution.
type Options struct {
	// RequireAllSubCaches makes a missing subcache file fatal instead of skipped.
	RequireAllSubCaches bool
	// RequireSymbolsFile makes a missing .symbols sidecar fatal.
	RequireSymbolsFile bool
	// Use64BitDylibOffsets selects the 16-byte local-symbols entry shape.
	Use64BitDylibOffsets bool
}

type subCacheFile struct {
	cache *Cache
	src   ByteSource
	path  string
}

// A MultiCache joins a main cache with its ordered subcaches and optional
// symbols sidecar. It is immutable once built and safe for concurrent use.
type MultiCache struct {
	Main *Cache

	mainSrc  ByteSource
	mainPath string

	subCaches []*subCacheFile
	byUUID    map[types.UUID]*subCacheFile

	symbols    *Cache
	symbolsSrc ByteSource

	opts Options
}

// Open opens the cache at path with the default file-backed opener.
func Open(path string, opts Options) (*MultiCache, error) {
	return OpenWith(path, FileOpener, opts)
}

// OpenWith opens the main cache at mainPath via opener, resolves every
// declared subcache next to it, verifies UUID consistency, and publishes a
// read-only coordinator.
func OpenWith(mainPath string, opener Opener, opts Options) (*MultiCache, error) {
	mainSrc, err := opener(mainPath)
	if err != nil {
		return nil, err
	}
	if mainSrc == nil {
		return nil, errors.Wrapf(ErrFileRead, "no such cache %s", mainPath)
	}

	main, err := NewCache(mainSrc)
	if err != nil {
		return nil, err
	}

	mc := &MultiCache{
		Main:     main,
		mainSrc:  mainSrc,
		mainPath: mainPath,
		byUUID:   make(map[types.UUID]*subCacheFile),
		opts:     opts,
	}

	log.WithFields(log.Fields{
		"uuid":      main.Header.UUID.String(),
		"subcaches": len(main.SubCaches),
	}).Debug("parsed main cache")

	results := make([]*subCacheFile, len(main.SubCaches))
	var g errgroup.Group
	for i := range main.SubCaches {
		i := i
		entry := main.SubCaches[i]
		g.Go(func() error {
			path := filepath.Join(filepath.Dir(mainPath), filepath.Base(mainPath)+entry.FileSuffix)
			src, err := opener(path)
			if err != nil {
				return err
			}
			if src == nil {
				if opts.RequireAllSubCaches {
					return errors.Wrapf(ErrSubCacheNotFound, "%s", path)
				}
				log.Debugf("skipping missing subcache %s", path)
				return nil
			}
			sub, err := NewCache(src)
			if err != nil {
				return errors.Wrapf(err, "subcache %s", path)
			}
			if sub.Header.UUID != entry.UUID {
				return errors.Wrapf(ErrSubCacheUUIDMismatch, "%s: expected %s, actual %s",
					path, entry.UUID, sub.Header.UUID)
			}
			results[i] = &subCacheFile{cache: sub, src: src, path: path}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		mc.closeAll(results)
		return nil, err
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		mc.subCaches = append(mc.subCaches, r)
		mc.byUUID[r.cache.Header.UUID] = r
	}

	if main.Header.HasSymbolsFile() {
		path := mainPath + ".symbols"
		src, err := opener(path)
		if err != nil {
			mc.Close()
			return nil, err
		}
		if src == nil {
			if opts.RequireSymbolsFile {
				mc.Close()
				return nil, errors.Wrapf(ErrSymbolsFileNotFound, "%s", path)
			}
			log.Debugf("skipping missing symbols file %s", path)
		} else {
			symCache, err := NewCache(src)
			if err != nil {
				closeSource(src)
				mc.Close()
				return nil, errors.Wrapf(err, "symbols file %s", path)
			}
			if symCache.Header.UUID != main.Header.SymbolFileUUID {
				closeSource(src)
				mc.Close()
				return nil, errors.Wrapf(ErrSubCacheUUIDMismatch, "%s: expected %s, actual %s",
					path, main.Header.SymbolFileUUID, symCache.Header.UUID)
			}
			mc.symbols = symCache
			mc.symbolsSrc = src
		}
	}

	return mc, nil
}

func closeSource(src ByteSource) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}

func (mc *MultiCache) closeAll(results []*subCacheFile) {
	for _, r := range results {
		if r != nil {
			closeSource(r.src)
		}
	}
	closeSource(mc.mainSrc)
}

// Close closes every byte source that supports closing.
func (mc *MultiCache) Close() error {
	for _, sub := range mc.subCaches {
		closeSource(sub.src)
	}
	if mc.symbolsSrc != nil {
		closeSource(mc.symbolsSrc)
	}
	closeSource(mc.mainSrc)
	return nil
}

// SubCacheUUIDs returns the UUIDs of the loaded subcaches, in declared order.
func (mc *MultiCache) SubCacheUUIDs() []types.UUID {
	uuids := make([]types.UUID, 0, len(mc.subCaches))
	for _, sub := range mc.subCaches {
		uuids = append(uuids, sub.cache.Header.UUID)
	}
	return uuids
}

// SubCache returns the loaded subcache with the given UUID.
func (mc *MultiCache) SubCache(uuid types.UUID) (*Cache, bool) {
	sub, ok := mc.byUUID[uuid]
	if !ok {
		return nil, false
	}
	return sub.cache, true
}

// Symbols returns the parsed symbols sidecar, or nil when absent.
func (mc *MultiCache) Symbols() *Cache {
	return mc.symbols
}

// files returns the VM-mapped files in lookup order: main first, then the
// subcaches as declared.
func (mc *MultiCache) files() []*subCacheFile {
	all := make([]*subCacheFile, 0, 1+len(mc.subCaches))
	all = append(all, &subCacheFile{cache: mc.Main, src: mc.mainSrc, path: mc.mainPath})
	all = append(all, mc.subCaches...)
	return all
}

// ReadBytes reads size bytes starting at the unslid VM address, crossing
// file boundaries as needed. Any unmapped byte in the range is an error.
func (mc *MultiCache) ReadBytes(vmAddress, size uint64) ([]byte, error) {
	out := make([]byte, 0, size)
	files := mc.files()

	addr := vmAddress
	remaining := size
	for remaining > 0 {
		var m types.MappingInfo
		var src ByteSource
		found := false
		for _, f := range files {
			if mapping, ok := f.cache.Resolver().MappingForVMAddress(addr); ok {
				m, src, found = mapping, f.src, true
				break
			}
		}
		if !found {
			return nil, errors.Wrapf(ErrVMAddressNotMapped, "%#x", addr)
		}

		n := m.Address + m.Size - addr
		if n > remaining {
			n = remaining
		}
		fileOff := m.FileOffset + (addr - m.Address)
		chunk, err := src.Read(fileOff, n)
		if err != nil {
			return nil, err
		}
		if uint64(len(chunk)) < n {
			return nil, errors.Wrapf(ErrRangeOutOfBounds, "short read of %#x bytes at %#x", n, fileOff)
		}
		out = append(out, chunk...)

		addr += n
		remaining -= n
	}

	return out, nil
}

// ImageCount returns the number of images in the main cache.
func (mc *MultiCache) ImageCount() int {
	return len(mc.Main.Images)
}

// ImagePath reads the path of image index i from the main cache.
func (mc *MultiCache) ImagePath(i int) (string, error) {
	return mc.Main.ImagePath(i)
}

// ImagePaths reads every image path of the main cache.
func (mc *MultiCache) ImagePaths() ([]string, error) {
	paths := make([]string, len(mc.Main.Images))
	for i := range mc.Main.Images {
		path, err := mc.Main.ImagePath(i)
		if err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}

// imageAddress returns the unslid load address of image index.
func (mc *MultiCache) imageAddress(index int) (uint64, error) {
	if index >= 0 && index < len(mc.Main.Images) {
		return mc.Main.Images[index].Address, nil
	}
	if index >= 0 && index < len(mc.Main.ImagesText) {
		return mc.Main.ImagesText[index].LoadAddress, nil
	}
	return 0, errors.Wrapf(ErrImageIndexOutOfBounds, "image %d of %d", index, len(mc.Main.Images))
}

// FindImage returns the image index with the given text UUID.
func (mc *MultiCache) FindImage(uuid types.UUID) (int, error) {
	for i, img := range mc.Main.ImagesText {
		if img.UUID == uuid {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrImageIndexOutOfBounds, "no image with UUID %s", uuid)
}

// ExportedSymbolsForImage locates the image's exports trie and enumerates
// it best-effort. Images without a trie yield an empty list.
func (mc *MultiCache) ExportedSymbolsForImage(index int) ([]trie.TrieEntry, error) {
	addr, err := mc.imageAddress(index)
	if err != nil {
		return nil, err
	}

	probe, err := mc.ReadBytes(addr, types.MachOHeaderSize64)
	if err != nil {
		return nil, err
	}
	hdrSize, sizeOfCmds, _, err := machOHeaderSizes(probe)
	if err != nil {
		return nil, err
	}

	total := uint64(hdrSize) + uint64(sizeOfCmds)
	if total == 0 || total > MaxMachOHeaderSize {
		return nil, errors.Wrapf(ErrInvalidMachO, "unreasonable load command size %#x", total)
	}

	data, err := mc.ReadBytes(addr, total)
	if err != nil {
		return nil, err
	}
	loc, err := LocateExportsTrie(data)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, nil
	}

	trieData, err := mc.ReadBytes(loc.VMAddress, loc.Size)
	if err != nil {
		return nil, err
	}

	return trie.ParseTrieBestEffort(trieData), nil
}

// OpenLocalSymbols builds the shared local-symbols context against the
// symbols sidecar when present, else the main file. Callers symbolicating
// many images should build this once and reuse it.
func (mc *MultiCache) OpenLocalSymbols() (*LocalSymbols, error) {
	if !mc.Main.Header.Architecture.Is64Bit() {
		return nil, errors.Wrapf(ErrUnsupportedArchitecture, "local symbols need 64-bit nlists, cache is %s",
			mc.Main.Header.Architecture)
	}

	cache, src := mc.Main, mc.mainSrc
	if mc.symbols != nil {
		cache, src = mc.symbols, mc.symbolsSrc
	}
	if cache.Header.LocalSymbolsOffset == 0 || cache.Header.LocalSymbolsSize == 0 {
		return nil, errors.Wrapf(ErrInvalidLocalSymbolsInfo, "cache has no local symbols")
	}
	return NewLocalSymbols(src, cache.Header.LocalSymbolsOffset, mc.opts.Use64BitDylibOffsets)
}

// A SymbolMatch is the result of symbolicating a pc value.
type SymbolMatch struct {
	Name         string
	PCOffset     uint64
	SymbolOffset uint64
	Addend       uint64
}

type symbolEntry struct {
	offset uint64
	name   string
}

// Symbolicate resolves pc against the image with the given UUID. Local
// symbols are preferred when a shared context is supplied and yields any;
// otherwise the image's export trie is used.
func (mc *MultiCache) Symbolicate(pc uint64, imageUUID types.UUID, locals *LocalSymbols) (*SymbolMatch, error) {
	index, err := mc.FindImage(imageUUID)
	if err != nil {
		return nil, err
	}

	base := mc.Main.ImagesText[index].LoadAddress
	if pc < base {
		return nil, errors.Wrapf(ErrOffsetOutOfBounds, "pc %#x below image load address %#x", pc, base)
	}
	pcOffset := pc - base

	var entries []symbolEntry
	if locals != nil {
		syms, err := locals.SymbolsForImage(index)
		if err != nil {
			return nil, err
		}
		for _, sym := range syms {
			if sym.Value < base {
				continue
			}
			entries = append(entries, symbolEntry{offset: sym.Value - base, name: sym.Name})
		}
	}

	if len(entries) == 0 {
		exports, err := mc.ExportedSymbolsForImage(index)
		if err != nil {
			return nil, err
		}
		for _, exp := range exports {
			if exp.Flags.KindInvalid() {
				return nil, errors.Wrapf(ErrInvalidExportFlags, "symbol %s flags %#x", exp.Name, uint64(exp.Flags))
			}
			if exp.Flags.ReExport() {
				continue
			}
			if exp.Flags.Absolute() {
				if exp.Address < base {
					continue
				}
				entries = append(entries, symbolEntry{offset: exp.Address - base, name: exp.Name})
				continue
			}
			// trie offsets are already image-relative
			entries = append(entries, symbolEntry{offset: exp.Address, name: exp.Name})
		}
	}

	if len(entries) == 0 {
		return nil, errors.Wrapf(ErrSymbolNotFound, "image %d has no symbols", index)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].offset < entries[j].offset
	})

	// largest entry whose offset is <= pcOffset
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].offset > pcOffset
	})
	if idx == 0 {
		return nil, errors.Wrapf(ErrSymbolNotFound, "no symbol at or below pc offset %#x", pcOffset)
	}
	match := entries[idx-1]

	return &SymbolMatch{
		Name:         match.name,
		PCOffset:     pcOffset,
		SymbolOffset: match.offset,
		Addend:       pcOffset - match.offset,
	}, nil
}
