package dyldcache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/appsworld/go-dyldcache/types"
)

var subUUID = types.UUID{0xaa, 0xbb, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}

func mapOpener(files map[string]MemorySource) Opener {
	return func(path string) (ByteSource, error) {
		src, ok := files[path]
		if !ok {
			return nil, nil
		}
		return src, nil
	}
}

// splitCache builds a main cache mapping VA 0x1000..0x1100 to file offset 0
// and one subcache mapping VA 0x1100..0x1200 to file offset 0.
func splitCache(t *testing.T) (map[string]MemorySource, *testCache, *testCache) {
	t.Helper()

	sub := newTestCache(testMagic)
	sub.setUUID(subUUID)
	sub.addMappings([]types.MappingInfo{{Address: 0x1100, Size: 0x100, FileOffset: 0}})

	main := newTestCache(testMagic)
	main.setUUID(testUUID)
	main.addMappings([]types.MappingInfo{{Address: 0x1000, Size: 0x100, FileOffset: 0}})
	main.addSubCaches([]types.SubCacheEntry{
		{UUID: subUUID, CacheVMOffset: 0x100, FileSuffix: ".01"},
	})

	files := map[string]MemorySource{
		"dyld_shared_cache_arm64e":    main.source(),
		"dyld_shared_cache_arm64e.01": sub.source(),
	}
	return files, main, sub
}

func TestOpenSplitCache(t *testing.T) {
	files, _, _ := splitCache(t)

	mc, err := OpenWith("dyld_shared_cache_arm64e", mapOpener(files), Options{RequireAllSubCaches: true})
	if err != nil {
		t.Fatalf("OpenWith() = %v", err)
	}
	defer mc.Close()

	if got := mc.SubCacheUUIDs(); len(got) != 1 || got[0] != subUUID {
		t.Errorf("subcache uuids = %v; want [%s]", got, subUUID)
	}
	if _, ok := mc.SubCache(subUUID); !ok {
		t.Error("SubCache(subUUID) not found")
	}
}

func TestCrossFileVMRead(t *testing.T) {
	files, main, sub := splitCache(t)

	mc, err := OpenWith("dyld_shared_cache_arm64e", mapOpener(files), Options{})
	if err != nil {
		t.Fatalf("OpenWith() = %v", err)
	}
	defer mc.Close()

	// 16 bytes from the end of the main mapping, then 32 from the subcache
	got, err := mc.ReadBytes(0x10F0, 0x30)
	if err != nil {
		t.Fatalf("ReadBytes(0x10F0, 0x30) = %v", err)
	}
	want := append(append([]byte{}, main.data[0xF0:0x100]...), sub.data[0:0x20]...)
	if !bytes.Equal(got, want) {
		t.Errorf("ReadBytes() = % x; want % x", got, want)
	}

	// a range touching unmapped addresses fails typed
	if _, err := mc.ReadBytes(0x11F0, 0x20); !errors.Is(err, ErrVMAddressNotMapped) {
		t.Errorf("ReadBytes(partly unmapped) = %v; want ErrVMAddressNotMapped", err)
	}
	if _, err := mc.ReadBytes(0x2000, 1); !errors.Is(err, ErrVMAddressNotMapped) {
		t.Errorf("ReadBytes(unmapped) = %v; want ErrVMAddressNotMapped", err)
	}
}

func TestOpenMissingSubCache(t *testing.T) {
	files, _, _ := splitCache(t)
	delete(files, "dyld_shared_cache_arm64e.01")

	if _, err := OpenWith("dyld_shared_cache_arm64e", mapOpener(files), Options{RequireAllSubCaches: true}); !errors.Is(err, ErrSubCacheNotFound) {
		t.Errorf("OpenWith(required) = %v; want ErrSubCacheNotFound", err)
	}

	mc, err := OpenWith("dyld_shared_cache_arm64e", mapOpener(files), Options{})
	if err != nil {
		t.Fatalf("OpenWith(optional) = %v", err)
	}
	defer mc.Close()
	if len(mc.SubCacheUUIDs()) != 0 {
		t.Errorf("subcaches = %v; want none", mc.SubCacheUUIDs())
	}
}

func TestOpenSubCacheUUIDMismatch(t *testing.T) {
	files, _, sub := splitCache(t)
	sub.setUUID(types.UUID{0xde, 0xad})
	files["dyld_shared_cache_arm64e.01"] = sub.source()

	if _, err := OpenWith("dyld_shared_cache_arm64e", mapOpener(files), Options{}); !errors.Is(err, ErrSubCacheUUIDMismatch) {
		t.Errorf("OpenWith(mismatch) = %v; want ErrSubCacheUUIDMismatch", err)
	}
}

func TestOpenSymbolsFile(t *testing.T) {
	symUUID := types.UUID{0x5f, 0x01}

	symbols := newTestCache(testMagic)
	symbols.setUUID(symUUID)

	main := newTestCache(testMagic)
	main.setUUID(testUUID)
	main.setSymbolsUUID(symUUID)
	main.addMappings([]types.MappingInfo{{Address: 0x1000, Size: 0x100, FileOffset: 0}})

	files := map[string]MemorySource{
		"cache":         main.source(),
		"cache.symbols": symbols.source(),
	}

	mc, err := OpenWith("cache", mapOpener(files), Options{RequireSymbolsFile: true})
	if err != nil {
		t.Fatalf("OpenWith() = %v", err)
	}
	defer mc.Close()
	if mc.Symbols() == nil {
		t.Fatal("Symbols() = nil; want parsed sidecar")
	}

	// missing sidecar is fatal only when required
	delete(files, "cache.symbols")
	if _, err := OpenWith("cache", mapOpener(files), Options{RequireSymbolsFile: true}); !errors.Is(err, ErrSymbolsFileNotFound) {
		t.Errorf("OpenWith(required symbols) = %v; want ErrSymbolsFileNotFound", err)
	}
	mc2, err := OpenWith("cache", mapOpener(files), Options{})
	if err != nil {
		t.Fatalf("OpenWith(optional symbols) = %v", err)
	}
	defer mc2.Close()
	if mc2.Symbols() != nil {
		t.Error("Symbols() should be nil when the sidecar is skipped")
	}

	// mismatched sidecar UUID is always fatal
	bad := newTestCache(testMagic)
	bad.setUUID(types.UUID{0xff})
	files["cache.symbols"] = bad.source()
	if _, err := OpenWith("cache", mapOpener(files), Options{}); !errors.Is(err, ErrSubCacheUUIDMismatch) {
		t.Errorf("OpenWith(bad symbols uuid) = %v; want ErrSubCacheUUIDMismatch", err)
	}
}

var imageUUID = types.UUID{0x11, 0x22, 0x33, 0x44, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

// exportTrieCache builds a cache holding one image at VA 0x2000 whose
// exports trie declares "_func" at offset 0x20.
func exportTrieCache(t *testing.T) map[string]MemorySource {
	t.Helper()

	funcTrie := []byte{
		0x00, 0x01, '_', 'f', 'u', 'n', 'c', 0x00, 0x09, // root: "_func" -> node 9
		0x02, 0x00, 0x20, // terminal: regular, offset 0x20
		0x00,
	}

	main := newTestCache(testMagic)
	main.setUUID(testUUID)

	// image blob: Mach-O header+commands at 0x0, exports trie at 0x800
	const imageSize = 0x1000
	machoOff := uint64(len(main.data))

	var b machOBuilder
	b.addSegment64("__TEXT", 0x2000, machoOff)
	b.addSegment64("__LINKEDIT", 0x2800, machoOff+0x800)
	b.addExportsTrie(uint32(machoOff)+0x800, uint32(len(funcTrie)))
	macho := b.build()

	image := make([]byte, imageSize)
	copy(image, macho)
	copy(image[0x800:], funcTrie)

	main.append(image)
	main.addMappings([]types.MappingInfo{{Address: 0x2000, Size: imageSize, FileOffset: machoOff}})
	main.addImagesText([]types.ImageTextInfo{
		{UUID: imageUUID, LoadAddress: 0x2000, TextSegmentSize: 0x1000},
	})

	return map[string]MemorySource{"cache": main.source()}
}

func TestExportedSymbolsForImage(t *testing.T) {
	mc, err := OpenWith("cache", mapOpener(exportTrieCache(t)), Options{})
	if err != nil {
		t.Fatalf("OpenWith() = %v", err)
	}
	defer mc.Close()

	exports, err := mc.ExportedSymbolsForImage(0)
	if err != nil {
		t.Fatalf("ExportedSymbolsForImage(0) = %v", err)
	}
	if len(exports) != 1 || exports[0].Name != "_func" || exports[0].Address != 0x20 {
		t.Errorf("exports = %+v; want _func at 0x20", exports)
	}

	if _, err := mc.ExportedSymbolsForImage(7); !errors.Is(err, ErrImageIndexOutOfBounds) {
		t.Errorf("ExportedSymbolsForImage(7) = %v; want ErrImageIndexOutOfBounds", err)
	}
}

func TestSymbolicateViaExports(t *testing.T) {
	mc, err := OpenWith("cache", mapOpener(exportTrieCache(t)), Options{})
	if err != nil {
		t.Fatalf("OpenWith() = %v", err)
	}
	defer mc.Close()

	match, err := mc.Symbolicate(0x2025, imageUUID, nil)
	if err != nil {
		t.Fatalf("Symbolicate(0x2025) = %v", err)
	}
	if match.Name != "_func" {
		t.Errorf("name = %q; want _func", match.Name)
	}
	if match.PCOffset != 0x25 || match.SymbolOffset != 0x20 || match.Addend != 0x5 {
		t.Errorf("match = %+v; want pc-off 0x25 sym-off 0x20 addend 0x5", match)
	}

	// a pc below every symbol has no match
	if _, err := mc.Symbolicate(0x2010, imageUUID, nil); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("Symbolicate(0x2010) = %v; want ErrSymbolNotFound", err)
	}
	// a pc below the image load address is refused
	if _, err := mc.Symbolicate(0x1fff, imageUUID, nil); err == nil {
		t.Error("Symbolicate(below base) succeeded; want error")
	}
	// an unknown image UUID is refused
	if _, err := mc.Symbolicate(0x2025, types.UUID{9}, nil); !errors.Is(err, ErrImageIndexOutOfBounds) {
		t.Errorf("Symbolicate(unknown image) = %v; want ErrImageIndexOutOfBounds", err)
	}
}

func TestOpenMissingMainCache(t *testing.T) {
	if _, err := OpenWith("nope", mapOpener(nil), Options{}); !errors.Is(err, ErrFileRead) {
		t.Errorf("OpenWith(missing main) = %v; want ErrFileRead", err)
	}
}
