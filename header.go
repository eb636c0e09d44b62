package dyldcache

import (
	"encoding/binary"
	"strings"

	"github.com/appsworld/go-dyldcache/types"
	"github.com/pkg/errors"
)

// HeaderWindowSize is how much of the file the cache parser reads up front.
const HeaderWindowSize = 4096

const magicPrefix = "dyld_v"

func parseMagic(magic [16]byte) (types.Architecture, error) {
	magicStr := strings.TrimRight(string(magic[:]), "\x00")
	if !strings.HasPrefix(magicStr, magicPrefix) {
		return "", errors.Wrapf(ErrInvalidMagic, "%q", magicStr)
	}

	rest := magicStr[len(magicPrefix):]
	var version string
	for len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
		version += rest[:1]
		rest = rest[1:]
	}
	if version != "1" {
		return "", errors.Wrapf(ErrUnsupportedFormatVersion, "%q", magicStr)
	}

	switch arch := types.Architecture(strings.TrimSpace(rest)); arch {
	case types.ArchI386, types.ArchX8664, types.ArchX8664h,
		types.ArchARM64, types.ArchARM64e, types.ArchARM6432:
		return arch, nil
	default:
		return "", errors.Wrapf(ErrInvalidMagic, "unknown architecture in magic %q", magicStr)
	}
}

// ParseCacheHeader decodes the main cache header from a header window. The
// window must hold at least types.MinHeaderSize bytes; fields added after
// that point are read best-effort and default to zero when the window ends
// early.
func ParseCacheHeader(data []byte) (*types.CacheHeader, error) {
	if len(data) < types.MinHeaderSize {
		return nil, errors.Wrapf(ErrHeaderTooSmall, "%d bytes, need %#x", len(data), types.MinHeaderSize)
	}

	u32 := func(off int) uint32 {
		if off+4 <= len(data) {
			return binary.LittleEndian.Uint32(data[off:])
		}
		return 0
	}
	u64 := func(off int) uint64 {
		if off+8 <= len(data) {
			return binary.LittleEndian.Uint64(data[off:])
		}
		return 0
	}
	uuid := func(off int) (u types.UUID) {
		if off+16 <= len(data) {
			copy(u[:], data[off:off+16])
		}
		return
	}

	h := &types.CacheHeader{}
	copy(h.Magic[:], data[:16])

	arch, err := parseMagic(h.Magic)
	if err != nil {
		return nil, err
	}
	h.Architecture = arch

	h.MappingOffset = u32(0x10)
	h.MappingCount = u32(0x14)
	h.ImagesOffsetOld = u32(0x18)
	h.ImagesCountOld = u32(0x1c)
	h.DyldBaseAddress = u64(0x20)

	h.CodeSignatureOffset = u64(0x28)
	h.CodeSignatureSize = u64(0x30)
	h.SlideInfoOffsetUnused = u64(0x38)
	h.SlideInfoSizeUnused = u64(0x40)

	h.LocalSymbolsOffset = u64(0x48)
	h.LocalSymbolsSize = u64(0x50)
	h.UUID = uuid(0x58)
	h.CacheType = types.ParseCacheType(u64(0x68))

	h.BranchPoolsOffset = u32(0x70)
	h.BranchPoolsCount = u32(0x74)
	h.DyldInCacheMH = u64(0x78)
	h.DyldInCacheEntry = u64(0x80)

	h.ImagesTextOffset = u64(0x88)
	h.ImagesTextCount = u64(0x90)

	h.PatchInfoAddr = u64(0x98)
	h.PatchInfoSize = u64(0xa0)
	h.OtherImageGroupAddrUnused = u64(0xa8)
	h.OtherImageGroupSizeUnused = u64(0xb0)
	h.ProgClosuresAddr = u64(0xb8)
	h.ProgClosuresSize = u64(0xc0)
	h.ProgClosuresTrieAddr = u64(0xc8)
	h.ProgClosuresTrieSize = u64(0xd0)

	h.Platform = types.ParsePlatform(u32(0xd8))
	h.Flags = types.CacheFlags(u32(0xdc))

	h.SharedRegionStart = u64(0xe0)
	h.SharedRegionSize = u64(0xe8)
	h.MaxSlide = u64(0xf0)

	h.DylibsImageArrayAddr = u64(0xf8)
	h.DylibsImageArraySize = u64(0x100)
	h.DylibsTrieAddr = u64(0x108)
	h.DylibsTrieSize = u64(0x110)

	// everything below was appended across cache format revisions and is
	// read best-effort
	h.OtherImageArrayAddr = u64(0x118)
	h.OtherImageArraySize = u64(0x120)
	h.OtherTrieAddr = u64(0x128)
	h.OtherTrieSize = u64(0x130)

	h.MappingWithSlideOffset = u32(0x138)
	h.MappingWithSlideCount = u32(0x13c)

	h.DylibsPBLStateArrayAddrUnused = u64(0x140)
	h.DylibsPBLSetAddr = u64(0x148)
	h.ProgramsPBLSetPoolAddr = u64(0x150)
	h.ProgramsPBLSetPoolSize = u64(0x158)
	h.ProgramTrieAddr = u64(0x160)
	h.ProgramTrieSize = u32(0x168)

	h.OSVersion = types.Version(u32(0x16c))
	h.AltPlatform = types.ParsePlatform(u32(0x170))
	h.AltOSVersion = types.Version(u32(0x174))

	h.SwiftOptsOffset = u64(0x178)
	h.SwiftOptsSize = u64(0x180)

	h.SubCacheArrayOffset = u32(0x188)
	h.SubCacheArrayCount = u32(0x18c)
	h.SymbolFileUUID = uuid(0x190)

	h.RosettaReadOnlyAddr = u64(0x1a0)
	h.RosettaReadOnlySize = u64(0x1a8)
	h.RosettaReadWriteAddr = u64(0x1b0)
	h.RosettaReadWriteSize = u64(0x1b8)

	h.ImagesOffset = u32(0x1c0)
	h.ImagesCount = u32(0x1c4)
	h.CacheSubType = u32(0x1c8)

	h.ObjcOptsOffset = u64(0x1d0)
	h.ObjcOptsSize = u64(0x1d8)
	h.CacheAtlasOffset = u64(0x1e0)
	h.CacheAtlasSize = u64(0x1e8)
	h.DynamicDataOffset = u64(0x1f0)
	h.DynamicDataMaxSize = u64(0x1f8)

	h.TPROMappingsOffset = u32(0x200)
	h.TPROMappingsCount = u32(0x204)

	return h, nil
}
