package types

import (
	"fmt"
	"strings"
)

// MinHeaderSize is the smallest header window the decoder accepts.
const MinHeaderSize = 0x118

// CacheType describes how the cache was built.
type CacheType uint64

const (
	CacheTypeDevelopment CacheType = 0
	CacheTypeProduction  CacheType = 1
	CacheTypeMulti       CacheType = 2
)

// ParseCacheType maps a raw cache type to a known CacheType, defaulting to development.
func ParseCacheType(raw uint64) CacheType {
	switch CacheType(raw) {
	case CacheTypeProduction:
		return CacheTypeProduction
	case CacheTypeMulti:
		return CacheTypeMulti
	}
	return CacheTypeDevelopment
}

func (t CacheType) String() string {
	switch t {
	case CacheTypeProduction:
		return "production"
	case CacheTypeMulti:
		return "multi-cache"
	}
	return "development"
}

// CacheFlags is the header flags bitfield; the format version lives in the low 8 bits.
type CacheFlags uint32

const (
	FlagDylibsExpectedOnDisk   CacheFlags = 0x100
	FlagSimulator              CacheFlags = 0x200
	FlagLocallyBuiltCache      CacheFlags = 0x400
	FlagBuiltFromChainedFixups CacheFlags = 0x800
	FlagNewFormatTLVs          CacheFlags = 0x1000
)

func (f CacheFlags) FormatVersion() uint8 {
	return uint8(f & 0xFF)
}
func (f CacheFlags) DylibsExpectedOnDisk() bool {
	return (f & FlagDylibsExpectedOnDisk) != 0
}
func (f CacheFlags) Simulator() bool {
	return (f & FlagSimulator) != 0
}
func (f CacheFlags) LocallyBuiltCache() bool {
	return (f & FlagLocallyBuiltCache) != 0
}
func (f CacheFlags) BuiltFromChainedFixups() bool {
	return (f & FlagBuiltFromChainedFixups) != 0
}
func (f CacheFlags) NewFormatTLVs() bool {
	return (f & FlagNewFormatTLVs) != 0
}

// List returns a string array of set flag names
func (f CacheFlags) List() []string {
	var flags []string
	if f.DylibsExpectedOnDisk() {
		flags = append(flags, "DylibsExpectedOnDisk")
	}
	if f.Simulator() {
		flags = append(flags, "Simulator")
	}
	if f.LocallyBuiltCache() {
		flags = append(flags, "LocallyBuiltCache")
	}
	if f.BuiltFromChainedFixups() {
		flags = append(flags, "BuiltFromChainedFixups")
	}
	if f.NewFormatTLVs() {
		flags = append(flags, "NewFormatTLVs")
	}
	return flags
}

func (f CacheFlags) String() string {
	return fmt.Sprintf("v%d [%s]", f.FormatVersion(), strings.Join(f.List(), ", "))
}

// A CacheHeader is the decoded main header of one cache file. Field order
// mirrors the on-disk layout; reserved and obsolete fields are kept so the
// documented offsets stay part of the contract.
type CacheHeader struct {
	Magic        [16]byte
	Architecture Architecture

	MappingOffset   uint32
	MappingCount    uint32
	ImagesOffsetOld uint32
	ImagesCountOld  uint32
	DyldBaseAddress uint64

	CodeSignatureOffset   uint64
	CodeSignatureSize     uint64
	SlideInfoOffsetUnused uint64
	SlideInfoSizeUnused   uint64

	LocalSymbolsOffset uint64
	LocalSymbolsSize   uint64
	UUID               UUID
	CacheType          CacheType

	BranchPoolsOffset uint32
	BranchPoolsCount  uint32
	DyldInCacheMH     uint64
	DyldInCacheEntry  uint64

	ImagesTextOffset uint64
	ImagesTextCount  uint64

	PatchInfoAddr             uint64
	PatchInfoSize             uint64
	OtherImageGroupAddrUnused uint64
	OtherImageGroupSizeUnused uint64
	ProgClosuresAddr          uint64
	ProgClosuresSize          uint64
	ProgClosuresTrieAddr      uint64
	ProgClosuresTrieSize      uint64

	Platform Platform
	Flags    CacheFlags

	SharedRegionStart uint64
	SharedRegionSize  uint64
	MaxSlide          uint64

	DylibsImageArrayAddr uint64
	DylibsImageArraySize uint64
	DylibsTrieAddr       uint64
	DylibsTrieSize       uint64
	OtherImageArrayAddr  uint64
	OtherImageArraySize  uint64
	OtherTrieAddr        uint64
	OtherTrieSize        uint64

	MappingWithSlideOffset uint32
	MappingWithSlideCount  uint32

	DylibsPBLStateArrayAddrUnused uint64
	DylibsPBLSetAddr              uint64
	ProgramsPBLSetPoolAddr        uint64
	ProgramsPBLSetPoolSize        uint64
	ProgramTrieAddr               uint64
	ProgramTrieSize               uint32

	OSVersion    Version
	AltPlatform  Platform
	AltOSVersion Version

	SwiftOptsOffset uint64
	SwiftOptsSize   uint64

	SubCacheArrayOffset uint32
	SubCacheArrayCount  uint32
	SymbolFileUUID      UUID

	RosettaReadOnlyAddr  uint64
	RosettaReadOnlySize  uint64
	RosettaReadWriteAddr uint64
	RosettaReadWriteSize uint64

	ImagesOffset uint32
	ImagesCount  uint32
	CacheSubType uint32

	ObjcOptsOffset     uint64
	ObjcOptsSize       uint64
	CacheAtlasOffset   uint64
	CacheAtlasSize     uint64
	DynamicDataOffset  uint64
	DynamicDataMaxSize uint64

	TPROMappingsOffset uint32
	TPROMappingsCount  uint32
}

// ImagesTable returns the live (offset, count) image table pair. Headers new
// enough to carry the second pair at 0x1c0 supersede the legacy one at 0x18.
func (h *CacheHeader) ImagesTable() (uint64, uint64) {
	if h.MappingOffset >= 0x1c8 {
		return uint64(h.ImagesOffset), uint64(h.ImagesCount)
	}
	return uint64(h.ImagesOffsetOld), uint64(h.ImagesCountOld)
}

// SubCacheEntriesV1 reports whether the subcache table uses the 24-byte
// entry shape without an embedded file suffix.
func (h *CacheHeader) SubCacheEntriesV1() bool {
	return h.MappingOffset < 0x200
}

// HasSymbolsFile reports whether a .symbols sidecar is declared.
func (h *CacheHeader) HasSymbolsFile() bool {
	return !h.SymbolFileUUID.IsNull()
}

func (h *CacheHeader) String() string {
	return fmt.Sprintf(
		"Magic          = %s\n"+
			"Architecture   = %s\n"+
			"UUID           = %s\n"+
			"Platform       = %s\n"+
			"OS Version     = %s\n"+
			"Cache Type     = %s\n"+
			"Format         = %s\n"+
			"Shared Region  = %#x-%#x\n"+
			"Max Slide      = %#x\n",
		strings.TrimRight(string(h.Magic[:]), "\x00"),
		h.Architecture,
		h.UUID,
		h.Platform,
		h.OSVersion,
		h.CacheType,
		h.Flags,
		h.SharedRegionStart, h.SharedRegionStart+h.SharedRegionSize,
		h.MaxSlide,
	)
}
