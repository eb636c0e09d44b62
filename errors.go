package dyldcache

import (
	"errors"

	"github.com/appsworld/go-dyldcache/pkg/trie"
)

// Header errors.
var (
	ErrInvalidMagic             = errors.New("invalid dyld cache magic")
	ErrUnsupportedArchitecture  = errors.New("unsupported architecture")
	ErrHeaderTooSmall           = errors.New("cache header too small")
	ErrUnsupportedFormatVersion = errors.New("unsupported cache format version")
)

// Bounds errors.
var (
	ErrOffsetOutOfBounds     = errors.New("offset out of bounds")
	ErrRangeOutOfBounds      = errors.New("range out of bounds")
	ErrImageIndexOutOfBounds = errors.New("image index out of bounds")
	ErrInvalidStringOffset   = errors.New("invalid string offset")
	ErrVMAddressNotMapped    = errors.New("VM address not mapped")
)

// Structure errors.
var (
	ErrInvalidMappingInfo      = errors.New("invalid mapping info")
	ErrInvalidImageInfo        = errors.New("invalid image info")
	ErrInvalidLocalSymbolsInfo = errors.New("invalid local symbols info")
)

// Trie errors are owned by pkg/trie; aliased here so the taxonomy reads as one.
var (
	ErrInvalidExportTrieFormat = trie.ErrInvalidFormat
	ErrUnexpectedEndOfTrie     = trie.ErrUnexpectedEnd
	ErrInvalidULEB128          = trie.ErrInvalidUleb128
)

// Mach-O errors.
var ErrInvalidMachO = errors.New("invalid MachO")

// Slide info errors.
var (
	ErrUnknownSlideInfoVersion = errors.New("unknown slide info version")
	ErrSlideInfoParse          = errors.New("failed to parse slide info")
)

// Multi-cache errors.
var (
	ErrSubCacheNotFound     = errors.New("subcache file not found")
	ErrSymbolsFileNotFound  = errors.New("symbols file not found")
	ErrSubCacheUUIDMismatch = errors.New("subcache UUID mismatch")
)

// Symbol errors. ErrSymbolNotFound is shared with trie lookups.
var (
	ErrSymbolNotFound     = trie.ErrSymbolNotFound
	ErrInvalidSymbolType  = errors.New("invalid symbol type")
	ErrInvalidExportFlags = errors.New("invalid export flags")
)

// I/O errors.
var (
	ErrFileRead     = errors.New("file read error")
	ErrFileTooSmall = errors.New("file too small")
)
