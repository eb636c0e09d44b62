package types

import "fmt"

// A LoadCmd is a Mach-O load command.
type LoadCmd uint32

const lcReqDyld LoadCmd = 0x80000000

// The only load commands the exports locator interprets.
const (
	LC_SEGMENT           LoadCmd = 0x1
	LC_SEGMENT_64        LoadCmd = 0x19
	LC_DYLD_INFO         LoadCmd = 0x22              // compressed dyld information
	LC_DYLD_INFO_ONLY    LoadCmd = 0x22 | lcReqDyld  // compressed dyld information only
	LC_DYLD_EXPORTS_TRIE LoadCmd = 0x33 | lcReqDyld  // used with linkedit_data_command, payload is trie
)

func (c LoadCmd) String() string {
	switch c {
	case LC_SEGMENT:
		return "LC_SEGMENT"
	case LC_SEGMENT_64:
		return "LC_SEGMENT_64"
	case LC_DYLD_INFO:
		return "LC_DYLD_INFO"
	case LC_DYLD_INFO_ONLY:
		return "LC_DYLD_INFO_ONLY"
	case LC_DYLD_EXPORTS_TRIE:
		return "LC_DYLD_EXPORTS_TRIE"
	}
	return fmt.Sprintf("LoadCmd(%#x)", uint32(c))
}

// Mach-O magic values.
const (
	Magic32 uint32 = 0xfeedface
	Magic64 uint32 = 0xfeedfacf
)

// Mach-O header sizes for the two magics.
const (
	MachOHeaderSize32 = 28
	MachOHeaderSize64 = 32
)
