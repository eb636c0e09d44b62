package types

import "fmt"

// LocalSymbolsInfoSize is the on-disk size of a dyld_cache_local_symbols_info record.
const LocalSymbolsInfoSize = 24

// LocalSymbolsInfo locates the local-symbol tables; every offset is
// relative to the header's localSymbolsOffset.
type LocalSymbolsInfo struct {
	NlistOffset   uint32
	NlistCount    uint32
	StringsOffset uint32
	StringsSize   uint32
	EntriesOffset uint32
	EntriesCount  uint32
}

func (i LocalSymbolsInfo) String() string {
	return fmt.Sprintf("nlists=%d strings=%#x entries=%d", i.NlistCount, i.StringsSize, i.EntriesCount)
}

// Entry sizes for the two local-symbols entry shapes; the choice is
// caller-selected, the format does not self-describe it.
const (
	LocalSymbolsEntry32Size = 12
	LocalSymbolsEntry64Size = 16
)

// LocalSymbolsEntry describes the nlist slice belonging to one image.
type LocalSymbolsEntry struct {
	DylibOffset     uint64
	NlistStartIndex uint32
	NlistCount      uint32
}

func (e LocalSymbolsEntry) String() string {
	return fmt.Sprintf("dylib-off=%#x nlists=[%d:%d]", e.DylibOffset, e.NlistStartIndex, e.NlistStartIndex+e.NlistCount)
}
