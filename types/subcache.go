package types

import "fmt"

// Subcache entry sizes for the two on-wire shapes.
const (
	SubCacheEntryV1Size = 24
	SubCacheEntryV2Size = 56
)

// SubCacheEntry declares one auxiliary cache file. V1 entries have no
// embedded suffix; theirs is synthesised from the 1-based table index.
type SubCacheEntry struct {
	UUID          UUID
	CacheVMOffset uint64
	FileSuffix    string
}

func (e SubCacheEntry) String() string {
	return fmt.Sprintf("%s vm-off=%#x suffix=%q", e.UUID, e.CacheVMOffset, e.FileSuffix)
}
