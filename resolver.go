package dyldcache

import (
	"math/bits"

	"github.com/appsworld/go-dyldcache/types"
)

// A VMAddressResolver translates between unslid VM addresses and file
// offsets over one file's mapping set. Mappings whose bounds would overflow
// are skipped rather than faulted on.
type VMAddressResolver struct {
	mappings []types.MappingInfo
}

// NewVMAddressResolver builds a resolver over a mapping set.
func NewVMAddressResolver(mappings []types.MappingInfo) *VMAddressResolver {
	return &VMAddressResolver{mappings: mappings}
}

// MappingForVMAddress returns the first mapping containing addr.
func (r *VMAddressResolver) MappingForVMAddress(addr uint64) (types.MappingInfo, bool) {
	for _, m := range r.mappings {
		end, carry := bits.Add64(m.Address, m.Size, 0)
		if carry != 0 {
			continue
		}
		if addr >= m.Address && addr < end {
			return m, true
		}
	}
	return types.MappingInfo{}, false
}

// MappingForFileOffset returns the first mapping containing offset.
func (r *VMAddressResolver) MappingForFileOffset(offset uint64) (types.MappingInfo, bool) {
	for _, m := range r.mappings {
		if _, carry := bits.Add64(m.Address, m.Size, 0); carry != 0 {
			continue
		}
		end, carry := bits.Add64(m.FileOffset, m.Size, 0)
		if carry != 0 {
			continue
		}
		if offset >= m.FileOffset && offset < end {
			return m, true
		}
	}
	return types.MappingInfo{}, false
}

// FileOffsetForVMAddress translates an unslid VM address to a file offset.
func (r *VMAddressResolver) FileOffsetForVMAddress(addr uint64) (uint64, bool) {
	m, ok := r.MappingForVMAddress(addr)
	if !ok {
		return 0, false
	}
	return m.FileOffset + (addr - m.Address), true
}

// VMAddressForFileOffset translates a file offset to an unslid VM address.
func (r *VMAddressResolver) VMAddressForFileOffset(offset uint64) (uint64, bool) {
	m, ok := r.MappingForFileOffset(offset)
	if !ok {
		return 0, false
	}
	return m.Address + (offset - m.FileOffset), true
}

// IsValidVMAddress reports whether some mapping contains addr.
func (r *VMAddressResolver) IsValidVMAddress(addr uint64) bool {
	_, ok := r.MappingForVMAddress(addr)
	return ok
}

// IsValidFileOffset reports whether some mapping contains offset.
func (r *VMAddressResolver) IsValidFileOffset(offset uint64) bool {
	_, ok := r.MappingForFileOffset(offset)
	return ok
}

// Mappings returns the resolver's mapping set.
func (r *VMAddressResolver) Mappings() []types.MappingInfo {
	return r.mappings
}
