package dyldcache

import (
	"testing"

	"github.com/appsworld/go-dyldcache/types"
)

func TestResolverRoundTrip(t *testing.T) {
	r := NewVMAddressResolver([]types.MappingInfo{
		{Address: 0x180000000, Size: 0x4000, FileOffset: 0},
		{Address: 0x180004000, Size: 0x8000, FileOffset: 0x4000},
		{Address: 0x1c0000000, Size: 0x1000, FileOffset: 0x10000},
	})

	for _, m := range r.Mappings() {
		for _, delta := range []uint64{0, 1, m.Size / 2, m.Size - 1} {
			addr := m.Address + delta
			off, ok := r.FileOffsetForVMAddress(addr)
			if !ok {
				t.Fatalf("FileOffsetForVMAddress(%#x) not found", addr)
			}
			if off != m.FileOffset+delta {
				t.Errorf("FileOffsetForVMAddress(%#x) = %#x; want %#x", addr, off, m.FileOffset+delta)
			}
			back, ok := r.VMAddressForFileOffset(off)
			if !ok || back != addr {
				t.Errorf("VMAddressForFileOffset(%#x) = %#x, %t; want %#x", off, back, ok, addr)
			}
		}
	}
}

func TestResolverMisses(t *testing.T) {
	r := NewVMAddressResolver([]types.MappingInfo{
		{Address: 0x1000, Size: 0x100, FileOffset: 0x40},
	})

	for _, addr := range []uint64{0, 0xfff, 0x1100, ^uint64(0)} {
		if r.IsValidVMAddress(addr) {
			t.Errorf("IsValidVMAddress(%#x) = true; want false", addr)
		}
	}
	if r.IsValidFileOffset(0x3f) || r.IsValidFileOffset(0x140) {
		t.Error("file offsets outside the mapping resolved")
	}
	if !r.IsValidVMAddress(0x1000) || !r.IsValidFileOffset(0x13f) {
		t.Error("in-range lookups failed")
	}
}

func TestResolverOverflowingMapping(t *testing.T) {
	r := NewVMAddressResolver([]types.MappingInfo{
		{Address: ^uint64(0) - 0x10, Size: 0x100, FileOffset: 0},
		{Address: 0x1000, Size: 0x100, FileOffset: ^uint64(0) - 0x10},
	})

	// the address-overflowing mapping is skipped for every query
	if r.IsValidVMAddress(^uint64(0) - 0x8) {
		t.Error("overflowing mapping resolved a VM address")
	}
	// the file-offset-overflowing mapping still resolves by VM address
	if _, ok := r.FileOffsetForVMAddress(0x1000); !ok {
		t.Error("second mapping should resolve by VM address")
	}
	if r.IsValidFileOffset(^uint64(0) - 0x8) {
		t.Error("overflowing mapping resolved a file offset")
	}
}

func TestResolverFirstMappingWins(t *testing.T) {
	r := NewVMAddressResolver([]types.MappingInfo{
		{Address: 0x1000, Size: 0x100, FileOffset: 0},
		{Address: 0x1000, Size: 0x100, FileOffset: 0x9000},
	})
	off, ok := r.FileOffsetForVMAddress(0x1010)
	if !ok || off != 0x10 {
		t.Errorf("FileOffsetForVMAddress(0x1010) = %#x, %t; want 0x10 from first mapping", off, ok)
	}
}
