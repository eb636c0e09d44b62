package dyldcache

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/appsworld/go-dyldcache/types"
)

func TestParseCacheHeaderArm64e(t *testing.T) {
	data := make([]byte, types.MinHeaderSize)
	copy(data, "dyld_v1  arm64e")

	hdr, err := ParseCacheHeader(data)
	if err != nil {
		t.Fatalf("ParseCacheHeader() = %v", err)
	}
	if hdr.Architecture != types.ArchARM64e {
		t.Errorf("architecture = %s; want arm64e", hdr.Architecture)
	}
	if !hdr.Architecture.Is64Bit() {
		t.Error("arm64e should be 64-bit")
	}
	if !hdr.Architecture.UsesPAC() {
		t.Error("arm64e should use PAC")
	}
}

func TestParseCacheHeaderMagics(t *testing.T) {
	tests := []struct {
		magic   string
		arch    types.Architecture
		wantErr error
	}{
		{"dyld_v1  x86_64", types.ArchX8664, nil},
		{"dyld_v1 x86_64h", types.ArchX8664h, nil},
		{"dyld_v1   arm64", types.ArchARM64, nil},
		{"dyld_v1arm64_32", types.ArchARM6432, nil},
		{"dyld_v1    i386", types.ArchI386, nil},
		{"dyld_v1    foo", "", ErrInvalidMagic},
		{"not_a_cache", "", ErrInvalidMagic},
		{"dyld_v2  arm64e", "", ErrUnsupportedFormatVersion},
	}

	for _, tt := range tests {
		data := make([]byte, types.MinHeaderSize)
		copy(data, tt.magic)
		hdr, err := ParseCacheHeader(data)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseCacheHeader(%q) = %v; want %v", tt.magic, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCacheHeader(%q) = %v", tt.magic, err)
			continue
		}
		if hdr.Architecture != tt.arch {
			t.Errorf("ParseCacheHeader(%q) arch = %s; want %s", tt.magic, hdr.Architecture, tt.arch)
		}
	}
}

func TestParseCacheHeaderTooSmall(t *testing.T) {
	data := make([]byte, types.MinHeaderSize-1)
	copy(data, "dyld_v1  arm64e")
	if _, err := ParseCacheHeader(data); !errors.Is(err, ErrHeaderTooSmall) {
		t.Errorf("ParseCacheHeader(0x117 bytes) = %v; want ErrHeaderTooSmall", err)
	}
}

func TestCacheHeaderFlags(t *testing.T) {
	flags := types.CacheFlags(0x1F7F)

	if v := flags.FormatVersion(); v != 0x7F {
		t.Errorf("format version = %#x; want 0x7f", v)
	}
	for name, set := range map[string]bool{
		"DylibsExpectedOnDisk":   flags.DylibsExpectedOnDisk(),
		"Simulator":              flags.Simulator(),
		"LocallyBuiltCache":      flags.LocallyBuiltCache(),
		"BuiltFromChainedFixups": flags.BuiltFromChainedFixups(),
		"NewFormatTLVs":          flags.NewFormatTLVs(),
	} {
		if !set {
			t.Errorf("flag %s not set", name)
		}
	}
	if got := len(flags.List()); got != 5 {
		t.Errorf("List() has %d flags; want 5", got)
	}
}

func TestParseCacheHeaderBestEffortTail(t *testing.T) {
	// a minimum-size window has none of the late fields; they default to zero
	data := make([]byte, types.MinHeaderSize)
	copy(data, "dyld_v1  arm64e")
	hdr, err := ParseCacheHeader(data)
	if err != nil {
		t.Fatalf("ParseCacheHeader() = %v", err)
	}
	if hdr.SubCacheArrayCount != 0 || hdr.TPROMappingsCount != 0 {
		t.Errorf("late fields = %d/%d; want zero", hdr.SubCacheArrayCount, hdr.TPROMappingsCount)
	}
	if hdr.HasSymbolsFile() {
		t.Error("zero symbols UUID should mean no symbols file")
	}

	// with a full window the same offsets decode
	full := make([]byte, 0x208)
	copy(full, "dyld_v1  arm64e")
	binary.LittleEndian.PutUint32(full[0x188:], 0x9000)
	binary.LittleEndian.PutUint32(full[0x18c:], 3)
	binary.LittleEndian.PutUint32(full[0x200:], 0x8000)
	binary.LittleEndian.PutUint32(full[0x204:], 2)
	full[0x190] = 0x42

	hdr, err = ParseCacheHeader(full)
	if err != nil {
		t.Fatalf("ParseCacheHeader(full) = %v", err)
	}
	if hdr.SubCacheArrayOffset != 0x9000 || hdr.SubCacheArrayCount != 3 {
		t.Errorf("subcache table = %#x/%d; want 0x9000/3", hdr.SubCacheArrayOffset, hdr.SubCacheArrayCount)
	}
	if hdr.TPROMappingsOffset != 0x8000 || hdr.TPROMappingsCount != 2 {
		t.Errorf("tpro table = %#x/%d; want 0x8000/2", hdr.TPROMappingsOffset, hdr.TPROMappingsCount)
	}
	if !hdr.HasSymbolsFile() {
		t.Error("expected symbols file UUID")
	}
}

func TestCacheHeaderOSVersion(t *testing.T) {
	if got := types.Version(0x000E0205).String(); got != "14.2.5" {
		t.Errorf("version = %s; want 14.2.5", got)
	}
	if got := types.Version(0x00100000).String(); got != "16.0" {
		t.Errorf("version = %s; want 16.0", got)
	}
}
