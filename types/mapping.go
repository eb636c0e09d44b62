package types

import (
	"fmt"
	"strings"
)

// MappingInfoSize is the on-disk size of a dyld_cache_mapping_info record.
const MappingInfoSize = 32

// MappingInfo describes how a contiguous run of cache bytes is mapped into memory.
type MappingInfo struct {
	Address    uint64
	Size       uint64
	FileOffset uint64
	MaxProt    VmProtection
	InitProt   VmProtection
}

func (m MappingInfo) String() string {
	return fmt.Sprintf("addr=%#011x-%#011x off=%#09x-%#09x %s/%s",
		m.Address, m.Address+m.Size, m.FileOffset, m.FileOffset+m.Size, m.InitProt, m.MaxProt)
}

// MappingAndSlideInfoSize is the on-disk size of a dyld_cache_mapping_and_slide_info record.
const MappingAndSlideInfoSize = 56

// MappingFlags is the flag bitset of a mapping-with-slide record.
type MappingFlags uint64

const (
	MappingAuthData      MappingFlags = 0x1
	MappingDirtyData     MappingFlags = 0x2
	MappingConstData     MappingFlags = 0x4
	MappingTextStubs     MappingFlags = 0x8
	MappingDynamicConfig MappingFlags = 0x10
	MappingReadOnlyData  MappingFlags = 0x20
	MappingConstTPROData MappingFlags = 0x40
)

func (f MappingFlags) IsAuthData() bool {
	return (f & MappingAuthData) != 0
}
func (f MappingFlags) IsDirtyData() bool {
	return (f & MappingDirtyData) != 0
}
func (f MappingFlags) IsConstData() bool {
	return (f & MappingConstData) != 0
}
func (f MappingFlags) IsTextStubs() bool {
	return (f & MappingTextStubs) != 0
}
func (f MappingFlags) IsDynamicConfig() bool {
	return (f & MappingDynamicConfig) != 0
}
func (f MappingFlags) IsReadOnlyData() bool {
	return (f & MappingReadOnlyData) != 0
}
func (f MappingFlags) IsConstTPROData() bool {
	return (f & MappingConstTPROData) != 0
}

// List returns a string array of set flag names
func (f MappingFlags) List() []string {
	var flags []string
	if f.IsAuthData() {
		flags = append(flags, "auth")
	}
	if f.IsDirtyData() {
		flags = append(flags, "dirty")
	}
	if f.IsConstData() {
		flags = append(flags, "const")
	}
	if f.IsTextStubs() {
		flags = append(flags, "text-stubs")
	}
	if f.IsDynamicConfig() {
		flags = append(flags, "dynamic-config")
	}
	if f.IsReadOnlyData() {
		flags = append(flags, "read-only")
	}
	if f.IsConstTPROData() {
		flags = append(flags, "const-tpro")
	}
	return flags
}

func (f MappingFlags) String() string {
	return strings.Join(f.List(), "|")
}

// MappingAndSlideInfo is a mapping record that also locates its slide info blob.
type MappingAndSlideInfo struct {
	Address             uint64
	Size                uint64
	FileOffset          uint64
	SlideInfoFileOffset uint64
	SlideInfoFileSize   uint64
	Flags               MappingFlags
	MaxProt             VmProtection
	InitProt            VmProtection
}

// HasSlideInfo reports whether the mapping carries slide info.
func (m MappingAndSlideInfo) HasSlideInfo() bool {
	return m.SlideInfoFileSize > 0
}

// MappingInfo flattens the record into its basic mapping triple.
func (m MappingAndSlideInfo) MappingInfo() MappingInfo {
	return MappingInfo{
		Address:    m.Address,
		Size:       m.Size,
		FileOffset: m.FileOffset,
		MaxProt:    m.MaxProt,
		InitProt:   m.InitProt,
	}
}

func (m MappingAndSlideInfo) String() string {
	return fmt.Sprintf("addr=%#011x-%#011x off=%#09x-%#09x %s/%s %s",
		m.Address, m.Address+m.Size, m.FileOffset, m.FileOffset+m.Size, m.InitProt, m.MaxProt, m.Flags)
}
