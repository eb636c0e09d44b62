package types

// Nlist sizes on disk.
const (
	Nlist32Size = 12
	Nlist64Size = 16
)

// NlistType is the n_type byte of an nlist record.
type NlistType uint8

const (
	NlistStabMask            NlistType = 0xe0
	NlistPrivateExternalMask NlistType = 0x10
	NlistTypeMask            NlistType = 0x0e
	NlistExternalMask        NlistType = 0x01

	NlistTypeUndefined NlistType = 0x0
	NlistTypeAbsolute  NlistType = 0x2
	NlistTypeIndirect  NlistType = 0xa
	NlistTypePrebound  NlistType = 0xc
	NlistTypeSection   NlistType = 0xe
)

func (t NlistType) IsDebugSym() bool {
	return (t & NlistStabMask) != 0
}
func (t NlistType) IsPrivateExternal() bool {
	return (t & NlistPrivateExternalMask) != 0
}
func (t NlistType) IsExternal() bool {
	return (t & NlistExternalMask) != 0
}
func (t NlistType) Type() NlistType {
	return t & NlistTypeMask
}
func (t NlistType) IsUndefined() bool {
	return t.Type() == NlistTypeUndefined
}
func (t NlistType) IsAbsolute() bool {
	return t.Type() == NlistTypeAbsolute
}
func (t NlistType) IsIndirect() bool {
	return t.Type() == NlistTypeIndirect
}
func (t NlistType) IsPrebound() bool {
	return t.Type() == NlistTypePrebound
}
func (t NlistType) IsDefinedInSection() bool {
	return t.Type() == NlistTypeSection
}

// Nlist32 is a 32-bit symbol table record.
type Nlist32 struct {
	StringIndex uint32
	Type        NlistType
	Sect        uint8
	Desc        uint16
	Value       uint32
}

// Nlist64 is a 64-bit symbol table record.
type Nlist64 struct {
	StringIndex uint32
	Type        NlistType
	Sect        uint8
	Desc        uint16
	Value       uint64
}
