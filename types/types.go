package types

import (
	"encoding/binary"
	"fmt"
)

type VmProtection int32

func (v VmProtection) Read() bool {
	return (v & 0x01) != 0
}

func (v VmProtection) Write() bool {
	return (v & 0x02) != 0
}

func (v VmProtection) Execute() bool {
	return (v & 0x04) != 0
}

func (v VmProtection) String() string {
	var protStr string
	if v.Read() {
		protStr += "r"
	} else {
		protStr += "-"
	}
	if v.Write() {
		protStr += "w"
	} else {
		protStr += "-"
	}
	if v.Execute() {
		protStr += "x"
	} else {
		protStr += "-"
	}
	return protStr
}

// UUID is a dyld shared cache uuid object
type UUID [16]byte

// IsNull returns true if UUID is 00000000-0000-0000-0000-000000000000
func (u UUID) IsNull() bool {
	return u == [16]byte{0}
}

func (u UUID) String() string {
	return fmt.Sprintf("%02X%02X%02X%02X-%02X%02X-%02X%02X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		u[0], u[1], u[2], u[3], u[4], u[5], u[6], u[7], u[8], u[9], u[10], u[11], u[12], u[13], u[14], u[15])
}

// Platform is the OS platform a cache was built for
type Platform uint32

const (
	PlatformUnknown           Platform = 0
	PlatformMacOS             Platform = 1
	PlatformIOS               Platform = 2
	PlatformTvOS              Platform = 3
	PlatformWatchOS           Platform = 4
	PlatformBridgeOS          Platform = 5
	PlatformMacCatalyst       Platform = 6
	PlatformIOSSimulator      Platform = 7
	PlatformTvOSSimulator     Platform = 8
	PlatformWatchOSSimulator  Platform = 9
	PlatformDriverKit         Platform = 10
	PlatformVisionOS          Platform = 11
	PlatformVisionOSSimulator Platform = 12
	PlatformFirmware          Platform = 13
	PlatformSepOS             Platform = 14
)

var platformNames = map[Platform]string{
	PlatformUnknown:           "unknown",
	PlatformMacOS:             "macOS",
	PlatformIOS:               "iOS",
	PlatformTvOS:              "tvOS",
	PlatformWatchOS:           "watchOS",
	PlatformBridgeOS:          "bridgeOS",
	PlatformMacCatalyst:       "macCatalyst",
	PlatformIOSSimulator:      "iOS Simulator",
	PlatformTvOSSimulator:     "tvOS Simulator",
	PlatformWatchOSSimulator:  "watchOS Simulator",
	PlatformDriverKit:         "DriverKit",
	PlatformVisionOS:          "visionOS",
	PlatformVisionOSSimulator: "visionOS Simulator",
	PlatformFirmware:          "firmware",
	PlatformSepOS:             "sepOS",
}

// ParsePlatform maps a raw platform id to a known Platform, defaulting to PlatformUnknown.
func ParsePlatform(raw uint32) Platform {
	if _, ok := platformNames[Platform(raw)]; ok {
		return Platform(raw)
	}
	return PlatformUnknown
}

func (p Platform) String() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return fmt.Sprintf("platform(%d)", uint32(p))
}

// Version is an OS version triple packed as xxxx.yy.zz
type Version uint32

func (v Version) String() string {
	s := make([]byte, 4)
	binary.BigEndian.PutUint32(s, uint32(v))
	if (s[3] & 0xFF) == 0 {
		return fmt.Sprintf("%d.%d", binary.BigEndian.Uint16(s[:2]), s[2])
	}
	return fmt.Sprintf("%d.%d.%d", binary.BigEndian.Uint16(s[:2]), s[2], s[3])
}

// Architecture is the CPU flavor encoded in the cache magic.
type Architecture string

const (
	ArchI386    Architecture = "i386"
	ArchX8664   Architecture = "x86_64"
	ArchX8664h  Architecture = "x86_64h"
	ArchARM64   Architecture = "arm64"
	ArchARM64e  Architecture = "arm64e"
	ArchARM6432 Architecture = "arm64_32"
)

// Is64Bit reports whether pointers in the cache are 8 bytes wide.
func (a Architecture) Is64Bit() bool {
	switch a {
	case ArchX8664, ArchX8664h, ArchARM64, ArchARM64e:
		return true
	}
	return false
}

// PointerSize returns the pointer width in bytes.
func (a Architecture) PointerSize() uint64 {
	if a.Is64Bit() {
		return 8
	}
	return 4
}

// UsesPAC reports whether pointer values carry authentication codes.
func (a Architecture) UsesPAC() bool {
	return a == ArchARM64e
}

func (a Architecture) String() string {
	return string(a)
}

// ExtractBits returns the count bits of value starting at bit start.
func ExtractBits(value uint64, start, count int) uint64 {
	return (value >> start) & ((1 << count) - 1)
}
