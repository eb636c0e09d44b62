package dyldcache

import (
	"github.com/appsworld/go-dyldcache/types"
	"github.com/pkg/errors"
)

// MaxMachOHeaderSize caps how many header+load-command bytes the locator
// will walk.
const MaxMachOHeaderSize = 16 << 20

// An ExportsTrieLocation is the unslid placement of an image's exports trie.
type ExportsTrieLocation struct {
	VMAddress uint64
	Size      uint64
}

// machOHeaderSizes reads just enough of a Mach-O header to size the full
// header+load-commands window.
func machOHeaderSizes(data []byte) (hdrSize, sizeOfCmds, nCmds uint32, err error) {
	c := NewCursor(data)

	magic, err := c.Uint32()
	if err != nil {
		return 0, 0, 0, errors.Wrapf(ErrInvalidMachO, "%v", err)
	}
	switch magic {
	case types.Magic32:
		hdrSize = types.MachOHeaderSize32
	case types.Magic64:
		hdrSize = types.MachOHeaderSize64
	default:
		return 0, 0, 0, errors.Wrapf(ErrInvalidMachO, "bad magic %#x", magic)
	}

	if err := c.Seek(16); err != nil {
		return 0, 0, 0, errors.Wrapf(ErrInvalidMachO, "%v", err)
	}
	if nCmds, err = c.Uint32(); err != nil {
		return 0, 0, 0, errors.Wrapf(ErrInvalidMachO, "%v", err)
	}
	if sizeOfCmds, err = c.Uint32(); err != nil {
		return 0, 0, 0, errors.Wrapf(ErrInvalidMachO, "%v", err)
	}
	return hdrSize, sizeOfCmds, nCmds, nil
}

// LocateExportsTrie walks one image's load commands and returns the unslid
// VM placement of its exports trie, or nil when the image has none. data
// must hold the Mach-O header and all of its load commands.
func LocateExportsTrie(data []byte) (*ExportsTrieLocation, error) {
	hdrSize, sizeOfCmds, nCmds, err := machOHeaderSizes(data)
	if err != nil {
		return nil, err
	}

	total := uint64(hdrSize) + uint64(sizeOfCmds)
	if total == 0 || total > MaxMachOHeaderSize {
		return nil, errors.Wrapf(ErrInvalidMachO, "unreasonable load command size %#x", total)
	}
	if total > uint64(len(data)) {
		return nil, errors.Wrapf(ErrRangeOutOfBounds, "load commands end at %#x, have %#x bytes", total, len(data))
	}

	c := NewCursor(data[:total])
	if err := c.Seek(uint64(hdrSize)); err != nil {
		return nil, err
	}

	var linkeditVMAddr, linkeditFileOff uint64
	var haveLinkedit bool
	var exportOff, exportSize uint32
	var haveExportsTrieCmd bool

	for i := uint32(0); i < nCmds; i++ {
		cmdStart := c.Offset()

		cmd, err := c.Uint32()
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidMachO, "load command %d: %v", i, err)
		}
		cmdSize, err := c.Uint32()
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidMachO, "load command %d: %v", i, err)
		}
		if cmdSize < 8 || cmdStart+uint64(cmdSize) > total {
			return nil, errors.Wrapf(ErrInvalidMachO, "load command %d: bad size %#x", i, cmdSize)
		}

		switch types.LoadCmd(cmd) {
		case types.LC_SEGMENT_64:
			segname, err := c.Bytes(16)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidMachO, "segment name: %v", err)
			}
			if cString(segname) == "__LINKEDIT" {
				if linkeditVMAddr, err = c.Uint64(); err != nil {
					return nil, errors.Wrapf(ErrInvalidMachO, "__LINKEDIT vmaddr: %v", err)
				}
				if _, err = c.Uint64(); err != nil { // vmsize
					return nil, errors.Wrapf(ErrInvalidMachO, "__LINKEDIT vmsize: %v", err)
				}
				if linkeditFileOff, err = c.Uint64(); err != nil {
					return nil, errors.Wrapf(ErrInvalidMachO, "__LINKEDIT fileoff: %v", err)
				}
				haveLinkedit = true
			}
		case types.LC_SEGMENT:
			segname, err := c.Bytes(16)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidMachO, "segment name: %v", err)
			}
			if cString(segname) == "__LINKEDIT" {
				vmaddr, err := c.Uint32()
				if err != nil {
					return nil, errors.Wrapf(ErrInvalidMachO, "__LINKEDIT vmaddr: %v", err)
				}
				if _, err = c.Uint32(); err != nil { // vmsize
					return nil, errors.Wrapf(ErrInvalidMachO, "__LINKEDIT vmsize: %v", err)
				}
				fileoff, err := c.Uint32()
				if err != nil {
					return nil, errors.Wrapf(ErrInvalidMachO, "__LINKEDIT fileoff: %v", err)
				}
				linkeditVMAddr = uint64(vmaddr)
				linkeditFileOff = uint64(fileoff)
				haveLinkedit = true
			}
		case types.LC_DYLD_EXPORTS_TRIE:
			if exportOff, err = c.Uint32(); err != nil {
				return nil, errors.Wrapf(ErrInvalidMachO, "exports trie dataoff: %v", err)
			}
			if exportSize, err = c.Uint32(); err != nil {
				return nil, errors.Wrapf(ErrInvalidMachO, "exports trie datasize: %v", err)
			}
			haveExportsTrieCmd = true
		case types.LC_DYLD_INFO, types.LC_DYLD_INFO_ONLY:
			// rebase/bind/weak/lazy offset+size pairs precede the export pair
			for skip := 0; skip < 8; skip++ {
				if _, err := c.Uint32(); err != nil {
					return nil, errors.Wrapf(ErrInvalidMachO, "dyld info: %v", err)
				}
			}
			off, err := c.Uint32()
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidMachO, "dyld info export_off: %v", err)
			}
			size, err := c.Uint32()
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidMachO, "dyld info export_size: %v", err)
			}
			if !haveExportsTrieCmd {
				exportOff, exportSize = off, size
			}
		}

		if err := c.Seek(cmdStart + uint64(cmdSize)); err != nil {
			return nil, errors.Wrapf(ErrInvalidMachO, "load command %d: %v", i, err)
		}
	}

	if !haveLinkedit || exportSize == 0 {
		return nil, nil
	}

	return &ExportsTrieLocation{
		VMAddress: linkeditVMAddr + uint64(exportOff) - linkeditFileOff,
		Size:      uint64(exportSize),
	}, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
