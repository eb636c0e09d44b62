package types

import "fmt"

// ImageInfoSize is the on-disk size of a dyld_cache_image_info record.
const ImageInfoSize = 32

// ImageInfo is one cached image record; PathFileOffset points into the
// same file as the header that declared it.
type ImageInfo struct {
	Address        uint64
	ModTime        uint64
	Inode          uint64
	PathFileOffset uint32
	Pad            uint32
}

func (i ImageInfo) String() string {
	return fmt.Sprintf("addr=%#011x path-off=%#x", i.Address, i.PathFileOffset)
}

// ImageTextInfoSize is the on-disk size of a dyld_cache_image_text_info record.
const ImageTextInfoSize = 32

// ImageTextInfo is the TEXT-segment record kept parallel to ImageInfo.
type ImageTextInfo struct {
	UUID            UUID
	LoadAddress     uint64
	TextSegmentSize uint32
	PathOffset      uint32
}

func (i ImageTextInfo) String() string {
	return fmt.Sprintf("%s addr=%#011x text-size=%#x", i.UUID, i.LoadAddress, i.TextSegmentSize)
}
