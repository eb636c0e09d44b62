package dyldcache

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/appsworld/go-dyldcache/types"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

// A Cache is one parsed dyld shared cache file: its header plus the decoded
// metadata tables. It is immutable once built.
type Cache struct {
	Header            *types.CacheHeader
	Mappings          []types.MappingInfo
	MappingsWithSlide []types.MappingAndSlideInfo
	Images            []types.ImageInfo
	ImagesText        []types.ImageTextInfo
	SubCaches         []types.SubCacheEntry

	resolver *VMAddressResolver
	src      ByteSource
}

// readTable fetches count records of entrySize bytes at offset, refusing
// any table whose arithmetic overflows or runs past the source.
func readTable(src ByteSource, name string, offset, count, entrySize uint64) ([]byte, error) {
	if offset == 0 || count == 0 {
		return nil, nil
	}
	total, carry := bits.Mul64(count, entrySize)
	if carry != 0 {
		return nil, errors.Wrapf(ErrInvalidMachO, "unreasonable table %s: %d entries of %d bytes", name, count, entrySize)
	}
	end, c := bits.Add64(offset, total, 0)
	if c != 0 || end > src.Size() {
		return nil, errors.Wrapf(ErrInvalidMachO, "unreasonable table %s: %#x+%#x exceeds file size %#x", name, offset, total, src.Size())
	}
	data, err := src.Read(offset, total)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) < total {
		return nil, errors.Wrapf(ErrRangeOutOfBounds, "table %s truncated at %#x", name, offset)
	}
	return data, nil
}

// NewCache parses one cache file from src.
func NewCache(src ByteSource) (*Cache, error) {
	if src.Size() < types.MinHeaderSize {
		return nil, errors.Wrapf(ErrFileTooSmall, "%d bytes, need %#x", src.Size(), types.MinHeaderSize)
	}

	window := uint64(HeaderWindowSize)
	if src.Size() < window {
		window = src.Size()
	}
	hdrData, err := src.Read(0, window)
	if err != nil {
		return nil, err
	}

	hdr, err := ParseCacheHeader(hdrData)
	if err != nil {
		return nil, err
	}

	cache := &Cache{Header: hdr, src: src}

	if data, err := readTable(src, "mappings", uint64(hdr.MappingOffset), uint64(hdr.MappingCount), types.MappingInfoSize); err != nil {
		return nil, err
	} else if data != nil {
		c := NewCursor(data)
		for i := uint32(0); i < hdr.MappingCount; i++ {
			m, err := parseMappingInfo(c)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidMappingInfo, "mapping %d: %v", i, err)
			}
			cache.Mappings = append(cache.Mappings, m)
		}
	}

	if data, err := readTable(src, "mappings-with-slide", uint64(hdr.MappingWithSlideOffset), uint64(hdr.MappingWithSlideCount), types.MappingAndSlideInfoSize); err != nil {
		return nil, err
	} else if data != nil {
		c := NewCursor(data)
		for i := uint32(0); i < hdr.MappingWithSlideCount; i++ {
			m, err := parseMappingAndSlideInfo(c)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidMappingInfo, "mapping-with-slide %d: %v", i, err)
			}
			cache.MappingsWithSlide = append(cache.MappingsWithSlide, m)
		}
	}

	imgOffset, imgCount := hdr.ImagesTable()
	if data, err := readTable(src, "images", imgOffset, imgCount, types.ImageInfoSize); err != nil {
		return nil, err
	} else if data != nil {
		c := NewCursor(data)
		for i := uint64(0); i < imgCount; i++ {
			img, err := parseImageInfo(c)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidImageInfo, "image %d: %v", i, err)
			}
			cache.Images = append(cache.Images, img)
		}
	}

	if data, err := readTable(src, "images-text", hdr.ImagesTextOffset, hdr.ImagesTextCount, types.ImageTextInfoSize); err != nil {
		return nil, err
	} else if data != nil {
		c := NewCursor(data)
		for i := uint64(0); i < hdr.ImagesTextCount; i++ {
			img, err := parseImageTextInfo(c)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidImageInfo, "image-text %d: %v", i, err)
			}
			cache.ImagesText = append(cache.ImagesText, img)
		}
	}

	v1 := hdr.SubCacheEntriesV1()
	entrySize := uint64(types.SubCacheEntryV2Size)
	if v1 {
		entrySize = types.SubCacheEntryV1Size
	}
	if data, err := readTable(src, "subcaches", uint64(hdr.SubCacheArrayOffset), uint64(hdr.SubCacheArrayCount), entrySize); err != nil {
		return nil, err
	} else if data != nil {
		c := NewCursor(data)
		for i := uint32(0); i < hdr.SubCacheArrayCount; i++ {
			e, err := parseSubCacheEntry(c, v1, int(i))
			if err != nil {
				return nil, err
			}
			cache.SubCaches = append(cache.SubCaches, e)
		}
	}

	cache.resolver = NewVMAddressResolver(cache.resolverMappings())

	return cache, nil
}

func (c *Cache) resolverMappings() []types.MappingInfo {
	if len(c.MappingsWithSlide) > 0 {
		mappings := make([]types.MappingInfo, 0, len(c.MappingsWithSlide))
		for _, m := range c.MappingsWithSlide {
			mappings = append(mappings, m.MappingInfo())
		}
		return mappings
	}
	return c.Mappings
}

// Resolver returns the cache's VM address resolver.
func (c *Cache) Resolver() *VMAddressResolver {
	return c.resolver
}

// Source returns the byte source the cache was parsed from.
func (c *Cache) Source() ByteSource {
	return c.src
}

// UUID returns the cache file's UUID.
func (c *Cache) UUID() types.UUID {
	return c.Header.UUID
}

// ImagePath reads the path string of image index i.
func (c *Cache) ImagePath(i int) (string, error) {
	if i < 0 || i >= len(c.Images) {
		return "", errors.Wrapf(ErrImageIndexOutOfBounds, "image %d of %d", i, len(c.Images))
	}
	off := uint64(c.Images[i].PathFileOffset)
	if off == 0 || off >= c.src.Size() {
		return "", errors.Wrapf(ErrInvalidStringOffset, "image %d path at %#x", i, off)
	}
	return ReadCString(c.src, off)
}

// LocalSymbolsInfo reads the local-symbols info record, or nil when the
// cache carries no local symbols.
func (c *Cache) LocalSymbolsInfo() (*types.LocalSymbolsInfo, error) {
	if c.Header.LocalSymbolsOffset == 0 || c.Header.LocalSymbolsSize == 0 {
		return nil, nil
	}
	data, err := readTable(c.src, "local-symbols-info", c.Header.LocalSymbolsOffset, 1, types.LocalSymbolsInfoSize)
	if err != nil {
		return nil, err
	}
	info, err := parseLocalSymbolsInfo(NewCursor(data))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidLocalSymbolsInfo, "%v", err)
	}
	return &info, nil
}

// SlideInfoForMapping reads and decodes the slide info blob of mapping i,
// or nil when the mapping has none.
func (c *Cache) SlideInfoForMapping(i int) (types.SlideInfo, error) {
	if i < 0 || i >= len(c.MappingsWithSlide) {
		return nil, errors.Wrapf(ErrOffsetOutOfBounds, "mapping %d of %d", i, len(c.MappingsWithSlide))
	}
	m := c.MappingsWithSlide[i]
	if !m.HasSlideInfo() {
		return nil, nil
	}
	data, err := readTable(c.src, "slide-info", m.SlideInfoFileOffset, 1, m.SlideInfoFileSize)
	if err != nil {
		return nil, err
	}
	return ParseSlideInfo(data)
}

func (c *Cache) String() string {
	var sb strings.Builder

	sb.WriteString(c.Header.String())

	if len(c.Mappings) > 0 || len(c.MappingsWithSlide) > 0 {
		table := tablewriter.NewWriter(&sb)
		table.SetHeader([]string{"Address", "Size", "File Offset", "Prot", "Flags"})
		table.SetBorder(false)
		if len(c.MappingsWithSlide) > 0 {
			for _, m := range c.MappingsWithSlide {
				table.Append([]string{
					fmt.Sprintf("%#011x", m.Address),
					fmt.Sprintf("%#x", m.Size),
					fmt.Sprintf("%#09x", m.FileOffset),
					fmt.Sprintf("%s/%s", m.InitProt, m.MaxProt),
					m.Flags.String(),
				})
			}
		} else {
			for _, m := range c.Mappings {
				table.Append([]string{
					fmt.Sprintf("%#011x", m.Address),
					fmt.Sprintf("%#x", m.Size),
					fmt.Sprintf("%#09x", m.FileOffset),
					fmt.Sprintf("%s/%s", m.InitProt, m.MaxProt),
					"",
				})
			}
		}
		table.Render()
	}

	sb.WriteString(fmt.Sprintf("images=%d subcaches=%d\n", len(c.Images), len(c.SubCaches)))

	return sb.String()
}
