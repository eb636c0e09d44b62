package dyldcache

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// A ByteSource provides stateless random access to the raw bytes of one
// cache file. Implementations must be safe for concurrent Read calls.
type ByteSource interface {
	// Size returns the total number of readable bytes.
	Size() uint64
	// Read returns length bytes starting at offset. Reads past the end are
	// truncated; reads entirely out of range yield an empty slice. The
	// returned slice may be borrowed; callers must not mutate it.
	Read(offset, length uint64) ([]byte, error)
}

const (
	maxCStringBytes  = 256 << 10
	cStringChunkSize = 4 << 10
)

// ReadCString reads the NUL-terminated string at offset, probing in chunks
// and stopping after maxCStringBytes. Invalid UTF-8 is replaced.
func ReadCString(src ByteSource, offset uint64) (string, error) {
	var sb strings.Builder

	for sb.Len() < maxCStringBytes {
		chunk, err := src.Read(offset+uint64(sb.Len()), cStringChunkSize)
		if err != nil {
			return "", err
		}
		if len(chunk) == 0 {
			break
		}
		for i, b := range chunk {
			if b == 0 {
				sb.Write(chunk[:i])
				return toValidUTF8(sb.String()), nil
			}
		}
		sb.Write(chunk)
	}

	return toValidUTF8(sb.String()), nil
}

func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}

// MemorySource is an in-memory ByteSource for tests and small inputs.
type MemorySource []byte

func (m MemorySource) Size() uint64 {
	return uint64(len(m))
}

func (m MemorySource) Read(offset, length uint64) ([]byte, error) {
	if offset >= uint64(len(m)) {
		return nil, nil
	}
	end := offset + length
	if end < offset || end > uint64(len(m)) {
		end = uint64(len(m))
	}
	return m[offset:end], nil
}

// FileSource is a ByteSource over an open file, using positioned reads so
// concurrent callers never share a file cursor.
type FileSource struct {
	f    *os.File
	size uint64
}

// OpenFileSource opens path as a ByteSource.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrFileRead, "open %s: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(ErrFileRead, "stat %s: %v", path, err)
	}
	return &FileSource{f: f, size: uint64(fi.Size())}, nil
}

func (s *FileSource) Size() uint64 {
	return s.size
}

func (s *FileSource) Read(offset, length uint64) ([]byte, error) {
	if offset >= s.size {
		return nil, nil
	}
	if end := offset + length; end < offset || end > s.size {
		length = s.size - offset
	}
	buf := make([]byte, length)
	n, err := s.f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(ErrFileRead, "read %d bytes at %#x: %v", length, offset, err)
	}
	return buf[:n], nil
}

func (s *FileSource) Close() error {
	return s.f.Close()
}

// MmapSource is a ByteSource over a read-only memory mapping of a file.
type MmapSource struct {
	f *os.File
	m mmap.MMap
}

// OpenMmapSource maps path read-only and serves reads from the mapping.
func OpenMmapSource(path string) (*MmapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrFileRead, "open %s: %v", path, err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(ErrFileRead, "mmap %s: %v", path, err)
	}
	return &MmapSource{f: f, m: m}, nil
}

func (s *MmapSource) Size() uint64 {
	return uint64(len(s.m))
}

func (s *MmapSource) Read(offset, length uint64) ([]byte, error) {
	return MemorySource(s.m).Read(offset, length)
}

func (s *MmapSource) Close() error {
	err := s.m.Unmap()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
