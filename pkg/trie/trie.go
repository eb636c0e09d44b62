package trie

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxSymbolNameLength caps the accumulated edge labels of any symbol.
const MaxSymbolNameLength = 4096

var (
	// ErrInvalidFormat is returned when the trie violates its structural limits.
	ErrInvalidFormat = errors.New("invalid export trie format")
	// ErrUnexpectedEnd is returned when the trie bytes end mid-structure.
	ErrUnexpectedEnd = errors.New("unexpected end of export trie")
	// ErrInvalidUleb128 is returned when a ULEB128 value does not fit in 64 bits.
	ErrInvalidUleb128 = errors.New("invalid ULEB128 value")
	// ErrSymbolNotFound is returned by Lookup when no terminal matches the name.
	ErrSymbolNotFound = errors.New("symbol not found in trie")
)

// TrieEntry is one exported symbol. Address holds the regular value offset
// or the stub offset; Other holds the re-export dylib ordinal or the
// resolver offset, depending on Flags.
type TrieEntry struct {
	Name     string
	ReExport string
	Flags    ExportFlag
	Other    uint64
	Address  uint64
}

func (e TrieEntry) String() string {
	if e.Flags.ReExport() {
		return fmt.Sprintf("%s (re-exported from dylib %d as %s)", e.Name, e.Other, e.ReExport)
	} else if e.Flags.StubAndResolver() {
		return fmt.Sprintf("%#016x: %s\t(resolver at %#x)", e.Address, e.Name, e.Other)
	}
	return fmt.Sprintf("%#016x: %s", e.Address, e.Name)
}

// ReadUleb128 decodes one unsigned LEB128 value from r.
func ReadUleb128(r *bytes.Reader) (uint64, error) {
	var result uint64
	var shift uint64

	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			return 0, ErrUnexpectedEnd
		}
		if err != nil {
			return 0, fmt.Errorf("could not parse ULEB128 value: %v", err)
		}

		if shift > 63 {
			return 0, ErrInvalidUleb128
		}

		result |= uint64(b&0x7f) << shift

		// A clear high-order bit ends the value.
		if (b & 0x80) == 0 {
			break
		}

		shift += 7
	}

	return result, nil
}

func readLabel(r *bytes.Reader, prefixLen int) ([]byte, error) {
	var label []byte
	for {
		s, err := r.ReadByte()
		if err == io.EOF {
			return nil, ErrUnexpectedEnd
		}
		if s == '\x00' {
			break
		}
		if prefixLen+len(label) >= MaxSymbolNameLength {
			return nil, fmt.Errorf("symbol name exceeds %d bytes: %w", MaxSymbolNameLength, ErrInvalidFormat)
		}
		label = append(label, s)
	}
	return label, nil
}

// parseTerminal decodes the payload that follows a non-zero terminal size.
func parseTerminal(r *bytes.Reader, name string) (TrieEntry, error) {
	symFlagInt, err := ReadUleb128(r)
	if err != nil {
		return TrieEntry{}, err
	}

	entry := TrieEntry{Name: name, Flags: ExportFlag(symFlagInt)}

	switch {
	case entry.Flags.ReExport():
		entry.Other, err = ReadUleb128(r)
		if err != nil {
			return TrieEntry{}, err
		}
		imported, err := readLabel(r, 0)
		if err != nil {
			return TrieEntry{}, err
		}
		entry.ReExport = string(imported)
	case entry.Flags.StubAndResolver():
		entry.Address, err = ReadUleb128(r)
		if err != nil {
			return TrieEntry{}, err
		}
		entry.Other, err = ReadUleb128(r)
		if err != nil {
			return TrieEntry{}, err
		}
	default:
		entry.Address, err = ReadUleb128(r)
		if err != nil {
			return TrieEntry{}, err
		}
	}

	return entry, nil
}

type trieNode struct {
	Offset   uint64
	SymBytes []byte
}

// An Iterator walks the trie depth-first, one terminal at a time. It owns a
// mutable stack; each goroutine must instantiate its own.
type Iterator struct {
	data    []byte
	r       *bytes.Reader
	nodes   []trieNode
	visited int
	done    bool
}

// NewIterator returns a fresh walk over trieData.
func NewIterator(trieData []byte) *Iterator {
	return &Iterator{
		data: trieData,
		r:    bytes.NewReader(trieData),
		nodes: []trieNode{{
			Offset:   0,
			SymBytes: make([]byte, 0),
		}},
	}
}

// Next returns the next exported symbol, or nil when the trie is exhausted.
// After an error the iterator is spent.
func (it *Iterator) Next() (*TrieEntry, error) {
	if it.done {
		return nil, nil
	}

	for len(it.nodes) > 0 {
		var tNode trieNode
		tNode, it.nodes = it.nodes[len(it.nodes)-1], it.nodes[:len(it.nodes)-1]

		// the format is a tree; a node count past this bound means the
		// offsets loop back on themselves
		it.visited++
		if it.visited > len(it.data)+MaxSymbolNameLength {
			it.done = true
			return nil, fmt.Errorf("node count exceeds trie size: %w", ErrInvalidFormat)
		}

		if tNode.Offset > uint64(len(it.data)) {
			it.done = true
			return nil, ErrUnexpectedEnd
		}
		it.r.Seek(int64(tNode.Offset), io.SeekStart)

		terminalSize, err := ReadUleb128(it.r)
		if err != nil {
			it.done = true
			return nil, err
		}

		var entry *TrieEntry
		if terminalSize != 0 {
			e, err := parseTerminal(it.r, string(tNode.SymBytes))
			if err != nil {
				it.done = true
				return nil, err
			}
			entry = &e
		}

		// children begin right after the terminal payload window
		childrenOffset := tNode.Offset + ulebLen(terminalSize) + terminalSize
		it.r.Seek(int64(childrenOffset), io.SeekStart)

		childCount, err := it.r.ReadByte()
		if err == io.EOF {
			it.done = true
			return nil, ErrUnexpectedEnd
		}

		for i := 0; i < int(childCount); i++ {
			label, err := readLabel(it.r, len(tNode.SymBytes))
			if err != nil {
				it.done = true
				return nil, err
			}

			childNodeOffset, err := ReadUleb128(it.r)
			if err != nil {
				it.done = true
				return nil, err
			}
			if childNodeOffset >= uint64(len(it.data)) {
				it.done = true
				return nil, ErrUnexpectedEnd
			}

			tmp := make([]byte, len(tNode.SymBytes), len(tNode.SymBytes)+len(label))
			copy(tmp, tNode.SymBytes)
			tmp = append(tmp, label...)

			it.nodes = append(it.nodes, trieNode{
				Offset:   childNodeOffset,
				SymBytes: tmp,
			})
		}

		if entry != nil {
			return entry, nil
		}
	}

	it.done = true
	return nil, nil
}

func ulebLen(v uint64) uint64 {
	n := uint64(1)
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ParseTrie walks the whole trie and collects every terminal.
func ParseTrie(trieData []byte) ([]TrieEntry, error) {
	var entries []TrieEntry

	it := NewIterator(trieData)
	for {
		entry, err := it.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return entries, nil
		}
		entries = append(entries, *entry)
	}
}

// ParseTrieBestEffort collects terminals until the first parse error and
// returns whatever was gathered.
func ParseTrieBestEffort(trieData []byte) []TrieEntry {
	var entries []TrieEntry

	it := NewIterator(trieData)
	for {
		entry, err := it.Next()
		if err != nil || entry == nil {
			return entries
		}
		entries = append(entries, *entry)
	}
}

// Lookup descends the trie edge by edge and returns the terminal whose
// accumulated prefix equals symbol.
func Lookup(data []byte, symbol string) (TrieEntry, error) {
	if len(symbol) > MaxSymbolNameLength {
		return TrieEntry{}, fmt.Errorf("symbol name exceeds %d bytes: %w", MaxSymbolNameLength, ErrInvalidFormat)
	}

	var strIndex int
	var offset, nodeOffset uint64

	r := bytes.NewReader(data)

	for visited := 0; ; visited++ {
		if visited > len(data) {
			return TrieEntry{}, fmt.Errorf("node count exceeds trie size: %w", ErrInvalidFormat)
		}
		if offset > uint64(len(data)) {
			return TrieEntry{}, ErrUnexpectedEnd
		}
		r.Seek(int64(offset), io.SeekStart)

		terminalSize, err := ReadUleb128(r)
		if err != nil {
			return TrieEntry{}, err
		}

		if strIndex == len(symbol) && terminalSize != 0 {
			return parseTerminal(r, symbol)
		}

		childrenOffset := offset + ulebLen(terminalSize) + terminalSize
		r.Seek(int64(childrenOffset), io.SeekStart)

		childCount, err := r.ReadByte()
		if err == io.EOF {
			break
		}

		nodeOffset = 0

		for i := childCount; i > 0; i-- {
			searchStrIndex := strIndex
			wrongEdge := false

			for {
				c, err := r.ReadByte()
				if err == io.EOF {
					return TrieEntry{}, ErrUnexpectedEnd
				}
				if c == '\x00' {
					break
				}
				if !wrongEdge {
					if searchStrIndex == len(symbol) || c != symbol[searchStrIndex] {
						wrongEdge = true
					}
					searchStrIndex++
				}
			}

			if wrongEdge {
				// advance past this child's node offset
				if _, err := ReadUleb128(r); err != nil {
					return TrieEntry{}, err
				}
			} else {
				// the symbol so far matches this edge, descend into the child
				nodeOffset, err = ReadUleb128(r)
				if err != nil {
					return TrieEntry{}, err
				}

				strIndex = searchStrIndex
				break
			}
		}

		if nodeOffset != 0 {
			offset = nodeOffset
		} else {
			break
		}
	}

	return TrieEntry{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
}
