// Package dyldcache parses the dyld shared cache, the packed container the
// Apple dynamic linker uses to ship system libraries as one or more
// memory-mapped blobs. It provides read-only, random access to the cache
// metadata (header, mappings, image list, subcache topology), VM-to-file
// address resolution across a split cache, exported and local symbol
// enumeration, and pc symbolication.
//
// Everything is a deterministic function of the input bytes: offsets,
// lengths and counts read from the file are bounds-checked against the
// current source, arithmetic never silently overflows, and truncated data
// yields typed errors.
package dyldcache
