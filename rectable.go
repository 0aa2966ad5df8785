package rectable

import (
	"errors"
	"hash/crc32"
)

var magic = []byte{82, 101, 99, 84, 97, 98, 30, 188}

// formatVersion is stored in the trailer and bumped on incompatible
// layout changes.
const formatVersion = 1

// trailerLen is the fixed size of the trailer block at the very end of
// every store file: footer offset (8) + format version (4) + magic (8).
const trailerLen = 20

var (
	// ErrClosed is returned on any use of a closed writer, reader or
	// released iterator.
	ErrClosed = errors.New("rectable: is closed")

	// ErrOutOfRange is returned when a record index is < 0 or >= Len().
	ErrOutOfRange = errors.New("rectable: record index out of range")

	// ErrCorrupted is returned when a group blob fails its checksum,
	// cannot be decompressed, or decodes to an unexpected length.
	ErrCorrupted = errors.New("rectable: corrupted group data")

	// Format errors. A store that fails to open with one of these is
	// unusable as a whole.
	ErrBadMagic       = errors.New("rectable: bad magic byte sequence")
	ErrBadVersion     = errors.New("rectable: unsupported format version")
	ErrBadIndex       = errors.New("rectable: malformed index table")
	ErrBadCompression = errors.New("rectable: bad compression codec")

	errReleased = errors.New("rectable: iterator was released")
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// groupInfo is a single index table entry, locating one group of
// records within the store.
type groupInfo struct {
	Start  int64  // index of the first record in the group
	Count  int64  // number of records in the group
	Offset int64  // byte offset of the compressed group blob
	Length int64  // byte length of the compressed group blob
	RawLen int64  // byte length of the group buffer before compression
	CRC    uint32 // checksum of the compressed group blob
}

// --------------------------------------------------------------------

// Compression is the compression codec applied to every group in a
// store. It is fixed per file and recorded in the footer.
type Compression byte

// Supported compression codecs.
const (
	SnappyCompression Compression = iota
	NoCompression
	ZstdCompression
	BrotliCompression
	unknownCompression
)

func (c Compression) isValid() bool {
	return c < unknownCompression
}

// String returns the codec name as used in option strings.
func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "uncompressed"
	case SnappyCompression:
		return "snappy"
	case ZstdCompression:
		return "zstd"
	case BrotliCompression:
		return "brotli"
	}
	return "unknown"
}
