package rectable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// tableInfo holds the file-level metadata recorded in the footer.
type tableInfo struct {
	NumRecords  int64
	GroupSize   int64
	Compression Compression
	Level       int
}

// footerFixedLen is the size of the fixed-width footer header:
// record count (8) + group size (8) + codec id (1) + codec level (4) +
// group count (8).
const footerFixedLen = 29

// appendFooter marshals the file metadata and index table. Index
// entries are delta-encoded: each entry stores its start and offset
// relative to the previous entry, followed by its count, compressed
// length, raw length and a fixed-width checksum.
func appendFooter(dst []byte, info tableInfo, index []groupInfo) []byte {
	var tmp [4 * binary.MaxVarintLen64]byte

	binary.LittleEndian.PutUint64(tmp[0:], uint64(info.NumRecords))
	binary.LittleEndian.PutUint64(tmp[8:], uint64(info.GroupSize))
	tmp[16] = byte(info.Compression)
	binary.LittleEndian.PutUint32(tmp[17:], uint32(info.Level))
	binary.LittleEndian.PutUint64(tmp[21:], uint64(len(index)))
	dst = append(dst, tmp[:footerFixedLen]...)

	var prev groupInfo
	for i, ent := range index {
		start, offset := ent.Start, ent.Offset
		if i != 0 { // delta-encode
			start -= prev.Start
			offset -= prev.Offset
		}
		prev = ent

		n := binary.PutUvarint(tmp[0:], uint64(start))
		n += binary.PutUvarint(tmp[n:], uint64(ent.Count))
		n += binary.PutUvarint(tmp[n:], uint64(offset))
		n += binary.PutUvarint(tmp[n:], uint64(ent.Length))
		dst = append(dst, tmp[:n]...)

		n = binary.PutUvarint(tmp[0:], uint64(ent.RawLen))
		binary.LittleEndian.PutUint32(tmp[n:], ent.CRC)
		dst = append(dst, tmp[:n+4]...)
	}
	return dst
}

// appendTrailer marshals the fixed-size trailer which must form the
// very last bytes of the file.
func appendTrailer(dst []byte, footerOffset int64) []byte {
	var tmp [12]byte
	binary.LittleEndian.PutUint64(tmp[0:], uint64(footerOffset))
	binary.LittleEndian.PutUint32(tmp[8:], formatVersion)
	dst = append(dst, tmp[:]...)
	return append(dst, magic...)
}

// readFooter locates the footer of a store of the given size via its
// trailer, parses the metadata and index table and validates that the
// table covers the record range contiguously. Group bodies are never
// read.
func readFooter(src io.ReaderAt, size int64) (tableInfo, []groupInfo, error) {
	var info tableInfo
	var tmp [trailerLen]byte

	if size < trailerLen {
		return info, nil, fmt.Errorf("%w: store of %d bytes is too short", ErrBadMagic, size)
	}
	if _, err := src.ReadAt(tmp[:], size-trailerLen); err != nil {
		return info, nil, err
	}
	if !bytes.Equal(tmp[12:20], magic) {
		return info, nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(tmp[8:12]); v != formatVersion {
		return info, nil, fmt.Errorf("%w (%d)", ErrBadVersion, v)
	}

	footerOffset := int64(binary.LittleEndian.Uint64(tmp[0:8]))
	if footerOffset < 0 || footerOffset > size-trailerLen-footerFixedLen {
		return info, nil, fmt.Errorf("%w: footer offset %d out of bounds", ErrBadIndex, footerOffset)
	}

	buf := make([]byte, size-trailerLen-footerOffset)
	if _, err := src.ReadAt(buf, footerOffset); err != nil {
		return info, nil, err
	}

	info.NumRecords = int64(binary.LittleEndian.Uint64(buf[0:]))
	info.GroupSize = int64(binary.LittleEndian.Uint64(buf[8:]))
	info.Compression = Compression(buf[16])
	info.Level = int(binary.LittleEndian.Uint32(buf[17:]))
	numGroups := int64(binary.LittleEndian.Uint64(buf[21:]))

	if !info.Compression.isValid() {
		return info, nil, fmt.Errorf("%w (%d)", ErrBadCompression, info.Compression)
	}
	if info.NumRecords < 0 || info.GroupSize < 1 {
		return info, nil, fmt.Errorf("%w: bad metadata", ErrBadIndex)
	}

	index, err := parseIndex(buf[footerFixedLen:], numGroups)
	if err != nil {
		return info, nil, err
	}
	if err := validateIndex(info, index, footerOffset); err != nil {
		return info, nil, err
	}
	return info, index, nil
}

// minIndexEntryLen is the smallest possible wire size of an index
// entry: five 1-byte varints plus the fixed 4-byte checksum.
const minIndexEntryLen = 9

func parseIndex(buf []byte, numGroups int64) ([]groupInfo, error) {
	if numGroups < 0 || numGroups > int64(len(buf))/minIndexEntryLen {
		return nil, fmt.Errorf("%w: implausible group count %d for %d index bytes", ErrBadIndex, numGroups, len(buf))
	}
	index := make([]groupInfo, 0, numGroups)

	var prev groupInfo
	pos := 0
	for i := int64(0); i < numGroups; i++ {
		var ent groupInfo
		fields := []*int64{&ent.Start, &ent.Count, &ent.Offset, &ent.Length, &ent.RawLen}
		for _, f := range fields {
			u, n := binary.Uvarint(buf[pos:])
			if n <= 0 {
				return nil, fmt.Errorf("%w: truncated entry %d", ErrBadIndex, i)
			}
			*f = int64(u)
			pos += n
		}
		if pos+4 > len(buf) {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrBadIndex, i)
		}
		ent.CRC = binary.LittleEndian.Uint32(buf[pos:])
		pos += 4

		if i != 0 { // undo delta-encoding
			ent.Start += prev.Start
			ent.Offset += prev.Offset
		}
		prev = ent
		index = append(index, ent)
	}

	if pos != len(buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadIndex, len(buf)-pos)
	}
	return index, nil
}

// validateIndex verifies that the index entries partition the record
// range [0, NumRecords) and the group byte ranges [0, footerOffset)
// without gaps or overlaps.
func validateIndex(info tableInfo, index []groupInfo, footerOffset int64) error {
	var nextStart, nextOffset int64

	for i, ent := range index {
		if ent.Start != nextStart || ent.Count < 1 {
			return fmt.Errorf("%w: entry %d starts at record %d, expected %d", ErrBadIndex, i, ent.Start, nextStart)
		}
		if ent.Offset != nextOffset || ent.Length < 1 {
			return fmt.Errorf("%w: entry %d starts at offset %d, expected %d", ErrBadIndex, i, ent.Offset, nextOffset)
		}
		if ent.RawLen < ent.Count { // every record carries at least its length prefix
			return fmt.Errorf("%w: entry %d raw length %d below record count %d", ErrBadIndex, i, ent.RawLen, ent.Count)
		}
		nextStart = ent.Start + ent.Count
		nextOffset = ent.Offset + ent.Length
	}

	if nextStart != info.NumRecords {
		return fmt.Errorf("%w: table covers %d records, expected %d", ErrBadIndex, nextStart, info.NumRecords)
	}
	if nextOffset != footerOffset {
		return fmt.Errorf("%w: table covers %d data bytes, expected %d", ErrBadIndex, nextOffset, footerOffset)
	}
	return nil
}
