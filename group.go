package rectable

import (
	"encoding/binary"
	"fmt"
)

// appendRecord appends one length-prefixed record to a group buffer.
func appendRecord(buf []byte, record []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(record)))
	buf = append(buf, tmp[:n]...)
	return append(buf, record...)
}

// groupData is a fully decoded group. The per-record boundaries are
// resolved once at decode time so that individual records can be
// extracted in O(1) afterwards.
type groupData struct {
	recs [][]byte
}

// decodeGroup splits a decompressed group buffer back into the
// individual records it was packed from.
func decodeGroup(buf []byte, count int64) (*groupData, error) {
	recs := make([][]byte, 0, count)
	for pos := 0; pos < len(buf); {
		size, n := binary.Uvarint(buf[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("rectable: bad record length prefix at %d", pos)
		}
		pos += n

		end := pos + int(size)
		if end < pos || end > len(buf) {
			return nil, fmt.Errorf("rectable: record of %d bytes overruns group buffer", size)
		}
		recs = append(recs, buf[pos:end:end])
		pos = end
	}

	if int64(len(recs)) != count {
		return nil, fmt.Errorf("rectable: group decoded to %d records, expected %d", len(recs), count)
	}
	return &groupData{recs: recs}, nil
}

// NumRecords returns the number of records in the group.
func (g *groupData) NumRecords() int { return len(g.recs) }

// Record returns the n-th record of the group. The returned slice
// aliases the decoded group buffer and must not be mutated.
func (g *groupData) Record(n int) []byte { return g.recs[n] }
