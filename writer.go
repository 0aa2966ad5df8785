package rectable

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

// Writer instances encode records into a store. A writer owns its
// buffers exclusively and must not be shared across goroutines.
type Writer struct {
	w io.Writer
	o *WriterOptions
	c codec

	buf  []byte // current group buffer, length-prefixed records
	cbuf []byte // compressed scratch buffer
	blen int64  // records in the current group

	total  int64 // records appended overall
	offset int64 // bytes written to the sink
	index  []groupInfo

	tmp []byte // scratch; nil once closed
	err error  // sticky sink error
}

// NewWriter wraps a sink and returns a Writer. It fails if the
// configured codec or level is invalid.
func NewWriter(w io.Writer, o *WriterOptions) (*Writer, error) {
	oo := o.norm()
	c, err := newCodec(oo.Compression, oo.Level)
	if err != nil {
		return nil, err
	}

	return &Writer{
		w:   w,
		o:   oo,
		c:   c,
		tmp: make([]byte, binary.MaxVarintLen64),
	}, nil
}

// Append appends a single record to the store. Records may be of any
// length, including zero. After a sink error the writer is unusable
// and every call returns the original error.
func (w *Writer) Append(record []byte) error {
	if w.tmp == nil {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	w.buf = appendRecord(w.buf, record)
	w.blen++
	w.total++

	if w.blen >= int64(w.o.GroupSize) {
		return w.flush()
	}
	return nil
}

// NumRecords returns the number of records appended so far.
func (w *Writer) NumRecords() int64 { return w.total }

// Close flushes the trailing group, writes the footer and trailer and
// marks the writer as closed. Closing a closed writer returns
// ErrClosed. A store with zero records is valid and carries an empty
// index table.
func (w *Writer) Close() error {
	if w.tmp == nil {
		return ErrClosed
	}
	w.tmp = nil

	if w.err != nil {
		return w.err
	}
	if err := w.flush(); err != nil {
		return err
	}

	footer := appendFooter(nil, tableInfo{
		NumRecords:  w.total,
		GroupSize:   int64(w.o.GroupSize),
		Compression: w.o.Compression,
		Level:       w.o.Level,
	}, w.index)
	footer = appendTrailer(footer, w.offset)
	return w.writeRaw(footer)
}

func (w *Writer) flush() error {
	if w.blen == 0 {
		return nil
	}

	blob, err := w.c.Encode(w.cbuf, w.buf)
	if err != nil {
		w.err = err
		return err
	}
	w.cbuf = blob[:0:cap(blob)]

	info := groupInfo{
		Start:  w.total - w.blen,
		Count:  w.blen,
		Offset: w.offset,
		Length: int64(len(blob)),
		RawLen: int64(len(w.buf)),
		CRC:    crc32.Checksum(blob, crcTable),
	}
	if err := w.writeRaw(blob); err != nil {
		return err
	}

	w.index = append(w.index, info)
	w.buf = w.buf[:0]
	w.blen = 0
	return nil
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	if err != nil {
		w.err = err
	}
	return err
}
