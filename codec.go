package rectable

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// codec compresses and decompresses whole group buffers. Instances are
// resolved once per writer/reader and must be safe for concurrent use
// on the decode path.
type codec interface {
	// Encode compresses src, reusing dst's backing array if possible.
	Encode(dst, src []byte) ([]byte, error)

	// Decode decompresses src into dst, which is pre-sized to the
	// expected raw length. The returned slice may alias either
	// argument. Length verification is left to the caller.
	Decode(dst, src []byte) ([]byte, error)
}

func newCodec(c Compression, level int) (codec, error) {
	switch c {
	case NoCompression:
		return rawCodec{}, nil
	case SnappyCompression:
		return snappyCodec{}, nil
	case ZstdCompression:
		return newZstdCodec(level)
	case BrotliCompression:
		return newBrotliCodec(level)
	}
	return nil, fmt.Errorf("%w (%d)", ErrBadCompression, c)
}

// --------------------------------------------------------------------

type rawCodec struct{}

func (rawCodec) Encode(_, src []byte) ([]byte, error) { return src, nil }
func (rawCodec) Decode(_, src []byte) ([]byte, error) { return src, nil }

type snappyCodec struct{}

func (snappyCodec) Encode(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst[:cap(dst)], src), nil
}

func (snappyCodec) Decode(dst, src []byte) ([]byte, error) {
	return snappy.Decode(dst, src)
}

// --------------------------------------------------------------------

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec(level int) (*zstdCodec, error) {
	if level == 0 {
		level = 3 // zstd convention, 0 selects the default level
	}
	if level < 1 || level > 22 {
		return nil, fmt.Errorf("%w: zstd level %d out of range [0,22]", ErrBadCompression, level)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Encode(dst, src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, dst[:0]), nil
}

func (c *zstdCodec) Decode(dst, src []byte) ([]byte, error) {
	return c.dec.DecodeAll(src, dst[:0])
}

// --------------------------------------------------------------------

type brotliCodec struct {
	level int
}

func newBrotliCodec(level int) (brotliCodec, error) {
	if level < brotli.BestSpeed || level > brotli.BestCompression {
		return brotliCodec{}, fmt.Errorf("%w: brotli level %d out of range [%d,%d]",
			ErrBadCompression, level, brotli.BestSpeed, brotli.BestCompression)
	}
	return brotliCodec{level: level}, nil
}

func (c brotliCodec) Encode(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	bw := brotli.NewWriterLevel(buf, c.level)
	if _, err := bw.Write(src); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c brotliCodec) Decode(dst, src []byte) ([]byte, error) {
	br := brotli.NewReader(bytes.NewReader(src))
	if _, err := io.ReadFull(br, dst); err != nil {
		return nil, err
	}
	if n, err := br.Read(make([]byte, 1)); n != 0 || err != io.EOF {
		return nil, fmt.Errorf("rectable: trailing data after brotli stream")
	}
	return dst, nil
}
