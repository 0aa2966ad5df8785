package rectable

import (
	"fmt"
	"strconv"
	"strings"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// GroupSize is the number of records packed into a single
	// compressed unit. Smaller groups favour random-read latency,
	// larger groups favour compression ratio and sequential
	// throughput.
	//
	// Default: 1.
	GroupSize int

	// The compression codec to use for every group in the file.
	// Default: SnappyCompression.
	Compression Compression

	// Level is the codec quality level. ZstdCompression accepts 0-22,
	// where 0 selects zstd's default level (3); BrotliCompression
	// accepts 0-11, where 0 is brotli's fastest quality. The other
	// codecs ignore it.
	Level int
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.GroupSize < 1 {
		oo.GroupSize = 1
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}

	return &oo
}

// ReaderOptions define reader specific options.
type ReaderOptions struct {
	// ReadaheadBufferSize is the budget, in compressed bytes, of
	// upcoming groups that an iterator may prefetch asynchronously
	// ahead of the cursor. 0 disables prefetch, which is appropriate
	// for random-access dominated workloads.
	//
	// Default: 0.
	ReadaheadBufferSize int

	// MaxParallelism is the maximum number of concurrent group
	// fetch/decode operations. 0 or 1 serialize all fetches.
	//
	// Default: 0.
	MaxParallelism int

	// CacheSize is the number of decoded groups retained in the
	// in-memory cache shared by Get, GetBatch and Iterate. A negative
	// value disables the cache.
	//
	// Default: 16.
	CacheSize int

	// MaxGroupRawLen is the maximum decoded size, in bytes, accepted
	// for a single group. Index entries declaring a larger raw length
	// fail at open with ErrBadIndex, before any group buffer is
	// allocated.
	//
	// Default: 1GiB.
	MaxGroupRawLen int64
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}

	if oo.ReadaheadBufferSize < 0 {
		oo.ReadaheadBufferSize = 0
	}
	if oo.MaxParallelism < 1 {
		oo.MaxParallelism = 1
	}
	if oo.CacheSize == 0 {
		oo.CacheSize = 16
	}
	if oo.MaxGroupRawLen < 1 {
		oo.MaxGroupRawLen = 1 << 30
	}

	return &oo
}

// --------------------------------------------------------------------

// ParseWriterOptions parses a comma-separated option string such as
// "group_size:100,zstd:5" into WriterOptions. Recognised options are
// "group_size:<uint>" and a codec name ("uncompressed", "snappy",
// "zstd", "brotli"), optionally followed by a numeric quality level.
// A bare "brotli" selects quality 6; "brotli:0" explicitly selects
// the fastest quality.
func ParseWriterOptions(s string) (*WriterOptions, error) {
	o := new(WriterOptions)
	err := eachOption(s, func(key string, val string) error {
		switch key {
		case "group_size":
			n, err := parseUint(key, val)
			if err != nil {
				return err
			}
			o.GroupSize = n
		case "uncompressed", "snappy", "zstd", "brotli":
			switch key {
			case "uncompressed":
				o.Compression = NoCompression
			case "snappy":
				o.Compression = SnappyCompression
			case "zstd":
				o.Compression = ZstdCompression
			case "brotli":
				o.Compression = BrotliCompression
				o.Level = 6
			}
			if val != "" {
				n, err := parseUint(key, val)
				if err != nil {
					return err
				}
				o.Level = n
			}
		default:
			return fmt.Errorf("rectable: unknown writer option %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ParseReaderOptions parses a comma-separated option string such as
// "readahead_buffer_size:1048576,max_parallelism:4" into
// ReaderOptions.
func ParseReaderOptions(s string) (*ReaderOptions, error) {
	o := new(ReaderOptions)
	err := eachOption(s, func(key string, val string) error {
		n, err := parseUint(key, val)
		if err != nil {
			return err
		}

		switch key {
		case "readahead_buffer_size":
			o.ReadaheadBufferSize = n
		case "max_parallelism":
			o.MaxParallelism = n
		case "cache_size":
			o.CacheSize = n
		default:
			return fmt.Errorf("rectable: unknown reader option %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func eachOption(s string, cb func(key, val string) error) error {
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok == "" {
			continue
		}

		key, val := tok, ""
		if n := strings.IndexByte(tok, ':'); n >= 0 {
			key, val = tok[:n], tok[n+1:]
		}
		if err := cb(key, val); err != nil {
			return err
		}
	}
	return nil
}

func parseUint(key, val string) (int, error) {
	n, err := strconv.ParseUint(val, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("rectable: invalid value %q for option %q", val, key)
	}
	return int(n), nil
}
