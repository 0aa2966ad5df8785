package rectable

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Reader instances provide random and sequential access to the
// records of a store. All methods are safe for concurrent use.
type Reader struct {
	src io.ReaderAt
	o   *ReaderOptions

	info  tableInfo
	index []groupInfo
	codec codec

	cache   *lru.Cache[int, *groupData]
	flights singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReader opens a reader over a store of the given size. It parses
// the trailer and footer to reconstruct the index table without
// reading any group bodies; opening is O(number of groups).
func NewReader(src io.ReaderAt, size int64, o *ReaderOptions) (*Reader, error) {
	info, index, err := readFooter(src, size)
	if err != nil {
		return nil, err
	}

	c, err := newCodec(info.Compression, info.Level)
	if err != nil {
		return nil, err
	}

	oo := o.norm()
	for pos, ent := range index {
		if ent.RawLen > oo.MaxGroupRawLen {
			return nil, fmt.Errorf("%w: group %d raw length %d exceeds the %d byte limit", ErrBadIndex, pos, ent.RawLen, oo.MaxGroupRawLen)
		}
	}
	var cache *lru.Cache[int, *groupData]
	if oo.CacheSize > 0 {
		if cache, err = lru.New[int, *groupData](oo.CacheSize); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reader{
		src:    src,
		o:      oo,
		info:   info,
		index:  index,
		codec:  c,
		cache:  cache,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Len returns the total number of records in the store.
func (r *Reader) Len() int { return int(r.info.NumRecords) }

// NumGroups returns the number of stored groups.
func (r *Reader) NumGroups() int { return len(r.index) }

// GroupSize returns the group size the store was written with.
func (r *Reader) GroupSize() int { return int(r.info.GroupSize) }

// Compression returns the codec the store was written with.
func (r *Reader) Compression() Compression { return r.info.Compression }

// Level returns the codec quality level the store was written with.
func (r *Reader) Level() int { return r.info.Level }

// Append retrieves the record at index i and appends it to dst.
// Unlike Get it allows the caller to reuse a buffer.
func (r *Reader) Append(dst []byte, i int) ([]byte, error) {
	if i < 0 || int64(i) >= r.info.NumRecords {
		return dst, fmt.Errorf("%w: %d (store holds %d)", ErrOutOfRange, i, r.info.NumRecords)
	}

	pos := r.seekGroup(int64(i))
	g, err := r.fetchGroup(pos)
	if err != nil {
		return dst, err
	}
	return append(dst, g.Record(i-int(r.index[pos].Start))...), nil
}

// Get is a shortcut for Append(nil, i). It returns a copy of the
// record owned by the caller.
func (r *Reader) Get(i int) ([]byte, error) {
	if i < 0 || int64(i) >= r.info.NumRecords {
		return nil, fmt.Errorf("%w: %d (store holds %d)", ErrOutOfRange, i, r.info.NumRecords)
	}
	return r.Append(make([]byte, 0, 64), i)
}

// GetBatch retrieves multiple records at once. Each distinct owning
// group is fetched and decoded at most once, with up to MaxParallelism
// groups in flight concurrently. Results are returned in input order;
// duplicate and unsorted indices are permitted. An empty batch yields
// an empty result.
func (r *Reader) GetBatch(indices []int) ([][]byte, error) {
	if len(indices) == 0 {
		return nil, nil
	}

	positions := make([]int, len(indices))
	distinct := make([]int, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for n, i := range indices {
		if i < 0 || int64(i) >= r.info.NumRecords {
			return nil, fmt.Errorf("%w: %d (store holds %d)", ErrOutOfRange, i, r.info.NumRecords)
		}
		pos := r.seekGroup(int64(i))
		positions[n] = pos
		if !seen[pos] {
			seen[pos] = true
			distinct = append(distinct, pos)
		}
	}

	var mu sync.Mutex
	groups := make(map[int]*groupData, len(distinct))

	eg := new(errgroup.Group)
	eg.SetLimit(r.o.MaxParallelism)
	for _, pos := range distinct {
		pos := pos
		eg.Go(func() error {
			g, err := r.fetchGroup(pos)
			if err != nil {
				return err
			}
			mu.Lock()
			groups[pos] = g
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := make([][]byte, len(indices))
	for n, i := range indices {
		rec := groups[positions[n]].Record(i - int(r.index[positions[n]].Start))
		res[n] = append(make([]byte, 0, len(rec)), rec...)
	}
	return res, nil
}

// Close cancels any in-flight prefetch operations, waits for them to
// settle and releases the decoded-group cache. It does not close the
// underlying source.
func (r *Reader) Close() error {
	r.cancel()
	r.wg.Wait()
	if r.cache != nil {
		r.cache.Purge()
	}
	return nil
}

// seekGroup returns the position of the group owning record i.
func (r *Reader) seekGroup(i int64) int {
	return sort.Search(len(r.index), func(n int) bool {
		return r.index[n].Start+r.index[n].Count > i
	})
}

// fetchGroup returns the decoded group at the given index position,
// serving it from the shared cache when possible. Concurrent callers
// for the same group share a single fetch/decode.
func (r *Reader) fetchGroup(pos int) (*groupData, error) {
	if r.cache != nil {
		if g, ok := r.cache.Get(pos); ok {
			return g, nil
		}
	}

	v, err, _ := r.flights.Do(strconv.Itoa(pos), func() (interface{}, error) {
		if r.cache != nil {
			if g, ok := r.cache.Get(pos); ok {
				return g, nil
			}
		}

		g, err := r.readGroup(pos)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Add(pos, g)
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*groupData), nil
}

// readGroup fetches and decodes a single group blob.
func (r *Reader) readGroup(pos int) (*groupData, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, ErrClosed
	}

	info := r.index[pos]
	raw := make([]byte, info.Length)
	if _, err := r.src.ReadAt(raw, info.Offset); err != nil {
		return nil, fmt.Errorf("rectable: reading group %d at offset %d: %w", pos, info.Offset, err)
	}

	if crc := crc32.Checksum(raw, crcTable); crc != info.CRC {
		return nil, fmt.Errorf("%w: group %d checksum mismatch at offset %d", ErrCorrupted, pos, info.Offset)
	}

	plain, err := r.codec.Decode(make([]byte, info.RawLen), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: group %d: %s", ErrCorrupted, pos, err)
	}
	if int64(len(plain)) != info.RawLen {
		return nil, fmt.Errorf("%w: group %d decoded to %d bytes, expected %d", ErrCorrupted, pos, len(plain), info.RawLen)
	}

	g, err := decodeGroup(plain, info.Count)
	if err != nil {
		return nil, fmt.Errorf("%w: group %d: %s", ErrCorrupted, pos, err)
	}
	return g, nil
}
