package rectable

// Iterate returns an iterator over all records of the store in
// ascending index order. Each group is decoded once and streamed out
// before the cursor moves to the next one; the sequential path never
// binary-searches the index table.
//
// Iterators are finite and restartable: call Iterate again for a
// fresh pass. With a non-zero ReadaheadBufferSize upcoming groups are
// fetched and decoded asynchronously, up to MaxParallelism in flight,
// and released to the cursor strictly in order.
func (r *Reader) Iterate() *Iterator {
	it := &Iterator{
		r:   r,
		sem: make(chan struct{}, r.o.MaxParallelism),
	}
	it.fill()
	return it
}

// Iterator is a forward-only cursor over the records of a store.
// It is not safe for concurrent use; run one iterator per goroutine.
type Iterator struct {
	r   *Reader
	sem chan struct{} // bounds concurrent prefetch operations

	queue  []*groupFetch // prefetched upcoming groups, in index order
	budget int           // compressed bytes covered by the queue
	next   int           // next group position to schedule

	cur  *groupData
	crec int   // next record within cur
	n    int64 // records consumed overall

	rec []byte
	err error
}

// groupFetch is a single asynchronous group fetch. done is closed
// once data/err are settled.
type groupFetch struct {
	pos  int
	size int
	done chan struct{}
	data *groupData
	err  error
}

// More returns true if more records can be read.
func (it *Iterator) More() bool {
	return it.err == nil && it.n < it.r.info.NumRecords
}

// Next advances the cursor to the next record and returns true if
// successful.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}

	for it.cur == nil || it.crec >= it.cur.NumRecords() {
		if !it.advance() {
			return false
		}
	}

	it.rec = it.cur.Record(it.crec)
	it.crec++
	it.n++
	return true
}

// Record returns the record at the current cursor position. The
// returned slice is a temporary buffer and must be copied if used
// beyond the next cursor move.
func (it *Iterator) Record() []byte { return it.rec }

// Index returns the index of the record at the current cursor
// position.
func (it *Iterator) Index() int { return int(it.n) - 1 }

// Err exposes iterator errors, if any.
func (it *Iterator) Err() error {
	if it.err == errReleased {
		return nil
	}
	return it.err
}

// Release releases the iterator and discards its prefetch window. The
// iterator must not be used after this method is called; in-flight
// fetches are drained by the owning reader.
func (it *Iterator) Release() {
	it.queue = nil
	it.budget = 0
	it.cur = nil
	it.rec = nil
	it.err = errReleased
}

// advance moves the cursor to the next group.
func (it *Iterator) advance() bool {
	if len(it.queue) != 0 {
		f := it.queue[0]
		it.queue = it.queue[1:]
		it.budget -= f.size
		it.fill()

		<-f.done
		if f.err != nil {
			it.err = f.err
			return false
		}
		it.cur, it.crec = f.data, 0
		return true
	}

	// prefetch disabled, fetch synchronously
	if it.next >= len(it.r.index) {
		return false
	}
	g, err := it.r.fetchGroup(it.next)
	if err != nil {
		it.err = err
		return false
	}
	it.next++
	it.cur, it.crec = g, 0
	return true
}

// fill schedules upcoming group fetches until the readahead byte
// budget is exhausted. At least one group is always scheduled so that
// groups larger than the budget can still be iterated.
func (it *Iterator) fill() {
	max := it.r.o.ReadaheadBufferSize
	if max <= 0 {
		return
	}

	for it.next < len(it.r.index) {
		size := int(it.r.index[it.next].Length)
		if len(it.queue) != 0 && it.budget+size > max {
			return
		}

		f := &groupFetch{pos: it.next, size: size, done: make(chan struct{})}
		it.queue = append(it.queue, f)
		it.budget += size
		it.next++

		it.r.wg.Add(1)
		go func(r *Reader) {
			defer r.wg.Done()
			defer close(f.done)

			select {
			case it.sem <- struct{}{}:
			case <-r.ctx.Done():
				f.err = ErrClosed
				return
			}
			defer func() { <-it.sem }()

			f.data, f.err = r.fetchGroup(f.pos)
		}(it.r)
	}
}
