package rectable_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bsm/rectable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	var subject *rectable.Reader

	BeforeEach(func() {
		var err error
		subject, err = seedReader(100, &rectable.WriterOptions{GroupSize: 7}, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = subject.Close()
	})

	It("should init", func() {
		Expect(subject.Len()).To(Equal(100))
		Expect(subject.NumGroups()).To(Equal(15))
		Expect(subject.GroupSize()).To(Equal(7))
		Expect(subject.Compression()).To(Equal(rectable.SnappyCompression))
	})

	It("should Get/Append", func() {
		for i := 0; i < 100; i++ {
			Expect(subject.Get(i)).To(Equal(seedRecord(i)), "for %d", i)
		}

		dst := []byte("prefix:")
		dst, err := subject.Append(dst, 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(dst)).To(Equal("prefix:" + string(seedRecord(42))))
	})

	It("should fail Get on out-of-range indices", func() {
		_, err := subject.Get(-1)
		Expect(err).To(MatchError(rectable.ErrOutOfRange))

		_, err = subject.Get(100)
		Expect(err).To(MatchError(rectable.ErrOutOfRange))
	})

	It("should GetBatch preserving input order", func() {
		res, err := subject.GetBatch([]int{3, 1, 1, 0, 99, 51})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal([][]byte{
			seedRecord(3),
			seedRecord(1),
			seedRecord(1),
			seedRecord(0),
			seedRecord(99),
			seedRecord(51),
		}))
	})

	It("should GetBatch empty", func() {
		Expect(subject.GetBatch(nil)).To(BeEmpty())
	})

	It("should fail GetBatch on out-of-range indices", func() {
		_, err := subject.GetBatch([]int{1, 100})
		Expect(err).To(MatchError(rectable.ErrOutOfRange))
	})

	It("should fail reads after close", func() {
		Expect(subject.Close()).To(Succeed())
		_, err := subject.Get(0)
		Expect(err).To(MatchError(rectable.ErrClosed))
	})

	Describe("group size equivalence", func() {
		It("should return the same records regardless of grouping", func() {
			for _, gs := range []int{1, 3, 50, 100, 1000} {
				r, err := seedReader(100, &rectable.WriterOptions{GroupSize: gs}, nil)
				Expect(err).NotTo(HaveOccurred())

				for _, i := range []int{0, 1, 49, 50, 99} {
					Expect(r.Get(i)).To(Equal(seedRecord(i)), "for %d (group size %d)", i, gs)
				}
				Expect(r.Close()).To(Succeed())
			}
		})
	})

	Describe("codec transparency", func() {
		It("should return the same records regardless of codec", func() {
			for _, c := range []rectable.Compression{
				rectable.NoCompression,
				rectable.SnappyCompression,
				rectable.ZstdCompression,
				rectable.BrotliCompression,
			} {
				r, err := seedReader(100, &rectable.WriterOptions{GroupSize: 10, Compression: c}, nil)
				Expect(err).NotTo(HaveOccurred(), "for %s", c)

				for i := 0; i < 100; i++ {
					Expect(r.Get(i)).To(Equal(seedRecord(i)), "for %d (%s)", i, c)
				}
				Expect(r.Close()).To(Succeed())
			}
		})
	})

	Describe("edge cases", func() {
		It("should handle empty stores", func() {
			r, err := seedReader(0, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			defer r.Close()

			Expect(r.Len()).To(Equal(0))
			Expect(r.NumGroups()).To(Equal(0))

			_, err = r.Get(0)
			Expect(err).To(MatchError(rectable.ErrOutOfRange))

			iter := r.Iterate()
			defer iter.Release()
			Expect(iter.More()).To(BeFalse())
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Err()).NotTo(HaveOccurred())
		})

		It("should round-trip zero-length records", func() {
			buf := new(bytes.Buffer)
			w, err := rectable.NewWriter(buf, &rectable.WriterOptions{GroupSize: 3})
			Expect(err).NotTo(HaveOccurred())
			for _, rec := range [][]byte{{}, []byte("a"), {}, {}} {
				Expect(w.Append(rec)).To(Succeed())
			}
			Expect(w.Close()).To(Succeed())

			r, err := rectable.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), nil)
			Expect(err).NotTo(HaveOccurred())
			defer r.Close()

			Expect(r.Len()).To(Equal(4))
			Expect(r.Get(0)).To(HaveLen(0))
			Expect(r.Get(1)).To(Equal([]byte("a")))
			Expect(r.Get(2)).To(HaveLen(0))
			Expect(r.Get(3)).To(HaveLen(0))
		})

		It("should handle single-record stores", func() {
			r, err := seedReader(1, &rectable.WriterOptions{GroupSize: 100}, nil)
			Expect(err).NotTo(HaveOccurred())
			defer r.Close()

			Expect(r.Len()).To(Equal(1))
			Expect(r.NumGroups()).To(Equal(1))
			Expect(r.Get(0)).To(Equal(seedRecord(0)))
		})
	})

	Describe("format errors", func() {
		var data []byte

		BeforeEach(func() {
			buf := new(bytes.Buffer)
			Expect(seedBuffer(buf, 10, &rectable.WriterOptions{GroupSize: 4})).To(Succeed())
			data = buf.Bytes()
		})

		open := func(p []byte) error {
			_, err := rectable.NewReader(bytes.NewReader(p), int64(len(p)), nil)
			return err
		}

		It("should fail on truncated stores", func() {
			Expect(open(data[:10])).To(MatchError(rectable.ErrBadMagic))
		})

		It("should fail on bad magic", func() {
			p := append([]byte(nil), data...)
			p[len(p)-1]++
			Expect(open(p)).To(MatchError(rectable.ErrBadMagic))
		})

		It("should fail on unsupported versions", func() {
			p := append([]byte(nil), data...)
			binary.LittleEndian.PutUint32(p[len(p)-12:], 99)
			Expect(open(p)).To(MatchError(rectable.ErrBadVersion))
		})

		It("should fail on out-of-bounds footer offsets", func() {
			p := append([]byte(nil), data...)
			binary.LittleEndian.PutUint64(p[len(p)-20:], uint64(len(p)))
			Expect(open(p)).To(MatchError(rectable.ErrBadIndex))
		})

		It("should fail on implausible group counts", func() {
			p := append([]byte(nil), data...)
			footerOffset := binary.LittleEndian.Uint64(p[len(p)-20:])
			binary.LittleEndian.PutUint64(p[footerOffset+21:], 1<<55) // group count field
			Expect(open(p)).To(MatchError(rectable.ErrBadIndex))
		})

		It("should fail on unknown codec ids", func() {
			p := append([]byte(nil), data...)
			footerOffset := binary.LittleEndian.Uint64(p[len(p)-20:])
			p[footerOffset+16] = 99 // codec id field
			Expect(open(p)).To(MatchError(rectable.ErrBadCompression))
		})
	})

	Describe("corruption", func() {
		flipRecordByte := func(c rectable.Compression) error {
			buf := new(bytes.Buffer)
			if err := seedBuffer(buf, 10, &rectable.WriterOptions{GroupSize: 5, Compression: c}); err != nil {
				return err
			}

			// the first group blob starts at offset 0
			data := buf.Bytes()
			data[4] ^= 0x01

			r, err := rectable.NewReader(bytes.NewReader(data), int64(len(data)), nil)
			if err != nil {
				return err
			}
			defer r.Close()

			_, err = r.Get(2)
			return err
		}

		It("should detect flipped bytes under compression", func() {
			Expect(flipRecordByte(rectable.SnappyCompression)).To(MatchError(rectable.ErrCorrupted))
		})

		It("should detect flipped bytes without compression", func() {
			Expect(flipRecordByte(rectable.NoCompression)).To(MatchError(rectable.ErrCorrupted))
		})

		It("should keep other groups readable", func() {
			buf := new(bytes.Buffer)
			Expect(seedBuffer(buf, 10, &rectable.WriterOptions{GroupSize: 5, Compression: rectable.NoCompression})).To(Succeed())

			data := buf.Bytes()
			data[4] ^= 0x01 // corrupt the first group only

			r, err := rectable.NewReader(bytes.NewReader(data), int64(len(data)), nil)
			Expect(err).NotTo(HaveOccurred())
			defer r.Close()

			_, err = r.Get(2)
			Expect(err).To(MatchError(rectable.ErrCorrupted))
			Expect(r.Get(7)).To(Equal(seedRecord(7)))
		})
	})

	Describe("concurrency", func() {
		It("should decode each group at most once across concurrent gets", func() {
			buf := new(bytes.Buffer)
			Expect(seedBuffer(buf, 100, &rectable.WriterOptions{GroupSize: 10})).To(Succeed())

			src := &countingReaderAt{r: bytes.NewReader(buf.Bytes())}
			r, err := rectable.NewReader(src, int64(buf.Len()), nil)
			Expect(err).NotTo(HaveOccurred())
			defer r.Close()

			atomic.StoreInt64(&src.reads, 0) // discount footer reads

			var wg sync.WaitGroup
			errs := make(chan error, 200)
			for g := 0; g < 20; g++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					for i := 0; i < 100; i += 10 {
						rec, err := r.Get(i)
						if err != nil {
							errs <- err
							return
						}
						if !bytes.Equal(rec, seedRecord(i)) {
							errs <- io.ErrUnexpectedEOF
							return
						}
					}
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(atomic.LoadInt64(&src.reads)).To(Equal(int64(10)))
		})
	})
})

// --------------------------------------------------------------------

type countingReaderAt struct {
	r     *bytes.Reader
	reads int64
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	atomic.AddInt64(&c.reads, 1)
	return c.r.ReadAt(p, off)
}
