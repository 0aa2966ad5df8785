// Package fio provides the byte transport used by rectable stores. It
// abstracts the append-only sink written by a Writer and the
// random-access source consumed by a Reader, so that stores can live
// on anything resembling a local file.
package fio

import (
	"errors"
	"io"
	"os"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when a sink cannot acquire the exclusive
// write lock for a store file.
var ErrLocked = errors.New("fio: store is locked by another writer")

// Source is a finite random-access byte source.
type Source interface {
	io.ReaderAt

	// Size returns the total size of the source in bytes.
	Size() int64

	Close() error
}

// Sink is an append-only byte sink.
type Sink interface {
	io.Writer

	// Sync flushes written bytes to stable storage.
	Sync() error

	Close() error
}

// --------------------------------------------------------------------

type fileSource struct {
	f    *os.File
	size int64
}

// OpenSource opens a local file as a Source.
func OpenSource(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileSource{f: f, size: stat.Size()}, nil
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *fileSource) Size() int64                             { return s.size }
func (s *fileSource) Close() error                            { return s.f.Close() }

// --------------------------------------------------------------------

type fileSink struct {
	f    *os.File
	lock *flock.Flock
}

// CreateSink creates (or truncates) a local file as a Sink, guarded by
// an exclusive lock file next to it. Stores are written by exactly one
// writer; a second concurrent CreateSink on the same path fails with
// ErrLocked.
func CreateSink(path string) (Sink, error) {
	lock := flock.New(path + ".lock")
	if ok, err := lock.TryLock(); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrLocked
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &fileSink{f: f, lock: lock}, nil
}

func (s *fileSink) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *fileSink) Sync() error                 { return s.f.Sync() }

func (s *fileSink) Close() error {
	err := s.f.Close()
	if uerr := s.lock.Unlock(); err == nil {
		err = uerr
	}
	_ = os.Remove(s.lock.Path())
	return err
}
