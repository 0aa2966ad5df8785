package rectable

import (
	"errors"

	"github.com/bsm/rectable/fio"
)

// FileWriter is a Writer that owns its underlying file handle.
type FileWriter struct {
	*Writer
	sink fio.Sink
}

// CreateFile creates a store file at path and returns a writer for
// it. The file is exclusively locked until the writer is closed.
func CreateFile(path string, o *WriterOptions) (*FileWriter, error) {
	sink, err := fio.CreateSink(path)
	if err != nil {
		return nil, err
	}

	w, err := NewWriter(sink, o)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	return &FileWriter{Writer: w, sink: sink}, nil
}

// Close finalizes the store, syncs it to stable storage and releases
// the file handle and lock.
func (w *FileWriter) Close() error {
	if err := w.Writer.Close(); err != nil {
		if !errors.Is(err, ErrClosed) {
			_ = w.sink.Close()
		}
		return err
	}
	if err := w.sink.Sync(); err != nil {
		_ = w.sink.Close()
		return err
	}
	return w.sink.Close()
}

// --------------------------------------------------------------------

// FileReader is a Reader that owns its underlying file handle.
type FileReader struct {
	*Reader
	src fio.Source
}

// OpenFile opens the store file at path for reading.
func OpenFile(path string, o *ReaderOptions) (*FileReader, error) {
	src, err := fio.OpenSource(path)
	if err != nil {
		return nil, err
	}

	r, err := NewReader(src, src.Size(), o)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return &FileReader{Reader: r, src: src}, nil
}

// Close closes the reader and releases the file handle.
func (r *FileReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.src.Close(); err == nil {
		err = cerr
	}
	return err
}
