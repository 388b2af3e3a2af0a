// Package sink persists merged PCM frames. LocalFileSink writes into a
// private directory; SharedStorageSink stages the artifact as a hidden
// pending entry in a shared collection and publishes it only on Finalize.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
)

const writeBufferSize = 64 * 1024

var errClosed = errors.New("sink writer already closed")

// fileWriter is an append-only buffered file. publish runs after a clean
// flush+sync+close on Finalize; discard runs on Abort.
type fileWriter struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	written int64

	publish func() error
	discard func(written int64) error

	mu     sync.Mutex
	closed bool
}

func newFileWriter(path string, file *os.File) *fileWriter {
	return &fileWriter{
		path: path,
		file: file,
		buf:  bufio.NewWriterSize(file, writeBufferSize),
	}
}

func (w *fileWriter) Location() string {
	return w.path
}

func (w *fileWriter) Append(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClosed
	}
	n, err := w.buf.Write(p)
	w.written += int64(n)
	if err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	return nil
}

func (w *fileWriter) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *fileWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClosed
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flushing %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("syncing %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	if w.publish != nil {
		return w.publish()
	}
	return nil
}

// Abort closes the file without publishing it. It is safe after a failed
// Finalize.
func (w *fileWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if !w.closed {
		w.closed = true
		// Keep whole frames already buffered; the file is not published anyway.
		err = errors.Join(w.buf.Flush(), w.file.Close())
	}
	if w.discard != nil {
		err = errors.Join(err, w.discard(w.written))
	}
	return err
}
