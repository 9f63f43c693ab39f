package runtime

import (
	"io"
	"sync"
)

// Reader that closes eof the first time the wrapped reader returns io.EOF.
type eofReader struct {
	io.Reader
	once sync.Once
	eof  chan struct{}
}

func newEOFReader(r io.Reader) *eofReader {
	return &eofReader{Reader: r, eof: make(chan struct{})}
}

func (r *eofReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if err == io.EOF {
		r.once.Do(func() { close(r.eof) })
	}
	return n, err
}
