package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCanceled is returned when a read is abandoned because the context
// ended.
var ErrInputCanceled = errors.New("input canceled")

// NonBlockingReader reads lines from a terminal while honoring context
// cancellation. A canceled read returns immediately; the underlying blocking
// read finishes in its goroutine and the line is discarded.
type NonBlockingReader struct {
	reader      *bufio.Reader
	readingLock sync.Mutex
}

// NewNonBlockingReader wraps the reader.
func NewNonBlockingReader(reader io.Reader) *NonBlockingReader {
	if reader == nil {
		panic("reader cannot be nil")
	}
	return &NonBlockingReader{reader: bufio.NewReader(reader)}
}

// ReadLine reads one line, trimmed of surrounding whitespace.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.readingLock.Lock()
		defer r.readingLock.Unlock()

		value, err := r.reader.ReadString('\n')
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCanceled
	case res := <-resultCh:
		if res.err != nil && (res.err != io.EOF || res.value == "") {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}
