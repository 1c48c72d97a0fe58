package core

// streaming.go wraps upload bodies before they reach a format reader.
//
//   - sizeLimitReader: fails with ErrFileTooLarge past the configured size
//   - CountingReader: tracks bytes consumed for logging
//   - decodeText: strips a UTF-8/UTF-16 BOM and replaces invalid UTF-8
//
// The text decoding is only applied to CSV input; workbooks are binary.

import (
	"io"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CountingReader counts the bytes read through it. Safe for concurrent reads
// of the counter while the stream is being consumed.
type CountingReader struct {
	r io.Reader
	n atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n.Load()
}

// sizeLimitReader returns ErrFileTooLarge once more than max bytes have been read.
type sizeLimitReader struct {
	r         io.Reader
	remaining int64
}

func newSizeLimitReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	// One extra byte distinguishes "exactly max" from "over max".
	return &sizeLimitReader{r: r, remaining: max + 1}
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining <= 0 {
		return n - 1, ErrFileTooLarge
	}
	return n, err
}

// decodeText returns a reader producing valid UTF-8. A leading BOM selects
// UTF-8, UTF-16LE or UTF-16BE and is removed; without one the input is read
// as UTF-8 with invalid sequences replaced by U+FFFD.
func decodeText(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
