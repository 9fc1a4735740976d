package stream

import (
	"io"

	"github.com/pkg/errors"
)

const (
	// Unlimited disables the byte budget of a stream. It leaves the stream
	// without any defense against decompression bombs and is discouraged.
	Unlimited int64 = -1

	// DefaultLimit is the budget applied when a limit of 0 is requested.
	DefaultLimit int64 = 1 << 30

	// bufferSize must stay above the largest probe done by format detection.
	bufferSize = 32 << 10
)

var (
	// ErrBudgetExceeded is returned when a stream would yield more bytes
	// than its budget allows. It signals a resource exhaustion, not a
	// corrupt input.
	ErrBudgetExceeded = errors.New("byte budget exceeded")

	// ErrClosed is returned by operations on a closed stream.
	ErrClosed = errors.New("stream closed")

	// ErrNotSeekable is returned when a seek cannot be satisfied by the
	// underlying source.
	ErrNotSeekable = errors.New("stream not seekable")
)

// Stream is a seekable byte source with a cumulative byte budget.
type Stream interface {
	io.Reader
	io.ByteReader
	io.Seeker
	io.Closer

	// Tell returns the current position in the stream's own byte space.
	Tell() int64

	// Peek returns the next n bytes without advancing the stream. Fewer
	// bytes are returned along with an error at end of data. The slice is
	// only valid until the next read.
	Peek(n int) ([]byte, error)

	// Limit returns the configured budget, or Unlimited.
	Limit() int64

	// Remaining returns the bytes left in the budget, or Unlimited.
	Remaining() int64
}

// Rewinder is implemented by sources that cannot seek but can restart
// from the beginning of their own byte space.
type Rewinder interface {
	Rewind() error
}

// SizedReaderAt is implemented by random access sources of known size.
type SizedReaderAt interface {
	io.ReaderAt
	Size() int64
}

func normalizeLimit(limit int64) int64 {
	switch {
	case limit == 0:
		return DefaultLimit
	case limit < 0:
		return Unlimited
	default:
		return limit
	}
}
