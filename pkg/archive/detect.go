package archive

import (
	"io"

	"github.com/crazy-max/unarc/pkg/filter"
	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// minInput is the largest input length always rejected by detection.
const minInput = 4

// Detection is the outcome of format detection.
type Detection struct {
	// Stream to parse the container from: a decompression filter reading
	// the input, or the input itself
	Stream stream.Stream
	// Compression name, empty for an uncompressed input
	Compression string
	// Format of the container
	Format Format

	open   func(s stream.Stream, logger zerolog.Logger) (container, error)
	filter *stream.Reader
}

// Close releases the decompression filter, if any. The input stream given
// to Detect is never closed.
func (d *Detection) Close() error {
	if d.filter == nil {
		return nil
	}
	return d.filter.Close()
}

// Detect identifies the compression and container format of s by peeking
// at its leading bytes. The position of s is not changed. When s is
// compressed, the returned detection holds a filter reading from s with the
// budget of s; s stays owned by the caller.
func Detect(s stream.Stream) (*Detection, error) {
	head, err := peek(s, filter.MagicLen()+1)
	if err != nil {
		return nil, err
	}
	if len(head) <= minInput {
		return nil, errors.Wrapf(ErrUnrecognized, "input of %d bytes is too short", len(head))
	}

	d := &Detection{Stream: s}
	if c, ok := filter.Lookup(head); ok {
		limit := s.Limit()
		if limit == stream.Unlimited {
			limit = 0
		}
		f, err := c.Open(stream.Borrow(s), limit)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open %s filter", c.Name)
		}
		d.Stream, d.Compression, d.filter = f, c.Name, f
		if head, err = peek(f, minInput+1); err != nil {
			_ = d.Close()
			return nil, errors.Wrapf(err, "cannot read %s stream", c.Name)
		}
		if len(head) <= minInput {
			_ = d.Close()
			return nil, errors.Wrapf(ErrUnrecognized, "%s stream of %d bytes is too short", c.Name, len(head))
		}
	}

	for _, cf := range containers {
		head, err := peek(d.Stream, cf.probe)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		if len(head) < cf.probe || !cf.match(head) {
			continue
		}
		d.Format, d.open = cf.format, cf.open
		return d, nil
	}

	_ = d.Close()
	if d.Compression != "" {
		return nil, errors.Wrapf(ErrUnrecognized, "no container signature in %s stream", d.Compression)
	}
	return nil, ErrUnrecognized
}

// peek returns up to n leading bytes of s, fewer at end of data.
func peek(s stream.Stream, n int) ([]byte, error) {
	head, err := s.Peek(n)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return head, nil
}
