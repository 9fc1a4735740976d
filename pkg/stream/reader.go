package stream

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Reader is the Stream implementation shared by raw sources, decompression
// filters and entry payloads. The wrapped source is probed for optional
// capabilities: io.Closer is released on Close, io.Seeker and Rewinder
// enable seeking, SizedReaderAt enables Section and io.SeekEnd.
type Reader struct {
	src    io.Reader
	br     *bufio.Reader
	seeker io.Seeker
	origin int64
	pos    int64
	limit  int64
	spent  int64
	closed bool
}

var _ Stream = (*Reader)(nil)

// New returns a stream reading from src with the given budget. A limit of
// 0 selects DefaultLimit and a negative limit selects Unlimited. The stream
// owns src: closing the stream closes src if it is an io.Closer.
func New(src io.Reader, limit int64) *Reader {
	r := &Reader{
		src:   src,
		br:    bufio.NewReaderSize(src, bufferSize),
		limit: normalizeLimit(limit),
	}
	if sk, ok := src.(io.Seeker); ok {
		if off, err := sk.Seek(0, io.SeekCurrent); err == nil {
			r.seeker, r.origin = sk, off
		}
	}
	return r
}

// NewBytes returns a stream over an in-memory buffer.
func NewBytes(b []byte, limit int64) *Reader {
	return New(bytes.NewReader(b), limit)
}

// Read implements io.Reader. A read that crosses the budget returns the
// bytes left in it along with ErrBudgetExceeded if the source still has
// data past them.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	m, err := r.allow(len(p))
	if err != nil {
		return 0, err
	}
	n, err := r.br.Read(p[:m])
	r.advance(n)
	if err == nil && m < len(p) && r.spent == r.limit {
		if _, perr := r.br.Peek(1); perr == nil {
			err = r.exceeded()
		}
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if _, err := r.allow(1); err != nil {
		return 0, err
	}
	c, err := r.br.ReadByte()
	if err != nil {
		return 0, err
	}
	r.advance(1)
	return c, nil
}

// Peek returns up to n upcoming bytes without moving the stream. Peeked
// bytes are not charged to the budget.
func (r *Reader) Peek(n int) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	return r.br.Peek(n)
}

// Seek implements io.Seeker on the stream's own byte space.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		ra, ok := r.src.(SizedReaderAt)
		if !ok {
			return r.pos, errors.Wrap(ErrNotSeekable, "size of stream is unknown")
		}
		target = ra.Size() - r.origin + offset
	default:
		return r.pos, errors.Errorf("invalid whence %d", whence)
	}
	if target < 0 {
		return r.pos, errors.Errorf("negative position %d", target)
	}

	switch {
	case target == r.pos:
		return r.pos, nil
	case target > r.pos && target-r.pos <= int64(r.br.Buffered()):
		return r.discard(target - r.pos)
	case r.seeker != nil:
		if _, err := r.seeker.Seek(r.origin+target, io.SeekStart); err != nil {
			return r.pos, err
		}
		r.br.Reset(r.src)
		r.pos = target
		return r.pos, nil
	case target > r.pos:
		return r.discard(target - r.pos)
	}

	rw, ok := r.src.(Rewinder)
	if !ok {
		return r.pos, errors.Wrapf(ErrNotSeekable, "cannot seek back from %d to %d", r.pos, target)
	}
	if err := rw.Rewind(); err != nil {
		return r.pos, errors.Wrap(err, "cannot rewind stream")
	}
	r.br.Reset(r.src)
	r.pos = 0
	return r.discard(target)
}

// Tell returns the current position.
func (r *Reader) Tell() int64 {
	return r.pos
}

// Limit returns the configured budget.
func (r *Reader) Limit() int64 {
	return r.limit
}

// Remaining returns the unspent budget.
func (r *Reader) Remaining() int64 {
	if r.limit == Unlimited {
		return Unlimited
	}
	return r.limit - r.spent
}

// Section returns a reader over the source from the current position to
// its end, if the source is random access. Reads through the section do
// not move the stream and are not charged to the budget.
func (r *Reader) Section() (*io.SectionReader, bool) {
	if r.closed {
		return nil, false
	}
	ra, ok := r.src.(SizedReaderAt)
	if !ok {
		return nil, false
	}
	off := r.origin + r.pos
	return io.NewSectionReader(ra, off, ra.Size()-off), true
}

// Close releases the source. Closing twice is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// allow returns how many of the n requested bytes the budget lets
// through. At an exhausted budget it reports ErrBudgetExceeded only if the
// source actually has more data, so a payload that fits exactly still
// ends with io.EOF.
func (r *Reader) allow(n int) (int, error) {
	if r.limit == Unlimited {
		return n, nil
	}
	left := r.limit - r.spent
	if left >= int64(n) {
		return n, nil
	}
	if left > 0 {
		return int(left), nil
	}
	if _, err := r.br.Peek(1); err != nil {
		return 0, err
	}
	return 0, r.exceeded()
}

func (r *Reader) exceeded() error {
	return errors.Wrapf(ErrBudgetExceeded, "limit of %d bytes reached", r.limit)
}

func (r *Reader) advance(n int) {
	r.pos += int64(n)
	r.spent += int64(n)
}

func (r *Reader) discard(n int64) (int64, error) {
	for n > 0 {
		chunk := n
		if chunk > bufferSize {
			chunk = bufferSize
		}
		m, err := r.allow(int(chunk))
		if err != nil {
			return r.pos, unexpectedEOF(err)
		}
		d, err := r.br.Discard(m)
		r.advance(d)
		n -= int64(d)
		if err != nil {
			return r.pos, unexpectedEOF(err)
		}
	}
	return r.pos, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
