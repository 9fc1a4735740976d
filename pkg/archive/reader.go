package archive

import (
	"io"
	"os"

	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultBudgetRatio is the default expansion ratio allowed over the
	// size of a file opened with OpenPath.
	DefaultBudgetRatio = 10
	// DefaultMinBudget is the smallest budget given to a file opened with
	// OpenPath.
	DefaultMinBudget = 64 << 20
)

// Options configures a Reader.
type Options struct {
	// Logger receives debug events. Nil disables logging.
	Logger *zerolog.Logger
	// Budget is the byte budget of the input stream opened by OpenPath.
	// Zero derives it from the file size.
	Budget int64
	// BudgetRatio multiplies the file size when deriving the budget.
	BudgetRatio int64
	// MinBudget is the lower bound of a derived budget.
	MinBudget int64
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

func (o Options) budget(size int64) int64 {
	if o.Budget != 0 {
		return o.Budget
	}
	ratio, floor := o.BudgetRatio, o.MinBudget
	if ratio <= 0 {
		ratio = DefaultBudgetRatio
	}
	if floor <= 0 {
		floor = DefaultMinBudget
	}
	return max(size*ratio, floor)
}

type state int

const (
	stateAwaiting state = iota
	stateActive
	stateExhausted
	stateFailed
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateAwaiting:
		return "awaiting entry"
	case stateActive:
		return "entry active"
	case stateExhausted:
		return "exhausted"
	case stateFailed:
		return "failed"
	default:
		return "closed"
	}
}

// Reader iterates over the entries of an archive. It is not safe for
// concurrent use.
type Reader struct {
	logger zerolog.Logger
	det    *Detection
	c      container
	owned  []io.Closer

	state    state
	err      error
	consumed bool
	data     *stream.Reader
}

// OpenPath opens the archive file at name. The input budget is
// opts.Budget, or a multiple of the file size.
func OpenPath(name string, opts Options) (*Reader, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, err
	}
	s, err := stream.Open(name, opts.budget(fi.Size()))
	if err != nil {
		return nil, err
	}
	logger := opts.logger().With().Str("archive", name).Logger()
	r, err := open(s, logger)
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrapf(err, "cannot open %s", name)
	}
	r.owned = append(r.owned, s)
	return r, nil
}

// OpenStream opens the archive read from s. On success the Reader owns s
// and closes it with Close. On failure s is left open and, when possible,
// at its original position.
func OpenStream(s stream.Stream, opts Options) (*Reader, error) {
	start := s.Tell()
	r, err := open(s, opts.logger())
	if err != nil {
		if s.Tell() != start {
			_, _ = s.Seek(start, io.SeekStart)
		}
		return nil, err
	}
	r.owned = append(r.owned, s)
	return r, nil
}

func open(s stream.Stream, logger zerolog.Logger) (*Reader, error) {
	det, err := Detect(s)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("compression", det.Compression).
		Stringer("format", det.Format).
		Msg("Archive detected")

	c, err := det.open(det.Stream, logger)
	if err != nil {
		_ = det.Close()
		return nil, classify(det.Format, err)
	}
	r := &Reader{
		logger: logger,
		det:    det,
		c:      c,
	}
	if det.filter != nil {
		r.owned = append(r.owned, det.filter)
	}
	return r, nil
}

// Format returns the container format of the archive.
func (r *Reader) Format() Format {
	return r.det.Format
}

// Compression returns the name of the compression wrapping the archive,
// empty if none.
func (r *Reader) Compression() string {
	return r.det.Compression
}

// Next advances to the next entry. The payload of the previous entry is
// skipped if it was not read, and the data stream opened for it is
// closed. Next returns io.EOF once the archive is exhausted.
func (r *Reader) Next() (*Entry, error) {
	switch r.state {
	case stateClosed:
		return nil, ErrClosed
	case stateFailed:
		return nil, r.err
	case stateExhausted:
		return nil, io.EOF
	}
	r.releaseData()

	e, err := r.c.next()
	if err == io.EOF {
		r.state = stateExhausted
		return nil, io.EOF
	}
	if err != nil {
		return nil, r.fail(err)
	}
	r.state, r.consumed = stateActive, false
	r.logger.Trace().
		Str("path", e.Path).
		Stringer("type", e.Type).
		Int64("size", e.Size).
		Msg("Entry")
	return e, nil
}

// OpenData returns a stream over the payload of the current entry. It can
// be called once per entry. The stream is bounded by the declared size of
// the entry when known and stays valid until the next call to Next or
// Close.
func (r *Reader) OpenData() (*stream.Reader, error) {
	if err := r.active(); err != nil {
		return nil, err
	}
	p, limit, err := r.c.data()
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, r.fail(err)
	}
	r.consumed = true
	if limit == stream.Unlimited {
		limit = 0
	}
	r.data = stream.New(p, limit)
	return r.data, nil
}

// SkipData moves past the payload of the current entry without exposing
// it.
func (r *Reader) SkipData() error {
	if err := r.active(); err != nil {
		return err
	}
	r.consumed = true
	if err := r.c.skip(); err != nil {
		return r.fail(err)
	}
	return nil
}

// Close releases the reader and every stream it owns. It does not drain
// the archive. Close is idempotent.
func (r *Reader) Close() error {
	if r.state == stateClosed {
		return nil
	}
	r.state = stateClosed
	r.releaseData()

	err := r.c.close()
	for _, c := range r.owned {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	r.owned = nil
	return err
}

func (r *Reader) active() error {
	switch r.state {
	case stateClosed:
		return ErrClosed
	case stateFailed:
		return r.err
	case stateActive:
		if r.consumed {
			return ErrDataConsumed
		}
		return nil
	default:
		return ErrNoEntry
	}
}

func (r *Reader) releaseData() {
	if r.data != nil {
		_ = r.data.Close()
		r.data = nil
	}
}

// fail records err as the terminal error of the reader.
func (r *Reader) fail(err error) error {
	r.logger.Debug().Err(err).Stringer("state", r.state).Msg("Reader failed")
	r.releaseData()
	r.state, r.err = stateFailed, err
	return err
}
