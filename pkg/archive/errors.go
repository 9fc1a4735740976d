package archive

import (
	"fmt"
	"io/fs"

	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/pkg/errors"
)

var (
	// ErrUnrecognized is returned when no compression and container
	// signature matches the input.
	ErrUnrecognized = errors.New("unrecognized archive")

	// ErrMalformed is matched by errors raised on a container structure
	// that fails validation. The reader cannot be used further.
	ErrMalformed = errors.New("malformed archive")

	// ErrUnsupported is returned for valid archive features that cannot be
	// read from a sequential stream.
	ErrUnsupported = errors.New("unsupported archive feature")

	// ErrChecksum is returned when a payload does not match its checksum.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrNoEntry is returned when payload access is requested without a
	// current entry.
	ErrNoEntry = errors.New("no current entry")

	// ErrDataConsumed is returned when the payload of the current entry
	// was already opened or skipped.
	ErrDataConsumed = errors.New("entry data already consumed")

	// ErrClosed is returned by operations on a closed reader.
	ErrClosed = errors.New("reader closed")
)

// MalformedError reports a structural error in a container.
type MalformedError struct {
	Format Format
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s archive: %v", e.Format, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Is makes every MalformedError match ErrMalformed.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(format Format, err error) error {
	return &MalformedError{Format: format, Err: err}
}

// classify leaves resource, lifecycle and device errors untouched and
// reports everything else raised while parsing as a malformed container.
func classify(format Format, err error) error {
	var pe *fs.PathError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stream.ErrBudgetExceeded),
		errors.Is(err, stream.ErrClosed),
		errors.Is(err, ErrMalformed),
		errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrChecksum),
		errors.As(err, &pe):
		return err
	}
	return malformed(format, err)
}
