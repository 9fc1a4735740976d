package filter

import (
	"bytes"
	"io"

	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/mholt/archives"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidMagic is returned when the upstream bytes are not
	// plausibly encoded with the requested codec.
	ErrInvalidMagic = errors.New("invalid compression magic")

	// ErrCodecUnavailable is returned when a codec is not compiled in.
	ErrCodecUnavailable = errors.New("compression codec unavailable")
)

// Opener builds a decompression filter over up with the given budget.
type Opener func(up stream.Stream, limit int64) (*stream.Reader, error)

// Compression describes a supported compression format.
type Compression struct {
	// Name of the compression (gzip, bzip2, xz)
	Name string
	// Magic is the signature matched at the start of the stream
	Magic []byte
	// Open builds the filter
	Open Opener
}

var compressions = []Compression{
	{Name: "gzip", Magic: []byte{0x1f, 0x8b}, Open: NewGzip},
	{Name: "bzip2", Magic: []byte("BZh"), Open: NewBzip2},
	{Name: "xz", Magic: []byte{0xfd, '7', 'z', 'X'}, Open: NewXz},
}

// Compressions returns the supported compressions in detection order.
func Compressions() []Compression {
	return append([]Compression(nil), compressions...)
}

// Lookup returns the compression whose magic prefixes head.
func Lookup(head []byte) (Compression, bool) {
	for _, c := range compressions {
		if bytes.HasPrefix(head, c.Magic) {
			return c, true
		}
	}
	return Compression{}, false
}

// MagicLen returns the number of bytes Lookup needs to match any
// compression.
func MagicLen() int {
	var n int
	for _, c := range compressions {
		if len(c.Magic) > n {
			n = len(c.Magic)
		}
	}
	return n
}

// newFilter opens codec over up. The returned stream owns up; on error up
// is left open for the caller.
func newFilter(name string, up stream.Stream, limit int64, codec archives.Decompressor) (*stream.Reader, error) {
	start := up.Tell()
	rc, err := codec.OpenReader(up)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s stream", name)
	}
	return stream.New(&decoder{
		name:  name,
		up:    up,
		start: start,
		codec: codec,
		rc:    rc,
	}, limit), nil
}

// peekHead returns up to n leading bytes of up. A short input is not an
// error, the caller validates the length.
func peekHead(up stream.Stream, n int) ([]byte, error) {
	head, err := up.Peek(n)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return head, nil
}

// decoder is the source of a filter stream. It restarts the codec from the
// upstream start offset when the filter seeks backward.
type decoder struct {
	name  string
	up    stream.Stream
	start int64
	codec archives.Decompressor
	rc    io.ReadCloser
}

func (d *decoder) Read(p []byte) (int, error) {
	return d.rc.Read(p)
}

func (d *decoder) Rewind() error {
	_ = d.rc.Close()
	d.rc = io.NopCloser(errReader{errors.Errorf("%s stream could not be rewound", d.name)})
	if _, err := d.up.Seek(d.start, io.SeekStart); err != nil {
		return err
	}
	rc, err := d.codec.OpenReader(d.up)
	if err != nil {
		return errors.Wrapf(err, "cannot reopen %s stream", d.name)
	}
	d.rc = rc
	return nil
}

func (d *decoder) Close() error {
	err := d.rc.Close()
	if cerr := d.up.Close(); err == nil {
		err = cerr
	}
	return err
}

type errReader struct {
	err error
}

func (e errReader) Read([]byte) (int, error) {
	return 0, e.err
}
