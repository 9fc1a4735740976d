//go:build !unarc_noxz

package filter

import (
	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/mholt/archives"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

const xzAvailable = true

// NewXz returns a stream decompressing the xz data read from up.
func NewXz(up stream.Stream, limit int64) (*stream.Reader, error) {
	head, err := peekHead(up, xz.HeaderLen)
	if err != nil {
		return nil, err
	}
	// magic, stream flags and their CRC32
	if len(head) < xz.HeaderLen || !xz.ValidHeader(head) {
		return nil, errors.Wrap(ErrInvalidMagic, "xz")
	}
	return newFilter("xz", up, limit, archives.Xz{})
}
