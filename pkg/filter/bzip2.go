package filter

import (
	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/mholt/archives"
	"github.com/pkg/errors"
)

// NewBzip2 returns a stream decompressing the bzip2 data read from up.
func NewBzip2(up stream.Stream, limit int64) (*stream.Reader, error) {
	head, err := peekHead(up, 4)
	if err != nil {
		return nil, err
	}
	// "BZh" followed by the block size level
	if len(head) < 4 || string(head[:3]) != "BZh" || head[3] < '1' || head[3] > '9' {
		return nil, errors.Wrap(ErrInvalidMagic, "bzip2")
	}
	return newFilter("bzip2", up, limit, archives.Bz2{})
}
