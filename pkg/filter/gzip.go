package filter

import (
	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/mholt/archives"
	"github.com/pkg/errors"
)

// gzip member header: ID1 ID2 CM FLG MTIME(4) XFL OS
const gzipHeaderLen = 10

// NewGzip returns a stream decompressing the gzip data read from up.
func NewGzip(up stream.Stream, limit int64) (*stream.Reader, error) {
	head, err := peekHead(up, gzipHeaderLen)
	if err != nil {
		return nil, err
	}
	// CM must be deflate and the reserved FLG bits clear
	if len(head) < gzipHeaderLen || head[0] != 0x1f || head[1] != 0x8b || head[2] != 8 || head[3]&0xe0 != 0 {
		return nil, errors.Wrap(ErrInvalidMagic, "gzip")
	}
	return newFilter("gzip", up, limit, archives.Gz{})
}
