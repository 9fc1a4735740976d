//go:build unarc_noxz

package filter

import (
	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/pkg/errors"
)

const xzAvailable = false

// NewXz always fails: xz support was compiled out with the unarc_noxz tag.
func NewXz(stream.Stream, int64) (*stream.Reader, error) {
	return nil, errors.Wrap(ErrCodecUnavailable, "xz support not compiled in (built with unarc_noxz)")
}
