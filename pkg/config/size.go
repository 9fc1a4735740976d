package config

import (
	"math"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Size is a byte count given in human form (eg. 64MiB, 1GB).
type Size int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid size %q", text)
	}
	if n > math.MaxInt64 {
		return errors.Errorf("size %q is too large", text)
	}
	*s = Size(n)
	return nil
}

func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}
