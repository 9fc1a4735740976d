//go:build !unarc_noxz

package archive

import (
	"io"

	"github.com/mholt/archives"
	"github.com/ulikunitz/xz"
)

func init() {
	zipMethods[archives.ZipMethodXz] = func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	}
}
