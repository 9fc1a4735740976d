package archive

import (
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
)

type zipDecompressor func(r io.Reader) (io.ReadCloser, error)

// zipMethods maps ZIP compression methods to their decoders.
var zipMethods = map[uint16]zipDecompressor{
	zip.Store: func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	},
	zip.Deflate: func(r io.Reader) (io.ReadCloser, error) {
		return flate.NewReader(r), nil
	},
	archives.ZipMethodBzip2: func(r io.Reader) (io.ReadCloser, error) {
		return bzip2.NewReader(r, nil)
	},
	archives.ZipMethodZstd: func(r io.Reader) (io.ReadCloser, error) {
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	},
}
