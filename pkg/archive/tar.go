package archive

import (
	"archive/tar"
	"io"

	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/rs/zerolog"
)

const (
	tarBlockSize   = 512
	tarMagicOffset = 257
)

var tarMagic = []byte("ustar")

type tarContainer struct {
	tr  *tar.Reader
	hdr *tar.Header
}

func newTarContainer(s stream.Stream, _ zerolog.Logger) (container, error) {
	return &tarContainer{tr: tar.NewReader(s)}, nil
}

// next relies on tar.Reader skipping the unread payload and padding of
// the previous entry.
func (c *tarContainer) next() (*Entry, error) {
	c.hdr = nil
	hdr, err := c.tr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, classify(FormatTar, err)
	}
	c.hdr = hdr
	return tarEntry(hdr), nil
}

func (c *tarContainer) data() (payload, int64, error) {
	return c.tr, c.hdr.Size, nil
}

func (c *tarContainer) skip() error {
	_, err := io.Copy(io.Discard, c.tr)
	return classify(FormatTar, err)
}

func (c *tarContainer) close() error {
	c.tr, c.hdr = nil, nil
	return nil
}

func tarEntry(hdr *tar.Header) *Entry {
	e := &Entry{
		Path:    hdr.Name,
		Size:    hdr.Size,
		Mode:    hdr.FileInfo().Mode(),
		ModTime: hdr.ModTime,
		Format:  FormatTar,
		Header:  hdr,
	}
	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeRegA, tar.TypeGNUSparse: //nolint:staticcheck // TypeRegA is deprecated but still found in old archives
		e.Type = TypeRegular
	case tar.TypeDir:
		e.Type = TypeDirectory
	case tar.TypeSymlink:
		e.Type = TypeSymlink
		e.LinkTarget = hdr.Linkname
	case tar.TypeLink:
		e.Type = TypeHardlink
		e.LinkTarget = hdr.Linkname
	default:
		e.Type = TypeOther
	}
	return e
}
