package archive

import (
	"bytes"

	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/rs/zerolog"
)

// Format is a container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatZip
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatZip:
		return "zip"
	default:
		return "unknown"
	}
}

// container is the state of a format specific reader. The Reader enforces
// the iteration protocol, containers only implement its primitives.
type container interface {
	// next finishes the payload of the previous entry if it was not
	// consumed, then parses the next header. It returns io.EOF at the end
	// of the archive.
	next() (*Entry, error)
	// data returns the payload of the current entry and the byte budget of
	// the stream exposing it.
	data() (payload, int64, error)
	// skip moves past the payload of the current entry.
	skip() error
	// close releases the container state without draining anything.
	close() error
}

// payload is the minimal reader handed to data streams. It exposes no
// Close so that a data stream never releases container state.
type payload interface {
	Read(p []byte) (int, error)
}

type containerFormat struct {
	format Format
	// probe is the number of leading bytes match needs
	probe int
	match func(head []byte) bool
	open  func(s stream.Stream, logger zerolog.Logger) (container, error)
}

// containers is ordered: ZIP signatures are unambiguous, TAR accepts a
// permissive fallback and is checked last.
var containers = []containerFormat{
	{format: FormatZip, probe: 4, match: matchZip, open: newZipContainer},
	{format: FormatTar, probe: tarBlockSize, match: matchTar, open: newTarContainer},
}

func matchZip(head []byte) bool {
	for _, sig := range [][]byte{sigLocalFile, sigEndOfCentralDir, sigCentralDir} {
		if bytes.HasPrefix(head, sig) {
			return true
		}
	}
	return false
}

// matchTar accepts a ustar or USTAR magic at offset 257, or a header
// block starting with a printable character, which tolerates pre-POSIX
// archives at the cost of false positives on plain text.
func matchTar(head []byte) bool {
	if len(head) < tarBlockSize {
		return false
	}
	magic := head[tarMagicOffset : tarMagicOffset+len(tarMagic)]
	if bytes.Equal(magic, tarMagic) || bytes.Equal(magic, bytes.ToUpper(tarMagic)) {
		return true
	}
	return head[0] >= 0x20 && head[0] < 0x7f
}
