package stream

import (
	"os"

	"github.com/pkg/errors"
)

type file struct {
	*os.File
	size int64
}

func (f *file) Size() int64 {
	return f.size
}

// Open opens the named file as a stream with the given budget.
func Open(name string, limit int64) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "cannot stat %s", name)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, errors.Errorf("%s is a directory", name)
	}
	return New(&file{File: f, size: fi.Size()}, limit), nil
}

// Borrow returns a view of s whose Close leaves s open. It is used when a
// wrapper must not take ownership of the stream it reads from.
func Borrow(s Stream) Stream {
	return borrowed{s}
}

type borrowed struct {
	Stream
}

func (borrowed) Close() error {
	return nil
}
