package app

import (
	"fmt"

	"github.com/crazy-max/unarc/pkg/archive"
	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

func (c *Unarc) detect() error {
	for _, name := range c.cli.Detect.Archives {
		if err := c.detectArchive(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Unarc) detectArchive(name string) error {
	s, err := stream.Open(name, int64(c.cli.Budget))
	if err != nil {
		return err
	}
	defer s.Close()

	var size string
	if sr, ok := s.Section(); ok {
		size = humanize.IBytes(uint64(sr.Size()))
	}

	det, err := archive.Detect(s)
	if err != nil {
		return errors.Wrapf(err, "cannot detect %s", name)
	}
	defer det.Close()

	kind := det.Format.String()
	if det.Compression != "" {
		kind = fmt.Sprintf("%s+%s", kind, det.Compression)
	}
	_, err = fmt.Fprintf(c.out, "%s: %s (%s)\n", name, kind, size)
	return err
}
