package app

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// cat writes the payload of the first member matching the requested path.
func (c *Unarc) cat() error {
	name := c.cli.Cat.Archive
	member := strings.TrimPrefix(c.cli.Cat.Member, "/")

	r, logger, err := c.open(name)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		e, err := r.Next()
		if err == io.EOF {
			return errors.Errorf("%s not found in %s", member, name)
		} else if err != nil {
			return errors.Wrapf(err, "cannot read %s", name)
		}
		if strings.TrimSuffix(e.Path, "/") != strings.TrimSuffix(member, "/") {
			continue
		}
		if e.IsDir() {
			return errors.Errorf("%s is a directory", member)
		}
		logger.Debug().Msgf("Writing %s", e.Path)

		d, err := r.OpenData()
		if err != nil {
			return errors.Wrapf(err, "cannot open %s", e.Path)
		}
		_, err = io.Copy(c.out, readerContext(c.ctx, d))
		return err
	}
}
