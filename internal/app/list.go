package app

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/crazy-max/unarc/pkg/archive"
	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// list prints the entries of every archive. Archives are read
// concurrently, output keeps the order of the arguments.
func (c *Unarc) list() error {
	archives := c.cli.Ls.Archives
	outs := make([]bytes.Buffer, len(archives))

	eg, ctx := errgroup.WithContext(c.ctx)
	for i, name := range archives {
		eg.Go(func() error {
			if len(archives) > 1 {
				fmt.Fprintf(&outs[i], "%s:\n", name)
			}
			return c.listArchive(ctx, &outs[i], name)
		})
	}
	err := eg.Wait()

	for i := range outs {
		if _, werr := c.out.Write(outs[i].Bytes()); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (c *Unarc) listArchive(ctx context.Context, w io.Writer, name string) error {
	r, logger, err := c.open(name)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := r.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrapf(err, "cannot read %s", name)
		}
		if !included(e.Path, c.cli.Ls.Includes) {
			continue
		}

		line := fmt.Sprintf("%-8s %10s  %s", e.Type, entrySize(e), e.Path)
		if e.LinkTarget != "" {
			line += " -> " + e.LinkTarget
		}
		if c.cli.Ls.Digest && e.Type == archive.TypeRegular {
			dgst, err := payloadDigest(ctx, r)
			if err != nil {
				return errors.Wrapf(err, "cannot digest %s in %s", e.Path, name)
			}
			logger.Trace().Str("path", e.Path).Msgf("Digest %s", dgst)
			line += "  " + dgst.String()
		}
		fmt.Fprintln(w, line)
	}
}

func entrySize(e *archive.Entry) string {
	if e.Size == archive.SizeUnknown {
		return "-"
	}
	return humanize.IBytes(uint64(e.Size))
}

func payloadDigest(ctx context.Context, r *archive.Reader) (digest.Digest, error) {
	d, err := r.OpenData()
	if err != nil {
		return "", err
	}
	digester := digest.Canonical.Digester()
	if _, err := io.Copy(digester.Hash(), readerContext(ctx, d)); err != nil {
		return "", err
	}
	return digester.Digest(), nil
}
