package app

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/crazy-max/unarc/pkg/archive"
	"github.com/crazy-max/unarc/pkg/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Unarc represents an active unarc object
type Unarc struct {
	ctx    context.Context
	cancel context.CancelFunc
	meta   config.Meta
	cli    config.Cli
	out    io.Writer
}

// New creates new unarc instance
func New(meta config.Meta, cli config.Cli) (*Unarc, error) {
	if cli.Budget < 0 {
		return nil, errors.Errorf("invalid budget %d", cli.Budget)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Unarc{
		ctx:    ctx,
		cancel: cancel,
		meta:   meta,
		cli:    cli,
		out:    os.Stdout,
	}, nil
}

// Start runs the selected command
func (c *Unarc) Start(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return errors.New("no command")
	}
	switch fields[0] {
	case "ls":
		return c.list()
	case "cat":
		return c.cat()
	case "detect":
		return c.detect()
	case "x":
		return c.extract()
	default:
		return errors.Errorf("unknown command %q", fields[0])
	}
}

// Close cancels the running command
func (c *Unarc) Close() {
	if c != nil && c.cancel != nil {
		c.cancel()
	}
}

func (c *Unarc) open(name string) (*archive.Reader, zerolog.Logger, error) {
	r, err := archive.OpenPath(name, archive.Options{
		Logger: &log.Logger,
		Budget: int64(c.cli.Budget),
	})
	logger := log.With().Str("archive", name).Logger()
	if err != nil {
		return nil, logger, err
	}
	logger.Debug().Msgf("Archive format %s detected", r.Format())
	return r, logger, nil
}

// included reports whether p is one of the included paths or below one.
func included(p string, includes []string) bool {
	matched := true
	for _, inc := range includes {
		inc = strings.Trim(inc, "/")
		if len(inc) == 0 {
			continue
		}
		matched = false
		p := strings.TrimSuffix(p, "/")
		if p == inc || strings.HasPrefix(p, inc+"/") {
			return true
		}
	}
	return matched
}

type reader struct {
	ctx context.Context
	r   io.Reader
}

func readerContext(ctx context.Context, r io.Reader) io.Reader {
	return reader{ctx, r}
}

func (r reader) Read(p []byte) (int, error) {
	err := r.ctx.Err()
	if err != nil {
		return 0, err
	}
	n, err := r.r.Read(p)
	if err != nil {
		return n, err
	}
	return n, r.ctx.Err()
}
