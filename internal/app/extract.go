package app

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/crazy-max/unarc/pkg/archive"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func (c *Unarc) extract() error {
	dist := c.cli.Extract.Dist
	if _, err := os.Stat(dist); err == nil && c.cli.Extract.RmDist {
		if err := os.RemoveAll(dist); err != nil {
			return errors.Wrapf(err, "failed to remove dist folder %q", dist)
		}
	}
	if err := os.MkdirAll(dist, 0700); err != nil {
		return errors.Wrapf(err, "failed to create dist folder %q", dist)
	}

	r, logger, err := c.open(c.cli.Extract.Archive)
	if err != nil {
		return err
	}
	defer r.Close()

	logger.Info().Msgf("Extracting to %s", dist)
	for {
		e, err := r.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrapf(err, "cannot read %s", c.cli.Extract.Archive)
		}
		if !included(e.Path, c.cli.Extract.Includes) {
			continue
		}
		if err := c.extractEntry(logger, r, e, dist); err != nil {
			return errors.Wrapf(err, "cannot extract %s", e.Path)
		}
	}
}

func (c *Unarc) extractEntry(logger zerolog.Logger, r *archive.Reader, e *archive.Entry, dist string) error {
	name := filepath.FromSlash(strings.TrimSuffix(e.Path, "/"))
	if !filepath.IsLocal(name) {
		logger.Warn().Msgf("Skipping %s outside of dist folder", e.Path)
		return nil
	}
	if link, err := symlinkParent(dist, name); err != nil {
		return err
	} else if link != "" {
		logger.Warn().Msgf("Skipping %s: %s is a symlink", e.Path, link)
		return nil
	}
	if e.IsDir() {
		logger.Trace().Msgf("Extracting %s", e.Path)
	} else {
		logger.Debug().Msgf("Extracting %s", e.Path)
	}

	path := filepath.Join(dist, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	switch e.Type {
	case archive.TypeDirectory:
		return os.MkdirAll(path, perm(e.Mode, 0755))
	case archive.TypeRegular:
		return writeFile(c.ctx, path, e, r)
	case archive.TypeSymlink:
		return writeSymlink(path, e)
	case archive.TypeHardlink:
		return writeHardlink(dist, path, e)
	default:
		logger.Warn().Msgf("Skipping %s: cannot handle %s entries", e.Path, e.Type)
		return nil
	}
}

func writeFile(ctx context.Context, path string, e *archive.Entry, r *archive.Reader) error {
	d, err := r.OpenData()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := removeExisting(path); err != nil {
		return err
	}
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.Chmod(perm(e.Mode, 0644))
	if err != nil {
		return err
	}

	_, err = io.Copy(w, readerContext(ctx, d))
	return err
}

func writeSymlink(path string, e *archive.Entry) error {
	if e.LinkTarget == "" {
		return errors.Errorf("symlink target is empty for %s", e.Name())
	}
	if err := removeExisting(path); err != nil {
		return err
	}
	return os.Symlink(e.LinkTarget, path)
}

func writeHardlink(dist, path string, e *archive.Entry) error {
	target := filepath.FromSlash(strings.TrimSuffix(e.LinkTarget, "/"))
	if !filepath.IsLocal(target) {
		return errors.Errorf("hardlink target %s is outside of dist folder", e.LinkTarget)
	}
	if link, err := symlinkParent(dist, target); err != nil {
		return err
	} else if link != "" {
		return errors.Errorf("hardlink target %s goes through symlink %s", e.LinkTarget, link)
	}
	if err := removeExisting(path); err != nil {
		return err
	}
	return os.Link(filepath.Join(dist, target), path)
}

// symlinkParent returns the first parent directory of name below dist that
// is a symbolic link, or an empty string.
func symlinkParent(dist, name string) (string, error) {
	dir := dist
	for _, part := range strings.Split(filepath.Dir(name), string(filepath.Separator)) {
		if part == "." {
			continue
		}
		dir = filepath.Join(dir, part)
		fi, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		} else if err != nil {
			return "", err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return dir, nil
		}
	}
	return "", nil
}

func removeExisting(path string) error {
	if _, err := os.Lstat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}

func perm(mode fs.FileMode, fallback fs.FileMode) fs.FileMode {
	if p := mode.Perm(); p != 0 {
		return p
	}
	return fallback
}
