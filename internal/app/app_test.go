package app

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/crazy-max/unarc/pkg/config"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type file struct {
	name string
	body string
	link string
}

var files = []file{
	{name: "etc/"},
	{name: "etc/hosts", body: "127.0.0.1 localhost\n"},
	{name: "etc/motd", body: "hello\n"},
	{name: "usr/bin/sh", link: "busybox"},
	{name: "../escape", body: "nope"},
}

func writeTarGz(t *testing.T, dir string) string {
	t.Helper()
	return writeTarFiles(t, filepath.Join(dir, "rootfs.tar.gz"), files)
}

func writeTarFiles(t *testing.T, name string, files []file) string {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, f := range files {
		hdr := &tar.Header{Name: f.name, Mode: 0o644, Typeflag: tar.TypeReg, Size: int64(len(f.body))}
		switch {
		case strings.HasSuffix(f.name, "/"):
			hdr.Typeflag, hdr.Mode = tar.TypeDir, 0o755
		case f.link != "":
			hdr.Typeflag, hdr.Linkname, hdr.Size = tar.TypeSymlink, f.link, 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	require.NoError(t, os.WriteFile(name, buf.Bytes(), 0o644))
	return name
}

func writeZip(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("zip content"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	name := filepath.Join(dir, "docs.zip")
	require.NoError(t, os.WriteFile(name, buf.Bytes(), 0o644))
	return name
}

func newTestApp(t *testing.T, cli config.Cli) (*Unarc, *bytes.Buffer) {
	t.Helper()
	c, err := New(config.Meta{ID: "unarc"}, cli)
	require.NoError(t, err)
	var out bytes.Buffer
	c.out = &out
	return c, &out
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	tgz, zipName := writeTarGz(t, dir), writeZip(t, dir)

	c, out := newTestApp(t, config.Cli{Ls: config.LsCmd{
		Digest:   true,
		Archives: []string{tgz, zipName},
	}})
	require.NoError(t, c.Start("ls <archive> ..."))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, tgz+":", lines[0])
	assert.Contains(t, lines[2], "etc/hosts")
	assert.Contains(t, lines[2], digest.FromString("127.0.0.1 localhost\n").String())
	assert.Contains(t, lines[4], "usr/bin/sh -> busybox")
	assert.Equal(t, zipName+":", lines[6])
	assert.Contains(t, lines[7], "readme.txt")
	assert.Contains(t, lines[7], digest.FromString("zip content").String())
}

func TestListIncludes(t *testing.T) {
	tgz := writeTarGz(t, t.TempDir())

	c, out := newTestApp(t, config.Cli{Ls: config.LsCmd{
		Includes: []string{"/etc"},
		Archives: []string{tgz},
	}})
	require.NoError(t, c.Start("ls <archive> ..."))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Contains(t, line, "etc")
	}
}

func TestCat(t *testing.T) {
	tgz := writeTarGz(t, t.TempDir())

	testCases := []struct {
		desc     string
		member   string
		expected string
		wantErr  string
	}{
		{
			desc:     "file",
			member:   "etc/motd",
			expected: "hello\n",
		},
		{
			desc:     "leading slash",
			member:   "/etc/hosts",
			expected: "127.0.0.1 localhost\n",
		},
		{
			desc:    "directory",
			member:  "etc",
			wantErr: "is a directory",
		},
		{
			desc:    "missing",
			member:  "etc/passwd",
			wantErr: "not found",
		},
	}
	for _, tt := range testCases {
		t.Run(tt.desc, func(t *testing.T) {
			c, out := newTestApp(t, config.Cli{Cat: config.CatCmd{Archive: tgz, Member: tt.member}})
			err := c.Start("cat <archive> <member>")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out.String())
		})
	}
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	tgz, zipName := writeTarGz(t, dir), writeZip(t, dir)

	c, out := newTestApp(t, config.Cli{Detect: config.DetectCmd{Archives: []string{tgz, zipName}}})
	require.NoError(t, c.Start("detect <archive> ..."))
	assert.Contains(t, out.String(), tgz+": tar+gzip")
	assert.Contains(t, out.String(), zipName+": zip")

	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, bytes.Repeat([]byte{0}, 1024), 0o644))
	c, _ = newTestApp(t, config.Cli{Detect: config.DetectCmd{Archives: []string{bad}}})
	assert.Error(t, c.Start("detect <archive> ..."))
}

func TestExtract(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	tgz := writeTarGz(t, dir)
	dist := filepath.Join(dir, "dist")

	c, _ := newTestApp(t, config.Cli{Extract: config.ExtractCmd{Archive: tgz, Dist: dist}})
	require.NoError(t, c.Start("x <archive> <dist>"))

	b, err := os.ReadFile(filepath.Join(dist, "etc", "hosts"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n", string(b))

	target, err := os.Readlink(filepath.Join(dist, "usr", "bin", "sh"))
	require.NoError(t, err)
	assert.Equal(t, "busybox", target)

	_, err = os.Stat(filepath.Join(dir, "escape"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractThroughSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	outside := filepath.Join(dir, "outside")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "keep.txt"), []byte("keep"), 0o644))

	tgz := writeTarFiles(t, filepath.Join(dir, "evil.tar.gz"), []file{
		{name: "evil", link: outside},
		{name: "evil/pwn.txt", body: "pwnd"},
		{name: "evil/sub/deep.txt", body: "pwnd"},
		{name: "keep", link: filepath.Join(outside, "keep.txt")},
		{name: "keep", body: "replaced"},
		{name: "ok.txt", body: "fine"},
	})
	dist := filepath.Join(dir, "dist")

	c, _ := newTestApp(t, config.Cli{Extract: config.ExtractCmd{Archive: tgz, Dist: dist}})
	require.NoError(t, c.Start("x <archive> <dist>"))

	_, err := os.Stat(filepath.Join(outside, "pwn.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(outside, "sub"))
	assert.True(t, os.IsNotExist(err))

	b, err := os.ReadFile(filepath.Join(outside, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(b))

	b, err = os.ReadFile(filepath.Join(dist, "keep"))
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(b))

	b, err = os.ReadFile(filepath.Join(dist, "ok.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fine", string(b))
}

func TestSymlinkParent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dist := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dist, "a", "b"), 0o755))
	require.NoError(t, os.Symlink(t.TempDir(), filepath.Join(dist, "a", "link")))

	testCases := []struct {
		desc     string
		name     string
		expected string
	}{
		{desc: "top level", name: "file", expected: ""},
		{desc: "real parents", name: filepath.Join("a", "b", "file"), expected: ""},
		{desc: "missing parents", name: filepath.Join("x", "y", "file"), expected: ""},
		{desc: "symlink parent", name: filepath.Join("a", "link", "file"), expected: filepath.Join(dist, "a", "link")},
		{desc: "symlink itself", name: filepath.Join("a", "link"), expected: ""},
	}
	for _, tt := range testCases {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := symlinkParent(dist, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLogArchiveField(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.TraceLevel)
	defer func() { log.Logger = prev }()

	tgz := writeTarGz(t, t.TempDir())
	c, _ := newTestApp(t, config.Cli{Ls: config.LsCmd{Archives: []string{tgz}}})
	require.NoError(t, c.Start("ls <archive> ..."))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"archive":`), line)
	}
}

func TestIncluded(t *testing.T) {
	testCases := []struct {
		desc     string
		path     string
		includes []string
		expected bool
	}{
		{desc: "no filter", path: "a/b", expected: true},
		{desc: "exact", path: "etc/hosts", includes: []string{"etc/hosts"}, expected: true},
		{desc: "below", path: "etc/hosts", includes: []string{"/etc/"}, expected: true},
		{desc: "directory itself", path: "etc/", includes: []string{"etc"}, expected: true},
		{desc: "sibling prefix", path: "etcetera", includes: []string{"etc"}, expected: false},
		{desc: "empty include", path: "a", includes: []string{"/"}, expected: true},
	}
	for _, tt := range testCases {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.expected, included(tt.path, tt.includes))
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	c, _ := newTestApp(t, config.Cli{})
	assert.Error(t, c.Start("rm"))
	assert.Error(t, c.Start(""))
}
