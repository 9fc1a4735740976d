package archive

import (
	"archive/tar"
	"bytes"
	"hash/crc32"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/crazy-max/unarc/pkg/filter"
	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

var (
	modTime = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	big     = bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 1500)
)

type member struct {
	name string
	body []byte
	link string
	mode fs.FileMode
}

func (m member) isDir() bool {
	return len(m.name) > 0 && m.name[len(m.name)-1] == '/'
}

func sample() []member {
	return []member{
		{name: "a.txt", body: []byte("hello")},
		{name: "dir/"},
		{name: "dir/big.txt", body: big},
		{name: "empty.txt", body: []byte{}},
	}
}

// onlyReader hides every optional capability of the wrapped reader.
type onlyReader struct {
	r io.Reader
}

func (o *onlyReader) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

// sequential returns a stream without random access over b.
func sequential(b []byte) *stream.Reader {
	return stream.New(&onlyReader{r: bytes.NewReader(b)}, stream.Unlimited)
}

func tarData(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		hdr := &tar.Header{
			Name:    m.name,
			Mode:    0o644,
			ModTime: modTime,
		}
		switch {
		case m.isDir():
			hdr.Typeflag, hdr.Mode = tar.TypeDir, 0o755
		case m.link != "":
			hdr.Typeflag, hdr.Linkname = tar.TypeSymlink, m.link
		default:
			hdr.Typeflag, hdr.Size = tar.TypeReg, int64(len(m.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write(m.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func zipData(t *testing.T, method uint16, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		fh := &zip.FileHeader{
			Name:     m.name,
			Method:   method,
			Modified: modTime,
		}
		body := m.body
		switch {
		case m.link != "":
			fh.SetMode(fs.ModeSymlink | 0o777)
			body = []byte(m.link)
		case m.mode != 0:
			fh.SetMode(m.mode)
		}
		w, err := zw.CreateHeader(fh)
		require.NoError(t, err)
		if !m.isDir() {
			_, err = w.Write(body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// rawZipData stores members without data descriptors. A non-zero crc
// replaces the computed checksum.
func rawZipData(t *testing.T, crc uint32, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		sum := crc
		if sum == 0 {
			sum = crc32.ChecksumIEEE(m.body)
		}
		w, err := zw.CreateRaw(&zip.FileHeader{
			Name:               m.name,
			Method:             zip.Store,
			CRC32:              sum,
			CompressedSize64:   uint64(len(m.body)),
			UncompressedSize64: uint64(len(m.body)),
		})
		require.NoError(t, err)
		_, err = w.Write(m.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func gzipData(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func bzip2Data(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestSpeed})
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func xzData(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func xzAvailable() bool {
	_, err := filter.NewXz(stream.NewBytes(nil, 0), 0)
	return !errors.Is(err, filter.ErrCodecUnavailable)
}

type compression struct {
	name     string
	compress func(t *testing.T, data []byte) []byte
}

func compressions() []compression {
	cs := []compression{
		{name: "", compress: func(_ *testing.T, data []byte) []byte { return data }},
		{name: "gzip", compress: gzipData},
		{name: "bzip2", compress: bzip2Data},
	}
	if xzAvailable() {
		cs = append(cs, compression{name: "xz", compress: xzData})
	}
	return cs
}

type read struct {
	entry *Entry
	body  []byte
}

// readAll iterates r to the end, reading every payload.
func readAll(t *testing.T, r *Reader) []read {
	t.Helper()
	var res []read
	for {
		e, err := r.Next()
		if err == io.EOF {
			return res
		}
		require.NoError(t, err)
		d, err := r.OpenData()
		require.NoError(t, err)
		body, err := io.ReadAll(d)
		require.NoError(t, err)
		res = append(res, read{entry: e, body: body})
	}
}
