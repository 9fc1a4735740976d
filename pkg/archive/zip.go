package archive

import (
	"bytes"
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/crazy-max/unarc/pkg/stream"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	zipLocalHeaderLen = 30
	zipFlagEncrypted  = 0x1
	zipFlagDescriptor = 0x8
	zipFlagUTF8       = 0x800
	zip64ExtraID      = 0x0001
	extTimeExtraID    = 0x5455
	uint32max         = 0xffffffff
	maxLinkTarget     = 4096

	// scanChunk bounds a single read of a stored payload of unknown length
	scanChunk = 16 << 10
	// scanWindow covers a signed zip64 descriptor and the record after it
	scanWindow = 4 + 20 + 4
)

var (
	sigLocalFile        = []byte("PK\x03\x04")
	sigCentralDir       = []byte("PK\x01\x02")
	sigEndOfCentralDir  = []byte("PK\x05\x06")
	sigZip64End         = []byte("PK\x06\x06")
	sigDigitalSignature = []byte("PK\x05\x05")
	sigDataDescriptor   = []byte("PK\x07\x08")
)

var le = binary.LittleEndian

// ZipHeader carries the ZIP specific metadata of an entry, as known when
// the entry was returned.
type ZipHeader struct {
	// Flags is the general purpose bit flag of the local header
	Flags uint16
	// Method is the compression method
	Method uint16
	// CRC32 of the payload, zero if only known after reading it
	CRC32 uint32
	// CompressedSize of the payload, or SizeUnknown
	CompressedSize int64
	// Comment from the central directory
	Comment string
	// Zip64 reports a zip64 extra field in the local header
	Zip64 bool
	// NonUTF8 reports a name not flagged as UTF-8
	NonUTF8 bool
	// CentralDirectory reports that the central directory record of the
	// entry was consulted
	CentralDirectory bool
}

// sectioner is implemented by streams backed by a random access source.
type sectioner interface {
	Section() (*io.SectionReader, bool)
}

// zipContainer walks local file headers in the order they are stored.
// The central directory, when the stream allows random access, only
// supplies what local headers lack: sizes behind data descriptors and mode
// bits.
type zipContainer struct {
	s      stream.Stream
	logger zerolog.Logger
	limit  int64
	dir    map[string][]*zip.File
	cur    *zipEntry
}

type zipEntry struct {
	name     string
	flags    uint16
	method   uint16
	crc      uint32
	crcKnown bool
	csize    int64
	size     int64
	zip64    bool
	mode     fs.FileMode
	modTime  time.Time
	comment  string
	fromDir  bool

	// raw bounds the compressed bytes when their length is known
	raw *io.LimitedReader
	// counted tracks the compressed bytes otherwise
	counted *countingReader
	body    *zipBody
	link    []byte
	done    bool
}

func newZipContainer(s stream.Stream, logger zerolog.Logger) (container, error) {
	c := &zipContainer{
		s:      s,
		logger: logger,
		limit:  s.Limit(),
	}
	if c.limit == stream.Unlimited {
		c.limit = stream.DefaultLimit
	}
	if sr, ok := s.(sectioner); ok {
		if sec, ok := sr.Section(); ok {
			c.consult(sec)
		}
	}
	return c, nil
}

// consult loads the central directory. A missing or unreadable directory
// is not an error: iteration falls back to local headers only.
func (c *zipContainer) consult(sec *io.SectionReader) {
	zr, err := zip.NewReader(sec, sec.Size())
	if err != nil && err != zip.ErrInsecurePath {
		c.logger.Debug().Err(err).Msg("Central directory not usable, reading local headers only")
		return
	}
	c.dir = make(map[string][]*zip.File, len(zr.File))
	for _, f := range zr.File {
		c.dir[f.Name] = append(c.dir[f.Name], f)
	}
	c.logger.Debug().Int("records", len(zr.File)).Msg("Central directory consulted")
}

func (c *zipContainer) lookup(name string) *zip.File {
	files := c.dir[name]
	if len(files) == 0 {
		return nil
	}
	c.dir[name] = files[1:]
	return files[0]
}

func (c *zipContainer) next() (*Entry, error) {
	if c.cur != nil {
		if err := c.finish(c.cur); err != nil {
			return nil, err
		}
		c.cur = nil
	}

	head, err := peek(c.s, 4)
	if err != nil {
		return nil, classify(FormatZip, err)
	}
	switch {
	case bytes.Equal(head, sigLocalFile):
	case bytes.Equal(head, sigCentralDir),
		bytes.Equal(head, sigEndOfCentralDir),
		bytes.Equal(head, sigZip64End),
		bytes.Equal(head, sigDigitalSignature):
		return nil, io.EOF
	case len(head) < 4:
		return nil, malformed(FormatZip, errors.New("archive ends before its central directory"))
	default:
		return nil, malformed(FormatZip, errors.Errorf("unexpected signature %x at offset %d", head, c.s.Tell()))
	}

	e, err := c.readLocalHeader()
	if err != nil {
		return nil, classify(FormatZip, err)
	}
	c.cur = e

	entry := e.entry()
	if entry.Type == TypeSymlink {
		if err := c.readLink(e); err != nil {
			return nil, err
		}
		entry.LinkTarget = string(e.link)
	}
	return entry, nil
}

func (c *zipContainer) data() (payload, int64, error) {
	e := c.cur
	if e.link != nil {
		return bytes.NewReader(e.link), int64(len(e.link)), nil
	}
	b, err := c.open(e)
	if err != nil {
		return nil, 0, err
	}
	return b, c.entryLimit(e), nil
}

func (c *zipContainer) skip() error {
	return c.finish(c.cur)
}

func (c *zipContainer) close() error {
	if c.cur != nil && c.cur.body != nil {
		_ = c.cur.body.rc.Close()
	}
	c.cur, c.dir = nil, nil
	return nil
}

func (c *zipContainer) readLocalHeader() (*zipEntry, error) {
	var buf [zipLocalHeaderLen]byte
	if _, err := io.ReadFull(c.s, buf[:]); err != nil {
		return nil, unexpectedEOF(err)
	}
	nameLen := int(le.Uint16(buf[26:]))
	extraLen := int(le.Uint16(buf[28:]))
	if nameLen == 0 {
		return nil, malformed(FormatZip, errors.New("local header without name"))
	}
	rest := make([]byte, nameLen+extraLen)
	if _, err := io.ReadFull(c.s, rest); err != nil {
		return nil, unexpectedEOF(err)
	}

	e := &zipEntry{
		name:     string(rest[:nameLen]),
		flags:    le.Uint16(buf[6:]),
		method:   le.Uint16(buf[8:]),
		crc:      le.Uint32(buf[14:]),
		crcKnown: true,
		csize:    int64(le.Uint32(buf[18:])),
		size:     int64(le.Uint32(buf[22:])),
		modTime:  msDosTime(le.Uint16(buf[12:]), le.Uint16(buf[10:])),
	}
	if err := e.parseExtra(rest[nameLen:]); err != nil {
		return nil, err
	}
	if e.flags&zipFlagDescriptor != 0 {
		e.crc, e.crcKnown = 0, false
		e.csize, e.size = SizeUnknown, SizeUnknown
	}

	if f := c.lookup(e.name); f != nil {
		e.fromDir = true
		e.mode = f.Mode()
		e.comment = f.Comment
		if !f.Modified.IsZero() {
			e.modTime = f.Modified
		}
		if !e.crcKnown {
			e.crc, e.crcKnown = f.CRC32, true
			e.csize = int64(f.CompressedSize64)
			e.size = int64(f.UncompressedSize64)
		}
	} else if strings.HasSuffix(e.name, "/") {
		e.mode = fs.ModeDir | 0o755
	} else {
		e.mode = 0o644
	}

	if e.csize != SizeUnknown {
		e.raw = &io.LimitedReader{R: c.s, N: e.csize}
	}
	c.logger.Trace().Str("name", e.name).Uint16("method", e.method).Int64("size", e.size).Msg("Local file header")
	return e, nil
}

func (e *zipEntry) parseExtra(extra []byte) error {
	for len(extra) >= 4 {
		id := le.Uint16(extra)
		size := int(le.Uint16(extra[2:]))
		extra = extra[4:]
		if size > len(extra) {
			return malformed(FormatZip, errors.Errorf("extra field %#04x of %s overflows header", id, e.name))
		}
		field := extra[:size]
		extra = extra[size:]

		switch id {
		case zip64ExtraID:
			e.zip64 = true
			// only the fields saturated in the header are present, in order
			if e.size == uint32max && len(field) >= 8 {
				e.size = int64(le.Uint64(field))
				field = field[8:]
			}
			if e.csize == uint32max && len(field) >= 8 {
				e.csize = int64(le.Uint64(field))
			}
			if e.size < 0 || e.csize < 0 {
				return malformed(FormatZip, errors.Errorf("invalid zip64 sizes for %s", e.name))
			}
		case extTimeExtraID:
			if len(field) >= 5 && field[0]&1 != 0 {
				e.modTime = time.Unix(int64(int32(le.Uint32(field[1:]))), 0)
			}
		}
	}
	return nil
}

func (e *zipEntry) entry() *Entry {
	entry := &Entry{
		Path:    e.name,
		Size:    e.size,
		Mode:    e.mode,
		ModTime: e.modTime,
		Format:  FormatZip,
		Header: &ZipHeader{
			Flags:            e.flags,
			Method:           e.method,
			CRC32:            e.crc,
			CompressedSize:   e.csize,
			Comment:          e.comment,
			Zip64:            e.zip64,
			NonUTF8:          e.flags&zipFlagUTF8 == 0,
			CentralDirectory: e.fromDir,
		},
	}
	switch {
	case e.mode.IsDir() || strings.HasSuffix(e.name, "/"):
		entry.Type = TypeDirectory
	case e.mode&fs.ModeSymlink != 0:
		entry.Type = TypeSymlink
	case e.mode.IsRegular():
		entry.Type = TypeRegular
	default:
		entry.Type = TypeOther
	}
	return entry
}

// entryLimit is the decompression budget of a payload: its declared size,
// or the container budget when unknown.
func (c *zipContainer) entryLimit(e *zipEntry) int64 {
	switch {
	case e.size == SizeUnknown:
		return c.limit
	case e.size == 0:
		return 1
	default:
		return e.size
	}
}

func (c *zipContainer) open(e *zipEntry) (*zipBody, error) {
	if e.flags&zipFlagEncrypted != 0 {
		return nil, errors.Wrapf(ErrUnsupported, "%s is encrypted", e.name)
	}
	dcomp, ok := zipMethods[e.method]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "%s uses compression method %d", e.name, e.method)
	}

	var src io.Reader
	switch {
	case e.raw != nil:
		src = e.raw
	case e.method == zip.Deflate:
		// deflate ends by itself and flate reads byte by byte from an
		// io.ByteReader, so the stream stops right at the descriptor
		e.counted = &countingReader{s: c.s}
		src = e.counted
	case e.method == zip.Store:
		src = &storedScanner{s: c.s}
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%s has no known size and method %d is not self-terminating", e.name, e.method)
	}

	rc, err := dcomp(src)
	if err != nil {
		return nil, classify(FormatZip, err)
	}
	e.body = &zipBody{c: c, e: e, rc: rc, crc: crc32.NewIEEE()}
	return e.body, nil
}

// finish moves the stream past whatever is left of the entry.
func (c *zipContainer) finish(e *zipEntry) error {
	if e.done {
		return nil
	}
	if b := e.body; b != nil {
		if b.err != nil && b.err != io.EOF {
			return b.err
		}
		if e.raw == nil {
			return c.drain(b)
		}
		_ = b.rc.Close()
	}
	if e.raw != nil {
		if err := c.skipRaw(e); err != nil {
			return err
		}
		if err := c.readDescriptor(e); err != nil {
			return err
		}
		e.done = true
		return nil
	}
	b, err := c.open(e)
	if err != nil {
		return err
	}
	return c.drain(b)
}

// drain decodes the rest of a payload whose end is only found by decoding.
func (c *zipContainer) drain(b *zipBody) error {
	limit := c.entryLimit(b.e)
	n, err := io.CopyN(io.Discard, b, limit+1)
	switch {
	case err == io.EOF:
		return nil
	case err != nil:
		return err
	case n > limit:
		return errors.Wrapf(stream.ErrBudgetExceeded, "%s decodes to more than %d bytes", b.e.name, limit)
	}
	return nil
}

func (c *zipContainer) skipRaw(e *zipEntry) error {
	if e.raw.N == 0 {
		return nil
	}
	if _, err := c.s.Seek(e.raw.N, io.SeekCurrent); err != nil {
		return classify(FormatZip, err)
	}
	e.raw.N = 0
	return nil
}

// readDescriptor consumes the data descriptor following a payload. The
// descriptor signature is optional and its sizes are 4 or 8 bytes wide;
// the width is taken from the next record signature when it is visible.
func (c *zipContainer) readDescriptor(e *zipEntry) error {
	if e.flags&zipFlagDescriptor == 0 {
		return nil
	}
	head, err := peek(c.s, 4)
	if err != nil {
		return classify(FormatZip, err)
	}
	if bytes.Equal(head, sigDataDescriptor) {
		if _, err := c.s.Seek(4, io.SeekCurrent); err != nil {
			return classify(FormatZip, err)
		}
	}

	wide := e.zip64
	if look, err := peek(c.s, 24); err == nil {
		switch {
		case len(look) >= 16 && isRecordSignature(look[12:16]):
			wide = false
		case len(look) >= 24 && isRecordSignature(look[20:24]):
			wide = true
		}
	}

	var buf [20]byte
	n := 12
	if wide {
		n = 20
	}
	if _, err := io.ReadFull(c.s, buf[:n]); err != nil {
		return classify(FormatZip, unexpectedEOF(err))
	}
	crc := le.Uint32(buf[:])
	csize, size := int64(le.Uint32(buf[4:])), int64(le.Uint32(buf[8:]))
	if wide {
		csize, size = int64(le.Uint64(buf[4:])), int64(le.Uint64(buf[12:]))
	}

	if !e.crcKnown {
		e.crc, e.crcKnown = crc, true
	}
	if e.size == SizeUnknown {
		e.size = size
	}
	if e.csize == SizeUnknown {
		e.csize = csize
		if e.counted != nil && e.counted.n != csize {
			return malformed(FormatZip, errors.Errorf("%s: descriptor declares %d compressed bytes, read %d", e.name, csize, e.counted.n))
		}
	}
	return nil
}

func isRecordSignature(b []byte) bool {
	for _, sig := range [][]byte{sigLocalFile, sigCentralDir, sigEndOfCentralDir, sigZip64End, sigDigitalSignature} {
		if bytes.Equal(b, sig) {
			return true
		}
	}
	return false
}

// readLink reads a symbolic link target, stored as the entry payload.
func (c *zipContainer) readLink(e *zipEntry) error {
	b, err := c.open(e)
	if err != nil {
		return err
	}
	target, err := io.ReadAll(io.LimitReader(b, maxLinkTarget+1))
	if err != nil {
		return err
	}
	if len(target) > maxLinkTarget {
		return malformed(FormatZip, errors.Errorf("symlink target of %s exceeds %d bytes", e.name, maxLinkTarget))
	}
	if !e.done {
		if err := c.finish(e); err != nil {
			return err
		}
	}
	e.link = target
	return nil
}

// zipBody decodes a payload and verifies it once fully read.
type zipBody struct {
	c   *zipContainer
	e   *zipEntry
	rc  io.ReadCloser
	crc hash.Hash32
	n   int64
	err error
}

func (b *zipBody) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	n, err := b.rc.Read(p)
	b.crc.Write(p[:n])
	b.n += int64(n)
	switch {
	case err == io.EOF:
		if cerr := b.complete(); cerr != nil {
			err = cerr
		}
	case err != nil:
		err = classify(FormatZip, unexpectedEOF(err))
	}
	b.err = err
	return n, err
}

func (b *zipBody) complete() error {
	e := b.e
	_ = b.rc.Close()
	if e.raw != nil {
		// trailing bytes the decoder did not need
		if err := b.c.skipRaw(e); err != nil {
			return err
		}
	}
	if err := b.c.readDescriptor(e); err != nil {
		return err
	}
	e.done = true
	if e.size != SizeUnknown && b.n != e.size {
		return malformed(FormatZip, errors.Errorf("%s: declared %d bytes, decoded %d", e.name, e.size, b.n))
	}
	if e.crcKnown && b.crc.Sum32() != e.crc {
		return errors.Wrapf(ErrChecksum, "%s: crc32 %08x, expected %08x", e.name, b.crc.Sum32(), e.crc)
	}
	return nil
}

// storedScanner reads a stored payload whose length is only given by the
// data descriptor following it. The payload ends before the first
// descriptor that declares the bytes read so far, carries their CRC-32 and
// is followed by another record signature.
type storedScanner struct {
	s    stream.Stream
	crc  uint32
	n    int64
	done bool
}

func (r *storedScanner) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if len(p) > scanChunk {
		p = p[:scanChunk]
	}
	want := len(p) + scanWindow
	look, err := peek(r.s, want)
	if err != nil {
		return 0, err
	}
	if len(look) == 0 {
		return 0, io.ErrUnexpectedEOF
	}

	end := min(len(p), len(look))
	for i := 0; i < end; i++ {
		off, ok := descriptorAt(look[i:], r.n+int64(i))
		if !ok || crc32.Update(r.crc, crc32.IEEETable, look[:i]) != le.Uint32(look[i+off:]) {
			continue
		}
		r.done = true
		end = i
		break
	}

	n, err := io.ReadFull(r.s, p[:end])
	r.crc = crc32.Update(r.crc, crc32.IEEETable, p[:n])
	r.n += int64(n)
	if err != nil {
		return n, unexpectedEOF(err)
	}
	if r.done && n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// descriptorAt reports whether b starts with a data descriptor declaring n
// compressed bytes and followed by a record signature. It returns the
// offset of the CRC-32 field.
func descriptorAt(b []byte, n int64) (int, bool) {
	for _, off := range []int{4, 0} {
		if off == 4 && !bytes.HasPrefix(b, sigDataDescriptor) {
			continue
		}
		if len(b) >= off+16 && int64(le.Uint32(b[off+4:])) == n && isRecordSignature(b[off+12:off+16]) {
			return off, true
		}
		if len(b) >= off+24 && le.Uint64(b[off+4:]) == uint64(n) && isRecordSignature(b[off+20:off+24]) {
			return off, true
		}
	}
	return 0, false
}

type countingReader struct {
	s stream.Stream
	n int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.s.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) ReadByte() (byte, error) {
	c, err := r.s.ReadByte()
	if err == nil {
		r.n++
	}
	return c, err
}

func msDosTime(date, tm uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(tm>>11),
		int(tm>>5&0x3f),
		int(tm&0x1f)*2,
		0,
		time.UTC,
	)
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
