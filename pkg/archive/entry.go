package archive

import (
	"io/fs"
	"path"
	"strings"
	"time"
)

// SizeUnknown marks an entry whose payload length is only known once its
// data has been read entirely.
const SizeUnknown int64 = -1

// EntryType is the kind of an archive member.
type EntryType int

const (
	TypeRegular EntryType = iota
	TypeDirectory
	TypeSymlink
	TypeHardlink
	TypeOther
)

func (t EntryType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDirectory:
		return "dir"
	case TypeSymlink:
		return "symlink"
	case TypeHardlink:
		return "hardlink"
	default:
		return "other"
	}
}

// Entry describes one archive member. A fresh Entry is returned by every
// call to Reader.Next and is never modified afterwards. Payload bytes are
// obtained from the reader, an Entry holds no reference to them.
type Entry struct {
	// Path of the member inside the archive, not resolved on any file system
	Path string
	// Size is the declared payload length, or SizeUnknown
	Size int64
	// Type of the member
	Type EntryType
	// LinkTarget is set for symbolic and hard links
	LinkTarget string
	// Mode holds the permission and type bits
	Mode fs.FileMode
	// ModTime is the modification time
	ModTime time.Time
	// Format of the container holding the entry
	Format Format
	// Header is the format specific header: *tar.Header or *ZipHeader
	Header any
}

// Name returns the last element of the entry path.
func (e *Entry) Name() string {
	return path.Base(strings.TrimSuffix(e.Path, "/"))
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Type == TypeDirectory
}
