package storage

import (
	"errors"
	"io"
	"strings"
)

// FileSystem stores the table's durable artifacts: data files, manifests and
// snapshot documents. Implementations are keyed by location scheme.
type FileSystem interface {
	// New creates a file for writing. Nothing is visible to readers until
	// Save.
	New(path string) File
	// Open references an existing file for reading.
	Open(path string) File
	// List returns the paths under prefix in lexical order.
	List(prefix string) ([]string, error)
}

type File interface {
	io.ReaderAt
	io.Writer
	Save() error
	Name() string
	Delete() error
	URI() string
	Size() int64
}

type FileMode int

const FILE_MODE_READ = 0
const FILE_MODE_WRITE = 1

var ErrNotFound = errors.New("file not found")

// NewFileSystemFromLocation picks a filesystem from a location string:
// memory:// paths share one process-wide store, s3://bucket/prefix uses the
// AWS SDK, anything else is a local directory.
func NewFileSystemFromLocation(location string) (FileSystem, error) {
	switch {
	case strings.HasPrefix(location, memoryProtocol):
		workingDir := strings.TrimPrefix(location, memoryProtocol)
		return sharedMemoryFilesystem.WithWorkingDir(workingDir), nil
	case strings.HasPrefix(location, s3Protocol):
		return NewS3FileSystemFromURI(location, nil)
	default:
		return NewLocalFilesystem(location)
	}
}

// Locations like memory://tables/t1 resolve against one shared in-process
// filesystem so a writer and a scan in the same test see the same files.
var sharedMemoryFilesystem = NewMemoryFilesystem()
