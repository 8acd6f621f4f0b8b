package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type LocalFilesystem struct {
	Dir string
}

func NewLocalFilesystem(dir string) (*LocalFilesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating local filesystem: %w", err)
	}
	return &LocalFilesystem{dir}, nil
}

func (lfs *LocalFilesystem) New(path string) File {
	if filepath.IsAbs(path) {
		panic(fmt.Sprintf("creating a file with absolute path (%s) not supported", path))
	}
	pathDir := filepath.Dir(path)
	return &DiskFile{
		name:     filepath.Base(path),
		dir:      filepath.Join(lfs.Dir, pathDir),
		fileMode: FILE_MODE_WRITE,
	}
}

func (lfs *LocalFilesystem) Open(path string) File {
	var dir string
	if filepath.IsAbs(path) {
		dir = filepath.Dir(path)
	} else {
		dir = filepath.Join(lfs.Dir, filepath.Dir(path))
	}

	return &DiskFile{
		name:     filepath.Base(path),
		dir:      dir,
		fileMode: FILE_MODE_READ,
	}
}

func (lfs *LocalFilesystem) List(prefix string) ([]string, error) {
	root := filepath.Join(lfs.Dir, prefix)
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relativePath, err := filepath.Rel(lfs.Dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, relativePath)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

var _ FileSystem = (*LocalFilesystem)(nil)

type DiskFile struct {
	osFile   *os.File
	name     string
	dir      string
	fileMode FileMode
	size     int64
}

func (d *DiskFile) ReadAt(b []byte, off int64) (n int, err error) {
	file, err := d.openFile()
	if err != nil {
		return 0, err
	}
	return file.ReadAt(b, off)
}

// Save fsyncs the temp file and renames it into place so a crash never leaves
// a partially written file at the final path.
func (d *DiskFile) Save() error {
	if d.fileMode == FILE_MODE_READ {
		panic("tried to save a read only file")
	}
	file, err := d.tmpFile()
	if err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return err
	}
	if err := os.Rename(file.Name(), filepath.Join(d.dir, d.name)); err != nil {
		return err
	}
	d.fileMode = FILE_MODE_READ
	d.osFile = nil
	return nil
}

// Lazily open the file
func (d *DiskFile) openFile() (*os.File, error) {
	if d.osFile != nil {
		return d.osFile, nil
	}
	f, err := os.Open(filepath.Join(d.dir, d.name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filepath.Join(d.dir, d.name), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	d.osFile = f
	return f, nil
}

// Lazily create the tmp file
func (d *DiskFile) tmpFile() (*os.File, error) {
	if d.osFile != nil {
		return d.osFile, nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(d.dir, d.name)
	if err != nil {
		return nil, err
	}
	d.osFile = f
	return f, nil
}

func (d *DiskFile) Write(b []byte) (n int, err error) {
	if d.fileMode == FILE_MODE_READ {
		panic("tried to write to a read only file")
	}
	file, err := d.tmpFile()
	if err != nil {
		return 0, err
	}
	n, err = file.Write(b)
	d.size += int64(n)
	return n, err
}

func (d *DiskFile) Delete() error {
	return os.Remove(filepath.Join(d.dir, d.name))
}

func (d *DiskFile) Size() int64 {
	if d.size == 0 && d.fileMode == FILE_MODE_READ {
		if info, err := os.Stat(filepath.Join(d.dir, d.name)); err == nil {
			d.size = info.Size()
		}
	}
	return d.size
}

func (d *DiskFile) Name() string {
	return d.name
}

func (d *DiskFile) URI() string {
	localPath := filepath.Join(d.dir, d.name)
	absPath, err := filepath.Abs(localPath)
	if err != nil {
		panic(fmt.Sprintf("failed to get absolute path to %s: %v", localPath, err))
	}
	return absPath
}

var _ File = (*DiskFile)(nil)
