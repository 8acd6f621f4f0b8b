// Package fileu reads and writes whole files addressed by location strings.
package fileu

import (
	"fmt"
	"io"
	"strings"

	"github.com/happut/incubator-paimon/storage"
)

// ReadFile reads the file at a location like /var/lib/app/state.json,
// s3://bucket/path/state.json or memory://scratch/state.json. A missing
// file reports storage.ErrNotFound.
func ReadFile(location string) ([]byte, error) {
	fs, name, err := open(location)
	if err != nil {
		return nil, err
	}

	file := fs.Open(name)
	size := file.Size()
	if size == 0 {
		// A zero size is either an empty file or a missing one. A one byte
		// read tells them apart.
		if _, err := file.ReadAt(make([]byte, 1), 0); err != io.EOF {
			return nil, err
		}
		return nil, nil
	}

	data := make([]byte, size)
	if _, err := file.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}

// WriteFile replaces the file at location with data. Local writes stage a
// temp file and rename it so readers never see a partial file.
func WriteFile(location string, data []byte) error {
	fs, name, err := open(location)
	if err != nil {
		return err
	}

	file := fs.New(name)
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", location, err)
	}
	return file.Save()
}

func open(location string) (storage.FileSystem, string, error) {
	dir, name := splitLocation(location)
	if name == "" {
		return nil, "", fmt.Errorf("location %q has no file name", location)
	}
	fs, err := storage.NewFileSystemFromLocation(dir)
	if err != nil {
		return nil, "", err
	}
	return fs, name, nil
}

// splitLocation cuts a location into its directory and file name, keeping
// any scheme prefix with the directory.
func splitLocation(location string) (dir, name string) {
	rest := location
	scheme := ""
	if i := strings.Index(location, "://"); i >= 0 {
		scheme, rest = location[:i+3], location[i+3:]
	}

	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		if scheme == "" {
			return ".", rest
		}
		return scheme + rest, ""
	}
	return scheme + rest[:idx], rest[idx+1:]
}
