// Package storage defines the FileStore interface used to publish and
// fetch trained model artifacts. A store is either a local directory or a
// prefix in an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// FileStore holds the files of published artifacts. Paths are
// forward-slash separated and relative to the store root.
type FileStore interface {
	// Read opens the named file. A missing file yields an error wrapping
	// os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. The file becomes visible
	// under path only after a successful Close; writers that also have an
	// Abort method discard the data instead.
	Write(ctx context.Context, path string) (io.WriteCloser, error)
}

// Open returns the store for uri:
//
//	s3://bucket/prefix   S3Store, client built from cfg
//	file:///dir, dir     Local
func Open(uri string, cfg S3Config) (FileStore, error) {
	if !strings.Contains(uri, "://") {
		return NewLocal(uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	switch u.Scheme {
	case "file":
		return NewLocal(u.Path)
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("storage: %q has no bucket", uri)
		}
		return NewS3(NewS3Client(cfg), u.Host, strings.Trim(u.Path, "/")), nil
	}
	return nil, fmt.Errorf("storage: unsupported scheme %q", u.Scheme)
}

// IsRemote reports whether uri names a store Open reaches over the network.
func IsRemote(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}
