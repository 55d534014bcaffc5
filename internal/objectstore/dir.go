package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/projsync/internal/filex"
	"github.com/dmitrijs2005/projsync/internal/logging"
)

// DirStore keeps objects as files below Root, for a shared mount or a team
// directory standing in for a bucket.
type DirStore struct {
	root   string
	logger logging.Logger
}

func NewDirStore(root string, logger logging.Logger) (*DirStore, error) {
	if root == "" {
		return nil, errors.New("store directory is not set")
	}
	if err := filex.EnsureDir(root); err != nil {
		return nil, err
	}
	return &DirStore{root: filepath.Clean(root), logger: logger}, nil
}

// path maps key to a file below root. Keys that would escape root are
// rejected.
func (d *DirStore) path(key string) (string, bool) {
	rel := filepath.FromSlash(strings.TrimPrefix(key, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.Join(d.root, rel), true
}

func (d *DirStore) Enabled() bool {
	return d != nil && d.root != ""
}

func (d *DirStore) Exists(ctx context.Context, key string) bool {
	ok, _ := d.Stat(ctx, key)
	return ok
}

func (d *DirStore) Stat(_ context.Context, key string) (bool, error) {
	p, ok := d.path(key)
	if !ok {
		return false, fmt.Errorf("invalid key %q", key)
	}
	fi, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

func (d *DirStore) Put(ctx context.Context, localPath, key string) bool {
	p, ok := d.path(key)
	if !ok {
		d.logger.Warn(ctx, "invalid key", "key", key)
		return false
	}
	if err := filex.CopyFile(localPath, p); err != nil {
		d.logger.Warn(ctx, "upload failed", "key", key, "path", localPath, "error", err)
		return false
	}
	return true
}

func (d *DirStore) Get(ctx context.Context, key, localPath string) bool {
	p, ok := d.path(key)
	if !ok {
		d.logger.Warn(ctx, "invalid key", "key", key)
		return false
	}
	f, err := os.Open(p)
	if err != nil {
		d.logger.Warn(ctx, "download failed", "key", key, "error", err)
		return false
	}
	defer f.Close()

	if err := writeStream(localPath, f); err != nil {
		d.logger.Warn(ctx, "download write failed", "key", key, "path", localPath, "error", err)
		return false
	}
	return true
}

func (d *DirStore) Delete(ctx context.Context, key string) bool {
	p, ok := d.path(key)
	if !ok {
		return false
	}
	if err := os.Remove(p); err != nil {
		d.logger.Warn(ctx, "delete failed", "key", key, "error", err)
		return false
	}
	return true
}

func (d *DirStore) PutDir(ctx context.Context, localDir, prefix string) int {
	files, err := filex.ListFiles(localDir)
	if err != nil {
		d.logger.Warn(ctx, "directory walk failed", "path", localDir, "error", err)
	}
	n := 0
	for _, rel := range files {
		if d.Put(ctx, filepath.Join(localDir, filepath.FromSlash(rel)), joinKey(prefix, rel)) {
			n++
		}
	}
	return n
}

// keys lists object keys under prefix. Prefixes select whole directories.
func (d *DirStore) keys(ctx context.Context, prefix string) []string {
	dir, ok := d.path(prefix)
	if !ok {
		return nil
	}
	files, err := filex.ListFiles(dir)
	if err != nil {
		d.logger.Warn(ctx, "listing failed", "prefix", prefix, "error", err)
	}
	keys := make([]string, 0, len(files))
	for _, rel := range files {
		keys = append(keys, joinKey(prefix, rel))
	}
	return keys
}

func (d *DirStore) GetDir(ctx context.Context, prefix, localDir string) int {
	n := 0
	for _, key := range d.keys(ctx, prefix) {
		rel := relKey(prefix, key)
		if rel == "" {
			continue
		}
		if d.Get(ctx, key, filepath.Join(localDir, filepath.FromSlash(rel))) {
			n++
		}
	}
	return n
}

func (d *DirStore) DeletePrefix(ctx context.Context, prefix string) int {
	n := 0
	for _, key := range d.keys(ctx, prefix) {
		if d.Delete(ctx, key) {
			n++
		}
	}
	if dir, ok := d.path(prefix); ok && n > 0 {
		_ = os.RemoveAll(dir)
	}
	return n
}
