// Package objectstore provides the object storage primitives the sync engine
// is built on. Every operation is best-effort: failures are logged and
// reported as false or as a short count, never returned as errors, so callers
// must check results explicitly.
package objectstore

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/filex"
)

// Store is a flat key space of files, such as an S3 bucket.
type Store interface {
	// Enabled reports whether the store is configured and reachable. A
	// disabled store fails every other call.
	Enabled() bool

	Exists(ctx context.Context, key string) bool
	// Stat is Exists for callers that must tell a missing object from a
	// failed check: (false, nil) means the object is confirmed absent.
	Stat(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, localPath, key string) bool
	Get(ctx context.Context, key, localPath string) bool
	Delete(ctx context.Context, key string) bool

	// PutDir uploads every file below localDir under prefix and returns the
	// number of files copied. A failed file does not stop the others.
	PutDir(ctx context.Context, localDir, prefix string) int
	// GetDir downloads every object below prefix into localDir.
	GetDir(ctx context.Context, prefix, localDir string) int
	// DeletePrefix removes every object below prefix.
	DeletePrefix(ctx context.Context, prefix string) int
}

// Disabled is the Store used when sync is not configured.
type Disabled struct{}

func (Disabled) Enabled() bool                              { return false }
func (Disabled) Exists(context.Context, string) bool        { return false }
func (Disabled) Put(context.Context, string, string) bool   { return false }
func (Disabled) Get(context.Context, string, string) bool   { return false }
func (Disabled) Delete(context.Context, string) bool        { return false }
func (Disabled) PutDir(context.Context, string, string) int { return 0 }
func (Disabled) GetDir(context.Context, string, string) int { return 0 }
func (Disabled) DeletePrefix(context.Context, string) int   { return 0 }

func (Disabled) Stat(context.Context, string) (bool, error) {
	return false, common.ErrSyncDisabled
}

// joinKey appends a slash-separated relative path to prefix.
func joinKey(prefix, rel string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

// relKey returns key with prefix stripped, or "" for keys that denote
// directory markers, lie outside prefix or would leave the target directory
// once joined to it.
func relKey(prefix, key string) string {
	if !strings.HasPrefix(key, prefix) || strings.HasSuffix(key, "/") {
		return ""
	}
	rel := strings.TrimLeft(key[len(prefix):], "/")
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return ""
	}
	return rel
}

// writeStream copies r into localPath through a temp file in the same
// directory.
func writeStream(localPath string, r io.Reader) (err error) {
	dir := filepath.Dir(localPath)
	if err := filex.EnsureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+".*.part")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), localPath)
}
