// Package registry reads and writes projects.json, both the copy kept in the
// object store and the one under the local results root.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/filex"
	"github.com/dmitrijs2005/projsync/internal/logging"
	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/objectstore"
	"github.com/dmitrijs2005/projsync/internal/paths"
)

// Store moves the registry document between the local root and the object
// store. The remote copy has no locking: every writer must download it right
// before changing and uploading it.
type Store struct {
	objects objectstore.Store
	layout  paths.Layout
	logger  logging.Logger
}

func NewStore(objects objectstore.Store, layout paths.Layout, logger logging.Logger) *Store {
	return &Store{objects: objects, layout: layout, logger: logger}
}

// scratch returns a temp file path under the results root.
func (s *Store) scratch(pattern string) (string, func(), error) {
	if err := filex.EnsureDir(s.layout.Root); err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp(s.layout.Root, pattern)
	if err != nil {
		return "", nil, err
	}
	name := f.Name()
	_ = f.Close()
	return name, func() { _ = os.Remove(name) }, nil
}

// Download fetches the remote registry. It returns common.ErrNoRegistry only
// when the store confirms projects.json is absent; a failed check is a
// common.ErrTransfer so that callers never mistake it for an empty bucket.
func (s *Store) Download(ctx context.Context) (*models.Registry, error) {
	if !s.objects.Enabled() {
		return nil, common.ErrSyncDisabled
	}
	found, err := s.objects.Stat(ctx, paths.RegistryKey)
	if err != nil {
		return nil, fmt.Errorf("error checking registry: %w: %w", common.ErrTransfer, err)
	}
	if !found {
		return nil, common.ErrNoRegistry
	}

	tmp, cleanup, err := s.scratch(".projects_remote_*.json")
	if err != nil {
		return nil, fmt.Errorf("error preparing registry download: %w", err)
	}
	defer cleanup()

	if !s.objects.Get(ctx, paths.RegistryKey, tmp) {
		return nil, fmt.Errorf("error downloading registry: %w", common.ErrTransfer)
	}

	reg := models.NewRegistry()
	if err := filex.ReadJSON(tmp, reg); err != nil {
		return nil, fmt.Errorf("error parsing remote registry: %w", err)
	}
	if reg.Projects == nil {
		reg.Projects = []models.RegistryEntry{}
	}
	return reg, nil
}

// DownloadOrEmpty is Download with a missing registry treated as empty.
func (s *Store) DownloadOrEmpty(ctx context.Context) (*models.Registry, error) {
	reg, err := s.Download(ctx)
	if errors.Is(err, common.ErrNoRegistry) {
		return models.NewRegistry(), nil
	}
	return reg, err
}

// Upload writes reg to the object store, newest entries first.
func (s *Store) Upload(ctx context.Context, reg *models.Registry) error {
	if !s.objects.Enabled() {
		return common.ErrSyncDisabled
	}

	tmp, cleanup, err := s.scratch(".projects_upload_*.json")
	if err != nil {
		return fmt.Errorf("error preparing registry upload: %w", err)
	}
	defer cleanup()

	reg.SortNewestFirst()
	if err := filex.WriteJSON(tmp, reg); err != nil {
		return fmt.Errorf("error encoding registry: %w", err)
	}
	if !s.objects.Put(ctx, tmp, paths.RegistryKey) {
		return fmt.Errorf("error uploading registry: %w", common.ErrTransfer)
	}
	s.logger.Debug(ctx, "registry uploaded", "projects", len(reg.Projects))
	return nil
}

// LoadLocal reads the local registry; a missing file is an empty registry.
func (s *Store) LoadLocal() (*models.Registry, error) {
	reg := models.NewRegistry()
	err := filex.ReadJSON(s.layout.RegistryPath(), reg)
	if errors.Is(err, fs.ErrNotExist) {
		return models.NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading local registry: %w", err)
	}
	if reg.Projects == nil {
		reg.Projects = []models.RegistryEntry{}
	}
	return reg, nil
}

func (s *Store) SaveLocal(reg *models.Registry) error {
	reg.SortNewestFirst()
	if err := filex.WriteJSON(s.layout.RegistryPath(), reg); err != nil {
		return fmt.Errorf("error saving local registry: %w", err)
	}
	return nil
}

// MarkDeleted tombstones id in the remote registry. It reports false, with a
// warning, when the entry does not exist.
func (s *Store) MarkDeleted(ctx context.Context, id string) (bool, error) {
	reg, err := s.Download(ctx)
	if err != nil {
		return false, err
	}

	e, ok := reg.Find(id)
	if !ok {
		s.logger.Warn(ctx, "project not in remote registry, nothing to mark", "project_id", id)
		return false, nil
	}
	e.Deleted = true

	if err := s.Upload(ctx, reg); err != nil {
		return false, err
	}
	s.logger.Info(ctx, "project marked deleted", "project_id", id, "name", e.Name)
	return true, nil
}

// Register records entry in the local registry. For cloud-synced projects
// and an enabled store it also publishes the entry to the remote registry.
func (s *Store) Register(ctx context.Context, entry models.RegistryEntry) error {
	local, err := s.LoadLocal()
	if err != nil {
		return err
	}
	local.Upsert(entry)
	if err := s.SaveLocal(local); err != nil {
		return err
	}

	if !entry.CloudSync || !s.objects.Enabled() {
		return nil
	}

	remote, err := s.DownloadOrEmpty(ctx)
	if err != nil {
		return err
	}
	if cur, ok := remote.Find(entry.ID); ok && cur.Deleted {
		return fmt.Errorf("error publishing %s: %w", entry.ID, common.ErrProjectDeleted)
	}
	remote.Upsert(entry)
	return s.Upload(ctx, remote)
}
