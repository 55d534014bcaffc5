package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/filex"
	"github.com/dmitrijs2005/projsync/internal/logging"
	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/objectstore"
	"github.com/dmitrijs2005/projsync/internal/paths"
)

type fixture struct {
	store  *Store
	root   string
	bucket string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "results")
	bucket := filepath.Join(base, "bucket")

	objects, err := objectstore.NewDirStore(bucket, logging.NewNop())
	require.NoError(t, err)

	return fixture{
		store:  NewStore(objects, paths.NewLayout(root), logging.NewNop()),
		root:   root,
		bucket: bucket,
	}
}

func (f fixture) seedRemote(t *testing.T, reg *models.Registry) {
	t.Helper()
	require.NoError(t, filex.WriteJSON(filepath.Join(f.bucket, paths.RegistryKey), reg))
}

func (f fixture) readRemote(t *testing.T) *models.Registry {
	t.Helper()
	reg := models.NewRegistry()
	require.NoError(t, filex.ReadJSON(filepath.Join(f.bucket, paths.RegistryKey), reg))
	return reg
}

// failingStore is enabled but every transfer fails.
type failingStore struct {
	objectstore.Disabled
	exists  bool
	statErr error
}

func (s failingStore) Enabled() bool                       { return true }
func (s failingStore) Exists(context.Context, string) bool { return s.exists }
func (s failingStore) Stat(context.Context, string) (bool, error) {
	return s.exists && s.statErr == nil, s.statErr
}

// flakyStat fails the registry existence check while remaining > 0.
type flakyStat struct {
	objectstore.Store
	remaining int
	puts      int
}

func (s *flakyStat) Stat(ctx context.Context, key string) (bool, error) {
	if key == paths.RegistryKey && s.remaining > 0 {
		s.remaining--
		return false, errors.New("503 slow down")
	}
	return s.Store.Stat(ctx, key)
}

func (s *flakyStat) Put(ctx context.Context, localPath, key string) bool {
	s.puts++
	return s.Store.Put(ctx, localPath, key)
}

func TestDownload_NoRegistry(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Download(context.Background())
	require.ErrorIs(t, err, common.ErrNoRegistry)

	reg, err := f.store.DownloadOrEmpty(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reg.Projects)
}

func TestDownload_ParsesAndCleansUp(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t, &models.Registry{Projects: []models.RegistryEntry{
		{ID: "P1", Name: "Acme", UpdatedTS: 200, CloudSync: true},
	}})

	reg, err := f.store.Download(context.Background())
	require.NoError(t, err)
	require.Len(t, reg.Projects, 1)
	assert.Equal(t, int64(200), reg.Projects[0].UpdatedTS)

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp download must be removed")
}

func TestDownload_Errors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.bucket, 0o770))
	require.NoError(t, os.WriteFile(filepath.Join(f.bucket, paths.RegistryKey), []byte("{oops"), 0o600))

	_, err := f.store.Download(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing remote registry:")

	broken := NewStore(failingStore{exists: true}, paths.NewLayout(t.TempDir()), logging.NewNop())
	_, err = broken.Download(context.Background())
	require.ErrorIs(t, err, common.ErrTransfer)

	disabled := NewStore(objectstore.Disabled{}, paths.NewLayout(t.TempDir()), logging.NewNop())
	_, err = disabled.Download(context.Background())
	require.ErrorIs(t, err, common.ErrSyncDisabled)
	require.ErrorIs(t, disabled.Upload(context.Background(), models.NewRegistry()), common.ErrSyncDisabled)
}

func TestDownload_FailedCheckIsNotMissing(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t, &models.Registry{Projects: []models.RegistryEntry{
		{ID: "P1", Name: "Acme", UpdatedTS: 200, Deleted: true},
		{ID: "P2", Name: "Globex", UpdatedTS: 150},
	}})
	objects, err := objectstore.NewDirStore(f.bucket, logging.NewNop())
	require.NoError(t, err)
	flaky := &flakyStat{Store: objects, remaining: 2}
	s := NewStore(flaky, paths.NewLayout(f.root), logging.NewNop())
	ctx := context.Background()

	_, err = s.Download(ctx)
	require.ErrorIs(t, err, common.ErrTransfer)
	assert.NotErrorIs(t, err, common.ErrNoRegistry)

	_, err = s.DownloadOrEmpty(ctx)
	require.ErrorIs(t, err, common.ErrTransfer)

	err = s.Register(ctx, models.RegistryEntry{ID: "P3", Name: "Initech", UpdatedTS: 300, CloudSync: true})
	require.NoError(t, err, "check has recovered")
	assert.Equal(t, 1, flaky.puts)

	got := f.readRemote(t)
	require.Len(t, got.Projects, 3)
	p1, ok := got.Find("P1")
	require.True(t, ok)
	assert.True(t, p1.Deleted)
}

func TestRegister_StopsOnFailedRegistryCheck(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t, &models.Registry{Projects: []models.RegistryEntry{
		{ID: "P2", Name: "Globex", UpdatedTS: 150},
	}})
	objects, err := objectstore.NewDirStore(f.bucket, logging.NewNop())
	require.NoError(t, err)
	flaky := &flakyStat{Store: objects, remaining: 1}
	s := NewStore(flaky, paths.NewLayout(f.root), logging.NewNop())

	err = s.Register(context.Background(), models.RegistryEntry{ID: "P3", Name: "Initech", UpdatedTS: 300, CloudSync: true})
	require.ErrorIs(t, err, common.ErrTransfer)
	assert.Zero(t, flaky.puts)

	got := f.readRemote(t)
	require.Len(t, got.Projects, 1)
	assert.Equal(t, "P2", got.Projects[0].ID)

	local, err := s.LoadLocal()
	require.NoError(t, err)
	_, ok := local.Find("P3")
	assert.True(t, ok, "local registry still records the save")
}

func TestUpload_SortsNewestFirst(t *testing.T) {
	f := newFixture(t)

	reg := &models.Registry{Projects: []models.RegistryEntry{
		{ID: "P1", Name: "Old", UpdatedTS: 100},
		{ID: "P2", Name: "New", UpdatedTS: 300},
	}}
	require.NoError(t, f.store.Upload(context.Background(), reg))

	got := f.readRemote(t)
	require.Len(t, got.Projects, 2)
	assert.Equal(t, "P2", got.Projects[0].ID)

	broken := NewStore(failingStore{}, paths.NewLayout(t.TempDir()), logging.NewNop())
	require.ErrorIs(t, broken.Upload(context.Background(), reg), common.ErrTransfer)
}

func TestLocal_LoadMissingAndRoundTrip(t *testing.T) {
	f := newFixture(t)

	reg, err := f.store.LoadLocal()
	require.NoError(t, err)
	assert.Empty(t, reg.Projects)

	reg.Upsert(models.RegistryEntry{ID: "P1", Name: "Acme", UpdatedTS: 1})
	require.NoError(t, f.store.SaveLocal(reg))

	again, err := f.store.LoadLocal()
	require.NoError(t, err)
	assert.Equal(t, reg.Projects, again.Projects)

	require.NoError(t, os.WriteFile(filepath.Join(f.root, paths.RegistryKey), []byte("nope"), 0o600))
	_, err = f.store.LoadLocal()
	require.Error(t, err)
}

func TestMarkDeleted(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t, &models.Registry{Projects: []models.RegistryEntry{
		{ID: "P1", Name: "Acme", UpdatedTS: 100, CloudSync: true},
		{ID: "P2", Name: "Globex", UpdatedTS: 100, CloudSync: true},
	}})
	ctx := context.Background()

	ok, err := f.store.MarkDeleted(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, ok)

	got := f.readRemote(t)
	e, found := got.Find("P1")
	require.True(t, found, "tombstoned entries stay in the document")
	assert.True(t, e.Deleted)
	e2, _ := got.Find("P2")
	assert.False(t, e2.Deleted)

	ok, err = f.store.MarkDeleted(ctx, "P404")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkDeleted_NoRegistry(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.MarkDeleted(context.Background(), "P1")
	require.ErrorIs(t, err, common.ErrNoRegistry)
}

func TestRegister_PublishesCloudProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Register(ctx, models.RegistryEntry{ID: "P1", Name: "Acme", UpdatedTS: 10, CloudSync: true}))
	require.NoError(t, f.store.Register(ctx, models.RegistryEntry{ID: "L1", Name: "Local", UpdatedTS: 20}))

	local, err := f.store.LoadLocal()
	require.NoError(t, err)
	assert.Len(t, local.Projects, 2)

	remote := f.readRemote(t)
	require.Len(t, remote.Projects, 1)
	assert.Equal(t, "P1", remote.Projects[0].ID)
}

func TestRegister_RefusesTombstonedID(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t, &models.Registry{Projects: []models.RegistryEntry{
		{ID: "P1", Name: "Acme", UpdatedTS: 100, CloudSync: true, Deleted: true},
	}})

	err := f.store.Register(context.Background(), models.RegistryEntry{ID: "P1", Name: "Acme", UpdatedTS: 200, CloudSync: true})
	require.ErrorIs(t, err, common.ErrProjectDeleted)

	e, _ := f.readRemote(t).Find("P1")
	assert.True(t, e.Deleted)
}
