package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/projsync/internal/filex"
	"github.com/dmitrijs2005/projsync/internal/logging"
	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/objectstore"
	"github.com/dmitrijs2005/projsync/internal/paths"
	"github.com/dmitrijs2005/projsync/internal/project"
	"github.com/dmitrijs2005/projsync/internal/registry"
)

// countingStore counts project data transfers. Registry reads and writes
// are not counted.
type countingStore struct {
	objectstore.Store
	mu      sync.Mutex
	puts    int
	gets    int
	failPut map[string]bool
	failGet map[string]bool
	// failStat fails that many registry existence checks.
	failStat int
	onPut    func(key string)
}

func (c *countingStore) Stat(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	fail := key == paths.RegistryKey && c.failStat > 0
	if fail {
		c.failStat--
	}
	c.mu.Unlock()
	if fail {
		return false, errors.New("503 slow down")
	}
	return c.Store.Stat(ctx, key)
}

func (c *countingStore) Put(ctx context.Context, localPath, key string) bool {
	if c.failPut[key] {
		return false
	}
	ok := c.Store.Put(ctx, localPath, key)
	if ok && c.onPut != nil {
		c.onPut(key)
	}
	if ok && key != paths.RegistryKey {
		c.mu.Lock()
		c.puts++
		c.mu.Unlock()
	}
	return ok
}

func (c *countingStore) Get(ctx context.Context, key, localPath string) bool {
	if c.failGet[key] {
		return false
	}
	ok := c.Store.Get(ctx, key, localPath)
	if ok && key != paths.RegistryKey {
		c.mu.Lock()
		c.gets++
		c.mu.Unlock()
	}
	return ok
}

func (c *countingStore) PutDir(ctx context.Context, localDir, prefix string) int {
	n := c.Store.PutDir(ctx, localDir, prefix)
	c.mu.Lock()
	c.puts += n
	c.mu.Unlock()
	return n
}

func (c *countingStore) GetDir(ctx context.Context, prefix, localDir string) int {
	n := c.Store.GetDir(ctx, prefix, localDir)
	c.mu.Lock()
	c.gets += n
	c.mu.Unlock()
	return n
}

func (c *countingStore) reset() {
	c.mu.Lock()
	c.puts, c.gets = 0, 0
	c.mu.Unlock()
}

type fakeJournal struct {
	events []models.SyncEvent
	err    error
}

func (j *fakeJournal) Record(_ context.Context, events []models.SyncEvent) error {
	j.events = append(j.events, events...)
	return j.err
}

type env struct {
	t       *testing.T
	bucket  string
	store   *countingStore
	clock   int64
	ids     []string
	journal *fakeJournal
}

func newEnv(t *testing.T) *env {
	t.Helper()
	bucket := filepath.Join(t.TempDir(), "bucket")
	ds, err := objectstore.NewDirStore(bucket, logging.NewNop())
	require.NoError(t, err)
	return &env{
		t:       t,
		bucket:  bucket,
		store:   &countingStore{Store: ds, failPut: map[string]bool{}, failGet: map[string]bool{}},
		clock:   1000,
		journal: &fakeJournal{},
	}
}

// replica is one machine's results root wired to the shared bucket.
type replica struct {
	root   string
	layout paths.Layout
	reg    *registry.Store
	repo   *project.Repository
	engine *Engine
}

func (e *env) replica() *replica {
	e.t.Helper()
	root := filepath.Join(e.t.TempDir(), "scan_results")
	layout := paths.NewLayout(root)
	reg := registry.NewStore(e.store, layout, logging.NewNop())
	repo := project.NewRepository(layout)
	engine := New(e.store, reg, repo, logging.NewNop(),
		WithClock(func() int64 { return e.clock }),
		WithIDGenerator(func() string {
			id := e.ids[0]
			e.ids = e.ids[1:]
			return id
		}),
		WithJournal(e.journal),
	)
	return &replica{root: root, layout: layout, reg: reg, repo: repo, engine: engine}
}

func host(id int, ip string, ports ...int) models.Host {
	h := models.Host{HostID: id, IP: ip, Services: []models.Service{}, Findings: []string{}, Assets: []int{}}
	for _, p := range ports {
		h.Services = append(h.Services, models.Service{Port: p, Protocol: "tcp"})
	}
	return h
}

func record(id, name string, hosts ...models.Host) *models.Project {
	if hosts == nil {
		hosts = []models.Host{}
	}
	return &models.Project{ID: id, Name: name, CloudSync: true, Hosts: hosts, Assets: []models.Asset{}}
}

// addLocal writes a project record, one evidence file and a local registry
// entry.
func (r *replica) addLocal(t *testing.T, p *models.Project, ts int64) {
	t.Helper()
	require.NoError(t, r.repo.Save(p))
	require.NoError(t, r.repo.SaveFindings(p.ID, []models.Finding{}))
	ev := filepath.Join(r.layout.EvidenceDir(p.ID), "scan", "out.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(ev), 0o770))
	require.NoError(t, os.WriteFile(ev, []byte(p.Name), 0o600))

	reg, err := r.reg.LoadLocal()
	require.NoError(t, err)
	reg.Upsert(models.RegistryEntry{ID: p.ID, Name: p.Name, UpdatedTS: ts, CloudSync: p.CloudSync})
	require.NoError(t, r.reg.SaveLocal(reg))
}

func (r *replica) localEntry(t *testing.T, id string) (models.RegistryEntry, bool) {
	t.Helper()
	reg, err := r.reg.LoadLocal()
	require.NoError(t, err)
	e, ok := reg.Find(id)
	if !ok {
		return models.RegistryEntry{}, false
	}
	return *e, true
}

// addRemote writes a project record and findings into the bucket and upserts
// the remote registry entry.
func (e *env) addRemote(p *models.Project, findings []models.Finding, entry models.RegistryEntry) {
	e.t.Helper()
	require.NoError(e.t, filex.WriteJSON(filepath.Join(e.bucket, paths.ProjectKey(p.ID)), p))
	if findings != nil {
		require.NoError(e.t, filex.WriteJSON(filepath.Join(e.bucket, paths.FindingsKey(p.ID)), findings))
	}
	reg := e.remoteRegistryOrEmpty()
	reg.Upsert(entry)
	e.writeRemoteRegistry(reg)
}

func (e *env) writeRemoteRegistry(reg *models.Registry) {
	e.t.Helper()
	require.NoError(e.t, filex.WriteJSON(filepath.Join(e.bucket, paths.RegistryKey), reg))
}

func (e *env) remoteRegistryOrEmpty() *models.Registry {
	e.t.Helper()
	reg := models.NewRegistry()
	path := filepath.Join(e.bucket, paths.RegistryKey)
	if !filex.Exists(path) {
		return reg
	}
	require.NoError(e.t, filex.ReadJSON(path, reg))
	return reg
}

func (e *env) remoteEntry(id string) (models.RegistryEntry, bool) {
	e.t.Helper()
	en, ok := e.remoteRegistryOrEmpty().Find(id)
	if !ok {
		return models.RegistryEntry{}, false
	}
	return *en, true
}

func (e *env) remoteRecord(id string) *models.Project {
	e.t.Helper()
	p, err := project.ReadRecord(filepath.Join(e.bucket, paths.ProjectKey(id)))
	require.NoError(e.t, err)
	return p
}

func (e *env) remoteHas(key string) bool {
	return filex.Exists(filepath.Join(e.bucket, filepath.FromSlash(key)))
}

func writeRaw(path, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(data), 0o600)
}
