package syncer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/merge"
	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/paths"
	"github.com/dmitrijs2005/projsync/internal/project"
)

// PushResult is the outcome of Push plus the merge statistics when the
// remote copy had to be merged first.
type PushResult struct {
	Outcome
	Merged bool
	Stats  merge.Stats
}

// Push uploads the named project. When the remote entry is newer than the
// local one, the remote record is merged into the local files first and the
// merged copy becomes the new remote version, stamped newer than both.
func (e *Engine) Push(ctx context.Context, name string) (*PushResult, error) {
	if err := e.checkEnabled(); err != nil {
		return nil, err
	}

	local, err := e.registry.LoadLocal()
	if err != nil {
		return nil, err
	}
	lp, ok := local.FindByName(name)
	if !ok {
		return nil, fmt.Errorf("project %q: %w", name, common.ErrProjectNotFound)
	}
	entry := *lp
	if !entry.CloudSync {
		return nil, fmt.Errorf("project %q: %w", name, common.ErrCloudSyncOff)
	}

	res := &PushResult{Outcome: Outcome{ProjectID: entry.ID, Name: entry.Name, LocalTS: entry.UpdatedTS}}

	remote, err := e.registry.DownloadOrEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("error downloading registry: %w", err)
	}

	if r, ok := remote.Find(entry.ID); ok {
		res.RemoteTS = r.UpdatedTS
		switch {
		case r.Deleted:
			return e.pushDeleted(ctx, res, entry, r)

		case r.Name != entry.Name:
			res.Action = ActionNameConflict
			res.Conflict = &Conflict{Kind: ConflictName, ProjectID: entry.ID, LocalName: entry.Name, RemoteName: r.Name}
			res.Err = fmt.Errorf("%s: %w", res.Conflict.String(), common.ErrNameConflict)
			e.record(ctx, OpPush, res.Outcome)
			return res, res.Err

		case r.UpdatedTS > entry.UpdatedTS:
			stats, n, err := e.mergeRemote(ctx, entry.ID)
			res.Files += n
			if err != nil {
				return e.pushFailed(ctx, res, fmt.Errorf("error merging remote copy: %w", err))
			}
			res.Merged, res.Stats = true, stats
			entry.UpdatedTS = max(e.now(), r.UpdatedTS+1)
		}
	}

	n, err := e.uploadProject(ctx, entry.ID)
	res.Files += n
	if err != nil {
		return e.pushFailed(ctx, res, err)
	}

	fresh, err := e.registry.DownloadOrEmpty(ctx)
	if err != nil {
		return e.pushFailed(ctx, res, fmt.Errorf("error refreshing registry: %w", err))
	}
	// Another replica may have tombstoned the project while it was uploading.
	if cur, ok := fresh.Find(entry.ID); ok && cur.Deleted {
		res.RemoteTS = cur.UpdatedTS
		return e.pushDeleted(ctx, res, entry, cur)
	}
	fresh.Upsert(entry)
	if err := e.registry.Upload(ctx, fresh); err != nil {
		return e.pushFailed(ctx, res, err)
	}

	local.Upsert(entry)
	if err := e.registry.SaveLocal(local); err != nil {
		return e.pushFailed(ctx, res, err)
	}

	res.Action = ActionUploaded
	if res.Merged {
		res.Action = ActionMerged
		res.Detail = fmt.Sprintf("hosts +%d, services +%d, findings +%d",
			res.Stats.HostsAdded, res.Stats.ServicesAdded, res.Stats.FindingsFromLocal)
	}
	res.LocalTS, res.RemoteTS = entry.UpdatedTS, entry.UpdatedTS
	e.record(ctx, OpPush, res.Outcome)
	return res, nil
}

func (e *Engine) pushDeleted(ctx context.Context, res *PushResult, entry models.RegistryEntry, r *models.RegistryEntry) (*PushResult, error) {
	res.Action = ActionDeletedConflict
	res.Conflict = &Conflict{
		Kind: ConflictDeleted, ProjectID: entry.ID, LocalName: entry.Name, RemoteName: r.Name,
		Options: []Resolution{ResolveDeleteLocal, ResolveMigrate},
	}
	e.record(ctx, OpPush, res.Outcome)
	return res, fmt.Errorf("%s: %w", res.Conflict.String(), common.ErrDeletedConflict)
}

func (e *Engine) pushFailed(ctx context.Context, res *PushResult, err error) (*PushResult, error) {
	res.Action, res.Err = ActionFailed, err
	e.record(ctx, OpPush, res.Outcome)
	return res, err
}

// mergeRemote fetches the remote record and findings into a scratch
// directory, pulls the remote evidence next to the local one, merges and
// saves the result as the local copy.
func (e *Engine) mergeRemote(ctx context.Context, id string) (merge.Stats, int, error) {
	if err := checkID(id); err != nil {
		return merge.Stats{}, 0, err
	}
	dir, cleanup, err := e.scratchDir(".merge-*")
	if err != nil {
		return merge.Stats{}, 0, err
	}
	defer cleanup()

	n := 0
	recPath := filepath.Join(dir, paths.ProjectKey(id))
	if !e.objects.Get(ctx, paths.ProjectKey(id), recPath) {
		return merge.Stats{}, n, fmt.Errorf("error downloading %s: %w", paths.ProjectKey(id), common.ErrTransfer)
	}
	n++

	findingsPath := filepath.Join(dir, paths.FindingsKey(id))
	found, err := e.objects.Stat(ctx, paths.FindingsKey(id))
	if err != nil {
		return merge.Stats{}, n, fmt.Errorf("error checking %s: %w: %w", paths.FindingsKey(id), common.ErrTransfer, err)
	}
	if found {
		if !e.objects.Get(ctx, paths.FindingsKey(id), findingsPath) {
			return merge.Stats{}, n, fmt.Errorf("error downloading %s: %w", paths.FindingsKey(id), common.ErrTransfer)
		}
		n++
	}

	remoteRec, err := project.ReadRecord(recPath)
	if err != nil {
		return merge.Stats{}, n, err
	}
	remoteFindings, err := project.ReadFindings(findingsPath)
	if err != nil {
		return merge.Stats{}, n, err
	}
	localRec, err := e.projects.Load(id)
	if err != nil {
		return merge.Stats{}, n, err
	}
	localFindings, err := e.projects.LoadFindings(id)
	if err != nil {
		return merge.Stats{}, n, err
	}

	n += e.objects.GetDir(ctx, paths.EvidencePrefix(id), e.layout().EvidenceDir(id))

	res := merge.Projects(localRec, remoteRec, localFindings, remoteFindings)
	res.Project.ModifiedTS = max(res.Project.ModifiedTS, e.now())

	if err := e.projects.Save(res.Project); err != nil {
		return res.Stats, n, err
	}
	if err := e.projects.SaveFindings(id, res.Findings); err != nil {
		return res.Stats, n, err
	}

	e.logger.Info(ctx, "merged remote copy", "project_id", id,
		"hosts_added", res.Stats.HostsAdded, "services_added", res.Stats.ServicesAdded,
		"findings_added", res.Stats.FindingsFromLocal)
	return res.Stats, n, nil
}

// Register records a saved project in the local registry and, when it is
// cloud-synced and sync is enabled, publishes the entry remotely.
func (e *Engine) Register(ctx context.Context, p *models.Project) (models.RegistryEntry, error) {
	entry := p.Entry(e.now())
	if err := e.projects.Save(p); err != nil {
		return entry, err
	}
	return entry, e.registry.Register(ctx, entry)
}
