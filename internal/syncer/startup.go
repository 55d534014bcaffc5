package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/models"
)

// SyncAtStartup reconciles the local and remote registries. With a
// non-empty active name only that project is considered.
//
// Newer timestamps win wholesale and the older side's entry is advanced to
// match. Remote tombstones are never resurrected. Entries changed on the
// remote side are uploaded once, at the end of the pass, on top of a freshly
// downloaded registry.
func (e *Engine) SyncAtStartup(ctx context.Context, active string) (*Report, error) {
	if err := e.checkEnabled(); err != nil {
		return nil, err
	}
	rep := &Report{Operation: OpStartup}

	local, err := e.registry.LoadLocal()
	if err != nil {
		return nil, err
	}
	remote, err := e.registry.Download(ctx)
	switch {
	case errors.Is(err, common.ErrNoRegistry):
		rep.RegistryMissing = true
		if err := e.bootstrap(ctx, rep, local, active); err != nil {
			return rep, err
		}
		e.record(ctx, OpStartup, rep.Outcomes...)
		return rep, nil
	case err != nil:
		return nil, fmt.Errorf("error downloading registry: %w", err)
	}

	ids, err := candidates(local, remote, active)
	if err != nil {
		return nil, err
	}

	localIdx, remoteIdx := local.Index(), remote.Index()
	pending := map[string]models.RegistryEntry{}
	for _, id := range ids {
		l, inLocal := localIdx[id]
		r, inRemote := remoteIdx[id]
		o := e.reconcile(ctx, local, pending, l, inLocal, r, inRemote)
		rep.add(o)
	}

	if len(pending) > 0 {
		e.flushRemote(ctx, rep, pending)
	}

	e.record(ctx, OpStartup, rep.Outcomes...)
	return rep, nil
}

// candidates returns the ids to reconcile: the active project only, or every
// id known to either side in a stable order.
func candidates(local, remote *models.Registry, active string) ([]string, error) {
	if active != "" {
		if e, ok := local.FindByName(active); ok {
			return []string{e.ID}, nil
		}
		if e, ok := remote.FindByName(active); ok {
			return []string{e.ID}, nil
		}
		return nil, fmt.Errorf("active project %q: %w", active, common.ErrProjectNotFound)
	}

	seen := make(map[string]struct{}, len(local.Projects)+len(remote.Projects))
	ids := make([]string, 0, len(local.Projects)+len(remote.Projects))
	for _, reg := range []*models.Registry{local, remote} {
		for _, e := range reg.Projects {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

// reconcile decides and performs the action for one id. Remote registry
// changes are queued in pending; local registry changes are saved at once.
func (e *Engine) reconcile(ctx context.Context, local *models.Registry, pending map[string]models.RegistryEntry,
	l models.RegistryEntry, inLocal bool, r models.RegistryEntry, inRemote bool) Outcome {

	o := Outcome{ProjectID: l.ID, Name: l.Name, LocalTS: l.UpdatedTS, RemoteTS: r.UpdatedTS}
	if !inLocal {
		o.ProjectID, o.Name = r.ID, r.Name
	}

	switch {
	case inLocal && l.Deleted:
		o.Action, o.Detail = ActionSkipped, "deleted locally"
		return o

	case inLocal && !l.CloudSync:
		o.Action, o.Detail = ActionSkipped, "cloud sync off"
		return o

	case inLocal && inRemote:
		if r.Deleted {
			o.Action = ActionDeletedConflict
			o.Conflict = &Conflict{
				Kind:       ConflictDeleted,
				ProjectID:  l.ID,
				LocalName:  l.Name,
				RemoteName: r.Name,
				Options:    []Resolution{ResolveDeleteLocal, ResolveMigrate},
			}
			return o
		}
		if l.Name != r.Name {
			c := &Conflict{Kind: ConflictName, ProjectID: l.ID, LocalName: l.Name, RemoteName: r.Name}
			o.Action, o.Conflict = ActionNameConflict, c
			o.Err = fmt.Errorf("%s: %w", c.String(), common.ErrNameConflict)
			return o
		}

		switch {
		case l.UpdatedTS > r.UpdatedTS:
			return e.pushEntry(ctx, o, l, pending)
		case r.UpdatedTS > l.UpdatedTS:
			return e.pullEntry(ctx, o, local, r)
		default:
			o.Action = ActionInSync
			return o
		}

	case inLocal:
		return e.pushEntry(ctx, o, l, pending)

	default:
		if r.Deleted {
			o.Action, o.Detail = ActionSkipped, "deleted remotely"
			return o
		}
		return e.pullEntry(ctx, o, local, r)
	}
}

func (e *Engine) pushEntry(ctx context.Context, o Outcome, l models.RegistryEntry, pending map[string]models.RegistryEntry) Outcome {
	n, err := e.uploadProject(ctx, l.ID)
	o.Files = n
	if err != nil {
		o.Action, o.Err = ActionFailed, err
		return o
	}
	pending[l.ID] = l
	o.Action, o.RemoteTS = ActionUploaded, l.UpdatedTS
	return o
}

func (e *Engine) pullEntry(ctx context.Context, o Outcome, local *models.Registry, r models.RegistryEntry) Outcome {
	n, err := e.downloadProject(ctx, r.ID)
	o.Files = n
	if err != nil {
		o.Action, o.Err = ActionFailed, err
		return o
	}
	local.Upsert(r)
	if err := e.registry.SaveLocal(local); err != nil {
		o.Action, o.Err = ActionFailed, err
		return o
	}
	o.Action, o.LocalTS = ActionDownloaded, r.UpdatedTS
	return o
}

// flushRemote applies pending entries to a freshly downloaded registry and
// uploads it once. An entry that became tombstoned or newer remotely during
// the pass is left alone.
func (e *Engine) flushRemote(ctx context.Context, rep *Report, pending map[string]models.RegistryEntry) {
	fresh, err := e.registry.DownloadOrEmpty(ctx)
	if err != nil {
		rep.RegistryErr = fmt.Errorf("error refreshing registry: %w", err)
		return
	}

	for _, p := range pending {
		if cur, ok := fresh.Find(p.ID); ok && (cur.Deleted || cur.UpdatedTS > p.UpdatedTS) {
			e.logger.Warn(ctx, "remote entry changed during sync, keeping it", "project_id", p.ID)
			continue
		}
		fresh.Upsert(p)
	}

	if err := e.registry.Upload(ctx, fresh); err != nil {
		rep.RegistryErr = fmt.Errorf("error uploading registry: %w", err)
		return
	}
	rep.RegistryUploaded = true
}

// bootstrap handles a bucket without a registry: only the active project is
// uploaded and a registry holding just its entry is created.
func (e *Engine) bootstrap(ctx context.Context, rep *Report, local *models.Registry, active string) error {
	if active == "" {
		e.logger.Info(ctx, "no remote registry and no active project, nothing to sync")
		return nil
	}
	l, ok := local.FindByName(active)
	if !ok {
		return fmt.Errorf("active project %q: %w", active, common.ErrProjectNotFound)
	}

	o := Outcome{ProjectID: l.ID, Name: l.Name, LocalTS: l.UpdatedTS}
	if !l.CloudSync {
		o.Action, o.Detail = ActionSkipped, "cloud sync off"
		rep.add(o)
		return nil
	}

	pending := map[string]models.RegistryEntry{}
	o = e.pushEntry(ctx, o, *l, pending)
	rep.add(o)
	if o.Action != ActionUploaded {
		return nil
	}

	rep.Bootstrapped = true
	e.flushRemote(ctx, rep, pending)
	return nil
}
