package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/models"
)

// PullAll downloads every non-tombstoned remote project without comparing
// timestamps and then replaces the local registry with the remote one.
//
// Entries whose download failed keep their previous local row. Local
// entries the remote registry does not know about stay listed.
func (e *Engine) PullAll(ctx context.Context) (*Report, error) {
	if err := e.checkEnabled(); err != nil {
		return nil, err
	}
	rep := &Report{Operation: OpPullAll}

	remote, err := e.registry.Download(ctx)
	if errors.Is(err, common.ErrNoRegistry) {
		rep.RegistryMissing = true
		e.logger.Info(ctx, "no remote registry, nothing to pull")
		return rep, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error downloading registry: %w", err)
	}

	local, err := e.registry.LoadLocal()
	if err != nil {
		return nil, err
	}

	next := models.NewRegistry()
	for _, r := range remote.Projects {
		o := Outcome{ProjectID: r.ID, Name: r.Name, RemoteTS: r.UpdatedTS}
		if prev, ok := local.Find(r.ID); ok {
			o.LocalTS = prev.UpdatedTS
		}

		if r.Deleted {
			o.Action, o.Detail = ActionSkipped, "deleted remotely"
			next.Upsert(r)
			rep.add(o)
			continue
		}

		n, err := e.downloadProject(ctx, r.ID)
		o.Files = n
		if err != nil {
			o.Action, o.Err = ActionFailed, err
			if prev, ok := local.Find(r.ID); ok {
				next.Upsert(*prev)
			}
			rep.add(o)
			continue
		}

		o.Action, o.LocalTS = ActionDownloaded, r.UpdatedTS
		next.Upsert(r)
		rep.add(o)
	}

	for _, l := range local.Projects {
		if _, ok := remote.Find(l.ID); !ok {
			next.Upsert(l)
		}
	}

	if err := e.registry.SaveLocal(next); err != nil {
		return rep, err
	}

	e.record(ctx, OpPullAll, rep.Outcomes...)
	return rep, nil
}

// PullOne downloads a single project by id. It fails with
// common.ErrProjectNotFound when the id is unknown remotely and with
// common.ErrProjectDeleted when it is tombstoned.
func (e *Engine) PullOne(ctx context.Context, id string) (*Outcome, error) {
	if err := e.checkEnabled(); err != nil {
		return nil, err
	}

	remote, err := e.registry.Download(ctx)
	if errors.Is(err, common.ErrNoRegistry) {
		return nil, fmt.Errorf("project %s: %w", id, common.ErrProjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error downloading registry: %w", err)
	}

	r, ok := remote.Find(id)
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, common.ErrProjectNotFound)
	}
	if r.Deleted {
		return nil, fmt.Errorf("project %s: %w", id, common.ErrProjectDeleted)
	}

	local, err := e.registry.LoadLocal()
	if err != nil {
		return nil, err
	}

	o := Outcome{ProjectID: r.ID, Name: r.Name, RemoteTS: r.UpdatedTS}
	if prev, ok := local.Find(id); ok {
		o.LocalTS = prev.UpdatedTS
	}

	n, err := e.downloadProject(ctx, id)
	o.Files = n
	if err != nil {
		o.Action, o.Err = ActionFailed, err
		e.record(ctx, OpPullOne, o)
		return &o, err
	}

	local.Upsert(*r)
	if err := e.registry.SaveLocal(local); err != nil {
		o.Action, o.Err = ActionFailed, err
		e.record(ctx, OpPullOne, o)
		return &o, err
	}

	o.Action, o.LocalTS = ActionDownloaded, r.UpdatedTS
	e.record(ctx, OpPullOne, o)
	return &o, nil
}
