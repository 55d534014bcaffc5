package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/paths"
)

// MarkDeleted tombstones id in the remote registry. It reports false when
// the registry has no such entry.
func (e *Engine) MarkDeleted(ctx context.Context, id string) (bool, error) {
	if err := e.checkEnabled(); err != nil {
		return false, err
	}
	ok, err := e.registry.MarkDeleted(ctx, id)
	if err != nil {
		return false, err
	}

	o := Outcome{ProjectID: id, Action: ActionMarkedDeleted}
	if !ok {
		o.Action, o.Detail = ActionSkipped, "not in remote registry"
	}
	e.record(ctx, OpMarkDeleted, o)
	return ok, nil
}

// DeleteProject removes a project everywhere. Remote objects are deleted and
// the remote entry is tombstoned when sync is enabled; local data is always
// removed. The local entry is tombstoned for cloud-synced projects and
// dropped otherwise.
func (e *Engine) DeleteProject(ctx context.Context, id string) (*Outcome, error) {
	local, err := e.registry.LoadLocal()
	if err != nil {
		return nil, err
	}
	l, inLocal := local.Find(id)
	if !inLocal && !e.objects.Enabled() {
		return nil, fmt.Errorf("project %s: %w", id, common.ErrProjectNotFound)
	}

	o := &Outcome{ProjectID: id, Action: ActionDeleted}
	if inLocal {
		o.Name, o.LocalTS = l.Name, l.UpdatedTS
	}

	if e.objects.Enabled() && (!inLocal || l.CloudSync) {
		for _, key := range []string{paths.ProjectKey(id), paths.FindingsKey(id)} {
			if e.objects.Exists(ctx, key) && e.objects.Delete(ctx, key) {
				o.Files++
			}
		}
		o.Files += e.objects.DeletePrefix(ctx, paths.EvidencePrefix(id))

		marked, err := e.registry.MarkDeleted(ctx, id)
		if err != nil && !errors.Is(err, common.ErrNoRegistry) {
			o.Action, o.Err = ActionFailed, err
			e.record(ctx, OpDelete, *o)
			return o, err
		}
		if !inLocal && !marked && o.Files == 0 {
			return nil, fmt.Errorf("project %s: %w", id, common.ErrProjectNotFound)
		}
	}

	if err := e.projects.Delete(id); err != nil {
		o.Action, o.Err = ActionFailed, err
		e.record(ctx, OpDelete, *o)
		return o, err
	}

	if inLocal {
		if l.CloudSync {
			l.Deleted = true
			l.UpdatedTS = e.now()
		} else {
			local.Remove(id)
		}
		if err := e.registry.SaveLocal(local); err != nil {
			o.Action, o.Err = ActionFailed, err
			e.record(ctx, OpDelete, *o)
			return o, err
		}
	}

	e.record(ctx, OpDelete, *o)
	return o, nil
}

// Resolve applies the operator's choice to a deleted-project conflict.
// ResolveDeleteLocal drops the local data and entry. ResolveMigrate moves the
// local copy to a fresh id, detached from the tombstoned one; the next sync
// uploads it as a new project.
func (e *Engine) Resolve(ctx context.Context, c Conflict, choice Resolution) (*Outcome, error) {
	if c.Kind != ConflictDeleted {
		return nil, fmt.Errorf("%s conflicts cannot be resolved automatically: %w", c.Kind, common.ErrInvalidResolution)
	}

	local, err := e.registry.LoadLocal()
	if err != nil {
		return nil, err
	}
	l, ok := local.Find(c.ProjectID)
	if !ok {
		return nil, fmt.Errorf("project %s: %w", c.ProjectID, common.ErrProjectNotFound)
	}
	entry := *l
	o := &Outcome{ProjectID: entry.ID, Name: entry.Name, LocalTS: entry.UpdatedTS}

	switch choice {
	case ResolveDeleteLocal:
		if err := e.projects.Delete(entry.ID); err != nil {
			return e.resolveFailed(ctx, o, err)
		}
		local.Remove(entry.ID)
		o.Action = ActionDeleted

	case ResolveMigrate:
		newID := e.newID()
		if _, err := e.projects.Migrate(entry.ID, newID); err != nil {
			return e.resolveFailed(ctx, o, err)
		}
		local.Remove(entry.ID)
		entry.ID = newID
		entry.Deleted = false
		entry.UpdatedTS = e.now()
		local.Upsert(entry)
		o.Action, o.NewID, o.LocalTS = ActionMigrated, newID, entry.UpdatedTS

	default:
		return nil, fmt.Errorf("%q: %w", choice, common.ErrInvalidResolution)
	}

	if err := e.registry.SaveLocal(local); err != nil {
		return e.resolveFailed(ctx, o, err)
	}
	e.record(ctx, OpResolve, *o)
	return o, nil
}

func (e *Engine) resolveFailed(ctx context.Context, o *Outcome, err error) (*Outcome, error) {
	o.Action, o.Err = ActionFailed, err
	e.record(ctx, OpResolve, *o)
	return o, err
}
