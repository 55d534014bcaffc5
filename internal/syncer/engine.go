// Package syncer keeps the local results root and the shared object store
// consistent. For every project it compares the local and remote registry
// entries and performs one of upload, download, no-op or escalation.
//
// The engine is synchronous. Projects in a pass are processed one after
// another and a failure on one project does not stop the others.
package syncer

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/filex"
	"github.com/dmitrijs2005/projsync/internal/logging"
	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/objectstore"
	"github.com/dmitrijs2005/projsync/internal/paths"
	"github.com/dmitrijs2005/projsync/internal/project"
	"github.com/dmitrijs2005/projsync/internal/registry"
	"github.com/dmitrijs2005/projsync/internal/timex"
)

// Journal persists outcomes for later inspection.
type Journal interface {
	Record(ctx context.Context, events []models.SyncEvent) error
}

type Engine struct {
	objects  objectstore.Store
	registry *registry.Store
	projects *project.Repository
	logger   logging.Logger
	journal  Journal
	now      func() int64
	newID    func() string
}

type Option func(*Engine)

// WithClock replaces the Unix-seconds clock used for registry timestamps.
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the generator used when migrating a project.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func New(objects objectstore.Store, reg *registry.Store, projects *project.Repository, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		objects:  objects,
		registry: reg,
		projects: projects,
		logger:   logger,
		now:      timex.NowUnix,
		newID:    models.NewProjectID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enabled reports whether the object store is configured.
func (e *Engine) Enabled() bool {
	return e.objects.Enabled()
}

func (e *Engine) checkEnabled() error {
	if !e.objects.Enabled() {
		return common.ErrSyncDisabled
	}
	return nil
}

func (e *Engine) layout() paths.Layout {
	return e.projects.Layout()
}

// checkID rejects ids, typically read from the shared registry, that would
// name files outside the results root.
func checkID(id string) error {
	if !paths.ValidID(id) {
		return fmt.Errorf("project %q: %w", id, common.ErrInvalidID)
	}
	return nil
}

// uploadProject copies the record, the findings and the evidence tree of id
// to the object store. The record is mandatory; findings are sent when
// present; evidence is best-effort. It returns the number of objects sent.
func (e *Engine) uploadProject(ctx context.Context, id string) (int, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	l := e.layout()
	if !filex.Exists(l.ProjectPath(id)) {
		return 0, fmt.Errorf("error uploading %s: %w", id, common.ErrProjectNotFound)
	}

	n := 0
	if !e.objects.Put(ctx, l.ProjectPath(id), paths.ProjectKey(id)) {
		return n, fmt.Errorf("error uploading %s: %w", paths.ProjectKey(id), common.ErrTransfer)
	}
	n++

	if filex.Exists(l.FindingsPath(id)) {
		if !e.objects.Put(ctx, l.FindingsPath(id), paths.FindingsKey(id)) {
			return n, fmt.Errorf("error uploading %s: %w", paths.FindingsKey(id), common.ErrTransfer)
		}
		n++
	}

	n += e.objects.PutDir(ctx, l.EvidenceDir(id), paths.EvidencePrefix(id))
	return n, nil
}

// downloadProject is the reverse of uploadProject. A remote project without
// a findings document keeps the local findings.
func (e *Engine) downloadProject(ctx context.Context, id string) (int, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	l := e.layout()

	n := 0
	if !e.objects.Get(ctx, paths.ProjectKey(id), l.ProjectPath(id)) {
		return n, fmt.Errorf("error downloading %s: %w", paths.ProjectKey(id), common.ErrTransfer)
	}
	n++

	found, err := e.objects.Stat(ctx, paths.FindingsKey(id))
	if err != nil {
		return n, fmt.Errorf("error checking %s: %w: %w", paths.FindingsKey(id), common.ErrTransfer, err)
	}
	if found {
		if !e.objects.Get(ctx, paths.FindingsKey(id), l.FindingsPath(id)) {
			return n, fmt.Errorf("error downloading %s: %w", paths.FindingsKey(id), common.ErrTransfer)
		}
		n++
	}

	n += e.objects.GetDir(ctx, paths.EvidencePrefix(id), l.EvidenceDir(id))
	return n, nil
}

// scratchDir creates a temporary directory under the results root.
func (e *Engine) scratchDir(pattern string) (string, func(), error) {
	root := e.layout().Root
	if err := filex.EnsureDir(root); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(root, pattern)
	if err != nil {
		return "", nil, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// record logs outcomes and hands them to the journal. Journal errors are
// logged and otherwise ignored.
func (e *Engine) record(ctx context.Context, op Operation, outcomes ...Outcome) {
	for _, o := range outcomes {
		args := []any{"op", op, "project_id", o.ProjectID, "name", o.Name, "action", o.Action, "files", o.Files}
		switch {
		case o.Action == ActionFailed || o.Action == ActionNameConflict:
			e.logger.Error(ctx, "sync outcome", append(args, "error", o.Err)...)
		case o.Conflict != nil:
			e.logger.Warn(ctx, "sync outcome", append(args, "conflict", o.Conflict.String())...)
		default:
			e.logger.Info(ctx, "sync outcome", args...)
		}
	}

	if e.journal == nil || len(outcomes) == 0 {
		return
	}
	events := make([]models.SyncEvent, 0, len(outcomes))
	for _, o := range outcomes {
		events = append(events, toEvent(op, o))
	}
	if err := e.journal.Record(ctx, events); err != nil {
		e.logger.Warn(ctx, "journal write failed", "op", op, "error", err)
	}
}

func toEvent(op Operation, o Outcome) models.SyncEvent {
	detail := o.Detail
	switch {
	case o.Err != nil:
		detail = o.Err.Error()
	case o.Conflict != nil && detail == "":
		detail = o.Conflict.String()
	case o.NewID != "" && detail == "":
		detail = "new id " + o.NewID
	}
	return models.SyncEvent{
		Operation:   string(op),
		ProjectID:   o.ProjectID,
		ProjectName: o.Name,
		Action:      string(o.Action),
		LocalTS:     o.LocalTS,
		RemoteTS:    o.RemoteTS,
		Files:       o.Files,
		Detail:      detail,
	}
}
