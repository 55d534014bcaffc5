package syncer

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/projsync/internal/common"
)

// Action is what a sync operation did with one project.
type Action string

const (
	ActionUploaded        Action = "uploaded"
	ActionDownloaded      Action = "downloaded"
	ActionMerged          Action = "merged"
	ActionInSync          Action = "in_sync"
	ActionSkipped         Action = "skipped"
	ActionNameConflict    Action = "name_conflict"
	ActionDeletedConflict Action = "deleted_conflict"
	ActionMarkedDeleted   Action = "marked_deleted"
	ActionDeleted         Action = "deleted"
	ActionMigrated        Action = "migrated"
	ActionFailed          Action = "failed"
)

// Operation names the engine entry point that produced an outcome.
type Operation string

const (
	OpStartup     Operation = "startup"
	OpPullAll     Operation = "pull_all"
	OpPullOne     Operation = "pull_one"
	OpPush        Operation = "push"
	OpMarkDeleted Operation = "mark_deleted"
	OpDelete      Operation = "delete"
	OpResolve     Operation = "resolve"
)

type ConflictKind string

const (
	ConflictName    ConflictKind = "name"
	ConflictDeleted ConflictKind = "deleted"
)

// Resolution is the operator's answer to a deleted-project conflict.
type Resolution string

const (
	ResolveDeleteLocal Resolution = "delete_local"
	ResolveMigrate     Resolution = "migrate"
)

func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case ResolveDeleteLocal, ResolveMigrate:
		return Resolution(s), nil
	case "delete":
		return ResolveDeleteLocal, nil
	}
	return "", fmt.Errorf("%q: %w", s, common.ErrInvalidResolution)
}

// Conflict describes a situation the engine refuses to decide on its own.
type Conflict struct {
	Kind       ConflictKind
	ProjectID  string
	LocalName  string
	RemoteName string
	// Options lists the accepted resolutions; empty for name conflicts,
	// which need manual repair of the registry.
	Options []Resolution
}

func (c Conflict) String() string {
	switch c.Kind {
	case ConflictName:
		return fmt.Sprintf("project %s is named %q locally but %q remotely", c.ProjectID, c.LocalName, c.RemoteName)
	default:
		return fmt.Sprintf("project %q (%s) was deleted remotely but exists locally", c.LocalName, c.ProjectID)
	}
}

// Outcome is the result for one project.
type Outcome struct {
	ProjectID string
	Name      string
	Action    Action
	LocalTS   int64
	RemoteTS  int64
	// Files is the number of objects transferred.
	Files    int
	NewID    string
	Detail   string
	Conflict *Conflict
	Err      error
}

// Report collects the outcomes of one pass. Failures do not stop the pass,
// so callers must inspect Err.
type Report struct {
	Operation        Operation
	Outcomes         []Outcome
	Bootstrapped     bool
	RegistryMissing  bool
	RegistryUploaded bool
	RegistryErr      error
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

func (r *Report) Count(a Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == a {
			n++
		}
	}
	return n
}

// Transfers counts projects that were copied in either direction.
func (r *Report) Transfers() int {
	return r.Count(ActionUploaded) + r.Count(ActionDownloaded) + r.Count(ActionMerged)
}

func (r *Report) Conflicts() []Conflict {
	var out []Conflict
	for _, o := range r.Outcomes {
		if o.Conflict != nil {
			out = append(out, *o.Conflict)
		}
	}
	return out
}

// Err joins every failure and name conflict in the pass.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil && (o.Action == ActionFailed || o.Action == ActionNameConflict) {
			errs = append(errs, o.Err)
		}
	}
	if r.RegistryErr != nil {
		errs = append(errs, r.RegistryErr)
	}
	return errors.Join(errs...)
}
