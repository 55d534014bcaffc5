package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/config"
	"github.com/dmitrijs2005/projsync/internal/flagx"
	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/registry"
	"github.com/dmitrijs2005/projsync/internal/syncer"
)

func commandWords(args []string) []string {
	return flagx.Positional(args, config.BoolFlags)
}

// lookup maps a name, id prefix or external id to a project id using the
// local registry. Unknown identifiers are passed through as ids.
func (app *App) lookup(ident string) string {
	reg, err := app.registry.LoadLocal()
	if err != nil {
		return ident
	}
	e, err := registry.Resolve(reg, ident)
	if err != nil {
		return ident
	}
	return e.ID
}

// lookupExact is lookup for destructive commands: only an exact id or a
// full project name selects a project, never a prefix or a partial name.
func (app *App) lookupExact(ident string) string {
	reg, err := app.registry.LoadLocal()
	if err != nil {
		return ident
	}
	if e, ok := reg.Find(ident); ok {
		return e.ID
	}
	if e, ok := reg.FindByName(ident); ok {
		return e.ID
	}
	return ident
}

func (app *App) sync(ctx context.Context, active string) error {
	rep, err := app.engine.SyncAtStartup(ctx, active)
	if errors.Is(err, common.ErrSyncDisabled) {
		printlnFn("sync is not enabled, working locally")
		return nil
	}
	if err != nil {
		return err
	}

	printReport(rep)
	for _, c := range rep.Conflicts() {
		if c.Kind != syncer.ConflictDeleted {
			continue
		}
		if err := app.resolveInteractively(ctx, c); err != nil {
			return err
		}
	}
	return rep.Err()
}

func (app *App) pull(ctx context.Context, ident string) error {
	if ident == "" {
		rep, err := app.engine.PullAll(ctx)
		if err != nil {
			return err
		}
		printReport(rep)
		return rep.Err()
	}

	o, err := app.engine.PullOne(ctx, app.lookup(ident))
	if o != nil {
		printlnFn(formatOutcome(*o))
	}
	return err
}

func (app *App) push(ctx context.Context, name string) error {
	res, err := app.engine.Push(ctx, name)
	if res != nil {
		printlnFn(formatOutcome(res.Outcome))
		if res.Conflict != nil && res.Conflict.Kind == syncer.ConflictDeleted {
			if rerr := app.resolveInteractively(ctx, *res.Conflict); rerr != nil {
				return rerr
			}
		}
	}
	return err
}

func (app *App) markDeleted(ctx context.Context, ident string) error {
	id := app.lookupExact(ident)
	ok, err := app.engine.MarkDeleted(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		printlnFn(fmt.Sprintf("%s is not in the shared registry", id))
		return nil
	}
	printlnFn(fmt.Sprintf("%s marked deleted", id))
	return nil
}

func (app *App) delete(ctx context.Context, ident string) error {
	o, err := app.engine.DeleteProject(ctx, app.lookupExact(ident))
	if o != nil {
		printlnFn(formatOutcome(*o))
	}
	return err
}

func (app *App) resolve(ctx context.Context, ident, choice string) error {
	r, err := syncer.ParseResolution(choice)
	if err != nil {
		return err
	}
	c := syncer.Conflict{Kind: syncer.ConflictDeleted, ProjectID: app.lookupExact(ident)}
	o, err := app.engine.Resolve(ctx, c, r)
	if o != nil {
		printlnFn(formatOutcome(*o))
	}
	return err
}

// resolveInteractively asks the operator how to settle a deleted-project
// conflict. Without a terminal it only prints the command to run.
func (app *App) resolveInteractively(ctx context.Context, c syncer.Conflict) error {
	if !isTerminal() {
		printlnFn(fmt.Sprintf("%s; run: projsync resolve %s delete_local|migrate", c.String(), c.ProjectID))
		return nil
	}

	answer, err := getSimpleText(app.reader,
		fmt.Sprintf("%s. Choose delete_local, migrate or skip:", c.String()), app.out)
	if err != nil {
		return err
	}
	if answer == "" || answer == "skip" {
		return nil
	}
	r, err := syncer.ParseResolution(answer)
	if err != nil {
		return err
	}
	o, err := app.engine.Resolve(ctx, c, r)
	if o != nil {
		printlnFn(formatOutcome(*o))
	}
	return err
}

func (app *App) list() error {
	reg, err := app.registry.LoadLocal()
	if err != nil {
		return err
	}
	if len(reg.Projects) == 0 {
		printlnFn("no projects")
		return nil
	}
	for _, e := range reg.Projects {
		printlnFn(formatEntry(e))
	}
	return nil
}

// history prints journal events, newest first. The optional project
// narrows them to one project; a trailing number sets how many to show.
func (app *App) history(ctx context.Context, args []string) error {
	if app.journal == nil {
		return errors.New("sync journal is disabled")
	}
	if len(args) > 2 {
		return usageError("history [project] [n]")
	}

	limit, ident := 20, ""
	if len(args) > 0 {
		last := args[len(args)-1]
		v, err := strconv.Atoi(last)
		switch {
		case err == nil && v > 0:
			limit = v
			args = args[:len(args)-1]
		case err == nil, len(args) == 2:
			return usageError("history [project] [n]")
		}
	}
	if len(args) == 1 {
		ident = args[0]
	}

	var events []models.SyncEvent
	var err error
	if ident == "" {
		events, err = app.journal.Recent(ctx, limit)
	} else {
		events, err = app.journal.ForProject(ctx, app.lookup(ident), limit)
	}
	if err != nil {
		return err
	}
	if len(events) == 0 {
		printlnFn("no sync events")
		return nil
	}
	for _, ev := range events {
		printlnFn(formatEvent(ev))
	}
	return nil
}

// evidence lists the files a project refers to and whether each is present
// under the local results root.
func (app *App) evidence(ident string) error {
	files, err := app.projects.Evidence(app.lookup(ident))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		printlnFn("no evidence files")
		return nil
	}
	for _, f := range files {
		printlnFn(formatEvidence(f))
	}
	return nil
}
