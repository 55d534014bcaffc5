// Package cli is the operator front end: it wires configuration, logging,
// the object store, the journal and the sync engine, and dispatches one
// command per process run.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/projsync/internal/buildinfo"
	"github.com/dmitrijs2005/projsync/internal/config"
	"github.com/dmitrijs2005/projsync/internal/filex"
	"github.com/dmitrijs2005/projsync/internal/history"
	"github.com/dmitrijs2005/projsync/internal/logging"
	"github.com/dmitrijs2005/projsync/internal/objectstore"
	"github.com/dmitrijs2005/projsync/internal/paths"
	"github.com/dmitrijs2005/projsync/internal/project"
	"github.com/dmitrijs2005/projsync/internal/registry"
	"github.com/dmitrijs2005/projsync/internal/syncer"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	registry *registry.Store
	projects *project.Repository
	engine   *syncer.Engine
	journal  *history.Journal
	reader   *bufio.Reader
	out      io.Writer
}

// NewApp validates c and builds every component. An unreachable object store
// or journal is logged and leaves the app running with that part disabled.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(logging.Options{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile})
	return newApp(ctx, c, logger), nil
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) *App {
	layout := paths.NewLayout(c.ResultsDir)
	objects := openStore(ctx, c, logger)
	reg := registry.NewStore(objects, layout, logger)
	projects := project.NewRepository(layout)

	opts := []syncer.Option{}
	journal := openJournal(ctx, c, logger)
	if journal != nil {
		opts = append(opts, syncer.WithJournal(journal))
	}

	return &App{
		config:   c,
		logger:   logger,
		registry: reg,
		projects: projects,
		engine:   syncer.New(objects, reg, projects, logger, opts...),
		journal:  journal,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}
}

// openStore returns the configured backend, or objectstore.Disabled when
// none is configured or it cannot be reached.
func openStore(ctx context.Context, c *config.Config, logger logging.Logger) objectstore.Store {
	switch c.Backend {
	case config.BackendS3:
		s, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			Profile:      c.S3Profile,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			BaseEndpoint: c.S3BaseEndpoint,
			UsePathStyle: c.S3UsePathStyle,
			Timeout:      c.OperationTimeout,
		}, logger.With("backend", "s3", "bucket", c.S3Bucket))
		if err != nil {
			logger.Warn(ctx, "object store unavailable, sync disabled", "error", err)
			return objectstore.Disabled{}
		}
		return s

	case config.BackendDir:
		s, err := objectstore.NewDirStore(c.StoreDir, logger.With("backend", "dir", "dir", c.StoreDir))
		if err != nil {
			logger.Warn(ctx, "object store unavailable, sync disabled", "error", err)
			return objectstore.Disabled{}
		}
		return s
	}
	return objectstore.Disabled{}
}

func openJournal(ctx context.Context, c *config.Config, logger logging.Logger) *history.Journal {
	dsn := c.HistoryPath()
	if dsn == "" {
		return nil
	}
	if c.HistoryDSN == "" {
		if err := filex.EnsureDir(c.ResultsDir); err != nil {
			logger.Warn(ctx, "journal disabled", "error", err)
			return nil
		}
	}
	j, err := history.Open(ctx, dsn)
	if err != nil {
		logger.Warn(ctx, "journal disabled", "error", err)
		return nil
	}
	return j
}

// initSignalHandler cancels ctx on SIGINT, SIGTERM or SIGQUIT so that a
// running pass stops between objects.
func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) Close() error {
	if app.journal != nil {
		return app.journal.Close()
	}
	return nil
}

// Run executes the command found in args. Flags are skipped; they were
// consumed by config.LoadConfig.
func (app *App) Run(ctx context.Context, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.initSignalHandler(ctx, cancel)

	words := commandWords(args)
	if len(words) == 0 {
		return app.sync(ctx, "")
	}
	return app.dispatch(ctx, words[0], words[1:])
}

func (app *App) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "sync":
		return app.sync(ctx, optional(args))
	case "pull":
		return app.pull(ctx, optional(args))
	case "push":
		if len(args) != 1 {
			return usageError("push <project>")
		}
		return app.push(ctx, args[0])
	case "mark-deleted":
		if len(args) != 1 {
			return usageError("mark-deleted <project>")
		}
		return app.markDeleted(ctx, args[0])
	case "delete":
		if len(args) != 1 {
			return usageError("delete <project>")
		}
		return app.delete(ctx, args[0])
	case "resolve":
		if len(args) != 2 {
			return usageError("resolve <project> delete_local|migrate")
		}
		return app.resolve(ctx, args[0], args[1])
	case "history":
		return app.history(ctx, args)
	case "evidence":
		if len(args) != 1 {
			return usageError("evidence <project>")
		}
		return app.evidence(args[0])
	case "list", "ls":
		return app.list()
	case "version":
		buildinfo.PrintBuildData(app.out)
		return nil
	case "help":
		printlnFn(usage)
		return nil
	}
	return fmt.Errorf("unknown command %q, try help", cmd)
}

func optional(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func usageError(u string) error {
	return fmt.Errorf("usage: projsync [flags] %s", u)
}

const usage = `usage: projsync [flags] <command>

commands:
  sync [project]              reconcile with the shared store (default)
  pull [project-id]           download every project, or one
  push <project>              upload a project, merging a newer remote copy
  mark-deleted <project>      tombstone a project in the shared registry
  delete <project>            delete a project everywhere
  resolve <project> <choice>  answer a deleted-project conflict: delete_local or migrate
  list                        show the local registry
  history [project] [n]       show the last n sync events, optionally for one project
  evidence <project>          list a project's evidence files and whether they exist locally
  version                     print build information`
