// Package loader stages program and module files and loads them into the
// controller under mastership. Physical controllers get the staged file
// mirrored to their own file system first; simulated controllers load
// straight from the local staging path.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/infra/bus"
	"github.com/robonet-io/armbridge/core/infra/logging"
	"github.com/robonet-io/armbridge/core/infra/metrics"
	"github.com/robonet-io/armbridge/core/mastership"
	"github.com/robonet-io/armbridge/core/staging"
)

const (
	kindProgram = "program"
	kindModule  = "module"
)

// errGrantDenied marks the silent-deny path: no controller call, no
// operator notification, mastership still released by the guard.
var errGrantDenied = errors.New("load grants denied")

// Loader runs the staging/transfer/load pipeline for one controller.
type Loader struct {
	ctrl      controller.Controller
	store     *staging.Store
	guard     *mastership.Guard
	remoteDir string
	metrics   metrics.BridgeMetrics
	announcer *bus.Announcer
}

// New constructs a Loader. announcer may be nil.
func New(ctrl controller.Controller, store *staging.Store, guard *mastership.Guard, remoteDir string, m metrics.BridgeMetrics, announcer *bus.Announcer) *Loader {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Loader{
		ctrl:      ctrl,
		store:     store,
		guard:     guard,
		remoteDir: remoteDir,
		metrics:   m,
		announcer: announcer,
	}
}

// LoadProgram writes the boilerplate program file for a task and loads it.
// Called once per task at bridge startup; each call fully replaces the
// prior program.
func (l *Loader) LoadProgram(ctx context.Context, task controller.Task) error {
	localPath, err := l.store.WriteProgram(task)
	if err != nil {
		l.reportIO(kindProgram, task, err)
		return err
	}
	return l.load(ctx, task, kindProgram, localPath, l.store.ProgramFileName(task))
}

// LoadModule writes the received source for a task and loads it. The
// payload is opaque: exactly the bytes received reach the staged file.
func (l *Loader) LoadModule(ctx context.Context, task controller.Task, source string) error {
	localPath, err := l.store.WriteModule(task, source)
	if err != nil {
		l.reportIO(kindModule, task, err)
		return err
	}
	return l.load(ctx, task, kindModule, localPath, l.store.ModuleFileName(task))
}

func (l *Loader) load(ctx context.Context, task controller.Task, kind, localPath, fileName string) error {
	err := l.guard.With(ctx, func(ctx context.Context) error {
		grants, err := l.ctrl.Grants(ctx)
		if err != nil {
			return fmt.Errorf("query grants: %w", err)
		}
		// Both the load grant and the broader administration grant are
		// required; holding only the narrower one denies the load.
		if !grants.Has(controller.GrantLoadProgram) || !grants.Has(controller.GrantAdminSystem) {
			return errGrantDenied
		}

		loadPath := localPath
		if l.ctrl.Kind() == controller.KindPhysical {
			remotePath, err := l.sync(ctx, localPath, fileName)
			if err != nil {
				return err
			}
			loadPath = remotePath
			if kind == kindProgram {
				if err := l.ctrl.DeleteProgram(ctx, task); err != nil {
					return fmt.Errorf("delete prior program: %w", err)
				}
			}
		}

		if kind == kindProgram {
			if err := l.ctrl.LoadProgram(ctx, task, loadPath); err != nil {
				return fmt.Errorf("load program: %w", err)
			}
			return nil
		}
		if err := l.ctrl.LoadModule(ctx, task, loadPath); err != nil {
			return fmt.Errorf("load module: %w", err)
		}
		return nil
	})

	switch {
	case err == nil:
		l.metrics.IncLoad(kind, "ok")
		logging.Info("loader", "loaded", "kind", kind, "task", task)
		return nil
	case errors.Is(err, errGrantDenied):
		// Silent by design: no notification, no protocol reply, just the
		// log line and the counter.
		l.metrics.IncGrantDenied("load")
		logging.Warn("loader", "load denied by grants", "kind", kind, "task", task)
		return nil
	default:
		l.metrics.IncLoad(kind, "error")
		logging.Error("loader", "load failed", "kind", kind, "task", task, "error", err)
		l.announcer.Notify("controller", fmt.Sprintf("%s load failed for %s", kind, task),
			map[string]any{"error": err.Error()})
		return err
	}
}

// sync mirrors the staged file onto the controller's file system: ensure
// the remote folder, delete any stale copy, then place the new one. The
// delete-before-put keeps exactly one remote file per name.
func (l *Loader) sync(ctx context.Context, localPath, fileName string) (string, error) {
	fs := l.ctrl.FileSystem()
	if fs == nil {
		return "", fmt.Errorf("physical controller exposes no file system")
	}
	if err := fs.EnsureDir(ctx, l.remoteDir); err != nil {
		return "", fmt.Errorf("ensure remote dir: %w", err)
	}
	l.metrics.IncTransfer("ensure")

	remotePath := path.Join(l.remoteDir, fileName)
	if err := fs.Remove(ctx, remotePath); err != nil {
		return "", fmt.Errorf("remove stale remote file: %w", err)
	}
	l.metrics.IncTransfer("remove")

	if err := fs.Put(ctx, localPath, remotePath); err != nil {
		return "", fmt.Errorf("transfer staged file: %w", err)
	}
	l.metrics.IncTransfer("put")
	return remotePath, nil
}

func (l *Loader) reportIO(kind string, task controller.Task, err error) {
	l.metrics.IncLoad(kind, "error")
	logging.Error("loader", "staging write failed", "kind", kind, "task", task, "error", err)
	l.announcer.Notify("local-io", fmt.Sprintf("staging %s for %s failed", kind, task),
		map[string]any{"error": err.Error()})
}
