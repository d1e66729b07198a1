// Package watcher turns configured inbox directories into a template intake:
// documents dropped there are registered as templates once writes settle.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/config"
)

// settleDelay is how long a file must stay quiet before registration. Office
// applications and file copies write in bursts.
const settleDelay = 400 * time.Millisecond

// RegisterFunc receives the path of a settled inbox document.
type RegisterFunc func(path string)

// Inbox watches directories and registers dropped template documents.
type Inbox struct {
	roots      []string
	extensions []string
	recursive  bool
	register   RegisterFunc
	settle     time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timers  map[string]*time.Timer
	done    chan struct{}
	started bool
	stop    sync.Once
}

// NewInbox returns an inbox for cfg's directories and extensions. register is
// called once per settled document.
func NewInbox(cfg config.WatchConfig, register RegisterFunc, logger *zap.Logger) *Inbox {
	return &Inbox{
		roots:      cfg.Directories,
		extensions: cfg.Extensions,
		recursive:  cfg.RecursiveOrDefault(),
		register:   register,
		settle:     settleDelay,
		logger:     logger,
		timers:     make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
}

// Start begins watching. Missing inbox directories are created. The inbox
// runs until ctx is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	in.fsw = fsw
	in.started = true
	for _, root := range in.roots {
		if err := in.addRootLocked(root); err != nil {
			_ = in.fsw.Close()
			in.fsw = nil
			in.started = false
			in.mu.Unlock()
			return err
		}
	}
	in.mu.Unlock()

	in.logger.Info("template inbox watching",
		zap.Strings("directories", in.roots),
		zap.Strings("extensions", in.extensions),
	)
	go in.run(ctx)
	return nil
}

func (in *Inbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-in.fsw.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-in.fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				in.logger.Warn("inbox watch error", zap.Error(err))
			}
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			in.watchNewDirectory(path)
			return
		}
		if in.matches(path) {
			in.scheduleRegister(path)
		}
	case fsnotify.Remove:
		// A file removed mid-settle never registers.
		in.cancelSettle(path)
	}
}

// watchNewDirectory covers directories created or moved into an inbox after
// Start; their existing contents register immediately.
func (in *Inbox) watchNewDirectory(dir string) {
	in.mu.Lock()
	fsw := in.fsw
	recursive := in.recursive
	in.mu.Unlock()
	if fsw == nil || !recursive {
		return
	}
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				in.logger.Warn("inbox add directory failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if in.matches(path) {
			in.scheduleRegister(path)
		}
		return nil
	})
}

func (in *Inbox) matches(path string) bool {
	if len(in.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range in.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (in *Inbox) scheduleRegister(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.timers[path]; ok {
		t.Stop()
	}
	in.timers[path] = time.AfterFunc(in.settle, func() {
		in.mu.Lock()
		delete(in.timers, path)
		in.mu.Unlock()
		in.logger.Debug("inbox document settled", zap.String("path", path))
		in.register(path)
	})
}

func (in *Inbox) cancelSettle(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.timers[path]; ok {
		t.Stop()
		delete(in.timers, path)
	}
}

func (in *Inbox) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if !in.recursive {
		return in.fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return in.fsw.Add(path)
		}
		return nil
	})
}

// SyncExisting registers every matching document already present in the
// inbox directories. Call after Start.
func (in *Inbox) SyncExisting() {
	in.mu.Lock()
	roots := append([]string(nil), in.roots...)
	in.mu.Unlock()
	for _, root := range roots {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if in.matches(path) {
				in.register(path)
			}
			return nil
		})
	}
}

// Directories returns the watched inbox directories.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// Stop stops watching and cancels pending registrations.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started || in.fsw == nil {
		in.mu.Unlock()
		return
	}
	for path, t := range in.timers {
		t.Stop()
		delete(in.timers, path)
	}
	_ = in.fsw.Close()
	in.fsw = nil
	in.started = false
	in.mu.Unlock()
	in.stop.Do(func() { close(in.done) })
}
