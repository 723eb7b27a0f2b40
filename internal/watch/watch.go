// Package watch recursively watches the agent root for filesystem
// changes and broadcasts a debounced project-list refresh to every
// attached client.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentgate/agentgate/internal/logger"
	"github.com/agentgate/agentgate/internal/project"
)

// ignoreDirNames are directory names never descended into or watched.
var ignoreDirNames = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
}

var junkBaseNames = map[string]bool{
	".DS_Store": true,
	"Thumbs.db": true,
}

const maxDepth = 10

func isIgnoredPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > maxDepth {
		return true
	}
	for _, p := range parts {
		if ignoreDirNames[p] || junkBaseNames[p] {
			return true
		}
		if strings.HasSuffix(p, "~") || strings.HasSuffix(p, ".swp") || strings.HasSuffix(p, ".tmp") {
			return true
		}
	}
	return false
}

// Sender is a single attached client's outbound channel. Broadcaster
// calls Send for every attached client on each debounced fire; a
// Send that returns false marks the client closed and it is removed
// from the client set at the end of that broadcast.
type Sender interface {
	Send(msg ProjectsUpdated) bool
}

// ProjectsUpdated is the payload broadcast on every debounced fire.
type ProjectsUpdated struct {
	Type        string            `json:"type"`
	Projects    []project.Project `json:"projects"`
	Timestamp   time.Time         `json:"timestamp"`
	ChangeType  string            `json:"changeType"`
	ChangedFile string            `json:"changedFile"`
}

// Watcher watches the agent root recursively and broadcasts a
// debounced projects_updated frame to every attached client.
type Watcher struct {
	agentRoot string
	registry  *project.Registry
	fsw       *fsnotify.Watcher

	mu       sync.Mutex
	clients  map[Sender]bool
	timer    *time.Timer
	lastKind string
	lastFile string

	stableMu sync.Mutex
	pending  map[string]*time.Timer // path -> stabilization timer

	stopOnce sync.Once
	done     chan struct{}
}

func New(agentRoot string, registry *project.Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		agentRoot: agentRoot,
		registry:  registry,
		fsw:       fsw,
		clients:   make(map[Sender]bool),
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}
	if err := w.watchTree(agentRoot); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// watchTree registers watches for the root and every non-ignored
// subdirectory beneath it.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isIgnoredPath(root, path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Attach registers s to receive future broadcasts.
func (w *Watcher) Attach(s Sender) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients[s] = true
}

// Detach removes s from the client set.
func (w *Watcher) Detach(s Sender) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.clients, s)
}

// Run processes fsnotify events until ctx-like Stop is called.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watch: fsnotify error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

func kindOf(ev fsnotify.Event) string {
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return "addDir"
		}
		return "add"
	case ev.Has(fsnotify.Write):
		return "change"
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if strings.HasSuffix(ev.Name, string(os.PathSeparator)) {
			return "unlinkDir"
		}
		return "unlink"
	default:
		return "change"
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if isIgnoredPath(w.agentRoot, ev.Name) {
		return
	}

	kind := kindOf(ev)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(ev.Name)
		}
	}

	if kind == "unlink" || kind == "unlinkDir" {
		w.scheduleDebounce(kind, ev.Name)
		return
	}

	// add/change wait for 100ms of write quiescence before firing, so
	// partially written log lines are not observed. A further event on a
	// path that is still settling only re-arms its timer, so the kind of
	// the first event (e.g. add for a new file) is the one reported.
	w.stableMu.Lock()
	if t, ok := w.pending[ev.Name]; ok && t.Stop() {
		t.Reset(100 * time.Millisecond)
		w.stableMu.Unlock()
		return
	}
	w.pending[ev.Name] = time.AfterFunc(100*time.Millisecond, func() {
		w.stableMu.Lock()
		delete(w.pending, ev.Name)
		w.stableMu.Unlock()
		w.scheduleDebounce(kind, ev.Name)
	})
	w.stableMu.Unlock()
}

// scheduleDebounce records the observed event and (re)arms a 300ms
// trailing debounce timer. Any events arriving before it fires are
// coalesced into a single broadcast.
func (w *Watcher) scheduleDebounce(kind, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastKind = kind
	w.lastFile = relOrAbs(w.agentRoot, name)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(300*time.Millisecond, w.broadcast)
}

func relOrAbs(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// broadcast recomputes the project list and sends one frame to every
// attached client, sweeping any that report closed.
func (w *Watcher) broadcast() {
	projects, err := w.registry.Discover()
	if err != nil {
		logger.Warn("watch: discover failed", "error", err)
		return
	}

	w.mu.Lock()
	msg := ProjectsUpdated{
		Type:        "projects_updated",
		Projects:    projects,
		Timestamp:   time.Now(),
		ChangeType:  w.lastKind,
		ChangedFile: w.lastFile,
	}
	clients := make([]Sender, 0, len(w.clients))
	for c := range w.clients {
		clients = append(clients, c)
	}
	w.mu.Unlock()

	var dead []Sender
	for _, c := range clients {
		if !c.Send(msg) {
			dead = append(dead, c)
		}
	}
	if len(dead) > 0 {
		w.mu.Lock()
		for _, c := range dead {
			delete(w.clients, c)
		}
		w.mu.Unlock()
	}
}
