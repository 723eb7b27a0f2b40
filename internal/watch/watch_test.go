package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentgate/agentgate/internal/project"
)

type fakeSender struct {
	ch chan ProjectsUpdated
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan ProjectsUpdated, 16)}
}

func (f *fakeSender) Send(msg ProjectsUpdated) bool {
	select {
	case f.ch <- msg:
		return true
	default:
		return true
	}
}

func setup(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	alias := "proj-a"
	if err := os.MkdirAll(filepath.Join(root, alias), 0o755); err != nil {
		t.Fatal(err)
	}
	reg := project.NewRegistry(root, filepath.Join(root, "project-config.json"))
	w, err := New(root, reg)
	if err != nil {
		t.Fatal(err)
	}
	go w.Run()
	t.Cleanup(w.Stop)
	return w, root
}

func TestDebounceCoalescesRapidEvents(t *testing.T) {
	w, root := setup(t)
	sender := newFakeSender()
	w.Attach(sender)

	path := filepath.Join(root, "proj-a", "new.jsonl")
	for i := 0; i < 50; i++ {
		os.WriteFile(path, []byte("line\n"), 0o644)
	}

	select {
	case msg := <-sender.ch:
		if msg.Type != "projects_updated" {
			t.Errorf("Type = %q", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}

	select {
	case extra := <-sender.ch:
		t.Fatalf("expected exactly one broadcast, got extra: %+v", extra)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestBroadcastReportsChangedFile(t *testing.T) {
	w, root := setup(t)
	sender := newFakeSender()
	w.Attach(sender)

	path := filepath.Join(root, "proj-a", "new.jsonl")
	os.WriteFile(path, []byte("line\n"), 0o644)

	select {
	case msg := <-sender.ch:
		if msg.ChangedFile != "proj-a/new.jsonl" {
			t.Errorf("ChangedFile = %q", msg.ChangedFile)
		}
		if msg.ChangeType != "add" {
			t.Errorf("ChangeType = %q, want add", msg.ChangeType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestDetachStopsFutureBroadcasts(t *testing.T) {
	w, root := setup(t)
	sender := newFakeSender()
	w.Attach(sender)
	w.Detach(sender)

	path := filepath.Join(root, "proj-a", "new.jsonl")
	os.WriteFile(path, []byte("line\n"), 0o644)

	select {
	case msg := <-sender.ch:
		t.Fatalf("expected no broadcast after detach, got %+v", msg)
	case <-time.After(1 * time.Second):
	}
}

func TestIsIgnoredPath(t *testing.T) {
	root := "/agent-root"
	cases := map[string]bool{
		"/agent-root/proj/node_modules/x.js": true,
		"/agent-root/proj/.git/HEAD":         true,
		"/agent-root/proj/dist/out.js":       true,
		"/agent-root/proj/src/main.go":       false,
		"/agent-root/proj/.DS_Store":         true,
		"/agent-root/proj/file.swp":          true,
	}
	for path, want := range cases {
		if got := isIgnoredPath(root, path); got != want {
			t.Errorf("isIgnoredPath(%q) = %v, want %v", path, got, want)
		}
	}
}
