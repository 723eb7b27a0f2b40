package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/agentgate/agentgate/internal/agentrunner"
	"github.com/agentgate/agentgate/internal/project"
	"github.com/agentgate/agentgate/internal/watch"
)

type fakeEnv struct{}

func (fakeEnv) AsRecord() map[string]string { return nil }

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestServer(t *testing.T, binary string) (*httptest.Server, func()) {
	root := t.TempDir()
	reg := project.NewRegistry(filepath.Join(root, "projects"), filepath.Join(root, "project-config.json"))
	w, err := watch.New(filepath.Join(root, "projects"), reg)
	if err != nil {
		t.Fatal(err)
	}
	go w.Run()

	toolConfig := filepath.Join(root, "toolconfig.json")
	runner := agentrunner.New(binary, toolConfig, fakeEnv{})
	gw := New(reg, runner, w)

	srv := httptest.NewServer(gw)
	return srv, w.Stop
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return m
}

func TestNewSessionScenario(t *testing.T) {
	script := writeScript(t, `echo '{"session_id":"abc","type":"assistant","message":{"role":"assistant","content":"hi"}}'
exit 0
`)
	srv, stop := newTestServer(t, script)
	defer srv.Close()
	defer stop()

	conn := dial(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	cwd := t.TempDir()
	cmd := map[string]any{
		"type":    "claude-command",
		"command": "hello",
		"options": map[string]any{"cwd": cwd, "projectPath": cwd},
	}
	body, _ := json.Marshal(cmd)
	if err := conn.Write(context.Background(), websocket.MessageText, body); err != nil {
		t.Fatal(err)
	}

	created := readFrame(t, conn, 5*time.Second)
	if created["type"] != "session-created" || created["sessionId"] != "abc" {
		t.Fatalf("expected session-created(abc), got %+v", created)
	}
	response := readFrame(t, conn, 5*time.Second)
	if response["type"] != "agent-response" {
		t.Fatalf("expected agent-response, got %+v", response)
	}
	complete := readFrame(t, conn, 5*time.Second)
	if complete["type"] != "agent-complete" {
		t.Fatalf("expected agent-complete, got %+v", complete)
	}
	if complete["isNewSession"] != true {
		t.Errorf("expected isNewSession=true, got %+v", complete)
	}
}

func TestAbortSessionScenario(t *testing.T) {
	script := writeScript(t, `echo '{"session_id":"abc","type":"assistant","message":{"role":"assistant","content":"hi"}}'
trap 'exit 143' TERM
sleep 30
`)
	srv, stop := newTestServer(t, script)
	defer srv.Close()
	defer stop()

	conn := dial(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	cwd := t.TempDir()
	cmd := map[string]any{
		"type":    "claude-command",
		"command": "hello",
		"options": map[string]any{"cwd": cwd, "projectPath": cwd},
	}
	body, _ := json.Marshal(cmd)
	conn.Write(context.Background(), websocket.MessageText, body)

	created := readFrame(t, conn, 5*time.Second)
	if created["type"] != "session-created" {
		t.Fatalf("expected session-created, got %+v", created)
	}
	readFrame(t, conn, 5*time.Second) // agent-response

	abort := map[string]any{"type": "abort-session", "sessionId": "abc"}
	abortBody, _ := json.Marshal(abort)
	conn.Write(context.Background(), websocket.MessageText, abortBody)

	aborted := readFrame(t, conn, 5*time.Second)
	if aborted["type"] != "session-aborted" || aborted["success"] != true {
		t.Fatalf("expected session-aborted(abc,true), got %+v", aborted)
	}

	complete := readFrame(t, conn, 5*time.Second)
	if complete["type"] != "agent-complete" {
		t.Fatalf("expected agent-complete, got %+v", complete)
	}

	conn.Write(context.Background(), websocket.MessageText, abortBody)
	secondAbort := readFrame(t, conn, 5*time.Second)
	if secondAbort["success"] != false {
		t.Errorf("expected second abort to report success=false, got %+v", secondAbort)
	}
}

func TestUnknownFrameTypeRepliesProtocolError(t *testing.T) {
	script := writeScript(t, `exit 0`)
	srv, stop := newTestServer(t, script)
	defer srv.Close()
	defer stop()

	conn := dial(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	bad := map[string]any{"type": "do-a-flip"}
	body, _ := json.Marshal(bad)
	conn.Write(context.Background(), websocket.MessageText, body)

	frame := readFrame(t, conn, 5*time.Second)
	if frame["type"] != "error" {
		t.Fatalf("expected error frame, got %+v", frame)
	}
}
