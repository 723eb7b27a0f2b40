// Package gateway wires the WebSocket endpoint that a browser UI uses
// to drive the agent CLI: one duplex socket per client, invocation
// dispatch to the agent runner, and registration with the filesystem
// watcher's broadcaster.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/agentgate/agentgate/internal/agentrunner"
	"github.com/agentgate/agentgate/internal/logger"
	"github.com/agentgate/agentgate/internal/project"
	"github.com/agentgate/agentgate/internal/watch"
	"github.com/agentgate/agentgate/internal/wsproto"
)

// outboundQueueSize bounds a client's send queue. Under backpressure,
// projects_updated frames are dropped first; invocation frames block
// the invocation's stdout pump until the queue drains.
const outboundQueueSize = 256

// AuditRecorder observes invocation lifecycle events for the audit
// trail. Implementations must not block the invocation.
type AuditRecorder interface {
	RecordStarted(id, alias, sessionID string, startedAt time.Time)
	RecordFinished(id string, finishedAt time.Time, exitCode int, aborted bool, errMsg string)
}

// Metrics observes gateway activity for operational visibility.
type Metrics interface {
	ObserveInvocation(durationSeconds float64, exitCode int, aborted bool)
	IncBroadcast()
}

// noopAudit and noopMetrics let the gateway run without either wired.
type noopAudit struct{}

func (noopAudit) RecordStarted(string, string, string, time.Time)               {}
func (noopAudit) RecordFinished(string, time.Time, int, bool, string) {}

type noopMetrics struct{}

func (noopMetrics) ObserveInvocation(float64, int, bool) {}
func (noopMetrics) IncBroadcast()                        {}

// Gateway owns the process-lifetime state a top-level daemon needs:
// the WebSocket endpoint, the attached-client set, and the wiring
// between C2/C5/C6 that the design notes call out as needing an
// explicit owner instead of module-global singletons.
type Gateway struct {
	registry *project.Registry
	runner   *agentrunner.Runner
	watcher  *watch.Watcher
	audit    AuditRecorder
	metrics  Metrics

	mu      sync.Mutex
	clients map[*client]bool
}

func New(registry *project.Registry, runner *agentrunner.Runner, watcher *watch.Watcher) *Gateway {
	return &Gateway{
		registry: registry,
		runner:   runner,
		watcher:  watcher,
		audit:    noopAudit{},
		metrics:  noopMetrics{},
		clients:  make(map[*client]bool),
	}
}

func (g *Gateway) SetAudit(a AuditRecorder) { g.audit = a }
func (g *Gateway) SetMetrics(m Metrics)     { g.metrics = m }

// client is one attached socket. It owns the invocations it started
// and is aborted-out when it disconnects.
type client struct {
	conn *websocket.Conn
	gw   *Gateway

	out chan any

	mu          sync.Mutex
	invocations map[string]bool // invocationId/sessionId this socket owns
}

// Send implements watch.Sender: a non-blocking enqueue. If the client's
// queue is saturated the frame is dropped; Send always reports true, so
// the client stays attached.
func (c *client) Send(msg watch.ProjectsUpdated) bool {
	frame := wsproto.ProjectsUpdated{
		Type:        wsproto.TypeProjectsUpdated,
		Projects:    msg.Projects,
		Timestamp:   msg.Timestamp.Format(time.RFC3339),
		ChangeType:  msg.ChangeType,
		ChangedFile: msg.ChangedFile,
	}
	c.gw.metrics.IncBroadcast()
	select {
	case c.out <- frame:
		return true
	default:
		// projects_updated is droppable under backpressure.
		return true
	}
}

// sendInvocationFrame never drops: it blocks until the queue drains,
// matching the backpressure policy for invocation frames.
func (c *client) sendInvocationFrame(frame any) {
	c.out <- frame
}

// ServeHTTP upgrades the connection and runs the client's duplex
// loops until the socket closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Warn("gateway: websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(16 * 1024 * 1024)

	c := &client{
		conn:        conn,
		gw:          g,
		out:         make(chan any, outboundQueueSize),
		invocations: make(map[string]bool),
	}

	g.mu.Lock()
	g.clients[c] = true
	g.mu.Unlock()
	g.watcher.Attach(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.readLoop(ctx, cancel)
	}()
	wg.Wait()

	g.watcher.Detach(c)
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()

	// On close, abort every invocation this socket owned.
	c.mu.Lock()
	owned := make([]string, 0, len(c.invocations))
	for id := range c.invocations {
		owned = append(owned, id)
	}
	c.mu.Unlock()
	for _, id := range owned {
		g.runner.Abort(id)
	}

	conn.CloseNow()
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.out:
			data, err := json.Marshal(frame)
			if err != nil {
				logger.Warn("gateway: marshal outbound frame failed", "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		frame, err := wsproto.DecodeInbound(data)
		if err != nil {
			c.sendInvocationFrame(wsproto.NewProtocolError(err.Error()))
			continue
		}
		switch f := frame.(type) {
		case *wsproto.ClaudeCommand:
			c.gw.handleClaudeCommand(ctx, c, f)
		case *wsproto.AbortSession:
			success := c.gw.runner.Abort(f.SessionID)
			c.mu.Lock()
			delete(c.invocations, f.SessionID)
			c.mu.Unlock()
			c.sendInvocationFrame(wsproto.NewSessionAborted(f.SessionID, success))
		}
	}
}

// frameSink adapts a *client into agentrunner.Sink, forwarding each
// agentrunner-emitted wsproto frame unchanged.
type frameSink struct {
	c *client
}

func (s frameSink) Send(frame any) {
	s.c.sendInvocationFrame(frame)
}

func (g *Gateway) handleClaudeCommand(ctx context.Context, c *client, cmd *wsproto.ClaudeCommand) {
	realCWD := cmd.Options.CWD
	if realCWD == "" {
		realCWD = cmd.Options.ProjectPath
	}

	invocationID := uuid.NewString()
	c.mu.Lock()
	c.invocations[invocationID] = true
	c.mu.Unlock()

	opts := agentrunner.Options{
		Command:        cmd.Command,
		CWD:            realCWD,
		SessionID:      cmd.Options.SessionID,
		Resume:         cmd.Options.Resume,
		PermissionMode: cmd.Options.PermissionMode,
		ExtraEnv:       cmd.Options.Env,
	}
	if cmd.Options.ToolsSettings != nil {
		opts.Tools = agentrunner.ToolsSettings{
			AllowedTools:    cmd.Options.ToolsSettings.AllowedTools,
			DisallowedTools: cmd.Options.ToolsSettings.DisallowedTools,
			SkipPermissions: cmd.Options.ToolsSettings.SkipPermissions,
		}
	}
	for _, img := range cmd.Options.Images {
		opts.Images = append(opts.Images, agentrunner.Image{
			Name:     img.Name,
			Data:     img.Data,
			MimeType: img.MimeType,
		})
	}

	go func() {
		start := time.Now()
		g.audit.RecordStarted(invocationID, aliasFor(realCWD), cmd.Options.SessionID, start)

		result, err := g.runner.Start(ctx, invocationID, opts, frameSink{c: c})

		aborted := result.Aborted || errors.Is(err, agentrunner.ErrAborted)
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		g.audit.RecordFinished(invocationID, time.Now(), result.ExitCode, aborted, errMsg)
		g.metrics.ObserveInvocation(time.Since(start).Seconds(), result.ExitCode, aborted)

		c.mu.Lock()
		delete(c.invocations, invocationID)
		c.mu.Unlock()
	}()
}

// aliasFor derives the alias the audit trail should attribute an
// invocation to, from the real cwd it was launched in.
func aliasFor(cwd string) string {
	if cwd == "" {
		return ""
	}
	return project.AliasOf(cwd)
}
