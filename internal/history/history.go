// Package history reads and rewrites the append-only NDJSON session
// logs kept under each project alias directory.
package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agentgate/agentgate/internal/gwerrors"
	"github.com/agentgate/agentgate/internal/logger"
)

// PartKind discriminates the tagged sum of message content parts.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
	PartOther      PartKind = "other"
)

// Part is one element of a message's content. Kind Other preserves the
// raw object verbatim so round-trips lose nothing.
type Part struct {
	Kind       PartKind        `json:"kind"`
	Text       string          `json:"text,omitempty"`
	ToolUseID  string          `json:"toolUseId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`
	ToolResult json.RawMessage `json:"toolResult,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Message is one qualifying (role in {user,assistant}) log line.
type Message struct {
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
	CWD       string    `json:"cwd,omitempty"`
}

// Summary is the derived per-session listing view.
type Summary struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
	CWD          string    `json:"cwd,omitempty"`
}

// rawLine mirrors the on-disk shape of one NDJSON line.
type rawLine struct {
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	CWD       string          `json:"cwd"`
	Summary   string          `json:"summary"`
	Message   *rawMessage     `json:"message"`
	Raw       json.RawMessage `json:"-"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawPart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// Reader reads and rewrites session logs under an agent root.
type Reader struct {
	agentRoot string
}

func NewReader(agentRoot string) *Reader {
	return &Reader{agentRoot: agentRoot}
}

func (r *Reader) aliasDir(alias string) string {
	return filepath.Join(r.agentRoot, alias)
}

// logFilesNewestFirst lists the .jsonl files under alias's directory,
// sorted newest-first by mtime for locality.
func (r *Reader) logFilesNewestFirst(alias string) ([]string, error) {
	dir := r.aliasDir(alias)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, gwerrors.Wrap(gwerrors.Internal, "read alias dir", err)
	}
	type fileInfo struct {
		name    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Join(dir, f.name)
	}
	return out, nil
}

func parseLine(line []byte) (rawLine, bool) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return rawLine{}, false
	}
	var rl rawLine
	if err := json.Unmarshal(line, &rl); err != nil {
		return rawLine{}, false
	}
	if rl.SessionID == "" {
		return rawLine{}, false
	}
	rl.Raw = append([]byte(nil), line...)
	return rl, true
}

func parseParts(content json.RawMessage) []Part {
	if len(content) == 0 {
		return nil
	}
	// Content is either a bare string or an array of typed parts.
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []Part{{Kind: PartText, Text: asString}}
	}
	var rawParts []json.RawMessage
	if err := json.Unmarshal(content, &rawParts); err != nil {
		return []Part{{Kind: PartOther, Raw: content}}
	}
	parts := make([]Part, 0, len(rawParts))
	for _, rp := range rawParts {
		var p rawPart
		if err := json.Unmarshal(rp, &p); err != nil {
			parts = append(parts, Part{Kind: PartOther, Raw: rp})
			continue
		}
		switch p.Type {
		case "text":
			parts = append(parts, Part{Kind: PartText, Text: p.Text})
		case "tool_use":
			parts = append(parts, Part{Kind: PartToolUse, ToolUseID: p.ID, ToolName: p.Name, ToolInput: p.Input})
		case "tool_result":
			parts = append(parts, Part{Kind: PartToolResult, ToolUseID: p.ToolUseID, ToolResult: p.Content, IsError: p.IsError})
		default:
			parts = append(parts, Part{Kind: PartOther, Raw: rp})
		}
	}
	return parts
}

func partsText(parts []Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Kind == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// qualifies reports whether a parsed line counts toward message
// counts and chronological listings: role must be user or assistant.
func (rl rawLine) qualifies() bool {
	return rl.Message != nil && (rl.Message.Role == "user" || rl.Message.Role == "assistant")
}

func (rl rawLine) toMessage() Message {
	ts, _ := time.Parse(time.RFC3339, rl.Timestamp)
	m := Message{
		SessionID: rl.SessionID,
		Timestamp: ts,
		CWD:       rl.CWD,
	}
	if rl.Message != nil {
		m.Role = rl.Message.Role
		m.Parts = parseParts(rl.Message.Content)
	}
	return m
}

type sessionAccum struct {
	firstFile    string
	overrideText string // from a `type:"summary"` line
	firstUserMsg string
	messageCount int
	lastActivity time.Time
	cwd          string
}

// ListSessions merges per-sessionId summaries across every .jsonl file
// in alias's directory and returns a page sorted by descending
// lastActivity.
func (r *Reader) ListSessions(alias string, limit, offset int) (sessions []Summary, total int, hasMore bool, err error) {
	files, err := r.logFilesNewestFirst(alias)
	if err != nil {
		return nil, 0, false, err
	}

	accum := make(map[string]*sessionAccum)
	order := make([]string, 0)

	// files is already newest-first; the first file to touch a
	// sessionId wins the summary text (first-writer-wins).
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			logger.Warn("history: open log file failed", "path", path, "error", err)
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			rl, ok := parseLine(scanner.Bytes())
			if !ok {
				continue
			}
			a, seen := accum[rl.SessionID]
			if !seen {
				a = &sessionAccum{firstFile: path}
				accum[rl.SessionID] = a
				order = append(order, rl.SessionID)
			}
			ts, _ := time.Parse(time.RFC3339, rl.Timestamp)
			if ts.After(a.lastActivity) {
				a.lastActivity = ts
			}
			if rl.CWD != "" && a.cwd == "" {
				a.cwd = rl.CWD
			}
			if rl.Type == "summary" && rl.Summary != "" && a.firstFile == path && a.overrideText == "" {
				a.overrideText = rl.Summary
			}
			if rl.qualifies() {
				a.messageCount++
				if rl.Message.Role == "user" && a.firstUserMsg == "" && a.firstFile == path {
					text := partsText(parseParts(rl.Message.Content))
					if !strings.HasPrefix(strings.TrimSpace(text), "<command-name>") {
						a.firstUserMsg = text
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("history: scan error", "path", path, "error", err)
		}
		f.Close()
	}

	all := make([]Summary, 0, len(order))
	for _, id := range order {
		a := accum[id]
		text := a.overrideText
		if text == "" {
			text = truncate(a.firstUserMsg, 50)
		}
		all = append(all, Summary{
			ID:           id,
			Summary:      text,
			LastActivity: a.lastActivity,
			MessageCount: a.messageCount,
			CWD:          a.cwd,
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastActivity.After(all[j].LastActivity) })

	total = len(all)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := all[start:end]
	return page, total, end < total, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// GetMessages returns messages for sessionId across every log file,
// merged and sorted chronologically. When limit is 0 the full list is
// returned; otherwise the last `limit` messages offset from the tail
// (offset counts from the newest).
func (r *Reader) GetMessages(alias, sessionID string, limit, offset int) (messages []Message, total int, hasMore bool, err error) {
	files, err := r.logFilesNewestFirst(alias)
	if err != nil {
		return nil, 0, false, err
	}

	var all []Message
	found := false
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			rl, ok := parseLine(scanner.Bytes())
			if !ok || rl.SessionID != sessionID {
				continue
			}
			found = true
			if rl.qualifies() {
				all = append(all, rl.toMessage())
			}
		}
		f.Close()
	}
	if !found {
		return nil, 0, false, gwerrors.New(gwerrors.NotFound, "no such session: "+sessionID)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	total = len(all)

	if limit <= 0 {
		return all, total, false, nil
	}
	end := total - offset
	if end < 0 {
		end = 0
	}
	if end > total {
		end = total
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return all[start:end], total, start > 0, nil
}

// DeleteSession removes every line bearing sessionId from every
// .jsonl file under alias's directory, preserving all other lines
// (including malformed ones) verbatim. Fails if no file contains the
// session.
func (r *Reader) DeleteSession(alias, sessionID string) error {
	files, err := r.logFilesNewestFirst(alias)
	if err != nil {
		return err
	}

	touched := false
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("history: read for delete failed", "path", path, "error", err)
			continue
		}
		lines := strings.Split(string(data), "\n")
		// Split on a trailing newline leaves a final empty element; drop it
		// so we don't invent a phantom blank line on rewrite.
		trailingNewline := strings.HasSuffix(string(data), "\n")
		if trailingNewline && len(lines) > 0 {
			lines = lines[:len(lines)-1]
		}

		var kept []string
		fileTouched := false
		for _, line := range lines {
			rl, ok := parseLine([]byte(line))
			if ok && rl.SessionID == sessionID {
				fileTouched = true
				continue
			}
			kept = append(kept, line)
		}
		if !fileTouched {
			continue
		}
		touched = true

		body := strings.Join(kept, "\n")
		if body != "" {
			body += "\n"
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return gwerrors.Wrap(gwerrors.Internal, "rewrite log file", err)
		}
	}

	if !touched {
		return gwerrors.New(gwerrors.NotFound, "no log contains session: "+sessionID)
	}
	return nil
}
