// Package project discovers agent project directories on disk, tracks
// manually-added and renamed projects in a sidecar file, and resolves
// aliases to real filesystem paths.
package project

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentgate/agentgate/internal/gwerrors"
)

// Origin describes how a project was discovered.
type Origin string

const (
	OriginAgentManaged  Origin = "agent-managed"
	OriginManuallyAdded Origin = "manually-added"
)

// Project is one discovered or manually-registered project.
type Project struct {
	Alias        string `json:"alias"`
	RealPath     string `json:"realPath"`
	DisplayName  string `json:"displayName"`
	Origin       Origin `json:"origin"`
	SessionCount int    `json:"sessionCount"`
}

// junkNames are OS artifacts filtered out of directory scans.
var junkNames = map[string]bool{
	".DS_Store": true,
	"Thumbs.db": true,
	"desktop.ini": true,
}

type sidecarEntry struct {
	ManuallyAdded bool   `json:"manuallyAdded,omitempty"`
	OriginalPath  string `json:"originalPath,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
}

// Registry discovers and manages the alias <-> real-path mapping.
type Registry struct {
	agentRoot   string
	sidecarPath string

	mu      sync.Mutex
	cache   map[string]string // alias -> real path, write-once per alias
	sidecar map[string]sidecarEntry
	loaded  bool
}

func NewRegistry(agentRoot, sidecarPath string) *Registry {
	return &Registry{
		agentRoot:   agentRoot,
		sidecarPath: sidecarPath,
		cache:       make(map[string]string),
		sidecar:     make(map[string]sidecarEntry),
	}
}

// AliasOf derives an alias from a real path by replacing path
// separators with "-". Alias <-> real path is a function: one alias
// per path.
func AliasOf(realPath string) string {
	return strings.ReplaceAll(filepath.ToSlash(realPath), "/", "-")
}

// decodeAlias is the inverse of AliasOf, used only when no on-disk
// evidence of the real path exists.
func decodeAlias(alias string) string {
	return strings.ReplaceAll(alias, "-", "/")
}

func (r *Registry) loadSidecar() error {
	if r.loaded {
		return nil
	}
	r.loaded = true
	data, err := os.ReadFile(r.sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return gwerrors.Wrap(gwerrors.Internal, "read sidecar", err)
	}
	var entries map[string]sidecarEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "parse sidecar", err)
	}
	r.sidecar = entries
	return nil
}

func (r *Registry) saveSidecar() error {
	if err := os.MkdirAll(filepath.Dir(r.sidecarPath), 0o755); err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "mkdir sidecar dir", err)
	}
	data, err := json.MarshalIndent(r.sidecar, "", "  ")
	if err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "marshal sidecar", err)
	}
	if err := os.WriteFile(r.sidecarPath, data, 0o644); err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "write sidecar", err)
	}
	return nil
}

// Discover enumerates agent-managed project directories plus manually
// added sidecar entries, resolving each alias's real path and display
// name.
func (r *Registry) Discover() ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadSidecar(); err != nil {
		return nil, err
	}

	aliasSet := make(map[string]bool)

	entries, err := os.ReadDir(r.agentRoot)
	if err != nil && !os.IsNotExist(err) {
		return nil, gwerrors.Wrap(gwerrors.Internal, "read agent root", err)
	}
	for _, e := range entries {
		if !e.IsDir() || junkNames[e.Name()] {
			continue
		}
		aliasSet[e.Name()] = true
	}
	for alias, entry := range r.sidecar {
		if entry.ManuallyAdded {
			aliasSet[alias] = true
		}
	}

	aliases := make([]string, 0, len(aliasSet))
	for a := range aliasSet {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)

	projects := make([]Project, 0, len(aliases))
	for _, alias := range aliases {
		realPath := r.resolveRealPathLocked(alias)
		origin := OriginAgentManaged
		if entry, ok := r.sidecar[alias]; ok && entry.ManuallyAdded {
			origin = OriginManuallyAdded
		}
		count := countSessions(filepath.Join(r.agentRoot, alias))
		projects = append(projects, Project{
			Alias:        alias,
			RealPath:     realPath,
			DisplayName:  r.displayNameLocked(alias, realPath),
			Origin:       origin,
			SessionCount: count,
		})
	}
	return projects, nil
}

// resolveRealPathLocked resolves and memoizes alias's real path. Callers
// must hold r.mu.
func (r *Registry) resolveRealPathLocked(alias string) string {
	if cached, ok := r.cache[alias]; ok {
		return cached
	}
	if entry, ok := r.sidecar[alias]; ok && entry.OriginalPath != "" {
		r.cache[alias] = entry.OriginalPath
		return entry.OriginalPath
	}

	dir := filepath.Join(r.agentRoot, alias)
	counts, latest := scanCWDs(dir)

	var real string
	if len(counts) > 0 {
		var bestCWD string
		bestCount := -1
		for cwd, n := range counts {
			if n > bestCount {
				bestCount = n
				bestCWD = cwd
			}
		}
		var latestCWD string
		var latestTime time.Time
		for cwd, t := range latest {
			if t.After(latestTime) {
				latestTime = t
				latestCWD = cwd
			}
		}
		real = bestCWD
		if latestCWD != "" && latestCWD != bestCWD {
			latestCount := counts[latestCWD]
			// Latest-seen cwd wins if its count is at least 30% of the
			// most frequent cwd's count.
			if float64(latestCount) >= 0.3*float64(bestCount) {
				real = latestCWD
			}
		}
	} else {
		real = decodeAlias(alias)
	}

	r.cache[alias] = real
	return real
}

// scanCWDs scans every .jsonl file under dir for `cwd` occurrences,
// returning per-cwd frequency and the latest timestamp seen for each.
func scanCWDs(dir string) (counts map[string]int, latest map[string]time.Time) {
	counts = make(map[string]int)
	latest = make(map[string]time.Time)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return counts, latest
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}
			var rec struct {
				CWD       string `json:"cwd"`
				Timestamp string `json:"timestamp"`
			}
			if err := json.Unmarshal(line, &rec); err != nil || rec.CWD == "" {
				continue
			}
			counts[rec.CWD]++
			if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
				if ts.After(latest[rec.CWD]) {
					latest[rec.CWD] = ts
				}
			}
		}
		f.Close()
	}
	return counts, latest
}

// countSessions returns the number of distinct sessionIds referenced
// by .jsonl files under dir.
func countSessions(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	ids := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			var rec struct {
				SessionID string `json:"sessionId"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &rec); err == nil && rec.SessionID != "" {
				ids[rec.SessionID] = true
			}
		}
		f.Close()
	}
	return len(ids)
}

// displayNameLocked resolves the display name for alias per the
// resolution order: sidecar override -> manifest name -> final path
// segment -> decoded alias. Callers must hold r.mu.
func (r *Registry) displayNameLocked(alias, realPath string) string {
	if entry, ok := r.sidecar[alias]; ok && entry.DisplayName != "" {
		return entry.DisplayName
	}
	if name := manifestName(realPath); name != "" {
		return name
	}
	if realPath != "" {
		if base := filepath.Base(realPath); base != "." && base != "/" {
			return base
		}
	}
	return decodeAlias(alias)
}

// manifestName reads the "name" field of a package.json-style manifest
// at realPath, if present.
func manifestName(realPath string) string {
	if realPath == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(realPath, "package.json"))
	if err != nil {
		return ""
	}
	var manifest struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	return manifest.Name
}

// ResolveAlias returns the real path for alias.
func (r *Registry) ResolveAlias(alias string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadSidecar(); err != nil {
		return "", err
	}
	real := r.resolveRealPathLocked(alias)
	if real == "" {
		return "", gwerrors.New(gwerrors.NotFound, "unknown project alias: "+alias)
	}
	return real, nil
}

// AddManual registers path as a manually-added project.
func (r *Registry) AddManual(path, displayName string) (Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadSidecar(); err != nil {
		return Project{}, err
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return Project{}, gwerrors.New(gwerrors.InvalidArgument, "path does not exist: "+path)
	}

	alias := AliasOf(path)
	if _, ok := r.sidecar[alias]; ok {
		return Project{}, gwerrors.New(gwerrors.Conflict, "alias already exists: "+alias)
	}
	if _, ok := r.cache[alias]; ok {
		return Project{}, gwerrors.New(gwerrors.Conflict, "alias already exists: "+alias)
	}

	r.sidecar[alias] = sidecarEntry{
		ManuallyAdded: true,
		OriginalPath:  path,
		DisplayName:   displayName,
	}
	if err := r.saveSidecar(); err != nil {
		return Project{}, err
	}
	r.cache[alias] = path

	return Project{
		Alias:       alias,
		RealPath:    path,
		DisplayName: r.displayNameLocked(alias, path),
		Origin:      OriginManuallyAdded,
	}, nil
}

// Rename sets alias's display-name override. An empty name clears it.
func (r *Registry) Rename(alias, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadSidecar(); err != nil {
		return err
	}
	entry := r.sidecar[alias]
	entry.DisplayName = displayName
	r.sidecar[alias] = entry
	return r.saveSidecar()
}

// Delete removes alias's directory and sidecar entry. It fails unless
// every .jsonl under the alias directory is effectively empty.
func (r *Registry) Delete(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadSidecar(); err != nil {
		return err
	}

	dir := filepath.Join(r.agentRoot, alias)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			delete(r.sidecar, alias)
			delete(r.cache, alias)
			return r.saveSidecar()
		}
		return gwerrors.Wrap(gwerrors.Internal, "read project dir", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				return gwerrors.New(gwerrors.Conflict, "project has non-empty sessions: "+alias)
			}
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "remove project dir", err)
	}
	delete(r.sidecar, alias)
	delete(r.cache, alias)
	return r.saveSidecar()
}
