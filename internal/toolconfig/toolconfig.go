// Package toolconfig reads the agent CLI's own hand-edited JSONC
// configuration file to answer questions about MCP tool-server
// registration without needing to shell out to the agent itself.
package toolconfig

import (
	"encoding/json"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/agentgate/agentgate/internal/gwerrors"
)

// document mirrors the parts of the agent CLI's config file this
// package cares about: a global mcpServers map, plus a per-project
// override keyed by absolute cwd.
type document struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
	Projects   map[string]struct {
		MCPServers map[string]json.RawMessage `json:"mcpServers"`
	} `json:"projects"`
}

// Reader answers queries against the agent's JSONC tool config file.
type Reader struct {
	path string
}

func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Path returns the on-disk location this reader was constructed with.
func (r *Reader) Path() string {
	return r.path
}

func (r *Reader) load() (document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, gwerrors.Wrap(gwerrors.Internal, "read tool config", err)
	}
	stripped := jsonc.ToJSON(data)
	var doc document
	if err := json.Unmarshal(stripped, &doc); err != nil {
		return document{}, gwerrors.Wrap(gwerrors.Internal, "parse tool config", err)
	}
	return doc, nil
}

// HasServer reports whether an MCP server named name is registered,
// either globally or scoped to cwd's project entry.
func (r *Reader) HasServer(name, cwd string) (bool, error) {
	doc, err := r.load()
	if err != nil {
		return false, err
	}
	if _, ok := doc.MCPServers[name]; ok {
		return true, nil
	}
	if cwd != "" {
		if proj, ok := doc.Projects[cwd]; ok {
			if _, ok := proj.MCPServers[name]; ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// ServerNames returns every MCP server name visible to cwd: the
// global set unioned with cwd's project-scoped set.
func (r *Reader) ServerNames(cwd string) ([]string, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for name := range doc.MCPServers {
		seen[name] = true
	}
	if cwd != "" {
		if proj, ok := doc.Projects[cwd]; ok {
			for name := range proj.MCPServers {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names, nil
}
