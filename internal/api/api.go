// Package api implements the thin HTTP surface a browser UI (or any
// other sibling client) uses to manage env vars, browse projects and
// session history, and read/write files under a project root. It is a
// reference implementation of the out-of-core HTTP contract: the
// gateway's WebSocket endpoint is the system's core, this package
// exists so that contract has a runnable, testable shape.
package api

import (
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentgate/agentgate/internal/audit"
	"github.com/agentgate/agentgate/internal/envstore"
	"github.com/agentgate/agentgate/internal/gwerrors"
	"github.com/agentgate/agentgate/internal/history"
	"github.com/agentgate/agentgate/internal/metrics"
	"github.com/agentgate/agentgate/internal/project"
	"github.com/agentgate/agentgate/internal/sandbox"
	"github.com/agentgate/agentgate/internal/toolconfig"
)

// Server hosts the sibling HTTP surface.
type Server struct {
	env        *envstore.Store
	registry   *project.Registry
	history    *history.Reader
	audit      *audit.Store
	toolConfig *toolconfig.Reader
}

func New(env *envstore.Store, registry *project.Registry, hist *history.Reader, auditStore *audit.Store, toolReader *toolconfig.Reader) *Server {
	return &Server{env: env, registry: registry, history: hist, audit: auditStore, toolConfig: toolReader}
}

// Router builds the chi.Router mounting every route this surface
// serves, including /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/env", func(r chi.Router) {
		r.Get("/", s.handleListEnv)
		r.Put("/", s.handleBulkSetEnv)
		r.Get("/{key}", s.handleGetEnv)
		r.Put("/{key}", s.handleSetEnv)
		r.Delete("/{key}", s.handleDeleteEnv)
	})

	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleAddProject)
		r.Put("/{alias}", s.handleRenameProject)
		r.Delete("/{alias}", s.handleDeleteProject)

		r.Route("/{alias}/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Get("/{sessionId}/messages", s.handleGetMessages)
			r.Delete("/{sessionId}", s.handleDeleteSession)
		})

		r.Route("/{alias}/files", func(r chi.Router) {
			r.Get("/*", s.handleReadFile)
			r.Put("/*", s.handleWriteFile)
		})

		r.Get("/{alias}/invocations", s.handleListInvocations)
		r.Get("/{alias}/tools/{name}", s.handleHasServer)
	})

	r.Route("/api/files", func(r chi.Router) {
		r.Get("/", s.handleReadAbsoluteFile)
		r.Put("/", s.handleWriteAbsoluteFile)
	})

	r.Get("/api/invocations/{id}", s.handleGetInvocation)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"status": "ok"})
}

// --- env vars ---

func (s *Server) handleListEnv(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"vars": s.env.List()})
}

func (s *Server) handleGetEnv(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, ok := s.env.Get(key)
	if !ok {
		respondError(w, gwerrors.New(gwerrors.NotFound, "no such env var: "+key))
		return
	}
	respondJSON(w, v)
}

type setEnvRequest struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

func (s *Server) handleSetEnv(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req setEnvRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, gwerrors.Wrap(gwerrors.InvalidArgument, "malformed body", err))
		return
	}
	v, err := s.env.Set(key, req.Value, req.Description)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, v)
}

func (s *Server) handleBulkSetEnv(w http.ResponseWriter, r *http.Request) {
	var kv map[string]string
	if err := decodeJSON(r, &kv); err != nil {
		respondError(w, gwerrors.Wrap(gwerrors.InvalidArgument, "malformed body", err))
		return
	}
	out, err := s.env.BulkSet(kv)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{"vars": out})
}

func (s *Server) handleDeleteEnv(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.env.Delete(key) {
		respondError(w, gwerrors.New(gwerrors.NotFound, "no such env var: "+key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- projects ---

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.registry.Discover()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{"projects": projects})
}

type addProjectRequest struct {
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	var req addProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, gwerrors.Wrap(gwerrors.InvalidArgument, "malformed body", err))
		return
	}
	p, err := s.registry.AddManual(req.Path, req.DisplayName)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, p)
}

type renameProjectRequest struct {
	DisplayName string `json:"displayName"`
}

func (s *Server) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	var req renameProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, gwerrors.Wrap(gwerrors.InvalidArgument, "malformed body", err))
		return
	}
	if err := s.registry.Rename(alias, req.DisplayName); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if err := s.registry.Delete(alias); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- session history ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	limit, offset := pagingParams(r)
	sessions, total, hasMore, err := s.history.ListSessions(alias, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{"sessions": sessions, "total": total, "hasMore": hasMore})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	sessionID := chi.URLParam(r, "sessionId")
	limit, offset := pagingParams(r)
	messages, total, hasMore, err := s.history.GetMessages(alias, sessionID, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{"messages": messages, "total": total, "hasMore": hasMore})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	sessionID := chi.URLParam(r, "sessionId")
	if err := s.history.DeleteSession(alias, sessionID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- invocation audit trail (read-only) ---

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	limit, _ := pagingParams(r)
	records, err := s.audit.ListByAlias(alias, limit)
	if err != nil {
		respondError(w, gwerrors.Wrap(gwerrors.Internal, "list invocations", err))
		return
	}
	respondJSON(w, map[string]any{"invocations": records})
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.audit.Get(id)
	if err != nil {
		respondError(w, gwerrors.Wrap(gwerrors.Internal, "get invocation", err))
		return
	}
	if rec == nil {
		respondError(w, gwerrors.New(gwerrors.NotFound, "no such invocation: "+id))
		return
	}
	respondJSON(w, rec)
}

// --- MCP tool-server discovery ---

func (s *Server) handleHasServer(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	name := chi.URLParam(r, "name")
	root, err := s.registry.ResolveAlias(alias)
	if err != nil {
		respondError(w, err)
		return
	}
	ok, err := s.toolConfig.HasServer(name, root)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{"available": ok})
}

func pagingParams(r *http.Request) (limit, offset int) {
	limit = atoiOr(r.URL.Query().Get("limit"), 0)
	offset = atoiOr(r.URL.Query().Get("offset"), 0)
	return limit, offset
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// --- file access ---
//
// Project-scoped routes resolve rel paths through sandbox.ResolveProjectRelative,
// confining access to the project's real root. The /api/files routes accept an
// absolute path and use sandbox.ResolveAbsolute, matching the two sandbox modes
// the wire contract distinguishes.

const maxFileSize = 8 * 1024 * 1024

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	rel := chi.URLParam(r, "*")
	root, err := s.registry.ResolveAlias(alias)
	if err != nil {
		respondError(w, err)
		return
	}
	path, err := sandbox.ResolveProjectRelative(root, rel)
	if err != nil {
		respondError(w, err)
		return
	}
	serveFile(w, path)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	rel := chi.URLParam(r, "*")
	root, err := s.registry.ResolveAlias(alias)
	if err != nil {
		respondError(w, err)
		return
	}
	path, err := sandbox.ResolveProjectRelative(root, rel)
	if err != nil {
		respondError(w, err)
		return
	}
	writeFile(w, r, path)
}

func (s *Server) handleReadAbsoluteFile(w http.ResponseWriter, r *http.Request) {
	path, err := sandbox.ResolveAbsolute(r.URL.Query().Get("path"))
	if err != nil {
		respondError(w, err)
		return
	}
	serveFile(w, path)
}

func (s *Server) handleWriteAbsoluteFile(w http.ResponseWriter, r *http.Request) {
	path, err := sandbox.ResolveAbsolute(r.URL.Query().Get("path"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeFile(w, r, path)
}

func serveFile(w http.ResponseWriter, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			respondError(w, gwerrors.New(gwerrors.NotFound, "no such file: "+path))
			return
		}
		if os.IsPermission(err) {
			respondError(w, gwerrors.Wrap(gwerrors.PermissionDenied, "read file", err))
			return
		}
		respondError(w, gwerrors.Wrap(gwerrors.Internal, "read file", err))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func writeFile(w http.ResponseWriter, r *http.Request, path string) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxFileSize+1))
	if err != nil {
		respondError(w, gwerrors.Wrap(gwerrors.InvalidArgument, "read request body", err))
		return
	}
	if len(data) > maxFileSize {
		respondError(w, gwerrors.New(gwerrors.InvalidArgument, "file exceeds maximum size"))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		if os.IsPermission(err) {
			respondError(w, gwerrors.Wrap(gwerrors.PermissionDenied, "write file", err))
			return
		}
		respondError(w, gwerrors.Wrap(gwerrors.Internal, "write file", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
