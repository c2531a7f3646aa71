package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nebula-tools/nebulactl/internal/audit"
	"github.com/nebula-tools/nebulactl/internal/cloud"
	"github.com/nebula-tools/nebulactl/internal/mapping"
	"github.com/nebula-tools/nebulactl/internal/sshconfig"
	"github.com/nebula-tools/nebulactl/internal/syncer"
	"github.com/nebula-tools/nebulactl/internal/tools"
	"github.com/nebula-tools/nebulactl/internal/ws"
)

// Server exposes host synchronization and tool execution over HTTP.
type Server struct {
	store    *mapping.Store
	syncer   *syncer.Syncer
	dir      cloud.Directory
	sshPath  string
	toolsDir string
	runner   *tools.Runner
	auditLog *audit.Log
	streamer *ws.Streamer
	mux      *http.ServeMux
}

// NewServer wires the routes. dir may be nil when the gcloud CLI is
// unavailable; sync requests must then carry an observed IP.
func NewServer(store *mapping.Store, sy *syncer.Syncer, dir cloud.Directory, sshPath, toolsDir string, auditLog *audit.Log) *Server {
	s := &Server{
		store:    store,
		syncer:   sy,
		dir:      dir,
		sshPath:  sshPath,
		toolsDir: toolsDir,
		runner:   tools.NewRunner(),
		auditLog: auditLog,
		mux:      http.NewServeMux(),
	}
	s.streamer = ws.NewStreamer(toolsDir, s.runner)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /hosts", s.handleHosts)
	s.mux.HandleFunc("GET /mappings", s.handleMappings)
	s.mux.HandleFunc("POST /sync", s.handleSync)
	s.mux.HandleFunc("GET /tools", s.handleListTools)
	s.mux.HandleFunc("POST /tools/run", s.handleRunTool)
	s.mux.HandleFunc("GET /tools/{name}/stream", s.streamer.ServeRun)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	content := sshconfig.LoadFile(s.sshPath)

	managed := make(map[string]bool)
	for _, a := range sshconfig.ManagedAliases(content) {
		managed[a] = true
	}
	dupes := make(map[string]bool)
	for _, a := range sshconfig.UnmanagedDuplicates(content) {
		dupes[a] = true
	}

	seen := make(map[string]bool)
	hosts := make([]HostInfo, 0)
	for _, alias := range sshconfig.Aliases(content) {
		if seen[alias] {
			continue
		}
		seen[alias] = true
		hosts = append(hosts, HostInfo{
			Alias:              alias,
			Managed:            managed[alias],
			UnmanagedDuplicate: dupes[alias],
		})
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleMappings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.All())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.InstanceName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "instanceName is required"})
		return
	}

	// Fall back to the stored record for location context.
	if req.Zone == "" || req.Project == "" {
		if m, ok := s.store.Get(req.InstanceName); ok {
			if req.Zone == "" {
				req.Zone = m.Zone
			}
			if req.Project == "" {
				req.Project = m.Project
			}
		}
	}

	if req.ObservedIP == "" {
		if s.dir == nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "observedIP is required (no cloud directory available)"})
			return
		}
		ip, err := s.dir.ExternalIP(r.Context(), req.InstanceName, req.Zone, req.Project)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error()})
			return
		}
		req.ObservedIP = ip
	}

	outcome, err := s.syncer.Sync(syncer.Request{
		InstanceName: req.InstanceName,
		Zone:         req.Zone,
		Project:      req.Project,
		ObservedIP:   req.ObservedIP,
		KeyPath:      req.KeyPath,
		User:         req.User,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	if err := s.auditLog.Record(r.Context(), "sync", req.InstanceName,
		fmt.Sprintf("outcome=%s ip=%s", outcome, req.ObservedIP)); err != nil {
		log.Printf("api: %v", err)
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Outcome:    string(outcome),
		ExternalIP: req.ObservedIP,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	descriptors, err := tools.Scan(s.toolsDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	infos := make([]ToolInfo, 0, len(descriptors))
	for _, d := range descriptors {
		infos = append(infos, ToolInfo{
			Name:        d.Name,
			EntryPoint:  d.EntryPoint,
			Description: d.Describe(),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	var req RunToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	desc, err := tools.Find(s.toolsDir, req.Name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	var stdout, stderr bytes.Buffer
	result, err := s.runner.Run(r.Context(), *desc, tools.RunOptions{
		Args:    req.Args,
		Timeout: time.Duration(req.TimeoutSeconds) * time.Second,
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	if err := s.auditLog.Record(r.Context(), "tool.run", req.Name,
		fmt.Sprintf("exit=%d terminated=%v", result.ExitCode, result.Terminated)); err != nil {
		log.Printf("api: %v", err)
	}

	writeJSON(w, http.StatusOK, RunToolResponse{
		ExitCode:   result.ExitCode,
		Terminated: result.Terminated,
		DurationMS: result.Duration.Milliseconds(),
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ListenAndServe(addr string, s *Server) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Write timeout stays off: tool streams are open-ended.
	}
	log.Printf("API server listening on %s", addr)
	return srv.ListenAndServe()
}
