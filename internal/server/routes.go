package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Streaming routes. /api/stream serves both transports: requests carrying
	// a websocket upgrade header are handed to the WS handler, the rest get SSE.
	mux.HandleFunc("/ws", s.app.WSHandler.ServeWS)
	mux.HandleFunc("/api/stream", s.handleStreamRoute)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs/stats", s.app.JobHandler.GetQueueStatsHandler)
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Documents
	mux.HandleFunc("/api/documents/stats", s.app.DocumentHandler.GetDocumentStatsHandler)
	mux.HandleFunc("/api/documents/upload", s.app.DocumentHandler.UploadDocumentHandler)
	mux.HandleFunc("/api/documents/fetch", s.app.DocumentHandler.FetchDocumentHandler)
	mux.HandleFunc("/api/documents/github", s.app.DocumentHandler.ImportGitHubHandler)
	mux.HandleFunc("/api/documents", s.app.DocumentHandler.ListDocumentsHandler)
	mux.HandleFunc("/api/documents/", s.handleDocumentRoutes) // Handles /api/documents/{id} and subpaths

	// API routes - Pipelines
	mux.HandleFunc("/api/pipelines", s.app.PipelineHandler.ListPipelinesHandler)
	mux.HandleFunc("/api/pipelines/", s.handlePipelineRoutes) // Handles /api/pipelines/{id}

	// API routes - System
	mux.HandleFunc("/api/events/recent", s.app.APIHandler.RecentEventsHandler)
	mux.HandleFunc("/api/status", s.app.StatusHandler.StatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleStreamRoute dispatches /api/stream on the requested transport
func (s *Server) handleStreamRoute(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.app.WSHandler.ServeWS(w, r)
		return
	}
	s.app.StreamHandler.StreamEventsHandler(w, r)
}

// handleJobsRoute routes /api/jobs collection requests
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.JobHandler.ListJobsHandler,
		s.app.JobHandler.CreateJobHandler,
	)
}

// handleJobRoutes routes /api/jobs/{id} requests and subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if r.Method == "POST" {
		if strings.HasSuffix(path, "/cancel") {
			s.app.JobHandler.CancelJobHandler(w, r)
			return
		}
		if strings.HasSuffix(path, "/retry") {
			s.app.JobHandler.RetryTaskHandler(w, r)
			return
		}
	}

	if r.Method == "GET" {
		if strings.HasSuffix(path, "/logs") {
			s.app.JobHandler.GetJobLogsHandler(w, r)
			return
		}
		s.app.JobHandler.GetJobHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleDocumentRoutes routes /api/documents/{id} requests and subpaths
func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" && strings.HasSuffix(r.URL.Path, "/report") {
		s.app.DocumentHandler.GetReportHandler(w, r)
		return
	}

	RouteResourceItem(w, r,
		s.app.DocumentHandler.GetDocumentHandler,
		nil,
		s.app.DocumentHandler.DeleteDocumentHandler,
	)
}

// handlePipelineRoutes routes /api/pipelines/{id} requests
func (s *Server) handlePipelineRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r,
		s.app.PipelineHandler.GetPipelineHandler,
		s.app.PipelineHandler.UpsertPipelineHandler,
		s.app.PipelineHandler.DeletePipelineHandler,
	)
}
