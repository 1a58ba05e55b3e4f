package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
)

// positionTimeout bounds the venue queries behind /api/position.
const positionTimeout = 10 * time.Second

// Router is the read-only view of the routing engine served by the status API.
type Router interface {
	Position(ctx context.Context) (types.Position, error)
	State() types.WorkflowState
	LastReport() *types.WorkflowReport
	Params() types.StrategyParameters
}

// WebServer exposes the router's position, workflow history and metrics over HTTP
type WebServer struct {
	router  *mux.Router
	port    string
	engine  Router
	started time.Time
	log     zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, engine Router) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		engine:  engine,
		started: time.Now(),
		log:     logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	return server
}

// Handler returns the configured router; used by tests and embedding servers.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/position", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/workflows", ws.handleGetWorkflows).Methods("GET")
	api.HandleFunc("/workflows/latest", ws.handleGetLatestWorkflow).Methods("GET")
	api.HandleFunc("/workflows/{id}", ws.handleGetWorkflow).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/strategy", ws.handleGetStrategy).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.log.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth reports OK unless the last workflow aborted or the configured database is unreachable
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	degraded := false
	workflowInfo := map[string]interface{}{
		"engine_state":  ws.engine.State(),
		"last_workflow": nil,
	}
	if last := ws.engine.LastReport(); last != nil {
		workflowInfo["last_workflow"] = map[string]interface{}{
			"workflow_id": last.WorkflowID,
			"workflow":    last.Workflow,
			"state":       last.State,
			"finished_at": last.FinishedAt,
			"error":       last.Error,
		}
		degraded = last.State == types.StateAborted
	}

	dbInfo := map[string]interface{}{"configured": state.DB != nil}
	if state.DB != nil {
		dbErr := state.TestDBConnection()
		dbInfo["healthy"] = dbErr == nil
		if dbErr != nil {
			degraded = true
		}
	}

	overallStatus := "OK"
	if degraded {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":           runtime.Version(),
			"goroutines_count":  runtime.NumGoroutine(),
			"total_alloc_bytes": memStats.TotalAlloc,
			"alloc_bytes":       memStats.Alloc,
			"gc_cycles":         memStats.NumGC,
			"uptime_seconds":    int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "yieldrouter",
			"version": "1.0.0",
		},
		"router_status": map[string]interface{}{
			"database": dbInfo,
			"workflow": workflowInfo,
		},
	}

	statusCode := http.StatusOK
	if degraded {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetPosition reads a fresh position snapshot from the venues
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), positionTimeout)
	defer cancel()

	pos, err := ws.engine.Position(ctx)
	if err != nil {
		ws.log.Error().Err(err).Msg("Failed to read position")
		ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to read position from venues")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"position":     pos,
		"engine_state": ws.engine.State(),
	})
}

// handleGetWorkflows returns recent workflow reports. Without a database only the in-memory last report is known.
func (ws *WebServer) handleGetWorkflows(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	var reports []types.WorkflowReport
	if state.DB == nil {
		if last := ws.engine.LastReport(); last != nil {
			reports = append(reports, *last)
		}
	} else {
		var err error
		reports, err = state.GetRecentWorkflowReports(limit)
		if err != nil {
			ws.log.Error().Err(err).Msg("Failed to get recent workflow reports")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve workflows")
			return
		}
	}
	if reports == nil {
		reports = []types.WorkflowReport{}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"workflows": reports,
		"count":     len(reports),
		"limit":     limit,
	})
}

// handleGetLatestWorkflow returns the report of the most recent workflow of this process
func (ws *WebServer) handleGetLatestWorkflow(w http.ResponseWriter, r *http.Request) {
	last := ws.engine.LastReport()
	if last == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No workflows executed yet")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, last)
}

// handleGetWorkflow returns a specific workflow report by its id
func (ws *WebServer) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid workflow ID")
		return
	}

	if last := ws.engine.LastReport(); last != nil && last.WorkflowID == id {
		ws.writeJSONResponse(w, http.StatusOK, last)
		return
	}
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Workflow not found")
		return
	}

	report, err := state.GetWorkflowReport(id)
	if errors.Is(err, state.ErrReportNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Workflow not found")
		return
	}
	if err != nil {
		ws.log.Error().Err(err).Str("workflowId", id).Msg("Failed to get workflow report")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve workflow")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, report)
}

// handleGetSummary returns aggregate workflow statistics
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Persistence is not configured")
		return
	}

	summary, err := state.GetRouterSummary()
	if err != nil {
		ws.log.Error().Err(err).Msg("Failed to get router summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetStrategy returns the strategy parameters the engine is running with
func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"parameters": ws.engine.Params(),
		"timestamp":  time.Now().UTC(),
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		ws.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
