package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaultmesh/cvc/internal/analyzer"
	"github.com/vaultmesh/cvc/internal/coordinator"
	"github.com/vaultmesh/cvc/internal/logger"
	"github.com/vaultmesh/cvc/internal/registry"
	"github.com/vaultmesh/cvc/internal/router"
	"github.com/vaultmesh/cvc/internal/state"
	"github.com/vaultmesh/cvc/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// balanceDisplayDecimals is the exponent applied when rendering integer
// amounts as human readable floats in API payloads.
const balanceDisplayDecimals = 6

// WebServer exposes a read-only HTTP API over the coordinator's state.
type WebServer struct {
	routes      *mux.Router
	port        string
	registry    *registry.Registry
	coordinator *coordinator.Coordinator
	analyzer    *analyzer.Analyzer
	redemptions *router.Router
}

// NewWebServer creates a new web server instance.
func NewWebServer(port string, reg *registry.Registry, coord *coordinator.Coordinator, an *analyzer.Analyzer, rt *router.Router) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		routes:      mux.NewRouter(),
		port:        port,
		registry:    reg,
		coordinator: coord,
		analyzer:    an,
		redemptions: rt,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.routes.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.routes.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/clusters/{fundId}", ws.handleGetCluster).Methods("GET")
	api.HandleFunc("/clusters/{fundId}/rebalance-check", ws.handleRebalanceCheck).Methods("GET")
	api.HandleFunc("/clusters/{fundId}/operations", ws.handleGetFundOperations).Methods("GET")
	api.HandleFunc("/operations", ws.handleGetOperations).Methods("GET")
	api.HandleFunc("/operations/{id}", ws.handleGetOperation).Methods("GET")
	api.HandleFunc("/redemptions/{id}", ws.handleGetRedemption).Methods("GET")

	// Add CORS middleware
	ws.routes.Use(ws.corsMiddleware)
	ws.routes.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.routes,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := false
	if state.Ready() {
		dbHealthy = state.TestDBConnection() == nil
	}

	// No database is a valid deployment: the audit trail is optional, so it
	// degrades the health report without failing it.
	overallStatus := "OK"
	if state.Ready() && !dbHealthy {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "cvc-crosschain-vault-coordinator",
			"version": "1.0.0",
		},
		"persistence": map[string]interface{}{
			"configured": state.Ready(),
			"healthy":    dbHealthy,
		},
	}

	statusCode := http.StatusOK
	if overallStatus != "OK" {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetCluster returns the cluster document for a fund
func (ws *WebServer) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fundID := vars["fundId"]

	cluster, err := ws.registry.GetCluster(fundID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Cluster not found")
		return
	}

	total := cluster.TotalBalance()
	response := map[string]interface{}{
		"cluster":       cluster,
		"total_balance": total,
	}
	if display, err := utils.SDKIntToFloat64(total, balanceDisplayDecimals); err == nil {
		response["total_balance_display"] = display
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleRebalanceCheck returns the analyzer's current drift verdict for a fund
func (ws *WebServer) handleRebalanceCheck(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fundID := vars["fundId"]

	plan, err := ws.analyzer.CheckRebalanceNeeded(fundID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Cluster not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, plan)
}

// handleGetFundOperations returns the tracked operations for one fund
func (ws *WebServer) handleGetFundOperations(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ops := ws.coordinator.ListOperations(vars["fundId"])

	response := map[string]interface{}{
		"operations": ops,
		"count":      len(ops),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetOperations returns recent operations across all funds. When a
// database is configured the audit trail is used so terminal operations from
// previous runs are included; otherwise the in-memory set is returned.
func (ws *WebServer) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	if state.Ready() {
		ops, err := state.ListRecentOperations(r.URL.Query().Get("fund"), limit)
		if err != nil {
			webLogger.Error().Err(err).Msg("Failed to list recent operations")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operations")
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"operations": ops,
			"count":      len(ops),
			"limit":      limit,
		})
		return
	}

	ops := ws.coordinator.ListOperations(r.URL.Query().Get("fund"))
	if len(ops) > limit {
		ops = ops[len(ops)-limit:]
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"operations": ops,
		"count":      len(ops),
		"limit":      limit,
	})
}

// handleGetOperation returns a specific operation by ID
func (ws *WebServer) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	opID := vars["id"]

	op, err := ws.coordinator.GetOperation(opID)
	if err != nil {
		if state.Ready() {
			stored, dbErr := state.GetOperation(opID)
			if dbErr == nil {
				ws.writeJSONResponse(w, http.StatusOK, stored)
				return
			}
		}
		ws.writeErrorResponse(w, http.StatusNotFound, "Operation not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, op)
}

// handleGetRedemption returns a specific redemption request by ID
func (ws *WebServer) handleGetRedemption(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := vars["id"]

	req, err := ws.redemptions.GetRedemption(requestID)
	if err != nil {
		if state.Ready() {
			stored, dbErr := state.GetRedemption(requestID)
			if dbErr == nil {
				ws.writeJSONResponse(w, http.StatusOK, stored)
				return
			}
		}
		ws.writeErrorResponse(w, http.StatusNotFound, "Redemption not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, req)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
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
