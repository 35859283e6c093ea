// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/VerechoTJI/SimulationGame/internal/agents"
	"github.com/VerechoTJI/SimulationGame/internal/engine"
	"github.com/VerechoTJI/SimulationGame/internal/navigation"
	"github.com/VerechoTJI/SimulationGame/internal/persistence"
	"github.com/VerechoTJI/SimulationGame/internal/spatial"
	"github.com/VerechoTJI/SimulationGame/internal/world"
)

// maxNearbyRadius caps /nearby queries, in metres.
const maxNearbyRadius = 1000

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; enables POST /snapshot
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Path queries run a full A* per request.
	PathLimiter *RateLimiter
}

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	if s.PathLimiter == nil {
		s.PathLimiter = NewRateLimiter(60, time.Minute)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/map", s.handleMap)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/vector", s.handleVector)
	mux.HandleFunc("/api/v1/path", RateLimitMiddleware(s.PathLimiter, s.handlePath))
	mux.HandleFunc("/api/v1/nearby", s.handleNearby)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set TILESIM_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("TILESIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no TILESIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := struct {
		engine.Status
		Speed   float64 `json:"speed"`
		Running bool    `json:"running"`
	}{Status: s.Sim.Status()}
	if s.Eng != nil {
		status.Speed = s.Eng.Speed()
		status.Running = s.Eng.Running()
	}
	writeJSON(w, status)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.Sim.Grid.String())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}
	writeJSON(w, s.Sim.RecentEvents(limit))
}

func (s *Server) handleVector(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	row, err1 := strconv.Atoi(q.Get("row"))
	col, err2 := strconv.Atoi(q.Get("col"))
	if err1 != nil || err2 != nil {
		http.Error(w, "row and col must be integers", http.StatusBadRequest)
		return
	}
	c := world.Coord{Row: row, Col: col}
	dir, err := s.Sim.VectorAt(c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"row": row,
		"col": col,
		"dy":  dir.DY,
		"dx":  dir.DX,
	})
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseCoord(q.Get("from"))
	if err != nil {
		http.Error(w, "from: "+err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseCoord(q.Get("to"))
	if err != nil {
		http.Error(w, "to: "+err.Error(), http.StatusBadRequest)
		return
	}

	path, err := s.Sim.FindPath(from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	steps := make([][2]int, len(path))
	for i, c := range path {
		steps[i] = [2]int{c.Row, c.Col}
	}
	writeJSON(w, map[string]any{
		"from":  [2]int{from.Row, from.Col},
		"to":    [2]int{to.Row, to.Col},
		"steps": steps,
		"cost":  navigation.PathCost(s.Sim.Grid, from, path),
	})
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := agents.ParseKind(q.Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	y, err1 := strconv.ParseFloat(q.Get("y"), 64)
	x, err2 := strconv.ParseFloat(q.Get("x"), 64)
	radius, err3 := strconv.ParseFloat(q.Get("radius"), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		http.Error(w, "y, x and radius must be numbers", http.StatusBadRequest)
		return
	}
	if radius > maxNearbyRadius {
		radius = maxNearbyRadius
	}

	found, err := s.Sim.Nearby(kind, spatial.Vec{Y: y, X: x}, radius)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"kind":     agents.KindName(kind),
		"radius":   radius,
		"count":    len(found),
		"entities": found,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not attached", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		slog.Error("snapshot failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"saved": true, "tick": s.Sim.Status().Tick})
}

// parseCoord parses "row,col".
func parseCoord(s string) (world.Coord, error) {
	rs, cs, ok := strings.Cut(s, ",")
	if !ok {
		return world.Coord{}, fmt.Errorf("want row,col, got %q", s)
	}
	row, err := strconv.Atoi(strings.TrimSpace(rs))
	if err != nil {
		return world.Coord{}, fmt.Errorf("row: %w", err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(cs))
	if err != nil {
		return world.Coord{}, fmt.Errorf("col: %w", err)
	}
	return world.Coord{Row: row, Col: col}, nil
}

// writeError maps core errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, world.ErrOutOfBounds):
		status = http.StatusBadRequest
	case errors.Is(err, navigation.ErrUnreachable), errors.Is(err, navigation.ErrNoPath):
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
