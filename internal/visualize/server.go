package visualize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/filesearch/internal/observability"
)

// DefaultAddr is where the interactive server listens.
const DefaultAddr = "127.0.0.1:8050"

// Server serves an interactive view of a plot.
type Server struct {
	plot    *Plot
	byID    map[string]int
	metrics *observability.Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer creates a server for plot. metrics may be nil.
func NewServer(plot *Plot, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if plot == nil || len(plot.Points) == 0 {
		return nil, ErrEmptyStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		plot:    plot,
		byID:    make(map[string]int, len(plot.Points)),
		metrics: metrics,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	for i, p := range plot.Points {
		s.byID[p.ID] = i
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/points", s.apiPoints)
	s.mux.HandleFunc("GET /api/points/{id}", s.apiPoint)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is canceled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.logger.Info("visualization server listening", "url", "http://"+listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	s.logger.Info("visualization server stopped")
	return nil
}

type clusterOption struct {
	ID   int
	Name string
}

type dashboardPage struct {
	Title    string
	Clusters []clusterOption
	Layout   template.JS
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	layout, err := json.Marshal(Layout(s.plot.Title))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	page := dashboardPage{Title: s.plot.Title, Layout: template.JS(layout)}
	for _, c := range s.clusterIDs() {
		page.Clusters = append(page.Clusters, clusterOption{ID: c, Name: ClusterName(c)})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "dashboard.html", page); err != nil {
		s.logger.Error("render dashboard", "error", err)
	}
}

func (s *Server) clusterIDs() []int {
	seen := map[int]bool{}
	var ids []int
	for _, p := range s.plot.Points {
		if !seen[p.Cluster] {
			seen[p.Cluster] = true
			ids = append(ids, p.Cluster)
		}
	}
	sort.Ints(ids)
	return ids
}

type pointsResponse struct {
	Total  int     `json:"total"`
	Points []Point `json:"points"`
	Traces []Trace `json:"traces"`
}

func (s *Server) apiPoints(w http.ResponseWriter, r *http.Request) {
	clusters, err := parseClusters(r.URL.Query().Get("cluster"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	points := Filter(s.plot.Points, clusters, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, pointsResponse{
		Total:  len(points),
		Points: points,
		Traces: Traces(points),
	})
}

func (s *Server) apiPoint(w http.ResponseWriter, r *http.Request) {
	i, ok := s.byID[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "point not found"})
		return
	}
	writeJSON(w, http.StatusOK, s.plot.Points[i])
}

// Filter keeps points in any of clusters (all when empty) whose filename
// contains q, case-insensitively.
func Filter(points []Point, clusters []int, q string) []Point {
	want := make(map[int]bool, len(clusters))
	for _, c := range clusters {
		want[c] = true
	}
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if len(want) > 0 && !want[p.Cluster] {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Filename), q) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseClusters(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid cluster %q", part)
		}
		out = append(out, c)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
