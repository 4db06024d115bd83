// Package api serves sweep control and history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/capturefinery/internal/capture"
	"github.com/banshee-data/capturefinery/internal/config"
	"github.com/banshee-data/capturefinery/internal/history"
	"github.com/banshee-data/capturefinery/internal/host"
	"github.com/banshee-data/capturefinery/internal/httputil"
	"github.com/banshee-data/capturefinery/internal/monitoring"
	"github.com/banshee-data/capturefinery/internal/refinery"
)

var logf = monitoring.Component("api")

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// HostFactory opens a host for a sweep over hof starting at row start. The
// returned func releases it once the sweep has finished.
type HostFactory func(hof *refinery.HallOfFame, start int) (host.Host, func(), error)

// Server runs at most one sweep at a time in the background.
type Server struct {
	source  string
	cfg     *config.SweepConfig
	opts    capture.Options
	newHost HostFactory
	store   *history.Store

	mu      sync.Mutex
	current *capture.Orchestrator
	running bool
	last    *SweepOutcome
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// SweepOutcome is the result of the most recent finished sweep.
type SweepOutcome struct {
	Result *capture.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusResponse is returned by GET /api/sweep.
type StatusResponse struct {
	capture.Snapshot
	Last *SweepOutcome `json:"last,omitempty"`
}

// StartRequest is the body of POST /api/sweep. Count < 0 means every row
// from Start on.
type StartRequest struct {
	Study string `json:"study"`
	Start int    `json:"start"`
	Count int    `json:"count"`
}

// NewServer creates a server for the studies under source. store may be nil,
// in which case the history endpoints answer 404.
func NewServer(source string, cfg *config.SweepConfig, newHost HostFactory, store *history.Store) *Server {
	opts := capture.OptionsFromConfig(cfg)
	if store != nil {
		opts.Recorder = store
	}
	return &Server{source: source, cfg: cfg, opts: opts, newHost: newHost, store: store}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /api/studies", httputil.HandlerFunc(s.listStudies))
	mux.Handle("GET /api/sweep", httputil.HandlerFunc(s.showSweep))
	mux.Handle("POST /api/sweep", httputil.HandlerFunc(s.startSweep))
	mux.Handle("POST /api/sweep/cancel", httputil.HandlerFunc(s.cancelSweep))
	mux.Handle("GET /api/sweeps", httputil.HandlerFunc(s.listSweeps))
	mux.Handle("GET /api/sweeps/{id}", httputil.HandlerFunc(s.showHistory))
	return mux
}

func (s *Server) listStudies(w http.ResponseWriter, r *http.Request) error {
	studies, err := refinery.DiscoverStudies(s.source)
	if err != nil {
		return err
	}
	if studies == nil {
		studies = []refinery.Study{}
	}
	httputil.WriteJSON(w, http.StatusOK, studies)
	return nil
}

func (s *Server) status() StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := StatusResponse{Snapshot: capture.Snapshot{State: capture.StateIdle}, Last: s.last}
	if s.current != nil {
		resp.Snapshot = s.current.Snapshot()
	}
	return resp
}

func (s *Server) showSweep(w http.ResponseWriter, r *http.Request) error {
	httputil.WriteJSON(w, http.StatusOK, s.status())
	return nil
}

// loadRequest resolves the study and row range of a start request.
func (s *Server) loadRequest(req *StartRequest) (refinery.Study, *refinery.HallOfFame, error) {
	studies, err := refinery.DiscoverStudies(s.source)
	if err != nil {
		return refinery.Study{}, nil, err
	}
	study, ok := refinery.FindStudy(studies, req.Study)
	if !ok {
		return refinery.Study{}, nil, httputil.Errorf(http.StatusNotFound, "study %q not found", req.Study)
	}
	hof, err := refinery.LoadHallOfFame(study.Folder)
	if err != nil {
		return refinery.Study{}, nil, httputil.Errorf(http.StatusBadRequest, "%w", err)
	}
	if req.Count < 0 {
		req.Count = hof.Len() - req.Start
	}
	if req.Start < 0 || req.Start >= hof.Len() || req.Count < 0 || req.Start+req.Count > hof.Len() {
		return refinery.Study{}, nil, httputil.Errorf(http.StatusBadRequest, "%w: rows %d+%d of %d", capture.ErrRange, req.Start, req.Count, hof.Len())
	}
	return study, hof, nil
}

func (s *Server) startSweep(w http.ResponseWriter, r *http.Request) error {
	var req StartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		return httputil.Errorf(http.StatusBadRequest, "invalid request body: %w", err)
	}
	study, hof, err := s.loadRequest(&req)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return httputil.Errorf(http.StatusConflict, "%w", capture.ErrSweepActive)
	}
	h, release, err := s.newHost(hof, req.Start)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("opening host: %w", err)
	}
	orch := capture.NewOrchestrator(h, s.opts)
	ctx, cancel := context.WithCancel(context.Background())
	s.current, s.running, s.cancel = orch, true, cancel
	s.wg.Add(1)
	s.mu.Unlock()

	sweepReq := capture.RequestFromConfig(s.cfg, req.Start, req.Count)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer release()
		res, err := orch.Run(ctx, study, sweepReq)
		out := &SweepOutcome{Result: res}
		if err != nil {
			out.Error = err.Error()
			logf("WARNING: sweep on %s: %v", study.Name, err)
		}
		s.mu.Lock()
		s.last, s.running = out, false
		s.mu.Unlock()
	}()

	logf("Started sweep on %s rows %d+%d", study.Name, req.Start, req.Count)
	httputil.WriteJSON(w, http.StatusAccepted, s.status())
	return nil
}

func (s *Server) cancelSweep(w http.ResponseWriter, r *http.Request) error {
	s.mu.Lock()
	orch, running, cancel := s.current, s.running, s.cancel
	s.mu.Unlock()
	if !running {
		return httputil.Errorf(http.StatusConflict, "no sweep running")
	}
	// The context covers a sweep whose goroutine has not entered Run yet.
	orch.Cancel()
	cancel()
	httputil.WriteJSON(w, http.StatusOK, s.status())
	return nil
}

var errNoHistory = httputil.Errorf(http.StatusNotFound, "sweep history is not enabled")

func (s *Server) listSweeps(w http.ResponseWriter, r *http.Request) error {
	if s.store == nil {
		return errNoHistory
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return httputil.Errorf(http.StatusBadRequest, "invalid limit %q", v)
		}
		limit = n
	}
	sweeps, err := s.store.ListSweeps(r.URL.Query().Get("folder"), limit)
	if err != nil {
		return err
	}
	if sweeps == nil {
		sweeps = []history.SweepRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, sweeps)
	return nil
}

// HistoryResponse is one recorded sweep with its rows.
type HistoryResponse struct {
	Sweep      *history.SweepRecord      `json:"sweep"`
	Iterations []history.IterationRecord `json:"iterations"`
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) error {
	if s.store == nil {
		return errNoHistory
	}
	id := r.PathValue("id")
	rec, err := s.store.GetSweep(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return httputil.Errorf(http.StatusNotFound, "sweep %s not found", id)
	}
	its, err := s.store.Iterations(id)
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{Sweep: rec, Iterations: its})
	return nil
}

// Shutdown cancels a running sweep and waits for it to finish, or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("sweep still running"), ctx.Err())
	}
}
