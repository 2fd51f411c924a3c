// Package server exposes the compilation pipeline over HTTP for editors:
// document sessions with versioned updates, per-document diagnostics,
// symbols, and go-to-definition, plus a one-shot check endpoint.
//
// Compilations are cached by the SHA-256 of the document content, so
// reopening or re-sending identical text never recompiles.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tabula/config"
	"tabula/core/diag"
	"tabula/core/resolver"
	"tabula/core/symbols"
	"tabula/pipeline"
)

// docFile is the path documents compile under. Editor buffers have no
// on-disk location, so imports are reported as unresolvable rather than
// silently read from the server's filesystem.
const docFile = "buffer.schema"

// compiled is one cached compilation outcome.
type compiled struct {
	diags   diag.List
	symbols *symbols.Index
}

// document is one editor session.
type document struct {
	id      string
	version int64
	content string
	result  *compiled
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *Collector
	promReg *prometheus.Registry

	mu   sync.Mutex
	docs map[string]*document

	cacheMu sync.Mutex
	cache   map[[sha256.Size]byte]*compiled
}

// New returns a server with a private metrics registry.
func New(cfg *config.Config, log zerolog.Logger) *Server {
	promReg := prometheus.NewRegistry()
	return &Server{
		cfg:     cfg,
		log:     log,
		metrics: NewCollector(promReg),
		promReg: promReg,
		docs:    make(map[string]*document),
		cache:   make(map[[sha256.Size]byte]*compiled),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.handleCreateDocument)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Put("/", s.handleUpdateDocument)
			r.Delete("/", s.handleDeleteDocument)
			r.Get("/diagnostics", s.handleDiagnostics)
			r.Get("/symbols", s.handleSymbols)
			r.Get("/definition", s.handleDefinition)
		})
		r.Post("/check", s.handleCheck)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, s.cfg.Metrics.Path,
			promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("diagnostics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// compile returns the cached result for content, compiling on a miss.
func (s *Server) compile(content string) (*compiled, error) {
	key := sha256.Sum256([]byte(content))

	s.cacheMu.Lock()
	if res, ok := s.cache[key]; ok {
		s.cacheMu.Unlock()
		s.metrics.CacheHits.Inc()
		return res, nil
	}
	s.cacheMu.Unlock()
	s.metrics.CacheMisses.Inc()

	start := time.Now()
	res, err := pipeline.Compile(resolver.MapLoader{docFile: content}, docFile)
	s.metrics.CompileDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.CompilesTotal.WithLabelValues("internal_error").Inc()
		return nil, err
	}
	outcome := "ok"
	if !res.OK() {
		outcome = "errors"
	}
	s.metrics.CompilesTotal.WithLabelValues(outcome).Inc()

	c := &compiled{diags: res.Diags, symbols: res.Symbols}
	s.cacheMu.Lock()
	s.cache[key] = c
	s.cacheMu.Unlock()
	return c, nil
}

type documentRequest struct {
	Content string `json:"content"`
	Version int64  `json:"version"`
}

type documentResponse struct {
	ID          string             `json:"id"`
	Version     int64              `json:"version"`
	Diagnostics []*diag.Diagnostic `json:"diagnostics"`
}

func diagnosticsJSON(diags diag.List) []*diag.Diagnostic {
	if diags == nil {
		return []*diag.Diagnostic{}
	}
	return diags
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.compile(req.Content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	doc := &document{
		id:      uuid.NewString(),
		version: 1,
		content: req.Content,
		result:  res,
	}

	s.mu.Lock()
	if len(s.docs) >= s.cfg.Server.MaxDocuments {
		s.mu.Unlock()
		respondError(w, http.StatusServiceUnavailable, "too many open documents")
		return
	}
	s.docs[doc.id] = doc
	s.mu.Unlock()
	s.metrics.DocumentsOpen.Inc()

	s.log.Info().Str("document", doc.id).Msg("document session opened")
	respondJSON(w, http.StatusCreated, documentResponse{
		ID:          doc.id,
		Version:     doc.version,
		Diagnostics: diagnosticsJSON(res.diags),
	})
}

// lookup fetches the session for the {id} URL parameter.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*document, bool) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	doc, ok := s.docs[id]
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "unknown document "+id)
		return nil, false
	}
	return doc, true
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	resp := documentResponse{ID: doc.id, Version: doc.version, Diagnostics: diagnosticsJSON(doc.result.diags)}
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	if req.Version <= doc.version {
		current := doc.version
		s.mu.Unlock()
		respondError(w, http.StatusConflict,
			fmt.Sprintf("stale version %d, document is at %d", req.Version, current))
		return
	}
	doc.version = req.Version
	doc.content = req.Content
	s.mu.Unlock()

	res, err := s.compile(req.Content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// A concurrent update may have advanced the version while this one was
	// compiling; the slower result is discarded.
	s.mu.Lock()
	stale := doc.version != req.Version
	if !stale {
		doc.result = res
	}
	version := doc.version
	s.mu.Unlock()

	if stale {
		s.log.Debug().
			Str("document", doc.id).
			Int64("version", req.Version).
			Msg("discarded stale compilation")
	}
	respondJSON(w, http.StatusOK, documentResponse{
		ID:          doc.id,
		Version:     version,
		Diagnostics: diagnosticsJSON(res.diags),
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "unknown document "+id)
		return
	}
	s.metrics.DocumentsOpen.Dec()
	s.log.Info().Str("document", id).Msg("document session closed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	resp := documentResponse{ID: doc.id, Version: doc.version, Diagnostics: diagnosticsJSON(doc.result.diags)}
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	idx := doc.result.symbols
	version := doc.version
	s.mu.Unlock()

	syms := idx.Symbols()
	if syms == nil {
		syms = []symbols.Symbol{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"symbols": syms,
	})
}

func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	line, err1 := strconv.Atoi(r.URL.Query().Get("line"))
	col, err2 := strconv.Atoi(r.URL.Query().Get("col"))
	if err1 != nil || err2 != nil {
		respondError(w, http.StatusBadRequest, "line and col query parameters are required integers")
		return
	}

	s.mu.Lock()
	idx := doc.result.symbols
	s.mu.Unlock()

	sym, found := idx.DefinitionAt(docFile, line, col)
	if !found {
		respondError(w, http.StatusNotFound, "no definition at position")
		return
	}
	respondJSON(w, http.StatusOK, sym)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.compile(req.Content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":          !res.diags.HasErrors(),
		"diagnostics": diagnosticsJSON(res.diags),
	})
}

// logRequests is the zerolog request logging and metrics middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		s.metrics.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(elapsed.Seconds())

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
