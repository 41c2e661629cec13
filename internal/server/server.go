// Package server exposes the selection pipeline over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	pagepick "github.com/anatolykoptev/go-pagepick"
	"github.com/anatolykoptev/go-pagepick/internal/metrics"
)

const defaultMaxBodyBytes = 4 << 20

// Options configures a Server.
type Options struct {
	// Defaults fill request options the caller leaves unset.
	Defaults     pagepick.Options
	MaxBodyBytes int64
	Logger       *zerolog.Logger
}

// Server serves POST /selection, GET /health and GET /metrics.
type Server struct {
	cfg      *pagepick.Config
	defaults pagepick.Options
	maxBody  int64
	log      zerolog.Logger
}

// New returns a Server running selections with cfg.
func New(cfg *pagepick.Config, opts Options) *Server {
	s := &Server{cfg: cfg, defaults: opts.Defaults, maxBody: opts.MaxBodyBytes, log: log.Logger}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBodyBytes
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	return s
}

// RegisterRoutes mounts the handlers on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/selection", s.instrument("/selection", s.handleSelection))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument assigns a request ID and records latency and status.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		l := s.log.With().Str("request_id", reqID).Str("route", route).Logger()
		next(rec, r.WithContext(l.WithContext(r.Context())))

		dur := time.Since(start)
		metrics.ObserveHTTP(route, rec.code, dur)
		l.Info().Int("status", rec.code).Dur("duration", dur).Msg("request served")
	}
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	l := zerolog.Ctx(r.Context())

	req, err := DecodeRequest(http.MaxBytesReader(w, r.Body, s.maxBody), s.defaults)
	if err != nil {
		l.Warn().Err(err).Msg("rejected request body")
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}

	report, err := s.cfg.Select(r.Context(), req)
	if err != nil {
		var ie *pagepick.InputError
		if errors.As(err, &ie) {
			l.Warn().Err(err).Msg("rejected selection request")
			writeJSON(w, http.StatusBadRequest, errorResp{Error: ie.Error(), Field: ie.Field})
			return
		}
		l.Error().Err(err).Msg("selection failed")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}

	if report.Warning != "" {
		l.Warn().Str("warning", report.Warning).Msg("degraded selection")
	}
	l.Info().Int("images", len(req.Images)).Int("sections", len(report.Sections)).
		Int("diagnostics", len(report.Diagnostics)).Msg("selection done")
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
