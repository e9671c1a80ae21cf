package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blampe/paperglass/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handler is our HTTP handler. It defers the actual work to the orchestrator
// and handles muxing, decoding, and response headers.
type handler struct {
	orch *internal.Orchestrator
}

// newHandler creates a new handler.
func newHandler(orch *internal.Orchestrator) *handler {
	return &handler{orch: orch}
}

// newMux registers a handler's routes on a new mux.
func newMux(h *handler, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /discover", h.discover)
	mux.HandleFunc("GET /related/{paperID}", h.related)
	mux.HandleFunc("POST /feedback", h.feedback)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Default handler returns 404.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return mux
}

// discoveryRequest is the POST /discover body. Unknown configuration keys are
// rejected before any provider I/O happens.
type discoveryRequest struct {
	Paper         internal.SourcePaper             `json:"Paper"`
	Configuration *internal.DiscoveryConfiguration `json:"Configuration"`
}

// discover handles POST /discover. With no configuration in the body the
// comprehensive preset is used.
func (h *handler) discover(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req discoveryRequest
	if err := dec.Decode(&req); err != nil {
		h.error(w, &internal.ConfigError{Reason: err.Error()})
		return
	}

	cfg := internal.ComprehensiveConfig()
	if req.Configuration != nil {
		cfg = *req.Configuration
		if cfg.Mode == "" {
			cfg.Mode = internal.ModeCustom
		}
	}

	result, err := h.orch.Discover(r.Context(), req.Paper, cfg)
	if err != nil {
		h.error(w, err)
		return
	}

	cacheFor(w, time.Hour)
	_ = json.NewEncoder(w).Encode(result)
}

// related handles GET /related/{paperID}?mode=quick&title=...&authors=a,b.
// It exists so CDNs and the stampede layer can coalesce hot papers without
// request bodies getting in the way.
func (h *handler) related(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	paper := internal.SourcePaper{
		ID:      r.PathValue("paperID"),
		Title:   query.Get("title"),
		DOI:     query.Get("doi"),
		ArxivID: query.Get("arxiv"),
	}
	if authors := query.Get("authors"); authors != "" {
		paper.Authors = strings.Split(authors, ",")
	}
	if year := query.Get("year"); year != "" {
		y, err := strconv.Atoi(year)
		if err != nil {
			h.error(w, errors.Join(err, errBadRequest()))
			return
		}
		paper.Year = y
	}

	cfg := internal.QuickConfig()
	switch mode := query.Get("mode"); mode {
	case "", "quick":
	case "comprehensive":
		cfg = internal.ComprehensiveConfig()
	default:
		h.error(w, &internal.ConfigError{Reason: fmt.Sprintf("unrecognized mode %q", mode)})
		return
	}

	result, err := h.orch.Discover(r.Context(), paper, cfg)
	if err != nil {
		h.error(w, err)
		return
	}

	cacheFor(w, time.Hour)
	_ = json.NewEncoder(w).Encode(result)
}

// feedback handles POST /feedback.
func (h *handler) feedback(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var ev internal.FeedbackEvent
	if err := dec.Decode(&ev); err != nil {
		h.error(w, errors.Join(err, errBadRequest()))
		return
	}

	if err := h.orch.RecordFeedback(ev); err != nil {
		h.error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cacheFor sets cache response headers. s-maxage controls CDN cache time; we
// default to an hour expiry for clients.
func cacheFor(w http.ResponseWriter, d time.Duration) {
	w.Header().Add("Cache-Control", fmt.Sprintf("public, s-maxage=%d, max-age=3600", int(d.Seconds())))
	w.Header().Add("Vary", "Content-Type,Accept-Encoding") // Ignore headers like User-Agent, etc.
	w.Header().Add("Content-Type", "application/json")
}

func errBadRequest() error {
	return &internal.ConfigError{Reason: "bad request"}
}

func (*handler) error(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var c *internal.ConfigError
	if errors.As(err, &c) {
		status = http.StatusBadRequest
	}

	var s interface{ Status() int }
	if errors.As(err, &s) {
		status = s.Status()
	}

	http.Error(w, err.Error(), status)
}
