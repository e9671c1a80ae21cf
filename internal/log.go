package internal

import (
	"context"
	"net/http"
	"os"
	"time"

	charm "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
)

// _logHandler is the process-wide logger. Verbosity is adjusted by the CLI.
var _logHandler = newLogHandler()

func newLogHandler() *charm.Logger {
	opts := charm.Options{
		ReportTimestamp: true,
		Formatter:       charm.LogfmtFormatter,
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		opts.Formatter = charm.TextFormatter
	}
	return charm.NewWithOptions(os.Stderr, opts)
}

// SetVerbose enables debug logging.
func SetVerbose() {
	_logHandler.SetLevel(charm.DebugLevel)
}

// Log returns a logger annotated with the request ID, if the context carries
// one. Contexts without a request ID, such as those of background goroutines,
// get the unannotated process logger.
func Log(ctx context.Context) *charm.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return _logHandler.With("req", reqID)
	}
	return _logHandler
}

// RequestLogger logs inbound HTTP traffic.
type RequestLogger struct{}

// Wrap installs the middleware.
func (RequestLogger) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		Log(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
