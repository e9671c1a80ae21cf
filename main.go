package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kong"
	"github.com/blampe/paperglass/internal"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/stampede"
	"golang.org/x/time/rate"
)

// cli contains our command-line flags.
type cli struct {
	Serve server `cmd:"" help:"Run the discovery HTTP server."`

	Bust bust `cmd:"" help:"Bust cached discovery results."`
}

type server struct {
	pgconfig
	logconfig

	Port int `default:"8788" help:"Port to serve traffic on."`

	CitationRegistryHost string `default:"api.citation-registry.org" help:"Citation-Registry host."`
	CitationRegistryRPM  int    `default:"90" help:"Maximum Citation-Registry requests per minute."`

	SemanticCorpusURL string `default:"https://api.semantic-corpus.org/graphql" help:"Semantic-Corpus GraphQL endpoint."`
	SemanticCorpusKey string `help:"Semantic-Corpus API key."`
	SemanticCorpusRPM int    `default:"60" help:"Maximum Semantic-Corpus requests per minute."`

	TrendAnalyzerHost string `default:"api.trend-analyzer.io" help:"Trend-Analyzer host."`
	TrendAnalyzerRPM  int    `default:"30" help:"Maximum Trend-Analyzer requests per minute."`
}

type bust struct {
	pgconfig
	logconfig

	PaperID string `arg:"" help:"source paper ID to cache bust"`
}

type pgconfig struct {
	PostgresHost     string `default:"localhost" help:"Postgres host."`
	PostgresUser     string `default:"postgres" help:"Postgres user."`
	PostgresPassword string `default:"" help:"Postgres password."`
	PostgresPort     int    `default:"5432" help:"Postgres port."`
	PostgresDatabase string `default:"paperglass" help:"Postgres database to use."`
}

// dsn returns the database's DSN based on the provided flags.
func (c *pgconfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDatabase,
	)
}

type logconfig struct {
	Verbose bool `help:"increase log verbosity"`
}

func (c *logconfig) Run() error {
	if c.Verbose {
		internal.SetVerbose()
	}
	return nil
}

func rpm(n int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
}

func (s *server) Run() error {
	_ = s.logconfig.Run()

	ctx := context.Background()

	reg := internal.NewMetrics()

	cache, err := internal.NewCache(ctx, s.dsn(), reg)
	if err != nil {
		return fmt.Errorf("setting up cache: %w", err)
	}

	crUpstream, err := internal.NewUpstream(s.CitationRegistryHost, rpm(s.CitationRegistryRPM), nil)
	if err != nil {
		return fmt.Errorf("setting up citation registry: %w", err)
	}
	taUpstream, err := internal.NewUpstream(s.TrendAnalyzerHost, rpm(s.TrendAnalyzerRPM), nil)
	if err != nil {
		return fmt.Errorf("setting up trend analyzer: %w", err)
	}
	gql := internal.NewSemanticCorpusGQL(s.SemanticCorpusURL, s.SemanticCorpusKey, rpm(s.SemanticCorpusRPM))

	orch := internal.NewOrchestrator(cache, reg,
		internal.NewCitationRegistryClient(crUpstream),
		internal.NewSemanticCorpusClient(gql),
		internal.NewTrendAnalyzerClient(taUpstream),
	)

	h := newHandler(orch)
	mux := newMux(h, reg)

	mux = internal.Instrument(reg, mux)          // Record request latencies.
	mux = stampede.Handler(1024, 0)(mux)         // Coalesce requests to the same resource.
	mux = middleware.RequestSize(64 * 1024)(mux) // Limit request bodies.
	mux = middleware.RedirectSlashes(mux)        // Normalize paths for caching.
	mux = internal.RequestLogger{}.Wrap(mux)     // Log requests.
	mux = middleware.RequestID(mux)              // Include a request ID header.
	mux = middleware.Recoverer(mux)              // Recover from panics.

	addr := fmt.Sprintf(":%d", s.Port)
	server := &http.Server{
		Handler:  mux,
		Addr:     addr,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	slog.Info("listening on " + addr)
	return server.ListenAndServe()
}

func (b *bust) Run() error {
	_ = b.logconfig.Run()
	ctx := context.Background()

	cache, err := internal.NewCache(ctx, b.dsn(), nil)
	if err != nil {
		return err
	}

	n, err := cache.DeleteMatching(ctx, internal.DiscoveryKeyPrefix(b.PaperID))
	if err != nil {
		return err
	}

	slog.Info("busted cache entries", "paperID", b.PaperID, "count", n)
	return nil
}

func main() {
	kctx := kong.Parse(&cli{})
	err := kctx.Run()
	if err != nil {
		internal.Log(context.Background()).Error("fatal", "err", err)
		os.Exit(1)
	}
}

func init() {
	// Limit our memory to 90% of what's free. This affects cache sizes.
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		panic(err)
	}
}
