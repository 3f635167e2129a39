package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/latticekb/lattice/internal/types"
	"github.com/latticekb/lattice/pkg/config"
	"github.com/latticekb/lattice/pkg/index"
	"github.com/latticekb/lattice/pkg/llm"
	"github.com/latticekb/lattice/pkg/pipeline"
	"github.com/latticekb/lattice/pkg/rollup"
	"github.com/latticekb/lattice/pkg/scraper"
	"github.com/latticekb/lattice/pkg/search"
	"github.com/latticekb/lattice/pkg/store"
	"github.com/latticekb/lattice/server"
)

type flags struct {
	configPath string
	addr       string
	ingestURLs string
	crawlURL   string
}

// crawlWaitDeadline bounds a foreground crawl; the crawl itself stops
// earlier once it hits the configured page or depth limits.
const crawlWaitDeadline = 30 * time.Minute

func main() {
	// a missing .env is fine; environment and flags still apply
	_ = godotenv.Load()

	f := parseFlags()
	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.addr, "addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&f.ingestURLs, "ingest-urls", "",
		"Comma-separated URLs to fetch and ingest instead of serving")
	flag.StringVar(&f.crawlURL, "crawl-url", "",
		"Root URL to crawl and ingest synchronously instead of serving")
	flag.Parse()
	return f
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if violations := cfg.Validate(); len(violations) > 0 {
		for _, v := range violations {
			color.Red("config: %s", v.Error())
		}
		return fmt.Errorf("invalid configuration (%d problems)", len(violations))
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required (set DATABASE_URL or the config file)")
	}
	db, err := store.New(ctx, store.Config{
		ConnString: cfg.Database.URL,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	embedder, vectorIndex, err := buildVectorStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	categorizer, summarizer, composer, err := buildEnrichment(cfg)
	if err != nil {
		return err
	}

	sc := scraper.New(scraper.Config{
		MaxDepth:          cfg.Scraper.MaxDepth,
		MaxPages:          cfg.Scraper.MaxPages,
		RateLimit:         cfg.Scraper.RateLimit,
		IgnorePatterns:    cfg.Scraper.IgnorePatterns,
		AllowedExtensions: cfg.Scraper.AllowedExtensions,
	}, logger)

	p := pipeline.New(db, vectorIndex, embedder, categorizer, summarizer, logger)
	cascade := search.New(db, vectorIndex, embedder, composer, logger)
	builder := rollup.New(db, logger)

	if f.ingestURLs != "" {
		return batchIngest(ctx, sc, p, strings.Split(f.ingestURLs, ","))
	}
	if f.crawlURL != "" {
		return crawlAndWait(ctx, sc, p, f.crawlURL)
	}

	srv := server.New(db, p, cascade, builder, sc, logger)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// buildVectorStack wires the embedder and Qdrant client when an embedding
// provider is configured; otherwise both come back nil and the service runs
// in lexical-only mode.
func buildVectorStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (types.Embedder, types.VectorIndex, error) {
	if cfg.Providers.Embedding == "none" {
		return nil, nil, nil
	}

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Model:     cfg.LLM.EmbedModel,
		BaseURL:   cfg.LLM.BaseURL,
		VectorDim: cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	qdrant := index.New(index.Config{
		BaseURL:         cfg.Qdrant.URL,
		APIKey:          cfg.Qdrant.APIKey,
		ChunkCollection: cfg.Qdrant.ChunkCollection,
		DocCollection:   cfg.Qdrant.DocCollection,
		VectorDim:       cfg.Database.VectorDim,
		Distance:        cfg.Qdrant.Distance,
		Timeout:         cfg.Qdrant.Timeout,
	})
	if err := qdrant.EnsureCollections(ctx); err != nil {
		// the index is best effort; the cascade probes readiness per query
		logger.Warn("qdrant collection setup failed", zap.Error(err))
	}
	return embedder, qdrant, nil
}

func buildEnrichment(cfg *config.Config) (types.Categorizer, types.Summarizer, types.Composer, error) {
	var (
		categorizer types.Categorizer
		summarizer  types.Summarizer
		composer    types.Composer
	)

	if cfg.Providers.Categorizer == "llm" {
		c, err := llm.NewCategorizer(llm.CategorizerConfig{
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize categorizer: %w", err)
		}
		categorizer = c
	}

	if cfg.Providers.Summarizer == "llm" {
		s, err := llm.NewSummarizer(llm.SummarizerConfig{
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize summarizer: %w", err)
		}
		summarizer = s
	}

	if cfg.Providers.Composer == "llm" {
		c, err := llm.NewComposer(llm.ComposerConfig{
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize composer: %w", err)
		}
		composer = c
	}

	return categorizer, summarizer, composer, nil
}

// batchIngest fetches each URL and runs it through the full pipeline,
// reporting progress on the terminal.
func batchIngest(ctx context.Context, sc *scraper.Scraper, p *pipeline.Pipeline, urls []string) error {
	color.Blue("\nIngesting %d URLs\n", len(urls))
	bar := progressbar.NewOptions(len(urls),
		progressbar.OptionSetDescription(color.BlueString("Fetching and ingesting...")),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)

	var failures int
	for _, rawURL := range urls {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			bar.Add(1)
			continue
		}

		page, err := sc.Fetch(ctx, rawURL)
		if err != nil {
			failures++
			color.Red("\n✗ %s: %v", rawURL, err)
			bar.Add(1)
			continue
		}

		result, err := p.Ingest(ctx, pipeline.IngestInput{
			Text:        page.Content,
			SourceURL:   page.URL,
			Title:       page.Title,
			ContentType: page.ContentType,
		})
		if err != nil {
			failures++
			color.Red("\n✗ %s: %v", rawURL, err)
			bar.Add(1)
			continue
		}

		if result.Duplicate {
			color.Yellow("\n= %s already captured (doc %d)", rawURL, result.DocumentID)
		}
		bar.Add(1)
	}
	bar.Finish()

	if failures > 0 {
		color.Red("\n%d of %d URLs failed\n", failures, len(urls))
		return fmt.Errorf("batch ingest finished with %d failures", failures)
	}
	color.Green("\n✓ Ingested %d URLs\n", len(urls))
	return nil
}

// crawlAndWait starts a crawl rooted at rawURL, feeds every fetched page
// through the pipeline and blocks until the job leaves the running state.
func crawlAndWait(ctx context.Context, sc *scraper.Scraper, p *pipeline.Pipeline, rawURL string) error {
	color.Blue("\nCrawling %s\n", rawURL)

	id, err := sc.StartCrawl(rawURL, func(ctx context.Context, page *scraper.Page) error {
		result, err := p.Ingest(ctx, pipeline.IngestInput{
			Text:        page.Content,
			SourceURL:   page.URL,
			Title:       page.Title,
			ContentType: page.ContentType,
		})
		if err != nil {
			color.Red("✗ %s: %v", page.URL, err)
			return err
		}
		if result.Duplicate {
			color.Yellow("= %s already captured (doc %d)", page.URL, result.DocumentID)
		} else {
			color.Green("✓ %s (doc %d, %d chunks)", page.URL, result.DocumentID, result.ChunkCount)
		}
		return nil
	})
	if err != nil {
		return err
	}

	job, err := sc.Await(ctx, id, time.Second, crawlWaitDeadline)
	if err != nil {
		return err
	}
	if job.Status == scraper.StatusFailed {
		return fmt.Errorf("crawl failed: %s", job.Error)
	}
	color.Green("\n✓ Crawled %d pages\n", job.Pages)
	return nil
}
