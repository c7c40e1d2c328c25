// Package main is the Kikoe CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kikoe/internal/cli"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/diarize"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/keyword"
	"github.com/hyperjump/kikoe/internal/media"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/pipeline"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/server"
	"github.com/hyperjump/kikoe/internal/store"
	"github.com/hyperjump/kikoe/internal/transcribe"
	"github.com/hyperjump/kikoe/internal/watcher"
	"github.com/hyperjump/kikoe/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kikoe/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if it exists, so running from the project dir
// picks up the project's config. Returns the config and the path actually
// loaded (for saving watch directory changes).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys for hosted backends live in .env during development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve":
		runServe()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("kikoe version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	orch := components.Orchestrator
	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if err := orch.ProcessFile(context.Background(), path, cfg.Watch.Project, "", cfg.Diarization.EnabledOrDefault()); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.IngestBacklog()

	srv := server.NewServer(
		components.Engine,
		components.Orchestrator,
		components.Store,
		&cfg.Server,
		logger,
		watchSvc,
		resolvedConfigPath,
		cfg,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	project := fs.String("project", "", "project name recorded on ingested media")
	language := fs.String("language", "", "transcription language hint (default: configured)")
	diarize := fs.Bool("diarize", true, "run speaker diarization (default: configured)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kikoe ingest [flags] <media-file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	components.Orchestrator = withProgressPrinter(components, cfg, logger)

	// The config decides diarization unless the flag was given explicitly.
	diarizeOn := cfg.Diarization.EnabledOrDefault()
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "diarize" {
			diarizeOn = *diarize
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		summary, err := components.Orchestrator.ProcessFolder(ctx, path, *project, *language, diarizeOn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nDiscovered %d, indexed %d, skipped %d, failed %d\n",
			summary.Discovered, summary.Indexed, summary.Skipped, summary.Failed)
		if summary.Failed > 0 {
			os.Exit(1)
		}
		return
	}
	if err := components.Orchestrator.ProcessFile(ctx, path, *project, *language, diarizeOn); err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Media indexed")
}

// withProgressPrinter rebuilds the orchestrator with a per-stage progress line
// on stdout for interactive ingest runs.
func withProgressPrinter(c *Components, cfg *config.Config, logger *zap.Logger) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(
		c.Store, c.Locator, c.Transcriber, c.Diarizer, c.Embedder, c.Lexical, cfg,
		pipeline.WithLogger(logger),
		pipeline.WithProgress(func(ev pipeline.Event) {
			if ev.Err != nil {
				fmt.Printf("%s  %s: %v\n", ev.MediaID, ev.Status, ev.Err)
				return
			}
			fmt.Printf("%s  %s\n", ev.MediaID, ev.Status)
		}),
	)
}

// searchArgsReorder moves flags that appear after the query text to the front
// so flag.Parse sees them; the flag package stops at the first non-flag arg.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildSearchQuery joins positional args with spaces so multi-word queries
// work with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kikoe search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kikoe search what did we decide about the budget
  kikoe search --project standup --limit 5 action items
  kikoe search --from 2026-04-01 --to 2026-04-30 release planning
  kikoe search --rerank=false --output json quarterly numbers
`)
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct store access)")
	limit := fs.Int("limit", 10, "number of results")
	project := fs.String("project", "", "restrict to one project")
	mediaID := fs.String("media", "", "restrict to one media item")
	from := fs.String("from", "", "earliest event date (YYYY-MM-DD)")
	to := fs.String("to", "", "latest event date (YYYY-MM-DD)")
	minScore := fs.Float64("min-score", 0, "minimum similarity (0 = configured floor)")
	rerank := fs.Bool("rerank", true, "lexically re-rank top candidates")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "compact":
		format = cli.OutputCompact
	case "text":
	default:
		fmt.Printf("Unknown output format %q; use text, compact, or json\n", *outputFormat)
		os.Exit(1)
	}

	query := &models.SearchQuery{
		Query:    queryStr,
		Limit:    *limit,
		MinScore: *minScore,
		Rerank:   rerank,
		Filters: models.SearchFilters{
			Project: *project,
			MediaID: *mediaID,
		},
	}
	if *from != "" {
		d, err := time.Parse("2006-01-02", *from)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --from date: %v\n", err)
			os.Exit(1)
		}
		query.Filters.DateFrom = d
	}
	if *to != "" {
		d, err := time.Parse("2006-01-02", *to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --to date: %v\n", err)
			os.Exit(1)
		}
		query.Filters.DateTo = d
	}

	if *serverURL != "" {
		// The HTTP API avoids an SQLite/Bleve lock conflict with a running server.
		response, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	response, err := components.Engine.Search(context.Background(), query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	MediaTotal   int64 `json:"media_total"`
	MediaIndexed int64 `json:"media_indexed"`
	MediaFailed  int64 `json:"media_failed"`
	Chunks       int64 `json:"chunks"`
	Index        *struct {
		Model      string `json:"model"`
		Dimensions int    `json:"dimensions"`
		Metric     string `json:"metric"`
	} `json:"index,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct store access)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		st, err := store.New(cfg.Storage, cfg.Embedding.Dimensions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		ctx := context.Background()
		stats, err := st.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			MediaTotal:   stats.MediaTotal,
			MediaIndexed: stats.MediaIndexed,
			MediaFailed:  stats.MediaFailed,
			Chunks:       stats.Chunks,
		}
		if meta, err := st.GetIndexMeta(ctx); err == nil && meta != nil {
			status.Index = &struct {
				Model      string `json:"model"`
				Dimensions int    `json:"dimensions"`
				Metric     string `json:"metric"`
			}{Model: meta.Model, Dimensions: meta.Dimensions, Metric: meta.Metric}
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("media_total:    %d\n", status.MediaTotal)
		fmt.Printf("media_indexed:  %d\n", status.MediaIndexed)
		fmt.Printf("media_failed:   %d\n", status.MediaFailed)
		fmt.Printf("chunks:         %d\n", status.Chunks)
		if status.Index != nil {
			fmt.Println()
			fmt.Printf("embedding_model: %s\n", status.Index.Model)
			fmt.Printf("dimensions:      %d\n", status.Index.Dimensions)
			fmt.Printf("metric:          %s\n", status.Index.Metric)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kikoe watch <add|remove|list> [path]")
		fmt.Println("  kikoe watch add <path>     Add a drop folder")
		fmt.Println("  kikoe watch remove <path>  Remove a drop folder")
		fmt.Println("  kikoe watch list           List drop folders")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kikoe watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kikoe watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store        store.Store
	Embedder     embedding.Embedder
	Lexical      *keyword.BleveIndex
	Transcriber  transcribe.Backend
	Diarizer     diarize.Backend
	Locator      *media.Locator
	Engine       *search.Engine
	Orchestrator *pipeline.Orchestrator
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Lexical != nil {
		_ = c.Lexical.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	st, err := store.New(cfg.Storage, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "onnx":
		embedder, err = embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize onnx embedder: %w", err)
		}
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		embedder = embedding.NewOllamaEmbedder(
			cfg.Embedding.BaseURL,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.CacheSize,
		)
	}

	lexical, err := keyword.NewBleveIndex(cfg.Storage.LexicalIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lexical index: %w", err)
	}

	var transcriber transcribe.Backend
	switch cfg.Transcription.Backend {
	case "openai":
		transcriber = transcribe.NewOpenAIBackend(
			os.Getenv("OPENAI_API_KEY"),
			cfg.Transcription.Model,
			cfg.Transcription.BaseURL,
		)
	case "mock":
		transcriber = &transcribe.MockBackend{}
	default:
		transcriber = transcribe.NewWhisperBackend(cfg.Transcription.HelperPath, cfg.Transcription.Model)
	}

	var diarizer diarize.Backend
	if cfg.Diarization.EnabledOrDefault() {
		switch cfg.Diarization.Backend {
		case "gap":
			diarizer = &diarize.GapBackend{}
		case "mock":
			diarizer = &diarize.MockBackend{}
		default:
			diarizer = diarize.NewPyannoteBackend(cfg.Diarization.HelperPath)
		}
	}

	locatorOpts := []media.LocatorOption{media.WithMinFileBytes(cfg.Pipeline.MinFileBytes)}
	if debug {
		locatorOpts = append(locatorOpts, media.WithLogger(logger))
	}
	locator := media.NewLocator(&media.FFProbe{}, cfg.Watch.Extensions, locatorOpts...)

	engine := search.NewEngine(st, embedder, lexical, &cfg.Search)
	orch := pipeline.NewOrchestrator(
		st, locator, transcriber, diarizer, embedder, lexical, cfg,
		pipeline.WithLogger(logger),
	)

	return &Components{
		Store:        st,
		Embedder:     embedder,
		Lexical:      lexical,
		Transcriber:  transcriber,
		Diarizer:     diarizer,
		Locator:      locator,
		Engine:       engine,
		Orchestrator: orch,
	}, nil
}

func printUsage() {
	fmt.Println(`kikoe - semantic search over transcribed meetings and calls

Usage:
  kikoe serve [flags]              Start the HTTP server and drop-folder watch
  kikoe ingest [flags] <path>      Ingest a media file or folder
  kikoe search [flags] <query>     Search indexed transcripts
  kikoe status [flags]             Show index statistics
  kikoe watch <add|remove|list>    Manage drop folders on a running server
  kikoe version                    Show version
  kikoe help                       Show this help

Serve Flags:
  --config string    Config file path (default: /usr/local/etc/kikoe/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string     Config file path
  --project string    Project name recorded on ingested media
  --language string   Transcription language hint (default: configured)
  --diarize           Run speaker diarization (default: configured)

Search Flags:
  --config string     Config file path (direct mode)
  --server string     Server URL (default: http://localhost:8080). Use --server "" for direct store access.
  --limit int         Number of results (default: 10)
  --project string    Restrict to one project
  --media string      Restrict to one media item
  --from string       Earliest event date (YYYY-MM-DD)
  --to string         Latest event date (YYYY-MM-DD)
  --min-score float   Minimum similarity (0 = configured floor)
  --rerank            Lexically re-rank top candidates (default: true)
  --output string     Output format: text, compact, or json (default: text)

Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct store access.
  --output string    Output format: text or json (default: text)

Examples:
  kikoe serve
  kikoe ingest --project standup /media/recordings
  kikoe ingest --language fr --diarize=false interview.mp3
  kikoe search what did we decide about hiring
  kikoe search --project standup --from 2026-04-01 budget
  kikoe status --output json
  kikoe watch add /media/drop`)
}
