// Package main is the kbserve CLI entry point.
package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gowows/kbserve/internal/answercache"
	"github.com/gowows/kbserve/internal/catalog"
	"github.com/gowows/kbserve/internal/chunker"
	"github.com/gowows/kbserve/internal/cli"
	"github.com/gowows/kbserve/internal/config"
	"github.com/gowows/kbserve/internal/docid"
	"github.com/gowows/kbserve/internal/embedding"
	"github.com/gowows/kbserve/internal/extract"
	"github.com/gowows/kbserve/internal/feedback"
	"github.com/gowows/kbserve/internal/indexstore"
	"github.com/gowows/kbserve/internal/keyword"
	"github.com/gowows/kbserve/internal/llm"
	"github.com/gowows/kbserve/internal/models"
	"github.com/gowows/kbserve/internal/resolver"
	"github.com/gowows/kbserve/internal/server"
	"github.com/gowows/kbserve/internal/storage"
	"github.com/gowows/kbserve/internal/watcher"
	"github.com/gowows/kbserve/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kbserve/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "kbserve server" from the project dir uses the
// project's config (including debug).
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
	// Local .env files override nothing that is already exported.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kbserve version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (cache stages, watcher events, etc.)")
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
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.EnabledOrDefault() {
		indexes := components.Indexes
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		// A changed source file only invalidates its index artifacts; cached
		// answers survive document edits.
		watchSvc := watcher.New(cfg.Storage.KBRoot, cfg.Watch.Extensions, func(relPath string) {
			key := docid.Key(relPath)
			if err := indexes.Invalidate(context.Background(), key); err != nil {
				logger.Warn("index invalidation failed", zap.String("path", relPath), zap.Error(err))
			} else {
				logger.Info("index invalidated after change", zap.String("path", relPath))
			}
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(
		components.Resolver,
		components.Catalog,
		components.Cache,
		components.Chunks,
		components.Indexes,
		components.Extractor,
		components.Feedback,
		cfg,
		logger,
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

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	path := fs.String("path", "", "document path, e.g. Standard/Standard1/story.pdf")
	outputFormat := fs.String("output", "text", "output format: text (human-readable) or json (parseable)")
	_ = fs.Parse(os.Args[2:])

	if *path == "" || fs.NArg() < 1 {
		fmt.Println("Usage: kbserve ask --path <folder/subfolder/file> <question>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: kbserve ask --path <folder/subfolder/file> <question>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	result, err := askViaHTTP(*serverURL, *path, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL, path, query string) (*models.ResolveResult, error) {
	body, err := json.Marshal(models.ResolveRequest{Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/kb/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.ResolveResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var status struct {
		CacheEntries     int64          `json:"cache_entries"`
		IndexedDocuments int64          `json:"indexed_documents"`
		Chunks           int64          `json:"chunks"`
		Config           map[string]any `json:"config"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
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
		fmt.Printf("cache_entries:      %d   # cached question/answer pairs\n", status.CacheEntries)
		fmt.Printf("indexed_documents:  %d   # documents with a built index\n", status.IndexedDocuments)
		fmt.Printf("chunks:             %d   # stored text chunks\n", status.Chunks)
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, k := range []string{"similarity_threshold", "top_k", "chunk_size", "chunk_overlap", "embedding_provider", "llm_model", "kb_root"} {
				if v, ok := status.Config[k]; ok {
					fmt.Printf("%-20s %v\n", k+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	DB        *sql.DB
	Chunks    storage.ChunkStore
	Cache     answercache.Cache
	Feedback  *feedback.Store
	Embedder  embedding.Embedder
	Keywords  keyword.ChunkIndex
	Indexes   *indexstore.Store
	Generator llm.Generator
	Catalog   *catalog.Catalog
	Extractor *extract.Extractor
	Resolver  *resolver.Resolver
}

func (c *Components) Close() {
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	db, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	chunks, err := storage.NewSQLiteChunkStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunk store: %w", err)
	}
	cache, err := answercache.NewSQLiteCache(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize answer cache: %w", err)
	}
	fb, err := feedback.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize feedback store: %w", err)
	}

	embedder := newEmbedder(cfg, logger)

	keywords, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	extractor := extract.NewExtractor()
	storeOpts := []indexstore.Option{
		indexstore.WithFusionWeights(cfg.Resolve.KeywordWeight, cfg.Resolve.SemanticWeight),
	}
	if debug {
		storeOpts = append(storeOpts, indexstore.WithLogger(logger))
	}
	indexes := indexstore.New(
		cfg.Storage.VectorIndexDir,
		embedder,
		chunker.New(cfg.Resolve.ChunkSize, cfg.Resolve.ChunkOverlap),
		extractor,
		chunks,
		keywords,
		storeOpts...,
	)

	generator := llm.NewOllamaGenerator(cfg.LLM.OllamaURL, cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)

	cat, err := catalog.New(cfg.Storage.KBRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open kb root: %w", err)
	}

	resolveOpts := []resolver.Option{
		resolver.WithThreshold(cfg.Resolve.SimilarityThreshold),
		resolver.WithTopK(cfg.Resolve.TopK),
	}
	if debug {
		resolveOpts = append(resolveOpts, resolver.WithLogger(logger))
	}
	res := resolver.New(cat, cache, embedder, indexes, generator, resolveOpts...)

	return &Components{
		DB:        db,
		Chunks:    chunks,
		Cache:     cache,
		Feedback:  fb,
		Embedder:  embedder,
		Keywords:  keywords,
		Indexes:   indexes,
		Generator: generator,
		Catalog:   cat,
		Extractor: extractor,
		Resolver:  res,
	}, nil
}

// newEmbedder builds the configured embedding provider, falling back to the
// deterministic mock so the server still comes up without one.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	switch cfg.Embedding.Provider {
	case "onnx":
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err == nil {
			return onnxEmbedder
		}
		logger.Warn("onnx embedder unavailable, falling back to mock", zap.Error(err))
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		return embedding.NewOllamaEmbedder(
			cfg.Embedding.OllamaURL,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.CacheSize,
		)
	}
}

func printUsage() {
	fmt.Println(`kbserve - knowledge-base question answering with tiered answer caching

Usage:
  kbserve server [flags]                      Start the HTTP server
  kbserve ask [flags] <question>              Ask a question about a document
  kbserve status [flags]                      Show cache/index status
  kbserve version                             Show version
  kbserve help                                Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kbserve/config.yaml)
  --debug            Enable debug logging (cache stages, watcher events, etc.)

Ask Flags:
  --server string    Server URL (default: http://localhost:8080)
  --path string      Document path inside the KB, e.g. Standard/Standard1/story.pdf
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  kbserve server
  kbserve ask --path Standard/Standard1/story.pdf "What is the refund policy?"
  kbserve ask --path Standard/Standard1/story.pdf --output json "What is the refund policy?"
  kbserve status
  kbserve status --output json`)
}
