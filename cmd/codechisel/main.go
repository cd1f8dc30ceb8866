// codechisel indexes codebases into deduplicated code blocks and serves
// semantic search over them.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/codechisel/codechisel/builtin" // builtin provider registration
	ollamaEmbed "github.com/codechisel/codechisel/builtin/embedding/ollama"
	openaiEmbed "github.com/codechisel/codechisel/builtin/embedding/openai"
	ollamaRerank "github.com/codechisel/codechisel/builtin/reranker/ollama"
	"github.com/codechisel/codechisel/builtin/reranker/none"
	simpleChunker "github.com/codechisel/codechisel/builtin/chunking/simple"
	tsChunker "github.com/codechisel/codechisel/builtin/chunking/treesitter"
	"github.com/codechisel/codechisel/builtin/vectorstore/sqlitevec"
	"github.com/codechisel/codechisel/internal/config"
	"github.com/codechisel/codechisel/internal/detect"
	"github.com/codechisel/codechisel/internal/enrich"
	"github.com/codechisel/codechisel/internal/index"
	"github.com/codechisel/codechisel/internal/mcp"
	"github.com/codechisel/codechisel/internal/search"
	"github.com/codechisel/codechisel/pkg/plugin/host"
	"github.com/codechisel/codechisel/pkg/plugin/shared"
	"github.com/codechisel/codechisel/pkg/provider"
	"github.com/codechisel/codechisel/pkg/types"
)

var (
	version   = "0.1.0"
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "codechisel",
	Short: "Semantic code search over chunked codebases",
	Long: `codechisel splits a codebase into size-bounded, deduplicated code blocks
and serves semantic search over them using vector embeddings and hybrid
search (BM25 + vector).

It supports:
- Multiple embedding providers (Ollama, OpenAI, external plugins)
- Reranking with Qwen3-Reranker
- TreeSitter-based chunking with a line-based fallback`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codechisel %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a codebase",
	Long:  `Index a codebase for semantic search. If no path is provided, indexes the current directory.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		force, _ := cmd.Flags().GetBool("force")

		if dryRun {
			runDryRun(path)
		} else {
			runIndex(path, force)
		}
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the codebase",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := args[0]
		limit, _ := cmd.Flags().GetInt("limit")
		mode, _ := cmd.Flags().GetString("mode")
		noRerank, _ := cmd.Flags().GetBool("no-rerank")

		runSearch(query, limit, mode, noRerank)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		runStatus(verbose)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP server",
	Run: func(cmd *cobra.Command, args []string) {
		stdio, _ := cmd.Flags().GetBool("stdio")
		runServe(stdio)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch for file changes and re-index automatically",
	Long:  `Watch for file changes and automatically re-index modified files. If no path is provided, watches the current directory.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		debounce, _ := cmd.Flags().GetInt("debounce")
		runWatch(path, debounce)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigInit()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect environment and show recommendations",
	Run: func(cmd *cobra.Command, args []string) {
		runDetect()
	},
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize project with interactive setup",
	Long: `Initialize a new project with an interactive setup flow.

The setup will:
1. Detect your environment (Ollama, OpenAI, system resources)
2. Analyze your project (languages, size, complexity)
3. Recommend optimal settings
4. Let you choose a preset or customize settings
5. Create the configuration file
6. Optionally start indexing

Examples:
  codechisel init           # Initialize current directory
  codechisel init ./myapp   # Initialize specific directory
  codechisel init --preset recommended  # Skip prompts, use recommended
  codechisel init --preset fast         # Skip prompts, use fast preset`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		preset, _ := cmd.Flags().GetString("preset")
		skipIndex, _ := cmd.Flags().GetBool("no-index")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		runInit(path, preset, skipIndex, jsonOutput)
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Plugin management",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available plugins",
	Run: func(cmd *cobra.Command, args []string) {
		runPluginList()
	},
}

var pluginLoadCmd = &cobra.Command{
	Use:   "load <name> <type>",
	Short: "Load a plugin (type: embedding, reranker)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runPluginLoad(args[0], args[1])
	},
}

// Chunk command
var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Chunk a single file and print the blocks as JSON",
	Long: `Run the chunking engine on one file and print the resulting blocks as
JSON. Nothing is embedded or stored, so this is the fastest way to inspect
block boundaries.

Examples:
  codechisel chunk main.go
  codechisel chunk docs/README.md`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runChunk(args[0])
	},
}

// Clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the index",
	Long:  `Remove all indexed data. This will require re-indexing.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		runClear(force)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: .codechisel/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	indexCmd.Flags().Bool("dry-run", false, "chunk only, show what would be indexed")
	indexCmd.Flags().Bool("force", false, "force reindex all files")

	searchCmd.Flags().IntP("limit", "l", 10, "maximum results")
	searchCmd.Flags().StringP("mode", "m", "hybrid", "search mode (vector, bm25, hybrid)")
	searchCmd.Flags().Bool("no-rerank", false, "disable reranking")

	statusCmd.Flags().BoolP("verbose", "v", false, "show detailed statistics")

	serveCmd.Flags().Bool("stdio", false, "use stdio transport (for MCP)")

	watchCmd.Flags().Int("debounce", 500, "debounce time in milliseconds")

	initCmd.Flags().String("preset", "", "use preset (recommended, quality, fast)")
	initCmd.Flags().Bool("no-index", false, "skip indexing after init")
	initCmd.Flags().Bool("json", false, "output as JSON (for MCP integration)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginLoadCmd)

	// Clear command flags
	clearCmd.Flags().BoolP("force", "f", false, "force clear without confirmation")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(clearCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// pluginHost is created lazily when a provider name carries the "plugin:"
// prefix and torn down by closePlugins once the command finishes.
var pluginHost *host.Manager

func plugins(projectRoot string) *host.Manager {
	if pluginHost == nil {
		pluginHost = host.NewManager(config.PluginDir(projectRoot))
	}
	return pluginHost
}

func closePlugins() {
	if pluginHost != nil {
		pluginHost.UnloadAll()
	}
}

// createProviders creates all providers based on config. Provider names with
// a "plugin:" prefix are dispensed by external plugin processes.
func createProviders(projectRoot string, cfg *config.Config) (provider.VectorStore, provider.EmbeddingProvider, provider.ChunkingStrategy, provider.Reranker, error) {
	// Create vector store
	store, err := provider.DefaultRegistry.CreateVectorStore(cfg.VectorStore.Provider)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	// Create embedding provider
	var embedding provider.EmbeddingProvider
	if name, ok := strings.CutPrefix(cfg.Embedding.Provider, "plugin:"); ok {
		p, err := plugins(projectRoot).LoadEmbedding(name)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to load embedding plugin %q: %w", name, err)
		}
		embedding = p
	} else {
		switch cfg.Embedding.Provider {
		case "ollama":
			embedding = ollamaEmbed.New(ollamaEmbed.Config{
				Model:     cfg.Embedding.Model,
				Endpoint:  cfg.Embedding.Endpoint,
				BatchSize: cfg.Embedding.BatchSize,
			})
		case "openai":
			embedding = openaiEmbed.New(openaiEmbed.Config{
				Model:     cfg.Embedding.Model,
				APIKey:    cfg.Embedding.APIKey,
				Endpoint:  cfg.Embedding.Endpoint,
				BatchSize: cfg.Embedding.BatchSize,
			})
		default:
			return nil, nil, nil, nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
		}
	}

	// Create chunker
	var chunker provider.ChunkingStrategy
	switch cfg.Chunking.Strategy {
	case "treesitter":
		chunker = tsChunker.New(tsChunker.Config{
			Limits:   cfg.Chunking.Limits(),
			Enricher: enrich.New(),
		})
	case "simple":
		chunker = simpleChunker.New(simpleChunker.Config{
			Limits: cfg.Chunking.Limits(),
		})
	default:
		chunker = simpleChunker.New(simpleChunker.Config{
			Limits: cfg.Chunking.Limits(),
		})
	}

	// Create reranker
	var reranker provider.Reranker
	if cfg.Reranker.Enabled {
		if name, ok := strings.CutPrefix(cfg.Reranker.Provider, "plugin:"); ok {
			r, err := plugins(projectRoot).LoadReranker(name)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("failed to load reranker plugin %q: %w", name, err)
			}
			reranker = r
		} else {
			switch cfg.Reranker.Provider {
			case "ollama":
				reranker = ollamaRerank.New(ollamaRerank.Config{
					Model:      cfg.Reranker.Model,
					Endpoint:   cfg.Reranker.Endpoint,
					MaxDocs:    cfg.Reranker.Candidates,
					Candidates: cfg.Reranker.Candidates,
				})
			case "none", "":
				reranker = none.New()
			}
		}
	}

	return store, embedding, chunker, reranker, nil
}

func runDryRun(path string) {
	absPath, _ := filepath.Abs(path)
	slog.Info("dry-run mode", "path", absPath)

	cfg, warnings, err := config.Load(absPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	_, _, chunker, _, err := createProviders(absPath, cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}
	defer func() {
		chunker.Close()
		closePlugins()
	}()

	// Chunk-only pass: the store and the embedding provider are never touched.
	indexer := index.New(index.Config{
		ProjectDir: absPath,
		Config:     cfg,
		Chunker:    chunker,
		OnProgress: func(p types.IndexProgress) {
			if p.Phase == "chunking" {
				fmt.Printf("\r[%s] Files: %d/%d", p.Phase, p.ProcessedFiles, p.TotalFiles)
			}
		},
	})

	blocks, err := indexer.DryRun(context.Background())
	if err != nil {
		slog.Error("dry run failed", "error", err)
		os.Exit(1)
	}

	files := make(map[string]struct{})
	byLang := make(map[string]int)
	totalChars := 0
	for _, b := range blocks {
		files[b.FilePath] = struct{}{}
		byLang[b.Language]++
		totalChars += len(b.Content)
	}

	fmt.Println("\n=== Dry Run ===")
	fmt.Printf("Files:  %d\n", len(files))
	fmt.Printf("Blocks: %d\n", len(blocks))
	if len(blocks) > 0 {
		fmt.Printf("Average block size: %d chars\n", totalChars/len(blocks))
	}

	fmt.Println("\nBlocks per language:")
	for lang, count := range byLang {
		fmt.Printf("  %s: %d\n", lang, count)
	}

	fmt.Println("\nNothing was embedded or stored. Run without --dry-run to index.")
}

func runIndex(path string, force bool) {
	absPath, _ := filepath.Abs(path)
	slog.Info("indexing", "path", absPath, "force", force)

	cfg, warnings, err := config.Load(absPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	slog.Info("loaded config",
		"embedding", cfg.Embedding.Provider+"/"+cfg.Embedding.Model,
		"chunking", cfg.Chunking.Strategy,
		"reranker", cfg.Reranker.Enabled,
	)

	// Create providers
	store, embedding, chunker, _, err := createProviders(absPath, cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown with context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	interrupted := false
	go func() {
		sig := <-sigChan
		slog.Info("received interrupt signal, stopping indexing...", "signal", sig)
		interrupted = true
		cancel()
	}()

	// Cleanup on exit
	defer func() {
		signal.Stop(sigChan)
		store.Close()
		embedding.Close()
		chunker.Close()
		closePlugins()
		if interrupted {
			fmt.Println("\nIndexing interrupted. Progress saved - run again to resume.")
		}
	}()

	// Initialize store
	dbPath := config.IndexDBPath(absPath)
	if err := store.Init(dbPath); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	// Warmup embedding
	if err := embedding.Warmup(ctx); err != nil {
		slog.Warn("embedding warmup failed", "error", err)
	}

	// Create and run indexer
	indexer := index.New(index.Config{
		ProjectDir: absPath,
		Config:     cfg,
		Store:      store,
		Embedding:  embedding,
		Chunker:    chunker,
		OnProgress: func(p types.IndexProgress) {
			if p.Phase != "" {
				fmt.Printf("\r[%s] Files: %d/%d, Blocks: %d/%d",
					p.Phase, p.ProcessedFiles, p.TotalFiles,
					p.ProcessedBlocks, p.TotalBlocks)
			}
		},
	})

	if err := indexer.Index(ctx, force); err != nil {
		if ctx.Err() != nil {
			// Context was cancelled - this is expected on interrupt
			slog.Info("indexing stopped by user")
		} else {
			slog.Error("indexing failed", "error", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("\nIndexing complete!")

	// Show stats
	stats, _ := store.GetStats()
	if stats != nil {
		fmt.Printf("Files: %d, Blocks: %d\n", stats.IndexedFiles, stats.TotalBlocks)
	}
}

func runSearch(query string, limit int, mode string, noRerank bool) {
	cwd, _ := os.Getwd()
	slog.Debug("searching", "query", query, "limit", limit, "mode", mode, "no-rerank", noRerank)

	cfg, _, err := config.Load(cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create providers
	store, embedding, _, reranker, err := createProviders(cwd, cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}
	defer closePlugins()
	defer store.Close()
	defer embedding.Close()

	// Initialize store
	dbPath := config.IndexDBPath(cwd)
	if err := store.Init(dbPath); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	// Create search engine
	engine := search.New(search.Config{
		Store:      store,
		Embedding:  embedding,
		Reranker:   reranker,
		ProjectDir: cwd,
		Defaults: search.Defaults{
			Limit:        cfg.Search.DefaultLimit,
			Mode:         types.SearchMode(cfg.Search.Mode),
			VectorWeight: cfg.Search.VectorWeight,
			BM25Weight:   cfg.Search.BM25Weight,
			Candidates:   cfg.Reranker.Candidates,
		},
	})

	// Determine search mode
	searchMode := types.SearchModeHybrid
	switch mode {
	case "vector":
		searchMode = types.SearchModeVector
	case "bm25":
		searchMode = types.SearchModeBM25
	}

	// Execute search
	ctx := context.Background()
	results, err := engine.Search(ctx, &types.SearchRequest{
		Query:       query,
		Limit:       limit,
		Mode:        searchMode,
		UseReranker: !noRerank && reranker != nil,
	})
	if err != nil {
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}

	// Display results
	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	for i, r := range results {
		fmt.Printf("\n=== Result %d (score: %.3f) ===\n", i+1, r.Score)
		fmt.Printf("File: %s:%d-%d\n", r.Block.FilePath, r.Block.StartLine, r.Block.EndLine)
		if r.Block.Identifier != "" {
			fmt.Printf("Name: %s (%s)\n", r.Block.Identifier, r.Block.Type)
		}
		fmt.Printf("\n%s\n", r.Block.Content)
	}
}

func runStatus(verbose bool) {
	cwd, _ := os.Getwd()

	cfg, _, err := config.Load(cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create store
	store := sqlitevec.New()
	dbPath := config.IndexDBPath(cwd)
	if err := store.Init(dbPath); err != nil {
		fmt.Println("No index found. Run 'codechisel index' to create one.")
		return
	}
	defer store.Close()

	// Get stats
	stats, err := store.GetStats()
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		os.Exit(1)
	}

	meta, _ := store.GetMetadata()

	fmt.Println("=== Index Status ===")
	fmt.Printf("Indexed files: %d\n", stats.IndexedFiles)
	fmt.Printf("Total blocks:  %d\n", stats.TotalBlocks)
	fmt.Printf("Database size: %s\n", formatBytes(stats.DBSizeBytes))

	if !stats.LastIndexed.IsZero() {
		fmt.Printf("Last indexed:  %s\n", stats.LastIndexed.Format("2006-01-02 15:04:05"))
	}

	if verbose && meta != nil {
		fmt.Println("\n=== Index Metadata ===")
		fmt.Printf("Embedding:  %s/%s\n", meta.EmbeddingProvider, meta.EmbeddingModel)
		fmt.Printf("Dimensions: %d\n", meta.EmbeddingDimensions)
		fmt.Printf("Chunking:   %s\n", meta.ChunkingStrategy)
		if meta.RerankerModel != "" {
			fmt.Printf("Reranker:   %s\n", meta.RerankerModel)
		}
		fmt.Printf("Tool:       %s\n", meta.ToolVersion)
	}

	if verbose {
		fmt.Println("\n=== Current Config ===")
		fmt.Printf("Embedding:  %s/%s\n", cfg.Embedding.Provider, cfg.Embedding.Model)
		fmt.Printf("Chunking:   %s\n", cfg.Chunking.Strategy)
		fmt.Printf("Reranker:   %v\n", cfg.Reranker.Enabled)
	}
}

func runServe(stdio bool) {
	cwd, _ := os.Getwd()
	slog.Info("starting MCP server", "stdio", stdio)

	cfg, warnings, err := config.Load(cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	// Create providers
	store, embedding, chunker, reranker, err := createProviders(cwd, cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		// Cleanup resources
		slog.Info("closing providers...")
		if err := store.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
		if err := embedding.Close(); err != nil {
			slog.Warn("failed to close embedding", "error", err)
		}
		if err := chunker.Close(); err != nil {
			slog.Warn("failed to close chunker", "error", err)
		}
		if reranker != nil {
			if err := reranker.Close(); err != nil {
				slog.Warn("failed to close reranker", "error", err)
			}
		}
		closePlugins()
		slog.Info("shutdown complete")
		os.Exit(0)
	}()

	// Ensure cleanup on normal exit too
	defer func() {
		signal.Stop(sigChan)
		store.Close()
		embedding.Close()
		chunker.Close()
		if reranker != nil {
			reranker.Close()
		}
		closePlugins()
	}()

	// Initialize store
	dbPath := config.IndexDBPath(cwd)
	if err := store.Init(dbPath); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	// Warmup providers
	if err := embedding.Warmup(ctx); err != nil {
		slog.Warn("embedding warmup failed", "error", err)
	}
	if reranker != nil {
		if err := reranker.Warmup(ctx); err != nil {
			slog.Warn("reranker warmup failed", "error", err)
		}
	}

	// Create MCP server
	server, err := mcp.New(mcp.Config{
		ProjectDir: cwd,
		Config:     cfg,
		Store:      store,
		Embedding:  embedding,
		Chunker:    chunker,
		Reranker:   reranker,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Run server
	if stdio {
		slog.Info("MCP server running (press Ctrl+C to stop)")
		if err := server.ServeStdio(); err != nil {
			if ctx.Err() != nil {
				// Context was cancelled, normal shutdown
				slog.Info("server stopped")
			} else {
				slog.Error("server error", "error", err)
				os.Exit(1)
			}
		}
	} else {
		fmt.Println("HTTP server not implemented yet. Use --stdio for MCP.")
		os.Exit(1)
	}
}

func runConfigInit() {
	cwd, _ := os.Getwd()
	cfg := config.DefaultConfig()

	if err := config.Save(cwd, cfg); err != nil {
		slog.Error("failed to save config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Created config at %s\n", config.ConfigPath(cwd))
}

func runConfigValidate() {
	cwd, _ := os.Getwd()

	cfg, warnings, err := config.Load(cwd)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	errs := config.Validate(cfg)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("Error: %v\n", e)
		}
		os.Exit(1)
	}

	// Test providers
	det := detect.New(cwd)
	result, err := det.ValidateConfig(context.Background(), cfg)
	if err != nil {
		fmt.Printf("Validation error: %v\n", err)
		os.Exit(1)
	}

	for name, test := range result.Tests {
		fmt.Printf("[%s] %s: %s\n", test.Status, name, test.Message)
	}

	if result.Valid {
		fmt.Println("\nConfiguration is valid")
	} else {
		fmt.Println("\nConfiguration has errors")
		os.Exit(1)
	}
}

func runDetect() {
	cwd, _ := os.Getwd()

	det := detect.New(cwd)
	result, err := det.DetectEnvironment(context.Background())
	if err != nil {
		slog.Error("detection failed", "error", err)
		os.Exit(1)
	}

	// Output as JSON
	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))
}

func runInit(path string, preset string, skipIndex bool, jsonOutput bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		slog.Error("invalid path", "error", err)
		os.Exit(1)
	}

	// Check if config already exists
	configPath := config.ConfigPath(absPath)
	if _, err := os.Stat(configPath); err == nil {
		if !jsonOutput {
			fmt.Printf("Config already exists at %s\n", configPath)
			fmt.Print("Overwrite? (y/N): ")
			var response string
			_, _ = fmt.Scanln(&response)
			if response != "y" && response != "Y" {
				fmt.Println("Aborted.")
				return
			}
		}
	}

	det := detect.New(absPath)
	ctx := context.Background()

	// JSON output mode (for MCP integration)
	if jsonOutput {
		env, err := det.DetectEnvironment(ctx)
		if err != nil {
			slog.Error("detection failed", "error", err)
			os.Exit(1)
		}

		state := detect.InitState{
			Environment: env,
			Options:     det.GetInitOptions(env),
			Ready:       false,
		}

		if preset != "" {
			cfg := det.ApplyPreset(env, preset)
			state.Config = cfg
			state.Selections = map[string]string{"preset": preset}
			state.Ready = true
		}

		output, _ := json.MarshalIndent(state, "", "  ")
		fmt.Println(string(output))
		return
	}

	// Interactive mode - start with provider setup
	fmt.Println("\n=== codechisel Setup ===")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	cfg := config.DefaultConfig()

	// Quick environment detection for display
	fmt.Print("Detecting environment... ")
	env, _ := det.DetectEnvironment(ctx)
	fmt.Println("done")
	fmt.Println()
	fmt.Println(detect.FormatEnvironmentSummary(env))

	// If preset specified, use it directly
	if preset != "" {
		cfg = det.ApplyPreset(env, preset)
		fmt.Printf("Using '%s' preset.\n", preset)
	} else {
		// Step 1: Choose embedding provider
		fmt.Println("Step 1: Embedding Provider")
		fmt.Println("--------------------------")
		fmt.Println("Which embedding provider do you want to use?")
		fmt.Println()

		// Show provider options with detection status
		ollamaStatus := "not detected"
		ollamaMarker := "  "
		if env.Ollama.Available {
			ollamaStatus = fmt.Sprintf("running at %s", env.Ollama.Endpoint)
			ollamaMarker = "* "
		}

		openaiStatus := "OPENAI_API_KEY not set"
		openaiMarker := "  "
		if env.OpenAI.Available {
			openaiStatus = "API key configured"
			if !env.Ollama.Available {
				openaiMarker = "* "
			}
		}

		fmt.Printf("  %s[1] Ollama - %s\n", ollamaMarker, ollamaStatus)
		fmt.Printf("  %s[2] OpenAI - %s\n", openaiMarker, openaiStatus)
		fmt.Println("    [3] Custom endpoint")
		fmt.Println()

		defaultProvider := 1
		if !env.Ollama.Available && env.OpenAI.Available {
			defaultProvider = 2
		}
		fmt.Printf("Select provider [%d]: ", defaultProvider)

		providerInput, _ := reader.ReadString('\n')
		providerInput = strings.TrimSpace(providerInput)
		providerSelection := defaultProvider
		if providerInput != "" {
			fmt.Sscanf(providerInput, "%d", &providerSelection)
		}

		var embProvider string
		var endpoint string
		var apiKey string
		var connResult *detect.ConnectionTestResult

		switch providerSelection {
		case 2:
			embProvider = "openai"
			endpoint = "https://api.openai.com/v1"
		case 3:
			embProvider = "openai" // Custom uses OpenAI-compatible API
			endpoint = ""
		default:
			embProvider = "ollama"
			endpoint = "http://localhost:11434"
		}

		fmt.Println()

		// Step 2: Configure endpoint
		fmt.Println("Step 2: API Endpoint")
		fmt.Println("--------------------")

		if embProvider == "ollama" {
			fmt.Printf("Ollama endpoint [%s]: ", endpoint)
			endpointInput, _ := reader.ReadString('\n')
			endpointInput = strings.TrimSpace(endpointInput)
			if endpointInput != "" {
				endpoint = endpointInput
			}

			// Test connection
			fmt.Print("Testing connection... ")
			connResult = det.TestOllamaConnection(ctx, endpoint)
			if connResult.Connected {
				fmt.Println("✓ Connected")
			} else {
				fmt.Printf("✗ Failed: %s\n", connResult.Error)
				fmt.Println("You can continue with this endpoint, but indexing may fail.")
			}
		} else {
			if endpoint == "" {
				fmt.Print("API endpoint URL: ")
				endpointInput, _ := reader.ReadString('\n')
				endpoint = strings.TrimSpace(endpointInput)
				if endpoint == "" {
					endpoint = "https://api.openai.com/v1"
				}
			} else {
				fmt.Printf("OpenAI endpoint [%s]: ", endpoint)
				endpointInput, _ := reader.ReadString('\n')
				endpointInput = strings.TrimSpace(endpointInput)
				if endpointInput != "" {
					endpoint = endpointInput
				}
			}

			// Get API key
			fmt.Println()
			if env.OpenAI.Available {
				fmt.Print("API Key [press Enter to use OPENAI_API_KEY]: ")
			} else {
				fmt.Print("API Key: ")
			}
			apiKeyInput, _ := reader.ReadString('\n')
			apiKey = strings.TrimSpace(apiKeyInput)
			if apiKey == "" {
				apiKey = os.Getenv("OPENAI_API_KEY")
			}

			// Test connection
			fmt.Print("Testing connection... ")
			connResult = det.TestOpenAIConnection(ctx, endpoint, apiKey)
			if connResult.Connected {
				fmt.Println("✓ Connected")
			} else {
				fmt.Printf("✗ Failed: %s\n", connResult.Error)
				fmt.Println("You can continue, but indexing may fail.")
			}
		}

		fmt.Println()

		// Step 3: Select embedding model
		fmt.Println("Step 3: Embedding Model")
		fmt.Println("-----------------------")

		var selectedModel string
		embeddingModels := connResult.GetEmbeddingModels()

		if len(embeddingModels) > 0 {
			fmt.Println("Available embedding models:")
			fmt.Println()

			defaultModelIdx := 0
			for i, m := range embeddingModels {
				marker := "  "
				if m.Recommended {
					marker = "* "
					defaultModelIdx = i
				}
				sizeInfo := ""
				if m.Size != "" {
					sizeInfo = fmt.Sprintf(" (%s)", m.Size)
				}
				fmt.Printf("  %s[%d] %s%s\n", marker, i+1, m.Name, sizeInfo)
			}
			fmt.Println()
			fmt.Printf("Select model [%d]: ", defaultModelIdx+1)

			modelInput, _ := reader.ReadString('\n')
			modelInput = strings.TrimSpace(modelInput)
			modelSelection := defaultModelIdx + 1
			if modelInput != "" {
				fmt.Sscanf(modelInput, "%d", &modelSelection)
			}

			if modelSelection >= 1 && modelSelection <= len(embeddingModels) {
				selectedModel = embeddingModels[modelSelection-1].Name
			} else {
				selectedModel = embeddingModels[defaultModelIdx].Name
			}
		} else {
			// No models detected, ask for manual input
			defaultModel := "nomic-embed-code"
			if embProvider == "openai" {
				defaultModel = "text-embedding-3-small"
			}
			fmt.Printf("Model name [%s]: ", defaultModel)
			modelInput, _ := reader.ReadString('\n')
			selectedModel = strings.TrimSpace(modelInput)
			if selectedModel == "" {
				selectedModel = defaultModel
			}
		}

		fmt.Println()

		// Step 4: Reranker (optional)
		fmt.Println("Step 4: Reranker (Optional)")
		fmt.Println("---------------------------")
		fmt.Println("Reranking improves search accuracy but uses additional resources.")
		fmt.Println()

		enableReranker := false
		rerankerModel := ""

		if embProvider == "ollama" && connResult.Connected {
			rerankerModels := connResult.GetRerankerModels()
			if len(rerankerModels) > 0 {
				fmt.Println("Available reranker models:")
				for i, m := range rerankerModels {
					marker := "  "
					if m.Recommended {
						marker = "* "
					}
					fmt.Printf("  %s[%d] %s (%s)\n", marker, i+1, m.Name, m.Size)
				}
				fmt.Printf("    [%d] Disable reranker\n", len(rerankerModels)+1)
				fmt.Println()
				fmt.Print("Select [1]: ")

				rerankerInput, _ := reader.ReadString('\n')
				rerankerInput = strings.TrimSpace(rerankerInput)
				rerankerSelection := 1
				if rerankerInput != "" {
					fmt.Sscanf(rerankerInput, "%d", &rerankerSelection)
				}

				if rerankerSelection >= 1 && rerankerSelection <= len(rerankerModels) {
					enableReranker = true
					rerankerModel = rerankerModels[rerankerSelection-1].Name
				}
			} else {
				fmt.Println("No reranker models found. You can install one with:")
				fmt.Println("  ollama pull qwen3-reranker")
				fmt.Println()
				fmt.Print("Enable reranker anyway? (y/N): ")
				rerankerInput, _ := reader.ReadString('\n')
				if strings.TrimSpace(strings.ToLower(rerankerInput)) == "y" {
					enableReranker = true
					rerankerModel = "qwen3-reranker"
				}
			}
		} else {
			fmt.Println("Reranker requires Ollama. Skipping.")
		}

		fmt.Println()

		// Apply configuration
		cfg.Embedding.Provider = embProvider
		cfg.Embedding.Endpoint = endpoint
		cfg.Embedding.Model = selectedModel
		if apiKey != "" && apiKey != os.Getenv("OPENAI_API_KEY") {
			cfg.Embedding.APIKey = apiKey
		}

		cfg.Reranker.Enabled = enableReranker
		if enableReranker {
			cfg.Reranker.Provider = "ollama"
			cfg.Reranker.Model = rerankerModel
			cfg.Reranker.Endpoint = endpoint
		}

		// Use sensible defaults for other settings
		cfg.Chunking.Strategy = "treesitter"
		cfg.Search.Mode = "hybrid"
	}

	// Show summary
	fmt.Println("=== Configuration Summary ===")
	fmt.Println()
	fmt.Println(detect.FormatConfigSummary(cfg))

	// Save configuration
	if err := config.Save(absPath, cfg); err != nil {
		slog.Error("failed to save config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration saved to %s\n", configPath)

	// Optionally start indexing
	if !skipIndex {
		fmt.Println()
		fmt.Print("Start indexing now? (Y/n): ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response == "" || response == "y" || response == "Y" {
			fmt.Println()
			runIndex(absPath, false)
		}
	}
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func runChunk(path string) {
	cwd, _ := os.Getwd()

	cfg, _, err := config.Load(cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	_, _, chunker, _, err := createProviders(cwd, cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}
	defer func() {
		chunker.Close()
		closePlugins()
	}()

	absPath := path
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(cwd, absPath)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		slog.Error("failed to read file", "path", path, "error", err)
		os.Exit(1)
	}

	file := &types.SourceFile{
		Path:     path,
		Content:  content,
		Language: tsChunker.DetectLanguage(absPath),
	}
	file.Hash = file.ComputeHash()

	blocks, err := chunker.Chunk(file)
	if err != nil {
		slog.Error("chunking failed", "path", path, "error", err)
		os.Exit(1)
	}

	output, _ := json.MarshalIndent(blocks, "", "  ")
	fmt.Println(string(output))
}

func runClear(force bool) {
	cwd, _ := os.Getwd()

	if !force {
		fmt.Print("This will remove all indexed data. Continue? (y/N): ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	store := sqlitevec.New()
	dbPath := config.IndexDBPath(cwd)
	if err := store.Init(dbPath); err != nil {
		fmt.Println("No index found.")
		return
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		slog.Error("failed to clear index", "error", err)
		os.Exit(1)
	}

	fmt.Println("Index cleared.")
}

func runWatch(path string, debounceMs int) {
	absPath, _ := filepath.Abs(path)
	slog.Info("watching for changes", "path", absPath, "debounce_ms", debounceMs)

	cfg, warnings, err := config.Load(absPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	// Create providers
	store, embedding, chunker, _, err := createProviders(absPath, cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Cleanup on exit
	defer func() {
		signal.Stop(sigChan)
		store.Close()
		embedding.Close()
		chunker.Close()
		closePlugins()
	}()

	// Initialize store
	dbPath := config.IndexDBPath(absPath)
	if err := store.Init(dbPath); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	// Warmup embedding
	if err := embedding.Warmup(ctx); err != nil {
		slog.Warn("embedding warmup failed", "error", err)
	}

	// Create watcher on top of an indexer
	indexer := index.New(index.Config{
		ProjectDir: absPath,
		Config:     cfg,
		Store:      store,
		Embedding:  embedding,
		Chunker:    chunker,
		OnProgress: func(p types.IndexProgress) {
			if p.CurrentFile != "" {
				fmt.Printf("[watch] Indexed: %s\n", p.CurrentFile)
			}
		},
	})

	watcher, err := index.NewWatcher(index.WatcherConfig{
		Indexer:      indexer,
		DebounceTime: time.Duration(debounceMs) * time.Millisecond,
	})
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Close()

	fmt.Printf("Watching %s for changes (press Ctrl+C to stop)\n", absPath)

	// Run watcher (blocks until context is cancelled)
	if err := watcher.Watch(ctx); err != nil {
		if ctx.Err() != nil {
			slog.Info("watcher stopped")
		} else {
			slog.Error("watcher error", "error", err)
			os.Exit(1)
		}
	}
}

// registered returns one provider kind's registry names, sorted for stable
// output.
func registered(list func() []string) []string {
	names := list()
	sort.Strings(names)
	return names
}

func runPluginList() {
	cwd, _ := os.Getwd()
	pluginsDir := config.PluginDir(cwd)

	manager := host.NewManager(pluginsDir)

	// Discover available plugins
	available, err := manager.Discover()
	if err != nil {
		slog.Error("failed to discover plugins", "error", err)
		os.Exit(1)
	}

	reg := provider.DefaultRegistry
	fmt.Println("=== Builtin Providers ===")
	fmt.Printf("Embedding: %s\n", strings.Join(registered(reg.ListEmbeddings), ", "))
	fmt.Printf("Reranker:  %s\n", strings.Join(registered(reg.ListRerankers), ", "))
	fmt.Printf("Chunking:  %s\n", strings.Join(registered(reg.ListChunkings), ", "))
	fmt.Printf("Stores:    %s\n\n", strings.Join(registered(reg.ListVectorStores), ", "))

	fmt.Println("=== Available Plugins ===")
	fmt.Printf("Plugins directory: %s\n\n", pluginsDir)

	if len(available) == 0 {
		fmt.Println("No plugins found.")
		fmt.Println("\nTo install a plugin:")
		fmt.Println("  1. Build or download a plugin binary")
		fmt.Println("  2. Copy it to .codechisel/plugins/")
		fmt.Println("  3. Make it executable (chmod +x)")
		return
	}

	for _, name := range available {
		fmt.Printf("  - %s\n", name)
	}

	fmt.Println("\nTo load a plugin, use:")
	fmt.Println("  codechisel plugin load <name> <type>")
	fmt.Println("  where type is: embedding, reranker")
}

func runPluginLoad(name string, pluginType string) {
	cwd, _ := os.Getwd()
	pluginsDir := config.PluginDir(cwd)

	manager := host.NewManager(pluginsDir)
	defer manager.UnloadAll()

	// Parse plugin type
	var pType shared.PluginType
	switch pluginType {
	case "embedding":
		pType = shared.PluginTypeEmbedding
	case "reranker":
		pType = shared.PluginTypeReranker
	default:
		slog.Error("invalid plugin type", "type", pluginType, "valid", "embedding, reranker")
		os.Exit(1)
	}

	// Load the plugin
	loaded, err := manager.LoadPlugin(name, pType)
	if err != nil {
		slog.Error("failed to load plugin", "name", name, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Plugin loaded: %s (type: %s)\n", name, pluginType)

	// Test the plugin
	switch pType {
	case shared.PluginTypeEmbedding:
		if loaded.Embedding != nil {
			fmt.Printf("  Name: %s\n", loaded.Embedding.Name())
			fmt.Printf("  Dimensions: %d\n", loaded.Embedding.Dimensions())
			fmt.Printf("  Max Batch Size: %d\n", loaded.Embedding.MaxBatchSize())

			// Test embedding
			fmt.Println("\nTesting embedding...")
			embeddings, err := loaded.Embedding.Embed([]string{"Hello, world!"})
			if err != nil {
				fmt.Printf("  Error: %v\n", err)
			} else {
				fmt.Printf("  Generated %d embedding(s) of dimension %d\n", len(embeddings), len(embeddings[0]))
			}
		}

	case shared.PluginTypeReranker:
		if loaded.Reranker != nil {
			fmt.Printf("  Name: %s\n", loaded.Reranker.Name())
			fmt.Printf("  Max Documents: %d\n", loaded.Reranker.MaxDocuments())

			// Test reranking
			fmt.Println("\nTesting reranker...")
			results, err := loaded.Reranker.Rerank("test query", []string{"doc1", "doc2"})
			if err != nil {
				fmt.Printf("  Error: %v\n", err)
			} else {
				fmt.Printf("  Reranked %d documents\n", len(results))
			}
		}
	}

	fmt.Println("\nPlugin test complete.")
}
