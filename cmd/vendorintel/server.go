package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/emmi-yeo/vendor-intelligence/internal/agent"
	"github.com/emmi-yeo/vendor-intelligence/internal/api"
	"github.com/emmi-yeo/vendor-intelligence/internal/config"
	"github.com/emmi-yeo/vendor-intelligence/internal/docs"
	"github.com/emmi-yeo/vendor-intelligence/internal/engine"
	"github.com/emmi-yeo/vendor-intelligence/internal/reasoning"
	"github.com/emmi-yeo/vendor-intelligence/internal/retrieval"
	"github.com/emmi-yeo/vendor-intelligence/internal/router"
	"github.com/emmi-yeo/vendor-intelligence/internal/schema"
	"github.com/emmi-yeo/vendor-intelligence/internal/scoring"
	"github.com/emmi-yeo/vendor-intelligence/internal/sqlagent"
	"github.com/emmi-yeo/vendor-intelligence/internal/storage"
	"github.com/emmi-yeo/vendor-intelligence/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vendorintel server (foreground)",
	Long: `Start the vendorintel server in the foreground.

The HTTP API is served on 127.0.0.1:<server.port>, with the MCP endpoint
mounted at /mcp. --mcp-stdio additionally serves MCP over stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(stdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running vendorintel server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vendorintel system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp-stdio", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "vendorintel.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// newLogger builds the process logger from the log config. Logs go to w so
// stdout stays free for the MCP stdio transport.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildAgent wires the search pipeline from cfg. store may be nil, in which
// case searches are not recorded.
func buildAgent(cfg config.Config, eng engine.Engine, schemas *schema.Cache, store *storage.Store) (*agent.Agent, error) {
	dialect, err := sqlagent.DialectFor(cfg.Store.Driver)
	if err != nil {
		return nil, err
	}
	chunker, err := docs.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	reasoner := reasoning.New(eng, cfg.Engine.ChatModel)
	embedder := retrieval.NewEmbedder(eng, cfg.Engine.EmbedModel)

	structured := sqlagent.NewPipeline(sqlagent.PipelineConfig{
		Schemas:   schemas,
		Planner:   sqlagent.NewPlanner(reasoner),
		Generator: sqlagent.NewGenerator(reasoner, dialect, cfg.Store.RowLimit),
		Runner: sqlagent.NewExecutor(sqlagent.ExecutorConfig{
			Driver:           cfg.Store.Driver,
			DSN:              cfg.Store.DSN,
			ConnectTimeout:   cfg.Store.ConnectTimeout,
			StatementTimeout: cfg.Store.StatementTimeout,
		}),
		MaxRows: cfg.Store.MaxRows,
	})

	acfg := agent.Config{
		Router:     router.New(reasoner),
		Structured: structured,
		Retrieval:  retrieval.NewPipeline(chunker, embedder, cfg.Retrieval.TopK),
		Scorer:     scoring.NewScorer(embedder),
	}
	if store != nil {
		acfg.Recorder = store
	}
	return agent.New(acfg), nil
}

// newRouter mounts the HTTP API and the streamable MCP endpoint.
func newRouter(apiHandler http.Handler, mcpSrv *server.MCPServer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/mcp", server.NewStreamableHTTPServer(mcpSrv))
	r.Mount("/", apiHandler)
	return r
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "vendorintel version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireStore(); err != nil {
		return err
	}

	slog.SetDefault(newLogger(cfg.Log, os.Stderr))

	// Refuse to start a second instance on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("vendorintel is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("vendorintel is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	eng, err := engine.Detect(engine.DetectConfig{
		Provider:   cfg.Engine.Provider,
		BaseURL:    cfg.Engine.BaseURL,
		APIKey:     cfg.Engine.APIKey,
		APIVersion: cfg.Engine.APIVersion,
		Timeout:    cfg.Engine.Timeout,
	})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.Engine.ChatModel, cfg.Engine.EmbedModel, os.Stderr); err != nil {
		return err
	}

	schemas := schema.NewCache(cfg.Schema.Path)
	watcher := schema.NewWatcher(schemas, cfg.Schema.ReloadInterval)
	if _, err := watcher.RunOnce(); err != nil {
		// The structured path reports planning errors until a schema loads.
		slog.Warn("schema cache not loaded", "path", cfg.Schema.Path, "error", err)
	}
	if cfg.Schema.ReloadInterval > 0 {
		go watcher.Run(ctx)
	}

	var (
		store *storage.Store
		runs  api.RunStore
	)
	if cfg.Storage.Enabled {
		store, err = storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
			}
		}()
		runs = store
	}

	ag, err := buildAgent(cfg, eng, schemas, store)
	if err != nil {
		return err
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Agent:   ag,
		Schemas: schemas,
		Runs:    runs,
		Version: version,
	})
	if mcpStdio {
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	handler := newRouter(api.NewHandler(api.Deps{
		Agent:   ag,
		Schemas: schemas,
		Runs:    runs,
	}), mcpSrv)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vendorintel listening", "addr", addr, "engine", cfg.Engine.Provider, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("vendorintel is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop vendorintel (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to vendorintel (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Engine", "%s", engineLabel(cfg.Engine))
	printStatus("Chat model", "%s", cfg.Engine.ChatModel)
	printStatus("Embed model", "%s", cfg.Engine.EmbedModel)
	printStatus("Store", "%s", cfg.Store.Driver)
	if cfg.Store.DSN == "" {
		printWarning("VENDORINTEL_STORE_DSN is not set")
	}

	if s, err := schema.Load(cfg.Schema.Path); err != nil {
		printStatus("Schema", "not loaded (%v)", err)
	} else {
		printStatus("Schema", "%d tables from %s", len(s.Tables), cfg.Schema.Path)
	}

	if cfg.Storage.Enabled {
		if store, err := storage.Open(cfg.Storage.DataDir); err == nil {
			if counts, err := store.StageCounts(); err == nil {
				printStatus("Searches", "%s", stageLabel(counts))
			}
			store.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func engineLabel(e config.EngineConfig) string {
	if e.BaseURL != "" {
		return fmt.Sprintf("%s at %s", e.Provider, e.BaseURL)
	}
	if e.Provider == "ollama" {
		return fmt.Sprintf("ollama at %s", engine.DefaultOllamaURL)
	}
	return e.Provider
}

// stageLabel summarizes per-stage search counts. Runs whose structured path
// did not fail are stored with an empty stage.
func stageLabel(counts map[string]int) string {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return "none"
	}
	parts := []string{fmt.Sprintf("%d total", total)}
	for _, stage := range []string{"", sqlagent.StagePlanning, sqlagent.StageGeneration, sqlagent.StageValidation, sqlagent.StageExecution, sqlagent.StageUnexpected} {
		n, ok := counts[stage]
		if !ok {
			continue
		}
		label := stage
		if label == "" {
			label = "ok"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	return strings.Join(parts, ", ")
}
