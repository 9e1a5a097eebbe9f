package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mimic-sh/mimic/internal/api"
	"github.com/mimic-sh/mimic/internal/config"
	"github.com/mimic-sh/mimic/internal/corpus"
	"github.com/mimic-sh/mimic/internal/embedding"
	"github.com/mimic-sh/mimic/internal/generate"
	"github.com/mimic-sh/mimic/internal/ingest"
	"github.com/mimic-sh/mimic/internal/profile"
	"github.com/mimic-sh/mimic/internal/provider"
	"github.com/mimic-sh/mimic/internal/retrieval"
	"github.com/mimic-sh/mimic/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mimic server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running mimic server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mimic system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "mimic.pid")
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

// ensureAPIToken returns the bearer token for the local management API,
// generating and persisting one on first run.
func ensureAPIToken(cfg config.Config) (string, error) {
	if cfg.API.Token != "" {
		return cfg.API.Token, nil
	}
	token := uuid.NewString()
	if err := config.SetSecret("api.token", token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	printSuccess("Generated new API token")
	return token, nil
}

type services struct {
	store    *storage.Store
	handler  http.Handler
	mcp      *server.MCPServer
	worker   *ingest.Worker
	apiToken string
}

// buildServices wires the full pipeline from configuration. The caller
// owns closing the returned store.
func buildServices(cfg config.Config, logger *slog.Logger) (*services, error) {
	apiToken, err := ensureAPIToken(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	corpusClient := corpus.NewClient(cfg.Corpus.BaseURL, cfg.Corpus.APIKey)
	embedder := embedding.NewClient(cfg.Provider.OpenAIAPIKey, cfg.Embedding.Model)
	retriever := retrieval.New(embedder, corpusClient)
	svc := generate.NewService(cfg, corpusClient, retriever, store, logger)

	// The analyzer shares the configured completion provider. A missing
	// credential surfaces as an upstream auth error at analysis time, the
	// same way generation handles it.
	prov, err := provider.New(cfg.Provider.Name, cfg.ProviderKey(cfg.Provider.Name), cfg.ProviderModel(cfg.Provider.Name))
	if err != nil {
		store.Close()
		return nil, err
	}
	analyzer := profile.NewAnalyzer(corpusClient, corpusClient, prov, logger)

	worker := ingest.NewWorker(store, embedder, corpusClient, 500*time.Millisecond, logger)

	handler := api.NewHandler(api.Deps{
		Generator: svc,
		Analyzer:  analyzer,
		Corpus:    corpusClient,
		Store:     store,
		Token:     apiToken,
	})
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Generator:     svc,
		Analyzer:      analyzer,
		Corpus:        corpusClient,
		Retriever:     retriever,
		DefaultAuthor: cfg.Author.ActiveID,
	})

	return &services{
		store:    store,
		handler:  handler,
		mcp:      mcpSrv,
		worker:   worker,
		apiToken: apiToken,
	}, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "mimic version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Refuse to double-start. The health endpoint is the authority; the
	// PID file only names the culprit.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("mimic is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("mimic is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svcs.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: svcs.handler,
	}

	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	mcpHTTP := server.NewStreamableHTTPServer(svcs.mcp)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svcs.worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "mimic listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpHTTP.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mcpHTTP.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("MCP shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// mcpCmd serves MCP over stdio for clients that spawn the process
// directly instead of connecting to the HTTP transport.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Keep stdout clean for the protocol.
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svcs, err := buildServices(cfg, logger)
		if err != nil {
			return err
		}
		defer svcs.store.Close()

		go svcs.worker.Run(ctx)

		stdioSrv := server.NewStdioServer(svcs.mcp)
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
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
		printError("mimic is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop mimic (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to mimic (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s (%s)", cfg.Provider.Name, cfg.ProviderModel(cfg.Provider.Name))
	printStatus("Embedding model", "%s", cfg.Embedding.Model)
	if cfg.Author.ActiveID != "" {
		printStatus("Active author", "%s", cfg.Author.ActiveID)
	} else {
		printStatus("Active author", "none (set author.active_id)")
	}
	if cfg.Corpus.BaseURL != "" {
		printStatus("Corpus", "%s", cfg.Corpus.BaseURL)
	} else {
		printStatus("Corpus", "not configured")
	}

	if running && cfg.API.Token != "" {
		authorsResp, err := apiGet(client, serverURL+"/v1/authors", cfg.API.Token)
		if err == nil {
			var authors []struct {
				AuthorID   string `json:"author_id"`
				EntryCount int    `json:"entry_count"`
			}
			if decodeJSON(authorsResp, &authors) == nil {
				total := 0
				for _, a := range authors {
					total += a.EntryCount
				}
				printStatus("Authors", "%d (%d corpus entries)", len(authors), total)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
