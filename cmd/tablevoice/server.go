package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/tablevoice/internal/api"
	"github.com/kalambet/tablevoice/internal/archive"
	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/config"
	"github.com/kalambet/tablevoice/internal/dialogue"
	"github.com/kalambet/tablevoice/internal/logging"
	"github.com/kalambet/tablevoice/internal/speech"
	"github.com/kalambet/tablevoice/internal/storage"
	"github.com/kalambet/tablevoice/internal/storage/postgres"
	"github.com/kalambet/tablevoice/internal/weather"
)

const (
	sessionIdle   = 30 * time.Minute
	sweepInterval = time.Minute
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tablevoice server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running tablevoice server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tablevoice system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "tablevoice.pid")
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

// app is the set of long-lived services behind the HTTP and MCP surfaces.
type app struct {
	weather  *weather.Service
	bookings *booking.Service
	archive  *archive.Store
	sessions *dialogue.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openRepository opens the booking store selected by storage.driver.
func openRepository(ctx context.Context, cfg config.StorageConfig) (booking.Repository, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		return store, store.Close, nil
	default:
		store, err := storage.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("closing storage", "error", err)
			}
		}, nil
	}
}

func newWeatherService(cfg config.WeatherConfig, logger *slog.Logger) *weather.Service {
	client := weather.NewClientWithBaseURL(cfg.APIKey, cfg.BaseURL).WithTimeout(cfg.Timeout)
	return weather.NewService(client, cfg.DefaultCity, logger)
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	repo, closeRepo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	arch, err := archive.Open(filepath.Join(cfg.Storage.DataDir, "transcripts.db"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.archive = arch
	a.closers = append(a.closers, func() { arch.Close() })

	a.weather = newWeatherService(cfg.Weather, logger)
	a.bookings = booking.NewService(repo, a.weather, a.weather.DefaultCity(), logger)
	a.sessions = dialogue.NewRegistry(func(id string) *dialogue.Session {
		return dialogue.NewSession(id, a.weather, a.bookings,
			dialogue.WithLogger(logger),
			dialogue.WithCity(a.weather.DefaultCity()),
			dialogue.WithArchive(a.archive),
		)
	})
	return a, nil
}

func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "tablevoice version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	if cfg.Weather.APIKey == "" {
		printWarning("no weather API key configured; conversations will skip the forecast")
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("tablevoice is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("tablevoice is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	hashKey, err := decodeKey(cfg.Session.HashKey)
	if err != nil {
		return fmt.Errorf("decoding session hash key: %w", err)
	}
	blockKey, err := decodeKey(cfg.Session.BlockKey)
	if err != nil {
		return fmt.Errorf("decoding session block key: %w", err)
	}
	cookies, err := api.NewCookieBinder(hashKey, blockKey)
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{
		Bookings:      a.bookings,
		Weather:       a.weather,
		Sessions:      a.sessions,
		Cookies:       cookies,
		Speech:        speech.NewServer(cfg.Server.AllowedOrigin, logger),
		Transcripts:   a.archive,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Logger:        logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go sweepSessions(ctx, a.sessions, logger)

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Bookings: a.bookings,
			Weather:  a.weather,
			Sessions: a.sessions,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "tablevoice listening on %s\n", addr)
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
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Archive whatever is still open.
	a.sessions.Sweep(shutdownCtx, -time.Hour)
	return nil
}

// sweepSessions closes idle conversations until ctx is done.
func sweepSessions(ctx context.Context, reg *dialogue.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := reg.Sweep(ctx, sessionIdle); n > 0 {
				logger.Info("closed idle conversations", "count", n)
			}
		}
	}
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
		printError("tablevoice is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop tablevoice (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to tablevoice (PID %d)", pid)
	return nil
}

// statusReport is what status prints, gathered concurrently.
type statusReport struct {
	server        string
	bookings      string
	transcripts   string
	conversations string
	weather       string
}

func gatherStatus(ctx context.Context, serverURL, weatherURL string, client *http.Client) statusReport {
	var rep statusReport
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		resp, err := get(gctx, client, serverURL+"/health")
		if err != nil {
			rep.server = "stopped"
			return nil
		}
		defer resp.Body.Close()
		var health struct {
			Status        string `json:"status"`
			Bookings      int    `json:"bookings"`
			Transcripts   int    `json:"transcripts"`
			Conversations int    `json:"conversations"`
			Error         string `json:"error"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&health)
		switch {
		case resp.StatusCode == http.StatusOK && decodeErr == nil:
			rep.server = "running"
			rep.bookings = fmt.Sprintf("%d", health.Bookings)
			rep.transcripts = fmt.Sprintf("%d", health.Transcripts)
			rep.conversations = fmt.Sprintf("%d", health.Conversations)
		case health.Error != "":
			rep.server = fmt.Sprintf("%s (%s)", health.Status, health.Error)
		default:
			rep.server = fmt.Sprintf("error (HTTP %d)", resp.StatusCode)
		}
		return nil
	})
	g.Go(func() error {
		resp, err := get(gctx, client, weatherURL)
		if err != nil {
			rep.weather = "unreachable"
			return nil
		}
		resp.Body.Close()
		rep.weather = "reachable"
		return nil
	})
	g.Wait()
	return rep
}

func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	rep := gatherStatus(ctx, serverURL, cfg.Weather.BaseURL, &http.Client{Timeout: 2 * time.Second})

	if rep.server == "running" {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "%s", rep.server)
	}
	if rep.bookings != "" {
		printStatus("Bookings", "%s", rep.bookings)
		printStatus("Transcripts", "%s", rep.transcripts)
		printStatus("Conversations", "%s active", rep.conversations)
	}
	printStatus("Weather API", "%s (%s)", cfg.Weather.BaseURL, rep.weather)
	if cfg.Weather.APIKey == "" {
		printStatus("Weather key", "not configured")
	} else {
		printStatus("Weather key", "configured")
	}
	printStatus("Default city", "%s", cfg.Weather.DefaultCity)
	printStatus("Storage", "%s", cfg.Storage.Driver)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
