package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
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

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/api"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/artifact"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/bridge"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/catalog"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/config"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/generate"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/pipeline"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/planner"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/queue"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/scheduler"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/scorer"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/sink"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ghost daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(mcpStdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running ghost daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp-stdio", false, "also serve MCP tools on stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "ghost.pid")
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

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// kernel is the wired set of long-lived components the daemon runs.
type kernel struct {
	queue     *queue.Queue
	pipeline  *pipeline.Pipeline
	bridge    *bridge.Bridge
	worker    *worker.Worker
	scheduler *scheduler.Scheduler
	closers   []func() error
}

func (k *kernel) Close() {
	for i := len(k.closers) - 1; i >= 0; i-- {
		if err := k.closers[i](); err != nil {
			slog.Warn("closing component", "error", err)
		}
	}
}

// buildKernel wires the components from cfg and policy. Missing
// credentials degrade the matching component instead of failing startup.
func buildKernel(ctx context.Context, cfg config.Config, policy config.Policy, store *storage.Store) (*kernel, error) {
	k := &kernel{}

	var artifacts artifact.Store
	if cfg.Artifacts.R2Endpoint != "" {
		r2, err := artifact.NewR2Store(artifact.R2Config{
			Endpoint:  cfg.Artifacts.R2Endpoint,
			Bucket:    cfg.Artifacts.R2Bucket,
			Region:    "auto",
			AccessKey: cfg.Artifacts.R2AccessKeyID,
			SecretKey: cfg.Artifacts.R2SecretKey,
			PublicURL: cfg.Artifacts.R2PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		artifacts = r2
	} else {
		local, err := artifact.NewLocalStore(cfg.ArtifactDir())
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		artifacts = local
	}

	var publisher queue.Publisher
	if cfg.Publish.WebhookURL != "" {
		publisher = sink.NewReceipts(sink.NewWebhookPublisher(cfg.Publish.WebhookURL, cfg.Publish.Token), store)
	} else {
		slog.Warn("no publish webhook configured, publishing is disabled")
	}
	q, err := queue.New(store, policy.Compliance, publisher)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	k.queue = q

	var nurture bridge.NurtureSink = sink.NewStoreNurture(store)
	if cfg.Redis.URL != "" {
		rdb, err := sink.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("redis unavailable, nurture tasks stay in the store", "error", err)
		} else {
			nurture = sink.NewRedisNurture(rdb, "")
			k.closers = append(k.closers, rdb.Close)
		}
	}
	seed := uint64(time.Now().UnixNano())
	b, err := bridge.New(store, nurture, policy.Leads, rand.New(rand.NewPCG(seed, seed>>1)))
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	k.bridge = b

	sc, err := scorer.New(policy.Criteria, policy.TierBudget, store)
	if err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}

	var providers []scorer.CatalogProvider
	if cfg.Catalog.FastMossURL != "" {
		providers = append(providers, catalog.NewBreaker(
			catalog.NewHTTPProvider("fastmoss", cfg.Catalog.FastMossURL, cfg.Catalog.FastMossAPIKey), 3, time.Minute))
	}
	if cfg.Catalog.KaloDataURL != "" {
		providers = append(providers, catalog.NewBreaker(
			catalog.NewHTTPProvider("kalodata", cfg.Catalog.KaloDataURL, cfg.Catalog.KaloDataAPIKey), 3, time.Minute))
	}
	if cfg.Catalog.ListingURL != "" {
		providers = append(providers, catalog.NewBreaker(
			catalog.NewHTMLProvider("listing", cfg.Catalog.ListingURL, policy.Listing), 3, time.Minute))
	}
	if len(providers) == 0 {
		slog.Warn("no catalog providers configured, scoring runs will find nothing")
	}

	timeout := policy.Pipeline.GeneratorTimeout
	var gens worker.Generators
	var enhancer pipeline.Enhancer
	if cfg.Generate.AnthropicAPIKey != "" {
		claude := generate.NewClaude(cfg.Generate.AnthropicAPIKey, cfg.Generate.ClaudeModel,
			generate.NewComposer(0, policy.AvoidTerms))
		gens.Script = generate.NewGuard(claude, timeout, 3, time.Minute)
		enhancer = claude
	}
	if cfg.Generate.ElevenLabsAPIKey != "" {
		gens.Voice = generate.NewGuard(
			generate.NewElevenLabs(cfg.Generate.ElevenLabsAPIKey, cfg.Generate.ElevenLabsVoiceID, artifacts),
			timeout, 3, time.Minute)
	}
	if cfg.Generate.HeyGenAPIKey != "" {
		gens.Video = generate.NewGuard(generate.NewHeyGen(generate.HeyGenConfig{
			APIKey:         cfg.Generate.HeyGenAPIKey,
			Avatars:        map[string]string{"default": cfg.Generate.HeyGenAvatarID},
			TalkingPhotoID: cfg.Generate.HeyGenTalkingPhotoID,
		}), timeout, 3, time.Minute)
	}
	if gens.Script == nil || gens.Voice == nil || gens.Video == nil {
		slog.Warn("generator credentials incomplete, generation jobs will fail",
			"script", gens.Script != nil, "voice", gens.Voice != nil, "video", gens.Video != nil)
	}

	k.worker = worker.NewWorker(store, q, gens, 500*time.Millisecond)
	k.pipeline = pipeline.New(store, sc, planner.New(nil), q, providers, enhancer, policy.Pipeline)
	k.scheduler = scheduler.New(policy.Schedule, k.pipeline, q)
	return k, nil
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "ghost version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	policy, err := config.LoadPolicy(cfg.Policy.Path)
	if err != nil {
		return err
	}

	apiToken, err := config.GetAPIToken(config.NewSecretStore())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice: a live health endpoint means another daemon.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("ghost is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("ghost is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	k, err := buildKernel(ctx, cfg, policy, store)
	if err != nil {
		return err
	}
	defer k.Close()

	handler := api.NewHandler(api.Deps{
		Queue:        k.queue,
		Runner:       k.pipeline,
		Bridge:       k.bridge,
		Records:      store,
		Cancel:       k.worker,
		Token:        apiToken,
		DefaultLimit: policy.Pipeline.DefaultLimit,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if _, err := k.queue.Resume(ctx); err != nil {
		return fmt.Errorf("resuming generation: %w", err)
	}
	go k.worker.Run(ctx)

	if err := k.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer k.scheduler.Stop()

	if mcpStdio || cfg.Server.MCPStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Queue: k.queue, Records: store, Runner: k.pipeline})
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
		fmt.Fprintf(os.Stderr, "ghost listening on %s\n", addr)
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
		printError("ghost is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop ghost (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to ghost (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	running := false
	resp, err := client.Get(serverURL(cfg) + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s:%d", cfg.Server.Host, cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			c.httpClient = client
			printQueueHealth(ctx, c)
		}
	}

	printStatus("Catalogs", "%s", configuredLabel(map[string]bool{
		"fastmoss": cfg.Catalog.FastMossURL != "",
		"kalodata": cfg.Catalog.KaloDataURL != "",
		"listing":  cfg.Catalog.ListingURL != "",
	}))
	printStatus("Generators", "%s", configuredLabel(map[string]bool{
		"claude":     cfg.Generate.AnthropicAPIKey != "",
		"elevenlabs": cfg.Generate.ElevenLabsAPIKey != "",
		"heygen":     cfg.Generate.HeyGenAPIKey != "",
	}))
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func printQueueHealth(ctx context.Context, c *apiClient) {
	resp, err := c.get(ctx, "/v1/queue/health")
	if err != nil {
		return
	}
	var rep queue.HealthReport
	if err := decodeJSON(resp, &rep); err != nil {
		printStatus("Queue", "unavailable (%v)", err)
		return
	}
	printStatus("Queue", "%d items, health %.2f (%s)", rep.Total, rep.Score, rep.Status)
	if rep.Alerts > 0 {
		printStatus("Alerts", "%d", rep.Alerts)
	}
}

// configuredLabel lists the enabled names in a stable order.
func configuredLabel(enabled map[string]bool) string {
	var on []string
	for _, name := range []string{"fastmoss", "kalodata", "listing", "claude", "elevenlabs", "heygen"} {
		if enabled[name] {
			on = append(on, name)
		}
	}
	if len(on) == 0 {
		return "none configured"
	}
	return strings.Join(on, ", ")
}
