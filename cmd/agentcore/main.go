// Command agentcore runs the agent run core: the durable run
// orchestrator, its worker pool, the billing ledger, and the
// control-plane HTTP/WebSocket surface described in spec §6.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agentcore/pkg/alerting"
	"github.com/codeready-toolchain/agentcore/pkg/api"
	"github.com/codeready-toolchain/agentcore/pkg/billing"
	"github.com/codeready-toolchain/agentcore/pkg/collab"
	"github.com/codeready-toolchain/agentcore/pkg/config"
	"github.com/codeready-toolchain/agentcore/pkg/core"
	"github.com/codeready-toolchain/agentcore/pkg/database"
	"github.com/codeready-toolchain/agentcore/pkg/llmgateway"
	"github.com/codeready-toolchain/agentcore/pkg/queue"
	"github.com/codeready-toolchain/agentcore/pkg/ratelimit"
	"github.com/codeready-toolchain/agentcore/pkg/runs"
	"github.com/codeready-toolchain/agentcore/pkg/sandbox"
	"github.com/codeready-toolchain/agentcore/pkg/steprunner"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	var configDir string

	root := &cobra.Command{
		Use:   "agentcore",
		Short: "Agent run core: orchestrator, ledger, sandbox, and collaboration gateway",
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")

	root.AddCommand(newServeCmd(&configDir))
	root.AddCommand(newMigrateCmd(&configDir))

	if err := root.Execute(); err != nil {
		slog.Error("agentcore exited with error", "error", err)
		os.Exit(1)
	}
}

// newMigrateCmd applies pending database migrations and exits.
// database.NewClient already runs migrations as part of connecting
// (teacher's pkg/database/migrations.go behavior), so this subcommand
// exists only to let an operator run that step in isolation, e.g. ahead
// of a rolling deploy.
func newMigrateCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnv(*configDir)
			ctx := cmd.Context()

			dbCfg, err := database.LoadConfigFromEnv()
			if err != nil {
				return fmt.Errorf("loading database config: %w", err)
			}
			dbClient, err := database.NewClient(ctx, dbCfg)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = dbClient.Close() }()

			slog.Info("migrations applied")
			return nil
		},
	}
}

func newServeCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control-plane HTTP/WebSocket server and the job worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configDir)
		},
	}
}

func loadEnv(configDir string) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}
}

func serve(ctx context.Context, configDir string) error {
	loadEnv(configDir)

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("initializing configuration: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("loading database config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("closing database client", "error", err)
		}
	}()
	slog.Info("connected to database", "host", dbCfg.Host, "database", dbCfg.Database)

	podID := getEnv("POD_ID", hostnameOrUUID())

	machine := runs.NewMachine(dbClient.Client)

	orgLimiter := ratelimit.NewOrgLimiter(cfg.RateLimit.OrgRequestsPerMinute, cfg.RateLimit.OrgTokensPerMinute)
	billingSvc := billing.NewService(dbClient.Client, cfg.Billing, orgLimiter)

	// No concrete llmgateway.Provider or sandbox.Provider ships with this
	// core (spec §6 names both as consumed interfaces, implemented by
	// whatever model/sandbox backends an operator plugs in). Routes and
	// the sandbox provider are left empty/nil here; a deployment wires
	// real ones by constructing Gateway/Manager with populated Providers
	// before calling serve's equivalent setup, same as the teacher's own
	// main once left several services deliberately unwired pending a
	// later phase.
	gateway := llmgateway.NewGateway(nil, 3, 500*time.Millisecond)
	decomposer := llmgateway.NewDecomposer(gateway, "gpt-4o-mini")

	var sandboxProvider sandbox.Provider
	sandboxMgr := sandbox.NewManager(sandboxProvider, cfg.Sandbox)
	go sandboxMgr.RunIdleSweep(ctx)

	stepRunner := steprunner.New(dbClient.Client, gateway, billingSvc, sandboxMgr, sandboxProvider, "small")
	executor := runs.NewExecutor(dbClient.Client, decomposer, stepRunner)

	workerPool := queue.NewWorkerPool(podID, dbClient.Client, cfg.Queue, executor)
	if err := workerPool.Start(ctx); err != nil {
		return fmt.Errorf("starting worker pool: %w", err)
	}
	defer workerPool.Stop()

	notifier := alerting.NewNotifier(cfg.Webhook, &http.Client{Timeout: 10 * time.Second})
	alertMgr := alerting.NewManager(notifier)
	if subURL := os.Getenv("WEBHOOK_SUBSCRIBER_URL"); subURL != "" {
		alertMgr.Register(alerting.Subscription{ID: "default", URL: subURL, Secret: os.Getenv("WEBHOOK_SUBSCRIBER_SECRET")})
	}

	// The single Core value composed at startup and threaded through the
	// control plane, instead of the package-level singletons the original
	// design used for billing/health/metrics/diagnostics/collaboration
	// (spec §9 "Globals / singletons"). SetGateway below fills in its
	// Collab field once the collaboration gateway exists.
	agentCore := core.New(dbClient, machine, billingSvc, sandboxMgr, gateway, workerPool)

	server := api.NewServer(cfg, agentCore)

	fanoutConnString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.Database, dbCfg.SSLMode,
	)
	fanout := collab.NewNotifyFanout(fanoutConnString, nil)
	if err := fanout.Start(ctx); err != nil {
		slog.Warn("collaboration gateway: cross-pod fan-out unavailable, running single-pod", "error", err)
		fanout = nil
	} else {
		defer fanout.Stop(context.Background())
	}

	onBreakerChange := func(from, to collab.BreakerState, backpressure float64) {
		slog.Warn("collaboration breaker state change", "from", from, "to", to, "backpressure", backpressure)
		alertMgr.Publish(context.Background(), "collab.breaker_state_change", map[string]any{
			"from": from, "to": to, "backpressure": backpressure,
		})
	}
	loader := collab.NewSQLDocumentLoader(dbClient.DB())
	gw := collab.NewGateway(cfg.Collab, cfg.RateLimit, cfg.Breaker, loader, fanout, onBreakerChange)
	gw.SetPersister(loader)
	server.SetGateway(gw)

	cronSched := cron.New()
	if _, err := cronSched.AddFunc("@every 1m", func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		runReconciliationSweep(sweepCtx, dbClient.Client, billingSvc)
	}); err != nil {
		return fmt.Errorf("scheduling billing reconciliation sweep: %w", err)
	}
	cronSched.Start()
	defer cronSched.Stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("control-plane HTTP server listening", "addr", cfg.API.ListenAddr)
		if err := server.Start(cfg.API.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("control-plane server: %w", err)
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutting down control-plane server", "error", err)
	}
	return nil
}

func hostnameOrUUID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return uuid.NewString()
}
