package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultpilot/vaultpilot/internal/config"
	"github.com/vaultpilot/vaultpilot/internal/logger"
	"github.com/vaultpilot/vaultpilot/pkg/agent"
	"github.com/vaultpilot/vaultpilot/pkg/history"
	"github.com/vaultpilot/vaultpilot/pkg/janitor"
	"github.com/vaultpilot/vaultpilot/pkg/orchestrator"
	"github.com/vaultpilot/vaultpilot/pkg/permission"
	"github.com/vaultpilot/vaultpilot/pkg/ratelimit"
	"github.com/vaultpilot/vaultpilot/pkg/uibridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the VaultPilot agent service",
	Long: `Run the agent service. The host UI connects over the local websocket
bridge to send prompts, watch tool calls live, and answer approval and
rate-limit prompts.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(cfgFile)
	bootLogger, err := logger.New(logger.DefaultConfig())
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	store, err := config.NewStore(loader, bootLogger.GetZerolog())
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	cfg := store.Config()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	appLogger, err := logger.New(logger.Config{
		Level:     level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.GetZerolog()

	if err := store.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("Settings live reload unavailable")
	}

	engine, err := agent.NewEngine(cfg.Engine.Provider, cfg.Engine.APIKey)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	bridge, err := uibridge.New(uibridge.Config{
		Host:          cfg.Bridge.Host,
		Port:          cfg.Bridge.Port,
		PromptTimeout: time.Duration(cfg.Bridge.PromptTimeout) * time.Second,
		ServeMetrics:  cfg.Metrics.Enabled,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("create ui bridge: %w", err)
	}

	archive, err := history.Open(cfg.History.Path, log)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer archive.Close()

	sweep, err := janitor.New(archive, cfg.History.PruneSchedule, cfg.History.RetentionDays, log)
	if err != nil {
		return fmt.Errorf("create janitor: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Engine:        engine,
		Permissions:   permission.NewEngine(log),
		Settings:      store,
		Approvals:     bridge,
		LimitPrompter: bridge,
		Limits: ratelimit.Limits{
			PerTool:   cfg.Limits.PerTool,
			Aggregate: cfg.Limits.Aggregate,
		},
		OnUpdate:     bridge.BroadcastToolCalls,
		Model:        cfg.Engine.Model,
		WorkingDir:   cfg.VaultDir,
		SystemPrompt: cfg.Engine.SystemPrompt,
		MaxRetries:   cfg.Engine.MaxRetries,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	session := orchestrator.NewSession()

	bridge.OnCancel(orch.Cancel)
	bridge.OnMessage(func(text string) {
		// One turn at a time. The orchestrator rejects a concurrent turn
		// anyway; checking here turns the race into a clean UI event.
		if orch.IsRunning() {
			log.Warn().Msg("Prompt rejected, a turn is already in flight")
			bridge.BroadcastEvent("turn.rejected", map[string]interface{}{
				"error": orchestrator.ErrTurnInFlight.Error(),
			})
			return
		}

		res, err := orch.SendMessage(ctx, session, text)
		if err != nil {
			if errors.Is(err, orchestrator.ErrTurnInFlight) {
				log.Warn().Msg("Prompt rejected, a turn is already in flight")
				bridge.BroadcastEvent("turn.rejected", map[string]interface{}{
					"error": err.Error(),
				})
				return
			}
			log.Error().Err(err).Msg("Turn failed")
			bridge.BroadcastEvent("turn.failed", map[string]interface{}{"error": err.Error()})
			return
		}

		event := "turn.completed"
		if res.Cancelled {
			event = "turn.cancelled"
		}
		bridge.BroadcastEvent(event, res)

		if _, err := archive.AppendResult(ctx, text, res); err != nil {
			log.Warn().Err(err).Msg("Failed to archive turn")
		}
	})

	if err := bridge.Start(); err != nil {
		return err
	}
	sweep.Start()

	log.Info().
		Str("provider", cfg.Engine.Provider).
		Str("model", cfg.Engine.Model).
		Str("vault", cfg.VaultDir).
		Msg("VaultPilot ready")

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	orch.Cancel()
	sweep.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return bridge.Shutdown(shutdownCtx)
}
