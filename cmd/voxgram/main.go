// Package main is the entry point for the voxgram bot.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/voclab/voxgram/internal/bot"
	"github.com/voclab/voxgram/internal/config"
	"github.com/voclab/voxgram/internal/cron"
	"github.com/voclab/voxgram/internal/gateway"
	"github.com/voclab/voxgram/internal/metrics"
	"github.com/voclab/voxgram/internal/ratelimit"
	"github.com/voclab/voxgram/internal/store"
	"github.com/voclab/voxgram/internal/telegram"
	"github.com/voclab/voxgram/internal/transcribe"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voxgram",
		Short:         "Telegram bot that transcribes voice, audio, and video messages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("voxgram %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bot and the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := resolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))

			return run(cfg, logger)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration OK (mode: %s)\n", cfg.Telegram.Mode)
			return nil
		},
	})
	return cmd
}

// run wires every component and blocks until SIGINT/SIGTERM.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	var cache ratelimit.Cache
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: parse url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			// The limiter degrades to allowing requests, so a cold cache
			// must not keep the bot from starting.
			logger.Warn("redis unreachable at startup", "error", err)
		}
		cache = client
	}
	limiter := ratelimit.NewLimiter(cache, ratelimit.Limits{
		UserLimit:    cfg.Limits.UserLimit,
		UserWindow:   time.Duration(cfg.Limits.UserWindow) * time.Second,
		GlobalLimit:  cfg.Limits.GlobalLimit,
		GlobalWindow: time.Duration(cfg.Limits.GlobalWindow) * time.Second,
	}, logger)

	tg := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIURL,
		telegram.NewThrottle(cfg.Telegram.MinCallSpacing))

	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe: %w", err)
	}
	logger.Info("authorized", "username", me.Username, "id", me.ID)

	transcriber := transcribe.NewClient(transcribe.Config{
		APIKey:           cfg.Speech.APIKey,
		BaseURL:          cfg.Speech.BaseURL,
		Model:            cfg.Speech.Model,
		TranslationModel: cfg.Speech.TranslationModel,
	})

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	auditor := bot.NewAuditor(tg, logger, cfg.Operator)
	pipeline := bot.NewPipeline(tg, st, limiter, transcriber,
		bot.NewDeliverer(tg), auditor, m, logger, cfg.Limits,
		cfg.Speech.Retries, cfg.Speech.RetryDelay)
	b := bot.New(tg, pipeline, st, limiter, m, logger, cfg.Limits, cfg.Operator, me.Username)

	handler := telegram.Handler(b.HandleUpdate)

	var webhook *telegram.WebhookReceiver
	var poller *telegram.Poller
	switch cfg.Telegram.Mode {
	case "webhook":
		webhook = telegram.NewWebhookReceiver(handler, logger, cfg.Telegram.WebhookSecret)
		if err := tg.SetWebhook(ctx, telegram.SetWebhookRequest{
			URL:            cfg.Telegram.WebhookURL,
			SecretToken:    cfg.Telegram.WebhookSecret,
			AllowedUpdates: cfg.Telegram.AllowedUpdates,
		}); err != nil {
			return fmt.Errorf("telegram: setWebhook: %w", err)
		}
		logger.Info("webhook registered", "url", cfg.Telegram.WebhookURL)
	default:
		// A leftover webhook registration blocks getUpdates.
		if err := tg.DeleteWebhook(ctx); err != nil {
			logger.Warn("deleteWebhook failed", "error", err)
		}
		poller = telegram.NewPoller(tg, handler, logger, cfg.Telegram.PollingTimeout, cfg.Telegram.AllowedUpdates)
		poller.Start()
		logger.Info("polling started", "timeout", cfg.Telegram.PollingTimeout)
	}

	var gw *gateway.Gateway
	if cfg.Telegram.Mode == "webhook" || cfg.Server.MetricsEnabled {
		var wh http.Handler
		if webhook != nil {
			wh = webhook
		}
		gw = gateway.New(cfg.Server, wh, registry, st.Ping, logger)
		if err := gw.Start(); err != nil {
			return err
		}
	}

	var sched *cron.Scheduler
	if cfg.Digest.Enabled {
		sched = cron.NewScheduler(logger)
		if err := sched.RegisterJob(bot.NewDigestJob(tg, st, logger, cfg.Operator, cfg.Digest.Schedule)); err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if poller != nil {
		poller.Stop()
	}
	if sched != nil {
		_ = sched.Stop(shutdownCtx)
	}
	if gw != nil {
		_ = gw.Stop(shutdownCtx)
	}
	return nil
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/voxgram/voxgram.yaml → ./voxgram.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "voxgram", "voxgram.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "voxgram", "voxgram.yaml"))
	}
	candidates = append(candidates, "voxgram.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched %v); pass one with --config", candidates)
}
