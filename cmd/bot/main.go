// Package main contains the entrypoint for the chat keeper bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"

	"github.com/edgard/chatkeeper/internal/admin"
	"github.com/edgard/chatkeeper/internal/analytics"
	"github.com/edgard/chatkeeper/internal/bot"
	"github.com/edgard/chatkeeper/internal/bot/handlers"
	"github.com/edgard/chatkeeper/internal/bot/tasks"
	"github.com/edgard/chatkeeper/internal/config"
	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/database"
	"github.com/edgard/chatkeeper/internal/kvstore"
	"github.com/edgard/chatkeeper/internal/llm"
	"github.com/edgard/chatkeeper/internal/logger"
	"github.com/edgard/chatkeeper/internal/metrics"
	"github.com/edgard/chatkeeper/internal/report"
	"github.com/edgard/chatkeeper/internal/responder"
	"github.com/edgard/chatkeeper/internal/snapshot"
	"github.com/edgard/chatkeeper/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Optional dotenv file with BOT_* secrets")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("Failed to load env file", "path", *envPath, "error", err)
		return 1
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
	loc := cfg.Reports.Location()

	// Storage: in-memory store, snapshot write-through and metrics.
	m := metrics.New()
	kv := kvstore.New(kvstore.WithLogger(log), kvstore.WithPurgeHook(m.ObservePurge))
	m.RegisterStore(kv)

	manager := snapshot.NewManager(kv, snapshot.Options{
		Path:             cfg.Storage.SnapshotPath,
		MessageTTL:       cfg.Storage.MessageTTL,
		StatsTTL:         cfg.Storage.StatsTTL,
		RetentionHorizon: cfg.Storage.RetentionHorizon,
		CleanupInterval:  cfg.Storage.CleanupInterval,
		Location:         loc,
	}, log, snapshot.WithObserver(m))
	store := conversation.NewStore(kv, manager, conversation.Options{
		MessageTTL: cfg.Storage.MessageTTL,
		StatsTTL:   cfg.Storage.StatsTTL,
	}, log)
	if err := manager.Initialize(ctx); err != nil {
		log.Error("Failed to initialize snapshot", "path", cfg.Storage.SnapshotPath, "error", err)
		return 1
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open report archive", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	archive := database.NewStore(db, log)

	client, err := llm.New(ctx, cfg.LLM, log)
	if err != nil {
		log.Error("Failed to initialize LLM client", "provider", cfg.LLM.Provider, "error", err)
		return 1
	}

	// The default handler needs the bot identity, which is only known after
	// GetMe. Updates are not dispatched before Start, so binding it late is safe.
	var onMessage tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			onMessage(ctx, b, update)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}
	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	resp := responder.New(store, client, responder.Options{
		ContextCount:     cfg.Responder.ContextCount,
		MaxHistoryChars:  cfg.Responder.MaxHistoryChars,
		BotSenderID:      cfg.Responder.BotSenderID,
		BotName:          me.FirstName,
		SystemDirectives: cfg.Responder.SystemDirectives,
		FallbackReply:    cfg.Responder.FallbackReply,
		Location:         loc,
	}, log)
	agg := analytics.NewAggregator(store, client, analytics.Options{
		TopUsers:            cfg.Reports.TopUsers,
		SummaryMessageLimit: cfg.Reports.SummaryMessageLimit,
		Location:            loc,
	}, log)
	reports := report.NewService(agg, archive, m, log)

	hDeps := handlers.HandlerDeps{
		Logger:    log,
		Config:    cfg,
		Bot:       handlers.BotIdentity{ID: me.ID, Username: me.Username},
		Responder: resp,
		Reports:   reports,
		Cleaner:   manager,
		Replies:   m,
		NewSender: func(b *tgbot.Bot) handlers.Sender { return telegram.NewSender(b, log) },
	}
	onMessage = handlers.NewMessageHandler(hDeps)
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	groupIDs := make([]string, 0, len(cfg.Reports.GroupIDs))
	for _, id := range cfg.Reports.GroupIDs {
		groupIDs = append(groupIDs, strconv.FormatInt(id, 10))
	}
	reportGroups := tasks.NewGroups(groupIDs...)

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:    log,
		Config:    cfg,
		Reports:   reports,
		Sender:    telegram.NewSender(tg, log),
		Retention: manager,
		Archive:   archive,
		Groups:    reportGroups,
		Active:    store,
	})
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, taskMap, gocron.WithLocation(loc))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	components := bot.Components{
		Listener:      tg,
		Scheduler:     sched,
		Sweeper:       kv,
		SweepInterval: cfg.Storage.SweepInterval,
		Flusher:       manager,
	}
	if cfg.Admin.Enabled {
		components.Admin = admin.NewServer(cfg.Admin.Addr, admin.NewRouter(admin.Deps{
			Logger:        log,
			Conversations: store,
			Snapshot:      manager,
			Archive:       archive,
			Groups:        reportGroups,
			Tasks:         sched,
			Metrics:       m.Handler(),
			Location:      loc,
		}))
		log.Info("Admin API enabled", "addr", cfg.Admin.Addr)
	}

	log.Info("Starting bot...")
	runErr := bot.NewBot(log, components).Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully")
	return 0
}
