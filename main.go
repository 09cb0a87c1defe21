package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "minutesbot/app/configs"
	"minutesbot/app/core/drive"
	"minutesbot/app/core/httpapi"
	"minutesbot/app/core/mail"
	"minutesbot/app/core/openai"
	"minutesbot/app/core/pipeline"
	"minutesbot/app/core/queue"
	"minutesbot/app/core/reminder"
	"minutesbot/app/core/router"
	"minutesbot/app/core/slack"
	"minutesbot/app/core/store"
	"minutesbot/app/core/watcher"
	"minutesbot/app/pkg/kvstate"
	"minutesbot/app/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.LogDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Minutes bot starting...")

	drafts, err := store.Open(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open store: %v", err)
		os.Exit(1)
	}
	defer drafts.Close()
	logger.Info("Store initialized at %s", cfg.DataDir)

	slackClient := slack.NewClient(slack.Config{BotToken: cfg.SlackBotToken})
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
	mailer := mail.New(mail.Config{Username: cfg.GmailUser, Password: cfg.GmailPass})

	var driveClient drive.Client
	if cfg.DriveEnabled() {
		driveClient = drive.NewRESTClient(drive.Config{AccessToken: cfg.DriveAccessToken})
	}

	reminders := reminder.New(slackClient, cfg.UserMap, cfg.DefaultRemindHour)
	records := kvstate.NewMemory[router.MessageRef]()
	channels := kvstate.NewMemory[drive.WatchChannel]()

	var uploader pipeline.Uploader
	if driveClient != nil {
		uploader = driveClient
	}
	var mailSender pipeline.MailSender
	if mailer.Enabled() {
		mailSender = mailer
	}

	// The router and the pipeline reference each other: the pipeline posts
	// drafts through the router, and the router hands approvals back to the
	// pipeline. The router is built first with the approver wired afterwards
	// through the pipeline value itself.
	flows := pipeline.New(
		pipeline.Config{DriveFolderID: cfg.DriveFolderID, MailTo: cfg.GmailUser},
		openaiClient, openaiClient, drafts, nil, slackClient, uploader, mailSender, reminders,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var folderWatcher *watcher.Watcher
	var dispatch *router.Router
	if cfg.WatchEnabled && driveClient != nil {
		folderWatcher = watcher.New(watcher.Config{
			FolderID:     cfg.DriveWatchFolder,
			Channel:      cfg.SlackChannelID,
			PollInterval: cfg.PollInterval,
			WebhookURL:   cfg.NotificationURL(),
			WebhookToken: cfg.WebhookSecret,
		}, driveClient, flows, channels)
		dispatch = router.New(slackClient, drafts, records, flows, folderWatcher)
	} else {
		dispatch = router.New(slackClient, drafts, records, flows, nil)
	}
	flows.SetPoster(dispatch)

	jobs := queue.New(64)
	if err := jobs.Start(ctx, 4); err != nil {
		logger.Error("Failed to start work queue: %v", err)
		os.Exit(1)
	}

	if folderWatcher != nil {
		if err := folderWatcher.Start(ctx); err != nil {
			logger.Error("Failed to start folder watcher: %v", err)
			os.Exit(1)
		}
		logger.Info("Folder watcher running on %s", cfg.DriveWatchFolder)
	}

	server := httpapi.New(httpapi.Config{
		Addr:           cfg.ListenAddr,
		SigningSecret:  cfg.SlackSigningSecret,
		DefaultChannel: cfg.SlackChannelID,
		WebhookToken:   cfg.WebhookSecret,
	}, flows, dispatch, jobs, drafts.UploadDir())

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server crashed: %v", err)
			os.Exit(1)
		}
	}()
	logger.Info("Minutes bot is ready on %s", cfg.ListenAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. Shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown: %v", err)
	}
	if folderWatcher != nil {
		if err := folderWatcher.Stop(5 * time.Second); err != nil {
			logger.Error("Watcher shutdown: %v", err)
		}
	}
	if err := jobs.Stop(10 * time.Second); err != nil {
		logger.Error("Queue shutdown: %v", err)
	}
	cancel()
}
