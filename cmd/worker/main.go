package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ebsight/ebsight/internal/config"
	awsconn "github.com/ebsight/ebsight/internal/connectors/aws"
	"github.com/ebsight/ebsight/internal/externalid"
	"github.com/ebsight/ebsight/internal/notifications"
	"github.com/ebsight/ebsight/internal/pricing"
	"github.com/ebsight/ebsight/internal/queue"
	"github.com/ebsight/ebsight/internal/scan"
	"github.com/ebsight/ebsight/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	q, err := queue.New(queue.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	gen, err := externalid.NewGenerator(cfg.Security.MasterSecret)
	if err != nil {
		log.Fatalf("Failed to initialize external id generator: %v", err)
	}

	assumer, err := awsconn.NewAssumer(ctx, cfg.AWS.Region, cfg.AWS.ScannerRoleName, cfg.AWS.SessionDuration, nil)
	if err != nil {
		log.Fatalf("Failed to initialize role assumption client: %v", err)
	}

	scanner := awsconn.NewRegionScanner(pricing.NewTable(cfg.Pricing.Version, cfg.Pricing.Rates), nil, nil)

	orchestrator := scan.NewOrchestrator(scan.Config{
		Store:     st,
		Validator: scan.NewValidator(st, gen, nil),
		Assumer:   assumer,
		Scanner:   scanner,
		Timeout:   cfg.Scanner.ScanTimeout,
	})

	notifier := notifications.NewService(notifications.Config{
		Slack: notifications.SlackConfig{
			Enabled:    cfg.Notifications.Slack.Enabled,
			WebhookURL: cfg.Notifications.Slack.WebhookURL,
			Channel:    cfg.Notifications.Slack.Channel,
		},
		Email: notifications.EmailConfig{
			Enabled:  cfg.Notifications.Email.Enabled,
			SMTPHost: cfg.Notifications.Email.SMTPHost,
			SMTPPort: cfg.Notifications.Email.SMTPPort,
			Username: cfg.Notifications.Email.Username,
			Password: cfg.Notifications.Email.Password,
			From:     cfg.Notifications.Email.From,
			To:       cfg.Notifications.Email.To,
		},
	}, nil)

	worker := queue.NewWorker(queue.WorkerConfig{
		Queue:        q,
		Executor:     orchestrator,
		Records:      st,
		Notifier:     notifier,
		PollInterval: cfg.Scanner.PollInterval,
	})

	if err := worker.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	log.Printf("Worker %s started", worker.ID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	worker.Stop()
}
