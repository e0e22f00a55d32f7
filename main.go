package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gitmirror/internal"
	"gitmirror/pkg/storage/activity"
	"gitmirror/pkg/storage/installations"
	"gitmirror/pkg/storage/repositories"
	"gitmirror/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	installStore, err := installations.Open(installations.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Dialect:     config.Storage.Dialect,
		Table:       config.Storage.Tables.Installations,
		OrgTable:    config.Storage.Tables.Organizations,
		JoinTable:   config.Storage.Tables.InstallationOrganizations,
		AutoMigrate: config.Storage.AutoMigrate,
	})
	if err != nil {
		logger.Fatalf("installations store: %v", err)
	}
	defer installStore.Close()

	repoStore, err := repositories.Open(repositories.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Dialect:     config.Storage.Dialect,
		Table:       config.Storage.Tables.Repositories,
		AutoMigrate: config.Storage.AutoMigrate,
	})
	if err != nil {
		logger.Fatalf("repositories store: %v", err)
	}
	defer repoStore.Close()

	activityStore, err := activity.Open(activity.Config{
		Driver:            config.Storage.Driver,
		DSN:               config.Storage.DSN,
		Dialect:           config.Storage.Dialect,
		AuthorsTable:      config.Storage.Tables.Authors,
		CommitsTable:      config.Storage.Tables.Commits,
		PullRequestsTable: config.Storage.Tables.PullRequests,
		AutoMigrate:       config.Storage.AutoMigrate,
	})
	if err != nil {
		logger.Fatalf("activity store: %v", err)
	}
	defer activityStore.Close()

	ignoreEngine, err := internal.NewIgnoreEngine(internal.IgnoreRulesConfig{
		Rules:  config.IgnoreRules,
		Strict: config.IgnoreStrict,
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("compile ignore rules: %v", err)
	}

	publisher, err := internal.NewPublisher(config.Watermill)
	if err != nil {
		logger.Fatalf("publisher: %v", err)
	}
	defer publisher.Close()

	glHandler := webhook.NewGitLabHandler(
		installStore,
		repoStore,
		activityStore,
		ignoreEngine,
		publisher,
		webhook.Options{
			Logger:      internal.NewLogger("gitlab"),
			MaxBody:     config.Server.MaxBodyBytes,
			DebugEvents: config.Webhook.DebugEvents,
			TopicPrefix: config.Watermill.TopicPrefix,
		},
	)

	mux := http.NewServeMux()
	mux.Handle(config.Webhook.Path, glHandler)
	logger.Printf("gitlab webhook enabled on %s", config.Webhook.Path)

	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
		logger.Printf("metrics enabled on %s", config.Server.MetricsPath)
	}

	handler := internal.NewRateLimitHandler(
		mux,
		config.Server.RateLimitRPS,
		config.Server.RateLimitBurst,
		time.Minute,
	)

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
