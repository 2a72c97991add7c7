package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fleet-service/internal/actuator"
	"fleet-service/internal/alerts"
	"fleet-service/internal/api"
	"fleet-service/internal/autocontrol"
	"fleet-service/internal/config"
	"fleet-service/internal/db"
	"fleet-service/internal/engine"
	"fleet-service/internal/events"
	"fleet-service/internal/fleet"
	"fleet-service/internal/history"
	"fleet-service/internal/kafka"
	"fleet-service/internal/logging"
	"fleet-service/internal/metrics"
	"fleet-service/internal/models"
	"fleet-service/internal/mqtt"
	"fleet-service/internal/notification"
	"fleet-service/internal/providers"
	"fleet-service/internal/store"
	"fleet-service/internal/websocket"
	"fleet-service/pkg/email"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		if err := logger.Close(); err != nil {
			log.Printf("Failed to close logger: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	dbConn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.Migrate(ctx); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	registry, err := fleet.Load(cfg.Fleet.RegistryFile)
	if err != nil {
		log.Fatalf("Failed to load fleet registry: %v", err)
	}

	// Shared state
	st := store.New(registry, cfg.Fleet.Devices...)
	samples := history.NewStore(history.DefaultCapacity)
	tasks := history.NewTaskLog(db.NewTaskRepository(dbConn.Pool), history.DefaultRetention)
	if err := tasks.Load(ctx); err != nil {
		logger.Errorf("Task history unavailable, starting empty: %v", err)
	}
	alertLog := alerts.NewLog(alerts.DefaultCapacity, alerts.DefaultDedupWindow)
	m := metrics.New()

	settingsRepo := db.NewSettingsRepository(dbConn.Pool)
	settings, err := settingsRepo.Load(ctx)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			logger.Errorf("Failed to load settings, using defaults: %v", err)
		}
		settings = models.DefaultSettings()
	}

	stateAPI := actuator.New(cfg.StateAPI.BaseURL, cfg.StateAPI.Token, cfg.StateAPI.RPS)
	var act engine.Actuator
	var remote api.RemoteHistory
	if stateAPI.Enabled() {
		act = stateAPI
		remote = stateAPI
	} else {
		logger.Warnf("STATE_API_URL not set, actuator commands and polling disabled")
	}

	var wg sync.WaitGroup

	// Outbound event sinks
	streams := websocket.NewManager(logger)
	sink := events.NewFanout(logger, streams)

	notifier := notification.New(logger, notification.Config{
		QueueSize:  cfg.Notification.QueueSize,
		MaxWorkers: cfg.Notification.MaxWorkers,
		MinLevel:   models.AlertLevel(cfg.Notification.MinLevel),
	})
	if cfg.Telegram.BotToken != "" {
		tg, err := providers.NewTelegram(providers.TelegramConfig{
			BotToken:  cfg.Telegram.BotToken,
			ChatID:    cfg.Telegram.ChatID,
			RateLimit: cfg.Telegram.RateLimit,
		}, logger)
		if err != nil {
			logger.Errorf("Telegram provider disabled: %v", err)
		} else {
			notifier.Register("telegram", tg)
		}
	}
	if cfg.Email.SMTPServer != "" {
		mail, err := providers.NewEmail(email.Server{
			Host:     cfg.Email.SMTPServer,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
		}, cfg.Email.To, logger)
		if err != nil {
			logger.Errorf("Email provider disabled: %v", err)
		} else {
			notifier.Register("email", mail)
		}
	}
	sink.Add(notifier)
	notifier.Start(&wg)

	kafkaCfg := kafka.Config{
		Broker:         cfg.Kafka.Broker,
		TelemetryTopic: cfg.Kafka.TelemetryTopic,
		EventsTopic:    cfg.Kafka.EventsTopic,
		GroupID:        cfg.Kafka.GroupID,
	}
	var producer *kafka.Producer
	if cfg.Kafka.Broker != "" {
		producer = kafka.NewProducer(kafkaCfg, logger)
		sink.Add(producer)
	}

	var mq *mqtt.Client
	if cfg.MQTT.Broker != "" {
		mq, err = mqtt.New(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			log.Fatalf("MQTT connect failed: %v", err)
		}
		sink.Add(mq.CollisionSink())
	}

	// Engine
	timings := engine.DefaultTimings()
	timings.TaskTimeout = cfg.Engine.TaskTimeout
	timings.SweepInterval = cfg.Engine.SweepInterval
	timings.PollInterval = cfg.Engine.PollInterval
	timings.CollisionThreshold = cfg.Engine.CollisionThreshold
	timings.Lifecycle.ArrivalThreshold = cfg.Engine.ArrivalThreshold

	eng := engine.New(engine.Deps{
		Store:    st,
		Registry: registry,
		History:  samples,
		Tasks:    tasks,
		Alerts:   alertLog,
		Actuator: act,
		Sink:     sink,
		Metrics:  m,
		Logger:   logger,
	}, engine.Options{
		Timings:   timings,
		Policy:    autocontrol.ParsePolicy(cfg.Engine.ClimatePolicy),
		QueueSize: cfg.Engine.QueueSize,
		Settings:  settings,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	// Inbound sources
	if mq != nil {
		for _, id := range st.DeviceIDs() {
			if err := mq.FollowDevice(id, eng); err != nil {
				logger.Errorf("Failed to follow device %s: %v", id, err)
			}
		}
	}
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer(kafkaCfg, eng, logger)
		consumer.Start(ctx, &wg)
	}
	if stateAPI.Enabled() {
		poller := engine.NewPoller(stateAPI, eng, st.DeviceIDs, timings.PollInterval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	// Start API server
	router := api.NewRouter(api.Deps{
		Store:    st,
		History:  samples,
		Tasks:    tasks,
		Alerts:   alertLog,
		Engine:   eng,
		Settings: settingsRepo,
		Remote:   remote,
		Streams:  streams,
		Metrics:  m,
		Logger:   logger,
	}, cfg.API.BasePath)
	srv := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	// Handle graceful shutdown
	<-ctx.Done()
	logger.Infof("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	notifier.Stop()
	if mq != nil {
		mq.Close()
	}
	wg.Wait()
	if consumer != nil {
		consumer.Close()
	}
	if producer != nil {
		producer.Close()
	}
	logger.Infof("Service stopped")
}
