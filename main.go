package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/checkin/checkin_api"
	"ms-checkin/internal/checkin/redislock"
	"ms-checkin/internal/codec"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/ledger"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/participants"
	"ms-checkin/internal/policy"
	"ms-checkin/internal/registry"
	"ms-checkin/internal/sse"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Checkin Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if cfg.Checkin.QRSecretKey == "" {
		log.Fatal("CONFIG", "QR_SECRET_KEY not set")
	}

	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}
	defer runner.Close()

	// Participant locking: Redis lease when several service instances share
	// the load, in-process semaphore otherwise.
	var locks checkin.ParticipantLocker
	if cfg.Redis.Enabled {
		redisClient := connectRedis(ctx, cfg.Redis, log)
		defer redisClient.Close()
		locks = redislock.New(redisClient)
		log.Info("APP", "Using Redis participant locks")
	} else {
		locks = checkin.NewLocalLocker(cfg.Checkin.LockWait)
		log.Info("APP", "Using in-process participant locks")
	}

	ledgerDB := &ledger.DB{Bun: bunDB}
	participantDB := &participants.DB{Bun: bunDB}
	registryService := registry.NewService(&registry.DB{Bun: bunDB})

	dayLoc := time.UTC
	if cfg.Checkin.DayBoundaryTZ != "" {
		loc, err := time.LoadLocation(cfg.Checkin.DayBoundaryTZ)
		if err != nil {
			log.Fatal("CONFIG", fmt.Sprintf("Invalid CHECKIN_DAY_TZ %q: %v", cfg.Checkin.DayBoundaryTZ, err))
		}
		dayLoc = loc
	}

	tokenCodec := codec.New(cfg.Checkin.QRSecretKey)

	checkinService := checkin.NewService(
		participantDB,
		ledgerDB,
		participantDB,
		registryService,
		locks,
		policy.NewEvaluator(dayLoc),
	)
	checkinService.Codec = tokenCodec
	checkinService.Logger = log
	checkinService.TokenTTL = cfg.Checkin.TokenTTL
	checkinService.LockRetries = cfg.Checkin.LockRetries

	emitter := sse.NewRedemptionEventEmitter()
	checkinService.Emitter = emitter

	if cfg.Kafka.Enabled {
		requiredTopics := []string{
			cfg.Kafka.Topics.CheckinCompleted,
			cfg.Kafka.Topics.CheckinDenied,
			cfg.Kafka.Topics.AttendeeRegistered,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.CheckinCompleted, cfg.Kafka.Topics.CheckinDenied)
		defer producer.Close()
		checkinService.Publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")

		// Orders placed in the ticketing service arrive here as attendee
		// registrations; each becomes a scannable participant.
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.AttendeeRegistered, cfg.Kafka.GroupID)
		defer consumer.Close()
		go consumer.Start(ctx, func(p models.Participant) {
			p.Source = models.ParticipantSourceOrder
			if _, err := participantDB.Create(ctx, p); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Failed to provision attendee %s: %v", p.Code, err))
			} else {
				log.LogKafka("CONSUME", cfg.Kafka.Topics.AttendeeRegistered, fmt.Sprintf("Provisioned participant for code %s", p.Code))
			}
		})
	}

	handler := &checkin_api.Handler{
		CheckinService: checkinService,
		Registry:       registryService,
		Ledger:         ledgerDB,
		Participants:   participantDB,
		Codec:          tokenCodec,
		Logger:         log,
	}
	sseHandler := checkin_api.NewSSEHandler(log, emitter)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
			log.Info("AUTH", "OIDC middleware applied to API routes")
		}

		r.Post("/checkin", handler.Checkin)
		r.Post("/checkin/bulk", handler.BulkCheckin)
		r.Post("/tokens", handler.IssueToken)
		log.Info("ROUTER", "Checkin routes registered under /api/v1/checkin")

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/history", handler.History)
			r.Get("/checkins/stream", sseHandler.HandleEventCheckins)
			r.Get("/participants", handler.ListParticipants)
			r.Get("/stations", handler.ListStations)
			r.Get("/zones", handler.ListZones)
		})

		r.Post("/participants", handler.CreateParticipant)

		r.Route("/stations", func(r chi.Router) {
			r.Post("/", handler.CreateStation)
			r.Get("/{stationID}", handler.GetStation)
			r.Put("/{stationID}", handler.UpdateStation)
			r.Get("/{stationID}/checkins/stream", sseHandler.HandleStationCheckins)
		})

		r.Route("/zones", func(r chi.Router) {
			r.Post("/", handler.CreateZone)
			r.Get("/{zoneID}", handler.GetZone)
			r.Put("/{zoneID}", handler.UpdateZone)
		})
		log.Info("ROUTER", "Registry routes registered under /api/v1/stations and /api/v1/zones")
	})

	// WriteTimeout stays unset: it would sever the long-lived SSE streams.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", "🚀 Checkin Service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Checkin Service shutdown complete")
	}
}
