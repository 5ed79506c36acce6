package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/shenikar/disaster_coordination_system/internal/cache"
	"github.com/shenikar/disaster_coordination_system/internal/config"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/shenikar/disaster_coordination_system/internal/fetcher"
	v1 "github.com/shenikar/disaster_coordination_system/internal/handler/http/v1"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/shenikar/disaster_coordination_system/internal/repository"
	"github.com/shenikar/disaster_coordination_system/internal/repository/memory"
	"github.com/shenikar/disaster_coordination_system/internal/service"
	"github.com/shenikar/disaster_coordination_system/internal/webhook"
	"github.com/shenikar/disaster_coordination_system/pkg/logger"
	"github.com/shenikar/disaster_coordination_system/pkg/postgres"
	redisclient "github.com/shenikar/disaster_coordination_system/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/disaster_coordination_system/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Disaster Coordination System API
// @version 1.0
// @description Disaster response coordination: incidents with audit trail, relief resources, external feeds and realtime events.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://"+cfg.MigrationsDir,
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	var dbpool *pgxpool.Pool
	if cfg.UsesPostgres() {
		// Запуск миграций
		if err := runMigrations(cfg, log); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}

		// Подключение к PostgreSQL
		dbpool, err = postgres.NewPostgresDB(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbpool.Close()
		log.Info("Successfully connected to PostgreSQL")
	}

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		// Инициализация Redis клиента
		redisClient, err = redisclient.NewRedisClient(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Info("Successfully connected to Redis")
	}

	// Кэш ответов внешних сервисов и периодическая очистка
	store := cache.NewStore(newCacheBackend(cfg, dbpool, redisClient), clock, log, metrics)
	sweeper := cache.NewSweeper(store, cfg.CacheSweepInterval, clock, log)
	sweeper.Start(ctx)

	// Шина событий и внешние получатели
	bus := eventbus.NewBus(cfg.EventBusBufferSize, clock, log, metrics)
	defer bus.Close()

	// relays и воркер должны остановиться до закрытия kafka и redis в defer
	var background sync.WaitGroup
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := eventbus.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer kafkaSink.Close()
		sub := bus.Subscribe(eventbus.GlobalTopic)
		background.Go(func() { eventbus.Relay(ctx, sub, "kafka", kafkaSink, log) })
	}

	if cfg.WebhookURL != "" {
		// Инициализация издателя вебхуков
		webhookPublisher := webhook.NewRedisWebhookPublisher(redisClient)
		sub := bus.Subscribe(eventbus.GlobalTopic)
		background.Go(func() { eventbus.Relay(ctx, sub, "webhook", webhookPublisher, log) })

		// Инициализация и запуск воркера вебхуков
		webhookWorker := webhook.NewWebhookWorker(redisClient, log, cfg)
		webhookWorker.Start(ctx)
		background.Go(func() { <-webhookWorker.Done() })
	}

	// Инициализация репозиториев
	incidentRepo, resourceRepo := newRepositories(cfg, dbpool, clock)

	// Инициализация сервисов
	fetchers := newFetchers(cfg, store, clock, log, metrics)
	incidentService := service.NewIncidentService(incidentRepo, store, fetchers.Geocoder, bus, clock, log, metrics, cfg)
	resourceService := service.NewResourceService(resourceRepo, incidentRepo, bus, log, metrics, cfg)
	feedService := service.NewFeedService(incidentRepo, fetchers, bus, log)

	// Инициализация хэндлеров
	handler := v1.NewHandler(incidentService, resourceService, feedService, bus, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Метрики Prometheus и Swagger UI
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.WithFields(logrus.Fields{
		"port":    cfg.HTTPPort,
		"storage": cfg.StorageDriver,
		"cache":   cfg.CacheBackend,
		"fetcher": cfg.FetcherMode,
	}).Info("HTTP server started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Останавливаем фоновые задачи
	cancel()
	relaysDone := make(chan struct{})
	go func() {
		background.Wait()
		close(relaysDone)
	}()
	waitStopped(shutdownCtx, log, "Cache sweeper", sweeper.Done())
	waitStopped(shutdownCtx, log, "Event relays", relaysDone)

	log.Info("Server gracefully stopped")
}

// waitStopped ждёт остановки фоновой задачи, но не дольше shutdownCtx
func waitStopped(shutdownCtx context.Context, log *logrus.Logger, name string, done <-chan struct{}) {
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warnf("%s did not stop in time", name)
	}
}

// newCacheBackend выбирает хранилище кэша по конфигурации
func newCacheBackend(cfg *config.Config, dbpool *pgxpool.Pool, redisClient *goredis.Client) cache.Backend {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		return repository.NewRedisCacheRepository(redisClient)
	case config.CacheBackendMemory:
		return cache.NewMemoryBackend()
	default:
		return repository.NewCacheRepository(dbpool)
	}
}

// newRepositories выбирает хранилище инцидентов и ресурсов по конфигурации
func newRepositories(cfg *config.Config, dbpool *pgxpool.Pool, clock clockwork.Clock) (service.IncidentRepository, service.ResourceRepository) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		return memory.NewIncidentRepository(clock), memory.NewResourceRepository(clock)
	}
	return repository.NewIncidentRepository(dbpool), repository.NewResourceRepository(dbpool)
}

// newFetchers собирает внешние источники и оборачивает их кэшем
func newFetchers(cfg *config.Config, store *cache.Store, clock clockwork.Clock, log *logrus.Logger, metrics *observability.Metrics) service.Fetchers {
	var (
		geocoder fetcher.ExternalFetcher = fetcher.FixtureGeocoder{}
		social   fetcher.ExternalFetcher = fetcher.FixtureSocialFeed{Clock: clock}
		official fetcher.ExternalFetcher = fetcher.FixtureOfficialUpdates{Clock: clock}
	)

	if cfg.FetcherMode == config.FetcherModeLive {
		geocoder = fetcher.NewMapboxGeocoder(cfg.MapboxToken, cfg.MapboxTimeout)
		if cfg.SocialFeedURL != "" {
			social = fetcher.NewHTTPFetcher(cfg.SocialFeedURL, cfg.FetcherTimeout)
		}
		if cfg.OfficialUpdatesURL != "" {
			official = fetcher.NewHTTPFetcher(cfg.OfficialUpdatesURL, cfg.FetcherTimeout)
		}
	}

	return service.Fetchers{
		Geocoder: fetcher.NewCached("geocode", geocoder, store, cfg.CacheTTL.Geocode, log, metrics),
		Social:   fetcher.NewCached("social", social, store, cfg.CacheTTL.Social, log, metrics),
		Official: fetcher.NewCached("official", official, store, cfg.CacheTTL.Official, log, metrics),
	}
}
