package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_sync_service/internal/sync/app"
	"chat_sync_service/internal/sync/domain"
	"chat_sync_service/internal/sync/repository"
	"chat_sync_service/internal/sync/router"
	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"
	testtool "chat_sync_service/pkg/test_tool"
	"chat_sync_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.SyncService, config.EnvConfig.SyncLogPath)
	// 本機開發預設打開 debug log, 其他環境用 /debug 切換
	logger.Log.SetDebugMode(config.IsLocal())
	cfg := config.LoadConfig[config.Sync](config.EnvConfig.SyncService, config.EnvConfig.SyncYAMLPath)
	engine := cfg.Engine.WithDefaults()
	token.SetSecret(config.EnvConfig.JWTSecret)
	testtool.StartPprof()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. PostgreSQL: gorm 管同步 table, pgx 管 profiles
	dsn := database.PostgresDSN(cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database)
	pgConn := database.Connection{
		ConnectStr:    dsn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	gormDB, err := database.NewGormConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL (gorm) after retries", zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	if err := repository.AutoMigrate(gormDB); err != nil {
		logger.Log.Fatal("auto migrate", zap.Error(err))
	}

	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL database after retries", zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	defer pool.Close()

	profileRepo := repository.NewProfileRepository(pool)
	if err := profileRepo.Migrate(ctx); err != nil {
		logger.Log.Fatal("migrate profiles", zap.Error(err))
	}

	// 2. Redis: profile cache, 預設的 signal bus
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, cfg.Redis.Addr, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	defer redisClient.Close()
	profileCache := database.NewRedisRepository[domain.Profile](redisClient)

	// 3. invalidation signal bus
	var bus repository.SignalBus
	switch engine.Bus {
	case config.BusRabbitMQ:
		conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
			ConnectStr:    database.RabbitURL(cfg.RabbitMQ.Host, cfg.RabbitMQ.Port, cfg.RabbitMQ.User, cfg.RabbitMQ.Password),
			RetryCount:    cfg.RabbitMQ.RetryCount,
			RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect rabbitmq", zap.Error(err))
		}
		defer conn.Close()
		ch, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval))
		if err != nil {
			logger.Log.Fatal("open rabbitmq channel", zap.Error(err))
		}
		rabbitBus, err := repository.NewRabbitSignalBus(conn, ch)
		if err != nil {
			logger.Log.Fatal("declare signal exchange", zap.Error(err))
		}
		bus = rabbitBus
	case config.BusMemory:
		logger.Log.Warn("memory signal bus only works with a single instance")
		bus = repository.NewMemorySignalBus()
	default:
		bus = repository.NewRedisSignalBus(redisClient)
	}
	logger.Log.Info("signal bus ready", zap.String("bus", string(engine.Bus)))

	// 4. Kafka event log, 沒設定 broker 時不寫
	var events repository.EventLog
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Brokers[0] != "" {
		writer, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect kafka", zap.Error(err))
		}
		defer writer.Close()
		events = repository.NewKafkaEventLog(writer)
	} else {
		logger.Log.Warn("kafka brokers not configured, event log disabled")
	}

	// 5. MinIO avatar, 沒設定時停用上傳
	var avatars repository.AvatarStore
	if cfg.MinIO.Endpoint != "" {
		mc, err := database.NewMinIOConnection(database.MinIOConnection{
			Endpoint:      cfg.MinIO.Endpoint,
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect minio", zap.Error(err))
		}
		avatars = repository.NewMinIOAvatarStore(mc, engine.AvatarURLExpiry)
	} else {
		logger.Log.Warn("minio not configured, avatar upload disabled")
	}

	// 6. 初始化 Repository
	chatRepo := repository.NewChatRepository(gormDB)
	msgRepo := repository.NewMessageRepository(gormDB)
	unreadRepo := repository.NewUnreadRepository(gormDB)
	typingRepo := repository.NewTypingRepository(gormDB)
	presenceRepo := repository.NewPresenceRepository(gormDB)
	friendRepo := repository.NewFriendRepository(gormDB)

	// 7. 初始化 UseCases
	profileUC := app.NewProfileUseCase(profileRepo, profileCache, avatars, bus, engine.ProfileCacheTTL)
	chatUC := app.NewChatUseCase(chatRepo, profileUC, bus, events)
	unreadUC := app.NewUnreadUseCase(unreadRepo, bus)
	messageUC := app.NewMessageUseCase(chatRepo, msgRepo, profileUC, unreadUC, bus, events, engine.HistoryLimit)
	presenceUC := app.NewPresenceUseCase(presenceRepo, bus, engine.PresenceTimeout)
	typingUC := app.NewTypingUseCase(typingRepo, chatRepo, bus, engine.TypingStaleness)
	friendUC := app.NewFriendUseCase(friendRepo, profileUC, chatUC, presenceUC, bus, events)

	reaper := app.NewPresenceReaper(presenceUC, engine.ReaperInterval)
	reaper.Start()
	defer reaper.Stop()

	// 8. Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.SyncLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r,
		app.NewSyncWebsocketHandler(profileUC, friendUC, chatUC, messageUC, unreadUC, presenceUC, typingUC, bus, engine),
		app.NewProfileHTTPHandler(profileUC),
	)

	// 9. gRPC health
	grpcServer := grpc.NewServer()
	health := router.RegisterGRPC(grpcServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		port := ":" + cfg.Port
		logger.Log.Info("Sync Service listening", zap.String("port", port))
		return r.Listen(port)
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		logger.Log.Info("gRPC health listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("shutting down")
		health.Shutdown()
		grpcServer.GracefulStop()
		return r.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error("sync service stopped", zap.Error(err))
	}
}
