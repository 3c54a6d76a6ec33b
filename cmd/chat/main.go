package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/catalog"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/config"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/feed"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/handler"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/repository"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/router"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/service"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/session"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/storage"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/jwt"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/snowflake"
)

func main() {
	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// 加载配置
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	// 连接 Redis
	redisClient := connectRedis(cfg.Redis)
	defer redisClient.Close()
	logger.Info("Connected to Redis", "host", cfg.Redis.Host)

	// 连接 NATS
	nc, err := connectNATS(cfg.NATS)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 初始化 JWT 服务
	jwtService := jwt.NewService(cfg.JWT.SecretKey, cfg.JWT.Expire)

	// 初始化雪花ID生成器
	sfNode, err := snowflake.NewNode(1)
	if err != nil {
		logger.Error("Failed to create snowflake node", "error", err)
		os.Exit(1)
	}

	// 初始化图片存储
	uploader, err := storage.NewLocalStorage(cfg.Upload.BasePath, cfg.Upload.BaseURL, sfNode)
	if err != nil {
		logger.Error("Failed to init upload storage", "error", err)
		os.Exit(1)
	}

	// 初始化 Repository
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	sessionRepo := repository.NewSessionRepository(redisClient)

	// 初始化变更订阅层
	notifier := feed.NewNATSNotifier(nc)
	publisher := feed.NewPublisher(notifier)
	changeFeed := feed.NewFeed(conversationRepo, messageRepo, notifier, feed.FeedConfig{
		MaxConversations:     cfg.Feed.MaxConversations,
		MaxMessages:          cfg.Feed.MaxMessages,
		FirstSnapshotTimeout: cfg.Feed.FirstSnapshotTimeout,
	})

	// 初始化 Service
	chatService := service.NewChatService(conversationRepo, messageRepo, publisher, sfNode)
	authClient := session.NewAuthClient(cfg.Auth.BaseURL, cfg.Auth.Timeout)
	sessionManager := session.NewManager(authClient, sessionRepo, jwtService)
	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(sessionManager)
	chatHandler := handler.NewChatHandler(chatService, uploader)
	chatWSHandler := handler.NewChatWSHandler(changeFeed, chatService, uploader)
	medicineHandler := handler.NewMedicineHandler(catalogClient)

	// 设置路由
	r := router.SetupRouter(cfg, sessionManager, authHandler, chatHandler, chatWSHandler, medicineHandler)

	// 启动服务器
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	go func() {
		logger.Info("Chat server started", "addr", addr, "mode", cfg.App.Mode)
		if err := r.Run(addr); err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()
	logger.Info("Server stopped")
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// connectNATS 连接 NATS
func connectNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	return nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("Disconnected from NATS", "error", err)
		}),
	)
}
