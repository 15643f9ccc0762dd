package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"echelon/backend/config"
	"echelon/backend/internal/api/handler"
	"echelon/backend/internal/api/router"
	"echelon/backend/internal/metrics"
	"echelon/backend/internal/notify"
	"echelon/backend/internal/repository"
	"echelon/backend/internal/repository/memrepo"
	"echelon/backend/internal/service"
	"echelon/backend/pkg/database"
	"echelon/backend/pkg/jwt"
	applogger "echelon/backend/pkg/logger"
	"echelon/backend/pkg/redis"
)

// memoryCreditQueueSize 未启用 Redis 时进程内补偿队列容量
const memoryCreditQueueSize = 1024

const shutdownTimeout = 10 * time.Second

func runServer(parent context.Context, opts *rootOptions) error {
	// 1. 加载配置
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 存储
	repo, db, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer closeDB(db, logger)
	}

	// 4. 连接 Redis（可选：连接失败时降级为单节点运行，不中断启动）
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，限流 / 跨节点推送 / 持久化补偿队列将不可用", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	// 5. 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	// 6. 实时推送：本节点连接注册表 + 传输（Redis 频道或直连）
	hub := notify.NewHub(&cfg.Server.WebSocket, m, logger)
	var (
		transport notify.Transport = hub
		bus       *notify.Bus
		queue     service.CreditQueue
	)
	if rdb != nil {
		bus = notify.NewBus(rdb, hub, logger)
		transport = bus
		queue = service.NewRedisCreditQueue(rdb)
	} else {
		queue = service.NewMemoryCreditQueue(memoryCreditQueueSize)
	}
	fanout := notify.NewFanout(transport, repo.Notification, m, logger)

	// 7. 依赖注入: Repository → Service → Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	svc := service.NewService(cfg, repo, fanout, queue, m, logger)
	h := handler.NewHandler(cfg, svc, hub, logger)

	// 8. 初始化路由
	engine := router.Setup(cfg, h, svc.Ledger, jwtMgr, rdb, reg, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 9. 运行组：HTTP 服务、补偿 Worker、跨节点订阅，任一失败全部退出
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务器异常: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return svc.CreditRetrier.Run(gctx)
	})

	if bus != nil {
		g.Go(func() error {
			return bus.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("开始优雅关闭...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 已升级的 WebSocket 连接不受 Shutdown 管理，单独关闭
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("服务器关闭异常", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("服务异常退出", zap.Error(err))
		return err
	}

	logger.Info("服务器已关闭")
	return nil
}

// openRepository 按 db.driver 选择存储实现
// memory 仅用于本地联调，数据不落盘
func openRepository(cfg *config.Config, logger *zap.Logger) (*repository.Repository, *gorm.DB, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("使用内存存储，进程退出后数据丢失")
		return memrepo.New().Repository(), nil, nil
	}

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	return repository.NewRepository(db), db, nil
}

func closeDB(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("关闭数据库连接失败", zap.Error(err))
	}
}
