package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"posture-monitor/common/database"
	"posture-monitor/common/logger"
	"posture-monitor/common/mqtt"
	commonredis "posture-monitor/common/redis"
	"posture-monitor/internal/classifier"
	"posture-monitor/internal/config"
	"posture-monitor/internal/engine"
	httpapi "posture-monitor/internal/http"
	"posture-monitor/internal/notifier"
	"posture-monitor/internal/repository"
	"posture-monitor/internal/service"
	"posture-monitor/internal/source/opencv"
	"posture-monitor/internal/store"

	"go.uber.org/zap"
)

const sessionDrainTimeout = 5 * time.Second

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "posture-monitor")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 告警库（Postgres）
	var (
		alertStore notifier.AlertStore
		alertRepo  service.AlertRepository
	)
	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.String("database", cfg.Database.Redacted()), zap.Error(err))
		}
		defer database.Close(db)

		repo := repository.NewAlertsRepository(db, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to prepare alerts schema", zap.Error(err))
		}
		alertStore, alertRepo = repo, repo
	} else {
		log.Warn("Database disabled, alerts will not be persisted")
	}

	// 4. Redis：告警流 + 最新体位缓存（未启用时使用进程内缓存）
	var (
		kv          store.KV = store.NewMemoryKV()
		dispatchOps []notifier.DispatcherOption
	)
	if cfg.Redis.Enabled {
		redisClient, err := commonredis.Connect(ctx, &cfg.Redis.RedisConfig)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer commonredis.Close(redisClient)

		kv = store.NewRedisKV(redisClient)
		dispatchOps = append(dispatchOps, notifier.WithStream(
			notifier.NewRedisStreamWriter(redisClient, cfg.Redis.AlertStream, cfg.Redis.AlertStreamMaxLen),
		))
	}

	// 5. MQTT 告警推送
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT.MQTTConfig, log)
		if err != nil {
			log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttClient.Disconnect()
		dispatchOps = append(dispatchOps, notifier.WithMQTT(mqttClient, cfg.MQTT.AlertTopic))
	}

	// 6. 体位时序（ClickHouse）
	var (
		timelineStore notifier.ObservationStore
		timelineRead  service.TimelineReader
	)
	if cfg.ClickHouse.Enabled {
		conn, err := database.NewClickHouseConn(&cfg.ClickHouse.ClickHouseConfig)
		if err != nil {
			log.Fatal("Failed to connect to ClickHouse", zap.Error(err))
		}
		defer conn.Close()

		repo := repository.NewObservationsRepository(conn, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to prepare observations schema", zap.Error(err))
		}
		timelineStore, timelineRead = repo, repo
	}

	// 7. 推理服务（并发上限）
	clf := classifier.NewGate(
		classifier.NewRemoteClassifier(cfg.Classifier.URL, cfg.Classifier.Timeout, cfg.Classifier.RetryCount, log),
		cfg.Classifier.MaxConcurrent,
	)
	if status, err := clf.Status(ctx); err != nil || !status.ModelLoaded {
		log.Warn("Classifier not ready at startup", zap.String("url", cfg.Classifier.URL), zap.Error(err))
	}

	// 8. 引擎
	opener := opencv.NewOpener(cfg.Monitor.FallbackFPS, log)
	dispatcher := notifier.NewAlertDispatcher(alertStore, log, dispatchOps...)
	recorder := notifier.NewPositionRecorder(timelineStore, kv, cfg.Redis.PositionKeyPrefix, cfg.Redis.PositionTTL, log)

	runner := engine.NewRunner(opener, clf, dispatcher, recorder, engine.RunnerConfig{
		Policy: engine.Policy{
			HoldThreshold:   cfg.Monitor.HoldThreshold,
			RealertInterval: cfg.Monitor.RealertInterval,
		},
		DecisionInterval: cfg.Monitor.DecisionInterval,
	}, log)
	analyzer := engine.NewAnalyzer(opener, clf, cfg.Monitor.IntervalStep, log)

	// 9. 服务与路由
	monitorSvc := service.NewMonitorService(runner, analyzer, clf, cfg.HTTP.TempDir, log)
	alertSvc := service.NewAlertService(alertRepo, log)
	positionSvc := service.NewPositionService(recorder, timelineRead)

	router := httpapi.NewRouter(log)
	router.RegisterMonitorRoutes(httpapi.NewMonitorHandler(monitorSvc, cfg.HTTP.MaxUploadMB<<20, log))
	router.RegisterAlertRoutes(httpapi.NewAlertHandler(alertSvc, log))
	router.RegisterPositionRoutes(httpapi.NewPositionHandler(positionSvc, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	// 10. 启动并等待信号
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	// 连接关闭后会话因写失败退出，等待其释放上传临时目录
	drainCtx, drainCancel := context.WithTimeout(context.Background(), sessionDrainTimeout)
	defer drainCancel()
	if err := monitorSvc.Wait(drainCtx); err != nil {
		log.Warn("Sessions still running at exit, temp dirs may remain",
			zap.String("temp_dir", cfg.HTTP.TempDir),
			zap.Error(err),
		)
	}
	log.Info("posture-monitor stopped")
}
