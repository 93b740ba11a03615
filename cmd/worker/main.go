package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fieldline/engine/internal/queue/tasks"
	"github.com/fieldline/engine/internal/repository"
	"github.com/fieldline/engine/internal/services"
	"github.com/fieldline/engine/pkg/config"
	"github.com/fieldline/engine/pkg/database"
	"github.com/fieldline/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	workspaceRepo := repository.NewWorkspaceRepository(db)
	contactRepo := repository.NewContactRepository(db)
	dealRepo := repository.NewDealRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	automationRepo := repository.NewAutomationRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	deviationRepo := repository.NewDeviationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notifier := services.NewInAppNotifier(notificationRepo)
	learningSvc := services.NewLearningService(deviationRepo, dealRepo, userRepo, workspaceRepo, taskRepo, activityRepo, notifier)
	automationSvc := services.NewAutomationService(automationRepo, dealRepo, activityRepo, taskRepo, userRepo, workspaceRepo, notifier)
	dealSvc := services.NewDealService(services.DealServiceDeps{
		Deals:             dealRepo,
		Activities:        activityRepo,
		Users:             userRepo,
		Contacts:          contactRepo,
		Workspaces:        workspaceRepo,
		Evaluator:         automationSvc,
		Deviations:        learningSvc,
		Pricing:           learningSvc,
		Notifier:          notifier,
		AutomationTimeout: cfg.AutomationTimeout,
		DeletedRetention:  cfg.DeletedRetention,
	})
	automationSvc.BindStageMover(dealSvc)
	staleSvc := services.NewStaleJobService(dealRepo, activityRepo, userRepo, workspaceRepo, notifier, learningSvc, cfg.AutomationTimeout)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
		},
	)

	handler := tasks.NewMaintenanceTaskHandler(staleSvc, dealSvc, automationSvc, workspaceRepo)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeScanStale, handler.HandleScanStale)
	mux.HandleFunc(tasks.TypePurgeDeleted, handler.HandlePurgeDeleted)
	mux.HandleFunc(tasks.TypeCheckStaleRules, handler.HandleCheckStaleRules)
	mux.HandleFunc(tasks.TypeCheckTaskRules, handler.HandleCheckTaskRules)

	// The periodic schedule lives here rather than in cron: asynq's
	// scheduler enqueues the same task types the mux serves.
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		&asynq.SchedulerOpts{},
	)
	schedule := []struct {
		spec string
		typ  string
	}{
		{"@every 1h", tasks.TypeScanStale},
		{"@every 24h", tasks.TypePurgeDeleted},
		{"@every 6h", tasks.TypeCheckStaleRules},
		{"@every 1h", tasks.TypeCheckTaskRules},
	}
	for _, s := range schedule {
		if _, err := scheduler.Register(s.spec, asynq.NewTask(s.typ, nil)); err != nil {
			log.Fatal("failed to register scheduled task", zap.String("type", s.typ), zap.Error(err))
		}
	}

	errCh := make(chan error, 2)
	go func() {
		logger.L().Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := scheduler.Run(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.L().Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.L().Error("worker stopped with error", zap.Error(err))
	}

	scheduler.Shutdown()
	srv.Shutdown()
}
