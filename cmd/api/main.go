package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/engine/internal/api"
	"github.com/fieldline/engine/internal/api/handlers"
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

	log.Info("starting fieldline engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	log.Info("database connected")

	userRepo := repository.NewUserRepository(db)
	workspaceRepo := repository.NewWorkspaceRepository(db)
	contactRepo := repository.NewContactRepository(db)
	dealRepo := repository.NewDealRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	automationRepo := repository.NewAutomationRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	deviationRepo := repository.NewDeviationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

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

	activitySvc := services.NewActivityService(activityRepo, dealRepo, contactRepo)
	taskSvc := services.NewTaskService(taskRepo, dealRepo, contactRepo)
	staleSvc := services.NewStaleJobService(dealRepo, activityRepo, userRepo, workspaceRepo, notifier, learningSvc, cfg.AutomationTimeout)

	router := api.NewRouter(api.Dependencies{
		HMACSecret: jwtSecret,
		Users:      userRepo,

		AuthHandler:          handlers.NewAuthHandler(userRepo, workspaceRepo, jwtSecret),
		DealsHandler:         handlers.NewDealsHandler(dealSvc),
		ContactsHandler:      handlers.NewContactsHandler(contactRepo),
		ActivitiesHandler:    handlers.NewActivitiesHandler(activitySvc),
		AutomationsHandler:   handlers.NewAutomationsHandler(automationSvc),
		TasksHandler:         handlers.NewTasksHandler(taskSvc),
		StaleJobsHandler:     handlers.NewStaleJobsHandler(staleSvc),
		DeviationsHandler:    handlers.NewDeviationsHandler(learningSvc),
		NotificationsHandler: handlers.NewNotificationsHandler(notificationRepo),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
