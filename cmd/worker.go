package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal/notification"
	notificationpg "github.com/teamplan/scheduler/internal/notification/postgres"
	"github.com/teamplan/scheduler/internal/reminder"
	reminderpg "github.com/teamplan/scheduler/internal/reminder/postgres"
	"github.com/teamplan/scheduler/internal/tasks"
	"github.com/teamplan/scheduler/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the task worker pool",
	Long:  `Start the worker pool that consumes scheduling tasks and the reminder beat`,
	Run: func(cmd *cobra.Command, args []string) {
		startWorker()
	},
}

func startWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Environment, config.Logging.Level)
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	rdb := initRedis(config.Redis, lg)

	queue := tasks.NewRedisQueue(rdb, tasks.BackoffPolicy{
		Base:        config.Worker.BackoffBase,
		Cap:         config.Worker.BackoffCap,
		MaxAttempts: config.Worker.MaxAttempts,
	}, lg)

	notificationRepo := notificationpg.NewNotificationRepository(gdb)
	notificationService := notification.NewService(
		notificationRepo,
		notification.NewRedisPublisher(rdb),
		notification.NewHTTPPushSender(),
		lg,
	)

	reminderRepo := reminderpg.NewReminderRepository(gdb)
	sweeper := reminder.NewSweeper(reminderRepo, notificationService, lg)

	pool := tasks.NewPool(queue, tasks.Config{
		MaxWorkers:   config.Worker.MaxWorkers,
		JobQueueSize: config.Worker.JobQueueSize,
	}, lg)
	tasks.RegisterHandlers(pool, notificationService, sweeper)

	beat := reminder.NewBeat(queue, tasks.TypeReminderSweep, lg)

	lg.Info("starting worker pool",
		"max_workers", config.Worker.MaxWorkers,
		"job_queue_size", config.Worker.JobQueueSize,
		"max_attempts", config.Worker.MaxAttempts)

	pool.Start()
	if err := beat.Start(); err != nil {
		lg.Error("failed to start reminder beat", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lg.Info("worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	lg.Info("received signal, shutting down worker", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		beat.Stop()
		pool.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		lg.Info("worker pool shutdown complete")
	case <-ctx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}

	if err := db.Close(); err != nil {
		lg.Error("database close error", "error", err)
	}
}
