package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/auth"
	"github.com/teamplan/scheduler/internal/availability"
	availabilitypg "github.com/teamplan/scheduler/internal/availability/postgres"
	"github.com/teamplan/scheduler/internal/cache"
	"github.com/teamplan/scheduler/internal/calendar"
	calendarpg "github.com/teamplan/scheduler/internal/calendar/postgres"
	"github.com/teamplan/scheduler/internal/directory"
	directorypg "github.com/teamplan/scheduler/internal/directory/postgres"
	"github.com/teamplan/scheduler/internal/event"
	eventpg "github.com/teamplan/scheduler/internal/event/postgres"
	"github.com/teamplan/scheduler/internal/notification"
	notificationpg "github.com/teamplan/scheduler/internal/notification/postgres"
	"github.com/teamplan/scheduler/internal/realtime"
	"github.com/teamplan/scheduler/internal/room"
	roompg "github.com/teamplan/scheduler/internal/room/postgres"
	"github.com/teamplan/scheduler/internal/storage"
	"github.com/teamplan/scheduler/internal/tasks"
	"github.com/teamplan/scheduler/internal/transport/rest"
	"github.com/teamplan/scheduler/internal/user"
	userpg "github.com/teamplan/scheduler/internal/user/postgres"
	"github.com/teamplan/scheduler/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Redis    *redis.Client
	Router   *chi.Mux
	Hub      *realtime.Hub
	Handlers rest.Handlers
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Redis, deps.Handlers,
		deps.Config.Server.AllowedOrigins, deps.Logger)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	if deps.Redis != nil {
		go deps.Hub.Run(hubCtx, deps.Redis)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		hubCancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Environment, config.Logging.Level)
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	rdb := initRedis(config.Redis, lg)

	files, err := storage.NewLocalStorage(config.Uploads.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload storage: %w", err)
	}

	// data access
	userRepo := userpg.NewUserRepository(gdb)
	directoryRepo := directorypg.NewDirectoryRepository(gdb)
	calendarRepo := calendarpg.NewCalendarRepository(gdb)
	calendarEvents := calendarpg.NewEventReadRepository(gdb)
	eventRepo := eventpg.NewEventRepository(gdb)
	roomRepo := roompg.NewRoomRepository(gdb)
	availabilityRepo := availabilitypg.NewAvailabilityRepository(gdb)
	notificationRepo := notificationpg.NewNotificationRepository(gdb)

	// shared infrastructure
	appCache := cache.New(rdb, lg)
	limiter := cache.NewRateLimiter(appCache)
	queue := tasks.NewRedisQueue(rdb, tasks.BackoffPolicy{
		Base:        config.Worker.BackoffBase,
		Cap:         config.Worker.BackoffCap,
		MaxAttempts: config.Worker.MaxAttempts,
	}, lg)

	// services
	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
	)
	authService := auth.NewService(userRepo, tokenGen, limiter)
	userService := user.NewService(userRepo, lg)
	userLookup := user.NewLookup(userRepo)
	directoryService := directory.NewService(directoryRepo, lg)
	roomService := room.NewService(roomRepo, userRepo, directoryService, lg)
	eventService := event.NewService(eventRepo, calendarRepo, roomService, queue, files, lg)
	availabilityService := availability.NewService(availabilityRepo, eventService, lg)
	calendarService := calendar.NewService(calendarRepo, calendarEvents, availabilityRepo, roomService, userLookup, lg)

	var publisher notification.Publisher
	if rdb != nil {
		publisher = notification.NewRedisPublisher(rdb)
	}
	notificationService := notification.NewService(notificationRepo, publisher, notification.NewHTTPPushSender(), lg)

	hub := realtime.NewHub(lg)

	handlers := rest.Handlers{
		Auth:         auth.NewHandler(authService),
		User:         user.NewHandler(userService),
		Directory:    directory.NewHandler(directoryService),
		Calendar:     calendar.NewHandler(calendarService),
		Event:        event.NewHandler(eventService),
		Room:         room.NewHandler(roomService),
		Availability: availability.NewHandler(availabilityService),
		Notification: notification.NewHandler(notificationService, userLookup),
		Realtime:     realtime.NewHandler(hub, authService, lg),
	}

	return &Dependencies{
		Config:   config,
		DB:       db,
		Redis:    rdb,
		Router:   chi.NewRouter(),
		Hub:      hub,
		Handlers: handlers,
		Logger:   lg,
	}, nil
}

// initDB opens and verifies the database connection.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initRedis returns nil when redis is unreachable; callers fall back to
// in-memory counters and skip live fan-out.
func initRedis(cfg internal.RedisConfig, lg *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		lg.Warn("redis unreachable, continuing with degraded features", "addr", cfg.Addr, "error", err)
	}
	return client
}
