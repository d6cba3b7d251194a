package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plagiarism_backend/internal/config"
	"plagiarism_backend/internal/controller"
	"plagiarism_backend/internal/repository"
	"plagiarism_backend/internal/service"
	"plagiarism_backend/pkg/database"
	"plagiarism_backend/pkg/logger"
	"plagiarism_backend/pkg/monitoring"
	"plagiarism_backend/pkg/security"
	"plagiarism_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	exercise   *repository.ExerciseRepository
	submission *repository.SubmissionRepository
	result     *repository.PlagiarismResultRepository
	comparison *repository.PlagiarismComparisonRepository
	plagCase   *repository.PlagiarismCaseRepository
}

type services struct {
	auth              *service.AuthService
	storage           *service.StorageService
	report            *service.ReportService
	cleanup           *service.CleanupService
	guard             *service.PlagiarismCacheService
	notification      *service.NotificationService
	plagCase          *service.CaseService
	programming       *service.ProgrammingDetectionService
	plagiarism        *service.PlagiarismService
	continuousControl *service.ContinuousControlService
}

type controllers struct {
	auth       *controller.AuthController
	plagiarism *controller.PlagiarismController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ReloadConfig 配置文件热更新入口，由 configwatcher 触发
func (a *App) ReloadConfig(cfg *config.Config) {
	a.Config = cfg
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
	logger.Log.Info("configuration reloaded")
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		exercise:   repository.NewExerciseRepository(db),
		submission: repository.NewSubmissionRepository(db),
		result:     repository.NewPlagiarismResultRepository(db),
		comparison: repository.NewPlagiarismComparisonRepository(db),
		plagCase:   repository.NewPlagiarismCaseRepository(db),
	}
}

// progressLogger 把检测进度写进结构化日志
type progressLogger struct{}

func (progressLogger) OnProgress(exerciseID uint, message string) {
	logger.Log.Info("plagiarism check progress",
		zap.Uint("exerciseId", exerciseID),
		zap.String("message", message))
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.report = service.NewReportService(s.storage)
	s.cleanup = service.NewCleanupService(10 * time.Second)
	s.guard = service.NewPlagiarismCacheService(service.NewRedisActiveCheckStore(rdb, 0))
	s.notification = service.NewNotificationService(repos.plagCase, nil, cfg.Plagiarism.PolicyURL)
	s.plagCase = service.NewCaseService(repos.plagCase, repos.comparison, repos.user, s.notification)

	observer := progressLogger{}
	s.programming = service.NewProgrammingDetectionService(
		repos.submission,
		repos.result,
		nil, // 默认 git 客户端
		nil, // 默认按配置命令运行外部工具
		s.cleanup,
		s.report,
		observer,
		cfg.Plagiarism,
	)
	s.plagiarism = service.NewPlagiarismService(
		repos.exercise,
		repos.submission,
		repos.result,
		s.guard,
		s.programming,
		observer,
		cfg.Plagiarism,
	)
	s.continuousControl = service.NewContinuousControlService(
		repos.exercise,
		s.plagiarism,
		s.plagCase,
		repos.result,
		cfg.ContinuousControl.Interval,
	)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		plagiarism: controller.NewPlagiarismController(s.plagiarism, s.plagCase, s.continuousControl),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	s.cleanup.Start()
	if a.Config.ContinuousControl.Enabled {
		s.continuousControl.Start(context.Background())
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("plagiarism-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	// 工作副本下载根目录
	if _, err := os.Stat(cfg.Plagiarism.ClonePath); os.IsNotExist(err) {
		os.MkdirAll(cfg.Plagiarism.ClonePath, os.ModePerm)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停周期检测和清理队列，别让半轮检测悬在关闭中的进程里
	if a.services != nil {
		if a.Config.ContinuousControl.Enabled {
			a.services.continuousControl.Stop()
		}
		a.services.cleanup.Stop()
	}

	// 关闭服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
