package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"debate_edu_backend/internal/config"
	"debate_edu_backend/internal/controller"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/service"
	"debate_edu_backend/pkg/cache"
	"debate_edu_backend/pkg/database"
	"debate_edu_backend/pkg/logger"
	"debate_edu_backend/pkg/monitoring"
	"debate_edu_backend/pkg/security"
	"debate_edu_backend/pkg/tracing"

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
	user         *repository.UserRepository
	session      *repository.SessionRepository
	participant  *repository.ParticipantRepository
	message      *repository.MessageRepository
	pin          *repository.PinRepository
	note         *repository.NoteRepository
	subscription *repository.SubscriptionRepository
	usage        *repository.UsageRepository
}

type services struct {
	auth         *service.AuthService
	storage      *service.StorageService
	subscription *service.SubscriptionService
	quota        *service.QuotaService
	session      *service.SessionService
	participant  *service.ParticipantService
	transcript   *service.TranscriptService
	turn         *service.TurnService
	intervention *service.InterventionService
	pin          *service.PinService
	note         *service.NoteService
	activity     *service.ActivityService
	export       *service.ExportService
	hub          *service.SessionHub
}

type controllers struct {
	auth         *controller.AuthController
	session      *controller.SessionController
	participant  *controller.ParticipantController
	message      *controller.MessageController
	intervention *controller.InterventionController
	activity     *controller.ActivityController
	subscription *controller.SubscriptionController
	ws           *controller.WSController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ReloadConfig 配置热更新回调入口，由 configwatcher 触发
func (a *App) ReloadConfig(cfg *config.Config) {
	logger.Log.Info("Configuration reloaded")
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		session:      repository.NewSessionRepository(db),
		participant:  repository.NewParticipantRepository(db),
		message:      repository.NewMessageRepository(db),
		pin:          repository.NewPinRepository(db),
		note:         repository.NewNoteRepository(db),
		subscription: repository.NewSubscriptionRepository(db),
		usage:        repository.NewUsageRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	appCache := cache.New()

	s.hub = service.NewSessionHub(rdb)
	go s.hub.Run()

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.subscription = service.NewSubscriptionService(repos.subscription, repos.usage, appCache)
	s.quota = service.NewQuotaService(s.subscription, repos.usage, repos.participant)
	s.session = service.NewSessionService(repos.session, repos.participant, s.hub, s.quota)
	s.participant = service.NewParticipantService(repos.session, repos.participant, s.hub)
	s.transcript = service.NewTranscriptService(repos.session, repos.participant, repos.message)

	var generator service.ReplyGenerator
	if cfg.AI.APIKey != "" {
		generator = service.NewAIService(cfg.AI)
	} else {
		logger.Log.Warn("AI API key not configured, using canned reply generator")
		generator = &service.CannedGenerator{ChunkDelay: 200 * time.Millisecond}
	}
	s.turn = service.NewTurnService(repos.session, repos.participant, repos.message, s.hub, s.quota, generator)

	s.intervention = service.NewInterventionService(repos.session, repos.participant, repos.message, s.hub)
	s.pin = service.NewPinService(repos.session, repos.message, repos.pin, s.hub)
	s.note = service.NewNoteService(repos.session, repos.participant, repos.note, s.hub)

	s.activity = service.NewActivityService(repos.participant, repos.message, appCache)
	s.activity.Bind(s.hub)

	s.export = service.NewExportService(repos.session, repos.participant, repos.message, repos.pin, s.subscription, s.storage)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		session:      controller.NewSessionController(s.session, s.export),
		participant:  controller.NewParticipantController(s.participant, s.note),
		message:      controller.NewMessageController(s.turn, s.transcript),
		intervention: controller.NewInterventionController(s.intervention, s.pin),
		activity:     controller.NewActivityController(s.activity),
		subscription: controller.NewSubscriptionController(s.subscription, s.quota),
		ws:           controller.NewWSController(s.hub, s.session, s.participant, s.transcript),
		health:       controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 6000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg.Server.Mode)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.ForceMigrate || cfg.MigrateOnly {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		if cfg.MigrateOnly {
			log.Println("Migration completed, exiting")
			os.Exit(0)
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 不可用时退化为单实例本地广播
		logger.Log.Warn("Redis unavailable, realtime fan-out limited to this instance", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	svcs := app.initServices(repos, cfg, rdb)
	app.services = svcs
	ctrls := app.initControllers(svcs, db, rdb)

	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("debate-platform", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, ctrls, repos, cfg)

	if cfg.Storage.Type == "local" && cfg.Storage.LocalPath != "" {
		router.Static("/exports", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.services != nil {
		a.services.activity.StopAll()
		a.services.hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Log.Sync()
	log.Println("Server exiting")
}
