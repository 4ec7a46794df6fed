package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tikuhub/qbank/internal/compose"
	"github.com/tikuhub/qbank/internal/config"
	"github.com/tikuhub/qbank/internal/db"
	"github.com/tikuhub/qbank/internal/logger"
	"github.com/tikuhub/qbank/internal/pdf"
	"github.com/tikuhub/qbank/internal/repository"
	"github.com/tikuhub/qbank/internal/service"
	"github.com/tikuhub/qbank/internal/storage"
	"github.com/tikuhub/qbank/internal/worker"
)

type App struct {
	Cfg                    *config.Config
	DB                     *sqlx.DB
	JobRepository          repository.GenerationJobRepository
	AuthService            *service.AuthService
	DownloadService        *service.DownloadService
	GenerationService      *service.GenerationService
	DownloadRequestService *service.DownloadRequestService
	Worker                 *worker.Worker
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	a, err := wire(cfg, database)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *config.Config, database *sqlx.DB) (*App, error) {
	// Repositories
	userRepository := repository.NewUserRepository(database)
	catalogRepository := repository.NewCatalogRepository(database)
	questionRepository := repository.NewQuestionRepository(database)
	recordRepository := repository.NewDownloadRecordRepository(database)
	jobRepository := repository.NewGenerationJobRepository(database)
	orderRepository := repository.NewOrderRepository(database)
	membershipRepository := repository.NewMembershipRepository(database)
	downloadedRepository := repository.NewDownloadedQuestionRepository(database)

	// Storage
	files, err := storage.NewLocal(cfg.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize download directory: %v", err)
	}
	mirror, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	}

	// Services
	authService := service.NewAuthService(userRepository, cfg.JWTSecret, cfg.JWTExpiry, cfg.IsProduction())
	downloadService := service.NewDownloadService(recordRepository, jobRepository, files, mirror, cfg.DownloadTTL)
	generationService := service.NewGenerationService(jobRepository, nil, cfg.JobMaxAttempts)
	namingService := service.NewNamingService(userRepository, catalogRepository, cfg.NamingCacheTTL)
	membershipService := service.NewMembershipService(membershipRepository)
	downloadRequestService := service.NewDownloadRequestService(
		questionRepository,
		orderRepository,
		downloadedRepository,
		membershipService,
		downloadService,
		generationService,
	)

	// Generation pipeline
	compositor := compose.NewCompositor(compose.Layout{
		PageWidth:  cfg.PageWidthPx,
		PageHeight: cfg.PageHeightPx,
		Gap:        cfg.PageGapPx,
		Numbering:  cfg.NumberQuestions,
	}, cfg.TempDir, logger.Component("compositor"))
	assembler := pdf.NewAssembler(pdf.A4(cfg.PDFTopMargin), logger.Component("assembler"))
	pipeline := worker.NewPacketPipeline(
		questionRepository,
		namingService,
		compositor,
		assembler,
		files,
		mirror,
		cfg.UploadDir,
	)

	w := worker.New(jobRepository, pipeline, worker.Config{
		PollInterval:  cfg.WorkerPollInterval,
		JobTimeout:    cfg.JobTimeout,
		WatchdogGrace: worker.DefaultConfig().WatchdogGrace,
	})
	generationService.SetNotifier(w)

	return &App{
		Cfg:                    cfg,
		DB:                     database,
		JobRepository:          jobRepository,
		AuthService:            authService,
		DownloadService:        downloadService,
		GenerationService:      generationService,
		DownloadRequestService: downloadRequestService,
		Worker:                 w,
	}, nil
}

// NewWithDB wires an App on an already migrated database.
func NewWithDB(cfg *config.Config, database *sqlx.DB) (*App, error) {
	return wire(cfg, database)
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
