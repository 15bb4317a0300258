package container

import (
	"context"
	"math/rand"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/application/services"
	"github.com/Tom-Bini/manus-bridge-bot/internal/blockchain/evm"
	"github.com/Tom-Bini/manus-bridge-bot/internal/bridge"
	"github.com/Tom-Bini/manus-bridge-bot/internal/config"
	"github.com/Tom-Bini/manus-bridge-bot/internal/crypto"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	domainRepos "github.com/Tom-Bini/manus-bridge-bot/internal/domain/repositories"
	"github.com/Tom-Bini/manus-bridge-bot/internal/infrastructure/database/repositories"
	"github.com/Tom-Bini/manus-bridge-bot/internal/notification"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	DB     *gorm.DB

	// Repositories
	WalletRepo   domainRepos.WalletRepository
	TransferRepo domainRepos.TransferRepository
	ScheduleRepo domainRepos.ScheduleEntryRepository

	// Bridge stack
	EVMClient  *evm.Client
	Registry   *bridge.Registry
	Aggregator *bridge.Aggregator

	// Services
	WalletService    *services.WalletService
	SchedulerService *services.SchedulerService
	Dispatcher       *services.Dispatcher
	Notifier         notification.Notifier
}

// NewContainer creates a new container with all dependencies
func NewContainer(logger *zap.Logger) (*Container, error) {
	// Load configuration
	cfg := config.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := config.ResolvePassphrase(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to resolve wallet passphrase")
	}

	// Initialize database
	db, err := config.NewDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&entities.Wallet{},
		&entities.WalletBalance{},
		&entities.Transfer{},
		&entities.ScheduleEntry{},
	); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	// Initialize repositories
	walletRepo := repositories.NewWalletRepository(db)
	transferRepo := repositories.NewTransferRepository(db)
	scheduleRepo := repositories.NewScheduleEntryRepository(db)

	// Initialize crypto box and chain client
	cryptoBox, err := crypto.NewAESCrypto(cfg.Crypto.Passphrase)
	if err != nil {
		return nil, err
	}
	evmClient := evm.NewClient(cfg.Chains)

	// Initialize bridge providers
	registry := bridge.NewRegistry(
		bridge.NewJumper(cfg.Bridge.JumperAPIURL, cfg.Bridge.JumperAPIKey, evmClient),
		bridge.NewStargate(evmClient),
		bridge.NewRelay(cfg.Bridge.RelayAPIURL, cfg.Bridge.RelayAPIKey, evmClient),
	)
	aggregator := bridge.NewAggregator(registry, logger, cfg.Bridge.QuoteTimeout, cfg.Bridge.MaxAttempts)

	// Initialize notifier; missing telegram credentials fall back to nop
	var notifier notification.Notifier
	telegramNotifier, err := notification.NewTelegramNotifier(
		cfg.Notification.Telegram.BotToken,
		cfg.Notification.Telegram.ChatID,
		logger,
	)
	if err != nil {
		logger.Warn("Telegram notifications disabled", zap.Error(err))
		notifier = notification.NopNotifier{}
	} else {
		notifier = telegramNotifier
	}

	// Initialize services
	walletService := services.NewWalletService(walletRepo, scheduleRepo, cryptoBox, evmClient, logger)
	schedulerService := services.NewSchedulerService(
		cfg.Scheduler,
		walletService,
		aggregator,
		transferRepo,
		scheduleRepo,
		notifier,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		logger,
	)
	dispatcher := services.NewDispatcher(schedulerService, logger)

	return &Container{
		Config: cfg,
		DB:     db,

		WalletRepo:   walletRepo,
		TransferRepo: transferRepo,
		ScheduleRepo: scheduleRepo,

		EVMClient:  evmClient,
		Registry:   registry,
		Aggregator: aggregator,

		WalletService:    walletService,
		SchedulerService: schedulerService,
		Dispatcher:       dispatcher,
		Notifier:         notifier,
	}, nil
}
