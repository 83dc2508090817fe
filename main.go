package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tournament-wallet-system/handlers"
	"tournament-wallet-system/middleware"
	"tournament-wallet-system/models"
	"tournament-wallet-system/services"
	"tournament-wallet-system/utils"
	"tournament-wallet-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Session-Token, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Account{},
		&models.Transaction{},
		&models.Tournament{},
		&models.Participation{},
		&models.WithdrawalRequest{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	walletService := services.NewWalletService(db)
	participationService := services.NewParticipationService(db, walletService)
	tournamentService := services.NewTournamentService(db, walletService)

	payoutServiceURL := os.Getenv("PAYOUT_SERVICE_URL")
	if payoutServiceURL == "" {
		log.Fatal("PAYOUT_SERVICE_URL environment variable not set")
	}
	walletServiceToken := os.Getenv("WALLET_SERVICE_TOKEN")
	if walletServiceToken == "" {
		log.Fatal("WALLET_SERVICE_TOKEN environment variable not set")
	}
	payoutClient := services.NewPayoutClient(payoutServiceURL, walletServiceToken)
	withdrawalService := services.NewWithdrawalService(db, walletService, payoutClient)

	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accountSyncWorker := workers.NewAccountSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", walletServiceToken)
	accountSyncWorker.Start(ctx)

	reconciliationWorker := workers.NewReconciliationWorker(db, walletService, participationService)
	reconciliationWorker.Start(ctx)

	withdrawalProcessor := workers.NewWithdrawalProcessorWorker(withdrawalService)
	withdrawalProcessor.Start(ctx)

	ledgerExportWorker := workers.NewLedgerExportWorker(db)
	ledgerExportWorker.Start(ctx)

	tournamentService.StartLifecycleScheduler()

	// ✅ Setup routes — enforced Gateway auth, user context from headers.
	// Tournament routes go first: their public reads must be registered
	// before any group mounts the user-context middleware at "/".
	handlers.SetupTournamentRoutes(app, tournamentService, participationService)
	handlers.SetupWalletRoutes(app, walletService)
	handlers.SetupWithdrawalRoutes(app, withdrawalService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Account Sync Worker running")
	log.Println("✅ Reconciliation Worker running")
	log.Println("✅ Withdrawal Processor running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
