package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"referral-ledger-system/handlers"
	"referral-ledger-system/middleware"
	"referral-ledger-system/models"
	"referral-ledger-system/services"
	"referral-ledger-system/utils"
	"referral-ledger-system/workers"

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

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB — this service only moves JSON
	})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
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
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, X-User-ID, X-User-Roles, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.InviteCode{},
		&models.InviteRegistration{},
		&models.InviteStats{},
		&models.ShareStats{},
		&models.CreditRecord{},
		&models.CreditUsage{},
		&models.UserCreditBalance{},
		&models.RewardRule{},
		&models.RewardActivity{},
		&models.RewardApproval{},
		&models.InviteEventLog{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	creditService := services.NewCreditService(db)
	rewardService := services.NewRewardService(db, creditService)
	inviteCodeService := services.NewInviteCodeService(db)
	statsService := services.NewStatsService(db)
	registrationService := services.NewRegistrationService(db, inviteCodeService, statsService, rewardService)

	if err := rewardService.EnsureDefaultRules(); err != nil {
		log.Fatal("failed to seed reward rules:", err)
	}
	if err := rewardService.ReloadRules(); err != nil {
		log.Fatal("failed to load reward rules:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statsWorker := workers.NewStatsRefreshWorker(db, statsService, 256)
	registrationService.SetStatsQueue(statsWorker.Queue())
	go statsWorker.Start(ctx)

	// Stats snapshots need R2 credentials; skip the worker when they are absent
	if os.Getenv("CLOUDFLARE_ACCOUNT_ID") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		go workers.PollStatsSnapshots(ctx, db, 1*time.Hour)
		log.Println("✅ Stats snapshot uploads enabled (hourly)")
	} else {
		log.Println("⚠️  CLOUDFLARE_ACCOUNT_ID not set — stats snapshot uploads disabled")
	}

	services.StartMaintenanceScheduler(creditService, rewardService)

	handlers.SetupInviteRoutes(app, inviteCodeService, registrationService, statsService)
	handlers.SetupCreditRoutes(app, creditService)
	handlers.SetupRewardRoutes(app, rewardService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Invite stats refresh worker running")
	log.Println("✅ Maintenance scheduler running (hourly sweep, 5m rule reload)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
