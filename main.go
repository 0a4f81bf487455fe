package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pfmp/config"
	authController "pfmp/controllers/auth"
	conventionController "pfmp/controllers/convention"
	missionOrderController "pfmp/controllers/missionOrder"
	verifyController "pfmp/controllers/verify"
	"pfmp/database"
	pfmpLogger "pfmp/logger"
	"pfmp/middleware"
	authRoutes "pfmp/routers/authRoutes"
	conventionRoutes "pfmp/routers/conventionRoutes"
	missionOrderRoutes "pfmp/routers/missionOrderRoutes"
	verifyRoutes "pfmp/routers/verifyRoutes"
	"pfmp/services/audit"
	"pfmp/services/convention"
	"pfmp/services/missionOrder"
	"pfmp/services/otp"
	"pfmp/services/ratelimit"
	"pfmp/services/scheduler"
	"pfmp/services/verification"
	"pfmp/signature"
	"pfmp/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	pfmpLogger.Init(cfg.LogLevel, cfg.LogFormat)

	db := database.ConnectDb(cfg.DatabaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := signature.NewSigner(cfg.SignatureSecret, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Signer: %v", err)
	}

	mailer := utils.NewMailer(cfg)

	var blobs utils.BlobStore
	minioStore, err := utils.NewMinioStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Object storage: %v", err)
	}
	if minioStore != nil {
		blobs = minioStore
	}

	policies, err := ratelimit.LoadPolicies(cfg.RateLimitPolicyFile)
	if err != nil {
		log.Fatalf("Rate limit policies: %v", err)
	}
	limiter := ratelimit.NewLimiter(policies, ratelimit.NewGormCounter(db))

	auditLog := audit.NewLog(db)
	gate := otp.NewGate(db, mailer, auditLog, cfg.OTPTTL)
	conventions := convention.NewService(db, gate, auditLog, signer, mailer, convention.Options{
		PublicBaseURL:        cfg.PublicBaseURL,
		ReminderInitialDelay: cfg.ReminderInitialDelay,
		ReminderInterval:     cfg.ReminderInterval,
	})
	missionOrders := missionOrder.NewService(db, utils.NewAddressAPI(cfg.GeocoderURL), blobs, missionOrder.Options{
		MaxKm: cfg.MissionOrderMaxKm,
		Async: true,
	})
	verifier := verification.NewVerifier(signer)

	app := fiber.New(fiber.Config{
		AppName:      "pfmp-conventions",
		BodyLimit:    8 * 1024 * 1024, // signature images travel as data URLs
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestContext())

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	allowOrigins := "*"
	if len(cfg.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE",  // Allowed HTTP methods
		AllowHeaders: "Content-Type,Authorization", // Allowed headers
	}))
	app.Use(middleware.OriginGuard(cfg.AllowedOrigins))

	app.Get("/health", func(c *fiber.Ctx) error {
		return middleware.JsonResponse(c, fiber.StatusOK, true, "OK", nil)
	})

	authRoutes.SetupAuthRoutes(app, authController.NewHandler(gate, conventions), limiter)
	conventionRoutes.SetupConventionRoutes(app, conventionController.NewHandler(conventions), limiter)
	missionOrderRoutes.SetupMissionOrderRoutes(app, missionOrderController.NewHandler(missionOrders))
	verifyRoutes.SetupVerifyRoutes(app, verifyController.NewHandler(verifier, conventions))

	jobs, err := scheduler.Start(ctx, scheduler.Jobs{
		Reminders: conventions,
		Codes:     gate,
		Batches:   missionOrders,
	}, time.Local)
	if err != nil {
		log.Fatalf("Scheduler: %v", err)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		<-jobs.Stop().Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("http shutdown", "error", err)
		}
	}()

	slog.Info("server is running", "port", cfg.Port, "env", cfg.AppEnv)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	missionOrders.Wait()
}
