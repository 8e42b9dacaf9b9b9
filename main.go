package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rps-arena/archive"
	"rps-arena/config"
	"rps-arena/escrow"
	"rps-arena/handlers"
	"rps-arena/services"
	"rps-arena/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	gateway, err := escrow.Dial(ctx, cfg.Escrow)
	if err != nil {
		log.Fatal("failed to configure escrow:", err)
	}
	if !gateway.Configured() {
		log.Println("⚠️  Escrow not configured, matches are played without on-chain stakes")
	}

	clock := clockwork.NewRealClock()
	hub := handlers.NewHub()
	auth := services.NewAuthService(st)
	pairing := services.NewPairingService(st, gateway, clock, cfg.Game.DepositTimeout, cfg.Escrow.Address)
	matches := services.NewMatchService(st, gateway, hub, clock, cfg.Game)
	defer matches.Close()

	if cfg.Archive.Enabled() {
		arc, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			log.Fatal("failed to initialize match archive:", err)
		}
		matches.SetArchiver(arc)
		log.Printf("✅ Archiving finished matches to bucket %s", cfg.Archive.Bucket)
	}

	sched, err := matches.StartSweeps(ctx, cfg.Game.RoundSweepInterval, cfg.Game.DepositSweepInterval)
	if err != nil {
		log.Fatal("failed to start sweeps:", err)
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Printf("Scheduler shutdown: %v", err)
		}
	}()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	allowedOrigins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins = append(allowedOrigins, origin)
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOrigins, ","),
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       86400,
	}))

	ws := handlers.NewWSHandler(hub, auth, pairing, matches)
	handlers.SetupRoutes(app, hub, auth, matches, ws)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%d", cfg.Port)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(allowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}
