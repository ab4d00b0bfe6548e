package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/school-system/results-engine/internal/config"
	"github.com/school-system/results-engine/internal/database"
	"github.com/school-system/results-engine/internal/grading"
	"github.com/school-system/results-engine/internal/handlers"
	"github.com/school-system/results-engine/internal/history"
	"github.com/school-system/results-engine/internal/metrics"
	"github.com/school-system/results-engine/internal/middleware"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/services"
	"github.com/school-system/results-engine/internal/store"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// @title Results Computation & Audit API
// @version 1.0
// @description Marks entry, division classification, class ranking and marks history for O-Level and A-Level
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if len(os.Args) > 1 {
		handleCommand(os.Args[1])
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger := newLogger(cfg)

	st, _, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if cfg.Server.Env == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	mode, err := services.ParseEligibilityMode(cfg.Grading.EligibilityMode)
	if err != nil {
		log.Fatal("Invalid eligibility mode:", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	policies := grading.NewPolicyCache(st, cfg.Grading.PolicyTTL, logger)
	svc := handlers.Services{
		Results:      services.NewResultsService(st, policies, mode, m, logger),
		Summary:      services.NewSummaryService(st, policies, m, logger),
		Policies:     services.NewPolicyService(st, policies, logger),
		Combinations: services.NewCombinationService(st, logger),
	}

	scheduler, err := schedulePolicyRefresh(cfg.Grading.RefreshSchedule, policies, m)
	if err != nil {
		log.Fatal("Failed to schedule grading policy refresh:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, allowedOrigin := range cfg.CORS.Origins {
			if origin == allowedOrigin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "results-engine"})
	})

	// Metrics
	if cfg.Monitoring.PrometheusEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Swagger
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handlers.RegisterRoutes(r, svc, middleware.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer))

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server starting on %s (store=%s, eligibility=%s)", addr, cfg.Database.Driver, mode)
	if err := r.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Server.Env == "development" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// openStore returns the configured Store. The *gorm.DB is nil for the
// memory driver, which is seeded with the standard subjects so it is usable
// straight away.
func openStore(cfg *config.Config) (store.Store, *gorm.DB, error) {
	if cfg.Database.Driver == "memory" {
		log.Println("Using in-memory store; data is lost on restart")
		mem := store.NewMemory()
		for _, s := range standardSubjects() {
			s := s
			mem.PutSubject(&s)
		}
		return mem, nil, nil
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store.NewGorm(db), db, nil
}

// schedulePolicyRefresh keeps the policy cache warm so request paths rarely
// pay for a reload.
func schedulePolicyRefresh(spec string, policies *grading.PolicyCache, m *metrics.Metrics) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := policies.Refresh(ctx)
		m.PolicyReload(err)
		if err != nil {
			log.Printf("[POLICY-REFRESH] failed: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func handleCommand(cmd string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	st, db, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	ctx := context.Background()

	switch cmd {
	case "migrate":
		if db == nil {
			log.Println("Memory store needs no migration")
			return
		}
		if err := database.Migrate(db); err != nil {
			log.Fatal("Migration failed:", err)
		}
		log.Println("Migration completed successfully")

	case "seed-policies":
		cache := grading.NewPolicyCache(st, cfg.Grading.PolicyTTL, newLogger(cfg))
		seeded, err := services.NewPolicyService(st, cache, newLogger(cfg)).SeedDefaults(ctx)
		if err != nil {
			log.Fatal("Failed to seed grading policies:", err)
		}
		log.Printf("Seeded grading policies: %v", seeded)

	case "seed-subjects":
		if db == nil {
			log.Println("Memory store is seeded on start")
			return
		}
		seedSubjects(db)

	case "verify-history":
		failed := false
		for _, model := range []models.ResultModel{models.ResultModelOLevel, models.ResultModelALevel} {
			report, err := history.Verify(ctx, st, model)
			if err != nil {
				log.Fatalf("Verify %s failed: %v", model, err)
			}
			log.Printf("%s: %d results, %d history entries, %d drift", model, report.Results, report.Entries, len(report.Drift))
			for _, d := range report.Drift {
				log.Printf("  %s %s: %s", d.ResultID, d.Kind, d.Detail)
			}
			failed = failed || !report.OK()
		}
		if failed {
			os.Exit(1)
		}

	default:
		log.Printf("Unknown command: %s", cmd)
	}
}
