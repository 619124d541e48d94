package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/config"
	"github.com/formfill/formfill/internal/domain/catalog"
	"github.com/formfill/formfill/internal/domain/mapping"
	"github.com/formfill/formfill/internal/domain/metrics"
	"github.com/formfill/formfill/internal/domain/resolution"
	"github.com/formfill/formfill/internal/platform/aimap"
	"github.com/formfill/formfill/internal/platform/db"
	"github.com/formfill/formfill/internal/platform/middleware"
	"github.com/formfill/formfill/internal/platform/ocr"
	"github.com/formfill/formfill/internal/platform/templatemeta"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "formfill-server",
		Short: "Field resolution and mapping API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the resolution API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

// seedCmd registers a demo template with a curated mapping set so a fresh
// deployment has something to resolve against.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo template and mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := mapping.NewService(mapping.NewRepoPG(pool))
			title := "Demo Wound Care Prior Authorization"
			tmpl := &mapping.Template{
				ID:           "demo-wound-care-v1",
				Manufacturer: "demo",
				DocumentType: "prior_auth",
				Title:        &title,
			}
			if err := svc.RegisterTemplate(ctx, tmpl); err != nil {
				return fmt.Errorf("register demo template: %w", err)
			}

			seeds := map[string]string{
				"Patient Name":      "patient_name",
				"Date of Birth":     "patient_dob",
				"Medical Record #":  "patient_mrn",
				"Physician Name":    "provider_name",
				"Physician NPI":     "provider_npi",
				"Wound Location":    "wound_location",
				"Wound Length (cm)": "wound_length_cm",
				"Wound Width (cm)":  "wound_width_cm",
				"Product Code":      "product_code",
				"Date of Service":   "service_date",
				"Insurance Carrier": "insurance_carrier",
				"Policy Number":     "insurance_policy_number",
			}
			for external, system := range seeds {
				if err := svc.Upsert(ctx, tmpl.ID, external, system, mapping.SourceManual, 1.0, false); err != nil {
					return fmt.Errorf("seed mapping %q: %w", external, err)
				}
			}

			fmt.Printf("Seeded template %s with %d mappings.\n", tmpl.ID, len(seeds))
			return nil
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	e.Use(middleware.BodyLimit("1M", "16M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeoutSecs) * time.Second))
	e.Use(middleware.Audit(logger))

	// Mapping store and service
	repo := mapping.NewRepoPG(pool)
	mappingSvc := mapping.NewService(repo)
	mappingSvc.SetTrustedConfidence(cfg.TrustedConfidence)

	// Optional upstream adapters
	var fetcher *templatemeta.Fetcher
	if cfg.TemplateMetaURL != "" {
		fetcher = templatemeta.New(cfg.TemplateMetaURL, cfg.InventoryTTL(), logger)
		logger.Info().Str("url", cfg.TemplateMetaURL).Msg("template-metadata service configured")
	}

	// Resolution engine
	recorder := metrics.NewRecorder()
	engine := resolution.NewEngine(mappingSvc, catalog.Default(), logger)
	engine.SetRecorder(recorder)
	if fetcher != nil {
		engine.SetInventoryFetcher(fetcher)
	}
	if cfg.AIMapperURL != "" {
		engine.SetAssistant(aimap.NewHTTPAssistant(cfg.AIMapperURL, cfg.AITimeout(), logger))
		logger.Info().Str("url", cfg.AIMapperURL).Msg("AI mapping service configured")
	}
	if cfg.OCRServiceURL != "" {
		engine.SetDetector(ocr.NewHTTPDetector(cfg.OCRServiceURL, cfg.OCRTimeout(), logger))
		logger.Info().Str("url", cfg.OCRServiceURL).Msg("OCR service configured")
	}

	// API routes
	api := e.Group("/api")
	mapping.NewHandler(mappingSvc, fetcher).RegisterRoutes(api)
	resolution.NewHandler(engine).RegisterRoutes(api)
	metrics.NewHandler(recorder).RegisterRoutes(api)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
