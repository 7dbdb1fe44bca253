package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"substock/internal/core/config"
	"substock/internal/core/container"
	"substock/internal/core/logger"
	"substock/internal/core/routes"
	"substock/internal/database"
	"substock/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags "-X substock/cmd.Version=...".
var Version = "dev"

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run migrations manually.",
	Long:  `Applies every pending migration from --dir against DATABASE_URL and exits.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := logger.NewLogger(cfg.Env)
		defer log.Sync()

		migrationDir, _ := cmd.Flags().GetString("dir")
		if migrationDir == "" {
			migrationDir = cfg.MigrationsDir
		}

		if err := database.RunMigrations(cfg.DatabaseURL, migrationDir, log); err != nil {
			log.Error("Migration failed", zap.Error(err))
			return fmt.Errorf("migrate database: %w", err)
		}

		return nil
	},
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the substock HTTP API.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := logger.NewLogger(cfg.Env)
		defer log.Sync()

		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := database.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		log.Info("Connected to the database")

		if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
			if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir, log); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}

		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}

		middleware.SetVersion(Version)
		appContainer := container.NewAppContainer(ctx, db, cfg, log)

		router := gin.New()
		router.Use(
			middleware.RequestLogger(log),
			middleware.RecoveryMiddleware(log),
			middleware.TimeoutMiddleware(cfg.RequestTimeout),
		)
		routes.RegisterUtilityRoutes(router, db)
		limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
		go limiter.Run(ctx)
		routes.RegisterProtectedRoutes(router, appContainer, []byte(cfg.JWTSecret), limiter)

		server := &http.Server{
			Addr:              cfg.Host,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			log.Info("Starting server", zap.String("addr", cfg.Host), zap.String("env", cfg.Env))
			serveErr <- server.ListenAndServe()
		}()

		select {
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func Execute(ctx context.Context) {
	rootCmd := &cobra.Command{
		Use:     "substock",
		Short:   "Hospital drug inventory service",
		Version: Version,
	}
	MigrateCmd.Flags().String("dir", "", "Directory containing the migration files (defaults to MIGRATIONS_DIR)")
	ServeCmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	rootCmd.AddCommand(MigrateCmd, ServeCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
