// Command trainer runs the batch side of seasonrec: model training,
// interaction rebuilds and similarity refreshes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/temcen/seasonrec/internal/app"
	"github.com/temcen/seasonrec/internal/config"
	"github.com/temcen/seasonrec/internal/database"
	"github.com/temcen/seasonrec/internal/services"
	"github.com/temcen/seasonrec/pkg/models"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "trainer",
		Short:         "Batch jobs for the seasonal recommendation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Fit both models, persist the snapshot and refresh similarities",
		RunE:  runTrain,
	}
	trainCmd.Flags().Duration("timeout", 0, "Training timeout (default from training.timeout)")
	rootCmd.AddCommand(trainCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "rebuild-interactions",
		Short: "Rebuild review and purchase interactions from the catalog",
		RunE:  runRebuildInteractions,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "similarities",
		Short: "Recompute the product similarity table",
		RunE:  runSimilarities,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the tables the service owns",
		RunE:  runMigrate,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the model status as JSON",
		RunE:  runStatus,
	})

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		RunE:  runToken,
	}
	tokenCmd.Flags().String("role", models.RoleAdmin, "Token role")
	tokenCmd.Flags().String("user", "", "User ID (random when empty)")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default from auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withServices loads the configuration, connects and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func withServices(configure func(*config.Config), fn func(ctx context.Context, svc *services.Services, logger *logrus.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if configure != nil {
		configure(cfg)
	}
	logger := app.NewLogger(cfg.Logging)

	db, err := database.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	svc, err := services.New(cfg, logger, db, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, svc, logger)
}

func runTrain(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	configure := func(cfg *config.Config) {
		if timeout > 0 {
			cfg.Training.Timeout = timeout
		}
	}
	return withServices(configure, func(ctx context.Context, svc *services.Services, logger *logrus.Logger) error {
		result, err := svc.Training.Retrain(ctx)
		if err != nil {
			return fmt.Errorf("training failed: %w", err)
		}
		return printJSON(result)
	})
}

func runRebuildInteractions(cmd *cobra.Command, args []string) error {
	return withServices(nil, func(ctx context.Context, svc *services.Services, logger *logrus.Logger) error {
		result, err := svc.UserInteraction.RebuildFromCatalog(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)
	})
}

func runSimilarities(cmd *cobra.Command, args []string) error {
	return withServices(nil, func(ctx context.Context, svc *services.Services, logger *logrus.Logger) error {
		n, err := svc.Similarity.Rebuild(ctx)
		if err != nil {
			return err
		}
		logger.WithField("pairs", n).Info("Product similarities rebuilt")
		return nil
	})
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := app.NewLogger(cfg.Logging)

	db, err := database.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return database.EnsureSchema(cmd.Context(), db.PG, logger)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withServices(nil, func(ctx context.Context, svc *services.Services, logger *logrus.Logger) error {
		return printJSON(svc.RecommendationOrchestrator.ModelStatus(ctx))
	})
}

func runToken(cmd *cobra.Command, args []string) error {
	role, _ := cmd.Flags().GetString("role")
	rawUser, _ := cmd.Flags().GetString("user")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	userID := uuid.New()
	if rawUser != "" {
		if userID, err = uuid.Parse(rawUser); err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
	}

	auth := services.NewAuthService(cfg.Auth.JWTSecret, ttl, app.NewLogger(cfg.Logging))
	token, err := auth.GenerateToken(userID, role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
