package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(false)
	if err != nil {
		return err
	}

	db, closeDB, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	if cfg.Chat.Store != "cassandra" {
		return nil
	}

	session, err := repository.NewCassandraSession(cfg.Cassandra)
	if err != nil {
		return fmt.Errorf("connect cassandra: %w", err)
	}
	repo := repository.NewCassandraMessageRepository(session)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("cassandra schema: %w", err)
	}
	logger.Info().Str("keyspace", cfg.Cassandra.Keyspace).Msg("cassandra schema ensured")
	return nil
}
