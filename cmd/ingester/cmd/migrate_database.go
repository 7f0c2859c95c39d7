package cmd

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jobfeed/jobfeed/internal/common/database"
	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
	"github.com/jobfeed/jobfeed/internal/store/postgres"
)

func migrateDbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrateDatabase",
		Short: "migrates the posting database to the latest version",
		RunE:  migrateDatabase,
	}
	return cmd
}

func migrateDatabase(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := feedcontext.WithTimeout(feedcontext.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	log.Info("Beginning posting database migration")
	db, err := database.OpenPgxPool(ctx, config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "Failed to connect to database")
	}
	defer db.Close()

	migrations, err := postgres.Migrations()
	if err != nil {
		return err
	}
	if err := database.UpdateDatabase(ctx, db, migrations); err != nil {
		return errors.WithMessage(err, "Failed to migrate posting database")
	}
	log.Infof("Posting database migrated in %s", time.Since(start))
	return nil
}
