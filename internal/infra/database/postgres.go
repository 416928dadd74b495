package database

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/totegamma/portfolio/internal/infra/database/models"
)

// gormWriter routes gorm's SQL log lines into zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warn().Str("component", "gorm").Msgf(format, args...)
}

func newGormLogger(log zerolog.Logger) logger.Interface {
	return logger.New(
		gormWriter{log: log},
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)
}

func NewPostgres(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "postgres pool")
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates the case study, version ledger and search projection tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.CaseStudy{},
		&models.CaseStudyVersion{},
		&models.SearchEntry{},
	)
	if err != nil {
		return errors.Wrap(err, "auto migrate")
	}

	// at most one current snapshot per case study
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uniq_case_study_current_version
		ON case_study_versions (case_study_id) WHERE is_current`).Error
	if err != nil {
		return errors.Wrap(err, "create current version index")
	}

	if db.Dialector.Name() == "postgres" {
		err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_search_entries_vector
			ON search_entries USING GIN (to_tsvector('simple', search_vector))`).Error
		if err != nil {
			return errors.Wrap(err, "create search vector index")
		}
	}

	return nil
}
