package migration

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate brings the schema at dbURL up to the newest migration under sourceURL.
// A dirty schema is an error.
func Migrate(dbURL string, sourceURL string, verbose bool, log *zap.Logger) error {
	log = log.With(zap.String("source", sourceURL))
	log.Info("Running database migration")

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()
	m.Log = &zapLogger{sugar: log.Sugar(), verbose: verbose}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("Schema already up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	log.Info("Database schema ready", zap.Uint("version", version))

	return nil
}

// zapLogger adapts zap to migrate.Logger.
type zapLogger struct {
	sugar   *zap.SugaredLogger
	verbose bool
}

func (l *zapLogger) Printf(format string, v ...any) {
	l.sugar.Infof("migrate: "+format, v...)
}

func (l *zapLogger) Verbose() bool {
	return l.verbose
}
