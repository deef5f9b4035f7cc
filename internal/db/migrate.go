package rewards

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate применяет миграции схемы, отдельная таблица версий
func Migrate(logger *zap.Logger, dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	if strings.Contains(dsn, "?") {
		dsn += "&x-migrations-table=rewards_schema_migrations"
	} else {
		dsn += "?x-migrations-table=rewards_schema_migrations"
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, dirty, _ := m.Version()
	logger.Info("database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
