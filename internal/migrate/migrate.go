package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"elearning/migrations"
)

// Runner applies the embedded schema to a Postgres database.
type Runner struct {
	db     *sql.DB
	m      *migrate.Migrate
	logger *zap.Logger
}

func Open(databaseURL string, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating migrate driver: %w", err)
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return &Runner{db: db, m: m, logger: logger}, nil
}

func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	// the postgres driver may already have closed the pool
	_ = r.db.Close()
	return errors.Join(srcErr, dbErr)
}

// Up applies all pending migrations, or steps of them when steps > 0. A dirty
// database is refused.
func (r *Runner) Up(steps int) error {
	version, dirty, err := r.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state (version %d), manual intervention required", version)
	}

	if steps > 0 {
		err = r.m.Steps(steps)
	} else {
		err = r.m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("database is up to date", zap.Uint("version", version))
		return nil
	}
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	newVersion, _, _ := r.Version()
	r.logger.Info("migrated database", zap.Uint("from", version), zap.Uint("to", newVersion))
	return nil
}

func (r *Runner) Down(steps int) error {
	var err error
	if steps > 0 {
		err = r.m.Steps(-steps)
	} else {
		err = r.m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migrations: %w", err)
	}
	return nil
}

func (r *Runner) Version() (uint, bool, error) {
	version, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("checking migration version: %w", err)
	}
	return version, dirty, nil
}

func (r *Runner) Force(version int) error {
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("forcing version: %w", err)
	}
	return nil
}

// Apply is the boot-time shortcut: open, migrate up, close.
func Apply(databaseURL string, logger *zap.Logger) error {
	r, err := Open(databaseURL, logger)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Up(0)
}
