package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/example/fleet-tracker/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(ctx context.Context, dsn string) (*PostgresHistory, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresHistory{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("could not start migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (p *PostgresHistory) AppendSample(ctx context.Context, ev models.LocationEvent) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO location_samples(driver_id, latitude, longitude, accuracy, recorded_at) VALUES($1,$2,$3,$4,$5)`,
		ev.DriverID, ev.Latitude, ev.Longitude, ev.Accuracy, ev.RecordedAt)
	return err
}

func (p *PostgresHistory) Recent(ctx context.Context, driverID int64, limit int) ([]models.LocationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT driver_id, latitude, longitude, accuracy, recorded_at FROM location_samples WHERE driver_id=$1 ORDER BY recorded_at DESC LIMIT $2`,
		driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LocationEvent
	for rows.Next() {
		var ev models.LocationEvent
		var acc sql.NullFloat64
		if err := rows.Scan(&ev.DriverID, &ev.Latitude, &ev.Longitude, &acc, &ev.RecordedAt); err != nil {
			return nil, err
		}
		if acc.Valid {
			v := acc.Float64
			ev.Accuracy = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *PostgresHistory) Close() error { return p.db.Close() }
