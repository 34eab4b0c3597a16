package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/smukkama/carbon-footprint/internal/history"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

var _ history.Store = (*DB)(nil)

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in lexical order
func (db *DB) RunMigrations(migrationsDir string, logger *slog.Logger) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		logger.Info("running migration", "file", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// InsertHistoryRow appends a row and sets its id
func (db *DB) InsertHistoryRow(ctx context.Context, row *HistoryRow) error {
	query := `
		INSERT INTO user_data (record_id, timestamp, car_km, bus_km, train_km,
			electricity_kwh, meat_meals, veg_meals, vegan_meals, total_emissions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := db.QueryRowContext(ctx, query,
		row.RecordID, row.Timestamp, row.CarKm, row.BusKm, row.TrainKm,
		row.ElectricityKWh, row.MeatMeals, row.VegMeals, row.VeganMeals, row.TotalEmissions,
	).Scan(&row.ID)
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// ListHistoryRows returns every row in insertion order
func (db *DB) ListHistoryRows(ctx context.Context) ([]*HistoryRow, error) {
	query := `
		SELECT id, record_id, timestamp, car_km, bus_km, train_km,
			electricity_kwh, meat_meals, veg_meals, vegan_meals, total_emissions
		FROM user_data
		ORDER BY id
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var result []*HistoryRow
	for rows.Next() {
		row := &HistoryRow{}
		err := rows.Scan(
			&row.ID, &row.RecordID, &row.Timestamp, &row.CarKm, &row.BusKm, &row.TrainKm,
			&row.ElectricityKWh, &row.MeatMeals, &row.VegMeals, &row.VeganMeals, &row.TotalEmissions,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// Append implements history.Store
func (db *DB) Append(ctx context.Context, r history.Record) error {
	return db.InsertHistoryRow(ctx, RowFromRecord(r))
}

// All implements history.Store
func (db *DB) All(ctx context.Context) ([]history.Record, error) {
	rows, err := db.ListHistoryRows(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]history.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record())
	}
	return records, nil
}
