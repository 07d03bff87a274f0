package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/radar-monitor/internal/models"
)

// Store defines the interface for sensor reading storage
type Store interface {
	Close() error
	Migrate() error
	InsertReading(reading *models.Reading) error
	GetLatest(limit int) ([]*models.Reading, error)
	GetStats() (*Stats, error)
	Clear() (int64, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore handles persistent storage of sensor readings
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Stats contains aggregate statistics over all retained readings.
// Aggregate fields are nil when the table is empty.
type Stats struct {
	TotalReadings int64      `json:"total_readings"`
	AvgDistance   *float64   `json:"avg_distance"`
	MinDistance   *float64   `json:"min_distance"`
	MaxDistance   *float64   `json:"max_distance"`
	LastReading   *time.Time `json:"last_reading"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Apply performance pragmas for SQLite
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	// Auto-migrate schema
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		distance REAL NOT NULL,
		angle REAL NOT NULL DEFAULT 0,
		device_id TEXT,
		raw_measurement INTEGER,
		correlation_id TEXT,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(recorded_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// InsertReading inserts a single reading into the database.
// A zero Timestamp is replaced with the current UTC time, so every
// persisted row carries one.
func (s *SQLiteStore) InsertReading(reading *models.Reading) error {
	recordedAt := reading.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO readings (distance, angle, device_id, raw_measurement, correlation_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		reading.Distance,
		reading.Angle,
		nullString(reading.DeviceID),
		nullInt64(reading.RawMeasurement),
		nullString(reading.CorrelationID),
		recordedAt.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	return nil
}

// GetLatest returns the most recent readings, newest first.
// Rows sharing a timestamp are ordered by id descending so repeated calls
// return the same result.
func (s *SQLiteStore) GetLatest(limit int) ([]*models.Reading, error) {
	query := `
		SELECT id, distance, angle, device_id, raw_measurement, correlation_id, recorded_at
		FROM readings
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// GetStats returns aggregate statistics over the full retained dataset
func (s *SQLiteStore) GetStats() (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&stats.TotalReadings)
	if err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}

	// If no readings, return early with zero values
	if stats.TotalReadings == 0 {
		return stats, nil
	}

	var avg, min, max float64
	var lastStr string
	err = s.db.QueryRow(`
		SELECT AVG(distance), MIN(distance), MAX(distance), MAX(recorded_at)
		FROM readings
	`).Scan(&avg, &min, &max, &lastStr)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	stats.AvgDistance = &avg
	stats.MinDistance = &min
	stats.MaxDistance = &max

	last, err := s.parseTimestamp(lastStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last reading timestamp: %w", err)
	}
	stats.LastReading = &last

	return stats, nil
}

// Clear removes every reading and returns the number of rows deleted
func (s *SQLiteStore) Clear() (int64, error) {
	result, err := s.db.Exec("DELETE FROM readings")
	if err != nil {
		return 0, fmt.Errorf("failed to clear readings: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().Int64("deleted", deleted).Msg("Cleared all readings")

	return deleted, nil
}

// scanReadings scans multiple rows into a slice of readings
func (s *SQLiteStore) scanReadings(rows *sql.Rows) ([]*models.Reading, error) {
	var readings []*models.Reading

	for rows.Next() {
		var r models.Reading
		var deviceID, correlationID sql.NullString
		var rawMeasurement sql.NullInt64
		var recordedAt string

		err := rows.Scan(&r.ID, &r.Distance, &r.Angle, &deviceID, &rawMeasurement, &correlationID, &recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		if deviceID.Valid {
			r.DeviceID = deviceID.String
		}
		if correlationID.Valid {
			r.CorrelationID = correlationID.String
		}
		if rawMeasurement.Valid {
			raw := rawMeasurement.Int64
			r.RawMeasurement = &raw
		}

		r.Timestamp, err = s.parseTimestamp(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}

		readings = append(readings, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return readings, nil
}

// parseTimestamp tries multiple formats to parse a SQLite timestamp
func (s *SQLiteStore) parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}

// nullString maps an empty string to SQL NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt64 maps a nil pointer to SQL NULL
func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
