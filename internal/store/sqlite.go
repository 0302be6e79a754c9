// Package store provides storage backends for FaunaLine.
//
// This file implements the SQLite-backed store for sessions and reports.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db         *sql.DB
	sessionTTL time.Duration
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, sessionTTL: cfg.sessionTTL()}, nil
}

func (s *SQLiteStore) FindByUser(userID string) (*models.Session, error) {
	row := s.db.QueryRow(
		`SELECT user_id, id, step, state_data, created_at, updated_at, expires_at FROM sessions WHERE user_id = ?`,
		userID,
	)
	sess, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindByUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for %s: %w", userID, err)
	}
	if sess.Expired(time.Now()) {
		slog.Debug("SQLiteStore FindByUser found expired session", "userID", userID)
		return nil, nil
	}
	return sess, nil
}

func (s *SQLiteStore) Save(userID string, step models.Step, state models.SessionState) (*models.Session, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	stateJSON, err := marshalState(state)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	expiresAt := now.Add(s.sessionTTL)
	id := uuid.NewString()

	// Upsert: a fresh row gets the generated id, an existing row keeps its
	// id and created_at. An expired row counts as fresh.
	_, err = s.db.Exec(`
		INSERT INTO sessions (user_id, id, step, state_data, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			id = CASE WHEN sessions.expires_at < excluded.updated_at THEN excluded.id ELSE sessions.id END,
			created_at = CASE WHEN sessions.expires_at < excluded.updated_at THEN excluded.created_at ELSE sessions.created_at END,
			step = excluded.step,
			state_data = excluded.state_data,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		userID, id, string(step), stateJSON, now, now, expiresAt,
	)
	if err != nil {
		slog.Error("SQLiteStore Save failed", "error", err, "userID", userID, "step", step)
		return nil, fmt.Errorf("failed to save session for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore Save succeeded", "userID", userID, "step", step)
	return s.FindByUser(userID)
}

func (s *SQLiteStore) DeleteByUser(userID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteByUser failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now())
	if err != nil {
		slog.Error("SQLiteStore DeleteExpired failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	if n > 0 {
		slog.Info("SQLiteStore DeleteExpired removed sessions", "count", n)
	}
	return n, nil
}

func (s *SQLiteStore) CreateReport(in models.CreateReportInput) (*models.Report, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	imagesJSON, err := marshalImageURLs(in.ImageURLs)
	if err != nil {
		return nil, err
	}
	r := models.Report{
		ID:          uuid.NewString(),
		AnimalType:  in.AnimalType,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Address:     in.Address,
		PhoneNumber: in.PhoneNumber,
		ImageURLs:   in.ImageURLs,
		ReportedAt:  in.ReportedAt,
		CreatedAt:   time.Now(),
	}
	_, err = s.db.Exec(`
		INSERT INTO reports (id, animal_type, description, latitude, longitude, address, phone_number, image_urls, reported_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AnimalType, r.Description, r.Latitude, r.Longitude,
		nilIfEmpty(r.Address), nilIfEmpty(r.PhoneNumber), imagesJSON, r.ReportedAt, r.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateReport failed", "error", err, "animalType", r.AnimalType)
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}
	slog.Debug("SQLiteStore CreateReport succeeded", "id", r.ID, "animalType", r.AnimalType)
	return &r, nil
}

func (s *SQLiteStore) GetReports() ([]models.Report, error) {
	rows, err := s.db.Query(
		`SELECT id, animal_type, description, latitude, longitude, address, phone_number, image_urls, reported_at, created_at FROM reports ORDER BY reported_at DESC`,
	)
	if err != nil {
		slog.Error("SQLiteStore GetReports query failed", "error", err)
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			slog.Error("SQLiteStore GetReports scan failed", "error", err)
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}
	slog.Debug("SQLiteStore GetReports succeeded", "count", len(reports))
	return reports, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
