// Package store provides storage backends for FaunaLine.
//
// This file implements the PostgreSQL-backed store for sessions and reports.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db         *sql.DB
	sessionTTL time.Duration
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db, sessionTTL: cfg.sessionTTL()}, nil
}

func (s *PostgresStore) FindByUser(userID string) (*models.Session, error) {
	row := s.db.QueryRow(
		`SELECT user_id, id, step, state_data, created_at, updated_at, expires_at FROM sessions WHERE user_id = $1`,
		userID,
	)
	sess, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindByUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for %s: %w", userID, err)
	}
	if sess.Expired(time.Now()) {
		slog.Debug("PostgresStore FindByUser found expired session", "userID", userID)
		return nil, nil
	}
	return sess, nil
}

func (s *PostgresStore) Save(userID string, step models.Step, state models.SessionState) (*models.Session, error) {
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

	// Same upsert semantics as the SQLite backend: an expired row is
	// treated as fresh and gets a new id and created_at.
	_, err = s.db.Exec(`
		INSERT INTO sessions (user_id, id, step, state_data, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			id = CASE WHEN sessions.expires_at < excluded.updated_at THEN excluded.id ELSE sessions.id END,
			created_at = CASE WHEN sessions.expires_at < excluded.updated_at THEN excluded.created_at ELSE sessions.created_at END,
			step = excluded.step,
			state_data = excluded.state_data,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		userID, id, string(step), stateJSON, now, now, expiresAt,
	)
	if err != nil {
		slog.Error("PostgresStore Save failed", "error", err, "userID", userID, "step", step)
		return nil, fmt.Errorf("failed to save session for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore Save succeeded", "userID", userID, "step", step)
	return s.FindByUser(userID)
}

func (s *PostgresStore) DeleteByUser(userID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteByUser failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < $1`, time.Now())
	if err != nil {
		slog.Error("PostgresStore DeleteExpired failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	if n > 0 {
		slog.Info("PostgresStore DeleteExpired removed sessions", "count", n)
	}
	return n, nil
}

func (s *PostgresStore) CreateReport(in models.CreateReportInput) (*models.Report, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.AnimalType, r.Description, r.Latitude, r.Longitude,
		nilIfEmpty(r.Address), nilIfEmpty(r.PhoneNumber), imagesJSON, r.ReportedAt, r.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreateReport failed", "error", err, "animalType", r.AnimalType)
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}
	slog.Debug("PostgresStore CreateReport succeeded", "id", r.ID, "animalType", r.AnimalType)
	return &r, nil
}

func (s *PostgresStore) GetReports() ([]models.Report, error) {
	rows, err := s.db.Query(
		`SELECT id, animal_type, description, latitude, longitude, address, phone_number, image_urls, reported_at, created_at FROM reports ORDER BY reported_at DESC`,
	)
	if err != nil {
		slog.Error("PostgresStore GetReports query failed", "error", err)
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			slog.Error("PostgresStore GetReports scan failed", "error", err)
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}
	return reports, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
