// Package store provides storage backends for FaunaLine.
//
// It includes an in-memory store for tests plus persistent SQLite and
// PostgreSQL backends for conversation sessions and submitted reports.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

// DefaultSessionTTL is how long an idle conversation survives before it
// is treated as absent.
const DefaultSessionTTL = 24 * time.Hour

// Opts holds configuration options for store backends.
type Opts struct {
	DSN        string        // database connection string
	SessionTTL time.Duration // idle session lifetime; DefaultSessionTTL if zero
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSessionTTL overrides the idle session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.SessionTTL = ttl
	}
}

func (o *Opts) sessionTTL() time.Duration {
	if o.SessionTTL == 0 {
		return DefaultSessionTTL
	}
	return o.SessionTTL
}

// SessionStore persists per-user conversation sessions.
//
// FindByUser treats an expired session as absent and returns (nil, nil).
// Save upserts the user's session, refreshing UpdatedAt and ExpiresAt.
type SessionStore interface {
	FindByUser(userID string) (*models.Session, error)
	Save(userID string, step models.Step, state models.SessionState) (*models.Session, error)
	DeleteByUser(userID string) error
	DeleteExpired() (int64, error)
}

// ReportStore persists submitted sighting reports.
type ReportStore interface {
	CreateReport(in models.CreateReportInput) (*models.Report, error)
	GetReports() ([]models.Report, error)
}

// Store is the combined persistence interface the application wires up.
type Store interface {
	SessionStore
	ReportStore
	Close() error
}

// DetectDSNType returns "postgres" or "sqlite3" based on the DSN shape.
// Anything that is not recognizably PostgreSQL is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a mutex-guarded map-backed store used in tests and
// for ephemeral single-process deployments.
type InMemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]models.Session
	reports    []models.Report
	sessionTTL time.Duration
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &InMemoryStore{
		sessions:   make(map[string]models.Session),
		sessionTTL: cfg.sessionTTL(),
	}
}

func (s *InMemoryStore) FindByUser(userID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.Expired(time.Now()) {
		return nil, nil
	}
	cp := sess
	return &cp, nil
}

func (s *InMemoryStore) Save(userID string, step models.Step, state models.SessionState) (*models.Session, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	sess, ok := s.sessions[userID]
	if !ok || sess.Expired(now) {
		sess = models.Session{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: now,
		}
	}
	sess.Step = step
	sess.State = state
	sess.UpdatedAt = now
	sess.ExpiresAt = now.Add(s.sessionTTL)
	s.sessions[userID] = sess
	cp := sess
	return &cp, nil
}

func (s *InMemoryStore) DeleteByUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func (s *InMemoryStore) DeleteExpired() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for userID, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, userID)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CreateReport(in models.CreateReportInput) (*models.Report, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
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
	s.reports = append(s.reports, r)
	cp := r
	return &cp, nil
}

func (s *InMemoryStore) GetReports() ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Report, len(s.reports))
	copy(out, s.reports)
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
