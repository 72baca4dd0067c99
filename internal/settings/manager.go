package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/checkout"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/db/migrations"
)

type sourceKey struct{}

// WithSource tags ctx with the actor recorded alongside saved revisions
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok {
		return s
	}
	return ""
}

// Manager stores the checkout settings record in the SQLite options table.
// Reads are served from memory after the first load; every write replaces
// the whole record.
type Manager struct {
	db     *sql.DB
	logger *logrus.Logger
	name   string

	mu     sync.RWMutex
	cached *checkout.Settings
}

// NewManager creates a new settings manager
func NewManager(db *sql.DB, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}

	m := &Manager{
		db:     db,
		logger: logger,
		name:   checkout.OptionName,
	}

	ctx := context.Background()

	if err := migrations.NewMigrationManager(db, logger).Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := m.insertDefaults(ctx); err != nil {
		return nil, fmt.Errorf("failed to insert defaults: %w", err)
	}

	return m, nil
}

// insertDefaults stores the default record unless one already exists
func (m *Manager) insertDefaults(ctx context.Context) error {
	value, err := json.Marshal(checkout.Defaults())
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	res, err := m.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO options (name, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, m.name, string(value), now, now)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n > 0 {
		m.logger.WithField("option", m.name).Info("Stored default checkout settings")
	}
	return nil
}

// Load returns the current settings record. A missing row yields the
// defaults, and keys absent from the stored JSON keep their default values.
func (m *Manager) Load(ctx context.Context) (checkout.Settings, error) {
	m.mu.RLock()
	if m.cached != nil {
		s := m.cached.Clone()
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM options WHERE name = ?`, m.name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return checkout.Defaults(), nil
	}
	if err != nil {
		return checkout.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	s, err := decode(value)
	if err != nil {
		return checkout.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	m.mu.Lock()
	m.cached = &s
	m.mu.Unlock()

	return s.Clone(), nil
}

func decode(value string) (checkout.Settings, error) {
	s := checkout.Defaults()
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return checkout.Settings{}, err
	}
	if s.Fields == nil {
		s.Fields = map[string]checkout.FieldConfig{}
	}
	return s, nil
}

// Save replaces the stored record with s. Concurrent saves are last
// writer wins.
func (m *Manager) Save(ctx context.Context, s checkout.Settings) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO options (name, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, m.name, string(value), now, now)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	source := sourceFrom(ctx)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings_history (name, value, source, saved_at)
		VALUES (?, ?, ?, ?)
	`, m.name, string(value), source, now)
	if err != nil {
		return fmt.Errorf("failed to record settings revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	saved := s.Clone()
	m.mu.Lock()
	m.cached = &saved
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"option":   m.name,
		"source":   source,
		"vat_mode": s.VATModeEnabled,
		"fields":   len(s.Fields),
	}).Info("Checkout settings saved")

	return nil
}

// Update sanitizes an untrusted submission and saves the result
func (m *Manager) Update(ctx context.Context, raw map[string]any) (checkout.Settings, error) {
	s := checkout.Sanitize(raw)
	if err := m.Save(ctx, s); err != nil {
		return checkout.Settings{}, err
	}
	return s, nil
}

// Reset overwrites the stored record with the defaults
func (m *Manager) Reset(ctx context.Context) (checkout.Settings, error) {
	if sourceFrom(ctx) == "" {
		ctx = WithSource(ctx, SourceReset)
	}
	s := checkout.Defaults()
	if err := m.Save(ctx, s); err != nil {
		return checkout.Settings{}, err
	}
	return s, nil
}

// History returns up to limit saved revisions, newest first. A limit of
// zero or less returns every revision.
func (m *Manager) History(ctx context.Context, limit int) ([]Revision, error) {
	query := `
	SELECT id, name, value, source, saved_at
	FROM settings_history
	WHERE name = ?
	ORDER BY id DESC
	`
	args := []any{m.name}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings history: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		var value string
		var savedAt int64

		if err := rows.Scan(&rev.ID, &rev.Name, &value, &rev.Source, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settings revision: %w", err)
		}

		rev.Settings, err = decode(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode revision %d: %w", rev.ID, err)
		}
		rev.SavedAt = time.Unix(savedAt, 0)

		revisions = append(revisions, rev)
	}

	return revisions, rows.Err()
}

// Invalidate drops the in-memory copy so the next Load reads the database
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}
