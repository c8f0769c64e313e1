package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"reel-scout/models"
)

// Repository implements every store interface of the agent, the scanner,
// the provisioner and the API on one PostgreSQL database.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func expectRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ---- sessions

type sessionRow struct {
	models.ScraperSession
	KeywordList pq.StringArray `db:"keywords"`
	HashtagList pq.StringArray `db:"hashtags"`
}

func (r sessionRow) session() *models.ScraperSession {
	s := r.ScraperSession
	s.Keywords = []string(r.KeywordList)
	s.Hashtags = []string(r.HashtagList)
	return &s
}

const sessionColumns = `id, name, account_id, prompt, keywords, hashtags, phase, reels_seen,
	relevant_reels_seen, active_duration, suspended, active, created_at, updated_at`

func (r *Repository) CreateSession(ctx context.Context, s *models.ScraperSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Phase == "" {
		s.Phase = models.PhaseNew
	}
	query := `INSERT INTO scraper_sessions (id, name, account_id, prompt, keywords, hashtags, phase)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.Name, s.AccountID, s.Prompt, pq.Array(s.Keywords), pq.Array(s.Hashtags), s.Phase,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (*models.ScraperSession, error) {
	var row sessionRow
	query := `SELECT ` + sessionColumns + ` FROM scraper_sessions WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, notFound(err)
	}
	return row.session(), nil
}

func (r *Repository) ListSessions(ctx context.Context) ([]models.ScraperSession, error) {
	var rows []sessionRow
	query := `SELECT ` + sessionColumns + ` FROM scraper_sessions ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]models.ScraperSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.session())
	}
	return out, nil
}

// SaveCheckpoint persists the resumable part of a session.
func (r *Repository) SaveCheckpoint(ctx context.Context, id string, cp models.Checkpoint) error {
	query := `UPDATE scraper_sessions
		SET phase = $2, reels_seen = $3, relevant_reels_seen = $4, active_duration = $5, updated_at = NOW()
		WHERE id = $1`
	return expectRow(r.db.ExecContext(ctx, query, id, cp.Phase, cp.ReelsSeen, cp.RelevantReelsSeen, int64(cp.ActiveDuration)))
}

func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE scraper_sessions SET active = $2, updated_at = NOW() WHERE id = $1`
	return expectRow(r.db.ExecContext(ctx, query, id, active))
}

func (r *Repository) SetSuspended(ctx context.Context, id string, suspended bool) error {
	query := `UPDATE scraper_sessions SET suspended = $2, updated_at = NOW() WHERE id = $1`
	return expectRow(r.db.ExecContext(ctx, query, id, suspended))
}

// ---- accounts

func (r *Repository) CreateAccount(ctx context.Context, acc *models.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	query := `INSERT INTO accounts (id, username, password, auth_blob) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, acc.ID, acc.Username, acc.Password, acc.AuthBlob); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	query := `SELECT id, username, password, auth_blob, session_id FROM accounts WHERE id = $1`
	if err := r.db.GetContext(ctx, &acc, query, id); err != nil {
		return nil, notFound(err)
	}
	return &acc, nil
}

// AssignFreeAccount binds an unassigned account to sessionID. Concurrent
// callers never receive the same account.
func (r *Repository) AssignFreeAccount(ctx context.Context, sessionID string) (*models.Account, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var acc models.Account
	query := `UPDATE accounts SET session_id = $1
		WHERE id = (SELECT id FROM accounts WHERE session_id IS NULL ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED)
		RETURNING id, username, password, auth_blob, session_id`
	if err := tx.GetContext(ctx, &acc, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNoAccount
		}
		return nil, fmt.Errorf("claim account: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE scraper_sessions SET account_id = $1 WHERE id = $2`, acc.ID, sessionID); err != nil {
		return nil, fmt.Errorf("bind account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &acc, nil
}

func (r *Repository) ReleaseAccount(ctx context.Context, accountID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE scraper_sessions SET account_id = NULL WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("unbind account: %w", err)
	}
	if err := expectRow(tx.ExecContext(ctx, `UPDATE accounts SET session_id = NULL WHERE id = $1`, accountID)); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) SaveAuthBlob(ctx context.Context, accountID, blob string) error {
	return expectRow(r.db.ExecContext(ctx, `UPDATE accounts SET auth_blob = $2 WHERE id = $1`, accountID, blob))
}

// ---- frequency

func (r *Repository) GetFrequency(ctx context.Context, sessionID string) (*models.FrequencyStats, error) {
	var row struct {
		Freq     []byte `db:"freq"`
		Priority []byte `db:"priority"`
	}
	query := `SELECT freq, priority FROM frequency_stats WHERE session_id = $1`
	if err := r.db.GetContext(ctx, &row, query, sessionID); err != nil {
		return nil, notFound(err)
	}
	stats := &models.FrequencyStats{SessionID: sessionID}
	if err := json.Unmarshal(row.Freq, &stats.Freq); err != nil {
		return nil, fmt.Errorf("decode freq: %w", err)
	}
	if err := json.Unmarshal(row.Priority, &stats.Priority); err != nil {
		return nil, fmt.Errorf("decode priority: %w", err)
	}
	return stats, nil
}

func (r *Repository) SaveFrequency(ctx context.Context, stats models.FrequencyStats) error {
	freq, err := json.Marshal(stats.Freq)
	if err != nil {
		return fmt.Errorf("encode freq: %w", err)
	}
	priority, err := json.Marshal(stats.Priority)
	if err != nil {
		return fmt.Errorf("encode priority: %w", err)
	}
	query := `INSERT INTO frequency_stats (session_id, freq, priority) VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET freq = EXCLUDED.freq, priority = EXCLUDED.priority`
	if _, err := r.db.ExecContext(ctx, query, stats.SessionID, freq, priority); err != nil {
		return fmt.Errorf("save frequency: %w", err)
	}
	return nil
}

// ---- targeted apps

func (r *Repository) CreateTargetedApp(ctx context.Context, app *models.TargetedApp) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	query := `INSERT INTO targeted_apps (id, session_id, name, keywords) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, app.ID, app.SessionID, app.Name, pq.Array(app.Keywords)); err != nil {
		return fmt.Errorf("create targeted app: %w", err)
	}
	return nil
}

func (r *Repository) TargetedApps(ctx context.Context, sessionID string) ([]models.TargetedApp, error) {
	var rows []struct {
		models.TargetedApp
		KeywordList pq.StringArray `db:"keywords"`
	}
	query := `SELECT id, session_id, name, keywords FROM targeted_apps WHERE session_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list targeted apps: %w", err)
	}
	out := make([]models.TargetedApp, 0, len(rows))
	for _, row := range rows {
		app := row.TargetedApp
		app.Keywords = []string(row.KeywordList)
		out = append(out, app)
	}
	return out, nil
}
