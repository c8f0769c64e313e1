package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"reel-scout/models"
)

// ---- content

func (r *Repository) ContentExists(ctx context.Context, sessionID, code string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM content_records WHERE session_id = $1 AND code = $2)`
	if err := r.db.GetContext(ctx, &exists, query, sessionID, code); err != nil {
		return false, fmt.Errorf("content lookup: %w", err)
	}
	return exists, nil
}

const insertContent = `INSERT INTO content_records
	(session_id, code, username, caption, like_count, comment_count, view_count, taken_at, targeted_app_id, relevant, saved_at)
	VALUES (:session_id, :code, :username, :caption, :like_count, :comment_count, :view_count, :taken_at, :targeted_app_id, :relevant, COALESCE(:saved_at, NOW()))
	ON CONFLICT (session_id, code) DO NOTHING`

// SaveContent inserts rec unless the session already has that code.
func (r *Repository) SaveContent(ctx context.Context, rec models.ContentRecord) error {
	if rec.Code == "" {
		return nil
	}
	if _, err := r.db.NamedExecContext(ctx, insertContent, contentArgs(rec)); err != nil {
		return fmt.Errorf("save content %s: %w", rec.Code, err)
	}
	return nil
}

// SaveContentBatch inserts recs in one transaction with the same
// skip-if-present rule as SaveContent.
func (r *Repository) SaveContentBatch(ctx context.Context, recs []models.ContentRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, rec := range recs {
		if rec.Code == "" {
			continue
		}
		if _, err := tx.NamedExecContext(ctx, insertContent, contentArgs(rec)); err != nil {
			return fmt.Errorf("save content %s: %w", rec.Code, err)
		}
	}
	return tx.Commit()
}

func contentArgs(rec models.ContentRecord) map[string]any {
	var savedAt any
	if !rec.SavedAt.IsZero() {
		savedAt = rec.SavedAt
	}
	return map[string]any{
		"session_id":      rec.SessionID,
		"code":            rec.Code,
		"username":        rec.Username,
		"caption":         rec.Caption,
		"like_count":      rec.LikeCount,
		"comment_count":   rec.CommentCount,
		"view_count":      rec.ViewCount,
		"taken_at":        rec.TakenAt,
		"targeted_app_id": rec.TargetedAppID,
		"relevant":        rec.Relevant,
		"saved_at":        savedAt,
	}
}

func (r *Repository) ListContent(ctx context.Context, sessionID string) ([]models.ContentRecord, error) {
	var out []models.ContentRecord
	query := `SELECT session_id, code, username, caption, like_count, comment_count, view_count,
		taken_at, targeted_app_id, relevant, saved_at
		FROM content_records WHERE session_id = $1 ORDER BY code`
	if err := r.db.SelectContext(ctx, &out, query, sessionID); err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return out, nil
}

// ---- profiles

type profileRow struct {
	models.ProfileRecord
	LinkList pq.StringArray `db:"links"`
}

func (r profileRow) profile() models.ProfileRecord {
	p := r.ProfileRecord
	p.Links = []string(r.LinkList)
	return p
}

const profileColumns = `session_id, username, scraped, reels_crawled, bio, links, suspicious, source, targeted_app_id, saved_on`

// AddProfile inserts p unless the username is already known for the session.
func (r *Repository) AddProfile(ctx context.Context, p models.ProfileRecord) (bool, error) {
	if p.Username == "" {
		return false, nil
	}
	query := `INSERT INTO profiles (session_id, username, source, targeted_app_id, saved_on)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (session_id, username) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, p.SessionID, p.Username, p.Source, p.TargetedAppID)
	if err != nil {
		return false, fmt.Errorf("add profile %s: %w", p.Username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) GetProfile(ctx context.Context, sessionID, username string) (*models.ProfileRecord, error) {
	var row profileRow
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE session_id = $1 AND username = $2`
	if err := r.db.GetContext(ctx, &row, query, sessionID, username); err != nil {
		return nil, notFound(err)
	}
	p := row.profile()
	return &p, nil
}

func (r *Repository) ListProfiles(ctx context.Context, sessionID string) ([]models.ProfileRecord, error) {
	return r.selectProfiles(ctx, `TRUE`, sessionID, 0)
}

// ProfilesToCrawl returns profiles whose reels have not been visited yet.
func (r *Repository) ProfilesToCrawl(ctx context.Context, sessionID string, limit int) ([]models.ProfileRecord, error) {
	return r.selectProfiles(ctx, `NOT reels_crawled`, sessionID, limit)
}

// UnscrapedProfiles returns profiles still waiting for their bio.
func (r *Repository) UnscrapedProfiles(ctx context.Context, sessionID string, limit int) ([]models.ProfileRecord, error) {
	return r.selectProfiles(ctx, `NOT scraped`, sessionID, limit)
}

// selectProfiles lists in sighting order; a zero limit means all.
func (r *Repository) selectProfiles(ctx context.Context, cond, sessionID string, limit int) ([]models.ProfileRecord, error) {
	var rows []profileRow
	query := `SELECT ` + profileColumns + ` FROM profiles
		WHERE session_id = $1 AND ` + cond + `
		ORDER BY saved_on, username
		LIMIT NULLIF($2, 0)`
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]models.ProfileRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.profile())
	}
	return out, nil
}

func (r *Repository) MarkReelsCrawled(ctx context.Context, sessionID, username string) error {
	query := `UPDATE profiles SET reels_crawled = TRUE WHERE session_id = $1 AND username = $2`
	return expectRow(r.db.ExecContext(ctx, query, sessionID, username))
}

// ApplyProfileScrape records a bio once. It reports false when the profile
// was already scraped or is unknown.
func (r *Repository) ApplyProfileScrape(ctx context.Context, sessionID, username, bio string, links []string) (bool, error) {
	query := `UPDATE profiles SET scraped = TRUE, bio = $3, links = $4
		WHERE session_id = $1 AND username = $2 AND NOT scraped`
	res, err := r.db.ExecContext(ctx, query, sessionID, username, bio, pq.Array(models.UnionStrings(nil, links...)))
	if err != nil {
		return false, fmt.Errorf("apply scrape %s: %w", username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RequestRescrape explicitly reopens a profile for bio scraping.
func (r *Repository) RequestRescrape(ctx context.Context, sessionID, username string) error {
	query := `UPDATE profiles SET scraped = FALSE WHERE session_id = $1 AND username = $2`
	return expectRow(r.db.ExecContext(ctx, query, sessionID, username))
}

func (r *Repository) SetProfileSuspicion(ctx context.Context, sessionID, username string, v models.Suspicion) error {
	query := `UPDATE profiles SET suspicious = $3 WHERE session_id = $1 AND username = $2`
	return expectRow(r.db.ExecContext(ctx, query, sessionID, username, v))
}

// ---- links

type linkRow struct {
	models.LinkRecord
	ProfileList pq.StringArray `db:"profiles"`
}

func (r linkRow) link() models.LinkRecord {
	l := r.LinkRecord
	l.Profiles = []string(r.ProfileList)
	return l
}

const linkColumns = `id, session_id, url, profiles, signal, manual_status, review_notes, resolved_url, screenshot`

// AddLinks inserts links, unioning referring profiles into existing rows.
func (r *Repository) AddLinks(ctx context.Context, sessionID string, links []models.LinkRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO links (id, session_id, url, profiles) VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, url) DO UPDATE SET profiles =
			ARRAY(SELECT DISTINCT p FROM unnest(links.profiles || EXCLUDED.profiles) AS p ORDER BY p)`
	for _, l := range links {
		url := models.NormalizeLink(l.URL)
		if url == "" {
			continue
		}
		profiles := models.UnionStrings(nil, l.Profiles...)
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), sessionID, url, pq.Array(profiles)); err != nil {
			return fmt.Errorf("add link %s: %w", url, err)
		}
	}
	return tx.Commit()
}

// PendingLinks returns links no signal has been recorded for.
func (r *Repository) PendingLinks(ctx context.Context, sessionID string, limit int) ([]models.LinkRecord, error) {
	return r.selectLinks(ctx, `signal = ''`, sessionID, limit)
}

func (r *Repository) ListLinks(ctx context.Context, sessionID string) ([]models.LinkRecord, error) {
	return r.selectLinks(ctx, `TRUE`, sessionID, 0)
}

func (r *Repository) selectLinks(ctx context.Context, cond, sessionID string, limit int) ([]models.LinkRecord, error) {
	var rows []linkRow
	query := `SELECT ` + linkColumns + ` FROM links
		WHERE session_id = $1 AND ` + cond + `
		ORDER BY created_at, url
		LIMIT NULLIF($2, 0)`
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	out := make([]models.LinkRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.link())
	}
	return out, nil
}

// RecordLinkScan ORs a scan verdict into the link's signal. A false signal
// never clears a true one.
func (r *Repository) RecordLinkScan(ctx context.Context, id string, suspicious bool, resolvedURL, screenshot string) error {
	query := `UPDATE links SET
		signal = CASE WHEN $2 THEN 'true' WHEN signal = '' THEN 'false' ELSE signal END,
		resolved_url = COALESCE(NULLIF($3, ''), resolved_url),
		screenshot = COALESCE(NULLIF($4, ''), screenshot)
		WHERE id = $1`
	return expectRow(r.db.ExecContext(ctx, query, id, suspicious, resolvedURL, screenshot))
}

func (r *Repository) GetLink(ctx context.Context, id string) (*models.LinkRecord, error) {
	var row linkRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+linkColumns+` FROM links WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	l := row.link()
	return &l, nil
}

func (r *Repository) UpdateLinkReview(ctx context.Context, id, status, notes string) error {
	query := `UPDATE links SET manual_status = $2, review_notes = $3 WHERE id = $1`
	return expectRow(r.db.ExecContext(ctx, query, id, status, notes))
}

// ---- ads

const adColumns = `id, session_id, link, code, profile, caption, like_count, comment_count, link_text,
	filtered_link, filtered, suspicious, screenshot, post_seen, manual_status, review_notes`

// adKey deduplicates ads by code, or by link for code-less ads.
func adKey(ad models.AdRecord) string {
	if ad.Code != "" {
		return "code:" + ad.Code
	}
	return "link:" + ad.Link
}

// AddAd inserts ad unless the session already has it, and returns the
// stored record either way.
func (r *Repository) AddAd(ctx context.Context, ad models.AdRecord) (models.AdRecord, error) {
	insert := `INSERT INTO ads (id, session_id, dedup_key, link, code, profile, caption, like_count, comment_count, link_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, dedup_key) DO NOTHING`
	key := adKey(ad)
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), ad.SessionID, key, ad.Link, ad.Code,
		ad.Profile, ad.Caption, ad.LikeCount, ad.CommentCount, ad.LinkText); err != nil {
		return models.AdRecord{}, fmt.Errorf("add ad: %w", err)
	}

	var stored models.AdRecord
	query := `SELECT ` + adColumns + ` FROM ads WHERE session_id = $1 AND dedup_key = $2`
	if err := r.db.GetContext(ctx, &stored, query, ad.SessionID, key); err != nil {
		return models.AdRecord{}, fmt.Errorf("load ad: %w", err)
	}
	return stored, nil
}

func (r *Repository) MarkAdSeen(ctx context.Context, id string) error {
	return expectRow(r.db.ExecContext(ctx, `UPDATE ads SET post_seen = TRUE WHERE id = $1`, id))
}

func (r *Repository) UnfilteredAds(ctx context.Context, sessionID string, limit int) ([]models.AdRecord, error) {
	var out []models.AdRecord
	query := `SELECT ` + adColumns + ` FROM ads
		WHERE session_id = $1 AND NOT filtered
		ORDER BY created_at, id
		LIMIT NULLIF($2, 0)`
	if err := r.db.SelectContext(ctx, &out, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("list unfiltered ads: %w", err)
	}
	return out, nil
}

func (r *Repository) RecordAdScan(ctx context.Context, id string, suspicious bool, filteredLink, screenshot string) error {
	query := `UPDATE ads SET
		filtered = TRUE,
		filtered_link = $3,
		suspicious = CASE WHEN $2 THEN 'true' WHEN suspicious = '' THEN 'false' ELSE suspicious END,
		screenshot = COALESCE(NULLIF($4, ''), screenshot)
		WHERE id = $1`
	return expectRow(r.db.ExecContext(ctx, query, id, suspicious, filteredLink, screenshot))
}

func (r *Repository) ListAds(ctx context.Context, sessionID string) ([]models.AdRecord, error) {
	var out []models.AdRecord
	query := `SELECT ` + adColumns + ` FROM ads WHERE session_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &out, query, sessionID); err != nil {
		return nil, fmt.Errorf("list ads: %w", err)
	}
	return out, nil
}

func (r *Repository) GetAd(ctx context.Context, id string) (*models.AdRecord, error) {
	var ad models.AdRecord
	if err := r.db.GetContext(ctx, &ad, `SELECT `+adColumns+` FROM ads WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &ad, nil
}

func (r *Repository) UpdateAdReview(ctx context.Context, id, status, notes string) error {
	query := `UPDATE ads SET manual_status = $2, review_notes = $3 WHERE id = $1`
	return expectRow(r.db.ExecContext(ctx, query, id, status, notes))
}
