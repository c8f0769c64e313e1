package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel-scout/models"
)

func newRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mockDB.Close()
	})
	return NewRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

var sessionCols = []string{
	"id", "name", "account_id", "prompt", "keywords", "hashtags", "phase", "reels_seen",
	"relevant_reels_seen", "active_duration", "suspended", "active", "created_at", "updated_at",
}

func TestGetSession(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM scraper_sessions WHERE id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(
			"s1", "IPL promos", nil, "cricket betting", "{ipl,cricket}", "{#ipl}", "reels", 40,
			5, int64(90*time.Second), false, true, now, now,
		))

	s, err := repo.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReels, s.Phase)
	assert.Equal(t, []string{"ipl", "cricket"}, s.Keywords)
	assert.Equal(t, []string{"#ipl"}, s.Hashtags)
	assert.Equal(t, 40, s.ReelsSeen)
	assert.Equal(t, 90*time.Second, s.ActiveDuration)
	assert.Nil(t, s.AccountID)
}

func TestGetSession_NotFound(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery("SELECT .+ FROM scraper_sessions").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSaveCheckpoint(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec("UPDATE scraper_sessions SET phase").
		WithArgs("s1", models.PhaseProfileBio, 12, 3, int64(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE scraper_sessions SET phase").
		WithArgs("gone", models.PhaseReels, 0, 0, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, repo.SaveCheckpoint(ctx, "s1", models.Checkpoint{
		Phase: models.PhaseProfileBio, ReelsSeen: 12, RelevantReelsSeen: 3, ActiveDuration: time.Minute,
	}))
	assert.ErrorIs(t, repo.SaveCheckpoint(ctx, "gone", models.Checkpoint{Phase: models.PhaseReels}), models.ErrNotFound)
}

func TestAddProfile_ReportsCreation(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec("INSERT INTO profiles").
		WithArgs("s1", "alice", models.PhaseReels, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO profiles").
		WithArgs("s1", "alice", models.PhaseReels, "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	p := models.ProfileRecord{SessionID: "s1", Username: "alice", Source: models.PhaseReels}
	created, err := repo.AddProfile(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.AddProfile(ctx, p)
	require.NoError(t, err)
	assert.False(t, created)

	created, err = repo.AddProfile(ctx, models.ProfileRecord{SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestApplyProfileScrape_OnlyOnce(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec("UPDATE profiles SET scraped = TRUE .+ AND NOT scraped").
		WithArgs("s1", "alice", "bio", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE profiles SET scraped = TRUE .+ AND NOT scraped").
		WithArgs("s1", "alice", "bio 2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	ok, err := repo.ApplyProfileScrape(ctx, "s1", "alice", "bio", []string{"https://a.example"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ApplyProfileScrape(ctx, "s1", "alice", "bio 2", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProfilesToCrawl_PassesLimit(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()
	cols := []string{"session_id", "username", "scraped", "reels_crawled", "bio", "links", "suspicious", "source", "targeted_app_id", "saved_on"}
	mock.ExpectQuery("SELECT .+ FROM profiles\\s+WHERE session_id = \\$1 AND NOT reels_crawled").
		WithArgs("s1", 5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s1", "alice", true, false, "bio", "{https://a.example}", "", "search", "", now))

	out, err := repo.ProfilesToCrawl(context.Background(), "s1", 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"https://a.example"}, out[0].Links)
	assert.Equal(t, models.PhaseSearch, out[0].Source)
}

func TestAddLinks_UnionsOnConflict(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO links .+ ON CONFLICT \\(session_id, url\\) DO UPDATE SET profiles").
		WithArgs(sqlmock.AnyArg(), "s1", "https://shop.example", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AddLinks(context.Background(), "s1", []models.LinkRecord{
		{URL: "HTTPS://Shop.Example/", Profiles: []string{"bob", "alice"}},
		{URL: "   "},
	})
	require.NoError(t, err)
}

func TestRecordLinkScan_NeverClearsTrue(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec("UPDATE links SET\\s+signal = CASE WHEN \\$2 THEN 'true' WHEN signal = '' THEN 'false' ELSE signal END").
		WithArgs("l1", false, "https://landing.example", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordLinkScan(context.Background(), "l1", false, "https://landing.example", ""))
}

func TestAssignFreeAccount(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE accounts SET session_id = \\$1").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password", "auth_blob", "session_id"}).
			AddRow("acc-1", "sealed-user", "sealed-pass", "", "s1"))
	mock.ExpectExec("UPDATE scraper_sessions SET account_id").
		WithArgs("acc-1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	acc, err := repo.AssignFreeAccount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)
	require.NotNil(t, acc.SessionID)
	assert.Equal(t, "s1", *acc.SessionID)
}

func TestAssignFreeAccount_PoolExhausted(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE accounts SET session_id").WithArgs("s2").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.AssignFreeAccount(context.Background(), "s2")
	assert.ErrorIs(t, err, models.ErrNoAccount)
}

func TestFrequencyRoundTrip(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec("INSERT INTO frequency_stats .+ ON CONFLICT \\(session_id\\) DO UPDATE").
		WithArgs("s1", []byte(`{"ipl":3}`), []byte(`{"ipl":1}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT freq, priority FROM frequency_stats").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"freq", "priority"}).AddRow([]byte(`{"ipl":3}`), []byte(`{"ipl":1}`)))

	ctx := context.Background()
	require.NoError(t, repo.SaveFrequency(ctx, models.FrequencyStats{
		SessionID: "s1", Freq: map[string]int{"ipl": 3}, Priority: map[string]int{"ipl": 1},
	}))
	stats, err := repo.GetFrequency(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Freq["ipl"])
	assert.Equal(t, 1, stats.Priority["ipl"])
}

func TestAddAd_ReturnsStoredRecord(t *testing.T) {
	repo, mock := newRepo(t)
	cols := []string{"id", "session_id", "link", "code", "profile", "caption", "like_count", "comment_count", "link_text",
		"filtered_link", "filtered", "suspicious", "screenshot", "post_seen", "manual_status", "review_notes"}

	mock.ExpectExec("INSERT INTO ads .+ ON CONFLICT \\(session_id, dedup_key\\) DO NOTHING").
		WithArgs(sqlmock.AnyArg(), "s1", "code:AD1", "https://bet.example", "AD1", "bookie", "bet now", int64(0), int64(0), "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM ads WHERE session_id = \\$1 AND dedup_key = \\$2").
		WithArgs("s1", "code:AD1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"ad-1", "s1", "https://bet.example", "AD1", "bookie", "bet now", 0, 0, "",
			"", false, "", "", true, "", ""))

	stored, err := repo.AddAd(context.Background(), models.AdRecord{
		SessionID: "s1", Code: "AD1", Link: "https://bet.example", Profile: "bookie", Caption: "bet now",
	})
	require.NoError(t, err)
	assert.Equal(t, "ad-1", stored.ID)
	assert.True(t, stored.PostSeen)
}

func TestAdKey(t *testing.T) {
	assert.Equal(t, "code:X", adKey(models.AdRecord{Code: "X", Link: "https://l"}))
	assert.Equal(t, "link:https://l", adKey(models.AdRecord{Link: "https://l"}))
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery("SELECT id, username, password_hash, role FROM users").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSaveContentBatch_SkipsCodeless(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO content_records .+ ON CONFLICT \\(session_id, code\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO content_records").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.SaveContentBatch(context.Background(), []models.ContentRecord{
		{SessionID: "s1", Code: "C1", Caption: "ipl"},
		{SessionID: "s1"},
		{SessionID: "s1", Code: "C2"},
	})
	require.NoError(t, err)

	assert.NoError(t, repo.SaveContentBatch(context.Background(), nil))
}
