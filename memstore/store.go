// Package memstore is an in-memory persistence gateway with the same
// semantics as the PostgreSQL repository. It backs tests and dry runs.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reel-scout/models"
)

type profileKey struct{ session, username string }

type contentKey struct{ session, code string }

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]*models.ScraperSession
	accounts map[string]*models.Account
	content  map[contentKey]models.ContentRecord
	profiles map[profileKey]*models.ProfileRecord
	links    map[string]*models.LinkRecord
	ads      map[string]*models.AdRecord
	freq     map[string]models.FrequencyStats
	apps     map[string]*models.TargetedApp
	users    map[string]*models.User

	// insertion order for stable listings
	profileOrder []profileKey
	linkOrder    []string
	adOrder      []string
}

func New() *Store {
	return &Store{
		now:      time.Now,
		sessions: make(map[string]*models.ScraperSession),
		accounts: make(map[string]*models.Account),
		content:  make(map[contentKey]models.ContentRecord),
		profiles: make(map[profileKey]*models.ProfileRecord),
		links:    make(map[string]*models.LinkRecord),
		ads:      make(map[string]*models.AdRecord),
		freq:     make(map[string]models.FrequencyStats),
		apps:     make(map[string]*models.TargetedApp),
		users:    make(map[string]*models.User),
	}
}

// WithClock replaces the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func cloneSession(in *models.ScraperSession) *models.ScraperSession {
	out := *in
	out.Keywords = slices.Clone(in.Keywords)
	out.Hashtags = slices.Clone(in.Hashtags)
	return &out
}

// ---- sessions

func (s *Store) CreateSession(_ context.Context, sess *models.ScraperSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Phase == "" {
		sess.Phase = models.PhaseNew
	}
	now := s.now()
	sess.CreatedAt, sess.UpdatedAt = now, now
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*models.ScraperSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *Store) ListSessions(_ context.Context) ([]models.ScraperSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScraperSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveCheckpoint writes phase and counters together.
func (s *Store) SaveCheckpoint(_ context.Context, id string, cp models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	sess.Phase = cp.Phase
	sess.ReelsSeen = cp.ReelsSeen
	sess.RelevantReelsSeen = cp.RelevantReelsSeen
	sess.ActiveDuration = cp.ActiveDuration
	sess.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	return s.updateSession(id, func(sess *models.ScraperSession) { sess.Active = active })
}

func (s *Store) SetSuspended(_ context.Context, id string, suspended bool) error {
	return s.updateSession(id, func(sess *models.ScraperSession) { sess.Suspended = suspended })
}

func (s *Store) updateSession(id string, fn func(*models.ScraperSession)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	fn(sess)
	sess.UpdatedAt = s.now()
	return nil
}

// ---- accounts

func (s *Store) CreateAccount(_ context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	cp := *acc
	s.accounts[acc.ID] = &cp
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

// AssignFreeAccount binds an unassigned account to sessionID.
func (s *Store) AssignFreeAccount(_ context.Context, sessionID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		acc := s.accounts[id]
		if acc.SessionID != nil {
			continue
		}
		sid := sessionID
		acc.SessionID = &sid
		if sess, ok := s.sessions[sessionID]; ok {
			accID := acc.ID
			sess.AccountID = &accID
		}
		cp := *acc
		return &cp, nil
	}
	return nil, models.ErrNoAccount
}

// ReleaseAccount frees the account for reassignment.
func (s *Store) ReleaseAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return models.ErrNotFound
	}
	if acc.SessionID != nil {
		if sess, ok := s.sessions[*acc.SessionID]; ok {
			sess.AccountID = nil
		}
	}
	acc.SessionID = nil
	return nil
}

func (s *Store) SaveAuthBlob(_ context.Context, accountID, blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return models.ErrNotFound
	}
	acc.AuthBlob = blob
	return nil
}

// ---- content

func (s *Store) ContentExists(_ context.Context, sessionID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.content[contentKey{sessionID, code}]
	return ok, nil
}

// SaveContent inserts rec unless the session already has that code.
func (s *Store) SaveContent(_ context.Context, rec models.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putContent(rec)
	return nil
}

func (s *Store) SaveContentBatch(_ context.Context, recs []models.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.putContent(rec)
	}
	return nil
}

func (s *Store) putContent(rec models.ContentRecord) {
	key := contentKey{rec.SessionID, rec.Code}
	if _, ok := s.content[key]; ok || rec.Code == "" {
		return
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = s.now()
	}
	s.content[key] = rec
}

func (s *Store) ListContent(_ context.Context, sessionID string) ([]models.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ContentRecord
	for k, rec := range s.content {
		if k.session == sessionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ---- profiles

func cloneProfile(p *models.ProfileRecord) models.ProfileRecord {
	out := *p
	out.Links = slices.Clone(p.Links)
	return out
}

// AddProfile inserts p unless the username is already known for the session.
func (s *Store) AddProfile(_ context.Context, p models.ProfileRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := profileKey{p.SessionID, p.Username}
	if _, ok := s.profiles[key]; ok || p.Username == "" {
		return false, nil
	}
	if p.SavedOn.IsZero() {
		p.SavedOn = s.now()
	}
	cp := cloneProfile(&p)
	s.profiles[key] = &cp
	s.profileOrder = append(s.profileOrder, key)
	return true, nil
}

func (s *Store) GetProfile(_ context.Context, sessionID, username string) (*models.ProfileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileKey{sessionID, username}]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := cloneProfile(p)
	return &cp, nil
}

func (s *Store) ListProfiles(_ context.Context, sessionID string) ([]models.ProfileRecord, error) {
	return s.filterProfiles(sessionID, 0, func(*models.ProfileRecord) bool { return true }), nil
}

// ProfilesToCrawl returns profiles whose reels have not been visited yet.
func (s *Store) ProfilesToCrawl(_ context.Context, sessionID string, limit int) ([]models.ProfileRecord, error) {
	return s.filterProfiles(sessionID, limit, func(p *models.ProfileRecord) bool { return !p.ReelsCrawled }), nil
}

// UnscrapedProfiles returns profiles still waiting for their bio.
func (s *Store) UnscrapedProfiles(_ context.Context, sessionID string, limit int) ([]models.ProfileRecord, error) {
	return s.filterProfiles(sessionID, limit, func(p *models.ProfileRecord) bool { return !p.Scraped }), nil
}

func (s *Store) filterProfiles(sessionID string, limit int, keep func(*models.ProfileRecord) bool) []models.ProfileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProfileRecord
	for _, key := range s.profileOrder {
		if key.session != sessionID {
			continue
		}
		p := s.profiles[key]
		if !keep(p) {
			continue
		}
		out = append(out, cloneProfile(p))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Store) MarkReelsCrawled(_ context.Context, sessionID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileKey{sessionID, username}]
	if !ok {
		return models.ErrNotFound
	}
	p.ReelsCrawled = true
	return nil
}

// ApplyProfileScrape records a bio once. It reports false when the profile
// was already scraped or is unknown.
func (s *Store) ApplyProfileScrape(_ context.Context, sessionID, username, bio string, links []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileKey{sessionID, username}]
	if !ok {
		return false, nil
	}
	return p.ApplyScrape(bio, links), nil
}

// RequestRescrape explicitly reopens a profile for bio scraping.
func (s *Store) RequestRescrape(_ context.Context, sessionID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileKey{sessionID, username}]
	if !ok {
		return models.ErrNotFound
	}
	p.Scraped = false
	return nil
}

// SetProfileSuspicion stores the tri-state verdict of a profile.
func (s *Store) SetProfileSuspicion(_ context.Context, sessionID, username string, v models.Suspicion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileKey{sessionID, username}]
	if !ok {
		return models.ErrNotFound
	}
	p.Suspicious = v
	return nil
}

// ---- links

func cloneLink(l *models.LinkRecord) models.LinkRecord {
	out := *l
	out.Profiles = slices.Clone(l.Profiles)
	return out
}

func (s *Store) findLink(sessionID, url string) *models.LinkRecord {
	for _, id := range s.linkOrder {
		l := s.links[id]
		if l.SessionID == sessionID && l.URL == url {
			return l
		}
	}
	return nil
}

// AddLinks inserts links, unioning referring profiles into existing ones.
func (s *Store) AddLinks(_ context.Context, sessionID string, links []models.LinkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range links {
		url := models.NormalizeLink(in.URL)
		if url == "" {
			continue
		}
		if l := s.findLink(sessionID, url); l != nil {
			l.AddProfiles(in.Profiles...)
			continue
		}
		l := &models.LinkRecord{ID: uuid.NewString(), SessionID: sessionID, URL: url}
		l.AddProfiles(in.Profiles...)
		s.links[l.ID] = l
		s.linkOrder = append(s.linkOrder, l.ID)
	}
	return nil
}

// PendingLinks returns links no signal has been recorded for.
func (s *Store) PendingLinks(_ context.Context, sessionID string, limit int) ([]models.LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LinkRecord
	for _, id := range s.linkOrder {
		l := s.links[id]
		if l.SessionID != sessionID || l.Signal != models.SuspicionUnknown {
			continue
		}
		out = append(out, cloneLink(l))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// RecordLinkScan ORs a scan verdict into the link's signal.
func (s *Store) RecordLinkScan(_ context.Context, id string, suspicious bool, resolvedURL, screenshot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return models.ErrNotFound
	}
	l.RecordSignal(suspicious)
	if resolvedURL != "" {
		l.ResolvedURL = resolvedURL
	}
	if screenshot != "" {
		l.Screenshot = screenshot
	}
	return nil
}

func (s *Store) ListLinks(_ context.Context, sessionID string) ([]models.LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LinkRecord
	for _, id := range s.linkOrder {
		if l := s.links[id]; l.SessionID == sessionID {
			out = append(out, cloneLink(l))
		}
	}
	return out, nil
}

func (s *Store) GetLink(_ context.Context, id string) (*models.LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := cloneLink(l)
	return &cp, nil
}

func (s *Store) UpdateLinkReview(_ context.Context, id, status, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return models.ErrNotFound
	}
	l.ManualStatus, l.ReviewNotes = status, notes
	return nil
}

// ---- ads

// AddAd inserts ad unless the session already has one with the same code
// (or link, for code-less ads). The stored record is returned either way.
func (s *Store) AddAd(_ context.Context, ad models.AdRecord) (models.AdRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.adOrder {
		a := s.ads[id]
		if a.SessionID != ad.SessionID {
			continue
		}
		if (ad.Code != "" && a.Code == ad.Code) || (ad.Code == "" && a.Link == ad.Link) {
			return *a, nil
		}
	}
	ad.ID = uuid.NewString()
	cp := ad
	s.ads[ad.ID] = &cp
	s.adOrder = append(s.adOrder, ad.ID)
	return ad, nil
}

func (s *Store) MarkAdSeen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ads[id]
	if !ok {
		return models.ErrNotFound
	}
	a.PostSeen = true
	return nil
}

func (s *Store) UnfilteredAds(_ context.Context, sessionID string, limit int) ([]models.AdRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AdRecord
	for _, id := range s.adOrder {
		a := s.ads[id]
		if a.SessionID != sessionID || a.Filtered {
			continue
		}
		out = append(out, *a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) RecordAdScan(_ context.Context, id string, suspicious bool, filteredLink, screenshot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ads[id]
	if !ok {
		return models.ErrNotFound
	}
	a.Filtered = true
	a.FilteredLink = filteredLink
	if suspicious || a.Suspicious == models.SuspicionUnknown {
		a.Suspicious = models.SuspicionOf(suspicious)
	}
	if screenshot != "" {
		a.Screenshot = screenshot
	}
	return nil
}

func (s *Store) ListAds(_ context.Context, sessionID string) ([]models.AdRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AdRecord
	for _, id := range s.adOrder {
		if a := s.ads[id]; a.SessionID == sessionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *Store) GetAd(_ context.Context, id string) (*models.AdRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ads[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) UpdateAdReview(_ context.Context, id, status, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ads[id]
	if !ok {
		return models.ErrNotFound
	}
	a.ManualStatus, a.ReviewNotes = status, notes
	return nil
}

// ---- frequency

func cloneStats(st models.FrequencyStats) models.FrequencyStats {
	out := models.FrequencyStats{SessionID: st.SessionID, Freq: map[string]int{}, Priority: map[string]int{}}
	for k, v := range st.Freq {
		out.Freq[k] = v
	}
	for k, v := range st.Priority {
		out.Priority[k] = v
	}
	return out
}

func (s *Store) GetFrequency(_ context.Context, sessionID string) (*models.FrequencyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.freq[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := cloneStats(st)
	return &cp, nil
}

func (s *Store) SaveFrequency(_ context.Context, stats models.FrequencyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freq[stats.SessionID] = cloneStats(stats)
	return nil
}

// ---- targeted apps

func (s *Store) CreateTargetedApp(_ context.Context, app *models.TargetedApp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	cp := *app
	cp.Keywords = slices.Clone(app.Keywords)
	s.apps[app.ID] = &cp
	return nil
}

func (s *Store) TargetedApps(_ context.Context, sessionID string) ([]models.TargetedApp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TargetedApp
	for _, a := range s.apps {
		if a.SessionID == sessionID {
			cp := *a
			cp.Keywords = slices.Clone(a.Keywords)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- operator users

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return nil
	}
	u.ID = len(s.users) + 1
	cp := *u
	s.users[u.Username] = &cp
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
