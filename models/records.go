package models

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// ContentRecord is one reel or post observed in feed traffic.
type ContentRecord struct {
	SessionID     string     `json:"session_id" db:"session_id"`
	Code          string     `json:"code" db:"code"`
	Username      string     `json:"username" db:"username"`
	Caption       string     `json:"caption" db:"caption"`
	LikeCount     int64      `json:"like_count" db:"like_count"`
	CommentCount  int64      `json:"comment_count" db:"comment_count"`
	ViewCount     int64      `json:"view_count" db:"view_count"`
	TakenAt       *time.Time `json:"taken_at,omitempty" db:"taken_at"`
	TargetedAppID string     `json:"targeted_app_id,omitempty" db:"targeted_app_id"`
	Relevant      *bool      `json:"relevant,omitempty" db:"relevant"`
	SavedAt       time.Time  `json:"saved_at" db:"saved_at"`
}

// Merge fills fields of c that are still empty from other. Later payloads
// augment a record, they never blank it.
func (c *ContentRecord) Merge(other *ContentRecord) {
	if other == nil {
		return
	}
	if c.Code == "" {
		c.Code = other.Code
	}
	if c.Username == "" {
		c.Username = other.Username
	}
	if c.Caption == "" {
		c.Caption = other.Caption
	}
	if other.LikeCount > c.LikeCount {
		c.LikeCount = other.LikeCount
	}
	if other.CommentCount > c.CommentCount {
		c.CommentCount = other.CommentCount
	}
	if other.ViewCount > c.ViewCount {
		c.ViewCount = other.ViewCount
	}
	if c.TakenAt == nil {
		c.TakenAt = other.TakenAt
	}
}

// Suspicion is a tri-state verdict: unknown until something judges it.
type Suspicion string

const (
	SuspicionUnknown Suspicion = ""
	SuspicionTrue    Suspicion = "true"
	SuspicionFalse   Suspicion = "false"
)

// SuspicionOf converts a boolean verdict.
func SuspicionOf(b bool) Suspicion {
	if b {
		return SuspicionTrue
	}
	return SuspicionFalse
}

// ProfileRecord is a profile sighted during a session.
type ProfileRecord struct {
	SessionID     string    `json:"session_id" db:"session_id"`
	Username      string    `json:"username" db:"username"`
	Scraped       bool      `json:"scraped" db:"scraped"`
	ReelsCrawled  bool      `json:"reels_crawled" db:"reels_crawled"`
	Bio           string    `json:"bio" db:"bio"`
	Links         []string  `json:"links" db:"-"`
	Suspicious    Suspicion `json:"suspicious" db:"suspicious"`
	Source        Phase     `json:"source" db:"source"`
	TargetedAppID string    `json:"targeted_app_id,omitempty" db:"targeted_app_id"`
	SavedOn       time.Time `json:"saved_on" db:"saved_on"`
}

// ApplyScrape moves the profile to scraped exactly once. It reports false and
// leaves the record untouched when it was already scraped.
func (p *ProfileRecord) ApplyScrape(bio string, links []string) bool {
	if p.Scraped {
		return false
	}
	p.Scraped = true
	p.Bio = bio
	p.Links = append([]string(nil), links...)
	return true
}

// LinkRecord is an outbound link with every profile that referred to it.
type LinkRecord struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	URL          string    `json:"url" db:"url"`
	Profiles     []string  `json:"profiles" db:"-"`
	Signal       Suspicion `json:"signal" db:"signal"`
	ManualStatus string    `json:"manual_status" db:"manual_status"`
	ReviewNotes  string    `json:"review_notes" db:"review_notes"`
	ResolvedURL  string    `json:"resolved_url" db:"resolved_url"`
	Screenshot   string    `json:"screenshot,omitempty" db:"screenshot"`
}

// AddProfiles unions usernames into the profile set. Replaying the same name
// is a no-op.
func (l *LinkRecord) AddProfiles(usernames ...string) {
	l.Profiles = UnionStrings(l.Profiles, usernames...)
}

// RecordSignal ORs one suspicion signal into the aggregate. A false signal
// never clears an earlier true one.
func (l *LinkRecord) RecordSignal(suspicious bool) {
	if suspicious {
		l.Signal = SuspicionTrue
		return
	}
	if l.Signal == SuspicionUnknown {
		l.Signal = SuspicionFalse
	}
}

// Manual review statuses that override the aggregated signal.
const (
	ReviewConfirmed = "confirmed"
	ReviewCleared   = "cleared"
)

// Suspicious resolves the effective verdict: a manual review wins over the
// aggregated signal.
func (l *LinkRecord) Suspicious() Suspicion {
	switch l.ManualStatus {
	case ReviewConfirmed:
		return SuspicionTrue
	case ReviewCleared:
		return SuspicionFalse
	}
	return l.Signal
}

// AdRecord is a sponsored item seen in the home feed.
type AdRecord struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	Link         string    `json:"link" db:"link"`
	Code         string    `json:"code" db:"code"`
	Profile      string    `json:"profile" db:"profile"`
	Caption      string    `json:"caption" db:"caption"`
	LikeCount    int64     `json:"like_count" db:"like_count"`
	CommentCount int64     `json:"comment_count" db:"comment_count"`
	LinkText     string    `json:"link_text" db:"link_text"`
	FilteredLink string    `json:"filtered_link" db:"filtered_link"`
	Filtered     bool      `json:"filtered" db:"filtered"`
	Suspicious   Suspicion `json:"suspicious" db:"suspicious"`
	Screenshot   string    `json:"screenshot,omitempty" db:"screenshot"`
	PostSeen     bool      `json:"post_seen" db:"post_seen"`
	ManualStatus string    `json:"manual_status" db:"manual_status"`
	ReviewNotes  string    `json:"review_notes" db:"review_notes"`
}

// UnionStrings returns the sorted set union of base and extra, skipping empty strings.
func UnionStrings(base []string, extra ...string) []string {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range base {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	for _, s := range extra {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NormalizeLink trims a link and lowercases its scheme and host so the same
// destination is stored once. Unparseable input is returned trimmed.
func NormalizeLink(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "/" {
		u.Path = ""
	}
	u.Fragment, u.RawFragment = "", ""
	return u.String()
}
