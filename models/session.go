package models

import (
	"fmt"
	"time"
)

// Phase names one stage of the orchestration state machine.
type Phase string

const (
	PhaseNew          Phase = "new"
	PhaseSearch       Phase = "search"
	PhaseProfileReels Phase = "profile_reels"
	PhaseReels        Phase = "reels"
	PhaseProfileBio   Phase = "profile_bio"
	PhaseFeedAds      Phase = "feed_ads"
	PhaseTargetApp    Phase = "target_app"
	PhaseSuspended    Phase = "suspended"
)

var phases = map[Phase]bool{
	PhaseNew: true, PhaseSearch: true, PhaseProfileReels: true, PhaseReels: true,
	PhaseProfileBio: true, PhaseFeedAds: true, PhaseTargetApp: true, PhaseSuspended: true,
}

// ParsePhase rejects anything outside the closed enum. An empty string is the
// initial phase.
func ParsePhase(s string) (Phase, error) {
	if s == "" {
		return PhaseNew, nil
	}
	p := Phase(s)
	if !phases[p] {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// IsSide reports whether p runs outside the main search/reels cycle.
func (p Phase) IsSide() bool {
	return p == PhaseFeedAds || p == PhaseTargetApp
}

// ScraperSession is one discovery run bound to one account and one prompt.
type ScraperSession struct {
	ID                string        `json:"id" db:"id"`
	Name              string        `json:"name" db:"name"`
	AccountID         *string       `json:"account_id,omitempty" db:"account_id"`
	Prompt            string        `json:"prompt" db:"prompt"`
	Keywords          []string      `json:"keywords" db:"-"`
	Hashtags          []string      `json:"hashtags" db:"-"`
	Phase             Phase         `json:"phase" db:"phase"`
	ReelsSeen         int           `json:"reels_seen" db:"reels_seen"`
	RelevantReelsSeen int           `json:"relevant_reels_seen" db:"relevant_reels_seen"`
	ActiveDuration    time.Duration `json:"active_duration" db:"active_duration"`
	Suspended         bool          `json:"suspended" db:"suspended"`
	Active            bool          `json:"active" db:"active"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// Checkpoint is the persisted snapshot that lets a session resume.
type Checkpoint struct {
	Phase             Phase
	ReelsSeen         int
	RelevantReelsSeen int
	ActiveDuration    time.Duration
}

// Checkpoint captures the session's resumable state.
func (s *ScraperSession) Checkpoint() Checkpoint {
	return Checkpoint{
		Phase:             s.Phase,
		ReelsSeen:         s.ReelsSeen,
		RelevantReelsSeen: s.RelevantReelsSeen,
		ActiveDuration:    s.ActiveDuration,
	}
}

// RecordItem counts one processed item. relevant_reels_seen never exceeds
// reels_seen because both move together here.
func (s *ScraperSession) RecordItem(relevant bool) {
	s.ReelsSeen++
	if relevant {
		s.RelevantReelsSeen++
	}
}

// Account is a feed login bound to at most one session.
type Account struct {
	ID        string  `json:"id" db:"id"`
	Username  string  `json:"-" db:"username"`
	Password  string  `json:"-" db:"password"`
	AuthBlob  string  `json:"-" db:"auth_blob"`
	SessionID *string `json:"session_id,omitempty" db:"session_id"`
}

// TargetedApp seeds an independent profile-driven crawl.
type TargetedApp struct {
	ID        string   `json:"id" db:"id"`
	SessionID string   `json:"session_id" db:"session_id"`
	Name      string   `json:"name" db:"name"`
	Keywords  []string `json:"keywords" db:"-"`
}

// FrequencyStats tracks keyword occurrence counts and priority weights.
type FrequencyStats struct {
	SessionID string         `json:"session_id"`
	Freq      map[string]int `json:"freq"`
	Priority  map[string]int `json:"priority"`
}

// User is an operator of the admin API.
type User struct {
	ID           int    `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
}
