// Package scanner visits bio links and ad targets directly and judges
// whether the landing page is suspicious for the session topic.
package scanner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"reel-scout/logger"
	"reel-scout/models"
	"reel-scout/scraper"
	"reel-scout/services"
)

// Judge classifies aggregated page text.
type Judge interface {
	ClassifyPage(ctx context.Context, text, topic string, keywords []string) bool
}

// Reputation is an optional second opinion on a URL.
type Reputation interface {
	Enabled() bool
	CheckURL(ctx context.Context, url string) (services.Verdict, error)
}

// Store is the slice of persistence the scanner needs.
type Store interface {
	PendingLinks(ctx context.Context, sessionID string, limit int) ([]models.LinkRecord, error)
	RecordLinkScan(ctx context.Context, id string, suspicious bool, resolvedURL, screenshot string) error
	UnfilteredAds(ctx context.Context, sessionID string, limit int) ([]models.AdRecord, error)
	RecordAdScan(ctx context.Context, id string, suspicious bool, filteredLink, screenshot string) error
}

type Options struct {
	Settle       time.Duration
	PreviewChars int
}

// Topic is the context every page is judged against.
type Topic struct {
	Prompt   string
	Keywords []string
}

// Result of scanning one URL.
type Result struct {
	Relevant    bool
	Flagged     bool
	ResolvedURL string
	Screenshot  []byte
	Text        scraper.PageText
}

// Suspicious ORs the classifier verdict with the reputation signal.
func (r Result) Suspicious() bool {
	return r.Relevant || r.Flagged
}

// EncodedScreenshot returns the screenshot as stored: base64, or "".
func (r Result) EncodedScreenshot() string {
	if len(r.Screenshot) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(r.Screenshot)
}

type Scanner struct {
	page       scraper.Page
	judge      Judge
	reputation Reputation
	store      Store
	opts       Options
	log        logger.Logger
}

func New(page scraper.Page, judge Judge, reputation Reputation, store Store, opts Options, log logger.Logger) *Scanner {
	return &Scanner{
		page:       page,
		judge:      judge,
		reputation: reputation,
		store:      store,
		opts:       opts,
		log:        log,
	}
}

// HasScheme reports whether raw starts with http:// or https://.
func HasScheme(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Scan navigates to rawURL and judges the landing page. A URL without a
// scheme is not relevant and is never visited. A navigation timeout is
// tolerated: whatever loaded is still judged.
func (s *Scanner) Scan(ctx context.Context, rawURL string, topic Topic) (Result, error) {
	if !HasScheme(rawURL) {
		s.log.Debug("skipping url without scheme", logger.String("url", rawURL))
		return Result{}, nil
	}

	if err := s.page.Navigate(ctx, rawURL); err != nil {
		if !errors.Is(err, models.ErrTransientNetwork) {
			return Result{}, fmt.Errorf("%w: %v", models.ErrTransientNetwork, err)
		}
		s.log.Info("navigation timed out, scanning what loaded", logger.String("url", rawURL))
	}
	s.page.Wait(s.opts.Settle)

	res := Result{ResolvedURL: rawURL}
	if u, err := s.page.URL(ctx); err == nil && u != "" {
		res.ResolvedURL = u
	}

	text, err := scraper.ExtractPageText(ctx, s.page, s.opts.PreviewChars)
	if err != nil {
		s.log.Warn("page text unavailable", logger.String("url", rawURL), logger.Error(err))
	}
	res.Text = text

	if shot, err := s.page.Screenshot(ctx); err != nil {
		s.log.Warn("screenshot failed", logger.String("url", rawURL), logger.Error(err))
	} else {
		res.Screenshot = shot
	}

	if !text.Empty() {
		res.Relevant = s.judge.ClassifyPage(ctx, text.String(), topic.Prompt, topic.Keywords)
	}

	res.Flagged = s.flagged(ctx, res.ResolvedURL)
	return res, nil
}

// unreachable is the result for a URL that could not be loaded: nothing to
// judge, no resolved URL and no screenshot, only the reputation signal.
func (s *Scanner) unreachable(ctx context.Context, rawURL string) Result {
	return Result{Flagged: s.flagged(ctx, rawURL)}
}

func (s *Scanner) flagged(ctx context.Context, url string) bool {
	if s.reputation == nil || !s.reputation.Enabled() {
		return false
	}
	v, err := s.reputation.CheckURL(ctx, url)
	if err != nil {
		s.log.Warn("reputation lookup failed", logger.String("url", url), logger.Error(err))
		return false
	}
	return v.Flagged()
}

// ScanLinks scans up to limit pending links of the session and records a
// suspicion signal for each. A link that fails to load is recorded too, so
// it leaves the pending set. Cancellation is observed between links.
func (s *Scanner) ScanLinks(ctx context.Context, sessionID string, topic Topic, limit int) (int, error) {
	links, err := s.store.PendingLinks(ctx, sessionID, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending links: %w", err)
	}

	op := context.WithoutCancel(ctx)
	scanned := 0
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}
		res, err := s.Scan(op, link.URL, topic)
		if err != nil {
			s.log.Warn("link unreachable", logger.String("url", link.URL), logger.Error(err))
			res = s.unreachable(op, link.URL)
		}
		if err := s.store.RecordLinkScan(op, link.ID, res.Suspicious(), res.ResolvedURL, res.EncodedScreenshot()); err != nil {
			s.log.Error("failed to record link scan", logger.String("link_id", link.ID), logger.Error(err))
			continue
		}
		scanned++
		s.log.Info("link scanned",
			logger.String("url", link.URL),
			logger.Bool("suspicious", res.Suspicious()),
			logger.Bool("reputation_flagged", res.Flagged),
		)
	}
	return scanned, nil
}

// ScanAds follows the target of every ad not yet filtered and records the
// resolved link with its verdict.
func (s *Scanner) ScanAds(ctx context.Context, sessionID string, topic Topic, limit int) (int, error) {
	ads, err := s.store.UnfilteredAds(ctx, sessionID, limit)
	if err != nil {
		return 0, fmt.Errorf("list unfiltered ads: %w", err)
	}

	op := context.WithoutCancel(ctx)
	scanned := 0
	for _, ad := range ads {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}
		res, err := s.Scan(op, ad.Link, topic)
		if err != nil {
			s.log.Warn("ad target unreachable", logger.String("link", ad.Link), logger.Error(err))
			res = s.unreachable(op, ad.Link)
		}
		filtered := res.ResolvedURL
		if !HasScheme(ad.Link) {
			filtered = ""
		}
		if err := s.store.RecordAdScan(op, ad.ID, res.Suspicious(), filtered, res.EncodedScreenshot()); err != nil {
			s.log.Error("failed to record ad scan", logger.String("ad_id", ad.ID), logger.Error(err))
			continue
		}
		scanned++
	}
	return scanned, nil
}
