// Package orchestrator runs a discovery session as an explicit phase state
// machine.
//
// The main cycle is new → search → profile_reels → reels ⇄ profile_bio. The
// side phases feed_ads and target_app run on request and never replace the
// persisted main phase. Every phase boundary writes a checkpoint (phase,
// counters and active time) so a restarted process resumes where the last
// one stopped. Cancellation and suspension are observed between items, never
// in the middle of a dwell.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"reel-scout/config"
	"reel-scout/frequency"
	"reel-scout/interceptor"
	"reel-scout/logger"
	"reel-scout/metrics"
	"reel-scout/models"
	"reel-scout/scanner"
	"reel-scout/scraper"
)

// Store is the persistence gateway the orchestrator writes through.
type Store interface {
	scanner.Store
	frequency.Store

	GetSession(ctx context.Context, id string) (*models.ScraperSession, error)
	SaveCheckpoint(ctx context.Context, id string, cp models.Checkpoint) error
	SetActive(ctx context.Context, id string, active bool) error
	SetSuspended(ctx context.Context, id string, suspended bool) error

	GetFrequency(ctx context.Context, sessionID string) (*models.FrequencyStats, error)

	ContentExists(ctx context.Context, sessionID, code string) (bool, error)
	SaveContent(ctx context.Context, rec models.ContentRecord) error
	SaveContentBatch(ctx context.Context, recs []models.ContentRecord) error

	AddProfile(ctx context.Context, p models.ProfileRecord) (bool, error)
	ProfilesToCrawl(ctx context.Context, sessionID string, limit int) ([]models.ProfileRecord, error)
	MarkReelsCrawled(ctx context.Context, sessionID, username string) error
	UnscrapedProfiles(ctx context.Context, sessionID string, limit int) ([]models.ProfileRecord, error)
	ApplyProfileScrape(ctx context.Context, sessionID, username, bio string, links []string) (bool, error)
	AddLinks(ctx context.Context, sessionID string, links []models.LinkRecord) error

	AddAd(ctx context.Context, ad models.AdRecord) (models.AdRecord, error)
	MarkAdSeen(ctx context.Context, id string) error

	TargetedApps(ctx context.Context, sessionID string) ([]models.TargetedApp, error)
}

// Classifier judges a caption against a topic. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text, topic string, keywords []string) bool
}

// LinkScanner follows up stored links and ads.
type LinkScanner interface {
	ScanLinks(ctx context.Context, sessionID string, topic scanner.Topic, limit int) (int, error)
	ScanAds(ctx context.Context, sessionID string, topic scanner.Topic, limit int) (int, error)
}

// Authenticator logs the page into the feed. A failure wraps
// models.ErrAuthExpired.
type Authenticator interface {
	Login(ctx context.Context, page scraper.Page) error
}

// Notifier tells operators about a session that needs attention.
type Notifier interface {
	SessionSuspended(ctx context.Context, session *models.ScraperSession, reason error) error
}

// Deps are the collaborators of one orchestrator. Scanner, Auth and Notifier
// are optional.
type Deps struct {
	Page       scraper.Page
	Store      Store
	Classifier Classifier
	Scanner    LinkScanner
	Engager    Engager
	Auth       Authenticator
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Log        logger.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Options struct {
	Agent     config.AgentConfig
	BaseURL   string
	Endpoints []string
}

const (
	loginPath       = "/accounts/login"
	checkpointEvery = 10
)

// Orchestrator is the sole writer of its session's phase and counters.
type Orchestrator struct {
	cfg     config.AgentConfig
	baseURL string

	session  *models.ScraperSession
	page     scraper.Page
	store    Store
	judge    Classifier
	scanner  LinkScanner
	engager  Engager
	auth     Authenticator
	notifier Notifier
	metrics  *metrics.Metrics
	log      logger.Logger
	now      func() time.Time

	ic      *interceptor.Interceptor
	tracker *frequency.Tracker

	suspendRequested atomic.Bool
	activeMark       time.Time
	processed        map[string]bool
	bioMisses        map[string]bool
	sinceCheckpoint  int
}

// New builds an orchestrator for session, resuming its frequency stats or
// seeding them at zero.
func New(ctx context.Context, session *models.ScraperSession, deps Deps, opts Options) (*Orchestrator, error) {
	if _, err := models.ParsePhase(string(session.Phase)); err != nil {
		return nil, err
	}
	if session.Phase == "" {
		session.Phase = models.PhaseNew
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	engager := deps.Engager
	if engager == nil {
		engager = NewPageEngager(deps.Page)
	}

	existing, err := deps.Store.GetFrequency(ctx, session.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load frequency stats: %w", err)
	}
	tracker := frequency.New(session.ID, session.Keywords, existing, deps.Store)
	if existing == nil {
		if err := deps.Store.SaveFrequency(ctx, tracker.Snapshot()); err != nil {
			return nil, fmt.Errorf("seed frequency stats: %w", err)
		}
	}

	o := &Orchestrator{
		cfg:       opts.Agent,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		session:   session,
		page:      deps.Page,
		store:     deps.Store,
		judge:     deps.Classifier,
		scanner:   deps.Scanner,
		engager:   engager,
		auth:      deps.Auth,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		log:       deps.Log.With(logger.String("session_id", session.ID)),
		now:       clock,
		ic:        interceptor.New(opts.Endpoints, 0, deps.Log, deps.Metrics),
		tracker:   tracker,
		processed: make(map[string]bool),
		bioMisses: make(map[string]bool),
	}
	o.ic.Attach(deps.Page)
	return o, nil
}

// Resume loads the session from the store and builds its orchestrator.
func Resume(ctx context.Context, sessionID string, deps Deps, opts Options) (*Orchestrator, error) {
	session, err := deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return New(ctx, session, deps, opts)
}

// Phase is the current main phase.
func (o *Orchestrator) Phase() models.Phase {
	return o.session.Phase
}

// Session returns a copy of the in-memory session state.
func (o *Orchestrator) Session() models.ScraperSession {
	return *o.session
}

// Suspend asks the run loop to stop at the next boundary and mark the
// session suspended. Safe to call from any goroutine.
func (o *Orchestrator) Suspend() {
	o.suspendRequested.Store(true)
}

// Run drives the main cycle until the watch budget is spent, the context is
// cancelled, or the session is suspended. Counters are flushed before it
// returns in every case.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.session.Suspended {
		return models.ErrSessionSuspended
	}
	if err := o.begin(ctx); err != nil {
		return err
	}
	defer o.end(ctx)
	if err := o.login(ctx); err != nil {
		return err
	}

	deadline := o.now().Add(o.cfg.WatchBudget)
	o.metrics.SetPhase("", string(o.session.Phase))
	o.log.Info("session started", logger.String("phase", string(o.session.Phase)))

	for {
		if err := o.boundary(ctx); err != nil {
			return o.stop(ctx, err)
		}
		if !o.now().Before(deadline) {
			o.log.Info("watch budget exhausted")
			o.checkpoint(ctx)
			return nil
		}

		err := o.step(ctx)
		o.checkpoint(ctx)
		if err == nil {
			continue
		}
		if stop := o.fatal(ctx, err); stop != nil {
			return o.stop(ctx, stop)
		}
		o.log.Error("phase failed, continuing", logger.String("phase", string(o.session.Phase)), logger.Error(err))
		o.page.Wait(o.cfg.PollInterval)
	}
}

// RunSide runs one side phase to completion. The main phase is left as is;
// only counters are checkpointed.
func (o *Orchestrator) RunSide(ctx context.Context, phase models.Phase) error {
	if !phase.IsSide() {
		return fmt.Errorf("%s is not a side phase", phase)
	}
	if o.session.Suspended {
		return models.ErrSessionSuspended
	}
	if err := o.begin(ctx); err != nil {
		return err
	}
	defer o.end(ctx)
	if err := o.login(ctx); err != nil {
		return err
	}

	o.metrics.SetPhase("", string(phase))
	defer o.metrics.SetPhase(string(phase), "")

	err := o.guard(phase, func() error {
		if phase == models.PhaseFeedAds {
			return o.runFeedAds(ctx)
		}
		return o.runTargetApps(ctx)
	})
	o.checkpoint(ctx)
	if err == nil {
		return nil
	}
	if stop := o.fatal(ctx, err); stop != nil {
		return o.stop(ctx, stop)
	}
	return err
}

func (o *Orchestrator) begin(ctx context.Context) error {
	o.activeMark = o.now()
	if err := o.store.SetActive(ctx, o.session.ID, true); err != nil {
		return fmt.Errorf("mark session active: %w", err)
	}
	o.session.Active = true
	return nil
}

// login authenticates before the first phase. Failing here suspends the
// session like any other failed re-login, unless the run was interrupted.
func (o *Orchestrator) login(ctx context.Context) error {
	if o.auth == nil {
		return nil
	}
	if err := o.auth.Login(ctx, o.page); err != nil {
		if ctx.Err() != nil {
			return o.stop(ctx, ctx.Err())
		}
		return o.stop(ctx, o.suspend(ctx, err))
	}
	return nil
}

func (o *Orchestrator) end(ctx context.Context) {
	o.session.Active = false
	if err := o.store.SetActive(context.WithoutCancel(ctx), o.session.ID, false); err != nil {
		o.log.Warn("failed to clear active flag", logger.Error(err))
	}
}

// step runs the body of the current phase and advances on success.
func (o *Orchestrator) step(ctx context.Context) error {
	phase := o.session.Phase
	var next models.Phase
	err := o.guard(phase, func() error {
		switch phase {
		case models.PhaseNew:
			next = models.PhaseSearch
			return nil
		case models.PhaseSearch:
			next = models.PhaseProfileReels
			return o.runSearch(ctx)
		case models.PhaseProfileReels:
			next = models.PhaseReels
			return o.runProfileReels(ctx)
		case models.PhaseReels:
			next = models.PhaseProfileBio
			return o.runReels(ctx)
		case models.PhaseProfileBio:
			next = models.PhaseReels
			return o.runProfileBio(ctx)
		default:
			// a side or suspended phase persisted as main phase; rejoin the cycle
			o.log.Warn("unexpected main phase, rejoining reels", logger.String("phase", string(phase)))
			next = models.PhaseReels
			return nil
		}
	})
	if err != nil {
		return err
	}
	o.transition(next)
	return nil
}

// guard converts a panic in a phase body into an error.
func (o *Orchestrator) guard(phase models.Phase, body func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("phase %s panicked: %v", phase, r)
		}
	}()
	return body()
}

func (o *Orchestrator) transition(next models.Phase) {
	prev := o.session.Phase
	o.session.Phase = next
	o.metrics.SetPhase(string(prev), string(next))
	o.log.Info("phase transition", logger.String("from", string(prev)), logger.String("to", string(next)))
}

// boundary reports why the loop must stop, if it must.
func (o *Orchestrator) boundary(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.suspendRequested.Load() {
		return models.ErrSessionSuspended
	}
	sess, err := o.store.GetSession(ctx, o.session.ID)
	if err == nil && sess.Suspended {
		return models.ErrSessionSuspended
	}
	return nil
}

// fatal maps a phase error to the error that ends the run, or nil when the
// loop should continue.
func (o *Orchestrator) fatal(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrAuthExpired):
		return o.suspend(ctx, err)
	case errors.Is(err, models.ErrSessionSuspended):
		return err
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return ctx.Err()
	}
	return nil
}

// stop flushes counters and returns err, marking the session suspended when
// err is a suspension.
func (o *Orchestrator) stop(ctx context.Context, err error) error {
	if errors.Is(err, models.ErrSessionSuspended) && !o.session.Suspended {
		o.markSuspended(ctx)
	}
	o.checkpoint(ctx)
	o.log.Info("session stopped", logger.String("phase", string(o.session.Phase)), logger.Error(err))
	return err
}

// suspend handles a failed re-login: the one failure fatal to a session.
func (o *Orchestrator) suspend(ctx context.Context, cause error) error {
	o.log.Error("authentication failed, suspending session", logger.Error(cause))
	o.markSuspended(ctx)
	if o.notifier != nil {
		if err := o.notifier.SessionSuspended(context.WithoutCancel(ctx), o.session, cause); err != nil {
			o.log.Warn("failed to notify operators", logger.Error(err))
		}
	}
	return fmt.Errorf("%w: %v", models.ErrSessionSuspended, cause)
}

func (o *Orchestrator) markSuspended(ctx context.Context) {
	o.session.Suspended = true
	o.metrics.SetPhase(string(o.session.Phase), string(models.PhaseSuspended))
	if err := o.store.SetSuspended(context.WithoutCancel(ctx), o.session.ID, true); err != nil {
		o.log.Error("failed to persist suspension", logger.Error(err))
	}
}

// checkpoint persists phase, counters and active time. It runs even after
// cancellation.
func (o *Orchestrator) checkpoint(ctx context.Context) {
	now := o.now()
	o.session.ActiveDuration += now.Sub(o.activeMark)
	o.activeMark = now
	o.sinceCheckpoint = 0

	if err := o.store.SaveCheckpoint(context.WithoutCancel(ctx), o.session.ID, o.session.Checkpoint()); err != nil {
		o.log.Error("checkpoint failed", logger.Error(err))
		return
	}
	o.metrics.CheckpointWritten()
}

// navigate loads url and re-authenticates once when the feed bounces the
// page to its login form.
func (o *Orchestrator) navigate(ctx context.Context, url string) error {
	if err := o.page.Navigate(ctx, url); err != nil {
		return err
	}
	if !o.onLoginPage(ctx) {
		return nil
	}
	if o.auth == nil {
		return fmt.Errorf("%w: redirected to login", models.ErrAuthExpired)
	}
	o.log.Warn("redirected to login, re-authenticating", logger.String("url", url))
	if err := o.auth.Login(ctx, o.page); err != nil {
		return fmt.Errorf("%w: %v", models.ErrAuthExpired, err)
	}
	if err := o.page.Navigate(ctx, url); err != nil {
		return err
	}
	if o.onLoginPage(ctx) {
		return fmt.Errorf("%w: still on login after re-login", models.ErrAuthExpired)
	}
	return nil
}

func (o *Orchestrator) onLoginPage(ctx context.Context) bool {
	u, err := o.page.URL(ctx)
	return err == nil && strings.Contains(u, loginPath)
}

// waitFor polls cond every PollInterval for up to d. Absence is not an error.
func (o *Orchestrator) waitFor(d time.Duration, cond func() bool) bool {
	deadline := o.now().Add(d)
	for {
		if cond() {
			return true
		}
		if !o.now().Before(deadline) {
			return false
		}
		o.page.Wait(o.cfg.PollInterval)
	}
}

func (o *Orchestrator) topic() scanner.Topic {
	return scanner.Topic{Prompt: o.session.Prompt, Keywords: o.session.Keywords}
}
