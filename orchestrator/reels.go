package orchestrator

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"reel-scout/logger"
	"reel-scout/models"
	"reel-scout/scraper"
)

// judgeTopic is what an item is classified against: the session prompt, or
// a targeted app.
type judgeTopic struct {
	Prompt   string
	Keywords []string
}

func (o *Orchestrator) sessionTopic() judgeTopic {
	return judgeTopic{Prompt: o.session.Prompt, Keywords: o.session.Keywords}
}

// runReels watches the reels feed until its budget is spent or enough new
// profiles were found.
func (o *Orchestrator) runReels(ctx context.Context) error {
	op := context.WithoutCancel(ctx)
	o.ic.Content.Reset()

	if err := o.navigate(op, o.baseURL+"/reels/"); err != nil {
		if errors.Is(err, models.ErrAuthExpired) {
			return err
		}
		o.log.Warn("reels feed failed to load, leaving phase", logger.Error(err))
		return nil
	}
	if !o.waitFor(o.cfg.FirstPayloadWait, func() bool { return o.ic.Content.Len() > 0 }) {
		o.log.Warn("no reels traffic observed, leaving phase")
		return nil
	}

	end := o.now().Add(o.cfg.ReelsPhaseBudget)
	found := 0
	for o.now().Before(end) && found < o.cfg.MaxProfilesPerCycle {
		if err := o.boundary(ctx); err != nil {
			return err
		}
		if o.watchCurrentReel(op) {
			found++
		}
		if err := o.page.PressKey(op, scraper.KeyArrowDown); err != nil {
			o.log.Warn("failed to advance reel", logger.Error(err))
		}
		o.page.Wait(o.cfg.ScrollDelay)
	}
	o.log.Info("reels phase done",
		logger.Int("reels_seen", o.session.ReelsSeen),
		logger.Int("relevant_reels_seen", o.session.RelevantReelsSeen),
		logger.Int("new_profiles", found),
	)
	return nil
}

// watchCurrentReel processes the reel on screen and reports whether its
// owner was a new profile.
func (o *Orchestrator) watchCurrentReel(ctx context.Context) bool {
	code := o.currentCode(ctx)
	rec, ok := o.awaitItem(code)
	if !ok || o.alreadyProcessed(ctx, code) {
		o.page.Wait(o.cfg.SkipDwell)
		return false
	}

	if !o.processItem(ctx, rec, models.PhaseReels, o.sessionTopic(), "") {
		o.page.Wait(o.cfg.SkipDwell)
		return false
	}
	o.page.Wait(o.cfg.RelevantDwell)
	o.like(ctx)
	created := o.addProfile(ctx, rec.Username, models.PhaseReels, "")
	o.page.Wait(o.cfg.RelevantExtraDwell)
	return created
}

// awaitItem polls the content buffer for code for up to ItemWait.
func (o *Orchestrator) awaitItem(code string) (models.ContentRecord, bool) {
	if code == "" {
		return models.ContentRecord{}, false
	}
	var rec models.ContentRecord
	ok := o.waitFor(o.cfg.ItemWait, func() bool {
		var found bool
		rec, found = o.ic.Content.Get(code)
		return found
	})
	return rec, ok
}

// alreadyProcessed reports whether code was classified in this run or
// persisted by an earlier one.
func (o *Orchestrator) alreadyProcessed(ctx context.Context, code string) bool {
	if o.processed[code] {
		return true
	}
	exists, err := o.store.ContentExists(ctx, o.session.ID, code)
	if err != nil {
		o.log.Warn("content lookup failed", logger.String("code", code), logger.Error(err))
		return false
	}
	if exists {
		o.processed[code] = true
	}
	return exists
}

// classifyItem judges rec, feeds the frequency tracker and persists it.
func (o *Orchestrator) classifyItem(ctx context.Context, rec models.ContentRecord, topic judgeTopic, appID string) bool {
	rec, relevant := o.judgeItem(ctx, rec, topic, appID)
	if err := o.store.SaveContent(ctx, rec); err != nil {
		o.log.Warn("failed to save content", logger.String("code", rec.Code), logger.Error(err))
	}
	return relevant
}

// judgeItem classifies rec and feeds the frequency tracker. The returned
// record carries the verdict and still has to be persisted.
func (o *Orchestrator) judgeItem(ctx context.Context, rec models.ContentRecord, topic judgeTopic, appID string) (models.ContentRecord, bool) {
	relevant := o.judge.Classify(ctx, rec.Caption, topic.Prompt, topic.Keywords)

	rec.SessionID = o.session.ID
	rec.TargetedAppID = appID
	rec.Relevant = &relevant
	rec.SavedAt = o.now()
	o.processed[rec.Code] = true

	if _, err := o.tracker.Observe(ctx, rec.Caption, relevant); err != nil {
		o.log.Warn("frequency update failed", logger.Error(err))
	}
	return rec, relevant
}

// processItem is classifyItem for watched items: it also moves the session
// counters.
func (o *Orchestrator) processItem(ctx context.Context, rec models.ContentRecord, phase models.Phase, topic judgeTopic, appID string) bool {
	relevant := o.classifyItem(ctx, rec, topic, appID)
	o.session.RecordItem(relevant)
	o.metrics.ItemProcessed(string(phase), relevant)

	o.sinceCheckpoint++
	if o.sinceCheckpoint >= checkpointEvery {
		o.checkpoint(ctx)
	}
	return relevant
}

func (o *Orchestrator) addProfile(ctx context.Context, username string, source models.Phase, appID string) bool {
	if username == "" {
		return false
	}
	created, err := o.store.AddProfile(ctx, models.ProfileRecord{
		SessionID:     o.session.ID,
		Username:      username,
		Source:        source,
		TargetedAppID: appID,
		SavedOn:       o.now(),
	})
	if err != nil {
		o.log.Warn("failed to save profile", logger.String("profile", username), logger.Error(err))
		return false
	}
	return created
}

func (o *Orchestrator) like(ctx context.Context) {
	if err := o.engager.Like(ctx); err != nil {
		o.log.Debug("like failed", logger.Error(err))
	}
}

func (o *Orchestrator) save(ctx context.Context) {
	if err := o.engager.Save(ctx); err != nil {
		o.log.Debug("save failed", logger.Error(err))
	}
}

func (o *Orchestrator) currentCode(ctx context.Context) string {
	u, err := o.page.URL(ctx)
	if err != nil {
		return ""
	}
	return codeFromURL(u)
}

// codeFromURL extracts the content code from /reel/<code>/, /reels/<code>/
// or /p/<code>/ URLs.
func codeFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "reel", "reels", "p":
			return parts[i+1]
		}
	}
	return ""
}

func (o *Orchestrator) profileURL(username string) string {
	return o.baseURL + "/" + url.PathEscape(username) + "/"
}
