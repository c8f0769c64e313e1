package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"reel-scout/logger"
	"reel-scout/models"
	"reel-scout/scraper"
)

const reelLinkSelector = `a[href*="/reel/"]`

// runProfileReels visits every profile whose reels have not been watched yet.
func (o *Orchestrator) runProfileReels(ctx context.Context) error {
	profiles, err := o.store.ProfilesToCrawl(context.WithoutCancel(ctx), o.session.ID, 0)
	if err != nil {
		return fmt.Errorf("list profiles to crawl: %w", err)
	}
	for _, p := range profiles {
		if p.TargetedAppID != "" {
			continue
		}
		if err := o.boundary(ctx); err != nil {
			return err
		}
		if err := o.crawlProfile(ctx, p.Username, o.sessionTopic(), ""); err != nil {
			return err
		}
	}
	return nil
}

// crawlProfile watches one profile's reels and marks it crawled. Only
// errors that must end the phase are returned.
func (o *Orchestrator) crawlProfile(ctx context.Context, username string, topic judgeTopic, appID string) error {
	op := context.WithoutCancel(ctx)
	log := o.log.With(logger.String("profile", username))

	abandoned, err := o.watchProfile(ctx, username, topic, appID)
	switch {
	case err == nil:
		log.Info("profile crawled", logger.Bool("abandoned", abandoned))
	case errors.Is(err, models.ErrProfileUnavailable):
		log.Info("profile unavailable", logger.Error(err))
	case errors.Is(err, models.ErrTransientNetwork):
		log.Warn("profile skipped", logger.Error(err))
	default:
		return err
	}

	if err := o.store.MarkReelsCrawled(op, o.session.ID, username); err != nil {
		log.Warn("failed to mark profile crawled", logger.Error(err))
	}
	o.checkpoint(ctx)
	return nil
}

// watchProfile steps through a profile's reels until its time budget runs
// out, the reels end, or the abandonment rule fires.
func (o *Orchestrator) watchProfile(ctx context.Context, username string, topic judgeTopic, appID string) (bool, error) {
	op := context.WithoutCancel(ctx)
	phase := models.PhaseProfileReels
	if appID != "" {
		phase = models.PhaseTargetApp
	}

	o.ic.Content.Reset()
	if err := o.navigate(op, o.profileURL(username)+"reels/"); err != nil {
		return false, skippable(err)
	}
	hasReels := o.waitFor(o.cfg.ItemWait, func() bool {
		ok, _ := o.page.Exists(op, reelLinkSelector)
		return ok
	})
	if !hasReels {
		return false, fmt.Errorf("%w: %s shows no reels", models.ErrProfileUnavailable, username)
	}
	if err := o.page.Click(op, reelLinkSelector); err != nil {
		return false, fmt.Errorf("%w: open first reel: %v", models.ErrProfileUnavailable, err)
	}

	rule := NewAbandonment(o.cfg.AbandonMinSample, o.cfg.AbandonMinRatio)
	end := o.now().Add(o.cfg.ProfileBudget)
	last := ""
	for o.now().Before(end) {
		if err := o.boundary(ctx); err != nil {
			return false, err
		}
		code := o.currentCode(op)
		if code == last {
			// the viewer stopped advancing: no more reels
			break
		}
		last = code

		if rec, ok := o.awaitItem(code); ok && !o.alreadyProcessed(op, code) {
			relevant := o.processItem(op, rec, phase, topic, appID)
			rule.Observe(relevant)
			o.page.Wait(o.cfg.ProfileItemDwell)
			if relevant {
				o.like(op)
			}
			if rule.ShouldAbandon() {
				o.metrics.ProfileAbandoned()
				o.log.Info("abandoning profile",
					logger.String("profile", username),
					logger.Int("items_seen", rule.Seen),
					logger.Int("relevant_seen", rule.Relevant),
				)
				return true, nil
			}
		}

		if err := o.page.PressKey(op, scraper.KeyArrowRight); err != nil {
			o.log.Warn("failed to advance reel", logger.Error(err))
		}
		o.page.Wait(o.cfg.ScrollDelay)
	}
	return false, nil
}

// runProfileBio collects bios and links of profiles not scraped yet, then
// follows up a bounded number of pending links.
func (o *Orchestrator) runProfileBio(ctx context.Context) error {
	op := context.WithoutCancel(ctx)
	limit := o.cfg.MaxProfilesPerCycle
	if limit > 0 {
		limit += len(o.bioMisses)
	}
	profiles, err := o.store.UnscrapedProfiles(op, o.session.ID, limit)
	if err != nil {
		return fmt.Errorf("list unscraped profiles: %w", err)
	}

	o.ic.Profiles.Reset()
	scraped := 0
	for _, p := range profiles {
		if o.bioMisses[p.Username] {
			continue
		}
		if err := o.boundary(ctx); err != nil {
			return err
		}
		ok, err := o.scrapeBio(op, p.Username)
		if err != nil {
			return err
		}
		if ok {
			scraped++
		}
	}
	o.log.Info("bios collected", logger.Int("scraped", scraped), logger.Int("candidates", len(profiles)))

	if o.scanner == nil {
		return nil
	}
	if _, err := o.scanner.ScanLinks(ctx, o.session.ID, o.topic(), o.cfg.MaxLinkScansPerCycle); err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.log.Warn("link follow-up failed", logger.Error(err))
	}
	return nil
}

// scrapeBio waits for one profile's bio payload. A profile whose payload
// never arrives stays unscraped and is not retried by this process.
func (o *Orchestrator) scrapeBio(ctx context.Context, username string) (bool, error) {
	if err := o.navigate(ctx, o.profileURL(username)); err != nil {
		if errors.Is(err, models.ErrAuthExpired) {
			return false, err
		}
		o.log.Warn("profile page failed", logger.String("profile", username), logger.Error(err))
		o.bioMisses[username] = true
		return false, nil
	}
	o.page.Wait(o.cfg.BioMinDwell)

	var bio models.ProfileRecord
	found := o.waitFor(o.cfg.BioWait, func() bool {
		var ok bool
		bio, ok = o.ic.Profiles.Get(username)
		return ok
	})
	if !found {
		o.log.Info("bio not observed, skipping", logger.String("profile", username))
		o.bioMisses[username] = true
		return false, nil
	}

	var links []string
	for _, l := range bio.Links {
		links = append(links, models.NormalizeLink(l))
	}
	links = models.UnionStrings(nil, links...)

	updated, err := o.store.ApplyProfileScrape(ctx, o.session.ID, username, bio.Bio, links)
	if err != nil {
		o.log.Warn("failed to save bio", logger.String("profile", username), logger.Error(err))
		return false, nil
	}
	if updated && len(links) > 0 {
		recs := make([]models.LinkRecord, 0, len(links))
		for _, l := range links {
			recs = append(recs, models.LinkRecord{SessionID: o.session.ID, URL: l, Profiles: []string{username}})
		}
		if err := o.store.AddLinks(ctx, o.session.ID, recs); err != nil {
			o.log.Warn("failed to save links", logger.String("profile", username), logger.Error(err))
		}
	}
	o.page.Wait(o.cfg.BioMinDwell)
	return updated, nil
}

// skippable tags a navigation failure as transient so the caller skips the
// item. A lost login still ends the phase.
func skippable(err error) error {
	if errors.Is(err, models.ErrAuthExpired) || errors.Is(err, models.ErrTransientNetwork) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrTransientNetwork, err)
}
