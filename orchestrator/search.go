package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"reel-scout/logger"
	"reel-scout/models"
)

// runSearch visits every hashtag and keyword once and records the owners
// of relevant results as profiles.
func (o *Orchestrator) runSearch(ctx context.Context) error {
	for _, target := range o.searchTargets() {
		if err := o.boundary(ctx); err != nil {
			return err
		}
		if err := o.searchOnce(ctx, target, o.sessionTopic(), models.PhaseSearch, ""); err != nil {
			return err
		}
	}
	return nil
}

// searchTargets lists hashtag pages first, then keyword searches ordered by
// priority weight.
func (o *Orchestrator) searchTargets() []string {
	var targets []string
	for _, tag := range o.session.Hashtags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			targets = append(targets, o.baseURL+"/explore/tags/"+url.PathEscape(tag)+"/")
		}
	}
	for _, kw := range o.tracker.Ranked() {
		targets = append(targets, o.keywordURL(kw))
	}
	return targets
}

func (o *Orchestrator) keywordURL(kw string) string {
	return o.baseURL + "/explore/search/keyword/?q=" + url.QueryEscape(kw)
}

// searchOnce loads one result page and classifies what its traffic carried.
func (o *Orchestrator) searchOnce(ctx context.Context, target string, topic judgeTopic, source models.Phase, appID string) error {
	op := context.WithoutCancel(ctx)
	o.ic.Content.Reset()

	if err := o.navigate(op, target); err != nil {
		if errors.Is(err, models.ErrAuthExpired) {
			return err
		}
		o.log.Warn("search page failed", logger.String("url", target), logger.Error(err))
		return nil
	}
	o.page.Wait(o.cfg.SearchDwell)

	found := 0
	var batch []models.ContentRecord
	defer func() { o.saveBatch(op, batch) }()
	for _, code := range o.ic.Content.Keys() {
		if err := o.boundary(ctx); err != nil {
			return err
		}
		rec, ok := o.ic.Content.Get(code)
		if !ok || o.alreadyProcessed(op, code) {
			continue
		}
		rec, relevant := o.judgeItem(op, rec, topic, appID)
		batch = append(batch, rec)
		if relevant && o.addProfile(op, rec.Username, source, appID) {
			found++
		}
	}
	o.log.Info("search visited", logger.String("url", target), logger.Int("new_profiles", found))
	return nil
}

// saveBatch persists the records judged on one result page together.
func (o *Orchestrator) saveBatch(ctx context.Context, recs []models.ContentRecord) {
	if len(recs) == 0 {
		return
	}
	if err := o.store.SaveContentBatch(ctx, recs); err != nil {
		o.log.Warn("failed to save search results", logger.Int("records", len(recs)), logger.Error(err))
	}
}

// runTargetApps searches each targeted app's keywords and crawls the
// profiles found for it.
func (o *Orchestrator) runTargetApps(ctx context.Context) error {
	op := context.WithoutCancel(ctx)
	apps, err := o.store.TargetedApps(op, o.session.ID)
	if err != nil {
		return fmt.Errorf("list targeted apps: %w", err)
	}

	for _, app := range apps {
		topic := judgeTopic{Prompt: app.Name, Keywords: app.Keywords}
		for _, kw := range app.Keywords {
			if err := o.boundary(ctx); err != nil {
				return err
			}
			if err := o.searchOnce(ctx, o.keywordURL(kw), topic, models.PhaseTargetApp, app.ID); err != nil {
				return err
			}
		}

		profiles, err := o.store.ProfilesToCrawl(op, o.session.ID, 0)
		if err != nil {
			return fmt.Errorf("list profiles for app %s: %w", app.Name, err)
		}
		for _, p := range profiles {
			if p.TargetedAppID != app.ID {
				continue
			}
			if err := o.boundary(ctx); err != nil {
				return err
			}
			if err := o.crawlProfile(ctx, p.Username, topic, app.ID); err != nil {
				return err
			}
		}
		o.log.Info("targeted app done", logger.String("app", app.Name))
	}
	return nil
}
