package orchestrator

import (
	"context"
	"strings"

	"reel-scout/logger"
	"reel-scout/models"
)

const slowScrollScript = `(step) => window.scrollBy({top: step, behavior: "smooth"})`

const scrollToPostScript = `(code) => {
	const a = document.querySelector('a[href*="/p/' + code + '/"]');
	if (!a) return false;
	a.scrollIntoView({behavior: "smooth", block: "center"});
	return true;
}`

// runFeedAds slow-scrolls the home feed and handles each ad the traffic
// reveals, then follows up ad targets.
func (o *Orchestrator) runFeedAds(ctx context.Context) error {
	op := context.WithoutCancel(ctx)
	o.ic.Ads.Reset()

	if err := o.navigate(op, o.baseURL+"/"); err != nil {
		return err
	}

	end := o.now().Add(o.cfg.FeedAdsBudget)
	handled := make(map[string]bool)
	for o.now().Before(end) {
		if err := o.boundary(ctx); err != nil {
			return err
		}
		for _, key := range o.ic.Ads.Keys() {
			if handled[key] {
				continue
			}
			handled[key] = true
			if ad, ok := o.ic.Ads.Get(key); ok {
				o.watchAd(op, ad)
			}
		}
		if err := o.page.Evaluate(op, slowScrollScript, nil, o.cfg.ScrollStep); err != nil {
			o.log.Warn("scroll failed", logger.Error(err))
		}
		o.page.Wait(o.cfg.ScrollDelay)
	}
	o.log.Info("feed ads pass done", logger.Int("ads", len(handled)))

	if o.scanner == nil {
		return nil
	}
	if _, err := o.scanner.ScanAds(ctx, o.session.ID, o.topic(), o.cfg.MaxLinkScansPerCycle); err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.log.Warn("ad follow-up failed", logger.Error(err))
	}
	return nil
}

// watchAd dwells on an unseen ad, engages when it is relevant and marks it
// seen so later passes skip it.
func (o *Orchestrator) watchAd(ctx context.Context, ad models.AdRecord) {
	ad.SessionID = o.session.ID
	stored, err := o.store.AddAd(ctx, ad)
	if err != nil {
		o.log.Warn("failed to save ad", logger.String("code", ad.Code), logger.Error(err))
		return
	}
	if stored.PostSeen {
		return
	}

	if ad.Code != "" {
		var visible bool
		if err := o.page.Evaluate(ctx, scrollToPostScript, &visible, ad.Code); err != nil {
			o.log.Debug("ad not scrolled into view", logger.String("code", ad.Code), logger.Error(err))
		}
	}
	o.page.Wait(o.cfg.AdDwell)

	text := strings.TrimSpace(ad.Caption + "\n" + ad.LinkText)
	relevant := o.judge.Classify(ctx, text, o.session.Prompt, o.session.Keywords)
	o.metrics.ItemProcessed(string(models.PhaseFeedAds), relevant)
	if _, err := o.tracker.Observe(ctx, ad.Caption, relevant); err != nil {
		o.log.Warn("frequency update failed", logger.Error(err))
	}
	if relevant {
		o.like(ctx)
		o.save(ctx)
	}
	if err := o.store.MarkAdSeen(ctx, stored.ID); err != nil {
		o.log.Warn("failed to mark ad seen", logger.String("ad_id", stored.ID), logger.Error(err))
	}
}
