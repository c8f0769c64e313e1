// Package interceptor routes page network responses through the parser into
// phase-scoped buffers the orchestrator polls.
package interceptor

import (
	"fmt"

	"reel-scout/logger"
	"reel-scout/metrics"
	"reel-scout/models"
	"reel-scout/parser"
	"reel-scout/scraper"
)

const DefaultCapacity = 2000

// Interceptor owns the record buffers of one session.
type Interceptor struct {
	endpoints []string
	log       logger.Logger
	metrics   *metrics.Metrics
	parse     func([]byte) (parser.Shape, []parser.Record)

	Content  *Buffer[models.ContentRecord]
	Profiles *Buffer[models.ProfileRecord]
	Ads      *Buffer[models.AdRecord]
}

// New creates an interceptor watching responses whose URL contains one of endpoints.
func New(endpoints []string, capacity int, log logger.Logger, m *metrics.Metrics) *Interceptor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Interceptor{
		endpoints: endpoints,
		log:       log,
		metrics:   m,
		parse:     parser.Parse,
		Content: NewBuffer(capacity, func(existing *models.ContentRecord, incoming models.ContentRecord) {
			existing.Merge(&incoming)
		}),
		Profiles: NewBuffer(capacity, mergeProfile),
		Ads:      NewBuffer(capacity, mergeAd),
	}
}

// Attach subscribes the interceptor to page traffic.
func (i *Interceptor) Attach(page scraper.Page) {
	page.OnResponse(i.Handle)
}

// Handle processes one response. It never panics: a failure parsing one
// payload only drops that payload.
func (i *Interceptor) Handle(resp scraper.Response) {
	if !parser.Matches(resp.URL, i.endpoints) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.log.Error("payload handler panicked",
				logger.String("url", resp.URL),
				logger.Error(fmt.Errorf("%w: %v", models.ErrMalformedResponse, r)),
			)
			i.metrics.PayloadDropped("panic")
		}
	}()

	shape, records := i.parse(resp.Body)
	if shape == parser.ShapeUnknown {
		i.metrics.PayloadDropped("unknown_shape")
		return
	}
	for _, r := range records {
		switch {
		case r.Content != nil:
			i.Content.Put(r.Content.Code, *r.Content)
		case r.Profile != nil:
			i.Profiles.Put(r.Profile.Username, *r.Profile)
		case r.Ad != nil:
			i.Ads.Put(AdKey(*r.Ad), *r.Ad)
		}
	}
	i.log.Debug("payload parsed", logger.String("shape", shape.String()), logger.Int("records", len(records)))
}

// Reset clears every buffer at a phase boundary.
func (i *Interceptor) Reset() {
	i.Content.Reset()
	i.Profiles.Reset()
	i.Ads.Reset()
}

// AdKey identifies an ad by content code, falling back to its link.
func AdKey(ad models.AdRecord) string {
	if ad.Code != "" {
		return ad.Code
	}
	return ad.Link
}

func mergeProfile(existing *models.ProfileRecord, incoming models.ProfileRecord) {
	if existing.Bio == "" {
		existing.Bio = incoming.Bio
	}
	existing.Links = models.UnionStrings(existing.Links, incoming.Links...)
}

func mergeAd(existing *models.AdRecord, incoming models.AdRecord) {
	if existing.Link == "" {
		existing.Link = incoming.Link
	}
	if existing.Profile == "" {
		existing.Profile = incoming.Profile
	}
	if existing.Caption == "" {
		existing.Caption = incoming.Caption
	}
	if existing.LinkText == "" {
		existing.LinkText = incoming.LinkText
	}
	if incoming.LikeCount > existing.LikeCount {
		existing.LikeCount = incoming.LikeCount
	}
	if incoming.CommentCount > existing.CommentCount {
		existing.CommentCount = incoming.CommentCount
	}
}
