package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reel-scout/config"
	"reel-scout/logger"
	"reel-scout/memstore"
	"reel-scout/models"
	"reel-scout/scanner"
	"reel-scout/scraper"
	"reel-scout/scraper/scrapertest"
)

const (
	base = "https://feed.example"
	gql  = base + "/graphql/query"

	homeRoot    = "xdt_api__v1__clips__home__connection_v2"
	userRoot    = "xdt_api__v1__clips__user__connection_v2"
	timelineKey = "xdt_api__v1__feed__timeline__connection"
)

type item struct {
	code, caption, owner string
}

func items(prefix string, n int, caption func(i int) string) []item {
	out := make([]item, n)
	for i := range out {
		code := fmt.Sprintf("%s%d", prefix, i)
		out[i] = item{code: code, caption: caption(i), owner: "user_" + strings.ToLower(code)}
	}
	return out
}

func clipsPayload(root string, its []item) string {
	edges := make([]map[string]any, 0, len(its))
	for _, it := range its {
		edges = append(edges, map[string]any{"node": map[string]any{"media": map[string]any{
			"code":    it.code,
			"caption": map[string]any{"text": it.caption},
			"user":    map[string]any{"username": it.owner},
		}}})
	}
	b, _ := json.Marshal(map[string]any{"data": map[string]any{root: map[string]any{"edges": edges}}})
	return string(b)
}

func userPayload(username, bio string, links ...string) string {
	bioLinks := make([]map[string]any, 0, len(links))
	for _, l := range links {
		bioLinks = append(bioLinks, map[string]any{"url": l})
	}
	b, _ := json.Marshal(map[string]any{"data": map[string]any{"user": map[string]any{
		"username": username, "biography": bio, "bio_links": bioLinks,
	}}})
	return string(b)
}

// scriptedOracle answers by caption.
type scriptedOracle struct {
	relevant func(text string) bool
	calls    int
	panics   bool
}

func (s *scriptedOracle) Classify(_ context.Context, text, _ string, _ []string) bool {
	s.calls++
	if s.panics {
		panic("classifier bug")
	}
	return s.relevant(text)
}

type countingEngager struct {
	likes, saves int
}

func (e *countingEngager) Like(context.Context) error {
	e.likes++
	return nil
}

func (e *countingEngager) Save(context.Context) error {
	e.saves++
	return nil
}

type fakeAuth struct {
	calls    int
	failFrom int
	// before runs at the start of every login.
	before func()
}

func (a *fakeAuth) Login(context.Context, scraper.Page) error {
	a.calls++
	if a.before != nil {
		a.before()
	}
	if a.failFrom > 0 && a.calls >= a.failFrom {
		return fmt.Errorf("%w: checkpoint challenge", models.ErrAuthExpired)
	}
	return nil
}

type recordingNotifier struct {
	suspended []string
}

func (n *recordingNotifier) SessionSuspended(_ context.Context, s *models.ScraperSession, _ error) error {
	n.suspended = append(n.suspended, s.ID)
	return nil
}

type fakeLinkScanner struct {
	linkCalls, adCalls int
}

func (f *fakeLinkScanner) ScanLinks(context.Context, string, scanner.Topic, int) (int, error) {
	f.linkCalls++
	return 0, nil
}

func (f *fakeLinkScanner) ScanAds(context.Context, string, scanner.Topic, int) (int, error) {
	f.adCalls++
	return 0, nil
}

// harness wires an orchestrator to a fake page that serves scripted traffic.
type harness struct {
	t        *testing.T
	page     *scrapertest.FakePage
	store    *memstore.Store
	oracle   *scriptedOracle
	engager  *countingEngager
	scanner  *fakeLinkScanner
	auth     *fakeAuth
	notifier *recordingNotifier
	cfg      config.AgentConfig
	session  *models.ScraperSession

	routes    map[string]func()
	viewer    []string
	viewerURL func(code string) string
	advance   scraper.Key
	idx       int
	onAdvance func(n int)
}

func newHarness(t *testing.T, session *models.ScraperSession) *harness {
	t.Helper()
	page := scrapertest.New()
	h := &harness{
		t:        t,
		page:     page,
		store:    memstore.New().WithClock(page.Now),
		oracle:   &scriptedOracle{relevant: func(string) bool { return false }},
		engager:  &countingEngager{},
		scanner:  &fakeLinkScanner{},
		notifier: &recordingNotifier{},
		cfg:      config.DefaultAgent(),
		session:  session,
		routes:   make(map[string]func()),
	}
	h.cfg.ProfileBudget = 10 * time.Minute

	require.NoError(t, h.store.CreateSession(context.Background(), session))

	page.OnNavigate = func(_ *scrapertest.FakePage, u string) {
		if r, ok := h.routes[u]; ok {
			r()
		}
	}
	page.OnKey = func(p *scrapertest.FakePage, key scraper.Key) {
		if key != h.advance || h.viewer == nil {
			return
		}
		h.idx++
		if h.onAdvance != nil {
			h.onAdvance(h.idx)
		}
		switch {
		case h.idx < len(h.viewer):
			p.SetURL(h.viewerURL(h.viewer[h.idx]))
		case key == scraper.KeyArrowDown:
			p.SetURL(base + "/reels/")
		}
	}
	return h
}

func (h *harness) build() *Orchestrator {
	h.t.Helper()
	deps := Deps{
		Page:       h.page,
		Store:      h.store,
		Classifier: h.oracle,
		Scanner:    h.scanner,
		Engager:    h.engager,
		Notifier:   h.notifier,
		Log:        logger.NewNop(),
		Clock:      h.page.Now,
	}
	if h.auth != nil {
		deps.Auth = h.auth
	}
	o, err := Resume(context.Background(), h.session.ID, deps, Options{
		Agent:     h.cfg,
		BaseURL:   base,
		Endpoints: []string{"/graphql/query"},
	})
	require.NoError(h.t, err)
	return o
}

func (h *harness) view(its []item, urlFor func(string) string, key scraper.Key) {
	h.viewer = h.viewer[:0]
	for _, it := range its {
		h.viewer = append(h.viewer, it.code)
	}
	h.viewerURL = urlFor
	h.advance = key
	h.idx = 0
	if len(its) > 0 {
		h.page.SetURL(urlFor(its[0].code))
	}
}

func (h *harness) serveReels(its []item) {
	h.routes[base+"/reels/"] = func() {
		h.page.EmitJSON(gql, clipsPayload(homeRoot, its))
		h.view(its, func(c string) string { return base + "/reels/" + c + "/" }, scraper.KeyArrowDown)
	}
}

func (h *harness) serveProfile(username string, its []item) {
	h.routes[base+"/"+username+"/reels/"] = func() {
		h.page.Selectors[reelLinkSelector] = len(its) > 0
		h.page.EmitJSON(gql, clipsPayload(userRoot, its))
		h.view(its, func(c string) string { return base + "/reel/" + c + "/" }, scraper.KeyArrowRight)
	}
}

func (h *harness) serveBio(username, bio string, links ...string) {
	h.routes[base+"/"+username+"/"] = func() {
		h.page.EmitJSON(gql, userPayload(username, bio, links...))
	}
}

func (h *harness) serve(url, payload string) {
	h.routes[url] = func() { h.page.EmitJSON(gql, payload) }
}

func (h *harness) stored() *models.ScraperSession {
	h.t.Helper()
	s, err := h.store.GetSession(context.Background(), h.session.ID)
	require.NoError(h.t, err)
	return s
}

func contains(word string) func(string) bool {
	return func(text string) bool { return strings.Contains(text, word) }
}
