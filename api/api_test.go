package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"reel-scout/auth"
	"reel-scout/classifier"
	"reel-scout/logger"
	"reel-scout/memstore"
	"reel-scout/metrics"
	"reel-scout/models"
	"reel-scout/provision"
	"reel-scout/services"
	"reel-scout/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSupervisor struct {
	running map[string]bool
	started []string
	stopped []string
}

func (f *fakeSupervisor) Start(_ context.Context, id string) (int, error) {
	if f.running[id] {
		return 42, supervisor.ErrAlreadyRunning
	}
	f.running[id] = true
	f.started = append(f.started, id)
	return 42, nil
}

func (f *fakeSupervisor) Stop(_ context.Context, id string) error {
	if !f.running[id] {
		return supervisor.ErrNotRunning
	}
	delete(f.running, id)
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeSupervisor) Running(_ context.Context, id string) bool { return f.running[id] }

type stubTopics struct{}

func (stubTopics) GenerateTopic(context.Context, string) (classifier.Topic, error) {
	return classifier.Topic{Title: "IPL betting", Keywords: []string{"ipl"}, Hashtags: []string{"#ipl"}}, nil
}

type fakeDomains struct {
	lookups []string
	err     error
}

func (f *fakeDomains) LookupURL(_ context.Context, rawURL string) (*services.DomainInfo, error) {
	f.lookups = append(f.lookups, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	domain, err := services.DomainOf(rawURL)
	if err != nil {
		return nil, err
	}
	return &services.DomainInfo{Domain: domain, Registrar: "Cheap Names LLC"}, nil
}

type testServer struct {
	srv    *Server
	router http.Handler
	store  *memstore.Store
	sup    *fakeSupervisor
	prov   *provision.Provisioner
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	authSvc := auth.NewService(store, "test-secret").WithCost(bcrypt.MinCost)
	_, err := authSvc.SeedAdmin(context.Background(), "admin", "pw")
	require.NoError(t, err)

	sealer, err := auth.NewSealer("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	prov := provision.New(stubTopics{}, store, sealer, logger.NewNop())

	reg := prometheus.NewRegistry()
	metrics.New(reg).CheckpointWritten()

	sup := &fakeSupervisor{running: map[string]bool{}}
	srv := NewServer(store, prov, sup, authSvc, reg, logger.NewNop())
	ts := &testServer{srv: srv, router: srv.Router(), store: store, sup: sup, prov: prov}

	rec := ts.do(t, http.MethodPost, "/login", map[string]string{"username": "admin", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct{ Token string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	ts.token = body.Token
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) session(t *testing.T) *models.ScraperSession {
	t.Helper()
	ctx := context.Background()
	_, err := ts.prov.AddAccount(ctx, "scout", "pw")
	require.NoError(t, err)
	s, err := ts.prov.CreateSession(ctx, "ipl betting promoters")
	require.NoError(t, err)
	return s
}

func TestLogin_RejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	rec := ts.do(t, http.MethodPost, "/login", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_SetsCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	rec := ts.do(t, http.MethodPost, "/login", map[string]string{"username": "admin", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, auth.CookieName, rec.Result().Cookies()[0].Name)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	rec := ts.do(t, http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "checkpoints_total")
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.prov.AddAccount(context.Background(), "scout", "pw")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"prompt": "ipl betting", "start": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "IPL betting", got.Name)
	assert.True(t, got.Running)
	assert.Equal(t, []string{got.ID}, ts.sup.started)
}

func TestCreateSession_NoAccount(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"prompt": "ipl betting"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "No available account found")
}

func TestStartSession_RefusesSuspended(t *testing.T) {
	ts := newTestServer(t)
	s := ts.session(t)
	require.NoError(t, ts.store.SetSuspended(context.Background(), s.ID, true))

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, ts.sup.started)
}

func TestSuspendAndResume(t *testing.T) {
	ts := newTestServer(t)
	s := ts.session(t)
	ctx := context.Background()

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := ts.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Suspended)
	assert.Equal(t, []string{s.ID}, ts.sup.stopped)

	// suspending an idle session only sets the flag
	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/suspend", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err = ts.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Suspended)
	assert.True(t, ts.sup.running[s.ID])
}

func TestGetSession_NotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLinkReviewAndReport(t *testing.T) {
	ts := newTestServer(t)
	s := ts.session(t)
	ctx := context.Background()
	require.NoError(t, ts.store.AddLinks(ctx, s.ID, []models.LinkRecord{
		{URL: "https://bet.example", Profiles: []string{"alice"}},
		{URL: "https://fine.example", Profiles: []string{"bob"}},
	}))
	links, err := ts.store.ListLinks(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	id := links[0].ID

	rec := ts.do(t, http.MethodPatch, "/api/v1/links/"+id, map[string]string{"manual_status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/v1/links/"+id, map[string]string{"manual_status": models.ReviewConfirmed, "review_notes": "betting"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"suspicious":"true"`)

	rec = ts.do(t, http.MethodGet, "/api/v1/sessions/"+s.ID+"/links?suspicious=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Links []models.LinkRecord `json:"links"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "https://bet.example", list.Links[0].URL)

	rec = ts.do(t, http.MethodGet, "/api/v1/links/"+id+"/report?format=json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".json")
	assert.Contains(t, rec.Body.String(), `"review_notes": "betting"`)

	rec = ts.do(t, http.MethodGet, "/api/v1/links/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF", rec.Body.String()[:4])
}

func TestReport_AttachesDomainRegistration(t *testing.T) {
	ts := newTestServer(t)
	domains := &fakeDomains{}
	ts.srv.WithDomainLookup(domains)
	s := ts.session(t)
	ad, err := ts.store.AddAd(context.Background(), models.AdRecord{SessionID: s.ID, Code: "AD1", Link: "https://ad.example/c"})
	require.NoError(t, err)
	require.NoError(t, ts.store.RecordAdScan(context.Background(), ad.ID, true, "https://promo.bet.example/join", ""))

	rec := ts.do(t, http.MethodGet, "/api/v1/ads/"+ad.ID+"/report?format=json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Domain *services.DomainInfo `json:"domain"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Domain)
	assert.Equal(t, "bet.example", got.Domain.Domain)
	assert.Equal(t, []string{"https://promo.bet.example/join"}, domains.lookups)

	domains.err = errors.New("whois status: 503")
	rec = ts.do(t, http.MethodGet, "/api/v1/ads/"+ad.ID+"/report?format=json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"domain"`)
}

func TestAdReview(t *testing.T) {
	ts := newTestServer(t)
	s := ts.session(t)
	ad, err := ts.store.AddAd(context.Background(), models.AdRecord{SessionID: s.ID, Code: "AD1", Link: "https://ad.example"})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPatch, "/api/v1/ads/"+ad.ID, map[string]string{"manual_status": models.ReviewCleared})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := ts.store.GetAd(context.Background(), ad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewCleared, got.ManualStatus)

	rec = ts.do(t, http.MethodGet, "/api/v1/ads/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileRoutes(t *testing.T) {
	ts := newTestServer(t)
	s := ts.session(t)
	ctx := context.Background()
	_, err := ts.store.AddProfile(ctx, models.ProfileRecord{SessionID: s.ID, Username: "alice", Source: models.PhaseReels})
	require.NoError(t, err)
	_, err = ts.store.ApplyProfileScrape(ctx, s.ID, "alice", "bio", []string{"https://bet.example"})
	require.NoError(t, err)

	base := "/api/v1/sessions/" + s.ID + "/profiles/alice"
	rec := ts.do(t, http.MethodPatch, base, map[string]any{"suspicious": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p models.ProfileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, models.SuspicionTrue, p.Suspicious)
	assert.True(t, p.Scraped)

	rec = ts.do(t, http.MethodPost, base+"/rescrape", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	got, err := ts.store.GetProfile(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.False(t, got.Scraped)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/profiles/nobody/rescrape", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListContent_RelevantFilter(t *testing.T) {
	ts := newTestServer(t)
	s := ts.session(t)
	ctx := context.Background()
	relevant := true
	require.NoError(t, ts.store.SaveContent(ctx, models.ContentRecord{SessionID: s.ID, Code: "C1", Relevant: &relevant}))
	require.NoError(t, ts.store.SaveContent(ctx, models.ContentRecord{SessionID: s.ID, Code: "C2"}))

	rec := ts.do(t, http.MethodGet, "/api/v1/sessions/"+s.ID+"/content", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)

	rec = ts.do(t, http.MethodGet, "/api/v1/sessions/"+s.ID+"/content?relevant=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), `"C1"`)
}
