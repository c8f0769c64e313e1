// Package api is the operator HTTP surface: sign-in, session control and
// review of flagged links and ads.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reel-scout/auth"
	"reel-scout/logger"
	"reel-scout/models"
	"reel-scout/services"
)

type Store interface {
	ListSessions(ctx context.Context) ([]models.ScraperSession, error)
	GetSession(ctx context.Context, id string) (*models.ScraperSession, error)
	SetSuspended(ctx context.Context, id string, suspended bool) error
	ListContent(ctx context.Context, sessionID string) ([]models.ContentRecord, error)
	ListProfiles(ctx context.Context, sessionID string) ([]models.ProfileRecord, error)
	GetProfile(ctx context.Context, sessionID, username string) (*models.ProfileRecord, error)
	RequestRescrape(ctx context.Context, sessionID, username string) error
	SetProfileSuspicion(ctx context.Context, sessionID, username string, v models.Suspicion) error
	ListLinks(ctx context.Context, sessionID string) ([]models.LinkRecord, error)
	GetLink(ctx context.Context, id string) (*models.LinkRecord, error)
	UpdateLinkReview(ctx context.Context, id, status, notes string) error
	ListAds(ctx context.Context, sessionID string) ([]models.AdRecord, error)
	GetAd(ctx context.Context, id string) (*models.AdRecord, error)
	UpdateAdReview(ctx context.Context, id, status, notes string) error
}

type Provisioner interface {
	CreateSession(ctx context.Context, prompt string) (*models.ScraperSession, error)
}

// Supervisor starts and stops agent processes.
type Supervisor interface {
	Start(ctx context.Context, sessionID string) (int, error)
	Stop(ctx context.Context, sessionID string) error
	Running(ctx context.Context, sessionID string) bool
}

// DomainLookup fetches the registration record of a URL's domain. A nil
// record with a nil error means lookups are disabled.
type DomainLookup interface {
	LookupURL(ctx context.Context, rawURL string) (*services.DomainInfo, error)
}

type Server struct {
	store      Store
	provision  Provisioner
	supervisor Supervisor
	auth       *auth.Service
	gatherer   prometheus.Gatherer
	domains    DomainLookup
	log        logger.Logger
	now        func() time.Time
}

func NewServer(store Store, provision Provisioner, supervisor Supervisor, authSvc *auth.Service, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	return &Server{
		store:      store,
		provision:  provision,
		supervisor: supervisor,
		auth:       authSvc,
		gatherer:   gatherer,
		log:        log,
		now:        time.Now,
	}
}

// WithDomainLookup attaches domain registration records to exported reports.
func (s *Server) WithDomainLookup(d DomainLookup) *Server {
	s.domains = d
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.POST("/login", s.login)
	r.POST("/logout", s.logout)

	v1 := r.Group("/api/v1", s.auth.Middleware())
	{
		v1.GET("/sessions", s.listSessions)
		v1.POST("/sessions", s.createSession)
		v1.GET("/sessions/:id", s.getSession)
		v1.POST("/sessions/:id/start", s.startSession)
		v1.POST("/sessions/:id/suspend", s.suspendSession)
		v1.POST("/sessions/:id/resume", s.resumeSession)
		v1.GET("/sessions/:id/content", s.listContent)
		v1.GET("/sessions/:id/profiles", s.listProfiles)
		v1.GET("/sessions/:id/profiles/:username", s.getProfile)
		v1.PATCH("/sessions/:id/profiles/:username", s.reviewProfile)
		v1.POST("/sessions/:id/profiles/:username/rescrape", s.rescrapeProfile)
		v1.GET("/sessions/:id/links", s.listLinks)
		v1.GET("/sessions/:id/ads", s.listAds)

		v1.GET("/links/:id", s.getLink)
		v1.PATCH("/links/:id", s.reviewLink)
		v1.GET("/links/:id/report", s.linkReport)
		v1.GET("/ads/:id", s.getAd)
		v1.PATCH("/ads/:id", s.reviewAd)
		v1.GET("/ads/:id/report", s.adReport)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()
		s.log.Debug("request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", s.now().Sub(start)),
		)
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	cookie, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		s.log.Error("Login failed", logger.String("username", req.Username), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	http.SetCookie(c.Writer, cookie)
	c.JSON(http.StatusOK, gin.H{"token": cookie.Value, "expires_at": cookie.Expires})
}

func (s *Server) logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})
	c.Status(http.StatusNoContent)
}

// storeError maps a gateway error onto a response.
func (s *Server) storeError(c *gin.Context, what, id string, err error) {
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	s.log.Error("Store call failed", logger.String("resource", what), logger.String("id", id), logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load " + what})
}
