package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"reel-scout/auth"
	"reel-scout/logger"
	"reel-scout/models"
	"reel-scout/reports"
)

func (s *Server) listLinks(c *gin.Context) {
	id := c.Param("id")
	links, err := s.store.ListLinks(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "links", id, err)
		return
	}
	if c.Query("suspicious") == "true" {
		flagged := links[:0]
		for _, l := range links {
			if l.Suspicious() == models.SuspicionTrue {
				flagged = append(flagged, l)
			}
		}
		links = flagged
	}
	c.JSON(http.StatusOK, gin.H{"links": links, "count": len(links)})
}

func (s *Server) getLink(c *gin.Context) {
	id := c.Param("id")
	l, err := s.store.GetLink(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "link", id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": l, "suspicious": l.Suspicious()})
}

func (s *Server) listAds(c *gin.Context) {
	id := c.Param("id")
	ads, err := s.store.ListAds(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "ads", id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ads": ads, "count": len(ads)})
}

func (s *Server) getAd(c *gin.Context) {
	id := c.Param("id")
	ad, err := s.store.GetAd(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "ad", id, err)
		return
	}
	c.JSON(http.StatusOK, ad)
}

type reviewRequest struct {
	Status string `json:"manual_status"`
	Notes  string `json:"review_notes"`
}

func bindReview(c *gin.Context) (reviewRequest, bool) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return req, false
	}
	switch req.Status {
	case "", models.ReviewConfirmed, models.ReviewCleared:
		return req, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("manual_status must be %q, %q or empty", models.ReviewConfirmed, models.ReviewCleared)})
	return req, false
}

func (s *Server) reviewLink(c *gin.Context) {
	id := c.Param("id")
	req, ok := bindReview(c)
	if !ok {
		return
	}
	if err := s.store.UpdateLinkReview(c.Request.Context(), id, req.Status, req.Notes); err != nil {
		s.storeError(c, "link", id, err)
		return
	}
	s.reviewed(c, "link", id, req)
	s.getLink(c)
}

func (s *Server) reviewAd(c *gin.Context) {
	id := c.Param("id")
	req, ok := bindReview(c)
	if !ok {
		return
	}
	if err := s.store.UpdateAdReview(c.Request.Context(), id, req.Status, req.Notes); err != nil {
		s.storeError(c, "ad", id, err)
		return
	}
	s.reviewed(c, "ad", id, req)
	s.getAd(c)
}

func (s *Server) reviewed(c *gin.Context, kind, id string, req reviewRequest) {
	reviewer := ""
	if claims, ok := auth.ClaimsFrom(c); ok {
		reviewer = claims.Username
	}
	s.log.Info("Finding reviewed",
		logger.String("kind", kind),
		logger.String("id", id),
		logger.String("status", req.Status),
		logger.String("reviewer", reviewer),
	)
}

func (s *Server) linkReport(c *gin.Context) {
	id := c.Param("id")
	l, err := s.store.GetLink(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "link", id, err)
		return
	}
	s.writeReport(c, reports.LinkEvidence(l, s.now()))
}

func (s *Server) adReport(c *gin.Context) {
	id := c.Param("id")
	ad, err := s.store.GetAd(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "ad", id, err)
		return
	}
	s.writeReport(c, reports.AdEvidence(ad, s.now()))
}

// writeReport renders e as a download; format=json selects JSON, anything
// else PDF. The target's domain record is attached when a lookup is set; a
// failed lookup only leaves it out.
func (s *Server) writeReport(c *gin.Context, e reports.Evidence) {
	if s.domains != nil {
		info, err := s.domains.LookupURL(c.Request.Context(), e.Target())
		if err != nil {
			s.log.Warn("Domain lookup failed, report sent without it", logger.String("id", e.ID), logger.String("url", e.Target()), logger.Error(err))
		}
		e.Domain = info
	}

	name := fmt.Sprintf("%s_%s", e.Kind, e.ID)
	if c.Query("format") == "json" {
		data, err := reports.GenerateJSON(e)
		if err != nil {
			s.log.Error("Failed to render JSON report", logger.String("id", e.ID), logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report"})
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+name+".json")
		c.Data(http.StatusOK, "application/json", data)
		return
	}

	buf, err := reports.GeneratePDF(e)
	if err != nil {
		s.log.Error("Failed to render PDF report", logger.String("id", e.ID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report"})
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+name+".pdf")
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
