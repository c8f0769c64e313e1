package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reel-scout/logger"
	"reel-scout/models"
)

func (s *Server) listContent(c *gin.Context) {
	id := c.Param("id")
	content, err := s.store.ListContent(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "content", id, err)
		return
	}
	if c.Query("relevant") == "true" {
		relevant := content[:0]
		for _, rec := range content {
			if rec.Relevant != nil && *rec.Relevant {
				relevant = append(relevant, rec)
			}
		}
		content = relevant
	}
	c.JSON(http.StatusOK, gin.H{"content": content, "count": len(content)})
}

func (s *Server) listProfiles(c *gin.Context) {
	id := c.Param("id")
	profiles, err := s.store.ListProfiles(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "profiles", id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles, "count": len(profiles)})
}

func (s *Server) getProfile(c *gin.Context) {
	id, username := c.Param("id"), c.Param("username")
	p, err := s.store.GetProfile(c.Request.Context(), id, username)
	if err != nil {
		s.storeError(c, "profile", username, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type profileReviewRequest struct {
	Suspicious *bool `json:"suspicious"`
}

// reviewProfile records an operator verdict on a profile; a null verdict
// resets it to unknown.
func (s *Server) reviewProfile(c *gin.Context) {
	id, username := c.Param("id"), c.Param("username")
	var req profileReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	v := models.SuspicionUnknown
	if req.Suspicious != nil {
		v = models.SuspicionOf(*req.Suspicious)
	}
	if err := s.store.SetProfileSuspicion(c.Request.Context(), id, username, v); err != nil {
		s.storeError(c, "profile", username, err)
		return
	}
	s.getProfile(c)
}

// rescrapeProfile reopens a profile so the next profile_bio pass visits it
// again.
func (s *Server) rescrapeProfile(c *gin.Context) {
	id, username := c.Param("id"), c.Param("username")
	if err := s.store.RequestRescrape(c.Request.Context(), id, username); err != nil {
		s.storeError(c, "profile", username, err)
		return
	}
	s.log.Info("Profile rescrape requested", logger.String("session_id", id), logger.String("username", username))
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
