package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reel-scout/logger"
	"reel-scout/models"
	"reel-scout/supervisor"
)

// sessionView adds process state to the stored session.
type sessionView struct {
	models.ScraperSession
	Running bool `json:"running"`
}

func (s *Server) view(c *gin.Context, sess models.ScraperSession) sessionView {
	return sessionView{ScraperSession: sess, Running: s.supervisor.Running(c.Request.Context(), sess.ID)}
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.store.ListSessions(c.Request.Context())
	if err != nil {
		s.log.Error("Failed to list sessions", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, s.view(c, sess))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views, "count": len(views)})
}

func (s *Server) getSession(c *gin.Context) {
	id := c.Param("id")
	sess, err := s.store.GetSession(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "session", id, err)
		return
	}
	c.JSON(http.StatusOK, s.view(c, *sess))
}

type createSessionRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	// Start launches the agent right after creation.
	Start bool `json:"start"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sess, err := s.provision.CreateSession(c.Request.Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, models.ErrNoAccount) {
			c.JSON(http.StatusConflict, gin.H{"error": "No available account found"})
			return
		}
		s.log.Error("Failed to create session", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session", "details": err.Error()})
		return
	}

	if req.Start {
		if _, err := s.supervisor.Start(c.Request.Context(), sess.ID); err != nil {
			s.log.Error("Failed to start new session", logger.String("session_id", sess.ID), logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Session created but failed to start", "session": sess})
			return
		}
	}
	c.JSON(http.StatusCreated, s.view(c, *sess))
}

func (s *Server) startSession(c *gin.Context) {
	id := c.Param("id")
	sess, err := s.store.GetSession(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "session", id, err)
		return
	}
	if sess.Suspended {
		c.JSON(http.StatusConflict, gin.H{"error": "Session is suspended, resume it instead"})
		return
	}
	s.start(c, sess)
}

func (s *Server) start(c *gin.Context, sess *models.ScraperSession) {
	pid, err := s.supervisor.Start(c.Request.Context(), sess.ID)
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "Session is already running", "pid": pid})
	case err != nil:
		s.log.Error("Failed to start session", logger.String("session_id", sess.ID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
	default:
		s.log.Info("Session started", logger.String("session_id", sess.ID), logger.Int("pid", pid))
		c.JSON(http.StatusOK, gin.H{"status": "started", "pid": pid})
	}
}

// suspendSession persists the flag first so that an agent that misses the
// signal still stops at its next loop boundary.
func (s *Server) suspendSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.SetSuspended(c.Request.Context(), id, true); err != nil {
		s.storeError(c, "session", id, err)
		return
	}
	if err := s.supervisor.Stop(c.Request.Context(), id); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		s.log.Error("Failed to stop agent", logger.String("session_id", id), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session suspended but agent did not stop"})
		return
	}
	s.log.Info("Session suspended", logger.String("session_id", id))
	c.JSON(http.StatusOK, gin.H{"status": "suspended"})
}

func (s *Server) resumeSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.SetSuspended(c.Request.Context(), id, false); err != nil {
		s.storeError(c, "session", id, err)
		return
	}
	sess, err := s.store.GetSession(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "session", id, err)
		return
	}
	s.start(c, sess)
}
