package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Setlist/internal/app/perform"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/gin-gonic/gin"
)

const adminTimeout = 5 * time.Second

// SessionHandlers exposes the live sessions for operators and for the
// setlist CRUD service, which calls reload after editing a setlist.
type SessionHandlers struct {
	Sessions *perform.Store
}

func (h *SessionHandlers) Register(g *gin.RouterGroup) {
	g.GET("/sessions", h.list)
	g.GET("/sessions/:id", h.get)
	g.DELETE("/sessions/:id", h.remove)
	g.POST("/sessions/:id/reload", h.reload)
}

type ErrorResponse struct {
	Error   domain.ErrorCode `json:"error"`
	Message string           `json:"message"`
}

func StatusOf(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	case domain.CodeBadPayload, domain.CodeInvalidIndex, domain.CodeInvalidOrder:
		return http.StatusBadRequest
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, perform.ErrSessionClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusOf(err), ErrorResponse{Error: domain.CodeOf(err), Message: err.Error()})
}

func (h *SessionHandlers) session(c *gin.Context) (*perform.Session, bool) {
	s, ok := h.Sessions.Get(domain.SetlistID(c.Param("id")))
	if !ok {
		AbortWithError(c, domain.ErrNotFound)
	}
	return s, ok
}

func (h *SessionHandlers) list(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	out := make([]perform.Info, 0)
	for _, s := range h.Sessions.List() {
		info, err := s.Info(ctx)
		if err != nil {
			// Destroyed since List; skip it.
			continue
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *SessionHandlers) get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()
	snap, err := s.Snapshot(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *SessionHandlers) remove(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()
	removed, err := h.Sessions.RemoveIfEmpty(ctx, domain.SetlistID(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not_empty", Message: "session has participants"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandlers) reload(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()
	if err := s.Reload(ctx); err != nil {
		AbortWithError(c, err)
		return
	}
	info, err := s.Info(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
