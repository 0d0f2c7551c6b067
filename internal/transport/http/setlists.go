package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Setlist/internal/adapters/storage"
	"github.com/dkeye/Setlist/internal/app/perform"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/gin-gonic/gin"
)

// SetlistCatalog is the part of setlist persistence operators manage here.
type SetlistCatalog interface {
	ListSetlists(ctx context.Context) ([]storage.SetlistInfo, error)
	DeleteSetlist(ctx context.Context, id domain.SetlistID) error
}

type SetlistHandlers struct {
	Setlists SetlistCatalog
	Sessions *perform.Store
}

func (h *SetlistHandlers) Register(g *gin.RouterGroup) {
	g.GET("/setlists", h.list)
	g.DELETE("/setlists/:id", h.remove)
}

func (h *SetlistHandlers) list(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()
	list, err := h.Setlists.ListSetlists(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if list == nil {
		list = []storage.SetlistInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"setlists": list})
}

// remove refuses to delete a setlist that is being performed.
func (h *SetlistHandlers) remove(c *gin.Context) {
	id := domain.SetlistID(c.Param("id"))
	if _, live := h.Sessions.Get(id); live {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "in_use", Message: "setlist has a live session"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()
	if err := h.Setlists.DeleteSetlist(ctx, id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
