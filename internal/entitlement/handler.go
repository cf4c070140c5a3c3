package entitlement

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estimate-backend/internal/shared/server/middleware"
	"estimate-backend/internal/shared/server/respond"
)

// Handler exposes the entitlement read endpoint.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches entitlement routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/entitlement", h.getEntitlement)
}

func (h *Handler) getEntitlement(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	e, err := h.Svc.Get(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch entitlement", nil)
		return
	}
	respond.JSON(c, http.StatusOK, e)
}
