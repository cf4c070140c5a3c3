package estimates

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"estimate-backend/internal/entitlement"
	"estimate-backend/internal/pipeline"
	"estimate-backend/internal/shared/server/middleware"
	"estimate-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the estimates service.
type Handler struct {
	Svc          *Service
	Entitlements *entitlement.Service
	Dev          bool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, entitlements *entitlement.Service, dev bool) *Handler {
	return &Handler{Svc: svc, Entitlements: entitlements, Dev: dev}
}

// RegisterRoutes attaches estimate routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/estimate", h.generate)
	rg.GET("/documents/:id/estimate", h.getEstimate)
	rg.GET("/documents/:id/estimate/status", h.waitStatus)
}

type generateRequest struct {
	AnalysisType string `json:"analysisType"`
	Force        bool   `json:"force"`
}

func (h *Handler) generate(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document id is required", nil)
		return
	}
	c.Set("documentId", documentID)

	// Body is optional; an empty POST means default analysis, no force.
	var req generateRequest
	_ = c.ShouldBindJSON(&req)

	if h.Entitlements != nil {
		entitled, err := h.Entitlements.IsEntitled(c.Request.Context(), userID)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to check entitlement", nil)
			return
		}
		if !entitled {
			respond.Error(c, http.StatusForbidden, "not_entitled", "Estimate generation requires an active purchase.", nil)
			return
		}
	}

	gen, err := h.Svc.Generate(c.Request.Context(), userID, documentID, req.AnalysisType, req.Force)
	if err != nil {
		h.respondGenerateError(c, err)
		return
	}

	if gen.Record.ID != "" {
		c.Set("estimateId", gen.Record.ID)
	}

	if gen.Blocked != nil {
		c.Header("Retry-After", strconv.FormatInt((gen.Blocked.RemainingMs+999)/1000, 10))
		respond.Error(c, http.StatusTooManyRequests, CodeCooldownActive,
			"An estimate for this document was generated recently. Please wait before regenerating.", gen.Blocked)
		return
	}

	resp := gin.H{
		"fromCache":      gen.FromCache,
		"processingTime": gen.ProcessingTimeMs,
		"estimate":       h.estimateBody(gen),
	}
	if gen.Extraction != nil {
		resp["extraction"] = gin.H{
			"data": gen.Extraction,
			"key":  gen.ExtractionKey,
			"url":  gen.ExtractionURL,
		}
	}
	respond.OK(c, resp)
}

func (h *Handler) estimateBody(gen Generation) gin.H {
	body := gin.H{}
	for k, v := range gen.Estimate {
		body[k] = v
	}
	body["id"] = gen.Record.ID
	body["totalAmount"] = gen.Record.TotalAmount
	if gen.EstimateURL != "" {
		body["url"] = gen.EstimateURL
	}
	if gen.PDFURL != "" {
		body["pdfUrl"] = gen.PDFURL
	}
	return body
}

func (h *Handler) respondGenerateError(c *gin.Context, err error) {
	var cfgErr *pipeline.ConfigError
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrDatabaseUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, CodeDatabaseUnavailable, "Service is temporarily unavailable. Please try again.", nil)
	case pipeline.IsOverloaded(err):
		respond.Error(c, http.StatusServiceUnavailable, CodeDownstreamOverloaded, "The estimation service is busy. Please try again in a few minutes.", nil)
	case errors.As(err, &cfgErr):
		respond.Error(c, http.StatusInternalServerError, CodePipelineMisconfig, "Estimate generation is not available.", h.devDetail(err))
	default:
		if stageErr, ok := pipeline.AsStageError(err); ok {
			respond.Error(c, http.StatusInternalServerError, CodeStageFailed, "Estimate generation failed.", h.devDetail(stageErr))
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "Estimate generation failed.", nil)
	}
}

// devDetail exposes raw error text only in development; filesystem paths and
// tool stderr never reach end users in production.
func (h *Handler) devDetail(err error) any {
	if !h.Dev || err == nil {
		return nil
	}
	return gin.H{"detail": err.Error()}
}

func (h *Handler) getEstimate(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document id is required", nil)
		return
	}

	rec, err := h.Svc.Get(c.Request.Context(), userID, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "estimate not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch estimate", nil)
		return
	}
	respond.OK(c, rec)
}

func (h *Handler) waitStatus(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document id is required", nil)
		return
	}

	canGenerate, wait, err := h.Svc.WaitStatus(c.Request.Context(), userID, documentID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to check wait status", nil)
		return
	}

	resp := gin.H{"canGenerate": canGenerate}
	if wait != nil {
		resp["waitPeriod"] = wait
	}
	respond.OK(c, resp)
}
