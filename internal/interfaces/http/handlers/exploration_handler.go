package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/application/exploration"
	domain "github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/middleware"
	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

// ExplorationHandler serves the exploration API.
type ExplorationHandler struct {
	svc           exploration.Service
	logger        logging.Logger
	defaultPreset string
}

// NewExplorationHandler creates a new ExplorationHandler. defaultPreset is
// only reported by the presets listing.
func NewExplorationHandler(svc exploration.Service, logger logging.Logger, defaultPreset string) *ExplorationHandler {
	if defaultPreset == "" {
		defaultPreset = scoring.DefaultPreset
	}
	return &ExplorationHandler{svc: svc, logger: logger, defaultPreset: defaultPreset}
}

// RegisterRoutes registers the exploration routes on an /api/v1 group.
func (h *ExplorationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/weight-presets", h.ListPresets)

	ex := rg.Group("/explorations")
	ex.POST("", h.Create)
	ex.GET("", h.List)
	ex.GET("/:id", h.Get)
	ex.POST("/:id/expand", h.Expand)
	ex.POST("/:id/siblings", h.Siblings)
	ex.POST("/:id/rescore", h.Rescore)
	ex.POST("/:id/status", h.SetStatus)
	ex.POST("/:id/rebuild", h.Rebuild)
	ex.POST("/:id/archive", h.Archive)
}

// Create handles POST /api/v1/explorations.
func (h *ExplorationHandler) Create(c *gin.Context) {
	var req types.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.CreateExploration(c.Request.Context(), &exploration.CreateRequest{
		ID:         req.ID,
		Name:       req.Name,
		SeedIDs:    req.SeedIDs,
		Preset:     req.Preset,
		Weights:    weightsIn(req.Weights),
		Thresholds: thresholdsIn(req.Thresholds),
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, types.CreateResponse{
		Exploration: explorationOut(res.Exploration),
		Warnings:    nonNilStrings(res.Warnings),
	})
}

// List handles GET /api/v1/explorations?limit=&offset=.
func (h *ExplorationHandler) List(c *gin.Context) {
	limit, offset, err := parsePagination(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	items, total, err := h.svc.ListExplorations(c.Request.Context(), limit, offset)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	out := make([]types.Summary, len(items))
	for i, s := range items {
		out[i] = summaryOut(s)
	}
	c.JSON(http.StatusOK, types.ListResponse{Items: out, Total: total, Limit: limit, Offset: offset})
}

// Get handles GET /api/v1/explorations/:id.
func (h *ExplorationHandler) Get(c *gin.Context) {
	st, err := h.svc.GetExploration(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, explorationOut(st))
}

// Expand handles POST /api/v1/explorations/:id/expand.
func (h *ExplorationHandler) Expand(c *gin.Context) {
	var req types.ExpandRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Expand(c.Request.Context(), &exploration.ExpandRequest{
		ExplorationID:      c.Param("id"),
		Direction:          domain.Direction(req.Direction),
		Preset:             req.Preset,
		Weights:            weightsIn(req.Weights),
		Thresholds:         thresholdsIn(req.Thresholds),
		MaxCandidates:      req.MaxCandidates,
		ExpectedGeneration: req.ExpectedGeneration,
	})
	h.respondResult(c, res, err)
}

// Siblings handles POST /api/v1/explorations/:id/siblings.
func (h *ExplorationHandler) Siblings(c *gin.Context) {
	var req types.SiblingsRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.ExpandSiblings(c.Request.Context(), &exploration.SiblingsRequest{
		ExplorationID:      c.Param("id"),
		Direction:          domain.Direction(req.Direction),
		MaxCandidates:      req.MaxCandidates,
		ExpectedGeneration: req.ExpectedGeneration,
	})
	h.respondResult(c, res, err)
}

// Rescore handles POST /api/v1/explorations/:id/rescore. An empty body
// rescores with the exploration's current configuration.
func (h *ExplorationHandler) Rescore(c *gin.Context) {
	var req types.RescoreRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.svc.Rescore(c.Request.Context(), &exploration.RescoreRequest{
		ExplorationID:      c.Param("id"),
		Preset:             req.Preset,
		Weights:            weightsIn(req.Weights),
		Thresholds:         thresholdsIn(req.Thresholds),
		ExpectedGeneration: req.ExpectedGeneration,
	})
	h.respondResult(c, res, err)
}

func (h *ExplorationHandler) respondResult(c *gin.Context, res *domain.ExpansionResult, err error) {
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultOut(res))
}

// SetStatus handles POST /api/v1/explorations/:id/status and returns the
// updated exploration.
func (h *ExplorationHandler) SetStatus(c *gin.Context) {
	var req types.StatusRequest
	if !bindJSON(c, &req) {
		return
	}
	changes := make([]domain.StatusChange, len(req.Changes))
	for i, ch := range req.Changes {
		changes[i] = domain.StatusChange{PatentID: ch.PatentID, Status: domain.Override(ch.Status)}
	}
	id := c.Param("id")
	if err := h.svc.SetCandidateStatus(c.Request.Context(), id, changes); err != nil {
		middleware.RespondError(c, err)
		return
	}
	st, err := h.svc.GetExploration(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, explorationOut(st))
}

// Rebuild handles POST /api/v1/explorations/:id/rebuild.
func (h *ExplorationHandler) Rebuild(c *gin.Context) {
	var req types.RebuildRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.svc.RebuildAggregate(c.Request.Context(), c.Param("id"), req.ExpectedGeneration)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.RebuildResponse{
		ExplorationID: res.ExplorationID,
		Version:       res.Version,
		Contributors:  res.Contributors,
		Warnings:      nonNilStrings(res.Warnings),
	})
}

// Archive handles POST /api/v1/explorations/:id/archive.
func (h *ExplorationHandler) Archive(c *gin.Context) {
	id := c.Param("id")
	key, err := h.svc.ArchiveExploration(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	h.logger.Info("exploration archived via API", logging.ExplorationID(id), logging.String("key", key))
	c.JSON(http.StatusOK, types.ArchiveResponse{ExplorationID: id, Key: key})
}

// ListPresets handles GET /api/v1/weight-presets.
func (h *ExplorationHandler) ListPresets(c *gin.Context) {
	names := scoring.PresetNames()
	out := make([]types.Preset, 0, len(names))
	for _, name := range names {
		w, err := scoring.Preset(name)
		if err != nil {
			continue
		}
		out = append(out, types.Preset{Name: name, Default: name == h.defaultPreset, Weights: weightsOut(w)})
	}
	c.JSON(http.StatusOK, types.PresetsResponse{Presets: out})
}
