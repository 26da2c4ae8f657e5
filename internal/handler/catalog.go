package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gamecatalog/internal/models"
	"gamecatalog/internal/repository"
	"gamecatalog/internal/service"
)

type CatalogHandler struct {
	Sync         *service.CatalogSyncService
	Search       *service.CatalogSearchService
	QueryService *service.CatalogQueryService
	Import       *service.CatalogImportService
	Logger       *zap.Logger
	// RunCtx bounds background sync runs; it is cancelled on shutdown.
	RunCtx context.Context
}

func (h *CatalogHandler) Register(r *gin.Engine) {
	group := r.Group("/api/catalog")
	group.GET("/search", h.search)
	group.GET("/games", h.listGames)
	group.GET("/games/:id", h.getGame)
	group.POST("/sync", h.syncCatalog)
	group.GET("/sync-state", h.listSyncState)
	group.POST("/import", h.importGames)
}

// @Summary Search the catalog
// @Description Local matches plus provider matches; new provider matches are persisted with isExternal=true.
// @Tags catalog
// @Param q query string true "query, at least 2 characters"
// @Param genre query string false "genre contains"
// @Param platform query string false "platform contains"
// @Param developer query string false "developer contains"
// @Success 200 {object} apiResponse
// @Router /api/catalog/search [get]
func (h *CatalogHandler) search(c *gin.Context) {
	if h.Search == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Search.Search(c.Request.Context(), service.SearchRequest{
		Query:     c.Query("q"),
		Genre:     c.Query("genre"),
		Platform:  c.Query("platform"),
		Developer: c.Query("developer"),
	})
	if err != nil {
		h.warn("catalog search failed", err)
		Fail(c, err)
		return
	}
	Ok(c, result.Items, map[string]any{
		"query":      result.Query,
		"local":      result.Local,
		"external":   result.External,
		"discovered": result.Discovered,
		"degraded":   result.Degraded,
	})
}

// @Summary List catalog games
// @Tags catalog
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param q query string false "title, developer or publisher contains"
// @Param genre query string false "genre contains"
// @Param platform query string false "platform contains"
// @Param include_pending query bool false "include discovered entries awaiting enrichment"
// @Param order_by query string false "title|rating|price|created_at|updated_at|release_date"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/catalog/games [get]
func (h *CatalogHandler) listGames(c *gin.Context) {
	if h.QueryService == nil || h.QueryService.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(c.Query("order_by"), map[string]string{
		"title":        "title",
		"rating":       "rating",
		"price":        "price",
		"created_at":   "created_at",
		"updated_at":   "updated_at",
		"release_date": "release_date",
	})
	result, err := h.QueryService.ListEntries(c.Request.Context(), repository.ListEntriesParams{
		Limit:          limit,
		Offset:         offset,
		Query:          strQueryPtr(c, "q"),
		Genre:          strQueryPtr(c, "genre"),
		Platform:       strQueryPtr(c, "platform"),
		IncludePending: boolQueryDefault(c, "include_pending", false),
		OrderBy:        orderBy,
		Asc:            boolQueryPtr(c, "ascending"),
	})
	if err != nil {
		h.warn("list games failed", err)
		Fail(c, err)
		return
	}
	Ok(c, result.Items, paginationMeta(limit, offset, result.Total))
}

// @Summary Get one catalog game
// @Tags catalog
// @Param id path string true "entry id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/catalog/games/{id} [get]
func (h *CatalogHandler) getGame(c *gin.Context) {
	if h.QueryService == nil || h.QueryService.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	item, err := h.QueryService.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.warn("get game failed", err)
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "game not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Start a catalog sync run
// @Description Runs in the background; poll /api/catalog/sync-state for progress.
// @Tags catalog
// @Param scope query string false "all|metadata|pricing"
// @Param limit query int false "max entries to enrich"
// @Param checkpoint_every query int false "persist after this many mutations"
// @Success 202 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/catalog/sync [post]
func (h *CatalogHandler) syncCatalog(c *gin.Context) {
	if h.Sync == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	opts := service.SyncOptions{
		Scope:           strings.TrimSpace(c.Query("scope")),
		Limit:           intQuery(c, "limit", 0),
		CheckpointEvery: intQuery(c, "checkpoint_every", 0),
	}
	runCtx := h.RunCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	err := h.Sync.Start(runCtx, opts, func(result service.SyncResult, err error) {
		if err != nil {
			h.warn("manual catalog sync failed", err)
			return
		}
		if h.Logger != nil {
			h.Logger.Info("manual catalog sync ok",
				zap.String("scope", result.Scope),
				zap.Int("updated", result.Updated),
				zap.Int("skipped", result.Skipped),
				zap.Int("failed", result.Failed),
			)
		}
	})
	if err != nil {
		Fail(c, err)
		return
	}
	scope := opts.Scope
	if scope == "" {
		scope = "all"
	}
	Accepted(c, "sync started", gin.H{"scope": scope})
}

// @Summary List sync states
// @Tags catalog
// @Success 200 {object} apiResponse
// @Router /api/catalog/sync-state [get]
func (h *CatalogHandler) listSyncState(c *gin.Context) {
	if h.QueryService == nil || h.QueryService.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	states, err := h.QueryService.ListSyncStates(c.Request.Context())
	if err != nil {
		h.warn("list sync state failed", err)
		Fail(c, err)
		return
	}
	runner := models.SyncIdle
	if h.Sync != nil && h.Sync.Running() {
		runner = models.SyncRunning
	}
	Ok(c, states, map[string]any{
		"running": runner == models.SyncRunning,
		"runner":  runner,
	})
}

// @Summary Import games from the metadata provider
// @Tags catalog
// @Accept json
// @Param body body service.ImportRequest true "external ids, query, tags or platforms"
// @Success 200 {object} apiResponse
// @Router /api/catalog/import [post]
func (h *CatalogHandler) importGames(c *gin.Context) {
	if h.Import == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req service.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	result, err := h.Import.Import(c.Request.Context(), req)
	if err != nil {
		if !errors.Is(err, service.ErrEmptyImport) {
			h.warn("catalog import failed", err)
		}
		Fail(c, err)
		return
	}
	Ok(c, result, nil)
}

func (h *CatalogHandler) warn(msg string, err error) {
	if h.Logger != nil {
		h.Logger.Warn(msg, zap.Error(err))
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func boolQueryDefault(c *gin.Context, key string, def bool) bool {
	if val := c.Query(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

func boolQueryPtr(c *gin.Context, key string) *bool {
	if val := c.Query(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return &b
		}
	}
	return nil
}

func strQueryPtr(c *gin.Context, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

func parseOrder(value string, allow map[string]string) string {
	key := strings.TrimSpace(strings.ToLower(value))
	if key == "" {
		return ""
	}
	if mapped, ok := allow[key]; ok {
		return mapped
	}
	return ""
}

func paginationMeta(limit, offset int, total int64) map[string]any {
	if limit <= 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	hasNext := int64(offset+limit) < total
	return map[string]any{
		"limit":    limit,
		"offset":   offset,
		"total":    total,
		"has_next": hasNext,
	}
}

func boolPtr(v bool) *bool {
	return &v
}
