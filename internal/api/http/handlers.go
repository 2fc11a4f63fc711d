package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/scheduler"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

// Lifecycle is the planner surface served by the API
type Lifecycle interface {
	Install(ctx context.Context, updateURL string) (*planner.Result, error)
	Update(ctx context.Context, appID string) (*planner.Result, error)
	Uninstall(ctx context.Context, appID string) error
	SetEnabled(ctx context.Context, appID string, enabled bool) (registry.AppRecord, error)
	CheckForUpdate(ctx context.Context, appID string) (*planner.UpdateCheck, error)
	Progress(appID string) (planner.Progress, bool)
}

// Catalog reads committed app records
type Catalog interface {
	Get(appID string) (registry.AppRecord, bool)
	List() []registry.AppRecord
	Stats() registry.Stats
}

// Sweeper runs an update sweep on demand
type Sweeper interface {
	RunOnce(ctx context.Context) scheduler.Summary
	Last() (scheduler.Summary, time.Time, bool)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	lifecycle Lifecycle
	catalog   Catalog
	sweeper   Sweeper
	logger    *zap.Logger
	started   time.Time
	version   string
}

// NewHandlers creates a new handler set. sweeper may be nil.
func NewHandlers(lifecycle Lifecycle, catalog Catalog, sweeper Sweeper, version string, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		lifecycle: lifecycle,
		catalog:   catalog,
		sweeper:   sweeper,
		logger:    logger,
		started:   time.Now(),
		version:   version,
	}
}

// Register mounts the routes on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	apps := r.Group("/apps")
	apps.GET("", h.ListApps)
	apps.POST("", h.InstallApp)
	apps.GET("/:id", h.GetApp)
	apps.DELETE("/:id", h.UninstallApp)
	apps.POST("/:id/update", h.UpdateApp)
	apps.POST("/:id/check", h.CheckApp)
	apps.PUT("/:id/status", h.SetStatus)
	apps.GET("/:id/transition", h.Transition)

	r.POST("/updates/check", h.CheckAll)
}

// Health reports liveness and registry statistics
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":   "healthy",
		"service":  "apps",
		"version":  h.version,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"registry": h.catalog.Stats(),
	}
	if h.sweeper != nil {
		if summary, at, ok := h.sweeper.Last(); ok {
			body["last_sweep"] = gin.H{"at": at, "summary": summary}
		}
	}
	c.JSON(http.StatusOK, body)
}

// ListApps lists installed apps
func (h *Handlers) ListApps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"apps":  h.catalog.List(),
		"stats": h.catalog.Stats(),
	})
}

// GetApp returns one app record
func (h *Handlers) GetApp(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}
	rec, found := h.catalog.Get(appID)
	if !found {
		respondError(c, &planner.Error{Kind: planner.KindNotFound, AppID: appID, Err: planner.ErrNotInstalled})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// InstallRequest is the body of POST /apps
type InstallRequest struct {
	UpdateURL string `json:"update_url" binding:"required"`
}

// InstallApp installs the app published at the given update manifest url
func (h *Handlers) InstallApp(c *gin.Context) {
	var req InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "update_url is required")
		return
	}
	if err := utils.ValidateFetchURL(req.UpdateURL, "update_url"); err != nil {
		respondError(c, &planner.Error{Kind: planner.KindInvalidPackageURI, Op: planner.OpInstall, Err: err})
		return
	}

	res, err := h.lifecycle.Install(c.Request.Context(), req.UpdateURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// UpdateApp applies the published update of an installed app
func (h *Handlers) UpdateApp(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}
	res, err := h.lifecycle.Update(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckApp reports whether an update is available
func (h *Handlers) CheckApp(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}
	check, err := h.lifecycle.CheckForUpdate(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// UninstallApp removes an app
func (h *Handlers) UninstallApp(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}
	if err := h.lifecycle.Uninstall(c.Request.Context(), appID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"app_id": appID, "uninstalled": true})
}

// StatusRequest is the body of PUT /apps/:id/status
type StatusRequest struct {
	Status registry.Status `json:"status" binding:"required"`
}

// SetStatus enables or disables an app
func (h *Handlers) SetStatus(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	var enabled bool
	switch req.Status {
	case registry.StatusEnabled:
		enabled = true
	case registry.StatusDisabled:
	default:
		badRequest(c, "status must be enabled or disabled")
		return
	}

	rec, err := h.lifecycle.SetEnabled(c.Request.Context(), appID, enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Transition returns the progress of the latest transition of an app
func (h *Handlers) Transition(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}
	progress, found := h.lifecycle.Progress(appID)
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
			Error: "no transition recorded", Kind: string(planner.KindNotFound), AppID: appID,
		})
		return
	}
	c.JSON(http.StatusOK, progress)
}

// CheckAll runs an update sweep over every installed app
func (h *Handlers) CheckAll(c *gin.Context) {
	if h.sweeper == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "update scheduler disabled", Kind: string(planner.KindInternal),
		})
		return
	}
	c.JSON(http.StatusOK, h.sweeper.RunOnce(c.Request.Context()))
}

func appIDParam(c *gin.Context) (string, bool) {
	appID := c.Param("id")
	if err := utils.ValidateID(appID, "app_id", true); err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return appID, true
}
