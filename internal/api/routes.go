package api

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/latticelab/pyramid-engine/internal/db"
	"github.com/latticelab/pyramid-engine/internal/worker"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// APIHandler holds the service handles the HTTP layer dispatches into.
type APIHandler struct {
	Runs   *RunManager
	Worker *worker.Context
	Client *worker.Client
	Store  *db.Store // nil when persistence is disabled
}

func NewAPIHandler(runs *RunManager, wctx *worker.Context, store *db.Store) *APIHandler {
	return &APIHandler{
		Runs:   runs,
		Worker: wctx,
		Client: worker.NewClient(wctx),
		Store:  store,
	}
}

// SetupRouter configures the Gin engine with all routes and middleware.
func SetupRouter(h *APIHandler, hub *Hub) *gin.Engine {
	r := gin.Default()

	// CORS for browser clients
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Public endpoints
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"worker": !isClosed(h.Worker),
			"db":     h.Store != nil,
			"pieces": h.Worker.Facade().Table().IDs(),
		})
	})
	r.GET("/api/v1/stream", hub.Subscribe)

	// Protected endpoints
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware())
	v1.Use(RateLimitMiddleware(120))
	{
		v1.POST("/check", h.handleCheck)
		v1.POST("/hint", h.handleHint)

		v1.POST("/solve", h.handleSolve)
		v1.GET("/solve/progress", h.handleProgress)
		v1.POST("/solve/pause", h.handleControl("pause"))
		v1.POST("/solve/resume", h.handleControl("resume"))
		v1.POST("/solve/cancel", h.handleControl("cancel"))
		v1.GET("/solve/snapshot", h.handleSnapshot)
		v1.POST("/solve/restore", h.handleRestore)

		v1.GET("/solutions", h.handleListSolutions)
	}

	return r
}

func isClosed(wctx *worker.Context) bool {
	select {
	case <-wctx.Closed():
		return true
	default:
		return false
	}
}

type checkBody struct {
	Input          models.SearchInput `json:"input"`
	TimeoutMs      int64              `json:"timeoutMs"`
	EmptyThreshold int                `json:"emptyThreshold"`
}

// handleCheck evaluates solvability of one position on the worker. A check
// displaced by a newer one reports 409; a disposed worker reports 503.
func (h *APIHandler) handleCheck(c *gin.Context) {
	var body checkBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(body.Input.ContainerCells) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "containerCells is required"})
		return
	}

	result, err := h.Client.Check(body.Input, body.TimeoutMs, body.EmptyThreshold)
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrSuperseded):
			c.JSON(http.StatusConflict, gin.H{"error": "Check superseded by a newer request"})
		case errors.Is(err, worker.ErrWorkerClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Worker is not available"})
		default:
			log.Printf("[API] Check failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleHint returns the first legal placement covering the target cell.
func (h *APIHandler) handleHint(c *gin.Context) {
	var input models.SearchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if input.TargetCell == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "targetCell is required"})
		return
	}

	hint, ok := h.Worker.Facade().Hint(input)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No legal placement covers the target cell"})
		return
	}
	c.JSON(http.StatusOK, hint)
}

type solveBody struct {
	Input    models.SearchInput    `json:"input"`
	Settings models.SearchSettings `json:"settings"`
}

func (h *APIHandler) handleSolve(c *gin.Context) {
	var body solveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(body.Input.ContainerCells) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "containerCells is required"})
		return
	}

	runID, err := h.Runs.Start(body.Input, body.Settings)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runId": runID, "state": "running"})
}

func (h *APIHandler) handleProgress(c *gin.Context) {
	progress, err := h.Runs.Progress()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, progress)
}

// handleControl covers pause, resume, and cancel with one handler shape.
func (h *APIHandler) handleControl(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var err error
		switch action {
		case "pause":
			err = h.Runs.Pause()
		case "resume":
			err = h.Runs.Resume()
		case "cancel":
			err = h.Runs.Cancel()
		}
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"action": action, "accepted": true})
	}
}

func (h *APIHandler) handleSnapshot(c *gin.Context) {
	runID, snap, err := h.Runs.Snapshot()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": runID, "snapshot": snap})
}

func (h *APIHandler) handleRestore(c *gin.Context) {
	var snap models.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid snapshot: " + err.Error()})
		return
	}

	runID, err := h.Runs.Restore(snap)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Restored runs come up idle; POST /solve/resume continues the search.
	c.JSON(http.StatusOK, gin.H{"runId": runID, "state": "idle"})
}

func (h *APIHandler) handleListSolutions(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is not configured"})
		return
	}
	runID := c.Query("runId")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "runId query parameter is required"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	solutions, total, err := h.Store.ListSolutions(c.Request.Context(), runID, page, limit)
	if err != nil {
		log.Printf("[API] Failed to list solutions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load solutions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":      runID,
		"page":       page,
		"limit":      limit,
		"totalCount": total,
		"solutions":  solutions,
	})
}
