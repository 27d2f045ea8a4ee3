package ops

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkers_server/internal/logger"
)

// RoomStatus is one row of the /debug/rooms listing.
type RoomStatus struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	State   string `json:"state"`
	Board   string `json:"board,omitempty"`
}

// Deps are the live server callbacks the ops endpoints report on.
type Deps struct {
	Version  string
	Ready    func() bool
	Sessions func() int
	Rooms    func() []RoomStatus
}

// Handler serves the operational HTTP surface: probes, metrics and the room
// debug listing. Game traffic never touches HTTP.
type Handler struct {
	deps      Deps
	startTime time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

// HealthResponse represents the readiness check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness returns simple alive status (for k8s liveness probe)
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness returns detailed health status (for k8s readiness probe)
func (h *Handler) Readiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	if h.deps.Ready != nil && h.deps.Ready() {
		checks["listener"] = "healthy"
	} else {
		checks["listener"] = "unhealthy: not accepting"
		allHealthy = false
	}

	if h.deps.Sessions != nil {
		checks["sessions"] = strconv.Itoa(h.deps.Sessions())
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	checks["memory_alloc_mb"] = formatMB(m.Alloc)
	checks["goroutines"] = strconv.Itoa(runtime.NumGoroutine())

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Version:   h.deps.Version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// DebugRooms dumps the current room table.
func (h *Handler) DebugRooms(c *gin.Context) {
	rooms := []RoomStatus{}
	if h.deps.Rooms != nil {
		rooms = h.deps.Rooms()
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(rooms),
		"rooms": rooms,
	})
}

// NewRouter mounts the ops endpoints on a fresh gin engine.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	h := NewHandler(deps)
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/debug/rooms", h.DebugRooms)
	return r
}

// Serve starts the ops listener in the background and returns the server so
// the caller can shut it down alongside the game listener.
func Serve(addr string, deps Deps) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ops endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops endpoint failed", "err", err)
		}
	}()
	return srv
}

func formatMB(bytes uint64) string {
	mb := float64(bytes) / 1024 / 1024
	return fmt.Sprintf("%.2f", mb)
}
