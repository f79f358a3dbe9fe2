package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/gamehost/internal/auth"
	mng "github.com/loykin/gamehost/internal/manager"
	"github.com/loykin/gamehost/internal/metrics"
	"github.com/loykin/gamehost/internal/process"
)

// Router provides embeddable HTTP handlers for the process manager.
// Endpoints (relative to basePath):
//
//	GET    /processes                     list
//	POST   /processes                     body: Configuration JSON, launches
//	GET    /processes/:id                 one process
//	GET    /processes/:id/resources       latest CPU/memory sample
//	POST   /processes/:id/activate        readiness
//	POST   /processes/:id/terminate       query: reason=... (default CUSTOMER_INITIATED)
//	PUT    /processes/:id/log-paths       body: JSON string array or null
//	PUT    /processes/:id/game-session    body: {"game_session_id": "..."}
//	DELETE /processes/:id                 forget a terminated process
//
// basePath may be empty or start with '/'; no trailing slash. When the
// manager carries an agent token every endpoint requires
// "Authorization: Bearer <token>".
type Router struct {
	mgr      *mng.Manager
	sampler  *metrics.ResourceSampler
	auth     *auth.Middleware
	basePath string
}

// NewRouter constructs a Router. Example basePath: "/api" results in
// /api/processes.
func NewRouter(mgr *mng.Manager, basePath string) *Router {
	return &Router{mgr: mgr, auth: auth.NewMiddleware(mgr.AuthToken()), basePath: sanitizeBase(basePath)}
}

// SetAuthToken replaces the token required from API clients; "" disables
// authentication.
func (r *Router) SetAuthToken(token string) { r.auth = auth.NewMiddleware(token) }

// SetSampler enables the resources endpoint.
func (r *Router) SetSampler(s *metrics.ResourceSampler) { r.sampler = s }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.Use(r.auth.GinAuth())
	group.GET("/processes", r.handleList)
	group.POST("/processes", r.handleLaunch)
	group.GET("/processes/:id", r.handleGet)
	group.GET("/processes/:id/resources", r.handleResources)
	group.POST("/processes/:id/activate", r.handleActivate)
	group.POST("/processes/:id/terminate", r.handleTerminate)
	group.PUT("/processes/:id/log-paths", r.handleLogPaths)
	group.PUT("/processes/:id/game-session", r.handleGameSession)
	group.DELETE("/processes/:id", r.handleForget)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mgr *mng.Manager) (*http.Server, error) {
	return newServer(addr, NewRouter(mgr, basePath).Handler()), nil
}

// NewServerWithRouter starts a standalone HTTP server for an already configured router.
func NewServerWithRouter(addr string, r *Router) *http.Server {
	return newServer(addr, r.Handler())
}

func newServer(addr string, h http.Handler) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error   string    `json:"error"`
	Process *mng.Info `json:"process,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type gameSessionReq struct {
	GameSessionID string `json:"game_session_id"`
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.List())
}

func (r *Router) handleLaunch(c *gin.Context) {
	var cfg process.Configuration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if !isSafeAbsPath(cfg.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid work_dir: must be absolute path without traversal"})
		return
	}
	info, err := r.mgr.Launch(cfg)
	if err != nil {
		if info.ProcessID == "" {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusUnprocessableEntity, errorResp{Error: err.Error(), Process: &info})
		return
	}
	writeJSON(c, http.StatusCreated, info)
}

func (r *Router) handleGet(c *gin.Context) {
	id, ok := r.id(c)
	if !ok {
		return
	}
	info, err := r.mgr.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleResources(c *gin.Context) {
	id, ok := r.id(c)
	if !ok {
		return
	}
	if _, err := r.mgr.Get(id); err != nil {
		writeError(c, err)
		return
	}
	if r.sampler == nil || !r.sampler.IsEnabled() {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "resource sampling disabled"})
		return
	}
	s, found := r.sampler.Latest(id)
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no sample yet"})
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (r *Router) handleActivate(c *gin.Context) {
	id, ok := r.id(c)
	if !ok {
		return
	}
	if err := r.mgr.Activate(id); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleTerminate(c *gin.Context) {
	id, ok := r.id(c)
	if !ok {
		return
	}
	reason := process.ReasonCustomerInitiated
	if q := c.Query("reason"); q != "" {
		parsed, err := process.ParseTerminationReason(q)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		reason = parsed
	}
	if err := r.mgr.Terminate(id, reason); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleLogPaths(c *gin.Context) {
	id, ok := r.id(c)
	if !ok {
		return
	}
	var paths []string
	if err := c.ShouldBindJSON(&paths); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.mgr.SetLogPaths(id, paths); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleGameSession(c *gin.Context) {
	id, ok := r.id(c)
	if !ok {
		return
	}
	var req gameSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.GameSessionID == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "game_session_id required"})
		return
	}
	if err := r.mgr.SetGameSession(id, req.GameSessionID); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleForget(c *gin.Context) {
	id, ok := r.id(c)
	if !ok {
		return
	}
	if err := r.mgr.Forget(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) id(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid process id"})
		return "", false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, mng.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, mng.ErrInvalidTransition), errors.Is(err, mng.ErrNotTerminated):
		code = http.StatusConflict
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}
