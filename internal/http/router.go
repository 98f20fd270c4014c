package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enessayaci/heybe/internal/repository"
	"github.com/enessayaci/heybe/internal/service/identity"
	"github.com/enessayaci/heybe/internal/service/item"
	"github.com/enessayaci/heybe/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	identity identity.Service
	items    item.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitGuest     = 10
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitPush      = 30
	healthCheckTimeout = 2 * time.Second
	sseHeartbeatEvery  = 30 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, identitySvc identity.Service, itemSvc item.Service, hub *ws.Hub, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		identity: identitySvc,
		items:    itemSvc,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/guest", r.audit(r.withRateLimit("/guest", rateLimitGuest, rateWindowDefault, rateLimitKeyIP, r.handleGuest)))
	r.mux.HandleFunc("/register", r.audit(r.withRateLimit("/register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/login", r.audit(r.withRateLimit("/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/register-with-transfer", r.audit(r.handlerAuthRate("/register-with-transfer", rateLimitRegister, rateWindowDefault, r.handleRegisterWithTransfer)))
	r.mux.HandleFunc("/login-with-transfer", r.audit(r.handlerAuthRate("/login-with-transfer", rateLimitLogin, rateWindowDefault, r.handleLoginWithTransfer)))
	r.mux.HandleFunc("/items", r.audit(r.handlerAuthRate("/items", rateLimitUserWrite, rateWindowDefault, r.handleItems)))
	r.mux.HandleFunc("/items/", r.audit(r.handlerAuthRate("/items/{id}", rateLimitUserRead, rateWindowDefault, r.handleItemSubroutes)))
	r.mux.HandleFunc("/ws/session", r.audit(r.handlerAuthRate("/ws/session", rateLimitPush, rateWindowRealtime, r.handleSessionWS)))
	r.mux.HandleFunc("/events/session", r.audit(r.handlerAuthRate("/events/session", rateLimitPush, rateWindowRealtime, r.handleSessionSSE)))
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *Router) handleGuest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	sess, err := r.identity.CreateGuest(req.Context())
	if err != nil {
		r.serviceError(w, req, err)
		return
	}
	writeData(w, http.StatusCreated, sess.Record())
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	payload, ok := r.decodeCredentials(w, req)
	if !ok {
		return
	}
	sess, err := r.identity.Register(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.serviceError(w, req, err)
		return
	}
	writeData(w, http.StatusCreated, sess.Record())
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	payload, ok := r.decodeCredentials(w, req)
	if !ok {
		return
	}
	sess, err := r.identity.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.serviceError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, sess.Record())
}

// handleRegisterWithTransfer registers a permanent identity and claims the
// bearer guest's items. A bearer that is no longer a guest still registers;
// no transfer happens.
func (r *Router) handleRegisterWithTransfer(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	bearer, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for transfer registration", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	payload, ok := r.decodeCredentials(w, req)
	if !ok {
		return
	}
	sess, err := r.identity.RegisterWithTransfer(req.Context(), bearer, payload.Email, payload.Password)
	if err != nil {
		r.serviceError(w, req, err)
		return
	}
	writeData(w, http.StatusCreated, sess.Record())
}

func (r *Router) handleLoginWithTransfer(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	bearer, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for transfer login", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	payload, ok := r.decodeCredentials(w, req)
	if !ok {
		return
	}
	sess, err := r.identity.LoginWithTransfer(req.Context(), bearer, payload.Email, payload.Password)
	if err != nil {
		r.serviceError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, sess.Record())
}

func (r *Router) handleItems(w http.ResponseWriter, req *http.Request) {
	bearer, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for items", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload item.SaveInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		saved, err := r.items.Save(req.Context(), bearer.IdentityID(), payload)
		if err != nil {
			r.serviceError(w, req, err)
			return
		}
		writeData(w, http.StatusCreated, saved)
	case http.MethodGet:
		list, err := r.items.List(req.Context(), bearer.IdentityID())
		if err != nil {
			r.serviceError(w, req, err)
			return
		}
		writeData(w, http.StatusOK, list)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleItemSubroutes(w http.ResponseWriter, req *http.Request) {
	bearer, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for item", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	itemID := strings.TrimPrefix(req.URL.Path, "/items/")
	if itemID == "" || strings.Contains(itemID, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		found, err := r.items.Get(req.Context(), bearer.IdentityID(), itemID)
		if err != nil {
			r.serviceError(w, req, err)
			return
		}
		writeData(w, http.StatusOK, found)
	case http.MethodDelete:
		if err := r.items.Delete(req.Context(), bearer.IdentityID(), itemID); err != nil {
			r.serviceError(w, req, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

// handleSessionWS subscribes a page context to identityUpdated pushes over a
// websocket.
func (r *Router) handleSessionWS(w http.ResponseWriter, req *http.Request) {
	bearer, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for session websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	identityID := bearer.IdentityID()
	r.hub.Register(identityID, client)
	go func() {
		defer func() {
			r.hub.Unregister(identityID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// handleSessionSSE is the fallback push transport for page contexts that
// cannot hold a websocket.
func (r *Router) handleSessionSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	bearer, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for session events", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	identityID := bearer.IdentityID()
	r.hub.Register(identityID, client)
	defer func() {
		r.hub.Unregister(identityID, client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) decodeCredentials(w http.ResponseWriter, req *http.Request) (credentialsPayload, bool) {
	var payload credentialsPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return credentialsPayload{}, false
	}
	return payload, true
}

// serviceError maps service sentinels to HTTP statuses. Credential failures
// share one generic message regardless of cause.
func (r *Router) serviceError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrValidation):
		writeError(w, http.StatusBadRequest, "a valid email and a password of at least 6 characters are required")
	case errors.Is(err, item.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, identity.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, repository.ErrNotFound):
		r.notFound(w)
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if ident, ok := identityFromContext(ctx); ok {
			if ident.IsGuest() {
				actor = "guest"
			} else {
				actor = "user"
			}
			fields = append(fields, "identity_id", ident.IdentityID())
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
