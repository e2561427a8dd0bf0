package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"possync/backend/internal/domain"
	"possync/backend/internal/fanout"
	"possync/backend/internal/service"
	"possync/backend/internal/store"
)

const maxJSONBody = 1 << 20

type Options struct {
	AllowedOrigin  string
	Events         fanout.Subscriber
	Gatherer       prometheus.Gatherer
	Health         store.HealthChecker
	Logger         logrus.FieldLogger
	SyncRateLimit  int
	LoginRateLimit int
	RequestTimeout time.Duration
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigin  string
	events         fanout.Subscriber
	gatherer       prometheus.Gatherer
	health         store.HealthChecker
	logger         logrus.FieldLogger
	syncRateLimit  int
	loginRateLimit int
	requestTimeout time.Duration
	loginLimiter   func(http.Handler) http.Handler
	syncLimiter    func(http.Handler) http.Handler
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	a := &API{
		service:        svc,
		auth:           auth,
		allowedOrigin:  opts.AllowedOrigin,
		events:         opts.Events,
		gatherer:       opts.Gatherer,
		health:         opts.Health,
		logger:         opts.Logger,
		syncRateLimit:  opts.SyncRateLimit,
		loginRateLimit: opts.LoginRateLimit,
		requestTimeout: opts.RequestTimeout,
	}
	if a.allowedOrigin == "" {
		a.allowedOrigin = "http://127.0.0.1:3000"
	}
	if a.gatherer == nil {
		a.gatherer = prometheus.DefaultGatherer
	}
	if a.logger == nil {
		a.logger = logrus.StandardLogger()
	}
	if a.syncRateLimit <= 0 {
		a.syncRateLimit = 120
	}
	if a.loginRateLimit <= 0 {
		a.loginRateLimit = 5
	}
	if a.requestTimeout <= 0 {
		a.requestTimeout = 30 * time.Second
	}

	// Limiters live on the API so every Handler() shares their counters.
	a.loginLimiter = httprate.Limit(
		a.loginRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		}),
	)
	a.syncLimiter = httprate.Limit(
		a.syncRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(actorKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, errors.New("sync rate limit exceeded"))
		}),
	)
	return a
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(limitJSONBody)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(api chi.Router) {
		api.With(a.loginLimiter).Post("/auth/login", a.handleLogin)

		api.Group(func(pr chi.Router) {
			pr.Use(a.authenticate)

			// Streams stay open past any request timeout.
			pr.Get("/events", a.handleEvents)

			pr.Group(func(tr chi.Router) {
				tr.Use(middleware.Timeout(a.requestTimeout))

				tr.Group(func(sr chi.Router) {
					sr.Use(requireRole(domain.RoleTerminal, domain.RoleCashier, domain.RoleAdmin))
					sr.Use(a.syncLimiter)
					sr.Post("/sales/sync", a.handleSubmitSale)
					sr.Post("/sync/sales", a.handleSyncBatch)
					sr.Get("/sales/offline/{offlineID}", a.handleLookupSale)
				})

				tr.Group(func(cr chi.Router) {
					cr.Use(requireRole(domain.RoleTerminal, domain.RoleCashier, domain.RoleAdmin))
					cr.Get("/products", a.handleProducts)
					cr.Get("/stores", a.handleStores)
					cr.Get("/inventory/stock", a.handleStock)
				})

				tr.Group(func(ar chi.Router) {
					ar.Use(requireRole(domain.RoleAdmin))
					ar.Post("/inventory/adjustments", a.handleAdjustStock)
					ar.Get("/inventory/movements", a.handleMovements)
					ar.Get("/reports/daily-summaries", a.handleDailySummaries)
					ar.Get("/reports/product-summaries", a.handleProductSummaries)
					ar.Post("/reports/recompute", a.handleRecompute)
				})
			})
		})
	})

	return r
}

func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actorKey rate-limits per tenant user so terminals behind one NAT do not starve each
// other.
func actorKey(r *http.Request) (string, error) {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		return httprate.KeyByIP(r)
	}
	return actor.TenantID + "|" + actor.Username, nil
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := a.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
			"remote_ip":   r.RemoteAddr,
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("http: request failed")
			return
		}
		entry.Info("http: request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func limitJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	}
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health.Ping(ctx); err != nil {
			a.logger.WithError(err).Warn("http: health check failed")
			resp["ok"] = false
			resp["store"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) || strings.Contains(err.Error(), "inactive") {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.logger.WithError(err).Error("http: login failed")
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error   string           `json:"error"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
	Missing []string         `json:"missing,omitempty"`
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrForbidden) {
		writeError(w, http.StatusForbidden, err)
		return
	}

	kind := service.KindOf(err)
	status := http.StatusServiceUnavailable
	switch kind {
	case domain.ErrorKindValidation:
		status = http.StatusBadRequest
	case domain.ErrorKindCatalogMismatch:
		status = http.StatusConflict
	case domain.ErrorKindStoreNotFound:
		status = http.StatusUnprocessableEntity
	}

	resp := errorResponse{Error: err.Error(), Kind: kind}
	var mismatch *service.CatalogMismatchError
	if errors.As(err, &mismatch) {
		resp.Missing = mismatch.Missing
	}
	if status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("http: service failure")
		resp.Error = "service unavailable, retry later"
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry internal details.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
