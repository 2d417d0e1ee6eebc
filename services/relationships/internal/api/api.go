// Package api exposes the lifecycle engine over HTTP. The platform gateway in front of
// this service authenticates users and forwards the acting organisation and user.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/authn"
	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
	"github.com/AuroralH2020/auroral-nm-sub000/pkg/httpx"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/lifecycle"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/reconcile"
)

const AdminRole = "administrator"

type Sweeper interface {
	RunOnce(ctx context.Context) (reconcile.Report, error)
}

type Handler struct {
	Engine        *lifecycle.Engine
	Notifications lifecycle.NotificationDispatcher
	Sweeper       Sweeper
	Auth          authn.Authenticator
	Logger        *slog.Logger

	validate *validator.Validate
}

func New(engine *lifecycle.Engine, notifications lifecycle.NotificationDispatcher, sweeper Sweeper, auth authn.Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Engine:        engine,
		Notifications: notifications,
		Sweeper:       sweeper,
		Auth:          auth,
		Logger:        logger,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes mounts the API under /relationships/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/relationships/v1", func(api chi.Router) {
		api.Use(middleware.Recoverer)
		api.Use(h.logRequests)
		api.Use(h.authenticate)

		api.Route("/contracts", func(c chi.Router) {
			c.Post("/", h.createContract)
			c.Get("/", h.listContracts)
			c.Get("/{ctid}", h.getContract)
			c.Post("/{ctid}/accept", h.acceptContract)
			c.Post("/{ctid}/reject", h.rejectContract)
			c.Delete("/{ctid}/membership", h.leaveContract)
			c.Post("/{ctid}/items", h.addItem)
			c.Patch("/{ctid}/items/{oid}", h.editItem)
			c.Delete("/{ctid}/items", h.removeItems)
		})
		api.Route("/communities", func(c chi.Router) {
			c.Post("/", h.createCommunity)
			c.Get("/", h.listCommunities)
			c.Get("/{commID}", h.getCommunity)
			c.Delete("/{commID}", h.removeCommunity)
			c.Post("/{commID}/nodes", h.addNode)
			c.Delete("/{commID}/nodes/{agid}", h.removeNode)
		})
		api.Delete("/partnerships/{cid}", h.removePartnership)
		api.Get("/notifications", h.listNotifications)
		api.Put("/notifications/{id}/read", h.markNotificationRead)
		api.Post("/admin/reconcile", h.reconcile)
	})
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.Auth.Authenticate(r)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid caller identity", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(authn.WithActor(r.Context(), actor)))
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Logger.InfoContext(r.Context(), "request",
			"module", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func actor(r *http.Request) authn.Actor {
	a, _ := authn.FromContext(r.Context())
	return a
}

func auditContext(r *http.Request) domain.AuditContext {
	return domain.AuditContext{IP: authn.ClientIP(r), Origin: r.Header.Get("Origin"), Method: r.Method}
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.ReadJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), "")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), "")
		return false
	}
	return true
}

func page(r *http.Request) (offset, size int) {
	q := r.URL.Query()
	offset, _ = strconv.Atoi(q.Get("offset"))
	size, _ = strconv.Atoi(q.Get("limit"))
	if offset < 0 {
		offset = 0
	}
	return offset, size
}

func ok(w http.ResponseWriter, status int, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["request_id"] = httpx.NewRequestID()
	httpx.WriteJSON(w, status, fields)
}
