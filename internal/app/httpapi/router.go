// Package httpapi exposes the application services over JSON HTTP.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	app "github.com/conthop/backend/internal/app"
	"github.com/conthop/backend/internal/app/metrics"
	"github.com/conthop/backend/internal/httputil"
	"github.com/conthop/backend/internal/logging"
	"github.com/conthop/backend/internal/middleware"
)

// Options tunes the outer HTTP surface.
type Options struct {
	CORSOrigins      []string
	DisableRateLimit bool
	AuditSize        int
	AuditPath        string
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	log   *logging.Logger
	audit *auditLog
}

// NewHandler returns the routed API wrapped in CORS and request logging.
func NewHandler(application *app.Application, log *logging.Logger, opts Options) (http.Handler, error) {
	if log == nil {
		log = logging.New("httpapi", "info", "json")
	}
	sink, err := newFileAuditSink(opts.AuditPath)
	if err != nil {
		return nil, err
	}
	h := &handler{app: application, log: log, audit: newAuditLog(opts.AuditSize, sink)}

	authMW := middleware.NewAuthMiddleware(application.Tokens, log, nil)
	guard := application.Guard
	limit := func(next http.Handler) http.Handler { return next }
	if !opts.DisableRateLimit {
		limit = application.Limiter.Handler
	}

	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/plans", h.listPlans).Methods(http.MethodGet)

	public := r.PathPrefix("/api/auth").Subrouter()
	public.Use(limit)
	public.HandleFunc("/register", h.register).Methods(http.MethodPost)
	public.HandleFunc("/login", h.login).Methods(http.MethodPost)
	public.HandleFunc("/forgot-password", h.forgotPassword).Methods(http.MethodPost)
	public.HandleFunc("/reset-password", h.resetPassword).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMW.Handler, limit)

	member := api.PathPrefix("/user").Subrouter()
	member.Use(guard.RequireActiveAccount)
	member.HandleFunc("/profile", h.profile).Methods(http.MethodGet)
	member.HandleFunc("/financial-summary", h.financialSummary).Methods(http.MethodGet)
	member.HandleFunc("/reports", h.fileReport).Methods(http.MethodPost)
	member.HandleFunc("/requests/{kind}", h.listOwnRequests).Methods(http.MethodGet)
	for _, plural := range []string{"loans", "investments", "contributions", "withdrawals"} {
		member.HandleFunc("/"+plural, h.submitRequest).Methods(http.MethodPost)
	}

	api.HandleFunc("/support", h.openTicket).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/notifications", h.listNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read/{id}", h.markNotificationRead).Methods(http.MethodPatch)
	planGuard := guard.RequirePlanMembership("plan")
	api.Handle("/community/{plan}", planGuard(http.HandlerFunc(h.listCommunity))).Methods(http.MethodGet)
	api.Handle("/community/{plan}", planGuard(http.HandlerFunc(h.postCommunity))).Methods(http.MethodPost)

	queues := api.PathPrefix("/requests").Subrouter()
	queues.Use(guard.RequireAdmin, h.auditMiddleware)
	queues.HandleFunc("/{kind}", h.listRequests).Methods(http.MethodGet)
	queues.HandleFunc("/{kind}/approve/{id}", h.approve).Methods(http.MethodPatch)
	queues.HandleFunc("/{kind}/reject/{id}", h.reject).Methods(http.MethodPatch)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(guard.RequireAdmin, h.auditMiddleware)
	admin.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	admin.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}", h.userDetail).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}", h.deleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{id}/status", h.setUserStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/users/{id}/role", h.setUserRole).Methods(http.MethodPatch)
	admin.HandleFunc("/users/{id}/notify", h.notifyUser).Methods(http.MethodPost)
	admin.HandleFunc("/support", h.listTickets).Methods(http.MethodGet)
	admin.HandleFunc("/support/{id}/reply", h.replyTicket).Methods(http.MethodPost)
	admin.HandleFunc("/reports", h.listReports).Methods(http.MethodGet)
	admin.HandleFunc("/reports/{id}/reply", h.replyReport).Methods(http.MethodPost)

	var handler http.Handler = r
	handler = middleware.RecoveryMiddleware(log)(handler)
	handler = middleware.LoggingMiddleware(log)(handler)
	handler = middleware.NewCORSMiddleware(opts.CORSOrigins).Handler(handler)
	return handler, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (h *handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.app.Community.Plans(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "plans": plans})
}
