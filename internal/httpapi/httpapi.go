package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/logger"
	"smartseller/backend/internal/service"
)

// EventStream serves the order event websocket.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	events        EventStream
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *slog.Logger
}

func New(svc *service.Service, auth *AuthManager, events EventStream, allowedOrigin string, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{
		service:       svc,
		auth:          auth,
		events:        events,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger.WithComponent(log, "httpapi"),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(logger.Middleware(a.logger))
	r.Use(a.withMiddleware)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Post("/", a.handleCreateProduct)
				r.Get("/low-stock", a.handleLowStockProducts)
				r.Get("/{id}", a.handleGetProduct)
				r.Put("/{id}", a.handleUpdateProduct)
				r.Delete("/{id}", a.handleDeleteProduct)
			})

			r.Route("/combos", func(r chi.Router) {
				r.Get("/", a.handleListCombos)
				r.Post("/", a.handleCreateCombo)
				r.Get("/{id}", a.handleGetCombo)
				r.Put("/{id}", a.handleUpdateCombo)
				r.Delete("/{id}", a.handleDeleteCombo)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", a.handleListOrders)
				r.Post("/", a.handleCreateOrder)
				r.Get("/{id}", a.handleGetOrder)
				r.Delete("/{id}", a.handleDeleteOrder)
				r.Patch("/{id}/status", a.handleUpdateOrderStatus)
				r.Post("/{id}/debt/paid", a.handleMarkDebtPaid)
				r.Post("/{id}/credit/paid", a.handleMarkCreditPaid)
			})

			r.Route("/market", func(r chi.Router) {
				r.Get("/", a.handleListMarketItems)
				r.Post("/", a.handleCreateMarketItem)
				r.Put("/{id}", a.handleUpdateMarketItem)
				r.Delete("/{id}", a.handleDeleteMarketItem)
			})

			r.Get("/settings", a.handleGetSettings)
			r.Post("/settings", a.handleUpdateSettings)

			r.Get("/reports/session", a.handleActiveSession)
			r.Post("/reports/session/start", a.handleStartSession)
			r.Post("/reports/session/stop", a.handleStopSession)
			r.Get("/reports/daily", a.handleDailyReport)

			r.Get("/dashboard", a.handleDashboard)

			if a.events != nil {
				r.Get("/ws", a.events.ServeWS)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	return r
}

// requireAuth accepts a bearer header, or a token query parameter on
// websocket upgrades since browsers cannot set headers there.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.auth.Disabled() {
			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), domain.Actor{Subject: vendorSubject})))
			return
		}

		var token string
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		switch {
		case strings.HasPrefix(strings.ToLower(authorization), "bearer "):
			token = strings.TrimSpace(authorization[len("Bearer "):])
		case websocket.IsWebSocketUpgrade(r):
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts, retry later"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		a.logger.Warn("login rejected", "client", clientKey(r), "request_id", logger.RequestID(r.Context()))
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return err
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "id", Message: "must be a positive integer"}
	}
	return id, nil
}

// writeServiceError maps domain errors onto status codes. Anything it does
// not recognize is a 500 and is logged with the request id.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	var insufficient *domain.InsufficientStockError
	var discount *domain.DiscountExceededError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": validation.Error(),
			"field": validation.Field,
		})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   insufficient.Error(),
			"details": map[string]any{"insufficient": insufficient.Shortfalls},
		})
	case errors.As(err, &discount):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   discount.Error(),
			"details": map[string]any{"max_discount": discount.Max.StringFixed(2)},
		})
	case errors.Is(err, domain.ErrStockConflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     domain.ErrStockConflict.Error(),
			"retryable": true,
		})
	case errors.Is(err, domain.ErrWrongStatus), domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrIncompatibleDebtCredit),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrInvalidCombo),
		errors.Is(err, domain.ErrDuplicateIngredient):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrComboInUse),
		errors.Is(err, domain.ErrProductInUse),
		errors.Is(err, domain.ErrNotDelivered),
		errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	default:
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", logger.RequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the detail of 5xx responses. Callers log them first.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
