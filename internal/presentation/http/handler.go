package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/balance"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerCustomerID     = "X-Customer-ID"
	headerMerchantID     = "X-Merchant-ID"
	headerIdempotencyKey = "Idempotency-Key"
	maxBodyBytes         = 1 << 20
)

// Services are the application entry points the adapter dispatches to.
// Live is optional; without it GET /notifications/live is not mounted.
type Services struct {
	Orders        *order.Service
	Carts         *cart.Service
	Catalog       *product.Service
	Balances      *balance.Ledger
	Notifications *notification.Service
	Live          LiveFeed
}

// LiveFeed replays the most recently broadcast notification envelopes.
type LiveFeed interface {
	Recent(ctx context.Context, n int) ([]json.RawMessage, error)
}

type Handler struct {
	svc     Services
	log     observability.Logger
	tel     observability.Observability
	metrics http.Handler
	checks  map[string]func(context.Context) error

	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

type Option func(*Handler)

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(hd *Handler) { hd.metrics = h }
}

// WithHealthCheck adds a dependency probe to GET /health.
func WithHealthCheck(name string, check func(context.Context) error) Option {
	return func(hd *Handler) { hd.checks[name] = check }
}

func NewHandler(svc Services, tel observability.Observability, opts ...Option) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	h := &Handler{
		svc:          svc,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:          tel,
		checks:       make(map[string]func(context.Context) error),
		reqCounter:   tel.Metrics().Counter(observability.MHTTPRequests),
		durHistogram: tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	h.handle(r, http.MethodPost, "/orders", h.handleCheckout)
	h.handle(r, http.MethodGet, "/orders", h.handleListCustomerOrders)
	h.handle(r, http.MethodPost, "/orders/{id}/cancel", h.handleCancelOrder)
	h.handle(r, http.MethodPatch, "/orders/{id}/cancel", h.handleCancelOrder)

	h.handle(r, http.MethodGet, "/merchant/orders", h.handleListMerchantOrders)
	h.handle(r, http.MethodPost, "/merchant/orders/{id}/status", h.handleUpdateOrderStatus)
	h.handle(r, http.MethodPatch, "/merchant/orders/{id}/status", h.handleUpdateOrderStatus)

	h.handle(r, http.MethodGet, "/products", h.handleListProducts)
	h.handle(r, http.MethodGet, "/products/{id}", h.handleGetProduct)
	h.handle(r, http.MethodPost, "/merchant/products", h.handleCreateProduct)
	h.handle(r, http.MethodPut, "/merchant/products/{id}", h.handleUpdateProduct)
	h.handle(r, http.MethodDelete, "/merchant/products/{id}", h.handleDeleteProduct)
	h.handle(r, http.MethodPost, "/merchant/products/{id}/stock", h.handleAdjustStock)

	h.handle(r, http.MethodGet, "/cart", h.handleGetCart)
	h.handle(r, http.MethodPost, "/cart/items", h.handleAddCartItem)
	h.handle(r, http.MethodDelete, "/cart/items/{id}", h.handleRemoveCartItem)

	h.handle(r, http.MethodGet, "/me", h.handleProfile)
	h.handle(r, http.MethodPost, "/me/balance/top-up", h.handleTopUp)

	h.handle(r, http.MethodGet, "/notifications", h.handleListNotifications)
	h.handle(r, http.MethodPost, "/notifications/read/{id}", h.handleMarkNotificationRead)
	h.handle(r, http.MethodPost, "/notifications/read-all", h.handleMarkAllNotificationsRead)
	if h.svc.Live != nil {
		h.handle(r, http.MethodGet, "/notifications/live", h.handleLiveNotifications)
	}

	h.handle(r, http.MethodGet, "/health", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return r
}

// handle wires one route: Trace → request logger → access log → metrics → handler.
func (h *Handler) handle(r chi.Router, method, pattern string, fn http.HandlerFunc) {
	route := method + " " + pattern
	wrapped := h.withTrace(
		ObservabilityMiddleware(h.log, func(r *http.Request) string {
			return r.Header.Get(headerRequestID)
		})(
			h.withAccessLog(
				h.withHTTPMetrics(fn),
			),
		),
	)
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		wrapped.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), route)))
	}))
}

func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace starts the server span, continuing a W3C parent when present.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parent := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		route := routeFromContext(r.Context())

		ctx, span := h.tel.Tracer().Start(parent, route,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", r.URL.Path),
			attribute.String("http.user_agent", r.UserAgent()),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
		if lrw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(lrw.status))
		}
	})
}

func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.reqCounter.Add(1, labels...)
		h.durHistogram.Observe(time.Since(start).Seconds(), labels...)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	writeJSON(w, status, body)
}

var (
	errMissingCustomer = failure.New(failure.CodeForbidden, "X-Customer-ID header is required")
	errMissingMerchant = failure.New(failure.CodeForbidden, "X-Merchant-ID header is required")
)

func customerID(r *http.Request) (string, error) {
	if id := r.Header.Get(headerCustomerID); id != "" {
		return id, nil
	}
	return "", errMissingCustomer
}

func merchantID(r *http.Request) (string, error) {
	if id := r.Header.Get(headerMerchantID); id != "" {
		return id, nil
	}
	return "", errMissingMerchant
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return failure.Newf(failure.CodeInvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[failure.Code]int{
	failure.CodeNotFound:            http.StatusNotFound,
	failure.CodeForbidden:           http.StatusForbidden,
	failure.CodeInvalidArgument:     http.StatusBadRequest,
	failure.CodeOutOfStock:          http.StatusConflict,
	failure.CodeNoBalance:           http.StatusPaymentRequired,
	failure.CodeInsufficientBalance: http.StatusPaymentRequired,
	failure.CodeInvalidTransition:   http.StatusUnprocessableEntity,
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := failure.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status, code = http.StatusGatewayTimeout, "TIMEOUT"
		default:
			status, code = http.StatusInternalServerError, "INTERNAL"
		}
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("error", err.Error()),
		)
		trace.SpanFromContext(r.Context()).RecordError(err)
		writeJSON(w, status, errorResponse{Code: string(code), Message: http.StatusText(status)})
		return
	}
	writeJSON(w, status, errorResponse{Code: string(code), Message: failure.MessageOf(err)})
}

type routeKey struct{}

// contextWithRoute stores the route template so metrics and logs keep
// low-cardinality labels.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
