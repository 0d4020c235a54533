package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	kafkax "github.com/ariefcatur/warung-orders/internal/kafka"
	"github.com/ariefcatur/warung-orders/internal/logger"
	"github.com/ariefcatur/warung-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

type OrderService interface {
	Submit(ctx context.Context, req orders.SubmitRequest) (*orders.SubmitResult, error)
	SetStatus(ctx context.Context, id, status string) (*orders.StatusChange, error)
	ListOrders(ctx context.Context) ([]orders.OrderSummary, error)
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	GetPublicOrder(ctx context.Context, id string) (*orders.PublicOrder, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type Cache interface {
	PublicOrder(ctx context.Context, orderID string) ([]byte, bool, error)
	SetPublicOrder(ctx context.Context, orderID string, body []byte) error
	InvalidateOrder(ctx context.Context, orderID string) error
	ReserveSubmission(ctx context.Context, key string) (body []byte, reserved, pending bool, err error)
	CompleteSubmission(ctx context.Context, key string, body []byte) error
	ReleaseSubmission(ctx context.Context, key string) error
	DailyStats(ctx context.Context, day string) (map[string]int64, error)
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Orders   OrderService
	Cache    Cache
	Producer Publisher
	Service  string
	Location *time.Location
	Log      *logger.Logger
	Now      func() time.Time
}

type errorBody struct {
	Kind      string            `json:"kind,omitempty"`
	Error     string            `json:"error"`
	Shortages []orders.Shortage `json:"shortages,omitempty"`
}

type submitResponse struct {
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
	*orders.SubmitResult
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Message string `json:"message"`
	*orders.StatusChange
}

type statsResponse struct {
	Day      string           `json:"day"`
	Counters map[string]int64 `json:"counters"`
}

// Register mounts the public routes and wraps the admin ones in admin.
func (h *OrdersHandler) Register(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/products", h.listProducts)
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/public/{id}", h.getPublic)
		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Get("/", h.list)
			r.Get("/stats", h.stats)
			r.Get("/{id}", h.get)
			r.Patch("/{id}/status", h.setStatus)
		})
	})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Orders.ListProducts(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req orders.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: string(orders.KindInvalidInput), Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" {
		body, reserved, pending, err := h.Cache.ReserveSubmission(ctx, idemKey)
		switch {
		case err != nil:
			h.Log.Warn(ctx, "idempotency_reserve_failed", "submitting without replay check",
				slog.String("error", err.Error()))
			idemKey = ""
		case pending:
			writeJSON(w, http.StatusConflict, errorBody{Error: "a request with this Idempotency-Key is still in progress"})
			return
		case !reserved:
			w.Header().Set("Idempotent-Replayed", "true")
			writeRaw(w, http.StatusCreated, body)
			return
		}
	}

	res, err := h.Orders.Submit(ctx, req)
	if err != nil {
		if idemKey != "" {
			if rerr := h.Cache.ReleaseSubmission(ctx, idemKey); rerr != nil {
				h.Log.Warn(ctx, "idempotency_release_failed", "key stays reserved until it expires",
					slog.String("error", rerr.Error()))
			}
		}
		h.writeError(w, r, err)
		return
	}

	body, err := json.Marshal(submitResponse{
		Message:       "Transaction created successfully",
		TransactionID: res.OrderID.String(),
		SubmitResult:  res,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.afterCommit(ctx, "order_submitted",
		func(ctx context.Context) error {
			ev, err := orders.NewSubmittedEvent(h.Service, middleware.GetReqID(ctx), res.Order)
			if err != nil {
				return err
			}
			h.publish(orders.TopicOrderSubmitted, ev)
			return nil
		},
		func(ctx context.Context) error {
			if idemKey == "" {
				return nil
			}
			return h.Cache.CompleteSubmission(ctx, idemKey, body)
		},
	)
	writeRaw(w, http.StatusCreated, body)
}

func (h *OrdersHandler) getPublic(w http.ResponseWriter, r *http.Request) {
	oid, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, &orders.Error{Kind: orders.KindNotFound, Msg: "transaction not found"})
		return
	}
	id := oid.String()
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if body, ok, err := h.Cache.PublicOrder(ctx, id); err == nil && ok {
		writeRaw(w, http.StatusOK, body)
		return
	}

	pub, err := h.Orders.GetPublicOrder(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := json.Marshal(pub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Cache.SetPublicOrder(ctx, id, body); err != nil {
		h.Log.Warn(ctx, "public_cache_set_failed", "serving uncached",
			slog.String("order_id", id), slog.String("error", err.Error()))
	}
	writeRaw(w, http.StatusOK, body)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Orders.ListOrders(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: string(orders.KindInvalidInput), Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	change, err := h.Orders.SetStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if change.Changed {
		h.Log.Info(ctx, "order_status_changed", "status updated",
			slog.String("order_id", change.ID.String()),
			slog.String("from", string(change.From)),
			slog.String("to", string(change.Status)),
			slog.String("admin", Subject(r.Context())))
		h.afterCommit(ctx, "order_status_changed",
			func(ctx context.Context) error {
				return h.Cache.InvalidateOrder(ctx, change.ID.String())
			},
			func(ctx context.Context) error {
				ev, err := orders.NewStatusChangedEvent(h.Service, middleware.GetReqID(ctx), change)
				if err != nil {
					return err
				}
				h.publish(orders.TopicOrderStatusChanged, ev)
				return nil
			},
		)
	}
	writeJSON(w, http.StatusOK, statusResponse{Message: "Transaction status updated", StatusChange: change})
}

func (h *OrdersHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	day := r.URL.Query().Get("day")
	if day == "" {
		day = h.now().In(h.location()).Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, day); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: string(orders.KindInvalidInput), Error: "day must be YYYY-MM-DD"})
		return
	}

	counters, err := h.Cache.DailyStats(ctx, day)
	if err != nil {
		h.Log.Error(ctx, "stats_read_failed", "reading daily stats failed", err, slog.String("day", day))
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: string(orders.KindPersistence), Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Day: day, Counters: counters})
}

// afterCommit runs side effects of an already committed change. Their
// failures are logged; the response to the caller does not change.
func (h *OrdersHandler) afterCommit(ctx context.Context, action string, tasks ...func(context.Context) error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error { return task(gctx) })
	}
	if err := g.Wait(); err != nil {
		h.Log.Error(ctx, action+"_side_effect_failed", "post-commit step failed", err)
	}
}

func (h *OrdersHandler) publish(topic string, ev orders.Envelope) {
	h.Producer.Publish(topic, orders.PartitionKey(ev.CorrelationID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(ev.EventType, ev.EventVersion)...)
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := orders.KindOf(err)
	code := statusFor(kind)
	body := errorBody{Kind: string(kind), Error: err.Error()}

	var oe *orders.Error
	if errors.As(err, &oe) {
		body.Shortages = oe.Shortages
	}
	if code >= http.StatusInternalServerError {
		h.Log.Error(r.Context(), "request_failed", "internal error", err,
			slog.String("path", r.URL.Path))
		body = errorBody{Kind: string(kind), Error: "internal error"}
	}
	writeJSON(w, code, body)
}

func statusFor(kind orders.Kind) int {
	switch kind {
	case orders.KindInvalidInput, orders.KindUnresolvedProduct, orders.KindInvalidStatus:
		return http.StatusBadRequest
	case orders.KindNotFound:
		return http.StatusNotFound
	case orders.KindInsufficientStock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *OrdersHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *OrdersHandler) location() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.Local
}
