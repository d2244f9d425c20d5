package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cashier-settlement-go/internal/api"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/settlement"
	"cashier-settlement-go/internal/store"

	"github.com/go-chi/chi/v5"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplay         = "Idempotent-Replay"
	maxBodyBytes         = 1 << 20
)

type Handler struct {
	svc *api.CashierService
}

func NewHandler(svc *api.CashierService) *Handler {
	return &Handler{svc: svc}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", store.ErrBadRequest)
		}
		return fmt.Errorf("%w: malformed JSON body: %v", store.ErrBadRequest, err)
	}
	return nil
}

// writeResult writes a mutation result. Replays carry the original status
// and the Idempotent-Replay header. A request whose key is still in flight
// gets 503 REQUEST_IN_FLIGHT and should be retried with the same key.
func writeResult(w http.ResponseWriter, r *http.Request, status int, res api.Result, err error) {
	if res.Replayed {
		w.Header().Set(headerReplay, "true")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, res.Transaction)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.CreateDeposit(r.Context(), r.Header.Get(headerIdempotencyKey), req)
	writeResult(w, r, http.StatusCreated, res, err)
}

func (h *Handler) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawalRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.SubmitWithdrawal(r.Context(), r.Header.Get(headerIdempotencyKey), req)
	writeResult(w, r, http.StatusCreated, res, err)
}

// transition builds a handler for an operator transition with a reason body.
func (h *Handler) transition(op func(*api.CashierService, *http.Request, string, string, models.TransitionRequest) (api.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.TransitionRequest
		if r.ContentLength != 0 {
			if err := decode(w, r, &req); err != nil {
				writeError(w, r, err)
				return
			}
		}
		res, err := op(h.svc, r, r.Header.Get(headerIdempotencyKey), chi.URLParam(r, "id"), req)
		writeResult(w, r, http.StatusOK, res, err)
	}
}

func (h *Handler) Approve() http.HandlerFunc {
	return h.transition(func(s *api.CashierService, r *http.Request, key, id string, req models.TransitionRequest) (api.Result, error) {
		return s.Approve(r.Context(), key, id, req)
	})
}

func (h *Handler) Reject() http.HandlerFunc {
	return h.transition(func(s *api.CashierService, r *http.Request, key, id string, req models.TransitionRequest) (api.Result, error) {
		return s.Reject(r.Context(), key, id, req)
	})
}

func (h *Handler) MarkPaid() http.HandlerFunc {
	return h.transition(func(s *api.CashierService, r *http.Request, key, id string, req models.TransitionRequest) (api.Result, error) {
		return s.MarkPaid(r.Context(), key, id, req)
	})
}

func (h *Handler) MarkFailed() http.HandlerFunc {
	return h.transition(func(s *api.CashierService, r *http.Request, key, id string, req models.TransitionRequest) (api.Result, error) {
		return s.MarkFailed(r.Context(), key, id, req)
	})
}

func (h *Handler) StartPayout(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.StartPayout(r.Context(), r.Header.Get(headerIdempotencyKey), chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RetryPayout(r.Context(), r.Header.Get(headerIdempotencyKey), chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetBalance(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "currency"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.svc.ListTransactions(r.Context(), chi.URLParam(r, "id"), api.TransactionQuery{
		Type:     q.Get("type"),
		State:    q.Get("state"),
		Currency: q.Get("currency"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ProviderWebhook is mounted behind the signature check.
func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	var ev models.ProviderEvent
	if err := decode(w, r, &ev); err != nil {
		writeError(w, r, err)
		return
	}
	ack, err := h.svc.HandleProviderEvent(r.Context(), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if ack.Result == string(settlement.ResultDropped) {
		status = http.StatusAccepted
	}
	writeJSON(w, status, ack)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a valid page parameter", store.ErrBadRequest, v)
	}
	return n, nil
}
