// Package handler exposes the rollover facade over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"trustrails/internal/platform/metrics"
	"trustrails/internal/platform/middleware"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation"
	"trustrails/internal/rollover/reconciliation/ledger"
	"trustrails/internal/rollover/service"
	id "trustrails/pkg/domain"
	"trustrails/pkg/requestcontext"
)

// Service is the subset of the rollover facade the handlers call.
//
//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type Service interface {
	Start(ctx context.Context, req service.StartRequest) (*service.StartResult, error)
	Invoke(ctx context.Context, req service.ActionRequest) (*service.ActionResult, error)
	Ingest(ctx context.Context, ce service.ChainEvent) (bool, error)
	Reconcile(ctx context.Context, transferID id.TransferID) (reconciliation.Outcome, error)
	State(ctx context.Context, transferID id.TransferID) (*models.CanonicalState, error)
	View(ctx context.Context, transferID id.TransferID, custodianID id.CustodianID) (*models.CustodianView, error)
	Events(ctx context.Context, transferID id.TransferID) ([]models.Event, error)
	Submissions(ctx context.Context, transferID id.TransferID) ([]ledger.Submission, error)
}

// Handler serves the transfer routes.
type Handler struct {
	service   Service
	validator middleware.TokenValidator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration
}

type Option func(*Handler)

// WithTimeout bounds each request. On-chain actions wait for submission, so
// it should exceed the reconciliation submit timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(svc Service, validator middleware.TokenValidator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:   svc,
		validator: validator,
		logger:    logger,
		timeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the transfer routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Latency(h.metrics))
		r.Use(chimw.Timeout(h.timeout))
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Post("/transfers", h.handleStart)
		r.Route("/transfers/{transferID}", func(r chi.Router) {
			r.Post("/actions", h.handleInvoke)
			r.Post("/chain-events", h.handleIngest)
			r.Post("/reconcile", h.handleReconcile)
			r.Get("/state", h.handleState)
			r.Get("/view", h.handleView)
			r.Get("/events", h.handleEvents)
			r.Get("/submissions", h.handleSubmissions)
		})
	})
}

// handleStart opens a transfer with the caller as the source custodian.
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body startRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := body.validate(); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	result, err := h.service.Start(ctx, service.StartRequest{
		TransferID:             body.TransferID,
		SourceCustodianID:      requestcontext.CustodianID(ctx),
		DestinationCustodianID: body.DestinationCustodianID,
		ActorID:                requestcontext.ActorID(ctx),
		Amount:                 body.Amount,
		AccountRef:             body.AccountRef,
		CorrelationID:          correlationID(ctx, body.CorrelationID),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.logger.InfoContext(ctx, "transfer started",
		"transfer_id", result.TransferID,
		"request_id", requestcontext.RequestID(ctx),
	)
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleInvoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body actionRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := body.validate(); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	result, err := h.service.Invoke(ctx, service.ActionRequest{
		TransferID:    transferID(r),
		Action:        body.Action,
		CustodianID:   requestcontext.CustodianID(ctx),
		ActorID:       requestcontext.ActorID(ctx),
		Params:        body.Params,
		CorrelationID: correlationID(ctx, body.CorrelationID),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.logger.InfoContext(ctx, "action invoked",
		"transfer_id", transferID(r),
		"action", body.Action,
		"status", result.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body chainEventRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := body.validate(); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	recorded, err := h.service.Ingest(ctx, service.ChainEvent{
		TransferID:  transferID(r),
		Action:      body.Action,
		CustodianID: body.CustodianID,
		TxHash:      body.TxHash,
		BlockNumber: body.BlockNumber,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if recorded {
		status = http.StatusCreated
	}
	writeJSON(w, status, ingestResponse{Recorded: recorded})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcome, err := h.service.Reconcile(ctx, transferID(r))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileResponse(outcome))
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.service.State(ctx, transferID(r))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.View(ctx, transferID(r), requestcontext.CustodianID(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.Events(ctx, transferID(r))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (h *Handler) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subs, err := h.service.Submissions(ctx, transferID(r))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if subs == nil {
		subs = []ledger.Submission{}
	}
	writeJSON(w, http.StatusOK, submissionsResponse{Submissions: subs})
}

func transferID(r *http.Request) id.TransferID {
	return id.TransferID(chi.URLParam(r, "transferID"))
}

// correlationID ties a request's events together; it defaults to the request id.
func correlationID(ctx context.Context, supplied string) string {
	if supplied != "" {
		return supplied
	}
	return requestcontext.RequestID(ctx)
}
