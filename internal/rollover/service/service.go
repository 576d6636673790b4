// Package service is the action invocation facade over the rollover core.
// On-chain actions go through reconciliation; off-chain actions are checked
// against the caller's CustodianView and appended directly. Read models are
// computed from the log, with CanonicalState served through a cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"trustrails/internal/rollover/custodian"
	"trustrails/internal/rollover/eventlog"
	"trustrails/internal/rollover/lock"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation"
	"trustrails/internal/rollover/reconciliation/ledger"
	"trustrails/internal/rollover/state"
	id "trustrails/pkg/domain"
	dErrors "trustrails/pkg/domain-errors"
)

// Reconciler runs reconciliation passes.
//
//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Reconciler
type Reconciler interface {
	Execute(ctx context.Context, req reconciliation.Request) (reconciliation.Outcome, error)
	Reconcile(ctx context.Context, transferID id.TransferID) (reconciliation.Outcome, error)
}

// StateReader serves cached canonical states.
type StateReader interface {
	Get(ctx context.Context, transferID id.TransferID) (models.CanonicalState, error)
}

// Params are the action-specific inputs of a request.
type Params struct {
	Amount      string   `json:"amount,omitempty"`
	AccountRef  string   `json:"accountRef,omitempty"`
	DocumentIDs []string `json:"documentIds,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// ActionRequest is one custodian's request to act on a transfer.
type ActionRequest struct {
	TransferID    id.TransferID
	Action        models.ActionType
	CustodianID   id.CustodianID
	ActorID       id.ActorID
	Params        Params
	CorrelationID string
}

// ActionResult is the success shape of an action request. View is the
// caller's refreshed CustodianView.
type ActionResult struct {
	Success bool                  `json:"success"`
	Status  reconciliation.Status `json:"status"`
	TxHash  string                `json:"txHash,omitempty"`
	View    models.CustodianView  `json:"view"`
}

// ChainEvent is an on-chain action reported by a chain listener.
type ChainEvent struct {
	TransferID  id.TransferID
	Action      models.ActionType
	CustodianID id.CustodianID
	TxHash      string
	BlockNumber uint64
}

// Service is the rollover facade.
type Service struct {
	events     *eventlog.Log
	reconciler Reconciler
	locker     lock.Locker
	engine     *state.Engine
	states     StateReader
	ledger     ledger.Store
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithStateReader serves State through r instead of computing per call.
func WithStateReader(r StateReader) Option {
	return func(s *Service) { s.states = r }
}

// WithLedger exposes recorded submissions through Submissions.
func WithLedger(l ledger.Store) Option {
	return func(s *Service) { s.ledger = l }
}

func WithEngine(e *state.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// New constructs a Service. locker must be the same Locker the reconciler
// serializes on, so off-chain appends never interleave with a pass.
func New(events *eventlog.Log, reconciler Reconciler, locker lock.Locker, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, errors.New("event log is required")
	}
	if reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if locker == nil {
		return nil, errors.New("locker is required")
	}
	s := &Service{
		events:     events,
		reconciler: reconciler,
		locker:     locker,
		engine:     state.NewEngine(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StartRequest opens a transfer. An empty TransferID is generated; an empty
// DestinationCustodianID starts a single-sided transfer.
type StartRequest struct {
	TransferID             id.TransferID
	SourceCustodianID      id.CustodianID
	DestinationCustodianID id.CustodianID
	ActorID                id.ActorID
	Amount                 string
	AccountRef             string
	CorrelationID          string
}

// StartResult carries the new transfer id and the source custodian's view.
type StartResult struct {
	TransferID id.TransferID        `json:"transferId"`
	View       models.CustodianView `json:"view"`
}

// Start records rollover.started for a new transfer. It fails with a conflict
// when the transfer already has a start event.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	switch {
	case req.SourceCustodianID.IsNil():
		return nil, dErrors.New(dErrors.CodeInvalidInput, "source custodian ID is required")
	case req.DestinationCustodianID == req.SourceCustodianID:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "destination custodian must differ from the source")
	}
	if req.TransferID.IsNil() {
		req.TransferID = id.TransferID(uuid.NewString())
	} else if _, err := id.ParseTransferID(string(req.TransferID)); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.TransferKey(req.TransferID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "transfer is busy")
	}
	defer release()

	existing, err := s.events.ListForTransfer(ctx, req.TransferID)
	if err != nil {
		return nil, err
	}
	if facts := state.Analyze(existing); facts.Started {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("transfer %s already exists", req.TransferID))
	}

	if err := s.events.Append(ctx, models.Event{
		ID:               id.NewEventID(),
		Type:             models.EventRolloverStarted,
		TransferID:       req.TransferID,
		ActorID:          req.ActorID,
		ActorCustodianID: req.SourceCustodianID,
		CorrelationID:    req.CorrelationID,
		Payload: models.Payload{
			SourceCustodianID:      req.SourceCustodianID,
			DestinationCustodianID: req.DestinationCustodianID,
			Amount:                 req.Amount,
			AccountRef:             req.AccountRef,
			Source:                 models.SourceUser,
		},
	}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "transfer started",
		"transfer_id", req.TransferID,
		"source_custodian_id", req.SourceCustodianID,
		"destination_custodian_id", req.DestinationCustodianID,
	)

	events, facts, err := s.load(ctx, req.TransferID)
	if err != nil {
		return nil, err
	}
	view := custodian.Build(s.engine.Compute(req.TransferID, events), &facts, req.SourceCustodianID)
	return &StartResult{TransferID: req.TransferID, View: view}, nil
}

// Invoke performs one action and returns the caller's refreshed view.
func (s *Service) Invoke(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	switch {
	case req.TransferID.IsNil():
		return nil, dErrors.New(dErrors.CodeInvalidInput, "transfer ID is required")
	case req.CustodianID.IsNil():
		return nil, dErrors.New(dErrors.CodeInvalidInput, "custodian ID is required")
	case !req.Action.IsValid():
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown action %q", req.Action))
	}

	var (
		status reconciliation.Status
		txHash string
	)
	if req.Action.IsOnChain() {
		outcome, err := s.reconciler.Execute(ctx, reconciliation.Request{
			TransferID:    req.TransferID,
			Action:        req.Action,
			CustodianID:   req.CustodianID,
			ActorID:       req.ActorID,
			Params:        reconciliation.ActionParams{Amount: req.Params.Amount, AccountRef: req.Params.AccountRef},
			CorrelationID: req.CorrelationID,
		})
		if err != nil {
			return nil, err
		}
		status, txHash = outcome.Status, outcome.TxHash
	} else {
		var err error
		status, err = s.invokeOffChain(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	view, err := s.View(ctx, req.TransferID, req.CustodianID)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Success: true, Status: status, TxHash: txHash, View: *view}, nil
}

func (s *Service) invokeOffChain(ctx context.Context, req ActionRequest) (reconciliation.Status, error) {
	release, err := s.locker.Acquire(ctx, lock.TransferKey(req.TransferID))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "transfer is busy")
	}
	defer release()

	events, facts, err := s.load(ctx, req.TransferID)
	if err != nil {
		return "", err
	}
	role := custodian.RoleOf(&facts, req.CustodianID)
	if role == custodian.RoleNone {
		return "", dErrors.New(dErrors.CodeForbidden, "custodian is not a participant in this transfer")
	}
	current := state.Derive(&facts)

	if req.Action == models.ActionCancel {
		switch {
		case current == models.StateCancelled:
			return reconciliation.StatusAlreadyInState, nil
		case current.IsTerminal():
			return "", dErrors.New(dErrors.CodePrecondition, fmt.Sprintf("transfer is already %s", current))
		}
	} else {
		if alreadyDone(req.Action, &facts, req.CustodianID) {
			return reconciliation.StatusAlreadyInState, nil
		}
		cs := s.engine.Compute(req.TransferID, events)
		view := custodian.Build(cs, &facts, req.CustodianID)
		if view.NextAction == nil || view.NextAction.ActionType != req.Action || !view.NextAction.CanAct {
			reason := view.WaitingLabel
			if view.NextAction != nil {
				reason = view.NextAction.Label
			}
			return "", dErrors.New(dErrors.CodePrecondition,
				fmt.Sprintf("%s is not available in state %s: %s", req.Action, current, reason))
		}
	}

	ev := models.Event{
		ID:               id.NewEventID(),
		Type:             req.Action.SuccessEvent(),
		TransferID:       req.TransferID,
		ActorID:          req.ActorID,
		ActorCustodianID: req.CustodianID,
		CorrelationID:    req.CorrelationID,
		Payload: models.Payload{
			Action:      req.Action,
			Amount:      req.Params.Amount,
			AccountRef:  req.Params.AccountRef,
			DocumentIDs: req.Params.DocumentIDs,
			Reason:      req.Params.Reason,
			Source:      models.SourceUser,
		},
	}
	if err := s.events.Append(ctx, ev); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "off-chain action recorded",
		"transfer_id", req.TransferID,
		"action", req.Action,
		"custodian_id", req.CustodianID,
	)
	return reconciliation.StatusExecuted, nil
}

// alreadyDone reports whether the log already records action by custodianID.
func alreadyDone(action models.ActionType, facts *state.Facts, custodianID id.CustodianID) bool {
	p := facts.Party(custodianID)
	switch action {
	case models.ActionAcknowledge:
		return p.Acknowledged
	case models.ActionSubmitDocuments:
		return p.DocumentsSubmitted
	case models.ActionApproveDocuments:
		return p.DocumentsApproved
	case models.ActionVerifyFinancial:
		return p.FinancialVerified
	case models.ActionSendFunds:
		return facts.FundsSent
	case models.ActionConfirmFundsReceived:
		return facts.FundsReceived
	}
	return false
}

// Ingest records an on-chain action reported by a listener. It returns false
// when the log already records the action, whatever wrote it.
func (s *Service) Ingest(ctx context.Context, ce ChainEvent) (bool, error) {
	switch {
	case ce.TransferID.IsNil():
		return false, dErrors.New(dErrors.CodeInvalidInput, "transfer ID is required")
	case !ce.Action.IsOnChain():
		return false, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%q is not an on-chain action", ce.Action))
	case ce.TxHash == "":
		return false, dErrors.New(dErrors.CodeInvalidInput, "transaction hash is required")
	}

	release, err := s.locker.Acquire(ctx, lock.TransferKey(ce.TransferID))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "transfer is busy")
	}
	defer release()

	events, _, err := s.load(ctx, ce.TransferID)
	if err != nil {
		return false, err
	}
	if _, ok := state.LatestSuccess(events, ce.Action); ok {
		return false, nil
	}

	eventType := ce.Action.SuccessEvent()
	inserted, err := s.events.AppendAll(ctx, models.Event{
		ID:               models.ChainEventID(ce.TransferID, eventType, ce.TxHash),
		Type:             eventType,
		TransferID:       ce.TransferID,
		ActorID:          id.ActorID("chain:" + string(ce.CustodianID)),
		ActorCustodianID: ce.CustodianID,
		Payload: models.Payload{
			Action:      ce.Action,
			TxHash:      ce.TxHash,
			BlockNumber: ce.BlockNumber,
			Source:      models.SourceChainListener,
		},
	})
	if err != nil {
		return false, err
	}
	return len(inserted) > 0, nil
}

// Reconcile runs a passive reconciliation pass for an operator or scheduler.
func (s *Service) Reconcile(ctx context.Context, transferID id.TransferID) (reconciliation.Outcome, error) {
	return s.reconciler.Reconcile(ctx, transferID)
}

// State returns the canonical state of a transfer.
func (s *Service) State(ctx context.Context, transferID id.TransferID) (*models.CanonicalState, error) {
	if s.states != nil {
		cs, err := s.states.Get(ctx, transferID)
		if err != nil {
			return nil, err
		}
		return &cs, nil
	}
	cs, err := s.ComputeState(ctx, transferID)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// ComputeState derives the canonical state from the log. It is the cache's
// load function.
func (s *Service) ComputeState(ctx context.Context, transferID id.TransferID) (models.CanonicalState, error) {
	events, _, err := s.load(ctx, transferID)
	if err != nil {
		return models.CanonicalState{}, err
	}
	return s.engine.Compute(transferID, events), nil
}

// View returns the transfer as seen by custodianID.
func (s *Service) View(ctx context.Context, transferID id.TransferID, custodianID id.CustodianID) (*models.CustodianView, error) {
	events, facts, err := s.load(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if custodian.RoleOf(&facts, custodianID) == custodian.RoleNone {
		return nil, dErrors.New(dErrors.CodeForbidden, "custodian is not a participant in this transfer")
	}
	cs := s.engine.Compute(transferID, events)
	view := custodian.Build(cs, &facts, custodianID)
	return &view, nil
}

// Events returns the transfer's events in fold order.
func (s *Service) Events(ctx context.Context, transferID id.TransferID) ([]models.Event, error) {
	events, _, err := s.load(ctx, transferID)
	return events, err
}

// Submissions returns the recorded submission attempts for a transfer.
func (s *Service) Submissions(ctx context.Context, transferID id.TransferID) ([]ledger.Submission, error) {
	if s.ledger == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "submission ledger is not configured")
	}
	return s.ledger.ListForTransfer(ctx, transferID)
}

func (s *Service) load(ctx context.Context, transferID id.TransferID) ([]models.Event, state.Facts, error) {
	events, err := s.events.ListForTransfer(ctx, transferID)
	if err != nil {
		return nil, state.Facts{}, err
	}
	facts := state.Analyze(events)
	if !facts.Started {
		return nil, state.Facts{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("transfer %s not found", transferID))
	}
	return events, facts, nil
}
