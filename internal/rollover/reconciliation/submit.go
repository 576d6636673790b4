package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation/ledger"
	"trustrails/internal/rollover/state"
	id "trustrails/pkg/domain"
	dErrors "trustrails/pkg/domain-errors"
	"trustrails/pkg/requestcontext"
)

// landing is a successful submission. observed is set when the action's
// effect was found on-chain without a receipt of ours.
type landing struct {
	receipt  contract.Receipt
	observed bool
}

func (s *Service) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// readState is a single guarded oracle read. A transfer with no escrow yet
// reads as StateNone.
func (s *Service) readState(ctx context.Context, transferID id.TransferID) (contract.Snapshot, error) {
	if !s.breaker.Allow() {
		return contract.Snapshot{}, newClassified(ClassTransient, "", "contract state unavailable",
			dErrors.Wrap(ErrOracleOpen, dErrors.CodeUnavailable, "contract state oracle circuit open"))
	}
	snap, err := s.client.GetState(ctx, transferID)
	if errors.Is(err, contract.ErrNoEscrow) {
		s.breaker.RecordSuccess()
		return contract.Snapshot{TransferID: transferID, ContractState: contract.StateNone}, nil
	}
	if err != nil {
		if Classify(err) == ClassTransient {
			if _, change := s.breaker.RecordFailure(); change.Opened {
				s.logger.WarnContext(ctx, "contract state oracle circuit opened", "transfer_id", transferID)
			}
		}
		return contract.Snapshot{}, err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "contract state oracle circuit closed")
	}
	if !snap.ContractState.IsValid() {
		return contract.Snapshot{}, newClassified(ClassTerminal, "", "read contract state",
			fmt.Errorf("contract reported out-of-range state %d", int(snap.ContractState)))
	}
	return snap, nil
}

// observe loads the snapshot for p, retrying transient failures.
func (s *Service) observe(ctx context.Context, p *pass) error {
	bo := s.newBackoff()
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, bo.NextBackOff()); err != nil {
				return newClassified(ClassTransient, "", "read contract state interrupted", err)
			}
		}
		snap, err := s.readState(ctx, p.transferID)
		if err == nil {
			p.snap = snap
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOracleOpen) || Classify(err) != ClassTransient {
			return classified(err, "", "read contract state")
		}
		s.logger.WarnContext(ctx, "contract state read failed",
			"transfer_id", p.transferID,
			"attempt", attempt,
			"error", err,
		)
	}
	ce := newClassified(ClassTransient, "", fmt.Sprintf("read contract state failed after %d attempts", s.cfg.MaxAttempts),
		errors.Join(ErrAttemptsExhausted, lastErr))
	ce.attempts = s.cfg.MaxAttempts
	return ce
}

// submit lands action with retries. Before every retry the oracle is queried
// again so a transaction that landed despite an error is never resubmitted.
func (s *Service) submit(ctx context.Context, p *pass, action models.ActionType, params contract.Params) (landing, error) {
	if err := s.markSubmitted(ctx, p, action, params.CustodianID); err != nil {
		return landing{}, err
	}
	bo := s.newBackoff()
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, bo.NextBackOff()); err != nil {
				return landing{}, newClassified(ClassTransient, action, "retry interrupted", err)
			}
			if l, done, err := s.recheck(ctx, p, action); done || err != nil {
				return l, err
			}
		}

		receipt, err := s.submitOnce(ctx, p, action, params, attempt)
		if err == nil {
			return landing{receipt: receipt}, nil
		}
		lastErr = err

		switch Classify(err) {
		case ClassTransient:
			s.logger.WarnContext(ctx, "submission failed, will re-check",
				"transfer_id", p.transferID,
				"action", action,
				"attempt", attempt,
				"error", err,
			)
			continue
		case ClassPreconditionMismatch:
			// Another writer may have moved the contract past us.
			if l, done, rerr := s.recheck(ctx, p, action); done || rerr != nil {
				return l, rerr
			}
			return landing{}, newClassified(ClassPreconditionMismatch, action, "contract rejected action", err)
		default:
			ce := newClassified(Classify(err), action, "submit "+string(action), err)
			ce.attempts = attempt
			return landing{}, ce
		}
	}

	// A timeout on the last attempt still gets its re-check.
	if l, done, err := s.recheck(ctx, p, action); done || (err != nil && Classify(err) != ClassTransient) {
		return l, err
	}
	ce := newClassified(ClassTransient, action, fmt.Sprintf("gave up after %d attempts", s.cfg.MaxAttempts),
		errors.Join(ErrAttemptsExhausted, lastErr))
	ce.attempts = s.cfg.MaxAttempts
	return landing{}, ce
}

// recheck queries the oracle. done is true when action has landed. A state
// that no longer permits the action is a precondition mismatch.
func (s *Service) recheck(ctx context.Context, p *pass, action models.ActionType) (landing, bool, error) {
	snap, err := s.readState(ctx, p.transferID)
	if err != nil {
		return landing{}, false, nil
	}
	p.snap = snap
	if contract.Satisfied(action, snap.ContractState) {
		s.logger.InfoContext(ctx, "action found on-chain during re-check",
			"transfer_id", p.transferID,
			"action", action,
			"contract_state", snap.ContractState,
		)
		return landing{observed: true}, true, nil
	}
	if !contract.CanApply(action, snap.ContractState) {
		return landing{}, false, newClassified(ClassPreconditionMismatch, action,
			fmt.Sprintf("contract state %s no longer permits %s", snap.ContractState, action), nil)
	}
	return landing{}, false, nil
}

func (s *Service) submitOnce(ctx context.Context, p *pass, action models.ActionType, params contract.Params, attempt int) (contract.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "contract.Submit", trace.WithAttributes(
		attribute.String("transfer_id", string(p.transferID)),
		attribute.String("action", string(action)),
		attribute.Int("attempt", attempt),
	))
	defer span.End()

	subCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := contract.Submit(subCtx, s.client, action, params)
	elapsed := time.Since(start)

	if err != nil && subCtx.Err() != nil && ctx.Err() == nil {
		var chainErr *contract.ChainError
		if !errors.As(err, &chainErr) {
			err = contract.NewChainError(contract.KindTimeout, "submission deadline exceeded", err)
		}
	}

	result := ledger.ResultLanded
	switch {
	case err == nil:
	case contract.KindOf(err) == contract.KindTimeout:
		result = ledger.ResultTimeout
	default:
		result = ledger.ResultFailed
	}
	if s.metrics != nil {
		s.metrics.ObserveSubmission(string(action), string(result), elapsed.Seconds())
	}
	sub := ledger.Submission{
		TransferID:  p.transferID,
		Action:      action,
		CustodianID: params.CustodianID,
		Attempt:     attempt,
		Result:      result,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err != nil {
		sub.ErrorClass = string(Classify(err))
		sub.Detail = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, sub.ErrorClass)
	}
	s.record(ctx, sub)
	return receipt, err
}

func (s *Service) record(ctx context.Context, sub ledger.Submission) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Record(ctx, sub); err != nil {
		s.logger.WarnContext(ctx, "failed to record submission",
			"transfer_id", sub.TransferID,
			"action", sub.Action,
			"error", err,
		)
	}
}

// submitAndRecord lands action and appends its success event. If the chain
// write lands but the append fails, the next pass finds the transaction in
// recent history and records it then.
func (s *Service) submitAndRecord(ctx context.Context, p *pass, action models.ActionType, params contract.Params,
	custodianID id.CustodianID, actor id.ActorID, scenario ScenarioKind,
) (models.Event, bool, error) {
	l, err := s.submit(ctx, p, action, params)
	if err != nil {
		err = s.escalate(ctx, p, action, err, true)
		s.withdrawSubmitted(ctx, p, action)
		return models.Event{}, false, err
	}

	var ev models.Event
	if l.observed {
		if tx, ok := matchTransaction(s.recentTransactions(ctx, p.transferID), action); ok {
			if !tx.From.IsNil() {
				custodianID = tx.From
			}
			ev = s.successEvent(p, action, custodianID, SystemActor, txReceipt(tx), ScenarioUIBehindChain, params)
		} else {
			ev = s.catchUpEvent(p, action.SuccessEvent(), action, custodianID, ScenarioUIBehindChain,
				"effect observed on-chain after submission error")
		}
	} else {
		p.snap.ContractState = advance(action, p.snap.ContractState)
		ev = s.successEvent(p, action, custodianID, actor, l.receipt, scenario, params)
	}

	batch := []models.Event{ev}
	if action == models.ActionExecuteTransfer {
		if decision, ok := s.tokenizationDecision(p); ok {
			batch = append(batch, decision)
		}
	}
	if err := s.append(ctx, p, batch...); err != nil {
		s.logger.ErrorContext(ctx, "action landed on-chain but was not recorded",
			"transfer_id", p.transferID,
			"action", action,
			"tx_hash", ev.Payload.TxHash,
			"error", err,
		)
		return models.Event{}, false, err
	}
	s.logger.InfoContext(ctx, "on-chain action recorded",
		"transfer_id", p.transferID,
		"action", action,
		"tx_hash", ev.Payload.TxHash,
		"observed", l.observed,
	)
	return ev, l.observed, nil
}

// markSubmitted records that a submission of action is in flight. Views show
// the action as pending until its success event, a failure event or the
// marker's withdrawal resolves it. The client only returns a hash once the
// transaction lands, so the marker carries none.
func (s *Service) markSubmitted(ctx context.Context, p *pass, action models.ActionType, custodianID id.CustodianID) error {
	marker := models.Event{
		ID:               id.NewEventID(),
		Type:             models.EventTransactionSubmitted,
		TransferID:       p.transferID,
		ActorID:          SystemActor,
		ActorCustodianID: custodianID,
		CorrelationID:    p.correlationID,
		Payload: models.Payload{
			Action:        action,
			ContractState: int(p.snap.ContractState),
			Source:        models.SourceReconciliation,
		},
	}
	if err := s.append(ctx, p, marker); err != nil {
		return err
	}
	if p.markers == nil {
		p.markers = make(map[models.ActionType]id.EventID)
	}
	p.markers[action] = marker.ID
	return nil
}

// withdrawSubmitted supersedes the in-flight marker of a submission that
// failed without a failure event, so the action can be requested again.
func (s *Service) withdrawSubmitted(ctx context.Context, p *pass, action models.ActionType) {
	marker, ok := p.markers[action]
	if !ok {
		return
	}
	if _, pending := state.Analyze(p.events).PendingActions[action]; !pending {
		return
	}
	withdrawal := models.Event{
		ID:            id.DeterministicEventID(string(p.transferID), "withdrawn", string(marker)),
		Type:          models.EventEventsSuperseded,
		TransferID:    p.transferID,
		ActorID:       SystemActor,
		CorrelationID: p.correlationID,
		Payload: models.Payload{
			Action:             action,
			ContractState:      int(p.snap.ContractState),
			Source:             models.SourceReconciliation,
			Evidence:           "submission did not land",
			SupersededEventIDs: []id.EventID{marker},
		},
	}
	if err := s.append(ctx, p, withdrawal); err != nil {
		s.logger.WarnContext(ctx, "failed to withdraw submission marker",
			"transfer_id", p.transferID,
			"action", action,
			"error", err,
		)
	}
}

// escalate records a failure event and raises an alert for terminal errors
// and exhausted transient errors. Every other class returns unchanged.
func (s *Service) escalate(ctx context.Context, p *pass, action models.ActionType, err error, submitted bool) error {
	ce := classified(err, action, "reconcile")
	if ce.Action == "" {
		ce.Action = action
	}
	switch ce.Class {
	case ClassTerminal:
	case ClassTransient:
		if !errors.Is(ce, ErrAttemptsExhausted) {
			return ce
		}
	default:
		return ce
	}

	eventType := models.EventTransactionFailed
	if !submitted {
		eventType = models.EventRolloverFailed
	}
	failure := models.Event{
		ID:            id.NewEventID(),
		Type:          eventType,
		TransferID:    p.transferID,
		ActorID:       SystemActor,
		CorrelationID: p.correlationID,
		Payload: models.Payload{
			Action:     action,
			ErrorClass: string(ce.Class),
			Reason:     ce.Err.Error(),
			Source:     models.SourceReconciliation,
			Attempt:    ce.attempts,
		},
	}
	if aerr := s.append(ctx, p, failure); aerr != nil {
		s.logger.ErrorContext(ctx, "failed to record failure event",
			"transfer_id", p.transferID,
			"action", action,
			"error", aerr,
		)
	}
	s.alerter.Alert(ctx, Alert{
		TransferID: p.transferID,
		Action:     action,
		Class:      ce.Class,
		Attempts:   ce.attempts,
		Message:    ce.Err.Error(),
	})
	return ce
}

// recentTransactions is best-effort: without history, catch-up events are
// synthesized instead of carrying real hashes.
func (s *Service) recentTransactions(ctx context.Context, transferID id.TransferID) []contract.Transaction {
	since := requestcontext.Now(ctx).Add(-s.cfg.RecentTxWindow)
	txs, err := s.client.RecentTransactions(ctx, transferID, since)
	if err != nil {
		s.logger.WarnContext(ctx, "recent transaction lookup failed",
			"transfer_id", transferID,
			"error", err,
		)
		return nil
	}
	return txs
}

// matchTransaction returns the latest successful transaction for action.
func matchTransaction(txs []contract.Transaction, action models.ActionType) (contract.Transaction, bool) {
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].Action == action && txs[i].Succeeded && txs[i].TxHash != "" {
			return txs[i], true
		}
	}
	return contract.Transaction{}, false
}

func txReceipt(tx contract.Transaction) contract.Receipt {
	return contract.Receipt{TxHash: tx.TxHash, BlockNumber: tx.BlockNumber}
}

func advance(action models.ActionType, current contract.State) contract.State {
	next, err := contract.Apply(action, current)
	if err != nil {
		return current
	}
	return next
}
