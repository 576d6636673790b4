package reconciliation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/state"
	id "trustrails/pkg/domain"
	dErrors "trustrails/pkg/domain-errors"
)

// remediate brings the log and the chain back into agreement. The log side is
// written in one atomic batch: the divergence record, catch-up events for
// what the chain has, and the supersession of premature events. The chain
// side then submits what the log claimed, in lifecycle order.
func (s *Service) remediate(ctx context.Context, p *pass, sc Scenario) error {
	allowed, err := s.gate.Allow(ctx, string(p.transferID), s.cfg.RecoveryCooldown)
	if err != nil {
		return newClassified(ClassTransient, "", "check recovery cooldown", err)
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.IncCooldownRejections()
		}
		return newClassified(ClassTransient, "", "recovery cooling down",
			dErrors.Wrap(ErrRecoveryCoolingDown, dErrors.CodeTooManyRequests, "retry after the recovery cooldown"))
	}
	if sc.Kind == ScenarioChainBehindUI && (p.facts.Cancelled || p.facts.Failed) {
		return newClassified(ClassPreconditionMismatch, "",
			fmt.Sprintf("transfer is %s; chain remediation needs an operator: %s", state.Derive(&p.facts), sc.Evidence), nil)
	}

	s.logger.InfoContext(ctx, "divergence detected",
		"transfer_id", p.transferID,
		"scenario", sc.Kind,
		"evidence", sc.Evidence,
	)

	batch := []models.Event{s.auditEvent(p, models.EventDivergenceDetected, sc, sc.Evidence)}

	catchUp := s.catchUpEvents(ctx, p, sc)
	if len(catchUp) > 0 {
		batch = append(batch, catchUp...)
		batch = append(batch, s.auditEvent(p, models.EventEventsSynthesized, sc,
			fmt.Sprintf("recorded %d event(s) the chain reflects", len(catchUp))))
	}
	if slices.Contains(sc.LogMissing, models.ActionExecuteTransfer) {
		if decision, ok := s.tokenizationDecision(p); ok {
			batch = append(batch, decision)
		}
	}

	var premature map[models.ActionType]models.Event
	if sc.Kind == ScenarioChainBehindUI {
		var ids []id.EventID
		premature, ids = prematureEvents(p.events, sc.ChainMissing)
		if len(ids) > 0 {
			batch = append(batch, s.supersedeEvent(p, sc, ids))
		}
	}

	if err := s.append(ctx, p, batch...); err != nil {
		return err
	}
	if sc.Kind != ScenarioChainBehindUI {
		return nil
	}
	return s.catchUpChain(ctx, p, sc, premature)
}

// catchUpEvents records what the chain reflects and the log lacks. A matching
// recent transaction is recorded with its real hash; otherwise the event is
// synthetic.
func (s *Service) catchUpEvents(ctx context.Context, p *pass, sc Scenario) []models.Event {
	if len(sc.LogMissing) == 0 && !sc.NeedsCompletion {
		return nil
	}
	recent := s.recentTransactions(ctx, p.transferID)
	out := make([]models.Event, 0, len(sc.LogMissing)+1)
	for _, action := range sc.LogMissing {
		custodianID := p.roleCustodian(action)
		if tx, ok := matchTransaction(recent, action); ok {
			if !tx.From.IsNil() {
				custodianID = tx.From
			}
			out = append(out, s.successEvent(p, action, custodianID, SystemActor, txReceipt(tx), ScenarioUIBehindChain, contract.Params{}))
			continue
		}
		out = append(out, s.catchUpEvent(p, action.SuccessEvent(), action, custodianID, ScenarioUIBehindChain,
			fmt.Sprintf("contract state %s reflects %s; no recent transaction found", sc.Observed, action)))
	}
	if sc.NeedsCompletion {
		out = append(out, s.catchUpEvent(p, models.EventRolloverCompleted, "", "", ScenarioUIBehindChain,
			"contract reports Completed"))
	}
	return out
}

// catchUpChain submits, in order, the actions the log claimed before the
// chain had them, reusing the superseded events' inputs.
func (s *Service) catchUpChain(ctx context.Context, p *pass, sc Scenario, premature map[models.ActionType]models.Event) error {
	for _, action := range sc.ChainMissing {
		if contract.Satisfied(action, p.snap.ContractState) {
			continue
		}
		if err := s.checkApplicable(p, action); err != nil {
			return err
		}
		prior := premature[action]
		custodianID := prior.ActorCustodianID
		if custodianID.IsNil() {
			custodianID = p.roleCustodian(action)
		}
		params, err := s.params(p, action, custodianID, prior.Payload)
		if err != nil {
			return err
		}
		if _, _, err := s.submitAndRecord(ctx, p, action, params, custodianID, SystemActor, ScenarioChainBehindUI); err != nil {
			return err
		}
	}
	return s.append(ctx, p, s.auditEvent(p, models.EventChainCaughtUp, sc,
		fmt.Sprintf("contract now %s", p.snap.ContractState)))
}

// prematureEvents returns the effective success events of actions, keyed by
// action (latest wins), and all their ids in log order.
func prematureEvents(events []models.Event, actions []models.ActionType) (map[models.ActionType]models.Event, []id.EventID) {
	byType := make(map[models.EventType]models.ActionType, len(actions))
	for _, a := range actions {
		byType[a.SuccessEvent()] = a
	}
	latest := make(map[models.ActionType]models.Event, len(actions))
	var ids []id.EventID
	for _, e := range state.Effective(events) {
		action, ok := byType[e.Type]
		if !ok {
			continue
		}
		latest[action] = e
		ids = append(ids, e.ID)
	}
	return latest, ids
}

func (p *pass) roleCustodian(action models.ActionType) id.CustodianID {
	if action.DestinationOnly() {
		return p.facts.DestinationCustodianID
	}
	return p.facts.SourceCustodianID
}

func (s *Service) append(ctx context.Context, p *pass, events ...models.Event) error {
	inserted, err := s.events.AppendAll(ctx, events...)
	if err != nil {
		if Classify(err) == ClassValidation {
			return classified(err, "", "append events")
		}
		return newClassified(ClassTransient, "", "append events", err)
	}
	p.appended = append(p.appended, inserted...)
	p.events = append(p.events, inserted...)
	return nil
}

func (s *Service) successEvent(p *pass, action models.ActionType, custodianID id.CustodianID, actor id.ActorID,
	receipt contract.Receipt, scenario ScenarioKind, params contract.Params,
) models.Event {
	t := action.SuccessEvent()
	payload := models.Payload{
		Action:        action,
		TxHash:        receipt.TxHash,
		BlockNumber:   receipt.BlockNumber,
		ContractState: int(p.snap.ContractState),
		Source:        models.SourceReconciliation,
	}
	if scenario != "" && scenario != ScenarioConsistent {
		payload.Scenario = string(scenario)
	}
	if action == models.ActionProvideFinancial {
		payload.Amount = params.Amount
		payload.AccountRef = params.AccountRef
		payload.FinancialsHash = params.FinancialsHash
	}
	if actor != SystemActor {
		payload.Source = models.SourceUser
	}
	return models.Event{
		ID:               models.ChainEventID(p.transferID, t, receipt.TxHash),
		Type:             t,
		TransferID:       p.transferID,
		ActorID:          actor,
		ActorCustodianID: custodianID,
		CorrelationID:    p.correlationID,
		Payload:          payload,
	}
}

// catchUpEvent is a system-sourced event that does not correspond to a
// transaction of ours. Its id is derived from the contract state it reflects
// and the latest supersession on the log: a re-run pass collapses into it,
// while a pass after that event was superseded records a fresh one.
func (s *Service) catchUpEvent(p *pass, t models.EventType, action models.ActionType, custodianID id.CustodianID,
	scenario ScenarioKind, evidence string,
) models.Event {
	eventID := id.DeterministicEventID(string(p.transferID), "catch-up", string(t),
		p.snap.ContractState.String(), string(latestSupersession(p.events)))
	return models.Event{
		ID:               eventID,
		Type:             t,
		TransferID:       p.transferID,
		ActorID:          SystemActor,
		ActorCustodianID: custodianID,
		CorrelationID:    p.correlationID,
		Payload: models.Payload{
			Action:        action,
			ContractState: int(p.snap.ContractState),
			Source:        models.SourceReconciliation,
			Synthetic:     true,
			Scenario:      string(scenario),
			Evidence:      evidence,
		},
	}
}

// latestSupersession returns the id of the last supersession event, or "".
func latestSupersession(events []models.Event) id.EventID {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == models.EventEventsSuperseded {
			return events[i].ID
		}
	}
	return ""
}

func (s *Service) auditEvent(p *pass, t models.EventType, sc Scenario, evidence string) models.Event {
	return models.Event{
		ID:            id.NewEventID(),
		Type:          t,
		TransferID:    p.transferID,
		ActorID:       SystemActor,
		CorrelationID: p.correlationID,
		Payload: models.Payload{
			ContractState: int(p.snap.ContractState),
			Source:        models.SourceReconciliation,
			Scenario:      string(sc.Kind),
			Evidence:      evidence,
		},
	}
}

func (s *Service) supersedeEvent(p *pass, sc Scenario, ids []id.EventID) models.Event {
	sorted := make([]string, len(ids))
	for i, eid := range ids {
		sorted[i] = string(eid)
	}
	slices.Sort(sorted)
	return models.Event{
		ID:            id.DeterministicEventID(string(p.transferID), "superseded", strings.Join(sorted, ",")),
		Type:          models.EventEventsSuperseded,
		TransferID:    p.transferID,
		ActorID:       SystemActor,
		CorrelationID: p.correlationID,
		Payload: models.Payload{
			ContractState:      int(p.snap.ContractState),
			Source:             models.SourceReconciliation,
			Scenario:           string(sc.Kind),
			Evidence:           sc.Evidence,
			SupersededEventIDs: ids,
		},
	}
}
