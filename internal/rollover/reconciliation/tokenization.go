package reconciliation

import (
	"fmt"

	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/state"
	id "trustrails/pkg/domain"
)

// tokenizationDecision returns the eligibility event for a transfer whose
// execution is being recorded. The decision is taken once, from the custodian
// levels in the pass snapshot; ok is false when the log already holds one.
func (s *Service) tokenizationDecision(p *pass) (models.Event, bool) {
	if tokenizationDecided(p.events) {
		return models.Event{}, false
	}
	src, dst := p.facts.SourceCustodianID, p.facts.DestinationCustodianID
	t := models.EventTokenizationDeclined
	if p.snap.TokenizationEligible(src, dst) {
		t = models.EventTokenizationEligible
	}
	evidence := fmt.Sprintf("source level %d, destination level %d",
		p.snap.CustodianLevel(src), p.snap.CustodianLevel(dst))
	return models.Event{
		ID:            id.DeterministicEventID(string(p.transferID), "tokenization"),
		Type:          t,
		TransferID:    p.transferID,
		ActorID:       SystemActor,
		CorrelationID: p.correlationID,
		Payload: models.Payload{
			ContractState: int(p.snap.ContractState),
			Source:        models.SourceReconciliation,
			Evidence:      evidence,
		},
	}, true
}

func tokenizationDecided(events []models.Event) bool {
	for _, e := range state.Effective(events) {
		if e.Type == models.EventTokenizationEligible || e.Type == models.EventTokenizationDeclined {
			return true
		}
	}
	return false
}

// undecidedExecution reports whether the log records execution but no
// tokenization decision, as after a listener ingested the executed event.
func undecidedExecution(p *pass) bool {
	return state.Analyze(p.events).Executed && !tokenizationDecided(p.events)
}
