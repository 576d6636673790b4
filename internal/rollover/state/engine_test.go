package state

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
	rt "trustrails/internal/rollover/rollovertest"
	id "trustrails/pkg/domain"
)

// =============================================================================
// State Computation Engine Test Suite
// =============================================================================
// Justification for unit tests: derivation precedence is the core contract of the
// read model. Every rule and tie-break is pinned here against hand-built histories.

type EngineSuite struct {
	suite.Suite
	engine *Engine
	now    time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.engine = NewEngine(WithClock(func() time.Time { return s.now }))
}

func (s *EngineSuite) derive(b *rt.Builder) models.StateName {
	return s.engine.Compute(rt.Transfer, b.Events()).CurrentState
}

// =============================================================================
// Catalogue
// =============================================================================

func (s *EngineSuite) TestEveryEventTypeIsClassified() {
	s.Len(models.AllEventTypes, 46)
	for _, t := range models.AllEventTypes {
		s.NotEqual(classUnknown, classify(t), "event type %s has no fold class", t)
	}
	s.Equal(classUnknown, classify("rollover.teleported"))
}

// =============================================================================
// Precedence
// =============================================================================

func (s *EngineSuite) TestTerminalEventsWin() {
	s.Run("completed beats everything", func() {
		b := rt.New().Started().Approved().
			Add(models.EventSenderAgreed, rt.Source).
			Add(models.EventRolloverCompleted, "")
		s.Equal(models.StateCompleted, s.derive(b))
	})

	s.Run("tie-break completed > cancelled > failed", func() {
		b := rt.New().Started().
			Add(models.EventRolloverFailed, "").
			Add(models.EventRolloverCancelled, rt.Source).
			Add(models.EventRolloverCompleted, "")
		s.Equal(models.StateCompleted, s.derive(b))

		b = rt.New().Started().
			Add(models.EventRolloverCancelled, rt.Source).
			Add(models.EventRolloverFailed, "")
		s.Equal(models.StateCancelled, s.derive(b))
	})

	s.Run("order of terminal events does not matter", func() {
		b := rt.New().Started().
			Add(models.EventRolloverCompleted, "").
			Add(models.EventTransactionFailed, "")
		s.Equal(models.StateCompleted, s.derive(b))
	})

	s.Run("transaction failure is terminal", func() {
		b := rt.New().Started().Approved().
			Add(models.EventSenderAgreed, rt.Source).
			AddWith(models.EventTransactionFailed, "", models.Payload{Action: models.ActionAgreeReceive})
		s.Equal(models.StateFailed, s.derive(b))
	})
}

func (s *EngineSuite) TestSettlementPrecedence() {
	s.Run("burn implies completed", func() {
		b := rt.New().Started().Add(models.EventTokensMinted, "").Add(models.EventTokensBurned, "")
		s.Equal(models.StateCompleted, s.derive(b))
	})
	s.Run("mint without burn is in transit", func() {
		b := rt.New().Started().Add(models.EventTransferExecuted, "").Add(models.EventTokensMinted, "")
		s.Equal(models.StateFundsInTransit, s.derive(b))
	})
	s.Run("funds received implies completed", func() {
		b := rt.New().Started().Add(models.EventFundsSent, rt.Source).Add(models.EventFundsReceived, rt.Destination)
		s.Equal(models.StateCompleted, s.derive(b))
	})
	s.Run("funds sent without received is in transit", func() {
		b := rt.New().Started().Add(models.EventTransferExecuted, "").Add(models.EventFundsSent, rt.Source)
		s.Equal(models.StateFundsInTransit, s.derive(b))
	})
	s.Run("mint outranks funds received", func() {
		b := rt.New().Started().Add(models.EventFundsReceived, rt.Destination).Add(models.EventTokensMinted, "")
		s.Equal(models.StateFundsInTransit, s.derive(b))
	})
}

func (s *EngineSuite) TestExecutionBeatsAgreementFlow() {
	b := rt.New().
		Add(models.EventRolloverStarted, rt.Source).
		Add(models.EventSenderAgreed, rt.Source).
		Add(models.EventTransferExecuted, "")
	s.Equal(models.StateAwaitingFunds, s.derive(b))
}

// =============================================================================
// Document Gate
// =============================================================================

func (s *EngineSuite) TestTwoPartyDocumentGate() {
	s.Run("one approval of two custodians stays awaiting approval", func() {
		b := rt.New().Started().
			Add(models.EventDocumentsSubmitted, rt.Source).
			Add(models.EventDocumentsApproved, rt.Destination)
		s.Equal(models.StateAwaitingApproval, s.derive(b))
	})

	s.Run("the same custodian approving twice is one approval", func() {
		b := rt.New().Started().
			Add(models.EventDocumentsSubmitted, rt.Source).
			Add(models.EventDocumentsApproved, rt.Destination).
			Add(models.EventDocumentsApproved, rt.Destination)
		s.Equal(models.StateAwaitingApproval, s.derive(b))
	})

	s.Run("agreements do not bypass the gate", func() {
		b := rt.New().Started().
			Add(models.EventDocumentsSubmitted, rt.Source).
			Add(models.EventDocumentsApproved, rt.Destination).
			Add(models.EventSenderAgreed, rt.Source).
			Add(models.EventReceiverAgreed, rt.Destination)
		s.Equal(models.StateAwaitingApproval, s.derive(b))
	})

	s.Run("both approvals open the gate", func() {
		s.Equal(models.StateAwaitingSender, s.derive(rt.New().Started().Approved()))
	})
}

func (s *EngineSuite) TestSingleCustodianDocumentGate() {
	b := rt.New().StartedSingle().
		Add(models.EventDocumentsSubmitted, rt.Source).
		Add(models.EventDocumentsApproved, rt.Source)
	s.Equal(models.StateAwaitingSender, s.derive(b))

	facts := Analyze(b.Events())
	s.Equal(1, facts.RequiredApprovals())
}

// =============================================================================
// Agreement Flow
// =============================================================================

func (s *EngineSuite) TestAgreementFlow() {
	s.Run("receiver agreed waits for sender", func() {
		b := rt.New().Started().Approved().Add(models.EventReceiverAgreed, rt.Destination)
		s.Equal(models.StateAwaitingSender, s.derive(b))
	})
	s.Run("sender agreed waits for receiver", func() {
		b := rt.New().Started().Approved().Add(models.EventSenderAgreed, rt.Source)
		s.Equal(models.StateAwaitingReceiver, s.derive(b))
	})
	s.Run("both agreed waits for financials", func() {
		b := rt.New().Started().Approved().
			Add(models.EventSenderAgreed, rt.Source).
			Add(models.EventReceiverAgreed, rt.Destination)
		s.Equal(models.StateAwaitingFinancialVerification, s.derive(b))
	})
	s.Run("financials provided is ready to record", func() {
		b := rt.New().Started().Approved().
			Add(models.EventReceiverAgreed, rt.Destination).
			Add(models.EventSenderAgreed, rt.Source).
			Add(models.EventFinancialsProvided, rt.Source)
		s.Equal(models.StateReadyToRecord, s.derive(b))
	})
}

// =============================================================================
// Fallback
// =============================================================================

func (s *EngineSuite) TestFallback() {
	s.Equal(models.StateStarted, s.derive(rt.New().Started()))
	s.Equal(models.StateAcknowledged, s.derive(rt.New().Started().Add(models.EventRolloverAcknowledged, rt.Destination)))
	s.Equal(models.StateInProgress, s.derive(rt.New().Started().
		Add(models.EventRolloverAcknowledged, rt.Destination).
		Add(models.EventDocumentsRequested, rt.Source)))
	s.Equal(models.StateStarted, s.derive(rt.New().Started().Add(models.EventRolloverNoteAdded, rt.Source)))
	s.Equal(models.StateStarted, s.engine.Compute(rt.Transfer, nil).CurrentState)
}

// =============================================================================
// Supersession
// =============================================================================

func (s *EngineSuite) TestSupersededEventsAreIgnored() {
	b := rt.New().Started().Approved().
		Add(models.EventSenderAgreed, rt.Source).
		Add(models.EventReceiverAgreed, rt.Destination).
		Add(models.EventFinancialsProvided, rt.Source)
	s.Equal(models.StateReadyToRecord, s.derive(b))

	events := b.Events()
	premature := []id.EventID{events[5].ID, events[6].ID, events[7].ID}
	b.AddWith(models.EventEventsSuperseded, "", models.Payload{SupersededEventIDs: premature})

	s.Equal(models.StateAwaitingSender, s.derive(b))
	facts := Analyze(b.Events())
	s.Equal(contract.StateNone, ImpliedContractState(&facts))
	s.False(HasSuccess(b.Events(), models.ActionAgreeSend))
	s.Len(Effective(b.Events()), len(b.Events())-3)
}

// =============================================================================
// Determinism
// =============================================================================

func (s *EngineSuite) TestDeterminism() {
	b := rt.New().Started().Approved().
		Add(models.EventSenderAgreed, rt.Source).
		Add(models.EventReceiverAgreed, rt.Destination).
		Add(models.EventDocumentsRejected, rt.Destination).
		Add(models.EventFinancialsProvided, rt.Source)
	events := b.Events()

	first := s.engine.Compute(rt.Transfer, events)
	for range 20 {
		s.Equal(first, s.engine.Compute(rt.Transfer, events))
	}

	s.Run("arrival order does not matter once ordered", func() {
		r := rand.New(rand.NewSource(7))
		for range 20 {
			shuffled := append([]models.Event{}, events...)
			r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			models.SortEvents(shuffled)
			s.Equal(first, s.engine.Compute(rt.Transfer, shuffled))
		}
	})

	s.Run("timestamp ties fall back to sequence", func() {
		tied := append([]models.Event{}, events...)
		for i := range tied {
			tied[i].Timestamp = rt.Epoch
		}
		models.SortEvents(tied)
		s.Equal(events[len(events)-1].ID, tied[len(tied)-1].ID)
	})
}

// =============================================================================
// Implied Contract State
// =============================================================================

func (s *EngineSuite) TestImpliedContractState() {
	cases := []struct {
		name string
		b    *rt.Builder
		want contract.State
	}{
		{"nothing", rt.New().Started(), contract.StateNone},
		{"receiver", rt.New().Add(models.EventReceiverAgreed, rt.Destination), contract.StateReceiverAgreed},
		{"sender", rt.New().Add(models.EventSenderAgreed, rt.Source), contract.StateSenderAgreed},
		{"both", rt.New().Add(models.EventSenderAgreed, rt.Source).Add(models.EventReceiverAgreed, rt.Destination), contract.StateBothAgreed},
		{"financials", rt.New().Add(models.EventFinancialsProvided, rt.Source), contract.StateFinancialsProvided},
		{"executed", rt.New().Add(models.EventTransferExecuted, rt.Source), contract.StateExecuted},
		{"minted", rt.New().Add(models.EventTransferExecuted, "").Add(models.EventTokensMinted, ""), contract.StateMinted},
		{"burned", rt.New().Add(models.EventTokensBurned, ""), contract.StateBurned},
		{"completed", rt.New().Add(models.EventTransferExecuted, "").Add(models.EventRolloverCompleted, ""), contract.StateCompleted},
		{"completed without execution", rt.New().Add(models.EventSenderAgreed, rt.Source).Add(models.EventRolloverCompleted, ""), contract.StateSenderAgreed},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			facts := Analyze(tc.b.Events())
			s.Equal(tc.want, ImpliedContractState(&facts))
		})
	}
}

// =============================================================================
// Pending Transactions
// =============================================================================

func (s *EngineSuite) TestPendingActions() {
	b := rt.New().Started().Approved().
		AddWith(models.EventTransactionSubmitted, rt.Source, models.Payload{Action: models.ActionAgreeSend, TxHash: "0x1"})
	facts := Analyze(b.Events())
	s.Contains(facts.PendingActions, models.ActionAgreeSend)

	b.AddWith(models.EventTransactionConfirmed, "", models.Payload{TxHash: "0x1"})
	facts = Analyze(b.Events())
	s.NotContains(facts.PendingActions, models.ActionAgreeSend)

	b.AddWith(models.EventTransactionSubmitted, rt.Destination, models.Payload{Action: models.ActionAgreeReceive, TxHash: "0x2"}).
		Add(models.EventReceiverAgreed, rt.Destination)
	facts = Analyze(b.Events())
	s.Empty(facts.PendingActions)
}

func (s *EngineSuite) TestComputeRecordsLastEvent() {
	b := rt.New().Started().Add(models.EventRolloverAcknowledged, rt.Destination)
	cs := s.engine.Compute(rt.Transfer, b.Events())
	s.Equal(b.Last().ID, cs.LastEventProcessed)
	s.Equal(s.now, cs.DerivedAt)
	s.Equal(rt.Transfer, cs.TransferID)
}
