// Package reconciliation keeps the event log and the escrow contract
// convergent. Every on-chain action goes through Execute, which compares the
// log's implied contract state with a fresh snapshot, remediates divergence in
// either direction, and only then submits. Passes are serialized per transfer
// and are safe to re-enter: events carry deterministic ids and every
// submission is preceded by a state check.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trustrails/internal/platform/config"
	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/cooldown"
	"trustrails/internal/rollover/custodian"
	"trustrails/internal/rollover/eventlog"
	"trustrails/internal/rollover/lock"
	"trustrails/internal/rollover/metrics"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation/ledger"
	"trustrails/internal/rollover/state"
	id "trustrails/pkg/domain"
	dErrors "trustrails/pkg/domain-errors"
	"trustrails/pkg/platform/circuit"
)

// SystemActor is the actor id on events written by reconciliation.
const SystemActor id.ActorID = "system:reconciliation"

const tracerName = "trustrails/reconciliation"

// Config is fixed at construction; nothing is read from globals per call.
type Config struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	SubmitTimeout    time.Duration
	RecoveryCooldown time.Duration
	RecentTxWindow   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       8 * time.Second,
		SubmitTimeout:    30 * time.Second,
		RecoveryCooldown: 10 * time.Second,
		RecentTxWindow:   15 * time.Minute,
	}
}

// ConfigFrom maps the service configuration block.
func ConfigFrom(c config.Reconciliation) Config {
	return Config{
		MaxAttempts:      c.MaxAttempts,
		InitialBackoff:   c.InitialBackoff,
		MaxBackoff:       c.MaxBackoff,
		SubmitTimeout:    c.SubmitTimeout,
		RecoveryCooldown: c.RecoveryCooldown,
		RecentTxWindow:   c.RecentTxWindow,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(d.MaxBackoff, c.InitialBackoff)
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	if c.RecoveryCooldown <= 0 {
		c.RecoveryCooldown = d.RecoveryCooldown
	}
	if c.RecentTxWindow <= 0 {
		c.RecentTxWindow = d.RecentTxWindow
	}
	return c
}

// Status is the success shape of an action request.
type Status string

const (
	// StatusExecuted means the requested action was submitted and landed.
	StatusExecuted Status = "executed"

	// StatusAlreadyInState means the log already records the action.
	StatusAlreadyInState Status = "already_in_state"

	// StatusRecovered means the action's effect was reached by remediation
	// rather than a fresh submission of the requested action.
	StatusRecovered Status = "recovered"
)

// Outcome is the non-error result of Execute or Reconcile.
type Outcome struct {
	Status   Status
	TxHash   string
	Scenario ScenarioKind

	// Appended lists the events this pass inserted, in append order.
	Appended []models.Event
}

// ActionParams are the caller-supplied inputs for actions that need them.
type ActionParams struct {
	Amount     string
	AccountRef string
}

// Request asks for one on-chain action on behalf of a custodian.
type Request struct {
	TransferID    id.TransferID
	Action        models.ActionType
	CustodianID   id.CustodianID
	ActorID       id.ActorID
	Params        ActionParams
	CorrelationID string
}

// Service is the reconciliation orchestrator.
type Service struct {
	events  *eventlog.Log
	client  contract.Client
	locker  lock.Locker
	gate    cooldown.Gate
	cfg     Config
	ledger  ledger.Store
	alerter Alerter
	breaker *circuit.Breaker
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLedger records every submission attempt.
func WithLedger(l ledger.Store) Option {
	return func(s *Service) { s.ledger = l }
}

func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alerter = a }
}

// WithBreaker guards contract state reads.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = sleep }
}

func New(events *eventlog.Log, client contract.Client, locker lock.Locker, gate cooldown.Gate, cfg Config, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, errors.New("event log is required")
	}
	if client == nil {
		return nil, errors.New("contract client is required")
	}
	if locker == nil {
		return nil, errors.New("locker is required")
	}
	if gate == nil {
		return nil, errors.New("cooldown gate is required")
	}
	s := &Service{
		events:  events,
		client:  client,
		locker:  locker,
		gate:    gate,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		breaker: circuit.New("contract-oracle"),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.alerter == nil {
		s.alerter = NewLogAlerter(s.logger, s.metrics)
	}
	return s, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pass is the working state of one serialized reconciliation pass.
type pass struct {
	transferID    id.TransferID
	correlationID string
	events        []models.Event
	facts         state.Facts
	snap          contract.Snapshot
	appended      []models.Event

	// markers are the in-flight submission events this pass wrote.
	markers map[models.ActionType]id.EventID
}

func newPass(transferID id.TransferID, correlationID string, events []models.Event) (*pass, error) {
	p := &pass{
		transferID:    transferID,
		correlationID: correlationID,
		events:        events,
		facts:         state.Analyze(events),
	}
	if !p.facts.Started {
		return nil, validationError("", dErrors.CodeNotFound, fmt.Sprintf("transfer %s not found", transferID))
	}
	return p, nil
}

// Execute performs req exactly once from the caller's point of view: it
// either lands the action (or finds it already landed) and records it in the
// log, or fails with a ClassifiedError.
func (s *Service) Execute(ctx context.Context, req Request) (outcome Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.Execute", trace.WithAttributes(
		attribute.String("transfer_id", string(req.TransferID)),
		attribute.String("action", string(req.Action)),
	))
	defer func() { s.finish(span, outcome, err) }()

	if err := validateRequest(req); err != nil {
		return Outcome{}, err
	}

	release, err := s.acquire(ctx, req.TransferID, req.Action)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	events, err := s.events.ListForTransfer(ctx, req.TransferID)
	if err != nil {
		return Outcome{}, classified(err, req.Action, "load events")
	}
	p, err := newPass(req.TransferID, req.CorrelationID, events)
	if err != nil {
		return Outcome{}, err
	}

	if prior, ok := state.LatestSuccess(p.events, req.Action); ok {
		s.logger.InfoContext(ctx, "action already recorded",
			"transfer_id", req.TransferID,
			"action", req.Action,
			"event_id", prior.ID,
		)
		return Outcome{Status: StatusAlreadyInState, TxHash: prior.Payload.TxHash, Scenario: ScenarioConsistent}, nil
	}
	if err := checkActor(&p.facts, req); err != nil {
		return Outcome{}, err
	}
	if p.facts.Cancelled || p.facts.Failed {
		return Outcome{}, newClassified(ClassPreconditionMismatch, req.Action,
			fmt.Sprintf("transfer is %s", state.Derive(&p.facts)), nil)
	}
	params, err := s.params(p, req.Action, req.CustodianID, models.Payload{
		Amount:     req.Params.Amount,
		AccountRef: req.Params.AccountRef,
	})
	if err != nil {
		return Outcome{}, err
	}

	if err := s.observe(ctx, p); err != nil {
		return Outcome{}, s.escalate(ctx, p, req.Action, err, false)
	}

	sc := Assess(&p.facts, p.snap)
	if s.metrics != nil {
		s.metrics.IncScenario(string(sc.Kind))
	}
	if sc.Diverged() {
		if err := s.remediate(ctx, p, sc); err != nil {
			return Outcome{}, err
		}
	}

	if contract.Satisfied(req.Action, p.snap.ContractState) {
		if len(p.appended) == 0 {
			return Outcome{Status: StatusAlreadyInState, Scenario: sc.Kind}, nil
		}
		return Outcome{
			Status:   StatusRecovered,
			TxHash:   recordedHash(p.appended, req.Action),
			Scenario: sc.Kind,
			Appended: p.appended,
		}, nil
	}
	if err := s.checkApplicable(p, req.Action); err != nil {
		return Outcome{}, err
	}

	ev, observed, err := s.submitAndRecord(ctx, p, req.Action, params, req.CustodianID, actorOr(req.ActorID), "")
	if err != nil {
		return Outcome{}, err
	}
	status := StatusExecuted
	if observed {
		status = StatusRecovered
	}
	return Outcome{Status: status, TxHash: ev.Payload.TxHash, Scenario: sc.Kind, Appended: p.appended}, nil
}

// Reconcile runs a passive pass: no action is requested, divergence is
// remediated in whichever direction it runs.
func (s *Service) Reconcile(ctx context.Context, transferID id.TransferID) (outcome Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.Reconcile", trace.WithAttributes(
		attribute.String("transfer_id", string(transferID)),
	))
	defer func() { s.finish(span, outcome, err) }()

	if transferID.IsNil() {
		return Outcome{}, validationError("", dErrors.CodeInvalidInput, "transfer ID is required")
	}
	release, err := s.acquire(ctx, transferID, "")
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	var (
		events []models.Event
		snap   contract.Snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.events.ListForTransfer(gctx, transferID)
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = s.readState(gctx, transferID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, classified(err, "", "load transfer")
	}

	p, err := newPass(transferID, "", events)
	if err != nil {
		return Outcome{}, err
	}
	p.snap = snap

	sc := Assess(&p.facts, p.snap)
	if s.metrics != nil {
		s.metrics.IncScenario(string(sc.Kind))
	}
	if !sc.Diverged() {
		if undecidedExecution(p) {
			decision, _ := s.tokenizationDecision(p)
			if err := s.append(ctx, p, decision); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Status: StatusAlreadyInState, Scenario: sc.Kind, Appended: p.appended}, nil
	}
	if err := s.remediate(ctx, p, sc); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusRecovered, Scenario: sc.Kind, Appended: p.appended}, nil
}

func validateRequest(req Request) error {
	switch {
	case req.TransferID.IsNil():
		return validationError(req.Action, dErrors.CodeInvalidInput, "transfer ID is required")
	case req.CustodianID.IsNil():
		return validationError(req.Action, dErrors.CodeInvalidInput, "custodian ID is required")
	case !req.Action.IsOnChain():
		return validationError(req.Action, dErrors.CodeInvalidInput, fmt.Sprintf("%q is not an on-chain action", req.Action))
	}
	return nil
}

func checkActor(facts *state.Facts, req Request) error {
	role := custodian.RoleOf(facts, req.CustodianID)
	switch {
	case role == custodian.RoleNone:
		return validationError(req.Action, dErrors.CodeForbidden, "custodian is not a participant in this transfer")
	case req.Action.SourceOnly() && role != custodian.RoleSource:
		return validationError(req.Action, dErrors.CodeForbidden, fmt.Sprintf("only the source custodian may %s", req.Action))
	case req.Action.DestinationOnly() && role != custodian.RoleDestination:
		return validationError(req.Action, dErrors.CodeForbidden, fmt.Sprintf("only the destination custodian may %s", req.Action))
	}
	return nil
}

func (s *Service) checkApplicable(p *pass, action models.ActionType) error {
	current := p.snap.ContractState
	if !contract.CanApply(action, current) {
		return newClassified(ClassPreconditionMismatch, action,
			fmt.Sprintf("contract state %s does not permit %s", current, action), nil)
	}
	if action == models.ActionMintTokens &&
		!p.snap.TokenizationEligible(p.facts.SourceCustodianID, p.facts.DestinationCustodianID) {
		return newClassified(ClassPreconditionMismatch, action, "custodians are not eligible for tokenized settlement", nil)
	}
	return nil
}

func (s *Service) acquire(ctx context.Context, transferID id.TransferID, action models.ActionType) (func(), error) {
	release, err := s.locker.Acquire(ctx, lock.TransferKey(transferID))
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncLockContention()
		}
		return nil, newClassified(ClassTransient, action, "transfer is busy", err)
	}
	return release, nil
}

// params builds submission parameters. Financial inputs come from src, then
// from the latest financial details on the log.
func (s *Service) params(p *pass, action models.ActionType, custodianID id.CustodianID, src models.Payload) (contract.Params, error) {
	params := contract.Params{
		TransferID:             p.transferID,
		CustodianID:            custodianID,
		SourceCustodianID:      p.facts.SourceCustodianID,
		DestinationCustodianID: p.facts.DestinationCustodianID,
		Amount:                 src.Amount,
		AccountRef:             src.AccountRef,
		FinancialsHash:         src.FinancialsHash,
	}
	if action != models.ActionProvideFinancial || params.FinancialsHash != "" {
		return params, nil
	}
	if params.Amount == "" && params.AccountRef == "" {
		if details, ok := financialDetails(p.events); ok {
			params.Amount = details.Amount
			params.AccountRef = details.AccountRef
		}
	}
	if params.Amount == "" || params.AccountRef == "" {
		return params, validationError(action, dErrors.CodeInvalidInput, "amount and account reference are required")
	}
	params.FinancialsHash = contract.FinancialsHash(p.transferID, params.Amount, params.AccountRef)
	return params, nil
}

func financialDetails(events []models.Event) (models.Payload, bool) {
	var (
		found models.Payload
		ok    bool
	)
	for _, e := range state.Effective(events) {
		if e.Type == models.EventFinancialSubmitted || e.Type == models.EventFinancialAmended {
			found, ok = e.Payload, true
		}
	}
	return found, ok
}

func (s *Service) finish(span trace.Span, outcome Outcome, err error) {
	defer span.End()
	if err != nil {
		class := Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(class))
		if s.metrics != nil {
			s.metrics.IncResult(string(class))
		}
		return
	}
	span.SetAttributes(
		attribute.String("status", string(outcome.Status)),
		attribute.String("scenario", string(outcome.Scenario)),
	)
	if s.metrics != nil {
		s.metrics.IncResult(string(outcome.Status))
	}
}

func classified(err error, action models.ActionType, msg string) *ClassifiedError {
	if ce, ok := AsClassified(err); ok {
		return ce
	}
	return newClassified(Classify(err), action, msg, err)
}

func actorOr(actor id.ActorID) id.ActorID {
	if actor == "" {
		return SystemActor
	}
	return actor
}

func recordedHash(events []models.Event, action models.ActionType) string {
	want := action.SuccessEvent()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == want {
			return events[i].Payload.TxHash
		}
	}
	return ""
}
