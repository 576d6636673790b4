package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"trustrails/internal/platform/config"
	"trustrails/internal/platform/logger"
	"trustrails/internal/rollover/app"
	"trustrails/internal/rollover/contract/simulated"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation"
	rt "trustrails/internal/rollover/rollovertest"
	"trustrails/internal/rollover/service"
	id "trustrails/pkg/domain"
	"trustrails/pkg/requestcontext"
)

// =============================================================================
// Wiring Test Suite
// =============================================================================
// Justification for unit tests: with no backends configured the graph must
// fall back to in-process stores and still route on-chain actions through the
// reconciler and its ledger.

type AppSuite struct {
	suite.Suite
	ctx   context.Context
	chain *simulated.Contract
	app   *app.App
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func localConfig() config.Config {
	return config.Config{
		Server:         config.Server{Addr: ":0", JWTSigningKey: "k", JWTIssuer: "trustrails"},
		Redis:          config.RedisConfig{StateTTL: time.Minute},
		Kafka:          config.Kafka{Topic: "rollover.events"},
		Contract:       config.Contract{Version: app.ContractSimulated},
		Reconciliation: config.DefaultReconciliation(),
	}
}

func (s *AppSuite) SetupTest() {
	now := rt.Epoch.Add(time.Hour)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.chain = simulated.New(simulated.WithClock(func() time.Time { return now }))

	var err error
	s.app, err = app.Build(s.ctx, localConfig(), logger.Discard(), prometheus.NewRegistry(), app.WithContractClient(s.chain))
	s.Require().NoError(err)
}

func (s *AppSuite) TearDownTest() {
	s.app.Close()
}

func (s *AppSuite) seed(b *rt.Builder) {
	_, err := s.app.Log.AppendAll(s.ctx, b.Events()...)
	s.Require().NoError(err)
}

func (s *AppSuite) invoke(action models.ActionType, custodianID id.CustodianID) *service.ActionResult {
	res, err := s.app.Service.Invoke(s.ctx, service.ActionRequest{
		TransferID:  rt.Transfer,
		Action:      action,
		CustodianID: custodianID,
		ActorID:     id.ActorID("user@" + string(custodianID)),
	})
	s.Require().NoError(err, action)
	return res
}

func (s *AppSuite) TestLocalGraphRunsAnOnChainAction() {
	s.seed(rt.New().Started().Approved())

	res := s.invoke(models.ActionAgreeSend, rt.Source)
	s.Equal(reconciliation.StatusExecuted, res.Status)
	s.NotEmpty(res.TxHash)
	s.Equal(models.StateAwaitingReceiver, res.View.CurrentState)
	s.Equal(1, s.chain.Calls(models.ActionAgreeSend))

	subs, err := s.app.Service.Submissions(s.ctx, rt.Transfer)
	s.Require().NoError(err)
	s.Len(subs, 1)
}

func (s *AppSuite) TestTransfersListsSeededTransfers() {
	s.seed(rt.New().Started())
	s.seed(rt.New().ForTransfer("transfer-2").Started())

	transfers, err := s.app.Transfers(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]id.TransferID{rt.Transfer, "transfer-2"}, transfers)
}

func (s *AppSuite) TestNoBackgroundWorkOrChecksWithoutBackends() {
	s.Empty(s.app.Health(s.ctx))
	s.NoError(s.app.RunBackground(s.ctx))
}

func (s *AppSuite) TestRegistryBuildsTheSimulatedAdapter() {
	cfg := localConfig()
	a, err := app.Build(s.ctx, cfg, logger.Discard(), prometheus.NewRegistry())
	s.Require().NoError(err)
	a.Close()

	cfg.Contract.Version = "v9"
	_, err = app.Build(s.ctx, cfg, logger.Discard(), prometheus.NewRegistry())
	s.Error(err)
}
