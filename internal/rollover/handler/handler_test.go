package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"trustrails/internal/platform/logger"
	"trustrails/internal/platform/middleware"
	"trustrails/internal/rollover/handler"
	"trustrails/internal/rollover/handler/mocks"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation"
	"trustrails/internal/rollover/reconciliation/ledger"
	rt "trustrails/internal/rollover/rollovertest"
	"trustrails/internal/rollover/service"
	id "trustrails/pkg/domain"
	dErrors "trustrails/pkg/domain-errors"
	"trustrails/pkg/testutil"
)

const (
	validToken = "token-src"
	txHash     = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*middleware.Claims, error) {
	if token != validToken {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return &middleware.Claims{CustodianID: rt.Source, ActorID: "alice@src"}, nil
}

// =============================================================================
// Transfer Handler Test Suite
// =============================================================================
// Justification for unit tests: the handlers own the caller identity (taken
// from the token, never the body) and the mapping from classified errors to
// status codes and the failure envelope.

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	r := chi.NewRouter()
	handler.New(s.service, staticValidator{}, logger.Discard()).Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+validToken)
	return testutil.DoRequest(s.router, req)
}

func path(suffix string) string {
	return "/transfers/" + string(rt.Transfer) + suffix
}

func (s *HandlerSuite) TestRejectsMissingToken() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path("/state")))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestRejectsInvalidToken() {
	req := testutil.NewRequest(s.T(), http.MethodGet, path("/state"))
	req.Header.Set("Authorization", "Bearer forged")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestInvokeUsesTokenIdentity() {
	s.service.EXPECT().Invoke(gomock.Any(), service.ActionRequest{
		TransferID:    rt.Transfer,
		Action:        models.ActionAgreeSend,
		CustodianID:   rt.Source,
		ActorID:       "alice@src",
		Params:        service.Params{Amount: "100.00"},
		CorrelationID: "req-1",
	}).Return(&service.ActionResult{
		Success: true,
		Status:  reconciliation.StatusExecuted,
		TxHash:  txHash,
	}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, path("/actions"), map[string]any{
		"action": "agree_send",
		"params": map[string]any{"amount": "100.00"},
	})
	req.Header.Set(middleware.HeaderRequestID, "req-1")
	rr := s.do(req)

	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("req-1", rr.Header().Get(middleware.HeaderRequestID))
	result := testutil.UnmarshalResponse[service.ActionResult](s.T(), rr)
	s.True(result.Success)
	s.Equal(reconciliation.StatusExecuted, result.Status)
	s.Equal(txHash, result.TxHash)
}

func (s *HandlerSuite) TestInvokeRejectsBadInput() {
	cases := map[string]struct {
		body string
		code string
	}{
		"unknown action": {`{"action":"teleport"}`, string(dErrors.CodeInvalidInput)},
		"missing action": {`{}`, string(dErrors.CodeInvalidInput)},
		"unknown field":  {`{"action":"agree_send","custodianId":"someone-else"}`, string(dErrors.CodeBadRequest)},
		"not json":       {`agree_send`, string(dErrors.CodeBadRequest)},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			rr := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, path("/actions"), tc.body))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, tc.code)
		})
	}
}

func (s *HandlerSuite) TestStartTakesSourceFromToken() {
	s.service.EXPECT().Start(gomock.Any(), service.StartRequest{
		TransferID:             rt.Transfer,
		SourceCustodianID:      rt.Source,
		DestinationCustodianID: rt.Destination,
		ActorID:                "alice@src",
		Amount:                 "2500.00",
		CorrelationID:          "req-start",
	}).Return(&service.StartResult{
		TransferID: rt.Transfer,
		View:       models.CustodianView{TransferID: rt.Transfer, CurrentState: models.StateStarted},
	}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/transfers", map[string]any{
		"transferId":             string(rt.Transfer),
		"destinationCustodianId": string(rt.Destination),
		"amount":                 "2500.00",
	})
	req.Header.Set(middleware.HeaderRequestID, "req-start")
	rr := s.do(req)

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	result := testutil.UnmarshalResponse[service.StartResult](s.T(), rr)
	s.Equal(rt.Transfer, result.TransferID)
	s.Equal(models.StateStarted, result.View.CurrentState)
}

func (s *HandlerSuite) TestStartRejectsBadInput() {
	cases := map[string]string{
		"source in body":      `{"sourceCustodianId":"someone-else"}`,
		"malformed transfer":  `{"transferId":"has spaces"}`,
		"malformed custodian": `{"destinationCustodianId":"a/b"}`,
	}
	for name, body := range cases {
		s.Run(name, func() {
			rr := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/transfers", body))
			testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		})
	}
}

func (s *HandlerSuite) TestStartConflict() {
	s.service.EXPECT().Start(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "transfer transfer-1 already exists"))

	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/transfers", map[string]any{
		"transferId": string(rt.Transfer),
	}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
}

func (s *HandlerSuite) TestClassifiedErrorsMapToStatus() {
	cases := map[string]struct {
		err       error
		status    int
		class     string
		retryable bool
	}{
		"transient": {
			err:       &reconciliation.ClassifiedError{Class: reconciliation.ClassTransient, Err: dErrors.New(dErrors.CodeUnavailable, "oracle unreachable")},
			status:    http.StatusServiceUnavailable,
			class:     "transient",
			retryable: true,
		},
		"precondition": {
			err:    &reconciliation.ClassifiedError{Class: reconciliation.ClassPreconditionMismatch, Err: dErrors.New(dErrors.CodePrecondition, "contract not ready")},
			status: http.StatusConflict,
			class:  "precondition_mismatch",
		},
		"insufficient": {
			err:    &reconciliation.ClassifiedError{Class: reconciliation.ClassResourceInsufficient, Err: dErrors.New(dErrors.CodeInsufficientFunds, "escrow underfunded")},
			status: http.StatusPaymentRequired,
			class:  "resource_insufficient",
		},
		"forbidden": {
			err:    dErrors.New(dErrors.CodeForbidden, "not a party"),
			status: http.StatusForbidden,
		},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			s.service.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, tc.err)

			rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path("/actions"), map[string]any{"action": "agree_send"}))

			testutil.AssertStatus(s.T(), rr, tc.status)
			body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
			s.Equal(false, (*body)["success"])
			if tc.class != "" {
				s.Equal(tc.class, (*body)["errorClass"])
			}
			if tc.retryable {
				s.Equal(true, (*body)["retryable"])
			}
		})
	}
}

func (s *HandlerSuite) TestInternalErrorsHideDetail() {
	s.service.EXPECT().State(gomock.Any(), rt.Transfer).Return(nil, errors.New("pq: connection refused"))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, path("/state")))

	testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
	s.NotContains(rr.Body.String(), "pq:")
}

func (s *HandlerSuite) TestState() {
	s.service.EXPECT().State(gomock.Any(), rt.Transfer).Return(&models.CanonicalState{
		TransferID:   rt.Transfer,
		CurrentState: models.StateAwaitingSender,
	}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, path("/state")))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "currentState", string(models.StateAwaitingSender))
}

func (s *HandlerSuite) TestViewIsForCaller() {
	s.service.EXPECT().View(gomock.Any(), rt.Transfer, rt.Source).Return(&models.CustodianView{
		TransferID:  rt.Transfer,
		CustodianID: rt.Source,
	}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, path("/view")))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "custodianId", string(rt.Source))
}

func (s *HandlerSuite) TestEmptyListsEncodeAsArrays() {
	s.service.EXPECT().Events(gomock.Any(), rt.Transfer).Return(nil, nil)
	s.service.EXPECT().Submissions(gomock.Any(), rt.Transfer).Return(nil, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, path("/events")))
	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`{"events":[]}`, rr.Body.String())

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, path("/submissions")))
	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`{"submissions":[]}`, rr.Body.String())
}

func (s *HandlerSuite) TestSubmissions() {
	s.service.EXPECT().Submissions(gomock.Any(), rt.Transfer).Return([]ledger.Submission{
		{TransferID: rt.Transfer, Action: models.ActionAgreeSend, Attempt: 1, Result: ledger.ResultLanded},
	}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, path("/submissions")))

	testutil.AssertStatusOK(s.T(), rr)
	s.Contains(rr.Body.String(), `"action":"agree_send"`)
}

func (s *HandlerSuite) TestIngest() {
	ce := service.ChainEvent{
		TransferID:  rt.Transfer,
		Action:      models.ActionAgreeSend,
		CustodianID: rt.Source,
		TxHash:      txHash,
		BlockNumber: 42,
	}
	body := map[string]any{"action": "agree_send", "custodianId": string(rt.Source), "txHash": txHash, "blockNumber": 42}

	s.service.EXPECT().Ingest(gomock.Any(), ce).Return(true, nil)
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path("/chain-events"), body))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	s.JSONEq(`{"recorded":true}`, rr.Body.String())

	s.service.EXPECT().Ingest(gomock.Any(), ce).Return(false, nil)
	rr = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path("/chain-events"), body))
	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`{"recorded":false}`, rr.Body.String())
}

func (s *HandlerSuite) TestIngestValidatesTransaction() {
	for name, body := range map[string]map[string]any{
		"off-chain action": {"action": "acknowledge", "txHash": txHash},
		"short hash":       {"action": "agree_send", "txHash": "0xdead"},
		"not hex":          {"action": "agree_send", "txHash": strings.Repeat("z", 66)},
	} {
		s.Run(name, func() {
			rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path("/chain-events"), body))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
		})
	}
}

func (s *HandlerSuite) TestReconcile() {
	s.service.EXPECT().Reconcile(gomock.Any(), rt.Transfer).Return(reconciliation.Outcome{
		Status:   reconciliation.StatusRecovered,
		Scenario: reconciliation.ScenarioChainBehindUI,
	}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, path("/reconcile")))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "scenario", string(reconciliation.ScenarioChainBehindUI))
}

func (s *HandlerSuite) TestPanicsBecome500() {
	s.service.EXPECT().Events(gomock.Any(), rt.Transfer).DoAndReturn(
		func(context.Context, id.TransferID) ([]models.Event, error) { panic("boom") },
	)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, path("/events")))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
}
