//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustrails/internal/rollover/eventlog/store/postgres"
	"trustrails/internal/rollover/models"
	rt "trustrails/internal/rollover/rollovertest"
	id "trustrails/pkg/domain"
	txcontext "trustrails/pkg/platform/tx"
	"trustrails/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *StoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "rollover_events", "outbox"))
}

func (s *StoreSuite) outboxCount() int {
	var n int
	s.Require().NoError(s.postgres.DB.QueryRow(`SELECT count(*) FROM outbox`).Scan(&n))
	return n
}

func (s *StoreSuite) TestAppendDeduplicatesAndWritesOutbox() {
	ctx := context.Background()
	events := rt.New().Started().Approved().Events()

	inserted, err := s.store.Append(ctx, events...)
	s.Require().NoError(err)
	s.Len(inserted, len(events))
	for _, e := range inserted {
		s.Positive(e.Sequence)
	}

	inserted, err = s.store.Append(ctx, events...)
	s.Require().NoError(err)
	s.Empty(inserted)
	s.Equal(len(events), s.outboxCount())
}

func (s *StoreSuite) TestListRoundTripsPayloadInFoldOrder() {
	ctx := context.Background()
	started := rt.New().Started().Last()
	note := models.Event{
		ID:            "note-1",
		Type:          models.EventRolloverNoteAdded,
		TransferID:    rt.Transfer,
		Timestamp:     started.Timestamp.Add(-time.Second),
		CorrelationID: "corr-1",
		Payload:       models.Payload{Reason: "early note"},
	}
	_, err := s.store.Append(ctx, started, note)
	s.Require().NoError(err)

	events, err := s.store.ListForTransfer(ctx, rt.Transfer)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(id.EventID("note-1"), events[0].ID)
	s.Equal("corr-1", events[0].CorrelationID)
	s.Equal("early note", events[0].Payload.Reason)
	s.Equal(rt.Destination, events[1].Payload.DestinationCustodianID)
	s.Equal(time.UTC, events[1].Timestamp.Location())
}

func (s *StoreSuite) TestAppendJoinsCallerTransaction() {
	ctx := context.Background()
	err := txcontext.Run(ctx, s.postgres.DB, func(ctx context.Context) error {
		_, err := s.store.Append(ctx, rt.New().Started().Events()...)
		s.Require().NoError(err)
		return context.Canceled
	})
	s.Require().Error(err)

	events, err := s.store.ListForTransfer(ctx, rt.Transfer)
	s.Require().NoError(err)
	s.Empty(events)
	s.Zero(s.outboxCount())
}

func (s *StoreSuite) TestTransfers() {
	ctx := context.Background()
	_, err := s.store.Append(ctx, rt.New().Started().Events()...)
	s.Require().NoError(err)
	_, err = s.store.Append(ctx, rt.New().ForTransfer("transfer-2").Started().Events()...)
	s.Require().NoError(err)

	transfers, err := s.store.Transfers(ctx)
	s.Require().NoError(err)
	s.Equal([]id.TransferID{rt.Transfer, "transfer-2"}, transfers)
}
