package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/mts-gateway/pkg/contracts/events"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestEnsureSchema(t *testing.T) {
	p, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS tickets")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPlacedWritesTicketAndSubBets(t *testing.T) {
	p, mock := newMock(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := events.TicketPlaced{
		TicketID:  "T-1",
		Kind:      "multi",
		Status:    "accepted",
		Signature: "sig-1",
		Currency:  "EUR",
		Stake:     "10",
		LegCount:  3,
		SubBets: []events.SubBetState{
			{Index: 0, BetID: "T-1-0", Status: "accepted"},
			{Index: 1, BetID: "T-1-1", Status: "rejected"},
		},
		TsUnixMs: ts.UnixMilli(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets")).
		WithArgs("T-1", "multi", "accepted", "sig-1", "EUR", "10", 3, 0, nil, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ticket_sub_bets")).
		WithArgs("T-1", "{0,1}", `{"T-1-0","T-1-1"}`, `{"accepted","rejected"}`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, p.RecordPlaced(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPlacedRollsBackOnFailure(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets")).WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	err := p.RecordPlaced(context.Background(), events.TicketPlaced{TicketID: "T-2", Kind: "single"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert ticket T-2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordResolvedUpdatesTicketAndLegs(t *testing.T) {
	p, mock := newMock(t)
	ev := events.TicketResolved{
		RequestID: "r1",
		TicketID:  "T-1",
		Status:    "partially_accepted",
		Expected:  2,
		Accepted:  1,
		Rejected:  1,
		Legs: []events.LegState{
			{LegIndex: 0, Status: "accepted"},
			{LegIndex: 1, Status: "rejected", Code: 201, Message: "lost"},
		},
		Ts: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets")).
		WithArgs("T-1", "partially_accepted", 2, 1, 1, "r1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ticket_legs")).
		WithArgs("T-1", "{0,1}", `{"accepted","rejected"}`, "{0,201}", `{"","lost"}`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, p.RecordResolved(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordResolvedUnknownTicket(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := p.RecordResolved(context.Background(), events.TicketResolved{TicketID: "ghost", Ts: time.Now()})
	assert.ErrorIs(t, err, ErrUnknownTicket)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalStatus(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT final_status FROM tickets")).
		WithArgs("T-1").
		WillReturnRows(sqlmock.NewRows([]string{"final_status"}).AddRow("accepted"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT final_status FROM tickets")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"final_status"}))

	s, err := p.FinalStatus(context.Background(), "T-1")
	require.NoError(t, err)
	assert.Equal(t, "accepted", s)

	_, err = p.FinalStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownTicket)
	require.NoError(t, mock.ExpectationsWereMet())
}
