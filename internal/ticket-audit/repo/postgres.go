package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/mts-gateway/pkg/contracts/events"
)

// ErrUnknownTicket indica resultado de um ticket ainda não registrado
// (o ticket_placed pode estar atrasado na outra partição)
var ErrUnknownTicket = errors.New("ticket not recorded yet")

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id     TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL,
	signature     TEXT,
	currency      TEXT NOT NULL,
	total_stake   NUMERIC(20,4),
	leg_count     INT NOT NULL,
	code          INT,
	message       TEXT,
	placed_at     TIMESTAMPTZ NOT NULL,
	final_status  TEXT,
	expected_legs INT,
	accepted_legs INT,
	rejected_legs INT,
	request_id    TEXT,
	resolved_at   TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS ticket_sub_bets (
	ticket_id TEXT NOT NULL REFERENCES tickets(ticket_id),
	idx       INT NOT NULL,
	bet_id    TEXT NOT NULL,
	status    TEXT NOT NULL,
	PRIMARY KEY (ticket_id, idx)
);
CREATE TABLE IF NOT EXISTS ticket_legs (
	ticket_id TEXT NOT NULL REFERENCES tickets(ticket_id),
	leg_index INT NOT NULL,
	status    TEXT NOT NULL,
	code      INT,
	message   TEXT,
	PRIMARY KEY (ticket_id, leg_index)
);`

// Postgres grava o histórico de tickets consumido do Kafka
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// EnsureSchema cria as tabelas se ainda não existirem
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Ping valida a conexão (healthcheck)
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// RecordPlaced registra o ticket e seus sub-bets. Reentrega não altera nada.
func (p *Postgres) RecordPlaced(ctx context.Context, ev events.TicketPlaced) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (ticket_id, kind, status, signature, currency, total_stake, leg_count, code, message, placed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (ticket_id) DO NOTHING`,
		ev.TicketID, ev.Kind, ev.Status, nullString(ev.Signature), ev.Currency,
		nullString(ev.Stake), ev.LegCount, ev.Code, nullString(ev.Message),
		time.UnixMilli(ev.TsUnixMs).UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ticket %s: %w", ev.TicketID, err)
	}

	if len(ev.SubBets) > 0 {
		idx := make([]int64, len(ev.SubBets))
		betIDs := make([]string, len(ev.SubBets))
		statuses := make([]string, len(ev.SubBets))
		for i, sb := range ev.SubBets {
			idx[i] = int64(sb.Index)
			betIDs[i] = sb.BetID
			statuses[i] = sb.Status
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ticket_sub_bets (ticket_id, idx, bet_id, status)
			SELECT $1, u.idx, u.bet_id, u.status
			FROM unnest($2::int[], $3::text[], $4::text[]) AS u(idx, bet_id, status)
			ON CONFLICT (ticket_id, idx) DO NOTHING`,
			ev.TicketID, pq.Int64Array(idx), pq.StringArray(betIDs), pq.StringArray(statuses),
		)
		if err != nil {
			return fmt.Errorf("insert sub-bets %s: %w", ev.TicketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ticket %s: %w", ev.TicketID, err)
	}
	return nil
}

// RecordResolved grava o status final e o resultado de cada perna
func (p *Postgres) RecordResolved(ctx context.Context, ev events.TicketResolved) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE tickets
		SET final_status=$2, expected_legs=$3, accepted_legs=$4, rejected_legs=$5, request_id=$6, resolved_at=$7
		WHERE ticket_id=$1`,
		ev.TicketID, ev.Status, ev.Expected, ev.Accepted, ev.Rejected, ev.RequestID, ev.Ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", ev.TicketID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("resolve %s: %w", ev.TicketID, ErrUnknownTicket)
	}

	if len(ev.Legs) > 0 {
		idx := make([]int64, len(ev.Legs))
		statuses := make([]string, len(ev.Legs))
		codes := make([]int64, len(ev.Legs))
		msgs := make([]string, len(ev.Legs))
		for i, l := range ev.Legs {
			idx[i] = int64(l.LegIndex)
			statuses[i] = l.Status
			codes[i] = int64(l.Code)
			msgs[i] = l.Message
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ticket_legs (ticket_id, leg_index, status, code, message)
			SELECT $1, u.leg_index, u.status, u.code, u.message
			FROM unnest($2::int[], $3::text[], $4::int[], $5::text[]) AS u(leg_index, status, code, message)
			ON CONFLICT (ticket_id, leg_index) DO UPDATE SET
			  status  = EXCLUDED.status,
			  code    = EXCLUDED.code,
			  message = EXCLUDED.message`,
			ev.TicketID, pq.Int64Array(idx), pq.StringArray(statuses), pq.Int64Array(codes), pq.StringArray(msgs),
		)
		if err != nil {
			return fmt.Errorf("upsert legs %s: %w", ev.TicketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolution %s: %w", ev.TicketID, err)
	}
	return nil
}

// FinalStatus retorna o status final gravado (vazio enquanto pendente)
func (p *Postgres) FinalStatus(ctx context.Context, ticketID string) (string, error) {
	var s sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT final_status FROM tickets WHERE ticket_id=$1`, ticketID).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnknownTicket
	}
	return s.String, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
