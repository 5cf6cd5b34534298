package producer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/correlation"
	"github.com/radieske/mts-gateway/internal/gateway"
	kafkax "github.com/radieske/mts-gateway/internal/shared/kafka"
	"github.com/radieske/mts-gateway/internal/ticket"
	"github.com/radieske/mts-gateway/pkg/contracts/events"
)

type MessageWriter = kafkax.MessageWriter

// KafkaPublisher publica os eventos de ticket (ticket_placed e ticket_resolved).
// Implementa gateway.Recorder.
type KafkaPublisher struct {
	placed   MessageWriter
	resolved MessageWriter
	log      *zap.Logger
}

func NewKafkaPublisher(placed, resolved MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{placed: placed, resolved: resolved, log: log}
}

func (p *KafkaPublisher) Placed(ctx context.Context, t *ticket.Ticket, env gateway.Envelope) error {
	e := events.TicketPlaced{
		TicketID:  t.ID(),
		Kind:      string(t.Kind()),
		Status:    env.Status,
		Signature: env.Signature,
		Currency:  t.Currency(),
		Stake:     t.TotalStake().String(),
		LegCount:  t.LegCount(),
		Code:      env.Code,
		Message:   env.Message,
		TsUnixMs:  time.Now().UnixMilli(),
	}
	for _, sb := range env.SubBets {
		e.SubBets = append(e.SubBets, events.SubBetState{Index: sb.Index, BetID: sb.BetID, Status: sb.Status})
	}
	return p.write(ctx, p.placed, t.ID(), e)
}

// Finished publica um ticket_resolved por ticket da requisição
func (p *KafkaPublisher) Finished(ctx context.Context, o correlation.Outcome) error {
	msgs := make([]kafka.Message, 0, len(o.TicketIDs))
	for _, id := range o.TicketIDs {
		e := events.TicketResolved{
			RequestID: o.RequestID,
			TicketID:  id,
			Status:    o.TicketStatus(id),
			Ts:        o.FinishedAt,
		}
		for _, l := range o.Legs {
			if l.TicketID != id {
				continue
			}
			e.Legs = append(e.Legs, events.LegState{LegIndex: l.LegIndex, Status: string(l.Status), Code: l.Code, Message: l.Message})
			if l.Status == correlation.LegAccepted {
				e.Accepted++
			} else {
				e.Rejected++
			}
		}
		e.Expected = o.LegCounts[id]
		m, err := kafkax.JSONMessage(id, e)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	if err := p.resolved.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("failed to publish ticket resolved", zap.String("request_id", o.RequestID), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) write(ctx context.Context, w MessageWriter, key string, v any) error {
	if err := kafkax.WriteJSON(ctx, w, key, v); err != nil {
		p.log.Error("failed to publish ticket event", zap.String("ticket_id", key), zap.Error(err))
		return err
	}
	p.log.Debug("published ticket event", zap.String("ticket_id", key))
	return nil
}
