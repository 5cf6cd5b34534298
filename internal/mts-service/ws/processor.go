package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/correlation"
	"github.com/radieske/mts-gateway/internal/gateway"
	"github.com/radieske/mts-gateway/internal/mts-service/dto"
	"github.com/radieske/mts-gateway/internal/ticket"
)

// Gateway é o que o processador precisa da camada de submissão
type Gateway interface {
	Submit(ctx context.Context, req gateway.Request) ([]gateway.Envelope, error)
	Status(ctx context.Context, ticketID string) (string, error)
}

// Processor trata as mensagens de um cliente: place_bet, query_bet_status e ping
type Processor struct {
	ctx     context.Context
	log     *zap.Logger
	builder *ticket.Builder
	gw      Gateway
}

func NewProcessor(ctx context.Context, log *zap.Logger, b *ticket.Builder, gw Gateway) *Processor {
	return &Processor{ctx: ctx, log: log, builder: b, gw: gw}
}

// Handle roteia uma mensagem recebida. place_bet roda em goroutine própria
// porque espera o reply síncrono do downstream.
func (p *Processor) Handle(c *Client, raw []byte) {
	var msg ClientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.Send(BetError{Base: base(TypeBetError), Error: "invalid message", Code: http.StatusBadRequest, Details: err.Error()})
		return
	}

	switch msg.Type {
	case TypePing:
		c.Send(base(TypePong))
	case TypePlaceBet:
		go p.placeBet(c, msg)
	case TypeQueryBetStatus:
		go p.queryStatus(c, msg)
	default:
		c.Send(BetError{Base: base(TypeBetError), RequestID: msg.RequestID, Error: "unknown message type", Code: http.StatusBadRequest, Details: msg.Type})
	}
}

func (p *Processor) placeBet(c *Client, msg ClientMsg) {
	requestID := msg.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	tickets, err := p.buildTickets(msg)
	if err != nil {
		p.sendError(c, requestID, err)
		return
	}

	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID()
	}
	received := BetReceived{Base: base(TypeBetReceived), RequestID: requestID}
	if len(ids) == 1 {
		received.TicketID = ids[0]
	} else {
		received.TicketIDs = ids
	}
	c.Send(received)

	p.log.Info("ws bet received",
		zap.String("request_id", requestID),
		zap.String("user_id", c.UserID()),
		zap.String("bet_type", msg.BetType),
		zap.Strings("ticket_ids", ids),
	)

	_, err = p.gw.Submit(p.ctx, gateway.Request{
		RequestID: requestID,
		Tickets:   tickets,
		Sink:      &clientSink{c: c, requestID: requestID, ticketIDs: ids},
	})
	if err != nil {
		p.sendError(c, requestID, err)
	}
}

// buildTickets decodifica o payload conforme o betType. multi gera um ticket por sub-bet.
func (p *Processor) buildTickets(msg ClientMsg) ([]*ticket.Ticket, error) {
	bt := strings.ToLower(strings.TrimSpace(msg.BetType))
	if bt == "multi" {
		var req dto.MultiBetRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return nil, err
		}
		if len(req.Bets) == 0 {
			return nil, &ticket.ValidationError{Kind: ticket.InsufficientSelections, Detail: "multi bet requires at least 1 sub-bet"}
		}
		out := make([]*ticket.Ticket, 0, len(req.Bets))
		for i, b := range req.Bets {
			id := uuid.NewString()
			if req.TicketID != "" {
				id = req.TicketID + "-" + strconv.Itoa(i)
			}
			t, err := p.builder.Build(id, b.Shape(), b.StakeValue())
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	}

	var (
		req dto.BetRequest
		err error
	)
	switch bt {
	case "single":
		req, err = decodeAs[dto.SingleBetRequest](msg.Payload)
	case "accumulator":
		req, err = decodeAs[dto.AccumulatorBetRequest](msg.Payload)
	case "system":
		req, err = decodeAs[dto.SystemBetRequest](msg.Payload)
	case "banker", "banker_system":
		req, err = decodeAs[dto.BankerSystemBetRequest](msg.Payload)
	case "preset":
		req, err = decodeAs[dto.PresetBetRequest](msg.Payload)
	default:
		return nil, &ticket.ValidationError{Kind: ticket.UnsupportedShape, Detail: "unsupported bet type " + strconv.Quote(msg.BetType)}
	}
	if err != nil {
		return nil, err
	}

	shape := req.Shape()
	id := req.ID()
	if id == "" {
		id = uuid.NewString()
	}
	t, err := p.builder.Build(id, shape, req.StakeValue())
	if err != nil {
		return nil, err
	}
	return []*ticket.Ticket{t}, nil
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return &ticket.ValidationError{Kind: ticket.UnsupportedShape, Detail: "payload is required"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ticket.ValidationError{Kind: ticket.UnsupportedShape, Detail: "invalid payload: " + err.Error()}
	}
	return nil
}

func decodeAs[T dto.BetRequest](raw json.RawMessage) (dto.BetRequest, error) {
	var v T
	if err := decodePayload(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (p *Processor) sendError(c *Client, requestID string, err error) {
	status, apiErr := dto.ErrorFor(err)
	if status >= http.StatusInternalServerError {
		p.log.Warn("ws bet failed", zap.String("request_id", requestID), zap.Error(err))
	}
	c.Send(BetError{
		Base:      base(TypeBetError),
		RequestID: requestID,
		Error:     apiErr.Message,
		Code:      apiErr.Code,
		Details:   apiErr.Details,
	})
}

func (p *Processor) queryStatus(c *Client, msg ClientMsg) {
	if msg.TicketID == "" {
		c.Send(BetError{Base: base(TypeBetError), Error: "ticketId is required", Code: http.StatusBadRequest})
		return
	}
	st, err := p.gw.Status(p.ctx, msg.TicketID)
	if err != nil {
		p.sendError(c, "", err)
		return
	}
	c.Send(BetStatus{Base: base(TypeBetStatus), TicketID: msg.TicketID, Status: st})
}

// clientSink converte as emissões da correlação em mensagens do cliente.
// Send não bloqueia, então é seguro chamar sob o lock da entrada.
type clientSink struct {
	c         *Client
	requestID string
	ticketIDs []string
}

func (s *clientSink) OnPartial(pr correlation.Progress) {
	s.c.Send(BetPartialResult{
		Base:      base(TypeBetPartialResult),
		RequestID: s.requestID,
		Completed: pr.Ratio(),
		TicketID:  pr.Last.TicketID,
		LegIndex:  pr.Last.LegIndex,
		Status:    string(pr.Last.Status),
	})
}

func (s *clientSink) OnResolved(o correlation.Outcome) {
	res := BetResult{Base: base(TypeBetResult), RequestID: s.requestID, Status: o.Status()}
	if len(s.ticketIDs) == 1 {
		res.TicketID = s.ticketIDs[0]
	} else {
		sum := &BetSummary{Total: o.Expected, Accepted: o.Accepted, Rejected: o.Rejected}
		for _, id := range s.ticketIDs {
			sum.Tickets = append(sum.Tickets, TicketResult{TicketID: id, Status: o.TicketStatus(id)})
		}
		res.Summary = sum
	}
	s.c.Send(res)
}

func (s *clientSink) OnTimeout(o correlation.Outcome) {
	msg := BetTimeout{
		Base:      base(TypeBetTimeout),
		RequestID: s.requestID,
		Message:   "settlement authority did not answer every leg in time (" + strconv.Itoa(o.Received) + "/" + strconv.Itoa(o.Expected) + ")",
	}
	if len(s.ticketIDs) == 1 {
		msg.TicketID = s.ticketIDs[0]
	} else {
		msg.TicketIDs = s.ticketIDs
	}
	s.c.Send(msg)
}
