package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/mts-gateway/internal/correlation"
	"github.com/radieske/mts-gateway/internal/downstream"
	"github.com/radieske/mts-gateway/internal/ticket"
)

// Authority é a autoridade de liquidação (downstream)
type Authority interface {
	Place(ctx context.Context, req downstream.TicketRequest) (downstream.TicketReply, error)
	Ack(ctx context.Context, reply downstream.TicketReply) error
}

// Recorder registra efeitos colaterais da submissão (eventos, cache de status)
type Recorder interface {
	Placed(ctx context.Context, t *ticket.Ticket, env Envelope) error
	Finished(ctx context.Context, o correlation.Outcome) error
}

// StatusStore consulta o status final de tickets já encerrados
type StatusStore interface {
	TicketStatus(ctx context.Context, ticketID string) (string, bool, error)
}

const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
	StatusTimeout  = "timeout"
	StatusPending  = "pending"
	StatusNotFound = "not_found"
)

// SubBetStatus é o status síncrono de um sub-bet
type SubBetStatus struct {
	Index   int    `json:"subBet"`
	BetID   string `json:"betId"`
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Envelope é a resposta síncrona de um ticket submetido
type Envelope struct {
	TicketID  string         `json:"ticketId"`
	Status    string         `json:"status"`
	Signature string         `json:"signature"`
	Code      int            `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	SubBets   []SubBetStatus `json:"betDetails,omitempty"`
	Err       error          `json:"-"`
}

// Request agrupa os tickets de uma requisição de cliente
type Request struct {
	RequestID string
	Tickets   []*ticket.Ticket
	Sink      correlation.Sink
	Deadline  time.Duration // zero usa o padrão (single ou multi)
}

type Config struct {
	SingleDeadline time.Duration
	MultiDeadline  time.Duration
	RecordTimeout  time.Duration
}

// Gateway envia tickets ao downstream e abre as entradas de correlação
type Gateway struct {
	log       *zap.Logger
	authority Authority
	table     *correlation.Table
	claims    Claims
	recorders []Recorder
	statuses  StatusStore
	cfg       Config

	// métricas
	OnSubmitted func(kind ticket.Kind, status string)
	OnDuplicate func()
}

func New(log *zap.Logger, a Authority, table *correlation.Table, claims Claims, cfg Config) *Gateway {
	if cfg.SingleDeadline <= 0 {
		cfg.SingleDeadline = 15 * time.Second
	}
	if cfg.MultiDeadline <= 0 {
		cfg.MultiDeadline = 30 * time.Second
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 5 * time.Second
	}
	return &Gateway{log: log, authority: a, table: table, claims: claims, cfg: cfg}
}

// WithRecorders adiciona recorders (Kafka, cache de status)
func (g *Gateway) WithRecorders(r ...Recorder) *Gateway {
	g.recorders = append(g.recorders, r...)
	return g
}

// WithStatusStore define onde buscar status de tickets já encerrados
func (g *Gateway) WithStatusStore(s StatusStore) *Gateway {
	g.statuses = s
	return g
}

func (g *Gateway) deadlineFor(req Request) time.Duration {
	if req.Deadline > 0 {
		return req.Deadline
	}
	if len(req.Tickets) == 1 && req.Tickets[0].Kind() != ticket.KindMulti {
		return g.cfg.SingleDeadline
	}
	return g.cfg.MultiDeadline
}

// Submit reivindica os ticketIds, abre a entrada de correlação e despacha cada
// ticket ao downstream. Retorna um envelope por ticket, na mesma ordem.
func (g *Gateway) Submit(ctx context.Context, req Request) ([]Envelope, error) {
	if req.RequestID == "" {
		return nil, errors.New("gateway: request id is required")
	}
	if len(req.Tickets) == 0 {
		return nil, errors.New("gateway: no tickets to submit")
	}

	claimed, err := g.claimAll(ctx, req.Tickets)
	if err != nil {
		return nil, err
	}

	spec := correlation.Spec{
		RequestID: req.RequestID,
		Deadline:  g.deadlineFor(req),
		Sink:      correlation.Tee(req.Sink, g.recordSink()),
	}
	for _, t := range req.Tickets {
		spec.Tickets = append(spec.Tickets, correlation.TicketLegs{TicketID: t.ID(), Legs: t.LegCount()})
	}
	if _, err := g.table.Open(spec); err != nil {
		g.releaseAll(claimed)
		return nil, fmt.Errorf("open correlation entry: %w", err)
	}

	envs := make([]Envelope, len(req.Tickets))
	grp, gctx := errgroup.WithContext(ctx)
	for i, t := range req.Tickets {
		i, t := i, t
		grp.Go(func() error {
			envs[i] = g.dispatch(gctx, t)
			return nil
		})
	}
	_ = grp.Wait()

	failed := 0
	var firstErr error
	for i, env := range envs {
		t := req.Tickets[i]
		if env.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = env.Err
			}
			if errors.Is(env.Err, ErrTransportFailure) {
				_ = g.claims.Release(context.WithoutCancel(ctx), t.ID())
			}
			g.observe(t.Kind(), env.Status)
			continue
		}
		g.observe(t.Kind(), env.Status)
		g.recordPlaced(t, env)
	}

	if failed == len(envs) {
		g.table.Cancel(req.RequestID)
		return envs, firstErr
	}

	// o ticket enviado com falha de transporte nunca terá respostas
	for i, env := range envs {
		if errors.Is(env.Err, ErrTransportFailure) {
			g.rejectLegs(req.Tickets[i], nil, correlation.LegResult{Code: -1, Message: env.Err.Error()})
		}
	}
	return envs, nil
}

func (g *Gateway) claimAll(ctx context.Context, ts []*ticket.Ticket) ([]string, error) {
	var claimed []string
	seen := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		id := t.ID()
		if _, dup := seen[id]; dup {
			g.releaseAll(claimed)
			return nil, g.duplicate(id)
		}
		seen[id] = struct{}{}

		ok, err := g.claims.Claim(ctx, id)
		if err != nil {
			g.releaseAll(claimed)
			return nil, &Error{Kind: KindTransportFailure, TicketID: id, Message: "claim store unavailable", Err: err}
		}
		if !ok {
			g.releaseAll(claimed)
			return nil, g.duplicate(id)
		}
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (g *Gateway) duplicate(id string) error {
	if g.OnDuplicate != nil {
		g.OnDuplicate()
	}
	g.log.Info("duplicate ticket rejected", zap.String("ticket_id", id))
	return &Error{Kind: KindDuplicateTicket, TicketID: id, Message: "ticket already submitted"}
}

func (g *Gateway) releaseAll(ids []string) {
	for _, id := range ids {
		if err := g.claims.Release(context.Background(), id); err != nil {
			g.log.Warn("release claim", zap.String("ticket_id", id), zap.Error(err))
		}
	}
}

// dispatch envia um ticket e converte o reply em envelope.
func (g *Gateway) dispatch(ctx context.Context, t *ticket.Ticket) Envelope {
	wire := downstream.NewTicketRequest(t, uuid.NewString(), time.Now())
	reply, err := g.authority.Place(ctx, wire)
	if err != nil {
		env := Envelope{TicketID: t.ID()}
		switch {
		case errors.Is(err, downstream.ErrReplyTimeout) || errors.Is(err, context.DeadlineExceeded):
			env.Status = StatusTimeout
			env.Err = &Error{Kind: KindDownstreamTimeout, TicketID: t.ID(), Message: "no reply from downstream", Err: err}
		case errors.Is(err, downstream.ErrConnectionLost) || errors.Is(err, context.Canceled):
			// o ticket já foi escrito: a autoridade pode tê-lo registrado, o claim fica
			env.Status = StatusTimeout
			env.Err = &Error{Kind: KindDownstreamTimeout, TicketID: t.ID(), Message: "reply lost after send, outcome unknown", Err: err}
		default:
			env.Status = StatusFailed
			env.Err = &Error{Kind: KindTransportFailure, TicketID: t.ID(), Message: "downstream unavailable", Err: err}
		}
		g.log.Warn("ticket dispatch failed", zap.String("ticket_id", t.ID()), zap.Error(err))
		return env
	}

	go func() {
		actx, cancel := context.WithTimeout(context.Background(), g.cfg.RecordTimeout)
		defer cancel()
		if err := g.authority.Ack(actx, reply); err != nil {
			g.log.Warn("ticket ack failed", zap.String("ticket_id", t.ID()), zap.Error(err))
		}
	}()

	env := envelopeFrom(t, reply.Content)
	g.log.Info("ticket submitted",
		zap.String("ticket_id", t.ID()),
		zap.String("kind", string(t.Kind())),
		zap.Int("legs", t.LegCount()),
		zap.String("status", env.Status),
	)

	// sub-bets recusados no reply síncrono não terão resultados de perna
	rejected := map[int]SubBetStatus{}
	for _, sb := range env.SubBets {
		if sb.Status != StatusAccepted {
			rejected[sb.Index] = sb
		}
	}
	if len(rejected) > 0 {
		g.rejectLegs(t, rejected, correlation.LegResult{Code: env.Code, Message: env.Message})
	}
	return env
}

// envelopeFrom monta o envelope; sem betDetails, o status do ticket vale para todos os sub-bets.
func envelopeFrom(t *ticket.Ticket, r downstream.ReplyContent) Envelope {
	env := Envelope{TicketID: t.ID(), Status: normalizeStatus(r.Status), Signature: r.Signature}
	if r.Reason != nil {
		env.Code, env.Message = r.Reason.Code, r.Reason.Message
	}
	details := make(map[int]downstream.BetDetail, len(r.BetDetails))
	for _, d := range r.BetDetails {
		details[d.SubBet] = d
	}
	for _, sb := range t.SubBets() {
		s := SubBetStatus{Index: sb.Index, BetID: downstream.BetID(t.ID(), sb.Index), Status: env.Status, Code: env.Code, Message: env.Message}
		if env.Status == StatusAccepted {
			if d, ok := details[sb.Index]; ok {
				s.Status = normalizeStatus(d.Status)
				s.Code, s.Message = 0, ""
				if d.Reason != nil {
					s.Code, s.Message = d.Reason.Code, d.Reason.Message
				}
			}
		}
		env.SubBets = append(env.SubBets, s)
	}
	return env
}

func normalizeStatus(s string) string {
	if s == downstream.StatusAccepted {
		return StatusAccepted
	}
	return StatusRejected
}

// rejectLegs registra como recusadas as pernas dos sub-bets indicados (todos, se nil)
func (g *Gateway) rejectLegs(t *ticket.Ticket, subBets map[int]SubBetStatus, base correlation.LegResult) {
	for _, l := range t.Legs() {
		r := base
		if subBets != nil {
			sb, ok := subBets[l.SubBet]
			if !ok {
				continue
			}
			r.Code, r.Message = sb.Code, sb.Message
		}
		r.TicketID, r.LegIndex, r.Status = t.ID(), l.Index, correlation.LegRejected
		if err := g.table.Deliver(r); err != nil && !errors.Is(err, correlation.ErrAlreadyFinished) {
			g.log.Debug("synthesized leg rejection not applied", zap.String("ticket_id", t.ID()), zap.Error(err))
		}
	}
}

// HandleLegResult recebe os resultados assíncronos do downstream
func (g *Gateway) HandleLegResult(r downstream.LegResultContent) {
	res := correlation.LegResult{
		TicketID: r.TicketID,
		LegIndex: r.LegIndex,
		Status:   correlation.LegRejected,
	}
	if r.Status == downstream.StatusAccepted {
		res.Status = correlation.LegAccepted
	}
	if r.Reason != nil {
		res.Code, res.Message = r.Reason.Code, r.Reason.Message
	}
	_ = g.table.Deliver(res)
}

// Cancel é consultivo: a entrada local é liberada, o downstream não é avisado.
func (g *Gateway) Cancel(requestID string) bool {
	ok := g.table.Cancel(requestID)
	if ok {
		g.log.Info("correlation entry cancelled", zap.String("request_id", requestID))
	}
	return ok
}

// Status retorna pending enquanto o ticket está na tabela de correlação;
// depois disso consulta o StatusStore.
func (g *Gateway) Status(ctx context.Context, ticketID string) (string, error) {
	if _, ok := g.table.Lookup(ticketID); ok {
		return StatusPending, nil
	}
	if g.statuses == nil {
		return StatusNotFound, nil
	}
	st, ok, err := g.statuses.TicketStatus(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if !ok {
		return StatusNotFound, nil
	}
	return st, nil
}

func (g *Gateway) observe(kind ticket.Kind, status string) {
	if g.OnSubmitted != nil {
		g.OnSubmitted(kind, status)
	}
}

func (g *Gateway) recordPlaced(t *ticket.Ticket, env Envelope) {
	if len(g.recorders) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RecordTimeout)
		defer cancel()
		for _, r := range g.recorders {
			if err := r.Placed(ctx, t, env); err != nil {
				g.log.Warn("record ticket placed", zap.String("ticket_id", t.ID()), zap.Error(err))
			}
		}
	}()
}

// recordSink repassa o resultado final aos recorders fora do lock da entrada
func (g *Gateway) recordSink() correlation.Sink {
	if len(g.recorders) == 0 {
		return nil
	}
	finish := func(o correlation.Outcome) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RecordTimeout)
			defer cancel()
			for _, r := range g.recorders {
				if err := r.Finished(ctx, o); err != nil {
					g.log.Warn("record ticket outcome", zap.String("request_id", o.RequestID), zap.Error(err))
				}
			}
		}()
	}
	return correlation.SinkFuncs{Resolved: finish, Timeout: finish}
}
