package simulator

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/downstream"
)

// Códigos de recusa usados pelo simulador
const (
	CodeTicketRejected = 101
	CodeSubBetRejected = 102
	CodeLegLost        = 201
	CodeUnknownTicket  = 301
	CodeCashoutRefused = 302
)

type Config struct {
	AcceptRate    float64       // probabilidade do ticket ser aceito no reply síncrono
	LegAcceptRate float64       // probabilidade de cada perna ser aceita
	MaxLegDelay   time.Duration // atraso máximo de cada leg-result
}

// Server simula a autoridade de liquidação: responde cada ticket-placement
// com um reply síncrono e depois envia um leg-result por perna aceita.
type Server struct {
	log      *zap.Logger
	cfg      Config
	upgrader websocket.Upgrader

	rndMu sync.Mutex
	rnd   *rand.Rand

	// assinaturas dos tickets aceitos, conferidas no cashout
	sigMu      sync.Mutex
	signatures map[string]string

	// injetáveis em testes
	Decide func() float64
	Delay  func() time.Duration

	// métricas
	OnConnection func(delta float64)
	OnReply      func(status string)
	OnLegResult  func(status string)
	OnAck        func()
	OnCashout    func(status string)
}

func New(log *zap.Logger, cfg Config) *Server {
	s := &Server{
		log: log,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		signatures: make(map[string]string),
	}
	s.Decide = s.float
	s.Delay = s.randomDelay
	return s
}

func (s *Server) float() float64 {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.rnd.Float64()
}

func (s *Server) randomDelay() time.Duration {
	if s.cfg.MaxLegDelay <= 0 {
		return 0
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return time.Duration(s.rnd.Int63n(int64(s.cfg.MaxLegDelay)))
}

// Handler expõe /ws (protocolo do downstream) e /health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	return mux
}

// session é uma conexão do gateway; escritas são serializadas
type session struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
	timers []*time.Timer
}

func (c *session) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *session) schedule(d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.timers = append(c.timers, time.AfterFunc(d, fn))
}

func (c *session) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, t := range c.timers {
		t.Stop()
	}
	_ = c.conn.Close()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &session{id: uuid.NewString(), conn: conn}
	s.connection(1)
	s.log.Info("gateway connected", zap.String("session_id", c.id))

	defer func() {
		c.close()
		s.connection(-1)
		s.log.Info("gateway disconnected", zap.String("session_id", c.id))
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handle(c, raw)
	}
}

func (s *Server) handle(c *session, raw []byte) {
	var msg downstream.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Warn("invalid message", zap.Error(err))
		return
	}

	switch msg.Operation {
	case downstream.OpTicketPlacement:
		var req downstream.TicketRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			s.log.Warn("invalid ticket placement", zap.Error(err))
			return
		}
		s.place(c, req)
	case downstream.OpTicketAck:
		var ack downstream.TicketAck
		if err := json.Unmarshal(raw, &ack); err == nil {
			s.log.Debug("ticket acknowledged", zap.String("ticket_id", ack.Content.TicketID))
		}
		if s.OnAck != nil {
			s.OnAck()
		}
	case downstream.OpCashoutInform:
		var req downstream.CashoutRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			s.log.Warn("invalid cashout inform", zap.Error(err))
			return
		}
		s.cashout(c, req)
	case downstream.OpCashoutAck:
		s.log.Debug("cashout acknowledged", zap.String("correlation_id", msg.CorrelationID))
		if s.OnAck != nil {
			s.OnAck()
		}
	default:
		s.log.Debug("ignoring operation", zap.String("operation", msg.Operation))
	}
}

// place responde o ticket e agenda os resultados das pernas aceitas
func (s *Server) place(c *session, req downstream.TicketRequest) {
	reply := s.decide(req)
	if err := c.write(downstream.TicketReply{
		Operation:     downstream.OpTicketReply,
		CorrelationID: req.CorrelationID,
		TimestampUTC:  time.Now().UnixMilli(),
		Version:       downstream.ProtocolVersion,
		Content:       reply,
	}); err != nil {
		s.log.Warn("write ticket reply", zap.String("ticket_id", reply.TicketID), zap.Error(err))
		return
	}
	if s.OnReply != nil {
		s.OnReply(reply.Status)
	}
	s.log.Info("ticket replied",
		zap.String("ticket_id", reply.TicketID),
		zap.String("status", reply.Status),
	)

	if reply.Status != downstream.StatusAccepted {
		return
	}
	s.sigMu.Lock()
	s.signatures[reply.TicketID] = reply.Signature
	s.sigMu.Unlock()

	accepted := map[int]bool{}
	for _, d := range reply.BetDetails {
		accepted[d.SubBet] = d.Status == downstream.StatusAccepted
	}
	for _, b := range req.Content.Bets {
		if !accepted[b.SubBet] {
			continue
		}
		for _, l := range b.Legs {
			res := s.legResult(req.Content.TicketID, l.Index)
			c.schedule(s.Delay(), func() {
				if err := c.write(downstream.LegResultMessage{
					Operation:     downstream.OpLegResult,
					CorrelationID: req.CorrelationID,
					TimestampUTC:  time.Now().UnixMilli(),
					Version:       downstream.ProtocolVersion,
					Content:       res,
				}); err != nil {
					return
				}
				if s.OnLegResult != nil {
					s.OnLegResult(res.Status)
				}
			})
		}
	}
}

func (s *Server) decide(req downstream.TicketRequest) downstream.ReplyContent {
	reply := downstream.ReplyContent{
		Type:     "ticket-reply",
		TicketID: req.Content.TicketID,
		Status:   downstream.StatusAccepted,
	}
	if len(req.Content.Bets) == 0 || s.Decide() >= s.cfg.AcceptRate {
		reply.Status = downstream.StatusRejected
		reply.Reason = &downstream.Reason{Code: CodeTicketRejected, Message: "ticket rejected by simulator"}
		return reply
	}
	reply.Signature = uuid.NewString()

	multi := len(req.Content.Bets) > 1
	for _, b := range req.Content.Bets {
		d := downstream.BetDetail{BetID: b.ID, SubBet: b.SubBet, Status: downstream.StatusAccepted}
		// sub-bets de um multi são avaliados um a um
		if multi && s.Decide() >= s.cfg.AcceptRate {
			d.Status = downstream.StatusRejected
			d.Reason = &downstream.Reason{Code: CodeSubBetRejected, Message: "sub-bet rejected by simulator"}
		}
		reply.BetDetails = append(reply.BetDetails, d)
	}
	return reply
}

// cashout só aceita tickets que este simulador aceitou, com a mesma assinatura
func (s *Server) cashout(c *session, req downstream.CashoutRequest) {
	d := req.Content.Cashout.Details
	content := downstream.CashoutReplyContent{
		Type:      downstream.OpCashoutReply,
		CashoutID: req.Content.Cashout.CashoutID,
		TicketID:  d.TicketID,
		Status:    downstream.StatusAccepted,
	}

	s.sigMu.Lock()
	sig, known := s.signatures[d.TicketID]
	s.sigMu.Unlock()
	switch {
	case !known || sig != d.TicketSignature:
		content.Status = downstream.StatusRejected
		content.Code = CodeUnknownTicket
		content.Message = "unknown ticket or signature"
	case s.Decide() >= s.cfg.AcceptRate:
		content.Status = downstream.StatusRejected
		content.Code = CodeCashoutRefused
		content.Message = "cashout rejected by simulator"
	default:
		content.Signature = uuid.NewString()
	}

	if err := c.write(downstream.CashoutReply{
		Operation:     downstream.OpCashoutReply,
		CorrelationID: req.CorrelationID,
		TimestampUTC:  time.Now().UnixMilli(),
		Version:       downstream.ProtocolVersion,
		Content:       content,
	}); err != nil {
		s.log.Warn("write cashout reply", zap.String("cashout_id", content.CashoutID), zap.Error(err))
		return
	}
	if s.OnCashout != nil {
		s.OnCashout(content.Status)
	}
	s.log.Info("cashout replied",
		zap.String("cashout_id", content.CashoutID),
		zap.String("ticket_id", content.TicketID),
		zap.String("status", content.Status),
	)
}

func (s *Server) legResult(ticketID string, leg int) downstream.LegResultContent {
	res := downstream.LegResultContent{
		Type:     "leg-result",
		TicketID: ticketID,
		LegIndex: leg,
		Status:   downstream.StatusAccepted,
	}
	if s.Decide() >= s.cfg.LegAcceptRate {
		res.Status = downstream.StatusRejected
		res.Reason = &downstream.Reason{Code: CodeLegLost, Message: "leg rejected by simulator"}
	}
	return res
}

func (s *Server) connection(delta float64) {
	if s.OnConnection != nil {
		s.OnConnection(delta)
	}
}
