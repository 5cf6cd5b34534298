package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	minBackoff = time.Second
	maxBackoff = 60 * time.Second
)

var (
	ErrNotConnected   = errors.New("downstream not connected")
	ErrConnectionLost = errors.New("downstream connection lost")
	ErrReplyTimeout   = errors.New("downstream reply timeout")
)

// replyResult carrega o reply bruto; quem esperava decodifica conforme a operação
type replyResult struct {
	raw []byte
	err error
}

// Client mantém a conexão WebSocket com a autoridade de liquidação.
// Replies síncronos (ticket e cashout) são casados pelo correlationId; resultados de perna
// chegam de forma assíncrona em OnLegResult.
type Client struct {
	URL             string
	Log             *zap.Logger
	DispatchTimeout time.Duration
	OnLegResult     func(LegResultContent)

	dialer    *websocket.Dialer
	connected atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan replyResult

	writeMu sync.Mutex
}

func NewClient(url string, log *zap.Logger, dispatchTimeout time.Duration) *Client {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 10 * time.Second
	}
	return &Client{
		URL:             url,
		Log:             log,
		DispatchTimeout: dispatchTimeout,
		dialer:          &websocket.Dialer{HandshakeTimeout: 45 * time.Second},
		pending:         make(map[string]chan replyResult),
	}
}

// Connected indica se há conexão ativa com o downstream
func (c *Client) Connected() bool { return c.connected.Load() }

// Start mantém a conexão viva até o contexto ser cancelado,
// reconectando com backoff exponencial.
func (c *Client) Start(ctx context.Context) {
	backoff := minBackoff
	for {
		started := time.Now()
		err := c.connectAndListen(ctx)
		if ctx.Err() != nil {
			c.Log.Info("context canceled, stopping downstream client")
			return
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		c.Log.Warn("downstream connection closed", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// connectAndListen estabelece a conexão e processa mensagens até ela cair
func (c *Client) connectAndListen(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.Log.Info("connected to downstream", zap.String("url", c.URL))

	done := make(chan struct{})
	defer func() {
		close(done)
		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		pending := c.pending
		c.pending = make(map[string]chan replyResult)
		c.mu.Unlock()
		for _, ch := range pending {
			ch <- replyResult{err: ErrConnectionLost}
		}
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop(conn, done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		c.handleMessage(raw)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.Log.Warn("downstream ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.Log.Warn("invalid downstream message", zap.Error(err))
		return
	}
	switch msg.Operation {
	case OpTicketReply, OpCashoutReply:
		c.mu.Lock()
		ch, ok := c.pending[msg.CorrelationID]
		delete(c.pending, msg.CorrelationID)
		c.mu.Unlock()
		if !ok {
			c.Log.Warn("reply without pending request",
				zap.String("operation", msg.Operation),
				zap.String("correlation_id", msg.CorrelationID),
			)
			return
		}
		ch <- replyResult{raw: raw}
	case OpLegResult:
		var lr LegResultMessage
		if err := json.Unmarshal(raw, &lr); err != nil {
			c.Log.Warn("invalid leg result", zap.Error(err))
			return
		}
		if c.OnLegResult != nil {
			c.OnLegResult(lr.Content)
		}
	default:
		c.Log.Debug("ignored downstream message", zap.String("operation", msg.Operation))
	}
}

func (c *Client) write(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write downstream: %w", err)
	}
	return nil
}

// Place envia o ticket e espera o reply síncrono (até DispatchTimeout).
func (c *Client) Place(ctx context.Context, req TicketRequest) (TicketReply, error) {
	var reply TicketReply
	raw, err := c.roundTrip(ctx, req.CorrelationID, req)
	if err != nil {
		return reply, err
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return reply, fmt.Errorf("decode ticket reply: %w", err)
	}
	return reply, nil
}

// Cashout envia um cashout-inform e espera o reply síncrono
func (c *Client) Cashout(ctx context.Context, req CashoutRequest) (CashoutReply, error) {
	var reply CashoutReply
	raw, err := c.roundTrip(ctx, req.CorrelationID, req)
	if err != nil {
		return reply, err
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return reply, fmt.Errorf("decode cashout reply: %w", err)
	}
	return reply, nil
}

// roundTrip registra o correlationId, escreve a mensagem e espera o reply
func (c *Client) roundTrip(ctx context.Context, correlationID string, msg any) ([]byte, error) {
	ch := make(chan replyResult, 1)
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[correlationID] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}

	if err := c.write(msg); err != nil {
		cleanup()
		return nil, err
	}

	timer := time.NewTimer(c.DispatchTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.raw, res.err
	case <-timer.C:
		cleanup()
		return nil, ErrReplyTimeout
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}
}

// Ack confirma o recebimento de um reply
func (c *Client) Ack(_ context.Context, reply TicketReply) error {
	return c.write(NewAck(reply, time.Now()))
}

// AckCashout confirma o recebimento de um cashout reply
func (c *Client) AckCashout(_ context.Context, reply CashoutReply) error {
	return c.write(NewCashoutAck(reply, time.Now()))
}
