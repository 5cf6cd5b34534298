package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/ticket-audit/repo"
	"github.com/radieske/mts-gateway/pkg/contracts/events"
)

// Store é onde o histórico de tickets é gravado (Postgres)
type Store interface {
	RecordPlaced(ctx context.Context, ev events.TicketPlaced) error
	RecordResolved(ctx context.Context, ev events.TicketResolved) error
}

// MessageReader é o subconjunto do kafka.Reader usado pelo worker
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MessageWriter é o subconjunto do kafka.Writer usado para a DLQ
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

var errDecode = errors.New("decode event")

const (
	defaultRetries     = 3
	defaultOrderWindow = 2 * time.Minute
	maxBackoff         = 5 * time.Second
)

// Worker consome um tópico de eventos de ticket e grava no Store.
// Falhas são re-tentadas com backoff linear; esgotadas, a mensagem vai para a DLQ.
// Um resolved que chega antes do placed (ErrUnknownTicket) espera até OrderWindow.
// O offset só é confirmado depois de gravar ou de mandar para a DLQ.
type Worker struct {
	Log         *zap.Logger
	Topic       string
	Reader      MessageReader
	DLQ         MessageWriter // opcional
	Retries     int
	Backoff     time.Duration
	OrderWindow time.Duration

	handle func(ctx context.Context, value []byte) error

	OnConsumed func(topic string)
	OnPersist  func(topic string)
	OnDLQ      func(topic string)
	OnError    func(phase string)
}

// NewPlacedWorker consome ticket_placed
func NewPlacedWorker(log *zap.Logger, topic string, r MessageReader, dlq MessageWriter, s Store) *Worker {
	w := newWorker(log, topic, r, dlq)
	w.handle = func(ctx context.Context, value []byte) error {
		var ev events.TicketPlaced
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("%w: %v", errDecode, err)
		}
		if ev.TicketID == "" {
			return fmt.Errorf("%w: missing ticket_id", errDecode)
		}
		return s.RecordPlaced(ctx, ev)
	}
	return w
}

// NewResolvedWorker consome ticket_resolved
func NewResolvedWorker(log *zap.Logger, topic string, r MessageReader, dlq MessageWriter, s Store) *Worker {
	w := newWorker(log, topic, r, dlq)
	w.handle = func(ctx context.Context, value []byte) error {
		var ev events.TicketResolved
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("%w: %v", errDecode, err)
		}
		if ev.TicketID == "" {
			return fmt.Errorf("%w: missing ticketId", errDecode)
		}
		return s.RecordResolved(ctx, ev)
	}
	return w
}

func newWorker(log *zap.Logger, topic string, r MessageReader, dlq MessageWriter) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		Log:     log,
		Topic:   topic,
		Reader:  r,
		DLQ:     dlq,
		Retries:     defaultRetries,
		Backoff:     300 * time.Millisecond,
		OrderWindow: defaultOrderWindow,
	}
}

// Run consome até o contexto ser cancelado
func (w *Worker) Run(ctx context.Context) error {
	for {
		m, err := w.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Log.Warn("kafka fetch failed", zap.String("topic", w.Topic), zap.Error(err))
			w.fail("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if w.OnConsumed != nil {
			w.OnConsumed(w.Topic)
		}

		// sem DLQ (ou DLQ fora): segura a partição até conseguir, para não pular offset
		for {
			err := w.process(ctx, m)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Log.Error("message not handled", zap.String("topic", w.Topic), zap.ByteString("key", m.Key), zap.Error(err))
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
		}
		if err := w.Reader.CommitMessages(ctx, m); err != nil {
			w.Log.Warn("kafka commit failed", zap.String("topic", w.Topic), zap.Error(err))
			w.fail("commit")
		}
	}
}

// process grava a mensagem; em falha definitiva encaminha para a DLQ
func (w *Worker) process(ctx context.Context, m kafka.Message) error {
	err := w.handle(ctx, m.Value)
	if errors.Is(err, errDecode) {
		w.Log.Warn("invalid message", zap.String("topic", w.Topic), zap.Error(err))
		w.fail("decode")
		return w.deadLetter(ctx, m, err)
	}
	started := time.Now()
	for attempt := 1; err != nil; attempt++ {
		early := errors.Is(err, repo.ErrUnknownTicket) && time.Since(started) < w.OrderWindow
		if !early && attempt > w.Retries {
			break
		}
		phase := "persist"
		if early {
			phase = "out_of_order"
		}
		w.Log.Warn("persist failed, retrying",
			zap.String("topic", w.Topic),
			zap.ByteString("key", m.Key),
			zap.Int("attempt", attempt),
			zap.String("phase", phase),
			zap.Error(err),
		)
		w.fail(phase)
		if !sleep(ctx, min(time.Duration(attempt)*w.Backoff, maxBackoff)) {
			return ctx.Err()
		}
		err = w.handle(ctx, m.Value)
	}
	if err != nil {
		return w.deadLetter(ctx, m, err)
	}
	if w.OnPersist != nil {
		w.OnPersist(w.Topic)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if w.DLQ == nil {
		return cause
	}
	dm := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(w.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	}
	if err := w.DLQ.WriteMessages(ctx, dm); err != nil {
		w.fail("dlq")
		return fmt.Errorf("dlq write: %w (cause: %v)", err, cause)
	}
	w.Log.Warn("message sent to dlq", zap.String("topic", w.Topic), zap.ByteString("key", m.Key), zap.Error(cause))
	if w.OnDLQ != nil {
		w.OnDLQ(w.Topic)
	}
	return nil
}

func (w *Worker) fail(phase string) {
	if w.OnError != nil {
		w.OnError(phase)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
