// Package ingest is the daemon's single write path for message rows. Webhook payloads,
// direct WhatsApp events and operator sends all become stored rows here, and every newly
// stored row is announced on the bus for the realtime feed.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/metrics"
	"github.com/matheus3301/wppcrm/internal/store"
)

// ErrStoreMissing is returned when the messages table does not exist.
var ErrStoreMissing = errors.New("messages table missing")

// Engine persists rows and publishes message.inserted events.
type Engine struct {
	db      *store.DB
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates a new ingestion engine. m may be nil.
func NewEngine(db *store.DB, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:      db,
		bus:     b,
		metrics: m,
		logger:  logger.Named("ingest"),
	}
}

// Start subscribes to inbound provider events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("inbound.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) handleEvent(evt bus.Event) {
	if evt.Kind != bus.KindInboundMessage {
		return
	}
	in, ok := evt.Payload.(Inbound)
	if !ok {
		return
	}
	if _, err := e.Ingest(in); err != nil {
		e.logger.Error("failed to ingest inbound message", zap.Error(err), zap.String("phone", in.Phone), zap.String("source", in.Source))
	}
}

// Ingest stores a provider message and makes sure its conversation record exists.
func (e *Engine) Ingest(in Inbound) (*store.Message, error) {
	if in.Phone == "" || in.Text == "" {
		return nil, crmerr.Errorf(crmerr.Validation, "ingest", "missing phone or message")
	}
	name := in.Name
	if name == "" && !in.FromMe {
		name = defaultInboundName
	}
	m := &store.Message{
		Phone:     in.Phone,
		Name:      name,
		Body:      in.Text,
		FromMe:    in.FromMe,
		Source:    in.Source,
		CreatedAt: in.At,
	}
	if in.ExternalID != "" {
		// Provider ids make redelivered events idempotent.
		m.ClientMessageID = in.Source + ":" + in.ExternalID
	}
	stored, err := e.persist(m)
	if err != nil {
		return nil, err
	}
	if _, err := e.db.EnsureConversation(in.Phone, in.Name); err != nil {
		e.logger.Warn("failed to ensure conversation", zap.String("phone", in.Phone), zap.Error(err))
	}
	return stored, nil
}

// Persist stores an operator-authored message. The clientMessageId is kept so the realtime
// echo can be matched to the optimistic copy on the sending dashboard.
func (e *Engine) Persist(o Outbound) (*store.Message, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	stored, err := e.persist(&store.Message{
		ClientMessageID: o.ClientMessageID,
		Phone:           o.ContactKey,
		Body:            o.Text,
		FromMe:          o.FromMe,
		Source:          o.Source,
		AuthorName:      o.AuthorName,
		Status:          "sent",
	})
	if err != nil {
		return nil, err
	}
	// An operator may write to a number before the customer ever does.
	if _, err := e.db.EnsureConversation(o.ContactKey, ""); err != nil {
		e.logger.Warn("failed to ensure conversation", zap.String("phone", o.ContactKey), zap.Error(err))
	}
	return stored, nil
}

func (e *Engine) persist(m *store.Message) (*store.Message, error) {
	if e.db == nil {
		return nil, crmerr.Errorf(crmerr.NotConfigured, "persist message", "message store is not configured")
	}
	stored, created, err := e.db.InsertMessage(m)
	if err != nil {
		if store.IsMissingTable(err) {
			return nil, crmerr.E(crmerr.Persistence, "persist message", fmt.Errorf("%w: %w", ErrStoreMissing, err))
		}
		return nil, crmerr.E(crmerr.Persistence, "persist message", err)
	}
	if created {
		e.metrics.MessagePersisted(stored.Source)
		e.bus.Publish(bus.NewEvent(bus.KindMessageInserted, *stored))
	}
	return stored, nil
}
