// Package send runs one operator send end to end: optimistic insert, gateway call and durable
// persistence, with exactly one attempt at each.
package send

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/normalize"
)

// DefaultTimeout bounds the gateway call and the persistence call separately.
const DefaultTimeout = 10 * time.Second

// State of the current send attempt.
type State string

const (
	Idle                      State = "IDLE"
	Sending                   State = "SENDING"
	Delivered                 State = "DELIVERED"
	GatewayFailedButPersisted State = "GATEWAY_FAILED_BUT_PERSISTED"
	Failed                    State = "FAILED"
)

var validTransitions = map[State][]State{
	Idle:                      {Sending},
	Sending:                   {Delivered, GatewayFailedButPersisted, Failed},
	Delivered:                 {Idle},
	GatewayFailedButPersisted: {Idle},
	Failed:                    {Idle},
}

// ErrBusy is returned when a send is requested while another is in flight.
var ErrBusy = errors.New("a send is already in progress")

// Persister stores an outbound message durably.
type Persister interface {
	Persist(ctx context.Context, o ingest.Outbound) (normalize.Row, error)
}

// Timeline receives the optimistic copy and learns when it will never be confirmed.
type Timeline interface {
	AppendOptimistic(m normalize.Message)
	MarkFailed(clientMessageID string) bool
}

// Level grades a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Notice is a transient operator notification.
type Notice struct {
	Level Level
	Text  string
}

// Request is one operator send.
type Request struct {
	ContactKey string
	Phone      string // defaults to ContactKey
	Text       string
	AuthorName string
}

// Outcome describes a finished attempt.
type Outcome struct {
	State           State
	ClientMessageID string
	Gateway         gateway.Result
	Category        gateway.Category
	Err             error
}

// ClearInput reports whether the composer should be emptied: the text is safely stored.
func (o Outcome) ClearInput() bool {
	return o.State == Delivered || o.State == GatewayFailedButPersisted
}

// Options tune a Sender. Zero values pick the defaults.
type Options struct {
	Timeout    time.Duration
	Source     string
	Normalizer *normalize.Normalizer
	Notify     func(Notice)
	Logger     *zap.Logger
	NewID      func() string
	Now        func() time.Time
}

// Sender coordinates sends for one dashboard session.
type Sender struct {
	gateway   gateway.Sender
	persister Persister
	timeline  Timeline
	opts      Options
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

// NewSender creates an idle sender.
func NewSender(gw gateway.Sender, p Persister, tl Timeline, opts Options) *Sender {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Source == "" {
		opts.Source = ingest.SourceDashboard
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(nil)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		gateway:   gw,
		persister: p,
		timeline:  tl,
		opts:      opts,
		logger:    logger.Named("send"),
		state:     Idle,
	}
}

// State returns the current state.
func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sender) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(validTransitions[s.state], to) {
		// Unreachable: Send is the only caller and walks the table in order.
		panic(fmt.Sprintf("send: invalid transition from %s to %s", s.state, to))
	}
	s.state = to
}

// begin claims the sender for one attempt.
func (s *Sender) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return false
	}
	s.state = Sending
	return true
}

// Send runs one attempt. Requests without text or a selected contact are ignored and report
// false. A request arriving while another attempt is in flight fails with ErrBusy.
func (s *Sender) Send(ctx context.Context, req Request) (Outcome, bool) {
	text := strings.TrimSpace(req.Text)
	if text == "" || req.ContactKey == "" {
		return Outcome{State: Idle}, false
	}
	if !s.begin() {
		return Outcome{State: s.State(), Err: ErrBusy}, true
	}
	phone := req.Phone
	if phone == "" {
		phone = req.ContactKey
	}

	cid := s.opts.NewID()
	now := s.opts.Now()
	s.timeline.AppendOptimistic(normalize.Message{
		ID:              normalize.LocalIDPrefix + cid,
		ClientMessageID: cid,
		ContactKey:      req.ContactKey,
		Name:            req.AuthorName,
		Sender:          normalize.SenderAgent,
		Text:            text,
		Source:          s.opts.Source,
		Timestamp:       now,
		DisplayTime:     s.opts.Normalizer.DisplayTime(now),
	})
	log := s.logger.With(zap.String("client_message_id", cid), zap.String("contact", req.ContactKey))

	out := Outcome{ClientMessageID: cid}
	out.Gateway = s.callGateway(ctx, phone, text)
	out.Category = gateway.Classify(out.Gateway)
	if out.Category != gateway.CategoryNone {
		log.Warn("gateway rejected send", zap.Int("status", out.Gateway.Status), zap.String("category", string(out.Category)))
		s.notify(LevelWarn, out.Category.Message())
	}

	if err := s.persist(ctx, cid, req, text); err != nil {
		log.Error("persist failed", zap.Error(err))
		s.timeline.MarkFailed(cid)
		s.notify(LevelError, "message not saved: "+err.Error())
		out.State = Failed
		out.Err = err
	} else if out.Category != gateway.CategoryNone {
		out.State = GatewayFailedButPersisted
	} else {
		log.Info("message sent")
		out.State = Delivered
	}

	s.transition(out.State)
	s.transition(Idle)
	return out, true
}

func (s *Sender) callGateway(ctx context.Context, phone, text string) gateway.Result {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	res := s.gateway.SendText(ctx, phone, text)
	if !res.OK && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Status = gateway.StatusTimeout
	}
	return res
}

func (s *Sender) persist(ctx context.Context, cid string, req Request, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	_, err := s.persister.Persist(ctx, ingest.Outbound{
		ClientMessageID: cid,
		ContactKey:      req.ContactKey,
		Text:            text,
		AuthorName:      req.AuthorName,
		Source:          s.opts.Source,
		FromMe:          true,
	})
	if err != nil && crmerr.KindOf(err) == "" {
		err = crmerr.E(crmerr.Persistence, "persist message", err)
	}
	return err
}

func (s *Sender) notify(level Level, text string) {
	if s.opts.Notify != nil && text != "" {
		s.opts.Notify(Notice{Level: level, Text: text})
	}
}
