// Package model is the dashboard's view model: it owns the session's reconciliation store and
// feeds it from bulk fetches, the realtime feed and operator sends.
package model

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/api"
	"github.com/matheus3301/wppcrm/internal/conversation"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/normalize"
	"github.com/matheus3301/wppcrm/internal/reconcile"
	"github.com/matheus3301/wppcrm/internal/send"
	"github.com/matheus3301/wppcrm/internal/store"
)

// DefaultPollInterval matches the dashboard's periodic refresh.
const DefaultPollInterval = 2 * time.Second

const (
	flashShort = 3 * time.Second
	flashLong  = 5 * time.Second
)

// Backend is the subset of the API client the dashboard uses.
type Backend interface {
	gateway.Sender
	FetchMessages(ctx context.Context, contact string, limit int) ([]normalize.Row, error)
	Persist(ctx context.Context, o ingest.Outbound) (normalize.Row, error)
	Status(ctx context.Context) (*api.StatusResponse, error)
	Conversations(ctx context.Context) ([]store.Conversation, error)
	ConversationByContact(ctx context.Context, key string) (*store.Conversation, error)
	ToggleBot(ctx context.Context, id int64, enabled bool) (*store.Conversation, error)
	Assign(ctx context.Context, id int64, user string) (*store.Conversation, error)
	Release(ctx context.Context, id int64) (*store.Conversation, error)
	SetStatus(ctx context.Context, id int64, status string) (*store.Conversation, error)
	SetTags(ctx context.Context, id int64, tags []string) (*store.Conversation, error)
	Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error)
}

// Feed is a push source of inserted rows, typically a realtime.Subscriber.
type Feed interface {
	Run(ctx context.Context)
}

// FeedFunc builds the feed once the view model can receive rows. onConnect runs on every
// (re)connect so the gap is covered by a bulk refresh.
type FeedFunc func(onRow func(normalize.Row), onConnect func()) Feed

// Options configure a ViewModel.
type Options struct {
	PollInterval time.Duration
	FetchLimit   int
	Location     *time.Location
	AuthorName   string
	SendTimeout  time.Duration
	Feed         FeedFunc
	Logger       *zap.Logger
}

// ViewModel caches dashboard state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	backend Backend
	opts    Options
	logger  *zap.Logger
	norm    *normalize.Normalizer
	store   *reconcile.Store
	sender  *send.Sender
	Flash   Flash

	records  map[string]store.Conversation
	selected string
	filter   string
	status   *api.StatusResponse
	fetchErr error

	fetchMu     sync.Mutex
	fetchGen    uint64
	fetchCancel context.CancelFunc

	refreshCh chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewViewModel creates a view model backed by b.
func NewViewModel(b Backend, opts Options) *ViewModel {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	norm := normalize.New(opts.Location)
	vm := &ViewModel{
		backend:   b,
		opts:      opts,
		logger:    logger.Named("dashboard"),
		norm:      norm,
		store:     reconcile.New(norm),
		records:   make(map[string]store.Conversation),
		refreshCh: make(chan struct{}, 1),
	}
	vm.sender = send.NewSender(b, b, vm.store, send.Options{
		Timeout:    opts.SendTimeout,
		Normalizer: norm,
		Notify:     vm.onNotice,
		Logger:     logger,
	})
	return vm
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

func (vm *ViewModel) onNotice(n send.Notice) {
	switch n.Level {
	case send.LevelError:
		vm.Flash.Set(FlashErr, n.Text, flashLong)
	case send.LevelWarn:
		vm.Flash.Set(FlashWarn, n.Text, flashLong)
	default:
		vm.Flash.Set(FlashInfo, n.Text, flashShort)
	}
	vm.signalRefresh()
}

// Start runs the periodic refresh and the realtime feed until Stop.
func (vm *ViewModel) Start(ctx context.Context) {
	ctx, vm.cancel = context.WithCancel(ctx)

	vm.wg.Add(2)
	go func() {
		defer vm.wg.Done()
		vm.pollLoop(ctx)
	}()
	go func() {
		defer vm.wg.Done()
		for {
			select {
			case <-vm.store.Changes():
				vm.signalRefresh()
			case <-ctx.Done():
				return
			}
		}
	}()

	if vm.opts.Feed != nil {
		feed := vm.opts.Feed(vm.ApplyRemote, func() {
			vm.wg.Add(1)
			go func() {
				defer vm.wg.Done()
				_ = vm.Refresh(ctx)
			}()
		})
		vm.wg.Add(1)
		go func() {
			defer vm.wg.Done()
			feed.Run(ctx)
		}()
	}
}

// Stop tears the session down: polling ends, the feed subscription is released and any
// in-flight fetch is abandoned.
func (vm *ViewModel) Stop() {
	if vm.cancel == nil {
		return
	}
	vm.cancel()
	vm.fetchMu.Lock()
	if vm.fetchCancel != nil {
		vm.fetchCancel()
	}
	vm.fetchMu.Unlock()
	vm.wg.Wait()
}

func (vm *ViewModel) pollLoop(ctx context.Context) {
	vm.refreshAll(ctx)
	ticker := time.NewTicker(vm.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			vm.refreshAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (vm *ViewModel) refreshAll(ctx context.Context) {
	if err := vm.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		vm.logger.Debug("refresh failed", zap.Error(err))
	}
	if err := vm.LoadConversations(ctx); err != nil && ctx.Err() == nil {
		vm.logger.Debug("load conversations failed", zap.Error(err))
	}
	if err := vm.LoadStatus(ctx); err != nil && ctx.Err() == nil {
		vm.logger.Debug("load status failed", zap.Error(err))
	}
}

// Refresh runs a bulk fetch. Starting a fetch cancels the one in flight, and a response that
// was superseded is discarded so it cannot overwrite newer state. On failure the previously
// loaded messages stay and FetchError reports the problem.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	vm.fetchMu.Lock()
	if vm.fetchCancel != nil {
		vm.fetchCancel()
	}
	vm.fetchGen++
	gen := vm.fetchGen
	ctx, cancel := context.WithCancel(ctx)
	vm.fetchCancel = cancel
	vm.fetchMu.Unlock()
	defer cancel()

	rows, err := vm.backend.FetchMessages(ctx, "", vm.opts.FetchLimit)

	vm.fetchMu.Lock()
	defer vm.fetchMu.Unlock()
	if gen != vm.fetchGen {
		return context.Canceled
	}
	vm.fetchCancel = nil
	if errors.Is(err, context.Canceled) {
		// Teardown, not a backend failure.
		return err
	}

	vm.mu.Lock()
	vm.fetchErr = err
	vm.mu.Unlock()
	if err != nil {
		vm.signalRefresh()
		return err
	}
	vm.store.LoadAll(rows)
	vm.signalRefresh()
	return nil
}

// ApplyRemote is the single entry point for pushed rows.
func (vm *ViewModel) ApplyRemote(row normalize.Row) {
	vm.store.ApplyRemoteInsert(row)
}

// LoadConversations refreshes conversation records, which carry display names and CRM state.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.backend.Conversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	for _, c := range convs {
		vm.records[c.Phone] = c
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Status returns the last fetched daemon status, or nil.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// FetchError returns the error of the last bulk fetch, or nil when it succeeded.
func (vm *ViewModel) FetchError() error {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.fetchErr
}

// SetFilter sets the conversation list quick filter.
func (vm *ViewModel) SetFilter(query string) {
	vm.mu.Lock()
	vm.filter = query
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Filter returns the active quick filter.
func (vm *ViewModel) Filter() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.filter
}

// Records returns a copy of the conversation records keyed by contact key.
func (vm *ViewModel) Records() map[string]store.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make(map[string]store.Conversation, len(vm.records))
	for k, v := range vm.records {
		out[k] = v
	}
	return out
}

// Conversations returns the grouped, filtered conversation list.
func (vm *ViewModel) Conversations() []conversation.Conversation {
	vm.mu.RLock()
	meta := make(conversation.Meta, len(vm.records))
	for key, rec := range vm.records {
		meta[key] = rec.Name
	}
	filter := vm.filter
	vm.mu.RUnlock()
	return conversation.Filter(conversation.Group(vm.store.Snapshot(), meta), filter)
}

// Select makes key the active conversation and loads its record.
func (vm *ViewModel) Select(ctx context.Context, key string) error {
	vm.mu.Lock()
	vm.selected = key
	vm.mu.Unlock()
	vm.signalRefresh()

	rec, err := vm.backend.ConversationByContact(ctx, key)
	if err != nil {
		return err
	}
	vm.setRecord(rec)
	return nil
}

// Selected returns the active conversation.
func (vm *ViewModel) Selected() (conversation.Conversation, bool) {
	vm.mu.RLock()
	key := vm.selected
	vm.mu.RUnlock()
	if key == "" {
		return conversation.Conversation{}, false
	}
	if c, ok := conversation.Find(vm.Conversations(), key); ok {
		return c, true
	}
	return conversation.Conversation{ContactKey: key, DisplayName: "Client " + key}, true
}

// SelectedKey returns the active contact key, or "".
func (vm *ViewModel) SelectedKey() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.selected
}

// Record returns the CRM record for the active conversation, or nil.
func (vm *ViewModel) Record() *store.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	rec, ok := vm.records[vm.selected]
	if !ok {
		return nil
	}
	return &rec
}

func (vm *ViewModel) setRecord(rec *store.Conversation) {
	if rec == nil {
		return
	}
	vm.mu.Lock()
	vm.records[rec.Phone] = *rec
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Send sends text to the active conversation. It is a no-op without text or a selection.
func (vm *ViewModel) Send(ctx context.Context, text string) (send.Outcome, bool) {
	out, ran := vm.sender.Send(ctx, send.Request{
		ContactKey: vm.SelectedKey(),
		Text:       text,
		AuthorName: vm.opts.AuthorName,
	})
	if errors.Is(out.Err, send.ErrBusy) {
		vm.Flash.Set(FlashWarn, "still sending the previous message", flashShort)
	} else if out.State == send.Delivered {
		vm.Flash.Set(FlashInfo, "Message sent", flashShort)
	}
	vm.signalRefresh()
	return out, ran
}

// errNoRecord is returned by mutations on a contact that has no saved conversation yet.
var errNoRecord = errors.New("conversation has no record yet; wait for the first message")

func (vm *ViewModel) mutate(ctx context.Context, apply func(id int64) (*store.Conversation, error)) error {
	rec := vm.Record()
	if rec == nil || rec.ID == 0 {
		return errNoRecord
	}
	updated, err := apply(rec.ID)
	if err != nil {
		return err
	}
	vm.setRecord(updated)
	return nil
}

// ToggleBot flips the automated responder on the active conversation.
func (vm *ViewModel) ToggleBot(ctx context.Context) error {
	return vm.mutate(ctx, func(id int64) (*store.Conversation, error) {
		rec := vm.Record()
		return vm.backend.ToggleBot(ctx, id, !rec.BotEnabled)
	})
}

// Assign assigns the active conversation to user, or to the operator when user is empty.
func (vm *ViewModel) Assign(ctx context.Context, user string) error {
	return vm.mutate(ctx, func(id int64) (*store.Conversation, error) {
		return vm.backend.Assign(ctx, id, user)
	})
}

// Release clears the assignee of the active conversation.
func (vm *ViewModel) Release(ctx context.Context) error {
	return vm.mutate(ctx, func(id int64) (*store.Conversation, error) {
		return vm.backend.Release(ctx, id)
	})
}

// SetStatus sets the active conversation's status.
func (vm *ViewModel) SetStatus(ctx context.Context, status string) error {
	return vm.mutate(ctx, func(id int64) (*store.Conversation, error) {
		return vm.backend.SetStatus(ctx, id, status)
	})
}

// SetTags replaces the active conversation's tags.
func (vm *ViewModel) SetTags(ctx context.Context, tags []string) error {
	return vm.mutate(ctx, func(id int64) (*store.Conversation, error) {
		return vm.backend.SetTags(ctx, id, tags)
	})
}

// Search performs a full-text search.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]store.SearchResult, error) {
	return vm.backend.Search(ctx, query, 50)
}
