// Package tui is the operator dashboard: a terminal UI over the CRM daemon's API.
package tui

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/api"
	"github.com/matheus3301/wppcrm/internal/conversation"
	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/store"
	"github.com/matheus3301/wppcrm/internal/tui/client"
	"github.com/matheus3301/wppcrm/internal/tui/keys"
	"github.com/matheus3301/wppcrm/internal/tui/model"
	"github.com/matheus3301/wppcrm/internal/tui/ui"
	"github.com/matheus3301/wppcrm/internal/tui/views"
)

// Page names.
const (
	pageConversations = "Conversations"
	pageThread        = "Thread"
	pageDetails       = "Details"
	pageSearch        = "Search"
	pageAuth          = "Pairing"
	pageHelp          = "Help"
)

const (
	qrPollInterval = 2 * time.Second
	flashDuration  = 5 * time.Second
)

// Operator is the part of the API client the dashboard calls outside the view model.
type Operator interface {
	AddNote(ctx context.Context, conversationID int64, text string) (*store.Note, error)
	Notes(ctx context.Context, conversationID int64) ([]store.Note, error)
	Pair(ctx context.Context) error
	LastQR(ctx context.Context) (*client.QRCode, error)
	Logout(ctx context.Context) error
}

// Options configure the dashboard shell.
type Options struct {
	User   string
	Logger *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	root     *tview.Flex
	pages    *ui.Pages
	vm       *model.ViewModel
	op       Operator
	registry *keys.Registry
	logger   *zap.Logger
	user     string

	sessionInfo *ui.SessionInfo
	menu        *ui.Menu
	crumbs      *ui.Crumbs
	prompt      *ui.Prompt
	flashBar    *ui.FlashBar

	list   *views.ConversationList
	thread *views.MessageThread
	info   *views.ConversationInfo
	search *views.SearchView
	auth   *views.AuthView
	help   *views.HelpView

	components map[string]ui.Component
	notes      []store.Note
	authShown  atomic.Bool
	authSeen   bool
	loggedOut  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, op Operator, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		theme:       theme,
		pages:       ui.NewPages(),
		vm:          vm,
		op:          op,
		registry:    keys.NewRegistry(),
		logger:      logger.Named("tui"),
		user:        opts.User,
		sessionInfo: ui.NewSessionInfo(theme),
		menu:        ui.NewMenu(theme),
		crumbs:      ui.NewCrumbs(theme),
		prompt:      ui.NewPrompt(theme),
		flashBar:    ui.NewFlashBar(theme),
		list:        views.NewConversationList(theme),
		thread:      views.NewMessageThread(theme),
		info:        views.NewConversationInfo(theme),
		search:      views.NewSearchView(theme),
		auth:        views.NewAuthView(theme),
		help:        views.NewHelpView(theme),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.components = map[string]ui.Component{
		pageConversations: a.list,
		pageThread:        a.thread,
		pageDetails:       a.info,
		pageSearch:        a.search,
		pageAuth:          a.auth,
		pageHelp:          a.help,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

// LoggedOut reports whether the operator ended the session with :logout.
func (a *App) LoggedOut() bool {
	return a.loggedOut.Load()
}

func (a *App) setupBindings() {
	r := a.registry
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: ':', Description: "Command", Handler: func() { a.activatePrompt(ui.PromptCommand) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: '/', Description: "Filter", Handler: func() { a.activatePrompt(ui.PromptFilter) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Handler: func() { a.push(pageHelp) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyCtrlR, Description: "Refresh", Handler: a.refreshNow})
	r.AddGlobal(&keys.Action{Key: tcell.KeyEscape, Description: "Back", Handler: a.back})

	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Handler: a.app.Stop})
	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyEscape, Description: "Clear filter", Handler: func() { a.vm.SetFilter("") }})
	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: 'j', Description: "Down", Handler: func() { a.moveCursor(1) }})
	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: 'k', Description: "Up", Handler: func() { a.moveCursor(-1) }})
	for n := 1; n <= 9; n++ {
		r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: rune('0' + n), Description: "Jump", Handler: func() {
			if key := a.list.KeyByIndex(n); key != "" {
				a.openConversation(key)
			}
		}})
	}

	r.AddView(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Handler: func() { a.app.SetFocus(a.thread.Composer()) }})
	r.AddView(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'd', Description: "Details", Handler: a.showDetails})
	r.AddView(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'b', Description: "Toggle bot", Handler: func() { a.runCommand(Command{Name: "bot"}) }})
	r.AddView(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'a', Description: "Assign to me", Handler: func() { a.runCommand(Command{Name: "assign"}) }})
	r.AddView(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'n', Description: "Note", Handler: func() { a.activatePrompt(ui.PromptNote) }})

	r.AddView(pageAuth, &keys.Action{Key: tcell.KeyRune, Rune: 'p', Description: "Pair", Handler: a.startPairing})
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) {
		if key := a.list.KeyByIndex(row); key != "" {
			a.openConversation(key)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			out, ran := a.vm.Send(a.ctx, text)
			a.app.QueueUpdateDraw(func() {
				if ran && out.ClearInput() {
					a.thread.ClearComposer()
				}
				a.render()
			})
		}()
	})

	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		if key := a.search.SelectedContact(); key != "" {
			a.openConversation(key)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptFilter:
			a.vm.SetFilter(text)
		case ui.PromptNote:
			a.runCommand(Command{Name: "note", Args: text})
		default:
			cmd, err := ParseCommand(text).Canonical()
			if err != nil {
				a.vm.Flash.Set(model.FlashWarn, err.Error(), flashDuration)
				a.render()
				return
			}
			a.runCommand(cmd)
		}
	})
	a.prompt.SetOnCancel(a.closePrompt)

	a.pages.SetOnChange(func(stack []string) {
		a.updateHeader(stack)
	})
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c.(tview.Primitive), true, false)
	}

	header := tview.NewFlex().
		AddItem(a.sessionInfo, 40, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 14, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.pages.Reset(pageConversations)
	a.app.SetFocus(a.list)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Text inputs own their keys; Esc in the composer returns to the thread.
		switch a.app.GetFocus() {
		case a.thread.Composer():
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		case a.prompt.InputField, a.search.Input():
			if event.Key() == tcell.KeyEscape && a.app.GetFocus() == a.search.Input() {
				a.back()
				return nil
			}
			return event
		}
		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

// Run starts the view model and the UI loop. It blocks until the UI stops and the view
// model has been torn down.
func (a *App) Run() error {
	a.vm.Start(a.ctx)
	defer func() {
		a.cancel()
		a.vm.Stop()
	}()

	go func() {
		for {
			select {
			case <-a.vm.RefreshCh():
				a.app.QueueUpdateDraw(a.render)
			case <-a.ctx.Done():
				return
			}
		}
	}()

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// render redraws everything from the view model. It runs on the UI goroutine.
func (a *App) render() {
	convs := a.vm.Conversations()
	records := a.vm.Records()
	a.list.Update(convs, records, a.vm.Filter())

	if a.pages.Current() == pageThread || a.pages.Current() == pageDetails {
		if sel, ok := a.vm.Selected(); ok {
			if sel.DisplayName != a.thread.Name() || sel.ContactKey != a.thread.ContactKey() {
				a.thread.SetConversation(sel.ContactKey, sel.DisplayName)
				a.updateHeader(a.pages.Stack())
			}
			a.thread.Update(sel.Messages)
			a.info.Update(sel, a.vm.Record(), a.notes)
		}
	}

	st := a.vm.Status()
	fetchErr := a.vm.FetchError()
	data := &ui.SessionData{User: a.user, Conversations: len(convs), Offline: fetchErr != nil}
	if st != nil {
		data.Instance = st.Instance
		data.Driver = st.Driver
		data.State = st.State
		data.Messages = st.Messages
		data.Uptime = time.Duration(st.UptimeMs) * time.Millisecond
		if st.User != "" {
			data.User = st.User
		}
	}
	a.sessionInfo.Update(data)

	text, level := a.vm.Flash.Get()
	switch {
	case text != "":
		a.flashBar.Update(text, flashLevel(level))
	case fetchErr != nil:
		a.flashBar.Update("backend unreachable: "+fetchErr.Error(), ui.FlashErr)
	default:
		a.flashBar.Update("", ui.FlashInfo)
	}

	a.followGatewayState(st)
}

// followGatewayState opens the pairing page once when the daemon needs a device link and
// leaves it when the gateway connects.
func (a *App) followGatewayState(st *api.StatusResponse) {
	if st == nil {
		return
	}
	switch st.State {
	case "AUTH_REQUIRED":
		if !a.authSeen && a.pages.Current() != pageAuth {
			a.authSeen = true
			a.auth.ShowMessage("The gateway needs a device link.\n\nPress p to start pairing (admin only).")
			a.push(pageAuth)
		}
	case "CONNECTED":
		a.authSeen = false
		if a.pages.Current() == pageAuth {
			a.auth.ShowMessage("Connected.")
			a.back()
		}
	}
}

func (a *App) updateHeader(stack []string) {
	a.crumbs.Update(stack, map[string]string{pageThread: a.thread.Name()})
	if c, ok := a.components[a.pages.Current()]; ok {
		a.menu.Update(c.Hints())
	}
}

func flashLevel(l model.FlashLevel) ui.FlashLevel {
	switch l {
	case model.FlashWarn:
		return ui.FlashWarn
	case model.FlashErr:
		return ui.FlashErr
	default:
		return ui.FlashInfo
	}
}

func (a *App) flashErr(op string, err error) {
	a.logger.Debug("operation failed", zap.String("op", op), zap.Error(err))
	a.vm.Flash.Set(model.FlashErr, op+": "+err.Error(), flashDuration)
	a.render()
}

func (a *App) push(page string) {
	if a.pages.Current() == page {
		return
	}
	a.pages.Push(page)
	a.focusPage(page)
	a.render()
}

func (a *App) back() {
	if a.pages.Depth() <= 1 {
		return
	}
	if a.pages.Pop() == pageAuth {
		a.authShown.Store(false)
	}
	a.focusPage(a.pages.Current())
	a.render()
}

func (a *App) focusPage(page string) {
	switch page {
	case pageConversations:
		a.app.SetFocus(a.list)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageSearch:
		a.app.SetFocus(a.search.Input())
	default:
		if p, ok := a.components[page].(tview.Primitive); ok {
			a.app.SetFocus(p)
		}
	}
}

func (a *App) moveCursor(delta int) {
	row, col := a.list.GetSelection()
	next := row + delta
	if next >= 1 && next < a.list.GetRowCount() {
		a.list.Select(next, col)
	}
}

func (a *App) activatePrompt(mode ui.PromptMode) {
	if mode == ui.PromptNote && a.vm.SelectedKey() == "" {
		return
	}
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusPage(a.pages.Current())
}

func (a *App) refreshNow() {
	go func() {
		_ = a.vm.Refresh(a.ctx)
		_ = a.vm.LoadConversations(a.ctx)
		_ = a.vm.LoadStatus(a.ctx)
	}()
}

func (a *App) openConversation(key string) {
	a.notes = nil
	a.thread.SetConversation(key, key)
	a.push(pageThread)
	go func() {
		err := a.vm.Select(a.ctx, key)
		a.app.QueueUpdateDraw(func() {
			// A contact without a saved record yet is still viewable.
			if err != nil && !crmerr.IsKind(err, crmerr.NotFound) {
				a.flashErr("open", err)
			}
			a.render()
		})
	}()
}

func (a *App) showDetails() {
	a.push(pageDetails)
	rec := a.vm.Record()
	if rec == nil || rec.ID == 0 {
		return
	}
	go func() {
		notes, err := a.op.Notes(a.ctx, rec.ID)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.flashErr("notes", err)
				return
			}
			a.notes = notes
			a.render()
		})
	}()
}

func (a *App) runSearch(query string) {
	if strings.TrimSpace(query) == "" {
		return
	}
	go func() {
		results, err := a.vm.Search(a.ctx, query)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.flashErr("search", err)
				return
			}
			a.search.Update(results)
			a.app.SetFocus(a.search.Results())
		})
	}()
}

func (a *App) findConversation(query string) (conversation.Conversation, bool) {
	all := a.vm.Conversations()
	if c, ok := conversation.Find(all, query); ok {
		return c, true
	}
	if matches := conversation.Filter(all, query); len(matches) > 0 {
		return matches[0], true
	}
	return conversation.Conversation{}, false
}

// runCommand executes a canonical command. Mutations run off the UI goroutine.
func (a *App) runCommand(cmd Command) {
	if cmd.NeedsConversation() && a.vm.SelectedKey() == "" {
		a.vm.Flash.Set(model.FlashWarn, "open a conversation first", flashDuration)
		a.render()
		return
	}

	switch cmd.Name {
	case "quit":
		a.app.Stop()
	case "help":
		a.push(pageHelp)
	case "refresh":
		a.refreshNow()
	case "search":
		a.push(pageSearch)
		a.search.Input().SetText(cmd.Args)
		a.runSearch(cmd.Args)
	case "chat":
		if c, ok := a.findConversation(cmd.Args); ok {
			a.openConversation(c.ContactKey)
		} else {
			a.openConversation(cmd.Args)
		}
	case "pair":
		a.push(pageAuth)
		a.startPairing()
	case "logout":
		go func() {
			if err := a.op.Logout(a.ctx); err != nil {
				a.logger.Warn("logout failed", zap.Error(err))
			}
			a.loggedOut.Store(true)
			a.app.Stop()
		}()
	case "note":
		rec := a.vm.Record()
		if rec == nil || rec.ID == 0 {
			a.vm.Flash.Set(model.FlashWarn, "conversation has no record yet", flashDuration)
			a.render()
			return
		}
		a.mutate("note", func() error {
			note, err := a.op.AddNote(a.ctx, rec.ID, cmd.Args)
			if err == nil {
				a.app.QueueUpdateDraw(func() { a.notes = append(a.notes, *note) })
			}
			return err
		}, "Note added")
	case "bot":
		a.mutate("bot", func() error {
			rec := a.vm.Record()
			if rec != nil && (cmd.Args == "on" && rec.BotEnabled || cmd.Args == "off" && !rec.BotEnabled) {
				return nil
			}
			return a.vm.ToggleBot(a.ctx)
		}, "Bot updated")
	case "assign":
		a.mutate("assign", func() error { return a.vm.Assign(a.ctx, cmd.Args) }, "Assigned")
	case "release":
		a.mutate("release", func() error { return a.vm.Release(a.ctx) }, "Released")
	case "status":
		a.mutate("status", func() error { return a.vm.SetStatus(a.ctx, cmd.Args) }, "Status set to "+cmd.Args)
	case "tags":
		a.mutate("tags", func() error { return a.vm.SetTags(a.ctx, cmd.Tags()) }, "Tags updated")
	}
}

func (a *App) mutate(op string, fn func() error, done string) {
	go func() {
		err := fn()
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.flashErr(op, err)
				return
			}
			a.vm.Flash.Set(model.FlashInfo, done, flashDuration)
			a.render()
		})
	}()
}

// startPairing asks the daemon to pair and polls the latest QR code while the pairing page
// is shown.
func (a *App) startPairing() {
	if !a.authShown.CompareAndSwap(false, true) {
		return
	}
	a.auth.ShowMessage("Starting pairing...")
	go func() {
		defer a.authShown.Store(false)
		if err := a.op.Pair(a.ctx); err != nil {
			a.app.QueueUpdateDraw(func() { a.auth.ShowMessage("Pairing failed: " + err.Error()) })
			return
		}
		ticker := time.NewTicker(qrPollInterval)
		defer ticker.Stop()
		for {
			done := a.showQR()
			if done {
				return
			}
			select {
			case <-ticker.C:
			case <-a.ctx.Done():
				return
			}
			if !a.authShown.Load() {
				return
			}
		}
	}()
}

func (a *App) showQR() bool {
	qr, err := a.op.LastQR(a.ctx)
	if err != nil {
		if !crmerr.IsKind(err, crmerr.NotFound) {
			a.app.QueueUpdateDraw(func() { a.auth.ShowMessage("QR unavailable: " + err.Error()) })
		}
		return false
	}
	switch qr.Type {
	case "qr_code":
		a.app.QueueUpdateDraw(func() { a.auth.ShowQR(qr.QRCode) })
	case "authenticated":
		a.app.QueueUpdateDraw(func() { a.auth.ShowMessage("Authenticated. Connecting...") })
		return true
	default:
		msg := qr.Message
		if msg == "" {
			msg = "Pairing ended: " + qr.Type
		}
		a.app.QueueUpdateDraw(func() { a.auth.ShowMessage(msg + "\n\nPress p to retry.") })
		return true
	}
	return false
}
