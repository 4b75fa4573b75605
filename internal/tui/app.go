package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	chatapp "github.com/matheus3301/chatline/internal/app"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/selection"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/tui/keys"
	"github.com/matheus3301/chatline/internal/tui/model"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/matheus3301/chatline/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// Page names.
const (
	pageContacts = "Contacts"
	pageChat     = "Chat"
	pageDetails  = "Details"
	pageShare    = "Share"
	pageHelp     = "Help"
)

const (
	headerHeight = 7
	promptHeight = 3
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	h        *chatapp.Handle
	profile  string
	started  time.Time
	theme    *ui.Theme
	vm       *model.ViewModel
	registry *keys.Registry
	logger   *zap.Logger

	root     *tview.Flex
	pages    *ui.Pages
	info     *ui.ProfileInfo
	menu     *ui.Menu
	logo     *ui.Logo
	crumbs   *ui.Crumbs
	prompt   *ui.Prompt
	flashBar *ui.FlashBar

	contacts *views.ContactList
	thread   *views.MessageThread
	details  *views.ContactInfo
	share    *views.ShareView
	help     *views.HelpView

	components map[string]ui.Component

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application on top of a started client.
func NewApp(h *chatapp.Handle, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		h:        h,
		profile:  profile,
		started:  time.Now(),
		theme:    theme,
		vm:       model.NewViewModel(h.Loop.Snapshot(), h.Controller.Location()),
		registry: keys.NewRegistry(),
		logger:   h.Logger.Named("tui"),
		pages:    ui.NewPages(),
		info:     ui.NewProfileInfo(theme),
		menu:     ui.NewMenu(theme),
		logo:     ui.NewLogo(theme),
		crumbs:   ui.NewCrumbs(theme),
		prompt:   ui.NewPrompt(theme),
		flashBar: ui.NewFlashBar(theme),
		contacts: views.NewContactList(theme),
		thread:   views.NewMessageThread(theme, h.Renderer),
		details:  views.NewContactInfo(theme),
		share:    views.NewShareView(theme),
		help:     views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}

	a.components = map[string]ui.Component{
		pageContacts: a.contacts,
		pageChat:     a.thread,
		pageDetails:  a.details,
		pageShare:    a.share,
		pageHelp:     a.help,
	}
	for _, c := range a.components {
		c.Init()
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("command", &keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("filter", &keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Description: "Filter", Visible: true,
		Handler: func() {
			a.show(pageContacts)
			a.showPrompt(ui.PromptFilter)
		},
	})
	a.registry.AddGlobal("help", &keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Description: "Help", Visible: true,
		Handler: func() { a.show(pageHelp) },
	})
	a.registry.AddGlobal("quit", &keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "Quit", Visible: true,
		Handler: a.Stop,
	})

	for i := 1; i <= 9; i++ {
		n := i
		a.registry.AddView(pageContacts, fmt.Sprintf("jump%d", n), &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if id := a.contacts.ContactByIndex(n); id != "" {
					a.openContact(id)
				}
			},
		})
	}
	a.registry.AddView(pageContacts, "clear", &keys.Action{
		Key: tcell.KeyRune, Rune: '0',
		Handler: func() { a.contacts.ClearFilter() },
	})

	a.registry.AddView(pageChat, "compose", &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	older := func() { a.post(a.h.Loop.LoadOlder) }
	a.registry.AddView(pageChat, "older", &keys.Action{
		Key: tcell.KeyRune, Rune: 'o',
		Handler: older,
	})
	a.registry.AddView(pageChat, "older-page", &keys.Action{
		Key: tcell.KeyPgUp, Label: "PgUp",
		Handler: func() {
			row, _ := a.thread.Messages().GetScrollOffset()
			if row == 0 {
				older()
				return
			}
			a.thread.Messages().ScrollTo(max(row-10, 0), 0)
		},
	})
	a.registry.AddView(pageChat, "reload", &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Handler: func() { a.post(a.h.Loop.Reload) },
	})
	a.registry.AddView(pageChat, "details", &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Handler: a.showDetails,
	})
	share := func() { a.showShare(a.vm.Snapshot().ActiveID) }
	a.registry.AddView(pageChat, "share", &keys.Action{
		Key: tcell.KeyRune, Rune: 's',
		Handler: share,
	})
	a.registry.AddView(pageDetails, "share", &keys.Action{
		Key: tcell.KeyRune, Rune: 's',
		Handler: share,
	})
}

func (a *App) setupCallbacks() {
	a.contacts.SetSelectedFunc(func(row, _ int) {
		if id := a.contacts.ContactByIndex(row); id != "" {
			a.openContact(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go a.send(text, nil)
	})

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		a.updateMenu()
	})

	a.prompt.SetChangedFunc(func(text string) {
		if a.prompt.Mode() == ui.PromptFilter {
			a.contacts.SetFilter(text)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptCommand {
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c, true, false)
	}
	a.pages.Reset(pageContacts)

	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(a.logo, 22, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerHeight, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.capture)
}

func (a *App) capture(event *tcell.EventKey) *tcell.EventKey {
	focused := a.app.GetFocus()
	if focused == a.prompt.InputField {
		return event
	}
	if focused == a.thread.Composer() {
		if event.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		return event
	}

	if event.Key() == tcell.KeyEscape {
		if a.pages.Current() == pageContacts && a.contacts.Filter() != "" {
			a.contacts.ClearFilter()
			return nil
		}
		a.back()
		return nil
	}

	if a.registry.HandleEvent(a.pages.Current(), event) {
		return nil
	}
	return event
}

// show pushes page unless it is already on top and focuses it.
func (a *App) show(page string) {
	if a.pages.Current() == page {
		a.focus()
		return
	}
	if page == pageChat && a.pages.Current() != pageContacts {
		// A chat is always opened from the roster.
		a.pages.Reset(pageContacts)
	}
	a.pages.Push(page)
	a.components[page].Start()
	a.focus()
}

// replace shows page in place of the current top page.
func (a *App) replace(page string) {
	if top := a.pages.Current(); top != page {
		a.components[top].Stop()
		a.pages.Replace(page)
		a.components[page].Start()
	}
	a.focus()
}

func (a *App) focus() {
	if c, ok := a.components[a.pages.Current()]; ok {
		a.app.SetFocus(c.FocusTarget())
	}
}

func (a *App) back() {
	if top := a.pages.Pop(); top != "" {
		a.components[top].Stop()
	}
	a.focus()
}

func (a *App) updateMenu() {
	var hints []ui.MenuHint
	if c, ok := a.components[a.pages.Current()]; ok {
		hints = append(hints, c.Hints()...)
	}
	hints = append(hints, a.registry.Hints(a.pages.Current())...)
	a.menu.Update(hints)
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focus()
}

// post runs a loop request off the UI goroutine; the queue may be full.
func (a *App) post(fn func() error) {
	go func() {
		if err := fn(); err != nil {
			a.vm.Flash.Err(err)
		}
	}()
}

func (a *App) openContact(id string) {
	go func() {
		if err := a.h.Controller.Click(id); err != nil {
			a.logger.Warn("open contact failed", zap.String("contact", id), zap.Error(err))
			a.vm.Flash.Err(err)
			return
		}
		a.app.QueueUpdateDraw(func() { a.show(pageChat) })
	}()
}

func (a *App) send(text string, att *chat.Attachment) {
	if _, err := a.h.Loop.Send(a.ctx, text, att); err != nil {
		a.logger.Debug("send rejected", zap.Error(err))
		a.vm.Flash.Err(err)
	}
}

func (a *App) attach(path string) {
	if a.vm.Snapshot().ActiveID == "" {
		a.vm.Flash.Warn("open a chat first")
		return
	}
	go func() {
		a.vm.Flash.Info("uploading " + path)
		att, err := a.h.API.UploadFile(a.ctx, path)
		if err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.send("", &att)
	}()
}

func (a *App) addFriend(username string) {
	go func() {
		if err := a.h.API.AddFriend(a.ctx, username); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info("friend request sent to " + username)
	}()
}

func (a *App) showDetails() {
	snap := a.vm.Snapshot()
	if snap.ActiveID == "" {
		return
	}
	a.details.Update(snap.Active, a.h.Controller.LinkFor(snap.ActiveID))
	a.show(pageDetails)
}

func (a *App) showShare(id string) {
	if id == "" {
		a.vm.Flash.Warn("open a chat first")
		return
	}
	name := id
	for _, c := range a.vm.Snapshot().Contacts {
		if c.ID == id {
			name = c.Name()
			break
		}
	}
	qr, err := a.h.Controller.ShareQR(id)
	if err != nil {
		a.share.ShowMessage("QR error: " + err.Error())
	} else {
		a.share.Show(name, qr, a.h.Controller.LinkFor(id))
	}
	if a.pages.Current() == pageDetails {
		// Esc from the share page returns to the chat, not the details.
		a.replace(pageShare)
		return
	}
	a.show(pageShare)
}

// findContact matches a contact by id or case-insensitive name.
func (a *App) findContact(query string) (chat.Contact, bool) {
	var partial *chat.Contact
	for _, c := range a.vm.Snapshot().Contacts {
		if c.ID == query || strings.EqualFold(c.Name(), query) {
			return c, true
		}
		if partial == nil && strings.Contains(strings.ToLower(c.Name()), strings.ToLower(query)) {
			cc := c
			partial = &cc
		}
	}
	if partial != nil {
		return *partial, true
	}
	return chat.Contact{}, false
}

func (a *App) runCommand(cmd Command) {
	if err := cmd.Validate(); err != nil {
		a.vm.Flash.Err(err)
		return
	}
	switch cmd.Name {
	case CmdChat:
		c, ok := a.findContact(cmd.Args)
		if !ok {
			a.vm.Flash.Warn("no contact matches " + cmd.Args)
			return
		}
		a.openContact(c.ID)
	case CmdAttach:
		a.attach(cmd.Args)
	case CmdAdd:
		a.addFriend(cmd.Args)
	case CmdOlder:
		a.post(a.h.Loop.LoadOlder)
	case CmdReload:
		a.post(a.h.Loop.Reload)
	case CmdLink:
		if loc := a.vm.Location(); loc != "" {
			a.vm.Flash.Set(loc, 15*time.Second)
		} else {
			a.vm.Flash.Warn("no chat selected")
		}
	case CmdQR:
		a.showShare(a.vm.Snapshot().ActiveID)
	case CmdHelp:
		a.show(pageHelp)
	case CmdQuit:
		a.Stop()
	}
}

func (a *App) refresh() {
	snap := a.vm.Snapshot()
	a.contacts.Update(snap.Contacts, snap.ActiveID)
	a.thread.Update(snap)
	a.crumbs.SetLabel(pageChat, a.thread.Name())
	if a.pages.Current() == pageDetails && snap.ActiveID != "" {
		a.details.Update(snap.Active, a.h.Controller.LinkFor(snap.ActiveID))
	}

	cfg := a.h.Config
	user := cfg.User.Username
	if user == "" {
		user = cfg.User.ID
	} else if cfg.User.ID != "" {
		user = fmt.Sprintf("%s (%s)", user, cfg.User.ID)
	}
	a.info.Update(&ui.ProfileData{
		Profile:  a.profile,
		User:     user,
		Server:   cfg.Server.BaseURL,
		Status:   string(a.vm.Status()),
		Contacts: len(snap.Contacts),
		Unread:   a.vm.Unread(),
		Uptime:   time.Since(a.started),
	})
	a.flashBar.Update(a.vm.Flash.GetMessage())
	a.updateMenu()
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
		case <-a.vm.Flash.Watch():
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
		a.app.QueueUpdateDraw(a.refresh)
	}
}

// Run attaches to the client's bus and blocks until the UI exits.
func (a *App) Run() error {
	stop := a.vm.Attach(a.h.Bus)
	defer stop()
	// The transport may have connected before the view model subscribed.
	a.vm.Apply(bus.Event{Kind: bus.KindTransport, Payload: status.StatusChange{To: a.h.Machine.Current()}})

	a.refresh()
	if id, err := selection.ParseLink(a.h.Controller.Location()); err == nil && id != "" {
		a.show(pageChat)
	}

	go a.refreshLoop()
	err := a.app.Run()
	a.cancel()
	return err
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
