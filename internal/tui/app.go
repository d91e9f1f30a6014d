// Package tui is the terminal client: a contact list, the open
// conversation and a ':' command prompt over the sync coordinator.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/tui/keys"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/matheus3301/chatsync/internal/tui/views"
	"github.com/rivo/tview"
)

// Page names.
const (
	pageContacts = "contacts"
	pageThread   = "thread"
	pageDetails  = "details"
	pageHelp     = "help"
	pageReplies  = "replies"
)

const redrawInterval = time.Second

// Options describes the client shown in the header.
type Options struct {
	Instance string
	Server   string
	Self     string
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	registry *keys.Registry
	flash    *ui.FlashModel
	opts     Options

	pages    *ui.Pages
	body     *tview.Flex
	info     *ui.InstanceInfo
	logo     *ui.Logo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	flashBar *ui.FlashBar
	prompt   *ui.Prompt

	contacts *views.ConversationList
	thread   *views.MessageThread
	details  *views.ConversationInfo
	help     *views.HelpView
	replies  *views.ReplyPicker

	components  map[string]ui.Component
	promptShown bool
	lastStatus  status.State

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		vm:       vm,
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(nil),
		opts:     opts,
		pages:    ui.NewPages(),
		info:     ui.NewInstanceInfo(theme),
		logo:     ui.NewLogo(theme),
		menu:     ui.NewMenu(theme),
		crumbs:   ui.NewCrumbs(theme),
		flashBar: ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		contacts: views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		details:  views.NewConversationInfo(theme),
		help:     views.NewHelpView(theme),
		replies:  views.NewReplyPicker(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.components = map[string]ui.Component{
		pageContacts: a.contacts,
		pageThread:   a.thread,
		pageDetails:  a.details,
		pageHelp:     a.help,
		pageReplies:  a.replies,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Description: "Filter", Visible: true,
		Handler: func() {
			a.pages.Reset(pageContacts)
			a.showPrompt(ui.PromptFilter)
		},
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Description: "Help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "Quit", Visible: true,
		Handler: a.Stop,
	})

	a.registry.AddPage(pageContacts, &keys.Action{
		Key: tcell.KeyRune, Rune: '0',
		Description: "All",
		Handler: func() { a.contacts.SetFilter("") },
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddPage(pageContacts, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if id := a.contacts.ContactByIndex(n); id != "" {
					a.openContact(id)
				}
			},
		})
	}

	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Handler: func() { a.push(pageDetails) },
	})
}

func (a *App) setupCallbacks() {
	a.contacts.SetSelectedFunc(func(row, _ int) {
		if id := a.contacts.ContactByIndex(row); id != "" {
			a.openContact(id)
		}
	})

	composer := a.thread.Composer()
	composer.SetOnSend(func(text string) {
		a.thread.Follow()
		go func() { _ = a.vm.Send(a.ctx, text, "") }()
	})
	composer.SetOnChange(a.vm.Keystroke)
	composer.SetOnBlur(a.vm.Blur)
	composer.SetOnEscape(func() { a.app.SetFocus(a.thread.Messages()) })

	a.thread.SetOnLoadMore(func() {
		go func() { _ = a.vm.LoadMore(a.ctx) }()
	})
	a.thread.SetOnVisible(a.vm.MessageVisible)

	a.replies.SetOnPick(func(text string) {
		a.pages.Pop()
		composer.SetText(text)
		a.app.SetFocus(composer)
	})

	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if a.promptShown && mode == ui.PromptFilter {
			a.contacts.SetFilter(text)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.contacts.SetFilter(text)
			return
		}
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.contacts.SetFilter("")
		}
		a.hidePrompt()
	})

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		a.updateMenu()
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageContacts, a.contacts, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageDetails, a.details, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.AddPage(pageReplies, a.replies, true, false)

	header := tview.NewFlex().
		AddItem(a.info, 40, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 16, 0, false)

	a.body = tview.NewFlex().SetDirection(tview.FlexRow)
	a.body.AddItem(a.pages, 0, 1, true)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.body, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.handleKey)
	a.pages.Reset(pageContacts)
	a.app.SetFocus(a.contacts)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	// Text inputs handle their own keys, Esc included.
	switch a.app.GetFocus().(type) {
	case *ui.Prompt, *views.Composer, *tview.InputField:
		return event
	}

	page := a.pages.Current()
	if event.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if a.registry.HandleEvent(page, event) {
		return nil
	}
	return event
}

// push shows page and focuses it.
func (a *App) push(page string) {
	a.pages.Push(page)
	a.focusCurrent()
}

func (a *App) back() {
	if a.pages.Pop() != "" {
		a.focusCurrent()
	}
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageContacts:
		a.app.SetFocus(a.contacts)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageDetails:
		a.app.SetFocus(a.details)
	case pageHelp:
		a.app.SetFocus(a.help)
	case pageReplies:
		a.app.SetFocus(a.replies)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	if !a.promptShown {
		a.body.AddItem(a.prompt, 3, 0, false)
		a.promptShown = true
	}
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	if a.promptShown {
		a.body.RemoveItem(a.prompt)
		a.promptShown = false
	}
	a.focusCurrent()
}

func (a *App) updateMenu() {
	page := a.pages.Current()
	var hints []ui.MenuHint
	if c, ok := a.components[page]; ok {
		hints = append(hints, c.Hints()...)
	}
	for _, h := range a.registry.Hints(page) {
		hints = append(hints, ui.MenuHint{Key: h.Key, Description: h.Description})
	}
	a.menu.Update(hints)
}

func (a *App) openContact(id string) {
	a.crumbs.SetLabel(pageThread, "")
	a.push(pageThread)
	go func() { _ = a.vm.OpenConversation(a.ctx, id) }()
}

func (a *App) runCommand(cmd Command) {
	name, force := cmd.Canonical()
	switch name {
	case CmdChat:
		go func() {
			if _, err := a.vm.OpenByName(a.ctx, cmd.Args); err != nil {
				a.flash.Err(err)
			}
		}()
		a.push(pageThread)
	case CmdImage:
		path, caption, _ := strings.Cut(cmd.Args, " ")
		if path == "" {
			a.flash.Warn("usage: :image <path> [caption]")
			return
		}
		if a.vm.Snapshot().Conversation == "" {
			a.flash.Warn("open a conversation first")
			return
		}
		a.thread.Follow()
		go func() {
			if err := a.vm.SendImage(a.ctx, path, strings.TrimSpace(caption)); err != nil {
				a.flash.Err(err)
			}
		}()
	case CmdMore:
		go func() { _ = a.vm.LoadMore(a.ctx) }()
	case CmdReply:
		a.suggestReplies(force)
	case CmdRefresh:
		go func() {
			if _, err := a.vm.LoadSidebar(a.ctx, true); err == nil {
				a.flash.Info("contacts refreshed")
			}
		}()
	case CmdLogout:
		a.vm.Logout()
	case CmdHelp:
		a.push(pageHelp)
	case CmdQuit:
		a.Stop()
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
}

func (a *App) suggestReplies(regenerate bool) {
	m, ok := a.vm.NewestFromPartner()
	if !ok {
		a.flash.Warn("no message to reply to")
		return
	}
	a.flash.Info("generating replies...")
	go func() {
		r, err := a.vm.GenerateReplies(a.ctx, m.ID, regenerate)
		if err != nil {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.replies.Update(r)
			a.push(pageReplies)
		})
	}()
}

// render copies the latest view into every widget.
func (a *App) render() {
	v := a.vm.Snapshot()

	a.contacts.Update(v)
	a.details.Update(v)
	if a.pages.Current() == pageThread {
		a.thread.Update(v)
	}
	if v.Partner.ID != "" {
		a.crumbs.SetLabel(pageThread, model.DisplayName(v.Partner))
		a.crumbs.Update(a.pages.Stack())
	}

	online := 0
	for _, e := range v.Sidebar {
		if v.IsOnline(e.ID) {
			online++
		}
	}
	a.info.Update(&ui.InstanceData{
		Instance: a.opts.Instance,
		Server:   a.opts.Server,
		User:     a.opts.Self,
		Status:   string(v.Status),
		Contacts: len(v.Sidebar),
		Online:   online,
	})
	a.logo.SetState(v.Status)

	if v.Status != a.lastStatus {
		switch v.Status {
		case status.LoggedOut:
			a.flash.Warn("logged out; restart to sign in again")
			a.pages.Reset(pageContacts)
			a.focusCurrent()
		case status.Reconnecting:
			a.flash.Warn("connection lost, reconnecting...")
		case status.Ready:
			if a.lastStatus == status.Connecting || a.lastStatus == status.Syncing {
				a.flash.Info("connected")
			}
		}
		a.lastStatus = v.Status
	}
	a.flashBar.Update(a.flash.Current())
}

// Run starts the TUI application.
func (a *App) Run() error {
	a.vm.Watch(a.ctx)
	a.render()
	a.updateMenu()
	a.startRefreshLoop()
	return a.app.Run()
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(redrawInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-a.vm.RefreshCh():
				a.app.QueueUpdateDraw(a.render)
			case err := <-a.vm.Errors():
				a.flash.Err(err)
			case <-a.flash.Watch():
				a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
			case <-ticker.C:
				// Expire stale flash messages.
				a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
