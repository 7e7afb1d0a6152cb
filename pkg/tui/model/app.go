package model

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/logpipe"
	"github.com/modoterra/jukedash/pkg/metrics"
	"github.com/modoterra/jukedash/pkg/store"
	"github.com/modoterra/jukedash/pkg/stream"
)

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneScopes Pane = iota
	PaneDetail
	PaneLogs
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeEditor
	ModeConfirmLeave
)

// Backend performs the dashboard's write operations. *api.Client
// satisfies it.
type Backend interface {
	Control(ctx context.Context, guildID string, action core.ControlAction) error
	LeaveGuild(ctx context.Context, guildID string) error
	GuildSettings(ctx context.Context, guildID string) (core.GuildSettings, error)
	UpdateGuildSettings(ctx context.Context, guildID string, patch core.GuildSettingsPatch) error
	GlobalSettings(ctx context.Context) (core.GlobalSettings, error)
	UpdateGlobalSettings(ctx context.Context, s core.GlobalSettings) error
}

// Feed is the source of log deliveries. *stream.Selector satisfies it.
type Feed interface {
	Deliveries() <-chan core.Delivery
	Health() stream.Health
}

// Options configures the app.
type Options struct {
	Backend         Backend
	Store           *store.Store
	Feed            Feed
	BufferSize      int
	SeenKeys        int
	Autoscroll      bool
	ScrollThreshold int
	RefreshInterval time.Duration
	Metrics         *metrics.Pipeline
	Server          string
	Logger          *slog.Logger
}

// maxBatch caps how many deliveries are applied per update.
const maxBatch = 256

// App is the root Bubble Tea model.
type App struct {
	backend Backend
	store   *store.Store
	feed    Feed
	metrics *metrics.Pipeline
	logger  *slog.Logger
	server  string

	// Logs
	buffer     *logpipe.Buffer
	autoscroll *logpipe.Autoscroll
	viewport   viewport.Model
	visible    int
	logScope   core.Scope
	feedClosed bool

	// Refresh
	refreshEvery time.Duration
	lastRefresh  time.Time
	refreshing   bool
	now          time.Time

	// UI
	selectedIdx       int
	activePane        Pane
	mode              Mode
	search            textinput.Model
	showNotifications bool
	width             int
	height            int

	editor      *EditorModel
	leaveTarget core.Guild

	statusMsg string
}

// New creates the TUI model.
func New(opts Options) App {
	si := textinput.New()
	si.Placeholder = "search guilds..."
	si.CharLimit = 64

	if opts.BufferSize <= 0 {
		opts.BufferSize = logpipe.DefaultCapacity
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return App{
		backend:      opts.Backend,
		store:        opts.Store,
		feed:         opts.Feed,
		metrics:      opts.Metrics,
		logger:       logger,
		server:       opts.Server,
		buffer:       logpipe.NewBuffer(opts.BufferSize, opts.SeenKeys),
		autoscroll:   logpipe.NewAutoscroll(opts.Autoscroll, opts.ScrollThreshold),
		viewport:     viewport.New(0, 0),
		logScope:     opts.Store.Scope.Get(),
		refreshEvery: opts.RefreshInterval,
		refreshing:   true, // Init starts the first refresh
		now:          time.Now(),
		search:       si,
		activePane:   PaneScopes,
		mode:         ModeNormal,
	}
}

// Init starts the refresh loop and the log feed.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("jukedash"),
		refreshCmd(a.store),
		waitDeliveriesCmd(a.feed),
		waitChangesCmd(a.store),
		tickCmd(),
	)
}

// tickMsg drives the periodic refresh and the status bar clock.
type tickMsg time.Time

// deliveriesMsg carries a batch of log deliveries in arrival order.
type deliveriesMsg []core.Delivery

// feedClosedMsg reports that the delivery channel closed.
type feedClosedMsg struct{}

// storeChangedMsg reports that some store cell changed.
type storeChangedMsg struct{}

// refreshedMsg carries the outcome of a store refresh.
type refreshedMsg struct{ err error }

// settingsLoadedMsg opens the settings editor.
type settingsLoadedMsg struct {
	guild    *core.Guild
	settings core.GuildSettings
	global   core.GlobalSettings
}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

// actionResultMsg carries the result of an action.
type actionResultMsg struct{ msg string }

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitDeliveriesCmd(feed Feed) tea.Cmd {
	if feed == nil {
		return nil
	}
	ch := feed.Deliveries()
	return func() tea.Msg {
		d, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		batch := deliveriesMsg{d}
		for len(batch) < maxBatch {
			select {
			case d, ok := <-ch:
				if !ok {
					return batch
				}
				batch = append(batch, d)
			default:
				return batch
			}
		}
		return batch
	}
}

func waitChangesCmd(s *store.Store) tea.Cmd {
	ch := s.Changes()
	return func() tea.Msg {
		<-ch
		return storeChangedMsg{}
	}
}

func refreshCmd(s *store.Store) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return refreshedMsg{err: s.Refresh(ctx)}
	}
}

func controlCmd(b Backend, g core.Guild, action core.ControlAction) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.Control(ctx, g.ID, action); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{msg: string(action) + " → " + g.Name}
	}
}

func leaveCmd(b Backend, g core.Guild) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.LeaveGuild(ctx, g.ID); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{msg: "left " + g.Name}
	}
}

func loadSettingsCmd(b Backend, g *core.Guild) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if g != nil {
			s, err := b.GuildSettings(ctx, g.ID)
			if err != nil {
				return errorMsg{err}
			}
			return settingsLoadedMsg{guild: g, settings: s}
		}
		s, err := b.GlobalSettings(ctx)
		if err != nil {
			return errorMsg{err}
		}
		return settingsLoadedMsg{global: s}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a = a.resizeLogs()
		return a, nil

	case tickMsg:
		a.now = time.Time(msg)
		if !a.refreshing && a.now.Sub(a.lastRefresh) >= a.refreshEvery {
			a.refreshing = true
			return a, tea.Batch(tickCmd(), refreshCmd(a.store))
		}
		return a, tickCmd()

	case deliveriesMsg:
		a = a.applyDeliveries(msg)
		return a, waitDeliveriesCmd(a.feed)

	case feedClosedMsg:
		a.feedClosed = true
		return a, nil

	case storeChangedMsg:
		if scope := a.store.Scope.Get(); scope != a.logScope {
			a = a.setLogScope(scope)
		}
		if n := len(a.scopeItems()); a.selectedIdx >= n {
			a.selectedIdx = max(0, n-1)
		}
		return a, waitChangesCmd(a.store)

	case refreshedMsg:
		a.refreshing = false
		a.lastRefresh = a.now
		if msg.err != nil {
			a.logger.Warn("refresh failed", "err", msg.err)
		}
		return a, nil

	case settingsLoadedMsg:
		if msg.guild != nil {
			a.editor = NewGuildSettingsEditor(msg.guild.ID, msg.guild.Name, msg.settings)
		} else {
			a.editor = NewGlobalSettingsEditor(msg.global)
		}
		a.mode = ModeEditor
		a.statusMsg = ""
		return a, textinput.Blink

	case actionResultMsg:
		a.statusMsg = msg.msg
		a.refreshing = true
		return a, refreshCmd(a.store)

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		a.logger.Warn("action failed", "err", msg.err)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Search mode
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			return a, nil
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			a.selectedIdx = 0
			return a, cmd
		}
	}

	// Editor mode
	if a.mode == ModeEditor && a.editor != nil {
		return a.editor.HandleKey(a, msg)
	}

	// Leave confirmation mode
	if a.mode == ModeConfirmLeave {
		target := a.leaveTarget
		a.mode = ModeNormal
		a.leaveTarget = core.Guild{}
		switch msg.String() {
		case "y", "Y":
			a.statusMsg = "leaving " + target.Name + "..."
			return a, leaveCmd(a.backend, target)
		default:
			a.statusMsg = "leave cancelled"
			return a, nil
		}
	}

	if a.activePane == PaneLogs {
		if m, cmd, ok := a.handleLogKey(msg); ok {
			return m, cmd
		}
	}

	// Normal mode
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.activePane == PaneScopes {
			a.selectedIdx = min(a.selectedIdx+1, max(0, len(a.scopeItems())-1))
		}
	case "k", "up":
		if a.activePane == PaneScopes && a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "enter":
		if a.activePane == PaneScopes {
			items := a.scopeItems()
			if a.selectedIdx < len(items) {
				a.store.SetScope(items[a.selectedIdx].scope)
				a = a.setLogScope(a.store.Scope.Get())
			}
		}

	case "tab":
		a.activePane = (a.activePane + 1) % 3
	case "shift+tab":
		a.activePane = (a.activePane + 2) % 3

	case "/":
		a.mode = ModeSearch
		a.activePane = PaneScopes
		a.search.Focus()
		return a, textinput.Blink

	case "l":
		a.activePane = PaneLogs

	case "n":
		a.showNotifications = !a.showNotifications

	case "r":
		a.statusMsg = "refreshing..."
		a.refreshing = true
		return a, refreshCmd(a.store)

	case "p":
		return a.doControl(core.ActionPause)
	case "s":
		return a.doControl(core.ActionSkip)
	case "x":
		return a.doControl(core.ActionStop)

	case "e":
		if g, ok := a.targetGuild(); ok {
			a.statusMsg = "loading settings for " + g.Name + "..."
			return a, loadSettingsCmd(a.backend, &g)
		}
		a.statusMsg = "loading global settings..."
		return a, loadSettingsCmd(a.backend, nil)

	case "L":
		if g, ok := a.targetGuild(); ok {
			a.leaveTarget = g
			a.mode = ModeConfirmLeave
			a.statusMsg = "Leave " + g.Name + "? (y/n)"
		} else {
			a.statusMsg = "select a guild first"
		}
	}

	return a, nil
}

func (a App) doControl(action core.ControlAction) (tea.Model, tea.Cmd) {
	g, ok := a.targetGuild()
	if !ok {
		a.statusMsg = "select a guild first"
		return a, nil
	}
	a.statusMsg = string(action) + " " + g.Name + "..."
	return a, controlCmd(a.backend, g, action)
}

// scopeItem is one row of the scope list.
type scopeItem struct {
	scope core.Scope
	guild *core.Guild
}

func (a App) scopeItems() []scopeItem {
	items := []scopeItem{{scope: core.GlobalScope}}
	q := strings.ToLower(a.search.Value())
	for _, g := range a.store.Guilds.Get() {
		if q != "" && !strings.Contains(strings.ToLower(g.Name), q) && !strings.Contains(g.ID, q) {
			continue
		}
		items = append(items, scopeItem{scope: g.Scope(), guild: &g})
	}
	return items
}

// targetGuild is the highlighted guild, or the guild of the active scope
// when the global row is highlighted.
func (a App) targetGuild() (core.Guild, bool) {
	items := a.scopeItems()
	if a.selectedIdx < len(items) && items[a.selectedIdx].guild != nil {
		return *items[a.selectedIdx].guild, true
	}
	scope := a.store.Scope.Get()
	if scope.IsGlobal() {
		return core.Guild{}, false
	}
	if g, ok := a.store.Guild(scope.GuildID()); ok {
		return g, true
	}
	return core.Guild{ID: scope.GuildID(), Name: scope.GuildID()}, true
}
