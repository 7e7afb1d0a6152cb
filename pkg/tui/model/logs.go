package model

import (
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/logpipe"
)

// layout holds pane sizes derived from the window.
type layout struct {
	listW, detailW, mainH int
	logW, logH            int
}

func (a App) layout() layout {
	const statusBarH = 2
	logH := max(a.height/3, 6)
	listW := a.width*2/5 - 2
	return layout{
		listW:   listW,
		detailW: a.width - listW - 4,
		mainH:   max(a.height-logH-statusBarH-4, 3),
		logW:    a.width - 4,
		logH:    logH,
	}
}

// resizeLogs keeps a reader who scrolled up at their offset; only a view
// that was following the tail stays pinned to the bottom.
func (a App) resizeLogs() App {
	before := a.position()
	follow := a.autoscroll.ShouldFollow(before, a.visible == 0)

	l := a.layout()
	a.viewport.Width = max(l.logW-2, 1)
	a.viewport.Height = l.logH
	a = a.renderLogContent()
	if follow {
		a.viewport.GotoBottom()
	} else {
		a.viewport.SetYOffset(before.Offset)
	}
	return a
}

func (a App) position() logpipe.Position {
	return logpipe.Position{
		Offset: a.viewport.YOffset,
		Height: a.viewport.Height,
		Total:  a.visible,
	}
}

// applyDeliveries feeds a batch through the buffer and keeps the viewport
// either pinned to the bottom or on the rows the user was reading.
func (a App) applyDeliveries(batch []core.Delivery) App {
	before := a.position()
	wasEmpty := a.buffer.Len() == 0

	added, evictedVisible := 0, 0
	for _, d := range batch {
		r := a.buffer.Accept(d.Event, d.Origin)
		a.metrics.Delivered(d.Origin, !r.Added)
		if !r.Added {
			continue
		}
		added++
		if r.Evicted {
			a.metrics.Evicted()
			if r.EvictedEntry.Event.InScope(a.logScope) {
				evictedVisible++
			}
		}
	}
	a.metrics.Buffered(a.buffer.Len())
	if added == 0 {
		return a
	}

	a = a.renderLogContent()
	if a.autoscroll.ShouldFollow(before, wasEmpty) {
		a.viewport.GotoBottom()
	} else {
		a.viewport.SetYOffset(max(before.Offset-evictedVisible, 0))
	}
	return a
}

func (a App) setLogScope(scope core.Scope) App {
	a.logScope = scope
	a = a.renderLogContent()
	if a.autoscroll.Enabled() {
		a.viewport.GotoBottom()
	} else {
		a.viewport.SetYOffset(a.viewport.YOffset)
	}
	return a
}

func (a App) renderLogContent() App {
	width := a.viewport.Width
	var lines []string
	for _, e := range a.buffer.Entries() {
		if !e.Event.InScope(a.logScope) {
			continue
		}
		lines = append(lines, formatLogLine(e, a.logScope.IsGlobal(), width))
	}
	a.visible = len(lines)
	a.viewport.SetContent(strings.Join(lines, "\n"))
	return a
}

// handleLogKey handles keys that only apply to the focused log pane.
func (a App) handleLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case " ":
		if a.autoscroll.Toggle() {
			a.viewport.GotoBottom()
			a.statusMsg = "autoscroll on"
		} else {
			a.statusMsg = "autoscroll off"
		}
		return a, nil, true
	case "g", "home":
		a.viewport.GotoTop()
		return a, nil, true
	case "G", "end":
		a.viewport.GotoBottom()
		return a, nil, true
	case "j", "k", "up", "down", "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd, true
	}
	return a, nil, false
}

var levelStyles = map[core.Level]lipgloss.Style{
	core.LevelDebug:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	core.LevelInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	core.LevelWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	core.LevelError:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	core.LevelCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
}

// formatLogLine renders one entry on a single row no wider than width.
func formatLogLine(e logpipe.Entry, showGuild bool, width int) string {
	ev := e.Event
	sev := ev.Severity()

	prefix := ev.Time().Format("15:04:05") + " "
	tag := sev.Short()
	var ctx string
	if showGuild && ev.GuildID != nil {
		ctx += "[" + strconv.FormatInt(*ev.GuildID, 10) + "] "
	}
	if ev.Logger != "" {
		ctx += ev.Logger + ": "
	}
	msg := strings.ReplaceAll(ev.Message, "\n", " ⏎ ")

	used := len([]rune(prefix)) + len(tag) + 1 + len([]rune(ctx))
	if width > 0 {
		msg = truncate(msg, max(width-used, 1))
	}

	style, ok := levelStyles[sev]
	if !ok {
		style = lipgloss.NewStyle()
	}
	return dimStyle.Render(prefix) + style.Render(tag) + " " + dimStyle.Render(ctx) + msg
}
