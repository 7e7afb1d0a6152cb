package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/format"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	statusPlaying = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	// Editor overlay
	if a.mode == ModeEditor && a.editor != nil {
		editorView := a.editor.View(a.width - 4)
		return paneStyle.Width(a.width - 4).Height(a.height - 2).Render(editorView)
	}

	l := a.layout()

	list := a.renderScopes(l.listW, l.mainH)
	listPane := a.paneBox(PaneScopes, " Scopes ", list, l.listW, l.mainH)

	detail := a.renderDetail(l.detailW-2, l.mainH-1)
	detailPane := a.paneBox(PaneDetail, a.detailTitle(), detail, l.detailW, l.mainH)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)

	logPane := a.paneBox(PaneLogs, a.logTitle(), a.viewport.View(), l.logW, l.logH+1)

	return lipgloss.JoinVertical(lipgloss.Left, topRow, logPane, a.renderStatusBar())
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) scopeLabel(scope core.Scope) string {
	if scope.IsGlobal() {
		return "All servers"
	}
	if g, ok := a.store.Guild(scope.GuildID()); ok {
		return g.Name
	}
	return scope.GuildID()
}

func (a App) renderScopes(w, h int) string {
	items := a.scopeItems()
	active := a.store.Scope.Get()

	var b strings.Builder
	maxVisible := h - 2
	if a.mode == ModeSearch || a.search.Value() != "" {
		maxVisible -= 2
	}
	maxVisible = max(maxVisible, 1)
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(items) && i-start < maxVisible; i++ {
		it := items[i]
		indicator := dimStyle.Render("◆")
		name := "All servers"
		if it.guild != nil {
			indicator = playingIndicator(*it.guild)
			name = it.guild.Name
		}
		marker := " "
		if it.scope == active {
			marker = "»"
		}
		name = truncate(name, max(w-6, 1))
		line := fmt.Sprintf("%s%s %-*s", marker, indicator, max(w-6, 1), name)

		if i == a.selectedIdx && a.activePane == PaneScopes {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}
	if len(items) == 1 && a.search.Value() != "" {
		b.WriteString(dimStyle.Render("  no matching guilds") + "\n")
	}

	if a.mode == ModeSearch || a.search.Value() != "" {
		b.WriteString("\n" + a.search.View())
	}
	return b.String()
}

func playingIndicator(g core.Guild) string {
	switch {
	case g.IsPlaying:
		return statusPlaying.Render("♪")
	case g.QueueSize > 0:
		return statusWarn.Render("‖")
	default:
		return statusIdle.Render("○")
	}
}

func (a App) detailTitle() string {
	if a.showNotifications {
		return " Notifications "
	}
	return " " + a.scopeLabel(a.store.Scope.Get()) + " "
}

func (a App) renderDetail(w, h int) string {
	var lines []string
	if a.showNotifications {
		lines = a.notificationLines(w)
	} else {
		items := a.scopeItems()
		if a.selectedIdx < len(items) && items[a.selectedIdx].guild != nil {
			lines = guildLines(*items[a.selectedIdx].guild)
		} else {
			lines = statusLines(a.store.Status.Get())
		}
		lines = append(lines, "")
		lines = append(lines, a.analyticsLines()...)
	}

	if len(lines) > h {
		lines = lines[:max(h, 0)]
	}
	clip := lipgloss.NewStyle().MaxWidth(max(w, 1))
	for i, line := range lines {
		if lipgloss.Width(line) > w {
			lines[i] = clip.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func statusLines(s core.Status) []string {
	if s.Status == "" {
		return []string{dimStyle.Render("waiting for bot status...")}
	}
	st := statusPlaying.Render(s.Status)
	if s.Status != "online" {
		st = statusWarn.Render(s.Status)
	}
	return []string{
		fmt.Sprintf("Bot:      %s", st),
		fmt.Sprintf("Guilds:   %d   Voice: %d", s.Guilds, s.VoiceConnections),
		fmt.Sprintf("Latency:  %.0f ms", s.LatencyMs),
		fmt.Sprintf("CPU:      %.1f%%   RAM: %.1f%% (%.0f MB)", s.CPUPercent, s.RAMPercent, s.ProcessRAMMB),
		fmt.Sprintf("Uptime:   %s", format.Uptime(s.UptimeSeconds)),
	}
}

func guildLines(g core.Guild) []string {
	lines := []string{
		fmt.Sprintf("Name:     %s", g.Name),
		fmt.Sprintf("ID:       %s", dimStyle.Render(g.ID)),
		fmt.Sprintf("Members:  %d", g.MemberCount),
	}
	if np := g.NowPlaying(); np != "" {
		state := statusPlaying.Render("playing")
		if !g.IsPlaying {
			state = statusWarn.Render("paused")
		}
		lines = append(lines, fmt.Sprintf("State:    %s", state))
		lines = append(lines, fmt.Sprintf("Now:      %s (%s)", np, format.Duration(g.DurationSeconds)))
		if g.DiscoveryReason != "" {
			lines = append(lines, fmt.Sprintf("Why:      %s", dimStyle.Render(g.DiscoveryReason)))
		}
		if g.ForUser != "" {
			lines = append(lines, fmt.Sprintf("For:      %s", g.ForUser))
		}
	} else {
		lines = append(lines, fmt.Sprintf("State:    %s", statusIdle.Render("idle")))
	}
	lines = append(lines, fmt.Sprintf("Queue:    %d songs, %.0f min", g.QueueSize, g.QueueDuration))
	return lines
}

func (a App) analyticsLines() []string {
	an := a.store.Analytics.Get()
	if an.Error != "" {
		return []string{errorStyle.Render("analytics: " + an.Error)}
	}
	lines := []string{
		titleStyle.Render("Analytics"),
		fmt.Sprintf("Plays: %d   Songs: %d   Users: %d", an.TotalPlays, an.TotalSongs, an.TotalUsers),
	}

	if len(an.TopSongs) > 0 {
		lines = append(lines, "", dimStyle.Render("Top songs"))
		var peak float64
		for _, r := range an.TopSongs {
			if n, ok := r.Num("plays", "play_count", "count"); ok {
				peak = max(peak, n)
			}
		}
		for i, r := range an.TopSongs {
			if i == 5 {
				break
			}
			plays, _ := r.Num("plays", "play_count", "count")
			name := r.Str("title", "name")
			if artist := r.Str("artist", "artist_name"); artist != "" {
				name = artist + " – " + name
			}
			lines = append(lines, fmt.Sprintf(" %3.0f %-10s %s", plays, format.Bar(plays, peak, 10), name))
		}
	}

	if songs := a.store.Songs.Get(); len(songs) > 0 {
		lines = append(lines, "", dimStyle.Render("Recently played"))
		for i, s := range songs {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf(" %s – %s %s", s.ArtistName, s.Title, dimStyle.Render(format.Duration(s.DurationSeconds))))
		}
	}

	if lib := a.store.Library.Get(); len(lib) > 0 {
		lines = append(lines, "", dimStyle.Render(fmt.Sprintf("Library: %d tracks", len(lib))))
	}
	return lines
}

func (a App) notificationLines(w int) []string {
	ns := a.store.Notifications.Get()
	if len(ns) == 0 {
		return []string{dimStyle.Render("no notifications")}
	}
	var lines []string
	for i := len(ns) - 1; i >= 0; i-- {
		n := ns[i]
		lvl := levelStyles[core.ParseLevel(n.Level)].Render(core.ParseLevel(n.Level).Short())
		when := time.Unix(int64(n.CreatedAt), 0).Format("01-02 15:04")
		lines = append(lines, fmt.Sprintf("%s %s %s", dimStyle.Render(when), lvl, truncate(n.Message, max(w-16, 1))))
	}
	return lines
}

func (a App) logTitle() string {
	title := " Logs "
	if !a.logScope.IsGlobal() {
		title += dimStyle.Render("["+a.scopeLabel(a.logScope)+"]") + " "
	}
	if !a.autoscroll.Enabled() {
		title += statusWarn.Render("[MANUAL]") + " "
	}
	title += dimStyle.Render(fmt.Sprintf("%d/%d", a.visible, a.buffer.Cap())) + " "
	return title
}

func (a App) transportIndicator() string {
	if a.feed == nil {
		return dimStyle.Render("○ no feed")
	}
	h := a.feed.Health()
	var s string
	switch h.State {
	case core.TransportOpen:
		s = statusPlaying.Render("● live")
	case core.TransportConnecting:
		s = statusWarn.Render("◌ connecting")
	default:
		s = statusIdle.Render("○ polling")
	}
	if h.GaveUp {
		s = statusWarn.Render("○ poll only")
	}
	if a.feedClosed {
		s = errorStyle.Render("✖ stopped")
	}
	if h.Stale() {
		s += " " + errorStyle.Render("STALE")
	}
	if !h.LastContact.IsZero() {
		age := a.now.Sub(h.LastContact).Truncate(time.Second)
		s += dimStyle.Render(fmt.Sprintf(" %s ago", max(age, 0)))
	}
	return s
}

func (a App) renderStatusBar() string {
	left := a.transportIndicator() + dimStyle.Render(" │ "+a.server+" │ ")
	if a.autoscroll.Enabled() {
		left += dimStyle.Render("auto")
	} else {
		left += statusWarn.Render("manual")
	}
	if err := a.store.LastError.Get(); err != nil {
		left += " " + errorStyle.Render("refresh failed")
	}
	if a.statusMsg != "" {
		left += "  " + a.statusMsg
	}

	right := "j/k:nav enter:scope tab:pane /:search p/s/x:pause/skip/stop e:settings L:leave n:notices r:refresh q:quit"
	switch {
	case a.mode == ModeSearch:
		right = "enter:apply esc:cancel"
	case a.mode == ModeConfirmLeave:
		right = "y:confirm any:cancel"
	case a.activePane == PaneLogs:
		right = "j/k:scroll g/G:top/bottom space:autoscroll tab:pane q:quit"
	}
	return left + "\n" + helpStyle.Render(truncate(right, max(a.width, 1)))
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
