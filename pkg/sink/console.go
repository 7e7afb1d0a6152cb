package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/logpipe"
)

// Console prints one line per entry, coloured when writing to a terminal.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	color  bool
	styles map[core.Level]lipgloss.Style
	dim    lipgloss.Style
}

// NewConsole writes to w. Colour is enabled when w is a terminal.
func NewConsole(w io.Writer) *Console {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:     w,
		color: color,
		styles: map[core.Level]lipgloss.Style{
			core.LevelDebug:    r.NewStyle().Foreground(lipgloss.Color("241")),
			core.LevelInfo:     r.NewStyle().Foreground(lipgloss.Color("86")),
			core.LevelWarning:  r.NewStyle().Foreground(lipgloss.Color("214")),
			core.LevelError:    r.NewStyle().Foreground(lipgloss.Color("196")),
			core.LevelCritical: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
			core.LevelUnknown:  r.NewStyle(),
		},
		dim: r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (c *Console) Name() string { return "console" }

// FormatLine renders an entry without colour.
func FormatLine(e logpipe.Entry) string {
	var b strings.Builder
	b.WriteString(e.Event.Time().Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(e.Event.Severity().Short())
	b.WriteByte(' ')
	if e.Event.GuildID != nil {
		fmt.Fprintf(&b, "[%d] ", *e.Event.GuildID)
	}
	if e.Event.Logger != "" {
		b.WriteString(e.Event.Logger)
		b.WriteString(": ")
	}
	b.WriteString(e.Event.Message)
	return b.String()
}

func (c *Console) Write(ctx context.Context, entries []logpipe.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		line := FormatLine(e)
		if c.color {
			ts := e.Event.Time().Format("2006-01-02 15:04:05")
			lvl := e.Event.Severity()
			line = c.dim.Render(ts) + " " + c.styles[lvl].Render(lvl.Short()) + line[len(ts)+len(lvl.Short())+1:]
		}
		if _, err := io.WriteString(c.w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) Close(ctx context.Context) error { return nil }
