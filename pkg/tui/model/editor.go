package model

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/jukedash/pkg/core"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindInt
	kindNumber
)

// EditorField is a named text input in the settings form.
type EditorField struct {
	Label    string
	Key      string
	kind     fieldKind
	original string
	Input    textinput.Model
}

// EditorModel edits guild or global settings.
type EditorModel struct {
	fields    []EditorField
	activeIdx int
	guildID   string // empty for global settings
	title     string
	err       string
}

// guildSettingFields are the per-guild settings the dashboard may change.
var guildSettingFields = []struct {
	key  string
	kind fieldKind
}{
	{"pre_buffer", kindBool},
	{"buffer_amount", kindInt},
	{"replay_cooldown", kindInt},
	{"max_song_duration", kindInt},
	{"ephemeral_duration", kindInt},
}

// NewGuildSettingsEditor creates an editor pre-filled from a guild's settings.
func NewGuildSettingsEditor(id, name string, settings core.GuildSettings) *EditorModel {
	var fields []EditorField
	for _, f := range guildSettingFields {
		fields = append(fields, newField(f.key, f.kind, settingString(settings[f.key])))
	}
	if len(fields) > 0 {
		fields[0].Input.Focus()
	}
	return &EditorModel{fields: fields, guildID: id, title: "Settings: " + name}
}

// NewGlobalSettingsEditor creates an editor for every scalar global setting.
func NewGlobalSettingsEditor(settings core.GlobalSettings) *EditorModel {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []EditorField
	for _, k := range keys {
		var kind fieldKind
		switch settings[k].(type) {
		case bool:
			kind = kindBool
		case float64:
			kind = kindNumber
		case string, nil:
			kind = kindString
		default:
			continue
		}
		fields = append(fields, newField(k, kind, settingString(settings[k])))
	}
	if len(fields) > 0 {
		fields[0].Input.Focus()
	}
	return &EditorModel{fields: fields, title: "Global Settings"}
}

func newField(key string, kind fieldKind, value string) EditorField {
	ti := textinput.New()
	ti.Placeholder = key
	ti.SetValue(value)
	ti.CharLimit = 256
	return EditorField{Label: strings.ReplaceAll(key, "_", " "), Key: key, kind: kind, original: value, Input: ti}
}

func settingString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// changed returns the fields whose value differs from the loaded one.
func (e *EditorModel) changed() []EditorField {
	var out []EditorField
	for _, f := range e.fields {
		if strings.TrimSpace(f.Input.Value()) != f.original {
			out = append(out, f)
		}
	}
	return out
}

func (f EditorField) parse() (any, error) {
	v := strings.TrimSpace(f.Input.Value())
	switch f.kind {
	case kindBool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: expected true or false", f.Label)
		}
		return b, nil
	case kindInt:
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s: expected a non-negative whole number", f.Label)
		}
		return n, nil
	case kindNumber:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: expected a number", f.Label)
		}
		return n, nil
	default:
		return v, nil
	}
}

// GuildPatch builds a patch from the edited fields.
func (e *EditorModel) GuildPatch() (core.GuildSettingsPatch, error) {
	var p core.GuildSettingsPatch
	for _, f := range e.changed() {
		v, err := f.parse()
		if err != nil {
			return core.GuildSettingsPatch{}, err
		}
		switch f.Key {
		case "pre_buffer":
			b := v.(bool)
			p.PreBuffer = &b
		case "buffer_amount":
			n := v.(int)
			p.BufferAmount = &n
		case "replay_cooldown":
			n := v.(int)
			p.ReplayCooldown = &n
		case "max_song_duration":
			n := v.(int)
			p.MaxSongDuration = &n
		case "ephemeral_duration":
			n := v.(int)
			p.EphemeralDuration = &n
		}
	}
	return p, nil
}

// GlobalChanges returns only the edited global settings.
func (e *EditorModel) GlobalChanges() (core.GlobalSettings, error) {
	out := core.GlobalSettings{}
	for _, f := range e.changed() {
		v, err := f.parse()
		if err != nil {
			return nil, err
		}
		out[f.Key] = v
	}
	return out, nil
}

func (e *EditorModel) saveCmd(b Backend) (tea.Cmd, error) {
	if e.guildID != "" {
		patch, err := e.GuildPatch()
		if err != nil {
			return nil, err
		}
		if patch.Empty() {
			return nil, nil
		}
		id := e.guildID
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := b.UpdateGuildSettings(ctx, id, patch); err != nil {
				return errorMsg{err}
			}
			return actionResultMsg{msg: "settings saved for " + id}
		}, nil
	}

	changes, err := e.GlobalChanges()
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.UpdateGlobalSettings(ctx, changes); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{msg: "global settings saved"}
	}, nil
}

// HandleKey processes key events in editor mode.
func (e *EditorModel) HandleKey(a App, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = ModeNormal
		a.editor = nil
		a.statusMsg = "edit cancelled"
		return a, nil

	case "enter":
		cmd, err := e.saveCmd(a.backend)
		if err != nil {
			e.err = err.Error()
			return a, nil
		}
		a.mode = ModeNormal
		a.editor = nil
		if cmd == nil {
			a.statusMsg = "no changes"
			return a, nil
		}
		a.statusMsg = "saving..."
		return a, cmd

	case "tab", "down":
		if len(e.fields) == 0 {
			return a, nil
		}
		e.fields[e.activeIdx].Input.Blur()
		e.activeIdx = (e.activeIdx + 1) % len(e.fields)
		e.fields[e.activeIdx].Input.Focus()
		return a, textinput.Blink

	case "shift+tab", "up":
		if len(e.fields) == 0 {
			return a, nil
		}
		e.fields[e.activeIdx].Input.Blur()
		e.activeIdx = (e.activeIdx - 1 + len(e.fields)) % len(e.fields)
		e.fields[e.activeIdx].Input.Focus()
		return a, textinput.Blink

	default:
		if len(e.fields) == 0 {
			return a, nil
		}
		e.err = ""
		var cmd tea.Cmd
		e.fields[e.activeIdx].Input, cmd = e.fields[e.activeIdx].Input.Update(msg)
		return a, cmd
	}
}

// View renders the editor form.
func (e *EditorModel) View(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" "+e.title+" ") + "\n\n")
	if len(e.fields) == 0 {
		b.WriteString(dimStyle.Render("  nothing editable") + "\n")
	}
	labelW := 0
	for _, f := range e.fields {
		labelW = max(labelW, len(f.Label))
	}
	for i, f := range e.fields {
		prefix := "  "
		if i == e.activeIdx {
			prefix = "▸ "
		}
		label := fmt.Sprintf("%-*s", labelW, f.Label)
		b.WriteString(prefix + dimStyle.Render(label+": ") + f.Input.View() + "\n")
	}
	if e.err != "" {
		b.WriteString("\n" + errorStyle.Render("  "+e.err) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("  tab:next  shift+tab:prev  enter:save  esc:cancel"))
	return b.String()
}
