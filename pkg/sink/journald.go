package sink

import (
	"context"
	"errors"
	"strconv"

	"github.com/coreos/go-systemd/v22/journal"

	"github.com/modoterra/jukedash/pkg/core"
	"github.com/modoterra/jukedash/pkg/logpipe"
)

// Journald sends each entry to the local systemd journal.
type Journald struct {
	identifier string
	send       func(msg string, pri journal.Priority, vars map[string]string) error
}

// NewJournald fails when no journal socket is available.
func NewJournald(identifier string) (*Journald, error) {
	if !journal.Enabled() {
		return nil, errors.New("systemd journal is not available")
	}
	return &Journald{identifier: identifier, send: journal.Send}, nil
}

func (j *Journald) Name() string { return "journald" }

// Priority maps a bot level to a syslog priority.
func Priority(l core.Level) journal.Priority {
	switch l {
	case core.LevelDebug:
		return journal.PriDebug
	case core.LevelInfo:
		return journal.PriInfo
	case core.LevelWarning:
		return journal.PriWarning
	case core.LevelError:
		return journal.PriErr
	case core.LevelCritical:
		return journal.PriCrit
	default:
		return journal.PriNotice
	}
}

func (j *Journald) fields(e logpipe.Entry) map[string]string {
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": j.identifier,
		"BOT_LEVEL":         e.Event.Level,
		"BOT_TIMESTAMP":     strconv.FormatFloat(e.Event.Timestamp, 'f', -1, 64),
		"JUKEDASH_ORIGIN":   string(e.Origin),
	}
	if e.Event.Logger != "" {
		vars["BOT_LOGGER"] = e.Event.Logger
	}
	if e.Event.GuildID != nil {
		vars["BOT_GUILD_ID"] = strconv.FormatInt(*e.Event.GuildID, 10)
	}
	return vars
}

func (j *Journald) Write(ctx context.Context, entries []logpipe.Entry) error {
	var errs []error
	for _, e := range entries {
		if err := j.send(e.Event.Message, Priority(e.Event.Severity()), j.fields(e)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *Journald) Close(ctx context.Context) error { return nil }
