package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Scope is the dashboard's filter context: the aggregate view or one guild.
type Scope string

// GlobalScope is the aggregate view across all guilds.
const GlobalScope Scope = "global"

// IsGlobal reports whether the scope is the aggregate view.
func (s Scope) IsGlobal() bool {
	return s == "" || s == GlobalScope
}

// GuildID returns the guild identifier, or "" for the global scope.
func (s Scope) GuildID() string {
	if s.IsGlobal() {
		return ""
	}
	return string(s)
}

// ParseScope accepts "global", "" or a numeric guild id.
func ParseScope(v string) (Scope, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, string(GlobalScope)) {
		return GlobalScope, nil
	}
	if _, err := strconv.ParseUint(v, 10, 64); err != nil {
		return "", fmt.Errorf("invalid scope %q: expected \"global\" or a guild id", v)
	}
	return Scope(v), nil
}
