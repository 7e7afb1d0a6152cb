package logpipe

// DefaultScrollThreshold is how many rows from the bottom still count as
// "at the bottom".
const DefaultScrollThreshold = 3

// Position is a snapshot of the log viewport measured in rows.
type Position struct {
	Offset int // first visible row
	Height int // visible rows
	Total  int // total rows of content
}

// DistanceFromBottom returns how many rows lie below the visible area.
func (p Position) DistanceFromBottom() int {
	d := p.Total - (p.Offset + p.Height)
	if d < 0 {
		return 0
	}
	return d
}

// Autoscroll decides whether the log view follows new entries.
type Autoscroll struct {
	enabled   bool
	threshold int
}

// NewAutoscroll returns a controller. A negative threshold is treated as 0.
func NewAutoscroll(enabled bool, threshold int) *Autoscroll {
	if threshold < 0 {
		threshold = 0
	}
	return &Autoscroll{enabled: enabled, threshold: threshold}
}

func (a *Autoscroll) Enabled() bool  { return a.enabled }
func (a *Autoscroll) Threshold() int { return a.threshold }

// ShouldFollow is evaluated against the viewport as it was before the new
// entry was inserted. wasEmpty is true when the buffer held nothing.
func (a *Autoscroll) ShouldFollow(before Position, wasEmpty bool) bool {
	if !a.enabled {
		return false
	}
	return wasEmpty || before.DistanceFromBottom() <= a.threshold
}

// Toggle flips the flag. It returns true when the view must jump to the
// bottom now.
func (a *Autoscroll) Toggle() bool {
	return a.SetEnabled(!a.enabled)
}

// SetEnabled sets the flag, returning true when it turned on.
func (a *Autoscroll) SetEnabled(on bool) bool {
	turnedOn := on && !a.enabled
	a.enabled = on
	return turnedOn
}
