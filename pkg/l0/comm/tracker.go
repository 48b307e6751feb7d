package comm

// EventTracker turns a rolling id reported by the firmware into occurrences.
// The first observation only records the id.
type EventTracker struct {
	last int
	seen bool
}

// Update records id and reports whether an occurrence fired.
func (t *EventTracker) Update(id int) bool {
	fired := t.seen && id != t.last
	t.last, t.seen = id, true
	return fired
}

// Last returns the last recorded id and whether any is recorded.
func (t *EventTracker) Last() (int, bool) {
	return t.last, t.seen
}

// Reset forgets the recorded id.
func (t *EventTracker) Reset() {
	*t = EventTracker{}
}

// DebounceState is the state of a DebounceTracker.
type DebounceState int

// Debounce states
const (
	// DebounceIdle ignores status reports.
	DebounceIdle DebounceState = iota
	// DebounceArmed waits for the first matching status.
	DebounceArmed
	// DebounceConfirming counts consecutive matching status.
	DebounceConfirming
)

// String implements fmt.Stringer.
func (s DebounceState) String() string {
	switch s {
	case DebounceIdle:
		return "idle"
	case DebounceArmed:
		return "armed"
	case DebounceConfirming:
		return "confirming"
	}
	return "unknown"
}

// DebounceConfig configures a DebounceTracker.
type DebounceConfig struct {
	// Thresholds maps a completion status to the number of consecutive
	// reports required before the completion fires.
	Thresholds map[int]int
	// GlitchLimit is the number of consecutive non-matching reports
	// after which a confirming tracker falls back to Armed.
	GlitchLimit int
}

// Per action debounce configurations.
var (
	WheelDebounce = DebounceConfig{
		Thresholds:  map[int]int{2: 6, 0: 8},
		GlitchLimit: 2,
	}
	SoundDebounce = DebounceConfig{
		Thresholds:  map[int]int{2: 5},
		GlitchLimit: 2,
	}
	LineTracerDebounce = DebounceConfig{
		Thresholds:  map[int]int{2: 5},
		GlitchLimit: 2,
	}
)

// DebounceTracker confirms a completion status over consecutive reports.
// Firing returns the tracker to Idle until armed again.
type DebounceTracker struct {
	Config DebounceConfig

	state     DebounceState
	candidate int
	count     int
	misses    int
}

// NewDebounceTracker creates an idle tracker.
func NewDebounceTracker(conf DebounceConfig) DebounceTracker {
	return DebounceTracker{Config: conf}
}

// State returns current state.
func (t *DebounceTracker) State() DebounceState {
	return t.state
}

// Count returns the number of consecutive matching reports so far.
func (t *DebounceTracker) Count() int {
	return t.count
}

// Arm starts waiting for completion, restarting any confirmation in progress.
func (t *DebounceTracker) Arm() {
	t.state, t.count, t.misses = DebounceArmed, 0, 0
}

// Reset returns the tracker to Idle.
func (t *DebounceTracker) Reset() {
	t.state, t.count, t.misses = DebounceIdle, 0, 0
}

// Update feeds one status report and reports whether completion fired.
func (t *DebounceTracker) Update(status int) bool {
	if t.state == DebounceIdle {
		return false
	}
	threshold, match := t.Config.Thresholds[status]
	if !match {
		if t.state == DebounceConfirming {
			t.count = 0
			t.misses++
			if t.misses >= t.Config.GlitchLimit {
				t.state, t.misses = DebounceArmed, 0
			}
		}
		return false
	}
	if t.state == DebounceArmed || status != t.candidate || t.count == 0 {
		t.state, t.candidate, t.count = DebounceConfirming, status, 0
	}
	t.count++
	t.misses = 0
	if t.count >= threshold {
		t.Reset()
		return true
	}
	return false
}
