package monitor

// PresenceState is what the presence monitor compares between polls.
type PresenceState struct {
	Status   string
	Activity string // current game, empty when not playing
}

type TransitionKind int

const (
	StatusChanged TransitionKind = iota + 1
	ActivityStarted
	ActivityChanged
	ActivityStopped
)

func (k TransitionKind) String() string {
	switch k {
	case StatusChanged:
		return "status"
	case ActivityStarted:
		return "started"
	case ActivityChanged:
		return "changed"
	case ActivityStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Transition is one observed change for a subject.
type Transition struct {
	Kind    TransitionKind
	Subject string
	Name    string
	Old     string
	New     string
}

// PresenceTracker keeps the last observed state per subject.
type PresenceTracker struct {
	last map[string]PresenceState
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{last: map[string]PresenceState{}}
}

// Diff stores next as the subject's state and returns what changed. The
// first observation of a subject only seeds. A status change is reported
// before an activity change.
func (t *PresenceTracker) Diff(subject, name string, next PresenceState) []Transition {
	prev, seen := t.last[subject]
	t.last[subject] = next
	if !seen {
		return nil
	}

	var out []Transition
	if prev.Status != next.Status {
		out = append(out, Transition{Kind: StatusChanged, Subject: subject, Name: name, Old: prev.Status, New: next.Status})
	}
	switch {
	case prev.Activity == next.Activity:
	case prev.Activity == "":
		out = append(out, Transition{Kind: ActivityStarted, Subject: subject, Name: name, New: next.Activity})
	case next.Activity == "":
		out = append(out, Transition{Kind: ActivityStopped, Subject: subject, Name: name, Old: prev.Activity})
	default:
		out = append(out, Transition{Kind: ActivityChanged, Subject: subject, Name: name, Old: prev.Activity, New: next.Activity})
	}
	return out
}

func (t *PresenceTracker) Len() int { return len(t.last) }
