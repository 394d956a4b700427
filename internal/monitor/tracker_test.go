package monitor

import (
	"testing"
)

func TestSeenSetReportsFirstOccurrenceOnce(t *testing.T) {
	s := NewSeenSet()
	if !s.IsNew("a") {
		t.Fatal("first a should be new")
	}
	if s.IsNew("a") {
		t.Fatal("second a should not be new")
	}
	if !s.IsNew("b") || s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestPresenceTrackerSequence(t *testing.T) {
	tr := NewPresenceTracker()
	steps := []struct {
		state PresenceState
		want  []TransitionKind
	}{
		{PresenceState{}, nil},
		{PresenceState{Status: "online"}, []TransitionKind{StatusChanged}},
		{PresenceState{Status: "online", Activity: "GameX"}, []TransitionKind{ActivityStarted}},
		{PresenceState{Status: "online"}, []TransitionKind{ActivityStopped}},
		{PresenceState{Status: "offline"}, []TransitionKind{StatusChanged}},
	}
	for i, st := range steps {
		got := tr.Diff("s1", "Alice", st.state)
		if len(got) != len(st.want) {
			t.Fatalf("step %d: got %+v, want kinds %v", i, got, st.want)
		}
		for j := range got {
			if got[j].Kind != st.want[j] {
				t.Fatalf("step %d: kind %v, want %v", i, got[j].Kind, st.want[j])
			}
		}
	}
}

func TestPresenceTrackerIdempotent(t *testing.T) {
	tr := NewPresenceTracker()
	tr.Diff("s", "n", PresenceState{Status: "Online"})
	next := PresenceState{Status: "Away", Activity: "GameY"}
	if got := tr.Diff("s", "n", next); len(got) != 2 {
		t.Fatalf("first change = %+v", got)
	}
	if got := tr.Diff("s", "n", next); len(got) != 0 {
		t.Fatalf("repeat produced %+v", got)
	}
}

func TestPresenceTrackerOrdersStatusFirstAndDetectsGameSwitch(t *testing.T) {
	tr := NewPresenceTracker()
	tr.Diff("s", "Bob", PresenceState{Status: "Online", Activity: "A"})
	got := tr.Diff("s", "Bob", PresenceState{Status: "Busy", Activity: "B"})
	if len(got) != 2 || got[0].Kind != StatusChanged || got[1].Kind != ActivityChanged {
		t.Fatalf("got %+v", got)
	}
	if got[1].Old != "A" || got[1].New != "B" {
		t.Fatalf("activity change = %+v", got[1])
	}
}

func TestRenderTransition(t *testing.T) {
	cases := []struct {
		tr   Transition
		want string
	}{
		{Transition{Kind: StatusChanged, Name: "Al", New: "Online"}, "[Steam] Al is now Online"},
		{Transition{Kind: ActivityStarted, Name: "Al", New: "Dota 2"}, "[Steam] Al started playing Dota 2"},
		{Transition{Kind: ActivityChanged, Name: "Al", Old: "Dota 2", New: "Portal"}, "[Steam] Al is now playing Portal"},
		{Transition{Kind: ActivityStopped, Name: "Al", Old: "Portal"}, "[Steam] Al stopped playing Portal"},
	}
	for _, c := range cases {
		if got := RenderTransition(c.tr); got != c.want {
			t.Errorf("RenderTransition(%v) = %q, want %q", c.tr.Kind, got, c.want)
		}
	}
}
