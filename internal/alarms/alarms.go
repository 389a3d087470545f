package alarms

import "strings"

type State string

const (
	StateOK               State = "OK"
	StateAlarm            State = "ALARM"
	StateInsufficientData State = "INSUFFICIENT_DATA"
)

// KnownStates lists the states in report order.
var KnownStates = []State{StateOK, StateAlarm, StateInsufficientData}

// ParseState accepts the exact CloudWatch spelling only.
func ParseState(value string) (State, bool) {
	for _, state := range KnownStates {
		if string(state) == value {
			return state, true
		}
	}
	return "", false
}

type Alarm struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MetricName  string `json:"metricName,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	State       State  `json:"state"`
}

// Tally maps each known state to the number of alarms in it.
type Tally map[State]int

func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

func ByState(set []Alarm, state State) []Alarm {
	return keep(set, func(a Alarm) bool { return a.State == state })
}

func ByWatchlist(set []Alarm, names []string) []Alarm {
	watch := nameSet(names)
	return keep(set, func(a Alarm) bool {
		_, ok := watch[a.Name]
		return ok
	})
}

func ByPrefix(set []Alarm, prefix string) []Alarm {
	return keep(set, func(a Alarm) bool { return strings.HasPrefix(a.Name, prefix) })
}

// WithIgnoreList drops alarms named in names.
func WithIgnoreList(set []Alarm, names []string) []Alarm {
	if len(names) == 0 {
		return keep(set, func(Alarm) bool { return true })
	}
	ignore := nameSet(names)
	return keep(set, func(a Alarm) bool {
		_, ok := ignore[a.Name]
		return !ok
	})
}

func CountByState(set []Alarm, state State) int {
	return len(ByState(set, state))
}

// TallyAllStates counts alarms per known state. Every known state is present
// in the result; alarms in any other state are not counted.
func TallyAllStates(set []Alarm) Tally {
	tally := Tally{}
	for _, state := range KnownStates {
		tally[state] = 0
	}
	for _, alarm := range set {
		if _, ok := tally[alarm.State]; ok {
			tally[alarm.State]++
		}
	}
	return tally
}

func keep(set []Alarm, pred func(Alarm) bool) []Alarm {
	out := make([]Alarm, 0, len(set))
	for _, alarm := range set {
		if pred(alarm) {
			out = append(out, alarm)
		}
	}
	return out
}

func nameSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		out[name] = struct{}{}
	}
	return out
}
